package config

import "flag"

var (
	flagConfig  = flag.String("config", "", "Path to config file")
	flagDebug   = flag.Bool("debug", false, "Enable debug logging")
	flagMethod  = flag.String("method", "", "Coordinates: mvc, green or green_lri")
	flagWorkers = flag.Int("workers", -1, "Coordinate workers (0 = GOMAXPROCS)")
	flagBackend = flag.String("backend", "", "Outlier solver backend: ldl or dense")
	flagCage    = flag.String("cage", "", "Cage mesh (.off, .obj)")
	flagTarget  = flag.String("target", "", "Target mesh (.mesh, .off, .obj)")
	flagOut     = flag.String("out", "", "Output mesh path")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// Args returns the arguments left after flag parsing.
func Args() []string {
	return flag.Args()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagMethod != "" {
		cfg.Cage.Method = *flagMethod
	}
	if *flagWorkers >= 0 {
		cfg.Compute.Workers = *flagWorkers
	}
	if *flagBackend != "" {
		cfg.Solver.Backend = *flagBackend
	}
	if *flagCage != "" {
		cfg.Cage.Path = *flagCage
	}
	if *flagTarget != "" {
		cfg.Target.Path = *flagTarget
	}
	if *flagOut != "" {
		cfg.Output.Path = *flagOut
	}
}
