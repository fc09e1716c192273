// Package config handles cagewarp configuration loading and management.
package config

import (
	"errors"
	"fmt"

	"github.com/Faultbox/cagewarp/internal/cage"
	"github.com/Faultbox/cagewarp/internal/lri"
	"github.com/Faultbox/cagewarp/internal/sparse"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("config: invalid value")

// Config holds all cagewarp settings.
type Config struct {
	Cage    CageConfig    `yaml:"cage"`
	Target  TargetConfig  `yaml:"target"`
	Solver  SolverConfig  `yaml:"solver"`
	Compute ComputeConfig `yaml:"compute"`
	Output  OutputConfig  `yaml:"output"`
	Logging LoggingConfig `yaml:"logging"`
}

// CageConfig holds the cage mesh and how targets are bound to it.
type CageConfig struct {
	Path        string `yaml:"path"`         // .off or .obj
	Method      string `yaml:"method"`       // mvc, green, green_lri
	RigidPolicy string `yaml:"rigid_policy"` // rebind, cage-only, detached
}

// TargetConfig holds the deformed mesh.
type TargetConfig struct {
	Path string `yaml:"path"` // .mesh, .off or .obj
}

// SolverConfig holds outlier corrector settings.
type SolverConfig struct {
	Backend          string  `yaml:"backend"` // ldl, dense
	ConstraintWeight float64 `yaml:"constraint_weight"`
}

// ComputeConfig holds parallelism settings.
type ComputeConfig struct {
	Workers int `yaml:"workers"` // 0 = GOMAXPROCS
}

// OutputConfig holds where deformed meshes are written.
type OutputConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Cage: CageConfig{
			Method:      "green_lri",
			RigidPolicy: "rebind",
		},
		Solver: SolverConfig{
			Backend:          "ldl",
			ConstraintWeight: 1,
		},
		Output: OutputConfig{
			Path: "deformed.mesh",
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate checks enum strings and numeric ranges.
func (c *Config) Validate() error {
	_, err := c.CageOptions()
	return err
}

// CageOptions converts the config into binding options.
func (c *Config) CageOptions() (cage.Options, error) {
	method, err := cage.ParseMethod(c.Cage.Method)
	if err != nil {
		return cage.Options{}, fmt.Errorf("%w: cage.method: %w", ErrInvalid, err)
	}
	rigid, err := cage.ParseRigidPolicy(c.Cage.RigidPolicy)
	if err != nil {
		return cage.Options{}, fmt.Errorf("%w: cage.rigid_policy: %w", ErrInvalid, err)
	}
	backend, err := sparse.ParseBackend(c.Solver.Backend)
	if err != nil {
		return cage.Options{}, fmt.Errorf("%w: solver.backend: %w", ErrInvalid, err)
	}
	if c.Solver.ConstraintWeight < 0 {
		return cage.Options{}, fmt.Errorf("%w: solver.constraint_weight %g is negative", ErrInvalid, c.Solver.ConstraintWeight)
	}
	if c.Compute.Workers < 0 {
		return cage.Options{}, fmt.Errorf("%w: compute.workers %d is negative", ErrInvalid, c.Compute.Workers)
	}
	return cage.Options{
		Method:  method,
		Rigid:   rigid,
		Workers: c.Compute.Workers,
		Solver: lri.Options{
			Backend:          backend,
			ConstraintWeight: c.Solver.ConstraintWeight,
		},
	}, nil
}
