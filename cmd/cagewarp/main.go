// cagewarp binds meshes to cages and deforms them from the command line.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/cagewarp/internal/cage"
	"github.com/Faultbox/cagewarp/internal/config"
	"github.com/Faultbox/cagewarp/internal/deform"
	"github.com/Faultbox/cagewarp/internal/logger"
	"github.com/Faultbox/cagewarp/internal/mesh"
	"github.com/Faultbox/cagewarp/internal/report"
	"github.com/Faultbox/cagewarp/internal/session"
	"github.com/Faultbox/cagewarp/pkg/formats"
	"github.com/Faultbox/cagewarp/pkg/geom"
)

func main() {
	config.ParseFlags()
	args := config.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger.Sugar.Debugf("Config: %+v", cfg)

	command := args[0]
	args = args[1:]

	switch command {
	case "info":
		err = cmdInfo(args)
	case "grid":
		err = cmdGrid(args)
	case "bind":
		err = cmdBind(cfg)
	case "deform":
		err = cmdDeform(cfg, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		logger.Error("command failed", zap.String("command", command), zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		logger.Sync()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`cagewarp - cage-based mesh deformation

Usage:
  cagewarp [global options] <command> [options]

Global options:
  -config <file>    Config file (default ./cagewarp.yaml, then user config dir)
  -cage <file>      Cage surface (.off, .obj)
  -target <file>    Target mesh (.mesh, .off, .obj)
  -method <name>    mvc, green or green_lri
  -backend <name>   Outlier solver backend: ldl or dense
  -workers <n>      Coordinate workers (0 = all cores)
  -out <file>       Deformed target output
  -debug            Debug logging

Commands:
  info <file>                      Show mesh information
  grid [-n N] [-cell S] <out.mesh> Write a tetrahedral grid
  bind                             Bind target to cage and report outliers
  deform [options]                 Deform target and write it to -out

Examples:
  cagewarp info hand.mesh
  cagewarp grid -n 8 -cell 0.25 block.mesh
  cagewarp -cage cage.off -target hand.mesh bind
  cagewarp -cage cage.off -target hand.mesh deform -to cage_posed.off
  cagewarp -cage cage.off -target hand.mesh deform -move 6=2.5,2.5,3 -translate 0,0,1
  cagewarp -cage cage.off -target hand.mesh deform -move @2.4,2.4,2.6=2.5,2.5,3 -rotate 0,0,1,30`)
}

func cmdInfo(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: cagewarp info <file>")
	}
	target, err := loadTarget(args[0])
	if err != nil {
		return err
	}

	box := target.BBox()
	fmt.Printf("File:      %s\n", args[0])
	fmt.Printf("Vertices:  %d\n", len(target.Vertices()))
	switch t := target.(type) {
	case *mesh.TetMesh:
		fmt.Printf("Tets:      %d\n", len(t.Tetrahedra()))
		fmt.Printf("Boundary:  %d triangles\n", len(t.Surface()))
		fmt.Printf("Volume:    %.6g\n", t.Volume())
	case *mesh.Surface:
		fmt.Printf("Triangles: %d\n", len(t.Triangles()))
	}
	fmt.Printf("Bounds:    (%.4g, %.4g, %.4g) - (%.4g, %.4g, %.4g)\n",
		box.Min.X, box.Min.Y, box.Min.Z, box.Max.X, box.Max.Y, box.Max.Z)
	fmt.Printf("Diagonal:  %.6g\n", geom.Diagonal(box))
	return nil
}

func cmdGrid(args []string) error {
	fs := flag.NewFlagSet("grid", flag.ExitOnError)
	n := fs.Int("n", 4, "Cells per axis")
	cell := fs.Float64("cell", 1, "Cell size")
	origin := fs.String("origin", "0,0,0", "Grid origin x,y,z")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: cagewarp grid [-n N] [-cell S] <out.mesh>")
	}
	o, err := parseVec(*origin)
	if err != nil {
		return err
	}
	g, err := mesh.BuildGrid(o, r3.Vec{X: *cell, Y: *cell, Z: *cell}, *n, *n, *n)
	if err != nil {
		return err
	}
	if err := writeTarget(fs.Arg(0), g); err != nil {
		return err
	}
	fmt.Printf("Wrote %d vertices, %d tetrahedra to %s\n", len(g.Vertices()), len(g.Tetrahedra()), fs.Arg(0))
	return nil
}

// bindFromConfig loads the configured meshes and registers a binding.
func bindFromConfig(cfg *config.Config, reg *session.Registry) (session.Handle, error) {
	if cfg.Cage.Path == "" || cfg.Target.Path == "" {
		return 0, fmt.Errorf("both -cage and -target are required")
	}
	opts, err := cfg.CageOptions()
	if err != nil {
		return 0, err
	}
	cg, err := loadSurface(cfg.Cage.Path)
	if err != nil {
		return 0, fmt.Errorf("cage: %w", err)
	}
	target, err := loadTarget(cfg.Target.Path)
	if err != nil {
		return 0, fmt.Errorf("target: %w", err)
	}
	return reg.Bind(cg, target, opts)
}

func cmdBind(cfg *config.Config) error {
	reg := session.NewRegistry()
	defer reg.Close()

	h, err := bindFromConfig(cfg, reg)
	if err != nil {
		return err
	}
	m, err := reg.Model(h)
	if err != nil {
		return err
	}

	fmt.Printf("Cage:      %s (%d vertices)\n", cfg.Cage.Path, len(m.Cage().Vertices()))
	fmt.Printf("Target:    %s (%d vertices)\n", cfg.Target.Path, len(m.Target().Vertices()))
	fmt.Printf("Method:    %s", m.Method())
	if m.EffectiveMethod() != m.Method() {
		fmt.Printf(" (running as %s)", m.EffectiveMethod())
	}
	fmt.Println()
	fmt.Printf("Epsilon:   %.6g\n", m.Epsilon())
	fmt.Printf("Outliers:  %d\n", m.OutlierCount())
	fmt.Printf("LRI:       %v\n", m.LRIActive())
	return nil
}

func cmdDeform(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("deform", flag.ExitOnError)
	to := fs.String("to", "", "Deformed cage (.off, .obj) with the same vertices")
	var moves moveList
	fs.Var(&moves, "move", "Move a cage vertex: index=x,y,z or @x,y,z=x,y,z for the nearest vertex (repeatable)")
	var rotations rotateList
	fs.Var(&rotations, "rotate", "Rotate the cage about its centroid: ax,ay,az,degrees (repeatable)")
	translate := fs.String("translate", "", "Translate the cage: x,y,z")
	policy := fs.String("rigid", "", "Rigid policy for -rotate and -translate: rebind, cage-only or detached")
	locate := fs.String("locate", "", "Print where a point of the deformed target was at rest: x,y,z")
	cageOut := fs.String("cage-out", "", "Write the deformed cage here")
	reportOut := fs.String("report", "", "Write the YAML report here instead of stdout")
	fs.Parse(args)

	reg := session.NewRegistry()
	defer reg.Close()

	h, err := bindFromConfig(cfg, reg)
	if err != nil {
		return err
	}
	m, err := reg.Model(h)
	if err != nil {
		return err
	}
	rest := m.RestPositions()
	outliers := m.Outliers()
	method := m.EffectiveMethod().String()

	// Cage vertices are edited like any other mesh, then the target follows.
	cageEdit := deform.NewNormal(m.Cage())
	if *to != "" {
		posed, err := formats.ParseSurfaceFile(*to)
		if err != nil {
			return fmt.Errorf("deformed cage: %w", err)
		}
		if err := m.ApplyCage(posed.Vertices); err != nil {
			return err
		}
	}
	if len(moves.indices) > 0 {
		if err := cageEdit.MovePoints(moves.resolve(m.Cage()), moves.positions); err != nil {
			return err
		}
		if err := m.UpdateTarget(); err != nil {
			return err
		}
	}
	if *policy != "" {
		p, err := cage.ParseRigidPolicy(*policy)
		if err != nil {
			return err
		}
		m.SetRigidPolicy(p)
	}
	if rotations.set {
		if err := m.Rotate(rotations.q.ToMat3()); err != nil {
			return err
		}
	}
	if *translate != "" {
		d, err := parseVec(*translate)
		if err != nil {
			return err
		}
		if err := m.Translate(d); err != nil {
			return err
		}
	}

	positions, err := reg.Positions(h)
	if err != nil {
		return err
	}
	if *locate != "" {
		p, err := parseVec(*locate)
		if err != nil {
			return err
		}
		q, err := locateRest(m.Target(), p, rest)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Rest position of (%.4g, %.4g, %.4g): (%.6g, %.6g, %.6g)\n", p.X, p.Y, p.Z, q.X, q.Y, q.Z)
	}
	if cfg.Output.Path != "" {
		if err := writeTarget(cfg.Output.Path, m.Target()); err != nil {
			return fmt.Errorf("writing %s: %w", cfg.Output.Path, err)
		}
		logger.Info("deformed target written", zap.String("path", cfg.Output.Path))
	}
	if *cageOut != "" {
		if err := writeTarget(*cageOut, m.Cage()); err != nil {
			return fmt.Errorf("writing %s: %w", *cageOut, err)
		}
	}

	if method != cage.GreenLRI.String() {
		outliers = nil
	}
	rep, err := report.Build(method, rest, positions, outliers)
	if err != nil {
		return err
	}
	if *reportOut == "" {
		return rep.WriteYAML(os.Stdout)
	}
	if err := os.MkdirAll(filepath.Dir(*reportOut), 0755); err != nil {
		return err
	}
	f, err := os.Create(*reportOut)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := rep.WriteYAML(f); err != nil {
		return err
	}
	return f.Close()
}
