// Package cage binds a target mesh to a coarse enclosing cage and deforms the
// target whenever the cage moves.
//
// Coordinates are computed once per binding from rest geometry. Every cage
// motion reconstructs all target vertices from those coordinates and, for
// GreenLRI bindings with outliers, corrects the vertices the cage cannot
// reach.
//
// A Model is not safe for concurrent use.
package cage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/cagewarp/internal/coords"
	"github.com/Faultbox/cagewarp/internal/logger"
	"github.com/Faultbox/cagewarp/internal/lri"
	"github.com/Faultbox/cagewarp/internal/mesh"
	"github.com/Faultbox/cagewarp/pkg/geom"
)

// Model errors.
var (
	ErrUnbound         = errors.New("cage: model is not bound")
	ErrSizeMismatch    = errors.New("cage: size mismatch")
	ErrIndexOutOfRange = errors.New("cage: vertex index out of range")
	ErrSolverFailure   = errors.New("cage: solver failure")
	ErrNotVolumetric   = errors.New("cage: target has no tetrahedra")
	ErrNoTarget        = errors.New("cage: nil target")
	ErrEmptyCage       = errors.New("cage: cage has no triangles")
	ErrUnknownMethod   = errors.New("cage: unknown method")
	ErrUnknownPolicy   = errors.New("cage: unknown rigid policy")
)

// Method selects the coordinate scheme of a binding.
type Method uint8

const (
	MVC Method = iota
	Green
	// GreenLRI is Green coordinates plus outlier correction. It needs a
	// tetrahedral target and falls back to Green when nothing is outside
	// the cage.
	GreenLRI
)

func (m Method) String() string {
	switch m {
	case MVC:
		return "mvc"
	case Green:
		return "green"
	case GreenLRI:
		return "green-lri"
	default:
		return fmt.Sprintf("Method(%d)", uint8(m))
	}
}

// ParseMethod parses a method name.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mvc":
		return MVC, nil
	case "green":
		return Green, nil
	case "green-lri", "green_lri", "greenlri", "lri":
		return GreenLRI, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

// RigidPolicy decides what a rigid transform of the cage does to the
// binding.
type RigidPolicy uint8

const (
	// RigidRebind applies the transform to the target too, then rebinds.
	RigidRebind RigidPolicy = iota
	// RigidCageOnly moves the cage alone, then rebinds. The target stays.
	RigidCageOnly
	// RigidDetached moves the cage and lets the target follow through its
	// coordinates, without rebinding.
	RigidDetached
)

func (p RigidPolicy) String() string {
	switch p {
	case RigidRebind:
		return "rebind"
	case RigidCageOnly:
		return "cage-only"
	case RigidDetached:
		return "detached"
	default:
		return fmt.Sprintf("RigidPolicy(%d)", uint8(p))
	}
}

// ParseRigidPolicy parses a policy name.
func ParseRigidPolicy(s string) (RigidPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rebind", "":
		return RigidRebind, nil
	case "cage-only", "cageonly":
		return RigidCageOnly, nil
	case "detached":
		return RigidDetached, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

// Options configures a binding.
type Options struct {
	Method Method
	Rigid  RigidPolicy
	// Workers bounds coordinate computation parallelism; below 1 means
	// GOMAXPROCS.
	Workers int
	// Solver configures the outlier corrector of GreenLRI bindings.
	Solver lri.Options
}

// Model is a cage bound to a target mesh.
type Model struct {
	opts   Options
	cage   *mesh.Surface
	target mesh.Target
	bound  bool

	state binding
}

// binding is everything ReInitialize computes. It is replaced as a whole so
// a failed rebuild leaves the previous one in place.
type binding struct {
	rest      []r3.Vec
	restCage  coords.Geometry
	scales    []coords.ScalingFactor
	mvc       [][]coords.Weight
	green     []coords.GreenRecord
	outliers  []bool
	nOutliers int
	corrector *lri.Corrector
	effective Method
	eps       float64
}

// Bind captures the current target vertices as rest positions and computes
// their coordinates against cage. The model mutates the vertices of both
// meshes in place from then on.
func Bind(cage *mesh.Surface, target mesh.Target, opts Options) (*Model, error) {
	if cage == nil || len(cage.Triangles()) == 0 {
		return nil, ErrEmptyCage
	}
	if target == nil {
		return nil, ErrNoTarget
	}
	if opts.Method > GreenLRI {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMethod, opts.Method)
	}
	if opts.Method == GreenLRI {
		if _, ok := target.(mesh.Tetrahedra); !ok {
			return nil, ErrNotVolumetric
		}
	}

	m := &Model{opts: opts, cage: cage, target: target, bound: true}
	if err := m.ReInitialize(); err != nil {
		return nil, err
	}
	return m, nil
}

// ReInitialize rebinds the target at its current position against the
// cage at its current position. On failure the previous binding is kept
// unchanged.
func (m *Model) ReInitialize() error {
	if !m.bound {
		return ErrUnbound
	}
	start := time.Now()
	log := logger.Named("cage")

	m.cage.UpdateNormals()
	next := binding{
		rest:      append([]r3.Vec(nil), m.target.Vertices()...),
		restCage:  coords.FromSurface(m.cage).Clone(),
		effective: m.opts.Method,
		eps:       geom.Diagonal(m.cage.BBox()) / 1000,
	}
	next.outliers = make([]bool, len(next.rest))

	if len(next.rest) == 0 {
		log.Warn("target has no vertices, nothing to bind")
		m.commit(next)
		return nil
	}

	switch m.opts.Method {
	case MVC:
		next.mvc, _ = coords.ComputeMVC(next.rest, next.restCage, m.opts.Workers)
	case Green, GreenLRI:
		next.green, _ = coords.ComputeGreen(next.rest, next.restCage, m.opts.Workers)
		next.scales = make([]coords.ScalingFactor, len(next.restCage.Triangles))
		for t, tri := range next.restCage.Triangles {
			v := next.restCage.Vertices
			next.scales[t] = coords.ScalingFactorOf(v[tri[0]], v[tri[1]], v[tri[2]])
		}
	}

	if m.opts.Method == GreenLRI {
		next.outliers = DetectOutliers(next.rest, next.restPosition, next.eps)
		for _, o := range next.outliers {
			if o {
				next.nOutliers++
			}
		}
		tets := m.target.(mesh.Tetrahedra).Tetrahedra()
		correctable := countInTets(tets, next.outliers)
		switch {
		case next.nOutliers == 0:
			log.Info("no outliers found, binding degrades to green coordinates")
			next.effective = Green
		case correctable == 0:
			log.Warn("no tetrahedron touches an outlier, binding degrades to green coordinates",
				zap.Int("outliers", next.nOutliers))
			next.effective = Green
		default:
			if correctable < next.nOutliers {
				log.Warn("outliers outside every tetrahedron are left uncorrected",
					zap.Int("uncorrected", next.nOutliers-correctable))
			}
			shell, err := lri.BuildShell(tets, next.rest, next.outliers)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrSolverFailure, err)
			}
			if next.corrector, err = lri.NewCorrector(shell, m.opts.Solver); err != nil {
				log.Error("outlier corrector setup failed, keeping previous binding", zap.Error(err))
				return fmt.Errorf("%w: %w", ErrSolverFailure, err)
			}
		}
	}

	m.commit(next)
	log.Info("cage bound",
		zap.Stringer("method", m.opts.Method),
		zap.Stringer("effective", next.effective),
		zap.Int("cage_vertices", len(next.restCage.Vertices)),
		zap.Int("cage_triangles", len(next.restCage.Triangles)),
		zap.Int("target_vertices", len(next.rest)),
		zap.Int("outliers", next.nOutliers),
		zap.Float64("epsilon", next.eps),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (m *Model) commit(next binding) {
	if m.state.corrector != nil {
		m.state.corrector.Free()
	}
	m.state = next
}

// Unbind drops the binding. The meshes keep their current positions.
func (m *Model) Unbind() {
	if !m.bound {
		return
	}
	m.commit(binding{})
	m.bound = false
	logger.Named("cage").Debug("cage unbound")
}

// Bound reports whether the model is bound.
func (m *Model) Bound() bool { return m.bound }

// Cage returns the cage surface.
func (m *Model) Cage() *mesh.Surface { return m.cage }

// Target returns the deformed mesh.
func (m *Model) Target() mesh.Target { return m.target }

// Method returns the requested method.
func (m *Model) Method() Method { return m.opts.Method }

// EffectiveMethod returns the method in use, which is Green for a GreenLRI
// binding without outliers.
func (m *Model) EffectiveMethod() Method { return m.state.effective }

// LRIActive reports whether outlier correction runs on every update.
func (m *Model) LRIActive() bool { return m.state.corrector != nil }

// RigidPolicy returns the current rigid transform policy.
func (m *Model) RigidPolicy() RigidPolicy { return m.opts.Rigid }

// SetRigidPolicy changes the rigid transform policy.
func (m *Model) SetRigidPolicy(p RigidPolicy) { m.opts.Rigid = p }

// Epsilon returns the outlier tolerance: the cage bounding box diagonal over
// 1000, at bind time.
func (m *Model) Epsilon() float64 { return m.state.eps }

// IsOutlier reports whether target vertex i was flagged at bind time.
// Out of range indices report false.
func (m *Model) IsOutlier(i int) bool {
	if i < 0 || i >= len(m.state.outliers) {
		return false
	}
	return m.state.outliers[i]
}

// Outliers returns a copy of the outlier mask.
func (m *Model) Outliers() []bool { return append([]bool(nil), m.state.outliers...) }

// OutlierCount returns the number of outliers.
func (m *Model) OutlierCount() int { return m.state.nOutliers }

// Positions returns a snapshot of the target vertices.
func (m *Model) Positions() []r3.Vec { return append([]r3.Vec(nil), m.target.Vertices()...) }

// RestPositions returns a copy of the rest positions captured at bind time.
func (m *Model) RestPositions() []r3.Vec { return append([]r3.Vec(nil), m.state.rest...) }

// RestPosition reconstructs target vertex i from its coordinates and the
// rest cage.
func (m *Model) RestPosition(i int) (r3.Vec, error) {
	if !m.bound {
		return r3.Vec{}, ErrUnbound
	}
	if i < 0 || i >= len(m.state.rest) {
		return r3.Vec{}, fmt.Errorf("%w: target vertex %d", ErrIndexOutOfRange, i)
	}
	return m.state.restPosition(i), nil
}

func (b *binding) restPosition(i int) r3.Vec {
	if b.mvc != nil {
		return coords.ReconstructMVC(b.mvc[i], b.restCage.Vertices)
	}
	g := b.green[i]
	return coords.ReconstructGreen(g.Phi, g.Psi, b.restCage.Vertices, b.restCage.Normals, nil)
}
