// Package deform moves surface vertices directly or through an external
// as-rigid-as-possible solver.
package deform

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/cagewarp/internal/logger"
	"github.com/Faultbox/cagewarp/internal/mesh"
	cwmath "github.com/Faultbox/cagewarp/pkg/math"
)

// Deformer errors.
var (
	ErrIndexOutOfRange = errors.New("deform: vertex index out of range")
	ErrSizeMismatch    = errors.New("deform: size mismatch")
	ErrNotHandle       = errors.New("deform: vertex is not a handle")
	ErrSolverFailure   = errors.New("deform: solver failure")
	ErrNoSolver        = errors.New("deform: ARAP needs a solver")
	ErrUnknownKind     = errors.New("deform: unknown kind")
)

// Kind is the closed set of deformation methods.
type Kind uint8

const (
	Normal Kind = iota
	ARAP
)

func (k Kind) String() string {
	switch k {
	case Normal:
		return "normal"
	case ARAP:
		return "arap"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ParseKind parses a deformation method name.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal", "":
		return Normal, nil
	case "arap":
		return ARAP, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Deformer moves vertices of a mesh.
type Deformer interface {
	Kind() Kind
	MovePoint(i int, p r3.Vec) error
	MovePoints(indices []int, positions []r3.Vec) error
}

// ARAPSolver is an external as-rigid-as-possible solver.
type ARAPSolver interface {
	// Init prepares the solver for a mesh at rest.
	Init(points []r3.Vec, triangles [][3]int) error
	// SetHandles marks the vertices whose positions are imposed.
	SetHandles(handles []bool)
	// ComputeDeformation returns all positions given the current ones, of
	// which only handles are trusted.
	ComputeDeformation(points []r3.Vec) ([]r3.Vec, error)
}

// New returns the deformer of the given kind. solver is only used by ARAP.
func New(kind Kind, surface *mesh.Surface, solver ARAPSolver) (Deformer, error) {
	switch kind {
	case Normal:
		return NewNormal(surface), nil
	case ARAP:
		d, err := NewARAP(surface, solver)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
}

// NormalDeformer writes positions straight into the target.
type NormalDeformer struct {
	target mesh.Target
}

// NewNormal returns a deformer that moves vertices of target directly.
func NewNormal(target mesh.Target) *NormalDeformer {
	return &NormalDeformer{target: target}
}

func (d *NormalDeformer) Kind() Kind { return Normal }

func (d *NormalDeformer) MovePoint(i int, p r3.Vec) error {
	return d.MovePoints([]int{i}, []r3.Vec{p})
}

func (d *NormalDeformer) MovePoints(indices []int, positions []r3.Vec) error {
	verts := d.target.Vertices()
	if err := checkMove(len(verts), indices, positions); err != nil {
		return err
	}
	for k, i := range indices {
		verts[i] = positions[k]
	}
	d.target.UpdateNormals()
	return nil
}

func checkMove(n int, indices []int, positions []r3.Vec) error {
	if len(indices) != len(positions) {
		return fmt.Errorf("%w: %d indices for %d positions", ErrSizeMismatch, len(indices), len(positions))
	}
	for _, i := range indices {
		if i < 0 || i >= n {
			return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, n)
		}
	}
	return nil
}

// ARAPDeformer moves handle vertices and lets an external solver place the
// others.
type ARAPDeformer struct {
	surface *mesh.Surface
	solver  ARAPSolver
	handles []bool
}

// NewARAP initializes solver with the current surface.
func NewARAP(surface *mesh.Surface, solver ARAPSolver) (*ARAPDeformer, error) {
	if solver == nil {
		return nil, ErrNoSolver
	}
	points := append([]r3.Vec(nil), surface.Vertices()...)
	if err := solver.Init(points, surface.Triangles()); err != nil {
		return nil, fmt.Errorf("%w: init: %w", ErrSolverFailure, err)
	}
	d := &ARAPDeformer{
		surface: surface,
		solver:  solver,
		handles: make([]bool, len(points)),
	}
	solver.SetHandles(d.handles)
	return d, nil
}

func (d *ARAPDeformer) Kind() Kind { return ARAP }

// AddHandle marks vertex i as a handle.
func (d *ARAPDeformer) AddHandle(i int) error { return d.setHandle(i, true) }

// RemoveHandle unmarks vertex i.
func (d *ARAPDeformer) RemoveHandle(i int) error { return d.setHandle(i, false) }

func (d *ARAPDeformer) setHandle(i int, on bool) error {
	if i < 0 || i >= len(d.handles) {
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(d.handles))
	}
	d.handles[i] = on
	d.solver.SetHandles(d.handles)
	return nil
}

// Handles returns a copy of the handle flags.
func (d *ARAPDeformer) Handles() []bool { return append([]bool(nil), d.handles...) }

// HandleCount returns the number of handles.
func (d *ARAPDeformer) HandleCount() int {
	var n int
	for _, h := range d.handles {
		if h {
			n++
		}
	}
	return n
}

func (d *ARAPDeformer) MovePoint(i int, p r3.Vec) error {
	return d.MovePoints([]int{i}, []r3.Vec{p})
}

// MovePoints moves handle vertices and solves for the rest. Moving a vertex
// that is not a handle is an error.
func (d *ARAPDeformer) MovePoints(indices []int, positions []r3.Vec) error {
	if err := checkMove(len(d.handles), indices, positions); err != nil {
		return err
	}
	for _, i := range indices {
		if !d.handles[i] {
			return fmt.Errorf("%w: %d", ErrNotHandle, i)
		}
	}
	return d.solve(indices, positions)
}

func (d *ARAPDeformer) solve(indices []int, positions []r3.Vec) error {
	verts := d.surface.Vertices()
	current := append([]r3.Vec(nil), verts...)
	for k, i := range indices {
		current[i] = positions[k]
	}

	out, err := d.solver.ComputeDeformation(current)
	if err == nil && len(out) != len(verts) {
		err = fmt.Errorf("%d positions returned for %d vertices", len(out), len(verts))
	}
	if err == nil {
		for i, p := range out {
			if !cwmath.IsFinite(p) {
				err = fmt.Errorf("non-finite position for vertex %d", i)
				break
			}
		}
	}
	if err != nil {
		logger.Named("deform").Warn("ARAP deformation failed", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrSolverFailure, err)
	}

	copy(verts, out)
	d.surface.UpdateNormals()
	return nil
}

// FitToPoints pulls the given vertices onto targets, using them as handles
// for this solve only. Handles set before the call are kept.
func (d *ARAPDeformer) FitToPoints(indices []int, targets []r3.Vec) error {
	if err := checkMove(len(d.handles), indices, targets); err != nil {
		return err
	}
	saved := d.Handles()
	for _, i := range indices {
		d.handles[i] = true
	}
	d.solver.SetHandles(d.handles)
	defer func() {
		copy(d.handles, saved)
		d.solver.SetHandles(d.handles)
	}()
	return d.solve(indices, targets)
}
