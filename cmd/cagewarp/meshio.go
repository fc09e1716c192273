package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/cagewarp/internal/mesh"
	"github.com/Faultbox/cagewarp/pkg/formats"
	cwmath "github.com/Faultbox/cagewarp/pkg/math"
)

func loadSurface(path string) (*mesh.Surface, error) {
	s, err := formats.ParseSurfaceFile(path)
	if err != nil {
		return nil, err
	}
	return mesh.NewSurface(s.Vertices, s.Triangles)
}

// loadTarget reads a Medit volume as a tetrahedral mesh and anything else as
// a surface.
func loadTarget(path string) (mesh.Target, error) {
	if strings.EqualFold(filepath.Ext(path), ".mesh") {
		vol, err := formats.ParseMeditFile(path)
		if err != nil {
			return nil, err
		}
		return mesh.NewTetMesh(vol.Vertices, vol.Tetrahedra)
	}
	return loadSurface(path)
}

func writeTarget(path string, target mesh.Target) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch t := target.(type) {
	case *mesh.TetMesh:
		if !strings.EqualFold(filepath.Ext(path), ".mesh") {
			return formats.WriteOFF(f, t.Vertices(), t.Surface())
		}
		tets := make([][4]int, len(t.Tetrahedra()))
		for i, tet := range t.Tetrahedra() {
			tets[i] = tet.Vertices
		}
		err = formats.WriteMedit(f, &formats.Volume{Vertices: t.Vertices(), Tetrahedra: tets})
	case *mesh.Surface:
		err = formats.WriteOFF(f, t.Vertices(), t.Triangles())
	default:
		return fmt.Errorf("cannot write %T", target)
	}
	if err != nil {
		return err
	}
	return f.Close()
}

func parseVec(s string) (r3.Vec, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return r3.Vec{}, fmt.Errorf("expected x,y,z, got %q", s)
	}
	var c [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return r3.Vec{}, fmt.Errorf("bad coordinate %q: %w", p, err)
		}
		c[i] = v
	}
	return r3.Vec{X: c[0], Y: c[1], Z: c[2]}, nil
}

// moveList collects repeated -move flags. A move is either index=x,y,z or
// @x,y,z=x,y,z, which picks the cage vertex nearest to the first point.
type moveList struct {
	indices   []int
	near      []r3.Vec
	positions []r3.Vec
}

func (m *moveList) String() string { return fmt.Sprint(m.indices) }

func (m *moveList) Set(s string) error {
	src, pos, ok := strings.Cut(s, "=")
	if !ok {
		return fmt.Errorf("expected index=x,y,z or @x,y,z=x,y,z, got %q", s)
	}
	p, err := parseVec(pos)
	if err != nil {
		return err
	}
	i := -1
	var near r3.Vec
	if at, ok := strings.CutPrefix(strings.TrimSpace(src), "@"); ok {
		if near, err = parseVec(at); err != nil {
			return err
		}
	} else if i, err = strconv.Atoi(strings.TrimSpace(src)); err != nil {
		return fmt.Errorf("bad vertex index %q: %w", src, err)
	}
	m.indices = append(m.indices, i)
	m.near = append(m.near, near)
	m.positions = append(m.positions, p)
	return nil
}

// resolve returns the cage vertex index of every move.
func (m *moveList) resolve(cg *mesh.Surface) []int {
	out := make([]int, len(m.indices))
	for k, i := range m.indices {
		if i < 0 {
			i = cg.ClosestVertex(m.near[k])
		}
		out[k] = i
	}
	return out
}

// rotateList composes repeated -rotate ax,ay,az,degrees flags in the order
// they were given.
type rotateList struct {
	q   cwmath.Quat
	set bool
}

func (r *rotateList) String() string {
	if !r.set {
		return ""
	}
	return fmt.Sprint(r.q)
}

func (r *rotateList) Set(s string) error {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return fmt.Errorf("expected ax,ay,az,degrees, got %q", s)
	}
	var c [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return fmt.Errorf("bad rotation component %q: %w", p, err)
		}
		c[i] = v
	}
	axis := r3.Vec{X: c[0], Y: c[1], Z: c[2]}
	if r3.Norm(axis) == 0 {
		return fmt.Errorf("rotation axis must not be zero")
	}
	q := cwmath.QuatFromAxisAngle(axis, c[3]*math.Pi/180)
	if r.set {
		q = q.Mul(r.q)
	}
	r.q, r.set = q, true
	return nil
}

// locateRest maps a point of the deformed target back to the rest pose.
func locateRest(target mesh.Target, p r3.Vec, rest []r3.Vec) (r3.Vec, error) {
	tm, ok := target.(*mesh.TetMesh)
	if !ok {
		return r3.Vec{}, fmt.Errorf("-locate needs a tetrahedral target")
	}
	q, ok := tm.CoordInRest(p, rest)
	if !ok {
		return r3.Vec{}, fmt.Errorf("%v is outside the deformed target", p)
	}
	return q, nil
}
