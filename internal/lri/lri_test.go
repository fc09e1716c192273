package lri

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/cagewarp/internal/mesh"
	"github.com/Faultbox/cagewarp/internal/sparse"
	cwmath "github.com/Faultbox/cagewarp/pkg/math"
)

// cornerIndex is the far corner (2,2,2) of a 2x2x2 grid.
const cornerIndex = 26

// cornerGrid returns a 2x2x2 cell grid whose far corner is pulled out to
// (2.8,2.8,2.8) and flagged as the only outlier.
func cornerGrid(t *testing.T) (*mesh.TetMesh, []r3.Vec, []bool) {
	t.Helper()
	m, err := mesh.BuildGrid(r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1}, 2, 2, 2)
	require.NoError(t, err)
	m.Vertices()[cornerIndex] = r3.Vec{X: 2.8, Y: 2.8, Z: 2.8}
	m.UpdateNormals()

	rest := append([]r3.Vec(nil), m.Vertices()...)
	outliers := make([]bool, len(rest))
	outliers[cornerIndex] = true
	return m, rest, outliers
}

func TestClassify(t *testing.T) {
	m, _, outliers := cornerGrid(t)
	classes := Classify(m.Tetrahedra(), outliers)

	counts := map[Class]int{}
	for i, c := range classes {
		counts[c]++
		tet := m.Tetrahedra()[i]
		switch c {
		case Unknown:
			assert.True(t, tet.Has(cornerIndex))
		case Handle:
			assert.False(t, tet.Has(cornerIndex))
			var touches bool
			for _, n := range tet.Neighbors {
				if n != mesh.NoNeighbor && classes[n] == Unknown {
					touches = true
				}
			}
			assert.True(t, touches, "handle %d has no unknown neighbor", i)
		}
	}
	assert.Equal(t, 3, counts[Unknown])
	assert.Positive(t, counts[Handle])
	assert.Equal(t, len(classes), counts[Inlier]+counts[Handle]+counts[Unknown])
	assert.Equal(t, "handle", Handle.String())
}

func TestBuildShell(t *testing.T) {
	m, rest, outliers := cornerGrid(t)
	s, err := BuildShell(m.Tetrahedra(), rest, outliers)
	require.NoError(t, err)

	assert.Equal(t, 3, s.NumUnknown)
	for i, c := range s.Classes {
		if i < s.NumUnknown {
			assert.Equal(t, Unknown, c)
		} else {
			assert.Equal(t, Handle, c)
		}
	}

	// Remapped neighbors point at the same tetrahedra as before.
	all := m.Tetrahedra()
	for i, tet := range s.Tets {
		orig := all[s.Source[i]]
		assert.Equal(t, orig.Vertices, tet.Vertices)
		for f, n := range tet.Neighbors {
			if n == mesh.NoNeighbor {
				continue
			}
			require.Less(t, n, len(s.Tets))
			assert.Equal(t, orig.Neighbors[f], s.Source[n])
		}
	}

	// Every edge is listed once and resolves in both directions.
	seen := map[Edge]bool{}
	for _, e := range s.Edges {
		assert.False(t, seen[e] || seen[e.Reversed()], "edge %v listed twice", e)
		seen[e] = true

		fwd, back := s.Incident(e.A, e.B), s.Incident(e.B, e.A)
		require.NotEmpty(t, fwd)
		assert.Equal(t, fwd, back)
		for _, ti := range fwd {
			assert.True(t, s.Tets[ti].Has(e.A) && s.Tets[ti].Has(e.B))
		}
	}
	assert.Len(t, s.EdgeMap, 2*len(s.Edges))

	// Each edge maps to every kept tetrahedron on it, handles included.
	for ti, tet := range s.Tets {
		for a := 0; a < 4; a++ {
			for b := a + 1; b < 4; b++ {
				assert.Contains(t, s.Incident(tet.Vertices[a], tet.Vertices[b]), ti)
			}
		}
	}
	require.Greater(t, s.NumHandles(), 0)

	// Solver vertices round-trip and keep their rest positions.
	for i, v := range s.Vertices {
		assert.Equal(t, i, s.SolverIndex[v])
		assert.Equal(t, rest[v], s.Rest[i])
	}
	require.GreaterOrEqual(t, s.SolverIndex[cornerIndex], 0)

	// Constraints are the non-outlier vertices of unknown tetrahedra.
	want := map[int]bool{}
	for _, tet := range s.Tets[:s.NumUnknown] {
		for _, v := range tet.Vertices {
			if v != cornerIndex {
				want[v] = true
			}
		}
	}
	got := map[int]bool{}
	for _, ci := range s.Constraints {
		got[s.Vertices[ci]] = true
	}
	assert.Equal(t, want, got)
	assert.Len(t, s.Constraints, len(want))
}

func TestBuildShellErrors(t *testing.T) {
	m, rest, outliers := cornerGrid(t)

	_, err := BuildShell(m.Tetrahedra(), rest, outliers[:3])
	assert.ErrorIs(t, err, ErrSizeMismatch)

	_, err = BuildShell(m.Tetrahedra(), rest, make([]bool, len(rest)))
	assert.ErrorIs(t, err, ErrEmptyShell)

	bad := []mesh.Tetrahedron{{Vertices: [4]int{0, 1, 2, 99}, Neighbors: [4]int{-1, -1, -1, -1}}}
	_, err = BuildShell(bad, rest, outliers)
	assert.ErrorIs(t, err, mesh.ErrInvalidIndex)
}

func newCorrector(t *testing.T, backend sparse.Backend) (*Corrector, []r3.Vec) {
	t.Helper()
	m, rest, outliers := cornerGrid(t)
	s, err := BuildShell(m.Tetrahedra(), rest, outliers)
	require.NoError(t, err)
	c, err := NewCorrector(s, Options{Backend: backend})
	require.NoError(t, err)
	t.Cleanup(c.Free)
	return c, rest
}

func TestUpdateReproducesAffineMotion(t *testing.T) {
	rot := cwmath.QuatFromAxisAngle(r3.Vec{X: 1, Y: -1, Z: 2}, 0.6).ToMat3()
	cases := map[string]func(r3.Vec) r3.Vec{
		"translate": func(p r3.Vec) r3.Vec { return r3.Add(p, r3.Vec{X: 1}) },
		"scale":     func(p r3.Vec) r3.Vec { return r3.Scale(2, p) },
		"similarity": func(p r3.Vec) r3.Vec {
			return r3.Add(r3.Scale(1.5, rot.MulVec(p)), r3.Vec{X: -3, Y: 0.5, Z: 7})
		},
	}

	for _, backend := range []sparse.Backend{sparse.BackendLDL, sparse.BackendDense} {
		for name, motion := range cases {
			t.Run(backend.String()+"/"+name, func(t *testing.T) {
				c, rest := newCorrector(t, backend)

				positions := make([]r3.Vec, len(rest))
				for i, p := range rest {
					positions[i] = motion(p)
				}
				positions[cornerIndex] = r3.Vec{X: 100, Y: -100, Z: 100}

				require.NoError(t, c.Update(positions))
				want := motion(rest[cornerIndex])
				assert.True(t, cwmath.ApproxEqual(want, positions[cornerIndex], 1e-8),
					"got %v want %v", positions[cornerIndex], want)

				for i, p := range rest {
					if i != cornerIndex {
						assert.Equal(t, motion(p), positions[i], "inlier %d must not be touched", i)
					}
				}
			})
		}
	}
}

func TestUpdateIsIdempotent(t *testing.T) {
	c, rest := newCorrector(t, sparse.BackendLDL)

	positions := append([]r3.Vec(nil), rest...)
	// A non-affine bend of the inliers.
	for i, p := range positions {
		positions[i] = r3.Add(p, r3.Vec{Z: 0.1 * p.X * p.X})
	}

	require.NoError(t, c.Update(positions))
	first := positions[cornerIndex]
	require.NoError(t, c.Update(positions))
	assert.Equal(t, first, positions[cornerIndex])
}

func TestPinnedConstraintsHold(t *testing.T) {
	c, rest := newCorrector(t, sparse.BackendLDL)
	motion := func(p r3.Vec) r3.Vec { return r3.Add(r3.Scale(0.5, p), r3.Vec{Y: 2}) }
	positions := make([]r3.Vec, len(rest))
	for i, p := range rest {
		positions[i] = motion(p)
	}

	require.NoError(t, c.solveBases(positions))
	require.NoError(t, c.solveVertices(positions))
	defer c.basis.FreeSolution()
	defer c.vertices.FreeSolution()

	s := c.Shell()
	for _, ci := range s.Constraints {
		got := r3.Vec{X: c.vertices.Solution(ci, 0), Y: c.vertices.Solution(ci, 1), Z: c.vertices.Solution(ci, 2)}
		want := positions[s.Vertices[ci]]
		assert.LessOrEqual(t, r3.Norm(r3.Sub(got, want)), 1e-4*r3.Norm(want)+1e-9)
	}
}

func TestUpdateBoundsOutlier(t *testing.T) {
	c, rest := newCorrector(t, sparse.BackendLDL)

	// Shear along +x with height.
	positions := make([]r3.Vec, len(rest))
	for i, p := range rest {
		positions[i] = r3.Add(p, r3.Vec{X: 0.3 * p.Z})
	}
	require.NoError(t, c.Update(positions))

	shift := r3.Sub(positions[cornerIndex], rest[cornerIndex])
	assert.True(t, cwmath.IsFinite(shift))
	// Inliers move by at most 0.6 along x; the outlier sits further out
	// along z and follows the same shear.
	assert.Greater(t, shift.X, 0.0)
	assert.Less(t, shift.X, 1.5)
	assert.InDelta(t, 0.84, shift.X, 1e-8)
	assert.InDelta(t, 0, shift.Y, 1e-8)
	assert.InDelta(t, 0, shift.Z, 1e-8)
}

func TestUpdateErrors(t *testing.T) {
	c, rest := newCorrector(t, sparse.BackendLDL)

	assert.ErrorIs(t, c.Update(rest[:5]), ErrSizeMismatch)

	positions := append([]r3.Vec(nil), rest...)
	positions[cornerIndex] = r3.Vec{X: 42}
	e := c.Shell().Edges[0]
	delete(c.Shell().EdgeMap, e)
	assert.ErrorIs(t, c.Update(positions), ErrEmptyEdgeBucket)
	assert.Equal(t, r3.Vec{X: 42}, positions[cornerIndex], "failed update must not write")
}

func TestSolverFailure(t *testing.T) {
	m, rest, _ := cornerGrid(t)
	all := make([]bool, len(rest))
	for i := range all {
		all[i] = true
	}
	s, err := BuildShell(m.Tetrahedra(), rest, all)
	require.NoError(t, err)
	assert.Zero(t, s.NumHandles())
	assert.Empty(t, s.Constraints)

	_, err = NewCorrector(s, Options{})
	assert.ErrorIs(t, err, ErrSolverFailure)
	assert.ErrorIs(t, err, sparse.ErrNotPositiveDefinite)
}
