package cage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/cagewarp/internal/coords"
	"github.com/Faultbox/cagewarp/internal/mesh"
	"github.com/Faultbox/cagewarp/pkg/geom"
	cwmath "github.com/Faultbox/cagewarp/pkg/math"
)

// pointCloud is a minimal Target without connectivity.
type pointCloud struct {
	points  []r3.Vec
	updates int
}

func (p *pointCloud) Vertices() []r3.Vec { return p.points }
func (p *pointCloud) UpdateNormals()     { p.updates++ }
func (p *pointCloud) BBox() r3.Box       { return geom.Bounds(p.points) }

func cubeCage(t *testing.T, lo, hi float64) *mesh.Surface {
	t.Helper()
	v := []r3.Vec{
		{X: lo, Y: lo, Z: lo}, {X: hi, Y: lo, Z: lo}, {X: hi, Y: hi, Z: lo}, {X: lo, Y: hi, Z: lo},
		{X: lo, Y: lo, Z: hi}, {X: hi, Y: lo, Z: hi}, {X: hi, Y: hi, Z: hi}, {X: lo, Y: hi, Z: hi},
	}
	tris := [][3]int{
		{0, 2, 1}, {0, 3, 2},
		{4, 5, 6}, {4, 6, 7},
		{0, 1, 5}, {0, 5, 4},
		{2, 3, 7}, {2, 7, 6},
		{1, 2, 6}, {1, 6, 5},
		{0, 4, 7}, {0, 7, 3},
	}
	s, err := mesh.NewSurface(v, tris)
	require.NoError(t, err)
	return s
}

// gridTarget is a 2x2x2 cell grid spanning [0,2]^3. With corner set, its
// far corner is pulled out to (2.8,2.8,2.8).
func gridTarget(t *testing.T, corner bool) *mesh.TetMesh {
	t.Helper()
	m, err := mesh.BuildGrid(r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1}, 2, 2, 2)
	require.NoError(t, err)
	if corner {
		m.Vertices()[26] = r3.Vec{X: 2.8, Y: 2.8, Z: 2.8}
		m.UpdateNormals()
	}
	return m
}

func transformed(points []r3.Vec, f func(r3.Vec) r3.Vec) []r3.Vec {
	out := make([]r3.Vec, len(points))
	for i, p := range points {
		out[i] = f(p)
	}
	return out
}

func assertPositions(t *testing.T, want, got []r3.Vec, tol float64) {
	t.Helper()
	require.Equal(t, len(want), len(got))
	for i := range want {
		assert.True(t, cwmath.ApproxEqual(want[i], got[i], tol), "vertex %d: got %v want %v", i, got[i], want[i])
	}
}

func TestMoveOneCorner(t *testing.T) {
	cage := cubeCage(t, 0, 1)
	center := r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}
	target := &pointCloud{points: []r3.Vec{center}}

	m, err := Bind(cage, target, Options{Method: MVC})
	require.NoError(t, err)

	weights, _ := coords.MVC(center, coords.FromSurface(cubeCage(t, 0, 1)))
	var w6, sum float64
	for _, w := range weights {
		assert.Positive(t, w.Value)
		sum += w.Value
		if w.Index == 6 {
			w6 = w.Value
		}
	}
	assert.InDelta(t, 1, sum, 1e-12)

	require.NoError(t, m.MovePoint(6, r3.Vec{X: 2, Y: 1, Z: 1}))
	assertPositions(t, []r3.Vec{r3.Add(center, r3.Vec{X: w6})}, m.Positions(), 1e-9)
	assert.Positive(t, target.updates)
}

func TestRestRoundTrip(t *testing.T) {
	for _, method := range []Method{MVC, Green, GreenLRI} {
		t.Run(method.String(), func(t *testing.T) {
			// Only GreenLRI flags the pulled-out corner; the others are bound
			// to a target fully inside the cage.
			target := gridTarget(t, method == GreenLRI)
			rest := append([]r3.Vec(nil), target.Vertices()...)

			m, err := Bind(cubeCage(t, -0.5, 2.5), target, Options{Method: method, Workers: 2})
			require.NoError(t, err)
			assert.InDelta(t, 3*math.Sqrt(3)/1000, m.Epsilon(), 1e-12)
			assertPositions(t, rest, m.Positions(), 0)
			assertPositions(t, rest, m.RestPositions(), 0)

			for i, p := range rest {
				if m.IsOutlier(i) {
					continue
				}
				got, err := m.RestPosition(i)
				require.NoError(t, err)
				assert.LessOrEqual(t, r3.Norm(r3.Sub(got, p)), m.Epsilon(), "vertex %d", i)
			}
			_, err = m.RestPosition(len(rest))
			assert.ErrorIs(t, err, ErrIndexOutOfRange)
		})
	}
}

func TestNoOutliersDegradesToGreen(t *testing.T) {
	target := gridTarget(t, false)
	m, err := Bind(cubeCage(t, -0.5, 2.5), target, Options{Method: GreenLRI})
	require.NoError(t, err)

	assert.Equal(t, GreenLRI, m.Method())
	assert.Equal(t, Green, m.EffectiveMethod())
	assert.False(t, m.LRIActive())
	assert.Zero(t, m.OutlierCount())

	plainTarget := gridTarget(t, false)
	plain, err := Bind(cubeCage(t, -0.5, 2.5), plainTarget, Options{Method: Green})
	require.NoError(t, err)

	moved := r3.Vec{X: 3, Y: 2.7, Z: 3.1}
	require.NoError(t, m.MovePoint(6, moved))
	require.NoError(t, plain.MovePoint(6, moved))
	assert.Equal(t, plain.Positions(), m.Positions())
}

func TestOutlierCorrection(t *testing.T) {
	setup := func(t *testing.T) (*Model, []r3.Vec) {
		target := gridTarget(t, true)
		rest := append([]r3.Vec(nil), target.Vertices()...)
		m, err := Bind(cubeCage(t, -0.5, 2.5), target, Options{Method: GreenLRI})
		require.NoError(t, err)
		require.Equal(t, 1, m.OutlierCount())
		require.True(t, m.IsOutlier(26))
		require.True(t, m.LRIActive())
		require.Equal(t, GreenLRI, m.EffectiveMethod())
		return m, rest
	}

	t.Run("translate", func(t *testing.T) {
		m, rest := setup(t)
		shift := func(p r3.Vec) r3.Vec { return r3.Add(p, r3.Vec{X: 1}) }
		require.NoError(t, m.ApplyCage(transformed(m.Cage().Vertices(), shift)))
		assertPositions(t, transformed(rest, shift), m.Positions(), 1e-6)
	})

	t.Run("scale", func(t *testing.T) {
		m, rest := setup(t)
		double := func(p r3.Vec) r3.Vec { return r3.Scale(2, p) }
		require.NoError(t, m.ApplyCage(transformed(m.Cage().Vertices(), double)))
		assertPositions(t, transformed(rest, double), m.Positions(), 1e-6)
	})

	t.Run("corner drag", func(t *testing.T) {
		m, rest := setup(t)
		require.NoError(t, m.MovePoint(6, r3.Vec{X: 2.9, Y: 2.5, Z: 2.5}))
		got := m.Positions()

		// The corrected corner follows the drag without outrunning the cage
		// vertex that caused it (0.4 along X).
		d := r3.Sub(got[26], rest[26])
		assert.True(t, cwmath.IsFinite(d))
		assert.Greater(t, d.X, 0.0)
		assert.LessOrEqual(t, r3.Norm(d), 0.4+1e-9)

		// A second update with the same cage changes nothing.
		require.NoError(t, m.UpdateTarget())
		assert.Equal(t, got, m.Positions())
	})
}

func TestOutlierDeterminism(t *testing.T) {
	a, err := Bind(cubeCage(t, -0.5, 2.5), gridTarget(t, true), Options{Method: GreenLRI})
	require.NoError(t, err)
	b, err := Bind(cubeCage(t, -0.5, 2.5), gridTarget(t, true), Options{Method: GreenLRI})
	require.NoError(t, err)
	assert.Equal(t, a.Outliers(), b.Outliers())

	require.NoError(t, a.ReInitialize())
	assert.Equal(t, b.Outliers(), a.Outliers())
}

func TestRigidPolicies(t *testing.T) {
	d := r3.Vec{X: 0.25, Y: -2, Z: 5}
	rot := cwmath.QuatFromAxisAngle(r3.Vec{X: 1, Y: 1}, 0.4).ToMat3()

	for _, method := range []Method{MVC, Green} {
		t.Run(method.String()+"/detached translate", func(t *testing.T) {
			target := gridTarget(t, false)
			rest := append([]r3.Vec(nil), target.Vertices()...)
			m, err := Bind(cubeCage(t, -0.5, 2.5), target, Options{Method: method, Rigid: RigidDetached})
			require.NoError(t, err)

			require.NoError(t, m.Translate(d))
			assertPositions(t, transformed(rest, func(p r3.Vec) r3.Vec { return r3.Add(p, d) }), m.Positions(), 1e-9)
			// Rest is not recaptured.
			assertPositions(t, rest, m.RestPositions(), 0)
		})

		t.Run(method.String()+"/detached rotate", func(t *testing.T) {
			target := gridTarget(t, false)
			rest := append([]r3.Vec(nil), target.Vertices()...)
			cage := cubeCage(t, -0.5, 2.5)
			pivot := cage.Origin()
			m, err := Bind(cage, target, Options{Method: method, Rigid: RigidDetached})
			require.NoError(t, err)

			require.NoError(t, m.Rotate(rot))
			want := transformed(rest, func(p r3.Vec) r3.Vec { return r3.Add(rot.MulVec(r3.Sub(p, pivot)), pivot) })
			assertPositions(t, want, m.Positions(), 1e-9)
		})
	}

	t.Run("rebind", func(t *testing.T) {
		target := gridTarget(t, false)
		rest := append([]r3.Vec(nil), target.Vertices()...)
		m, err := Bind(cubeCage(t, -0.5, 2.5), target, Options{Method: Green})
		require.NoError(t, err)
		assert.Equal(t, RigidRebind, m.RigidPolicy())

		require.NoError(t, m.SetOrigin(r3.Vec{X: 10, Y: 10, Z: 10}))
		moved := transformed(rest, func(p r3.Vec) r3.Vec { return r3.Add(p, r3.Vec{X: 9, Y: 9, Z: 9}) })
		assertPositions(t, moved, m.Positions(), 1e-12)
		assertPositions(t, moved, m.RestPositions(), 1e-12)
		assert.True(t, cwmath.ApproxEqual(r3.Vec{X: 10, Y: 10, Z: 10}, m.Cage().Origin(), 1e-12))
	})

	t.Run("cage only", func(t *testing.T) {
		target := gridTarget(t, false)
		rest := append([]r3.Vec(nil), target.Vertices()...)
		m, err := Bind(cubeCage(t, -0.5, 2.5), target, Options{Method: Green})
		require.NoError(t, err)
		m.SetRigidPolicy(RigidCageOnly)

		require.NoError(t, m.Scale(r3.Vec{X: 1.1, Y: 1.1, Z: 1.1}))
		assertPositions(t, rest, m.Positions(), 0)
		// Rebound against the scaled cage: the rest pose still round trips.
		for i, p := range rest {
			got, err := m.RestPosition(i)
			require.NoError(t, err)
			assert.LessOrEqual(t, r3.Norm(r3.Sub(got, p)), m.Epsilon())
		}
	})
}

func TestContractErrors(t *testing.T) {
	target := gridTarget(t, false)
	m, err := Bind(cubeCage(t, -0.5, 2.5), target, Options{Method: MVC})
	require.NoError(t, err)
	cageBefore := append([]r3.Vec(nil), m.Cage().Vertices()...)
	before := m.Positions()

	assert.ErrorIs(t, m.MovePoints([]int{0, 1}, []r3.Vec{{}}), ErrSizeMismatch)
	assert.ErrorIs(t, m.MovePoints([]int{0, 8}, []r3.Vec{{X: 9}, {X: 9}}), ErrIndexOutOfRange)
	assert.ErrorIs(t, m.MovePoint(-1, r3.Vec{}), ErrIndexOutOfRange)
	assert.ErrorIs(t, m.ApplyCage(make([]r3.Vec, 3)), ErrSizeMismatch)
	assert.Equal(t, cageBefore, m.Cage().Vertices())
	assert.Equal(t, before, m.Positions())

	m.Unbind()
	assert.False(t, m.Bound())
	assert.ErrorIs(t, m.MovePoint(0, r3.Vec{}), ErrUnbound)
	assert.ErrorIs(t, m.ReInitialize(), ErrUnbound)
	assert.ErrorIs(t, m.Translate(r3.Vec{X: 1}), ErrUnbound)
	assert.False(t, m.IsOutlier(0))
	m.Unbind()
}

func TestBindErrors(t *testing.T) {
	cage := cubeCage(t, 0, 1)

	_, err := Bind(cage, nil, Options{})
	assert.ErrorIs(t, err, ErrNoTarget)

	surface := cubeCage(t, 0.25, 0.75)
	_, err = Bind(cage, surface, Options{Method: GreenLRI})
	assert.ErrorIs(t, err, ErrNotVolumetric)

	flat, err := mesh.NewSurface([]r3.Vec{{}, {X: 1}, {Y: 1}}, nil)
	require.NoError(t, err)
	_, err = Bind(flat, surface, Options{})
	assert.ErrorIs(t, err, ErrEmptyCage)

	_, err = Bind(cage, surface, Options{Method: Method(9)})
	assert.ErrorIs(t, err, ErrUnknownMethod)

	m, err := Bind(cage, &pointCloud{}, Options{Method: Green})
	require.NoError(t, err)
	assert.Empty(t, m.Positions())
	assert.NoError(t, m.MovePoint(0, r3.Vec{X: -1}))
}

func TestSolverFailureKeepsBinding(t *testing.T) {
	target := gridTarget(t, true)
	m, err := Bind(cubeCage(t, -0.5, 2.5), target, Options{Method: GreenLRI})
	require.NoError(t, err)
	rest := m.RestPositions()
	outliers := m.Outliers()

	// Every vertex outside the cage leaves nothing to pin the correction to.
	mesh.TranslatePoints(target.Vertices(), r3.Vec{X: 100})
	target.UpdateNormals()
	assert.ErrorIs(t, m.ReInitialize(), ErrSolverFailure)

	assert.Equal(t, rest, m.RestPositions())
	assert.Equal(t, outliers, m.Outliers())
	assert.Equal(t, 1, m.OutlierCount())
	assert.True(t, m.LRIActive())
}

func TestRigidFailureRestoresMeshes(t *testing.T) {
	target := gridTarget(t, true)
	m, err := Bind(cubeCage(t, -0.5, 2.5), target, Options{Method: GreenLRI, Rigid: RigidCageOnly})
	require.NoError(t, err)
	require.NoError(t, m.UpdateTarget())
	cageBefore := append([]r3.Vec(nil), m.Cage().Vertices()...)
	normalsBefore := append([]r3.Vec(nil), m.Cage().Normals()...)
	positions := m.Positions()

	// The cage leaves the target behind, so every vertex becomes an outlier
	// and the rebind cannot be solved.
	assert.ErrorIs(t, m.Translate(r3.Vec{X: 100}), ErrSolverFailure)

	assert.Equal(t, cageBefore, m.Cage().Vertices())
	assert.Equal(t, normalsBefore, m.Cage().Normals())
	assert.Equal(t, positions, m.Positions())
	assert.Equal(t, 1, m.OutlierCount())
	assert.True(t, m.LRIActive())

	// The binding still matches the cage: updating does not move anything.
	require.NoError(t, m.UpdateTarget())
	assert.Equal(t, positions, m.Positions())
}

// withUnusedVertex returns a copy of g with an extra vertex at p that no
// tetrahedron refers to.
func withUnusedVertex(t *testing.T, g *mesh.TetMesh, p r3.Vec) *mesh.TetMesh {
	t.Helper()
	verts := append(append([]r3.Vec(nil), g.Vertices()...), p)
	tets := make([][4]int, len(g.Tetrahedra()))
	for i, tet := range g.Tetrahedra() {
		tets[i] = tet.Vertices
	}
	out, err := mesh.NewTetMesh(verts, tets)
	require.NoError(t, err)
	return out
}

func TestUnusedOutlierVertex(t *testing.T) {
	far := r3.Vec{X: 10, Y: 10, Z: 10}

	t.Run("only unused outliers", func(t *testing.T) {
		m, err := Bind(cubeCage(t, -0.5, 2.5), withUnusedVertex(t, gridTarget(t, false), far), Options{Method: GreenLRI})
		require.NoError(t, err)
		assert.Equal(t, Green, m.EffectiveMethod())
		assert.False(t, m.LRIActive())
		assert.Equal(t, 1, m.OutlierCount())
		assert.True(t, m.IsOutlier(27))

		plain, err := Bind(cubeCage(t, -0.5, 2.5), withUnusedVertex(t, gridTarget(t, false), far), Options{Method: Green})
		require.NoError(t, err)
		moved := r3.Vec{X: 3, Y: 2.7, Z: 3.1}
		require.NoError(t, m.MovePoint(6, moved))
		require.NoError(t, plain.MovePoint(6, moved))
		assert.Equal(t, plain.Positions(), m.Positions())
	})

	t.Run("mixed", func(t *testing.T) {
		target := withUnusedVertex(t, gridTarget(t, true), far)
		rest := append([]r3.Vec(nil), target.Vertices()[:27]...)
		m, err := Bind(cubeCage(t, -0.5, 2.5), target, Options{Method: GreenLRI})
		require.NoError(t, err)
		assert.Equal(t, GreenLRI, m.EffectiveMethod())
		assert.True(t, m.LRIActive())
		assert.Equal(t, 2, m.OutlierCount())

		shift := func(p r3.Vec) r3.Vec { return r3.Add(p, r3.Vec{Y: 1}) }
		require.NoError(t, m.ApplyCage(transformed(m.Cage().Vertices(), shift)))
		got := m.Positions()
		assertPositions(t, transformed(rest, shift), got[:27], 1e-6)
		assert.True(t, cwmath.IsFinite(got[27]))
	})
}

func TestUpdateTargetSizeMismatch(t *testing.T) {
	target := &pointCloud{points: []r3.Vec{{X: 0.5, Y: 0.5, Z: 0.5}}}
	m, err := Bind(cubeCage(t, 0, 1), target, Options{Method: Green})
	require.NoError(t, err)

	target.points = append(target.points, r3.Vec{})
	assert.ErrorIs(t, m.UpdateTarget(), ErrSizeMismatch)
}

func TestDetectOutliers(t *testing.T) {
	rest := []r3.Vec{{}, {X: 1}, {Y: 1}}
	recon := []r3.Vec{{X: 0.0005}, {X: 1.5}, {X: math.NaN()}}
	mask := DetectOutliers(rest, func(i int) r3.Vec { return recon[i] }, 0.001)
	assert.Equal(t, []bool{false, true, true}, mask)
}

func TestParse(t *testing.T) {
	for s, want := range map[string]Method{"mvc": MVC, "Green": Green, "green-lri": GreenLRI, "green_lri": GreenLRI, "lri": GreenLRI} {
		got, err := ParseMethod(s)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		if s == want.String() {
			assert.Equal(t, s, got.String())
		}
	}
	_, err := ParseMethod("harmonic")
	assert.ErrorIs(t, err, ErrUnknownMethod)

	for s, want := range map[string]RigidPolicy{"": RigidRebind, "rebind": RigidRebind, "cage-only": RigidCageOnly, "Detached": RigidDetached} {
		got, err := ParseRigidPolicy(s)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err = ParseRigidPolicy("sometimes")
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}
