package sparse

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildChain returns a path Laplacian-like system: rows tie neighbors
// together and a handful of anchor rows pin values.
func buildChain(t *testing.T, n int, backend Backend) *System {
	t.Helper()
	s, err := NewSystem(n-1+2, n, 2, WithBackend(backend))
	require.NoError(t, err)
	s.Reserve(2*(n-1) + 2)
	for i := 0; i < n-1; i++ {
		require.NoError(t, s.Add(i, i+1, 1))
		require.NoError(t, s.Add(i, i, -1))
	}
	require.NoError(t, s.Add(n-1, 0, 1))
	require.NoError(t, s.Add(n, n-1, 1))
	return s
}

func TestChainSolve(t *testing.T) {
	for _, backend := range []Backend{BackendLDL, BackendDense} {
		t.Run(backend.String(), func(t *testing.T) {
			const n = 6
			s := buildChain(t, n, backend)
			require.NoError(t, s.Factorize())

			// Unit steps with endpoints 0 and 5: consistent, so exact.
			for i := 0; i < n-1; i++ {
				require.NoError(t, s.SetRHS(i, 0, 1))
				require.NoError(t, s.SetRHS(i, 1, 0))
			}
			require.NoError(t, s.SetRHS(n-1, 0, 0))
			require.NoError(t, s.SetRHS(n, 0, n-1))
			require.NoError(t, s.SetRHS(n-1, 1, 2))
			require.NoError(t, s.SetRHS(n, 1, 2))
			require.NoError(t, s.Solve())

			for i := 0; i < n; i++ {
				assert.InDelta(t, float64(i), s.Solution(i, 0), 1e-10)
				assert.InDelta(t, 2, s.Solution(i, 1), 1e-10)
			}
		})
	}
}

func TestLeastSquaresAgreesWithDense(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 20; trial++ {
		n := 1 + rng.Intn(15)
		m := n + rng.Intn(12)

		type entry struct {
			i, j int
			v    float64
		}
		var entries []entry
		for i := 0; i < n; i++ {
			entries = append(entries, entry{i, i, 1 + 2*rng.Float64()})
		}
		for k := 0; k < 3*m; k++ {
			entries = append(entries, entry{rng.Intn(m), rng.Intn(n), 2*rng.Float64() - 1})
		}
		rhs := make([]float64, m)
		for i := range rhs {
			rhs[i] = 4*rng.Float64() - 2
		}

		solve := func(b Backend) []float64 {
			s, err := NewSystem(m, n, 1, WithBackend(b))
			require.NoError(t, err)
			for _, e := range entries {
				require.NoError(t, s.Add(e.i, e.j, e.v))
			}
			require.NoError(t, s.Factorize())
			for i, v := range rhs {
				require.NoError(t, s.SetRHS(i, 0, v))
			}
			require.NoError(t, s.Solve())
			out := make([]float64, n)
			for i := range out {
				out[i] = s.Solution(i, 0)
			}
			return out
		}

		assert.InDeltaSlice(t, solve(BackendDense), solve(BackendLDL), 1e-8, "trial %d (%dx%d)", trial, m, n)
	}
}

func TestDuplicateEntriesAreSummed(t *testing.T) {
	s, err := NewSystem(1, 1, 1)
	require.NoError(t, err)
	require.NoError(t, s.Add(0, 0, 1))
	require.NoError(t, s.Add(0, 0, 1))
	require.NoError(t, s.Factorize())
	require.NoError(t, s.SetRHS(0, 0, 4))
	require.NoError(t, s.Solve())
	assert.InDelta(t, 2, s.Solution(0, 0), 1e-12)
}

func TestRankDeficient(t *testing.T) {
	for _, backend := range []Backend{BackendLDL, BackendDense} {
		t.Run(backend.String(), func(t *testing.T) {
			// Column 1 never appears.
			s, err := NewSystem(2, 2, 1, WithBackend(backend))
			require.NoError(t, err)
			require.NoError(t, s.Add(0, 0, 1))
			require.NoError(t, s.Add(1, 0, 1))
			assert.ErrorIs(t, s.Factorize(), ErrNotPositiveDefinite)
			assert.False(t, s.Factorized())

			// Two identical columns.
			s, err = NewSystem(2, 2, 1, WithBackend(backend))
			require.NoError(t, err)
			for i := 0; i < 2; i++ {
				for j := 0; j < 2; j++ {
					require.NoError(t, s.Add(i, j, 1))
				}
			}
			assert.ErrorIs(t, s.Factorize(), ErrNotPositiveDefinite)
		})
	}
}

func TestSystemErrors(t *testing.T) {
	_, err := NewSystem(0, 1, 1)
	assert.Error(t, err)

	s, err := NewSystem(2, 2, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Add(2, 0, 1), ErrOutOfBounds)
	assert.ErrorIs(t, s.Add(0, -1, 1), ErrOutOfBounds)
	assert.ErrorIs(t, s.SetRHS(0, 1, 1), ErrOutOfBounds)
	assert.ErrorIs(t, s.Solve(), ErrNotFactorized)

	require.NoError(t, s.Add(0, 0, 1))
	require.NoError(t, s.Add(1, 1, 1))
	require.NoError(t, s.Factorize())
	assert.ErrorIs(t, s.Add(0, 1, 1), ErrFrozen)
	assert.ErrorIs(t, s.Factorize(), ErrFrozen)

	require.NoError(t, s.SetRHS(1, 0, 3))
	require.NoError(t, s.Solve())
	assert.InDelta(t, 3, s.Solution(1, 0), 1e-12)

	s.FreeSolution()
	assert.Panics(t, func() { s.Solution(0, 0) })
	require.NoError(t, s.Solve())
	assert.InDelta(t, 3, s.Solution(1, 0), 1e-12)
	assert.Panics(t, func() { s.Solution(2, 0) })

	s.Free()
	assert.ErrorIs(t, s.Solve(), ErrFreed)
	assert.ErrorIs(t, s.SetRHS(0, 0, 1), ErrFreed)
	assert.ErrorIs(t, s.Add(0, 0, 1), ErrFreed)
	assert.ErrorIs(t, s.Factorize(), ErrFreed)
	assert.False(t, s.Factorized())
}

func TestSetRHSBeforeFactorize(t *testing.T) {
	s, err := NewSystem(2, 2, 1)
	require.NoError(t, err)
	require.NoError(t, s.SetRHS(0, 0, 2))
	require.NoError(t, s.SetRHS(1, 0, 5))
	assert.ErrorIs(t, s.Solve(), ErrNotFactorized)

	require.NoError(t, s.Add(0, 0, 1))
	require.NoError(t, s.Add(1, 1, 1))
	require.NoError(t, s.Factorize())
	require.NoError(t, s.Solve())
	assert.InDelta(t, 2, s.Solution(0, 0), 1e-12)
	assert.InDelta(t, 5, s.Solution(1, 0), 1e-12)
}

func TestParseBackend(t *testing.T) {
	b, err := ParseBackend("LDL")
	require.NoError(t, err)
	assert.Equal(t, BackendLDL, b)

	b, err = ParseBackend("dense")
	require.NoError(t, err)
	assert.Equal(t, BackendDense, b)

	b, err = ParseBackend("")
	require.NoError(t, err)
	assert.Equal(t, BackendLDL, b)

	_, err = ParseBackend("qr")
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestRCMIsPermutation(t *testing.T) {
	var ti, tj []int
	var tv []float64
	// Two disconnected components plus an isolated node.
	for _, e := range [][2]int{{0, 3}, {3, 5}, {1, 2}, {2, 4}} {
		ti = append(ti, e[0], e[1], e[0], e[1])
		tj = append(tj, e[1], e[0], e[0], e[1])
		tv = append(tv, -1, -1, 2, 2)
	}
	ti = append(ti, 6)
	tj = append(tj, 6)
	tv = append(tv, 1)

	perm := rcm(compress(7, 7, ti, tj, tv))
	require.Len(t, perm, 7)
	seen := make(map[int]bool)
	for _, p := range perm {
		seen[p] = true
	}
	assert.Len(t, seen, 7)
	inv := invert(perm)
	for k, p := range perm {
		assert.Equal(t, k, inv[p])
	}
}
