package sparse

import (
	"gonum.org/v1/gonum/mat"
)

// denseCholesky factors the normal matrix densely with gonum. It is the
// reference backend for small systems and tests.
type denseCholesky struct {
	n    int
	chol mat.Cholesky
}

func factorDense(c *csc) (*denseCholesky, error) {
	n := c.n
	sym := mat.NewSymDense(n, nil)
	for j := 0; j < n; j++ {
		for q := c.p[j]; q < c.p[j+1]; q++ {
			if i := c.i[q]; i <= j {
				sym.SetSym(i, j, c.x[q])
			}
		}
	}

	f := &denseCholesky{n: n}
	if ok := f.chol.Factorize(sym); !ok {
		return nil, ErrNotPositiveDefinite
	}
	return f, nil
}

func (f *denseCholesky) solve(x []float64) {
	b := mat.NewVecDense(f.n, append([]float64(nil), x...))
	dst := mat.NewVecDense(f.n, x)
	// Factorize succeeded, so only a near-singular condition can be reported
	// here; the result is still the best available solve.
	_ = f.chol.SolveVecTo(dst, b)
}

func (f *denseCholesky) nnz() int { return f.n * (f.n + 1) / 2 }
