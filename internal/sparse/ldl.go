package sparse

import "math"

// pivotTol is the relative size under which an LDL^T pivot is treated as
// zero, against the matching diagonal entry of the input.
const pivotTol = 1e-12

// ldl is a sparse LDL^T factorization of P C P^T, up-looking, after
// T. Davis' LDL package. Only the upper triangle of c is read.
type ldl struct {
	n      int
	perm   []int
	pinv   []int
	parent []int
	lp     []int
	li     []int
	lx     []float64
	d      []float64
}

// factorLDL runs the symbolic and numeric factorization of c under the
// ordering perm.
func factorLDL(c *csc, perm []int) (*ldl, error) {
	n := c.n
	f := &ldl{
		n:      n,
		perm:   perm,
		pinv:   invert(perm),
		parent: make([]int, n),
		lp:     make([]int, n+1),
		d:      make([]float64, n),
	}

	lnz := make([]int, n)
	flag := make([]int, n)

	// Symbolic: elimination tree and column counts of L.
	for k := 0; k < n; k++ {
		f.parent[k] = -1
		flag[k] = k
		kk := perm[k]
		for q := c.p[kk]; q < c.p[kk+1]; q++ {
			i := f.pinv[c.i[q]]
			if i >= k {
				continue
			}
			for ; flag[i] != k; i = f.parent[i] {
				if f.parent[i] == -1 {
					f.parent[i] = k
				}
				lnz[i]++
				flag[i] = k
			}
		}
	}
	for k := 0; k < n; k++ {
		f.lp[k+1] = f.lp[k] + lnz[k]
	}
	f.li = make([]int, f.lp[n])
	f.lx = make([]float64, f.lp[n])

	// Numeric.
	y := make([]float64, n)
	pattern := make([]int, n)
	diag := c.diag()
	for k := 0; k < n; k++ {
		y[k] = 0
		top := n
		flag[k] = k
		lnz[k] = 0
		kk := perm[k]
		for q := c.p[kk]; q < c.p[kk+1]; q++ {
			i := f.pinv[c.i[q]]
			if i > k {
				continue
			}
			y[i] += c.x[q]
			length := 0
			for ; flag[i] != k; i = f.parent[i] {
				pattern[length] = i
				length++
				flag[i] = k
			}
			for length > 0 {
				top--
				length--
				pattern[top] = pattern[length]
			}
		}

		f.d[k] = y[k]
		y[k] = 0
		for ; top < n; top++ {
			i := pattern[top]
			yi := y[i]
			y[i] = 0
			end := f.lp[i] + lnz[i]
			for q := f.lp[i]; q < end; q++ {
				y[f.li[q]] -= f.lx[q] * yi
			}
			lki := yi / f.d[i]
			f.d[k] -= lki * yi
			f.li[end] = k
			f.lx[end] = lki
			lnz[i]++
		}

		if math.IsNaN(f.d[k]) || f.d[k] <= pivotTol*math.Abs(diag[kk]) || f.d[k] <= 0 {
			return nil, ErrNotPositiveDefinite
		}
	}
	return f, nil
}

// solve overwrites x with C^-1 x.
func (f *ldl) solve(x []float64) {
	n := f.n
	w := make([]float64, n)
	for k := 0; k < n; k++ {
		w[k] = x[f.perm[k]]
	}
	for j := 0; j < n; j++ {
		wj := w[j]
		for q := f.lp[j]; q < f.lp[j+1]; q++ {
			w[f.li[q]] -= f.lx[q] * wj
		}
	}
	for j := 0; j < n; j++ {
		w[j] /= f.d[j]
	}
	for j := n - 1; j >= 0; j-- {
		for q := f.lp[j]; q < f.lp[j+1]; q++ {
			w[j] -= f.lx[q] * w[f.li[q]]
		}
	}
	for k := 0; k < n; k++ {
		x[f.perm[k]] = w[k]
	}
}

func (f *ldl) nnz() int { return f.lp[f.n] + f.n }
