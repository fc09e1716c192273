package sparse

import "sort"

// csc is a compressed sparse column matrix with sorted, unique row indices
// in every column.
type csc struct {
	m, n int
	p    []int // column pointers, len n+1
	i    []int // row indices
	x    []float64
}

// compress builds a csc matrix from triplets, summing duplicates.
func compress(m, n int, ti, tj []int, tv []float64) *csc {
	count := make([]int, n+1)
	for _, j := range tj {
		count[j+1]++
	}
	for j := 0; j < n; j++ {
		count[j+1] += count[j]
	}

	rows := make([]int, len(ti))
	vals := make([]float64, len(ti))
	next := append([]int(nil), count[:n]...)
	for k, j := range tj {
		dst := next[j]
		next[j]++
		rows[dst] = ti[k]
		vals[dst] = tv[k]
	}

	a := &csc{m: m, n: n, p: make([]int, n+1)}
	a.i = make([]int, 0, len(rows))
	a.x = make([]float64, 0, len(rows))
	for j := 0; j < n; j++ {
		lo, hi := count[j], count[j+1]
		col := entries{rows: rows[lo:hi], vals: vals[lo:hi]}
		sort.Sort(col)
		for k := 0; k < col.Len(); k++ {
			if last := len(a.i) - 1; last >= a.p[j] && a.i[last] == col.rows[k] {
				a.x[last] += col.vals[k]
				continue
			}
			a.i = append(a.i, col.rows[k])
			a.x = append(a.x, col.vals[k])
		}
		a.p[j+1] = len(a.i)
	}
	return a
}

type entries struct {
	rows []int
	vals []float64
}

func (e entries) Len() int           { return len(e.rows) }
func (e entries) Less(a, b int) bool { return e.rows[a] < e.rows[b] }
func (e entries) Swap(a, b int) {
	e.rows[a], e.rows[b] = e.rows[b], e.rows[a]
	e.vals[a], e.vals[b] = e.vals[b], e.vals[a]
}

// transpose returns a^T. Row indices come out sorted.
func (a *csc) transpose() *csc {
	t := &csc{m: a.n, n: a.m, p: make([]int, a.m+1), i: make([]int, len(a.i)), x: make([]float64, len(a.x))}
	for _, r := range a.i {
		t.p[r+1]++
	}
	for r := 0; r < a.m; r++ {
		t.p[r+1] += t.p[r]
	}
	next := append([]int(nil), t.p[:a.m]...)
	for j := 0; j < a.n; j++ {
		for q := a.p[j]; q < a.p[j+1]; q++ {
			dst := next[a.i[q]]
			next[a.i[q]]++
			t.i[dst] = j
			t.x[dst] = a.x[q]
		}
	}
	return t
}

// normal returns a^T a (n x n), given at = a^T. Column j of the product is
// the combination of the columns of at selected by column j of a.
func normal(a, at *csc) *csc {
	n := a.n
	c := &csc{m: n, n: n, p: make([]int, n+1)}
	acc := make([]float64, n)
	mark := make([]int, n)
	for k := range mark {
		mark[k] = -1
	}
	var pattern []int

	for j := 0; j < n; j++ {
		pattern = pattern[:0]
		for q := a.p[j]; q < a.p[j+1]; q++ {
			k, akj := a.i[q], a.x[q]
			for r := at.p[k]; r < at.p[k+1]; r++ {
				i := at.i[r]
				if mark[i] != j {
					mark[i] = j
					acc[i] = 0
					pattern = append(pattern, i)
				}
				acc[i] += at.x[r] * akj
			}
		}
		sort.Ints(pattern)
		for _, i := range pattern {
			c.i = append(c.i, i)
			c.x = append(c.x, acc[i])
		}
		c.p[j+1] = len(c.i)
	}
	return c
}

// mulTransVec sets y = a^T b.
func (a *csc) mulTransVec(y, b []float64) {
	for j := 0; j < a.n; j++ {
		var s float64
		for q := a.p[j]; q < a.p[j+1]; q++ {
			s += a.x[q] * b[a.i[q]]
		}
		y[j] = s
	}
}

// diag returns the diagonal of a square matrix.
func (a *csc) diag() []float64 {
	d := make([]float64, a.n)
	for j := 0; j < a.n; j++ {
		for q := a.p[j]; q < a.p[j+1]; q++ {
			if a.i[q] == j {
				d[j] = a.x[q]
				break
			}
		}
	}
	return d
}
