package sparse

import "sort"

// rcm returns a reverse Cuthill-McKee ordering of the symmetric pattern of a.
// perm[k] is the original index placed at position k.
func rcm(a *csc) []int {
	n := a.n
	degree := make([]int, n)
	for j := 0; j < n; j++ {
		for q := a.p[j]; q < a.p[j+1]; q++ {
			if a.i[q] != j {
				degree[j]++
			}
		}
	}

	visited := make([]bool, n)
	order := make([]int, 0, n)
	var nbrs []int

	for len(order) < n {
		// Start each component from its lowest degree node.
		start := -1
		for j := 0; j < n; j++ {
			if !visited[j] && (start < 0 || degree[j] < degree[start]) {
				start = j
			}
		}

		visited[start] = true
		head := len(order)
		order = append(order, start)
		for ; head < len(order); head++ {
			j := order[head]
			nbrs = nbrs[:0]
			for q := a.p[j]; q < a.p[j+1]; q++ {
				if i := a.i[q]; !visited[i] {
					visited[i] = true
					nbrs = append(nbrs, i)
				}
			}
			sort.SliceStable(nbrs, func(x, y int) bool { return degree[nbrs[x]] < degree[nbrs[y]] })
			order = append(order, nbrs...)
		}
	}

	for l, r := 0, n-1; l < r; l, r = l+1, r-1 {
		order[l], order[r] = order[r], order[l]
	}
	return order
}

// invert returns the inverse permutation of perm.
func invert(perm []int) []int {
	inv := make([]int, len(perm))
	for k, j := range perm {
		inv[j] = k
	}
	return inv
}
