package cage

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/cagewarp/internal/mesh"
	cwmath "github.com/Faultbox/cagewarp/pkg/math"
)

// DetectOutliers flags every rest position whose reconstruction lies further
// than eps from it. Non-finite reconstructions are outliers.
func DetectOutliers(rest []r3.Vec, reconstruct func(i int) r3.Vec, eps float64) []bool {
	mask := make([]bool, len(rest))
	for i, p := range rest {
		q := reconstruct(i)
		mask[i] = !cwmath.IsFinite(q) || r3.Norm(r3.Sub(q, p)) > eps
	}
	return mask
}

// countInTets returns how many flagged vertices belong to at least one
// tetrahedron. Only those can be corrected.
func countInTets(tets []mesh.Tetrahedron, mask []bool) int {
	seen := make([]bool, len(mask))
	var n int
	for _, t := range tets {
		for _, v := range t.Vertices {
			if v >= 0 && v < len(mask) && mask[v] && !seen[v] {
				seen[v] = true
				n++
			}
		}
	}
	return n
}
