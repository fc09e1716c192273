package coords

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// MVC returns the mean value coordinates of p (Ju, Schaefer and Warren 2005)
// as a sparse list of non-zero weights summing to 1.
//
// A point within epsilon of a cage vertex gets weight 1 on that vertex. A
// point on a cage triangle gets the planar barycentric weights of that
// triangle. An empty result means no triangle produced a usable weight.
func MVC(p r3.Vec, g Geometry) ([]Weight, Degeneracy) {
	n := len(g.Vertices)
	dist := make([]float64, n)
	dirs := make([]r3.Vec, n)
	for j, v := range g.Vertices {
		dv := r3.Sub(v, p)
		dist[j] = r3.Norm(dv)
		if dist[j] < epsilon {
			return []Weight{{Index: j, Value: 1}}, 0
		}
		dirs[j] = r3.Scale(1/dist[j], dv)
	}

	w := make([]float64, n)
	var deg Degeneracy

	for _, tri := range g.Triangles {
		var theta, c, s, d [3]float64
		var u [3]r3.Vec
		for i, vi := range tri {
			u[i] = dirs[vi]
			d[i] = dist[vi]
		}

		var h float64
		for i := 0; i < 3; i++ {
			l := r3.Norm(r3.Sub(u[(i+1)%3], u[(i+2)%3]))
			theta[i] = 2 * math.Asin(clamp(l/2, -1, 1))
			h += theta[i]
		}
		h /= 2

		if math.Pi-h < epsilon {
			// p lies on this triangle.
			var bary [3]float64
			var sum float64
			for i := 0; i < 3; i++ {
				bary[i] = math.Sin(theta[i]) * d[(i+2)%3] * d[(i+1)%3]
				sum += bary[i]
			}
			if sum <= 0 || !finite(sum) {
				deg++
				continue
			}
			return []Weight{
				{Index: tri[0], Value: bary[0] / sum},
				{Index: tri[1], Value: bary[1] / sum},
				{Index: tri[2], Value: bary[2] / sum},
			}, deg
		}

		sign := 1.0
		if r3.Dot(u[0], r3.Cross(u[1], u[2])) < 0 {
			sign = -1
		}

		skip := false
		for i := 0; i < 3; i++ {
			next, prev := (i+1)%3, (i+2)%3
			c[i] = 2*math.Sin(h)*math.Sin(h-theta[i])/(math.Sin(theta[next])*math.Sin(theta[prev])) - 1
			s[i] = sign * math.Sqrt(math.Max(0, 1-c[i]*c[i]))
			if math.Abs(s[i]) < epsilon {
				// p is in the plane of the triangle, outside it: no contribution.
				skip = true
			}
		}
		if skip {
			continue
		}

		var contrib [3]float64
		for i := 0; i < 3; i++ {
			next, prev := (i+1)%3, (i+2)%3
			contrib[i] = (theta[i] - c[next]*theta[prev] - c[prev]*theta[next]) /
				(d[i] * math.Sin(theta[next]) * s[prev])
		}
		if !finite(contrib[0], contrib[1], contrib[2], c[0], c[1], c[2]) {
			deg++
			continue
		}
		for i, vi := range tri {
			w[vi] += contrib[i]
		}
	}

	var total float64
	for _, x := range w {
		total += x
	}
	if total == 0 || !finite(total) {
		return nil, deg
	}

	weights := make([]Weight, 0, n)
	for j, x := range w {
		if x != 0 {
			weights = append(weights, Weight{Index: j, Value: x / total})
		}
	}
	return weights, deg
}
