// Package coords computes generalized barycentric coordinates of points with
// respect to a closed triangulated cage: mean value coordinates and Green
// coordinates.
//
// Every function here is pure over its inputs. Triangle-local numerical
// failures (NaN, infinities, zero areas) drop that triangle's contribution
// and are reported as a Degeneracy count rather than an error.
package coords

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/cagewarp/internal/mesh"
)

// epsilon is the distance and angle tolerance of the MVC formulas.
const epsilon = 1e-6

// Geometry is the cage data coordinates are computed against. Normals are unit
// triangle normals and are only read by Green coordinates.
type Geometry struct {
	Vertices  []r3.Vec
	Triangles [][3]int
	Normals   []r3.Vec
}

// FromSurface returns the geometry of s. Slices are shared, not copied.
func FromSurface(s *mesh.Surface) Geometry {
	return Geometry{
		Vertices:  s.Vertices(),
		Triangles: s.Triangles(),
		Normals:   s.Normals(),
	}
}

// Clone returns a deep copy of g.
func (g Geometry) Clone() Geometry {
	return Geometry{
		Vertices:  append([]r3.Vec(nil), g.Vertices...),
		Triangles: append([][3]int(nil), g.Triangles...),
		Normals:   append([]r3.Vec(nil), g.Normals...),
	}
}

// Degeneracy counts triangles whose contribution was dropped.
type Degeneracy int

// Weight is one entry of a sparse MVC coordinate record.
type Weight struct {
	Index int
	Value float64
}

// ReconstructMVC returns sum(w.Value * vertices[w.Index]).
func ReconstructMVC(weights []Weight, vertices []r3.Vec) r3.Vec {
	var p r3.Vec
	for _, w := range weights {
		p = r3.Add(p, r3.Scale(w.Value, vertices[w.Index]))
	}
	return p
}

// ReconstructGreen returns sum(phi_v * v) + sum(psi_t * s_t * n_t). A nil
// scales slice means every scaling factor is 1.
func ReconstructGreen(phi, psi []float64, vertices, normals []r3.Vec, scales []float64) r3.Vec {
	var p r3.Vec
	for v, f := range phi {
		if f != 0 {
			p = r3.Add(p, r3.Scale(f, vertices[v]))
		}
	}
	for t, f := range psi {
		if f == 0 {
			continue
		}
		s := 1.0
		if scales != nil {
			s = scales[t]
		}
		p = r3.Add(p, r3.Scale(f*s, normals[t]))
	}
	return p
}

func finite(xs ...float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
