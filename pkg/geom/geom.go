// Package geom provides triangle and tetrahedron primitives shared by the
// coordinate solvers, the mesh collaborators and the LRI shell builder.
package geom

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	cwmath "github.com/Faultbox/cagewarp/pkg/math"
)

// ErrDegenerate is returned when a primitive has zero area or volume.
var ErrDegenerate = errors.New("geom: degenerate primitive")

// coplanarEps is the triple-product magnitude under which three unit
// directions are treated as coplanar.
const coplanarEps = 1e-10

// TriangleNormal returns the unit normal of triangle (a, b, c) following the
// right-hand rule.
func TriangleNormal(a, b, c r3.Vec) (r3.Vec, error) {
	n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
	l := r3.Norm(n)
	if l == 0 || math.IsNaN(l) {
		return r3.Vec{}, ErrDegenerate
	}
	return r3.Scale(1/l, n), nil
}

// TriangleArea returns the area of triangle (a, b, c).
func TriangleArea(a, b, c r3.Vec) float64 {
	return r3.Norm(r3.Cross(r3.Sub(b, a), r3.Sub(c, a))) / 2
}

// SignedTetVolume returns ((b-a)x(c-a)).(d-a)/6. It is positive when d lies on
// the side of triangle (a, b, c) its normal points to.
func SignedTetVolume(a, b, c, d r3.Vec) float64 {
	return r3.Dot(r3.Cross(r3.Sub(b, a), r3.Sub(c, a)), r3.Sub(d, a)) / 6
}

// TetVolume returns the unsigned volume of tetrahedron (a, b, c, d).
func TetVolume(a, b, c, d r3.Vec) float64 {
	return math.Abs(SignedTetVolume(a, b, c, d))
}

// SignedSolidAngle returns the solid angle subtended by the spherical triangle
// of unit directions a, b and c (Van Oosterom and Strackee). The sign follows
// a.(b x c). Coplanar directions give 0 when the origin is outside their
// triangle, 2*pi when it is inside and pi when it is on an edge: the limit
// taken from the side where a.(b x c) is positive.
func SignedSolidAngle(a, b, c r3.Vec) float64 {
	det := r3.Dot(a, r3.Cross(b, c))
	if math.Abs(det) < coplanarEps {
		return coplanarSolidAngle(a, b, c)
	}

	al := r3.Norm(a)
	bl := r3.Norm(b)
	cl := r3.Norm(c)

	div := al*bl*cl + r3.Dot(a, b)*cl + r3.Dot(a, c)*bl + r3.Dot(b, c)*al
	omega := 2 * math.Atan2(math.Abs(det), div)
	if det < 0 {
		return -omega
	}
	return omega
}

func coplanarSolidAngle(a, b, c r3.Vec) float64 {
	w, err := TriangleBarycentric(r3.Vec{}, a, b, c)
	if err != nil {
		return 0
	}
	onEdge := 0
	for _, x := range w {
		switch {
		case x < -coplanarEps:
			return 0
		case x <= coplanarEps:
			onEdge++
		}
	}
	switch onEdge {
	case 0:
		return 2 * math.Pi
	case 1:
		return math.Pi
	}
	return 0
}

// TriangleBarycentric returns the barycentric coordinates of the projection
// of p on the plane of (a, b, c).
func TriangleBarycentric(p, a, b, c r3.Vec) ([3]float64, error) {
	e0 := r3.Sub(b, a)
	e1 := r3.Sub(c, a)
	d := r3.Sub(p, a)

	d00 := r3.Dot(e0, e0)
	d01 := r3.Dot(e0, e1)
	d11 := r3.Dot(e1, e1)
	d20 := r3.Dot(d, e0)
	d21 := r3.Dot(d, e1)

	den := d00*d11 - d01*d01
	if den == 0 {
		return [3]float64{}, ErrDegenerate
	}
	v := (d11*d20 - d01*d21) / den
	w := (d00*d21 - d01*d20) / den
	return [3]float64{1 - v - w, v, w}, nil
}

// TetBarycentric returns the barycentric coordinates of p with respect to
// tetrahedron (a, b, c, d).
func TetBarycentric(p, a, b, c, d r3.Vec) ([4]float64, error) {
	vol := SignedTetVolume(a, b, c, d)
	if vol == 0 {
		return [4]float64{}, ErrDegenerate
	}
	return [4]float64{
		SignedTetVolume(p, b, c, d) / vol,
		SignedTetVolume(a, p, c, d) / vol,
		SignedTetVolume(a, b, p, d) / vol,
		SignedTetVolume(a, b, c, p) / vol,
	}, nil
}

// Bounds returns the axis-aligned bounding box of points. An empty slice
// gives the zero box.
func Bounds(points []r3.Vec) r3.Box {
	if len(points) == 0 {
		return r3.Box{}
	}
	box := r3.Box{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		box.Min = cwmath.MinElem(box.Min, p)
		box.Max = cwmath.MaxElem(box.Max, p)
	}
	return box
}

// Diagonal returns the length of the box diagonal.
func Diagonal(box r3.Box) float64 {
	return r3.Norm(r3.Sub(box.Max, box.Min))
}

// Centroid returns the mean of points, or the origin for an empty slice.
func Centroid(points []r3.Vec) r3.Vec {
	if len(points) == 0 {
		return r3.Vec{}
	}
	var sum r3.Vec
	for _, p := range points {
		sum = r3.Add(sum, p)
	}
	return r3.Scale(1/float64(len(points)), sum)
}
