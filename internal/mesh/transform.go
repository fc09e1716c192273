package mesh

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/cagewarp/pkg/geom"
	cwmath "github.com/Faultbox/cagewarp/pkg/math"
)

// TranslatePoints adds d to every point.
func TranslatePoints(points []r3.Vec, d r3.Vec) {
	for i := range points {
		points[i] = r3.Add(points[i], d)
	}
}

// RotatePoints applies m to every point around pivot.
func RotatePoints(points []r3.Vec, m cwmath.Mat3, pivot r3.Vec) {
	for i := range points {
		points[i] = r3.Add(m.MulVec(r3.Sub(points[i], pivot)), pivot)
	}
}

// ScalePoints multiplies every point componentwise by s.
func ScalePoints(points []r3.Vec, s r3.Vec) {
	for i := range points {
		points[i] = cwmath.MulElem(points[i], s)
	}
}

// transformable gives a mesh rigid transforms on top of a vertex slice and
// an update hook.
type transformable struct {
	verts  func() []r3.Vec
	update func()
}

func (t transformable) Translate(d r3.Vec) {
	TranslatePoints(t.verts(), d)
	t.update()
}

// Rotate rotates about the vertex centroid.
func (t transformable) Rotate(m cwmath.Mat3) {
	RotatePoints(t.verts(), m, t.Origin())
	t.update()
}

func (t transformable) Scale(s r3.Vec) {
	ScalePoints(t.verts(), s)
	t.update()
}

// SetOrigin translates so that the vertex centroid lands on o.
func (t transformable) SetOrigin(o r3.Vec) {
	t.Translate(r3.Sub(o, t.Origin()))
}

// Origin returns the vertex centroid.
func (t transformable) Origin() r3.Vec {
	return geom.Centroid(t.verts())
}
