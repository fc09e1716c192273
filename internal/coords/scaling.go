package coords

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ScalingFactor tracks the stretch of one cage triangle between its rest pose
// and its current pose. Green reconstruction scales the triangle's normal
// term by it so the deformation stays quasi-conformal.
type ScalingFactor struct {
	u, v  r3.Vec
	value float64
}

// NewScalingFactor records the rest edges u = b-a and v = c-a. The initial
// value is 1.
func NewScalingFactor(u, v r3.Vec) ScalingFactor {
	return ScalingFactor{u: u, v: v, value: 1}
}

// ScalingFactorOf returns the factor of triangle (a, b, c) at rest.
func ScalingFactorOf(a, b, c r3.Vec) ScalingFactor {
	return NewScalingFactor(r3.Sub(b, a), r3.Sub(c, a))
}

// Update recomputes the factor from the current edges u2 and v2. A degenerate
// rest or current triangle keeps the previous value.
func (f *ScalingFactor) Update(u2, v2 r3.Vec) {
	den := 2 * r3.Norm2(r3.Cross(f.u, f.v))
	if den == 0 {
		return
	}
	num := r3.Norm2(f.u)*r3.Norm2(v2) - 2*r3.Dot(f.u, f.v)*r3.Dot(u2, v2) + r3.Norm2(u2)*r3.Norm2(f.v)
	s := math.Sqrt(num / den)
	if !finite(s) {
		return
	}
	f.value = s
}

// Value returns the current factor.
func (f ScalingFactor) Value() float64 { return f.value }
