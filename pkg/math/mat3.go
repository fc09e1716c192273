package math

import "gonum.org/v1/gonum/spatial/r3"

// Mat3 is a 3x3 matrix in row-major order.
// Layout: [m0 m1 m2]
//
//	[m3 m4 m5]
//	[m6 m7 m8]
type Mat3 [9]float64

// Identity3 returns the identity matrix.
func Identity3() Mat3 {
	return Mat3{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}
}

// Mat3FromCols builds a matrix whose columns are a, b and c.
func Mat3FromCols(a, b, c r3.Vec) Mat3 {
	return Mat3{
		a.X, b.X, c.X,
		a.Y, b.Y, c.Y,
		a.Z, b.Z, c.Z,
	}
}

// Mul returns m * other.
func (m Mat3) Mul(other Mat3) Mat3 {
	var result Mat3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			result[r*3+c] = m[r*3]*other[c] + m[r*3+1]*other[3+c] + m[r*3+2]*other[6+c]
		}
	}
	return result
}

// MulVec returns m * v.
func (m Mat3) MulVec(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m[0]*v.X + m[1]*v.Y + m[2]*v.Z,
		Y: m[3]*v.X + m[4]*v.Y + m[5]*v.Z,
		Z: m[6]*v.X + m[7]*v.Y + m[8]*v.Z,
	}
}

// Inverse returns the inverse of m from its cofactors.
// The second result is false when the determinant is exactly zero; the
// returned matrix is then the zero matrix.
func (m Mat3) Inverse() (Mat3, bool) {
	c00 := m[4]*m[8] - m[5]*m[7]
	c01 := m[5]*m[6] - m[3]*m[8]
	c02 := m[3]*m[7] - m[4]*m[6]

	det := m[0]*c00 + m[1]*c01 + m[2]*c02
	if det == 0 {
		return Mat3{}, false
	}

	c10 := m[2]*m[7] - m[1]*m[8]
	c11 := m[0]*m[8] - m[2]*m[6]
	c12 := m[1]*m[6] - m[0]*m[7]

	c20 := m[1]*m[5] - m[2]*m[4]
	c21 := m[2]*m[3] - m[0]*m[5]
	c22 := m[0]*m[4] - m[1]*m[3]

	invDet := 1.0 / det

	// Adjugate is the transposed cofactor matrix.
	return Mat3{
		c00 * invDet, c10 * invDet, c20 * invDet,
		c01 * invDet, c11 * invDet, c21 * invDet,
		c02 * invDet, c12 * invDet, c22 * invDet,
	}, true
}

// IsFinite reports whether every element of m is finite.
func (m Mat3) IsFinite() bool {
	for _, v := range m {
		if !isFinite(v) {
			return false
		}
	}
	return true
}
