package coords

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/cagewarp/pkg/geom"
)

// degenerateTol bounds areas, edge lengths and distances below which a Green
// triangle is skipped.
const degenerateTol = 1e-12

// Green fills phi (one entry per cage vertex) and psi (one entry per cage
// triangle) with the Green coordinates of p, using the closed forms of Urago
// (2000) as given by Lipman, Levin and Cohen-Or (2008). phi and psi are
// overwritten. Normals in g must be the outward unit triangle normals.
func Green(p r3.Vec, g Geometry, phi, psi []float64) Degeneracy {
	for i := range phi {
		phi[i] = 0
	}
	for i := range psi {
		psi[i] = 0
	}

	var deg Degeneracy
	for t, tri := range g.Triangles {
		contrib, psiT, ok := greenTriangle(p, g.Vertices[tri[0]], g.Vertices[tri[1]], g.Vertices[tri[2]], g.Normals[t])
		if !ok {
			deg++
			continue
		}
		psi[t] = psiT
		for v, vi := range tri {
			phi[vi] += contrib[v]
		}
	}
	return deg
}

// greenTriangle returns the phi contributions of the three triangle vertices
// and the psi coordinate of the triangle, or false if the triangle is
// degenerate with respect to p.
func greenTriangle(p r3.Vec, a, b, c, n r3.Vec) ([3]float64, float64, bool) {
	var none [3]float64
	corners := [3]r3.Vec{a, b, c}

	var e, eUnit, d [3]r3.Vec
	var eNorm, dNorm, r [3]float64
	for v := 0; v < 3; v++ {
		e[v] = r3.Sub(corners[v], p)
		eNorm[v] = r3.Norm(e[v])
		if eNorm[v] < degenerateTol {
			return none, 0, false
		}
		eUnit[v] = r3.Scale(1/eNorm[v], e[v])
	}

	area := geom.TriangleArea(a, b, c)
	if area < degenerateTol {
		return none, 0, false
	}

	omega := geom.SignedSolidAngle(eUnit[0], eUnit[1], eUnit[2]) / (4 * math.Pi)
	signedVolume := r3.Dot(r3.Cross(e[0], e[1]), e[2]) / 6

	var coef [3]float64
	for v := 0; v < 3; v++ {
		next, prev := (v+1)%3, (v+2)%3
		r[v] = eNorm[next] + eNorm[prev]
		d[v] = r3.Sub(corners[next], corners[prev])
		dNorm[v] = r3.Norm(d[v])
		if dNorm[v] < degenerateTol || r[v]-dNorm[v] <= 0 {
			return none, 0, false
		}
		coef[v] = math.Log((r[v]+dNorm[v])/(r[v]-dNorm[v])) / (4 * math.Pi * dNorm[v])
	}

	pt := r3.Scale(-omega, n)
	for v := 0; v < 3; v++ {
		pt = r3.Add(pt, r3.Cross(n, r3.Scale(coef[v], d[v])))
	}

	psi := -3 * omega * signedVolume / area
	var phi [3]float64
	for v := 0; v < 3; v++ {
		next, prev := (v+1)%3, (v+2)%3
		j := r3.Cross(e[prev], e[next])
		psi -= coef[v] * r3.Dot(j, n)
		phi[v] = r3.Dot(pt, j) / (2 * area)
	}

	if !finite(psi, phi[0], phi[1], phi[2]) {
		return none, 0, false
	}
	return phi, psi, true
}
