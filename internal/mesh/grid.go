package mesh

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// cubeCorners lists the cube corner offsets: the bottom face counter-clockwise
// from the cell origin, then the top face in the same order.
var cubeCorners = [8][3]int{
	{0, 0, 0}, {0, 1, 0}, {1, 1, 0}, {1, 0, 0},
	{0, 0, 1}, {0, 1, 1}, {1, 1, 1}, {1, 0, 1},
}

// cubeTets splits a cube into six tetrahedra over cubeCorners. The split is
// the same in every cell so shared faces agree across cells.
var cubeTets = [6][4]int{
	{3, 2, 1, 6},
	{4, 0, 5, 7},
	{5, 3, 6, 7},
	{0, 3, 5, 7},
	{0, 3, 1, 5},
	{1, 3, 6, 5},
}

// BuildGrid builds a regular grid of nx*ny*nz cells of size cell starting at
// origin, each cell split into six tetrahedra.
func BuildGrid(origin, cell r3.Vec, nx, ny, nz int) (*TetMesh, error) {
	if nx < 1 || ny < 1 || nz < 1 {
		return nil, fmt.Errorf("mesh: invalid grid resolution %dx%dx%d", nx, ny, nz)
	}

	sx, sy := nx+1, ny+1
	index := func(x, y, z int) int { return x + sx*y + sx*sy*z }

	vertices := make([]r3.Vec, 0, sx*sy*(nz+1))
	for z := 0; z <= nz; z++ {
		for y := 0; y <= ny; y++ {
			for x := 0; x <= nx; x++ {
				vertices = append(vertices, r3.Vec{
					X: origin.X + float64(x)*cell.X,
					Y: origin.Y + float64(y)*cell.Y,
					Z: origin.Z + float64(z)*cell.Z,
				})
			}
		}
	}

	tets := make([][4]int, 0, 6*nx*ny*nz)
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				var corner [8]int
				for i, c := range cubeCorners {
					corner[i] = index(x+c[0], y+c[1], z+c[2])
				}
				for _, t := range cubeTets {
					tets = append(tets, [4]int{corner[t[0]], corner[t[1]], corner[t[2]], corner[t[3]]})
				}
			}
		}
	}

	return NewTetMesh(vertices, tets)
}
