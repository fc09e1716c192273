// Package mesh holds the surface and tetrahedral meshes a cage deforms.
//
// Meshes own a single vertex array that the deformation engine mutates in
// place; tetrahedra refer to it by index.
package mesh

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Mesh errors.
var (
	ErrInvalidIndex = errors.New("mesh: element index out of range")
	ErrEmptyMesh    = errors.New("mesh: no vertices")
)

// Target is a mesh driven by a cage. Vertices returns the live vertex slice;
// writes through it are visible to the mesh. UpdateNormals must be called
// after the vertices change.
type Target interface {
	Vertices() []r3.Vec
	UpdateNormals()
	BBox() r3.Box
}

// Tetrahedra is a Target with volumetric connectivity.
type Tetrahedra interface {
	Target
	Tetrahedra() []Tetrahedron
}

// NoNeighbor marks a boundary face.
const NoNeighbor = -1

// Tetrahedron stores four vertex indices and, per face, the index of the
// tetrahedron across it. Face f is the face opposite vertex f.
type Tetrahedron struct {
	Vertices  [4]int
	Neighbors [4]int
}

// faceVertices lists, for each face, the local vertices it is made of.
var faceVertices = [4][3]int{{3, 1, 2}, {3, 2, 0}, {3, 0, 1}, {2, 1, 0}}

// Face returns the vertex indices of face f.
func (t Tetrahedron) Face(f int) [3]int {
	fv := faceVertices[f]
	return [3]int{t.Vertices[fv[0]], t.Vertices[fv[1]], t.Vertices[fv[2]]}
}

// Corners returns the positions of the four vertices.
func (t Tetrahedron) Corners(vertices []r3.Vec) [4]r3.Vec {
	return [4]r3.Vec{
		vertices[t.Vertices[0]],
		vertices[t.Vertices[1]],
		vertices[t.Vertices[2]],
		vertices[t.Vertices[3]],
	}
}

// Has reports whether vertex v belongs to t.
func (t Tetrahedron) Has(v int) bool {
	return t.Vertices[0] == v || t.Vertices[1] == v || t.Vertices[2] == v || t.Vertices[3] == v
}

func checkIndices(n int, idx ...int) error {
	for _, i := range idx {
		if i < 0 || i >= n {
			return fmt.Errorf("%w: %d (vertex count %d)", ErrInvalidIndex, i, n)
		}
	}
	return nil
}
