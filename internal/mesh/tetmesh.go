package mesh

import (
	"fmt"
	"sort"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/cagewarp/pkg/geom"
)

// TetMesh is a tetrahedral volume mesh with face adjacency.
type TetMesh struct {
	transformable

	vertices   []r3.Vec
	tetrahedra []Tetrahedron
	bbox       r3.Box

	// Point location index over current centroids, rebuilt lazily after
	// UpdateNormals.
	mu    sync.Mutex
	index *centroidIndex
}

// NewTetMesh creates a tetrahedral mesh and computes face neighbors. It takes
// ownership of vertices.
func NewTetMesh(vertices []r3.Vec, tets [][4]int) (*TetMesh, error) {
	if len(vertices) == 0 {
		return nil, ErrEmptyMesh
	}

	m := &TetMesh{
		vertices:   vertices,
		tetrahedra: make([]Tetrahedron, len(tets)),
	}
	for i, t := range tets {
		if err := checkIndices(len(vertices), t[0], t[1], t[2], t[3]); err != nil {
			return nil, fmt.Errorf("tetrahedron %d: %w", i, err)
		}
		m.tetrahedra[i] = Tetrahedron{
			Vertices:  t,
			Neighbors: [4]int{NoNeighbor, NoNeighbor, NoNeighbor, NoNeighbor},
		}
	}
	computeNeighbors(m.tetrahedra)

	m.transformable = transformable{verts: m.Vertices, update: m.UpdateNormals}
	m.UpdateNormals()
	return m, nil
}

type faceRef struct {
	tet, face int
}

// computeNeighbors links tetrahedra sharing a face. Faces are matched on their
// sorted vertex triple; a face shared by more than two tetrahedra keeps the
// first pairing.
func computeNeighbors(tets []Tetrahedron) {
	open := make(map[[3]int]faceRef, 2*len(tets))
	for i := range tets {
		for f := 0; f < 4; f++ {
			key := tets[i].Face(f)
			sort.Ints(key[:])

			other, ok := open[key]
			if !ok {
				open[key] = faceRef{tet: i, face: f}
				continue
			}
			delete(open, key)
			tets[i].Neighbors[f] = other.tet
			tets[other.tet].Neighbors[other.face] = i
		}
	}
}

// Vertices returns the live vertex slice.
func (m *TetMesh) Vertices() []r3.Vec { return m.vertices }

// Tetrahedra returns the tetrahedra. Callers must not modify them.
func (m *TetMesh) Tetrahedra() []Tetrahedron { return m.tetrahedra }

// BBox returns the bounding box computed by the last UpdateNormals.
func (m *TetMesh) BBox() r3.Box { return m.bbox }

// UpdateNormals refreshes the bounding box and invalidates the point location
// index. Tetrahedral meshes carry no normals.
func (m *TetMesh) UpdateNormals() {
	m.bbox = geom.Bounds(m.vertices)
	m.mu.Lock()
	m.index = nil
	m.mu.Unlock()
}

// Surface returns the boundary triangles, oriented outward for positively
// oriented tetrahedra.
func (m *TetMesh) Surface() [][3]int {
	var tris [][3]int
	for _, t := range m.tetrahedra {
		for f := 0; f < 4; f++ {
			if t.Neighbors[f] == NoNeighbor {
				tris = append(tris, t.Face(f))
			}
		}
	}
	return tris
}

// Volume returns the total unsigned volume.
func (m *TetMesh) Volume() float64 {
	var v float64
	for _, t := range m.tetrahedra {
		c := t.Corners(m.vertices)
		v += geom.TetVolume(c[0], c[1], c[2], c[3])
	}
	return v
}
