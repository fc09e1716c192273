package mesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/cagewarp/pkg/geom"
)

// locateRings is how many face-neighbor rings around the nearest centroid
// are searched for a containing tetrahedron.
const locateRings = 5

// containTol is the barycentric tolerance of the containment test.
const containTol = 1e-9

// tetCentroid is a kd-tree entry: the centroid of one tetrahedron.
type tetCentroid struct {
	C   r3.Vec
	Tet int
}

func (c *tetCentroid) Compare(o kdtree.Comparable, d kdtree.Dim) float64 {
	q := o.(*tetCentroid)
	switch d {
	case 0:
		return c.C.X - q.C.X
	case 1:
		return c.C.Y - q.C.Y
	case 2:
		return c.C.Z - q.C.Z
	}
	panic("unreachable")
}

func (c *tetCentroid) Dims() int { return 3 }

func (c *tetCentroid) Distance(o kdtree.Comparable) float64 {
	return r3.Norm2(r3.Sub(c.C, o.(*tetCentroid).C))
}

// centroidIndex implements kdtree.Interface over tetrahedron centroids.
type centroidIndex struct {
	tree      *kdtree.Tree
	centroids []tetCentroid
}

func (ci *centroidIndex) Index(i int) kdtree.Comparable { return &ci.centroids[i] }

func (ci *centroidIndex) Len() int { return len(ci.centroids) }

func (ci *centroidIndex) Pivot(d kdtree.Dim) int {
	p := centroidPlane{dim: d, centroids: ci.centroids}
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}

func (ci *centroidIndex) Slice(start, end int) kdtree.Interface {
	return &centroidIndex{centroids: ci.centroids[start:end]}
}

type centroidPlane struct {
	dim       kdtree.Dim
	centroids []tetCentroid
}

func (p centroidPlane) Less(i, j int) bool {
	return p.centroids[i].Compare(&p.centroids[j], p.dim) < 0
}

func (p centroidPlane) Swap(i, j int) {
	p.centroids[i], p.centroids[j] = p.centroids[j], p.centroids[i]
}

func (p centroidPlane) Len() int { return len(p.centroids) }

func (p centroidPlane) Slice(start, end int) kdtree.SortSlicer {
	p.centroids = p.centroids[start:end]
	return p
}

func (m *TetMesh) locationIndex() *centroidIndex {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index != nil {
		return m.index
	}

	ci := &centroidIndex{centroids: make([]tetCentroid, len(m.tetrahedra))}
	for i, t := range m.tetrahedra {
		c := t.Corners(m.vertices)
		ci.centroids[i] = tetCentroid{C: geom.Centroid(c[:]), Tet: i}
	}
	ci.tree = kdtree.New(ci, false)
	m.index = ci
	return ci
}

// Locate returns the tetrahedron containing p in the current pose and the
// barycentric coordinates of p in it. The search starts at the tetrahedron
// whose centroid is nearest to p and walks up to five face-neighbor rings.
func (m *TetMesh) Locate(p r3.Vec) (int, [4]float64, bool) {
	if len(m.tetrahedra) == 0 {
		return NoNeighbor, [4]float64{}, false
	}

	ci := m.locationIndex()
	nearest, _ := ci.tree.Nearest(&tetCentroid{C: p})
	if nearest == nil {
		return NoNeighbor, [4]float64{}, false
	}
	start := nearest.(*tetCentroid).Tet

	visited := map[int]bool{start: true}
	ring := []int{start}
	for r := 0; r <= locateRings && len(ring) > 0; r++ {
		var next []int
		for _, ti := range ring {
			t := m.tetrahedra[ti]
			c := t.Corners(m.vertices)
			if w, err := geom.TetBarycentric(p, c[0], c[1], c[2], c[3]); err == nil && inside(w) {
				return ti, w, true
			}
			for _, n := range t.Neighbors {
				if n != NoNeighbor && !visited[n] {
					visited[n] = true
					next = append(next, n)
				}
			}
		}
		ring = next
	}
	return NoNeighbor, [4]float64{}, false
}

func inside(w [4]float64) bool {
	for _, x := range w {
		if x < -containTol || math.IsNaN(x) {
			return false
		}
	}
	return true
}

// CoordInRest maps p, given in the current pose, to the rest pose described
// by rest through the barycentric coordinates of its containing tetrahedron.
func (m *TetMesh) CoordInRest(p r3.Vec, rest []r3.Vec) (r3.Vec, bool) {
	ti, w, ok := m.Locate(p)
	if !ok || len(rest) != len(m.vertices) {
		return r3.Vec{}, false
	}
	var out r3.Vec
	for k, v := range m.tetrahedra[ti].Vertices {
		out = r3.Add(out, r3.Scale(w[k], rest[v]))
	}
	return out, true
}
