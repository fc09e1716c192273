package mesh

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/cagewarp/pkg/geom"
)

// Surface is a triangulated surface with per-triangle unit normals and
// area-weighted vertex normals. It is used both as a cage and as a target.
type Surface struct {
	transformable

	vertices      []r3.Vec
	triangles     [][3]int
	normals       []r3.Vec
	vertexNormals []r3.Vec
	bbox          r3.Box
}

// NewSurface creates a surface over vertices, which it takes ownership of.
func NewSurface(vertices []r3.Vec, triangles [][3]int) (*Surface, error) {
	if len(vertices) == 0 {
		return nil, ErrEmptyMesh
	}
	for i, t := range triangles {
		if err := checkIndices(len(vertices), t[0], t[1], t[2]); err != nil {
			return nil, fmt.Errorf("triangle %d: %w", i, err)
		}
	}

	s := &Surface{
		vertices:      vertices,
		triangles:     triangles,
		normals:       make([]r3.Vec, len(triangles)),
		vertexNormals: make([]r3.Vec, len(vertices)),
	}
	s.transformable = transformable{verts: s.Vertices, update: s.UpdateNormals}
	s.UpdateNormals()
	return s, nil
}

// Clone returns a deep copy of s.
func (s *Surface) Clone() *Surface {
	c := &Surface{
		vertices:      append([]r3.Vec(nil), s.vertices...),
		triangles:     append([][3]int(nil), s.triangles...),
		normals:       append([]r3.Vec(nil), s.normals...),
		vertexNormals: append([]r3.Vec(nil), s.vertexNormals...),
		bbox:          s.bbox,
	}
	c.transformable = transformable{verts: c.Vertices, update: c.UpdateNormals}
	return c
}

// Vertices returns the live vertex slice.
func (s *Surface) Vertices() []r3.Vec { return s.vertices }

// Triangles returns the triangle index triples.
func (s *Surface) Triangles() [][3]int { return s.triangles }

// Normals returns the unit triangle normals. Degenerate triangles have a zero
// normal.
func (s *Surface) Normals() []r3.Vec { return s.normals }

// VertexNormals returns the unit vertex normals.
func (s *Surface) VertexNormals() []r3.Vec { return s.vertexNormals }

// BBox returns the bounding box computed by the last UpdateNormals.
func (s *Surface) BBox() r3.Box { return s.bbox }

// UpdateNormals recomputes triangle normals, vertex normals and the bounding
// box from the current vertices.
func (s *Surface) UpdateNormals() {
	for i := range s.vertexNormals {
		s.vertexNormals[i] = r3.Vec{}
	}

	for i, t := range s.triangles {
		a, b, c := s.vertices[t[0]], s.vertices[t[1]], s.vertices[t[2]]
		n, err := geom.TriangleNormal(a, b, c)
		if err != nil {
			s.normals[i] = r3.Vec{}
			continue
		}
		s.normals[i] = n

		// Area weighting.
		weighted := r3.Scale(geom.TriangleArea(a, b, c), n)
		for _, v := range t {
			s.vertexNormals[v] = r3.Add(s.vertexNormals[v], weighted)
		}
	}

	for i, n := range s.vertexNormals {
		if l := r3.Norm(n); l > 0 {
			s.vertexNormals[i] = r3.Scale(1/l, n)
		}
	}

	s.bbox = geom.Bounds(s.vertices)
}

// ClosestVertex returns the index of the vertex nearest to p.
func (s *Surface) ClosestVertex(p r3.Vec) int {
	best := 0
	bestDist := r3.Norm2(r3.Sub(s.vertices[0], p))
	for i := 1; i < len(s.vertices); i++ {
		if d := r3.Norm2(r3.Sub(s.vertices[i], p)); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
