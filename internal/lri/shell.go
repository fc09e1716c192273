// Package lri corrects target vertices that cage coordinates cannot place.
//
// Tetrahedra touching an outlier vertex get their deformation basis by
// volume-weighted Laplacian interpolation from the surrounding tetrahedra
// whose basis the cage determines. Outlier positions are then rebuilt from
// the transformed rest edges in a second least squares solve.
package lri

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/cagewarp/internal/mesh"
)

var (
	// ErrSizeMismatch is returned when mask or position slices do not match
	// the vertex count.
	ErrSizeMismatch = errors.New("lri: size mismatch")
	// ErrEmptyShell is returned when no tetrahedron touches an outlier.
	ErrEmptyShell = errors.New("lri: no tetrahedron touches an outlier")
	// ErrEmptyEdgeBucket is returned when a shell edge has no incident
	// tetrahedron to average over.
	ErrEmptyEdgeBucket = errors.New("lri: edge has no incident tetrahedra")
	// ErrSolverFailure wraps factorization and solve failures.
	ErrSolverFailure = errors.New("lri: solver failure")
)

// Class is the role of a tetrahedron in the correction.
type Class uint8

const (
	// Inlier tetrahedra have no outlier vertex.
	Inlier Class = iota
	// Handle tetrahedra are inliers next to a non-inlier; the cage gives
	// their basis directly.
	Handle
	// Unknown tetrahedra have at least one outlier vertex.
	Unknown
)

func (c Class) String() string {
	switch c {
	case Inlier:
		return "inlier"
	case Handle:
		return "handle"
	case Unknown:
		return "unknown"
	default:
		return fmt.Sprintf("Class(%d)", uint8(c))
	}
}

// Classify assigns a Class to every tetrahedron.
func Classify(tets []mesh.Tetrahedron, outliers []bool) []Class {
	classes := make([]Class, len(tets))
	for i, t := range tets {
		for _, v := range t.Vertices {
			if outliers[v] {
				classes[i] = Unknown
				break
			}
		}
	}
	for i, t := range tets {
		if classes[i] != Inlier {
			continue
		}
		for _, n := range t.Neighbors {
			if n != mesh.NoNeighbor && classes[n] == Unknown {
				classes[i] = Handle
				break
			}
		}
	}
	return classes
}

// Edge joins two target vertices. A and B keep the orientation in which the
// edge was first met.
type Edge struct {
	A, B int
}

// Reversed returns the edge with its endpoints swapped.
func (e Edge) Reversed() Edge { return Edge{A: e.B, B: e.A} }

// Shell is the reduced set of tetrahedra, edges and vertices the correction
// solves over.
type Shell struct {
	// Tets are the kept tetrahedra, unknown ones first in mesh order, then
	// handles. Neighbors are renumbered into this slice; neighbors that
	// were dropped become mesh.NoNeighbor.
	Tets []mesh.Tetrahedron
	// Source maps a kept tetrahedron to its index in the target mesh.
	Source []int
	// Classes holds Unknown or Handle for each kept tetrahedron.
	Classes []Class
	// NumUnknown is the count of leading Unknown entries in Tets.
	NumUnknown int

	// Edges are the undirected shell edges, each listed once.
	Edges []Edge
	// EdgeMap lists the kept tetrahedra incident to an edge. Both
	// orientations of every edge are present.
	EdgeMap map[Edge][]int

	// Vertices maps a solver index to its target vertex.
	Vertices []int
	// SolverIndex maps a target vertex to its solver index, or -1.
	SolverIndex []int
	// Rest holds the rest position of each solver vertex.
	Rest []r3.Vec
	// Constraints lists solver indices of non-outlier vertices touched by
	// an unknown tetrahedron.
	Constraints []int

	// Outliers is the target vertex mask the shell was built from.
	Outliers []bool
}

// NumHandles returns the number of handle tetrahedra.
func (s *Shell) NumHandles() int { return len(s.Tets) - s.NumUnknown }

// Incident returns the kept tetrahedra sharing the edge (a, b), in either
// orientation.
func (s *Shell) Incident(a, b int) []int { return s.EdgeMap[Edge{A: a, B: b}] }

// BuildShell classifies tets against the outlier mask and collects the
// shell: kept tetrahedra, edges, solver vertices and pinned constraints.
func BuildShell(tets []mesh.Tetrahedron, rest []r3.Vec, outliers []bool) (*Shell, error) {
	if len(outliers) != len(rest) {
		return nil, fmt.Errorf("%w: %d outlier flags for %d vertices", ErrSizeMismatch, len(outliers), len(rest))
	}
	for i, t := range tets {
		for _, v := range t.Vertices {
			if v < 0 || v >= len(rest) {
				return nil, fmt.Errorf("%w: tetrahedron %d references vertex %d", mesh.ErrInvalidIndex, i, v)
			}
		}
	}

	classes := Classify(tets, outliers)
	s := &Shell{Outliers: append([]bool(nil), outliers...)}

	local := make([]int, len(tets))
	for i := range local {
		local[i] = -1
	}
	for _, want := range []Class{Unknown, Handle} {
		for i, c := range classes {
			if c == want {
				local[i] = len(s.Tets)
				s.Tets = append(s.Tets, tets[i])
				s.Source = append(s.Source, i)
				s.Classes = append(s.Classes, c)
			}
		}
		if want == Unknown {
			s.NumUnknown = len(s.Tets)
		}
	}
	if s.NumUnknown == 0 {
		return nil, ErrEmptyShell
	}

	for i := range s.Tets {
		for f, n := range s.Tets[i].Neighbors {
			if n != mesh.NoNeighbor {
				s.Tets[i].Neighbors[f] = local[n]
			}
		}
	}

	s.collectEdges()
	s.collectVertices(rest)
	s.collectConstraints()
	return s, nil
}

func (s *Shell) collectEdges() {
	s.EdgeMap = make(map[Edge][]int)
	for i, t := range s.Tets {
		for a := 0; a < 4; a++ {
			for b := a + 1; b < 4; b++ {
				e := Edge{A: t.Vertices[a], B: t.Vertices[b]}
				if _, seen := s.EdgeMap[e]; !seen {
					s.Edges = append(s.Edges, e)
				}
				s.EdgeMap[e] = append(s.EdgeMap[e], i)
				if r := e.Reversed(); r != e {
					s.EdgeMap[r] = append(s.EdgeMap[r], i)
				}
			}
		}
	}
}

func (s *Shell) collectVertices(rest []r3.Vec) {
	s.SolverIndex = make([]int, len(rest))
	for i := range s.SolverIndex {
		s.SolverIndex[i] = -1
	}
	for _, t := range s.Tets {
		for _, v := range t.Vertices {
			if s.SolverIndex[v] < 0 {
				s.SolverIndex[v] = len(s.Vertices)
				s.Vertices = append(s.Vertices, v)
				s.Rest = append(s.Rest, rest[v])
			}
		}
	}
}

func (s *Shell) collectConstraints() {
	marked := make(map[int]bool)
	for _, t := range s.Tets[:s.NumUnknown] {
		for _, v := range t.Vertices {
			if !s.Outliers[v] && !marked[v] {
				marked[v] = true
				s.Constraints = append(s.Constraints, s.SolverIndex[v])
			}
		}
	}
}
