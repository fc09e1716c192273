package cage

import (
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/cagewarp/internal/coords"
	"github.com/Faultbox/cagewarp/internal/logger"
)

// MovePoint moves cage vertex i to p and deforms the target.
func (m *Model) MovePoint(i int, p r3.Vec) error {
	return m.MovePoints([]int{i}, []r3.Vec{p})
}

// MovePoints moves the listed cage vertices and deforms the target. All
// indices are checked before anything moves.
func (m *Model) MovePoints(indices []int, positions []r3.Vec) error {
	if !m.bound {
		return ErrUnbound
	}
	if len(indices) != len(positions) {
		return fmt.Errorf("%w: %d indices for %d positions", ErrSizeMismatch, len(indices), len(positions))
	}
	verts := m.cage.Vertices()
	for _, i := range indices {
		if i < 0 || i >= len(verts) {
			return fmt.Errorf("%w: cage vertex %d of %d", ErrIndexOutOfRange, i, len(verts))
		}
	}
	for k, i := range indices {
		verts[i] = positions[k]
	}
	return m.UpdateTarget()
}

// ApplyCage replaces every cage vertex and deforms the target.
func (m *Model) ApplyCage(positions []r3.Vec) error {
	if !m.bound {
		return ErrUnbound
	}
	verts := m.cage.Vertices()
	if len(positions) != len(verts) {
		return fmt.Errorf("%w: %d positions for %d cage vertices", ErrSizeMismatch, len(positions), len(verts))
	}
	copy(verts, positions)
	return m.UpdateTarget()
}

// UpdateTarget reconstructs every target vertex from the current cage, then
// runs the outlier correction when it is active.
func (m *Model) UpdateTarget() error {
	if !m.bound {
		return ErrUnbound
	}
	st := &m.state
	positions := m.target.Vertices()
	if len(positions) != len(st.rest) {
		return fmt.Errorf("%w: target has %d vertices, bound with %d", ErrSizeMismatch, len(positions), len(st.rest))
	}
	if len(positions) == 0 {
		return nil
	}

	m.cage.UpdateNormals()
	cur := coords.FromSurface(m.cage)

	switch {
	case st.mvc != nil:
		coords.ForChunks(len(positions), m.opts.Workers, func(lo, hi int) {
			for i := lo; i < hi; i++ {
				positions[i] = coords.ReconstructMVC(st.mvc[i], cur.Vertices)
			}
		})
	case st.green != nil:
		values := make([]float64, len(st.scales))
		for t, tri := range cur.Triangles {
			v := cur.Vertices
			st.scales[t].Update(r3.Sub(v[tri[1]], v[tri[0]]), r3.Sub(v[tri[2]], v[tri[0]]))
			values[t] = st.scales[t].Value()
		}
		coords.ForChunks(len(positions), m.opts.Workers, func(lo, hi int) {
			for i := lo; i < hi; i++ {
				g := st.green[i]
				positions[i] = coords.ReconstructGreen(g.Phi, g.Psi, cur.Vertices, cur.Normals, values)
			}
		})
	}

	if st.corrector != nil {
		if err := st.corrector.Update(positions); err != nil {
			logger.Named("cage").Error("outlier correction failed", zap.Error(err))
			m.target.UpdateNormals()
			return fmt.Errorf("%w: %w", ErrSolverFailure, err)
		}
	}
	m.target.UpdateNormals()
	return nil
}
