package cage

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/cagewarp/internal/mesh"
	cwmath "github.com/Faultbox/cagewarp/pkg/math"
)

// Translate moves the cage by d and applies the rigid policy.
func (m *Model) Translate(d r3.Vec) error {
	return m.rigid(func(points []r3.Vec) { mesh.TranslatePoints(points, d) })
}

// Rotate rotates the cage by rot about its vertex centroid and applies the
// rigid policy. A mirrored target rotates about the same point.
func (m *Model) Rotate(rot cwmath.Mat3) error {
	pivot := m.cage.Origin()
	return m.rigid(func(points []r3.Vec) { mesh.RotatePoints(points, rot, pivot) })
}

// Scale scales the cage componentwise about the world origin and applies
// the rigid policy.
func (m *Model) Scale(s r3.Vec) error {
	return m.rigid(func(points []r3.Vec) { mesh.ScalePoints(points, s) })
}

// SetOrigin translates the cage so that its vertex centroid lands on o.
func (m *Model) SetOrigin(o r3.Vec) error {
	return m.Translate(r3.Sub(o, m.cage.Origin()))
}

// rigid transforms the cage and applies the policy. When rebinding fails,
// both meshes are put back where they were.
func (m *Model) rigid(apply func(points []r3.Vec)) error {
	if !m.bound {
		return ErrUnbound
	}
	cageVerts := m.cage.Vertices()
	targetVerts := m.target.Vertices()
	savedCage := append([]r3.Vec(nil), cageVerts...)
	var savedTarget []r3.Vec

	apply(cageVerts)
	m.cage.UpdateNormals()

	switch m.opts.Rigid {
	case RigidDetached:
		return m.UpdateTarget()
	case RigidRebind:
		savedTarget = append([]r3.Vec(nil), targetVerts...)
		apply(targetVerts)
		m.target.UpdateNormals()
	}

	if err := m.ReInitialize(); err != nil {
		copy(cageVerts, savedCage)
		m.cage.UpdateNormals()
		if savedTarget != nil {
			copy(targetVerts, savedTarget)
			m.target.UpdateNormals()
		}
		return err
	}
	return nil
}
