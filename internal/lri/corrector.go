package lri

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/cagewarp/internal/logger"
	"github.com/Faultbox/cagewarp/internal/mesh"
	"github.com/Faultbox/cagewarp/internal/sparse"
	"github.com/Faultbox/cagewarp/pkg/geom"
	cwmath "github.com/Faultbox/cagewarp/pkg/math"
)

// basisCols is the number of right-hand sides of the basis system: one per
// entry of a 3x3 basis, row-major.
const basisCols = 9

// Options configures a Corrector.
type Options struct {
	Backend sparse.Backend
	// ConstraintWeight scales pinned constraint rows. Zero means 1.
	ConstraintWeight float64
}

// Corrector owns the two factorized systems of a shell and rewrites outlier
// positions from the current inlier deformation.
type Corrector struct {
	shell  *Shell
	weight float64

	basis    *sparse.System
	vertices *sparse.System

	// restInv is the inverse rest edge frame of each handle; ok is false
	// for flat handles.
	restInv []cwmath.Mat3
	restOK  []bool
	// frames keeps the last basis of each handle, reused while its current
	// frame cannot be computed.
	frames []cwmath.Mat3
	// bases is scratch space for the solved basis of every kept tetrahedron.
	bases []cwmath.Mat3
}

// NewCorrector assembles and factorizes the basis and vertex systems.
func NewCorrector(shell *Shell, opts Options) (*Corrector, error) {
	if opts.ConstraintWeight == 0 {
		opts.ConstraintWeight = 1
	}
	c := &Corrector{
		shell:  shell,
		weight: opts.ConstraintWeight,
		bases:  make([]cwmath.Mat3, len(shell.Tets)),
	}

	for i := range shell.Tets[shell.NumUnknown:] {
		m := edgeFrame(shell.Tets[shell.NumUnknown+i], shell.Rest, shell.SolverIndex)
		inv, ok := m.Inverse()
		c.restInv = append(c.restInv, inv)
		c.restOK = append(c.restOK, ok)
		c.frames = append(c.frames, cwmath.Identity3())
	}

	var err error
	if c.basis, err = c.buildBasisSystem(opts.Backend); err != nil {
		return nil, err
	}
	if c.vertices, err = c.buildVertexSystem(opts.Backend); err != nil {
		c.basis.Free()
		return nil, err
	}

	logger.Named("lri").Info("corrector initialized",
		zap.Int("unknown_tets", shell.NumUnknown),
		zap.Int("handle_tets", shell.NumHandles()),
		zap.Int("edges", len(shell.Edges)),
		zap.Int("solver_vertices", len(shell.Vertices)),
		zap.Int("constraints", len(shell.Constraints)))
	return c, nil
}

// Shell returns the shell the corrector solves over.
func (c *Corrector) Shell() *Shell { return c.shell }

// restVolumes returns rest volume magnitudes normalized by their mean.
func (c *Corrector) restVolumes() []float64 {
	s := c.shell
	vols := make([]float64, len(s.Tets))
	var sum float64
	for i, t := range s.Tets {
		p := solverCorners(t, s.Rest, s.SolverIndex)
		vols[i] = geom.TetVolume(p[0], p[1], p[2], p[3])
		sum += vols[i]
	}
	if mean := sum / float64(len(vols)); mean > 0 {
		for i := range vols {
			vols[i] /= mean
		}
	}
	return vols
}

func (c *Corrector) buildBasisSystem(backend sparse.Backend) (*sparse.System, error) {
	s := c.shell
	n := len(s.Tets)
	sys, err := sparse.NewSystem(n, n, basisCols, sparse.WithBackend(backend))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSolverFailure, err)
	}
	sys.Reserve(5*s.NumUnknown + s.NumHandles())

	vols := c.restVolumes()
	for i, t := range s.Tets[:s.NumUnknown] {
		var sum float64
		for _, nb := range t.Neighbors {
			if nb != mesh.NoNeighbor {
				sum += vols[nb]
			}
		}
		if err := sys.Add(i, i, -vols[i]); err != nil {
			return nil, err
		}
		if sum == 0 {
			continue
		}
		for _, nb := range t.Neighbors {
			if nb == mesh.NoNeighbor {
				continue
			}
			if err := sys.Add(i, nb, vols[i]*vols[nb]/sum); err != nil {
				return nil, err
			}
		}
	}
	for i := s.NumUnknown; i < n; i++ {
		if err := sys.Add(i, i, 1); err != nil {
			return nil, err
		}
	}

	if err := sys.Factorize(); err != nil {
		return nil, fmt.Errorf("%w: basis system: %w", ErrSolverFailure, err)
	}
	return sys, nil
}

func (c *Corrector) buildVertexSystem(backend sparse.Backend) (*sparse.System, error) {
	s := c.shell
	rows := len(s.Edges) + len(s.Constraints)
	sys, err := sparse.NewSystem(rows, len(s.Vertices), 3, sparse.WithBackend(backend))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSolverFailure, err)
	}
	sys.Reserve(2*len(s.Edges) + len(s.Constraints))

	for i, e := range s.Edges {
		if err := sys.Add(i, s.SolverIndex[e.B], 1); err != nil {
			return nil, err
		}
		if err := sys.Add(i, s.SolverIndex[e.A], -1); err != nil {
			return nil, err
		}
	}
	for k, v := range s.Constraints {
		if err := sys.Add(len(s.Edges)+k, v, c.weight); err != nil {
			return nil, err
		}
	}

	if err := sys.Factorize(); err != nil {
		return nil, fmt.Errorf("%w: vertex system: %w", ErrSolverFailure, err)
	}
	return sys, nil
}

// Update recomputes the outlier positions from the inlier positions in
// positions and writes them back into positions. Nothing is written when an
// error is returned.
func (c *Corrector) Update(positions []r3.Vec) error {
	s := c.shell
	if len(positions) != len(s.Outliers) {
		return fmt.Errorf("%w: %d positions for %d vertices", ErrSizeMismatch, len(positions), len(s.Outliers))
	}
	for _, e := range s.Edges {
		if len(s.EdgeMap[e]) == 0 || len(s.EdgeMap[e.Reversed()]) == 0 {
			return fmt.Errorf("%w: (%d, %d)", ErrEmptyEdgeBucket, e.A, e.B)
		}
	}
	start := time.Now()
	defer c.basis.FreeSolution()
	defer c.vertices.FreeSolution()

	if err := c.solveBases(positions); err != nil {
		return err
	}
	if err := c.solveVertices(positions); err != nil {
		return err
	}

	var moved int
	solved := make([]r3.Vec, len(s.Vertices))
	for i, v := range s.Vertices {
		if !s.Outliers[v] {
			continue
		}
		p := r3.Vec{X: c.vertices.Solution(i, 0), Y: c.vertices.Solution(i, 1), Z: c.vertices.Solution(i, 2)}
		if !cwmath.IsFinite(p) {
			return fmt.Errorf("%w: non-finite position for vertex %d", ErrSolverFailure, v)
		}
		solved[i] = p
		moved++
	}
	for i, v := range s.Vertices {
		if s.Outliers[v] {
			positions[v] = solved[i]
		}
	}

	logger.Named("lri").Debug("outliers corrected",
		zap.Int("vertices", moved),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// solveBases injects the current handle frames and solves for every basis.
func (c *Corrector) solveBases(positions []r3.Vec) error {
	s := c.shell
	for i := 0; i < s.NumUnknown; i++ {
		for k := 0; k < basisCols; k++ {
			if err := c.basis.SetRHS(i, k, 0); err != nil {
				return err
			}
		}
	}
	for h := range c.frames {
		row := s.NumUnknown + h
		if c.restOK[h] {
			cur := meshFrame(s.Tets[row], positions)
			if d := cur.Mul(c.restInv[h]); d.IsFinite() {
				c.frames[h] = d
			}
		}
		for k := 0; k < basisCols; k++ {
			if err := c.basis.SetRHS(row, k, c.frames[h][k]); err != nil {
				return err
			}
		}
	}
	if err := c.basis.Solve(); err != nil {
		return fmt.Errorf("%w: %w", ErrSolverFailure, err)
	}
	for t := range c.bases {
		for k := 0; k < basisCols; k++ {
			c.bases[t][k] = c.basis.Solution(t, k)
		}
	}
	return nil
}

// solveVertices averages the transformed rest edges and solves for the
// vertex positions.
func (c *Corrector) solveVertices(positions []r3.Vec) error {
	s := c.shell
	for i, e := range s.Edges {
		incident := s.EdgeMap[e]
		rest := r3.Sub(s.Rest[s.SolverIndex[e.B]], s.Rest[s.SolverIndex[e.A]])
		var sum r3.Vec
		for _, t := range incident {
			sum = r3.Add(sum, c.bases[t].MulVec(rest))
		}
		avg := r3.Scale(1/float64(len(incident)), sum)
		if err := setRow(c.vertices, i, avg); err != nil {
			return err
		}
	}
	for k, v := range s.Constraints {
		p := r3.Scale(c.weight, positions[s.Vertices[v]])
		if err := setRow(c.vertices, len(s.Edges)+k, p); err != nil {
			return err
		}
	}
	if err := c.vertices.Solve(); err != nil {
		return fmt.Errorf("%w: %w", ErrSolverFailure, err)
	}
	return nil
}

// Free releases both systems.
func (c *Corrector) Free() {
	c.basis.Free()
	c.vertices.Free()
}

func setRow(sys *sparse.System, row int, v r3.Vec) error {
	for k := 0; k < 3; k++ {
		if err := sys.SetRHS(row, k, cwmath.Component(v, k)); err != nil {
			return err
		}
	}
	return nil
}

// edgeFrame returns the matrix whose columns are the edges v3-v0, v1-v0 and
// v2-v0 of t, read from solver-indexed positions.
func edgeFrame(t mesh.Tetrahedron, pos []r3.Vec, index []int) cwmath.Mat3 {
	p := solverCorners(t, pos, index)
	return frameOf(p)
}

// meshFrame is edgeFrame over target-indexed positions.
func meshFrame(t mesh.Tetrahedron, positions []r3.Vec) cwmath.Mat3 {
	return frameOf(t.Corners(positions))
}

func frameOf(p [4]r3.Vec) cwmath.Mat3 {
	return cwmath.Mat3FromCols(r3.Sub(p[3], p[0]), r3.Sub(p[1], p[0]), r3.Sub(p[2], p[0]))
}

func solverCorners(t mesh.Tetrahedron, pos []r3.Vec, index []int) [4]r3.Vec {
	var p [4]r3.Vec
	for k, v := range t.Vertices {
		p[k] = pos[index[v]]
	}
	return p
}
