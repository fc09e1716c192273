// Package sparse solves overdetermined linear systems A x = b in the least
// squares sense through the normal equations A^T A x = A^T b.
//
// The pattern and values of A are fixed once Factorize has run; only the
// right-hand sides change between solves. This is the shape of a per-frame
// correction: factor once at bind time, then solve many times.
package sparse

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/cagewarp/internal/logger"
)

var (
	// ErrNotPositiveDefinite is returned when A^T A cannot be factored,
	// which means A does not have full column rank.
	ErrNotPositiveDefinite = errors.New("sparse: normal matrix is not positive definite")
	// ErrOutOfBounds is returned for entries outside the system dimensions.
	ErrOutOfBounds = errors.New("sparse: index out of bounds")
	// ErrFrozen is returned by Add after Factorize.
	ErrFrozen = errors.New("sparse: matrix is frozen after factorization")
	// ErrNotFactorized is returned by Solve before Factorize.
	ErrNotFactorized = errors.New("sparse: system is not factorized")
	// ErrFreed is returned by every call on a system after Free.
	ErrFreed = errors.New("sparse: system has been freed")
	// ErrUnknownBackend is returned by ParseBackend.
	ErrUnknownBackend = errors.New("sparse: unknown backend")
)

// Backend selects the factorization used for A^T A.
type Backend int

const (
	// BackendLDL is a sparse LDL^T factorization under a reverse
	// Cuthill-McKee ordering.
	BackendLDL Backend = iota
	// BackendDense is a dense Cholesky factorization.
	BackendDense
)

func (b Backend) String() string {
	switch b {
	case BackendLDL:
		return "ldl"
	case BackendDense:
		return "dense"
	default:
		return fmt.Sprintf("Backend(%d)", int(b))
	}
}

// ParseBackend parses a backend name as written in configuration.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ldl", "sparse":
		return BackendLDL, nil
	case "dense", "cholesky":
		return BackendDense, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownBackend, s)
}

// Option configures a System.
type Option func(*System)

// WithBackend selects the factorization backend.
func WithBackend(b Backend) Option {
	return func(s *System) { s.backend = b }
}

type factorization interface {
	solve(x []float64)
	nnz() int
}

// System is a rows x cols least squares system with rhsCols right-hand
// sides. The right-hand side and the solution are stored column-major.
type System struct {
	rows, cols, rhsCols int
	backend             Backend

	ti, tj []int
	tv     []float64

	a      *csc
	factor factorization

	rhs []float64
	sol []float64

	freed bool
}

// NewSystem creates an empty system.
func NewSystem(rows, cols, rhsCols int, opts ...Option) (*System, error) {
	if rows <= 0 || cols <= 0 || rhsCols <= 0 {
		return nil, fmt.Errorf("sparse: invalid dimensions %dx%d with %d right-hand sides", rows, cols, rhsCols)
	}
	s := &System{
		rows:    rows,
		cols:    cols,
		rhsCols: rhsCols,
		rhs:     make([]float64, rows*rhsCols),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Rows returns the number of equations.
func (s *System) Rows() int { return s.rows }

// Cols returns the number of unknowns.
func (s *System) Cols() int { return s.cols }

// RHSCols returns the number of right-hand sides.
func (s *System) RHSCols() int { return s.rhsCols }

// Backend returns the configured backend.
func (s *System) Backend() Backend { return s.backend }

// Reserve grows the triplet storage for nnz more entries.
func (s *System) Reserve(nnz int) {
	if nnz <= 0 {
		return
	}
	s.ti = append(make([]int, 0, len(s.ti)+nnz), s.ti...)
	s.tj = append(make([]int, 0, len(s.tj)+nnz), s.tj...)
	s.tv = append(make([]float64, 0, len(s.tv)+nnz), s.tv...)
}

// Add accumulates v into A[i][j]. Repeated entries are summed.
func (s *System) Add(i, j int, v float64) error {
	if s.freed {
		return ErrFreed
	}
	if s.a != nil {
		return ErrFrozen
	}
	if i < 0 || i >= s.rows || j < 0 || j >= s.cols {
		return fmt.Errorf("%w: entry (%d, %d) in %dx%d", ErrOutOfBounds, i, j, s.rows, s.cols)
	}
	s.ti = append(s.ti, i)
	s.tj = append(s.tj, j)
	s.tv = append(s.tv, v)
	return nil
}

// Factorize forms A^T A and factors it. It may be called once.
func (s *System) Factorize() error {
	if s.freed {
		return ErrFreed
	}
	if s.a != nil {
		return ErrFrozen
	}
	start := time.Now()

	a := compress(s.rows, s.cols, s.ti, s.tj, s.tv)
	c := normal(a, a.transpose())

	var (
		f   factorization
		err error
	)
	switch s.backend {
	case BackendDense:
		f, err = factorDense(c)
	default:
		var l *ldl
		l, err = factorLDL(c, rcm(c))
		f = l
	}
	if err != nil {
		return err
	}

	s.a = a
	s.factor = f
	s.ti, s.tj, s.tv = nil, nil, nil

	logger.Named("sparse").Debug("system factorized",
		zap.Stringer("backend", s.backend),
		zap.Int("rows", s.rows),
		zap.Int("cols", s.cols),
		zap.Int("nnz", len(a.x)),
		zap.Int("factor_nnz", f.nnz()),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Factorized reports whether Factorize has succeeded.
func (s *System) Factorized() bool { return s.factor != nil }

// SetRHS sets b[i] of right-hand side column c. The right-hand side does
// not depend on A, so it may be filled before Factorize.
func (s *System) SetRHS(i, c int, v float64) error {
	if s.freed {
		return ErrFreed
	}
	if i < 0 || i >= s.rows || c < 0 || c >= s.rhsCols {
		return fmt.Errorf("%w: rhs (%d, %d) in %dx%d", ErrOutOfBounds, i, c, s.rows, s.rhsCols)
	}
	s.rhs[c*s.rows+i] = v
	return nil
}

// Solve solves every right-hand side column.
func (s *System) Solve() error {
	if s.freed {
		return ErrFreed
	}
	if s.factor == nil {
		return ErrNotFactorized
	}
	if s.sol == nil {
		s.sol = make([]float64, s.cols*s.rhsCols)
	}
	for c := 0; c < s.rhsCols; c++ {
		x := s.sol[c*s.cols : (c+1)*s.cols]
		s.a.mulTransVec(x, s.rhs[c*s.rows:(c+1)*s.rows])
		s.factor.solve(x)
	}
	return nil
}

// Solution returns x[i] of column c from the last Solve. It panics when
// called without a solution or with out of range indices.
func (s *System) Solution(i, c int) float64 {
	if s.sol == nil {
		panic("sparse: Solution called before Solve")
	}
	if i < 0 || i >= s.cols || c < 0 || c >= s.rhsCols {
		panic(fmt.Sprintf("sparse: solution index (%d, %d) out of range %dx%d", i, c, s.cols, s.rhsCols))
	}
	return s.sol[c*s.cols+i]
}

// FreeSolution releases the solution buffer. The factorization is kept.
func (s *System) FreeSolution() { s.sol = nil }

// Free releases everything. The system is unusable afterwards.
func (s *System) Free() {
	s.ti, s.tj, s.tv = nil, nil, nil
	s.a = nil
	s.factor = nil
	s.rhs = nil
	s.sol = nil
	s.freed = true
}
