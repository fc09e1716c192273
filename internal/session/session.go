// Package session exposes bound cages to an application by handle.
//
// Interactive operations never fail loudly: MovePoint and MovePoints log
// what went wrong and return, so a drag is never interrupted.
package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/cagewarp/internal/cage"
	"github.com/Faultbox/cagewarp/internal/logger"
	"github.com/Faultbox/cagewarp/internal/mesh"
)

// ErrUnknownHandle is returned for handles that were never issued or have
// been unbound.
var ErrUnknownHandle = errors.New("session: unknown handle")

// Handle identifies a binding in a Registry. The zero Handle is never
// issued.
type Handle uint32

// Registry owns cage models. Calls are serialized, so one model is never
// used from two goroutines at once.
type Registry struct {
	mu     sync.Mutex
	models map[Handle]*cage.Model
	next   Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[Handle]*cage.Model)}
}

// Bind binds target to cg and returns its handle.
func (r *Registry) Bind(cg *mesh.Surface, target mesh.Target, opts cage.Options) (Handle, error) {
	m, err := cage.Bind(cg, target, opts)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	h := r.next
	r.models[h] = m
	logger.Named("session").Debug("binding registered",
		zap.Uint32("handle", uint32(h)),
		zap.Stringer("method", m.EffectiveMethod()))
	return h, nil
}

// Rebind recomputes the binding at the current mesh positions. On failure
// the previous binding stays in place.
func (r *Registry) Rebind(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.get(h)
	if err != nil {
		return err
	}
	return m.ReInitialize()
}

// Unbind drops a binding. Unknown handles are ignored.
func (r *Registry) Unbind(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.models[h]; ok {
		m.Unbind()
		delete(r.models, h)
	}
}

// MovePoint moves one cage vertex. Failures are logged.
func (r *Registry) MovePoint(h Handle, i int, p r3.Vec) {
	r.MovePoints(h, []int{i}, []r3.Vec{p})
}

// MovePoints moves cage vertices. Failures are logged.
func (r *Registry) MovePoints(h Handle, indices []int, positions []r3.Vec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	log := logger.Named("session")

	m, err := r.get(h)
	if err != nil {
		log.Warn("move ignored", zap.Uint32("handle", uint32(h)), zap.Error(err))
		return
	}
	if err := m.MovePoints(indices, positions); err != nil {
		log.Warn("move failed", zap.Uint32("handle", uint32(h)), zap.Error(err))
	}
}

// Positions returns a snapshot of the deformed target vertices.
func (r *Registry) Positions(h Handle) ([]r3.Vec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.get(h)
	if err != nil {
		return nil, err
	}
	return m.Positions(), nil
}

// IsOutlier reports whether target vertex i of binding h is an outlier.
// Unknown handles report false.
func (r *Registry) IsOutlier(h Handle, i int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.get(h)
	if err != nil {
		return false
	}
	return m.IsOutlier(i)
}

// Model returns the model behind h. The caller must not use it
// concurrently with the registry.
func (r *Registry) Model(h Handle) (*cage.Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(h)
}

// Handles returns the live handles in issue order.
func (r *Registry) Handles() []Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Handle, 0, len(r.models))
	for h := range r.models {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Count returns the number of live bindings.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.models)
}

// Close unbinds everything.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for h, m := range r.models {
		m.Unbind()
		delete(r.models, h)
	}
}

func (r *Registry) get(h Handle) (*cage.Model, error) {
	m, ok := r.models[h]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	return m, nil
}
