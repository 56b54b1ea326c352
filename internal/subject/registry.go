package subject

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/paespro/lectoguia/internal/domain"
)

// Origin names the entry point that produced a change.
type Origin string

const (
	OriginSlug     Origin = "slug"
	OriginTestCode Origin = "test_code"
	OriginLegacyID Origin = "legacy_id"
	OriginValidate Origin = "validate"
	OriginRestore  Origin = "restore"
)

// Change is delivered to subscribers after the identity moved.
type Change struct {
	Previous domain.Identity
	Current  domain.Identity
	Origin   Origin
}

// Listener receives identity changes. It runs synchronously on the
// goroutine that performed the change, after the registry lock is released.
type Listener func(Change)

// Registry is the single owner of the active subject identity.
// All three fields are replaced together under one lock.
type Registry struct {
	mu        sync.RWMutex
	current   domain.Identity
	listeners map[int]Listener
	nextID    int
	logger    *slog.Logger
}

// NewRegistry creates a registry at the default identity.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		current:   domain.DefaultIdentity(),
		listeners: make(map[int]Listener),
		logger:    logger,
	}
}

// Current returns a consistent snapshot of the identity.
func (r *Registry) Current() domain.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// SetBySlug switches to the given slug.
func (r *Registry) SetBySlug(slug domain.Slug) error {
	next, err := domain.IdentityForSlug(slug)
	if err != nil {
		return err
	}
	r.apply(OriginSlug, func(cur domain.Identity) (domain.Identity, bool) {
		return next, cur.Slug != next.Slug
	})
	return nil
}

// SetByTestCode switches to the canonical slug of the given test. Selecting
// the test that is already active keeps the current slug, so from `general`
// COMPETENCIA_LECTORA leaves the slug at `general` rather than the test's
// canonical `lectura`. The slug still maps back to the same test.
func (r *Registry) SetByTestCode(code domain.TestCode) error {
	next, err := domain.IdentityForTest(code)
	if err != nil {
		return err
	}
	r.apply(OriginTestCode, func(cur domain.Identity) (domain.Identity, bool) {
		return next, cur.TestCode != next.TestCode
	})
	return nil
}

// SetByLegacyID switches to the test at the given legacy position.
func (r *Registry) SetByLegacyID(id domain.LegacyTestID) error {
	next, err := domain.IdentityForLegacyID(id)
	if err != nil {
		return err
	}
	r.apply(OriginLegacyID, func(cur domain.Identity) (domain.Identity, bool) {
		return next, cur.TestCode != next.TestCode
	})
	return nil
}

// Validate re-derives the triple from the slug. It returns false when the
// stored test code or legacy id had drifted and had to be restored.
func (r *Registry) Validate() bool {
	r.mu.Lock()
	cur := r.current
	expected, err := domain.IdentityForSlug(cur.Slug)
	if err != nil {
		// The slug itself is corrupt; fall back to the default identity.
		expected = domain.DefaultIdentity()
	}
	if expected == cur {
		r.mu.Unlock()
		return true
	}
	r.current = expected
	listeners := r.snapshotListeners()
	r.mu.Unlock()

	r.logger.Warn("subject identity corrected",
		"stored", cur.String(),
		"restored", expected.String(),
	)
	notify(listeners, Change{Previous: cur, Current: expected, Origin: OriginValidate})
	return false
}

// Restore loads a previously persisted identity. Inconsistent input is
// healed from its slug.
func (r *Registry) Restore(id domain.Identity) error {
	next, err := domain.IdentityForSlug(id.Slug)
	if err != nil {
		return err
	}
	r.apply(OriginRestore, func(cur domain.Identity) (domain.Identity, bool) {
		return next, cur != next
	})
	return nil
}

// Subscribe registers a listener and returns a function removing it.
func (r *Registry) Subscribe(l Listener) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = l
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

func (r *Registry) apply(origin Origin, decide func(domain.Identity) (domain.Identity, bool)) {
	r.mu.Lock()
	prev := r.current
	next, changed := decide(prev)
	if !changed {
		r.mu.Unlock()
		return
	}
	r.current = next
	listeners := r.snapshotListeners()
	r.mu.Unlock()

	r.logger.Debug("subject changed",
		"from", prev.String(),
		"to", next.String(),
		"origin", string(origin),
	)
	notify(listeners, Change{Previous: prev, Current: next, Origin: origin})
}

// snapshotListeners must be called with mu held.
func (r *Registry) snapshotListeners() []Listener {
	ids := make([]int, 0, len(r.listeners))
	for id := range r.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.listeners[id])
	}
	return out
}

func notify(listeners []Listener, c Change) {
	for _, l := range listeners {
		l(c)
	}
}
