package practice

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/paespro/lectoguia/internal/domain"
	"github.com/paespro/lectoguia/internal/sourcing"
	"github.com/paespro/lectoguia/internal/subject"
)

// ErrMissingUser is returned for an empty user id.
var ErrMissingUser = errors.New("missing user id")

// IdentityStore persists the active subject per user.
type IdentityStore interface {
	SaveIdentity(ctx context.Context, userID string, id domain.Identity) error
	LoadIdentity(ctx context.Context, userID string) (domain.Identity, bool, error)
}

// Manager owns the sessions of every user.
type Manager struct {
	pipeline    *sourcing.Pipeline
	identities  IdentityStore
	logger      *slog.Logger
	saveTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a manager. identities may be nil.
func NewManager(pipeline *sourcing.Pipeline, identities IdentityStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		pipeline:    pipeline,
		identities:  identities,
		logger:      logger,
		saveTimeout: 5 * time.Second,
		sessions:    make(map[string]*Session),
	}
}

// Session returns the session of userID, creating it on first use. A stored
// identity is restored into the new session.
func (m *Manager) Session(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[userID]; ok {
		return s, nil
	}

	s := newSession(userID, m.pipeline, m.logger)
	if m.identities != nil {
		id, found, err := m.identities.LoadIdentity(ctx, userID)
		switch {
		case err != nil:
			m.logger.Warn("failed to load subject", "user_id", userID, "error", err)
		case found:
			if err := s.registry.Restore(id); err != nil {
				m.logger.Warn("stored subject rejected", "user_id", userID, "subject", id.Slug, "error", err)
			}
		}
	}

	s.unsubscribe = s.registry.Subscribe(func(c subject.Change) {
		s.onSubjectChange(c)
		m.saveIdentity(userID, c.Current)
	})

	m.sessions[userID] = s
	m.logger.Debug("session created", "user_id", userID, "subject", s.Identity().Slug)
	return s, nil
}

func (m *Manager) saveIdentity(userID string, id domain.Identity) {
	if m.identities == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.saveTimeout)
	defer cancel()
	if err := m.identities.SaveIdentity(ctx, userID, id); err != nil {
		m.logger.Warn("failed to save subject", "user_id", userID, "subject", id.Slug, "error", err)
	}
}

// Users lists users with a live session.
func (m *Manager) Users() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close detaches every session from its registry.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		delete(m.sessions, id)
	}
}
