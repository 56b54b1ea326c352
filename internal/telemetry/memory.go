// Package telemetry holds an in-process attempt store.
package telemetry

import (
	"context"
	"sync"

	"github.com/paespro/lectoguia/internal/domain"
	"github.com/paespro/lectoguia/internal/sourcing"
)

var (
	_ sourcing.TelemetryStore  = (*MemoryStore)(nil)
	_ sourcing.ProficiencyEcho = (*MemoryStore)(nil)
)

// MemoryStore keeps attempts per user in insertion order.
type MemoryStore struct {
	rule domain.ProficiencyRule

	mu       sync.RWMutex
	attempts map[string][]*domain.ExerciseAttempt
	seen     map[string]struct{}
	levels   map[string]map[domain.Skill]float64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(rule domain.ProficiencyRule) *MemoryStore {
	return &MemoryStore{
		rule:     rule,
		attempts: make(map[string][]*domain.ExerciseAttempt),
		seen:     make(map[string]struct{}),
		levels:   make(map[string]map[domain.Skill]float64),
	}
}

// RecordAttempt appends the attempt. Duplicate ids are ignored.
func (s *MemoryStore) RecordAttempt(ctx context.Context, a *domain.ExerciseAttempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen[a.ID]; dup {
		return nil
	}
	s.seen[a.ID] = struct{}{}

	cp := *a
	s.attempts[a.UserID] = append(s.attempts[a.UserID], &cp)

	levels, ok := s.levels[a.UserID]
	if !ok {
		levels = make(map[domain.Skill]float64)
		s.levels[a.UserID] = levels
	}
	current, ok := levels[a.Skill]
	if !ok {
		current = s.rule.Initial
	}
	levels[a.Skill] = s.rule.Apply(current, a.IsCorrect)
	return nil
}

// RecentStats summarizes the latest limit attempts. limit <= 0 means all.
func (s *MemoryStore) RecentStats(_ context.Context, userID string, limit int) (*domain.RecentStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.attempts[userID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}

	correct := 0
	for _, a := range all {
		if a.IsCorrect {
			correct++
		}
	}
	return &domain.RecentStats{
		TotalQuestions: len(all),
		CorrectAnswers: correct,
		Accuracy:       domain.Accuracy(correct, len(all)),
	}, nil
}

// ProgressBySkill aggregates a user's attempts per skill.
func (s *MemoryStore) ProgressBySkill(_ context.Context, userID string) (map[domain.Skill]domain.SkillProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[domain.Skill]domain.SkillProgress)
	for _, a := range s.attempts[userID] {
		p := out[a.Skill]
		p.Total++
		if a.IsCorrect {
			p.Correct++
		}
		out[a.Skill] = p
	}
	for skill, p := range out {
		p.Accuracy = domain.Accuracy(p.Correct, p.Total)
		out[skill] = p
	}
	return out, nil
}

// SkillLevel returns the level derived from recorded attempts.
func (s *MemoryStore) SkillLevel(_ context.Context, userID string, skill domain.Skill) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	level, ok := s.levels[userID][skill]
	return level, ok, nil
}

// Attempts returns a copy of a user's attempts, oldest first.
func (s *MemoryStore) Attempts(userID string) []domain.ExerciseAttempt {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ExerciseAttempt, 0, len(s.attempts[userID]))
	for _, a := range s.attempts[userID] {
		out = append(out, *a)
	}
	return out
}
