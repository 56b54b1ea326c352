// Package practice tracks per-user practice sessions: the active subject and
// the exercise currently waiting for an answer.
package practice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/paespro/lectoguia/internal/domain"
	"github.com/paespro/lectoguia/internal/sourcing"
	"github.com/paespro/lectoguia/internal/subject"
)

// ErrExerciseNotFound is returned for an exercise id the session never issued.
var ErrExerciseNotFound = errors.New("exercise not found")

// supersededLimit bounds how many replaced exercise ids a session remembers.
const supersededLimit = 32

// Result is the outcome of a submitted answer.
type Result struct {
	ExerciseID    string       `json:"exercise_id"`
	Selected      string       `json:"selected"`
	IsCorrect     bool         `json:"is_correct"`
	CorrectAnswer string       `json:"correct_answer"`
	Feedback      string       `json:"feedback"`
	Skill         domain.Skill `json:"skill"`
	Proficiency   float64      `json:"proficiency"`
}

// Session is the practice state of one user.
type Session struct {
	userID   string
	registry *subject.Registry
	pipeline *sourcing.Pipeline
	logger   *slog.Logger
	now      func() time.Time

	mu         sync.Mutex
	pending    *domain.Exercise
	issuedAt   time.Time
	epoch      uint64
	superseded []string

	unsubscribe func()
}

func newSession(userID string, pipeline *sourcing.Pipeline, logger *slog.Logger) *Session {
	return &Session{
		userID:   userID,
		registry: subject.NewRegistry(logger.With("user_id", userID)),
		pipeline: pipeline,
		logger:   logger,
		now:      time.Now,
	}
}

// UserID returns the owner of the session.
func (s *Session) UserID() string {
	return s.userID
}

// Identity returns the active subject.
func (s *Session) Identity() domain.Identity {
	return s.registry.Current()
}

// Registry exposes the subject registry of the session.
func (s *Session) Registry() *subject.Registry {
	return s.registry
}

// SetSubject switches by slug.
func (s *Session) SetSubject(slug domain.Slug) error {
	return s.registry.SetBySlug(slug)
}

// SetTestCode switches by test code.
func (s *Session) SetTestCode(code domain.TestCode) error {
	return s.registry.SetByTestCode(code)
}

// SetLegacyID switches by legacy numeric test id.
func (s *Session) SetLegacyID(id domain.LegacyTestID) error {
	return s.registry.SetByLegacyID(id)
}

// Validate heals a drifted identity. See subject.Registry.Validate.
func (s *Session) Validate() bool {
	return s.registry.Validate()
}

// onSubjectChange drops the pending exercise, which belongs to the old subject.
func (s *Session) onSubjectChange(c subject.Change) {
	s.mu.Lock()
	s.epoch++
	if s.pending != nil {
		s.supersede(s.pending.ID)
		s.pending = nil
	}
	s.mu.Unlock()

	s.logger.Info("subject changed",
		"user_id", s.userID,
		"from", c.Previous.Slug,
		"to", c.Current.Slug,
		"origin", string(c.Origin),
	)
}

// RequestExercise sources an exercise for the active subject and makes it the
// pending one. The most recently resolved request wins; an exercise resolved
// for a subject that changed meanwhile is discarded with ErrStaleExercise.
func (s *Session) RequestExercise(ctx context.Context, hint domain.Skill) (*domain.Exercise, error) {
	return s.issue(func(id domain.Identity) (*domain.Exercise, error) {
		return s.pipeline.RequestExercise(ctx, id, hint)
	})
}

// RandomOfficial serves any question of the subject's official exam.
func (s *Session) RandomOfficial(ctx context.Context) (*domain.Exercise, error) {
	return s.issue(func(id domain.Identity) (*domain.Exercise, error) {
		return s.pipeline.RandomOfficial(ctx, id)
	})
}

func (s *Session) issue(source func(domain.Identity) (*domain.Exercise, error)) (*domain.Exercise, error) {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	ex, err := source(s.registry.Current())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		s.supersede(ex.ID)
		return nil, fmt.Errorf("%w: subject changed while sourcing %s", domain.ErrStaleExercise, ex.ID)
	}
	if s.pending != nil && s.pending.ID != ex.ID {
		s.supersede(s.pending.ID)
	}
	s.pending = ex
	s.issuedAt = s.now()
	return ex, nil
}

// supersede must be called with mu held.
func (s *Session) supersede(id string) {
	s.superseded = append(s.superseded, id)
	if len(s.superseded) > supersededLimit {
		s.superseded = s.superseded[len(s.superseded)-supersededLimit:]
	}
}

func (s *Session) wasSuperseded(id string) bool {
	for _, old := range s.superseded {
		if old == id {
			return true
		}
	}
	return false
}

// Pending returns the exercise awaiting an answer, or nil.
func (s *Session) Pending() *domain.Exercise {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Submit grades selected against the pending exercise.
func (s *Session) Submit(ctx context.Context, exerciseID, selected string) (*Result, error) {
	return s.submit(ctx, exerciseID, func(ex *domain.Exercise, sub sourcing.Submission) (string, bool, error) {
		sub.Selected = selected
		ok, err := s.pipeline.SubmitAnswer(ctx, sub)
		return selected, ok, err
	})
}

// SubmitIndex grades the option at index of the pending exercise.
func (s *Session) SubmitIndex(ctx context.Context, exerciseID string, index int) (*Result, error) {
	return s.submit(ctx, exerciseID, func(ex *domain.Exercise, sub sourcing.Submission) (string, bool, error) {
		selected, err := ex.OptionAt(index)
		if err != nil {
			return "", false, err
		}
		ok, err := s.pipeline.SubmitOptionIndex(ctx, sub, index)
		return selected, ok, err
	})
}

type grader func(ex *domain.Exercise, sub sourcing.Submission) (string, bool, error)

func (s *Session) submit(ctx context.Context, exerciseID string, grade grader) (*Result, error) {
	s.mu.Lock()
	ex := s.pending
	if ex == nil || ex.ID != exerciseID {
		err := s.lookupErr(exerciseID)
		s.mu.Unlock()
		return nil, err
	}
	taken := s.now().Sub(s.issuedAt)
	s.mu.Unlock()

	selected, correct, err := grade(ex, sourcing.Submission{
		UserID:    s.userID,
		Exercise:  ex,
		TimeTaken: taken,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.pending != nil && s.pending.ID == ex.ID {
		s.pending = nil
	}
	s.mu.Unlock()

	return &Result{
		ExerciseID:    ex.ID,
		Selected:      selected,
		IsCorrect:     correct,
		CorrectAnswer: ex.CorrectAnswer,
		Feedback:      sourcing.Feedback(ex, correct),
		Skill:         ex.Skill,
		Proficiency:   s.pipeline.Proficiency(s.userID, ex.Skill),
	}, nil
}

// lookupErr must be called with mu held.
func (s *Session) lookupErr(exerciseID string) error {
	switch {
	case s.pipeline.Answered(exerciseID):
		return fmt.Errorf("%w: %s", domain.ErrAlreadyAnswered, exerciseID)
	case s.wasSuperseded(exerciseID):
		return fmt.Errorf("%w: %s", domain.ErrStaleExercise, exerciseID)
	default:
		return fmt.Errorf("%w: %s", ErrExerciseNotFound, exerciseID)
	}
}
