package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownSubject      = errors.New("unknown subject")
	ErrUnknownTestCode     = errors.New("unknown test code")
	ErrUnknownLegacyID     = errors.New("unknown legacy test id")
	ErrUnknownSkill        = errors.New("unknown skill")
	ErrUnknownDifficulty   = errors.New("unknown difficulty")
	ErrExerciseUnavailable = errors.New("exercise unavailable")
	ErrAlreadyAnswered     = errors.New("exercise already answered")
	ErrInvalidOption       = errors.New("invalid option")
	ErrStaleExercise       = errors.New("exercise superseded by a newer one")
	ErrInvalidExercise     = errors.New("invalid exercise")
)

// UnknownValueError reports a value outside one of the closed sets.
// Kind is one of the ErrUnknown* sentinels.
type UnknownValueError struct {
	Kind  error
	Value string
}

func (e *UnknownValueError) Error() string {
	return fmt.Sprintf("%v: %q", e.Kind, e.Value)
}

func (e *UnknownValueError) Unwrap() error {
	return e.Kind
}

// PersistenceWarning is raised when an attempt could not be recorded.
// It never affects the correctness result already returned to the caller.
type PersistenceWarning struct {
	AttemptID  string
	ExerciseID string
	UserID     string
	Err        error
}

func (w *PersistenceWarning) Error() string {
	return fmt.Sprintf("attempt %s for exercise %s not persisted: %v", w.AttemptID, w.ExerciseID, w.Err)
}

func (w *PersistenceWarning) Unwrap() error {
	return w.Err
}
