package domain

import (
	"fmt"
	"slices"
	"time"
)

// Source tells where an exercise came from.
type Source string

const (
	SourceOfficial  Source = "official"
	SourceGenerated Source = "generated"
)

// Exercise is a normalized practice question. It is immutable once returned
// by the sourcing pipeline.
type Exercise struct {
	ID             string     `json:"id"`
	TestCode       TestCode   `json:"test_code"`
	Skill          Skill      `json:"skill"`
	Difficulty     Difficulty `json:"difficulty"`
	Question       string     `json:"question"`
	Options        []string   `json:"options"`
	CorrectAnswer  string     `json:"correct_answer"`
	Explanation    string     `json:"explanation"`
	Source         Source     `json:"source"`
	ExamCode       string     `json:"exam_code,omitempty"`
	QuestionNumber int        `json:"question_number,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Validate checks the structural invariants of an exercise.
func (e *Exercise) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidExercise)
	}
	if len(e.Options) < 2 {
		return fmt.Errorf("%w: %d options", ErrInvalidExercise, len(e.Options))
	}
	if !slices.Contains(e.Options, e.CorrectAnswer) {
		return fmt.Errorf("%w: correct answer %q not among options", ErrInvalidExercise, e.CorrectAnswer)
	}
	if e.Explanation == "" {
		return fmt.Errorf("%w: missing explanation", ErrInvalidExercise)
	}
	return nil
}

// OptionAt returns the option at index i.
func (e *Exercise) OptionAt(i int) (string, error) {
	if i < 0 || i >= len(e.Options) {
		return "", fmt.Errorf("%w: index %d of %d", ErrInvalidOption, i, len(e.Options))
	}
	return e.Options[i], nil
}

// CorrectIndex returns the position of the correct answer, or -1.
func (e *Exercise) CorrectIndex() int {
	return slices.Index(e.Options, e.CorrectAnswer)
}

// Letter returns the option letter (A, B, ...) for index i.
func Letter(i int) string {
	return string(rune('A' + i))
}

// RawOption is an answer alternative as stored in the official bank.
type RawOption struct {
	ID        string `json:"id" yaml:"id"`
	Text      string `json:"text" yaml:"text"`
	IsCorrect bool   `json:"is_correct" yaml:"correct"`
}

// RawQuestion is a question as stored in the official bank.
type RawQuestion struct {
	ID          string      `json:"id"`
	Number      int         `json:"number"`
	PromptText  string      `json:"prompt_text"`
	ContextText string      `json:"context_text,omitempty"`
	Difficulty  Difficulty  `json:"difficulty,omitempty"`
	Options     []RawOption `json:"options"`
}

// GenerationRequest is sent to the external exercise generator.
type GenerationRequest struct {
	Skill              Skill      `json:"skill"`
	TestCode           TestCode   `json:"test_code"`
	Difficulty         Difficulty `json:"difficulty"`
	Subject            string     `json:"subject"`
	IncludeExplanation bool       `json:"include_explanation"`
}

// GeneratedExercise is the loosely shaped generator response. Any field may be empty.
type GeneratedExercise struct {
	Context       string   `json:"text,omitempty"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Explanation   string   `json:"explanation"`
}
