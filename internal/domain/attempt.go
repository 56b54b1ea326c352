package domain

import "time"

// ExerciseAttempt records a single answer. Never mutated after creation.
type ExerciseAttempt struct {
	ID             string        `json:"id"`
	ExerciseID     string        `json:"exercise_id"`
	UserID         string        `json:"user_id"`
	SelectedOption string        `json:"selected_option"`
	IsCorrect      bool          `json:"is_correct"`
	Skill          Skill         `json:"skill"`
	TestCode       TestCode      `json:"test_code"`
	Source         Source        `json:"source"`
	TimeTaken      time.Duration `json:"time_taken,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}

// RecentStats summarizes the latest attempts of a user.
type RecentStats struct {
	TotalQuestions int     `json:"total_questions"`
	CorrectAnswers int     `json:"correct_answers"`
	Accuracy       float64 `json:"accuracy"`
}

// SkillProgress aggregates attempts for one skill.
type SkillProgress struct {
	Total    int     `json:"total"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

// Accuracy returns correct/total as a percentage, or 0 when total is 0.
func Accuracy(correct, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total) * 100
}

// Severity of a user-facing notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is a toast-equivalent message for the user.
type Notification struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	UserID      string   `json:"user_id,omitempty"`
}

// ProficiencyRule describes how a skill estimate moves after an answer.
type ProficiencyRule struct {
	CorrectDelta   float64 `json:"correct_delta" yaml:"correct_delta"`
	IncorrectDelta float64 `json:"incorrect_delta" yaml:"incorrect_delta"`
	Initial        float64 `json:"initial" yaml:"initial"`
}

// DefaultProficiencyRule rises by 0.05 and falls by 0.03.
func DefaultProficiencyRule() ProficiencyRule {
	return ProficiencyRule{CorrectDelta: 0.05, IncorrectDelta: 0.03, Initial: 0.5}
}

// Apply returns the level after one answer, clamped to [0, 1].
func (r ProficiencyRule) Apply(level float64, correct bool) float64 {
	if correct {
		return min(1.0, level+r.CorrectDelta)
	}
	return max(0.0, level-r.IncorrectDelta)
}
