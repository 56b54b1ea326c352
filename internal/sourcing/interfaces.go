package sourcing

import (
	"context"

	"github.com/paespro/lectoguia/internal/domain"
)

// OfficialContentStore serves questions from previously administered exams.
// A nil question with a nil error means none matched.
type OfficialContentStore interface {
	ExamExists(ctx context.Context, examCode string) (bool, error)
	QuestionByDifficulty(ctx context.Context, examCode string, difficulty domain.Difficulty) (*domain.RawQuestion, error)
	RandomQuestion(ctx context.Context, examCode string) (*domain.RawQuestion, error)
}

// GenerationService synthesizes a practice exercise.
type GenerationService interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GeneratedExercise, error)
}

// TelemetryStore persists attempts and aggregates them.
type TelemetryStore interface {
	RecordAttempt(ctx context.Context, attempt *domain.ExerciseAttempt) error
	RecentStats(ctx context.Context, userID string, limit int) (*domain.RecentStats, error)
	ProgressBySkill(ctx context.Context, userID string) (map[domain.Skill]domain.SkillProgress, error)
}

// ProficiencyEcho is implemented by stores that keep an authoritative
// per-skill level. When present, its value replaces the local estimate.
type ProficiencyEcho interface {
	SkillLevel(ctx context.Context, userID string, skill domain.Skill) (float64, bool, error)
}

// NotificationSink delivers user-facing messages. Fire-and-forget.
type NotificationSink interface {
	Notify(ctx context.Context, n domain.Notification)
}
