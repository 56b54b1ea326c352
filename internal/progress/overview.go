// Package progress builds per-user progress overviews from attempt telemetry.
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/paespro/lectoguia/internal/domain"
	"github.com/paespro/lectoguia/internal/sourcing"
)

// Mastery labels
const (
	MasteryNeedsPractice = "necesita práctica"
	MasteryInProgress    = "en progreso"
	MasteryMastered      = "dominado"
)

// Overview aggregates a user's practice.
type Overview struct {
	UserID         string          `json:"user_id"`
	TestCode       domain.TestCode `json:"test_code,omitempty"`
	TotalQuestions int             `json:"total_questions"`
	CorrectAnswers int             `json:"correct_answers"`
	Accuracy       float64         `json:"accuracy"`
	Skills         []SkillStat     `json:"skills"`
	Recommendation *Recommendation `json:"recommendation,omitempty"`
}

// SkillStat is one skill of the overview.
type SkillStat struct {
	Skill    domain.Skill `json:"skill"`
	Name     string       `json:"name"`
	Attempts int          `json:"attempts"`
	Correct  int          `json:"correct"`
	Accuracy float64      `json:"accuracy"`
	Level    float64      `json:"level"`
	Mastery  string       `json:"mastery"`
}

// Recommendation names the skill to practice next.
type Recommendation struct {
	Skill  domain.Skill `json:"skill"`
	Reason string       `json:"reason"`
}

// LevelSource reports the live proficiency estimates of a user.
type LevelSource interface {
	Levels(userID string) map[domain.Skill]float64
}

// Service builds overviews.
type Service struct {
	telemetry sourcing.TelemetryStore
	levels    LevelSource
	initial   float64
	logger    *slog.Logger
}

// NewService creates a progress service. levels may be nil, in which case
// skills without a stored level report initial.
func NewService(telemetry sourcing.TelemetryStore, levels LevelSource, initial float64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		telemetry: telemetry,
		levels:    levels,
		initial:   initial,
		logger:    logger,
	}
}

// Overview returns the progress of userID. When test is set, every skill of
// that test is listed, practiced or not, and other skills are left out.
func (s *Service) Overview(ctx context.Context, userID string, test domain.TestCode) (*Overview, error) {
	if s.telemetry == nil {
		return nil, fmt.Errorf("no telemetry store configured")
	}

	stats, err := s.telemetry.RecentStats(ctx, userID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}
	bySkill, err := s.telemetry.ProgressBySkill(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load skill progress: %w", err)
	}

	levels := map[domain.Skill]float64{}
	if s.levels != nil {
		levels = s.levels.Levels(userID)
	}
	if echo, ok := s.telemetry.(sourcing.ProficiencyEcho); ok {
		for skill := range bySkill {
			if _, known := levels[skill]; known {
				continue
			}
			level, found, err := echo.SkillLevel(ctx, userID, skill)
			if err != nil {
				s.logger.Debug("stored skill level unavailable", "user_id", userID, "skill", skill, "error", err)
				continue
			}
			if found {
				levels[skill] = level
			}
		}
	}

	overview := &Overview{
		UserID:         userID,
		TestCode:       test,
		TotalQuestions: stats.TotalQuestions,
		CorrectAnswers: stats.CorrectAnswers,
		Accuracy:       stats.Accuracy,
		Skills:         []SkillStat{},
	}

	for _, skill := range s.skillSet(test, bySkill, levels) {
		p := bySkill[skill]
		level, ok := levels[skill]
		if !ok {
			level = s.initial
		}
		overview.Skills = append(overview.Skills, SkillStat{
			Skill:    skill,
			Name:     skill.DisplayName(),
			Attempts: p.Total,
			Correct:  p.Correct,
			Accuracy: p.Accuracy,
			Level:    level,
			Mastery:  MasteryLabel(level),
		})
	}

	sortWeakestFirst(overview.Skills)
	overview.Recommendation = recommend(overview.Skills)
	return overview, nil
}

func (s *Service) skillSet(test domain.TestCode, bySkill map[domain.Skill]domain.SkillProgress, levels map[domain.Skill]float64) []domain.Skill {
	if test != "" {
		return domain.SkillsFor(test)
	}
	seen := make(map[domain.Skill]bool)
	var out []domain.Skill
	for skill := range bySkill {
		seen[skill] = true
		out = append(out, skill)
	}
	for skill := range levels {
		if !seen[skill] {
			out = append(out, skill)
		}
	}
	return out
}

// MasteryLabel maps a proficiency level to its label.
func MasteryLabel(level float64) string {
	switch {
	case level < 0.4:
		return MasteryNeedsPractice
	case level < 0.7:
		return MasteryInProgress
	default:
		return MasteryMastered
	}
}

// sortWeakestFirst orders by level, then accuracy, then fewest attempts.
func sortWeakestFirst(skills []SkillStat) {
	sort.SliceStable(skills, func(i, j int) bool {
		a, b := skills[i], skills[j]
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		if a.Accuracy != b.Accuracy {
			return a.Accuracy < b.Accuracy
		}
		if a.Attempts != b.Attempts {
			return a.Attempts < b.Attempts
		}
		return a.Skill < b.Skill
	})
}

func recommend(sorted []SkillStat) *Recommendation {
	if len(sorted) == 0 {
		return nil
	}
	weakest := sorted[0]

	var reason string
	switch {
	case weakest.Attempts == 0:
		reason = fmt.Sprintf("Aún no practicas %s.", weakest.Name)
	case weakest.Mastery == MasteryMastered:
		reason = fmt.Sprintf("Todas tus habilidades están dominadas; repasa %s.", weakest.Name)
	default:
		reason = fmt.Sprintf("%s es tu habilidad más débil (%.0f%% de aciertos).", weakest.Name, weakest.Accuracy)
	}
	return &Recommendation{Skill: weakest.Skill, Reason: reason}
}
