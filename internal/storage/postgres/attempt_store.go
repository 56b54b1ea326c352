package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paespro/lectoguia/internal/domain"
	"github.com/paespro/lectoguia/internal/sourcing"
)

var (
	_ sourcing.OfficialContentStore = (*ExamStore)(nil)
	_ sourcing.TelemetryStore       = (*AttemptStore)(nil)
	_ sourcing.ProficiencyEcho      = (*AttemptStore)(nil)
)

// AttemptStore persists attempts in user_exercise_attempts and keeps
// authoritative levels in user_skill_levels.
type AttemptStore struct {
	pool *pgxpool.Pool
	rule domain.ProficiencyRule
}

// NewAttemptStore creates an attempt store.
func NewAttemptStore(pool *pgxpool.Pool, rule domain.ProficiencyRule) *AttemptStore {
	return &AttemptStore{pool: pool, rule: rule}
}

// RecordAttempt inserts the attempt and moves the skill level atomically.
// Redelivered attempts are ignored.
func (s *AttemptStore) RecordAttempt(ctx context.Context, a *domain.ExerciseAttempt) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin attempt tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO user_exercise_attempts (id, exercise_id, user_id, selected_option,
			is_correct, skill, test_code, source, time_taken_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		a.ID, a.ExerciseID, a.UserID, a.SelectedOption,
		a.IsCorrect, string(a.Skill), string(a.TestCode), string(a.Source),
		a.TimeTaken.Milliseconds(), a.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tx.Commit(ctx)
	}

	level := s.rule.Initial
	err = tx.QueryRow(ctx, `
		SELECT level FROM user_skill_levels
		WHERE user_id = $1 AND skill = $2
		FOR UPDATE`, a.UserID, string(a.Skill)).Scan(&level)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("read skill level: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO user_skill_levels (user_id, skill, level, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, skill) DO UPDATE SET
			level = EXCLUDED.level,
			updated_at = EXCLUDED.updated_at`,
		a.UserID, string(a.Skill), s.rule.Apply(level, a.IsCorrect))
	if err != nil {
		return fmt.Errorf("upsert skill level: %w", err)
	}

	return tx.Commit(ctx)
}

// RecentStats summarizes the latest limit attempts. limit <= 0 means all.
func (s *AttemptStore) RecentStats(ctx context.Context, userID string, limit int) (*domain.RecentStats, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}

	var total, correct int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE is_correct) FROM (
			SELECT is_correct FROM user_exercise_attempts
			WHERE user_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent`, userID, lim).Scan(&total, &correct)
	if err != nil {
		return nil, fmt.Errorf("query recent stats: %w", err)
	}

	return &domain.RecentStats{
		TotalQuestions: total,
		CorrectAnswers: correct,
		Accuracy:       domain.Accuracy(correct, total),
	}, nil
}

// ProgressBySkill aggregates every attempt of a user per skill.
func (s *AttemptStore) ProgressBySkill(ctx context.Context, userID string) (map[domain.Skill]domain.SkillProgress, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT skill, COUNT(*), COUNT(*) FILTER (WHERE is_correct)
		FROM user_exercise_attempts
		WHERE user_id = $1
		GROUP BY skill`, userID)
	if err != nil {
		return nil, fmt.Errorf("query skill progress: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.Skill]domain.SkillProgress)
	for rows.Next() {
		var skill string
		var total, correct int
		if err := rows.Scan(&skill, &total, &correct); err != nil {
			return nil, fmt.Errorf("scan skill progress: %w", err)
		}
		out[domain.Skill(skill)] = domain.SkillProgress{
			Total:    total,
			Correct:  correct,
			Accuracy: domain.Accuracy(correct, total),
		}
	}
	return out, rows.Err()
}

// SkillLevel returns the stored level for a user's skill.
func (s *AttemptStore) SkillLevel(ctx context.Context, userID string, skill domain.Skill) (float64, bool, error) {
	var level float64
	err := s.pool.QueryRow(ctx,
		`SELECT level FROM user_skill_levels WHERE user_id = $1 AND skill = $2`,
		userID, string(skill)).Scan(&level)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query skill level: %w", err)
	}
	return level, true, nil
}
