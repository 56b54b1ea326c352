package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/paespro/lectoguia/internal/domain"
)

// AttemptStore persists exercise attempts and per-skill levels in SQLite.
type AttemptStore struct {
	db   *DB
	rule domain.ProficiencyRule
}

// NewAttemptStore creates a store. Levels move according to rule.
func NewAttemptStore(db *DB, rule domain.ProficiencyRule) *AttemptStore {
	return &AttemptStore{db: db, rule: rule}
}

// RecordAttempt inserts the attempt and updates the skill level in one
// transaction. Re-recording an attempt id is a no-op.
func (s *AttemptStore) RecordAttempt(ctx context.Context, a *domain.ExerciseAttempt) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attempt tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO exercise_attempts (id, exercise_id, user_id, selected_option,
			is_correct, skill, test_code, source, time_taken_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		a.ID, a.ExerciseID, a.UserID, a.SelectedOption,
		a.IsCorrect, string(a.Skill), string(a.TestCode), string(a.Source),
		a.TimeTaken.Milliseconds(), a.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tx.Commit()
	}

	level := s.rule.Initial
	err = tx.QueryRowContext(ctx,
		"SELECT level FROM user_skill_levels WHERE user_id = ? AND skill = ?",
		a.UserID, string(a.Skill),
	).Scan(&level)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read skill level: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_skill_levels (user_id, skill, level, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, skill) DO UPDATE SET
			level=excluded.level,
			updated_at=excluded.updated_at`,
		a.UserID, string(a.Skill), s.rule.Apply(level, a.IsCorrect), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert skill level: %w", err)
	}

	return tx.Commit()
}

// RecentStats summarizes the latest limit attempts. limit <= 0 means all.
func (s *AttemptStore) RecentStats(ctx context.Context, userID string, limit int) (*domain.RecentStats, error) {
	if limit <= 0 {
		limit = -1
	}

	var total, correct int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(is_correct), 0) FROM (
			SELECT is_correct FROM exercise_attempts
			WHERE user_id = ?
			ORDER BY created_at DESC
			LIMIT ?
		)`, userID, limit,
	).Scan(&total, &correct)
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
	rows, err := s.db.QueryContext(ctx, `
		SELECT skill, COUNT(*), COALESCE(SUM(is_correct), 0)
		FROM exercise_attempts
		WHERE user_id = ?
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
	err := s.db.QueryRowContext(ctx,
		"SELECT level FROM user_skill_levels WHERE user_id = ? AND skill = ?",
		userID, string(skill),
	).Scan(&level)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query skill level: %w", err)
	}
	return level, true, nil
}

// Attempts lists a user's attempts, newest first.
func (s *AttemptStore) Attempts(ctx context.Context, userID string, limit int) ([]*domain.ExerciseAttempt, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, exercise_id, user_id, selected_option, is_correct,
			skill, test_code, source, time_taken_ms, created_at
		FROM exercise_attempts
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []*domain.ExerciseAttempt
	for rows.Next() {
		var a domain.ExerciseAttempt
		var skill, test, source string
		var ms int64
		if err := rows.Scan(&a.ID, &a.ExerciseID, &a.UserID, &a.SelectedOption, &a.IsCorrect,
			&skill, &test, &source, &ms, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Skill = domain.Skill(skill)
		a.TestCode = domain.TestCode(test)
		a.Source = domain.Source(source)
		a.TimeTaken = time.Duration(ms) * time.Millisecond
		out = append(out, &a)
	}
	return out, rows.Err()
}
