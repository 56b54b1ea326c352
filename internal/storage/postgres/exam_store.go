package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paespro/lectoguia/internal/domain"
	"github.com/paespro/lectoguia/internal/exam"
)

// ExamStore reads official questions from examenes, preguntas and
// opciones_respuesta.
type ExamStore struct {
	pool *pgxpool.Pool
}

// NewExamStore creates an exam store.
func NewExamStore(pool *pgxpool.Pool) *ExamStore {
	return &ExamStore{pool: pool}
}

// ExamExists reports whether an exam with the code is registered.
func (s *ExamStore) ExamExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM examenes WHERE codigo = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check exam %s: %w", code, err)
	}
	return exists, nil
}

// QuestionByDifficulty returns a random question of the given difficulty, or nil.
func (s *ExamStore) QuestionByDifficulty(ctx context.Context, code string, difficulty domain.Difficulty) (*domain.RawQuestion, error) {
	return s.randomQuestion(ctx, `
		SELECT p.id::text, p.numero, p.enunciado, p.contexto, p.nivel_dificultad
		FROM preguntas p
		JOIN examenes e ON e.id = p.examen_id
		WHERE e.codigo = $1 AND upper(p.nivel_dificultad) = $2
		ORDER BY random()
		LIMIT 1`, code, string(difficulty))
}

// RandomQuestion returns any question of the exam, or nil.
func (s *ExamStore) RandomQuestion(ctx context.Context, code string) (*domain.RawQuestion, error) {
	return s.randomQuestion(ctx, `
		SELECT p.id::text, p.numero, p.enunciado, p.contexto, p.nivel_dificultad
		FROM preguntas p
		JOIN examenes e ON e.id = p.examen_id
		WHERE e.codigo = $1
		ORDER BY random()
		LIMIT 1`, code)
}

func (s *ExamStore) randomQuestion(ctx context.Context, query string, args ...any) (*domain.RawQuestion, error) {
	var q domain.RawQuestion
	var difficulty string
	err := s.pool.QueryRow(ctx, query, args...).Scan(&q.ID, &q.Number, &q.PromptText, &q.ContextText, &difficulty)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query question: %w", err)
	}
	q.Difficulty = domain.Difficulty(strings.ToUpper(difficulty))

	rows, err := s.pool.Query(ctx, `
		SELECT letra, contenido, es_correcta
		FROM opciones_respuesta
		WHERE pregunta_id = $1::uuid
		ORDER BY letra`, q.ID)
	if err != nil {
		return nil, fmt.Errorf("query options: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var opt domain.RawOption
		if err := rows.Scan(&opt.ID, &opt.Text, &opt.IsCorrect); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		q.Options = append(q.Options, opt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &q, nil
}

// ImportExam upserts an exam and replaces its questions.
func (s *ExamStore) ImportExam(ctx context.Context, ex *exam.Exam) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback(ctx)

	var examID string
	err = tx.QueryRow(ctx, `
		INSERT INTO examenes (codigo, nombre, tipo_prueba, anio)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (codigo) DO UPDATE SET
			nombre = EXCLUDED.nombre,
			tipo_prueba = EXCLUDED.tipo_prueba,
			anio = EXCLUDED.anio
		RETURNING id::text`,
		ex.Code, ex.Name, string(ex.TestCode), ex.Year,
	).Scan(&examID)
	if err != nil {
		return fmt.Errorf("upsert exam %s: %w", ex.Code, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM preguntas WHERE examen_id = $1::uuid`, examID); err != nil {
		return fmt.Errorf("clear questions: %w", err)
	}

	for _, q := range ex.Questions {
		var questionID string
		err := tx.QueryRow(ctx, `
			INSERT INTO preguntas (examen_id, numero, enunciado, contexto, nivel_dificultad)
			VALUES ($1::uuid, $2, $3, $4, $5)
			RETURNING id::text`,
			examID, q.Number, q.PromptText, q.ContextText, string(q.Difficulty),
		).Scan(&questionID)
		if err != nil {
			return fmt.Errorf("insert question %d: %w", q.Number, err)
		}

		batch := &pgx.Batch{}
		for _, opt := range q.Options {
			batch.Queue(`
				INSERT INTO opciones_respuesta (pregunta_id, letra, contenido, es_correcta)
				VALUES ($1::uuid, $2, $3, $4)`,
				questionID, opt.ID, opt.Text, opt.IsCorrect)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert options for question %d: %w", q.Number, err)
		}
	}

	return tx.Commit(ctx)
}
