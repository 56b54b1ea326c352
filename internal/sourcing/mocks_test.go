package sourcing

import (
	"context"
	"sync"

	"github.com/paespro/lectoguia/internal/domain"
)

type mockOfficial struct {
	exists      bool
	existsErr   error
	question    *domain.RawQuestion
	questionErr error

	mu             sync.Mutex
	existsCalls    []string
	difficultyArgs []domain.Difficulty
}

func (m *mockOfficial) ExamExists(_ context.Context, examCode string) (bool, error) {
	m.mu.Lock()
	m.existsCalls = append(m.existsCalls, examCode)
	m.mu.Unlock()
	return m.exists, m.existsErr
}

func (m *mockOfficial) QuestionByDifficulty(_ context.Context, _ string, d domain.Difficulty) (*domain.RawQuestion, error) {
	m.mu.Lock()
	m.difficultyArgs = append(m.difficultyArgs, d)
	m.mu.Unlock()
	return m.question, m.questionErr
}

func (m *mockOfficial) RandomQuestion(_ context.Context, _ string) (*domain.RawQuestion, error) {
	return m.question, m.questionErr
}

type mockGenerator struct {
	resp  *domain.GeneratedExercise
	err   error
	block bool

	mu    sync.Mutex
	calls []domain.GenerationRequest
}

func (m *mockGenerator) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GeneratedExercise, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.resp, m.err
}

func (m *mockGenerator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockTelemetry struct {
	err     error
	release chan struct{}

	mu       sync.Mutex
	attempts []*domain.ExerciseAttempt
}

func (m *mockTelemetry) RecordAttempt(ctx context.Context, a *domain.ExerciseAttempt) error {
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	m.attempts = append(m.attempts, a)
	m.mu.Unlock()
	return nil
}

func (m *mockTelemetry) RecentStats(context.Context, string, int) (*domain.RecentStats, error) {
	return &domain.RecentStats{}, nil
}

func (m *mockTelemetry) ProgressBySkill(context.Context, string) (map[domain.Skill]domain.SkillProgress, error) {
	return map[domain.Skill]domain.SkillProgress{}, nil
}

func (m *mockTelemetry) recorded() []*domain.ExerciseAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.ExerciseAttempt(nil), m.attempts...)
}

// echoTelemetry reports a fixed authoritative level after each write.
type echoTelemetry struct {
	mockTelemetry
	level float64
}

func (e *echoTelemetry) SkillLevel(context.Context, string, domain.Skill) (float64, bool, error) {
	return e.level, true, nil
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (m *mockNotifier) Notify(_ context.Context, n domain.Notification) {
	m.mu.Lock()
	m.sent = append(m.sent, n)
	m.mu.Unlock()
}

func (m *mockNotifier) notifications() []domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Notification(nil), m.sent...)
}

func sampleQuestion() *domain.RawQuestion {
	return &domain.RawQuestion{
		ID:          "q-12",
		Number:      12,
		PromptText:  "¿Cuál es el valor de x?",
		ContextText: "Considere la ecuación 2x = 8.",
		Options: []domain.RawOption{
			{ID: "a", Text: "2"},
			{ID: "b", Text: "4", IsCorrect: true},
			{ID: "c", Text: "6"},
			{ID: "d", Text: "8"},
		},
	}
}

func sampleGenerated() *domain.GeneratedExercise {
	return &domain.GeneratedExercise{
		Question:      "¿Qué función modela el crecimiento?",
		Options:       []string{"A) lineal", "B) exponencial", "C) cuadrática", "D) constante"},
		CorrectAnswer: "B",
		Explanation:   "El crecimiento es proporcional al valor actual.",
	}
}
