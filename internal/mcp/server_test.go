package mcp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/paespro/lectoguia/internal/domain"
	"github.com/paespro/lectoguia/internal/practice"
	"github.com/paespro/lectoguia/internal/progress"
	"github.com/paespro/lectoguia/internal/sourcing"
	"github.com/paespro/lectoguia/internal/telemetry"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type mockGenerator struct {
	err error
}

func (m *mockGenerator) Generate(context.Context, domain.GenerationRequest) (*domain.GeneratedExercise, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.GeneratedExercise{
		Question:      "Si 2x + 1 = 7, ¿cuánto vale x?",
		Options:       []string{"A) 2", "B) 3", "C) 4", "D) 6"},
		CorrectAnswer: "B",
		Explanation:   "2x = 6, entonces x = 3.",
	}, nil
}

// setupTestServer creates a test MCP server backed by in-memory stores
func setupTestServer(t *testing.T, gen sourcing.GenerationService) *Server {
	t.Helper()
	s, _ := newTestServer(t, gen)
	return s
}

// newTestServer also returns the pipeline so tests can drain attempt
// persistence before reading telemetry.
func newTestServer(t *testing.T, gen sourcing.GenerationService) (*Server, *sourcing.Pipeline) {
	t.Helper()

	store := telemetry.NewMemoryStore(domain.DefaultProficiencyRule())
	pipeline := sourcing.New(sourcing.Deps{
		Generator: gen,
		Telemetry: store,
	}, sourcing.Config{}, discard)
	t.Cleanup(pipeline.Close)

	sessions := practice.NewManager(pipeline, nil, discard)
	t.Cleanup(sessions.Close)

	return NewServer(Config{
		Sessions: sessions,
		Progress: progress.NewService(store, pipeline, domain.DefaultProficiencyRule().Initial, discard),
	}), pipeline
}

func TestNewServer(t *testing.T) {
	s := setupTestServer(t, &mockGenerator{})
	if s.GetMCPServer() == nil {
		t.Fatal("GetMCPServer() returned nil")
	}
}

func TestHandleSubject_Default(t *testing.T) {
	s := setupTestServer(t, &mockGenerator{})

	out, err := s.handleSubject(context.Background(), UserInput{})
	if err != nil {
		t.Fatalf("handleSubject() error = %v", err)
	}
	if out.Slug != domain.SlugLectura || out.TestCode != domain.TestCompetenciaLectora || out.LegacyID != 1 {
		t.Errorf("handleSubject() = %+v; want default identity", out)
	}
	if out.Name == "" || out.TestName == "" {
		t.Errorf("display names missing: %+v", out)
	}
}

func TestHandleSetSubject(t *testing.T) {
	tests := []struct {
		name     string
		input    SetSubjectInput
		wantSlug domain.Slug
		wantErr  bool
	}{
		{name: "by slug", input: SetSubjectInput{Slug: "ciencias"}, wantSlug: domain.SlugCiencias},
		{name: "by test code", input: SetSubjectInput{TestCode: "matematica_1"}, wantSlug: domain.SlugMatematicasBasica},
		{name: "by legacy id", input: SetSubjectInput{LegacyID: legacyID(3)}, wantSlug: domain.SlugMatematicasAvanzada},
		{name: "unknown slug", input: SetSubjectInput{Slug: "fisica"}, wantErr: true},
		{name: "legacy id zero", input: SetSubjectInput{LegacyID: legacyID(0)}, wantErr: true},
		{name: "two selectors", input: SetSubjectInput{Slug: "ciencias", LegacyID: legacyID(4)}, wantErr: true},
		{name: "no selector", input: SetSubjectInput{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupTestServer(t, &mockGenerator{})
			tt.input.UserID = "ana"

			out, err := s.handleSetSubject(context.Background(), tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("handleSetSubject() = %+v; want error", out)
				}
				return
			}
			if err != nil {
				t.Fatalf("handleSetSubject() error = %v", err)
			}
			if out.Slug != tt.wantSlug {
				t.Errorf("Slug = %q; want %q", out.Slug, tt.wantSlug)
			}
		})
	}
}

func legacyID(n int) *int { return &n }

func TestExerciseFlow(t *testing.T) {
	s, pipeline := newTestServer(t, &mockGenerator{})
	ctx := context.Background()

	if _, err := s.handleSetSubject(ctx, SetSubjectInput{Slug: "matematicas-basica"}); err != nil {
		t.Fatalf("handleSetSubject() error = %v", err)
	}

	ex, err := s.handleRequestExercise(ctx, ExerciseInput{})
	if err != nil {
		t.Fatalf("handleRequestExercise() error = %v", err)
	}
	if ex.Source != domain.SourceGenerated {
		t.Errorf("Source = %q; want generated", ex.Source)
	}
	if len(ex.Options) != 4 || !strings.HasPrefix(ex.Options[1], "B)") {
		t.Errorf("Options = %v", ex.Options)
	}

	res, err := s.handleSubmitAnswer(ctx, AnswerInput{ExerciseID: ex.ExerciseID, Selected: "b"})
	if err != nil {
		t.Fatalf("handleSubmitAnswer() error = %v", err)
	}
	if !res.IsCorrect {
		t.Errorf("IsCorrect = false; want true for letter B")
	}

	if _, err := s.handleSubmitAnswer(ctx, AnswerInput{ExerciseID: ex.ExerciseID, Selected: "B"}); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Errorf("second answer error = %v; want ErrAlreadyAnswered", err)
	}

	pipeline.Close()
	overview, err := s.handleProgress(ctx, ProgressInput{})
	if err != nil {
		t.Fatalf("handleProgress() error = %v", err)
	}
	if overview.TotalQuestions != 1 || overview.CorrectAnswers != 1 {
		t.Errorf("overview = %+v; want one correct answer", overview)
	}
	if len(overview.Skills) != len(domain.SkillsFor(domain.TestMatematica1)) {
		t.Errorf("got %d skills; want every skill of MATEMATICA_1", len(overview.Skills))
	}
}

func TestHandleSubmitAnswer_ByIndex(t *testing.T) {
	s := setupTestServer(t, &mockGenerator{})
	ctx := context.Background()

	ex, err := s.handleRequestExercise(ctx, ExerciseInput{UserID: "beto"})
	if err != nil {
		t.Fatalf("handleRequestExercise() error = %v", err)
	}
	idx := 0
	res, err := s.handleSubmitAnswer(ctx, AnswerInput{UserID: "beto", ExerciseID: ex.ExerciseID, Index: &idx})
	if err != nil {
		t.Fatalf("handleSubmitAnswer() error = %v", err)
	}
	if res.IsCorrect {
		t.Error("IsCorrect = true; want false for option A")
	}

	if _, err := s.handleSubmitAnswer(ctx, AnswerInput{UserID: "beto", ExerciseID: ex.ExerciseID}); err == nil {
		t.Error("expected error when neither selected nor index is given")
	}
}

func TestHandleRequestExercise_Errors(t *testing.T) {
	s := setupTestServer(t, &mockGenerator{err: errors.New("provider down")})
	ctx := context.Background()

	if _, err := s.handleRequestExercise(ctx, ExerciseInput{}); !errors.Is(err, domain.ErrExerciseUnavailable) {
		t.Errorf("error = %v; want ErrExerciseUnavailable", err)
	}
	if _, err := s.handleRequestExercise(ctx, ExerciseInput{Skill: "volar"}); !errors.Is(err, domain.ErrUnknownSkill) {
		t.Errorf("error = %v; want ErrUnknownSkill", err)
	}
	if _, err := s.handleRequestExercise(ctx, ExerciseInput{OfficialOnly: true}); !errors.Is(err, domain.ErrExerciseUnavailable) {
		t.Errorf("official-only error = %v; want ErrExerciseUnavailable", err)
	}
}

func TestHandlers_NotConfigured(t *testing.T) {
	s := NewServer(Config{})
	if _, err := s.handleSubject(context.Background(), UserInput{}); err == nil {
		t.Error("expected error without sessions")
	}
	if _, err := s.handleProgress(context.Background(), ProgressInput{}); err == nil {
		t.Error("expected error without progress")
	}
}

func TestLetterIndex(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"A", 0, true},
		{"c)", 2, true},
		{" e. ", 4, true},
		{"F", 0, false},
		{"B) 3", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := letterIndex(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("letterIndex(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
