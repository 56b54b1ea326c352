package practice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/paespro/lectoguia/internal/domain"
	"github.com/paespro/lectoguia/internal/sourcing"
	"github.com/paespro/lectoguia/internal/telemetry"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type gatedGenerator struct {
	called chan struct{}
	gate   chan struct{}
}

func (g *gatedGenerator) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GeneratedExercise, error) {
	if g.called != nil {
		g.called <- struct{}{}
	}
	if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &domain.GeneratedExercise{
		Question:      "¿Cuál es la idea principal del texto?",
		Options:       []string{"A) La migración", "B) El clima", "C) La economía", "D) La historia"},
		CorrectAnswer: "B",
		Explanation:   "El texto trata del clima.",
	}, nil
}

type memoryIdentities struct {
	mu      sync.Mutex
	saved   map[string]domain.Identity
	loadErr error
}

func (m *memoryIdentities) SaveIdentity(_ context.Context, userID string, id domain.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[userID] = id
	return nil
}

func (m *memoryIdentities) LoadIdentity(_ context.Context, userID string) (domain.Identity, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return domain.Identity{}, false, m.loadErr
	}
	id, ok := m.saved[userID]
	return id, ok, nil
}

func setupManager(t *testing.T, gen sourcing.GenerationService, ids IdentityStore) (*Manager, *sourcing.Pipeline) {
	t.Helper()
	pipeline := sourcing.New(sourcing.Deps{
		Generator: gen,
		Telemetry: telemetry.NewMemoryStore(domain.DefaultProficiencyRule()),
	}, sourcing.Config{}, discard)
	t.Cleanup(pipeline.Close)

	m := NewManager(pipeline, ids, discard)
	t.Cleanup(m.Close)
	return m, pipeline
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestManager_SessionIsPerUser(t *testing.T) {
	m, _ := setupManager(t, &gatedGenerator{}, nil)
	ctx := context.Background()

	a, err := m.Session(ctx, "ana")
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	again, _ := m.Session(ctx, "ana")
	if a != again {
		t.Error("Session() returned a different session for the same user")
	}

	b, _ := m.Session(ctx, "beto")
	if err := b.SetSubject(domain.SlugCiencias); err != nil {
		t.Fatalf("SetSubject() error = %v", err)
	}
	if a.Identity() != domain.DefaultIdentity() {
		t.Errorf("ana identity = %v; want default", a.Identity())
	}
	if got := m.Users(); len(got) != 2 || got[0] != "ana" || got[1] != "beto" {
		t.Errorf("Users() = %v", got)
	}

	if _, err := m.Session(ctx, ""); !errors.Is(err, ErrMissingUser) {
		t.Errorf("Session(\"\") error = %v; want ErrMissingUser", err)
	}
}

func TestManager_PersistsAndRestoresIdentity(t *testing.T) {
	ids := &memoryIdentities{saved: map[string]domain.Identity{}}
	ctx := context.Background()

	m, _ := setupManager(t, &gatedGenerator{}, ids)
	s, _ := m.Session(ctx, "ana")
	if err := s.SetLegacyID(3); err != nil {
		t.Fatalf("SetLegacyID() error = %v", err)
	}
	want := domain.Identity{Slug: domain.SlugMatematicasAvanzada, TestCode: domain.TestMatematica2, LegacyID: 3}
	if ids.saved["ana"] != want {
		t.Fatalf("saved = %v; want %v", ids.saved["ana"], want)
	}

	// a fresh manager restores the stored identity, healing drift
	ids.saved["ana"] = domain.Identity{Slug: domain.SlugMatematicasAvanzada, TestCode: domain.TestHistoria, LegacyID: 5}
	m2, _ := setupManager(t, &gatedGenerator{}, ids)
	restored, _ := m2.Session(ctx, "ana")
	if restored.Identity() != want {
		t.Errorf("restored identity = %v; want %v", restored.Identity(), want)
	}
}

func TestManager_LoadFailureStartsAtDefault(t *testing.T) {
	ids := &memoryIdentities{saved: map[string]domain.Identity{}, loadErr: errors.New("disk gone")}
	m, _ := setupManager(t, &gatedGenerator{}, ids)

	s, err := m.Session(context.Background(), "ana")
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if s.Identity() != domain.DefaultIdentity() {
		t.Errorf("Identity() = %v; want default", s.Identity())
	}
}

func TestSession_SubmitLifecycle(t *testing.T) {
	m, pipeline := setupManager(t, &gatedGenerator{}, nil)
	ctx := context.Background()
	s, _ := m.Session(ctx, "ana")

	ex, err := s.RequestExercise(ctx, "")
	if err != nil {
		t.Fatalf("RequestExercise() error = %v", err)
	}
	if s.Pending() != ex {
		t.Fatal("Pending() is not the requested exercise")
	}

	res, err := s.Submit(ctx, ex.ID, "B) El clima")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !res.IsCorrect || res.CorrectAnswer != "B) El clima" {
		t.Errorf("Submit() = %+v; want correct", res)
	}
	if res.Proficiency != pipeline.Proficiency("ana", ex.Skill) {
		t.Errorf("Proficiency = %v; want %v", res.Proficiency, pipeline.Proficiency("ana", ex.Skill))
	}
	if res.Feedback != "¡Correcto! El texto trata del clima." {
		t.Errorf("Feedback = %q", res.Feedback)
	}
	if s.Pending() != nil {
		t.Error("Pending() should be cleared after an answer")
	}

	if _, err := s.Submit(ctx, ex.ID, "A) La migración"); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Errorf("second Submit() error = %v; want ErrAlreadyAnswered", err)
	}
	if _, err := s.Submit(ctx, "nope", "A"); !errors.Is(err, ErrExerciseNotFound) {
		t.Errorf("Submit(unknown) error = %v; want ErrExerciseNotFound", err)
	}
}

func TestSession_SubmitIndex(t *testing.T) {
	m, _ := setupManager(t, &gatedGenerator{}, nil)
	ctx := context.Background()
	s, _ := m.Session(ctx, "ana")

	ex, err := s.RequestExercise(ctx, domain.SkillInterpretRelate)
	if err != nil {
		t.Fatalf("RequestExercise() error = %v", err)
	}

	if _, err := s.SubmitIndex(ctx, ex.ID, 9); !errors.Is(err, domain.ErrInvalidOption) {
		t.Errorf("SubmitIndex(9) error = %v; want ErrInvalidOption", err)
	}
	if s.Pending() == nil {
		t.Fatal("an invalid index must not consume the exercise")
	}

	res, err := s.SubmitIndex(ctx, ex.ID, 0)
	if err != nil {
		t.Fatalf("SubmitIndex() error = %v", err)
	}
	if res.IsCorrect || res.Selected != "A) La migración" {
		t.Errorf("SubmitIndex() = %+v; want incorrect A", res)
	}
	if res.Skill != domain.SkillInterpretRelate {
		t.Errorf("Skill = %s; want hint skill", res.Skill)
	}
}

func TestSession_LastResolvedWins(t *testing.T) {
	m, _ := setupManager(t, &gatedGenerator{}, nil)
	ctx := context.Background()
	s, _ := m.Session(ctx, "ana")

	first, _ := s.RequestExercise(ctx, "")
	second, _ := s.RequestExercise(ctx, "")

	if _, err := s.Submit(ctx, first.ID, first.CorrectAnswer); !errors.Is(err, domain.ErrStaleExercise) {
		t.Errorf("Submit(first) error = %v; want ErrStaleExercise", err)
	}
	if _, err := s.Submit(ctx, second.ID, second.CorrectAnswer); err != nil {
		t.Errorf("Submit(second) error = %v", err)
	}
}

func TestSession_SubjectChangeDropsPending(t *testing.T) {
	m, _ := setupManager(t, &gatedGenerator{}, nil)
	ctx := context.Background()
	s, _ := m.Session(ctx, "ana")

	ex, _ := s.RequestExercise(ctx, "")
	if err := s.SetSubject(domain.SlugHistoria); err != nil {
		t.Fatalf("SetSubject() error = %v", err)
	}
	if s.Pending() != nil {
		t.Error("Pending() should be dropped on subject change")
	}
	if _, err := s.Submit(ctx, ex.ID, ex.CorrectAnswer); !errors.Is(err, domain.ErrStaleExercise) {
		t.Errorf("Submit() error = %v; want ErrStaleExercise", err)
	}

	// same-subject selection is not a change
	next, _ := s.RequestExercise(ctx, "")
	_ = s.SetSubject(domain.SlugHistoria)
	if s.Pending() != next {
		t.Error("re-selecting the active subject must keep the pending exercise")
	}
}

func TestSession_SubjectChangeWhileSourcing(t *testing.T) {
	gen := &gatedGenerator{called: make(chan struct{}, 1), gate: make(chan struct{})}
	m, _ := setupManager(t, gen, nil)
	ctx := context.Background()
	s, _ := m.Session(ctx, "ana")

	errc := make(chan error, 1)
	go func() {
		_, err := s.RequestExercise(ctx, "")
		errc <- err
	}()

	<-gen.called
	if err := s.SetSubject(domain.SlugCiencias); err != nil {
		t.Fatalf("SetSubject() error = %v", err)
	}
	close(gen.gate)

	if err := <-errc; !errors.Is(err, domain.ErrStaleExercise) {
		t.Errorf("RequestExercise() error = %v; want ErrStaleExercise", err)
	}
	if s.Pending() != nil {
		t.Error("an exercise for the old subject must not become pending")
	}
}

func TestSession_RandomOfficialWithoutExam(t *testing.T) {
	m, _ := setupManager(t, &gatedGenerator{}, nil)
	ctx := context.Background()
	s, _ := m.Session(ctx, "ana")
	_ = s.SetSubject(domain.SlugHistoria)

	if _, err := s.RandomOfficial(ctx); !errors.Is(err, domain.ErrExerciseUnavailable) {
		t.Errorf("RandomOfficial() error = %v; want ErrExerciseUnavailable", err)
	}
}
