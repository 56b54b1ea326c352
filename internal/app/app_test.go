package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/paespro/lectoguia/internal/config"
	"github.com/paespro/lectoguia/internal/domain"
	"github.com/paespro/lectoguia/internal/llm"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const lecturaExam = `code: PAES_COMPETENCIA_LECTORA_2024_FORMA_153
name: Competencia Lectora 2024
test: COMPETENCIA_LECTORA
year: 2024
questions:
  - number: 1
    prompt: "¿Cuál es el propósito del texto?"
    difficulty: INTERMEDIO
    options:
      - {letter: A, text: Informar}
      - {letter: B, text: Persuadir, correct: true}
      - {letter: C, text: Narrar}
`

func testConfig(t *testing.T, driver string) (*config.LocalConfig, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultLocalConfig()
	cfg.Storage.Driver = driver
	cfg.LLM.Providers = map[string]*config.ProviderConfig{
		"ollama": {Enabled: true, Model: "llama3.1"},
	}
	return cfg, dir
}

func TestBuild_Memory(t *testing.T) {
	cfg, dir := testConfig(t, "memory")
	if err := os.MkdirAll(filepath.Join(dir, "exams"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "exams", "PAES_COMPETENCIA_LECTORA_2024_FORMA_153.yaml"), []byte(lecturaExam), 0644); err != nil {
		t.Fatal(err)
	}

	a, err := Build(context.Background(), cfg, dir, discard)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer a.Close()

	if diff := cmp.Diff([]string{"ollama"}, a.Providers.List()); diff != "" {
		t.Errorf("providers mismatch (-want +got):\n%s", diff)
	}
	if got := a.Bank.Stats().QuestionCount; got != 1 {
		t.Errorf("QuestionCount = %d; want 1", got)
	}

	ctx := context.Background()
	sess, err := a.Sessions.Session(ctx, "ana")
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	ex, err := sess.RequestExercise(ctx, "")
	if err != nil {
		t.Fatalf("RequestExercise() error = %v", err)
	}
	if ex.Source != domain.SourceOfficial {
		t.Errorf("Source = %q; want official", ex.Source)
	}
	res, err := sess.SubmitIndex(ctx, ex.ID, ex.CorrectIndex())
	if err != nil {
		t.Fatalf("SubmitIndex() error = %v", err)
	}
	if !res.IsCorrect {
		t.Error("IsCorrect = false; want true")
	}

	// identity persisted under the data directory
	if err := sess.SetSubject(domain.SlugHistoria); err != nil {
		t.Fatalf("SetSubject() error = %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(dir, "data", "subjects"))
	if err != nil || len(entries) != 1 {
		t.Errorf("subject store has %d entries (err %v); want 1", len(entries), err)
	}
}

func TestBuild_SQLite(t *testing.T) {
	cfg, dir := testConfig(t, "sqlite")
	cfg.LLM.Resilient = true

	a, err := Build(context.Background(), cfg, dir, discard)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "data", "paes.db")); err != nil {
		t.Errorf("sqlite database not created: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestOpenStore_SQLiteCreatesParentDir(t *testing.T) {
	cfg, dir := testConfig(t, "sqlite")
	cfg.Storage.SQLitePath = filepath.Join(dir, "custom", "nested", "attempts.db")

	backend, err := OpenStore(context.Background(), cfg, dir, discard)
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	if _, err := os.Stat(cfg.Storage.SQLitePath); err != nil {
		t.Errorf("sqlite database not created at custom path: %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.LocalConfig)
	}{
		{"unknown driver", func(c *config.LocalConfig) { c.Storage.Driver = "mongo" }},
		{"postgres without url", func(c *config.LocalConfig) { c.Storage.Driver = "postgres" }},
		{"official from postgres without url", func(c *config.LocalConfig) { c.Storage.OfficialFromPostgres = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, dir := testConfig(t, "memory")
			tt.mutate(cfg)
			if _, err := Build(context.Background(), cfg, dir, discard); err == nil {
				t.Error("Build() error = nil; want error")
			}
		})
	}

	cfg, dir := testConfig(t, "mongo")
	if _, err := OpenStore(context.Background(), cfg, dir, discard); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("OpenStore() error = %v; want ErrInvalidConfig", err)
	}
}

func TestSetupProviders(t *testing.T) {
	cfg := config.LLMConfig{
		DefaultProvider: "claude",
		Providers: map[string]*config.ProviderConfig{
			"ollama": {Enabled: true},
			"claude": {Enabled: true, APIKey: "sk-ant"},
			"openai": {Enabled: true, APIKey: "sk"},
			"gemini": {Enabled: true},
			"other":  {Enabled: true},
			"off":    {Enabled: false},
		},
	}
	registry := llm.NewRegistry()
	SetupProviders(context.Background(), cfg, registry, discard)

	if diff := cmp.Diff([]string{"openai", "claude", "ollama"}, registry.List()); diff != "" {
		t.Errorf("registration order mismatch (-want +got):\n%s", diff)
	}
	p, err := registry.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if p.Name() != "claude" {
		t.Errorf("Default() = %q; want claude", p.Name())
	}
}

func TestSetupProviders_UnknownDefaultFallsBack(t *testing.T) {
	cfg := config.LLMConfig{
		DefaultProvider: "gemini",
		Providers: map[string]*config.ProviderConfig{
			"ollama": {Enabled: true},
		},
		Resilient: true,
	}
	registry := llm.NewRegistry()
	closers := SetupProviders(context.Background(), cfg, registry, discard)
	if len(closers) != 1 {
		t.Errorf("got %d closers; want 1 for the resilient wrapper", len(closers))
	}
	for _, c := range closers {
		c()
	}
	if _, err := registry.Default(); err != nil {
		t.Errorf("Default() error = %v; want first registered provider", err)
	}
}

func TestExamsPath(t *testing.T) {
	cfg := config.DefaultLocalConfig()
	if got := ExamsPath(cfg, "/data"); got != filepath.Join("/data", "exams") {
		t.Errorf("ExamsPath() = %q", got)
	}
	cfg.Content.ExamsPath = "/srv/exams"
	if got := ExamsPath(cfg, "/data"); got != "/srv/exams" {
		t.Errorf("ExamsPath() = %q", got)
	}
}
