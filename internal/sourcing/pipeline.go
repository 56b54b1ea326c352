package sourcing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paespro/lectoguia/internal/domain"
)

// Config tunes the sourcing pipeline.
type Config struct {
	ExamCodes         map[domain.Slug]string
	Difficulties      domain.DifficultyTable
	Proficiency       domain.ProficiencyRule
	GenerationTimeout time.Duration
	PersistTimeout    time.Duration
	LedgerSize        int
}

// DefaultExamCodes returns the official exams registered per subject.
// Subjects without an entry are always served by generation.
func DefaultExamCodes() map[domain.Slug]string {
	return map[domain.Slug]string{
		domain.SlugGeneral:             "PAES_COMPETENCIA_LECTORA_2024_FORMA_153",
		domain.SlugLectura:             "PAES_COMPETENCIA_LECTORA_2024_FORMA_153",
		domain.SlugMatematicasAvanzada: "PAES_MATEMATICA2_2024_FORMA_193",
		domain.SlugCiencias:            "PAES_CIENCIAS_TP_2024_FORMA_183",
	}
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		ExamCodes:         DefaultExamCodes(),
		Difficulties:      domain.DefaultDifficultyTable(),
		Proficiency:       domain.DefaultProficiencyRule(),
		GenerationTimeout: 12 * time.Second,
		PersistTimeout:    10 * time.Second,
		LedgerSize:        4096,
	}
}

// Deps are the collaborators of the pipeline. Only Generator is required
// for exercises to be served when no official content exists.
type Deps struct {
	Official  OfficialContentStore
	Generator GenerationService
	Telemetry TelemetryStore
	Notifier  NotificationSink
}

// Pipeline sources exercises, official content first, and records answers.
type Pipeline struct {
	official  OfficialContentStore
	generator GenerationService
	telemetry TelemetryStore
	notifier  NotificationSink
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	levels   map[string]map[domain.Skill]float64
	answered *ledger

	onWarning func(*domain.PersistenceWarning)
	inflight  sync.WaitGroup
}

// New creates a pipeline. Zero values in cfg fall back to DefaultConfig.
func New(deps Deps, cfg Config, logger *slog.Logger) *Pipeline {
	def := DefaultConfig()
	if cfg.ExamCodes == nil {
		cfg.ExamCodes = def.ExamCodes
	}
	if cfg.Difficulties == nil {
		cfg.Difficulties = def.Difficulties
	}
	if cfg.Proficiency == (domain.ProficiencyRule{}) {
		cfg.Proficiency = def.Proficiency
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = def.GenerationTimeout
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = def.PersistTimeout
	}
	if cfg.LedgerSize <= 0 {
		cfg.LedgerSize = def.LedgerSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		official:  deps.Official,
		generator: deps.Generator,
		telemetry: deps.Telemetry,
		notifier:  deps.Notifier,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		levels:    make(map[string]map[domain.Skill]float64),
		answered:  newLedger(cfg.LedgerSize),
	}
}

// SetWarningHandler registers a callback for persistence warnings.
func (p *Pipeline) SetWarningHandler(fn func(*domain.PersistenceWarning)) {
	p.mu.Lock()
	p.onWarning = fn
	p.mu.Unlock()
}

// ExamCode returns the official exam registered for a slug.
func (p *Pipeline) ExamCode(slug domain.Slug) (string, bool) {
	code, ok := p.cfg.ExamCodes[slug]
	return code, ok && code != ""
}

// ResolveSkill returns hint when it belongs to the test, else the test default.
func ResolveSkill(test domain.TestCode, hint domain.Skill) domain.Skill {
	if hint != "" && hint.BelongsTo(test) {
		return hint
	}
	return domain.DefaultSkill(test)
}

// RequestExercise returns one exercise for the identity. Official content is
// tried first; any failure there falls through to generation. Only when both
// fail is ErrExerciseUnavailable returned.
func (p *Pipeline) RequestExercise(ctx context.Context, identity domain.Identity, hint domain.Skill) (*domain.Exercise, error) {
	id, err := domain.IdentityForSlug(identity.Slug)
	if err != nil {
		return nil, err
	}
	skill := ResolveSkill(id.TestCode, hint)

	if ex := p.fromOfficial(ctx, id, skill); ex != nil {
		p.logger.Info("exercise sourced",
			"source", ex.Source,
			"exercise_id", ex.ID,
			"skill", skill,
			"subject", id.Slug,
		)
		return ex, nil
	}

	ex, err := p.fromGenerator(ctx, id, skill)
	if err != nil {
		p.logger.Error("exercise unavailable",
			"subject", id.Slug,
			"skill", skill,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %w", domain.ErrExerciseUnavailable, err)
	}

	p.logger.Info("exercise sourced",
		"source", ex.Source,
		"exercise_id", ex.ID,
		"skill", skill,
		"subject", id.Slug,
	)
	return ex, nil
}

// RandomOfficial serves any question of the subject's official exam, with no
// generation fallback.
func (p *Pipeline) RandomOfficial(ctx context.Context, identity domain.Identity) (*domain.Exercise, error) {
	id, err := domain.IdentityForSlug(identity.Slug)
	if err != nil {
		return nil, err
	}
	examCode, ok := p.ExamCode(id.Slug)
	if !ok || p.official == nil {
		return nil, fmt.Errorf("%w: no official exam for %s", domain.ErrExerciseUnavailable, id.Slug)
	}
	q, err := p.official.RandomQuestion(ctx, examCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrExerciseUnavailable, err)
	}
	if q == nil {
		return nil, fmt.Errorf("%w: exam %s has no questions", domain.ErrExerciseUnavailable, examCode)
	}
	skill := domain.DefaultSkill(id.TestCode)
	ex, err := officialExercise(examCode, id, skill, p.cfg.Difficulties.For(skill), q, p.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrExerciseUnavailable, err)
	}
	return ex, nil
}

func (p *Pipeline) fromOfficial(ctx context.Context, id domain.Identity, skill domain.Skill) *domain.Exercise {
	if p.official == nil {
		return nil
	}
	examCode, ok := p.ExamCode(id.Slug)
	if !ok {
		p.logger.Debug("no official exam mapped", "subject", id.Slug)
		return nil
	}

	exists, err := p.official.ExamExists(ctx, examCode)
	if err != nil {
		p.logger.Warn("official exam lookup failed", "exam_code", examCode, "error", err)
		return nil
	}
	if !exists {
		p.logger.Debug("official exam not found", "exam_code", examCode)
		return nil
	}

	difficulty := p.cfg.Difficulties.For(skill)
	q, err := p.official.QuestionByDifficulty(ctx, examCode, difficulty)
	if err != nil {
		p.logger.Warn("official question lookup failed",
			"exam_code", examCode,
			"difficulty", difficulty,
			"error", err,
		)
		return nil
	}
	if q == nil {
		p.logger.Debug("no official question at difficulty", "exam_code", examCode, "difficulty", difficulty)
		return nil
	}

	ex, err := officialExercise(examCode, id, skill, difficulty, q, p.now())
	if err != nil {
		p.logger.Warn("official question rejected", "exam_code", examCode, "error", err)
		return nil
	}
	return ex
}

func (p *Pipeline) fromGenerator(ctx context.Context, id domain.Identity, skill domain.Skill) (*domain.Exercise, error) {
	if p.generator == nil {
		return nil, errors.New("no generation service configured")
	}

	req := domain.GenerationRequest{
		Skill:              skill,
		TestCode:           id.TestCode,
		Difficulty:         domain.DifficultyIntermedio,
		Subject:            domain.DisplayName(id.Slug),
		IncludeExplanation: true,
	}

	genCtx, cancel := context.WithTimeout(ctx, p.cfg.GenerationTimeout)
	defer cancel()

	resp, err := p.generator.Generate(genCtx, req)
	if err != nil {
		if errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("generation timed out after %s: %w", p.cfg.GenerationTimeout, err)
		}
		return nil, fmt.Errorf("generate: %w", err)
	}
	if resp == nil {
		return nil, errors.New("generator returned no exercise")
	}

	return generatedExercise(req, resp, p.now())
}

// Submission is one answer to an exercise.
type Submission struct {
	UserID    string
	Exercise  *domain.Exercise
	Selected  string
	TimeTaken time.Duration
}

// SubmitAnswer grades the answer and returns immediately. The attempt is
// persisted in the background; a persistence failure never changes the result.
func (p *Pipeline) SubmitAnswer(ctx context.Context, sub Submission) (bool, error) {
	ex := sub.Exercise
	if ex == nil {
		return false, fmt.Errorf("%w: nil exercise", domain.ErrInvalidExercise)
	}
	if err := ex.Validate(); err != nil {
		return false, err
	}
	if !p.answered.mark(ex.ID) {
		return false, fmt.Errorf("%w: %s", domain.ErrAlreadyAnswered, ex.ID)
	}

	correct := sub.Selected == ex.CorrectAnswer
	level := p.adjust(sub.UserID, ex.Skill, correct)

	attempt := &domain.ExerciseAttempt{
		ID:             uuid.NewString(),
		ExerciseID:     ex.ID,
		UserID:         sub.UserID,
		SelectedOption: sub.Selected,
		IsCorrect:      correct,
		Skill:          ex.Skill,
		TestCode:       ex.TestCode,
		Source:         ex.Source,
		TimeTaken:      sub.TimeTaken,
		Timestamp:      p.now(),
	}

	p.logger.Info("answer submitted",
		"exercise_id", ex.ID,
		"user_id", sub.UserID,
		"correct", correct,
		"skill", ex.Skill,
		"level", level,
	)

	p.persist(ctx, attempt)
	return correct, nil
}

// SubmitOptionIndex grades the option at index.
func (p *Pipeline) SubmitOptionIndex(ctx context.Context, sub Submission, index int) (bool, error) {
	if sub.Exercise == nil {
		return false, fmt.Errorf("%w: nil exercise", domain.ErrInvalidExercise)
	}
	selected, err := sub.Exercise.OptionAt(index)
	if err != nil {
		return false, err
	}
	sub.Selected = selected
	return p.SubmitAnswer(ctx, sub)
}

// Answered reports whether the exercise already received an answer.
func (p *Pipeline) Answered(exerciseID string) bool {
	return p.answered.contains(exerciseID)
}

func (p *Pipeline) persist(ctx context.Context, attempt *domain.ExerciseAttempt) {
	if p.telemetry == nil {
		return
	}

	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.PersistTimeout)
		defer cancel()

		if err := p.telemetry.RecordAttempt(ctx, attempt); err != nil {
			p.warn(ctx, &domain.PersistenceWarning{
				AttemptID:  attempt.ID,
				ExerciseID: attempt.ExerciseID,
				UserID:     attempt.UserID,
				Err:        err,
			})
			return
		}

		echo, ok := p.telemetry.(ProficiencyEcho)
		if !ok {
			return
		}
		level, found, err := echo.SkillLevel(ctx, attempt.UserID, attempt.Skill)
		if err != nil {
			p.logger.Debug("proficiency echo failed", "user_id", attempt.UserID, "error", err)
			return
		}
		if found {
			p.setLevel(attempt.UserID, attempt.Skill, level)
		}
	}()
}

func (p *Pipeline) warn(ctx context.Context, w *domain.PersistenceWarning) {
	p.logger.Warn("attempt not persisted",
		"attempt_id", w.AttemptID,
		"exercise_id", w.ExerciseID,
		"user_id", w.UserID,
		"error", w.Err,
	)

	if p.notifier != nil {
		p.notifier.Notify(ctx, domain.Notification{
			Title:       "No se pudo guardar tu progreso",
			Description: "Tu respuesta fue evaluada, pero no pudimos registrarla.",
			Severity:    domain.SeverityWarning,
			UserID:      w.UserID,
		})
	}

	p.mu.Lock()
	handler := p.onWarning
	p.mu.Unlock()
	if handler != nil {
		handler(w)
	}
}

// Close waits for in-flight attempt persistence.
func (p *Pipeline) Close() {
	p.inflight.Wait()
}

// Proficiency returns the current estimate for a user's skill.
func (p *Pipeline) Proficiency(userID string, skill domain.Skill) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if level, ok := p.levels[userID][skill]; ok {
		return level
	}
	return p.cfg.Proficiency.Initial
}

// Levels returns a copy of every skill estimate held for a user.
func (p *Pipeline) Levels(userID string) map[domain.Skill]float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[domain.Skill]float64, len(p.levels[userID]))
	for k, v := range p.levels[userID] {
		out[k] = v
	}
	return out
}

func (p *Pipeline) adjust(userID string, skill domain.Skill, correct bool) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	levels, ok := p.levels[userID]
	if !ok {
		levels = make(map[domain.Skill]float64)
		p.levels[userID] = levels
	}
	current, ok := levels[skill]
	if !ok {
		current = p.cfg.Proficiency.Initial
	}
	next := p.cfg.Proficiency.Apply(current, correct)
	levels[skill] = next
	return next
}

func (p *Pipeline) setLevel(userID string, skill domain.Skill, level float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	levels, ok := p.levels[userID]
	if !ok {
		levels = make(map[domain.Skill]float64)
		p.levels[userID] = levels
	}
	levels[skill] = min(1.0, max(0.0, level))
}

// SeedLevel sets a starting estimate, e.g. from a stored profile.
func (p *Pipeline) SeedLevel(userID string, skill domain.Skill, level float64) {
	p.setLevel(userID, skill, level)
}

// Feedback renders the message shown after an answer.
func Feedback(ex *domain.Exercise, correct bool) string {
	if correct {
		return "¡Correcto! " + ex.Explanation
	}
	return fmt.Sprintf("Incorrecto. La respuesta correcta es: %s. %s", ex.CorrectAnswer, ex.Explanation)
}
