package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/paespro/lectoguia/internal/config"
	"github.com/paespro/lectoguia/internal/domain"
	"github.com/paespro/lectoguia/internal/exam"
	"github.com/paespro/lectoguia/internal/practice"
	"github.com/paespro/lectoguia/internal/progress"
	"github.com/paespro/lectoguia/internal/sourcing"
)

// Version is reported by /v1/status.
const Version = "0.3.0"

// ExamCatalog summarizes the official exam bank.
type ExamCatalog interface {
	Stats() exam.Stats
}

var _ ExamCatalog = (*exam.Bank)(nil)

// Server represents the PAES practice daemon HTTP server
type Server struct {
	cfg     *config.LocalConfig
	server  *http.Server
	router  *http.ServeMux
	logger  *slog.Logger
	started time.Time

	sessions  *practice.Manager
	progress  *progress.Service
	telemetry sourcing.TelemetryStore
	catalog   ExamCatalog
	providers []string
}

// ServerConfig holds the services the server exposes. Only Config and
// Sessions are required.
type ServerConfig struct {
	Config    *config.LocalConfig
	Sessions  *practice.Manager
	Progress  *progress.Service
	Telemetry sourcing.TelemetryStore
	Catalog   ExamCatalog
	Providers []string
	Logger    *slog.Logger
}

// NewServer creates a new daemon server
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		return nil, errors.New("missing config")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("missing practice sessions")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		cfg:       cfg.Config,
		router:    http.NewServeMux(),
		logger:    cfg.Logger,
		started:   time.Now(),
		sessions:  cfg.Sessions,
		progress:  cfg.Progress,
		telemetry: cfg.Telemetry,
		catalog:   cfg.Catalog,
		providers: cfg.Providers,
	}

	s.setupRoutes()

	handler := correlationIDMiddleware(recoveryMiddleware(s.logger, loggingMiddleware(s.logger, s.router)))
	s.server = &http.Server{
		Addr:         cfg.Config.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // generation may take a while
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health & status
	s.router.HandleFunc("GET /v1/health", s.handleHealth)
	s.router.HandleFunc("GET /v1/status", s.handleStatus)
	s.router.HandleFunc("GET /v1/catalog", s.handleCatalog)
	s.router.HandleFunc("GET /v1/exams", s.handleExams)

	// Subject
	s.router.HandleFunc("GET /v1/users/{user}/subject", s.handleGetSubject)
	s.router.HandleFunc("PUT /v1/users/{user}/subject", s.handleSetSubject)
	s.router.HandleFunc("POST /v1/users/{user}/subject/validate", s.handleValidateSubject)

	// Exercises
	s.router.HandleFunc("POST /v1/users/{user}/exercises", s.handleRequestExercise)
	s.router.HandleFunc("POST /v1/users/{user}/exercises/official", s.handleRandomOfficial)
	s.router.HandleFunc("GET /v1/users/{user}/exercises/pending", s.handlePendingExercise)
	s.router.HandleFunc("POST /v1/users/{user}/exercises/{id}/answer", s.handleAnswer)

	// Telemetry
	s.router.HandleFunc("GET /v1/users/{user}/stats", s.handleStats)
	s.router.HandleFunc("GET /v1/users/{user}/progress", s.handleProgress)
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting paes daemon",
		"addr", s.server.Addr,
		"llm_providers", s.providers,
		"storage", s.cfg.Storage.Driver,
		"queue", s.cfg.Queue.Enabled,
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down daemon...")
	return s.server.Shutdown(ctx)
}

// Handler implementations

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":          "running",
		"version":         Version,
		"uptime":          time.Since(s.started).Round(time.Second).String(),
		"llm_providers":   s.providers,
		"storage":         s.cfg.Storage.Driver,
		"queue":           s.cfg.Queue.Enabled,
		"active_sessions": len(s.sessions.Users()),
	})
}

type subjectInfo struct {
	Slug     domain.Slug         `json:"slug"`
	Name     string              `json:"name"`
	TestCode domain.TestCode     `json:"test_code"`
	LegacyID domain.LegacyTestID `json:"legacy_id"`
}

type testInfo struct {
	TestCode     domain.TestCode     `json:"test_code"`
	Name         string              `json:"name"`
	LegacyID     domain.LegacyTestID `json:"legacy_id"`
	DefaultSkill domain.Skill        `json:"default_skill"`
	Skills       []skillInfo         `json:"skills"`
}

type skillInfo struct {
	Skill domain.Skill `json:"skill"`
	Name  string       `json:"name"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	subjects := make([]subjectInfo, 0, len(domain.Slugs()))
	for _, slug := range domain.Slugs() {
		id, err := domain.IdentityForSlug(slug)
		if err != nil {
			continue
		}
		subjects = append(subjects, subjectInfo{
			Slug:     slug,
			Name:     domain.DisplayName(slug),
			TestCode: id.TestCode,
			LegacyID: id.LegacyID,
		})
	}

	tests := make([]testInfo, 0, len(domain.TestCodes()))
	for _, code := range domain.TestCodes() {
		info := testInfo{
			TestCode:     code,
			Name:         domain.TestDisplayName(code),
			LegacyID:     domain.LegacyIDForTest(code),
			DefaultSkill: domain.DefaultSkill(code),
		}
		for _, skill := range domain.SkillsFor(code) {
			info.Skills = append(info.Skills, skillInfo{Skill: skill, Name: skill.DisplayName()})
		}
		tests = append(tests, info)
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"subjects": subjects,
		"tests":    tests,
	})
}

func (s *Server) handleExams(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		s.jsonResponse(w, http.StatusOK, exam.Stats{Exams: []exam.ExamSummary{}})
		return
	}
	s.jsonResponse(w, http.StatusOK, s.catalog.Stats())
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*practice.Session, bool) {
	sess, err := s.sessions.Session(r.Context(), r.PathValue("user"))
	if err != nil {
		s.jsonError(w, statusFor(err), "invalid user", err)
		return nil, false
	}
	return sess, true
}

type subjectResponse struct {
	domain.Identity
	Name     string `json:"name"`
	TestName string `json:"test_name"`
}

func newSubjectResponse(id domain.Identity) subjectResponse {
	return subjectResponse{
		Identity: id,
		Name:     domain.DisplayName(id.Slug),
		TestName: domain.TestDisplayName(id.TestCode),
	}
}

func (s *Server) handleGetSubject(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, newSubjectResponse(sess.Identity()))
}

// SetSubjectRequest selects a subject by exactly one of its three keys.
type SetSubjectRequest struct {
	Slug     string `json:"slug,omitempty"`
	TestCode string `json:"test_code,omitempty"`
	LegacyID *int   `json:"legacy_id,omitempty"`
}

func (s *Server) handleSetSubject(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req SetSubjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	var err error
	switch set := countSet(req.Slug != "", req.TestCode != "", req.LegacyID != nil); {
	case set != 1:
		s.jsonError(w, http.StatusBadRequest, "exactly one of slug, test_code or legacy_id is required", nil)
		return
	case req.Slug != "":
		err = sess.SetSubject(domain.Slug(strings.TrimSpace(req.Slug)))
	case req.TestCode != "":
		err = sess.SetTestCode(domain.TestCode(strings.ToUpper(strings.TrimSpace(req.TestCode))))
	default:
		err = sess.SetLegacyID(domain.LegacyTestID(*req.LegacyID))
	}
	if err != nil {
		s.jsonError(w, statusFor(err), "failed to set subject", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, newSubjectResponse(sess.Identity()))
}

func countSet(flags ...bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}

func (s *Server) handleValidateSubject(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	consistent := sess.Validate()
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"consistent": consistent,
		"subject":    newSubjectResponse(sess.Identity()),
	})
}

// ExerciseRequest optionally names the skill to practice.
type ExerciseRequest struct {
	Skill string `json:"skill,omitempty"`
}

func (s *Server) handleRequestExercise(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req ExerciseRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
	}

	var hint domain.Skill
	if req.Skill != "" {
		skill, err := domain.ParseSkill(req.Skill)
		if err != nil {
			s.jsonError(w, statusFor(err), "unknown skill", err)
			return
		}
		hint = skill
	}

	ex, err := sess.RequestExercise(r.Context(), hint)
	if err != nil {
		s.jsonError(w, statusFor(err), "failed to get exercise", err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, newExerciseView(ex))
}

func (s *Server) handleRandomOfficial(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	ex, err := sess.RandomOfficial(r.Context())
	if err != nil {
		s.jsonError(w, statusFor(err), "failed to get official exercise", err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, newExerciseView(ex))
}

func (s *Server) handlePendingExercise(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	ex := sess.Pending()
	if ex == nil {
		s.jsonError(w, http.StatusNotFound, "no pending exercise", nil)
		return
	}
	s.jsonResponse(w, http.StatusOK, newExerciseView(ex))
}

// ExerciseView is an exercise without its answer key.
type ExerciseView struct {
	ID             string            `json:"id"`
	TestCode       domain.TestCode   `json:"test_code"`
	Skill          domain.Skill      `json:"skill"`
	Difficulty     domain.Difficulty `json:"difficulty"`
	Question       string            `json:"question"`
	Options        []string          `json:"options"`
	Source         domain.Source     `json:"source"`
	ExamCode       string            `json:"exam_code,omitempty"`
	QuestionNumber int               `json:"question_number,omitempty"`
}

func newExerciseView(ex *domain.Exercise) ExerciseView {
	return ExerciseView{
		ID:             ex.ID,
		TestCode:       ex.TestCode,
		Skill:          ex.Skill,
		Difficulty:     ex.Difficulty,
		Question:       ex.Question,
		Options:        ex.Options,
		Source:         ex.Source,
		ExamCode:       ex.ExamCode,
		QuestionNumber: ex.QuestionNumber,
	}
}

// AnswerRequest carries either the option text or its index.
type AnswerRequest struct {
	Selected string `json:"selected,omitempty"`
	Index    *int   `json:"index,omitempty"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	exerciseID := r.PathValue("id")

	var req AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	var (
		res *practice.Result
		err error
	)
	switch {
	case req.Index != nil && req.Selected != "":
		s.jsonError(w, http.StatusBadRequest, "send either selected or index, not both", nil)
		return
	case req.Index != nil:
		res, err = sess.SubmitIndex(r.Context(), exerciseID, *req.Index)
	case req.Selected != "":
		res, err = sess.Submit(r.Context(), exerciseID, req.Selected)
	default:
		s.jsonError(w, http.StatusBadRequest, "selected or index is required", nil)
		return
	}
	if err != nil {
		s.jsonError(w, statusFor(err), "failed to submit answer", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, res)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	if s.telemetry == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "telemetry not configured", nil)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.jsonError(w, http.StatusBadRequest, "limit must be a non-negative integer", err)
			return
		}
		limit = n
	}

	stats, err := s.telemetry.RecentStats(r.Context(), user, limit)
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to load stats", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, stats)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if s.progress == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "progress not configured", nil)
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var test domain.TestCode
	if r.URL.Query().Get("scope") != "all" {
		test = sess.Identity().TestCode
	}

	overview, err := s.progress.Overview(r.Context(), sess.UserID(), test)
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to build progress", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, overview)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownSubject),
		errors.Is(err, domain.ErrUnknownTestCode),
		errors.Is(err, domain.ErrUnknownLegacyID),
		errors.Is(err, domain.ErrUnknownSkill),
		errors.Is(err, domain.ErrUnknownDifficulty),
		errors.Is(err, domain.ErrInvalidOption),
		errors.Is(err, practice.ErrMissingUser):
		return http.StatusBadRequest
	case errors.Is(err, practice.ErrExerciseNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyAnswered),
		errors.Is(err, domain.ErrStaleExercise):
		return http.StatusConflict
	case errors.Is(err, domain.ErrExerciseUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string, err error) {
	resp := map[string]string{"error": message}
	if err != nil {
		resp["details"] = err.Error()
		if status >= 500 {
			s.logger.Error(message, "error", err)
		}
	}
	s.jsonResponse(w, status, resp)
}
