// Package mcp exposes PAES practice as MCP tools.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"

	"github.com/paespro/lectoguia/internal/domain"
	"github.com/paespro/lectoguia/internal/practice"
	"github.com/paespro/lectoguia/internal/progress"
)

// DefaultUser is used when a tool call names no user.
const DefaultUser = "local"

// Server wraps the MCP server with PAES practice tools
type Server struct {
	mcpServer *server.Server
	sessions  *practice.Manager
	progress  *progress.Service
}

// Config contains configuration for the MCP server
type Config struct {
	Sessions *practice.Manager
	Progress *progress.Service
	Version  string
}

// NewServer creates a new MCP server
func NewServer(cfg Config) *Server {
	if cfg.Version == "" {
		cfg.Version = "0.3.0"
	}
	s := &Server{
		sessions: cfg.Sessions,
		progress: cfg.Progress,
	}

	s.mcpServer = server.New(server.Info{
		Name:    "paes-pro",
		Version: cfg.Version,
	}, server.WithInstructions(`
PAES Pro serves practice exercises for the Chilean university admission test (PAES).
Official DEMRE questions are served first; generated exercises fill the gaps.

Available tools:
- paes_subject: Show the active subject (slug, test code, legacy id)
- paes_set_subject: Change subject by slug, test code or legacy id (1-5)
- paes_request_exercise: Get an exercise for the active subject
- paes_submit_answer: Answer the pending exercise by option text or index
- paes_progress: Skill levels, weakest first, with a recommendation

Subjects: general, lectura, matematicas-basica, matematicas-avanzada, ciencias, historia.
Each exercise can be answered once; requesting a new one replaces the pending one.
`))

	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcpServer.Tool("paes_subject").
		Description("Show the active PAES subject.").
		Handler(s.handleSubject)

	s.mcpServer.Tool("paes_set_subject").
		Description("Change the active subject. Give exactly one of slug, test_code or legacy_id.").
		Handler(s.handleSetSubject)

	s.mcpServer.Tool("paes_request_exercise").
		Description("Get a practice exercise for the active subject.").
		Handler(s.handleRequestExercise)

	s.mcpServer.Tool("paes_submit_answer").
		Description("Answer the pending exercise. Returns correctness, feedback and the updated skill level.").
		Handler(s.handleSubmitAnswer)

	s.mcpServer.Tool("paes_progress").
		Description("Show skill progress, weakest first, and the skill to practice next.").
		Handler(s.handleProgress)
}

// Input/Output types for tools

type UserInput struct {
	UserID string `json:"user_id,omitempty" jsonschema:"description=Student id (default: local)"`
}

type SubjectOutput struct {
	Slug     domain.Slug         `json:"slug"`
	Name     string              `json:"name"`
	TestCode domain.TestCode     `json:"test_code"`
	TestName string              `json:"test_name"`
	LegacyID domain.LegacyTestID `json:"legacy_id"`
}

type SetSubjectInput struct {
	UserID   string `json:"user_id,omitempty" jsonschema:"description=Student id (default: local)"`
	Slug     string `json:"slug,omitempty" jsonschema:"description=Subject slug,enum=general,enum=lectura,enum=matematicas-basica,enum=matematicas-avanzada,enum=ciencias,enum=historia"`
	TestCode string `json:"test_code,omitempty" jsonschema:"description=PAES test code such as MATEMATICA_1"`
	LegacyID *int   `json:"legacy_id,omitempty" jsonschema:"description=Numeric test id from 1 to 5"`
}

type ExerciseInput struct {
	UserID       string `json:"user_id,omitempty" jsonschema:"description=Student id (default: local)"`
	Skill        string `json:"skill,omitempty" jsonschema:"description=Skill to practice such as INTERPRET_RELATE; ignored if it does not belong to the subject"`
	OfficialOnly bool   `json:"official_only,omitempty" jsonschema:"description=Serve a random official question with no generation fallback"`
}

type ExerciseOutput struct {
	ExerciseID string            `json:"exercise_id"`
	Source     domain.Source     `json:"source"`
	Skill      domain.Skill      `json:"skill"`
	Difficulty domain.Difficulty `json:"difficulty"`
	Question   string            `json:"question"`
	Options    []string          `json:"options"`
}

type AnswerInput struct {
	UserID     string `json:"user_id,omitempty" jsonschema:"description=Student id (default: local)"`
	ExerciseID string `json:"exercise_id" jsonschema:"description=Exercise id from paes_request_exercise"`
	Selected   string `json:"selected,omitempty" jsonschema:"description=Option text or letter (A-E)"`
	Index      *int   `json:"index,omitempty" jsonschema:"description=Zero-based option index"`
}

type ProgressInput struct {
	UserID string `json:"user_id,omitempty" jsonschema:"description=Student id (default: local)"`
	All    bool   `json:"all,omitempty" jsonschema:"description=Include skills of every test, not only the active one"`
}

// Tool handlers

func (s *Server) session(ctx context.Context, userID string) (*practice.Session, error) {
	if s.sessions == nil {
		return nil, errors.New("practice sessions not configured")
	}
	if strings.TrimSpace(userID) == "" {
		userID = DefaultUser
	}
	return s.sessions.Session(ctx, userID)
}

func subjectOutput(id domain.Identity) SubjectOutput {
	return SubjectOutput{
		Slug:     id.Slug,
		Name:     domain.DisplayName(id.Slug),
		TestCode: id.TestCode,
		TestName: domain.TestDisplayName(id.TestCode),
		LegacyID: id.LegacyID,
	}
}

func (s *Server) handleSubject(ctx context.Context, input UserInput) (SubjectOutput, error) {
	sess, err := s.session(ctx, input.UserID)
	if err != nil {
		return SubjectOutput{}, err
	}
	return subjectOutput(sess.Identity()), nil
}

func (s *Server) handleSetSubject(ctx context.Context, input SetSubjectInput) (SubjectOutput, error) {
	sess, err := s.session(ctx, input.UserID)
	if err != nil {
		return SubjectOutput{}, err
	}

	hasLegacy := input.LegacyID != nil
	switch {
	case input.Slug != "" && input.TestCode == "" && !hasLegacy:
		err = sess.SetSubject(domain.Slug(strings.TrimSpace(input.Slug)))
	case input.TestCode != "" && input.Slug == "" && !hasLegacy:
		err = sess.SetTestCode(domain.TestCode(strings.ToUpper(strings.TrimSpace(input.TestCode))))
	case hasLegacy && input.Slug == "" && input.TestCode == "":
		err = sess.SetLegacyID(domain.LegacyTestID(*input.LegacyID))
	default:
		return SubjectOutput{}, errors.New("give exactly one of slug, test_code or legacy_id")
	}
	if err != nil {
		return SubjectOutput{}, err
	}
	return subjectOutput(sess.Identity()), nil
}

func (s *Server) handleRequestExercise(ctx context.Context, input ExerciseInput) (ExerciseOutput, error) {
	sess, err := s.session(ctx, input.UserID)
	if err != nil {
		return ExerciseOutput{}, err
	}

	var ex *domain.Exercise
	if input.OfficialOnly {
		ex, err = sess.RandomOfficial(ctx)
	} else {
		var hint domain.Skill
		if input.Skill != "" {
			if hint, err = domain.ParseSkill(input.Skill); err != nil {
				return ExerciseOutput{}, err
			}
		}
		ex, err = sess.RequestExercise(ctx, hint)
	}
	if err != nil {
		return ExerciseOutput{}, fmt.Errorf("failed to get exercise: %w", err)
	}

	options := make([]string, len(ex.Options))
	for i, opt := range ex.Options {
		options[i] = labelOption(i, opt)
	}
	return ExerciseOutput{
		ExerciseID: ex.ID,
		Source:     ex.Source,
		Skill:      ex.Skill,
		Difficulty: ex.Difficulty,
		Question:   ex.Question,
		Options:    options,
	}, nil
}

// labelOption prefixes an option with its letter unless it already has one.
func labelOption(i int, opt string) string {
	prefix := domain.Letter(i) + ")"
	if strings.HasPrefix(opt, prefix) {
		return opt
	}
	return prefix + " " + opt
}

func (s *Server) handleSubmitAnswer(ctx context.Context, input AnswerInput) (*practice.Result, error) {
	sess, err := s.session(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	switch {
	case input.Index != nil:
		return sess.SubmitIndex(ctx, input.ExerciseID, *input.Index)
	case input.Selected == "":
		return nil, errors.New("selected or index is required")
	}

	// a bare letter selects by position
	if idx, ok := letterIndex(input.Selected); ok {
		if pending := sess.Pending(); pending != nil && pending.ID == input.ExerciseID && idx < len(pending.Options) {
			return sess.SubmitIndex(ctx, input.ExerciseID, idx)
		}
	}
	return sess.Submit(ctx, input.ExerciseID, input.Selected)
}

func letterIndex(s string) (int, bool) {
	s = strings.TrimRight(strings.TrimSpace(s), ").")
	if len(s) != 1 {
		return 0, false
	}
	c := strings.ToUpper(s)[0]
	if c < 'A' || c > 'E' {
		return 0, false
	}
	return int(c - 'A'), true
}

func (s *Server) handleProgress(ctx context.Context, input ProgressInput) (*progress.Overview, error) {
	if s.progress == nil {
		return nil, errors.New("progress not configured")
	}
	sess, err := s.session(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	var test domain.TestCode
	if !input.All {
		test = sess.Identity().TestCode
	}
	return s.progress.Overview(ctx, sess.UserID(), test)
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP (alternative transport)
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server (for testing)
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
