package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/paespro/lectoguia/internal/domain"
)

var ErrMalformedExercise = errors.New("generator output is not a valid exercise JSON object")

const systemPrompt = `Eres un experto en la Prueba de Acceso a la Educación Superior (PAES) de Chile.
Creas ejercicios de práctica auténticos, alineados con el temario oficial del DEMRE,
con cuatro alternativas y una sola respuesta correcta. Respondes siempre en español de Chile.`

// ExerciseGenerator builds PAES prompts and parses the provider's JSON reply.
type ExerciseGenerator struct {
	registry    *Registry
	provider    string
	maxTokens   int
	temperature float64
	logger      *slog.Logger
}

// GeneratorConfig tunes the exercise generator.
type GeneratorConfig struct {
	// Provider forces a registry entry; empty uses the registry default.
	Provider    string
	MaxTokens   int
	Temperature float64
	Logger      *slog.Logger
}

// NewExerciseGenerator creates a generator backed by registry.
func NewExerciseGenerator(registry *Registry, cfg GeneratorConfig) *ExerciseGenerator {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1500
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.7
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ExerciseGenerator{
		registry:    registry,
		provider:    cfg.Provider,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      cfg.Logger,
	}
}

// Generate asks the provider for one exercise.
func (g *ExerciseGenerator) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GeneratedExercise, error) {
	provider, err := g.pick()
	if err != nil {
		return nil, err
	}

	resp, err := provider.Generate(ctx, &Request{
		System:      systemPrompt,
		Messages:    []Message{{Role: RoleUser, Content: BuildPrompt(req)}},
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
		JSON:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", provider.Name(), err)
	}

	g.logger.Debug("exercise generated",
		"provider", provider.Name(),
		"skill", req.Skill,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)

	return ParseExercise(resp.Content)
}

func (g *ExerciseGenerator) pick() (Provider, error) {
	if g.provider != "" {
		return g.registry.Get(g.provider)
	}
	return g.registry.Default()
}

// BuildPrompt renders the user prompt for a generation request.
func BuildPrompt(req domain.GenerationRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Genera un ejercicio PAES auténtico para %s nivel %s.\n",
		domain.TestDisplayName(req.TestCode), req.Difficulty)
	fmt.Fprintf(&b, "Asignatura: %s.\n", req.Subject)
	fmt.Fprintf(&b, "Habilidad evaluada: %s (%s).\n\n", req.Skill.DisplayName(), req.Skill)
	b.WriteString(testStructure(req.TestCode))
	b.WriteString("\n\nDevuelve un objeto JSON con exactamente estos campos:\n")
	b.WriteString(`{"text": "texto o contexto de la pregunta (puede ser vacío)", `)
	b.WriteString(`"question": "enunciado", `)
	b.WriteString(`"options": ["A) ...", "B) ...", "C) ...", "D) ..."], `)
	b.WriteString(`"correctAnswer": "la alternativa correcta, copiada exactamente de options"`)
	if req.IncludeExplanation {
		b.WriteString(`, "explanation": "por qué la alternativa es correcta y las demás no"`)
	}
	b.WriteString("}")
	return b.String()
}

func testStructure(t domain.TestCode) string {
	switch t {
	case domain.TestCompetenciaLectora:
		return "Incluye un texto breve (literario o no literario) de 150 a 250 palabras y una pregunta de comprensión lectora sobre él."
	case domain.TestMatematica1:
		return "Plantea un problema contextualizado de números, álgebra, geometría o probabilidad del nivel M1, con datos numéricos concretos."
	case domain.TestMatematica2:
		return "Plantea un problema de nivel M2 (funciones, logaritmos, trigonometría o estadística avanzada) que requiera modelar la situación."
	case domain.TestCiencias:
		return "Plantea una situación experimental o fenómeno de biología, química o física y una pregunta sobre su análisis."
	case domain.TestHistoria:
		return "Incluye una fuente histórica breve (cita, dato o cronología) sobre historia de Chile o universal y una pregunta de análisis."
	}
	return ""
}

type rawExercise struct {
	Text          string          `json:"text"`
	Question      string          `json:"question"`
	Options       json.RawMessage `json:"options"`
	CorrectAnswer json.RawMessage `json:"correctAnswer"`
	Explanation   string          `json:"explanation"`
}

// ParseExercise extracts the JSON object from a completion. Options may be
// an array of strings, an array of {"text": ...} objects, or a letter map.
func ParseExercise(content string) (*domain.GeneratedExercise, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, ErrMalformedExercise
	}

	var raw rawExercise
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedExercise, err)
	}

	return &domain.GeneratedExercise{
		Context:       raw.Text,
		Question:      raw.Question,
		Options:       decodeOptions(raw.Options),
		CorrectAnswer: decodeAnswer(raw.CorrectAnswer),
		Explanation:   raw.Explanation,
	}, nil
}

func decodeOptions(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}

	var objects []struct {
		Text    string `json:"text"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &objects); err == nil {
		out := make([]string, 0, len(objects))
		for _, o := range objects {
			if o.Text != "" {
				out = append(out, o.Text)
			} else {
				out = append(out, o.Content)
			}
		}
		return out
	}

	var byLetter map[string]string
	if err := json.Unmarshal(raw, &byLetter); err == nil {
		keys := make([]string, 0, len(byLetter))
		for k := range byLetter {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]string, 0, len(keys))
		for _, k := range keys {
			out = append(out, byLetter[k])
		}
		return out
	}
	return nil
}

// decodeAnswer accepts a string or a zero-based index.
func decodeAnswer(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var idx int
	if err := json.Unmarshal(raw, &idx); err == nil && idx >= 0 {
		return domain.Letter(idx)
	}
	return ""
}
