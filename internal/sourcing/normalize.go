package sourcing

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/paespro/lectoguia/internal/domain"
)

// Named defaults applied when the generator omits a field.
var (
	PlaceholderOptions     = []string{"Opción A", "Opción B", "Opción C", "Opción D"}
	PlaceholderExplanation = "Explicación del ejercicio"
)

var letterPrefix = regexp.MustCompile(`^\s*([A-Ea-e])\s*[\)\.\:\-]\s*`)

// officialExercise converts a bank question. It rejects questions that do not
// have at least two options and exactly one correct alternative.
func officialExercise(examCode string, id domain.Identity, skill domain.Skill, difficulty domain.Difficulty, q *domain.RawQuestion, now time.Time) (*domain.Exercise, error) {
	if len(q.Options) < 2 {
		return nil, fmt.Errorf("%w: question %d has %d options", domain.ErrInvalidExercise, q.Number, len(q.Options))
	}

	options := make([]string, 0, len(q.Options))
	correct := ""
	correctCount := 0
	for _, opt := range q.Options {
		text := strings.TrimSpace(opt.Text)
		options = append(options, text)
		if opt.IsCorrect {
			correct = text
			correctCount++
		}
	}
	if correctCount != 1 {
		return nil, fmt.Errorf("%w: question %d has %d correct options", domain.ErrInvalidExercise, q.Number, correctCount)
	}

	question := strings.TrimSpace(q.PromptText)
	if ctxText := strings.TrimSpace(q.ContextText); ctxText != "" {
		question = ctxText + "\n\n" + question
	}

	if q.Difficulty.Valid() {
		difficulty = q.Difficulty
	}

	ref := q.ID
	if q.Number > 0 {
		ref = fmt.Sprint(q.Number)
	}

	ex := &domain.Exercise{
		ID:             fmt.Sprintf("paes-%s-%s-%s", examCode, ref, uuid.NewString()[:8]),
		TestCode:       id.TestCode,
		Skill:          skill,
		Difficulty:     difficulty,
		Question:       question,
		Options:        options,
		CorrectAnswer:  correct,
		Explanation:    officialExplanation(examCode, q.Number, options, correct),
		Source:         domain.SourceOfficial,
		ExamCode:       examCode,
		QuestionNumber: q.Number,
		CreatedAt:      now,
	}
	if err := ex.Validate(); err != nil {
		return nil, err
	}
	return ex, nil
}

func officialExplanation(examCode string, number int, options []string, correct string) string {
	for i, opt := range options {
		if opt == correct {
			return fmt.Sprintf("Pregunta %d del examen oficial %s. La alternativa correcta es %s) %s.",
				number, examCode, domain.Letter(i), correct)
		}
	}
	return fmt.Sprintf("Pregunta %d del examen oficial %s.", number, examCode)
}

// generatedExercise turns a generator response into a closed Exercise record.
func generatedExercise(req domain.GenerationRequest, resp *domain.GeneratedExercise, now time.Time) (*domain.Exercise, error) {
	options := cleanOptions(resp.Options)
	correct := ""
	if len(options) < 2 {
		options = append([]string(nil), PlaceholderOptions...)
		correct = options[0]
	} else {
		var ok bool
		correct, ok = matchAnswer(options, resp.CorrectAnswer)
		if !ok {
			return nil, fmt.Errorf("%w: correct answer %q does not match any option", domain.ErrInvalidExercise, resp.CorrectAnswer)
		}
	}

	question := strings.TrimSpace(resp.Question)
	if question == "" {
		question = fmt.Sprintf("Ejercicio de %s: %s", req.Subject, req.Skill.DisplayName())
	}
	if ctxText := strings.TrimSpace(resp.Context); ctxText != "" && !strings.Contains(question, ctxText) {
		question = ctxText + "\n\n" + question
	}

	explanation := strings.TrimSpace(resp.Explanation)
	if explanation == "" {
		explanation = PlaceholderExplanation
	}

	ex := &domain.Exercise{
		ID:            generatedID(now),
		TestCode:      req.TestCode,
		Skill:         req.Skill,
		Difficulty:    req.Difficulty,
		Question:      question,
		Options:       options,
		CorrectAnswer: correct,
		Explanation:   explanation,
		Source:        domain.SourceGenerated,
		CreatedAt:     now,
	}
	if err := ex.Validate(); err != nil {
		return nil, err
	}
	return ex, nil
}

func generatedID(now time.Time) string {
	return fmt.Sprintf("gen-%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}

func cleanOptions(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, opt := range raw {
		if opt = strings.TrimSpace(opt); opt != "" {
			out = append(out, opt)
		}
	}
	return out
}

// matchAnswer resolves the generator's correctAnswer against the options:
// exact text first, then a bare letter, then text ignoring letter prefix and case.
func matchAnswer(options []string, answer string) (string, bool) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", false
	}
	for _, opt := range options {
		if opt == answer {
			return opt, true
		}
	}

	if idx, ok := letterIndex(answer); ok && idx < len(options) {
		return options[idx], true
	}

	want := strings.ToLower(stripLetter(answer))
	for _, opt := range options {
		if strings.ToLower(stripLetter(opt)) == want {
			return opt, true
		}
	}
	return "", false
}

func letterIndex(s string) (int, bool) {
	s = strings.TrimRight(strings.TrimSpace(s), ").:")
	if len(s) != 1 {
		return 0, false
	}
	c := strings.ToUpper(s)[0]
	if c < 'A' || c > 'Z' {
		return 0, false
	}
	return int(c - 'A'), true
}

func stripLetter(s string) string {
	return strings.TrimSpace(letterPrefix.ReplaceAllString(s, ""))
}
