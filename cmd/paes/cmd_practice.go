package main

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/paespro/lectoguia/internal/daemon"
	"github.com/paespro/lectoguia/internal/domain"
	"github.com/paespro/lectoguia/internal/practice"
)

type subjectView struct {
	domain.Identity
	Name     string `json:"name"`
	TestName string `json:"test_name"`
}

// cmdSubject shows or changes the active subject
func cmdSubject(args []string) error {
	if err := requireDaemon(); err != nil {
		return err
	}

	if len(args) == 0 {
		var current subjectView
		if err := getJSON(userPath("/subject"), &current); err != nil {
			return fmt.Errorf("get subject: %w", err)
		}
		printSubject(current)
		return nil
	}

	if args[0] == "list" {
		return cmdSubjectList()
	}

	var updated subjectView
	if err := doJSON(http.MethodPut, userPath("/subject"), subjectRequest(args[0]), &updated); err != nil {
		return fmt.Errorf("set subject: %w", err)
	}
	printSubject(updated)
	return nil
}

// subjectRequest interprets a slug, a test code or a legacy numeric id.
func subjectRequest(arg string) daemon.SetSubjectRequest {
	arg = strings.TrimSpace(arg)
	if n, err := strconv.Atoi(arg); err == nil {
		return daemon.SetSubjectRequest{LegacyID: &n}
	}
	if strings.Contains(arg, "_") || arg == strings.ToUpper(arg) {
		return daemon.SetSubjectRequest{TestCode: strings.ToUpper(arg)}
	}
	return daemon.SetSubjectRequest{Slug: strings.ToLower(arg)}
}

func printSubject(s subjectView) {
	fmt.Printf("Materia: %s (%s)\n", s.Name, s.Slug)
	fmt.Printf("Prueba:  %s [%s, id %d]\n", s.TestName, s.TestCode, s.LegacyID)
}

func cmdSubjectList() error {
	var catalog struct {
		Subjects []struct {
			Slug     string `json:"slug"`
			Name     string `json:"name"`
			TestCode string `json:"test_code"`
			LegacyID int    `json:"legacy_id"`
		} `json:"subjects"`
		Tests []struct {
			TestCode     string `json:"test_code"`
			DefaultSkill string `json:"default_skill"`
			Skills       []struct {
				Skill string `json:"skill"`
				Name  string `json:"name"`
			} `json:"skills"`
		} `json:"tests"`
	}
	if err := getJSON("/v1/catalog", &catalog); err != nil {
		return fmt.Errorf("get catalog: %w", err)
	}

	fmt.Println("Materias")
	fmt.Println("========")
	for _, s := range catalog.Subjects {
		fmt.Printf("  %-22s %-28s %s (%d)\n", s.Slug, s.Name, s.TestCode, s.LegacyID)
	}

	fmt.Println("\nHabilidades")
	fmt.Println("===========")
	for _, t := range catalog.Tests {
		fmt.Printf("  %s\n", t.TestCode)
		for _, sk := range t.Skills {
			marker := " "
			if sk.Skill == t.DefaultSkill {
				marker = "*"
			}
			fmt.Printf("   %s %-22s %s\n", marker, sk.Skill, sk.Name)
		}
	}
	return nil
}

// cmdPractice requests an exercise for the active subject
func cmdPractice(args []string) error {
	if err := requireDaemon(); err != nil {
		return err
	}

	var ex daemon.ExerciseView
	var err error
	switch {
	case len(args) > 0 && args[0] == "official":
		err = doJSON(http.MethodPost, userPath("/exercises/official"), nil, &ex)
	case len(args) > 0:
		err = doJSON(http.MethodPost, userPath("/exercises"), daemon.ExerciseRequest{Skill: args[0]}, &ex)
	default:
		err = doJSON(http.MethodPost, userPath("/exercises"), daemon.ExerciseRequest{}, &ex)
	}
	if err != nil {
		if statusOf(err) == http.StatusServiceUnavailable {
			return fmt.Errorf("no hay ejercicios disponibles ahora (%w)", err)
		}
		return fmt.Errorf("get exercise: %w", err)
	}

	printExercise(ex)
	return nil
}

func printExercise(ex daemon.ExerciseView) {
	origin := "generado"
	if ex.Source == domain.SourceOfficial {
		origin = "oficial DEMRE"
		if ex.ExamCode != "" {
			origin = fmt.Sprintf("oficial %s #%d", ex.ExamCode, ex.QuestionNumber)
		}
	}

	fmt.Printf("[%s · %s · %s]\n\n", ex.Skill, ex.Difficulty, origin)
	fmt.Println(ex.Question)
	fmt.Println()
	for i, opt := range ex.Options {
		fmt.Printf("  %s\n", withLetter(i, opt))
	}
	fmt.Printf("\nResponde con: paes answer %s <letra>\n", ex.ID)
}

func withLetter(i int, opt string) string {
	prefix := domain.Letter(i) + ")"
	if strings.HasPrefix(opt, prefix) {
		return opt
	}
	return prefix + " " + opt
}

// cmdAnswer submits an answer by letter or option text
func cmdAnswer(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: paes answer <exercise-id> <option>")
	}
	if err := requireDaemon(); err != nil {
		return err
	}

	id := args[0]
	var res practice.Result
	err := doJSON(http.MethodPost, userPath("/exercises/%s/answer", id), answerRequest(strings.Join(args[1:], " ")), &res)
	switch statusOf(err) {
	case 0:
	case http.StatusConflict:
		return fmt.Errorf("ejercicio ya respondido o reemplazado: %w", err)
	case http.StatusNotFound:
		return fmt.Errorf("ejercicio %s no encontrado: %w", id, err)
	}
	if err != nil {
		return fmt.Errorf("submit answer: %w", err)
	}

	if res.IsCorrect {
		fmt.Println("✓ ¡Correcto!")
	} else {
		fmt.Println("✗ Incorrecto")
		fmt.Printf("  Respuesta correcta: %s\n", res.CorrectAnswer)
	}
	if res.Feedback != "" {
		fmt.Printf("\n%s\n", res.Feedback)
	}
	fmt.Printf("\n%s %s %.0f%%\n", res.Skill, renderProgressBar(res.Proficiency, 20), res.Proficiency*100)
	return nil
}

// answerRequest sends a bare letter as an index and anything else as text.
func answerRequest(option string) daemon.AnswerRequest {
	option = strings.TrimSpace(option)
	letter := strings.ToUpper(strings.TrimRight(option, ")."))
	if len(letter) == 1 && letter[0] >= 'A' && letter[0] <= 'E' {
		idx := int(letter[0] - 'A')
		return daemon.AnswerRequest{Index: &idx}
	}
	return daemon.AnswerRequest{Selected: option}
}
