package main

import (
	"fmt"

	"github.com/paespro/lectoguia/internal/domain"
	"github.com/paespro/lectoguia/internal/exam"
	"github.com/paespro/lectoguia/internal/progress"
)

// cmdStats shows practice statistics
func cmdStats(args []string) error {
	if err := requireDaemon(); err != nil {
		return err
	}

	subCmd := "overview"
	if len(args) > 0 {
		subCmd = args[0]
	}

	switch subCmd {
	case "overview", "":
		return cmdStatsOverview()
	case "skills":
		scope := ""
		if len(args) > 1 && args[1] == "all" {
			scope = "?scope=all"
		}
		return cmdStatsSkills(scope)
	default:
		return fmt.Errorf("unknown stats command: %s (valid: overview, skills)", subCmd)
	}
}

func cmdStatsOverview() error {
	var recent, all domain.RecentStats
	if err := getJSON(userPath("/stats?limit=10"), &recent); err != nil {
		return fmt.Errorf("get stats: %w", err)
	}
	if err := getJSON(userPath("/stats"), &all); err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	fmt.Println("Estadísticas")
	fmt.Println("============")
	if all.TotalQuestions == 0 {
		fmt.Println("Aún no hay respuestas. ¡Empieza con 'paes practice'!")
		return nil
	}
	fmt.Printf("Total respondidas:  %d\n", all.TotalQuestions)
	fmt.Printf("Correctas:          %d (%.1f%%)\n", all.CorrectAnswers, all.Accuracy)
	fmt.Printf("Últimas %-2d:         %d/%d (%.1f%%)\n",
		recent.TotalQuestions, recent.CorrectAnswers, recent.TotalQuestions, recent.Accuracy)
	return nil
}

func cmdStatsSkills(scope string) error {
	var overview progress.Overview
	if err := getJSON(userPath("/progress")+scope, &overview); err != nil {
		return fmt.Errorf("get progress: %w", err)
	}

	fmt.Println("Habilidades (más débil primero)")
	fmt.Println("===============================")
	for _, sk := range overview.Skills {
		fmt.Printf("%-22s %s %3.0f%%  %-17s (%d/%d)\n",
			sk.Skill, renderProgressBar(sk.Level, 20), sk.Level*100, sk.Mastery, sk.Correct, sk.Attempts)
	}
	if rec := overview.Recommendation; rec != nil {
		fmt.Printf("\nSiguiente: %s. %s\n", rec.Skill, rec.Reason)
		fmt.Printf("  paes practice %s\n", rec.Skill)
	}
	return nil
}

// cmdExams lists the official exam bank
func cmdExams() error {
	if err := requireDaemon(); err != nil {
		return err
	}

	var stats exam.Stats
	if err := getJSON("/v1/exams", &stats); err != nil {
		return fmt.Errorf("get exams: %w", err)
	}

	fmt.Printf("Exámenes oficiales: %d (%d preguntas)\n\n", stats.ExamCount, stats.QuestionCount)
	for _, ex := range stats.Exams {
		fmt.Printf("  %s\n", ex.Code)
		fmt.Printf("    %s · %s · %d\n", ex.Name, ex.TestCode, ex.Year)
		fmt.Printf("    %d preguntas:", ex.Questions)
		for _, d := range []domain.Difficulty{domain.DifficultyBasico, domain.DifficultyIntermedio, domain.DifficultyAvanzado} {
			fmt.Printf(" %s %d", d, ex.ByDifficulty[d])
		}
		fmt.Println()
	}
	if stats.ExamCount == 0 {
		fmt.Println("Sin exámenes cargados: todos los ejercicios serán generados.")
	}
	return nil
}
