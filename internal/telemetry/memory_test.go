package telemetry

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/paespro/lectoguia/internal/domain"
)

func record(t *testing.T, s *MemoryStore, n int, user string, skill domain.Skill, correct bool) {
	t.Helper()
	err := s.RecordAttempt(context.Background(), &domain.ExerciseAttempt{
		ID:        fmt.Sprintf("%s-%d", user, n),
		UserID:    user,
		Skill:     skill,
		IsCorrect: correct,
	})
	if err != nil {
		t.Fatalf("RecordAttempt() error = %v", err)
	}
}

func TestMemoryStore_RecentStats(t *testing.T) {
	s := NewMemoryStore(domain.DefaultProficiencyRule())
	for i, correct := range []bool{false, true, true, false} {
		record(t, s, i, "u1", domain.SkillModel, correct)
	}

	tests := []struct {
		limit int
		want  domain.RecentStats
	}{
		{2, domain.RecentStats{TotalQuestions: 2, CorrectAnswers: 1, Accuracy: 50}},
		{3, domain.RecentStats{TotalQuestions: 3, CorrectAnswers: 2, Accuracy: 200.0 / 3}},
		{0, domain.RecentStats{TotalQuestions: 4, CorrectAnswers: 2, Accuracy: 50}},
	}
	for _, tt := range tests {
		got, err := s.RecentStats(context.Background(), "u1", tt.limit)
		if err != nil {
			t.Fatalf("RecentStats() error = %v", err)
		}
		if got.TotalQuestions != tt.want.TotalQuestions || got.CorrectAnswers != tt.want.CorrectAnswers ||
			math.Abs(got.Accuracy-tt.want.Accuracy) > 1e-9 {
			t.Errorf("RecentStats(%d) = %+v; want %+v", tt.limit, *got, tt.want)
		}
	}
}

func TestMemoryStore_ProgressBySkill(t *testing.T) {
	s := NewMemoryStore(domain.DefaultProficiencyRule())
	record(t, s, 1, "u1", domain.SkillTrackLocate, true)
	record(t, s, 2, "u1", domain.SkillTrackLocate, true)
	record(t, s, 3, "u1", domain.SkillEvaluateReflect, false)
	record(t, s, 4, "u2", domain.SkillTrackLocate, false)

	got, _ := s.ProgressBySkill(context.Background(), "u1")
	want := map[domain.Skill]domain.SkillProgress{
		domain.SkillTrackLocate:     {Total: 2, Correct: 2, Accuracy: 100},
		domain.SkillEvaluateReflect: {Total: 1, Correct: 0, Accuracy: 0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ProgressBySkill() mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryStore_SkillLevelAndDuplicates(t *testing.T) {
	s := NewMemoryStore(domain.DefaultProficiencyRule())
	record(t, s, 1, "u1", domain.SkillModel, true)
	record(t, s, 1, "u1", domain.SkillModel, true)

	level, found, _ := s.SkillLevel(context.Background(), "u1", domain.SkillModel)
	if !found || math.Abs(level-0.55) > 1e-9 {
		t.Errorf("SkillLevel() = %v, %v; want 0.55, true", level, found)
	}
	if n := len(s.Attempts("u1")); n != 1 {
		t.Errorf("Attempts() len = %d; want 1", n)
	}
	if _, found, _ := s.SkillLevel(context.Background(), "u1", domain.SkillRepresent); found {
		t.Error("SkillLevel() found untouched skill")
	}
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	s := NewMemoryStore(domain.DefaultProficiencyRule())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.RecordAttempt(ctx, &domain.ExerciseAttempt{ID: "x"}); err == nil {
		t.Error("RecordAttempt() should honor a canceled context")
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	s := NewMemoryStore(domain.DefaultProficiencyRule())
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s.RecordAttempt(context.Background(), &domain.ExerciseAttempt{
				ID: fmt.Sprint(n), UserID: "u", Skill: domain.SkillModel, IsCorrect: n%2 == 0,
			})
			s.RecentStats(context.Background(), "u", 5)
		}(i)
	}
	wg.Wait()

	stats, _ := s.RecentStats(context.Background(), "u", 0)
	if stats.TotalQuestions != 50 || stats.CorrectAnswers != 25 {
		t.Errorf("RecentStats() = %+v; want 50/25", stats)
	}
}
