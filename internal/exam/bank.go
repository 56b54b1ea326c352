package exam

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/paespro/lectoguia/internal/domain"
)

// Bank is an in-memory cache of official exams loaded from YAML files.
type Bank struct {
	loader *Loader
	mu     sync.RWMutex
	exams  map[string]*Exam
	pick   func(n int) int
}

// NewBank creates an empty bank backed by loader.
func NewBank(loader *Loader) *Bank {
	return &Bank{
		loader: loader,
		exams:  make(map[string]*Exam),
		pick:   rand.IntN,
	}
}

// Load reads every exam from disk.
func (b *Bank) Load() error {
	exams, err := b.loader.LoadAll()
	if err != nil {
		return fmt.Errorf("load exams: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ex := range exams {
		b.exams[ex.Code] = ex
	}
	return nil
}

// Reload drops the cache and loads again.
func (b *Bank) Reload() error {
	b.mu.Lock()
	b.exams = make(map[string]*Exam)
	b.mu.Unlock()
	return b.Load()
}

// Add registers an exam directly, replacing one with the same code.
func (b *Bank) Add(ex *Exam) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exams[ex.Code] = ex
}

// Get returns an exam by code.
func (b *Bank) Get(code string) (*Exam, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ex, ok := b.exams[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExamNotFound, code)
	}
	return ex, nil
}

// ExamExists reports whether the exam is loaded.
func (b *Bank) ExamExists(_ context.Context, code string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.exams[code]
	return ok, nil
}

// QuestionByDifficulty returns a random question of the given difficulty,
// or nil when the exam has none.
func (b *Bank) QuestionByDifficulty(_ context.Context, code string, difficulty domain.Difficulty) (*domain.RawQuestion, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ex, ok := b.exams[code]
	if !ok {
		return nil, nil
	}
	var matches []*domain.RawQuestion
	for _, q := range ex.Questions {
		if q.Difficulty == difficulty {
			matches = append(matches, q)
		}
	}
	return b.choose(matches), nil
}

// RandomQuestion returns any question of the exam, or nil.
func (b *Bank) RandomQuestion(_ context.Context, code string) (*domain.RawQuestion, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ex, ok := b.exams[code]
	if !ok {
		return nil, nil
	}
	return b.choose(ex.Questions), nil
}

func (b *Bank) choose(qs []*domain.RawQuestion) *domain.RawQuestion {
	if len(qs) == 0 {
		return nil
	}
	q := *qs[b.pick(len(qs))]
	q.Options = append([]domain.RawOption(nil), q.Options...)
	return &q
}

// ExamSummary describes one loaded exam.
type ExamSummary struct {
	Code         string                    `json:"code"`
	Name         string                    `json:"name"`
	TestCode     domain.TestCode           `json:"test_code"`
	Year         int                       `json:"year"`
	Questions    int                       `json:"questions"`
	ByDifficulty map[domain.Difficulty]int `json:"by_difficulty"`
}

// Stats holds statistics about the bank.
type Stats struct {
	ExamCount     int           `json:"exam_count"`
	QuestionCount int           `json:"question_count"`
	Exams         []ExamSummary `json:"exams"`
}

// Stats summarizes the loaded exams, sorted by code.
func (b *Bank) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := Stats{ExamCount: len(b.exams)}
	for _, ex := range b.exams {
		summary := ExamSummary{
			Code:         ex.Code,
			Name:         ex.Name,
			TestCode:     ex.TestCode,
			Year:         ex.Year,
			Questions:    len(ex.Questions),
			ByDifficulty: make(map[domain.Difficulty]int),
		}
		for _, q := range ex.Questions {
			summary.ByDifficulty[q.Difficulty]++
		}
		stats.QuestionCount += len(ex.Questions)
		stats.Exams = append(stats.Exams, summary)
	}
	sort.Slice(stats.Exams, func(i, j int) bool { return stats.Exams[i].Code < stats.Exams[j].Code })
	return stats
}
