package exam

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/paespro/lectoguia/internal/domain"
)

var ErrExamNotFound = errors.New("exam not found")

// ExamFile is the YAML layout of one official exam.
type ExamFile struct {
	Code      string         `yaml:"code"`
	Name      string         `yaml:"name"`
	Test      string         `yaml:"test"`
	Year      int            `yaml:"year"`
	Questions []QuestionFile `yaml:"questions"`
}

// QuestionFile is one question inside an exam file.
type QuestionFile struct {
	Number     int    `yaml:"number"`
	Prompt     string `yaml:"prompt"`
	Context    string `yaml:"context"`
	Difficulty string `yaml:"difficulty"`
	Options    []struct {
		Letter  string `yaml:"letter"`
		Text    string `yaml:"text"`
		Correct bool   `yaml:"correct"`
	} `yaml:"options"`
}

// Exam is a loaded official exam.
type Exam struct {
	Code      string
	Name      string
	TestCode  domain.TestCode
	Year      int
	Questions []*domain.RawQuestion
}

// Loader reads exam files from a directory, one <CODE>.yaml per exam.
type Loader struct {
	basePath string
}

// NewLoader creates a loader rooted at basePath.
func NewLoader(basePath string) *Loader {
	return &Loader{basePath: basePath}
}

// BasePath returns the directory the loader reads from.
func (l *Loader) BasePath() string {
	return l.basePath
}

// LoadExam loads a single exam by code.
func (l *Loader) LoadExam(code string) (*Exam, error) {
	path := filepath.Join(l.basePath, code+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrExamNotFound, code)
		}
		return nil, fmt.Errorf("read exam file: %w", err)
	}
	return parseExam(code, data)
}

// LoadAll loads every exam file in the directory, sorted by code.
// A missing directory yields no exams.
func (l *Loader) LoadAll() ([]*Exam, error) {
	entries, err := os.ReadDir(l.basePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read exams directory: %w", err)
	}

	var exams []*Exam
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".yaml" {
			continue
		}
		ex, err := l.LoadExam(strings.TrimSuffix(name, ".yaml"))
		if err != nil {
			return nil, fmt.Errorf("load exam %s: %w", name, err)
		}
		exams = append(exams, ex)
	}

	sort.Slice(exams, func(i, j int) bool { return exams[i].Code < exams[j].Code })
	return exams, nil
}

func parseExam(code string, data []byte) (*Exam, error) {
	var file ExamFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse exam file: %w", err)
	}
	if file.Code == "" {
		file.Code = code
	}
	if file.Code != code {
		return nil, fmt.Errorf("exam file %s declares code %s", code, file.Code)
	}

	test := domain.TestCode(file.Test)
	if !test.Valid() {
		return nil, &domain.UnknownValueError{Kind: domain.ErrUnknownTestCode, Value: file.Test}
	}

	ex := &Exam{
		Code:      file.Code,
		Name:      file.Name,
		TestCode:  test,
		Year:      file.Year,
		Questions: make([]*domain.RawQuestion, 0, len(file.Questions)),
	}

	total := len(file.Questions)
	for i, qf := range file.Questions {
		number := qf.Number
		if number == 0 {
			number = i + 1
		}

		difficulty := positionalDifficulty(i, total)
		if qf.Difficulty != "" {
			d, err := domain.ParseDifficulty(qf.Difficulty)
			if err != nil {
				return nil, fmt.Errorf("question %d: %w", number, err)
			}
			difficulty = d
		}

		q := &domain.RawQuestion{
			ID:          fmt.Sprintf("%s-%d", file.Code, number),
			Number:      number,
			PromptText:  qf.Prompt,
			ContextText: qf.Context,
			Difficulty:  difficulty,
			Options:     make([]domain.RawOption, 0, len(qf.Options)),
		}
		for j, opt := range qf.Options {
			letter := opt.Letter
			if letter == "" {
				letter = domain.Letter(j)
			}
			q.Options = append(q.Options, domain.RawOption{
				ID:        letter,
				Text:      opt.Text,
				IsCorrect: opt.Correct,
			})
		}
		ex.Questions = append(ex.Questions, q)
	}

	return ex, nil
}

// positionalDifficulty splits an exam in thirds when a question has no
// explicit difficulty: later questions are harder.
func positionalDifficulty(index, total int) domain.Difficulty {
	if total == 0 {
		return domain.DifficultyIntermedio
	}
	switch third := index * 3 / total; third {
	case 0:
		return domain.DifficultyBasico
	case 1:
		return domain.DifficultyIntermedio
	default:
		return domain.DifficultyAvanzado
	}
}
