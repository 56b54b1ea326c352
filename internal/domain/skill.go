package domain

import "strings"

// Skill is a sub-competency tag, partitioned per PAES test.
type Skill string

const (
	SkillTrackLocate         Skill = "TRACK_LOCATE"
	SkillInterpretRelate     Skill = "INTERPRET_RELATE"
	SkillEvaluateReflect     Skill = "EVALUATE_REFLECT"
	SkillSolveProblems       Skill = "SOLVE_PROBLEMS"
	SkillRepresent           Skill = "REPRESENT"
	SkillModel               Skill = "MODEL"
	SkillArgueCommunicate    Skill = "ARGUE_COMMUNICATE"
	SkillIdentifyTheories    Skill = "IDENTIFY_THEORIES"
	SkillProcessAnalyze      Skill = "PROCESS_ANALYZE"
	SkillApplyPrinciples     Skill = "APPLY_PRINCIPLES"
	SkillScientificArgument  Skill = "SCIENTIFIC_ARGUMENT"
	SkillTemporalThinking    Skill = "TEMPORAL_THINKING"
	SkillSourceAnalysis      Skill = "SOURCE_ANALYSIS"
	SkillMulticausalAnalysis Skill = "MULTICAUSAL_ANALYSIS"
	SkillCriticalThinking    Skill = "CRITICAL_THINKING"
	SkillReflection          Skill = "REFLECTION"
)

// Difficulty of an exercise.
type Difficulty string

const (
	DifficultyBasico     Difficulty = "BASICO"
	DifficultyIntermedio Difficulty = "INTERMEDIO"
	DifficultyAvanzado   Difficulty = "AVANZADO"
)

var mathSkills = []Skill{SkillSolveProblems, SkillRepresent, SkillModel, SkillArgueCommunicate}

var skillsByTest = map[TestCode][]Skill{
	TestCompetenciaLectora: {SkillTrackLocate, SkillInterpretRelate, SkillEvaluateReflect},
	TestMatematica1:        mathSkills,
	TestMatematica2:        mathSkills,
	TestCiencias:           {SkillIdentifyTheories, SkillProcessAnalyze, SkillApplyPrinciples, SkillScientificArgument},
	TestHistoria:           {SkillTemporalThinking, SkillSourceAnalysis, SkillMulticausalAnalysis, SkillCriticalThinking, SkillReflection},
}

var defaultSkill = map[TestCode]Skill{
	TestCompetenciaLectora: SkillInterpretRelate,
	TestMatematica1:        SkillSolveProblems,
	TestMatematica2:        SkillModel,
	TestCiencias:           SkillProcessAnalyze,
	TestHistoria:           SkillTemporalThinking,
}

var skillNames = map[Skill]string{
	SkillTrackLocate:         "Localizar información",
	SkillInterpretRelate:     "Interpretar y relacionar",
	SkillEvaluateReflect:     "Evaluar y reflexionar",
	SkillSolveProblems:       "Resolver problemas",
	SkillRepresent:           "Representar",
	SkillModel:               "Modelar",
	SkillArgueCommunicate:    "Argumentar y comunicar",
	SkillIdentifyTheories:    "Identificar teorías",
	SkillProcessAnalyze:      "Procesar y analizar",
	SkillApplyPrinciples:     "Aplicar principios",
	SkillScientificArgument:  "Argumentación científica",
	SkillTemporalThinking:    "Pensamiento temporal",
	SkillSourceAnalysis:      "Análisis de fuentes",
	SkillMulticausalAnalysis: "Análisis multicausal",
	SkillCriticalThinking:    "Pensamiento crítico",
	SkillReflection:          "Reflexión",
}

// Skills returns every known skill.
func Skills() []Skill {
	seen := make(map[Skill]bool)
	var out []Skill
	for _, t := range testOrder {
		for _, s := range skillsByTest[t] {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// SkillsFor returns the skill partition of a test.
func SkillsFor(t TestCode) []Skill {
	return append([]Skill(nil), skillsByTest[t]...)
}

// DefaultSkill returns the skill practiced when no valid hint is given.
func DefaultSkill(t TestCode) Skill {
	return defaultSkill[t]
}

// Valid reports whether the skill is one of the known skills.
func (s Skill) Valid() bool {
	_, ok := skillNames[s]
	return ok
}

// BelongsTo reports whether the skill is in the test's partition.
func (s Skill) BelongsTo(t TestCode) bool {
	for _, candidate := range skillsByTest[t] {
		if candidate == s {
			return true
		}
	}
	return false
}

// DisplayName returns the Spanish label of the skill.
func (s Skill) DisplayName() string {
	if name, ok := skillNames[s]; ok {
		return name
	}
	return string(s)
}

// ParseSkill accepts a skill name in any case.
func ParseSkill(raw string) (Skill, error) {
	s := Skill(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", &UnknownValueError{Kind: ErrUnknownSkill, Value: raw}
	}
	return s, nil
}

// Valid reports whether d is one of the three difficulty levels.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyBasico, DifficultyIntermedio, DifficultyAvanzado:
		return true
	}
	return false
}

// ParseDifficulty accepts a difficulty name in any case.
func ParseDifficulty(raw string) (Difficulty, error) {
	d := Difficulty(strings.ToUpper(strings.TrimSpace(raw)))
	if !d.Valid() {
		return "", &UnknownValueError{Kind: ErrUnknownDifficulty, Value: raw}
	}
	return d, nil
}

// DifficultyTable maps a skill to the difficulty used for official lookups.
type DifficultyTable map[Skill]Difficulty

// DefaultDifficultyTable returns the built-in skill to difficulty mapping.
func DefaultDifficultyTable() DifficultyTable {
	return DifficultyTable{
		SkillTrackLocate:         DifficultyBasico,
		SkillInterpretRelate:     DifficultyIntermedio,
		SkillEvaluateReflect:     DifficultyAvanzado,
		SkillSolveProblems:       DifficultyIntermedio,
		SkillRepresent:           DifficultyIntermedio,
		SkillModel:               DifficultyAvanzado,
		SkillArgueCommunicate:    DifficultyAvanzado,
		SkillIdentifyTheories:    DifficultyBasico,
		SkillProcessAnalyze:      DifficultyIntermedio,
		SkillApplyPrinciples:     DifficultyIntermedio,
		SkillScientificArgument:  DifficultyAvanzado,
		SkillTemporalThinking:    DifficultyIntermedio,
		SkillSourceAnalysis:      DifficultyIntermedio,
		SkillMulticausalAnalysis: DifficultyAvanzado,
		SkillCriticalThinking:    DifficultyBasico,
		SkillReflection:          DifficultyAvanzado,
	}
}

// For returns the difficulty of a skill, defaulting to INTERMEDIO.
func (t DifficultyTable) For(s Skill) Difficulty {
	if d, ok := t[s]; ok {
		return d
	}
	return DifficultyIntermedio
}

// Merge returns a copy of t with overrides applied.
func (t DifficultyTable) Merge(overrides DifficultyTable) DifficultyTable {
	out := make(DifficultyTable, len(t)+len(overrides))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
