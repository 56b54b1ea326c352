package domain

import "fmt"

// Slug is the UI-facing identifier of a study area.
type Slug string

const (
	SlugGeneral             Slug = "general"
	SlugLectura             Slug = "lectura"
	SlugMatematicasBasica   Slug = "matematicas-basica"
	SlugMatematicasAvanzada Slug = "matematicas-avanzada"
	SlugCiencias            Slug = "ciencias"
	SlugHistoria            Slug = "historia"
)

// TestCode identifies one of the five PAES tests.
type TestCode string

const (
	TestCompetenciaLectora TestCode = "COMPETENCIA_LECTORA"
	TestMatematica1        TestCode = "MATEMATICA_1"
	TestMatematica2        TestCode = "MATEMATICA_2"
	TestCiencias           TestCode = "CIENCIAS"
	TestHistoria           TestCode = "HISTORIA"
)

// LegacyTestID is the positional numeric alias of a TestCode (1-5).
type LegacyTestID int

// Identity is the triple describing what is currently being studied.
type Identity struct {
	Slug     Slug         `json:"subject_slug"`
	TestCode TestCode     `json:"test_code"`
	LegacyID LegacyTestID `json:"legacy_test_id"`
}

// DefaultIdentity is the identity a new session starts with.
func DefaultIdentity() Identity {
	return Identity{Slug: SlugLectura, TestCode: TestCompetenciaLectora, LegacyID: 1}
}

func (id Identity) String() string {
	return fmt.Sprintf("%s/%s/%d", id.Slug, id.TestCode, id.LegacyID)
}

var slugOrder = []Slug{
	SlugGeneral,
	SlugLectura,
	SlugMatematicasBasica,
	SlugMatematicasAvanzada,
	SlugCiencias,
	SlugHistoria,
}

// testOrder is positional: index+1 is the legacy id.
var testOrder = []TestCode{
	TestCompetenciaLectora,
	TestMatematica1,
	TestMatematica2,
	TestCiencias,
	TestHistoria,
}

var slugToTest = map[Slug]TestCode{
	SlugGeneral:             TestCompetenciaLectora,
	SlugLectura:             TestCompetenciaLectora,
	SlugMatematicasBasica:   TestMatematica1,
	SlugMatematicasAvanzada: TestMatematica2,
	SlugCiencias:            TestCiencias,
	SlugHistoria:            TestHistoria,
}

var testToSlug = map[TestCode]Slug{
	TestCompetenciaLectora: SlugLectura,
	TestMatematica1:        SlugMatematicasBasica,
	TestMatematica2:        SlugMatematicasAvanzada,
	TestCiencias:           SlugCiencias,
	TestHistoria:           SlugHistoria,
}

var slugDisplayNames = map[Slug]string{
	SlugGeneral:             "General",
	SlugLectura:             "Competencia Lectora",
	SlugMatematicasBasica:   "Matemática M1",
	SlugMatematicasAvanzada: "Matemática M2",
	SlugCiencias:            "Ciencias",
	SlugHistoria:            "Historia y Ciencias Sociales",
}

// Slugs returns every known slug in catalog order.
func Slugs() []Slug {
	return append([]Slug(nil), slugOrder...)
}

// TestCodes returns the five PAES tests ordered by legacy id.
func TestCodes() []TestCode {
	return append([]TestCode(nil), testOrder...)
}

// Valid reports whether the slug is part of the closed set.
func (s Slug) Valid() bool {
	_, ok := slugToTest[s]
	return ok
}

// Valid reports whether the code is one of the five PAES tests.
func (t TestCode) Valid() bool {
	_, ok := testToSlug[t]
	return ok
}

// Valid reports whether the id is in the 1-5 range.
func (id LegacyTestID) Valid() bool {
	return id >= 1 && int(id) <= len(testOrder)
}

// TestForSlug maps a slug to its PAES test.
func TestForSlug(s Slug) (TestCode, bool) {
	t, ok := slugToTest[s]
	return t, ok
}

// SlugForTest returns the canonical slug of a test.
func SlugForTest(t TestCode) (Slug, bool) {
	s, ok := testToSlug[t]
	return s, ok
}

// LegacyIDForTest returns the positional id of a test, or 0 when unknown.
func LegacyIDForTest(t TestCode) LegacyTestID {
	for i, code := range testOrder {
		if code == t {
			return LegacyTestID(i + 1)
		}
	}
	return 0
}

// TestForLegacyID maps a legacy id back to its test.
func TestForLegacyID(id LegacyTestID) (TestCode, bool) {
	if !id.Valid() {
		return "", false
	}
	return testOrder[id-1], true
}

// IdentityForSlug derives the full triple from a slug.
func IdentityForSlug(s Slug) (Identity, error) {
	t, ok := slugToTest[s]
	if !ok {
		return Identity{}, &UnknownValueError{Kind: ErrUnknownSubject, Value: string(s)}
	}
	return Identity{Slug: s, TestCode: t, LegacyID: LegacyIDForTest(t)}, nil
}

// IdentityForTest derives the full triple from a test code using its canonical slug.
func IdentityForTest(t TestCode) (Identity, error) {
	s, ok := testToSlug[t]
	if !ok {
		return Identity{}, &UnknownValueError{Kind: ErrUnknownTestCode, Value: string(t)}
	}
	return Identity{Slug: s, TestCode: t, LegacyID: LegacyIDForTest(t)}, nil
}

// IdentityForLegacyID derives the full triple from a legacy id.
func IdentityForLegacyID(id LegacyTestID) (Identity, error) {
	t, ok := TestForLegacyID(id)
	if !ok {
		return Identity{}, &UnknownValueError{Kind: ErrUnknownLegacyID, Value: fmt.Sprint(int(id))}
	}
	return IdentityForTest(t)
}

// Consistent reports whether the three fields agree with the lookup tables.
func (id Identity) Consistent() bool {
	expected, err := IdentityForSlug(id.Slug)
	if err != nil {
		return false
	}
	return expected == id
}

// DisplayName returns the human-readable name of a slug.
func DisplayName(s Slug) string {
	if name, ok := slugDisplayNames[s]; ok {
		return name
	}
	return string(s)
}

// TestDisplayName returns the Spanish name used in prompts for a test.
func TestDisplayName(t TestCode) string {
	switch t {
	case TestCompetenciaLectora:
		return "Competencia Lectora"
	case TestMatematica1:
		return "Competencia Matemática 1 (M1)"
	case TestMatematica2:
		return "Competencia Matemática 2 (M2)"
	case TestCiencias:
		return "Ciencias"
	case TestHistoria:
		return "Historia y Ciencias Sociales"
	}
	return string(t)
}
