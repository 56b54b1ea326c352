package subject

import (
	"errors"
	"sync"
	"testing"

	"github.com/paespro/lectoguia/internal/domain"
)

func setupRegistry(t *testing.T) (*Registry, *[]Change) {
	t.Helper()
	r := NewRegistry(nil)
	var changes []Change
	r.Subscribe(func(c Change) { changes = append(changes, c) })
	return r, &changes
}

func TestNewRegistry_Default(t *testing.T) {
	r := NewRegistry(nil)
	if got := r.Current(); got != domain.DefaultIdentity() {
		t.Errorf("Current() = %v; want default", got)
	}
}

func TestSetBySlug_AllSlugs(t *testing.T) {
	for _, slug := range domain.Slugs() {
		t.Run(string(slug), func(t *testing.T) {
			r := NewRegistry(nil)
			if err := r.SetBySlug(slug); err != nil {
				t.Fatalf("SetBySlug() error = %v", err)
			}
			cur := r.Current()
			wantTest, _ := domain.TestForSlug(slug)
			if cur.TestCode != wantTest {
				t.Errorf("TestCode = %s; want %s", cur.TestCode, wantTest)
			}
			if cur.LegacyID != domain.LegacyIDForTest(wantTest) {
				t.Errorf("LegacyID = %d; want %d", cur.LegacyID, domain.LegacyIDForTest(wantTest))
			}
			if !r.Validate() {
				t.Error("Validate() = false right after a setter")
			}
		})
	}
}

func TestSetByTestCode_AllCodes(t *testing.T) {
	for _, code := range domain.TestCodes() {
		r := NewRegistry(nil)
		if err := r.SetByTestCode(code); err != nil {
			t.Fatalf("SetByTestCode(%s) error = %v", code, err)
		}
		wantSlug, _ := domain.SlugForTest(code)
		if got := r.Current().Slug; got != wantSlug {
			t.Errorf("SetByTestCode(%s) slug = %s; want %s", code, got, wantSlug)
		}
		if !r.Validate() {
			t.Errorf("Validate() = false after SetByTestCode(%s)", code)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, slug := range domain.Slugs() {
		r := NewRegistry(nil)
		if err := r.SetBySlug(slug); err != nil {
			t.Fatalf("SetBySlug() error = %v", err)
		}
		id := r.Current()

		if err := r.SetByTestCode(id.TestCode); err != nil {
			t.Fatalf("SetByTestCode() error = %v", err)
		}
		if got := r.Current(); got != id {
			t.Errorf("after SetByTestCode round-trip: %v; want %v", got, id)
		}

		if err := r.SetByLegacyID(id.LegacyID); err != nil {
			t.Fatalf("SetByLegacyID() error = %v", err)
		}
		if got := r.Current(); got != id {
			t.Errorf("after SetByLegacyID round-trip: %v; want %v", got, id)
		}
	}
}

func TestSetByLegacyID_Scenario(t *testing.T) {
	r, changes := setupRegistry(t)

	if err := r.SetByLegacyID(3); err != nil {
		t.Fatalf("SetByLegacyID() error = %v", err)
	}
	want := domain.Identity{Slug: domain.SlugMatematicasAvanzada, TestCode: domain.TestMatematica2, LegacyID: 3}
	if got := r.Current(); got != want {
		t.Errorf("Current() = %v; want %v", got, want)
	}
	if len(*changes) != 1 {
		t.Fatalf("notifications = %d; want 1", len(*changes))
	}
	if (*changes)[0].Origin != OriginLegacyID {
		t.Errorf("Origin = %s; want legacy_id", (*changes)[0].Origin)
	}
}

func TestSetters_Invalid(t *testing.T) {
	r, changes := setupRegistry(t)

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"slug", func() error { return r.SetBySlug("quimica") }, domain.ErrUnknownSubject},
		{"test code", func() error { return r.SetByTestCode("QUIMICA") }, domain.ErrUnknownTestCode},
		{"legacy zero", func() error { return r.SetByLegacyID(0) }, domain.ErrUnknownLegacyID},
		{"legacy six", func() error { return r.SetByLegacyID(6) }, domain.ErrUnknownLegacyID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.want) {
				t.Errorf("error = %v; want %v", err, tt.want)
			}
		})
	}

	if got := r.Current(); got != domain.DefaultIdentity() {
		t.Errorf("identity changed after failed setters: %v", got)
	}
	if len(*changes) != 0 {
		t.Errorf("notifications = %d; want 0", len(*changes))
	}
}

func TestNoOpDoesNotNotify(t *testing.T) {
	r, changes := setupRegistry(t)

	if err := r.SetBySlug(domain.SlugLectura); err != nil {
		t.Fatalf("SetBySlug() error = %v", err)
	}
	if err := r.SetByTestCode(domain.TestCompetenciaLectora); err != nil {
		t.Fatalf("SetByTestCode() error = %v", err)
	}
	if err := r.SetByLegacyID(1); err != nil {
		t.Fatalf("SetByLegacyID() error = %v", err)
	}
	if len(*changes) != 0 {
		t.Errorf("notifications = %d; want 0", len(*changes))
	}

	if err := r.SetBySlug(domain.SlugCiencias); err != nil {
		t.Fatalf("SetBySlug() error = %v", err)
	}
	if err := r.SetBySlug(domain.SlugCiencias); err != nil {
		t.Fatalf("SetBySlug() error = %v", err)
	}
	if len(*changes) != 1 {
		t.Errorf("notifications = %d; want 1", len(*changes))
	}
}

func TestGeneralSlugKeptByMatchingTestCode(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.SetBySlug(domain.SlugGeneral); err != nil {
		t.Fatalf("SetBySlug() error = %v", err)
	}
	if err := r.SetByTestCode(domain.TestCompetenciaLectora); err != nil {
		t.Fatalf("SetByTestCode() error = %v", err)
	}
	if got := r.Current().Slug; got != domain.SlugGeneral {
		t.Errorf("Slug = %s; want general", got)
	}
}

func TestValidate_HealsCorruption(t *testing.T) {
	r, changes := setupRegistry(t)
	if err := r.SetBySlug(domain.SlugCiencias); err != nil {
		t.Fatalf("SetBySlug() error = %v", err)
	}

	// Desync the triple outside the API.
	r.mu.Lock()
	r.current.TestCode = domain.TestHistoria
	r.current.LegacyID = 5
	r.mu.Unlock()

	if r.Validate() {
		t.Fatal("Validate() = true; want false after corruption")
	}
	want := domain.Identity{Slug: domain.SlugCiencias, TestCode: domain.TestCiencias, LegacyID: 4}
	if got := r.Current(); got != want {
		t.Errorf("Current() = %v; want %v", got, want)
	}
	if last := (*changes)[len(*changes)-1]; last.Origin != OriginValidate {
		t.Errorf("last Origin = %s; want validate", last.Origin)
	}
	if !r.Validate() {
		t.Error("second Validate() = false")
	}
}

func TestValidate_CorruptSlugFallsBackToDefault(t *testing.T) {
	r := NewRegistry(nil)
	r.mu.Lock()
	r.current.Slug = "bogus"
	r.mu.Unlock()

	if r.Validate() {
		t.Fatal("Validate() = true; want false")
	}
	if got := r.Current(); got != domain.DefaultIdentity() {
		t.Errorf("Current() = %v; want default", got)
	}
}

func TestRestore(t *testing.T) {
	r := NewRegistry(nil)
	err := r.Restore(domain.Identity{Slug: domain.SlugHistoria, TestCode: domain.TestCiencias, LegacyID: 1})
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	want := domain.Identity{Slug: domain.SlugHistoria, TestCode: domain.TestHistoria, LegacyID: 5}
	if got := r.Current(); got != want {
		t.Errorf("Current() = %v; want %v", got, want)
	}
}

func TestUnsubscribe(t *testing.T) {
	r := NewRegistry(nil)
	calls := 0
	unsubscribe := r.Subscribe(func(Change) { calls++ })

	_ = r.SetBySlug(domain.SlugHistoria)
	unsubscribe()
	_ = r.SetBySlug(domain.SlugCiencias)

	if calls != 1 {
		t.Errorf("calls = %d; want 1", calls)
	}
}

func TestConcurrentReadsNeverSeePartialUpdate(t *testing.T) {
	r := NewRegistry(nil)
	slugs := domain.Slugs()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if id := r.Current(); !id.Consistent() {
					t.Errorf("observed inconsistent identity %v", id)
					return
				}
			}
		}()
	}

	for i := 0; i < 1000; i++ {
		_ = r.SetBySlug(slugs[i%len(slugs)])
	}
	close(stop)
	wg.Wait()
}
