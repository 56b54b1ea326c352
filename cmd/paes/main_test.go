package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/paespro/lectoguia/internal/daemon"
)

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		value float64
		want  string
	}{
		{0, "[░░░░░░░░░░]"},
		{0.5, "[█████░░░░░]"},
		{1, "[██████████]"},
		{1.7, "[██████████]"},
		{-0.2, "[░░░░░░░░░░]"},
	}
	for _, tt := range tests {
		if got := renderProgressBar(tt.value, 10); got != tt.want {
			t.Errorf("renderProgressBar(%v) = %q; want %q", tt.value, got, tt.want)
		}
	}
}

func TestSubjectRequest(t *testing.T) {
	tests := []struct {
		arg  string
		want daemon.SetSubjectRequest
	}{
		{"lectura", daemon.SetSubjectRequest{Slug: "lectura"}},
		{"Matematicas-Basica", daemon.SetSubjectRequest{Slug: "matematicas-basica"}},
		{"3", daemon.SetSubjectRequest{LegacyID: legacyID(3)}},
		{"0", daemon.SetSubjectRequest{LegacyID: legacyID(0)}},
		{"competencia_lectora", daemon.SetSubjectRequest{TestCode: "COMPETENCIA_LECTORA"}},
		{"HISTORIA", daemon.SetSubjectRequest{TestCode: "HISTORIA"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, subjectRequest(tt.arg)); diff != "" {
			t.Errorf("subjectRequest(%q) mismatch (-want +got):\n%s", tt.arg, diff)
		}
	}
}

func legacyID(n int) *int { return &n }

func TestAnswerRequest(t *testing.T) {
	tests := []struct {
		option    string
		wantIndex int
		wantText  string
	}{
		{"a", 0, ""},
		{"C)", 2, ""},
		{"e.", 4, ""},
		{"Persuadir", -1, "Persuadir"},
		{"F", -1, "F"},
		{"B) exponencial", -1, "B) exponencial"},
	}
	for _, tt := range tests {
		got := answerRequest(tt.option)
		if tt.wantIndex >= 0 {
			if got.Index == nil || *got.Index != tt.wantIndex {
				t.Errorf("answerRequest(%q).Index = %v; want %d", tt.option, got.Index, tt.wantIndex)
			}
			continue
		}
		if got.Index != nil || got.Selected != tt.wantText {
			t.Errorf("answerRequest(%q) = %+v; want selected %q", tt.option, got, tt.wantText)
		}
	}
}

func TestWithLetter(t *testing.T) {
	if got := withLetter(1, "B) Persuadir"); got != "B) Persuadir" {
		t.Errorf("withLetter() = %q", got)
	}
	if got := withLetter(0, "Informar"); got != "A) Informar" {
		t.Errorf("withLetter() = %q", got)
	}
}

func setupDaemon(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	prev := daemonAddr
	daemonAddr = srv.URL
	t.Cleanup(func() { daemonAddr = prev })
}

func TestDoJSON(t *testing.T) {
	setupDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/health":
			w.WriteHeader(http.StatusOK)
		case "/v1/users/ana/subject":
			if r.Method != http.MethodPut || r.Header.Get("Content-Type") != "application/json" {
				t.Errorf("unexpected request %s %s", r.Method, r.Header.Get("Content-Type"))
			}
			var req daemon.SetSubjectRequest
			json.NewDecoder(r.Body).Decode(&req)
			json.NewEncoder(w).Encode(map[string]any{"subject_slug": req.Slug, "name": "Ciencias"})
		case "/v1/users/ana/exercises/x/answer":
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]string{"error": "failed to submit answer", "details": "exercise already answered"})
		default:
			http.NotFound(w, r)
		}
	})
	t.Setenv("PAES_USER", "ana")

	if !isRunning() {
		t.Fatal("isRunning() = false")
	}

	var got subjectView
	if err := doJSON(http.MethodPut, userPath("/subject"), daemon.SetSubjectRequest{Slug: "ciencias"}, &got); err != nil {
		t.Fatalf("doJSON() error = %v", err)
	}
	if got.Slug != "ciencias" || got.Name != "Ciencias" {
		t.Errorf("decoded %+v", got)
	}

	err := doJSON(http.MethodPost, userPath("/exercises/%s/answer", "x"), answerRequest("a"), nil)
	if statusOf(err) != http.StatusConflict {
		t.Fatalf("statusOf(%v) = %d; want 409", err, statusOf(err))
	}
	if err.Error() != "failed to submit answer: exercise already answered" {
		t.Errorf("error = %q", err)
	}

	if err := getJSON("/v1/missing", nil); statusOf(err) != http.StatusNotFound {
		t.Errorf("missing route error = %v; want 404", err)
	}
}

func TestRequireDaemon_NotRunning(t *testing.T) {
	prev := daemonAddr
	daemonAddr = "http://127.0.0.1:1"
	t.Cleanup(func() { daemonAddr = prev })

	if err := requireDaemon(); err == nil {
		t.Error("requireDaemon() error = nil; want daemon not running")
	}
}
