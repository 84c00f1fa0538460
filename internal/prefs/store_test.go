package prefs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"speaking-practice/internal/models"
)

func TestStore_Defaults(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "prefs.json"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if got := s.Settings(); got != models.DefaultSettings() {
		t.Errorf("expected default settings, got %+v", got)
	}
	if s.TestCompleted() {
		t.Error("expected test not completed")
	}
	if _, ok := s.TestResult(); ok {
		t.Error("expected no test result")
	}
	if _, ok := s.Get("anything"); ok {
		t.Error("expected missing key")
	}
}

func TestStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.json")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	want := models.Settings{Difficulty: 3, Speed: 4, CustomPrompt: "You are a barista."}
	if err := s.SaveSettings(want); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}
	if err := s.Set("theme", "dark"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected preferences file, got %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if got := reopened.Settings(); got != want {
		t.Errorf("expected %+v after reload, got %+v", want, got)
	}
	if got := reopened.CustomPrompt(); got != "You are a barista." {
		t.Errorf("unexpected custom prompt %q", got)
	}
	if v, ok := reopened.Get("theme"); !ok || v != "dark" {
		t.Errorf("expected opaque value to survive reload, got %q", v)
	}
}

func TestStore_TestResultSeedsSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	d, sp := models.RecommendedSettings(9)
	result := models.TestResult{
		Score:                 9,
		RecommendedDifficulty: d,
		RecommendedSpeed:      sp,
		CompletedAt:           time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := s.SaveTestResult(result); err != nil {
		t.Fatalf("SaveTestResult failed: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if !reopened.TestCompleted() {
		t.Error("expected test completed")
	}
	got, ok := reopened.TestResult()
	if !ok || got.Score != 9 || !got.CompletedAt.Equal(result.CompletedAt) {
		t.Errorf("unexpected test result %+v", got)
	}
	if s := reopened.Settings(); s.Difficulty != 3 || s.Speed != 3 {
		t.Errorf("expected recommended settings, got %+v", s)
	}

	// Explicit settings win over the recommendation
	if err := reopened.SaveSettings(models.Settings{Difficulty: 1, Speed: 5}); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}
	if s := reopened.Settings(); s.Difficulty != 1 || s.Speed != 5 {
		t.Errorf("expected saved settings, got %+v", s)
	}
}

func TestStore_UnreadableValues_FallBack(t *testing.T) {
	s, err := Open("")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Set(KeySettings, "{not json"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got := s.Settings(); got != models.DefaultSettings() {
		t.Errorf("expected defaults for unreadable settings, got %+v", got)
	}

	if err := s.Set(KeySettings, `{"difficulty":9,"speed":0}`); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got := s.Settings(); got != models.DefaultSettings() {
		t.Errorf("expected out-of-range values clamped to defaults, got %+v", got)
	}
}

func TestOpen_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	if err := os.WriteFile(path, []byte("{{{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Error("expected error for corrupt preferences file")
	}
}
