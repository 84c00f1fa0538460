package synthesis

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestWithPause(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello.", ", Hello."},
		{"  Hello.  ", ", Hello."},
		{", already paused", ", already paused"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := WithPause(tt.in); got != tt.want {
			t.Errorf("WithPause(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSplitSegments_ShortText_Unchanged(t *testing.T) {
	text := "Hi there. How are you?"
	got := SplitSegments(text, 200)
	if len(got) != 1 || got[0] != text {
		t.Errorf("expected single unchanged segment, got %q", got)
	}
}

func TestSplitSegments_LongText_SplitsOnSentences(t *testing.T) {
	text := strings.Repeat("Tell me about your favourite place to visit on holiday! ", 3) +
		"Why do you like it? And what would you change about it"

	got := SplitSegments(text, 60)

	if len(got) < 2 {
		t.Fatalf("expected at least 2 segments, got %d", len(got))
	}
	if last := got[len(got)-1]; last != "And what would you change about it" {
		t.Errorf("expected trailing text as its own segment, got %q", last)
	}
	if strings.Join(strings.Fields(strings.Join(got, " ")), " ") != strings.Join(strings.Fields(text), " ") {
		t.Errorf("segments lost text: %q", got)
	}
}

func TestSplitSegments_LongSentence_WrapsAtWords(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("word ", 80))

	got := SplitSegments(text, 50)

	if len(got) < 2 {
		t.Fatalf("expected wrapped segments, got %d", len(got))
	}
	total := 0
	for _, s := range got {
		if n := utf8.RuneCountInString(s); n > 50 {
			t.Errorf("segment longer than threshold (%d): %q", n, s)
		}
		total += len(strings.Fields(s))
	}
	if total != 80 {
		t.Errorf("expected 80 words across segments, got %d", total)
	}
}

func TestSplitSegments_OverlongWord_IsCut(t *testing.T) {
	got := wrapWords(strings.Repeat("a", 25), 10)
	if len(got) != 3 || got[0] != strings.Repeat("a", 10) || got[2] != strings.Repeat("a", 5) {
		t.Errorf("unexpected pieces %q", got)
	}
}

func TestRateForLevel(t *testing.T) {
	tests := []struct {
		level int
		want  float64
	}{
		{1, 0.7},
		{2, 0.85},
		{3, 1.0},
		{4, 1.15},
		{5, 1.3},
		{0, 1.0},
		{9, 1.0},
	}
	for _, tt := range tests {
		if got := RateForLevel(tt.level); got != tt.want {
			t.Errorf("RateForLevel(%d) = %v, want %v", tt.level, got, tt.want)
		}
	}

	for level := 1; level < 5; level++ {
		if RateForLevel(level) >= RateForLevel(level+1) {
			t.Errorf("expected rate to increase from level %d to %d", level, level+1)
		}
	}
}
