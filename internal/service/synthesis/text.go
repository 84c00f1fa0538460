package synthesis

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// PauseMarker is spoken before the first word so the start is not clipped.
const PauseMarker = ", "

var sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]+`)

// WithPause prefixes the pause marker unless the text already starts with one.
func WithPause(text string) string {
	t := strings.TrimSpace(text)
	if t == "" || strings.HasPrefix(t, ",") {
		return t
	}
	return PauseMarker + t
}

// SplitSegments splits text longer than threshold characters into
// sentences. Trailing text without terminal punctuation becomes its own
// segment and sentences still longer than threshold are wrapped at word
// boundaries. Text within the threshold is returned whole.
func SplitSegments(text string, threshold int) []string {
	if threshold <= 0 || utf8.RuneCountInString(text) <= threshold {
		return []string{text}
	}

	var sentences []string
	last := 0
	for _, m := range sentencePattern.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[m[0]:m[1]]); s != "" {
			sentences = append(sentences, s)
		}
		last = m[1]
	}
	if rest := strings.TrimSpace(text[last:]); rest != "" {
		sentences = append(sentences, rest)
	}

	var segments []string
	for _, s := range sentences {
		if utf8.RuneCountInString(s) <= threshold {
			segments = append(segments, s)
			continue
		}
		segments = append(segments, wrapWords(s, threshold)...)
	}
	return segments
}

// wrapWords breaks s into pieces of at most limit characters.
func wrapWords(s string, limit int) []string {
	var (
		out  []string
		line strings.Builder
		n    int
	)
	flush := func() {
		if n > 0 {
			out = append(out, line.String())
			line.Reset()
			n = 0
		}
	}

	for _, w := range strings.Fields(s) {
		wn := utf8.RuneCountInString(w)
		for wn > limit {
			flush()
			r := []rune(w)
			out = append(out, string(r[:limit]))
			w = string(r[limit:])
			wn -= limit
		}
		if n > 0 && n+1+wn > limit {
			flush()
		}
		if n > 0 {
			line.WriteByte(' ')
			n++
		}
		line.WriteString(w)
		n += wn
	}
	flush()
	return out
}

// RateForLevel maps a 1-5 speed setting to a speech rate.
func RateForLevel(level int) float64 {
	switch level {
	case 1:
		return 0.7
	case 2:
		return 0.85
	case 3:
		return 1.0
	case 4:
		return 1.15
	case 5:
		return 1.3
	default:
		return 1.0
	}
}
