package conversation

import "strings"

// resolveTranscript picks the text to commit for a finished recording.
// The first non-blank candidate wins: the explicit text (supplied by the
// caller, or else the transcription result), the most recently observed
// live transcript, then the last non-blank transcript seen this span.
func resolveTranscript(explicit, live, stored string) string {
	for _, s := range []string{explicit, live, stored} {
		if t := strings.TrimSpace(s); t != "" {
			return t
		}
	}
	return ""
}
