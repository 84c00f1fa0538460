package conversation

import "testing"

func TestResolveTranscript(t *testing.T) {
	tests := []struct {
		name     string
		explicit string
		live     string
		stored   string
		want     string
	}{
		{"explicit wins", "hello", "live", "stored", "hello"},
		{"blank explicit falls to live", "   ", "live text", "stored", "live text"},
		{"blank live falls to stored", "", " ", "stored text", "stored text"},
		{"all blank", "", "\t", "", ""},
		{"trims", "  padded  ", "", "", "padded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveTranscript(tt.explicit, tt.live, tt.stored); got != tt.want {
				t.Errorf("resolveTranscript() = %q, want %q", got, tt.want)
			}
		})
	}
}
