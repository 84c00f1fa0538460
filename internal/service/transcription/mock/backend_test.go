package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"speaking-practice/internal/service/transcription"
)

func TestBackend_Cycles(t *testing.T) {
	b := New(0, "one", "two")

	want := []string{"one", "two", "one"}
	for i, w := range want {
		got, err := b.Transcribe(context.Background(), transcription.Request{})
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if got != w {
			t.Errorf("call %d: expected %q, got %q", i, w, got)
		}
	}
}

func TestBackend_DefaultUtterances(t *testing.T) {
	b := New(0)
	got, _ := b.Transcribe(context.Background(), transcription.Request{})
	if got != DefaultUtterances[0] {
		t.Errorf("expected first default utterance, got %q", got)
	}
}

func TestBackend_LatencyRespectsContext(t *testing.T) {
	b := New(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := b.Transcribe(ctx, transcription.Request{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBackend_WorksWithClient(t *testing.T) {
	var _ transcription.Backend = New(0)
}
