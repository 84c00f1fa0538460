// Package mock provides a transcription backend for running without cloud
// credentials. It cycles through canned utterances.
package mock

import (
	"context"
	"sync"
	"time"

	"speaking-practice/internal/service/transcription"
)

// DefaultUtterances are returned in turn when no texts are configured.
var DefaultUtterances = []string{
	"Hello, I would like to practice my English.",
	"I went to the park yesterday with my friends.",
	"What do you like to do on weekends?",
	"I am planning a trip to London next month.",
	"Can you tell me more about that?",
}

// Backend implements transcription.Backend with canned responses.
type Backend struct {
	texts   []string
	latency time.Duration

	mu    sync.Mutex
	index int
}

// New creates a mock backend. With no texts it uses DefaultUtterances.
func New(latency time.Duration, texts ...string) *Backend {
	if len(texts) == 0 {
		texts = DefaultUtterances
	}
	return &Backend{texts: texts, latency: latency}
}

// Name returns the provider name.
func (b *Backend) Name() string {
	return "mock"
}

// Transcribe waits for the simulated latency and returns the next utterance.
func (b *Backend) Transcribe(ctx context.Context, req transcription.Request) (string, error) {
	if b.latency > 0 {
		t := time.NewTimer(b.latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	text := b.texts[b.index%len(b.texts)]
	b.index++
	return text, nil
}
