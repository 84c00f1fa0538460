package synthesis

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// ConsoleEngine prints utterances and simulates the time it takes to say
// them. Used when no speech service is configured.
type ConsoleEngine struct {
	out            io.Writer
	WordsPerMinute float64

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewConsoleEngine creates an engine writing to out.
func NewConsoleEngine(out io.Writer) *ConsoleEngine {
	return &ConsoleEngine{out: out, WordsPerMinute: 150}
}

// Voices returns the single built-in voice.
func (e *ConsoleEngine) Voices() []Voice {
	return []Voice{{ID: "console", Name: "Console Natural English", Lang: "en-US", Gender: "female"}}
}

// VoicesChanged returns nil; the voice list is available immediately.
func (e *ConsoleEngine) VoicesChanged() <-chan struct{} {
	return nil
}

// Speak writes the text and reports the end after the simulated duration.
func (e *ConsoleEngine) Speak(u Utterance, cb Callbacks) error {
	ctx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.cancel = cancel
	e.mu.Unlock()

	go func() {
		defer cancel()
		if cb.OnStart != nil {
			cb.OnStart()
		}
		fmt.Fprintf(e.out, "[bot] %s\n", strings.TrimPrefix(u.Text, PauseMarker))

		t := time.NewTimer(e.duration(u))
		defer t.Stop()
		select {
		case <-ctx.Done():
			if cb.OnError != nil {
				cb.OnError(ErrInterrupted)
			}
		case <-t.C:
			if cb.OnEnd != nil {
				cb.OnEnd()
			}
		}
	}()
	return nil
}

// Cancel interrupts the utterance in flight.
func (e *ConsoleEngine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

func (e *ConsoleEngine) duration(u Utterance) time.Duration {
	rate := u.Rate
	if rate <= 0 {
		rate = 1
	}
	wpm := e.WordsPerMinute
	if wpm <= 0 {
		wpm = 150
	}
	words := float64(len(strings.Fields(u.Text)))
	return time.Duration(words / (wpm * rate) * float64(time.Minute))
}
