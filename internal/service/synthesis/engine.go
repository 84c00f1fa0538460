// Package synthesis speaks bot replies through a speech engine with voice
// selection, sentence chunking and interruption handling.
package synthesis

import "errors"

// Errors reported by engines and the synthesizer.
var (
	// ErrInterrupted is reported by an engine when an utterance is cut off
	// by a cancel or by a newer utterance.
	ErrInterrupted     = errors.New("speech interrupted")
	ErrSynthesisFailed = errors.New("speech synthesis failed")
	ErrClosed          = errors.New("synthesizer is closed")
)

// Voice is one voice offered by an engine.
type Voice struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Lang   string `json:"lang"`
	Gender string `json:"gender,omitempty"`
}

// Utterance is one piece of text handed to an engine.
type Utterance struct {
	Text  string
	Rate  float64
	Lang  string
	Voice *Voice // nil uses the engine default
}

// Callbacks receive the asynchronous outcome of Speak. OnEnd or OnError is
// called exactly once per accepted utterance; OnStart at most once before it.
type Callbacks struct {
	OnStart func()
	OnEnd   func()
	OnError func(err error)
}

// Engine is a platform speech engine.
type Engine interface {
	// Voices returns the voices known so far. May be empty until the engine
	// has finished loading them.
	Voices() []Voice

	// VoicesChanged returns a channel that is closed once the voice list has
	// loaded, or nil if the engine offers no such notification.
	VoicesChanged() <-chan struct{}

	// Speak starts an utterance. A returned error means it was never started.
	Speak(u Utterance, cb Callbacks) error

	// Cancel stops the utterance in flight, which reports ErrInterrupted.
	Cancel()
}
