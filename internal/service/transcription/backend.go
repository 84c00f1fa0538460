// Package transcription turns a finished recording into text through a
// remote speech-to-text backend, with size checks and retry/backoff.
package transcription

import (
	"context"
	"errors"
	"fmt"
)

// Request is one upload to a speech-to-text backend.
type Request struct {
	Audio      []byte
	Filename   string
	MIMEType   string
	Language   string
	SampleRate int
}

// Backend defines the interface for speech-to-text providers (OpenAI, Google, mock).
type Backend interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Transcribe sends one request and returns the recognized text.
	// Failures carrying an HTTP-like status are returned as *StatusError.
	Transcribe(ctx context.Context, req Request) (string, error)
}

// StatusError carries the numeric status of a failed backend request.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %v", e.Code, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// StatusCode returns the status carried by err, or 0 if there is none.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}
