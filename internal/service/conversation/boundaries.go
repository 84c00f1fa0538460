// Package conversation coordinates recording, transcription, reply
// generation and speech into one turn-taking conversation.
package conversation

import (
	"context"

	"speaking-practice/internal/models"
	"speaking-practice/internal/service/capture"
	"speaking-practice/internal/service/llm"
	"speaking-practice/internal/service/synthesis"
	"speaking-practice/internal/service/transcription"
)

// Recorder buffers microphone audio. Implemented by *capture.Session.
type Recorder interface {
	Available() bool
	OpenError() error
	Info() capture.RecordingInfo
	Start() error
	Stop() (capture.Blob, error)
	Discard()
	Close() error
}

// Transcriber turns a recording into text. Implemented by *transcription.Client.
type Transcriber interface {
	Transcribe(ctx context.Context, blob capture.Blob) (transcription.Transcript, error)
}

// Generator produces the bot reply. Implemented by *llm.Generator.
type Generator interface {
	Generate(ctx context.Context, userText string, opts llm.Options) (string, error)
}

// Speaker speaks bot replies. Implemented by *synthesis.Synthesizer.
type Speaker interface {
	Speak(ctx context.Context, text string, rate float64) <-chan synthesis.Event
	Cancel()
	Close()
}

// TurnPublisher exports turns. Implemented by *events.Publisher.
type TurnPublisher interface {
	PublishTurn(ctx context.Context, event models.TurnEvent) error
}

// SettingsStore persists conversation settings. Implemented by *prefs.Store.
type SettingsStore interface {
	Settings() models.Settings
	SaveSettings(settings models.Settings) error
}
