// Package openai provides a Whisper transcription backend on the OpenAI API.
package openai

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	goopenai "github.com/sashabaranov/go-openai"

	"speaking-practice/internal/service/transcription"
)

// Config holds OpenAI transcription settings.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// Backend implements transcription.Backend with the audio transcriptions endpoint.
type Backend struct {
	client *goopenai.Client
	model  string
}

// New creates a Whisper backend. An empty model uses whisper-1.
func New(cfg Config) *Backend {
	oc := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	model := cfg.Model
	if model == "" {
		model = goopenai.Whisper1
	}
	return &Backend{
		client: goopenai.NewClientWithConfig(oc),
		model:  model,
	}
}

// Name returns the provider name.
func (b *Backend) Name() string {
	return "openai"
}

// Transcribe uploads the recording as multipart form data with a language hint.
func (b *Backend) Transcribe(ctx context.Context, req transcription.Request) (string, error) {
	resp, err := b.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    b.model,
		FilePath: req.Filename,
		Reader:   bytes.NewReader(req.Audio),
		Language: req.Language,
		Format:   goopenai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", classify(err)
	}
	return resp.Text, nil
}

// classify attaches the HTTP status of API failures so the client can
// tell rate limiting from other errors.
func classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &transcription.StatusError{Code: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &transcription.StatusError{Code: reqErr.HTTPStatusCode, Err: err}
	}
	return err
}
