// Package google provides a Google Cloud Speech-to-Text transcription backend.
package google

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"speaking-practice/internal/service/capture"
	"speaking-practice/internal/service/transcription"
)

// Config holds Google STT configuration.
type Config struct {
	LanguageCode string
	Model        string
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		LanguageCode: "en-US",
		Model:        "latest_short",
	}
}

type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// Backend implements transcription.Backend with synchronous Recognize calls.
type Backend struct {
	cfg       Config
	recognize recognizeFunc
	close     func() error
}

// New creates a Google STT backend.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Backend{
		cfg: cfg,
		recognize: func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
			return c.Recognize(ctx, req)
		},
		close: c.Close,
	}, nil
}

// Name returns the provider name.
func (b *Backend) Name() string {
	return "google"
}

// Transcribe strips the WAV container and recognizes the PCM payload.
func (b *Backend) Transcribe(ctx context.Context, req transcription.Request) (string, error) {
	format, pcm, err := capture.DecodeWAV(bytes.NewReader(req.Audio))
	if err != nil {
		return "", &transcription.StatusError{Code: http.StatusBadRequest, Err: err}
	}

	lang := b.cfg.LanguageCode
	if lang == "" {
		lang = req.Language
	}

	resp, err := b.recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:          speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:   int32(format.SampleRate),
			AudioChannelCount: int32(format.Channels),
			LanguageCode:      lang,
			Model:             b.cfg.Model,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: pcm},
		},
	})
	if err != nil {
		return "", classify(err)
	}

	var parts []string
	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		if t := strings.TrimSpace(r.GetAlternatives()[0].GetTranscript()); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " "), nil
}

// Close releases the underlying gRPC connection.
func (b *Backend) Close() error {
	if b.close != nil {
		return b.close()
	}
	return nil
}

// classify maps gRPC status codes onto HTTP statuses for retry decisions.
func classify(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	return &transcription.StatusError{Code: httpStatus(st.Code()), Err: err}
}

func httpStatus(c codes.Code) int {
	switch c {
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
