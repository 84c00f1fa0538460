package transcription

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"speaking-practice/internal/observability/logging"
	"speaking-practice/internal/observability/metrics"
	"speaking-practice/internal/service/capture"
)

// Kind classifies a transcription result.
type Kind int

const (
	KindNormal Kind = iota
	KindTooShort
	KindEmpty
	KindError
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindNormal:
		return "normal"
	case KindTooShort:
		return "tooShort"
	case KindEmpty:
		return "empty"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Transcript is the result of one Transcribe call.
type Transcript struct {
	Text string
	Kind Kind
}

// IsDegenerate reports whether the user said nothing usable.
func (t Transcript) IsDegenerate() bool {
	return t.Kind == KindTooShort || t.Kind == KindEmpty
}

// Errors returned by Transcribe.
var (
	ErrPayloadTooLarge     = errors.New("recording is too large to transcribe")
	ErrRateLimited         = errors.New("transcription rate limited")
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrBusy                = errors.New("a transcription is already in flight")
)

// Status is an interim notice emitted while retrying.
type Status struct {
	Attempt int
	Code    int
	Message string
	RetryIn time.Duration
}

// StatusFunc receives interim retry notices.
type StatusFunc func(Status)

// Config holds size limits and retry policy.
type Config struct {
	MinBytes    int
	MaxBytes    int
	MaxAttempts int
	BackoffUnit time.Duration
	Language    string
}

// DefaultConfig returns the limits of the hosted Whisper API.
func DefaultConfig() Config {
	return Config{
		MinBytes:    2000,             // below ~0.1s of audio the API rejects the upload
		MaxBytes:    25 * 1024 * 1024, // hosted API upload cap
		MaxAttempts: 3,
		BackoffUnit: time.Second,
		Language:    "en",
	}
}

// Client transcribes recordings through a Backend.
// At most one request is in flight at a time; retries are sequential.
type Client struct {
	backend    Backend
	cfg        Config
	onStatus   StatusFunc
	sleep      func(ctx context.Context, d time.Duration) error
	processing atomic.Bool
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewClient creates a transcription client. Zero config fields take defaults.
func NewClient(backend Backend, cfg Config) *Client {
	def := DefaultConfig()
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = def.MinBytes
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BackoffUnit <= 0 {
		cfg.BackoffUnit = def.BackoffUnit
	}
	if cfg.Language == "" {
		cfg.Language = def.Language
	}

	return &Client{
		backend: backend,
		cfg:     cfg,
		sleep:   sleepContext,
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithBackend("transcription", backend.Name()),
	}
}

// OnStatus registers the receiver of interim retry notices.
// Must be called before the first Transcribe.
func (c *Client) OnStatus(fn StatusFunc) {
	c.onStatus = fn
}

// Processing reports whether a Transcribe call is in progress.
func (c *Client) Processing() bool {
	return c.processing.Load()
}

// Transcribe converts a recording into a Transcript.
//
// Recordings over the size cap fail with ErrPayloadTooLarge and recordings
// under the minimum return a tooShort transcript; neither reaches the
// network. Backend failures are retried up to MaxAttempts: a 429 waits
// attempt×2 backoff units, anything else attempt×1.
func (c *Client) Transcribe(ctx context.Context, blob capture.Blob) (Transcript, error) {
	if !c.processing.CompareAndSwap(false, true) {
		return Transcript{Kind: KindError}, ErrBusy
	}
	defer c.processing.Store(false)

	size := blob.Size()
	if size > c.cfg.MaxBytes {
		c.metrics.RecordTranscriptionResult(KindError.String())
		c.logger.Warn().Int("size", size).Int("max", c.cfg.MaxBytes).Msg("Recording too large")
		return Transcript{Kind: KindError}, fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, size, c.cfg.MaxBytes)
	}
	if size < c.cfg.MinBytes {
		c.metrics.RecordTranscriptionResult(KindTooShort.String())
		c.logger.Debug().Int("size", size).Msg("Recording too short, skipping transcription")
		return Transcript{Kind: KindTooShort}, nil
	}

	req := Request{
		Audio:      blob.Data,
		Filename:   blob.Filename,
		MIMEType:   blob.MIMEType,
		Language:   c.cfg.Language,
		SampleRate: blob.SampleRate,
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		start := time.Now()
		text, err := c.backend.Transcribe(ctx, req)
		latency := time.Since(start).Seconds()

		if err == nil {
			c.metrics.RecordTranscriptionAttempt(c.backend.Name(), "success", latency)
			text = strings.TrimSpace(text)
			if text == "" {
				c.metrics.RecordTranscriptionResult(KindEmpty.String())
				return Transcript{Kind: KindEmpty}, nil
			}
			c.metrics.RecordTranscriptionResult(KindNormal.String())
			c.logger.Debug().Int("attempt", attempt).Int("chars", len(text)).Msg("Transcription succeeded")
			return Transcript{Text: text, Kind: KindNormal}, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}

		last := attempt == c.cfg.MaxAttempts
		code := StatusCode(err)

		var wait time.Duration
		if code == http.StatusTooManyRequests {
			c.metrics.RecordTranscriptionAttempt(c.backend.Name(), "rate_limited", latency)
			if last {
				c.metrics.RecordTranscriptionResult(KindError.String())
				c.logger.Warn().Int("attempts", attempt).Msg("Transcription rate limited, giving up")
				return Transcript{Kind: KindError}, fmt.Errorf("%w after %d attempts", ErrRateLimited, attempt)
			}
			wait = time.Duration(attempt) * 2 * c.cfg.BackoffUnit
			c.notify(Status{Attempt: attempt, Code: code, Message: "rate limited, retrying", RetryIn: wait})
		} else {
			c.metrics.RecordTranscriptionAttempt(c.backend.Name(), "error", latency)
			if last {
				break
			}
			wait = time.Duration(attempt) * c.cfg.BackoffUnit
		}

		c.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("status", code).
			Dur("retryIn", wait).
			Msg("Transcription attempt failed")

		if err := c.sleep(ctx, wait); err != nil {
			lastErr = err
			break
		}
	}

	c.metrics.RecordTranscriptionResult(KindError.String())
	return Transcript{Kind: KindError}, fmt.Errorf("%w: %w", ErrTranscriptionFailed, lastErr)
}

func (c *Client) notify(s Status) {
	if c.onStatus != nil {
		c.onStatus(s)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
