package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"speaking-practice/internal/observability/logging"
	"speaking-practice/internal/observability/metrics"
)

// State is the buffering state of the current recording.
type State int

const (
	// StateIdle - No recording. Chunks are discarded.
	StateIdle State = iota
	// StateRecording - Chunks are appended to the buffer.
	StateRecording
	// StateStopping - Stop requested, chunks already in flight are still kept.
	StateStopping
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// RecordingInfo is a snapshot of the current recording session.
type RecordingInfo struct {
	State                 State
	AccumulatedAudioBytes int
	StartedAt             time.Time
}

// Session buffers microphone audio for one recording span at a time.
//
// The device handle is acquired once by Open and held until Close.
// Every recording span gets its own generation; a chunk is appended only
// if it was produced for the generation that is still buffering, so rapid
// Start/Stop sequences can never mix audio from two spans.
type Session struct {
	mic     Microphone
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time

	mu         sync.Mutex
	stream     Stream
	openErr    error
	closed     bool
	state      State
	generation uint64
	buf        bytes.Buffer
	startedAt  time.Time
}

// NewSession creates a capture session over the given microphone.
func NewSession(mic Microphone) *Session {
	return &Session{
		mic:     mic,
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("capture"),
		now:     time.Now,
	}
}

// Open acquires the microphone. Idempotent once it succeeded.
// A denied microphone is remembered so Available reports false.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.stream != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	stream, err := s.mic.Acquire(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.openErr = err
		s.logger.Error().Err(err).Msg("Failed to acquire microphone")
		return err
	}
	if s.closed {
		// Closed while acquiring
		stream.Close()
		return ErrClosed
	}
	s.stream = stream
	s.openErr = nil
	s.logger.Info().
		Int("sampleRate", stream.Format().SampleRate).
		Int("channels", stream.Format().Channels).
		Msg("Microphone acquired")
	return nil
}

// Available reports whether the microphone is acquired and usable.
func (s *Session) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil && !s.closed
}

// OpenError returns the error of the last failed Open, if any.
func (s *Session) OpenError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openErr
}

// Info returns a snapshot of the current recording.
func (s *Session) Info() RecordingInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return RecordingInfo{
		State:                 s.state,
		AccumulatedAudioBytes: s.buf.Len(),
		StartedAt:             s.startedAt,
	}
}

// Start begins buffering a new recording. Starting while already recording
// is logged and ignored.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.stream == nil {
		if s.openErr != nil {
			return s.openErr
		}
		return ErrNotOpen
	}
	if s.state != StateIdle {
		s.logger.Warn().Str("state", s.state.String()).Msg("Start ignored, already recording")
		return nil
	}

	s.generation++
	gen := s.generation
	s.buf.Reset()
	s.state = StateRecording
	s.startedAt = s.now()

	if err := s.stream.Start(func(chunk []byte) { s.onData(gen, chunk) }); err != nil {
		s.state = StateIdle
		s.generation++
		return fmt.Errorf("start microphone stream: %w", err)
	}

	s.metrics.RecordRecordingStart()
	s.logger.Debug().Uint64("generation", gen).Msg("Recording started")
	return nil
}

func (s *Session) onData(gen uint64, chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || s.state == StateIdle {
		s.metrics.RecordAudioDropped()
		return
	}
	s.buf.Write(chunk)
	s.metrics.RecordAudioCaptured(len(chunk))
}

// Stop ends the recording and returns the buffered audio as a WAV blob.
// Calling Stop while idle returns an empty blob and no error.
func (s *Session) Stop() (Blob, error) {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return Blob{}, nil
	}
	s.state = StateStopping
	stream := s.stream
	s.mu.Unlock()

	// Chunks delivered until the stream has stopped still belong to this span
	if err := stream.Stop(); err != nil {
		s.logger.Warn().Err(err).Msg("Microphone stream stop failed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pcm := make([]byte, s.buf.Len())
	copy(pcm, s.buf.Bytes())
	s.buf.Reset()
	s.state = StateIdle
	s.generation++
	elapsed := s.now().Sub(s.startedAt)
	s.startedAt = time.Time{}

	s.metrics.RecordRecordingEnd(elapsed.Seconds())

	blob := NewBlob(pcm, stream.Format())
	s.logger.Debug().
		Int("audioBytes", len(pcm)).
		Dur("duration", blob.Duration).
		Msg("Recording stopped")
	return blob, nil
}

// Discard drops the current recording without producing a blob.
func (s *Session) Discard() {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return
	}
	s.state = StateIdle
	s.generation++
	s.buf.Reset()
	stream := s.stream
	s.mu.Unlock()

	if err := stream.Stop(); err != nil {
		s.logger.Warn().Err(err).Msg("Microphone stream stop failed")
	}
	s.metrics.RecordRecordingEnd(0)
}

// Close releases the microphone. Any recording in progress is discarded.
// Safe to call more than once and after a failed Open.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	wasRecording := s.state != StateIdle
	s.state = StateIdle
	s.generation++
	s.buf.Reset()
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	if stream == nil {
		return nil
	}

	var errs []error
	if wasRecording {
		s.metrics.RecordRecordingEnd(0)
		if err := stream.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := stream.Close(); err != nil {
		errs = append(errs, err)
	}
	s.logger.Info().Msg("Microphone released")
	return errors.Join(errs...)
}
