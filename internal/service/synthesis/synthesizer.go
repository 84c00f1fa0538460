package synthesis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"speaking-practice/internal/observability/logging"
	"speaking-practice/internal/observability/metrics"
)

// EventKind identifies a synthesizer event.
type EventKind int

const (
	EventStarted EventKind = iota
	EventEnded
	EventFailed
	EventInterrupted
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventEnded:
		return "ended"
	case EventFailed:
		return "failed"
	case EventInterrupted:
		return "interrupted"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Event is emitted on the channel returned by Speak.
type Event struct {
	Kind    EventKind
	Segment int
	Err     error
}

// Config holds synthesizer tuning.
type Config struct {
	Locale            string
	PreferredGender   string
	ChunkThreshold    int
	SettleDelay       time.Duration
	RetryDelay        time.Duration
	VoicePollInterval time.Duration
	VoiceWaitTimeout  time.Duration
}

// DefaultConfig returns sensible defaults for US English.
func DefaultConfig() Config {
	return Config{
		Locale:            "en-US",
		PreferredGender:   "female",
		ChunkThreshold:    200,
		SettleDelay:       150 * time.Millisecond,
		RetryDelay:        300 * time.Millisecond,
		VoicePollInterval: 500 * time.Millisecond,
		VoiceWaitTimeout:  5 * time.Second,
	}
}

// job is one Speak request, including all of its segments.
type job struct {
	id       uint64
	ctx      context.Context
	cancel   context.CancelFunc
	text     string
	rate     float64
	voice    *Voice
	segments []string
	cursor   int
	started  bool
	events   chan Event
}

// Synthesizer runs at most one speech job at a time. A new Speak cancels
// and replaces the job in flight.
type Synthesizer struct {
	engine  Engine
	cfg     Config
	sleep   func(ctx context.Context, d time.Duration) error
	metrics *metrics.Metrics
	logger  zerolog.Logger
	nextID  atomic.Uint64

	mu      sync.Mutex
	current *job
	closed  bool
	wg      sync.WaitGroup
}

// New creates a synthesizer over engine.
func New(engine Engine, cfg Config) *Synthesizer {
	return &Synthesizer{
		engine:  engine,
		cfg:     cfg,
		sleep:   sleepContext,
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("synthesis"),
	}
}

// Speak cancels any speech in flight and speaks text at rate.
//
// The returned channel carries started once, then interrupted notices, and
// finally ended or failed, after which it is closed. A job that is
// cancelled or replaced closes its channel without a final event.
func (s *Synthesizer) Speak(ctx context.Context, text string, rate float64) <-chan Event {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ch := make(chan Event, 1)
		ch <- Event{Kind: EventFailed, Err: ErrClosed}
		close(ch)
		return ch
	}

	jctx, cancel := context.WithCancel(ctx)
	j := &job{
		id:     s.nextID.Add(1),
		ctx:    jctx,
		cancel: cancel,
		text:   text,
		rate:   rate,
		events: make(chan Event, 4),
	}
	prev := s.current
	s.current = j
	s.wg.Add(1)
	s.mu.Unlock()

	if prev != nil {
		prev.cancel()
		s.engine.Cancel()
	}

	go s.run(j)
	return j.events
}

// Cancel stops the speech in flight. Safe to call when nothing is speaking.
func (s *Synthesizer) Cancel() {
	s.mu.Lock()
	j := s.current
	s.current = nil
	s.mu.Unlock()

	if j == nil {
		return
	}
	j.cancel()
	s.engine.Cancel()
	s.logger.Debug().Uint64("job", j.id).Msg("Speech cancelled")
}

// Speaking reports whether a job is in flight.
func (s *Synthesizer) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Close cancels any speech and waits for the job goroutine to exit.
// Later Speak calls fail with ErrClosed.
func (s *Synthesizer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.Cancel()
	s.wg.Wait()
}

func (s *Synthesizer) isCurrent(j *job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current == j
}

func (s *Synthesizer) finish(j *job) {
	s.mu.Lock()
	if s.current == j {
		s.current = nil
	}
	s.mu.Unlock()
	j.cancel()
}

func (s *Synthesizer) run(j *job) {
	defer s.wg.Done()
	defer close(j.events)
	defer s.finish(j)

	logger := s.logger.With().Uint64("job", j.id).Logger()

	// Engines misbehave when a new utterance starts before the previous one is torn down
	if err := s.sleep(j.ctx, s.cfg.SettleDelay); err != nil {
		return
	}

	j.voice = s.resolveVoice(j.ctx)
	if j.ctx.Err() != nil {
		return
	}
	j.segments = SplitSegments(WithPause(j.text), s.cfg.ChunkThreshold)

	voiceName := ""
	if j.voice != nil {
		voiceName = j.voice.Name
	}
	logger.Debug().
		Int("segments", len(j.segments)).
		Str("voice", voiceName).
		Float64("rate", j.rate).
		Msg("Speaking")

	for j.cursor = 0; j.cursor < len(j.segments); j.cursor++ {
		retried := false
		for {
			err := s.speakSegment(j)
			if j.ctx.Err() != nil {
				return
			}
			if err == nil {
				break
			}

			if errors.Is(err, ErrInterrupted) {
				s.emit(j, Event{Kind: EventInterrupted, Segment: j.cursor})
				if retried || !s.isCurrent(j) {
					// Second interruption of the same segment ends the job normally
					logger.Warn().Int("segment", j.cursor).Msg("Speech interrupted again, giving up on retry")
					s.end(j)
					return
				}
				retried = true
				if err := s.sleep(j.ctx, s.cfg.RetryDelay); err != nil {
					return
				}
				logger.Debug().Int("segment", j.cursor).Msg("Re-issuing interrupted segment")
				continue
			}

			logger.Error().Err(err).Int("segment", j.cursor).Msg("Speech synthesis failed")
			s.emit(j, Event{Kind: EventFailed, Segment: j.cursor, Err: fmt.Errorf("%w: %w", ErrSynthesisFailed, err)})
			return
		}
	}

	s.end(j)
}

func (s *Synthesizer) end(j *job) {
	if !j.started {
		j.started = true
		s.emit(j, Event{Kind: EventStarted})
	}
	s.emit(j, Event{Kind: EventEnded, Segment: len(j.segments) - 1})
}

// speakSegment speaks the segment under the cursor and waits for its outcome.
func (s *Synthesizer) speakSegment(j *job) error {
	startCh := make(chan struct{}, 1)
	resCh := make(chan error, 1)
	var once sync.Once
	done := func(err error) {
		once.Do(func() { resCh <- err })
	}

	cb := Callbacks{
		OnStart: func() {
			select {
			case startCh <- struct{}{}:
			default:
			}
		},
		OnEnd: func() { done(nil) },
		OnError: func(err error) {
			if err == nil {
				err = ErrSynthesisFailed
			}
			done(err)
		},
	}

	s.metrics.RecordSynthesisSegment()
	u := Utterance{
		Text:  j.segments[j.cursor],
		Rate:  j.rate,
		Lang:  s.cfg.Locale,
		Voice: j.voice,
	}
	if err := s.engine.Speak(u, cb); err != nil {
		return err
	}

	markStarted := func() {
		if !j.started {
			j.started = true
			s.emit(j, Event{Kind: EventStarted, Segment: j.cursor})
		}
	}

	for {
		select {
		case <-j.ctx.Done():
			return j.ctx.Err()
		case <-startCh:
			markStarted()
		case err := <-resCh:
			select {
			case <-startCh:
				markStarted()
			default:
			}
			return err
		}
	}
}

// resolveVoice waits for the engine's voice list, bounded by the voice wait
// timeout, then applies the selection cascade.
func (s *Synthesizer) resolveVoice(ctx context.Context) *Voice {
	voices := s.engine.Voices()
	if len(voices) == 0 {
		voices = s.waitForVoices(ctx)
	}
	if len(voices) == 0 {
		return nil
	}
	return SelectVoice(voices, s.cfg.Locale, s.cfg.PreferredGender)
}

func (s *Synthesizer) waitForVoices(ctx context.Context) []Voice {
	changed := s.engine.VoicesChanged()

	poll := s.cfg.VoicePollInterval
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	deadline := time.NewTimer(s.cfg.VoiceWaitTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deadline.C:
			s.logger.Warn().Dur("waited", s.cfg.VoiceWaitTimeout).Msg("No voices available, using engine default")
			return nil
		case <-changed:
			// Closed channel: stop selecting on it
			changed = nil
		case <-ticker.C:
		}
		if voices := s.engine.Voices(); len(voices) > 0 {
			return voices
		}
	}
}

func (s *Synthesizer) emit(j *job, ev Event) {
	s.metrics.RecordSynthesisEvent(ev.Kind.String())
	select {
	case j.events <- ev:
	case <-j.ctx.Done():
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
