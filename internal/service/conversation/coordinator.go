package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"speaking-practice/internal/models"
	"speaking-practice/internal/observability/logging"
	"speaking-practice/internal/observability/metrics"
	"speaking-practice/internal/service/capture"
	"speaking-practice/internal/service/llm"
	"speaking-practice/internal/service/synthesis"
	"speaking-practice/internal/service/transcription"
	"speaking-practice/internal/service/turn"
)

// Scripted bot lines.
const (
	Greeting = "Hi there! Shall we begin talking? What would you like to talk about today?"
	Apology  = "Sorry, I had trouble answering that. Could you say it again?"
)

var (
	ErrMicrophoneUnavailable = errors.New("microphone unavailable")
	ErrEmptyMessage          = errors.New("message is empty")
)

const (
	publishQueueSize = 64
	publishTimeout   = 5 * time.Second
)

// Deps are the collaborators of a Coordinator. Publisher and Settings may
// be nil.
type Deps struct {
	Recorder    Recorder
	Transcriber Transcriber
	Generator   Generator
	Speaker     Speaker
	Publisher   TurnPublisher
	Settings    SettingsStore
}

// State is a snapshot for the control API.
type State struct {
	SessionID           string          `json:"sessionId"`
	Phase               string          `json:"phase"`
	MicrophoneAvailable bool            `json:"microphoneAvailable"`
	Recording           string          `json:"recording"`
	RecordedBytes       int             `json:"recordedBytes"`
	Turns               int             `json:"turns"`
	Settings            models.Settings `json:"settings"`
}

// Coordinator runs one conversation session.
//
// Commands (StartRecording, StopRecording, SubmitText, Reset, Close) are
// serialized by a single mutex and move the phase machine synchronously.
// The slow work that follows a command (transcription, reply generation,
// speech) runs on one goroutine per cycle, and every result it produces is
// checked against the cycle's generation before it may append a turn or
// change the phase. A Reset or Close therefore silently discards whatever
// the previous cycle was still doing.
type Coordinator struct {
	recorder    Recorder
	transcriber Transcriber
	generator   Generator
	speaker     Speaker
	publisher   TurnPublisher
	store       SettingsStore

	sessionID string
	machine   *turn.Machine
	log       *turn.Log
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	publishQ    chan models.TurnEvent
	publishDone chan struct{}

	// recMu orders recorder Start, Stop and Discard. Taken after mu, never
	// before it.
	recMu sync.Mutex

	mu          sync.Mutex
	cycleCtx    context.Context
	cycleCancel context.CancelFunc
	transcribed chan struct{} // closed once the latest cycle's transcription returned
	settings    models.Settings
	live        string
	stored      string
	subs        map[int]chan Event
	nextSub     int
}

// New creates a coordinator for a fresh session.
func New(d Deps) *Coordinator {
	sessionID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	settings := models.DefaultSettings()
	if d.Settings != nil {
		settings = d.Settings.Settings()
	}

	c := &Coordinator{
		recorder:    d.Recorder,
		transcriber: d.Transcriber,
		generator:   d.Generator,
		speaker:     d.Speaker,
		publisher:   d.Publisher,
		store:       d.Settings,
		sessionID:   sessionID,
		machine:     turn.NewMachine(),
		log:         turn.NewLog(sessionID),
		metrics:     metrics.DefaultMetrics,
		logger:      logging.WithSession(sessionID),
		ctx:         ctx,
		cancel:      cancel,
		settings:    settings,
		subs:        make(map[int]chan Event),
	}

	if c.publisher != nil {
		c.publishQ = make(chan models.TurnEvent, publishQueueSize)
		c.publishDone = make(chan struct{})
		go c.runPublisher()
	}

	if !c.recorder.Available() {
		c.logger.Warn().Err(c.recorder.OpenError()).Msg("Microphone unavailable, recording disabled")
	}
	c.logger.Info().
		Int("difficulty", settings.Difficulty).
		Int("speed", settings.Speed).
		Msg("Conversation session started")
	return c
}

// SessionID returns the session identifier.
func (c *Coordinator) SessionID() string {
	return c.sessionID
}

// Phase returns the current phase.
func (c *Coordinator) Phase() turn.Phase {
	return c.machine.Phase()
}

// Turns returns the conversation so far.
func (c *Coordinator) Turns() []turn.ConversationTurn {
	return c.log.Turns()
}

// State returns a snapshot of the session.
func (c *Coordinator) State() State {
	c.mu.Lock()
	settings := c.settings
	c.mu.Unlock()

	info := c.recorder.Info()
	return State{
		SessionID:           c.sessionID,
		Phase:               c.machine.Phase().String(),
		MicrophoneAvailable: c.recorder.Available(),
		Recording:           info.State.String(),
		RecordedBytes:       info.AccumulatedAudioBytes,
		Turns:               c.log.Len(),
		Settings:            settings,
	}
}

// Settings returns the current settings.
func (c *Coordinator) Settings() models.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// UpdateSettings stores new settings. They apply from the next reply.
func (c *Coordinator) UpdateSettings(s models.Settings) error {
	if c.store != nil {
		if err := c.store.SaveSettings(s); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
	}
	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()
	c.logger.Info().Int("difficulty", s.Difficulty).Int("speed", s.Speed).Msg("Settings updated")
	return nil
}

// StartRecording moves idle to listening and starts buffering audio.
// Refused with turn.ErrSpeaking while the bot speaks, turn.ErrBusy while
// a reply is pending and ErrMicrophoneUnavailable when the microphone
// could not be acquired.
func (c *Coordinator) StartRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.machine.IsClosed() {
		return turn.ErrClosed
	}
	phase := c.machine.Phase()
	switch phase {
	case turn.PhaseIdle:
		// OK
	case turn.PhaseSpeaking:
		c.metrics.RecordRejected("startRecording", phase.String())
		return turn.ErrSpeaking
	default:
		c.metrics.RecordRejected("startRecording", phase.String())
		return turn.ErrBusy
	}

	if !c.recorder.Available() {
		c.metrics.RecordRejected("startRecording", phase.String())
		c.emit(noticeEvent(NoticeMicrophoneUnavailable, "The microphone is not available. Check the device and its permissions."))
		if err := c.recorder.OpenError(); err != nil {
			return fmt.Errorf("%w: %w", ErrMicrophoneUnavailable, err)
		}
		return ErrMicrophoneUnavailable
	}

	if _, err := c.beginCycle(turn.PhaseListening, "startRecording"); err != nil {
		return err
	}
	c.live, c.stored = "", ""

	c.recMu.Lock()
	err := c.recorder.Start()
	c.recMu.Unlock()
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to start recording")
		c.resetLocked()
		return fmt.Errorf("start recording: %w", err)
	}
	return nil
}

// StopRecording ends the recording and hands it to transcription. A
// non-blank supplied transcript is used instead of transcribing the audio.
// Does nothing unless a recording is in progress.
func (c *Coordinator) StopRecording(supplied string) error {
	c.mu.Lock()

	if c.machine.IsClosed() {
		c.mu.Unlock()
		return turn.ErrClosed
	}
	if c.machine.Phase() != turn.PhaseListening {
		c.mu.Unlock()
		c.logger.Debug().Str("phase", c.machine.Phase().String()).Msg("Stop ignored, not recording")
		return nil
	}

	gen := c.machine.Generation()
	if !c.advanceLocked(gen, turn.PhaseTranscribing) {
		c.mu.Unlock()
		return nil
	}
	ctx := c.cycleCtx
	prev := c.transcribed
	done := make(chan struct{})
	c.transcribed = done

	c.wg.Add(1)
	c.recMu.Lock()
	c.mu.Unlock()

	// Stopping waits for the capture goroutine; state reads must not.
	blob, stopErr := c.recorder.Stop()
	c.recMu.Unlock()

	go c.runRecording(ctx, gen, blob, stopErr, supplied, prev, done)
	return nil
}

// ObserveTranscript records a live transcript seen while recording, used
// when the finished recording yields no text.
func (c *Coordinator) ObserveTranscript(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live = text
	if strings.TrimSpace(text) != "" {
		c.stored = text
	}
}

// SubmitText answers a typed message. Only accepted while idle.
func (c *Coordinator) SubmitText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	gen, err := c.beginCycle(turn.PhaseBotThinking, "submitText")
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.appendTurnLocked(gen, turn.SpeakerUser, text, false)
	ctx := c.cycleCtx

	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		c.reply(ctx, gen, text)
	}()
	return nil
}

// Notify forwards a notice to subscribers.
func (c *Coordinator) Notify(code, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.machine.IsClosed() {
		return
	}
	c.emit(noticeEvent(code, message))
}

// Reset stops everything in progress and returns to idle. The recording
// in progress is discarded and pending results are ignored.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.machine.IsClosed() {
		return
	}
	c.resetLocked()
	c.logger.Info().Msg("Conversation reset")
}

func (c *Coordinator) resetLocked() {
	from := c.machine.Reset()
	if c.cycleCancel != nil {
		c.cycleCancel()
		c.cycleCancel = nil
	}
	c.recMu.Lock()
	c.recorder.Discard()
	c.recMu.Unlock()
	c.speaker.Cancel()
	c.live, c.stored = "", ""
	if from != turn.PhaseIdle {
		c.transitioned(from, turn.PhaseIdle)
	}
}

// Close releases the microphone, cancels speech and waits for pending
// work to drain. Subscriber channels are closed. Safe to call twice.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	from := c.machine.Phase()
	if !c.machine.Close() {
		c.mu.Unlock()
		return nil
	}
	if c.cycleCancel != nil {
		c.cycleCancel()
		c.cycleCancel = nil
	}
	c.cancel()
	c.mu.Unlock()

	c.speaker.Close()
	c.recMu.Lock()
	err := c.recorder.Close()
	c.recMu.Unlock()
	c.wg.Wait()

	if c.publishQ != nil {
		close(c.publishQ)
		<-c.publishDone
	}

	c.mu.Lock()
	if from != turn.PhaseIdle {
		c.transitioned(from, turn.PhaseIdle)
	}
	c.closeSubscribers()
	c.mu.Unlock()

	c.logger.Info().Int("turns", c.log.Len()).Msg("Conversation session closed")
	return err
}

// beginCycle must be called with c.mu held.
func (c *Coordinator) beginCycle(to turn.Phase, command string) (uint64, error) {
	from := c.machine.Phase()
	gen, err := c.machine.Begin(to)
	if err != nil {
		c.metrics.RecordRejected(command, from.String())
		return 0, err
	}
	if c.cycleCancel != nil {
		c.cycleCancel()
	}
	c.cycleCtx, c.cycleCancel = context.WithCancel(c.ctx)
	c.transitioned(from, to)
	return gen, nil
}

func (c *Coordinator) advance(gen uint64, to turn.Phase) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.advanceLocked(gen, to)
}

// advanceLocked must be called with c.mu held.
func (c *Coordinator) advanceLocked(gen uint64, to turn.Phase) bool {
	from, err := c.machine.Advance(gen, to)
	if err != nil {
		if !errors.Is(err, turn.ErrStale) && !errors.Is(err, turn.ErrClosed) {
			c.logger.Error().Err(err).Msg("Unexpected phase transition")
		}
		return false
	}
	c.transitioned(from, to)
	if to == turn.PhaseIdle && c.cycleCancel != nil {
		c.cycleCancel()
		c.cycleCancel = nil
	}
	return true
}

func (c *Coordinator) transitioned(from, to turn.Phase) {
	c.metrics.RecordPhaseTransition(from.String(), to.String())
	c.logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("Phase changed")
	c.emit(Event{Kind: EventPhase, Phase: to.String()})
}

func (c *Coordinator) appendTurn(gen uint64, speaker turn.Speaker, text string, scripted bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendTurnLocked(gen, speaker, text, scripted)
}

// appendTurnLocked must be called with c.mu held.
func (c *Coordinator) appendTurnLocked(gen uint64, speaker turn.Speaker, text string, scripted bool) bool {
	if !c.machine.IsCurrent(gen) {
		return false
	}
	t := c.log.Append(speaker, text, scripted)
	c.metrics.RecordTurn(string(speaker), scripted)
	turnLogger := logging.WithTurn(c.sessionID, t.ID)
	turnLogger.Debug().
		Str("speaker", string(speaker)).
		Bool("scripted", scripted).
		Msg("Turn appended")

	c.emit(Event{Kind: EventTurn, Turn: &t})
	c.enqueuePublish(t)
	return true
}

func (c *Coordinator) notify(gen uint64, n Notice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.machine.IsCurrent(gen) {
		c.emit(Event{Kind: EventNotice, Notice: &n})
	}
}

// runRecording resolves a finished recording into a user turn. prev is
// closed when the previous cycle's transcription has returned, and done is
// closed once this cycle's has, after prev.
func (c *Coordinator) runRecording(ctx context.Context, gen uint64, blob capture.Blob, stopErr error, supplied string, prev <-chan struct{}, done chan struct{}) {
	defer c.wg.Done()

	explicit := strings.TrimSpace(supplied)
	failure := stopErr
	if explicit == "" && stopErr == nil {
		tr, err := c.transcribeAfter(ctx, prev, blob)
		if err != nil {
			failure = err
		} else {
			explicit = tr.Text
		}
	}
	closeAfter(prev, done)
	if !c.machine.IsCurrent(gen) {
		return
	}

	c.mu.Lock()
	text := resolveTranscript(explicit, c.live, c.stored)
	c.mu.Unlock()

	if text == "" && failure != nil {
		c.logger.Warn().Err(failure).Msg("Recording could not be transcribed")
		c.notify(gen, transcriptionNotice(failure))
		c.advance(gen, turn.PhaseIdle)
		return
	}

	if text == "" {
		// Silence: prompt the user instead of asking the model
		if !c.advance(gen, turn.PhaseSpeaking) {
			return
		}
		if !c.appendTurn(gen, turn.SpeakerBot, Greeting, true) {
			return
		}
		c.speak(ctx, gen, Greeting)
		return
	}

	if !c.advance(gen, turn.PhaseBotThinking) {
		return
	}
	if !c.appendTurn(gen, turn.SpeakerUser, text, false) {
		return
	}
	c.reply(ctx, gen, text)
}

// transcribeAfter waits for a transcription left running by a reset cycle.
// The client takes one request at a time and a cancelled backend call may
// still be returning.
func (c *Coordinator) transcribeAfter(ctx context.Context, prev <-chan struct{}, blob capture.Blob) (transcription.Transcript, error) {
	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			return transcription.Transcript{}, ctx.Err()
		}
	}
	return c.transcriber.Transcribe(ctx, blob)
}

// closeAfter closes done once prev is closed, keeping the chain ordered
// when this cycle skipped or abandoned its own transcription.
func closeAfter(prev <-chan struct{}, done chan struct{}) {
	if prev == nil {
		close(done)
		return
	}
	select {
	case <-prev:
		close(done)
	default:
		go func() {
			<-prev
			close(done)
		}()
	}
}

func (c *Coordinator) reply(ctx context.Context, gen uint64, userText string) {
	settings := c.Settings()

	text, err := c.generator.Generate(ctx, userText, llm.Options{
		Difficulty:   settings.Difficulty,
		CustomPrompt: settings.CustomPrompt,
	})
	if !c.machine.IsCurrent(gen) {
		return
	}

	scripted := false
	if err != nil {
		c.logger.Warn().Err(err).Msg("Reply generation failed, answering with apology")
		scripted = true
		if strings.TrimSpace(text) == "" {
			text = Apology
		}
	} else if strings.TrimSpace(text) == "" {
		scripted = true
		text = Apology
	}

	if !c.advance(gen, turn.PhaseSpeaking) {
		return
	}
	if !c.appendTurn(gen, turn.SpeakerBot, text, scripted) {
		return
	}
	c.speak(ctx, gen, text)
}

func (c *Coordinator) speak(ctx context.Context, gen uint64, text string) {
	rate := synthesis.RateForLevel(c.Settings().Speed)

	for ev := range c.speaker.Speak(ctx, text, rate) {
		switch ev.Kind {
		case synthesis.EventFailed:
			// The turn stands, only its audio is lost
			c.logger.Warn().Err(ev.Err).Msg("Speech failed")
			c.notify(gen, Notice{Code: NoticeSynthesisFailed, Message: "The reply could not be spoken."})
		case synthesis.EventInterrupted:
			c.logger.Debug().Int("segment", ev.Segment).Msg("Speech interrupted")
		}
	}
	c.advance(gen, turn.PhaseIdle)
}

func (c *Coordinator) enqueuePublish(t turn.ConversationTurn) {
	if c.publishQ == nil {
		return
	}
	ev := models.TurnEvent{
		EventType: models.EventTypeFor(string(t.Speaker)),
		SessionID: c.sessionID,
		TurnID:    t.ID,
		Speaker:   string(t.Speaker),
		Text:      t.Text,
		Scripted:  t.Scripted,
		Timestamp: t.CreatedAt.UnixMilli(),
	}
	select {
	case c.publishQ <- ev:
	default:
		c.logger.Warn().Str("turnId", t.ID).Msg("Publish queue full, dropping turn event")
	}
}

func (c *Coordinator) runPublisher() {
	defer close(c.publishDone)
	for ev := range c.publishQ {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := c.publisher.PublishTurn(ctx, ev); err != nil {
			c.logger.Warn().Err(err).Str("turnId", ev.TurnID).Msg("Failed to publish turn")
		}
		cancel()
	}
}

func noticeEvent(code, message string) Event {
	return Event{Kind: EventNotice, Notice: &Notice{Code: code, Message: message}}
}

func transcriptionNotice(err error) Notice {
	switch {
	case errors.Is(err, transcription.ErrPayloadTooLarge):
		return Notice{Code: NoticePayloadTooLarge, Message: "The recording is too large to transcribe. Please keep it shorter."}
	case errors.Is(err, transcription.ErrRateLimited):
		return Notice{Code: NoticeRateLimited, Message: "The speech service is busy right now. Please wait a moment and try again."}
	default:
		return Notice{Code: NoticeTranscriptionFailed, Message: "Sorry, I couldn't make out the recording. Please try again."}
	}
}
