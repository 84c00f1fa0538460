package synthesis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// script drives one fake utterance. cancelled is closed when the engine is
// cancelled while the utterance is in flight.
type script func(call int, cb Callbacks, cancelled <-chan struct{})

func finishNormally(_ int, cb Callbacks, _ <-chan struct{}) {
	cb.OnStart()
	cb.OnEnd()
}

func holdUntilCancelled(_ int, cb Callbacks, cancelled <-chan struct{}) {
	cb.OnStart()
	<-cancelled
	cb.OnError(ErrInterrupted)
}

type fakeEngine struct {
	mu       sync.Mutex
	voices   []Voice
	changed  chan struct{}
	calls    []Utterance
	cancels  int
	inflight chan struct{}
	script   script
	speakErr error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		voices: []Voice{{ID: "v1", Name: "Samantha", Lang: "en-US", Gender: "female"}},
		script: finishNormally,
	}
}

func (e *fakeEngine) Voices() []Voice {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Voice(nil), e.voices...)
}

func (e *fakeEngine) VoicesChanged() <-chan struct{} { return e.changed }

func (e *fakeEngine) Speak(u Utterance, cb Callbacks) error {
	e.mu.Lock()
	if e.speakErr != nil {
		e.mu.Unlock()
		return e.speakErr
	}
	n := len(e.calls)
	e.calls = append(e.calls, u)
	cancelled := make(chan struct{})
	e.inflight = cancelled
	run := e.script
	e.mu.Unlock()

	go run(n, cb, cancelled)
	return nil
}

func (e *fakeEngine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancels++
	if e.inflight != nil {
		close(e.inflight)
		e.inflight = nil
	}
}

func (e *fakeEngine) Calls() []Utterance {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Utterance(nil), e.calls...)
}

func (e *fakeEngine) Cancels() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancels
}

func newTestSynthesizer(engine Engine) *Synthesizer {
	cfg := DefaultConfig()
	cfg.VoicePollInterval = 5 * time.Millisecond
	cfg.VoiceWaitTimeout = 50 * time.Millisecond
	s := New(engine, cfg)
	s.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return s
}

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %v", kinds(events))
			return nil
		}
	}
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func assertKinds(t *testing.T, events []Event, want ...EventKind) {
	t.Helper()
	got := kinds(events)
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, got)
		}
	}
}

func TestSynthesizer_ShortText_SingleUtterance(t *testing.T) {
	engine := newFakeEngine()
	s := newTestSynthesizer(engine)
	defer s.Close()

	events := collect(t, s.Speak(context.Background(), "Hi.", 1.0))

	assertKinds(t, events, EventStarted, EventEnded)

	calls := engine.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 engine call, got %d", len(calls))
	}
	if calls[0].Text != PauseMarker+"Hi." {
		t.Errorf("expected pause-prefixed text, got %q", calls[0].Text)
	}
	if calls[0].Voice == nil || calls[0].Voice.ID != "v1" {
		t.Errorf("expected selected voice v1, got %+v", calls[0].Voice)
	}
	if calls[0].Lang != "en-US" {
		t.Errorf("expected locale en-US, got %s", calls[0].Lang)
	}
	if s.Speaking() {
		t.Error("expected synthesizer to be idle after ended")
	}
}

func TestSynthesizer_LongText_OneStartedOneEnded(t *testing.T) {
	engine := newFakeEngine()
	s := newTestSynthesizer(engine)
	defer s.Close()

	text := strings.Repeat("This is a fairly ordinary sentence about the weather. ", 6)
	events := collect(t, s.Speak(context.Background(), text, 1.0))

	assertKinds(t, events, EventStarted, EventEnded)

	if n := len(engine.Calls()); n < 2 {
		t.Errorf("expected text to be split into at least 2 utterances, got %d", n)
	}
}

func TestSynthesizer_Cancel_WhenIdle_DoesNotTouchEngine(t *testing.T) {
	engine := newFakeEngine()
	s := newTestSynthesizer(engine)
	defer s.Close()

	s.Cancel()
	s.Cancel()

	if engine.Cancels() != 0 {
		t.Errorf("expected no engine cancel while idle, got %d", engine.Cancels())
	}
}

func TestSynthesizer_Cancel_ClosesWithoutFinalEvent(t *testing.T) {
	engine := newFakeEngine()
	engine.script = holdUntilCancelled
	s := newTestSynthesizer(engine)
	defer s.Close()

	ch := s.Speak(context.Background(), "Please hold.", 1.0)

	first := <-ch
	if first.Kind != EventStarted {
		t.Fatalf("expected started, got %v", first.Kind)
	}
	s.Cancel()

	for _, ev := range collect(t, ch) {
		if ev.Kind == EventEnded || ev.Kind == EventFailed {
			t.Errorf("unexpected final event %v after cancel", ev.Kind)
		}
	}
	if engine.Cancels() != 1 {
		t.Errorf("expected 1 engine cancel, got %d", engine.Cancels())
	}
}

func TestSynthesizer_Interrupted_RetriesOnce(t *testing.T) {
	engine := newFakeEngine()
	engine.script = func(call int, cb Callbacks, _ <-chan struct{}) {
		if call == 0 {
			cb.OnError(ErrInterrupted)
			return
		}
		cb.OnStart()
		cb.OnEnd()
	}
	s := newTestSynthesizer(engine)
	defer s.Close()

	events := collect(t, s.Speak(context.Background(), "Hello there.", 1.0))

	assertKinds(t, events, EventInterrupted, EventStarted, EventEnded)

	calls := engine.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected segment to be re-issued once, got %d calls", len(calls))
	}
	if calls[0].Text != calls[1].Text {
		t.Errorf("expected same segment re-issued, got %q then %q", calls[0].Text, calls[1].Text)
	}
}

func TestSynthesizer_InterruptedTwice_EndsNormally(t *testing.T) {
	engine := newFakeEngine()
	engine.script = func(_ int, cb Callbacks, _ <-chan struct{}) {
		cb.OnStart()
		cb.OnError(ErrInterrupted)
	}
	s := newTestSynthesizer(engine)
	defer s.Close()

	events := collect(t, s.Speak(context.Background(), "Hello there.", 1.0))

	assertKinds(t, events, EventStarted, EventInterrupted, EventInterrupted, EventEnded)
	if n := len(engine.Calls()); n != 2 {
		t.Errorf("expected 2 engine calls, got %d", n)
	}
}

func TestSynthesizer_EngineError_Fails(t *testing.T) {
	engine := newFakeEngine()
	engine.script = func(_ int, cb Callbacks, _ <-chan struct{}) {
		cb.OnError(errors.New("audio device lost"))
	}
	s := newTestSynthesizer(engine)
	defer s.Close()

	events := collect(t, s.Speak(context.Background(), "Hello there.", 1.0))

	assertKinds(t, events, EventFailed)
	if !errors.Is(events[0].Err, ErrSynthesisFailed) {
		t.Errorf("expected ErrSynthesisFailed, got %v", events[0].Err)
	}
}

func TestSynthesizer_SpeakRejected_Fails(t *testing.T) {
	engine := newFakeEngine()
	engine.speakErr = errors.New("no engine")
	s := newTestSynthesizer(engine)
	defer s.Close()

	events := collect(t, s.Speak(context.Background(), "Hello there.", 1.0))

	assertKinds(t, events, EventFailed)
}

func TestSynthesizer_NewSpeak_SupersedesPrevious(t *testing.T) {
	engine := newFakeEngine()
	engine.script = func(call int, cb Callbacks, cancelled <-chan struct{}) {
		if call == 0 {
			holdUntilCancelled(call, cb, cancelled)
			return
		}
		finishNormally(call, cb, cancelled)
	}
	s := newTestSynthesizer(engine)
	defer s.Close()

	first := s.Speak(context.Background(), "First reply.", 1.0)
	if ev := <-first; ev.Kind != EventStarted {
		t.Fatalf("expected started, got %v", ev.Kind)
	}

	second := s.Speak(context.Background(), "Second reply.", 1.0)

	for _, ev := range collect(t, first) {
		if ev.Kind == EventEnded || ev.Kind == EventFailed {
			t.Errorf("superseded job emitted final event %v", ev.Kind)
		}
	}
	assertKinds(t, collect(t, second), EventStarted, EventEnded)
}

func TestSynthesizer_WaitsForVoices(t *testing.T) {
	engine := newFakeEngine()
	engine.voices = nil
	engine.changed = make(chan struct{})
	s := newTestSynthesizer(engine)
	s.cfg.VoiceWaitTimeout = time.Second
	defer s.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		engine.mu.Lock()
		engine.voices = []Voice{
			{ID: "d", Name: "Daniel", Lang: "en-GB"},
			{ID: "n", Name: "Jenny Natural", Lang: "en-US"},
		}
		engine.mu.Unlock()
		close(engine.changed)
	}()

	assertKinds(t, collect(t, s.Speak(context.Background(), "Hi.", 1.0)), EventStarted, EventEnded)

	calls := engine.Calls()
	if len(calls) != 1 || calls[0].Voice == nil || calls[0].Voice.ID != "n" {
		t.Errorf("expected natural en-US voice after voices loaded, got %+v", calls)
	}
}

func TestSynthesizer_NoVoices_UsesEngineDefault(t *testing.T) {
	engine := newFakeEngine()
	engine.voices = nil
	s := newTestSynthesizer(engine)
	defer s.Close()

	assertKinds(t, collect(t, s.Speak(context.Background(), "Hi.", 1.0)), EventStarted, EventEnded)

	calls := engine.Calls()
	if len(calls) != 1 || calls[0].Voice != nil {
		t.Errorf("expected engine default voice, got %+v", calls)
	}
}

func TestSynthesizer_SpeakAfterClose(t *testing.T) {
	engine := newFakeEngine()
	s := newTestSynthesizer(engine)
	s.Close()

	events := collect(t, s.Speak(context.Background(), "Hi.", 1.0))

	assertKinds(t, events, EventFailed)
	if !errors.Is(events[0].Err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", events[0].Err)
	}
	if len(engine.Calls()) != 0 {
		t.Error("expected no engine call after close")
	}
}

func TestEventKind_String(t *testing.T) {
	tests := []struct {
		kind EventKind
		want string
	}{
		{EventStarted, "started"},
		{EventEnded, "ended"},
		{EventFailed, "failed"},
		{EventInterrupted, "interrupted"},
		{EventKind(99), "unknown(99)"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("EventKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
