package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"speaking-practice/internal/models"
	"speaking-practice/internal/observability/metrics"
	"speaking-practice/internal/schema"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func validTurn() models.TurnEvent {
	return models.TurnEvent{
		EventType: models.EventTypeBotTurn,
		SessionID: "sess-1",
		TurnID:    "sess-1-turn-2",
		Speaker:   "bot",
		Text:      "Hi there!",
		Scripted:  true,
		Timestamp: 1700000000000,
	}
}

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.Enabled() {
				t.Error("expected publisher to be disabled")
			}
			if p.writer != nil {
				t.Error("expected nil writer when disabled")
			}
		})
	}
}

func TestNew_ConfigValues(t *testing.T) {
	p := New(&Config{
		Enabled:   false,
		Brokers:   []string{"localhost:9092"},
		TopicTurn: "test.turns",
		Principal: "test-principal",
	})

	if p.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", p.principal)
	}
	if p.topic != "test.turns" {
		t.Errorf("expected topic 'test.turns', got %s", p.topic)
	}
}

func TestNew_Enabled_CreatesWriter(t *testing.T) {
	p := New(&Config{Enabled: true, Brokers: []string{"localhost:9092"}, TopicTurn: "t"})
	defer p.Close()

	if !p.Enabled() {
		t.Error("expected publisher to be enabled")
	}
	if _, ok := p.writer.(*kafka.Writer); !ok {
		t.Errorf("expected *kafka.Writer, got %T", p.writer)
	}
}

func TestPublisher_PublishTurn_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false})

	if err := p.PublishTurn(context.Background(), validTurn()); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_PublishTurn_Invalid(t *testing.T) {
	p := New(&Config{Enabled: false})

	ev := validTurn()
	ev.Text = ""
	err := p.PublishTurn(context.Background(), ev)

	if !errors.Is(err, schema.ErrInvalid) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestPublisher_PublishTurn_WritesMessage(t *testing.T) {
	w := &fakeWriter{}
	p := &Publisher{
		writer:    w,
		principal: "svc-test",
		topic:     "conversation.turns",
		enabled:   true,
		validator: schema.New(),
		metrics:   metrics.DefaultMetrics,
	}

	if err := p.PublishTurn(context.Background(), validTurn()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}

	msg := w.msgs[0]
	if string(msg.Key) != "sess-1" {
		t.Errorf("expected session key, got %q", msg.Key)
	}
	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["eventType"] != models.EventTypeBotTurn || headers["principal"] != "svc-test" {
		t.Errorf("unexpected headers %v", headers)
	}

	var got models.TurnEvent
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if got != validTurn() {
		t.Errorf("payload mismatch: %+v", got)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Errorf("expected writer closed, err=%v", err)
	}
}

func TestPublisher_PublishTurn_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := &Publisher{
		writer:    w,
		topic:     "conversation.turns",
		enabled:   true,
		validator: schema.New(),
		metrics:   metrics.DefaultMetrics,
	}

	if err := p.PublishTurn(context.Background(), validTurn()); err == nil {
		t.Error("expected write error")
	}
}

func TestPublisher_Close_NoWriter(t *testing.T) {
	p := New(&Config{Enabled: false})

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
}

type fakeReader struct {
	msgs []kafka.Message
	errs []error
	done chan struct{}
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		return kafka.Message{}, err
	}
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		return m, nil
	}
	close(r.done)
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) Close() error { return nil }

func TestReader_Run_DecodesAndSkips(t *testing.T) {
	payload, _ := json.Marshal(validTurn())
	legacy, _ := json.Marshal(map[string]any{"turnId": "t-9", "speaker": "user", "text": "hello"})

	fr := &fakeReader{
		errs: []error{errors.New("leader not available")},
		msgs: []kafka.Message{
			{Value: payload},
			{Value: []byte("not json")},
			{
				Key:     []byte("sess-9"),
				Value:   legacy,
				Headers: []kafka.Header{{Key: "eventType", Value: []byte(models.EventTypeUserTurn)}},
			},
		},
		done: make(chan struct{}),
	}
	r := &Reader{r: fr, topic: "conversation.turns", retry: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	var got []models.TurnEvent
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Run(ctx, func(ev models.TurnEvent) { got = append(got, ev) })
	}()

	<-fr.done
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].TurnID != "sess-1-turn-2" {
		t.Errorf("unexpected first event %+v", got[0])
	}
	if got[1].SessionID != "sess-9" || got[1].EventType != models.EventTypeUserTurn {
		t.Errorf("expected key and header fallbacks, got %+v", got[1])
	}
}
