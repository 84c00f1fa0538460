package conversation

import (
	"speaking-practice/internal/service/turn"
)

// EventKind identifies what an Event carries.
type EventKind string

const (
	EventPhase  EventKind = "phase"
	EventTurn   EventKind = "turn"
	EventNotice EventKind = "notice"
)

// Notice codes.
const (
	NoticeMicrophoneUnavailable = "microphone_unavailable"
	NoticePayloadTooLarge       = "payload_too_large"
	NoticeRateLimited           = "rate_limited"
	NoticeRetrying              = "retrying"
	NoticeTranscriptionFailed   = "transcription_failed"
	NoticeLanguageModelFailed   = "language_model_failed"
	NoticeSynthesisFailed       = "synthesis_failed"
)

// Notice is a user-facing message that is not part of the conversation.
type Notice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Event is delivered to subscribers in the order things happened.
type Event struct {
	Kind   EventKind              `json:"kind"`
	Phase  string                 `json:"phase,omitempty"`
	Turn   *turn.ConversationTurn `json:"turn,omitempty"`
	Notice *Notice                `json:"notice,omitempty"`
}

const subscriberBuffer = 64

// Subscribe returns a channel of coordinator events and a function that
// ends the subscription. Slow subscribers miss events rather than block
// the conversation. The channel is closed by cancel or by Close.
func (c *Coordinator) Subscribe() (<-chan Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if c.machine.IsClosed() {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// emit must be called with c.mu held.
func (c *Coordinator) emit(ev Event) {
	for id, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			c.logger.Warn().Int("subscriber", id).Str("kind", string(ev.Kind)).Msg("Subscriber full, dropping event")
		}
	}
}

func (c *Coordinator) closeSubscribers() {
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}
