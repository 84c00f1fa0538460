// Package models defines the data exchanged with Kafka, the preferences
// file and the control API.
package models

// Turn event types.
const (
	EventTypeUserTurn = "conversation.turn.user"
	EventTypeBotTurn  = "conversation.turn.bot"
)

// TurnEvent is the exported form of one conversation turn.
type TurnEvent struct {
	EventType string `json:"eventType" validate:"required,oneof=conversation.turn.user conversation.turn.bot"`
	SessionID string `json:"sessionId" validate:"required"`
	TurnID    string `json:"turnId" validate:"required"`
	Speaker   string `json:"speaker" validate:"required,oneof=user bot"`
	Text      string `json:"text" validate:"required"`
	Scripted  bool   `json:"scripted"`
	Timestamp int64  `json:"timestamp" validate:"gt=0"`
}

// EventTypeFor returns the event type for a speaker.
func EventTypeFor(speaker string) string {
	if speaker == "bot" {
		return EventTypeBotTurn
	}
	return EventTypeUserTurn
}
