package turn

import (
	"sync"
	"time"
)

// Speaker identifies who a turn is attributed to.
type Speaker string

const (
	SpeakerUser Speaker = "user"
	SpeakerBot  Speaker = "bot"
)

// ConversationTurn is one causally ordered unit of conversation content.
// Turns are values; the log never hands out references into its storage.
type ConversationTurn struct {
	ID        string    `json:"id"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Scripted  bool      `json:"scripted"`
	CreatedAt time.Time `json:"createdAt"`
}

// Log is the append-only turn sequence of one session.
type Log struct {
	mu        sync.RWMutex
	sessionId string
	ids       *Generator
	turns     []ConversationTurn
	now       func() time.Time
}

// NewLog creates an empty log whose turn IDs are scoped to sessionId.
func NewLog(sessionId string) *Log {
	return &Log{
		sessionId: sessionId,
		ids:       NewGenerator(),
		now:       time.Now,
	}
}

// Append creates and stores a new turn.
func (l *Log) Append(speaker Speaker, text string, scripted bool) ConversationTurn {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := ConversationTurn{
		ID:        l.ids.Next(l.sessionId),
		Speaker:   speaker,
		Text:      text,
		Scripted:  scripted,
		CreatedAt: l.now().UTC(),
	}
	l.turns = append(l.turns, t)
	return t
}

// Turns returns a copy of every turn in creation order.
func (l *Log) Turns() []ConversationTurn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]ConversationTurn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Len returns the number of turns.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// SessionId returns the session the log belongs to.
func (l *Log) SessionId() string {
	return l.sessionId
}
