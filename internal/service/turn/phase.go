// Package turn provides the conversation phase machine, turn IDs and the
// append-only turn log.
package turn

import (
	"errors"
	"fmt"
	"sync"
)

// Phase is the single active phase of a conversation.
type Phase int

const (
	// PhaseIdle - Nothing in flight, a recording or typed message may begin.
	PhaseIdle Phase = iota
	// PhaseListening - The microphone is buffering a recording.
	PhaseListening
	// PhaseTranscribing - The recording is being transcribed.
	PhaseTranscribing
	// PhaseBotThinking - Waiting on the language model for a reply.
	PhaseBotThinking
	// PhaseSpeaking - The bot reply is being spoken. Recording is refused.
	PhaseSpeaking
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseListening:
		return "listening"
	case PhaseTranscribing:
		return "transcribing"
	case PhaseBotThinking:
		return "botThinking"
	case PhaseSpeaking:
		return "speaking"
	default:
		return fmt.Sprintf("unknown(%d)", p)
	}
}

// MarshalText renders the phase name in JSON payloads.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Errors for rejected transitions.
var (
	ErrSpeaking          = errors.New("bot is speaking")
	ErrBusy              = errors.New("a turn is already in progress")
	ErrInvalidTransition = errors.New("invalid phase transition")
	ErrStale             = errors.New("stale turn generation")
	ErrClosed            = errors.New("conversation is closed")
)

// transitions lists the phases reachable from each phase by an event.
// Reset and Close bypass this table.
var transitions = map[Phase][]Phase{
	PhaseIdle:         {PhaseListening, PhaseBotThinking},
	PhaseListening:    {PhaseTranscribing},
	PhaseTranscribing: {PhaseBotThinking, PhaseSpeaking, PhaseIdle},
	PhaseBotThinking:  {PhaseSpeaking},
	PhaseSpeaking:     {PhaseIdle},
}

// CanTransition reports whether an event may move the machine from one
// phase to another.
func CanTransition(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// Machine holds the current phase and the generation of the turn cycle in
// progress. Thread-safe for concurrent access.
//
// Phase transitions:
//
//	idle → listening → transcribing → botThinking → speaking → idle
//	  │                     │                          ▲
//	  │                     ├── degenerate ────────────┘
//	  │                     └── error ──→ idle
//	  └── typed text ──→ botThinking
//
// Rules:
//   - Begin starts a new cycle from idle and bumps the generation
//   - Advance only succeeds for the current generation; results of a
//     cancelled cycle are reported as ErrStale and must be dropped
//   - Reset returns to idle from anywhere and invalidates the cycle
//   - Close is terminal
type Machine struct {
	mu         sync.RWMutex
	phase      Phase
	generation uint64
	closed     bool
}

// NewMachine creates a machine in the idle phase.
func NewMachine() *Machine {
	return &Machine{phase: PhaseIdle}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// Generation returns the generation of the current cycle.
func (m *Machine) Generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation
}

// IsClosed returns true once Close has been called.
func (m *Machine) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// IsCurrent reports whether gen still identifies the live cycle.
func (m *Machine) IsCurrent(gen uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed && m.generation == gen
}

// Begin starts a new cycle by moving from idle to the given phase.
// Returns the generation that tags every result of this cycle.
func (m *Machine) Begin(to Phase) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}
	switch m.phase {
	case PhaseIdle:
		// OK
	case PhaseSpeaking:
		return 0, ErrSpeaking
	default:
		return 0, ErrBusy
	}
	if !CanTransition(m.phase, to) {
		return 0, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, m.phase, to)
	}

	m.generation++
	m.phase = to
	return m.generation, nil
}

// Advance moves the cycle identified by gen to the next phase.
// Returns the phase it left.
func (m *Machine) Advance(gen uint64, to Phase) (Phase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return m.phase, ErrClosed
	}
	if gen != m.generation {
		return m.phase, ErrStale
	}
	if !CanTransition(m.phase, to) {
		return m.phase, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, m.phase, to)
	}

	from := m.phase
	m.phase = to
	return from, nil
}

// Reset forces the machine to idle and invalidates the current cycle.
// Returns the phase it left. Idempotent.
func (m *Machine) Reset() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	from := m.phase
	m.generation++
	m.phase = PhaseIdle
	return from
}

// Close resets the machine and makes it refuse every later event.
// Returns false if already closed.
func (m *Machine) Close() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.closed = true
	m.generation++
	m.phase = PhaseIdle
	return true
}
