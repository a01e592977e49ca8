// Package segment provides turn ID generation, the per-turn lifecycle state
// machine and the voice-activity turn segmenter.
package segment

import (
	"errors"
	"fmt"
	"sync"
)

// Status represents the lifecycle state of a turn.
type Status int

const (
	// StatusPending - Turn created, submission outstanding, no text yet.
	StatusPending Status = iota
	// StatusStreaming - Question/answer text is arriving.
	StatusStreaming
	// StatusComplete - Turn finished. Its fields are immutable from here on.
	StatusComplete
	// StatusDiscarded - No question was heard or the submission failed.
	// The turn is removed from the transcript.
	StatusDiscarded
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusStreaming:
		return "streaming"
	case StatusComplete:
		return "complete"
	case StatusDiscarded:
		return "discarded"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// MarshalText renders the status as its string form in JSON.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsTerminal returns true for complete and discarded turns.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusDiscarded
}

// IsActive returns true while the turn occupies the single-flight slot.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusStreaming
}

// Errors for invalid state transitions.
var (
	ErrTurnClosed          = errors.New("turn is discarded")
	ErrTurnAlreadyComplete = errors.New("turn is already complete")
)

// Lifecycle manages the state machine for a single turn.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	PENDING → STREAMING → COMPLETE
//	   │          │
//	   └──────────┴── Discard() ──→ DISCARDED
//
// Rules:
//   - PENDING: Append moves to STREAMING, Complete finishes directly.
//   - STREAMING: Append allowed (many times), Complete once.
//   - COMPLETE: Append and Complete fail with ErrTurnAlreadyComplete.
//   - DISCARDED: Append and Complete fail with ErrTurnClosed.
type Lifecycle struct {
	mu     sync.RWMutex
	turnId string
	status Status
}

// NewLifecycle creates a turn lifecycle in the given initial status.
// Only PENDING and STREAMING are valid starting points.
func NewLifecycle(turnId string, initial Status) *Lifecycle {
	if !initial.IsActive() {
		initial = StatusPending
	}
	return &Lifecycle{
		turnId: turnId,
		status: initial,
	}
}

// TurnId returns the turn ID.
func (l *Lifecycle) TurnId() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.turnId
}

// Status returns the current status.
func (l *Lifecycle) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

// IsActive returns true while the turn is pending or streaming.
func (l *Lifecycle) IsActive() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status.IsActive()
}

// Append validates a text append, moving PENDING to STREAMING.
func (l *Lifecycle) Append() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.status {
	case StatusPending:
		l.status = StatusStreaming
		return nil
	case StatusStreaming:
		return nil
	case StatusComplete:
		return ErrTurnAlreadyComplete
	case StatusDiscarded:
		return ErrTurnClosed
	default:
		return fmt.Errorf("unexpected status: %v", l.status)
	}
}

// Complete transitions an active turn to COMPLETE.
func (l *Lifecycle) Complete() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.status {
	case StatusPending, StatusStreaming:
		l.status = StatusComplete
		return nil
	case StatusComplete:
		return ErrTurnAlreadyComplete
	case StatusDiscarded:
		return ErrTurnClosed
	default:
		return fmt.Errorf("unexpected status: %v", l.status)
	}
}

// Discard transitions an active turn to DISCARDED.
// Returns true if the turn was discarded, false if it was already terminal.
func (l *Lifecycle) Discard() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status.IsTerminal() {
		return false
	}
	l.status = StatusDiscarded
	return true
}
