// Package transcript holds the ordered turn history shown to the UI and
// notifies subscribers of every change.
package transcript

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"interview-copilot-service/internal/service/segment"
)

var (
	ErrActiveTurn    = errors.New("another turn is already active")
	ErrTurnNotActive = errors.New("turn is not the active turn")
	ErrDuplicateTurn = errors.New("turn id already exists")
	ErrTurnNotFound  = errors.New("turn not found")
)

// Turn is one interviewer-question/suggested-answer exchange.
type Turn struct {
	ID        string         `json:"id"`
	Question  string         `json:"question"`
	Answer    string         `json:"answer"`
	Status    segment.Status `json:"status"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// ChangeKind identifies a transcript mutation.
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeUpdated
	ChangeRemoved
	ChangeCleared
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeUpdated:
		return "updated"
	case ChangeRemoved:
		return "removed"
	case ChangeCleared:
		return "cleared"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

func (k ChangeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Change describes one mutation. Index is the turn's position at the time of
// the change (-1 for ChangeCleared).
type Change struct {
	Kind  ChangeKind `json:"kind"`
	Turn  Turn       `json:"turn"`
	Index int        `json:"index"`
}

// Listener receives changes synchronously, after the store lock is released.
// Listeners must not block.
type Listener func(Change)

type entry struct {
	turn      Turn
	lifecycle *segment.Lifecycle
}

// Store is the transcript history. Insertion order is chronological, and at
// most one turn is pending or streaming at any time.
type Store struct {
	mu        sync.RWMutex
	entries   []*entry
	active    *entry
	listeners map[int]Listener
	nextSub   int
	now       func() time.Time
}

// NewStore returns an empty transcript.
func NewStore() *Store {
	return &Store{
		listeners: make(map[int]Listener),
		now:       time.Now,
	}
}

// Subscribe registers a listener and returns a function that removes it.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Begin appends a new active turn in the given status.
func (s *Store) Begin(id string, status segment.Status) (Turn, error) {
	s.mu.Lock()
	if s.active != nil {
		s.mu.Unlock()
		return Turn{}, fmt.Errorf("%w: %s", ErrActiveTurn, s.active.turn.ID)
	}
	if s.indexOf(id) >= 0 {
		s.mu.Unlock()
		return Turn{}, fmt.Errorf("%w: %s", ErrDuplicateTurn, id)
	}

	lc := segment.NewLifecycle(id, status)
	now := s.now()
	e := &entry{
		turn: Turn{
			ID:        id,
			Status:    lc.Status(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		lifecycle: lc,
	}
	s.entries = append(s.entries, e)
	s.active = e
	ch := Change{Kind: ChangeAdded, Turn: e.turn, Index: len(s.entries) - 1}
	s.mu.Unlock()

	s.notify(ch)
	return ch.Turn, nil
}

// AppendQuestion appends interviewer text to the active turn.
func (s *Store) AppendQuestion(id, text string) error {
	return s.mutate(id, func(t *Turn) { t.Question += text }, false)
}

// AppendAnswer appends suggested-answer text to the active turn.
func (s *Store) AppendAnswer(id, text string) error {
	return s.mutate(id, func(t *Turn) { t.Answer += text }, false)
}

// Resolve fills both fields and completes the active turn in one change.
func (s *Store) Resolve(id, question, answer string) error {
	return s.mutate(id, func(t *Turn) {
		t.Question += question
		t.Answer += answer
	}, true)
}

// Complete marks the active turn complete.
func (s *Store) Complete(id string) error {
	return s.mutate(id, nil, true)
}

// Discard removes the active turn from the history. Discarding a turn that
// is no longer present returns ErrTurnNotFound.
func (s *Store) Discard(id string) error {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTurnNotFound, id)
	}
	e := s.entries[idx]
	if s.active != e {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTurnNotActive, id)
	}
	e.lifecycle.Discard()
	e.turn.Status = e.lifecycle.Status()
	e.turn.UpdatedAt = s.now()
	s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
	s.active = nil
	ch := Change{Kind: ChangeRemoved, Turn: e.turn, Index: idx}
	s.mu.Unlock()

	s.notify(ch)
	return nil
}

// Clear drops every turn, including an active one.
func (s *Store) Clear() {
	s.mu.Lock()
	for _, e := range s.entries {
		e.lifecycle.Discard()
	}
	s.entries = nil
	s.active = nil
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeCleared, Index: -1})
}

// Turns returns a snapshot of the history in order.
func (s *Store) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.turn
	}
	return out
}

// Len returns the number of turns.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Active returns the pending/streaming turn, if any.
func (s *Store) Active() (Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return Turn{}, false
	}
	return s.active.turn, true
}

// Get returns a turn by ID.
func (s *Store) Get(id string) (Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.indexOf(id); idx >= 0 {
		return s.entries[idx].turn, true
	}
	return Turn{}, false
}

// Completed returns up to limit of the most recent complete turns, oldest
// first. limit <= 0 returns all of them.
func (s *Store) Completed(limit int) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Turn
	for _, e := range s.entries {
		if e.turn.Status == segment.StatusComplete {
			out = append(out, e.turn)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (s *Store) mutate(id string, apply func(*Turn), complete bool) error {
	s.mu.Lock()
	if s.active == nil || s.active.turn.ID != id {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTurnNotActive, id)
	}
	e := s.active
	if apply != nil {
		if err := e.lifecycle.Append(); err != nil {
			s.mu.Unlock()
			return err
		}
		apply(&e.turn)
	}
	if complete {
		if err := e.lifecycle.Complete(); err != nil {
			s.mu.Unlock()
			return err
		}
		s.active = nil
	}
	e.turn.Status = e.lifecycle.Status()
	e.turn.UpdatedAt = s.now()
	ch := Change{Kind: ChangeUpdated, Turn: e.turn, Index: s.indexOf(id)}
	s.mu.Unlock()

	s.notify(ch)
	return nil
}

func (s *Store) indexOf(id string) int {
	for i, e := range s.entries {
		if e.turn.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) notify(ch Change) {
	s.mu.RLock()
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.mu.RUnlock()

	for _, l := range ls {
		l(ch)
	}
}
