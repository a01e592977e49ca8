// Package models defines the data structures for turn and status events.
package models

// Turn event types.
const (
	EventTurnUpdated       = "interview.turn.updated"
	EventTurnCompleted     = "interview.turn.completed"
	EventTurnRemoved       = "interview.turn.removed"
	EventTranscriptCleared = "interview.transcript.cleared"
	EventSessionStatus     = "interview.session.status"
)

// TurnEvent is published whenever a turn in the transcript changes.
type TurnEvent struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	Principal string `json:"principal,omitempty"`
	Timestamp int64  `json:"timestamp"`
	TurnID    string `json:"turnId,omitempty"`
	Index     int    `json:"index"`
	Question  string `json:"question,omitempty"`
	Answer    string `json:"answer,omitempty"`
	Status    string `json:"status,omitempty"`
}

// StatusEvent carries the session status to UI clients.
type StatusEvent struct {
	EventType string  `json:"eventType"`
	SessionID string  `json:"sessionId,omitempty"`
	Timestamp int64   `json:"timestamp"`
	State     string  `json:"state"`
	Text      string  `json:"text"`
	Mode      string  `json:"mode"`
	Level     float64 `json:"level"`
	Speaking  bool    `json:"speaking"`
	Error     string  `json:"error,omitempty"`
	ErrorKind string  `json:"errorKind,omitempty"`
}
