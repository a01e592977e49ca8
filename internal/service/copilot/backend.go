// Package copilot implements the turn lifecycle controller: a single event
// loop per session that feeds captured audio to the segmenter, submits turns
// to an AI backend one at a time and merges results into the transcript.
package copilot

import (
	"context"
	"fmt"
	"time"

	"interview-copilot-service/internal/audio"
	"interview-copilot-service/internal/service/ai"
	"interview-copilot-service/internal/service/segment"
)

// Mode selects the submission model.
type Mode string

const (
	// ModeBatch packages each turn's audio as one request.
	ModeBatch Mode = "batch"
	// ModeStreaming keeps a live session open and forwards every frame.
	ModeStreaming Mode = "streaming"
)

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeBatch, ModeStreaming:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown copilot mode %q", s)
	}
}

// Event is anything delivered to the session event loop.
type Event interface {
	event()
}

// AnalysisResult is the outcome of one batch submission.
type AnalysisResult struct {
	TurnID   string
	Analysis ai.Analysis
	Err      error
	Latency  time.Duration
}

// InputText carries incremental interviewer transcript text.
type InputText struct{ Text string }

// OutputText carries incremental answer text.
type OutputText struct{ Text string }

// TurnComplete marks the end of a remote exchange.
type TurnComplete struct{}

// SessionError reports a terminal remote session failure.
type SessionError struct{ Err error }

// SessionClosed reports that the remote side closed the session.
type SessionClosed struct{}

func (AnalysisResult) event() {}
func (InputText) event()      {}
func (OutputText) event()     {}
func (TurnComplete) event()   {}
func (SessionError) event()   {}
func (SessionClosed) event()  {}

// Dispatcher delivers events to the session event loop.
type Dispatcher interface {
	// Dispatch enqueues e. It returns false once the session has been torn
	// down; it never blocks past teardown.
	Dispatch(e Event) bool
}

// TurnRequest is one batch submission.
type TurnRequest struct {
	TurnID   string
	Boundary *segment.Boundary
	History  []ai.Exchange
}

// Backend is the turn lifecycle backend a session drives.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// Mode reports the submission model.
	Mode() Mode

	// Open prepares the backend for one session run. Results and callbacks
	// are delivered through d.
	Open(ctx context.Context, d Dispatcher) error

	// Forward hands one captured frame to the backend. Batch backends ignore it.
	Forward(ctx context.Context, frame audio.Frame) error

	// Submit starts one asynchronous turn analysis. The result arrives as an
	// AnalysisResult event. Streaming backends return ErrUnsupported.
	Submit(ctx context.Context, req TurnRequest) error

	// Close releases every resource opened by Open. Safe to call repeatedly.
	Close() error
}
