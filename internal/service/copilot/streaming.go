package copilot

import (
	"context"
	"fmt"
	"sync"

	"interview-copilot-service/internal/audio"
	"interview-copilot-service/internal/service/ai"
)

// StreamingBackend keeps one live session open per run and forwards every
// frame to it. Turn boundaries come from the remote side.
type StreamingBackend struct {
	connector ai.LiveConnector
	name      string

	mu      sync.Mutex
	session ai.LiveSession
}

// NewStreamingBackend wraps a live connector.
func NewStreamingBackend(name string, connector ai.LiveConnector) *StreamingBackend {
	return &StreamingBackend{connector: connector, name: name}
}

func (b *StreamingBackend) Name() string { return b.name }

func (b *StreamingBackend) Mode() Mode { return ModeStreaming }

// Open connects the live session.
func (b *StreamingBackend) Open(ctx context.Context, d Dispatcher) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != nil {
		return ErrSessionActive
	}
	sess, err := b.connector.OpenLiveSession(ctx, liveCallbacks{d: d})
	if err != nil {
		return fmt.Errorf("%w: open live session: %w", ErrTransport, err)
	}
	b.session = sess
	return nil
}

// Forward sends the frame to the live session.
func (b *StreamingBackend) Forward(ctx context.Context, frame audio.Frame) error {
	b.mu.Lock()
	sess := b.session
	b.mu.Unlock()
	if sess == nil {
		return ErrNotRunning
	}
	if err := sess.SendAudioChunk(ctx, frame); err != nil {
		return fmt.Errorf("%w: send audio: %w", ErrTransport, err)
	}
	return nil
}

// Submit is not supported; the remote side decides turn boundaries.
func (b *StreamingBackend) Submit(ctx context.Context, req TurnRequest) error {
	return ErrUnsupported
}

// Close closes the live session exactly once per Open.
func (b *StreamingBackend) Close() error {
	b.mu.Lock()
	sess := b.session
	b.session = nil
	b.mu.Unlock()

	if sess == nil {
		return nil
	}
	return sess.Close()
}

// liveCallbacks adapts ai.LiveCallbacks to session events.
type liveCallbacks struct {
	d Dispatcher
}

func (c liveCallbacks) OnInputText(text string)  { c.d.Dispatch(InputText{Text: text}) }
func (c liveCallbacks) OnOutputText(text string) { c.d.Dispatch(OutputText{Text: text}) }
func (c liveCallbacks) OnTurnComplete()          { c.d.Dispatch(TurnComplete{}) }
func (c liveCallbacks) OnError(err error)        { c.d.Dispatch(SessionError{Err: err}) }
func (c liveCallbacks) OnClose()                 { c.d.Dispatch(SessionClosed{}) }
