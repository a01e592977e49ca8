package copilot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"interview-copilot-service/internal/audio"
	"interview-copilot-service/internal/service/ai"
)

// DefaultRequestTimeout bounds one batch analysis.
const DefaultRequestTimeout = 60 * time.Second

// BatchBackend submits each turn's audio as a single WAV request.
type BatchBackend struct {
	analyzer ai.Analyzer
	name     string
	timeout  time.Duration

	mu     sync.Mutex
	d      Dispatcher
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBatchBackend wraps an analyzer. timeout <= 0 selects DefaultRequestTimeout.
func NewBatchBackend(name string, analyzer ai.Analyzer, timeout time.Duration) *BatchBackend {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &BatchBackend{analyzer: analyzer, name: name, timeout: timeout}
}

func (b *BatchBackend) Name() string { return b.name }

func (b *BatchBackend) Mode() Mode { return ModeBatch }

// Open binds the backend to a session run.
func (b *BatchBackend) Open(ctx context.Context, d Dispatcher) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return ErrSessionActive
	}
	b.d = d
	b.ctx, b.cancel = context.WithCancel(ctx)
	return nil
}

// Forward is a no-op; batch turns carry their own audio.
func (b *BatchBackend) Forward(ctx context.Context, frame audio.Frame) error {
	return nil
}

// Submit packages the boundary audio and analyzes it in the background.
func (b *BatchBackend) Submit(ctx context.Context, req TurnRequest) error {
	if req.Boundary == nil {
		return fmt.Errorf("submit %s: no audio", req.TurnID)
	}
	wav, err := req.Boundary.WAV()
	if err != nil {
		return fmt.Errorf("package turn %s: %w", req.TurnID, err)
	}

	b.mu.Lock()
	if b.cancel == nil {
		b.mu.Unlock()
		return ErrNotRunning
	}
	base, d := b.ctx, b.d
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(base, b.timeout)
		defer cancel()

		start := time.Now()
		analysis, err := b.analyzer.AnalyzeAudioTurn(ctx, wav, audio.MimeTypeWAV, req.History)
		if err == nil {
			err = analysis.Validate()
		}
		if err != nil && !errors.Is(err, ErrMalformedResponse) {
			err = fmt.Errorf("%w: %w", ErrTransport, err)
		}
		if base.Err() != nil {
			log.Debug().Str("turnId", req.TurnID).Msg("Batch result after close, dropping")
			return
		}
		d.Dispatch(AnalysisResult{
			TurnID:   req.TurnID,
			Analysis: analysis,
			Err:      err,
			Latency:  time.Since(start),
		})
	}()
	return nil
}

// Close cancels outstanding requests and waits for their goroutines.
func (b *BatchBackend) Close() error {
	b.mu.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.d = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.wg.Wait()
	return nil
}
