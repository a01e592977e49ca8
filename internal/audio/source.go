package audio

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

// ErrTrackEnded is returned when pushing into a track that has been stopped.
var ErrTrackEnded = errors.New("audio track ended")

// Track is one live audio track. ReadFrame returns io.EOF once the track ends.
type Track interface {
	ReadFrame(ctx context.Context) (Frame, error)
	Stop() error
}

// Source is a captured media stream (e.g. a shared browser tab).
type Source interface {
	AudioTracks() []Track
	Stop() error
}

// MediaSource groups tracks into a Source. Stop is idempotent.
type MediaSource struct {
	tracks []Track
	once   sync.Once
	err    error
}

// NewSource builds a Source from the given tracks. A source with no tracks is
// valid here; the session rejects it on start.
func NewSource(tracks ...Track) *MediaSource {
	return &MediaSource{tracks: tracks}
}

func (s *MediaSource) AudioTracks() []Track {
	return s.tracks
}

// Stop stops every track once.
func (s *MediaSource) Stop() error {
	s.once.Do(func() {
		for _, t := range s.tracks {
			if err := t.Stop(); err != nil && s.err == nil {
				s.err = err
			}
		}
	})
	return s.err
}

// PipeTrack is a push-fed track. A producer calls Push for each chunk and End
// when the capture stops; the consumer reads with ReadFrame.
type PipeTrack struct {
	sampleRate int
	frames     chan Frame
	done       chan struct{}
	once       sync.Once
}

// NewPipeTrack creates a track buffering up to depth pending chunks.
func NewPipeTrack(sampleRate, depth int) *PipeTrack {
	if depth <= 0 {
		depth = 64
	}
	return &PipeTrack{
		sampleRate: sampleRate,
		frames:     make(chan Frame, depth),
		done:       make(chan struct{}),
	}
}

// SampleRate returns the rate of pushed samples.
func (p *PipeTrack) SampleRate() int {
	return p.sampleRate
}

// Push enqueues samples. It blocks while the buffer is full.
func (p *PipeTrack) Push(ctx context.Context, samples []float32) error {
	select {
	case <-p.done:
		return ErrTrackEnded
	default:
	}
	select {
	case p.frames <- Frame{Samples: samples, SampleRate: p.sampleRate}:
		return nil
	case <-p.done:
		return ErrTrackEnded
	case <-ctx.Done():
		return ctx.Err()
	}
}

// End marks the track as finished. Equivalent to Stop.
func (p *PipeTrack) End() {
	_ = p.Stop()
}

func (p *PipeTrack) Stop() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

// ReadFrame returns pushed frames in order, then io.EOF after Stop has been
// called and the buffer is drained.
func (p *PipeTrack) ReadFrame(ctx context.Context) (Frame, error) {
	select {
	case f := <-p.frames:
		return f, nil
	default:
	}
	select {
	case f := <-p.frames:
		return f, nil
	case <-p.done:
		select {
		case f := <-p.frames:
			return f, nil
		default:
			return Frame{}, io.EOF
		}
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// WAVTrack replays decoded PCM as fixed-size frames.
type WAVTrack struct {
	mu         sync.Mutex
	samples    []float32
	sampleRate int
	blockSize  int
	pos        int
	stopped    bool
}

// NewWAVTrack decodes a WAV payload into a replay track.
func NewWAVTrack(data []byte, blockSize int) (*WAVTrack, error) {
	pcm, rate, err := DecodeWAV(data)
	if err != nil {
		return nil, err
	}
	if blockSize <= 0 {
		blockSize = 1024
	}
	return &WAVTrack{
		samples:    PCM16ToFloat(pcm),
		sampleRate: rate,
		blockSize:  blockSize,
	}, nil
}

// SampleRate returns the rate of the decoded file.
func (w *WAVTrack) SampleRate() int {
	return w.sampleRate
}

func (w *WAVTrack) ReadFrame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || w.pos >= len(w.samples) {
		return Frame{}, io.EOF
	}
	end := w.pos + w.blockSize
	if end > len(w.samples) {
		end = len(w.samples)
	}
	f := Frame{Samples: w.samples[w.pos:end], SampleRate: w.sampleRate}
	w.pos = end
	return f, nil
}

func (w *WAVTrack) Stop() error {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	return nil
}

// PacedTrack delivers the frames of another track no faster than real time.
type PacedTrack struct {
	Track
	next time.Time
	now  func() time.Time
}

// Paced wraps t so each frame is released after the previous one's duration.
func Paced(t Track) *PacedTrack {
	return &PacedTrack{Track: t, now: time.Now}
}

func (p *PacedTrack) ReadFrame(ctx context.Context) (Frame, error) {
	if wait := p.next.Sub(p.now()); !p.next.IsZero() && wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return Frame{}, ctx.Err()
		}
	}
	f, err := p.Track.ReadFrame(ctx)
	if err != nil {
		return f, err
	}
	if p.next.IsZero() {
		p.next = p.now()
	}
	p.next = p.next.Add(f.Duration())
	return f, nil
}
