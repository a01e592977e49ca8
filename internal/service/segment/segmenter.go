package segment

import (
	"fmt"
	"time"

	"interview-copilot-service/internal/audio"
)

// VoiceState is the segmenter state.
type VoiceState int

const (
	VoiceSilent VoiceState = iota
	VoiceSpeaking
)

func (v VoiceState) String() string {
	switch v {
	case VoiceSilent:
		return "silent"
	case VoiceSpeaking:
		return "speaking"
	default:
		return fmt.Sprintf("unknown(%d)", v)
	}
}

// Outcome is the result of feeding one sample to the segmenter.
type Outcome int

const (
	// OutcomeNone - nothing happened at the turn level.
	OutcomeNone Outcome = iota
	// OutcomeBoundary - a turn ended and its buffer was handed off.
	OutcomeBoundary
	// OutcomeDiscarded - a boundary fired but the buffer was too short.
	OutcomeDiscarded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeBoundary:
		return "boundary"
	case OutcomeDiscarded:
		return "discarded"
	default:
		return fmt.Sprintf("unknown(%d)", o)
	}
}

// SegmenterConfig tunes the silence hysteresis.
type SegmenterConfig struct {
	SpeakingThreshold float64       // level strictly above this counts as speech
	SilenceDelay      time.Duration // silence needed after speech to end a turn
	MinTurnFrames     int           // shorter buffers are discarded on boundary
	MaxTurnFrames     int           // 0 = unbounded; oldest frames dropped beyond it
}

// DefaultSegmenterConfig returns defaults for RMS levels on 64ms frames.
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		SpeakingThreshold: 0.01,
		SilenceDelay:      3 * time.Second,
		MinTurnFrames:     16,
		MaxTurnFrames:     0,
	}
}

// Validate checks the config ranges.
func (c SegmenterConfig) Validate() error {
	if c.SpeakingThreshold < 0 {
		return fmt.Errorf("speaking threshold must be >= 0, got %f", c.SpeakingThreshold)
	}
	if c.SilenceDelay < 0 {
		return fmt.Errorf("silence delay must be >= 0, got %v", c.SilenceDelay)
	}
	if c.MinTurnFrames < 0 {
		return fmt.Errorf("min turn frames must be >= 0, got %d", c.MinTurnFrames)
	}
	if c.MaxTurnFrames < 0 {
		return fmt.Errorf("max turn frames must be >= 0, got %d", c.MaxTurnFrames)
	}
	if c.MaxTurnFrames > 0 && c.MaxTurnFrames < c.MinTurnFrames {
		return fmt.Errorf("max turn frames %d below min turn frames %d", c.MaxTurnFrames, c.MinTurnFrames)
	}
	return nil
}

// Boundary carries the audio of one finished turn.
type Boundary struct {
	Frames   []audio.Frame
	Duration time.Duration
	Forced   bool
}

// WAV packages the boundary audio for submission.
func (b *Boundary) WAV() ([]byte, error) {
	return audio.EncodeFramesWAV(b.Frames)
}

// Segmenter decides when buffered audio forms a turn.
//
// The silence timer runs on the audio clock: every low-level frame observed
// while the timer is armed adds its duration, and the timer fires once the
// total reaches SilenceDelay. Renewed speech disarms it.
//
// Not safe for concurrent use; the session event loop owns it.
type Segmenter struct {
	cfg SegmenterConfig

	state     VoiceState
	buffer    []audio.Frame
	armed     bool
	silentFor time.Duration

	boundaries uint64
	discarded  uint64
	trimmed    uint64
}

// NewSegmenter creates a segmenter in the Silent state.
func NewSegmenter(cfg SegmenterConfig) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Segmenter{cfg: cfg}, nil
}

// State returns the current voice state.
func (s *Segmenter) State() VoiceState {
	return s.state
}

// Speaking reports whether a level counts as speech.
func (s *Segmenter) Speaking(level float64) bool {
	return level > s.cfg.SpeakingThreshold
}

// TimerArmed reports whether the silence timer is running.
func (s *Segmenter) TimerArmed() bool {
	return s.armed
}

// Buffered returns the number of frames in the turn buffer.
func (s *Segmenter) Buffered() int {
	return len(s.buffer)
}

// Observe feeds one frame and its activity level. inFlight must be true while
// a submission is outstanding; the silence timer is not armed then.
func (s *Segmenter) Observe(frame audio.Frame, level float64, inFlight bool) (*Boundary, Outcome) {
	if s.Speaking(level) {
		s.state = VoiceSpeaking
		s.armed = false
		s.silentFor = 0
		s.push(frame)
		return nil, OutcomeNone
	}

	if s.state == VoiceSilent {
		return nil, OutcomeNone
	}

	s.push(frame)
	if !s.armed {
		if inFlight {
			return nil, OutcomeNone
		}
		s.armed = true
		s.silentFor = 0
	}
	s.silentFor += frame.Duration()
	if s.silentFor < s.cfg.SilenceDelay {
		return nil, OutcomeNone
	}
	return s.cut(false)
}

// Cut ends the current turn immediately, regardless of state.
func (s *Segmenter) Cut() (*Boundary, Outcome) {
	return s.cut(true)
}

// Reset drops buffered audio and returns to Silent.
func (s *Segmenter) Reset() {
	s.state = VoiceSilent
	s.buffer = nil
	s.armed = false
	s.silentFor = 0
}

// Stats returns boundary, short-discard and trimmed-frame counters.
func (s *Segmenter) Stats() (boundaries, discarded, trimmed uint64) {
	return s.boundaries, s.discarded, s.trimmed
}

func (s *Segmenter) push(frame audio.Frame) {
	s.buffer = append(s.buffer, frame)
	if s.cfg.MaxTurnFrames > 0 && len(s.buffer) > s.cfg.MaxTurnFrames {
		drop := len(s.buffer) - s.cfg.MaxTurnFrames
		s.buffer = s.buffer[drop:]
		s.trimmed += uint64(drop)
	}
}

func (s *Segmenter) cut(forced bool) (*Boundary, Outcome) {
	frames := s.buffer
	s.Reset()

	if len(frames) == 0 || len(frames) < s.cfg.MinTurnFrames {
		s.discarded++
		return nil, OutcomeDiscarded
	}

	var d time.Duration
	for _, f := range frames {
		d += f.Duration()
	}
	s.boundaries++
	return &Boundary{Frames: frames, Duration: d, Forced: forced}, OutcomeBoundary
}
