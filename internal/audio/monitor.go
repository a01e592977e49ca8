package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/cmplx"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Strategy selects how a frame is reduced to an activity level.
type Strategy string

const (
	// StrategyRMS measures full-band RMS amplitude. Range [0, 1].
	StrategyRMS Strategy = "rms"
	// StrategyVoiceBand measures mean spectral magnitude inside the voice band.
	StrategyVoiceBand Strategy = "voiceband"
)

var ErrSampleRateMismatch = errors.New("frame sample rate does not match monitor")

// Band is a frequency range in Hz.
type Band struct {
	MinHz float64
	MaxHz float64
}

// DefaultVoiceBand is the telephony voice band.
func DefaultVoiceBand() Band {
	return Band{MinHz: 300, MaxHz: 3400}
}

// Meter reduces one frame to an activity scalar.
type Meter interface {
	Level(f Frame) float64
}

// RMSMeter computes sqrt(mean(sample²)).
type RMSMeter struct{}

func (RMSMeter) Level(f Frame) float64 {
	if len(f.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range f.Samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(f.Samples)))
}

// VoiceBandMeter averages FFT magnitudes over the bins inside a band.
// Magnitudes are scaled by 2/N so a full-scale sine on a bin reads as its
// amplitude; the mean over the band is therefore much smaller than RMS and
// needs its own threshold. Work buffers are reused between frames of the same
// length. Not safe for concurrent use.
type VoiceBandMeter struct {
	band  Band
	fft   *fourier.FFT
	n     int
	seq   []float64
	coeff []complex128
}

// NewVoiceBandMeter prepares a meter for frames of blockSize samples.
func NewVoiceBandMeter(band Band, blockSize int) (*VoiceBandMeter, error) {
	if band.MinHz < 0 || band.MaxHz <= band.MinHz {
		return nil, fmt.Errorf("invalid voice band %.0f-%.0f Hz", band.MinHz, band.MaxHz)
	}
	if blockSize < 2 {
		return nil, fmt.Errorf("block size must be at least 2, got %d", blockSize)
	}
	m := &VoiceBandMeter{band: band}
	m.resize(blockSize)
	return m, nil
}

func (m *VoiceBandMeter) resize(n int) {
	m.n = n
	m.fft = fourier.NewFFT(n)
	m.seq = make([]float64, n)
	m.coeff = make([]complex128, n/2+1)
}

func (m *VoiceBandMeter) Level(f Frame) float64 {
	if len(f.Samples) < 2 || f.SampleRate <= 0 {
		return 0
	}
	if len(f.Samples) != m.n {
		m.resize(len(f.Samples))
	}
	for i, s := range f.Samples {
		m.seq[i] = float64(s)
	}
	coeff := m.fft.Coefficients(m.coeff, m.seq)

	var sum float64
	bins := 0
	for i, c := range coeff {
		hz := m.fft.Freq(i) * float64(f.SampleRate)
		if hz < m.band.MinHz || hz > m.band.MaxHz {
			continue
		}
		sum += cmplx.Abs(c)
		bins++
	}
	if bins == 0 {
		return 0
	}
	return sum / float64(bins) * 2 / float64(m.n)
}

// NewMeter builds the meter for a strategy.
func NewMeter(strategy Strategy, band Band, blockSize int) (Meter, error) {
	switch strategy {
	case StrategyRMS, "":
		return RMSMeter{}, nil
	case StrategyVoiceBand:
		return NewVoiceBandMeter(band, blockSize)
	default:
		return nil, fmt.Errorf("unknown level strategy %q", strategy)
	}
}

// MonitorConfig configures the level monitor.
type MonitorConfig struct {
	SampleRate int
	BlockSize  int
	Strategy   Strategy
	VoiceBand  Band
}

// DefaultMonitorConfig returns 1024-sample blocks at 16 kHz (~15.6 levels/s).
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		SampleRate: DefaultSampleRate,
		BlockSize:  1024,
		Strategy:   StrategyRMS,
		VoiceBand:  DefaultVoiceBand(),
	}
}

// Cadence is the interval between level samples.
func (c MonitorConfig) Cadence() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.BlockSize) * time.Second / time.Duration(c.SampleRate)
}

// Sample is one level measurement together with the block it was taken from.
type Sample struct {
	Frame Frame
	Level float64
}

// Monitor re-blocks a track into fixed-size frames and measures each one.
type Monitor struct {
	cfg     MonitorConfig
	meter   Meter
	pending []float32
}

// NewMonitor validates the config and builds the meter.
func NewMonitor(cfg MonitorConfig) (*Monitor, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.BlockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", cfg.BlockSize)
	}
	meter, err := NewMeter(cfg.Strategy, cfg.VoiceBand, cfg.BlockSize)
	if err != nil {
		return nil, err
	}
	return &Monitor{
		cfg:     cfg,
		meter:   meter,
		pending: make([]float32, 0, cfg.BlockSize),
	}, nil
}

// Config returns the monitor configuration.
func (m *Monitor) Config() MonitorConfig {
	return m.cfg
}

// Measure returns the level of a single frame.
func (m *Monitor) Measure(f Frame) float64 {
	return m.meter.Level(f)
}

// Run reads the track until it ends and calls emit once per full block.
// It returns nil when the track reaches io.EOF, the read error otherwise,
// or nil early when emit returns false. A trailing partial block is dropped.
func (m *Monitor) Run(ctx context.Context, track Track, emit func(Sample) bool) error {
	m.pending = m.pending[:0]
	for {
		f, err := track.ReadFrame(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if f.SampleRate != m.cfg.SampleRate {
			return fmt.Errorf("%w: got %d Hz, want %d Hz", ErrSampleRateMismatch, f.SampleRate, m.cfg.SampleRate)
		}

		in := f.Samples
		for len(in) > 0 {
			room := m.cfg.BlockSize - len(m.pending)
			if room > len(in) {
				room = len(in)
			}
			m.pending = append(m.pending, in[:room]...)
			in = in[room:]
			if len(m.pending) < m.cfg.BlockSize {
				continue
			}

			block := Frame{Samples: make([]float32, m.cfg.BlockSize), SampleRate: m.cfg.SampleRate}
			copy(block.Samples, m.pending)
			m.pending = m.pending[:0]
			if !emit(Sample{Frame: block, Level: m.meter.Level(block)}) {
				return nil
			}
		}
	}
}
