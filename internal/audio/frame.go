// Package audio provides captured audio frames, PCM/WAV codecs, audio
// sources and the level monitor that reduces frames to an activity scalar.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// DefaultSampleRate is the rate the AI collaborators expect for PCM input.
const DefaultSampleRate = 16000

// Frame is a block of mono samples normalized to [-1, 1].
type Frame struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the wall time covered by the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// Clone returns a frame that owns its sample slice.
func (f Frame) Clone() Frame {
	s := make([]float32, len(f.Samples))
	copy(s, f.Samples)
	return Frame{Samples: s, SampleRate: f.SampleRate}
}

// clamp limits v to [-1, 1]; NaN maps to silence.
func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}

// FloatToPCM16 converts normalized samples to signed 16-bit PCM.
// Out-of-range input is clamped.
func FloatToPCM16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, v := range in {
		s := clamp(float64(v))
		if s < 0 {
			out[i] = int16(s * 0x8000)
		} else {
			out[i] = int16(s * 0x7FFF)
		}
	}
	return out
}

// PCM16ToFloat converts signed 16-bit PCM to normalized samples.
func PCM16ToFloat(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		if v < 0 {
			out[i] = float32(v) / 0x8000
		} else {
			out[i] = float32(v) / 0x7FFF
		}
	}
	return out
}

// PCM16Bytes encodes samples as little-endian 16-bit PCM.
func PCM16Bytes(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}

// DecodePCM16LE decodes little-endian 16-bit PCM bytes into normalized samples.
func DecodePCM16LE(b []byte) ([]float32, error) {
	if len(b)%2 != 0 {
		return nil, fmt.Errorf("pcm16 payload has odd length %d", len(b))
	}
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return PCM16ToFloat(pcm), nil
}

// DecodeFloat32LE decodes little-endian IEEE-754 float32 samples. NaN
// becomes 0 and infinities are clamped to full scale.
func DecodeFloat32LE(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("float32 payload length %d is not a multiple of 4", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		v := math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			v = float32(clamp(float64(v)))
		}
		out[i] = v
	}
	return out, nil
}
