package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// MimeTypeWAV is the content type of turns packaged by EncodeWAV.
const MimeTypeWAV = "audio/wav"

const wavHeaderSize = 44

var (
	ErrEmptyAudio = errors.New("no audio samples")
	ErrInvalidWAV = errors.New("invalid WAV data")
)

// wavHeader is the canonical 44-byte RIFF/WAVE header for mono PCM.
type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// EncodeWAV wraps mono 16-bit PCM samples in a WAV container.
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyAudio
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	dataSize := uint32(len(samples) * 2)
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   1,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * 2,
		BlockAlign:    2,
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(samples)*2))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("write WAV header: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("write WAV data: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeWAV returns the PCM samples and sample rate of a mono 16-bit WAV file.
func DecodeWAV(data []byte) ([]int16, int, error) {
	if len(data) < wavHeaderSize {
		return nil, 0, fmt.Errorf("%w: need at least %d bytes, got %d", ErrInvalidWAV, wavHeaderSize, len(data))
	}

	var header wavHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return nil, 0, fmt.Errorf("read WAV header: %w", err)
	}

	switch {
	case string(header.ChunkID[:]) != "RIFF":
		return nil, 0, fmt.Errorf("%w: missing RIFF header", ErrInvalidWAV)
	case string(header.Format[:]) != "WAVE":
		return nil, 0, fmt.Errorf("%w: missing WAVE format", ErrInvalidWAV)
	case string(header.Subchunk1ID[:]) != "fmt ":
		return nil, 0, fmt.Errorf("%w: missing fmt chunk", ErrInvalidWAV)
	case string(header.Subchunk2ID[:]) != "data":
		return nil, 0, fmt.Errorf("%w: missing data chunk", ErrInvalidWAV)
	case header.AudioFormat != 1:
		return nil, 0, fmt.Errorf("%w: unsupported audio format %d (PCM only)", ErrInvalidWAV, header.AudioFormat)
	case header.BitsPerSample != 16:
		return nil, 0, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidWAV, header.BitsPerSample)
	case header.NumChannels != 1:
		return nil, 0, fmt.Errorf("%w: unsupported channel count %d (mono only)", ErrInvalidWAV, header.NumChannels)
	}

	payload := data[wavHeaderSize:]
	if int(header.Subchunk2Size) < len(payload) {
		payload = payload[:header.Subchunk2Size]
	}
	if len(payload) < 2 {
		return nil, 0, ErrEmptyAudio
	}

	samples := make([]int16, len(payload)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(payload[i*2:]))
	}
	return samples, int(header.SampleRate), nil
}

// EncodeFramesWAV concatenates frames into a single WAV payload.
func EncodeFramesWAV(frames []Frame) ([]byte, error) {
	if len(frames) == 0 {
		return nil, ErrEmptyAudio
	}
	rate := frames[0].SampleRate
	n := 0
	for _, f := range frames {
		if f.SampleRate != rate {
			return nil, fmt.Errorf("mixed sample rates %d and %d", rate, f.SampleRate)
		}
		n += len(f.Samples)
	}
	pcm := make([]int16, 0, n)
	for _, f := range frames {
		pcm = append(pcm, FloatToPCM16(f.Samples)...)
	}
	return EncodeWAV(pcm, rate)
}
