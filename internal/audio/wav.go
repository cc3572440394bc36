package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/go-audio/wav"
)

// WAVHeader represents the header structure of a canonical PCM WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// WAVHeaderSize is the size of the canonical header written by EncodeWAV
const WAVHeaderSize = 44

// Encoder turns captured float samples into mono 16-bit WAV bytes.
// Multi-channel input is interleaved and averaged down to mono.
type Encoder struct {
	SampleRate int
	Channels   int
}

// Encode scales float samples by 32767, clamps to the int16 range and writes
// a mono WAV container. The output depends only on the input samples.
func (e Encoder) Encode(samples []float32) ([]byte, error) {
	channels := e.Channels
	if channels <= 0 {
		channels = 1
	}

	if len(samples)%channels != 0 {
		return nil, fmt.Errorf("sample count %d is not a multiple of %d channels", len(samples), channels)
	}

	pcm := make([]int16, len(samples)/channels)
	for i := range pcm {
		if channels == 1 {
			pcm[i] = FloatToPCM16(samples[i])
			continue
		}

		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		pcm[i] = FloatToPCM16(sum / float32(channels))
	}

	return EncodeWAV(pcm, e.SampleRate)
}

// EncodeFloat32 encodes mono float samples into WAV format
func EncodeFloat32(samples []float32, sampleRate int) ([]byte, error) {
	return Encoder{SampleRate: sampleRate, Channels: 1}.Encode(samples)
}

// EncodeWAV encodes PCM-16 samples into WAV format. An empty slice yields a
// header-only file.
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	numChannels := uint16(1)
	bitsPerSample := uint16(16)
	dataSize := uint32(len(samples) * 2)
	fileSize := 36 + dataSize // header is 44 bytes, RIFF size excludes the first 8

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     fileSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, WAVHeaderSize+len(samples)*2))

	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	return buf.Bytes(), nil
}

// FloatToPCM16 converts a normalized sample to int16. Out of range input is
// clamped, never wrapped.
func FloatToPCM16(s float32) int16 {
	v := float64(s)
	if math.IsNaN(v) {
		return 0
	}

	v = math.Round(v * 32767)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// PCM16ToFloat32 converts int16 samples to floats in [-1, 1]
func PCM16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		v := float32(s) / 32767
		if v < -1 {
			v = -1
		}
		out[i] = v
	}
	return out
}

// DecodeWAV decodes a PCM WAV file into mono 16-bit samples and its sample
// rate. Other bit depths are rescaled and extra channels are averaged.
func DecodeWAV(data []byte) ([]int16, int, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("invalid WAV file")
	}

	if decoder.WavAudioFormat != 1 {
		return nil, 0, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", decoder.WavAudioFormat)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read audio samples: %w", err)
	}

	channels := int(decoder.NumChans)
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}
	if channels < 1 {
		return nil, 0, fmt.Errorf("invalid channel count: %d", channels)
	}

	numSamples := len(buf.Data) / channels
	if numSamples == 0 {
		return nil, 0, fmt.Errorf("no audio data found")
	}

	bitDepth := int(decoder.BitDepth)
	samples := make([]int16, numSamples)
	for i := range samples {
		var sum int
		for c := 0; c < channels; c++ {
			sum += to16Bit(buf.Data[i*channels+c], bitDepth)
		}
		samples[i] = int16(sum / channels)
	}

	return samples, int(decoder.SampleRate), nil
}

// to16Bit rescales a decoded sample of the given depth to the int16 range
func to16Bit(v, bitDepth int) int {
	switch {
	case bitDepth == 8:
		return (v - 128) << 8 // 8-bit WAV is unsigned
	case bitDepth > 16:
		return v >> uint(bitDepth-16)
	default:
		return v
	}
}

// WAVInfo describes a WAV file without decoding its samples
type WAVInfo struct {
	SampleRate    uint32        `json:"sample_rate"`
	Channels      uint16        `json:"channels"`
	BitsPerSample uint16        `json:"bits_per_sample"`
	Duration      time.Duration `json:"duration"`
}

// GetWAVInfo extracts metadata from a WAV file
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file")
	}

	duration, err := decoder.Duration()
	if err != nil {
		return nil, fmt.Errorf("failed to read WAV duration: %w", err)
	}

	return &WAVInfo{
		SampleRate:    decoder.SampleRate,
		Channels:      decoder.NumChans,
		BitsPerSample: decoder.BitDepth,
		Duration:      duration,
	}, nil
}
