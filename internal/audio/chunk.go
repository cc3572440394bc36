package audio

import (
	"fmt"
	"time"
)

// Chunk is one capture callback's worth of mono samples in [-1, 1].
// Chunks are never modified after construction.
type Chunk struct {
	samples    []float32
	sampleRate int
	timestamp  time.Time
}

// NewChunk copies samples into a new chunk captured at ts
func NewChunk(samples []float32, sampleRate int, ts time.Time) Chunk {
	owned := make([]float32, len(samples))
	copy(owned, samples)

	return Chunk{
		samples:    owned,
		sampleRate: sampleRate,
		timestamp:  ts,
	}
}

// Samples returns the chunk samples. Callers must not modify the slice.
func (c Chunk) Samples() []float32 {
	return c.samples
}

// Len returns the number of samples in the chunk
func (c Chunk) Len() int {
	return len(c.samples)
}

// SampleRate returns the rate the chunk was captured at
func (c Chunk) SampleRate() int {
	return c.sampleRate
}

// Timestamp returns the capture time of the first sample
func (c Chunk) Timestamp() time.Time {
	return c.timestamp
}

// Duration returns the audio length covered by the chunk
func (c Chunk) Duration() time.Duration {
	return SamplesDuration(len(c.samples), c.sampleRate)
}

// SamplesDuration converts a sample count at sampleRate into a duration
func SamplesDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(sampleRate))
}

// Format describes how a source should deliver audio
type Format struct {
	SampleRate    int
	Channels      int
	ChunkDuration time.Duration
}

// FramesPerChunk returns the number of frames per delivered chunk
func (f Format) FramesPerChunk() int {
	return int(int64(f.SampleRate) * int64(f.ChunkDuration) / int64(time.Second))
}

// Validate checks the format can be opened
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", f.SampleRate)
	}

	if f.Channels < 1 {
		return fmt.Errorf("channels must be at least 1, got %d", f.Channels)
	}

	if f.FramesPerChunk() < 1 {
		return fmt.Errorf("chunk duration %v is shorter than one frame", f.ChunkDuration)
	}

	return nil
}
