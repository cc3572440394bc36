package audio

import (
	"time"
)

// WindowBuffer accumulates chunks until they cover a target window duration.
// Durations are summed from the actual chunk lengths, so backends that deliver
// irregular callbacks are handled. A WindowBuffer is owned by a single
// goroutine and is not safe for concurrent use.
type WindowBuffer struct {
	target   time.Duration
	chunks   []Chunk
	duration time.Duration

	// Statistics
	pushed  uint64
	evicted uint64
	drained uint64
}

// BufferStats represents buffer statistics for monitoring
type BufferStats struct {
	Target        time.Duration `json:"target"`
	Buffered      time.Duration `json:"buffered"`
	Chunks        int           `json:"chunks"`
	ChunksPushed  uint64        `json:"chunks_pushed"`
	ChunksEvicted uint64        `json:"chunks_evicted"`
	Windows       uint64        `json:"windows_drained"`
}

// NewWindowBuffer creates a buffer that is full once it holds target worth of audio
func NewWindowBuffer(target time.Duration) *WindowBuffer {
	return &WindowBuffer{
		target: target,
		chunks: make([]Chunk, 0, 8),
	}
}

// Push appends a chunk. Oldest chunks are evicted while the remaining ones
// still cover the target, so the buffer never holds more than one window
// plus the newest chunk's overhang.
func (b *WindowBuffer) Push(chunk Chunk) {
	if chunk.Len() == 0 {
		return
	}

	b.chunks = append(b.chunks, chunk)
	b.duration += chunk.Duration()
	b.pushed++

	for len(b.chunks) > 1 && b.duration-b.chunks[0].Duration() >= b.target {
		b.duration -= b.chunks[0].Duration()
		b.chunks[0] = Chunk{}
		b.chunks = b.chunks[1:]
		b.evicted++
	}
}

// IsFull reports whether the buffered audio covers the target window
func (b *WindowBuffer) IsFull() bool {
	return len(b.chunks) > 0 && b.duration >= b.target
}

// Drain returns the buffered samples in arrival order and empties the buffer.
// Draining an empty buffer returns an empty slice.
func (b *WindowBuffer) Drain() []float32 {
	total := 0
	for _, c := range b.chunks {
		total += c.Len()
	}

	samples := make([]float32, 0, total)
	for _, c := range b.chunks {
		samples = append(samples, c.Samples()...)
	}

	if len(b.chunks) > 0 {
		b.drained++
	}
	b.Reset()

	return samples
}

// Reset discards buffered audio without returning it
func (b *WindowBuffer) Reset() {
	for i := range b.chunks {
		b.chunks[i] = Chunk{}
	}
	b.chunks = b.chunks[:0]
	b.duration = 0
}

// Duration returns the amount of audio currently buffered
func (b *WindowBuffer) Duration() time.Duration {
	return b.duration
}

// Len returns the number of buffered chunks
func (b *WindowBuffer) Len() int {
	return len(b.chunks)
}

// GetStats returns buffer statistics
func (b *WindowBuffer) GetStats() BufferStats {
	return BufferStats{
		Target:        b.target,
		Buffered:      b.duration,
		Chunks:        len(b.chunks),
		ChunksPushed:  b.pushed,
		ChunksEvicted: b.evicted,
		Windows:       b.drained,
	}
}
