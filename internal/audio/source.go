package audio

import (
	"fmt"
	"sync"
	"time"
)

// Sink receives audio from an open stream. Both methods are called from the
// source's own goroutine and must return quickly.
type Sink interface {
	OnChunk(chunk Chunk)
	OnError(err error)
}

// Source opens capture streams. Implementations deliver mono chunks of
// format.ChunkDuration each, downmixing when format.Channels > 1.
type Source interface {
	Open(format Format, sink Sink) (Stream, error)
}

// Stream is an open capture. After Close returns no further Sink calls are made.
type Stream interface {
	Close() error
}

// BlobSource replays an in-memory recording, such as an uploaded WAV file,
// as if it were a live capture.
type BlobSource struct {
	samples    []float32
	sampleRate int

	// Realtime paces delivery at the chunk duration. Without it chunks are
	// delivered as fast as possible, and a consumer with a bounded queue,
	// such as the listen loop, drops whatever it cannot keep up with.
	Realtime bool
}

// NewBlobSource creates a source over mono samples at sampleRate
func NewBlobSource(samples []float32, sampleRate int) *BlobSource {
	return &BlobSource{
		samples:    samples,
		sampleRate: sampleRate,
	}
}

// NewBlobSourceFromWAV decodes a PCM WAV file into a replayable source that
// delivers in real time
func NewBlobSourceFromWAV(data []byte) (*BlobSource, error) {
	samples, sampleRate, err := DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode WAV blob: %w", err)
	}

	source := NewBlobSource(PCM16ToFloat32(samples), sampleRate)
	source.Realtime = true
	return source, nil
}

// Duration returns the length of the recording
func (b *BlobSource) Duration() time.Duration {
	return SamplesDuration(len(b.samples), b.sampleRate)
}

// Open starts replaying the recording into sink
func (b *BlobSource) Open(format Format, sink Sink) (Stream, error) {
	if err := format.Validate(); err != nil {
		return nil, &AcquisitionError{Device: "blob", Err: err}
	}

	if format.SampleRate != b.sampleRate {
		return nil, &AcquisitionError{
			Device: "blob",
			Err:    fmt.Errorf("recording is %d Hz, stream wants %d Hz", b.sampleRate, format.SampleRate),
		}
	}

	s := &blobStream{
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go s.run(b.samples, format, b.Realtime, sink)

	return s, nil
}

type blobStream struct {
	done      chan struct{}
	finished  chan struct{}
	closeOnce sync.Once
}

func (s *blobStream) run(samples []float32, format Format, realtime bool, sink Sink) {
	defer close(s.finished)

	frames := format.FramesPerChunk()
	start := time.Now()

	for offset := 0; offset < len(samples); offset += frames {
		select {
		case <-s.done:
			return
		default:
		}

		end := offset + frames
		if end > len(samples) {
			end = len(samples)
		}

		ts := start.Add(SamplesDuration(offset, format.SampleRate))
		sink.OnChunk(NewChunk(samples[offset:end], format.SampleRate, ts))

		if realtime {
			select {
			case <-time.After(format.ChunkDuration):
			case <-s.done:
				return
			}
		}
	}

	sink.OnError(ErrSourceExhausted)
}

// Close stops the replay and waits for the delivery goroutine to exit
func (s *blobStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	<-s.finished
	return nil
}
