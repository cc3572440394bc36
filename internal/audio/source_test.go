package audio

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu     sync.Mutex
	chunks []Chunk
	errs   []error
	done   chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{done: make(chan struct{})}
}

func (s *recordingSink) OnChunk(c Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, c)
}

func (s *recordingSink) OnError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
	if errors.Is(err, ErrSourceExhausted) {
		close(s.done)
	}
}

func TestBlobSourceDeliversChunks(t *testing.T) {
	// 1.25 seconds of audio at 16kHz
	samples := make([]float32, 20000)
	for i := range samples {
		samples[i] = float32(i%100) / 100
	}

	source := NewBlobSource(samples, testRate)
	sink := newRecordingSink()

	stream, err := source.Open(Format{SampleRate: testRate, Channels: 1, ChunkDuration: 500 * time.Millisecond}, sink)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer stream.Close()

	select {
	case <-sink.done:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for source exhaustion")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()

	if len(sink.chunks) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(sink.chunks))
	}

	if sink.chunks[0].Len() != 8000 || sink.chunks[2].Len() != 4000 {
		t.Errorf("Unexpected chunk sizes %d and %d", sink.chunks[0].Len(), sink.chunks[2].Len())
	}

	if sink.chunks[2].Duration() != 250*time.Millisecond {
		t.Errorf("Expected final chunk of 250ms, got %v", sink.chunks[2].Duration())
	}
}

func TestBlobSourceRejectsSampleRateMismatch(t *testing.T) {
	source := NewBlobSource(make([]float32, 100), 8000)

	_, err := source.Open(Format{SampleRate: testRate, Channels: 1, ChunkDuration: 500 * time.Millisecond}, newRecordingSink())
	if err == nil {
		t.Fatal("Expected error for sample rate mismatch")
	}

	var acqErr *AcquisitionError
	if !errors.As(err, &acqErr) {
		t.Errorf("Expected AcquisitionError, got %T", err)
	}
}

func TestBlobSourceCloseStopsDelivery(t *testing.T) {
	source := NewBlobSource(make([]float32, testRate*10), testRate)
	source.Realtime = true
	sink := newRecordingSink()

	stream, err := source.Open(Format{SampleRate: testRate, Channels: 1, ChunkDuration: 100 * time.Millisecond}, sink)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	time.Sleep(150 * time.Millisecond)
	if err := stream.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	sink.mu.Lock()
	delivered := len(sink.chunks)
	sink.mu.Unlock()

	time.Sleep(250 * time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.chunks) != delivered {
		t.Errorf("Chunks delivered after Close: %d -> %d", delivered, len(sink.chunks))
	}

	// Closing twice is harmless
	if err := stream.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
}

func TestNewBlobSourceFromWAV(t *testing.T) {
	wavData, err := EncodeFloat32(make([]float32, testRate), testRate)
	if err != nil {
		t.Fatalf("EncodeFloat32 failed: %v", err)
	}

	source, err := NewBlobSourceFromWAV(wavData)
	if err != nil {
		t.Fatalf("NewBlobSourceFromWAV failed: %v", err)
	}

	if source.Duration() != time.Second {
		t.Errorf("Expected 1s recording, got %v", source.Duration())
	}

	if !source.Realtime {
		t.Error("Decoded recordings should replay in real time")
	}

	if NewBlobSource(nil, testRate).Realtime {
		t.Error("In-memory sources default to fast delivery")
	}
}

func TestBlobSourceRealtimePacing(t *testing.T) {
	wavData, err := EncodeFloat32(make([]float32, testRate/2), testRate)
	if err != nil {
		t.Fatalf("EncodeFloat32 failed: %v", err)
	}

	source, err := NewBlobSourceFromWAV(wavData)
	if err != nil {
		t.Fatalf("NewBlobSourceFromWAV failed: %v", err)
	}

	sink := newRecordingSink()
	started := time.Now()
	stream, err := source.Open(Format{SampleRate: testRate, Channels: 1, ChunkDuration: 100 * time.Millisecond}, sink)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer stream.Close()

	// five 100ms chunks take at least 400ms to arrive
	deadline := time.Now().Add(3 * time.Second)
	for {
		sink.mu.Lock()
		n := len(sink.chunks)
		sink.mu.Unlock()
		if n == 5 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Expected 5 chunks, got %d", n)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if elapsed := time.Since(started); elapsed < 400*time.Millisecond {
		t.Errorf("Chunks arrived faster than real time: %v", elapsed)
	}
}
