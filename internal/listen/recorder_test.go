package listen

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Sahaa21/MindMend/internal/audio"
	"github.com/Sahaa21/MindMend/internal/transcription"
)

type fakeEngine struct {
	mu       sync.Mutex
	result   transcription.Result
	requests []transcription.Request
}

func (f *fakeEngine) Transcribe(_ context.Context, req transcription.Request) transcription.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.result
}

func newTestRecorder(t *testing.T, src audio.Source, engine transcription.Engine, language string) *Recorder {
	t.Helper()
	rec, err := NewRecorder(RecorderConfig{
		Format:      testConfig().Format,
		Language:    language,
		MaxDuration: 10 * time.Second,
	}, src, engine, testLogger())
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}
	return rec
}

func TestRecordAndTranscribe(t *testing.T) {
	src := audio.NewBlobSource(make([]float32, 3*testRate), testRate)
	engine := &fakeEngine{result: transcription.Succeeded([]transcription.Segment{
		{Text: " What is "},
		{Text: "the weather "},
	}, "en", 0.88)}

	rec := newTestRecorder(t, src, engine, "ta")

	transcript, err := rec.RecordAndTranscribe(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("RecordAndTranscribe failed: %v", err)
	}

	if transcript.Text != "What is the weather" {
		t.Errorf("Unexpected text %q", transcript.Text)
	}

	if transcript.Duration != 2*time.Second {
		t.Errorf("Expected 2s captured, got %v", transcript.Duration)
	}

	if transcript.Language != "en" || transcript.Confidence != 0.88 {
		t.Errorf("Unexpected language %s/%f", transcript.Language, transcript.Confidence)
	}

	if len(engine.requests) != 1 {
		t.Fatalf("Expected one request, got %d", len(engine.requests))
	}

	req := engine.requests[0]
	if req.Language != "ta" || !req.VADFilter {
		t.Errorf("Expected language hint and VAD filter, got %+v", req)
	}

	if len(req.Audio) != audio.WAVHeaderSize+2*testRate*2 {
		t.Errorf("Unexpected WAV size %d", len(req.Audio))
	}
}

func TestRecordShortSource(t *testing.T) {
	src := audio.NewBlobSource(make([]float32, testRate), testRate)
	engine := &fakeEngine{result: transcription.Succeeded([]transcription.Segment{{Text: "hi"}}, "en", 1)}

	rec := newTestRecorder(t, src, engine, "")

	transcript, err := rec.RecordAndTranscribe(context.Background(), 5*time.Second)
	if err != nil {
		t.Fatalf("RecordAndTranscribe failed: %v", err)
	}

	if transcript.Duration != time.Second {
		t.Errorf("Expected capture to end with the source, got %v", transcript.Duration)
	}
}

func TestRecordNoAudio(t *testing.T) {
	src := audio.NewBlobSource(nil, testRate)
	engine := &fakeEngine{}

	rec := newTestRecorder(t, src, engine, "")

	if _, err := rec.RecordAndTranscribe(context.Background(), time.Second); !errors.Is(err, ErrNoAudio) {
		t.Errorf("Expected ErrNoAudio, got %v", err)
	}

	if len(engine.requests) != 0 {
		t.Error("Engine must not be called without audio")
	}
}

func TestRecordTranscriptionFailure(t *testing.T) {
	src := audio.NewBlobSource(make([]float32, testRate), testRate)
	engine := &fakeEngine{result: transcription.Failed("server unavailable")}

	rec := newTestRecorder(t, src, engine, "")

	_, err := rec.RecordAndTranscribe(context.Background(), time.Second)

	var failure *transcription.Failure
	if !errors.As(err, &failure) {
		t.Fatalf("Expected *transcription.Failure, got %T: %v", err, err)
	}

	if failure.Reason != "server unavailable" {
		t.Errorf("Unexpected reason %q", failure.Reason)
	}
}

func TestRecordInvalidDuration(t *testing.T) {
	rec := newTestRecorder(t, &manualSource{}, &fakeEngine{}, "")

	for _, d := range []time.Duration{0, -time.Second, 11 * time.Second} {
		if _, err := rec.RecordAndTranscribe(context.Background(), d); !errors.Is(err, ErrInvalidDuration) {
			t.Errorf("Duration %v: expected ErrInvalidDuration, got %v", d, err)
		}
	}
}

func TestRecordOpenFailure(t *testing.T) {
	src := &manualSource{openErr: errors.New("device busy")}
	rec := newTestRecorder(t, src, &fakeEngine{}, "")

	_, err := rec.RecordAndTranscribe(context.Background(), time.Second)

	var acqErr *audio.AcquisitionError
	if !errors.As(err, &acqErr) {
		t.Errorf("Expected AcquisitionError, got %T: %v", err, err)
	}
}

func TestRecordClosesStream(t *testing.T) {
	src := &manualSource{}
	engine := &fakeEngine{result: transcription.Succeeded([]transcription.Segment{{Text: "ok"}}, "en", 1)}
	rec := newTestRecorder(t, src, engine, "")

	done := make(chan error, 1)
	go func() {
		_, err := rec.RecordAndTranscribe(context.Background(), time.Second)
		done <- err
	}()

	// wait for the stream to open, then feed exactly one second
	deadline := time.Now().Add(2 * time.Second)
	for {
		src.mu.Lock()
		opened := src.sink != nil
		src.mu.Unlock()
		if opened {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Stream never opened")
		}
		time.Sleep(5 * time.Millisecond)
	}

	src.push(0.1)
	src.push(0.1)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RecordAndTranscribe failed: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Recording did not finish")
	}

	if src.closes.Load() != 1 {
		t.Errorf("Expected stream closed once, got %d", src.closes.Load())
	}
}

func TestRecordContextCancelled(t *testing.T) {
	src := &manualSource{}
	rec := newTestRecorder(t, src, &fakeEngine{}, "")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := rec.RecordAndTranscribe(ctx, 5*time.Second); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}

	if src.closes.Load() != 1 {
		t.Errorf("Expected stream closed on cancel, got %d", src.closes.Load())
	}
}
