package wakeword

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

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

func textResult(text string) transcription.Result {
	return transcription.Succeeded([]transcription.Segment{{Text: text}}, "en", 0.9)
}

type fixedGate bool

func (g fixedGate) HasVoice([]float32) bool { return bool(g) }

type countingMetrics struct {
	matched, failed, total int
}

func (c *countingMetrics) RecordDetection(matched, failed bool, _ float64) {
	c.total++
	if matched {
		c.matched++
	}
	if failed {
		c.failed++
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestDetector(t *testing.T, engine transcription.Engine, phrases ...string) *Detector {
	t.Helper()
	d, err := NewDetector(engine, Config{Phrases: phrases, Language: "en", SampleRate: 16000}, testLogger())
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}
	return d
}

func TestNewDetectorValidation(t *testing.T) {
	engine := &fakeEngine{}

	tests := []struct {
		name   string
		engine transcription.Engine
		cfg    Config
	}{
		{"nil engine", nil, Config{Phrases: []string{"hey"}, SampleRate: 16000}},
		{"no phrases", engine, Config{SampleRate: 16000}},
		{"blank phrase", engine, Config{Phrases: []string{"hey", "  "}, SampleRate: 16000}},
		{"bad rate", engine, Config{Phrases: []string{"hey"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewDetector(tt.engine, tt.cfg, testLogger()); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestDetectMatchesPhraseInsideText(t *testing.T) {
	engine := &fakeEngine{result: textResult("Um, HEY assistant please")}
	d := newTestDetector(t, engine, "Hey Assistant")

	result := d.Detect(context.Background(), make([]float32, 1600))
	if !result.Matched {
		t.Fatalf("Expected a match, got %+v", result)
	}

	if result.Phrase != "hey assistant" {
		t.Errorf("Expected normalized phrase, got %q", result.Phrase)
	}

	if result.RawText != "um, hey assistant please" {
		t.Errorf("Unexpected raw text %q", result.RawText)
	}
}

func TestDetectMatchesAcrossSegments(t *testing.T) {
	engine := &fakeEngine{result: transcription.Succeeded([]transcription.Segment{
		{Text: " Okay hel"},
		{Text: "lo there"},
	}, "en", 0.9)}
	d := newTestDetector(t, engine, "hello")

	result := d.Detect(context.Background(), make([]float32, 1600))
	if !result.Matched || result.Phrase != "hello" {
		t.Fatalf("Expected a match on the concatenated segments, got %+v", result)
	}

	if result.RawText != "okay hello there" {
		t.Errorf("Unexpected raw text %q", result.RawText)
	}
}

func TestDetectNoMatch(t *testing.T) {
	engine := &fakeEngine{result: textResult("what time is it")}
	d := newTestDetector(t, engine, "hello", "hey")

	if result := d.Detect(context.Background(), make([]float32, 1600)); result.Matched {
		t.Errorf("Expected no match, got %+v", result)
	}
}

func TestDetectEmptyTranscript(t *testing.T) {
	engine := &fakeEngine{result: transcription.Succeeded(nil, "en", 0)}
	d := newTestDetector(t, engine, "hey")

	result := d.Detect(context.Background(), make([]float32, 1600))
	if result.Matched || result.RawText != "" {
		t.Errorf("Expected no match for empty transcript, got %+v", result)
	}
}

func TestDetectFirstPhraseWins(t *testing.T) {
	engine := &fakeEngine{result: textResult("hi there hello")}
	d := newTestDetector(t, engine, "hello", "hi")

	result := d.Detect(context.Background(), make([]float32, 1600))
	if result.Phrase != "hello" {
		t.Errorf("Expected first configured phrase 'hello', got %q", result.Phrase)
	}
}

func TestDetectSwallowsFailure(t *testing.T) {
	engine := &fakeEngine{result: transcription.Failed("model unavailable")}
	metrics := &countingMetrics{}
	d := newTestDetector(t, engine, "hey").WithMetrics(metrics)

	result := d.Detect(context.Background(), make([]float32, 1600))
	if result.Matched {
		t.Error("Failure must not match")
	}

	if result.Reason != "model unavailable" {
		t.Errorf("Expected failure reason, got %q", result.Reason)
	}

	if metrics.failed != 1 || metrics.total != 1 {
		t.Errorf("Unexpected metrics %+v", metrics)
	}
}

func TestDetectForwardsHints(t *testing.T) {
	engine := &fakeEngine{result: textResult("hey")}
	d := newTestDetector(t, engine, "hey")

	d.Detect(context.Background(), make([]float32, 3200))

	if len(engine.requests) != 1 {
		t.Fatalf("Expected one request, got %d", len(engine.requests))
	}

	req := engine.requests[0]
	if req.Language != "en" || !req.VADFilter {
		t.Errorf("Expected language hint and VAD filter, got %+v", req)
	}

	// 44 byte header plus two bytes per sample
	if len(req.Audio) != 44+3200*2 {
		t.Errorf("Unexpected WAV size %d", len(req.Audio))
	}
}

func TestDetectEmptyWindow(t *testing.T) {
	engine := &fakeEngine{result: textResult("hey")}
	d := newTestDetector(t, engine, "hey")

	if result := d.Detect(context.Background(), nil); result.Matched {
		t.Error("Empty window must not match")
	}

	if len(engine.requests) != 0 {
		t.Error("Empty window must not be transcribed")
	}
}

func TestDetectGateSkipsSilence(t *testing.T) {
	engine := &fakeEngine{result: textResult("hey")}
	d := newTestDetector(t, engine, "hey").WithGate(fixedGate(false))

	result := d.Detect(context.Background(), make([]float32, 1600))
	if result.Matched || !result.Skipped {
		t.Errorf("Expected skipped window, got %+v", result)
	}

	if len(engine.requests) != 0 {
		t.Error("Gated window must not be transcribed")
	}

	d.WithGate(fixedGate(true))
	if result := d.Detect(context.Background(), make([]float32, 1600)); !result.Matched {
		t.Error("Expected match once the gate passes")
	}
}

func TestPhrasesReturnsCopy(t *testing.T) {
	d := newTestDetector(t, &fakeEngine{}, " Hello ", "HEY")

	phrases := d.Phrases()
	if len(phrases) != 2 || phrases[0] != "hello" || phrases[1] != "hey" {
		t.Fatalf("Unexpected phrases %v", phrases)
	}

	phrases[0] = "changed"
	if d.Phrases()[0] != "hello" {
		t.Error("Phrases must return a copy")
	}
}
