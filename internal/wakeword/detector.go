package wakeword

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Sahaa21/MindMend/internal/audio"
	"github.com/Sahaa21/MindMend/internal/transcription"
)

// Result is the outcome of evaluating one window
type Result struct {
	Matched bool   `json:"matched"`
	Phrase  string `json:"phrase,omitempty"`
	RawText string `json:"raw_text"`
	Reason  string `json:"reason,omitempty"` // set when transcription failed
	Skipped bool   `json:"skipped,omitempty"` // window rejected before transcription
}

// Gate decides whether a window is worth transcribing
type Gate interface {
	HasVoice(samples []float32) bool
}

// Recorder receives detection metrics
type Recorder interface {
	RecordDetection(matched, failed bool, durationSeconds float64)
}

// Config contains detector parameters
type Config struct {
	Phrases    []string
	Language   string // hint passed to the engine
	SampleRate int
}

// Detector transcribes a window and checks it for a wake phrase. Matching is
// case-insensitive substring containment; the first phrase in configured
// order wins.
type Detector struct {
	engine     transcription.Engine
	phrases    []string
	language   string
	sampleRate int
	gate       Gate
	metrics    Recorder
	logger     *slog.Logger
}

// NewDetector creates a detector. Phrases are trimmed and lower-cased.
func NewDetector(engine transcription.Engine, cfg Config, logger *slog.Logger) (*Detector, error) {
	if engine == nil {
		return nil, fmt.Errorf("transcription engine cannot be nil")
	}

	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}

	phrases := make([]string, 0, len(cfg.Phrases))
	for _, p := range cfg.Phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			return nil, fmt.Errorf("wake phrases cannot be blank")
		}
		phrases = append(phrases, p)
	}

	if len(phrases) == 0 {
		return nil, fmt.Errorf("at least one wake phrase is required")
	}

	return &Detector{
		engine:     engine,
		phrases:    phrases,
		language:   cfg.Language,
		sampleRate: cfg.SampleRate,
		logger:     logger,
	}, nil
}

// WithGate skips transcription for windows the gate rejects
func (d *Detector) WithGate(gate Gate) *Detector {
	d.gate = gate
	return d
}

// WithMetrics reports each evaluation to m
func (d *Detector) WithMetrics(m Recorder) *Detector {
	d.metrics = m
	return d
}

// Phrases returns the normalized wake phrases in match order
func (d *Detector) Phrases() []string {
	out := make([]string, len(d.phrases))
	copy(out, d.phrases)
	return out
}

// Detect evaluates one window. Transcription failures are logged and
// reported as no match; they never stop the caller.
func (d *Detector) Detect(ctx context.Context, samples []float32) Result {
	if len(samples) == 0 {
		return Result{}
	}

	if d.gate != nil && !d.gate.HasVoice(samples) {
		d.logger.Debug("Window has no voice activity, skipping transcription",
			slog.Int("samples", len(samples)),
		)
		return Result{Skipped: true}
	}

	startTime := time.Now()

	wavData, err := audio.EncodeFloat32(samples, d.sampleRate)
	if err != nil {
		d.logger.Warn("Failed to encode wake window", slog.String("error", err.Error()))
		d.record(false, true, startTime)
		return Result{Reason: err.Error()}
	}

	res := d.engine.Transcribe(ctx, transcription.Request{
		Audio:     wavData,
		Language:  d.language,
		VADFilter: true,
	})
	if !res.OK {
		d.logger.Warn("Wake word transcription failed",
			slog.String("reason", res.Reason),
			slog.Duration("duration", time.Since(startTime)),
		)
		d.record(false, true, startTime)
		return Result{Reason: res.Reason}
	}

	// Whisper-style segments carry their own leading spaces, so the raw
	// concatenation keeps word boundaries across segments.
	text := strings.ToLower(res.Concatenated())
	result := Result{RawText: strings.TrimSpace(text)}

	for _, phrase := range d.phrases {
		if strings.Contains(text, phrase) {
			result.Matched = true
			result.Phrase = phrase
			break
		}
	}

	d.logger.Debug("Wake window evaluated",
		slog.String("text", text),
		slog.Bool("matched", result.Matched),
		slog.Duration("duration", time.Since(startTime)),
	)
	d.record(result.Matched, false, startTime)

	return result
}

func (d *Detector) record(matched, failed bool, startTime time.Time) {
	if d.metrics != nil {
		d.metrics.RecordDetection(matched, failed, time.Since(startTime).Seconds())
	}
}
