package listen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Sahaa21/MindMend/internal/audio"
	"github.com/Sahaa21/MindMend/internal/transcription"
)

// captureGrace is how long past the requested duration a capture may run
// before it is cut short, for sources that deliver slower than real time.
const captureGrace = time.Second

// Transcript is the outcome of a fixed-length recording
type Transcript struct {
	Text       string                  `json:"text"`
	Language   string                  `json:"language,omitempty"`
	Confidence float64                 `json:"confidence"`
	Duration   time.Duration           `json:"duration"`
	Segments   []transcription.Segment `json:"segments,omitempty"`
}

// RecorderConfig contains recorder parameters
type RecorderConfig struct {
	Format      audio.Format
	Language    string // empty lets the engine detect
	MaxDuration time.Duration
}

// Recorder captures a fixed amount of audio and transcribes it
type Recorder struct {
	cfg    RecorderConfig
	source audio.Source
	engine transcription.Engine
	logger *slog.Logger
}

// NewRecorder creates a recorder
func NewRecorder(cfg RecorderConfig, source audio.Source, engine transcription.Engine, logger *slog.Logger) (*Recorder, error) {
	if err := cfg.Format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid audio format: %w", err)
	}

	if source == nil || engine == nil {
		return nil, fmt.Errorf("source and engine are required")
	}

	return &Recorder{
		cfg:    cfg,
		source: source,
		engine: engine,
		logger: logger,
	}, nil
}

// RecordAndTranscribe records duration of audio and transcribes it. A
// transcription failure is returned as *transcription.Failure.
func (r *Recorder) RecordAndTranscribe(ctx context.Context, duration time.Duration) (Transcript, error) {
	if duration <= 0 || (r.cfg.MaxDuration > 0 && duration > r.cfg.MaxDuration) {
		return Transcript{}, fmt.Errorf("%w: %v (max %v)", ErrInvalidDuration, duration, r.cfg.MaxDuration)
	}

	samples, err := r.capture(ctx, duration)
	if err != nil {
		return Transcript{}, err
	}

	if len(samples) == 0 {
		return Transcript{}, ErrNoAudio
	}

	captured := audio.SamplesDuration(len(samples), r.cfg.Format.SampleRate)

	wavData, err := audio.EncodeFloat32(samples, r.cfg.Format.SampleRate)
	if err != nil {
		return Transcript{}, fmt.Errorf("failed to encode recording: %w", err)
	}

	startTime := time.Now()
	res := r.engine.Transcribe(ctx, transcription.Request{
		Audio:     wavData,
		Language:  r.cfg.Language,
		VADFilter: true,
	})
	if !res.OK {
		r.logger.Warn("Recording transcription failed", slog.String("reason", res.Reason))
		return Transcript{}, res.Err()
	}

	transcript := Transcript{
		Text:       res.Text(),
		Language:   res.Language,
		Confidence: res.Confidence,
		Duration:   captured,
		Segments:   res.Segments,
	}

	r.logger.Info("Recording transcribed",
		slog.Duration("captured", captured),
		slog.String("language", res.Language),
		slog.Int("text_length", len(transcript.Text)),
		slog.Duration("transcription_time", time.Since(startTime)),
	)

	return transcript, nil
}

// capture collects up to duration of samples. The stream is closed on
// every path.
func (r *Recorder) capture(ctx context.Context, duration time.Duration) ([]float32, error) {
	want := int(int64(duration) * int64(r.cfg.Format.SampleRate) / int64(time.Second))
	sink := &collector{
		want:   want,
		full:   make(chan struct{}),
		ended:  make(chan struct{}),
		logger: r.logger,
	}

	stream, err := r.source.Open(r.cfg.Format, sink)
	if err != nil {
		var acqErr *audio.AcquisitionError
		if !errors.As(err, &acqErr) {
			err = &audio.AcquisitionError{Device: "source", Err: err}
		}
		return nil, fmt.Errorf("failed to start recording: %w", err)
	}
	defer func() {
		if err := stream.Close(); err != nil {
			r.logger.Warn("Failed to close recording stream", slog.String("error", err.Error()))
		}
	}()

	deadline := time.NewTimer(duration + captureGrace)
	defer deadline.Stop()

	select {
	case <-sink.full:
	case <-sink.ended:
	case <-deadline.C:
		r.logger.Warn("Recording deadline reached before the requested duration")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return sink.take(), nil
}

// collector gathers samples from the audio callback
type collector struct {
	want   int
	full   chan struct{}
	ended  chan struct{}
	logger *slog.Logger

	mu        sync.Mutex
	samples   []float32
	fullOnce  sync.Once
	endedOnce sync.Once
}

func (c *collector) OnChunk(chunk audio.Chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()

	remaining := c.want - len(c.samples)
	if remaining <= 0 {
		return
	}

	s := chunk.Samples()
	if len(s) > remaining {
		s = s[:remaining]
	}
	c.samples = append(c.samples, s...)

	if len(c.samples) >= c.want {
		c.fullOnce.Do(func() { close(c.full) })
	}
}

func (c *collector) OnError(err error) {
	if audio.IsTransient(err) {
		c.logger.Warn("Transient audio error while recording", slog.String("error", err.Error()))
		return
	}

	if !errors.Is(err, audio.ErrSourceExhausted) {
		c.logger.Error("Audio source failed while recording", slog.String("error", err.Error()))
	}
	c.endedOnce.Do(func() { close(c.ended) })
}

func (c *collector) take() []float32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.samples
	c.samples = nil
	// Late callbacks before Close must not refill
	c.want = 0
	return out
}
