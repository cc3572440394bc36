package listen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sahaa21/MindMend/internal/audio"
	"github.com/Sahaa21/MindMend/internal/wakeword"
)

// Detector evaluates one drained window
type Detector interface {
	Detect(ctx context.Context, samples []float32) wakeword.Result
}

// Metrics receives loop events. A nil Metrics is allowed.
type Metrics interface {
	RecordChunk(dropped bool)
	RecordAudioError()
	RecordWindow()
	RecordCycle(outcome string)
}

// Cycle outcomes reported to Metrics
const (
	OutcomeAwake       = "awake"
	OutcomeStopped     = "stopped"
	OutcomeExhausted   = "exhausted"
	OutcomeCancelled   = "cancelled"
	OutcomePanic       = "panic"
	OutcomeStartFailed = "start_failed"
)

// Config contains loop parameters
type Config struct {
	Format         audio.Format
	WindowDuration time.Duration
	QueueSize      int
	QueueTimeout   time.Duration
}

// Validate checks the loop parameters
func (c Config) Validate() error {
	if err := c.Format.Validate(); err != nil {
		return fmt.Errorf("invalid audio format: %w", err)
	}

	if c.WindowDuration < c.Format.ChunkDuration {
		return fmt.Errorf("window duration %v must be at least the chunk duration %v", c.WindowDuration, c.Format.ChunkDuration)
	}

	if c.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive, got %d", c.QueueSize)
	}

	if c.QueueTimeout <= 0 {
		return fmt.Errorf("queue timeout must be positive, got %v", c.QueueTimeout)
	}

	return nil
}

// Loop listens to a source and watches for a wake phrase. The audio callback
// only enqueues chunks; buffering and detection run on a single consumer
// goroutine per cycle, so at most one detection is in flight.
type Loop struct {
	cfg      Config
	source   audio.Source
	detector Detector
	metrics  Metrics
	logger   *slog.Logger

	mu     sync.Mutex
	state  State
	status Status
	cycle  *cycle

	// Held for the whole Detect call. A restarted cycle waits here for a
	// detection left over from the previous cycle.
	detectMu sync.Mutex
}

// cycle holds everything owned by one Start..end run
type cycle struct {
	queue    chan audio.Chunk
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	stream    audio.Stream
	closeOnce sync.Once

	exhausted atomic.Bool
	received  atomic.Uint64
	dropped   atomic.Uint64
	transient atomic.Uint64
}

// NewLoop creates an idle loop
func NewLoop(cfg Config, source audio.Source, detector Detector, logger *slog.Logger) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if source == nil {
		return nil, fmt.Errorf("audio source cannot be nil")
	}

	if detector == nil {
		return nil, fmt.Errorf("detector cannot be nil")
	}

	return &Loop{
		cfg:      cfg,
		source:   source,
		detector: detector,
		logger:   logger,
		state:    StateIdle,
	}, nil
}

// WithMetrics reports loop events to m
func (l *Loop) WithMetrics(m Metrics) *Loop {
	l.metrics = m
	return l
}

// Start opens the source and begins a wake cycle. ctx bounds the lifetime
// of the cycle; cancelling it ends the cycle as stopped. If the source
// cannot be opened the loop stays idle and an *audio.AcquisitionError is
// returned.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateListening {
		return ErrAlreadyListening
	}

	if l.state.Terminal() {
		l.logger.Debug("Resetting loop for a new cycle", slog.String("previous", l.state.String()))
		l.state = StateIdle
	}

	c := &cycle{
		queue: make(chan audio.Chunk, l.cfg.QueueSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}

	stream, err := l.source.Open(l.cfg.Format, &cycleSink{loop: l, cycle: c})
	if err != nil {
		l.recordCycle(OutcomeStartFailed)

		var acqErr *audio.AcquisitionError
		if !errors.As(err, &acqErr) {
			err = &audio.AcquisitionError{Device: "source", Err: err}
		}

		l.logger.Error("Failed to open audio source", slog.String("error", err.Error()))
		return fmt.Errorf("failed to start listening: %w", err)
	}
	c.stream = stream

	l.cycle = c
	l.state = StateListening
	l.status = Status{
		State:     StateListening,
		StartedAt: time.Now(),
	}

	l.logger.Info("Listening for wake phrase",
		slog.Duration("window", l.cfg.WindowDuration),
		slog.Int("queue_size", l.cfg.QueueSize),
	)

	go l.run(ctx, c)

	return nil
}

// Stop ends a listening cycle. The stream is closed and buffered audio is
// discarded. A detection already in flight finishes but its result is
// ignored. Stop is a no-op unless the loop is listening.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.state != StateListening || l.cycle == nil {
		l.mu.Unlock()
		return
	}

	c := l.cycle
	l.state = StateStopped
	l.status.EndedAt = time.Now()
	l.mu.Unlock()

	c.stopOnce.Do(func() {
		close(c.stop)
	})
	l.closeStream(c)
	l.recordCycle(OutcomeStopped)

	l.logger.Info("Stopped listening")
}

// State returns the current state
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Status returns a snapshot of the current cycle
func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.status
	s.State = l.state
	if c := l.cycle; c != nil {
		s.ChunksReceived = c.received.Load()
		s.ChunksDropped = c.dropped.Load()
		s.TransientErrors = c.transient.Load()
	}
	return s
}

// Done returns a channel closed when the current cycle's goroutine exits.
// With no cycle started the channel is already closed.
func (l *Loop) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cycle == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return l.cycle.done
}

// Wait blocks until the current cycle's goroutine exits or ctx ends
func (l *Loop) Wait(ctx context.Context) error {
	select {
	case <-l.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) run(ctx context.Context, c *cycle) {
	defer close(c.done)
	defer l.closeStream(c)
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Listen cycle panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			l.finish(c, StateStopped, OutcomePanic)
		}
	}()

	buffer := audio.NewWindowBuffer(l.cfg.WindowDuration)
	timer := time.NewTimer(l.cfg.QueueTimeout)
	defer timer.Stop()

	for {
		// Stop takes priority over queued audio
		select {
		case <-c.stop:
			return
		default:
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(l.cfg.QueueTimeout)

		select {
		case <-c.stop:
			return

		case <-ctx.Done():
			l.finish(c, StateStopped, OutcomeCancelled)
			return

		case chunk := <-c.queue:
			buffer.Push(chunk)

			if buffer.IsFull() {
				if l.evaluate(ctx, c, buffer.Drain()) {
					return
				}
			}

			if l.exhausted(c) {
				l.finishExhausted(ctx, c, buffer)
				return
			}

		case <-timer.C:
			if !l.isListening(c) {
				return
			}

			if l.exhausted(c) {
				l.finishExhausted(ctx, c, buffer)
				return
			}
		}
	}
}

// evaluate runs detection on one window and reports whether the cycle ended
func (l *Loop) evaluate(ctx context.Context, c *cycle, window []float32) bool {
	result, ran := l.detect(ctx, c, window)
	if !ran {
		return true
	}
	if l.metrics != nil {
		l.metrics.RecordWindow()
	}

	l.mu.Lock()
	if l.cycle == c {
		l.status.Windows++
		l.status.LastText = result.RawText
		l.status.LastError = result.Reason
	}
	l.mu.Unlock()

	if result.Matched {
		l.awaken(c, result.Phrase)
		return true
	}

	return !l.isListening(c)
}

// detect runs the detector unless the cycle already ended. At most one
// Detect call per loop is in flight across cycles.
func (l *Loop) detect(ctx context.Context, c *cycle, window []float32) (wakeword.Result, bool) {
	l.detectMu.Lock()
	defer l.detectMu.Unlock()

	if !l.isListening(c) {
		return wakeword.Result{}, false
	}
	return l.detector.Detect(ctx, window), true
}

// finishExhausted evaluates any partial window left when the source ran dry
func (l *Loop) finishExhausted(ctx context.Context, c *cycle, buffer *audio.WindowBuffer) {
	if buffer.Len() > 0 {
		if l.evaluate(ctx, c, buffer.Drain()) {
			return
		}
	}

	l.logger.Info("Audio source exhausted without a wake phrase")
	l.finish(c, StateStopped, OutcomeExhausted)
}

// awaken moves the cycle to awake unless it already left listening
func (l *Loop) awaken(c *cycle, phrase string) {
	l.mu.Lock()
	if l.cycle != c || l.state != StateListening {
		l.mu.Unlock()
		l.logger.Debug("Discarding wake match from a finished cycle", slog.String("phrase", phrase))
		return
	}

	l.state = StateAwake
	l.status.Phrase = phrase
	l.status.EndedAt = time.Now()
	l.mu.Unlock()

	l.closeStream(c)
	l.recordCycle(OutcomeAwake)

	l.logger.Info("Wake phrase detected", slog.String("phrase", phrase))
}

// finish ends a still-listening cycle in the given state
func (l *Loop) finish(c *cycle, state State, outcome string) {
	l.mu.Lock()
	if l.cycle != c || l.state != StateListening {
		l.mu.Unlock()
		return
	}

	l.state = state
	l.status.EndedAt = time.Now()
	l.mu.Unlock()

	l.closeStream(c)
	l.recordCycle(outcome)
}

func (l *Loop) isListening(c *cycle) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cycle == c && l.state == StateListening
}

// exhausted reports whether the source is done and every queued chunk consumed
func (l *Loop) exhausted(c *cycle) bool {
	return c.exhausted.Load() && len(c.queue) == 0
}

func (l *Loop) closeStream(c *cycle) {
	c.closeOnce.Do(func() {
		if c.stream == nil {
			return
		}
		if err := c.stream.Close(); err != nil {
			l.logger.Warn("Failed to close audio stream", slog.String("error", err.Error()))
		}
	})
}

func (l *Loop) recordCycle(outcome string) {
	if l.metrics != nil {
		l.metrics.RecordCycle(outcome)
	}
}

// cycleSink is handed to the source. It runs on the audio callback and
// never blocks.
type cycleSink struct {
	loop  *Loop
	cycle *cycle
}

func (s *cycleSink) OnChunk(chunk audio.Chunk) {
	s.cycle.received.Add(1)

	select {
	case s.cycle.queue <- chunk:
		if s.loop.metrics != nil {
			s.loop.metrics.RecordChunk(false)
		}
	default:
		s.cycle.dropped.Add(1)
		if s.loop.metrics != nil {
			s.loop.metrics.RecordChunk(true)
		}
	}
}

func (s *cycleSink) OnError(err error) {
	if errors.Is(err, audio.ErrSourceExhausted) {
		s.cycle.exhausted.Store(true)
		return
	}

	s.cycle.transient.Add(1)
	if s.loop.metrics != nil {
		s.loop.metrics.RecordAudioError()
	}

	if audio.IsTransient(err) {
		s.loop.logger.Warn("Transient audio error, dropping chunk", slog.String("error", err.Error()))
		return
	}

	// Anything else means the device is gone
	s.loop.logger.Error("Audio source failed", slog.String("error", err.Error()))
	s.cycle.exhausted.Store(true)
}
