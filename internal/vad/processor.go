package vad

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Processor is an energy-based voice activity gate. A window has voice when
// it contains a run of consecutive frames whose RMS level reaches the
// threshold for at least the minimum speech duration.
type Processor struct {
	threshold       float32
	frameSize       int // samples per analysis frame
	sampleRate      int
	minSpeechFrames int

	// Statistics
	totalWindows  uint64
	voiceWindows  uint64
	lastProcessed time.Time

	mu sync.Mutex
}

// Result represents the outcome of analysing one window
type Result struct {
	HasVoice       bool          `json:"has_voice"`
	Probability    float32       `json:"probability"` // share of voiced frames
	PeakLevel      float32       `json:"peak_level"`  // highest frame RMS
	SpeechDuration time.Duration `json:"speech_duration"`
	ProcessingTime time.Duration `json:"processing_time"`
}

// ProcessorStats represents VAD processor statistics
type ProcessorStats struct {
	TotalWindows    uint64    `json:"total_windows"`
	VoiceWindows    uint64    `json:"voice_windows"`
	VoicePercentage float64   `json:"voice_percentage"`
	LastProcessed   time.Time `json:"last_processed"`
	Threshold       float32   `json:"threshold"`
}

// NewProcessor creates a new VAD processor instance
func NewProcessor(threshold float32, frameSize int, sampleRate int, minSpeech time.Duration) (*Processor, error) {
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 (exclusive) and 1, got %f", threshold)
	}

	if frameSize <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d", frameSize)
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	frameDuration := time.Duration(int64(frameSize) * int64(time.Second) / int64(sampleRate))
	minFrames := 1
	if frameDuration > 0 {
		minFrames = int((minSpeech + frameDuration - 1) / frameDuration)
	}
	if minFrames < 1 {
		minFrames = 1
	}

	return &Processor{
		threshold:       threshold,
		frameSize:       frameSize,
		sampleRate:      sampleRate,
		minSpeechFrames: minFrames,
	}, nil
}

// Process analyses a window of samples
func (p *Processor) Process(samples []float32) Result {
	startTime := time.Now()

	var (
		frames, voiced  int
		run, longestRun int
		peak            float32
	)

	for offset := 0; offset < len(samples); offset += p.frameSize {
		end := offset + p.frameSize
		if end > len(samples) {
			end = len(samples)
		}

		level := rms(samples[offset:end])
		if level > peak {
			peak = level
		}

		frames++
		if level >= p.threshold {
			voiced++
			run++
			if run > longestRun {
				longestRun = run
			}
		} else {
			run = 0
		}
	}

	result := Result{
		HasVoice:       longestRun >= p.minSpeechFrames,
		PeakLevel:      peak,
		SpeechDuration: time.Duration(int64(voiced*p.frameSize) * int64(time.Second) / int64(p.sampleRate)),
		ProcessingTime: time.Since(startTime),
	}
	if frames > 0 {
		result.Probability = float32(voiced) / float32(frames)
	}

	p.mu.Lock()
	p.totalWindows++
	if result.HasVoice {
		p.voiceWindows++
	}
	p.lastProcessed = time.Now()
	p.mu.Unlock()

	return result
}

// HasVoice reports whether the window contains speech
func (p *Processor) HasVoice(samples []float32) bool {
	return p.Process(samples).HasVoice
}

// GetStats returns processor statistics
func (p *Processor) GetStats() ProcessorStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	voicePercentage := float64(0)
	if p.totalWindows > 0 {
		voicePercentage = float64(p.voiceWindows) / float64(p.totalWindows) * 100
	}

	return ProcessorStats{
		TotalWindows:    p.totalWindows,
		VoiceWindows:    p.voiceWindows,
		VoicePercentage: voicePercentage,
		LastProcessed:   p.lastProcessed,
		Threshold:       p.threshold,
	}
}

// rms returns the root mean square level of a frame
func rms(frame []float32) float32 {
	if len(frame) == 0 {
		return 0
	}

	var energy float64
	for _, s := range frame {
		energy += float64(s) * float64(s)
	}
	return float32(math.Sqrt(energy / float64(len(frame))))
}
