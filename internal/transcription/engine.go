package transcription

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Engine converts WAV audio into text. Implementations are safe for
// concurrent use and report failures through Result rather than panicking.
type Engine interface {
	Transcribe(ctx context.Context, req Request) Result
}

// StatsReporter is implemented by engines that keep request statistics
type StatsReporter interface {
	GetStats() ClientStats
}

// Request is a single transcription call
type Request struct {
	Audio     []byte // mono 16-bit WAV
	Language  string // ISO-639-1 hint, empty to auto-detect
	VADFilter bool   // ask the engine to drop non-speech before decoding
}

// Segment is a timed span of transcribed text
type Segment struct {
	Text  string        `json:"text"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// Result is either a successful transcription or a failure reason
type Result struct {
	OK         bool      `json:"ok"`
	Segments   []Segment `json:"segments,omitempty"`
	Language   string    `json:"language,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

// Succeeded builds a successful result
func Succeeded(segments []Segment, language string, confidence float64) Result {
	return Result{
		OK:         true,
		Segments:   segments,
		Language:   language,
		Confidence: confidence,
	}
}

// Failed builds a failed result
func Failed(format string, args ...any) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

// Text joins segment texts in order with single spaces
func (r Result) Text() string {
	parts := make([]string, 0, len(r.Segments))
	for _, s := range r.Segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// Concatenated returns the segment texts joined in order exactly as the
// engine returned them, without trimming or separators.
func (r Result) Concatenated() string {
	var b strings.Builder
	for _, s := range r.Segments {
		b.WriteString(s.Text)
	}
	return b.String()
}

// Err returns a *Failure for failed results and nil otherwise
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	return &Failure{Reason: r.Reason}
}

// Failure is the error form of a failed transcription
type Failure struct {
	Reason string
}

func (f *Failure) Error() string {
	return "transcription failed: " + f.Reason
}
