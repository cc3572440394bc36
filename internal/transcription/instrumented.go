package transcription

import (
	"context"
	"time"
)

// Observer receives one call per finished transcription
type Observer interface {
	RecordTranscription(ok bool, durationSeconds float64)
}

// Instrumented reports every call of the wrapped engine to an Observer
type Instrumented struct {
	Engine   Engine
	Observer Observer
}

// Transcribe forwards to the wrapped engine and records the outcome
func (i Instrumented) Transcribe(ctx context.Context, req Request) Result {
	startTime := time.Now()
	res := i.Engine.Transcribe(ctx, req)
	if i.Observer != nil {
		i.Observer.RecordTranscription(res.OK, time.Since(startTime).Seconds())
	}
	return res
}

// GetStats returns the wrapped engine's statistics when it keeps any
func (i Instrumented) GetStats() ClientStats {
	if sr, ok := i.Engine.(StatsReporter); ok {
		return sr.GetStats()
	}
	return ClientStats{}
}
