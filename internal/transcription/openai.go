package transcription

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEngine transcribes through the OpenAI audio API. The API has no
// voice activity switch, so Request.VADFilter is ignored.
type OpenAIEngine struct {
	client  *openai.Client
	model   string
	timeout time.Duration

	requests atomic.Uint64
	failures atomic.Uint64
}

// OpenAIConfig configures the OpenAI engine
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // optional, for compatible gateways
	Model   string
	Timeout time.Duration
}

// NewOpenAIEngine creates an engine backed by the OpenAI transcription API
func NewOpenAIEngine(cfg OpenAIConfig) (*OpenAIEngine, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" || model == "small" {
		model = openai.Whisper1
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &OpenAIEngine{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   model,
		timeout: timeout,
	}, nil
}

// Transcribe sends the WAV bytes and maps verbose_json segments
func (e *OpenAIEngine) Transcribe(ctx context.Context, req Request) Result {
	e.requests.Add(1)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    e.model,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(req.Audio),
		Language: req.Language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		e.failures.Add(1)
		return Failed("openai transcription: %v", err)
	}

	segments := make([]Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segments = append(segments, Segment{
			Text:  s.Text,
			Start: secondsToDuration(s.Start),
			End:   secondsToDuration(s.End),
		})
	}

	if len(segments) == 0 && resp.Text != "" {
		segments = append(segments, Segment{Text: resp.Text, End: secondsToDuration(resp.Duration)})
	}

	// The API reports no language probability.
	return Succeeded(segments, resp.Language, 0)
}

// GetStats returns request counters in the same shape as the HTTP client
func (e *OpenAIEngine) GetStats() ClientStats {
	failed := e.failures.Load()
	total := e.requests.Load()

	successRate := float64(0)
	if total > 0 {
		successRate = float64(total-failed) / float64(total) * 100
	}

	return ClientStats{
		TotalRequests:   total,
		SuccessRequests: total - failed,
		FailedRequests:  failed,
		SuccessRate:     successRate,
	}
}
