package main

import (
	"fmt"
	"log/slog"

	"github.com/Sahaa21/MindMend/internal/assistant"
	"github.com/Sahaa21/MindMend/internal/audio"
	"github.com/Sahaa21/MindMend/internal/config"
	"github.com/Sahaa21/MindMend/internal/listen"
	"github.com/Sahaa21/MindMend/internal/metrics"
	"github.com/Sahaa21/MindMend/internal/transcription"
	"github.com/Sahaa21/MindMend/internal/vad"
	"github.com/Sahaa21/MindMend/internal/wakeword"
)

// engine is a transcription engine that also reports statistics
type engine interface {
	transcription.Engine
	transcription.StatsReporter
}

func audioFormat(cfg *config.Config) audio.Format {
	return audio.Format{
		SampleRate:    cfg.Audio.SampleRate,
		Channels:      cfg.Audio.Channels,
		ChunkDuration: cfg.Audio.GetChunkDuration(),
	}
}

// newEngine builds the configured transcription engine. The returned close
// function releases the engine's resources.
func newEngine(cfg *config.Config, appMetrics *metrics.Metrics) (engine, func() error, error) {
	tc := cfg.Transcription

	switch tc.Provider {
	case "openai":
		e, err := transcription.NewOpenAIEngine(transcription.OpenAIConfig{
			APIKey:  tc.APIKey,
			BaseURL: cfg.Assistant.BaseURL,
			Model:   tc.Model,
			Timeout: tc.GetTimeoutDuration(),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create OpenAI engine: %w", err)
		}
		return transcription.Instrumented{Engine: e, Observer: appMetrics}, func() error { return nil }, nil

	default:
		c, err := transcription.NewClient(transcription.Config{
			Endpoint:      tc.Endpoint,
			APIKey:        tc.APIKey,
			Model:         tc.Model,
			Timeout:       tc.GetTimeoutDuration(),
			MaxRetries:    tc.MaxRetries,
			MaxConcurrent: tc.MaxConcurrent,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create transcription client: %w", err)
		}
		return transcription.Instrumented{Engine: c, Observer: appMetrics}, c.Close, nil
	}
}

// newDetector builds the wake word detector with the optional energy gate
func newDetector(cfg *config.Config, eng transcription.Engine, appMetrics *metrics.Metrics, logger *slog.Logger) (*wakeword.Detector, error) {
	detector, err := wakeword.NewDetector(eng, wakeword.Config{
		Phrases:    cfg.Wake.Phrases,
		Language:   cfg.Wake.Language,
		SampleRate: cfg.Audio.SampleRate,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create wake word detector: %w", err)
	}
	detector.WithMetrics(appMetrics)

	if cfg.VAD.Enabled {
		gate, err := vad.NewProcessor(cfg.VAD.Threshold, cfg.VAD.FrameSize, cfg.Audio.SampleRate, cfg.VAD.GetMinSpeechDuration())
		if err != nil {
			return nil, fmt.Errorf("failed to create VAD gate: %w", err)
		}
		detector.WithGate(gate)
	}

	return detector, nil
}

// newLoopFactory returns a constructor for per-session listen loops
func newLoopFactory(cfg *config.Config, source audio.Source, detector listen.Detector, appMetrics *metrics.Metrics, logger *slog.Logger) func() (*listen.Loop, error) {
	loopConfig := listen.Config{
		Format:         audioFormat(cfg),
		WindowDuration: cfg.Listen.GetWindowDuration(),
		QueueSize:      cfg.Listen.QueueSize,
		QueueTimeout:   cfg.Listen.GetQueueTimeout(),
	}

	return func() (*listen.Loop, error) {
		loop, err := listen.NewLoop(loopConfig, source, detector, logger)
		if err != nil {
			return nil, err
		}
		return loop.WithMetrics(appMetrics), nil
	}
}

func newRecorder(cfg *config.Config, source audio.Source, eng transcription.Engine, logger *slog.Logger) (*listen.Recorder, error) {
	return listen.NewRecorder(listen.RecorderConfig{
		Format:      audioFormat(cfg),
		MaxDuration: cfg.Listen.GetMaxRecord(),
	}, source, eng, logger)
}

// newAssistant builds the answer pipeline, or returns nil when it is disabled
func newAssistant(cfg *config.Config, eng transcription.Engine, logger *slog.Logger) (*assistant.Pipeline, error) {
	if !cfg.Assistant.Enabled {
		return nil, nil
	}

	policy, err := assistant.NewLanguagePolicy(cfg.Language.Supported, cfg.Language.Fallback)
	if err != nil {
		return nil, fmt.Errorf("invalid language policy: %w", err)
	}

	openaiConfig := assistant.OpenAIConfig{
		APIKey:       cfg.Assistant.APIKey,
		BaseURL:      cfg.Assistant.BaseURL,
		Model:        cfg.Assistant.Model,
		SystemPrompt: cfg.Assistant.SystemPrompt,
		SpeechModel:  cfg.Assistant.SpeechModel,
		Voice:        cfg.Assistant.Voice,
		Timeout:      cfg.Assistant.GetTimeoutDuration(),
	}

	answerer, err := assistant.NewOpenAIAnswerer(openaiConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create answerer: %w", err)
	}

	pipeline, err := assistant.NewPipeline(eng, answerer, policy, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Assistant.SpeechModel != "" {
		speaker, err := assistant.NewOpenAISpeaker(openaiConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create speaker: %w", err)
		}
		pipeline.WithSpeaker(speaker)
	}

	// Language detection for typed questions is optional
	if detector, err := assistant.NewLinguaDetector(cfg.Language.Supported); err != nil {
		logger.Warn("Text language detection disabled", slog.String("error", err.Error()))
	} else {
		pipeline.WithDetector(detector)
	}

	return pipeline, nil
}
