package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Audio         AudioConfig         `yaml:"audio"`
	Listen        ListenConfig        `yaml:"listen"`
	Wake          WakeConfig          `yaml:"wake"`
	VAD           VADConfig           `yaml:"vad"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Assistant     AssistantConfig     `yaml:"assistant"`
	Language      LanguageConfig      `yaml:"language"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// AudioConfig contains capture parameters
type AudioConfig struct {
	SampleRate    int     `yaml:"sample_rate"`
	Channels      int     `yaml:"channels"`
	ChunkDuration float64 `yaml:"chunk_duration"` // seconds
}

// ListenConfig contains wake loop and session parameters
type ListenConfig struct {
	WindowDuration float64 `yaml:"window_duration"` // seconds
	QueueSize      int     `yaml:"queue_size"`      // chunks
	QueueTimeout   float64 `yaml:"queue_timeout"`   // seconds
	RecordDuration float64 `yaml:"record_duration"` // seconds
	MaxRecord      float64 `yaml:"max_record"`      // seconds
	RecordOnWake   bool    `yaml:"record_on_wake"`
	MaxSessions    int     `yaml:"max_sessions"`
	SessionTimeout int     `yaml:"session_timeout"` // seconds
}

// WakeConfig contains wake phrase detection parameters
type WakeConfig struct {
	Phrases  []string `yaml:"phrases"`
	Language string   `yaml:"language"`
}

// VADConfig contains the energy gate applied before wake transcription
type VADConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Threshold         float32 `yaml:"threshold"`
	FrameSize         int     `yaml:"frame_size"`          // samples
	MinSpeechDuration float64 `yaml:"min_speech_duration"` // seconds
}

// TranscriptionConfig contains speech-to-text engine configuration
type TranscriptionConfig struct {
	Provider      string `yaml:"provider"` // "http" or "openai"
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// AssistantConfig contains answer and speech synthesis configuration
type AssistantConfig struct {
	Enabled      bool   `yaml:"enabled"`
	BaseURL      string `yaml:"base_url"`
	APIKey       string `yaml:"api_key"`
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
	SpeechModel  string `yaml:"speech_model"`
	Voice        string `yaml:"voice"`
	Timeout      int    `yaml:"timeout"` // seconds
}

// LanguageConfig contains the supported reply languages and the fallback policy
type LanguageConfig struct {
	Supported []string `yaml:"supported"`
	Fallback  string   `yaml:"fallback"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used for any field the file leaves out
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:    8000,
			Address: "0.0.0.0",
			Enabled: true,
		},
		Audio: AudioConfig{
			SampleRate:    16000,
			Channels:      1,
			ChunkDuration: 0.5,
		},
		Listen: ListenConfig{
			WindowDuration: 2.0,
			QueueSize:      64,
			QueueTimeout:   1.0,
			RecordDuration: 5.0,
			MaxRecord:      30.0,
			MaxSessions:    8,
			SessionTimeout: 300,
		},
		Wake: WakeConfig{
			Phrases:  []string{"hello", "hey", "hi"},
			Language: "en",
		},
		VAD: VADConfig{
			Enabled:           false,
			Threshold:         0.02,
			FrameSize:         320,
			MinSpeechDuration: 0.1,
		},
		Transcription: TranscriptionConfig{
			Provider:      "http",
			Endpoint:      "http://localhost:8080/v1/audio/transcriptions",
			Model:         "small",
			Timeout:       30,
			MaxRetries:    2,
			MaxConcurrent: 4,
		},
		Assistant: AssistantConfig{
			Model:        "gpt-4o-mini",
			SystemPrompt: "You are MindMend, a calm and supportive mental wellbeing assistant. Answer briefly.",
			SpeechModel:  "tts-1",
			Voice:        "alloy",
			Timeout:      30,
		},
		Language: LanguageConfig{
			Supported: []string{"ta", "en", "kn", "te", "ml", "hi", "fr"},
			Fallback:  "en",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file. ${VAR} references are
// expanded from the environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Listen.Validate(c.Audio); err != nil {
		return fmt.Errorf("listen config: %w", err)
	}

	if err := c.Wake.Validate(); err != nil {
		return fmt.Errorf("wake config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Assistant.Validate(); err != nil {
		return fmt.Errorf("assistant config: %w", err)
	}

	if err := c.Language.Validate(); err != nil {
		return fmt.Errorf("language config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 16000 Hz for transcription, got %d", a.SampleRate)
	}

	if a.Channels < 1 || a.Channels > 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", a.Channels)
	}

	if a.ChunkDuration <= 0 {
		return fmt.Errorf("chunk_duration must be positive, got %f", a.ChunkDuration)
	}

	return nil
}

// Validate validates listen configuration against the capture chunk size
func (l *ListenConfig) Validate(audio AudioConfig) error {
	if l.WindowDuration < audio.ChunkDuration {
		return fmt.Errorf("window_duration (%f) must be at least chunk_duration (%f)",
			l.WindowDuration, audio.ChunkDuration)
	}

	if l.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", l.QueueSize)
	}

	if l.QueueTimeout <= 0 {
		return fmt.Errorf("queue_timeout must be positive, got %f", l.QueueTimeout)
	}

	if l.RecordDuration <= 0 {
		return fmt.Errorf("record_duration must be positive, got %f", l.RecordDuration)
	}

	if l.MaxRecord < l.RecordDuration {
		return fmt.Errorf("max_record (%f) must be at least record_duration (%f)",
			l.MaxRecord, l.RecordDuration)
	}

	if l.MaxSessions < 1 {
		return fmt.Errorf("max_sessions must be at least 1, got %d", l.MaxSessions)
	}

	if l.SessionTimeout < 1 {
		return fmt.Errorf("session_timeout must be at least 1 second, got %d", l.SessionTimeout)
	}

	return nil
}

// Validate validates wake phrase configuration
func (w *WakeConfig) Validate() error {
	if len(w.Phrases) == 0 {
		return fmt.Errorf("phrases cannot be empty")
	}

	for i, phrase := range w.Phrases {
		if strings.TrimSpace(phrase) == "" {
			return fmt.Errorf("phrase %d is blank", i)
		}
	}

	return nil
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	if !v.Enabled {
		return nil
	}

	if v.Threshold <= 0 || v.Threshold > 1 {
		return fmt.Errorf("threshold must be between 0 (exclusive) and 1, got %f", v.Threshold)
	}

	if v.FrameSize < 80 || v.FrameSize > 4096 {
		return fmt.Errorf("frame_size must be between 80 and 4096 samples, got %d", v.FrameSize)
	}

	if v.MinSpeechDuration < 0 {
		return fmt.Errorf("min_speech_duration cannot be negative, got %f", v.MinSpeechDuration)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	switch t.Provider {
	case "http":
		if t.Endpoint == "" {
			return fmt.Errorf("endpoint cannot be empty for the http provider")
		}
	case "openai":
		if t.APIKey == "" {
			return fmt.Errorf("api_key cannot be empty for the openai provider")
		}
	default:
		return fmt.Errorf("provider must be 'http' or 'openai', got '%s'", t.Provider)
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	return nil
}

// Validate validates assistant configuration
func (a *AssistantConfig) Validate() error {
	if !a.Enabled {
		return nil
	}

	if a.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty when the assistant is enabled")
	}

	if a.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if a.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", a.Timeout)
	}

	return nil
}

// Validate validates the language policy
func (l *LanguageConfig) Validate() error {
	if len(l.Supported) == 0 {
		return fmt.Errorf("supported cannot be empty")
	}

	if l.Fallback == "" {
		return fmt.Errorf("fallback cannot be empty")
	}

	for _, code := range l.Supported {
		if strings.EqualFold(code, l.Fallback) {
			return nil
		}
	}

	return fmt.Errorf("fallback '%s' must be one of the supported languages %v", l.Fallback, l.Supported)
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Output is stdout, stderr or a file path; any non-empty value is accepted.
	return nil
}

// GetChunkDuration returns the capture chunk duration as a time.Duration
func (a *AudioConfig) GetChunkDuration() time.Duration {
	return seconds(a.ChunkDuration)
}

// GetWindowDuration returns the wake window duration as a time.Duration
func (l *ListenConfig) GetWindowDuration() time.Duration {
	return seconds(l.WindowDuration)
}

// GetQueueTimeout returns the hand-off queue wait as a time.Duration
func (l *ListenConfig) GetQueueTimeout() time.Duration {
	return seconds(l.QueueTimeout)
}

// GetRecordDuration returns the default utterance capture length
func (l *ListenConfig) GetRecordDuration() time.Duration {
	return seconds(l.RecordDuration)
}

// GetMaxRecord returns the longest capture a caller may request
func (l *ListenConfig) GetMaxRecord() time.Duration {
	return seconds(l.MaxRecord)
}

// GetSessionTimeout returns the idle session expiry as a time.Duration
func (l *ListenConfig) GetSessionTimeout() time.Duration {
	return time.Duration(l.SessionTimeout) * time.Second
}

// GetMinSpeechDuration returns the minimum speech duration as a time.Duration
func (v *VADConfig) GetMinSpeechDuration() time.Duration {
	return seconds(v.MinSpeechDuration)
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeoutDuration returns the assistant request timeout as a time.Duration
func (a *AssistantConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
