package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default configuration should be valid, got: %v", err)
	}

	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", cfg.Audio.SampleRate)
	}

	if cfg.Listen.GetWindowDuration() != 2*time.Second {
		t.Errorf("Expected 2s window, got %v", cfg.Listen.GetWindowDuration())
	}

	if cfg.Language.Fallback != "en" {
		t.Errorf("Expected fallback 'en', got '%s'", cfg.Language.Fallback)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid configuration",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "invalid http port",
			mutate:      func(c *Config) { c.HTTP.Port = 70000 },
			expectError: true,
			errorMsg:    "http port must be between 1 and 65535",
		},
		{
			name:        "http disabled ignores port",
			mutate:      func(c *Config) { c.HTTP.Enabled = false; c.HTTP.Port = 0 },
			expectError: false,
		},
		{
			name:        "invalid audio sample rate",
			mutate:      func(c *Config) { c.Audio.SampleRate = 8000 },
			expectError: true,
			errorMsg:    "sample_rate must be 16000 Hz",
		},
		{
			name:        "window shorter than chunk",
			mutate:      func(c *Config) { c.Listen.WindowDuration = 0.25 },
			expectError: true,
			errorMsg:    "window_duration",
		},
		{
			name:        "zero queue timeout",
			mutate:      func(c *Config) { c.Listen.QueueTimeout = 0 },
			expectError: true,
			errorMsg:    "queue_timeout must be positive",
		},
		{
			name:        "blank wake phrase",
			mutate:      func(c *Config) { c.Wake.Phrases = []string{"hey", "  "} },
			expectError: true,
			errorMsg:    "phrase 1 is blank",
		},
		{
			name:        "no wake phrases",
			mutate:      func(c *Config) { c.Wake.Phrases = nil },
			expectError: true,
			errorMsg:    "phrases cannot be empty",
		},
		{
			name:        "vad threshold out of range when enabled",
			mutate:      func(c *Config) { c.VAD.Enabled = true; c.VAD.Threshold = 1.5 },
			expectError: true,
			errorMsg:    "threshold must be between",
		},
		{
			name:        "unknown transcription provider",
			mutate:      func(c *Config) { c.Transcription.Provider = "local" },
			expectError: true,
			errorMsg:    "provider must be 'http' or 'openai'",
		},
		{
			name:        "openai provider requires key",
			mutate:      func(c *Config) { c.Transcription.Provider = "openai" },
			expectError: true,
			errorMsg:    "api_key cannot be empty for the openai provider",
		},
		{
			name:        "assistant enabled requires key",
			mutate:      func(c *Config) { c.Assistant.Enabled = true },
			expectError: true,
			errorMsg:    "assistant config",
		},
		{
			name:        "fallback outside supported set",
			mutate:      func(c *Config) { c.Language.Fallback = "de" },
			expectError: true,
			errorMsg:    "fallback 'de' must be one of the supported languages",
		},
		{
			name:        "fallback is configurable",
			mutate:      func(c *Config) { c.Language.Fallback = "hi" },
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("MINDMEND_TEST_KEY", "sk-from-env")

	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		errorMsg    string
		check       func(t *testing.T, c *Config)
	}{
		{
			name: "partial file keeps defaults",
			configYAML: `
wake:
  phrases: ["hey assistant", "hello mindmend"]
  language: "en"
listen:
  window_duration: 3.0
`,
			check: func(t *testing.T, c *Config) {
				if len(c.Wake.Phrases) != 2 || c.Wake.Phrases[0] != "hey assistant" {
					t.Errorf("Expected configured phrases, got %v", c.Wake.Phrases)
				}
				if c.Listen.GetWindowDuration() != 3*time.Second {
					t.Errorf("Expected 3s window, got %v", c.Listen.GetWindowDuration())
				}
				if c.Listen.QueueSize != 64 {
					t.Errorf("Expected default queue size 64, got %d", c.Listen.QueueSize)
				}
			},
		},
		{
			name: "environment expansion",
			configYAML: `
transcription:
  provider: "openai"
  api_key: "${MINDMEND_TEST_KEY}"
`,
			check: func(t *testing.T, c *Config) {
				if c.Transcription.APIKey != "sk-from-env" {
					t.Errorf("Expected api key from environment, got '%s'", c.Transcription.APIKey)
				}
			},
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
listen:
  queue_size: invalid_number
`,
			expectError: true,
			errorMsg:    "failed to parse",
		},
		{
			name: "validation failure",
			configYAML: `
audio:
  sample_rate: 44100
`,
			expectError: true,
			errorMsg:    "config validation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.configYAML), 0644); err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			config, err := Load(configPath)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
				return
			}

			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if tt.check != nil {
				tt.check(t, config)
			}
		})
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Fatalf("Expected error for nonexistent file but got none")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected error about reading file, got: %v", err)
	}
}

func TestDurationHelpers(t *testing.T) {
	audio := AudioConfig{ChunkDuration: 0.5}
	if audio.GetChunkDuration() != 500*time.Millisecond {
		t.Errorf("Expected 0.5 seconds, got %v", audio.GetChunkDuration())
	}

	listen := ListenConfig{
		WindowDuration: 2.0,
		QueueTimeout:   1.0,
		RecordDuration: 5.0,
		MaxRecord:      30.0,
		SessionTimeout: 300,
	}

	if listen.GetWindowDuration() != 2*time.Second {
		t.Errorf("Expected 2 seconds, got %v", listen.GetWindowDuration())
	}

	if listen.GetQueueTimeout() != time.Second {
		t.Errorf("Expected 1 second, got %v", listen.GetQueueTimeout())
	}

	if listen.GetRecordDuration() != 5*time.Second {
		t.Errorf("Expected 5 seconds, got %v", listen.GetRecordDuration())
	}

	if listen.GetMaxRecord() != 30*time.Second {
		t.Errorf("Expected 30 seconds, got %v", listen.GetMaxRecord())
	}

	if listen.GetSessionTimeout() != 5*time.Minute {
		t.Errorf("Expected 5 minutes, got %v", listen.GetSessionTimeout())
	}

	vad := VADConfig{MinSpeechDuration: 0.1}
	if vad.GetMinSpeechDuration() != 100*time.Millisecond {
		t.Errorf("Expected 0.1 seconds, got %v", vad.GetMinSpeechDuration())
	}

	transcription := TranscriptionConfig{Timeout: 30}
	if transcription.GetTimeoutDuration() != 30*time.Second {
		t.Errorf("Expected 30 seconds, got %v", transcription.GetTimeoutDuration())
	}
}

func TestLoggingConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config LoggingConfig
		valid  bool
	}{
		{
			name:   "valid json to stdout",
			config: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
			valid:  true,
		},
		{
			name:   "valid text to file",
			config: LoggingConfig{Level: "debug", Format: "text", Output: "/var/log/mindmend.log"},
			valid:  true,
		},
		{
			name:   "invalid log level",
			config: LoggingConfig{Level: "trace", Format: "json", Output: "stdout"},
			valid:  false,
		},
		{
			name:   "invalid format",
			config: LoggingConfig{Level: "info", Format: "xml", Output: "stdout"},
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected invalid config but got no error")
			}
		})
	}
}
