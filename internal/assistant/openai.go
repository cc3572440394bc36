package assistant

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the chat and speech clients
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string // optional, for compatible gateways
	Model        string
	SystemPrompt string
	SpeechModel  string
	Voice        string
	Timeout      time.Duration
}

func newOpenAIClient(cfg OpenAIConfig) (*openai.Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	clientConfig.HTTPClient = &http.Client{Timeout: timeout}

	return openai.NewClientWithConfig(clientConfig), nil
}

// OpenAIAnswerer answers through the chat completion API
type OpenAIAnswerer struct {
	client       *openai.Client
	model        string
	systemPrompt string
	logger       *slog.Logger
}

// NewOpenAIAnswerer creates a chat-backed answerer
func NewOpenAIAnswerer(cfg OpenAIConfig, logger *slog.Logger) (*OpenAIAnswerer, error) {
	client, err := newOpenAIClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	return &OpenAIAnswerer{
		client:       client,
		model:        model,
		systemPrompt: cfg.SystemPrompt,
		logger:       logger,
	}, nil
}

// Answer asks the model for a reply in language
func (a *OpenAIAnswerer) Answer(ctx context.Context, question, language string) (string, error) {
	prompt := strings.TrimSpace(a.systemPrompt + " Always reply in " + LanguageName(language) + ".")

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
			{Role: openai.ChatMessageRoleUser, Content: question},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	a.logger.Debug("Chat completion received",
		slog.String("model", resp.Model),
		slog.Int("total_tokens", resp.Usage.TotalTokens),
	)

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// OpenAISpeaker synthesizes mp3 speech through the speech API. The voice
// model picks up the language from the text itself.
type OpenAISpeaker struct {
	client *openai.Client
	model  string
	voice  string
}

// NewOpenAISpeaker creates a speech-backed speaker
func NewOpenAISpeaker(cfg OpenAIConfig) (*OpenAISpeaker, error) {
	client, err := newOpenAIClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	model := cfg.SpeechModel
	if model == "" {
		model = string(openai.TTSModel1)
	}

	voice := cfg.Voice
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}

	return &OpenAISpeaker{
		client: client,
		model:  model,
		voice:  voice,
	}, nil
}

// Speak returns the mp3 encoding of text
func (s *OpenAISpeaker) Speak(ctx context.Context, text, _ string) ([]byte, error) {
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.model),
		Input:          text,
		Voice:          openai.SpeechVoice(s.voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create speech: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read speech audio: %w", err)
	}

	return data, nil
}
