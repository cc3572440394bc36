package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Sahaa21/MindMend/internal/transcription"
)

// Apology is the answer used when no answer could be produced
const Apology = "Sorry, I don't know that. Please try rephrasing or ask a different question."

var (
	// ErrEmptyQuestion is returned when there is nothing to answer
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrNoSpeech is returned when a recording transcribed to no text
	ErrNoSpeech = errors.New("could not transcribe audio")

	// ErrSpeechDisabled is returned by Speak when no Speaker is configured
	ErrSpeechDisabled = errors.New("speech synthesis is disabled")

	// ErrSpeechFailed wraps Speaker errors returned by Speak
	ErrSpeechFailed = errors.New("speech synthesis failed")
)

// Answerer produces a reply to a question in the given language
type Answerer interface {
	Answer(ctx context.Context, question, language string) (string, error)
}

// Speaker synthesizes speech for a reply
type Speaker interface {
	Speak(ctx context.Context, text, language string) ([]byte, error)
}

// Detector guesses the language of a text. It returns "unknown" when it
// cannot decide.
type Detector interface {
	Detect(text string) (language string, probability float64)
}

// Reply is one answered question
type Reply struct {
	Question         string  `json:"transcribed_text"`
	Answer           string  `json:"answer"`
	Language         string  `json:"language"`
	LanguageName     string  `json:"language_name"`
	DetectedLanguage string  `json:"detected_language"`
	Probability      float64 `json:"language_probability"`
	Audio            []byte  `json:"-"`
	AudioFormat      string  `json:"audio_format,omitempty"`
}

// Pipeline turns recorded speech or typed text into an answer and,
// optionally, synthesized speech.
type Pipeline struct {
	engine   transcription.Engine
	answerer Answerer
	speaker  Speaker
	detector Detector
	policy   LanguagePolicy
	logger   *slog.Logger
}

// NewPipeline creates a pipeline. The engine may be nil when only Ask is used.
func NewPipeline(engine transcription.Engine, answerer Answerer, policy LanguagePolicy, logger *slog.Logger) (*Pipeline, error) {
	if answerer == nil {
		return nil, fmt.Errorf("answerer cannot be nil")
	}

	if len(policy.Supported) == 0 {
		return nil, fmt.Errorf("language policy has no supported languages")
	}

	return &Pipeline{
		engine:   engine,
		answerer: answerer,
		policy:   policy,
		logger:   logger,
	}, nil
}

// WithSpeaker enables speech synthesis for replies
func (p *Pipeline) WithSpeaker(s Speaker) *Pipeline {
	p.speaker = s
	return p
}

// WithDetector sets the text language detector used when the engine gives
// no language.
func (p *Pipeline) WithDetector(d Detector) *Pipeline {
	p.detector = d
	return p
}

// Policy returns the language policy
func (p *Pipeline) Policy() LanguagePolicy {
	return p.policy
}

// HandleAudio transcribes a recording with language auto-detection and
// answers it.
func (p *Pipeline) HandleAudio(ctx context.Context, wav []byte) (Reply, error) {
	if p.engine == nil {
		return Reply{}, fmt.Errorf("no transcription engine configured")
	}

	res := p.engine.Transcribe(ctx, transcription.Request{
		Audio:     wav,
		VADFilter: true,
	})
	if !res.OK {
		return Reply{}, res.Err()
	}

	text := res.Text()
	if text == "" {
		return Reply{}, ErrNoSpeech
	}

	return p.Respond(ctx, text, res.Language, res.Confidence), nil
}

// Ask answers a typed question
func (p *Pipeline) Ask(ctx context.Context, question string) (Reply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Reply{}, ErrEmptyQuestion
	}

	return p.Respond(ctx, question, "", 0), nil
}

// Speak synthesizes text in language, or in the fallback language when
// language is empty or unsupported.
func (p *Pipeline) Speak(ctx context.Context, text, language string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyQuestion
	}

	if p.speaker == nil {
		return nil, ErrSpeechDisabled
	}

	code := p.policy.Resolve(language)
	audio, err := p.speaker.Speak(ctx, text, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpeechFailed, err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio", ErrSpeechFailed)
	}

	return audio, nil
}

// Respond answers text that has already been transcribed. language may be
// empty, in which case the detector is consulted.
func (p *Pipeline) Respond(ctx context.Context, text, language string, probability float64) Reply {
	startTime := time.Now()

	if language == "" && p.detector != nil {
		language, probability = p.detector.Detect(text)
	}

	if language != "" && !p.policy.IsSupported(language) {
		p.logger.Warn("Detected language is not supported, using fallback",
			slog.String("detected", language),
			slog.String("fallback", p.policy.Fallback),
		)
	}

	code := p.policy.Resolve(language)
	reply := Reply{
		Question:         text,
		Language:         code,
		LanguageName:     LanguageName(code),
		DetectedLanguage: language,
		Probability:      probability,
	}

	answer, err := p.answerer.Answer(ctx, text, code)
	if err != nil {
		p.logger.Error("Failed to produce answer", slog.String("error", err.Error()))
	}
	answer = strings.TrimSpace(answer)
	if err != nil || answer == "" {
		answer = Apology
	}
	reply.Answer = answer

	if p.speaker != nil {
		audio, err := p.speaker.Speak(ctx, answer, code)
		if err != nil {
			p.logger.Warn("Failed to synthesize reply", slog.String("error", err.Error()))
		} else {
			reply.Audio = audio
			reply.AudioFormat = "mp3"
		}
	}

	p.logger.Info("Question answered",
		slog.String("language", code),
		slog.String("detected_language", language),
		slog.Float64("language_probability", probability),
		slog.Int("answer_length", len(answer)),
		slog.Bool("has_audio", len(reply.Audio) > 0),
		slog.Duration("duration", time.Since(startTime)),
	)

	return reply
}
