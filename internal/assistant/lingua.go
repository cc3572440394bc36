package assistant

import (
	"fmt"
	"strings"

	"github.com/pemistahl/lingua-go"
)

// UnknownLanguage is reported when the detector cannot decide
const UnknownLanguage = "unknown"

// LinguaDetector detects the language of typed text with lingua, limited to
// the supported languages lingua has models for.
type LinguaDetector struct {
	detector lingua.LanguageDetector
	codes    map[lingua.Language]string
}

// NewLinguaDetector builds a detector over the given ISO-639-1 codes. Codes
// lingua does not know are skipped; at least two must remain.
func NewLinguaDetector(codes []string) (*LinguaDetector, error) {
	byCode := make(map[string]lingua.Language)
	for _, language := range lingua.AllLanguages() {
		byCode[strings.ToLower(language.IsoCode639_1().String())] = language
	}

	languages := make([]lingua.Language, 0, len(codes))
	names := make(map[lingua.Language]string, len(codes))
	for _, code := range codes {
		code = strings.ToLower(strings.TrimSpace(code))
		language, ok := byCode[code]
		if !ok {
			continue
		}
		if _, dup := names[language]; dup {
			continue
		}
		languages = append(languages, language)
		names[language] = code
	}

	if len(languages) < 2 {
		return nil, fmt.Errorf("lingua needs at least two known languages, got %d from %v", len(languages), codes)
	}

	return &LinguaDetector{
		detector: lingua.NewLanguageDetectorBuilder().FromLanguages(languages...).Build(),
		codes:    names,
	}, nil
}

// Detect returns the most likely code and its confidence
func (d *LinguaDetector) Detect(text string) (string, float64) {
	language, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return UnknownLanguage, 0
	}

	code, ok := d.codes[language]
	if !ok {
		return UnknownLanguage, 0
	}

	return code, d.detector.ComputeLanguageConfidence(text, language)
}
