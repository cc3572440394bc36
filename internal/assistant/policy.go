package assistant

import (
	"fmt"
	"strings"
)

// languageNames maps supported ISO-639-1 codes to display names
var languageNames = map[string]string{
	"ta": "Tamil",
	"en": "English",
	"kn": "Kannada",
	"te": "Telugu",
	"ml": "Malayalam",
	"hi": "Hindi",
	"fr": "French",
}

// LanguageName returns the display name for a code, or the upper-cased code
// when the name is unknown.
func LanguageName(code string) string {
	if name, ok := languageNames[strings.ToLower(code)]; ok {
		return name
	}
	return strings.ToUpper(code)
}

// LanguagePolicy decides which language a reply is produced in
type LanguagePolicy struct {
	Supported []string
	Fallback  string
}

// NewLanguagePolicy normalizes the codes and checks the fallback is supported
func NewLanguagePolicy(supported []string, fallback string) (LanguagePolicy, error) {
	policy := LanguagePolicy{
		Supported: make([]string, 0, len(supported)),
		Fallback:  normalizeCode(fallback),
	}

	for _, code := range supported {
		code = normalizeCode(code)
		if code == "" {
			return LanguagePolicy{}, fmt.Errorf("supported language codes cannot be blank")
		}
		policy.Supported = append(policy.Supported, code)
	}

	if len(policy.Supported) == 0 {
		return LanguagePolicy{}, fmt.Errorf("at least one supported language is required")
	}

	if !policy.IsSupported(policy.Fallback) {
		return LanguagePolicy{}, fmt.Errorf("fallback language '%s' is not supported", fallback)
	}

	return policy, nil
}

// IsSupported reports whether code is one of the supported languages
func (p LanguagePolicy) IsSupported(code string) bool {
	code = normalizeCode(code)
	for _, s := range p.Supported {
		if s == code {
			return true
		}
	}
	return false
}

// Resolve maps a detected language, given as a code or an English name, to
// a supported code. Anything else resolves to the fallback.
func (p LanguagePolicy) Resolve(language string) string {
	code := normalizeCode(language)
	if p.IsSupported(code) {
		return code
	}
	return p.Fallback
}

// normalizeCode lower-cases a code and turns English names such as
// "english" into their ISO-639-1 code.
func normalizeCode(language string) string {
	language = strings.ToLower(strings.TrimSpace(language))
	if len(language) <= 2 {
		return language
	}

	for code, name := range languageNames {
		if strings.EqualFold(name, language) {
			return code
		}
	}
	return language
}
