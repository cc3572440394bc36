// Package assistant answers spoken or typed questions.
//
// The Pipeline transcribes a recording, settles on a reply language through
// a LanguagePolicy, asks an Answerer for the reply and optionally hands it to
// a Speaker. Unsupported or undetected languages fall back to the configured
// default. When no answer can be produced a fixed apology is returned.
package assistant
