// Package transcription defines the speech-to-text engine boundary and its
// implementations. Engines return an explicit Result instead of an error so
// callers can treat a failed transcription as an ordinary branch.
package transcription
