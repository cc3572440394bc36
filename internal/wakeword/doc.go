// Package wakeword decides whether a window of audio contains one of the
// configured wake phrases.
//
// A window is encoded as WAV, transcribed with the configured language hint
// and voice activity filtering, then compared against the phrase list with
// case-insensitive substring matching. An optional energy gate skips windows
// that hold only silence so the engine is not called for them.
package wakeword
