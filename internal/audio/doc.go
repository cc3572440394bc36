// Package audio handles capture chunks, window buffering and WAV conversion.
// It defines the Source contract that live and recorded inputs implement,
// accumulates chunks into fixed-duration windows for wake-word evaluation and
// encodes windows into the mono 16-bit WAV container transcription engines expect.
package audio
