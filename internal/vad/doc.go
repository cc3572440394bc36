// Package vad provides an energy-based voice activity gate. Windows that
// contain no sustained speech can be skipped before they reach a
// transcription engine.
package vad
