// Package listen runs the wake word cycle and fixed-length recordings.
//
// A Loop moves through idle, listening, awake and stopped. While listening,
// the audio callback pushes chunks into a bounded queue without blocking; a
// single consumer goroutine groups them into non-overlapping windows and asks
// the Detector about each one. The first match wakes the loop and releases
// the audio stream.
//
// A Recorder captures a requested duration and returns its transcript.
package listen
