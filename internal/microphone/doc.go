// Package microphone provides the live capture source backed by PortAudio.
package microphone
