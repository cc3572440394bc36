package listen

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAlreadyListening is returned by Start while a cycle is running
	ErrAlreadyListening = errors.New("already listening")

	// ErrNoAudio is returned when a capture produced no samples
	ErrNoAudio = errors.New("no audio captured")

	// ErrInvalidDuration is returned for a recording length outside the allowed range
	ErrInvalidDuration = errors.New("invalid recording duration")
)

// State is the position of a loop in its wake cycle
type State int

const (
	StateIdle State = iota
	StateListening
	StateAwake
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateAwake:
		return "awake"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether a cycle has ended in this state
func (s State) Terminal() bool {
	return s == StateAwake || s == StateStopped
}

// Status is a snapshot of a loop
type Status struct {
	State           State     `json:"state"`
	Phrase          string    `json:"phrase,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	Windows         uint64    `json:"windows_evaluated"`
	ChunksReceived  uint64    `json:"chunks_received"`
	ChunksDropped   uint64    `json:"chunks_dropped"`
	TransientErrors uint64    `json:"transient_errors"`
	LastText        string    `json:"last_text,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
}
