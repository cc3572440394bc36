package audio

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceExhausted is reported through Sink.OnError when a finite source
	// has delivered all of its audio.
	ErrSourceExhausted = errors.New("audio source exhausted")

	// ErrInputOverflow is reported when the backend dropped input frames.
	ErrInputOverflow = errors.New("audio input overflow")

	// ErrDeviceBusy is reported when the capture device refused a read.
	ErrDeviceBusy = errors.New("audio device busy")
)

// TransientError is a per-chunk capture problem. The affected chunk is
// dropped and capture continues.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient audio error during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// AcquisitionError means a stream could not be opened at all.
type AcquisitionError struct {
	Device string
	Err    error
}

func (e *AcquisitionError) Error() string {
	if e.Device == "" {
		return fmt.Sprintf("failed to acquire audio stream: %v", e.Err)
	}
	return fmt.Sprintf("failed to acquire audio stream on %s: %v", e.Device, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a TransientError
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
