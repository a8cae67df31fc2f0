package sampler

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCaptureUnavailable reports that the audio device could not be
	// acquired (permission denied, no device, device busy).
	ErrCaptureUnavailable = errors.New("capture unavailable")
	// ErrDeviceLost reports that the device disappeared during capture.
	ErrDeviceLost = errors.New("capture device lost")
)

// Source is a platform spectrum capture handle.
type Source interface {
	// SampleRate returns the capture sample rate in Hz.
	SampleRate() int
	// TransformSize returns the number of bins per spectrum, half the FFT
	// length.
	TransformSize() int
	// ReadSpectrum fills dst (length TransformSize) with the current
	// log-magnitude spectrum in dB.
	ReadSpectrum(dst []float64) error
	// Close disconnects the capture graph and releases the device. It
	// blocks until the release completed.
	Close() error
}

// Opener acquires a Source.
type Opener func(ctx context.Context) (Source, error)

// Kind classifies capture failures.
type Kind int

const (
	KindCaptureUnavailable Kind = iota + 1
	KindDeviceLost
)

func (k Kind) String() string {
	switch k {
	case KindCaptureUnavailable:
		return "capture_unavailable"
	case KindDeviceLost:
		return "device_lost"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// CaptureError is a classified capture failure.
type CaptureError struct {
	Kind Kind
	Err  error
}

func (e *CaptureError) Error() string {
	if e.Err == nil {
		return e.sentinel().Error()
	}
	return fmt.Sprintf("%v: %v", e.sentinel(), e.Err)
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *CaptureError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.sentinel()}
	}
	return []error{e.sentinel(), e.Err}
}

func (e *CaptureError) sentinel() error {
	if e.Kind == KindDeviceLost {
		return ErrDeviceLost
	}
	return ErrCaptureUnavailable
}

// Event is one message of the capture stream: exactly one of Frame or Err
// is set.
type Event struct {
	Frame *Frame
	Err   *CaptureError
}
