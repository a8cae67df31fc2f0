package session

import (
	"fmt"

	"github.com/cwbudde/spoke-tension/dsp/spectrum"
	"github.com/cwbudde/spoke-tension/measure/sampler"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateIdle State = iota
	StateCapturing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = StateIdle
	case "capturing":
		*s = StateCapturing
	default:
		return fmt.Errorf("unknown state %q", b)
	}
	return nil
}

// Error kinds surfaced to subscribers.
const (
	KindCaptureUnavailable = sampler.KindCaptureUnavailable
	KindDeviceLost         = sampler.KindDeviceLost
)

// Update is the result of processing one frame. ShapeMismatches counts
// averaged frames whose bin count differed from the oldest frame in the
// window. TensionSpectrum is Spectrum with the frequency axis mapped to kgf.
type Update struct {
	RunID            string         `json:"run_id"`
	TimestampMs      int64          `json:"timestamp_ms"`
	TensionNewton    float64        `json:"tension_newton"`
	TensionKgf       float64        `json:"tension_kgf"`
	PeakFrequencyHz  float64        `json:"peak_frequency_hz"`
	PeakAmplitudeDB  float64        `json:"peak_amplitude_db"`
	ReliabilityScore float64        `json:"reliability_score"`
	IsReliable       bool           `json:"is_reliable"`
	Frames           int            `json:"frames"`
	ShapeMismatches  uint64         `json:"shape_mismatches"`
	Spectrum         []spectrum.Bin `json:"spectrum"`
	TensionSpectrum  []spectrum.Bin `json:"tension_spectrum"`
}

// Error is a capture failure. The session is idle when it is published.
type Error struct {
	Kind    sampler.Kind `json:"kind"`
	RunID   string       `json:"run_id,omitempty"`
	Message string       `json:"message"`
	Err     error        `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Status reports a lifecycle transition.
type Status struct {
	State  State           `json:"state"`
	RunID  string          `json:"run_id,omitempty"`
	Window spectrum.Bounds `json:"window"`
}

// Event is one message of the session stream: exactly one field is set.
type Event struct {
	Update *Update
	Err    *Error
	Status *Status
}
