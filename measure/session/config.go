package session

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cwbudde/spoke-tension/dsp/spectrum"
	"github.com/cwbudde/spoke-tension/measure/tension"
	"github.com/cwbudde/spoke-tension/stats/peak"
)

var (
	// ErrCapturing is returned when configuration changes while capturing.
	ErrCapturing = errors.New("session: configuration is frozen while capturing")
	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("session: invalid configuration")
)

// Config holds the physical and analysis parameters of a capture run.
type Config struct {
	SpokeLengthM         float64       `json:"spoke_length_m"`
	SpokeMassKg          float64       `json:"spoke_mass_kg"`
	LowerTensionN        float64       `json:"lower_tension_n"`
	UpperTensionN        float64       `json:"upper_tension_n"`
	AveragingWindow      time.Duration `json:"averaging_window"`
	ReliabilityThreshold float64       `json:"reliability_threshold"`
}

// Default spoke: 191 mm of 2 mm steel (0.0245 kg/m), read between 50 and
// 150 kgf over a one second window.
const (
	DefaultSpokeLengthM         = 0.191
	DefaultLinearDensityKgM     = 0.0245
	DefaultLowerTensionKgf      = 50
	DefaultUpperTensionKgf      = 150
	DefaultAveragingWindow      = time.Second
	DefaultReliabilityThreshold = peak.DefaultThreshold
)

// DefaultConfig returns the factory configuration.
func DefaultConfig() Config {
	return Config{
		SpokeLengthM:         DefaultSpokeLengthM,
		SpokeMassKg:          DefaultSpokeLengthM * DefaultLinearDensityKgM,
		LowerTensionN:        tension.NewtonFromKgf(DefaultLowerTensionKgf),
		UpperTensionN:        tension.NewtonFromKgf(DefaultUpperTensionKgf),
		AveragingWindow:      DefaultAveragingWindow,
		ReliabilityThreshold: DefaultReliabilityThreshold,
	}
}

// Validate reports the first invalid field, wrapped in [ErrInvalidConfig].
func (c Config) Validate() error {
	if _, err := c.Bounds(); err != nil {
		return err
	}
	if c.AveragingWindow <= 0 {
		return fmt.Errorf("%w: averaging window must be > 0: %v", ErrInvalidConfig, c.AveragingWindow)
	}
	if math.IsNaN(c.ReliabilityThreshold) || c.ReliabilityThreshold < 0 {
		return fmt.Errorf("%w: reliability threshold must be >= 0: %v", ErrInvalidConfig, c.ReliabilityThreshold)
	}
	return nil
}

// Bounds returns the frequency window matching the configured tension
// range.
func (c Config) Bounds() (spectrum.Bounds, error) {
	if c.UpperTensionN < c.LowerTensionN {
		return spectrum.Bounds{}, fmt.Errorf("%w: upper tension %v N below lower tension %v N",
			ErrInvalidConfig, c.UpperTensionN, c.LowerTensionN)
	}
	lo, err := tension.FrequencyFromTension(c.LowerTensionN, c.SpokeMassKg, c.SpokeLengthM)
	if err != nil {
		return spectrum.Bounds{}, fmt.Errorf("%w: lower bound: %w", ErrInvalidConfig, err)
	}
	hi, err := tension.FrequencyFromTension(c.UpperTensionN, c.SpokeMassKg, c.SpokeLengthM)
	if err != nil {
		return spectrum.Bounds{}, fmt.Errorf("%w: upper bound: %w", ErrInvalidConfig, err)
	}
	return spectrum.Bounds{LowHz: lo, HighHz: hi}, nil
}
