package audio

import (
	"fmt"
	"math"
	"sync"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/spoke-tension/dsp/spectrum"
	"github.com/cwbudde/spoke-tension/dsp/window"
)

const (
	MinFFTSize       = 32
	MaxFFTSize       = 32768
	DefaultFFTSize   = 8192
	DefaultSmoothing = 0.8
	DefaultWindow    = window.TypeBlackman
)

// AnalyserOption configures an Analyser.
type AnalyserOption func(*Analyser)

// WithWindow selects the window applied before the transform.
func WithWindow(t window.Type) AnalyserOption {
	return func(a *Analyser) {
		a.winType = t
	}
}

// Analyser computes a smoothed dB spectrum of the most recent FFT-size
// samples. It is safe for one writer and one reader.
type Analyser struct {
	mu sync.Mutex

	size      int
	smoothing float64
	winType   window.Type
	win       []float64
	plan      *algofft.Plan[complex128]

	ring  []float64
	write int

	frame    []float64
	in       []complex128
	out      []complex128
	mag      []float64
	smoothed []float64
}

// NewAnalyser returns an Analyser for fftSize (a power of two in
// [MinFFTSize, MaxFFTSize]) and a smoothing constant in [0, 1]. The window
// defaults to [DefaultWindow].
func NewAnalyser(fftSize int, smoothing float64, opts ...AnalyserOption) (*Analyser, error) {
	if fftSize < MinFFTSize || fftSize > MaxFFTSize || fftSize&(fftSize-1) != 0 {
		return nil, fmt.Errorf("fft size must be a power of two in [%d, %d]: %d", MinFFTSize, MaxFFTSize, fftSize)
	}
	if math.IsNaN(smoothing) || smoothing < 0 || smoothing > 1 {
		return nil, fmt.Errorf("smoothing must be in [0, 1]: %v", smoothing)
	}

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("analyser init fft plan: %w", err)
	}

	bins := fftSize / 2
	a := &Analyser{
		size:      fftSize,
		smoothing: smoothing,
		winType:   DefaultWindow,
		plan:      plan,
		ring:      make([]float64, fftSize),
		frame:     make([]float64, fftSize),
		in:        make([]complex128, fftSize),
		out:       make([]complex128, fftSize),
		mag:       make([]float64, bins),
		smoothed:  make([]float64, bins),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if _, err := window.ParseType(a.winType.String()); err != nil {
		return nil, fmt.Errorf("analyser window: %w", err)
	}
	a.win = window.Generate(a.winType, fftSize, window.WithPeriodic())
	return a, nil
}

// Window returns the window applied before the transform.
func (a *Analyser) Window() window.Type { return a.winType }

// FFTSize returns the transform length.
func (a *Analyser) FFTSize() int { return a.size }

// Bins returns the number of spectrum values, half the FFT length.
func (a *Analyser) Bins() int { return a.size / 2 }

// Write appends samples to the analysis ring.
func (a *Analyser) Write(samples []float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(samples) >= a.size {
		copy(a.ring, samples[len(samples)-a.size:])
		a.write = 0
		return
	}
	for len(samples) > 0 {
		n := copy(a.ring[a.write:], samples)
		samples = samples[n:]
		a.write = (a.write + n) & (a.size - 1)
	}
}

// Spectrum writes the current dB spectrum into dst, which must hold
// [Analyser.Bins] values. Each call advances the smoothing state.
func (a *Analyser) Spectrum(dst []float64) error {
	bins := a.Bins()
	if len(dst) != bins {
		return fmt.Errorf("analyser spectrum length mismatch: %d != %d", len(dst), bins)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Oldest sample first.
	n := copy(a.frame, a.ring[a.write:])
	copy(a.frame[n:], a.ring[:a.write])

	if err := window.Apply(a.frame, a.frame, a.win); err != nil {
		return err
	}
	for i, v := range a.frame {
		a.in[i] = complex(v, 0)
	}
	if err := a.plan.Forward(a.out, a.in); err != nil {
		return fmt.Errorf("analyser fft: %w", err)
	}

	spectrum.Magnitude(a.mag, a.out[:bins], 1/float64(a.size))

	if a.smoothing > 0 {
		vecmath.ScaleBlock(a.smoothed, a.smoothed, a.smoothing)
		vecmath.ScaleBlock(a.mag, a.mag, 1-a.smoothing)
		vecmath.AddBlockInPlace(a.smoothed, a.mag)
	} else {
		copy(a.smoothed, a.mag)
	}

	copy(dst, a.smoothed)
	spectrum.DecibelsInPlace(dst)
	return nil
}

// Reset clears samples and smoothing state.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.ring)
	clear(a.smoothed)
	a.write = 0
}
