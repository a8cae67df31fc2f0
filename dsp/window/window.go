// Package window generates analysis windows for spectrum capture.
package window

import (
	"fmt"
	"math"
	"strings"

	"github.com/cwbudde/algo-vecmath"
)

// Type identifies a window function.
type Type int

const (
	TypeRectangular Type = iota
	TypeHann
	TypeHamming
	TypeBlackman
	TypeBlackmanHarris4Term
)

// Cosine-sum coefficients a0, a1, a2, ... for w(x) = sum a_k cos(2*pi*k*x)
// with alternating signs folded in.
var (
	hannCoeffs            = []float64{0.5, -0.5}
	hammingCoeffs         = []float64{0.54, -0.46}
	blackmanCoeffs        = []float64{0.42, -0.5, 0.08}
	blackmanHarris4Coeffs = []float64{0.35875, -0.48829, 0.14128, -0.01168}
)

var names = map[Type]string{
	TypeRectangular:         "rectangular",
	TypeHann:                "hann",
	TypeHamming:             "hamming",
	TypeBlackman:            "blackman",
	TypeBlackmanHarris4Term: "blackmanharris",
}

// Types lists the supported windows in declaration order.
func Types() []Type {
	return []Type{TypeRectangular, TypeHann, TypeHamming, TypeBlackman, TypeBlackmanHarris4Term}
}

// String returns the lower-case window name.
func (t Type) String() string {
	if n, ok := names[t]; ok {
		return n
	}
	return fmt.Sprintf("window(%d)", int(t))
}

// ParseType resolves a window name as produced by [Type.String].
func ParseType(name string) (Type, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for t, n := range names {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unsupported window: %q", name)
}

// Option configures window generation.
type Option func(*config)

type config struct {
	periodic bool
}

// WithPeriodic configures periodic form (FFT framing) instead of symmetric form.
func WithPeriodic() Option {
	return func(c *config) {
		c.periodic = true
	}
}

// Generate returns window coefficients of the given length.
func Generate(t Type, length int, opts ...Option) []float64 {
	if length <= 0 {
		return nil
	}

	var cfg config
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	out := make([]float64, length)
	for i := range out {
		out[i] = evalWindow(t, samplePosition(i, length, cfg.periodic))
	}
	return out
}

// Apply multiplies samples by coeffs into dst. All slices must have the
// same length; dst may alias samples.
func Apply(dst, samples, coeffs []float64) error {
	if len(samples) != len(coeffs) || len(dst) != len(samples) {
		return fmt.Errorf("window apply length mismatch: dst=%d samples=%d coeffs=%d",
			len(dst), len(samples), len(coeffs))
	}
	vecmath.MulBlock(dst, samples, coeffs)
	return nil
}

// CoherentGain returns the mean coefficient value.
func CoherentGain(coeffs []float64) float64 {
	if len(coeffs) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range coeffs {
		sum += c
	}
	return sum / float64(len(coeffs))
}

// ENBW returns the equivalent noise bandwidth in bins:
//
//	N * sum(w^2) / sum(w)^2
func ENBW(coeffs []float64) float64 {
	if len(coeffs) == 0 {
		return 0
	}
	var sum, sumSq float64
	for _, c := range coeffs {
		sum += c
		sumSq += c * c
	}
	if sum == 0 {
		return 0
	}
	return float64(len(coeffs)) * sumSq / (sum * sum)
}

func evalWindow(t Type, x float64) float64 {
	switch t {
	case TypeHann:
		return cosineFromCoeffs(x, hannCoeffs)
	case TypeHamming:
		return cosineFromCoeffs(x, hammingCoeffs)
	case TypeBlackman:
		return cosineFromCoeffs(x, blackmanCoeffs)
	case TypeBlackmanHarris4Term:
		return cosineFromCoeffs(x, blackmanHarris4Coeffs)
	default:
		return 1
	}
}

func cosineFromCoeffs(x float64, coeffs []float64) float64 {
	phase := 2 * math.Pi * x

	sum := 0.0
	for k, c := range coeffs {
		sum += c * math.Cos(float64(k)*phase)
	}
	return sum
}

func samplePosition(n, size int, periodic bool) float64 {
	if size <= 1 {
		return 0
	}

	den := float64(size - 1)
	if periodic {
		den = float64(size)
	}
	return float64(n) / den
}
