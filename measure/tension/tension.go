package tension

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/spoke-tension/dsp/spectrum"
)

// G is standard gravity in m/s^2.
const G = 9.807

// ErrInvalidDomain reports a conversion outside the physical domain:
// non-positive mass or length, or negative tension.
var ErrInvalidDomain = errors.New("tension: invalid domain")

// Value is a tension force.
type Value struct {
	newton float64
}

// FromNewton returns a tension of n newtons.
func FromNewton(n float64) Value {
	return Value{newton: n}
}

// FromKgf returns a tension of kgf kilogram-force.
func FromKgf(kgf float64) Value {
	return Value{newton: NewtonFromKgf(kgf)}
}

// FromFrequency returns the tension of a spoke of massKg and lengthM whose
// fundamental is freqHz. A zero frequency yields zero tension.
func FromFrequency(freqHz, massKg, lengthM float64) Value {
	return Value{newton: 4 * massKg * lengthM * freqHz * freqHz}
}

// Newton returns the tension in newtons.
func (v Value) Newton() float64 { return v.newton }

// Kgf returns the tension in kilogram-force.
func (v Value) Kgf() float64 { return KgfFromNewton(v.newton) }

// Frequency returns the fundamental frequency of a spoke of massKg and
// lengthM under this tension.
func (v Value) Frequency(massKg, lengthM float64) (float64, error) {
	return FrequencyFromTension(v.newton, massKg, lengthM)
}

// String formats the tension in both units.
func (v Value) String() string {
	return fmt.Sprintf("%.2f N (%.2f kgf)", v.Newton(), v.Kgf())
}

// FrequencyFromTension returns 0.5 * sqrt(T / (m * L)).
//
// It returns [ErrInvalidDomain] when m * L <= 0 or tensionN < 0.
func FrequencyFromTension(tensionN, massKg, lengthM float64) (float64, error) {
	ml := massKg * lengthM
	if !(ml > 0) || massKg <= 0 || lengthM <= 0 {
		return 0, fmt.Errorf("%w: mass*length must be > 0: mass=%v length=%v", ErrInvalidDomain, massKg, lengthM)
	}
	if !(tensionN >= 0) {
		return 0, fmt.Errorf("%w: tension must be >= 0: %v", ErrInvalidDomain, tensionN)
	}
	return 0.5 * math.Sqrt(tensionN/ml), nil
}

// NewtonFromKgf converts kilogram-force to newtons.
func NewtonFromKgf(kgf float64) float64 {
	return kgf * G
}

// KgfFromNewton converts newtons to kilogram-force.
func KgfFromNewton(n float64) float64 {
	return n / G
}

// LinearDensity returns the mass per metre of a round spoke of diameterM
// made of a material with densityKgM3.
func LinearDensity(densityKgM3, diameterM float64) float64 {
	r := diameterM / 2
	return densityKgM3 * math.Pi * r * r
}

// MassFromDensity returns the mass of a round spoke:
//
//	m = L * rho * pi * (d/2)^2
func MassFromDensity(lengthM, densityKgM3, diameterM float64) float64 {
	return lengthM * LinearDensity(densityKgM3, diameterM)
}

// ProjectSpectrum re-maps the frequency axis of bins onto tension in kgf for
// a spoke of massKg and lengthM. Amplitudes are unchanged; the returned
// Bin.FrequencyHz field carries kgf.
func ProjectSpectrum(bins []spectrum.Bin, massKg, lengthM float64) []spectrum.Bin {
	if bins == nil {
		return nil
	}
	out := make([]spectrum.Bin, len(bins))
	for i, b := range bins {
		out[i] = spectrum.Bin{
			FrequencyHz: FromFrequency(b.FrequencyHz, massKg, lengthM).Kgf(),
			AmplitudeDB: b.AmplitudeDB,
		}
	}
	return out
}
