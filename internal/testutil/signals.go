package testutil

import (
	"encoding/binary"
	"math"
	"math/rand"

	"github.com/cwbudde/spoke-tension/dsp/spectrum"
)

// DeterministicSine generates a deterministic sine wave.
func DeterministicSine(freqHz, sampleRate, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	step := 2 * math.Pi * freqHz / sampleRate
	for i := range out {
		out[i] = amplitude * math.Sin(step*float64(i))
	}
	return out
}

// DeterministicNoise generates white noise with a fixed seed for reproducibility.
func DeterministicNoise(seed int64, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	rng := rand.New(rand.NewSource(seed))
	for i := range out {
		out[i] = (rng.Float64()*2 - 1) * amplitude
	}
	return out
}

// EncodeS16LE quantises samples in [-1, 1] to little-endian 16-bit PCM.
func EncodeS16LE(samples []float64) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		s = math.Max(-1, math.Min(1, s))
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(math.Round(s*32767))))
	}
	return out
}

// PeakSpectrum returns n dB values at floorDB with peakDB at index peak.
func PeakSpectrum(n, peak int, floorDB, peakDB float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = floorDB
	}
	if peak >= 0 && peak < n {
		out[peak] = peakDB
	}
	return out
}

// Bins zips frequencies and amplitudes into spectrum bins.
func Bins(freqs, amps []float64) []spectrum.Bin {
	n := min(len(freqs), len(amps))
	out := make([]spectrum.Bin, n)
	for i := range n {
		out[i] = spectrum.Bin{FrequencyHz: freqs[i], AmplitudeDB: amps[i]}
	}
	return out
}
