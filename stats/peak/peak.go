// Package peak extracts the dominant bin of an averaged spectrum and scores
// how far it stands above the rest of the window.
package peak

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/spoke-tension/dsp/spectrum"
)

// DefaultThreshold is the score above which a reading is usually trusted.
const DefaultThreshold = 3.5

// Reading is the dominant peak of one spectrum.
type Reading struct {
	FrequencyHz float64 `json:"frequency_hz"`
	AmplitudeDB float64 `json:"amplitude_db"`
	// Score is |peak - mean| / stddev over all bins (population statistics).
	// It is zero for empty or flat spectra.
	Score float64 `json:"score"`
	// Bin is the position of the peak in the analysed slice, -1 when empty.
	Bin  int     `json:"bin"`
	Mean float64 `json:"mean_db"`
	// StdDev is the population standard deviation of the amplitudes.
	StdDev float64 `json:"stddev_db"`
}

// Reliable reports whether the score exceeds threshold.
func (r Reading) Reliable(threshold float64) bool {
	return r.Score > threshold
}

// Analyze returns the peak of bins together with its reliability score.
//
// Ties resolve to the first bin in positional order. An empty spectrum yields
// a zero reading.
func Analyze(bins []spectrum.Bin) Reading {
	if len(bins) == 0 {
		return Reading{Bin: -1}
	}

	amps := spectrum.Amplitudes(bins)
	idx := floats.MaxIdx(amps)
	mean, variance := stat.PopMeanVariance(amps, nil)

	r := Reading{
		FrequencyHz: bins[idx].FrequencyHz,
		AmplitudeDB: amps[idx],
		Bin:         idx,
		Mean:        mean,
	}
	if variance > 0 {
		r.StdDev = math.Sqrt(variance)
		r.Score = math.Abs(r.AmplitudeDB-mean) / r.StdDev
	}
	return r
}
