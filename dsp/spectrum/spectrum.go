package spectrum

import (
	"fmt"
	"math"
	"sync"

	"github.com/cwbudde/algo-vecmath"
)

// FloorDB is the amplitude reported for bins with zero magnitude.
const FloorDB = -200.0

// Bin is one frequency sample of a log-magnitude spectrum.
type Bin struct {
	FrequencyHz float64 `json:"frequency_hz"`
	AmplitudeDB float64 `json:"amplitude_db"`
}

// Frame is a bounded spectrum captured at one scheduler tick.
//
// Bins are ordered by ascending FFT bin index. TimestampMs is a monotonic
// capture time in milliseconds.
type Frame struct {
	Bins        []Bin
	TimestampMs int64
}

// Bounds is an inclusive frequency window in Hz.
type Bounds struct {
	LowHz  float64 `json:"low_hz"`
	HighHz float64 `json:"high_hz"`
}

// Unbounded keeps every bin.
var Unbounded = Bounds{LowHz: 0, HighHz: math.Inf(1)}

// Contains reports whether f lies inside the window, edges included.
func (b Bounds) Contains(f float64) bool {
	return f >= b.LowHz && f <= b.HighHz
}

// Validate checks that the window is well formed.
func (b Bounds) Validate() error {
	if math.IsNaN(b.LowHz) || math.IsNaN(b.HighHz) {
		return fmt.Errorf("spectrum bounds must not be NaN: [%v, %v]", b.LowHz, b.HighHz)
	}
	if b.LowHz < 0 {
		return fmt.Errorf("spectrum lower bound must be >= 0: %v", b.LowHz)
	}
	if b.HighHz < b.LowHz {
		return fmt.Errorf("spectrum upper bound must be >= lower bound: [%v, %v]", b.LowHz, b.HighHz)
	}
	return nil
}

// BinFrequency returns the centre frequency of bin index for a spectrum of
// transformSize bins captured at sampleRate:
//
//	f = index * sampleRate / (2 * transformSize)
func BinFrequency(index, sampleRate, transformSize int) float64 {
	if transformSize <= 0 {
		return 0
	}
	return float64(index) * float64(sampleRate) / float64(2*transformSize)
}

// Resolution returns the bin spacing in Hz.
func Resolution(sampleRate, transformSize int) float64 {
	return BinFrequency(1, sampleRate, transformSize)
}

// Bounded appends to dst the bins of the full-resolution spectrum db whose
// frequency lies inside b, in bin index order, and returns the extended slice.
func Bounded(dst []Bin, db []float64, sampleRate int, b Bounds) []Bin {
	n := len(db)
	for i, v := range db {
		f := BinFrequency(i, sampleRate, n)
		if !b.Contains(f) {
			continue
		}
		dst = append(dst, Bin{FrequencyHz: f, AmplitudeDB: v})
	}
	return dst
}

// Amplitudes returns the dB values of bins in order.
func Amplitudes(bins []Bin) []float64 {
	if len(bins) == 0 {
		return nil
	}
	out := make([]float64, len(bins))
	for i, b := range bins {
		out[i] = b.AmplitudeDB
	}
	return out
}

// Clone returns a copy of bins that shares no memory with the input.
func Clone(bins []Bin) []Bin {
	if bins == nil {
		return nil
	}
	out := make([]Bin, len(bins))
	copy(out, bins)
	return out
}

// ToDB converts a linear magnitude to decibels, clamped to [FloorDB].
func ToDB(v float64) float64 {
	if v <= 0 || math.IsNaN(v) {
		return FloorDB
	}
	db := 20 * math.Log10(v)
	if db < FloorDB {
		return FloorDB
	}
	return db
}

// scratchBuf holds pooled scratch memory for complex-to-real unpacking.
type scratchBuf struct {
	data []float64
}

var scratchPool = sync.Pool{
	New: func() any { return &scratchBuf{} },
}

func getScratch(n int) (re, im []float64, buf *scratchBuf) {
	buf = scratchPool.Get().(*scratchBuf)
	need := 2 * n
	if cap(buf.data) < need {
		buf.data = make([]float64, need)
	} else {
		buf.data = buf.data[:need]
	}
	return buf.data[:n], buf.data[n:need], buf
}

// Magnitude computes |X[k]| * scale for each complex bin into dst.
//
// dst and in must have the same length. Scratch buffers are pooled, so in
// steady state this does not allocate.
func Magnitude(dst []float64, in []complex128, scale float64) {
	if len(dst) != len(in) {
		panic(fmt.Sprintf("spectrum magnitude length mismatch: %d != %d", len(dst), len(in)))
	}
	if len(in) == 0 {
		return
	}

	re, im, buf := getScratch(len(in))
	for i, c := range in {
		re[i] = real(c)
		im[i] = imag(c)
	}
	vecmath.Magnitude(dst, re, im)
	scratchPool.Put(buf)

	if scale != 1 {
		vecmath.ScaleBlock(dst, dst, scale)
	}
}

// DecibelsInPlace converts linear magnitudes to dB using [ToDB].
func DecibelsInPlace(values []float64) {
	for i, v := range values {
		values[i] = ToDB(v)
	}
}
