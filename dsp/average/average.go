package average

import (
	"slices"
	"time"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/spoke-tension/dsp/spectrum"
)

// Averager computes the mean spectrum of the frames captured within the
// last window. It is not safe for concurrent use.
type Averager struct {
	windowMs int64

	frames     []spectrum.Frame
	output     []spectrum.Bin
	sum        []float64
	amps       []float64
	counts     []int
	mismatches uint64
}

// New returns an Averager over the given window. Windows shorter than one
// millisecond keep only frames sharing the latest timestamp.
func New(window time.Duration) *Averager {
	ms := window.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	return &Averager{windowMs: ms}
}

// Window returns the configured window length.
func (a *Averager) Window() time.Duration {
	return time.Duration(a.windowMs) * time.Millisecond
}

// Add inserts frame, evicts frames older than the window relative to the
// newest retained timestamp, and recomputes the output.
func (a *Averager) Add(frame spectrum.Frame) {
	a.frames = append(a.frames, frame)

	// Out-of-order delivery is tolerated; equal timestamps keep arrival order.
	slices.SortStableFunc(a.frames, func(x, y spectrum.Frame) int {
		switch {
		case x.TimestampMs < y.TimestampMs:
			return -1
		case x.TimestampMs > y.TimestampMs:
			return 1
		default:
			return 0
		}
	})

	cutoff := a.frames[len(a.frames)-1].TimestampMs - a.windowMs
	keep := 0
	for keep < len(a.frames) && a.frames[keep].TimestampMs < cutoff {
		keep++
	}
	if keep > 0 {
		n := copy(a.frames, a.frames[keep:])
		clear(a.frames[n:])
		a.frames = a.frames[:n]
	}

	a.recompute()
}

// Output returns a copy of the current averaged spectrum.
func (a *Averager) Output() []spectrum.Bin {
	return spectrum.Clone(a.output)
}

// Len returns the number of frames inside the window.
func (a *Averager) Len() int {
	return len(a.frames)
}

// Mismatches returns how many frames, summed over all recomputations, had a
// bin count different from the oldest retained frame.
func (a *Averager) Mismatches() uint64 {
	return a.mismatches
}

// Reset discards all frames and the output.
func (a *Averager) Reset() {
	clear(a.frames)
	a.frames = a.frames[:0]
	a.output = nil
	a.mismatches = 0
}

func (a *Averager) recompute() {
	if len(a.frames) == 0 {
		a.output = nil
		return
	}

	// The oldest frame fixes cardinality and frequency axis.
	ref := a.frames[0].Bins
	n := len(ref)

	a.sum = resize(a.sum, n)
	a.amps = resize(a.amps, n)
	clear(a.sum)

	uniform := true
	for _, f := range a.frames {
		if len(f.Bins) != n {
			uniform = false
			a.mismatches++
		}
	}

	out := make([]spectrum.Bin, n)
	for i := range out {
		out[i].FrequencyHz = ref[i].FrequencyHz
	}

	if uniform {
		for _, f := range a.frames {
			for i, b := range f.Bins {
				a.amps[i] = b.AmplitudeDB
			}
			vecmath.AddBlockInPlace(a.sum, a.amps)
		}
		vecmath.ScaleBlock(a.sum, a.sum, 1/float64(len(a.frames)))
		for i := range out {
			out[i].AmplitudeDB = a.sum[i]
		}
		a.output = out
		return
	}

	// Ragged window: each position averages the frames that reach it.
	a.counts = slices.Grow(a.counts[:0], n)[:n]
	clear(a.counts)
	for _, f := range a.frames {
		for i, b := range f.Bins {
			if i >= n {
				break
			}
			a.sum[i] += b.AmplitudeDB
			a.counts[i]++
		}
	}
	for i := range out {
		if a.counts[i] > 0 {
			out[i].AmplitudeDB = a.sum[i] / float64(a.counts[i])
		}
	}
	a.output = out
}

func resize(buf []float64, n int) []float64 {
	if cap(buf) < n {
		return make([]float64, n)
	}
	return buf[:n]
}
