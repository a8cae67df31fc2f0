package audio

import (
	"math"
	"testing"

	"github.com/cwbudde/spoke-tension/dsp/spectrum"
	"github.com/cwbudde/spoke-tension/dsp/window"
	"github.com/cwbudde/spoke-tension/internal/testutil"
	"github.com/cwbudde/spoke-tension/stats/peak"
)

func TestNewAnalyserValidation(t *testing.T) {
	tests := []struct {
		size      int
		smoothing float64
		ok        bool
	}{
		{1024, 0.8, true},
		{MinFFTSize, 0, true},
		{MaxFFTSize, 1, true},
		{16, 0.8, false},
		{1000, 0.8, false},
		{2 * MaxFFTSize, 0.8, false},
		{1024, -0.1, false},
		{1024, 1.5, false},
		{1024, math.NaN(), false},
	}
	for _, tt := range tests {
		_, err := NewAnalyser(tt.size, tt.smoothing)
		if (err == nil) != tt.ok {
			t.Errorf("NewAnalyser(%d, %v) error = %v, want ok=%v", tt.size, tt.smoothing, err, tt.ok)
		}
	}
}

func TestAnalyserSilenceIsFloor(t *testing.T) {
	a, err := NewAnalyser(256, 0.8)
	if err != nil {
		t.Fatal(err)
	}
	dst := make([]float64, a.Bins())
	if err := a.Spectrum(dst); err != nil {
		t.Fatal(err)
	}
	for i, v := range dst {
		if v != spectrum.FloorDB {
			t.Fatalf("bin %d = %v, want floor", i, v)
		}
	}
}

func TestAnalyserBinCentredTone(t *testing.T) {
	const (
		rate = 8000
		size = 1024
		bin  = 40
	)
	freq := float64(bin) * rate / size // 312.5 Hz

	a, err := NewAnalyser(size, 0)
	if err != nil {
		t.Fatal(err)
	}
	a.Write(testutil.DeterministicSine(freq, rate, 1, size))

	dst := make([]float64, a.Bins())
	if err := a.Spectrum(dst); err != nil {
		t.Fatal(err)
	}
	testutil.RequireFinite(t, dst)

	bins := spectrum.Bounded(nil, dst, rate, spectrum.Unbounded)
	r := peak.Analyze(bins)
	if r.Bin != bin || r.FrequencyHz != freq {
		t.Fatalf("peak at bin %d (%v Hz), want %d (%v Hz)", r.Bin, r.FrequencyHz, bin, freq)
	}

	// Periodic Blackman: |X|/N = A * a0 / 2.
	want := 20 * math.Log10(0.42/2)
	if math.Abs(dst[bin]-want) > 1e-6 {
		t.Fatalf("peak level = %v dB, want %v dB", dst[bin], want)
	}
}

func TestAnalyserSmoothing(t *testing.T) {
	const (
		rate = 8000
		size = 512
		bin  = 16
	)
	a, err := NewAnalyser(size, 0.8)
	if err != nil {
		t.Fatal(err)
	}
	a.Write(testutil.DeterministicSine(float64(bin)*rate/size, rate, 1, size))

	dst := make([]float64, a.Bins())
	level := 0.42 / 2

	if err := a.Spectrum(dst); err != nil {
		t.Fatal(err)
	}
	first := 0.2 * level
	if math.Abs(dst[bin]-20*math.Log10(first)) > 1e-6 {
		t.Fatalf("first read = %v dB, want %v dB", dst[bin], 20*math.Log10(first))
	}

	if err := a.Spectrum(dst); err != nil {
		t.Fatal(err)
	}
	second := 0.8*first + 0.2*level
	if math.Abs(dst[bin]-20*math.Log10(second)) > 1e-6 {
		t.Fatalf("second read = %v dB, want %v dB", dst[bin], 20*math.Log10(second))
	}

	a.Reset()
	if err := a.Spectrum(dst); err != nil {
		t.Fatal(err)
	}
	if dst[bin] != spectrum.FloorDB {
		t.Fatalf("after Reset = %v dB, want floor", dst[bin])
	}
}

func TestAnalyserRingKeepsLatest(t *testing.T) {
	const (
		rate = 8000
		size = 256
	)
	a, err := NewAnalyser(size, 0)
	if err != nil {
		t.Fatal(err)
	}

	// An old tone followed by a full window of a new one, in odd chunks.
	a.Write(testutil.DeterministicSine(20*rate/size, rate, 1, size))
	tone := testutil.DeterministicSine(50*rate/size, rate, 1, size)
	for len(tone) > 0 {
		n := min(37, len(tone))
		a.Write(tone[:n])
		tone = tone[n:]
	}

	dst := make([]float64, a.Bins())
	if err := a.Spectrum(dst); err != nil {
		t.Fatal(err)
	}
	if got := peakBin(dst); got != 50 {
		t.Fatalf("peak bin = %d, want 50", got)
	}
}

func TestAnalyserWindowSelection(t *testing.T) {
	const (
		rate = 8000
		size = 256
	)
	// Off-bin tone: leakage far from the peak depends on the window.
	tone := testutil.DeterministicSine(40.5*rate/size, rate, 1, size)
	farLeakage := func(opts ...AnalyserOption) float64 {
		t.Helper()
		a, err := NewAnalyser(size, 0, opts...)
		if err != nil {
			t.Fatal(err)
		}
		a.Write(tone)
		dst := make([]float64, a.Bins())
		if err := a.Spectrum(dst); err != nil {
			t.Fatal(err)
		}
		return dst[100]
	}

	def, err := NewAnalyser(size, 0)
	if err != nil {
		t.Fatal(err)
	}
	if def.Window() != window.TypeBlackman {
		t.Fatalf("default window = %v", def.Window())
	}

	rect := farLeakage(WithWindow(window.TypeRectangular))
	blackman := farLeakage()
	if rect < blackman+20 {
		t.Fatalf("rectangular leakage %.1f dB should exceed blackman %.1f dB by 20 dB", rect, blackman)
	}

	if _, err := NewAnalyser(size, 0, WithWindow(window.Type(99))); err == nil {
		t.Fatal("expected error for unknown window")
	}
}

// peakBin returns the index of the strongest bin of a full spectrum.
func peakBin(db []float64) int {
	return peak.Analyze(spectrum.Bounded(nil, db, 1, spectrum.Unbounded)).Bin
}

func TestAnalyserSpectrumLength(t *testing.T) {
	a, err := NewAnalyser(64, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Spectrum(make([]float64, 64)); err == nil {
		t.Fatal("expected length mismatch error")
	}
}

func BenchmarkAnalyserSpectrum(b *testing.B) {
	a, err := NewAnalyser(DefaultFFTSize, DefaultSmoothing)
	if err != nil {
		b.Fatal(err)
	}
	a.Write(testutil.DeterministicNoise(1, 0.5, DefaultFFTSize))
	dst := make([]float64, a.Bins())

	b.ReportAllocs()
	b.ResetTimer()
	for range b.N {
		if err := a.Spectrum(dst); err != nil {
			b.Fatal(err)
		}
	}
}
