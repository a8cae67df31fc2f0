package testutil

import (
	"math"
	"testing"

	"github.com/cwbudde/spoke-tension/dsp/spectrum"
)

// RequireNear fails t if got and want differ by more than eps.
func RequireNear(t *testing.T, name string, got, want, eps float64) {
	t.Helper()
	if math.Abs(got-want) > eps {
		t.Fatalf("%s = %v, want %v (eps %v)", name, got, want, eps)
	}
}

// RequireFinite fails t if any element is NaN or Inf.
func RequireFinite(t *testing.T, data []float64) {
	t.Helper()
	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("index %d: non-finite value %v", i, v)
		}
	}
}

// RequireBinsNear fails t unless got and want have the same length and every
// frequency and amplitude pair is within eps.
func RequireBinsNear(t *testing.T, got, want []spectrum.Bin, eps float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("bin count: got %d, want %d", len(got), len(want))
	}
	for i := range got {
		if math.Abs(got[i].FrequencyHz-want[i].FrequencyHz) > eps ||
			math.Abs(got[i].AmplitudeDB-want[i].AmplitudeDB) > eps {
			t.Fatalf("bin %d: got %+v, want %+v (eps %v)", i, got[i], want[i], eps)
		}
	}
}
