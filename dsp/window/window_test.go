package window

import (
	"math"
	"testing"
)

func TestGenerateFinite(t *testing.T) {
	types := []Type{
		TypeRectangular,
		TypeHann,
		TypeHamming,
		TypeBlackman,
		TypeBlackmanHarris4Term,
	}

	for _, typ := range types {
		t.Run(typ.String(), func(t *testing.T) {
			w := Generate(typ, 64)
			if len(w) != 64 {
				t.Fatalf("len=%d, want 64", len(w))
			}

			for i, v := range w {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					t.Fatalf("coefficient[%d] invalid: %v", i, v)
				}
			}
		})
	}
}

func TestGenerateEmpty(t *testing.T) {
	if Generate(TypeHann, 0) != nil {
		t.Fatal("expected nil for zero length")
	}
}

func TestBlackmanPeriodic(t *testing.T) {
	// Periodic Blackman (alpha 0.16) as used by browser analysers.
	const n = 8
	w := Generate(TypeBlackman, n, WithPeriodic())
	for i, v := range w {
		x := float64(i) / n
		want := 0.42 - 0.5*math.Cos(2*math.Pi*x) + 0.08*math.Cos(4*math.Pi*x)
		if math.Abs(v-want) > 1e-12 {
			t.Fatalf("w[%d]=%v want=%v", i, v, want)
		}
	}
	if math.Abs(w[0]) > 1e-12 {
		t.Fatalf("periodic blackman should start at 0: %v", w[0])
	}
	if math.Abs(w[n/2]-1) > 1e-12 {
		t.Fatalf("periodic blackman should peak at n/2: %v", w[n/2])
	}
}

func TestSymmetric(t *testing.T) {
	w := Generate(TypeHamming, 33)
	for i := range w {
		if math.Abs(w[i]-w[len(w)-1-i]) > 1e-12 {
			t.Fatalf("asymmetric at %d: %v vs %v", i, w[i], w[len(w)-1-i])
		}
	}
}

func TestApplyLengthMismatch(t *testing.T) {
	if err := Apply(make([]float64, 3), make([]float64, 3), make([]float64, 2)); err == nil {
		t.Fatal("expected error for mismatched lengths")
	}
}

func TestCoherentGain(t *testing.T) {
	if g := CoherentGain(Generate(TypeRectangular, 16)); g != 1 {
		t.Fatalf("rectangular gain=%v want 1", g)
	}
	if g := CoherentGain(Generate(TypeHann, 1024, WithPeriodic())); math.Abs(g-0.5) > 1e-12 {
		t.Fatalf("hann gain=%v want 0.5", g)
	}
	if CoherentGain(nil) != 0 {
		t.Fatal("empty gain should be 0")
	}
}

func TestParseType(t *testing.T) {
	for typ, name := range names {
		got, err := ParseType(" " + name + " ")
		if err != nil || got != typ {
			t.Fatalf("ParseType(%q)=%v,%v want %v", name, got, err, typ)
		}
	}
	if _, err := ParseType("kaiser"); err == nil {
		t.Fatal("expected error for unknown window")
	}
}

func TestENBW(t *testing.T) {
	tests := []struct {
		typ  Type
		want float64
	}{
		{TypeRectangular, 1},
		{TypeHann, 1.5},
	}
	for _, tt := range tests {
		got := ENBW(Generate(tt.typ, 1024, WithPeriodic()))
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%s ENBW = %v, want %v", tt.typ, got, tt.want)
		}
	}
	if got := ENBW(nil); got != 0 {
		t.Fatalf("ENBW(nil) = %v", got)
	}
	if n := len(Types()); n != len(names) {
		t.Fatalf("Types() has %d entries, names has %d", n, len(names))
	}
}
