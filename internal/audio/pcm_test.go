package audio

import "testing"

func TestDecodeS16LE(t *testing.T) {
	src := []byte{
		0x00, 0x00, // 0
		0xff, 0x7f, // 32767
		0x00, 0x80, // -32768
		0x00, 0x40, // 16384
		0xaa, // trailing odd byte
	}
	dst := make([]float64, 8)

	n := DecodeS16LE(dst, src)
	if n != 4 {
		t.Fatalf("decoded %d samples, want 4", n)
	}
	want := []float64{0, 32767.0 / 32768, -1, 0.5}
	for i, w := range want {
		if dst[i] != w {
			t.Fatalf("sample %d = %v, want %v", i, dst[i], w)
		}
	}

	if n := DecodeS16LE(dst[:1], src); n != 1 {
		t.Fatalf("short dst decoded %d samples, want 1", n)
	}
}
