package audio

import "encoding/binary"

const s16Scale = 1.0 / 32768

// DecodeS16LE converts little-endian signed 16-bit mono PCM to samples in
// [-1, 1). It decodes min(len(dst), len(src)/2) samples and returns the
// count. A trailing odd byte is ignored.
func DecodeS16LE(dst []float64, src []byte) int {
	n := min(len(dst), len(src)/2)
	for i := range n {
		v := int16(binary.LittleEndian.Uint16(src[2*i:]))
		dst[i] = float64(v) * s16Scale
	}
	return n
}
