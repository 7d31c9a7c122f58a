package oto

import (
	"encoding/binary"
	"math"
)

// FloatBufferTo32BitLE encodes src as little-endian float32 into dst and
// returns the number of bytes written. Values outside [-1, 1] are clipped.
func FloatBufferTo32BitLE(src []float32, dst []byte) int {
	n := min(len(src), len(dst)/4)
	for i, v := range src[:n] {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
	return n * 4
}
