//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/framepipe"
)

// remapParams mirrors the Params uniform block of the remap shader: eight
// u32 fields followed by three vec4<f32> matrix rows, 80 bytes total.
type remapParams struct {
	srcWidth   uint32
	srcHeight  uint32
	srcStride  uint32
	dstWidth   uint32
	dstStride  uint32
	pixelBytes uint32
	dstSize    uint32
}

// remapParamsSize is the byte size of the packed uniform block.
const remapParamsSize = 8*4 + 3*16

// packRemapParams serializes the uniform block for GPU upload. The matrix
// rows are widened to vec4 for WGSL alignment; the fourth lane is unused.
func packRemapParams(p remapParams, m framepipe.Matrix3) []byte {
	buf := make([]byte, remapParamsSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:], p.srcWidth)
	le.PutUint32(buf[4:], p.srcHeight)
	le.PutUint32(buf[8:], p.srcStride)
	le.PutUint32(buf[12:], p.dstWidth)
	le.PutUint32(buf[16:], p.dstStride)
	le.PutUint32(buf[20:], p.pixelBytes)
	le.PutUint32(buf[24:], p.dstSize)
	// buf[28:32] is padding.
	for row := 0; row < 3; row++ {
		base := 32 + row*16
		for col := 0; col < 3; col++ {
			le.PutUint32(buf[base+col*4:], math.Float32bits(float32(m[row*3+col])))
		}
	}
	return buf
}

// alignWords rounds a byte count up to a whole number of u32 words.
func alignWords(n int) uint64 {
	return uint64((n + 3) &^ 3)
}

// padToWords returns data padded with zeros to a whole number of u32
// words. The original slice is returned when already aligned.
func padToWords(data []byte) []byte {
	if len(data)%4 == 0 {
		return data
	}
	padded := make([]byte, alignWords(len(data)))
	copy(padded, data)
	return padded
}
