package kernel

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DrawParamsSize is the byte size of the brush uniform, including the
// alignment padding WGSL requires before and after the vec3 color.
const DrawParamsSize = 48

// BrushKind selects the brush profile.
type BrushKind uint32

const (
	// BrushCircle stamps a disc around the stroke segment.
	BrushCircle BrushKind = 0
	// BrushSquare stamps an axis-aligned square around the stroke segment.
	BrushSquare BrushKind = 1
)

func (k BrushKind) String() string {
	switch k {
	case BrushCircle:
		return "circle"
	case BrushSquare:
		return "square"
	default:
		return fmt.Sprintf("BrushKind(%d)", uint32(k))
	}
}

// DrawParams is the brush uniform for one overlay dispatch. Start and End
// are the stroke segment endpoints in grid coordinates, current position
// first.
type DrawParams struct {
	Start [2]float32
	End   [2]float32
	Size  float32
	Kind  BrushKind
	Color [3]float32
}

// Bytes encodes the uniform with the WGSL struct layout: start at offset
// 0, end at 8, size at 16, kind at 20, color at 32.
func (p DrawParams) Bytes() []byte {
	buf := make([]byte, DrawParamsSize)
	putF32 := func(off int, v float32) {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
	}
	putF32(0, p.Start[0])
	putF32(4, p.Start[1])
	putF32(8, p.End[0])
	putF32(12, p.End[1])
	putF32(16, p.Size)
	binary.LittleEndian.PutUint32(buf[20:], uint32(p.Kind))
	putF32(32, p.Color[0])
	putF32(36, p.Color[1])
	putF32(40, p.Color[2])
	return buf
}

// DecodeDrawParams decodes a brush uniform written by Bytes.
func DecodeDrawParams(data []byte) (DrawParams, error) {
	if len(data) < DrawParamsSize {
		return DrawParams{}, fmt.Errorf("kernel: draw params need %d bytes, got %d", DrawParamsSize, len(data))
	}
	f32 := func(off int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
	}
	return DrawParams{
		Start: [2]float32{f32(0), f32(4)},
		End:   [2]float32{f32(8), f32(12)},
		Size:  f32(16),
		Kind:  BrushKind(binary.LittleEndian.Uint32(data[20:])),
		Color: [3]float32{f32(32), f32(36), f32(40)},
	}, nil
}
