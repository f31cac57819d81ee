package kernel

// CPU mirrors of the generated compute programs. The interpreting backend
// executes these against raw rgba8 pixel slices, and tests use them as the
// reference for GPU results.

func hashState(value uint32) uint32 {
	state := value
	state ^= 2747636419
	state *= 2654435769
	state ^= state >> 16
	state *= 2654435769
	state ^= state >> 16
	state *= 2654435769
	return state
}

func randomFloat(value uint32) float32 {
	return float32(hashState(value)) / 4294967295.0
}

func unormLoad(b byte) float32 {
	return float32(b) / 255.0
}

func unormStore(v float32) byte {
	return byte(clamp32(v, 0, 1)*255.0 + 0.5)
}

// SeedImage fills an rgba8 pixel slice with the deterministic hash noise
// the init entry point produces. The slice must hold w*h*4 bytes.
func SeedImage(pix []byte, w, h int) {
	total := uint32(w * h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := uint32(y*w + x)
			o := (y*w + x) * 4
			pix[o+0] = unormStore(randomFloat(idx))
			pix[o+1] = unormStore(randomFloat(total + idx))
			pix[o+2] = unormStore(randomFloat(2*total + idx))
			pix[o+3] = 255
		}
	}
}

// StepImage runs one simulation step from src into dst, both rgba8 pixel
// slices of w*h*4 bytes. Filters are in packed uniform order, indexed the
// way the shader indexes its mat3x3 columns. Activations run per channel
// and the result is clamped to the unit interval.
func StepImage(dst, src []byte, w, h int, filters [3][12]float32, acts [3]*Activation) {
	at := func(x, y, ch int) float32 {
		x = ((x % w) + w) % w
		y = ((y % h) + h) % h
		return unormLoad(src[(y*w+x)*4+ch])
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum [3]float32
			for i := -1; i <= 1; i++ {
				for j := -1; j <= 1; j++ {
					wt := [3]float32{
						filters[0][(i+1)*4+(j+1)],
						filters[1][(i+1)*4+(j+1)],
						filters[2][(i+1)*4+(j+1)],
					}
					for ch := 0; ch < 3; ch++ {
						sum[ch] += at(x+i, y+j, ch) * wt[ch]
					}
				}
			}
			o := (y*w + x) * 4
			for ch := 0; ch < 3; ch++ {
				dst[o+ch] = unormStore(acts[ch].Eval(sum[ch]))
			}
			dst[o+3] = 255
		}
	}
}

// StampBrush applies one brush overlay dispatch to an rgba8 pixel slice.
// Cells whose centers fall within the brush profile around the stroke
// segment take the brush color.
func StampBrush(pix []byte, w, h int, p DrawParams) {
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px := float32(x) + 0.5
			py := float32(y) + 0.5
			nx, ny := closestOnSegment(px, py, p.Start, p.End)
			dx, dy := px-nx, py-ny

			var hit bool
			if p.Kind == BrushCircle {
				hit = dx*dx+dy*dy <= p.Size*p.Size
			} else {
				hit = max32(abs32(dx), abs32(dy)) <= p.Size
			}
			if hit {
				o := (y*w + x) * 4
				pix[o+0] = unormStore(p.Color[0])
				pix[o+1] = unormStore(p.Color[1])
				pix[o+2] = unormStore(p.Color[2])
				pix[o+3] = 255
			}
		}
	}
}

func closestOnSegment(px, py float32, a, b [2]float32) (float32, float32) {
	abx, aby := b[0]-a[0], b[1]-a[1]
	lenSq := abx*abx + aby*aby
	if lenSq == 0 {
		return a[0], a[1]
	}
	t := clamp32(((px-a[0])*abx+(py-a[1])*aby)/lenSq, 0, 1)
	return a[0] + abx*t, a[1] + aby*t
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
