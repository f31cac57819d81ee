package kernel

import (
	"encoding/binary"
	"math"
)

// FilterUniformSize is the byte size of one packed filter uniform: three
// matrix rows padded to a four float stride.
const FilterUniformSize = 48

// Filter is a 3x3 convolution kernel in row-major order. f[0] is the top
// row, applied to the neighbor row above the cell.
type Filter [3][3]float32

// IdentityFilter passes the center cell through unchanged.
func IdentityFilter() Filter {
	return Filter{{0, 0, 0}, {0, 1, 0}, {0, 0, 0}}
}

// FilterFromArray builds a filter from nine row-major coefficients.
func FilterFromArray(vals [9]float32) Filter {
	var f Filter
	for i := range 3 {
		for j := range 3 {
			f[i][j] = vals[i*3+j]
		}
	}
	return f
}

// Array flattens the filter to nine row-major coefficients.
func (f Filter) Array() [9]float32 {
	var out [9]float32
	for i := range 3 {
		for j := range 3 {
			out[i*3+j] = f[i][j]
		}
	}
	return out
}

// Pack lays the filter out for the shader uniform. Rows are padded to a
// four float stride, and the uniform's first row holds the matrix's last
// row, matching the column order of a mat3x3 constructed from rows.
func (f Filter) Pack() [12]float32 {
	var out [12]float32
	for c := range 3 {
		for k := range 3 {
			out[c*4+k] = f[2-c][k]
		}
	}
	return out
}

// Bytes encodes the packed filter as little-endian float bits, ready for
// a uniform buffer write.
func (f Filter) Bytes() []byte {
	packed := f.Pack()
	buf := make([]byte, FilterUniformSize)
	for i, v := range packed {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
