package dsp

import (
	"fmt"
	"math/bits"
)

// Decimator is a boxcar averager that reduces the rate by a power of two. A
// partial group at the end of one call is completed by the next, so chunk
// sizes need not be multiples of the factor.
type Decimator struct {
	factor int
	shift  uint

	sum int32
	n   int
}

func NewDecimator(factor int) (*Decimator, error) {
	if factor < 1 || factor&(factor-1) != 0 {
		return nil, fmt.Errorf("decimator: %w: %d", ErrTableSize, factor)
	}
	return &Decimator{factor: factor, shift: uint(bits.TrailingZeros(uint(factor)))}, nil
}

func (d *Decimator) Factor() int {
	return d.factor
}

// Pending is the number of input samples held over from the last call.
func (d *Decimator) Pending() int {
	return d.n
}

// Reset drops the held over samples.
func (d *Decimator) Reset() {
	d.sum, d.n = 0, 0
}

// Process appends the decimated samples of src to dst.
func (d *Decimator) Process(dst, src []int16) []int16 {
	if d.factor == 1 {
		return append(dst, src...)
	}
	for _, s := range src {
		d.sum += int32(s)
		if d.n++; d.n == d.factor {
			dst = append(dst, int16(d.sum>>d.shift))
			d.sum, d.n = 0, 0
		}
	}
	return dst
}
