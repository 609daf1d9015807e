package dsp

import (
	"errors"
	"fmt"
)

var ErrLag = errors.New("discriminator lag must be shorter than the delay line")

// Discriminator is a delay-and-cross-multiply FM detector. The delay lines
// hold 16 bit values, the current sample is used at full width.
type Discriminator struct {
	i, q  []int16
	mask  int
	lag   int
	shift uint
	w     int
}

func NewDiscriminator(length, lag int, shift uint) (*Discriminator, error) {
	if length < 2 || length&(length-1) != 0 {
		return nil, fmt.Errorf("discriminator: %w: %d", ErrTableSize, length)
	}
	if lag <= 0 || lag >= length {
		return nil, fmt.Errorf("discriminator: %w: lag %d, length %d", ErrLag, lag, length)
	}
	return &Discriminator{
		i:     make([]int16, length),
		q:     make([]int16, length),
		mask:  length - 1,
		lag:   lag,
		shift: shift,
	}, nil
}

// Process stores the filtered I/Q pair and returns the scaled cross product
// against the pair seen lag samples ago. The sign tracks the frequency offset
// from the mixer centre.
func (d *Discriminator) Process(i, q int32) int32 {
	d.i[d.w] = int16(i)
	d.q[d.w] = int16(q)

	p := (d.w - d.lag) & d.mask
	iPrev, qPrev := int64(d.i[p]), int64(d.q[p])
	d.w = (d.w + 1) & d.mask

	cross := iPrev*int64(q) - int64(i)*qPrev
	return int32(cross) >> d.shift
}

func (d *Discriminator) Reset() {
	clear(d.i)
	clear(d.q)
	d.w = 0
}
