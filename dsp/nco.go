// Package dsp holds the fixed-point signal processing stages of the AFSK
// demodulator. Every stage keeps its own state and is owned by a single
// goroutine; none of them lock.
package dsp

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrTableSize = errors.New("table size must be a power of two")
	ErrIncrement = errors.New("phase increment out of range")
)

// FullScale is the peak value of the oscillator table.
const FullScale = 32767

type Channel int

const (
	I Channel = iota
	Q
)

func (c Channel) String() string {
	if c == I {
		return "I"
	}
	return "Q"
}

// NCO is a table driven quadrature oscillator. Both channels read the same
// cosine table; Q starts three quarters of the table ahead of I and from then
// on each channel advances on its own increment.
type NCO struct {
	table []int16
	mask  int
	phase [2]int
	inc   [2]int
}

func NewNCO(size, increment int) (*NCO, error) {
	if size < 4 || size&(size-1) != 0 {
		return nil, fmt.Errorf("nco: %w: %d", ErrTableSize, size)
	}
	if increment <= 0 || increment >= size {
		return nil, fmt.Errorf("nco: %w: %d", ErrIncrement, increment)
	}

	n := &NCO{
		table: make([]int16, size),
		mask:  size - 1,
		inc:   [2]int{increment, increment},
	}
	for i := range n.table {
		n.table[i] = int16(math.Round(math.Cos(2*math.Pi*float64(i)/float64(size)) * FullScale))
	}
	n.Reset()
	return n, nil
}

// IncrementForFrequency returns the per-sample phase step that makes a table of
// the given size produce freq at sampleRate.
func IncrementForFrequency(freq, sampleRate float64, size int) int {
	return int(math.Round(freq * float64(size) / sampleRate))
}

// Reset puts both phase accumulators back at their start positions.
func (n *NCO) Reset() {
	n.phase[I] = 0
	n.phase[Q] = 3 * len(n.table) / 4
}

// Next returns the current value for the channel and advances its phase.
func (n *NCO) Next(ch Channel) int16 {
	v := n.table[n.phase[ch]]
	n.phase[ch] = (n.phase[ch] + n.inc[ch]) & n.mask
	return v
}

func (n *NCO) SetIncrement(ch Channel, inc int) error {
	if inc <= 0 || inc >= len(n.table) {
		return fmt.Errorf("nco: %w: %d", ErrIncrement, inc)
	}
	n.inc[ch] = inc
	return nil
}

func (n *NCO) Increment(ch Channel) int {
	return n.inc[ch]
}

func (n *NCO) Phase(ch Channel) int {
	return n.phase[ch]
}

func (n *NCO) Size() int {
	return len(n.table)
}

// Frequency is the oscillator frequency of the channel at sampleRate.
func (n *NCO) Frequency(ch Channel, sampleRate float64) float64 {
	return float64(n.inc[ch]) * sampleRate / float64(len(n.table))
}

// Period is the number of samples after which the channel's phase returns to
// where it started.
func (n *NCO) Period(ch Channel) int {
	return len(n.table) / gcd(len(n.table), n.inc[ch])
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Mix multiplies a sample by an oscillator value and scales the product back to
// the sample range.
func Mix(sample, osc int16) int16 {
	return int16((int32(sample) * int32(osc)) >> 15)
}
