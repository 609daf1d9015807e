package dsp

import (
	"errors"
	"fmt"
	"math"

	segdsp "github.com/racerxdl/segdsp/dsp"
)

var ErrNoTaps = errors.New("fir: no coefficients")

// Hann45 is a 45 tap Hann windowed lowpass for 12 kHz audio. Roll off at
// 300 Hz, -60 dB at 1300 Hz. Use with a shift of 16.
var Hann45 = []int16{
	24, 85, 151, 208, 236, 217, 138, 0,
	-187, -395, -585, -707, -713, -563, -233, 276,
	940, 1706, 2500, 3239, 3840, 4232, 4368, 4232,
	3840, 3239, 2500, 1706, 940, 276, -233, -563,
	-713, -707, -585, -395, -187, 0, 138, 217,
	236, 208, 151, 85, 24,
}

const Hann45Shift = 16

// Kaiser17 is a 17 tap Kaiser windowed lowpass. Roll off at 310 Hz, -60 dB at
// 3100 Hz. Use with a shift of 15.
var Kaiser17 = []int16{
	20, -4, -256, -667, -549, 1070, 4331, 7802,
	9311,
	7802, 4331, 1070, -549, -667, -256, -4, 20,
}

const Kaiser17Shift = 15

// FIR is a fixed point convolution filter with its own circular history.
type FIR struct {
	coeffs  []int16
	history []int32
	wr      int
	shift   uint
}

func NewFIR(coeffs []int16, shift uint) (*FIR, error) {
	if len(coeffs) == 0 {
		return nil, ErrNoTaps
	}
	if shift > 31 {
		return nil, fmt.Errorf("fir: shift %d out of range", shift)
	}
	c := make([]int16, len(coeffs))
	copy(c, coeffs)
	return &FIR{
		coeffs:  c,
		history: make([]int32, len(c)),
		shift:   shift,
	}, nil
}

// Filter stores sample in the history and returns the convolution of the
// history, newest sample first, against the coefficients in table order.
func (f *FIR) Filter(sample int16) int32 {
	f.history[f.wr] = int32(sample)
	rd := f.wr
	f.wr++
	if f.wr == len(f.history) {
		f.wr = 0
	}

	var acc int64
	for _, c := range f.coeffs {
		acc += int64(f.history[rd]) * int64(c)
		if rd == 0 {
			rd = len(f.history) - 1
		} else {
			rd--
		}
	}
	return int32(acc >> f.shift)
}

func (f *FIR) Taps() int {
	return len(f.coeffs)
}

func (f *FIR) Coefficients() []int16 {
	return f.coeffs
}

func (f *FIR) Reset() {
	clear(f.history)
	f.wr = 0
}

// DesignLowPass builds a windowed-sinc lowpass at runtime and quantises it to
// int16 for use with the given shift. The taps are scaled so the DC gain is
// gain.
func DesignLowPass(sampleRate, cutoff, transition, gain float64, shift uint) ([]int16, error) {
	if cutoff <= 0 || cutoff >= sampleRate/2 {
		return nil, fmt.Errorf("fir: cutoff %.1f Hz outside (0, %.1f)", cutoff, sampleRate/2)
	}
	if transition <= 0 {
		return nil, fmt.Errorf("fir: transition width must be positive")
	}

	taps := segdsp.MakeLowPass(gain, sampleRate, cutoff, transition)
	if len(taps) == 0 {
		return nil, ErrNoTaps
	}

	scale := float64(int64(1) << shift)
	out := make([]int16, len(taps))
	for i, t := range taps {
		v := math.Round(float64(t) * scale)
		if v > math.MaxInt16 || v < math.MinInt16 {
			return nil, fmt.Errorf("fir: tap %d (%f) overflows int16 at shift %d", i, t, shift)
		}
		out[i] = int16(v)
	}
	return out, nil
}
