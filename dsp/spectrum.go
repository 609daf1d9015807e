package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// Spectrum computes Hann windowed power spectra of audio blocks. It is used
// by the monitor, never by the demodulation path.
type Spectrum struct {
	fft        *fourier.FFT
	sampleRate float64
	seq        []float64
	coeff      []complex128
}

func NewSpectrum(size int, sampleRate float64) *Spectrum {
	return &Spectrum{
		fft:        fourier.NewFFT(size),
		sampleRate: sampleRate,
		seq:        make([]float64, size),
		coeff:      make([]complex128, size/2+1),
	}
}

func (s *Spectrum) Size() int {
	return len(s.seq)
}

// PowerDB returns size/2+1 bins of power in dB relative to a full scale sine.
// Short input is zero padded, extra input is ignored.
func (s *Spectrum) PowerDB(samples []int16) []float64 {
	clear(s.seq)
	for i := 0; i < len(s.seq) && i < len(samples); i++ {
		s.seq[i] = float64(samples[i]) / FullScale
	}
	window.Hann(s.seq)
	s.coeff = s.fft.Coefficients(s.coeff, s.seq)

	// a full scale sine through a Hann window peaks at n/4
	ref := float64(len(s.seq)) / 4
	out := make([]float64, len(s.coeff))
	for i, c := range s.coeff {
		p := cmplx.Abs(c) / ref
		out[i] = 20 * math.Log10(p+1e-12)
	}
	return out
}

// BinFrequency is the centre frequency of bin i in Hz.
func (s *Spectrum) BinFrequency(i int) float64 {
	return s.fft.Freq(i) * s.sampleRate
}

// Bin returns the bin nearest to freq.
func (s *Spectrum) Bin(freq float64) int {
	i := int(math.Round(freq * float64(len(s.seq)) / s.sampleRate))
	return max(0, min(i, len(s.seq)/2))
}

// ToneDB returns the power at freq from a spectrum produced by PowerDB.
func (s *Spectrum) ToneDB(power []float64, freq float64) float64 {
	i := s.Bin(freq)
	if i >= len(power) {
		return math.Inf(-1)
	}
	return power[i]
}
