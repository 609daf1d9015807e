package dsp

const (
	DefaultSlicerDecay = 0.99985
	DefaultSlicerGain  = 0.00015
)

// Slicer follows the slow DC drift of the discriminator output and slices
// against it. The bias is held as int16 and each smoothing term is truncated
// before the sum, so the tracking matches the fixed point receiver.
type Slicer struct {
	decay float64
	gain  float64
	bias  int16
}

func NewSlicer(decay, gain float64) *Slicer {
	return &Slicer{decay: decay, gain: gain}
}

// Slice updates the bias and returns 0 when the corrected phase is positive,
// 1 otherwise.
func (s *Slicer) Slice(phase int32) uint8 {
	s.bias = int16(int32(float64(s.bias)*s.decay) + int32(float64(phase)*s.gain))
	if phase-int32(s.bias) > 0 {
		return 0
	}
	return 1
}

func (s *Slicer) Bias() int16 {
	return s.bias
}
