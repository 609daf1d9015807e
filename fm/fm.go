package fm

import (
	"errors"
	"fmt"
	"math"

	"github.com/charmbracelet/log"
	"github.com/jrwynneiii/wxfsk/config"
	SatHelper "github.com/opensatelliteproject/libsathelper"
	"github.com/racerxdl/segdsp/dsp"
)

var ErrRate = errors.New("radio rate does not decimate to an audio rate")

// FullScale is the detector output for a carrier offset of one deviation.
const FullScale = 16384

// Receiver turns narrowband FM IQ into 16 bit audio: a decimating lowpass to
// the channel, AGC, then a quadrature detector.
type Receiver struct {
	decimFactor int
	decimator   *dsp.FirFilter
	agc         SatHelper.AGC
	scale       float64

	last    complex64
	pending []complex64
	agced   []complex64
	audio   []int16
}

func New(conf config.RadioConf, agc config.AGCConf) (*Receiver, error) {
	if conf.Decimation < 1 || conf.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: %.0f / %d", ErrRate, conf.SampleRate, conf.Decimation)
	}
	audioRate := conf.AudioRate()
	cutoff := conf.Bandwidth / 2
	transition := min(cutoff/2, audioRate/2-cutoff)
	if transition <= 0 {
		return nil, fmt.Errorf("%w: bandwidth %.0f Hz does not fit in %.0f Hz audio", ErrRate, conf.Bandwidth, audioRate)
	}

	r := &Receiver{
		decimFactor: conf.Decimation,
		agc:         SatHelper.NewAGC(agc.Rate, agc.Reference, agc.Gain, agc.MaxGain),
		// radians per sample at full deviation
		scale: FullScale / (2 * math.Pi * conf.Deviation / audioRate),
		last:  1,
	}
	if conf.Decimation > 1 {
		r.decimator = dsp.MakeDecimationFirFilter(conf.Decimation, dsp.MakeLowPass(1, conf.SampleRate, cutoff, transition))
	}
	log.Debugf("[radio] FM receiver: %.0f Hz IQ / %d = %.0f Hz audio, channel %.0f Hz, deviation %.0f Hz",
		conf.SampleRate, conf.Decimation, audioRate, conf.Bandwidth, conf.Deviation)
	return r, nil
}

// Work consumes IQ samples and returns audio. The returned slice is reused by
// the next call.
func (r *Receiver) Work(iq []complex64) []int16 {
	r.audio = r.audio[:0]
	if r.decimator != nil {
		// only whole decimation groups go through the filter
		r.pending = append(r.pending, iq...)
		whole := len(r.pending) - len(r.pending)%r.decimFactor
		if whole == 0 {
			return r.audio
		}
		iq = r.decimator.Work(r.pending[:whole])
		r.pending = append(r.pending[:0], r.pending[whole:]...)
	}
	n := len(iq)
	if n == 0 {
		return r.audio
	}

	if cap(r.agced) < n {
		r.agced = make([]complex64, n)
	}
	r.agced = r.agced[:n]
	r.agc.Work(&iq[0], &r.agced[0], n)

	// each sample against the one before, the first against the previous call
	prev := append([]complex64{r.last}, r.agced[:n-1]...)
	diff := dsp.MultiplyConjugate(r.agced, prev, n)
	r.last = r.agced[n-1]

	for _, d := range diff {
		v := r.scale * math.Atan2(float64(imag(d)), float64(real(d)))
		r.audio = append(r.audio, clamp16(v))
	}
	return r.audio
}

func clamp16(v float64) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(math.Round(v))
}
