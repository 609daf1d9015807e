package fm

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/jrwynneiii/wxfsk/config"
	"github.com/jrwynneiii/wxfsk/dsp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// modulate produces n IQ samples at rate whose instantaneous frequency is
// freq(t) Hz.
func modulate(n int, rate float64, freq func(t float64) float64) []complex64 {
	out := make([]complex64, n)
	var ph float64
	for i := range out {
		ph += 2 * math.Pi * freq(float64(i)/rate) / rate
		out[i] = complex64(cmplx.Rect(0.3, ph))
	}
	return out
}

func run(t *testing.T, r *Receiver, iq []complex64, chunk int) []int16 {
	t.Helper()
	var out []int16
	for len(iq) > 0 {
		n := min(chunk, len(iq))
		out = append(out, r.Work(iq[:n])...)
		iq = iq[n:]
	}
	return out
}

func TestCarrierOffset(t *testing.T) {
	conf := config.Default()
	r, err := New(conf.Radio, conf.AGC)
	require.NoError(t, err)

	iq := modulate(240000/4, conf.Radio.SampleRate, func(float64) float64 { return 2000 })
	audio := run(t, r, iq, 16384)
	require.InDelta(t, len(iq)/conf.Radio.Decimation, len(audio), 10)

	want := FullScale * 2000 / conf.Radio.Deviation
	for _, v := range audio[len(audio)-500:] {
		require.InDelta(t, want, float64(v), 20)
	}

	r, err = New(conf.Radio, conf.AGC)
	require.NoError(t, err)
	audio = run(t, r, modulate(240000/4, conf.Radio.SampleRate, func(float64) float64 { return -2000 }), 16384)
	assert.InDelta(t, -want, float64(audio[len(audio)-1]), 20)
}

func TestToneRecovered(t *testing.T) {
	conf := config.Default()
	r, err := New(conf.Radio, conf.AGC)
	require.NoError(t, err)

	iq := modulate(240000/2, conf.Radio.SampleRate, func(t float64) float64 {
		return 3000 * math.Sin(2*math.Pi*1000*t)
	})
	audio := run(t, r, iq, 4096)

	spectrum := dsp.NewSpectrum(1024, conf.Radio.AudioRate())
	power := spectrum.PowerDB(audio[len(audio)-1024:])
	tone := spectrum.ToneDB(power, 1000)
	assert.Greater(t, tone, spectrum.ToneDB(power, 3000)+30)
	assert.Greater(t, tone, spectrum.ToneDB(power, 5000)+30)
}

func TestWorkEmpty(t *testing.T) {
	conf := config.Default()
	r, err := New(conf.Radio, conf.AGC)
	require.NoError(t, err)
	assert.Empty(t, r.Work(nil))
	// fewer samples than one decimated output
	assert.Empty(t, r.Work(make([]complex64, 3)))
}

func TestNewRejects(t *testing.T) {
	conf := config.Default()
	conf.Radio.Bandwidth = 30000
	_, err := New(conf.Radio, conf.AGC)
	assert.ErrorIs(t, err, ErrRate)

	conf = config.Default()
	conf.Radio.Decimation = 0
	_, err = New(conf.Radio, conf.AGC)
	assert.ErrorIs(t, err, ErrRate)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, int16(math.MaxInt16), clamp16(1e6))
	assert.Equal(t, int16(math.MinInt16), clamp16(-1e6))
	assert.Equal(t, int16(-3), clamp16(-2.6))
}
