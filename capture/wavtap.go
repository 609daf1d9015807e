package capture

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVTap records the demodulator input as a 16 bit mono WAV file. It is
// written from the demodulator goroutine and must be closed after the
// demodulator has stopped.
type WAVTap struct {
	path    string
	f       *os.File
	enc     *wav.Encoder
	buf     *audio.IntBuffer
	samples int
}

func NewWAVTap(path string, rate int) (*WAVTap, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("wav tap: %w", err)
	}
	log.Infof("[capture] Recording samples to %s at %d Hz", path, rate)
	return &WAVTap{
		path: path,
		f:    f,
		enc:  wav.NewEncoder(f, rate, 16, 1, 1),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
			SourceBitDepth: 16,
		},
	}, nil
}

func (t *WAVTap) WriteSamples(samples []int16) error {
	t.buf.Data = t.buf.Data[:0]
	for _, s := range samples {
		t.buf.Data = append(t.buf.Data, int(s))
	}
	if err := t.enc.Write(t.buf); err != nil {
		return fmt.Errorf("wav tap %s: %w", t.path, err)
	}
	t.samples += len(samples)
	return nil
}

func (t *WAVTap) Samples() int {
	return t.samples
}

// Close finishes the WAV header and closes the file.
func (t *WAVTap) Close() error {
	if t.samples == 0 {
		// headers are only written with the first buffer
		if err := t.WriteSamples(nil); err != nil {
			t.f.Close()
			return err
		}
	}
	err := t.enc.Close()
	if cerr := t.f.Close(); err == nil {
		err = cerr
	}
	log.Debugf("[capture] Wrote %d samples to %s", t.samples, t.path)
	return err
}
