package source

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/jrwynneiii/wxfsk/config"
)

// WAV reads PCM WAV files. Only the first channel is used and every bit depth
// is scaled to 16 bits.
type WAV struct {
	conf     config.SourceConf
	closer   io.Closer
	dec      *wav.Decoder
	buf      *audio.IntBuffer
	channels int
	depth    int
}

func OpenWAV(conf config.SourceConf) (*WAV, error) {
	if conf.Path == "" || conf.Path == "-" {
		return nil, fmt.Errorf("wav source needs a file, use the raw source for pipes")
	}
	f, err := os.Open(conf.Path)
	if err != nil {
		return nil, fmt.Errorf("wav source: %w", err)
	}
	w, err := NewWAV(f, conf)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

func NewWAV(r io.ReadSeeker, conf config.SourceConf) (*WAV, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid WAV file", ErrFormat)
	}
	if int(dec.SampleRate) != conf.SampleRate {
		return nil, fmt.Errorf("%w: WAV is %d Hz, source.sample_rate is %d", ErrFormat, dec.SampleRate, conf.SampleRate)
	}
	switch dec.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d bit WAV", ErrFormat, dec.BitDepth)
	}

	channels := int(dec.NumChans)
	log.Debugf("[source] WAV: %d Hz, %d bit, %d channels", dec.SampleRate, dec.BitDepth, channels)
	return &WAV{
		conf:     conf,
		dec:      dec,
		channels: channels,
		depth:    int(dec.BitDepth),
		buf: &audio.IntBuffer{
			Format: dec.Format(),
			Data:   make([]int, conf.Chunk*conf.Decimation*channels),
		},
	}, nil
}

// to16 scales a decoded sample to signed 16 bits. 8 bit WAV is unsigned.
func to16(v, depth int) int16 {
	switch depth {
	case 8:
		return int16((v - 128) << 8)
	case 24:
		return int16(v >> 8)
	case 32:
		return int16(v >> 16)
	}
	return int16(v)
}

func (w *WAV) read(buf []int16) (int, error) {
	data := w.buf.Data[:min(len(w.buf.Data), len(buf)*w.channels)]
	w.buf.Data = data
	n, err := w.dec.PCMBuffer(w.buf)
	w.buf.Data = data[:cap(data)]
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}

	frames := n / w.channels
	for i := 0; i < frames; i++ {
		buf[i] = to16(data[i*w.channels], w.depth)
	}
	return frames, nil
}

func (w *WAV) Run(ctx context.Context, deliver DeliverFunc) error {
	return pump(ctx, "wav", w.conf, w.read, deliver)
}

func (w *WAV) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}
