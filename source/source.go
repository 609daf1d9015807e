package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jrwynneiii/wxfsk/config"
	"github.com/jrwynneiii/wxfsk/demod"
	"github.com/jrwynneiii/wxfsk/dsp"
	"github.com/jrwynneiii/wxfsk/ring"
)

var (
	ErrFormat = errors.New("unsupported sample format")
	ErrKind   = errors.New("unknown source kind")
)

// DeliverFunc is where a source hands its samples, normally
// (*demod.Demodulator).Deliver.
type DeliverFunc func(samples []int16) error

// Source produces 16 bit mono samples at the demodulator input rate.
type Source interface {
	// Run reads until the input ends, ctx is cancelled or the demodulator
	// stops. Neither of the last two is an error.
	Run(ctx context.Context, deliver DeliverFunc) error
	Close() error
}

// New opens the file or sound card source named by conf.Kind. The radio is
// built by the radio package.
func New(conf config.SourceConf) (Source, error) {
	switch conf.Kind {
	case "wav":
		return OpenWAV(conf)
	case "raw":
		return OpenRaw(conf)
	case "audio":
		return OpenAudio(conf)
	}
	return nil, fmt.Errorf("%w: %q", ErrKind, conf.Kind)
}

// Forwarder wraps a DeliverFunc. Overflow is logged and otherwise ignored so
// acquisition keeps running while the demodulator catches up.
type Forwarder struct {
	name      string
	deliver   DeliverFunc
	overflows uint64
}

func NewForwarder(name string, deliver DeliverFunc) *Forwarder {
	return &Forwarder{name: name, deliver: deliver}
}

func (f *Forwarder) Send(samples []int16) error {
	if len(samples) == 0 {
		return nil
	}
	err := f.deliver(samples)
	if err == nil || !errors.Is(err, ring.ErrOverflow) {
		return err
	}
	f.overflows++
	if f.overflows == 1 || f.overflows%100 == 0 {
		log.Warnf("[source] %s: %v (%d times)", f.name, err, f.overflows)
	}
	return nil
}

func (f *Forwarder) Overflows() uint64 {
	return f.overflows
}

// Done maps the errors that end a Run normally to nil.
func Done(err error) error {
	if errors.Is(err, demod.ErrStopped) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

type readFunc func(buf []int16) (int, error)

// pump moves conf.Chunk samples per read from read to deliver, decimating and
// optionally pacing on the way.
func pump(ctx context.Context, name string, conf config.SourceConf, read readFunc, deliver DeliverFunc) error {
	decim, err := dsp.NewDecimator(conf.Decimation)
	if err != nil {
		return err
	}

	var pacer *Pacer
	if conf.Realtime {
		pacer = NewPacer(time.Duration(conf.IntervalMs) * time.Millisecond)
		defer pacer.Stop()
	}

	fwd := NewForwarder(name, deliver)
	buf := make([]int16, conf.Chunk*conf.Decimation)
	var out []int16
	var total int

	log.Debugf("[source] Reading %s: %d samples per chunk, decimation %d, realtime %v", name, len(buf), conf.Decimation, conf.Realtime)
	for {
		if err := ctx.Err(); err != nil {
			return Done(err)
		}

		n, rerr := read(buf)
		if n > 0 {
			total += n
			out = decim.Process(out[:0], buf[:n])
			if err := fwd.Send(out); err != nil {
				return Done(err)
			}
		}
		if errors.Is(rerr, io.EOF) {
			log.Infof("[source] %s: end of input after %d samples", name, total)
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("%s: %w", name, rerr)
		}

		if err := pacer.Wait(ctx); err != nil {
			return Done(err)
		}
	}
}
