// Package pipeline wires a source, the demodulator and the capture sinks
// together for the commands.
package pipeline

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jrwynneiii/wxfsk/capture"
	"github.com/jrwynneiii/wxfsk/config"
	"github.com/jrwynneiii/wxfsk/demod"
	"github.com/jrwynneiii/wxfsk/ring"
	"github.com/jrwynneiii/wxfsk/source"
)

var ErrOutput = errors.New("unknown output format")

const drainPoll = 10 * time.Millisecond

type Pipeline struct {
	Demod *demod.Demodulator
	Data  *demod.DataBuffer

	src      source.Source
	blocking bool
	byteLog  *capture.ByteLog
	tap      *capture.WAVTap
}

// New builds the demodulator over src. Decoded bytes go to the data buffer,
// the byte log when configured, and every extra sink. src is closed when New
// fails.
func New(conf config.Config, src source.Source, extra ...demod.ByteSink) (*Pipeline, error) {
	data, err := demod.NewDataBuffer(conf.Demod.DataBuffer)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("data buffer: %w", err)
	}
	p := &Pipeline{Data: data, src: src}
	// files can be read faster than real time, so they wait for room
	p.blocking = (conf.Source.Kind == "wav" || conf.Source.Kind == "raw") && !conf.Source.Realtime

	sinks := append([]demod.ByteSink{data}, extra...)
	if conf.Capture.ByteLog != "" {
		if p.byteLog, err = capture.NewByteLog(conf.Capture.ByteLog); err != nil {
			p.Close()
			return nil, err
		}
		sinks = append(sinks, p.byteLog)
	}

	if p.Demod, err = demod.New(conf.Demod, demod.MultiSink(sinks...)); err != nil {
		p.Close()
		return nil, err
	}

	if conf.Capture.WAVTap != "" {
		if p.tap, err = capture.NewWAVTap(conf.Capture.WAVTap, conf.Demod.SampleRate); err != nil {
			p.Close()
			return nil, err
		}
		p.Demod.SetSampleTap(p.tap)
	}
	return p, nil
}

// Run starts the demodulator and feeds it from the source until the input
// ends or ctx is cancelled. At the end of input it waits for the queued
// samples to be demodulated. The data buffer is closed on return so a
// consumer sees ErrClosed after the last byte.
func (p *Pipeline) Run(ctx context.Context) error {
	p.Demod.Start()
	defer p.Data.Close()
	defer p.Demod.Stop()

	deliver := source.DeliverFunc(p.Demod.Deliver)
	if p.blocking {
		deliver = func(samples []int16) error {
			return p.Demod.DeliverWait(ctx, samples)
		}
	}
	if err := p.src.Run(ctx, deliver); err != nil {
		return err
	}
	return p.drain(ctx)
}

func (p *Pipeline) drain(ctx context.Context) error {
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()
	for {
		s := p.Demod.Stats()
		if s.SamplesProcessed >= s.SamplesIn {
			log.Infof("[pipeline] Done: %d samples, %d locks, %d bytes", s.SamplesIn, s.Locks, s.Bytes)
			return nil
		}
		select {
		case <-ctx.Done():
			return source.Done(ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close stops the demodulator, then closes the captures and the source.
func (p *Pipeline) Close() error {
	var errs []error
	if p.Demod != nil {
		p.Demod.Stop()
	}
	if p.tap != nil {
		errs = append(errs, p.tap.Close())
	}
	if p.byteLog != nil {
		errs = append(errs, p.byteLog.Close())
	}
	if p.src != nil {
		errs = append(errs, p.src.Close())
	}
	return errors.Join(errs...)
}

// WriteBytes copies bytes from data to w until data is closed. "hex" writes a
// hexdump -C style listing, "raw" the bytes themselves.
func WriteBytes(data *demod.DataBuffer, w io.Writer, format string) error {
	var out io.Writer
	var dumper io.WriteCloser
	switch format {
	case "raw":
		out = w
	case "hex":
		dumper = hex.Dumper(w)
		out = dumper
	default:
		return fmt.Errorf("%w: %q", ErrOutput, format)
	}

	buf := []byte{0}
	for {
		b, err := data.Get()
		if errors.Is(err, ring.ErrClosed) {
			break
		}
		if err != nil {
			return err
		}
		buf[0] = b
		if _, err := out.Write(buf); err != nil {
			return err
		}
	}
	if dumper != nil {
		return dumper.Close()
	}
	return nil
}
