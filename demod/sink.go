package demod

import (
	"context"
	"errors"

	"github.com/jrwynneiii/wxfsk/ring"
)

// NoByte pre-fills the output buffer so a read of a never written slot shows
// up when debugging.
const NoByte byte = 0xED

// ByteSink receives every byte the assembler completes. It is called from the
// demodulator goroutine and must not block for long.
type ByteSink interface {
	ReceiveByte(b byte) error
}

type ByteSinkFunc func(b byte) error

func (f ByteSinkFunc) ReceiveByte(b byte) error {
	return f(b)
}

type multiSink []ByteSink

// MultiSink hands each byte to every sink in order and joins their errors.
func MultiSink(sinks ...ByteSink) ByteSink {
	var ms multiSink
	for _, s := range sinks {
		if s != nil {
			ms = append(ms, s)
		}
	}
	return ms
}

func (ms multiSink) ReceiveByte(b byte) error {
	var errs []error
	for _, s := range ms {
		if err := s.ReceiveByte(b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DataBuffer is the output data buffer: a byte ring the demodulator writes
// through ReceiveByte and a polling consumer drains with Get.
type DataBuffer struct {
	ring *ring.Ring[byte]
}

func NewDataBuffer(capacity int) (*DataBuffer, error) {
	r, err := ring.NewFilled(capacity, NoByte)
	if err != nil {
		return nil, err
	}
	return &DataBuffer{ring: r}, nil
}

func (b *DataBuffer) ReceiveByte(v byte) error {
	return b.ring.Put(v)
}

// Get blocks until a byte is available or the buffer is closed.
func (b *DataBuffer) Get() (byte, error) {
	return b.ring.Get()
}

func (b *DataBuffer) GetContext(ctx context.Context) (byte, error) {
	return b.ring.GetContext(ctx)
}

func (b *DataBuffer) Len() int {
	return b.ring.Len()
}

func (b *DataBuffer) Overflows() uint64 {
	return b.ring.Overflows()
}

// Close wakes a consumer parked in Get.
func (b *DataBuffer) Close() {
	b.ring.Close()
}
