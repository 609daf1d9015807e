package source

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jrwynneiii/wxfsk/config"
)

// Raw reads headerless 16 bit PCM from a file, or stdin when the path is "-".
type Raw struct {
	conf   config.SourceConf
	r      io.Reader
	closer io.Closer
	order  binary.ByteOrder
	bytes  []byte
}

func OpenRaw(conf config.SourceConf) (*Raw, error) {
	if conf.Path == "" || conf.Path == "-" {
		return NewRaw(os.Stdin, conf), nil
	}
	f, err := os.Open(conf.Path)
	if err != nil {
		return nil, fmt.Errorf("raw source: %w", err)
	}
	r := NewRaw(f, conf)
	r.closer = f
	return r, nil
}

func NewRaw(r io.Reader, conf config.SourceConf) *Raw {
	var order binary.ByteOrder = binary.LittleEndian
	if conf.ByteOrder == "big" {
		order = binary.BigEndian
	}
	return &Raw{conf: conf, r: r, order: order}
}

// ApplyGain shifts a sample left (or right for negative shifts). Left shifts
// wrap at 16 bits.
func ApplyGain(s int16, shift int) int16 {
	switch {
	case shift > 0:
		return int16(int32(s) << shift)
	case shift < 0:
		return s >> -shift
	}
	return s
}

func (r *Raw) read(buf []int16) (int, error) {
	if cap(r.bytes) < 2*len(buf) {
		r.bytes = make([]byte, 2*len(buf))
	}
	raw := r.bytes[:2*len(buf)]

	m, err := io.ReadFull(r.r, raw)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	n := m / 2
	for i := 0; i < n; i++ {
		buf[i] = ApplyGain(int16(r.order.Uint16(raw[2*i:])), r.conf.GainShift)
	}
	return n, err
}

func (r *Raw) Run(ctx context.Context, deliver DeliverFunc) error {
	return pump(ctx, "raw", r.conf, r.read, deliver)
}

func (r *Raw) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
