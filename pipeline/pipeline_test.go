package pipeline

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jrwynneiii/wxfsk/config"
	"github.com/jrwynneiii/wxfsk/demod"
	"github.com/jrwynneiii/wxfsk/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sameHeader = []byte("ZCZC-WXR-RWT-020103+0015-1231709-KEAX/NWS-")

// afskPCM renders data LSB first as 520.83 baud AFSK at 24 kHz, little
// endian 16 bit.
func afskPCM(data []byte) []byte {
	const rate, baud = 24000.0, 520.8333333
	var bits []bool
	for _, b := range data {
		for i := 0; i < 8; i++ {
			bits = append(bits, b>>i&1 == 1)
		}
	}
	spb := rate / baud
	n := int(float64(len(bits)) * spb)

	out := make([]byte, 2*2000, 2*(2000+n+1000))
	var ph float64
	for i := 0; i < n; i++ {
		f := 1562.5
		if bits[int(float64(i)/spb)] {
			f = 2083.3333333
		}
		ph += 2 * math.Pi * f / rate
		out = binary.LittleEndian.AppendUint16(out, uint16(int16(math.Round(12000*math.Sin(ph)))))
	}
	return append(out, make([]byte, 2*1000)...)
}

func rawConf() config.Config {
	conf := config.Default()
	conf.Source.Kind = "raw"
	return conf
}

func rawSource(conf config.Config, pcm []byte) source.Source {
	return source.NewRaw(bytes.NewReader(pcm), conf.Source)
}

func runCollect(t *testing.T, p *Pipeline, format string) string {
	t.Helper()
	var out bytes.Buffer
	var wg sync.WaitGroup
	var werr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		werr = WriteBytes(p.Data, &out, format)
	}()
	require.NoError(t, p.Run(context.Background()))
	wg.Wait()
	require.NoError(t, werr)
	return out.String()
}

func TestDecodeRawFile(t *testing.T) {
	conf := rawConf()
	pcm := afskPCM(append([]byte{0xAB, 0xAB, 0xAB, 0xAB}, sameHeader...))

	p, err := New(conf, rawSource(conf, pcm))
	require.NoError(t, err)
	defer p.Close()

	got := runCollect(t, p, "raw")
	assert.Equal(t, "\xab\xab"+string(sameHeader), got[:2+len(sameHeader)])

	stats := p.Demod.Stats()
	// the default sample buffer is far smaller than the file
	assert.Zero(t, stats.SampleOverflows)
	assert.Equal(t, uint64(len(pcm)/2/conf.Demod.InputDecimation), stats.SamplesIn)
	assert.Equal(t, uint64(1), stats.Locks)
}

func TestDecodeHexOutput(t *testing.T) {
	conf := rawConf()
	p, err := New(conf, rawSource(conf, afskPCM(append([]byte{0xAB, 0xAB, 0xAB, 0xAB}, sameHeader...))))
	require.NoError(t, err)
	defer p.Close()

	got := runCollect(t, p, "hex")
	lines := strings.Split(got, "\n")
	assert.True(t, strings.HasPrefix(lines[0], "00000000  ab ab 5a 43 5a 43 2d 57"), lines[0])
	assert.True(t, strings.HasSuffix(lines[0], "|..ZCZC-WXR-RWT-0|"), lines[0])
}

func TestCaptures(t *testing.T) {
	dir := t.TempDir()
	conf := rawConf()
	conf.Capture.ByteLog = filepath.Join(dir, "bytes", "%Y.bin")
	conf.Capture.WAVTap = filepath.Join(dir, "tap.wav")

	var extra bytes.Buffer
	p, err := New(conf, rawSource(conf, afskPCM(append([]byte{0xAB, 0xAB, 0xAB, 0xAB}, sameHeader...))),
		demod.ByteSinkFunc(func(b byte) error { return extra.WriteByte(b) }))
	require.NoError(t, err)

	got := runCollect(t, p, "raw")
	require.NoError(t, p.Close())
	assert.Equal(t, got, extra.String())

	logs, err := filepath.Glob(filepath.Join(dir, "bytes", "*.bin"))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	logged, err := os.ReadFile(logs[0])
	require.NoError(t, err)
	assert.Equal(t, got, string(logged))

	info, err := os.Stat(conf.Capture.WAVTap)
	require.NoError(t, err)
	assert.Equal(t, int64(44+2*p.Demod.Stats().SamplesIn), info.Size())
}

func TestRunCancelled(t *testing.T) {
	conf := rawConf()
	// a reader that never ends
	p, err := New(conf, source.NewRaw(zeros{}, conf.Source))
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	cancel()
	require.NoError(t, <-done)

	_, err = p.Data.Get()
	assert.Error(t, err)
}

func TestNewErrors(t *testing.T) {
	conf := rawConf()
	conf.Demod.DataBuffer = 100
	_, err := New(conf, rawSource(conf, nil))
	assert.Error(t, err)

	conf = rawConf()
	conf.Demod.FIRFilter = "boxcar"
	_, err = New(conf, rawSource(conf, nil))
	assert.ErrorIs(t, err, config.ErrInvalid)

	conf = rawConf()
	conf.Capture.WAVTap = filepath.Join(t.TempDir(), "missing", "tap.wav")
	_, err = New(conf, rawSource(conf, nil))
	assert.Error(t, err)
}

func TestWriteBytesUnknownFormat(t *testing.T) {
	data, err := demod.NewDataBuffer(8)
	require.NoError(t, err)
	assert.ErrorIs(t, WriteBytes(data, io.Discard, "base64"), ErrOutput)
}

type zeros struct{}

func (zeros) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}
