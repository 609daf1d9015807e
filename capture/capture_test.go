package capture

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/jrwynneiii/wxfsk/demod"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteLogRotates(t *testing.T) {
	dir := t.TempDir()
	l, err := NewByteLog(filepath.Join(dir, "logs", "%Y-%m-%d.bin"))
	require.NoError(t, err)
	defer l.Close()

	now := time.Date(2024, 3, 9, 23, 59, 58, 0, time.UTC)
	l.now = func() time.Time { return now }

	for _, b := range []byte("ZCZC") {
		require.NoError(t, l.ReceiveByte(b))
	}
	first := l.Name()
	assert.Equal(t, filepath.Join(dir, "logs", "2024-03-09.bin"), first)

	now = now.Add(time.Minute)
	for _, b := range []byte("NNNN") {
		require.NoError(t, l.ReceiveByte(b))
	}
	assert.Equal(t, filepath.Join(dir, "logs", "2024-03-10.bin"), l.Name())
	assert.Equal(t, int64(8), l.Written())
	require.NoError(t, l.Close())

	got, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, "ZCZC", string(got))
	got, err = os.ReadFile(l.Name())
	require.NoError(t, err)
	assert.Equal(t, "NNNN", string(got))
}

func TestByteLogAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bytes.bin")
	for i := 0; i < 2; i++ {
		l, err := NewByteLog(path)
		require.NoError(t, err)
		require.NoError(t, l.ReceiveByte('A'+byte(i)))
		require.NoError(t, l.Close())
	}
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "AB", string(got))
}

func TestByteLogAsSink(t *testing.T) {
	l, err := NewByteLog(filepath.Join(t.TempDir(), "bytes.bin"))
	require.NoError(t, err)
	defer l.Close()

	buf, err := demod.NewDataBuffer(8)
	require.NoError(t, err)
	sink := demod.MultiSink(buf, l)
	require.NoError(t, sink.ReceiveByte(0xAB))

	b, err := buf.Get()
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), b)
	assert.Equal(t, int64(1), l.Written())
}

func TestWAVTapRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tap.wav")
	tap, err := NewWAVTap(path, 12000)
	require.NoError(t, err)

	require.NoError(t, tap.WriteSamples([]int16{1, -1, 32767}))
	require.NoError(t, tap.WriteSamples([]int16{-32768, 0}))
	assert.Equal(t, 5, tap.Samples())
	require.NoError(t, tap.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	assert.Equal(t, uint32(12000), dec.SampleRate)
	assert.Equal(t, uint16(16), dec.BitDepth)
	assert.Equal(t, uint16(1), dec.NumChans)

	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, []int{1, -1, 32767, -32768, 0}, buf.Data)
}

func TestWAVTapEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.wav")
	tap, err := NewWAVTap(path, 12000)
	require.NoError(t, err)
	require.NoError(t, tap.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(44), info.Size())
}
