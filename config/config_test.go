package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultIsValid(t *testing.T) {
	conf := Default()
	require.NoError(t, conf.Validate())

	assert.Equal(t, 23, conf.Demod.BitPeriod)
	assert.Equal(t, uint8(0xAB), conf.Demod.SyncByte)
	assert.Equal(t, 4096, conf.Demod.SampleBuffer)
	assert.Equal(t, 128, conf.Demod.DataBuffer)
}

func TestDemodValidation(t *testing.T) {
	for name, mutate := range map[string]func(*DemodConf){
		"odd sample buffer":  func(c *DemodConf) { c.SampleBuffer = 4000 },
		"odd data buffer":    func(c *DemodConf) { c.DataBuffer = 100 },
		"lag too long":       func(c *DemodConf) { c.DiscrimLag = 64 },
		"odd delay line":     func(c *DemodConf) { c.DiscrimLength = 48 },
		"short bit period":   func(c *DemodConf) { c.BitPeriod = 2 },
		"debounce too deep":  func(c *DemodConf) { c.Debounce = 23 },
		"no debounce":        func(c *DemodConf) { c.Debounce = 0 },
		"unknown filter":     func(c *DemodConf) { c.FIRFilter = "boxcar" },
		"osc above nyquist":  func(c *DemodConf) { c.OscFrequency = 7000 },
		"odd osc table":      func(c *DemodConf) { c.OscTableSize = 2000 },
		"odd decimation":     func(c *DemodConf) { c.InputDecimation = 3 },
		"no sync repeats":    func(c *DemodConf) { c.SyncRepeats = 0 },
		"negative idle bits": func(c *DemodConf) { c.IdleBits = -1 },
	} {
		t.Run(name, func(t *testing.T) {
			conf := Default().Demod
			mutate(&conf)
			assert.ErrorIs(t, conf.Validate(), ErrInvalid)
		})
	}
}

func TestRadioOnlyValidatedForRadioSource(t *testing.T) {
	conf := Default()
	conf.Radio.Driver = ""
	assert.NoError(t, conf.Validate())

	conf.Source.Kind = "radio"
	assert.ErrorIs(t, conf.Validate(), ErrInvalid)
}

func TestRateMismatch(t *testing.T) {
	conf := Default()
	conf.Source.SampleRate = 48000
	assert.ErrorIs(t, conf.Validate(), ErrInvalid)

	conf.Source.Decimation = 2
	assert.NoError(t, conf.Validate())

	conf = Default()
	conf.Source.Kind = "radio"
	require.NoError(t, conf.Validate())
	conf.Radio.Decimation = 5
	assert.ErrorIs(t, conf.Validate(), ErrInvalid)
}

func TestSourceValidation(t *testing.T) {
	conf := Default()
	conf.Source.ByteOrder = "middle"
	assert.ErrorIs(t, conf.Validate(), ErrInvalid)

	conf = Default()
	conf.Source.Kind = "tcp"
	assert.ErrorIs(t, conf.Validate(), ErrInvalid)
}

const testHCL = `
demod {
  bit_period    = 24
  swallow_count = 11
  fir_filter    = "kaiser17"
  trace         = ["sync", "byteout"]
}

source {
  kind       = "raw"
  path       = "/tmp/capture.raw"
  byte_order = "big"
  gain_shift = 2
}
`

func TestLoadHCL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.hcl")
	require.NoError(t, os.WriteFile(path, []byte(testHCL), 0o644))

	conf, k, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, conf.Validate())

	assert.Equal(t, 24, conf.Demod.BitPeriod)
	assert.Equal(t, 11, conf.Demod.SwallowCount)
	assert.Equal(t, "kaiser17", conf.Demod.FIRFilter)
	assert.Equal(t, []string{"sync", "byteout"}, conf.Demod.Trace)
	assert.Equal(t, "raw", conf.Source.Kind)
	assert.Equal(t, "big", conf.Source.ByteOrder)
	assert.Equal(t, 2, conf.Source.GainShift)

	// untouched keys keep their defaults
	assert.Equal(t, 12, conf.Demod.DiscrimLag)
	assert.Equal(t, 720, conf.Source.Chunk)

	assert.True(t, k.Exists("demod.bit_period"))
	assert.False(t, k.Exists("demod.discrim_lag"))
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.hcl")
	require.NoError(t, os.WriteFile(path, []byte(testHCL), 0o644))

	t.Setenv("WXFSK_DEMOD_BIT_PERIOD", "25")
	t.Setenv("WXFSK_DEMOD_IDLE_BITS", "64")
	t.Setenv("WXFSK_LOGGING_LEVEL", "debug")

	conf, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25, conf.Demod.BitPeriod)
	assert.Equal(t, 64, conf.Demod.IdleBits)
	assert.Equal(t, "debug", conf.Logging.Level)
	assert.Equal(t, 11, conf.Demod.SwallowCount)
}

func TestLoadWithoutFile(t *testing.T) {
	conf, _, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Demod, conf.Demod)
}

func TestLoadMissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.hcl"))
	assert.Error(t, err)
}

func TestFindConfigPath(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "config.hcl")
	require.NoError(t, os.WriteFile(present, nil, 0o644))

	assert.Equal(t, present, FindConfigPath([]string{filepath.Join(dir, "missing.hcl"), present}))
	assert.Equal(t, "", FindConfigPath([]string{filepath.Join(dir, "missing.hcl")}))
}

func TestYAMLDump(t *testing.T) {
	out, err := Default().YAML()
	require.NoError(t, err)

	var back map[string]map[string]any
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, 23, back["demod"]["bit_period"])
	assert.Equal(t, 171, back["demod"]["sync_byte"])
	assert.Equal(t, "hann45", back["demod"]["fir_filter"])
}
