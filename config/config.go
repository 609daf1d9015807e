package config

import (
	"errors"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Demod   DemodConf   `koanf:"demod" yaml:"demod"`
	Source  SourceConf  `koanf:"source" yaml:"source"`
	Radio   RadioConf   `koanf:"radio" yaml:"radio"`
	AGC     AGCConf     `koanf:"agc" yaml:"agc"`
	Capture CaptureConf `koanf:"capture" yaml:"capture"`
	Tui     TuiConf     `koanf:"tui" yaml:"tui"`
	Logging LoggingConf `koanf:"logging" yaml:"logging"`
}

// DemodConf holds every constant of the demodulator. SampleRate is the rate
// after the input decimation.
type DemodConf struct {
	SampleRate      int      `koanf:"sample_rate" yaml:"sample_rate"`
	InputDecimation int      `koanf:"input_decimation" yaml:"input_decimation"`
	OscTableSize    int      `koanf:"osc_table_size" yaml:"osc_table_size"`
	OscFrequency    float64  `koanf:"osc_frequency" yaml:"osc_frequency"`
	FIRFilter       string   `koanf:"fir_filter" yaml:"fir_filter"`
	FIRCutoff       float64  `koanf:"fir_cutoff" yaml:"fir_cutoff"`
	FIRTransition   float64  `koanf:"fir_transition" yaml:"fir_transition"`
	DiscrimLength   int      `koanf:"discrim_length" yaml:"discrim_length"`
	DiscrimLag      int      `koanf:"discrim_lag" yaml:"discrim_lag"`
	DiscrimShift    uint     `koanf:"discrim_shift" yaml:"discrim_shift"`
	SlicerDecay     float64  `koanf:"slicer_decay" yaml:"slicer_decay"`
	SlicerGain      float64  `koanf:"slicer_gain" yaml:"slicer_gain"`
	BitPeriod       int      `koanf:"bit_period" yaml:"bit_period"`
	SwallowCount    int      `koanf:"swallow_count" yaml:"swallow_count"`
	Debounce        int      `koanf:"debounce" yaml:"debounce"`
	SyncByte        uint8    `koanf:"sync_byte" yaml:"sync_byte"`
	SyncRepeats     int      `koanf:"sync_repeats" yaml:"sync_repeats"`
	IdleBits        int      `koanf:"idle_bits" yaml:"idle_bits"`
	SampleBuffer    int      `koanf:"sample_buffer" yaml:"sample_buffer"`
	DataBuffer      int      `koanf:"data_buffer" yaml:"data_buffer"`
	Trace           []string `koanf:"trace" yaml:"trace"`
}

type SourceConf struct {
	Kind       string `koanf:"kind" yaml:"kind"`
	Path       string `koanf:"path" yaml:"path"`
	ByteOrder  string `koanf:"byte_order" yaml:"byte_order"`
	GainShift  int    `koanf:"gain_shift" yaml:"gain_shift"`
	Decimation int    `koanf:"decimation" yaml:"decimation"`
	Chunk      int    `koanf:"chunk" yaml:"chunk"`
	IntervalMs int    `koanf:"interval_ms" yaml:"interval_ms"`
	Realtime   bool   `koanf:"realtime" yaml:"realtime"`
	Device     string `koanf:"device" yaml:"device"`
	SampleRate int    `koanf:"sample_rate" yaml:"sample_rate"`
}

type RadioConf struct {
	Driver      string  `koanf:"driver" yaml:"driver"`
	Address     string  `koanf:"address" yaml:"address"`
	DeviceIndex int     `koanf:"device_index" yaml:"device_index"`
	Gain        int     `koanf:"gain" yaml:"gain"`
	Frequency   float64 `koanf:"frequency" yaml:"frequency"`
	SampleRate  float64 `koanf:"sample_rate" yaml:"sample_rate"`
	Decimation  int     `koanf:"decimation" yaml:"decimation"`
	Bandwidth   float64 `koanf:"bandwidth" yaml:"bandwidth"`
	Deviation   float64 `koanf:"deviation" yaml:"deviation"`
	ChunkSize   uint    `koanf:"chunk_size" yaml:"chunk_size"`
}

type AGCConf struct {
	Rate      float32 `koanf:"rate" yaml:"rate"`
	Reference float32 `koanf:"reference" yaml:"reference"`
	Gain      float32 `koanf:"gain" yaml:"gain"`
	MaxGain   float32 `koanf:"max_gain" yaml:"max_gain"`
}

type CaptureConf struct {
	ByteLog string `koanf:"byte_log" yaml:"byte_log"`
	WAVTap  string `koanf:"wav_tap" yaml:"wav_tap"`
}

type TuiConf struct {
	RefreshMs       int  `koanf:"refresh_ms" yaml:"refresh_ms"`
	FFTSize         int  `koanf:"fft_size" yaml:"fft_size"`
	EnableFFT       bool `koanf:"enable_fft" yaml:"enable_fft"`
	EnableLogOutput bool `koanf:"enable_log_output" yaml:"enable_log_output"`
	HexRows         int  `koanf:"hex_rows" yaml:"hex_rows"`
}

type LoggingConf struct {
	Level string `koanf:"level" yaml:"level"`
}

// Default is the NOAA weather radio setup: 24 kHz audio decimated to 12 kHz,
// 520.83 baud AFSK with a 0xAB preamble.
func Default() Config {
	return Config{
		Demod: DemodConf{
			SampleRate:      12000,
			InputDecimation: 2,
			OscTableSize:    2048,
			OscFrequency:    1822,
			FIRFilter:       "hann45",
			FIRCutoff:       300,
			FIRTransition:   1000,
			DiscrimLength:   64,
			DiscrimLag:      12,
			DiscrimShift:    11,
			SlicerDecay:     0.99985,
			SlicerGain:      0.00015,
			BitPeriod:       23,
			SwallowCount:    23,
			Debounce:        3,
			SyncByte:        0xAB,
			SyncRepeats:     2,
			IdleBits:        0,
			SampleBuffer:    4096,
			DataBuffer:      128,
		},
		Source: SourceConf{
			Kind:       "wav",
			Path:       "-",
			ByteOrder:  "little",
			Decimation: 1,
			Chunk:      720,
			IntervalMs: 30,
			SampleRate: 24000,
		},
		Radio: RadioConf{
			Driver:     "rtlsdr",
			Frequency:  162.55e6,
			SampleRate: 240000,
			Decimation: 10,
			Bandwidth:  12500,
			Deviation:  5000,
			ChunkSize:  16384,
		},
		AGC: AGCConf{
			Rate:      0.01,
			Reference: 0.5,
			Gain:      1,
			MaxGain:   4000,
		},
		Tui: TuiConf{
			RefreshMs:       500,
			FFTSize:         1024,
			EnableFFT:       true,
			EnableLogOutput: true,
			HexRows:         16,
		},
		Logging: LoggingConf{
			Level: "info",
		},
	}
}

func invalid(key string, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalid, key, fmt.Sprintf(format, args...))
}

func powerOfTwo(v int) bool {
	return v > 0 && v&(v-1) == 0
}

var firFilters = []string{"hann45", "kaiser17", "design"}

func (c DemodConf) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return invalid("demod.sample_rate", "must be positive, got %d", c.SampleRate)
	case !powerOfTwo(c.InputDecimation):
		return invalid("demod.input_decimation", "must be a power of two, got %d", c.InputDecimation)
	case !powerOfTwo(c.OscTableSize) || c.OscTableSize < 4:
		return invalid("demod.osc_table_size", "must be a power of two >= 4, got %d", c.OscTableSize)
	case c.OscFrequency <= 0 || c.OscFrequency >= float64(c.SampleRate)/2:
		return invalid("demod.osc_frequency", "%.1f Hz outside (0, %d)", c.OscFrequency, c.SampleRate/2)
	case !slices.Contains(firFilters, c.FIRFilter):
		return invalid("demod.fir_filter", "%q is not one of %v", c.FIRFilter, firFilters)
	case c.FIRFilter == "design" && (c.FIRCutoff <= 0 || c.FIRTransition <= 0):
		return invalid("demod.fir_cutoff", "designed filter needs a cutoff and transition width")
	case !powerOfTwo(c.DiscrimLength) || c.DiscrimLength < 2:
		return invalid("demod.discrim_length", "must be a power of two, got %d", c.DiscrimLength)
	case c.DiscrimLag <= 0 || c.DiscrimLag >= c.DiscrimLength:
		return invalid("demod.discrim_lag", "must be in (0, %d), got %d", c.DiscrimLength, c.DiscrimLag)
	case c.DiscrimShift > 31:
		return invalid("demod.discrim_shift", "must be <= 31, got %d", c.DiscrimShift)
	case c.SlicerDecay <= 0 || c.SlicerDecay > 1:
		return invalid("demod.slicer_decay", "must be in (0, 1], got %f", c.SlicerDecay)
	case c.SlicerGain < 0 || c.SlicerGain >= 1:
		return invalid("demod.slicer_gain", "must be in [0, 1), got %f", c.SlicerGain)
	case c.BitPeriod < 3:
		return invalid("demod.bit_period", "must be >= 3, got %d", c.BitPeriod)
	case c.SwallowCount < 0:
		return invalid("demod.swallow_count", "must not be negative, got %d", c.SwallowCount)
	case c.Debounce < 1 || c.Debounce >= c.BitPeriod:
		return invalid("demod.debounce", "must be in [1, %d), got %d", c.BitPeriod, c.Debounce)
	case c.SyncRepeats < 1:
		return invalid("demod.sync_repeats", "must be >= 1, got %d", c.SyncRepeats)
	case c.IdleBits < 0:
		return invalid("demod.idle_bits", "must not be negative, got %d", c.IdleBits)
	case !powerOfTwo(c.SampleBuffer) || c.SampleBuffer < 2:
		return invalid("demod.sample_buffer", "must be a power of two >= 2, got %d", c.SampleBuffer)
	case !powerOfTwo(c.DataBuffer) || c.DataBuffer < 2:
		return invalid("demod.data_buffer", "must be a power of two >= 2, got %d", c.DataBuffer)
	}
	return nil
}

// InputRate is the rate Deliver expects, before the input decimation.
func (c DemodConf) InputRate() int {
	return c.SampleRate * c.InputDecimation
}

var (
	sourceKinds = []string{"wav", "raw", "audio", "radio"}
	byteOrders  = []string{"little", "big"}
)

func (c SourceConf) Validate() error {
	switch {
	case !slices.Contains(sourceKinds, c.Kind):
		return invalid("source.kind", "%q is not one of %v", c.Kind, sourceKinds)
	case !slices.Contains(byteOrders, c.ByteOrder):
		return invalid("source.byte_order", "%q is not one of %v", c.ByteOrder, byteOrders)
	case c.GainShift < -15 || c.GainShift > 15:
		return invalid("source.gain_shift", "must be in [-15, 15], got %d", c.GainShift)
	case !powerOfTwo(c.Decimation):
		return invalid("source.decimation", "must be a power of two, got %d", c.Decimation)
	case c.Chunk <= 0:
		return invalid("source.chunk", "must be positive, got %d", c.Chunk)
	case c.IntervalMs <= 0:
		return invalid("source.interval_ms", "must be positive, got %d", c.IntervalMs)
	case c.SampleRate <= 0:
		return invalid("source.sample_rate", "must be positive, got %d", c.SampleRate)
	}
	return nil
}

func (c RadioConf) Validate() error {
	switch {
	case c.Driver == "":
		return invalid("radio.driver", "must be set")
	case c.SampleRate <= 0:
		return invalid("radio.sample_rate", "must be positive")
	case c.Decimation < 1:
		return invalid("radio.decimation", "must be >= 1, got %d", c.Decimation)
	case c.Bandwidth <= 0 || c.Bandwidth > c.SampleRate/float64(c.Decimation):
		return invalid("radio.bandwidth", "must be in (0, %.0f]", c.SampleRate/float64(c.Decimation))
	case c.Deviation <= 0:
		return invalid("radio.deviation", "must be positive")
	case c.ChunkSize == 0:
		return invalid("radio.chunk_size", "must be positive")
	}
	return nil
}

// AudioRate is the rate of the FM detector output.
func (c RadioConf) AudioRate() float64 {
	return c.SampleRate / float64(c.Decimation)
}

func (c TuiConf) Validate() error {
	switch {
	case c.RefreshMs <= 0:
		return invalid("tui.refresh_ms", "must be positive, got %d", c.RefreshMs)
	case !powerOfTwo(c.FFTSize) || c.FFTSize < 64 || c.FFTSize > 4096:
		return invalid("tui.fft_size", "must be a power of two in [64, 4096], got %d", c.FFTSize)
	}
	return nil
}

// Validate checks the sections every command needs. Radio settings are only
// checked when the radio is the source.
func (c Config) Validate() error {
	if err := c.Demod.Validate(); err != nil {
		return err
	}
	if err := c.Source.Validate(); err != nil {
		return err
	}
	if c.Source.Kind == "radio" {
		if err := c.Radio.Validate(); err != nil {
			return err
		}
		if rate := c.Radio.AudioRate(); rate != float64(c.Demod.InputRate()) {
			return invalid("radio.decimation", "audio rate %.0f Hz does not match the demodulator input rate %d Hz", rate, c.Demod.InputRate())
		}
	} else if rate := c.Source.SampleRate / c.Source.Decimation; rate != c.Demod.InputRate() {
		return invalid("source.sample_rate", "%d Hz / %d does not match the demodulator input rate %d Hz", c.Source.SampleRate, c.Source.Decimation, c.Demod.InputRate())
	}
	return c.Tui.Validate()
}

// YAML renders the effective configuration.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
