package radio

// #cgo CFLAGS: -g -Wall
// #cgo LDFLAGS: -lSoapySDR
import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jrwynneiii/wxfsk/config"
	"github.com/jrwynneiii/wxfsk/fm"
	"github.com/jrwynneiii/wxfsk/source"

	"github.com/pothosware/go-soapy-sdr/pkg/device"
	"github.com/pothosware/go-soapy-sdr/pkg/modules"
	"github.com/pothosware/go-soapy-sdr/pkg/sdrlogger"
	"github.com/pothosware/go-soapy-sdr/pkg/version"
)

var ErrReadFailed = errors.New("too many consecutive stream read errors")

const (
	readTimeoutUs = 100000
	maxReadErrors = 50
)

// Radio receives a fixed frequency with SoapySDR and delivers FM detected
// audio at the demodulator input rate.
type Radio struct {
	conf config.RadioConf
	fm   *fm.Receiver

	args   map[string]string
	device *device.SDRDevice
	stream *device.SDRStreamCF32
	buf    [][]complex64
	flags  []int

	samplesRead uint64
}

// logModules reports the SoapySDR library and the driver modules it found.
// New logs it at debug level, the probe command at info.
func logModules(logf func(string, ...any)) {
	logf("Using SoapySDR versions: ABI: %s API: %s Lib: %s", version.GetABIVersion(), version.GetAPIVersion(), version.GetLibVersion())
	logf("SoapySDR modules root path: %v", modules.GetRootPath())
	for i, searchPath := range modules.ListSearchPaths() {
		logf("Search path #%d: %v", i, searchPath)
	}

	modulesFound := modules.ListModules()
	if len(modulesFound) == 0 {
		logf("No SoapySDR modules found")
	}
	for _, module := range modulesFound {
		moduleVersion := modules.GetModuleVersion(module)
		if len(moduleVersion) == 0 {
			moduleVersion = "[None]"
		}
		logf("Found SoapySDR module: %v, version: %v", module, moduleVersion)
	}

	// rtl_tcp complains loudly when nothing is listening
	sdrlogger.SetLogLevel(sdrlogger.Error)
}

// LogAllSoapySDRDevices lists every SoapySDR device with its settings, for the
// probe command.
func LogAllSoapySDRDevices() error {
	logModules(log.Infof)

	devices := device.Enumerate(nil)
	log.Infof("Found %d SoapySDR devices", len(devices))
	if len(devices) == 0 {
		return nil
	}
	args := make([]map[string]string, len(devices))
	for idx, dev := range devices {
		args[idx] = map[string]string{"driver": dev["driver"]}
	}
	devs, err := device.MakeList(args)
	if err != nil {
		return fmt.Errorf("SoapySDR could not open devices: %w", err)
	}
	for idx, dev := range devs {
		log.Infof("Driver: %s", args[idx]["driver"])
		LogAvailSettings(dev)
	}
	// UnmakeList double frees in the cgo bindings, the OS closes the devices on exit
	return nil
}

func LogAvailSettings(dev *device.SDRDevice) {
	log.Infof("Current settings:")
	for _, setting := range dev.GetSettingInfo() {
		log.Infof("\t- %s: %v", setting.Key, setting.Value)
	}

	numChannels := dev.GetNumChannels(device.DirectionRX)
	log.Info("Channel info:")
	for channel := uint(0); channel < numChannels; channel++ {
		log.Infof("Channel %d:", channel)
		log.Infof("\tAvailable sample rates:")
		log.Infof("\t\t- %v", dev.GetSampleRate(device.DirectionRX, channel))
		for _, sampleRateRange := range dev.GetSampleRateRange(device.DirectionRX, channel) {
			log.Infof("\t\t- %v", sampleRateRange.ToString())
		}
		log.Infof("\tIQ Sample Types: %v", dev.GetStreamFormats(device.DirectionRX, channel))
	}
}

func New(conf config.RadioConf, agc config.AGCConf) (*Radio, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	receiver, err := fm.New(conf, agc)
	if err != nil {
		return nil, err
	}

	log.Debug("[radio] Initing SoapySDR")
	logModules(log.Debugf)

	r := &Radio{
		conf:  conf,
		fm:    receiver,
		buf:   [][]complex64{make([]complex64, conf.ChunkSize)},
		flags: make([]int, 1),
	}
	return r, nil
}

// Connect opens the device, tunes it and activates the IQ stream.
func (r *Radio) Connect() error {
	r.args = map[string]string{"driver": r.conf.Driver}
	if r.conf.Driver == "rtltcp" {
		r.args["rtltcp"] = r.conf.Address
	}

	var err error
	if r.device == nil {
		if r.device, err = device.Make(r.args); err != nil {
			return fmt.Errorf("could not create SoapySDR device: %w", err)
		}
	}

	log.Debugf("[radio] Setting sample rate to %f", r.conf.SampleRate)
	if err := r.device.SetSampleRate(device.DirectionRX, 0, r.conf.SampleRate); err != nil {
		return fmt.Errorf("could not set sample rate: %w", err)
	}

	log.Debugf("[radio] Setting frequency to %f", r.conf.Frequency)
	if err := r.device.SetFrequency(device.DirectionRX, 0, r.conf.Frequency, nil); err != nil {
		return fmt.Errorf("could not set frequency: %w", err)
	}

	if r.conf.Gain > 0 {
		if err := r.device.SetGainMode(device.DirectionRX, 0, false); err != nil {
			return fmt.Errorf("could not disable automatic gain: %w", err)
		}
		if err := r.device.SetGain(device.DirectionRX, 0, float64(r.conf.Gain)); err != nil {
			return fmt.Errorf("could not set gain: %w", err)
		}
	} else if err := r.device.SetGainMode(device.DirectionRX, 0, true); err != nil {
		log.Warnf("[radio] Automatic gain not available: %v", err)
	}

	log.Infof("[radio] Tuned %s to %.4f MHz at %.0f S/s", r.conf.Driver, r.conf.Frequency/1e6, r.conf.SampleRate)
	if r.conf.Driver != "rtltcp" {
		LogAvailSettings(r.device)
	}

	log.Debug("[radio] Creating the IQ stream")
	if r.stream, err = r.device.SetupSDRStreamCF32(device.DirectionRX, []uint{0}, nil); err != nil {
		return fmt.Errorf("could not setup SDR stream: %w", err)
	}
	return r.StreamActivate()
}

func (r *Radio) StreamActivate() error {
	log.Debug("[radio] Activating IQ stream")
	if err := r.stream.Activate(0, 0, 0); err != nil {
		return fmt.Errorf("could not activate the IQ stream: %w", err)
	}
	// the first samples after activation are junk
	if _, err := r.Read(); err != nil {
		log.Debugf("[radio] Discard read: %v", err)
	}
	clear(r.buf[0])
	return nil
}

func (r *Radio) StreamDeactivate() error {
	if r.stream == nil {
		return nil
	}
	log.Debug("[radio] Deactivating IQ stream")
	if err := r.stream.Deactivate(0, 0); err != nil {
		return fmt.Errorf("could not deactivate the IQ stream: %w", err)
	}
	return nil
}

func (r *Radio) StreamClose() error {
	if r.stream == nil {
		return nil
	}
	log.Debug("[radio] Closing IQ stream")
	err := r.stream.Close()
	r.stream = nil
	if err != nil {
		return fmt.Errorf("could not close the IQ stream: %w", err)
	}
	return nil
}

// Read returns the next block of IQ samples. The slice is reused.
func (r *Radio) Read() ([]complex64, error) {
	_, n, err := r.stream.Read(r.buf, r.conf.ChunkSize, r.flags, readTimeoutUs)
	if err != nil {
		return nil, err
	}
	r.samplesRead += uint64(n)
	return r.buf[0][:n], nil
}

// Run connects, then reads, detects and delivers audio until ctx is cancelled
// or the demodulator stops.
func (r *Radio) Run(ctx context.Context, deliver source.DeliverFunc) error {
	if err := r.Connect(); err != nil {
		return err
	}
	defer func() {
		if err := r.StreamDeactivate(); err != nil {
			log.Error(err)
		}
		if err := r.StreamClose(); err != nil {
			log.Error(err)
		}
	}()

	fwd := source.NewForwarder("radio", deliver)
	failures := 0
	for ctx.Err() == nil {
		iq, err := r.Read()
		if err != nil {
			failures++
			log.Debugf("[radio] Read failed (%d): %v", failures, err)
			if failures >= maxReadErrors {
				return fmt.Errorf("%w: %v", ErrReadFailed, err)
			}
			time.Sleep(5 * time.Millisecond)
			continue
		}
		failures = 0
		if err := fwd.Send(r.fm.Work(iq)); err != nil {
			return source.Done(err)
		}
	}
	log.Debugf("[radio] Stopped after %d IQ samples", r.samplesRead)
	return nil
}

func (r *Radio) Close() error {
	err := errors.Join(r.StreamDeactivate(), r.StreamClose())
	if r.device != nil {
		err = errors.Join(err, r.device.Unmake())
		r.device = nil
	}
	return err
}
