package source

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"
	"github.com/jrwynneiii/wxfsk/config"
)

// Audio captures mono 16 bit samples from a sound card with a blocking
// PortAudio stream. The card sets the pace.
type Audio struct {
	conf   config.SourceConf
	name   string
	stream *portaudio.Stream
	in     []int16
}

// findDevice picks an input device by 1-based index, name prefix, or the
// default input when dev is empty.
func findDevice(dev string) (*portaudio.DeviceInfo, error) {
	if dev == "" {
		return portaudio.DefaultInputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	if i, err := strconv.Atoi(dev); err == nil && i > 0 && i <= len(devices) {
		return devices[i-1], nil
	}
	for _, d := range devices {
		if d.MaxInputChannels > 0 && strings.HasPrefix(d.Name, dev) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("audio input device not found: %s", dev)
}

func OpenAudio(conf config.SourceConf) (*Audio, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: %w", err)
	}

	info, err := findDevice(conf.Device)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	p := portaudio.HighLatencyParameters(info, nil)
	p.Input.Channels = 1
	p.Output.Channels = 0
	p.SampleRate = float64(conf.SampleRate)
	p.FramesPerBuffer = conf.Chunk * conf.Decimation

	a := &Audio{conf: conf, name: info.Name, in: make([]int16, p.FramesPerBuffer)}
	if a.stream, err = portaudio.OpenStream(p, a.in); err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open %s: %w", info.Name, err)
	}
	log.Infof("[source] Opened sound card %q at %d Hz", info.Name, conf.SampleRate)
	return a, nil
}

func (a *Audio) read(buf []int16) (int, error) {
	if err := a.stream.Read(); err != nil {
		if !errors.Is(err, portaudio.InputOverflowed) {
			return 0, err
		}
		log.Warnf("[source] %s: input overflowed", a.name)
	}
	return copy(buf, a.in), nil
}

func (a *Audio) Run(ctx context.Context, deliver DeliverFunc) error {
	if err := a.stream.Start(); err != nil {
		return fmt.Errorf("start %s: %w", a.name, err)
	}
	defer a.stream.Stop()

	conf := a.conf
	conf.Realtime = false
	return pump(ctx, a.name, conf, a.read, deliver)
}

func (a *Audio) Close() error {
	err := a.stream.Close()
	return errors.Join(err, portaudio.Terminate())
}

// LogAudioDevices lists every sound card that can capture.
func LogAudioDevices() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return err
	}
	log.Infof("Found %d audio devices", len(devices))
	for i, d := range devices {
		if d.MaxInputChannels == 0 {
			continue
		}
		log.Infof("Audio device %d: %s (%d input channels, default %.0f Hz)", i+1, d.Name, d.MaxInputChannels, d.DefaultSampleRate)
	}
	return nil
}
