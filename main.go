package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/pprof"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/jrwynneiii/wxfsk/config"
	"github.com/jrwynneiii/wxfsk/demod"
	"github.com/jrwynneiii/wxfsk/pipeline"
	"github.com/jrwynneiii/wxfsk/radio"
	"github.com/jrwynneiii/wxfsk/source"
	"github.com/jrwynneiii/wxfsk/tui"
)

// openSource builds the configured source. The radio lives in its own
// package because it needs SoapySDR.
func openSource(conf config.Config) (source.Source, error) {
	if conf.Source.Kind == "radio" {
		return radio.New(conf.Radio, conf.AGC)
	}
	return source.New(conf.Source)
}

func loadConfig(input, kind string) config.Config {
	path := cli.ConfigFile
	if path == "" {
		path = config.FindConfigPath(config.SearchPaths)
	}
	conf, _, err := config.Load(path)
	if err != nil {
		log.Fatalf("Could not load config: %v", err)
	}

	if input != "" {
		conf.Source.Path = input
	}
	if kind != "" {
		conf.Source.Kind = kind
	}
	if len(cli.Trace) > 0 {
		conf.Demod.Trace = cli.Trace
	}

	if !cli.Verbose {
		level, err := log.ParseLevel(conf.Logging.Level)
		if err != nil {
			log.Fatalf("Invalid logging.level %q: %v", conf.Logging.Level, err)
		}
		log.SetLevel(level)
	}

	if err := conf.Validate(); err != nil {
		log.Fatalf("%v", err)
	}
	return conf
}

func newPipeline(conf config.Config, extra ...demod.ByteSink) *pipeline.Pipeline {
	src, err := openSource(conf)
	if err != nil {
		log.Fatalf("Could not open %s source: %v", conf.Source.Kind, err)
	}
	p, err := pipeline.New(conf, src, extra...)
	if err != nil {
		log.Fatalf("Could not start the demodulator: %v", err)
	}
	return p
}

func decode(ctx context.Context, conf config.Config, output string) error {
	p := newPipeline(conf)
	defer p.Close()

	written := make(chan error, 1)
	go func() {
		written <- pipeline.WriteBytes(p.Data, os.Stdout, output)
	}()

	err := p.Run(ctx)
	if werr := <-written; err == nil {
		err = werr
	}
	return err
}

func monitor(ctx context.Context, conf config.Config) error {
	hex := tui.NewHexView(conf.Tui.HexRows)
	p := newPipeline(conf, hex)
	defer p.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// the hex view shows the bytes
	go pipeline.WriteBytes(p.Data, io.Discard, "raw")

	ran := make(chan error, 1)
	go func() {
		ran <- p.Run(ctx)
	}()

	uiErr := tui.StartUI(ctx, p.Demod, hex, conf.Tui)
	cancel()
	if err := <-ran; err != nil {
		return err
	}
	return uiErr
}

func main() {
	log.Info("Starting wxfsk")
	flags := kong.Parse(&cli)
	if cli.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	if cli.Profile {
		prof, err := os.Create("./cpu.pprof")
		if err != nil {
			log.Fatalf("Could not create profile: %v", err)
		}
		if err := pprof.StartCPUProfile(prof); err != nil {
			log.Fatalf("Could not start profile: %v", err)
		}
		defer pprof.StopCPUProfile()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch strings.Fields(flags.Command())[0] {
	case "probe":
		if err = radio.LogAllSoapySDRDevices(); err != nil {
			log.Error(err)
		}
		err = source.LogAudioDevices()

	case "decode":
		conf := loadConfig(cli.Decode.Input, cli.Decode.Source)
		err = decode(ctx, conf, cli.Decode.Output)

	case "monitor":
		conf := loadConfig(cli.Monitor.Input, cli.Monitor.Source)
		err = monitor(ctx, conf)

	case "config":
		conf := loadConfig("", "")
		var out []byte
		if out, err = conf.YAML(); err == nil {
			fmt.Print(string(out))
		}

	default:
		log.Info("Command not recognized")
	}

	if err != nil {
		log.Errorf("%v", err)
		stop()
		pprof.StopCPUProfile()
		os.Exit(1)
	}
}
