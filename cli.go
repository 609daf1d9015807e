package main

var cli struct {
	Verbose    bool     `help:"Prints debug output by default"`
	Profile    bool     `help:"Output a pprof profile"`
	ConfigFile string   `name:"config" help:"Config file, instead of searching the default locations" type:"path"`
	Trace      []string `help:"Demodulator trace levels (msgs,osc,lpf,demod,bitshift,byteout,sync or all), write records samples without decoding"`
	Probe      struct {
	} `cmd:"" help:"List the available radios, sound cards and SoapySDR configuration"`
	Decode struct {
		Input  string `arg:"" optional:"" help:"Input file, overrides source.path"`
		Source string `help:"Source kind (wav, raw, audio or radio), overrides source.kind"`
		Output string `help:"How decoded bytes are written to stdout" enum:"hex,raw" default:"hex"`
	} `cmd:"" help:"Decode a source and write the bytes to stdout"`
	Monitor struct {
		Input  string `arg:"" optional:"" help:"Input file, overrides source.path"`
		Source string `help:"Source kind (wav, raw, audio or radio), overrides source.kind"`
	} `cmd:"" help:"Starts the TUI and decodes the configured source"`
	Config struct {
	} `cmd:"" help:"Print the effective configuration as YAML"`
}
