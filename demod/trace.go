package demod

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Trace selects per-stage debug output. The bit values are the ones the
// receiver has always used on its command line.
type Trace uint32

const (
	TraceMsgs     Trace = 0x0001
	TraceOsc      Trace = 0x0002
	TraceLPF      Trace = 0x0004
	TraceDemod    Trace = 0x0008
	TraceWrite    Trace = 0x0020
	TraceBitShift Trace = 0x0040
	TraceByteOut  Trace = 0x0080
	TraceSync     Trace = 0x0100

	// TraceAll is every output level. Write is a mode, not output.
	TraceAll = TraceMsgs | TraceOsc | TraceLPF | TraceDemod | TraceBitShift | TraceByteOut | TraceSync
)

var traceNames = map[string]Trace{
	"msgs":     TraceMsgs,
	"osc":      TraceOsc,
	"lpf":      TraceLPF,
	"demod":    TraceDemod,
	"write":    TraceWrite,
	"bitshift": TraceBitShift,
	"byteout":  TraceByteOut,
	"sync":     TraceSync,
}

// ParseTrace accepts stage names, "all" or numeric masks ("0x180"), either as
// separate entries or comma separated.
func ParseTrace(entries []string) (Trace, error) {
	var t Trace
	for _, entry := range entries {
		for _, name := range strings.Split(entry, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" || name == "none" {
				continue
			}
			if name == "all" {
				t |= TraceAll
				continue
			}
			if v, ok := traceNames[name]; ok {
				t |= v
				continue
			}
			if v, err := strconv.ParseUint(name, 0, 32); err == nil {
				t |= Trace(v)
				continue
			}
			return 0, fmt.Errorf("unknown trace level %q", name)
		}
	}
	return t, nil
}

func (t Trace) Has(level Trace) bool {
	return t&level != 0
}

func (t Trace) String() string {
	if t == 0 {
		return "none"
	}
	var names []string
	for name, v := range traceNames {
		if t&v != 0 {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return strings.Join(names, "|")
}
