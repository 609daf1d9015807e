package demod

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/jrwynneiii/wxfsk/config"
	"github.com/jrwynneiii/wxfsk/dsp"
	"github.com/jrwynneiii/wxfsk/ring"
)

var (
	ErrStopped = errors.New("demodulator stopped")
	ErrNoSink  = errors.New("demodulator needs a byte sink")
)

// ScopeSize is how many of the most recent input samples are kept for the
// monitor.
const ScopeSize = 4096

// SampleTap receives every decimated sample batch before demodulation.
type SampleTap interface {
	WriteSamples(samples []int16) error
}

type Stats struct {
	SamplesIn        uint64
	SamplesProcessed uint64
	SampleOverflows  uint64
	Locks            uint64
	LocksLost        uint64
	Bytes            uint64
	ByteOverflows    uint64
	SinkErrors       uint64
	// samples waiting in the input ring and its capacity
	Backlog          int
	Capacity         int
}

type counters struct {
	samplesIn        atomic.Uint64
	samplesProcessed atomic.Uint64
	locks            atomic.Uint64
	locksLost        atomic.Uint64
	bytes            atomic.Uint64
	byteOverflows    atomic.Uint64
	sinkErrors       atomic.Uint64
}

// Demodulator owns the whole AFSK chain. Samples come in through Deliver on
// the producer side; a single goroutine started by Start runs every stage and
// hands completed bytes to the sink.
type Demodulator struct {
	conf config.DemodConf
	sink ByteSink
	tap  SampleTap

	samples   *ring.Ring[int16]
	decim     *dsp.Decimator
	decimated []int16

	// owned by the demod goroutine
	nco     *dsp.NCO
	firI    *dsp.FIR
	firQ    *dsp.FIR
	discrim *dsp.Discriminator
	slicer  *dsp.Slicer
	decoder *SymbolDecoder
	batch   []int16

	trace    atomic.Uint32
	insync   atomic.Bool
	exit     atomic.Bool
	clearReq atomic.Bool
	started  atomic.Bool
	stopOnce sync.Once
	done     chan struct{}
	stats    counters

	scopeMu  sync.RWMutex
	scope    []int16
	scopePos int
}

func filterTable(conf config.DemodConf) ([]int16, uint, error) {
	switch conf.FIRFilter {
	case "", "hann45":
		return dsp.Hann45, dsp.Hann45Shift, nil
	case "kaiser17":
		return dsp.Kaiser17, dsp.Kaiser17Shift, nil
	case "design":
		taps, err := dsp.DesignLowPass(float64(conf.SampleRate), conf.FIRCutoff, conf.FIRTransition, 1, 15)
		return taps, 15, err
	}
	return nil, 0, fmt.Errorf("%w: demod.fir_filter: %q", config.ErrInvalid, conf.FIRFilter)
}

// New builds every stage from conf. Nothing runs until Start.
func New(conf config.DemodConf, sink ByteSink) (*Demodulator, error) {
	if sink == nil {
		return nil, ErrNoSink
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	trace, err := ParseTrace(conf.Trace)
	if err != nil {
		return nil, fmt.Errorf("%w: demod.trace: %v", config.ErrInvalid, err)
	}

	d := &Demodulator{
		conf:   conf,
		sink:   sink,
		done:   make(chan struct{}),
		slicer: dsp.NewSlicer(conf.SlicerDecay, conf.SlicerGain),
		decoder: NewSymbolDecoder(SymbolConf{
			BitPeriod:   conf.BitPeriod,
			Swallow:     conf.SwallowCount,
			Debounce:    conf.Debounce,
			SyncByte:    conf.SyncByte,
			SyncRepeats: conf.SyncRepeats,
			IdleBits:    conf.IdleBits,
		}),
		scope: make([]int16, ScopeSize),
	}
	d.trace.Store(uint32(trace))

	if d.samples, err = ring.New[int16](conf.SampleBuffer); err != nil {
		return nil, fmt.Errorf("sample buffer: %w", err)
	}
	if d.decim, err = dsp.NewDecimator(conf.InputDecimation); err != nil {
		return nil, err
	}

	inc := dsp.IncrementForFrequency(conf.OscFrequency, float64(conf.SampleRate), conf.OscTableSize)
	if d.nco, err = dsp.NewNCO(conf.OscTableSize, inc); err != nil {
		return nil, err
	}

	coeffs, shift, err := filterTable(conf)
	if err != nil {
		return nil, err
	}
	if d.firI, err = dsp.NewFIR(coeffs, shift); err != nil {
		return nil, err
	}
	if d.firQ, err = dsp.NewFIR(coeffs, shift); err != nil {
		return nil, err
	}

	if d.discrim, err = dsp.NewDiscriminator(conf.DiscrimLength, conf.DiscrimLag, conf.DiscrimShift); err != nil {
		return nil, err
	}

	log.Debugf("[demod] Oscillator at %.1f Hz (increment %d/%d), %d tap %s filter, bit period %d swallow %d (avg %.3f samples/bit)",
		d.nco.Frequency(dsp.I, float64(conf.SampleRate)), inc, conf.OscTableSize, len(coeffs), conf.FIRFilter,
		conf.BitPeriod, conf.SwallowCount, d.decoder.Clock().AverageBitPeriod())
	return d, nil
}

// SetSampleTap installs a tap for the decimated samples. Call before Start.
func (d *Demodulator) SetSampleTap(tap SampleTap) {
	d.tap = tap
}

func (d *Demodulator) SetTrace(t Trace) {
	d.trace.Store(uint32(t))
}

func (d *Demodulator) Trace() Trace {
	return Trace(d.trace.Load())
}

func (d *Demodulator) Start() {
	if d.started.Swap(true) {
		return
	}
	go d.run()
}

// Deliver decimates samples and queues them for the demod goroutine. It never
// blocks. Samples that do not fit are dropped and the returned error wraps
// ring.ErrOverflow. Deliver must only be called from one goroutine.
func (d *Demodulator) Deliver(samples []int16) error {
	if d.exit.Load() {
		return ErrStopped
	}
	if len(samples) == 0 {
		return nil
	}

	d.decimated = d.decim.Process(d.decimated[:0], samples)
	n, err := d.samples.PutBatch(d.decimated)
	d.stats.samplesIn.Add(uint64(n))
	switch {
	case errors.Is(err, ring.ErrClosed):
		return ErrStopped
	case err != nil:
		return fmt.Errorf("deliver: %d of %d samples dropped: %w", len(d.decimated)-n, len(d.decimated), err)
	}
	return nil
}

// DeliverWait is Deliver for inputs that can be read faster than real time:
// it blocks until the ring has room instead of dropping samples.
func (d *Demodulator) DeliverWait(ctx context.Context, samples []int16) error {
	if d.exit.Load() {
		return ErrStopped
	}
	d.decimated = d.decim.Process(d.decimated[:0], samples)
	for rest := d.decimated; len(rest) > 0; {
		err := d.samples.WaitSpace(ctx, len(rest))
		if errors.Is(err, ring.ErrClosed) {
			return ErrStopped
		}
		if err != nil {
			return err
		}
		n, _ := d.samples.PutBatch(rest[:min(len(rest), d.samples.Cap())])
		d.stats.samplesIn.Add(uint64(n))
		rest = rest[n:]
	}
	return nil
}

// ClearSync sends the decoder back to hunting for the sync pattern. It takes
// effect before the next sample is processed.
func (d *Demodulator) ClearSync() {
	d.clearReq.Store(true)
	d.insync.Store(false)
}

// Stop signals the demod goroutine, wakes it and waits for it to exit. It is
// safe to call more than once.
func (d *Demodulator) Stop() {
	d.stopOnce.Do(func() {
		d.exit.Store(true)
		d.samples.Close()
		if d.started.Load() {
			<-d.done
		}
		log.Debug("[demod] Stopped")
	})
}

func (d *Demodulator) InSync() bool {
	return d.insync.Load()
}

func (d *Demodulator) Stats() Stats {
	return Stats{
		SamplesIn:        d.stats.samplesIn.Load(),
		SamplesProcessed: d.stats.samplesProcessed.Load(),
		SampleOverflows:  d.samples.Overflows(),
		Locks:            d.stats.locks.Load(),
		LocksLost:        d.stats.locksLost.Load(),
		Bytes:            d.stats.bytes.Load(),
		ByteOverflows:    d.stats.byteOverflows.Load(),
		SinkErrors:       d.stats.sinkErrors.Load(),
		Backlog:          d.samples.Len(),
		Capacity:         d.samples.Cap(),
	}
}

func (d *Demodulator) Config() config.DemodConf {
	return d.conf
}

// Scope copies the most recent input samples, oldest first, into dst.
func (d *Demodulator) Scope(dst []int16) []int16 {
	d.scopeMu.RLock()
	defer d.scopeMu.RUnlock()
	dst = append(dst, d.scope[d.scopePos:]...)
	return append(dst, d.scope[:d.scopePos]...)
}

func (d *Demodulator) updateScope(batch []int16) {
	d.scopeMu.Lock()
	defer d.scopeMu.Unlock()
	if len(batch) >= len(d.scope) {
		copy(d.scope, batch[len(batch)-len(d.scope):])
		d.scopePos = 0
		return
	}
	for _, s := range batch {
		d.scope[d.scopePos] = s
		d.scopePos++
		if d.scopePos == len(d.scope) {
			d.scopePos = 0
		}
	}
}

func (d *Demodulator) run() {
	defer close(d.done)
	log.Debug("[demod] Demod thread started")

	for !d.exit.Load() {
		if err := d.samples.Wait(); err != nil {
			break
		}
		d.batch = d.samples.Drain(d.batch[:0])
		d.processBatch(d.batch)
	}
	log.Debug("[demod] Demod thread exiting")
}

func (d *Demodulator) processBatch(batch []int16) {
	trace := d.Trace()
	if trace.Has(TraceMsgs) {
		log.Debug("[demod] Got samples", "n", len(batch), "queued", d.samples.Len())
	}

	d.updateScope(batch)
	if d.tap != nil {
		if err := d.tap.WriteSamples(batch); err != nil {
			log.Errorf("[demod] Sample tap failed: %v", err)
		}
	}

	// write mode only records the samples
	if !trace.Has(TraceWrite) {
		for _, s := range batch {
			d.process(s, trace)
		}
	}
	d.stats.samplesProcessed.Add(uint64(len(batch)))
}

func (d *Demodulator) process(sample int16, trace Trace) {
	if d.clearReq.CompareAndSwap(true, false) {
		d.unlock()
		if trace.Has(TraceSync) {
			log.Debug("[demod] Sync cleared")
		}
	}

	iosc := d.nco.Next(dsp.I)
	qosc := d.nco.Next(dsp.Q)
	if trace.Has(TraceOsc) {
		log.Debug("[demod] osc", "sample", sample, "i", iosc, "q", qosc)
	}

	iout := d.firI.Filter(dsp.Mix(sample, iosc))
	qout := d.firQ.Filter(dsp.Mix(sample, qosc))
	if trace.Has(TraceLPF) {
		log.Debug("[demod] lpf", "i", iout, "q", qout)
	}

	phase := d.discrim.Process(iout, qout)
	bit := d.slicer.Slice(phase)
	ev, b := d.decoder.Step(bit)
	if trace.Has(TraceDemod) {
		log.Debug("[demod] demod", "phase", phase, "bias", d.slicer.Bias(), "bit", bit, "bittime", ev&EventBitTime != 0)
	}
	if ev == 0 {
		return
	}

	if ev&EventLock != 0 {
		d.insync.Store(true)
		d.stats.locks.Add(1)
		if trace.Has(TraceSync) {
			log.Debug("[demod] DSP sync achieved")
		}
	}
	if ev&EventBitTime != 0 && trace.Has(TraceBitShift) {
		log.Debug("[demod] bit time", "bit", bit)
	}
	if ev&EventUnlock != 0 {
		d.insync.Store(false)
		d.stats.locksLost.Add(1)
		if trace.Has(TraceSync) {
			log.Debug("[demod] Sync lost, no transitions", "idle_bits", d.conf.IdleBits)
		}
	}
	if ev&EventByte != 0 {
		d.emit(b, trace)
	}
}

func (d *Demodulator) unlock() {
	if d.decoder.Locked() {
		d.stats.locksLost.Add(1)
	}
	d.decoder.Unlock()
	d.insync.Store(false)
}

func (d *Demodulator) emit(b byte, trace Trace) {
	d.stats.bytes.Add(1)
	if trace.Has(TraceByteOut) {
		log.Debugf("[demod] Byte out: 0x%02X", b)
	}

	err := d.sink.ReceiveByte(b)
	if err == nil {
		return
	}
	var n uint64
	if errors.Is(err, ring.ErrOverflow) {
		n = d.stats.byteOverflows.Add(1)
	} else {
		n = d.stats.sinkErrors.Add(1)
	}
	if n == 1 || n%100 == 0 {
		log.Warnf("[demod] Byte sink: %v (%d times)", err, n)
	}
}
