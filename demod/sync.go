package demod

// EdgeDetector declares a symbol transition only after debounce consecutive
// samples disagree with the held sense.
type EdgeDetector struct {
	depth int
	sense uint8
	count int
}

func NewEdgeDetector(depth int) *EdgeDetector {
	return &EdgeDetector{depth: max(depth, 1)}
}

// Reset takes the current symbol as the held sense. This is the first call
// after a lock.
func (e *EdgeDetector) Reset(sense uint8) {
	e.sense = sense
	e.count = 0
}

func (e *EdgeDetector) Detect(bit uint8) bool {
	if bit == e.sense {
		e.count = 0
		return false
	}
	e.count++
	if e.count < e.depth {
		return false
	}
	e.sense = bit
	e.count = 0
	return true
}

func (e *EdgeDetector) Sense() uint8 {
	return e.sense
}

// BitClock is a dual modulus divider. The divisor reloads with period, so a
// tick normally comes every period+1 samples; every swallow+1 ticks it reloads
// with period-1 instead, giving an average of period + 1 - 1/(swallow+1)
// samples per bit.
type BitClock struct {
	period  int
	swallow int

	divisor    int
	swallowCtr int
}

func NewBitClock(period, swallow int) *BitClock {
	c := &BitClock{period: period, swallow: swallow}
	c.Reset()
	return c
}

// Reset moves the next tick to mid-bit.
func (c *BitClock) Reset() {
	c.divisor = c.period / 2
	c.swallowCtr = c.swallow
}

// Tick advances the clock by one sample and reports whether this sample is a
// bit time. An edge recentres the clock and is never a bit time.
func (c *BitClock) Tick(edge bool) bool {
	if edge {
		c.Reset()
		return false
	}
	if c.divisor > 0 {
		c.divisor--
		return false
	}

	if c.swallowCtr == 0 {
		c.divisor = c.period - 1
		c.swallowCtr = c.swallow
	} else {
		c.divisor = c.period
		c.swallowCtr--
	}
	return true
}

func (c *BitClock) AverageBitPeriod() float64 {
	return float64(c.period+1) - 1/float64(c.swallow+1)
}

// Correlator matches a sync pattern against the symbol history sampled once
// per nominal bit. Position 0 of the register is the newest symbol.
type Correlator struct {
	pattern []uint8
	stride  int
	reg     []uint8
	head    int
}

func NewCorrelator(pattern []uint8, stride int) *Correlator {
	p := make([]uint8, len(pattern))
	copy(p, pattern)
	return &Correlator{
		pattern: p,
		stride:  stride,
		reg:     make([]uint8, len(p)*stride),
	}
}

// SyncPattern lays out a sync byte newest symbol first, which for a byte sent
// LSB first is its bits from the MSB down, repeated.
func SyncPattern(sync byte, repeats int) []uint8 {
	out := make([]uint8, 0, 8*repeats)
	for r := 0; r < repeats; r++ {
		for bit := 7; bit >= 0; bit-- {
			out = append(out, (sync>>bit)&1)
		}
	}
	return out
}

// Push shifts in a symbol and reports whether every sampled position matches
// the pattern.
func (c *Correlator) Push(bit uint8) bool {
	c.head++
	if c.head == len(c.reg) {
		c.head = 0
	}
	c.reg[c.head] = bit

	for i, want := range c.pattern {
		k := c.head - i*c.stride
		if k < 0 {
			k += len(c.reg)
		}
		if c.reg[k] != want {
			return false
		}
	}
	return true
}

// At returns the symbol pushed n samples ago.
func (c *Correlator) At(n int) uint8 {
	k := c.head - n
	for k < 0 {
		k += len(c.reg)
	}
	return c.reg[k]
}

func (c *Correlator) Len() int {
	return len(c.reg)
}

func (c *Correlator) Reset() {
	clear(c.reg)
	c.head = 0
}

// ByteAssembler shifts bits in LSB first. While hunting it checks the register
// after every bit and emits the sync byte when it appears; once synced it
// emits every eighth bit.
type ByteAssembler struct {
	syncByte byte
	reg      byte
	count    int
	synced   bool
}

func NewByteAssembler(syncByte byte) *ByteAssembler {
	return &ByteAssembler{syncByte: syncByte}
}

func (a *ByteAssembler) Shift(bit uint8) (byte, bool) {
	a.reg = a.reg>>1 | (bit&1)<<7

	if !a.synced {
		if a.reg == a.syncByte {
			a.synced = true
			a.count = 0
			return a.reg, true
		}
		return 0, false
	}

	if a.count == 7 {
		a.count = 0
		return a.reg, true
	}
	a.count++
	return 0, false
}

func (a *ByteAssembler) Synced() bool {
	return a.synced
}

func (a *ByteAssembler) Reset() {
	a.reg = 0
	a.count = 0
	a.synced = false
}

// Event flags returned by SymbolDecoder.Step.
type Event uint8

const (
	EventLock Event = 1 << iota
	EventUnlock
	EventBitTime
	EventByte
)

// SymbolDecoder runs the synchronisation half of the demodulator: the
// correlator while hunting, then edge detector, bit clock and byte assembler
// once locked.
type SymbolDecoder struct {
	corr  *Correlator
	edge  *EdgeDetector
	clock *BitClock
	bytes *ByteAssembler

	locked    bool
	idleBits  int
	sinceEdge int
}

type SymbolConf struct {
	BitPeriod   int
	Swallow     int
	Debounce    int
	SyncByte    byte
	SyncRepeats int
	// IdleBits drops the lock after that many bit times without an edge. 0
	// keeps the lock until Unlock.
	IdleBits int
}

func NewSymbolDecoder(c SymbolConf) *SymbolDecoder {
	return &SymbolDecoder{
		corr:     NewCorrelator(SyncPattern(c.SyncByte, c.SyncRepeats), c.BitPeriod),
		edge:     NewEdgeDetector(c.Debounce),
		clock:    NewBitClock(c.BitPeriod, c.Swallow),
		bytes:    NewByteAssembler(c.SyncByte),
		idleBits: c.IdleBits,
	}
}

// Step consumes one sliced symbol. The returned byte is only meaningful when
// EventByte is set.
func (d *SymbolDecoder) Step(bit uint8) (Event, byte) {
	if !d.locked {
		if !d.corr.Push(bit) {
			return 0, 0
		}
		d.locked = true
		d.edge.Reset(bit)
		d.clock.Reset()
		d.bytes.Reset()
		d.sinceEdge = 0
		return EventLock, 0
	}

	edge := d.edge.Detect(bit)
	if edge {
		d.sinceEdge = 0
	}
	if !d.clock.Tick(edge) {
		return 0, 0
	}

	ev := EventBitTime
	d.sinceEdge++
	if d.idleBits > 0 && d.sinceEdge >= d.idleBits {
		d.Unlock()
		return ev | EventUnlock, 0
	}
	if b, ok := d.bytes.Shift(bit); ok {
		return ev | EventByte, b
	}
	return ev, 0
}

func (d *SymbolDecoder) Locked() bool {
	return d.locked
}

func (d *SymbolDecoder) ByteSynced() bool {
	return d.locked && d.bytes.Synced()
}

// Unlock drops frame and byte sync and clears the correlator history, so a
// new lock needs a full fresh sync pattern.
func (d *SymbolDecoder) Unlock() {
	d.locked = false
	d.bytes.Reset()
	d.corr.Reset()
	d.sinceEdge = 0
}

func (d *SymbolDecoder) Clock() *BitClock {
	return d.clock
}
