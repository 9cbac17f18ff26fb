package broker

import (
	"github.com/cuemby/cyclone/pkg/datasource"
)

// directCopyBroker copies a fixed list of byte spans every cycle. Valid
// only when the data source's buffer selection never changes across a
// state, so
// the source addresses can be resolved once at plan time.
type directCopyBroker struct {
	name  string
	spans []copySpan
}

func (b *directCopyBroker) Class() datasource.BrokerClass { return datasource.DirectCopy }
func (b *directCopyBroker) SignalName() string            { return b.name }
func (b *directCopyBroker) Execute(uint64) bool {
	copySpans(b.spans)
	return true
}

// synchronisingInputBroker blocks the owning thread on the data source's
// next sample boundary, then copies the fresh sample into function
// memory. At most one signal per thread may bind to this class.
type synchronisingInputBroker struct {
	name  string
	ds    datasource.DataSource
	spans []copySpan
}

func (b *synchronisingInputBroker) Class() datasource.BrokerClass {
	return datasource.SynchronisingInput
}
func (b *synchronisingInputBroker) SignalName() string { return b.name }
func (b *synchronisingInputBroker) Execute(uint64) bool {
	if err := b.ds.Synchronise(); err != nil {
		return false
	}
	copySpans(b.spans)
	return true
}

// synchronisingOutputBroker writes function memory out to the data
// source and then blocks on the same sample boundary, so the cycle's
// pace is set by output delivery rather than input arrival.
type synchronisingOutputBroker struct {
	name  string
	ds    datasource.DataSource
	spans []copySpan
}

func (b *synchronisingOutputBroker) Class() datasource.BrokerClass {
	return datasource.SynchronisingOutput
}
func (b *synchronisingOutputBroker) SignalName() string { return b.name }
func (b *synchronisingOutputBroker) Execute(uint64) bool {
	copySpans(b.spans)
	if err := b.ds.Synchronise(); err != nil {
		return false
	}
	return true
}

// multiBufferEntry is one (function memory slot, data source slot)
// binding whose data source buffer index is recomputed every cycle from
// the thread's cycle counter: buffer (cycle - i) mod B for i in
// [0, samples).
type multiBufferEntry struct {
	functionMemory []byte
	ds             datasource.DataSource
	alias          string
	dsOffset       int
	byteCount      int
	sampleOffset   int // i; 0 is the current cycle, increasing i looks further into the past
	bufferCount    int
	isInput        bool
}

func bufferIndexFor(cycle uint64, sampleOffset, bufferCount int) int {
	idx := (int64(cycle) - int64(sampleOffset)) % int64(bufferCount)
	if idx < 0 {
		idx += int64(bufferCount)
	}
	return int(idx)
}

type multiBufferBroker struct {
	name    string
	entries []multiBufferEntry
}

func (b *multiBufferBroker) Class() datasource.BrokerClass { return datasource.MultiBuffer }
func (b *multiBufferBroker) SignalName() string            { return b.name }
func (b *multiBufferBroker) Execute(cycle uint64) bool {
	for _, e := range b.entries {
		idx := bufferIndexFor(cycle, e.sampleOffset, e.bufferCount)
		mem, err := e.ds.SignalMemory(e.alias, idx)
		if err != nil {
			return false
		}
		if e.dsOffset+e.byteCount > len(mem) {
			return false
		}
		dsSpan := mem[e.dsOffset : e.dsOffset+e.byteCount]
		if e.isInput {
			copy(e.functionMemory[:e.byteCount], dsSpan)
		} else {
			copy(dsSpan, e.functionMemory[:e.byteCount])
		}
	}
	return true
}
