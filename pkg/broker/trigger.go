package broker

import (
	"fmt"
	"time"

	"github.com/cuemby/cyclone/pkg/concurrency"
	"github.com/cuemby/cyclone/pkg/datasource"
)

// TriggerSource reports, for the sample the producer just captured,
// whether the trigger condition fired. It is evaluated with the trigger
// broker's internal fast lock held, so it must not block.
//
// Nothing upstream of the broker declares where a trigger byte would
// live in the payload, so the condition is an explicit predicate rather
// than a fixed in-payload flag offset.
type TriggerSource func(sample []byte) bool

type ringSlot struct {
	data      []byte
	triggered bool
}

// TriggerBroker is the pre/post-trigger ring buffer broker. A producer (the owning thread's Execute) appends one
// sample per cycle; a background consumer goroutine drains slots the
// producer has marked triggered to the bound data source, in order,
// calling Synchronise after each so the destination paces consumption.
type TriggerBroker struct {
	name           string
	functionMemory []byte
	source         TriggerSource
	preTrigger     int
	postTrigger    int
	capacity       int
	ds             datasource.DataSource
	alias          string

	lock concurrency.FastLock

	ring               []ringSlot
	writeIdx           uint64
	readSynchIdx       int
	postTriggerCounter int
	wasTriggered       bool
	overruns           uint64

	event   *concurrency.Event
	stopped chan struct{}
}

const lockPollTimeout = 50 * time.Millisecond

// NewTriggerBroker builds a trigger broker over functionMemory (the
// bound output signal's per-cycle byte span), with ring size capacity,
// pre/post-trigger depth, and a destination data source the background
// consumer writes completed (triggered) slots to. source decides, per
// cycle, whether the just-captured sample is a trigger edge.
func NewTriggerBroker(name string, functionMemory []byte, source TriggerSource, preTrigger, postTrigger, capacity int, ds datasource.DataSource, alias string) (*TriggerBroker, error) {
	if preTrigger >= capacity {
		return nil, fmt.Errorf("trigger broker %q: pre-trigger depth %d must be less than ring capacity %d", name, preTrigger, capacity)
	}
	ring := make([]ringSlot, capacity)
	for i := range ring {
		ring[i] = ringSlot{data: make([]byte, len(functionMemory))}
	}
	return &TriggerBroker{
		name:           name,
		functionMemory: functionMemory,
		source:         source,
		preTrigger:     preTrigger,
		postTrigger:    postTrigger,
		capacity:       capacity,
		ds:             ds,
		alias:          alias,
		ring:           ring,
		event:          concurrency.NewEvent(),
	}, nil
}

func (b *TriggerBroker) Class() datasource.BrokerClass { return datasource.TriggerOutput }
func (b *TriggerBroker) SignalName() string            { return b.name }

// Overruns returns the number of cycles the producer found its next slot
// still marked triggered.
func (b *TriggerBroker) Overruns() uint64 {
	var n uint64
	b.withLock(func() { n = b.overruns })
	return n
}

// withLock runs fn with the broker's fast lock held, retrying until
// acquired. Critical sections are a handful of slice/int operations, so
// unbounded retry never meaningfully blocks a caller.
func (b *TriggerBroker) withLock(fn func()) {
	for !b.lock.Lock(lockPollTimeout) {
	}
	defer b.lock.Unlock()
	fn()
}

func ringMod(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// Execute is the producer side of the ring.
func (b *TriggerBroker) Execute(uint64) bool {
	ok := true
	b.withLock(func() {
		slot := int(b.writeIdx % uint64(b.capacity))
		if b.ring[slot].triggered {
			b.overruns++
			ok = false
			return
		}
		copy(b.ring[slot].data, b.functionMemory)
		trig := b.source != nil && b.source(b.ring[slot].data)

		if trig && !b.wasTriggered {
			for p := 1; p <= b.preTrigger; p++ {
				idx := ringMod(slot-p, b.capacity)
				b.ring[idx].triggered = true
			}
			b.wasTriggered = true
		}
		if trig {
			b.postTriggerCounter = b.postTrigger
			b.ring[slot].triggered = true
		} else {
			if b.postTriggerCounter > 0 {
				b.ring[slot].triggered = true
				b.postTriggerCounter--
			}
			// a non-triggered cycle always rearms the pre-trigger
			// capture, so the next edge marks its own window
			b.wasTriggered = false
		}
		b.writeIdx++
		b.event.Post()
	})
	return ok
}

// Start launches the background consumer on its own goroutine (not on an
// embedded thread service); it runs until Stop.
func (b *TriggerBroker) Start() {
	b.stopped = make(chan struct{})
	go b.consume()
}

// Stop closes the event, which the consumer observes as cancellation,
// and waits for it to exit before returning.
func (b *TriggerBroker) Stop() {
	b.event.Close()
	if b.stopped != nil {
		<-b.stopped
	}
}

func (b *TriggerBroker) consume() {
	defer close(b.stopped)
	for {
		var stopIdx int
		b.withLock(func() {
			stopIdx = ringMod(int(b.writeIdx)-b.preTrigger, b.capacity)
		})

		for {
			var (
				done      bool
				triggered bool
				payload   []byte
			)
			b.withLock(func() {
				if b.readSynchIdx == stopIdx {
					done = true
					return
				}
				slot := &b.ring[b.readSynchIdx]
				if slot.triggered {
					triggered = true
					payload = append([]byte(nil), slot.data...)
					slot.triggered = false
				}
				b.readSynchIdx = ringMod(b.readSynchIdx+1, b.capacity)
			})
			if done {
				break
			}
			if triggered {
				b.deliver(payload)
			}
		}

		if b.event.Wait(0) == concurrency.WaitCancelled {
			return
		}
	}
}

func (b *TriggerBroker) deliver(payload []byte) {
	if b.ds == nil {
		return
	}
	mem, err := b.ds.SignalMemory(b.alias, 0)
	if err != nil {
		return
	}
	n := len(payload)
	if n > len(mem) {
		n = len(mem)
	}
	copy(mem[:n], payload[:n])
	_ = b.ds.Synchronise()
}
