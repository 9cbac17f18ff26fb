package broker

import (
	"github.com/cuemby/cyclone/pkg/datasource"
)

// Broker moves bytes between one function's memory and one data source's
// memory once per cycle.
type Broker interface {
	// Class identifies which of the five broker variants this is.
	Class() datasource.BrokerClass

	// SignalName is the function-declared signal name this broker serves,
	// for diagnostics and for the trigger-broker lookup by output name.
	SignalName() string

	// Execute runs one cycle's copy. cycle is the thread's monotonically
	// increasing cycle counter, used by MultiBuffer to select which of the
	// data source's B buffers to address this cycle; other variants
	// ignore it. It returns false if the copy could not be completed
	// (signals a broken data source to the thread driver), true
	// otherwise.
	Execute(cycle uint64) bool
}

// copySpan is one fixed (destination, source, length) byte range. DirectCopy
// and the synchronising brokers compile down to a flat list of these,
// computed once at plan time; MultiBuffer recomputes the source span's
// buffer index each cycle but keeps everything else fixed.
type copySpan struct {
	dst []byte
	src []byte
	n   int
}

func copySpans(spans []copySpan) {
	for _, s := range spans {
		copy(s.dst[:s.n], s.src[:s.n])
	}
}
