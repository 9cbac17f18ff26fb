package datasource

import (
	"github.com/cuemby/cyclone/pkg/signal"
	"github.com/cuemby/cyclone/pkg/types"
)

// BrokerClass is the broker variant a data source recommends for one
// signal/direction pair.
type BrokerClass int

const (
	DirectCopy BrokerClass = iota
	MultiBuffer
	SynchronisingInput
	SynchronisingOutput
	TriggerOutput
)

func (c BrokerClass) String() string {
	switch c {
	case DirectCopy:
		return "DirectCopy"
	case MultiBuffer:
		return "MultiBuffer"
	case SynchronisingInput:
		return "SynchronisingInput"
	case SynchronisingOutput:
		return "SynchronisingOutput"
	case TriggerOutput:
		return "TriggerOutput"
	default:
		return "Unknown"
	}
}

// DataSource is the contract every concrete I/O driver must implement.
// The core never constructs a concrete driver; it is handed
// one already wired to a signal catalogue.
type DataSource interface {
	// Name identifies this data source within the configuration tree.
	Name() string

	// NumberOfMemoryBuffers returns B >= 1, the buffer count this data
	// source publishes. Stable across a state.
	NumberOfMemoryBuffers() int

	// SignalMemory returns the address of the named signal within the
	// given buffer index. The returned slice's backing array is stable
	// across a state.
	SignalMemory(signalAlias string, bufferIdx int) ([]byte, error)

	// SignalByteSize returns the declared byte size of one sample of the
	// named signal on this data source, used by the planner to size
	// copies.
	SignalByteSize(signalAlias string) (int, error)

	// ElementKind returns the data source's own declared element type for
	// the named signal, used by the planner to reject configurations that
	// would require a lossy or layout-incompatible raw copy.
	ElementKind(signalAlias string) (types.Kind, error)

	// BrokerClass recommends a broker variant for one signal/direction
	// pair; the planner may still override it (e.g. Samples > 1 always
	// forces MultiBuffer regardless of what the data source reports).
	BrokerClass(dir signal.Direction, signalAlias string) (BrokerClass, error)

	// PrepareNextState is called off the real-time thread while preparing
	// a state transition; it lets the data source validate or adjust
	// internal bookkeeping for the next state's signal set.
	PrepareNextState(currentState, nextState string) error

	// Synchronise blocks the caller until the next sample boundary. The
	// synchronising brokers call it from the real-time thread; the trigger
	// broker's consumer calls it after each slot it delivers.
	Synchronise() error
}
