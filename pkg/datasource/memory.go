package datasource

import (
	"fmt"
	"sync"

	"github.com/cuemby/cyclone/pkg/signal"
	"github.com/cuemby/cyclone/pkg/types"
)

// signalLayout is the per-signal byte layout within one buffer of a
// MemoryDataSource.
type signalLayout struct {
	offset int
	size   int
	class  BrokerClass
	kind   types.Kind
}

// MemoryDataSource is an in-process reference DataSource used by tests and
// by cmd/cyclonectl's demo mode. It holds B buffers, each a flat byte slab
// laid out by the offsets given to RegisterSignal, and an optional synchronising
// channel that Synchronise blocks on.
type MemoryDataSource struct {
	mu      sync.Mutex
	name    string
	buffers [][]byte
	layout  map[string]signalLayout
	syncCh  chan struct{}
}

// NewMemoryDataSource creates a data source with bufferCount buffers, each
// bufferBytes long.
func NewMemoryDataSource(name string, bufferCount, bufferBytes int) *MemoryDataSource {
	ds := &MemoryDataSource{
		name:   name,
		layout: make(map[string]signalLayout),
	}
	ds.buffers = make([][]byte, bufferCount)
	for i := range ds.buffers {
		ds.buffers[i] = make([]byte, bufferBytes)
	}
	return ds
}

// RegisterSignal declares a signal's byte offset/size and element kind
// within every buffer, and the broker class this data source recommends
// for it.
func (ds *MemoryDataSource) RegisterSignal(alias string, offset, size int, kind types.Kind, class BrokerClass) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.layout[alias] = signalLayout{offset: offset, size: size, kind: kind, class: class}
}

// EnableSynchronising turns Synchronise into a blocking receive on an
// internal channel that tests drive with Trigger.
func (ds *MemoryDataSource) EnableSynchronising() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.syncCh = make(chan struct{})
}

// Trigger unblocks one pending Synchronise call.
func (ds *MemoryDataSource) Trigger() {
	ds.mu.Lock()
	ch := ds.syncCh
	ds.mu.Unlock()
	if ch != nil {
		ch <- struct{}{}
	}
}

// Buffer exposes one buffer directly, for tests to seed or inspect memory.
func (ds *MemoryDataSource) Buffer(idx int) []byte {
	return ds.buffers[idx]
}

func (ds *MemoryDataSource) Name() string { return ds.name }

func (ds *MemoryDataSource) NumberOfMemoryBuffers() int { return len(ds.buffers) }

func (ds *MemoryDataSource) SignalMemory(alias string, bufferIdx int) ([]byte, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	l, ok := ds.layout[alias]
	if !ok {
		return nil, fmt.Errorf("datasource %s: unknown signal %q", ds.name, alias)
	}
	if bufferIdx < 0 || bufferIdx >= len(ds.buffers) {
		return nil, fmt.Errorf("datasource %s: buffer index %d out of range", ds.name, bufferIdx)
	}
	buf := ds.buffers[bufferIdx]
	if l.offset+l.size > len(buf) {
		return nil, fmt.Errorf("datasource %s: signal %q out of buffer bounds", ds.name, alias)
	}
	return buf[l.offset : l.offset+l.size], nil
}

func (ds *MemoryDataSource) SignalByteSize(alias string) (int, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	l, ok := ds.layout[alias]
	if !ok {
		return 0, fmt.Errorf("datasource %s: unknown signal %q", ds.name, alias)
	}
	return l.size, nil
}

func (ds *MemoryDataSource) ElementKind(alias string) (types.Kind, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	l, ok := ds.layout[alias]
	if !ok {
		return "", fmt.Errorf("datasource %s: unknown signal %q", ds.name, alias)
	}
	return l.kind, nil
}

func (ds *MemoryDataSource) BrokerClass(_ signal.Direction, alias string) (BrokerClass, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	l, ok := ds.layout[alias]
	if !ok {
		return DirectCopy, fmt.Errorf("datasource %s: unknown signal %q", ds.name, alias)
	}
	return l.class, nil
}

func (ds *MemoryDataSource) PrepareNextState(_, _ string) error { return nil }

func (ds *MemoryDataSource) Synchronise() error {
	ds.mu.Lock()
	ch := ds.syncCh
	ds.mu.Unlock()
	if ch == nil {
		return nil
	}
	<-ch
	return nil
}
