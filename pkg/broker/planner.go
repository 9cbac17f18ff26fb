package broker

import (
	"fmt"

	"github.com/cuemby/cyclone/pkg/datasource"
	"github.com/cuemby/cyclone/pkg/function"
	"github.com/cuemby/cyclone/pkg/signal"
	"github.com/cuemby/cyclone/pkg/types"
)

// Plan synthesizes the input and output brokers a function needs, given
// the data sources its signals name. It is called once per
// state prepare, off the real-time thread; every Broker it returns is
// immediately usable from Execute with no further allocation.
func Plan(f function.Function, sources map[string]datasource.DataSource) (inputs, outputs []Broker, err error) {
	inputs, err = planDirection(f, sources, signal.Input, f.InputSignals())
	if err != nil {
		return nil, nil, err
	}
	outputs, err = planDirection(f, sources, signal.Output, f.OutputSignals())
	if err != nil {
		return nil, nil, err
	}
	return inputs, outputs, nil
}

func planDirection(f function.Function, sources map[string]datasource.DataSource, dir signal.Direction, set signal.Set) ([]Broker, error) {
	var brokers []Broker
	for _, d := range set {
		b, err := planOne(f, sources, dir, d)
		if err != nil {
			return nil, fmt.Errorf("broker: signal %q: %w", d.Name, err)
		}
		brokers = append(brokers, b)
	}
	return brokers, nil
}

func planOne(f function.Function, sources map[string]datasource.DataSource, dir signal.Direction, d *signal.Descriptor) (Broker, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	ds, ok := sources[d.DataSource]
	if !ok {
		return nil, fmt.Errorf("unknown data source %q", d.DataSource)
	}

	dsKind, err := ds.ElementKind(d.DataSourceAlias())
	if err != nil {
		return nil, err
	}
	if !types.SameLayout(d.Kind, dsKind) {
		return nil, fmt.Errorf("function kind %s and data source kind %s cannot be byte-copied", d.Kind, dsKind)
	}

	elemSize, err := types.ElementSize(d.Kind)
	if err != nil {
		return nil, err
	}

	dsByteSize, err := ds.SignalByteSize(d.DataSourceAlias())
	if err != nil {
		return nil, err
	}
	if wantDS := d.ElementCount() * elemSize; dsByteSize != wantDS {
		return nil, fmt.Errorf("data source reports %d bytes, declared element count implies %d", dsByteSize, wantDS)
	}

	var functionMem []byte
	if dir == signal.Input {
		functionMem, err = f.InputMemory(d.Name)
	} else {
		functionMem, err = f.OutputMemory(d.Name)
	}
	if err != nil {
		return nil, err
	}

	samples := d.SamplesPerCycle()
	if wantFn := samples * d.ElementsInRanges() * elemSize; len(functionMem) != wantFn {
		return nil, fmt.Errorf("function memory is %d bytes, want %d (samples=%d elements=%d elemSize=%d)",
			len(functionMem), wantFn, samples, d.ElementsInRanges(), elemSize)
	}

	class, err := classify(d, ds, dir)
	if err != nil {
		return nil, err
	}

	return build(d, ds, dir, class, functionMem, elemSize)
}

// classify applies the broker selection rules, in priority order:
// trigger capture depth forces TriggerOutput, multi-sample forces
// MultiBuffer, a declared sample frequency forces the matching
// synchronising class, and everything else defers to the data source's
// own recommendation.
func classify(d *signal.Descriptor, ds datasource.DataSource, dir signal.Direction) (datasource.BrokerClass, error) {
	switch {
	case d.IsTriggered():
		if dir != signal.Output {
			return 0, fmt.Errorf("pre/post-trigger depth declared on an input signal")
		}
		return datasource.TriggerOutput, nil
	case d.SamplesPerCycle() > 1:
		return datasource.MultiBuffer, nil
	case d.IsSynchronising():
		if dir == signal.Input {
			return datasource.SynchronisingInput, nil
		}
		return datasource.SynchronisingOutput, nil
	default:
		return ds.BrokerClass(dir, d.DataSourceAlias())
	}
}

// ranges returns the descriptor's range mask, or a single range spanning
// its whole declared element count when no mask was given.
func ranges(d *signal.Descriptor) []signal.Range {
	if len(d.Ranges) == 0 {
		return []signal.Range{{Lo: 0, Hi: d.ElementCount() - 1}}
	}
	return d.Ranges
}

func build(d *signal.Descriptor, ds datasource.DataSource, dir signal.Direction, class datasource.BrokerClass, functionMem []byte, elemSize int) (Broker, error) {
	switch class {
	case datasource.DirectCopy, datasource.SynchronisingInput, datasource.SynchronisingOutput:
		spans, err := fixedSpans(d, ds, dir, functionMem, elemSize)
		if err != nil {
			return nil, err
		}
		switch class {
		case datasource.DirectCopy:
			return &directCopyBroker{name: d.Name, spans: spans}, nil
		case datasource.SynchronisingInput:
			return &synchronisingInputBroker{name: d.Name, ds: ds, spans: spans}, nil
		default:
			return &synchronisingOutputBroker{name: d.Name, ds: ds, spans: spans}, nil
		}

	case datasource.MultiBuffer:
		bufferCount := ds.NumberOfMemoryBuffers()
		if bufferCount < 1 {
			return nil, fmt.Errorf("data source %q reports %d buffers", ds.Name(), bufferCount)
		}
		if d.SamplesPerCycle() > bufferCount {
			return nil, fmt.Errorf("%d samples per cycle exceed data source %q's %d buffers",
				d.SamplesPerCycle(), ds.Name(), bufferCount)
		}
		var entries []multiBufferEntry
		funcOffset := 0
		for i := 0; i < d.SamplesPerCycle(); i++ {
			for _, r := range ranges(d) {
				n := (r.Hi - r.Lo + 1) * elemSize
				entries = append(entries, multiBufferEntry{
					functionMemory: functionMem[funcOffset : funcOffset+n],
					ds:             ds,
					alias:          d.DataSourceAlias(),
					dsOffset:       r.Lo * elemSize,
					byteCount:      n,
					sampleOffset:   i,
					bufferCount:    bufferCount,
					isInput:        dir == signal.Input,
				})
				funcOffset += n
			}
		}
		return &multiBufferBroker{name: d.Name, entries: entries}, nil

	case datasource.TriggerOutput:
		capacity := d.PreTriggerBuffers + d.PostTriggerBuffers + 1
		tb, err := NewTriggerBroker(d.Name, functionMem, TriggerSource(d.TriggerCondition), d.PreTriggerBuffers, d.PostTriggerBuffers, capacity, ds, d.DataSourceAlias())
		if err != nil {
			return nil, err
		}
		return tb, nil

	default:
		return nil, fmt.Errorf("unrecognised broker class %v", class)
	}
}

// fixedSpans resolves one buffer's worth of (function, data source) byte
// spans at plan time. Valid for DirectCopy and the synchronising classes,
// all of which address a single, state-stable buffer (buffer index 0);
// a data source's buffer addresses are stable across a state, so
// resolving once here is safe and keeps Execute allocation-free.
func fixedSpans(d *signal.Descriptor, ds datasource.DataSource, dir signal.Direction, functionMem []byte, elemSize int) ([]copySpan, error) {
	mem, err := ds.SignalMemory(d.DataSourceAlias(), 0)
	if err != nil {
		return nil, err
	}
	var spans []copySpan
	funcOffset := 0
	for _, r := range ranges(d) {
		byteOffset := r.Lo * elemSize
		n := (r.Hi - r.Lo + 1) * elemSize
		if byteOffset+n > len(mem) {
			return nil, fmt.Errorf("range [%d,%d] out of data source bounds", r.Lo, r.Hi)
		}
		dsSpan := mem[byteOffset : byteOffset+n]
		fnSpan := functionMem[funcOffset : funcOffset+n]
		if dir == signal.Input {
			spans = append(spans, copySpan{dst: fnSpan, src: dsSpan, n: n})
		} else {
			spans = append(spans, copySpan{dst: dsSpan, src: fnSpan, n: n})
		}
		funcOffset += n
	}
	return spans, nil
}
