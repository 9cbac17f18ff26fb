package main

import (
	"encoding/binary"
	"fmt"

	"github.com/cuemby/cyclone/pkg/app"
	"github.com/cuemby/cyclone/pkg/datasource"
	"github.com/cuemby/cyclone/pkg/function"
	"github.com/cuemby/cyclone/pkg/signal"
	"github.com/cuemby/cyclone/pkg/tree"
	"github.com/cuemby/cyclone/pkg/types"
)

// demoConfig is the built-in configuration used when no file is given: a
// counter feeding a passthrough across two memory data sources, with a
// two-state machine whose GoRun event moves the scheduler from Idle to
// Run.
const demoConfig = `
Application:
  Functions:
    counter:
      Class: Counter
      OutputSignals:
        count:
          Type: uint32
          DataSource: loop
    relay:
      Class: Passthrough
      InputSignals:
        count:
          Type: uint32
          DataSource: loop
      OutputSignals:
        count:
          Type: uint32
          DataSource: sink
  Data:
    loop:
      Class: MemoryDataSource
      Buffers: 1
      Signals:
        count:
          Type: uint32
    sink:
      Class: MemoryDataSource
      Buffers: 1
      Signals:
        count:
          Type: uint32
  States:
    Idle:
      Threads:
        main:
          Functions: [counter]
    Run:
      Threads:
        main:
          Functions: [counter, relay]
  Scheduler:
    TimingDataSource: loop
  StateMachine:
    IDLE:
      GoRun:
        NextState: RUNNING
        NextStateError: IDLE
        Timeout: 2s
        Messages:
          - Destination: Application
            Function: transition
            ExpectReply: 1
            Timeout: 1s
            Payload:
              State: Run
    RUNNING: {}
`

// demoRegistry registers the CLI's built-in function classes. Both take
// their signal sets from the configuration tree.
func demoRegistry() (*function.Registry, error) {
	registry := function.NewRegistry()

	// Passthrough copies its first input signal into its first output
	// signal every cycle.
	err := registry.RegisterConfigurable("Passthrough",
		func(name string, inputs, outputs signal.Set) (function.Function, error) {
			if len(inputs) == 0 || len(outputs) == 0 {
				return nil, fmt.Errorf("class Passthrough needs one input and one output signal")
			}
			return function.NewGeneric(name, inputs, outputs, func(g *function.Generic) error {
				in, err := g.InputMemory(inputs[0].Name)
				if err != nil {
					return err
				}
				out, err := g.OutputMemory(outputs[0].Name)
				if err != nil {
					return err
				}
				copy(out, in)
				return nil
			})
		})
	if err != nil {
		return nil, err
	}

	// Counter writes an incrementing uint32 into its first output signal.
	err = registry.RegisterConfigurable("Counter",
		func(name string, inputs, outputs signal.Set) (function.Function, error) {
			if len(outputs) == 0 {
				return nil, fmt.Errorf("class Counter needs one output signal")
			}
			var n uint32
			return function.NewGeneric(name, inputs, outputs, func(g *function.Generic) error {
				out, err := g.OutputMemory(outputs[0].Name)
				if err != nil {
					return err
				}
				n++
				binary.LittleEndian.PutUint32(out, n)
				return nil
			})
		})
	if err != nil {
		return nil, err
	}

	return registry, nil
}

var brokerClassNames = map[string]datasource.BrokerClass{
	"DirectCopy":          datasource.DirectCopy,
	"MultiBuffer":         datasource.MultiBuffer,
	"SynchronisingInput":  datasource.SynchronisingInput,
	"SynchronisingOutput": datasource.SynchronisingOutput,
	"TriggerOutput":       datasource.TriggerOutput,
}

// memorySourceFactory builds a MemoryDataSource from a Data.<Name> node:
// Buffers (default 1) and a Signals container laid out in declaration
// order. It is the app.SourceFactory the CLI hands to app.New; concrete
// hardware drivers would be registered the same way.
func memorySourceFactory(class, name string, node *tree.Node) (datasource.DataSource, error) {
	if class != "MemoryDataSource" {
		return nil, fmt.Errorf("unknown data source class %q", class)
	}

	buffers := 1
	if b, ok := node.Child("Buffers", false); ok {
		if v, isLeaf := b.Value(); isLeaf {
			buffers = int(v.Int())
			if buffers < 1 {
				return nil, fmt.Errorf("data source %q: Buffers must be >= 1", name)
			}
		}
	}

	signalsNode, ok := node.Child("Signals", false)
	if !ok {
		return nil, fmt.Errorf("data source %q: no Signals declared", name)
	}

	type layout struct {
		alias  string
		offset int
		size   int
		kind   types.Kind
		class  datasource.BrokerClass
	}
	var layouts []layout
	offset := 0
	for _, sn := range signalsNode.Children() {
		kindText := ""
		if leaf, ok := sn.Child("Type", false); ok {
			if v, isLeaf := leaf.Value(); isLeaf {
				kindText = v.Text()
			}
		}
		kind := types.Kind(kindText)
		elemSize, err := types.ElementSize(kind)
		if err != nil {
			return nil, fmt.Errorf("data source %q: signal %q: %w", name, sn.Name(), err)
		}
		elems := 1
		if leaf, ok := sn.Child("NumberOfElements", false); ok {
			if v, isLeaf := leaf.Value(); isLeaf {
				elems = int(v.Int())
			}
		}
		class := datasource.DirectCopy
		if leaf, ok := sn.Child("Broker", false); ok {
			if v, isLeaf := leaf.Value(); isLeaf {
				bc, known := brokerClassNames[v.Text()]
				if !known {
					return nil, fmt.Errorf("data source %q: signal %q: unknown broker %q", name, sn.Name(), v.Text())
				}
				class = bc
			}
		}
		size := elems * elemSize
		layouts = append(layouts, layout{alias: sn.Name(), offset: offset, size: size, kind: kind, class: class})
		offset += size
	}
	if len(layouts) == 0 {
		return nil, fmt.Errorf("data source %q: Signals is empty", name)
	}

	ds := datasource.NewMemoryDataSource(name, buffers, offset)
	for _, l := range layouts {
		ds.RegisterSignal(l.alias, l.offset, l.size, l.kind, l.class)
	}
	return ds, nil
}

// buildApplication assembles an Application from a configuration file
// path ("" selects the built-in demo configuration).
func buildApplication(path string) (*app.Application, error) {
	var (
		cfg *tree.Node
		err error
	)
	if path == "" {
		cfg, err = parseTree([]byte(demoConfig))
	} else {
		cfg, err = loadTree(path)
	}
	if err != nil {
		return nil, err
	}
	registry, err := demoRegistry()
	if err != nil {
		return nil, err
	}
	return app.New(cfg, app.Options{
		Registry:      registry,
		SourceFactory: memorySourceFactory,
	}), nil
}
