package function

import (
	"fmt"

	"github.com/cuemby/cyclone/pkg/signal"
	"github.com/cuemby/cyclone/pkg/types"
)

// Compute is a Generic function's per-cycle body. It reads input signal
// memory and writes output signal memory through the Generic it is given.
type Compute func(g *Generic) error

// Generic is a configuration-driven Function: its signal catalogue comes
// from the tree, its backing memory is allocated here from the declared
// descriptors, and its per-cycle computation is a caller-supplied Compute
// hook. It is the building block cmd/cyclonectl's demo classes and the
// application-level tests are made of; purpose-built functions implement
// the Function interface directly instead.
type Generic struct {
	Block
	name    string
	inputs  signal.Set
	outputs signal.Set
	setup   func(g *Generic) error
	compute Compute
}

// NewGeneric validates the declared signal sets, allocates one memory
// slice per signal (samples x masked-elements x element size, matching
// what the broker planner expects to bind against), and returns a ready
// Function.
func NewGeneric(name string, inputs, outputs signal.Set, compute Compute) (*Generic, error) {
	g := &Generic{
		Block:   NewBlock(),
		name:    name,
		inputs:  inputs,
		outputs: outputs,
		compute: compute,
	}
	for _, d := range inputs {
		size, err := signalBytes(d)
		if err != nil {
			return nil, fmt.Errorf("function %q: input %q: %w", name, d.Name, err)
		}
		g.DeclareInput(d.Name, size)
	}
	for _, d := range outputs {
		size, err := signalBytes(d)
		if err != nil {
			return nil, fmt.Errorf("function %q: output %q: %w", name, d.Name, err)
		}
		g.DeclareOutput(d.Name, size)
	}
	return g, nil
}

func signalBytes(d *signal.Descriptor) (int, error) {
	if err := d.Validate(); err != nil {
		return 0, err
	}
	elemSize, err := types.ElementSize(d.Kind)
	if err != nil {
		return 0, err
	}
	return d.SamplesPerCycle() * d.ElementsInRanges() * elemSize, nil
}

// OnSetup installs a hook run at every state prepare, after broker
// binding, before the state's first cycle.
func (g *Generic) OnSetup(fn func(g *Generic) error) { g.setup = fn }

func (g *Generic) Name() string              { return g.name }
func (g *Generic) InputSignals() signal.Set  { return g.inputs }
func (g *Generic) OutputSignals() signal.Set { return g.outputs }

func (g *Generic) Setup() error {
	if g.setup == nil {
		return nil
	}
	return g.setup(g)
}

func (g *Generic) Execute() error {
	if g.compute == nil {
		return nil
	}
	return g.compute(g)
}
