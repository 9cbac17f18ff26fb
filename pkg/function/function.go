// Package function defines the contract a computation module must satisfy
// and a name-keyed registry functions are
// looked up by when a state binds them into a thread. The object-registry
// reflection layer that instantiates a concrete function from a
// configuration-tree node is out of scope; this registry is
// the minimal "given a type name, produce a Function" seam the core needs.
package function

import (
	"fmt"
	"sync"

	"github.com/cuemby/cyclone/pkg/signal"
)

// Function is a computation unit invoked once per cycle in a thread.
// Setup is called at state prepare, before the first
// Execute of a new state; Execute is called once per cycle.
type Function interface {
	// Name identifies this function instance within the configuration
	// tree and in diagnostics.
	Name() string

	// InputSignals and OutputSignals declare the signal sets the broker
	// planner binds brokers against. They are read at configure time and
	// must not change thereafter.
	InputSignals() signal.Set
	OutputSignals() signal.Set

	// InputMemory returns this function's own backing memory for the
	// named input signal, sized for SamplesPerCycle() contiguous copies of
	// the signal's element layout. The broker planner copies data-source
	// bytes into this slice once per cycle, before Execute runs; Execute
	// only ever reads it.
	InputMemory(name string) ([]byte, error)

	// OutputMemory is the output-side equivalent: Execute writes into it,
	// and the broker planner copies it out to the bound data source after
	// Execute returns.
	OutputMemory(name string) ([]byte, error)

	// Setup is called once per state prepare, before the state's first
	// cycle, after broker binding but before any Execute.
	Setup() error

	// Execute runs one cycle's worth of computation. It must not block
	// indefinitely and must not allocate on a correctly sized
	// implementation's hot path.
	Execute() error
}

// Constructor builds a Function instance given its declared name. A real
// object-registry/class-factory layer (out of scope here) would pass a
// configuration-tree node too; constructors that need configuration close
// over it themselves before being registered.
type Constructor func(name string) (Function, error)

// TreeConstructor builds a Function from its name plus the signal sets the
// configuration tree declares for it. Classes registered this way get
// their signal catalogue from the application's configuration rather than
// from code.
type TreeConstructor func(name string, inputs, outputs signal.Set) (Function, error)

// Registry maps a class name (as named by a configuration tree's
// Functions.<Name>.Class field) to a Constructor.
type Registry struct {
	mu        sync.RWMutex
	ctors     map[string]Constructor
	treeCtors map[string]TreeConstructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		ctors:     make(map[string]Constructor),
		treeCtors: make(map[string]TreeConstructor),
	}
}

// Register installs a constructor under a class name. Registering the same
// class name twice is a configure-time error.
func (r *Registry) Register(class string, ctor Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkFree(class); err != nil {
		return err
	}
	r.ctors[class] = ctor
	return nil
}

// RegisterConfigurable installs a tree-aware constructor under a class
// name, for classes whose signal sets come from the configuration tree.
func (r *Registry) RegisterConfigurable(class string, ctor TreeConstructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkFree(class); err != nil {
		return err
	}
	r.treeCtors[class] = ctor
	return nil
}

func (r *Registry) checkFree(class string) error {
	if _, exists := r.ctors[class]; exists {
		return fmt.Errorf("function: class %q already registered", class)
	}
	if _, exists := r.treeCtors[class]; exists {
		return fmt.Errorf("function: class %q already registered", class)
	}
	return nil
}

// New constructs a function of the named class.
func (r *Registry) New(class, name string) (Function, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[class]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("function: unknown class %q", class)
	}
	return ctor(name)
}

// NewConfigured constructs a function of the named class, handing a
// tree-aware class the declared signal sets. A class registered with plain
// Register ignores the sets: its signals are declared in code.
func (r *Registry) NewConfigured(class, name string, inputs, outputs signal.Set) (Function, error) {
	r.mu.RLock()
	treeCtor, isTree := r.treeCtors[class]
	ctor, isPlain := r.ctors[class]
	r.mu.RUnlock()
	switch {
	case isTree:
		return treeCtor(name, inputs, outputs)
	case isPlain:
		return ctor(name)
	default:
		return nil, fmt.Errorf("function: unknown class %q", class)
	}
}
