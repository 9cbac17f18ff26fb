// Package app is the application root: it consumes an already-parsed
// configuration tree, instantiates the functions and checks the data
// sources it names, wires the scheduler and the state machine over a
// shared message bus, and drives the configure -> prepare(state0) ->
// start(state0) -> ... stop lifecycle.
//
// The recognised top-level structure of the tree is:
//
//	Application {
//	  Functions { <Name> { Class; InputSignals {...}; OutputSignals {...} } }
//	  Data      { <Name> { Class } }
//	  States    { <Name> { Threads { <Name> { CPUs; StackSize; Functions } } } }
//	  Scheduler { TimingDataSource }
//	  StateMachine { <State> { <Event> { NextState; NextStateError; Timeout; Messages {...} } } }
//	}
//
// List-valued fields (Functions of a thread, CPUs, a signal's Ranges) are
// containers whose children are read in insertion order; the child names
// themselves do not matter.
package app
