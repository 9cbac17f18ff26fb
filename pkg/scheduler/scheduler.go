package scheduler

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/cyclone/pkg/broker"
	"github.com/cuemby/cyclone/pkg/concurrency"
	"github.com/cuemby/cyclone/pkg/datasource"
	"github.com/cuemby/cyclone/pkg/embedded"
	"github.com/cuemby/cyclone/pkg/function"
	"github.com/cuemby/cyclone/pkg/log"
	"github.com/cuemby/cyclone/pkg/metrics"
	"github.com/cuemby/cyclone/pkg/types"
)

// boundFunction is one function instance together with the brokers planned
// for it in a particular state.
type boundFunction struct {
	fn      function.Function
	inputs  []broker.Broker
	outputs []broker.Broker
}

func (bf *boundFunction) startTriggers() {
	for _, b := range bf.outputs {
		if tb, ok := b.(*broker.TriggerBroker); ok {
			tb.Start()
		}
	}
}

func (bf *boundFunction) stopTriggers() {
	for _, b := range bf.outputs {
		if tb, ok := b.(*broker.TriggerBroker); ok {
			tb.Stop()
		}
	}
}

// threadConfig is one thread's complete binding for one state: the
// function list it runs each cycle, in order, with the brokers planned for
// each. A threadConfig is built off the real-time thread by
// planThreadConfig and then published to the owning thread as a single
// pointer store, so a cycle only ever sees a whole config.
type threadConfig struct {
	stateName string
	functions []*boundFunction
}

func (c *threadConfig) startTriggers() {
	for _, bf := range c.functions {
		bf.startTriggers()
	}
}

func (c *threadConfig) stopTriggers() {
	for _, bf := range c.functions {
		bf.stopTriggers()
	}
}

// commitRound is the shared state of one in-flight multi-thread
// reconfiguration commit: every affected thread, plus the scheduler
// itself, is a participant in rendez.
type commitRound struct {
	rendez  *concurrency.Rendezvous
	timeout time.Duration
}

// threadRuntime is the live state behind one ThreadDescriptor: the
// embedded.Thread hosting its cycle loop, its currently active config, any
// pending config awaiting commit, and its cycle counter, which stays
// monotonic across transitions.
type threadRuntime struct {
	desc   ThreadDescriptor
	thread *embedded.Thread

	config  atomic.Pointer[threadConfig]
	pending atomic.Pointer[threadConfig]
	round   atomic.Pointer[commitRound]
	cycle   atomic.Uint64
}

// Scheduler drives the real-time cycle for every thread of the currently
// active state and carries out live reconfiguration between states.
// Threads are created once, the first time a state
// references their name, and persist across later transitions: a
// transition rebinds a thread's functions and brokers, it does not tear
// the thread down and recreate it.
type Scheduler struct {
	registry *function.Registry
	sources  map[string]datasource.DataSource

	mu        sync.Mutex
	functions map[string]function.Function
	states    map[string]*StateDescriptor
	current   string
	threads   map[string]*threadRuntime
}

// New creates a scheduler over the given function registry and named data
// sources.
func New(registry *function.Registry, sources map[string]datasource.DataSource) *Scheduler {
	return &Scheduler{
		registry:  registry,
		sources:   sources,
		functions: make(map[string]function.Function),
		states:    make(map[string]*StateDescriptor),
		threads:   make(map[string]*threadRuntime),
	}
}

// AddFunction instantiates a function of the named registry class and
// keeps it under name for later thread binding. Function instances persist
// across states; only their broker bindings change on transition.
func (s *Scheduler) AddFunction(class, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.functions[name]; exists {
		return fmt.Errorf("scheduler: function %q already added", name)
	}
	fn, err := s.registry.New(class, name)
	if err != nil {
		return err
	}
	s.functions[name] = fn
	return nil
}

// AddInstance keeps an already-constructed function under its own name.
// The application root uses this when it builds the function itself from
// the configuration tree's declared signal sets instead of going through
// the registry's class lookup.
func (s *Scheduler) AddInstance(fn function.Function) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.functions[fn.Name()]; exists {
		return fmt.Errorf("scheduler: function %q already added", fn.Name())
	}
	s.functions[fn.Name()] = fn
	return nil
}

// AddState declares a state's thread wiring. Declaring the same name twice
// is a configure-time error.
func (s *Scheduler) AddState(sd StateDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.states[sd.Name]; exists {
		return fmt.Errorf("scheduler: state %q already declared", sd.Name)
	}
	cp := sd
	s.states[sd.Name] = &cp
	return nil
}

// Current returns the name of the state currently active.
func (s *Scheduler) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// ThreadNames returns the names of every thread created so far, in no
// particular order.
func (s *Scheduler) ThreadNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.threads))
	for name := range s.threads {
		names = append(names, name)
	}
	return names
}

// CycleCount returns the named thread's monotonic cycle counter.
func (s *Scheduler) CycleCount(threadName string) (uint64, bool) {
	s.mu.Lock()
	tr, ok := s.threads[threadName]
	s.mu.Unlock()
	if !ok {
		return 0, false
	}
	return tr.cycle.Load(), true
}

// planThreadConfig builds a threadConfig for one thread in the named
// target state: it plans brokers for each bound function, enforces the
// at-most-one-synchronising-signal-per-thread rule across every function
// sharing the thread, applies declared signal defaults, and runs each
// function's Setup.
func (s *Scheduler) planThreadConfig(td ThreadDescriptor, stateName string) (*threadConfig, error) {
	var bound []*boundFunction
	syncCount := 0
	triggeredSources := make(map[string]string)

	for _, fname := range td.Functions {
		s.mu.Lock()
		fn, ok := s.functions[fname]
		s.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("scheduler: thread %q: function %q not added", td.Name, fname)
		}

		inputs, outputs, err := broker.Plan(fn, s.sources)
		if err != nil {
			return nil, fmt.Errorf("scheduler: thread %q: function %q: %w", td.Name, fname, err)
		}
		for _, b := range inputs {
			if b.Class() == datasource.SynchronisingInput {
				syncCount++
			}
		}
		for _, b := range outputs {
			if b.Class() == datasource.SynchronisingOutput {
				syncCount++
			}
		}
		for _, d := range fn.OutputSignals() {
			if !d.IsTriggered() {
				continue
			}
			if prev, taken := triggeredSources[d.DataSource]; taken && prev != fname {
				return nil, fmt.Errorf("scheduler: thread %q: functions %q and %q both write triggered output to data source %q",
					td.Name, prev, fname, d.DataSource)
			}
			triggeredSources[d.DataSource] = fname
		}

		if err := s.applyDefaults(fn); err != nil {
			return nil, fmt.Errorf("scheduler: thread %q: function %q: %w", td.Name, fname, err)
		}
		if err := fn.Setup(); err != nil {
			return nil, fmt.Errorf("scheduler: thread %q: function %q setup: %w", td.Name, fname, err)
		}

		bound = append(bound, &boundFunction{fn: fn, inputs: inputs, outputs: outputs})
	}

	if syncCount > 1 {
		return nil, fmt.Errorf("scheduler: thread %q: more than one synchronising signal bound across its functions", td.Name)
	}

	return &threadConfig{stateName: stateName, functions: bound}, nil
}

// applyDefaults writes the declared default value of each of a function's
// input signals into every buffer of its bound data source, so the signal
// starts from its declared default instead of stale or zeroed memory.
// Defaults declared on output signals are not applied.
func (s *Scheduler) applyDefaults(fn function.Function) error {
	for _, d := range fn.InputSignals() {
		if d.Default == nil {
			continue
		}
		ds, ok := s.sources[d.DataSource]
		if !ok {
			continue
		}
		elemSize, err := types.ElementSize(d.Kind)
		if err != nil {
			continue
		}
		for buf := 0; buf < ds.NumberOfMemoryBuffers(); buf++ {
			mem, err := ds.SignalMemory(d.DataSourceAlias(), buf)
			if err != nil {
				return err
			}
			for off := 0; off+elemSize <= len(mem); off += elemSize {
				if err := d.Default.Encode(mem[off:off+elemSize], types.LittleEndian); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Prepare builds and activates the named state's thread configs without
// starting any thread. It is the prepare half of the configure ->
// prepare -> start sequence; call Start afterward to launch the cycle
// loops.
func (s *Scheduler) Prepare(stateName string) error {
	s.mu.Lock()
	sd, ok := s.states[stateName]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: state %q not declared", stateName)
	}

	for _, td := range sd.Threads {
		cfg, err := s.planThreadConfig(td, stateName)
		if err != nil {
			return fmt.Errorf("scheduler: prepare %q: %w", stateName, err)
		}
		s.mu.Lock()
		tr, exists := s.threads[td.Name]
		if !exists {
			tr = &threadRuntime{desc: td}
			s.threads[td.Name] = tr
		}
		s.mu.Unlock()
		cfg.startTriggers()
		tr.config.Store(cfg)
	}

	s.mu.Lock()
	s.current = stateName
	s.mu.Unlock()
	return nil
}

// Start launches every thread's cycle loop. Call after Prepare.
func (s *Scheduler) Start(startTimeout time.Duration) error {
	s.mu.Lock()
	runtimes := make([]*threadRuntime, 0, len(s.threads))
	for _, tr := range s.threads {
		runtimes = append(runtimes, tr)
	}
	s.mu.Unlock()

	for _, tr := range runtimes {
		tr.thread = embedded.NewThread(tr.desc.Name, s.cycleFn(tr), false)
		if err := tr.thread.Start(startTimeout); err != nil {
			return fmt.Errorf("scheduler: start thread %q: %w", tr.desc.Name, err)
		}
		metrics.ThreadsRunning.WithLabelValues("engine").Inc()
		threadLog := log.WithThread(tr.desc.Name)
		threadLog.Info().Msg("cycle thread started")
	}
	return nil
}

// Stop stops every running thread, waiting up to stopTimeout each,
// concurrently.
func (s *Scheduler) Stop(stopTimeout time.Duration) {
	s.mu.Lock()
	runtimes := make([]*threadRuntime, 0, len(s.threads))
	for _, tr := range s.threads {
		runtimes = append(runtimes, tr)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, tr := range runtimes {
		wg.Add(1)
		go func(tr *threadRuntime) {
			defer wg.Done()
			if tr.thread == nil {
				return
			}
			tr.thread.Stop(stopTimeout)
			metrics.ThreadsRunning.WithLabelValues("engine").Dec()
			if cfg := tr.config.Load(); cfg != nil {
				cfg.stopTriggers()
			}
		}(tr)
	}
	wg.Wait()
}

// TransitionTo moves the engine from its current state to targetState.
// Every thread the target state names must already be
// running (transitions rebind an existing thread's functions; they don't
// spawn new ones). Each affected thread's replacement config is built off
// the real-time thread first; a state with a single thread commits the
// swap immediately, a state with more than one thread commits only once
// every affected thread has reached its own cycle boundary, via a
// counting rendezvous the scheduler itself also participates in. If
// commitTimeout elapses before every thread arrives, the rendezvous is
// force-reset and every thread remains on its previous
// config; a thread that was already past its own arrival
// when the timeout fired sees the reset round and starts a fresh,
// uncommitted one of its own, which times out after commitTimeout: that
// thread's next cycle is delayed by up to commitTimeout and its config is
// left unchanged.
func (s *Scheduler) TransitionTo(targetState string, commitTimeout time.Duration) error {
	s.mu.Lock()
	sd, ok := s.states[targetState]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: state %q not declared", targetState)
	}

	var runtimes []*threadRuntime
	for _, td := range sd.Threads {
		s.mu.Lock()
		tr, exists := s.threads[td.Name]
		s.mu.Unlock()
		if !exists {
			return fmt.Errorf("scheduler: transition to %q: thread %q is not running", targetState, td.Name)
		}
		cfg, err := s.planThreadConfig(td, targetState)
		if err != nil {
			return fmt.Errorf("scheduler: transition to %q: %w", targetState, err)
		}
		tr.pending.Store(cfg)
		runtimes = append(runtimes, tr)
	}

	timer := metrics.NewTimer()
	var commitErr error

	if len(runtimes) <= 1 {
		for _, tr := range runtimes {
			old := tr.config.Load()
			cfg := tr.pending.Load()
			cfg.startTriggers()
			tr.config.Store(cfg)
			if old != nil {
				old.stopTriggers()
			}
		}
		metrics.ReconfigurationsTotal.WithLabelValues("committed").Inc()
	} else {
		for _, tr := range runtimes {
			tr.pending.Load().startTriggers()
		}
		rendez, err := concurrency.NewRendezvous(len(runtimes) + 1)
		if err != nil {
			return err
		}
		round := &commitRound{rendez: rendez, timeout: commitTimeout}
		for _, tr := range runtimes {
			tr.round.Store(round)
		}

		res := rendez.WaitForAll(commitTimeout)
		if res == concurrency.RendezvousSuccess {
			metrics.ReconfigurationsTotal.WithLabelValues("committed").Inc()
		} else {
			rendez.ForceReset()
			for _, tr := range runtimes {
				tr.round.Store(nil)
				tr.pending.Load().stopTriggers()
			}
			metrics.ReconfigurationsTotal.WithLabelValues("timeout").Inc()
			commitErr = fmt.Errorf("scheduler: transition to %q: commit rendezvous timed out, remaining on previous state", targetState)
		}
	}
	timer.ObserveDuration(metrics.RendezvousWait)

	if commitErr != nil {
		return commitErr
	}

	s.mu.Lock()
	s.current = targetState
	s.mu.Unlock()
	return nil
}

// executeBroker runs one broker's per-cycle step and feeds its duration,
// by broker class, into the execute-latency histogram.
func (s *Scheduler) executeBroker(b broker.Broker, cycle uint64) bool {
	timer := metrics.NewTimer()
	ok := b.Execute(cycle)
	timer.ObserveDurationVec(metrics.BrokerExecuteDuration, b.Class().String())
	return ok
}

// cycleFn returns the embedded.Callable that drives one thread's real-time
// loop: at StageMain it first services any pending reconfiguration commit,
// then runs the thread's current function list once, in order, moving each
// function's inputs in, executing it, and moving its outputs out.
func (s *Scheduler) cycleFn(tr *threadRuntime) embedded.Callable {
	return func(info embedded.ExecutionInfo) embedded.ErrorCode {
		if info.Stage != embedded.StageMain {
			return embedded.OK
		}

		if round := tr.round.Load(); round != nil {
			res := round.rendez.WaitForAll(round.timeout)
			tr.round.Store(nil)
			if res == concurrency.RendezvousSuccess {
				old := tr.config.Load()
				tr.config.Store(tr.pending.Load())
				if old != nil {
					old.stopTriggers()
				}
			}
		}

		cfg := tr.config.Load()
		if cfg == nil {
			return embedded.OK
		}

		cycle := tr.cycle.Load()
		cycleLog := log.WithCycle(tr.desc.Name, cycle)
		timer := metrics.NewTimer()

		for _, bf := range cfg.functions {
			for _, b := range bf.inputs {
				if !s.executeBroker(b, cycle) {
					cycleLog.Error().Str("signal", b.SignalName()).Msg("input broker execute failed")
				}
			}
			if err := bf.fn.Execute(); err != nil {
				cycleLog.Error().Str("function", bf.fn.Name()).Err(err).Msg("function execute failed")
			}
			for _, b := range bf.outputs {
				if !s.executeBroker(b, cycle) {
					cycleLog.Error().Str("signal", b.SignalName()).Msg("output broker execute failed")
				}
				if tb, ok := b.(*broker.TriggerBroker); ok {
					metrics.OverrunsTotal.WithLabelValues(b.SignalName()).Set(float64(tb.Overruns()))
				}
			}
		}

		timer.ObserveDurationVec(metrics.CycleDuration, tr.desc.Name)
		metrics.CyclesTotal.WithLabelValues(tr.desc.Name).Inc()
		tr.cycle.Add(1)
		return embedded.OK
	}
}
