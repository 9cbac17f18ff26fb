package app

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/cyclone/pkg/concurrency"
	"github.com/cuemby/cyclone/pkg/datasource"
	"github.com/cuemby/cyclone/pkg/embedded"
	"github.com/cuemby/cyclone/pkg/function"
	"github.com/cuemby/cyclone/pkg/log"
	"github.com/cuemby/cyclone/pkg/messaging"
	"github.com/cuemby/cyclone/pkg/scheduler"
	"github.com/cuemby/cyclone/pkg/signal"
	"github.com/cuemby/cyclone/pkg/statemachine"
	"github.com/cuemby/cyclone/pkg/tree"
	"github.com/cuemby/cyclone/pkg/types"
)

// Destination is the bus address the application root listens on. The
// state machine's MessageLists target it to drive prepare/transition/stop.
const Destination = "Application"

// MachineDestination is the bus address of the application's state
// machine; external transition requests go there.
const MachineDestination = "StateMachine"

const dispatchPollInterval = 100 * time.Millisecond

// SourceFactory builds a concrete data source from its declared class and
// its Data.<Name> configuration node. Concrete drivers are external
// collaborators; the factory is how a host hands them in.
type SourceFactory func(class, name string, node *tree.Node) (datasource.DataSource, error)

// Options carries the collaborators and timeouts an Application is built
// with. Sources supplies pre-built data sources by name; SourceFactory
// covers Data entries not present in Sources. Zero timeouts fall back to
// the package defaults.
type Options struct {
	Registry      *function.Registry
	Sources       map[string]datasource.DataSource
	SourceFactory SourceFactory

	StartTimeout  time.Duration
	StopTimeout   time.Duration
	CommitTimeout time.Duration
}

const (
	defaultStartTimeout  = 5 * time.Second
	defaultStopTimeout   = 5 * time.Second
	defaultCommitTimeout = time.Second
)

func (o Options) startTimeout() time.Duration {
	if o.StartTimeout > 0 {
		return o.StartTimeout
	}
	return defaultStartTimeout
}

func (o Options) stopTimeout() time.Duration {
	if o.StopTimeout > 0 {
		return o.StopTimeout
	}
	return defaultStopTimeout
}

func (o Options) commitTimeout() time.Duration {
	if o.CommitTimeout > 0 {
		return o.CommitTimeout
	}
	return defaultCommitTimeout
}

// Application is the root object: it exclusively owns the configuration
// tree, the message bus, the scheduler, and the state machine.
type Application struct {
	cfg  *tree.Node
	opts Options

	bus        *messaging.Bus
	sched      *scheduler.Scheduler
	machine    *statemachine.Machine
	filter     *concurrency.MessageFilter
	dispatcher *embedded.Thread

	mu         sync.Mutex
	sources    map[string]datasource.DataSource
	firstState string
	timingName string
	configured bool
	running    bool
}

// New creates an application over cfg, which is either the Application
// node itself or a root containing one.
func New(cfg *tree.Node, opts Options) *Application {
	if appNode, ok := cfg.Child("Application", false); ok {
		cfg = appNode
	}
	return &Application{
		cfg:     cfg,
		opts:    opts,
		bus:     messaging.NewBus(),
		sources: make(map[string]datasource.DataSource),
	}
}

// Bus exposes the application's message bus, so hosts can register their
// own destinations before Configure runs.
func (a *Application) Bus() *messaging.Bus { return a.bus }

// Configure walks the tree and builds every collaborator: data sources,
// function instances (with their tree-declared signal sets), state
// descriptors, and the state machine. It registers the application's own
// permanent filter on the bus but starts no thread; the process does not
// enter Running if any step fails.
func (a *Application) Configure() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.configured {
		return fmt.Errorf("%w: already configured", ErrConfiguration)
	}
	if a.opts.Registry == nil {
		return fmt.Errorf("%w: no function registry supplied", ErrConfiguration)
	}

	if err := a.configureData(); err != nil {
		return fmt.Errorf("%w: %s", ErrConfiguration, err)
	}
	a.sched = scheduler.New(a.opts.Registry, a.sources)
	if err := a.configureFunctions(); err != nil {
		return fmt.Errorf("%w: %s", ErrConfiguration, err)
	}
	if err := a.configureStates(); err != nil {
		return fmt.Errorf("%w: %s", ErrConfiguration, err)
	}
	if err := a.configureScheduler(); err != nil {
		return fmt.Errorf("%w: %s", ErrConfiguration, err)
	}

	filter, err := a.bus.Register(Destination)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrConfiguration, err)
	}
	a.filter = filter

	if err := a.configureStateMachine(); err != nil {
		return fmt.Errorf("%w: %s", ErrConfiguration, err)
	}

	a.configured = true
	appLog := log.WithComponent("app")
	appLog.Info().Str("first_state", a.firstState).Msg("configured")
	return nil
}

func (a *Application) configureData() error {
	data, ok := a.cfg.Child("Data", false)
	if !ok {
		return fmt.Errorf("no Data section at %s", a.cfg.Path())
	}
	for _, node := range data.Children() {
		name := node.Name()
		if ds, supplied := a.opts.Sources[name]; supplied {
			a.sources[name] = ds
			continue
		}
		class, hasClass := leafString(node, "Class")
		if !hasClass || a.opts.SourceFactory == nil {
			return fmt.Errorf("data source %q: no instance supplied and no factory/class to build one", name)
		}
		ds, err := a.opts.SourceFactory(class, name, node)
		if err != nil {
			return fmt.Errorf("data source %q: %w", name, err)
		}
		a.sources[name] = ds
	}
	if len(a.sources) == 0 {
		return fmt.Errorf("Data section declares no data sources")
	}
	return nil
}

func (a *Application) configureFunctions() error {
	functions, ok := a.cfg.Child("Functions", false)
	if !ok {
		return fmt.Errorf("no Functions section at %s", a.cfg.Path())
	}
	for _, node := range functions.Children() {
		name := node.Name()
		class, hasClass := leafString(node, "Class")
		if !hasClass {
			return fmt.Errorf("function %q: no Class declared", name)
		}

		var inputs, outputs signal.Set
		if in, present := node.Child("InputSignals", false); present {
			set, err := parseSignals(in)
			if err != nil {
				return fmt.Errorf("function %q: %w", name, err)
			}
			inputs = set
		}
		if out, present := node.Child("OutputSignals", false); present {
			set, err := parseSignals(out)
			if err != nil {
				return fmt.Errorf("function %q: %w", name, err)
			}
			outputs = set
		}

		fn, err := a.opts.Registry.NewConfigured(class, name, inputs, outputs)
		if err != nil {
			return fmt.Errorf("function %q: %w", name, err)
		}
		if err := a.sched.AddInstance(fn); err != nil {
			return err
		}
	}
	return nil
}

func (a *Application) configureStates() error {
	states, ok := a.cfg.Child("States", false)
	if !ok {
		return fmt.Errorf("no States section at %s", a.cfg.Path())
	}
	for _, node := range states.Children() {
		sd, err := parseState(node)
		if err != nil {
			return err
		}
		if err := a.sched.AddState(sd); err != nil {
			return err
		}
		if a.firstState == "" {
			a.firstState = sd.Name
		}
	}
	if a.firstState == "" {
		return fmt.Errorf("States section declares no states")
	}
	return nil
}

func (a *Application) configureScheduler() error {
	node, ok := a.cfg.Child("Scheduler", false)
	if !ok {
		return nil
	}
	timing, declared := leafString(node, "TimingDataSource")
	if !declared {
		return nil
	}
	if _, exists := a.sources[timing]; !exists {
		return fmt.Errorf("Scheduler.TimingDataSource %q is not a declared data source", timing)
	}
	a.timingName = timing
	return nil
}

func (a *Application) configureStateMachine() error {
	node, ok := a.cfg.Child("StateMachine", false)
	if !ok {
		return nil
	}
	stateNodes := node.Children()
	if len(stateNodes) == 0 {
		return fmt.Errorf("StateMachine section declares no states")
	}

	machine, err := statemachine.New(MachineDestination, a.bus, stateNodes[0].Name())
	if err != nil {
		return err
	}
	for _, sn := range stateNodes {
		machine.AddState(sn.Name())
	}
	for _, sn := range stateNodes {
		for _, en := range sn.Children() {
			t, err := parseTransition(en)
			if err != nil {
				return err
			}
			if err := machine.AddEvent(sn.Name(), t); err != nil {
				return err
			}
		}
	}
	a.machine = machine
	return nil
}

// Prepare plans and binds the named state's brokers without starting any
// thread; an empty name means the first declared state. It notifies every
// data source of the upcoming state.
func (a *Application) Prepare(state string) error {
	a.mu.Lock()
	if !a.configured {
		a.mu.Unlock()
		return fmt.Errorf("%w: not configured", ErrConfiguration)
	}
	if state == "" {
		state = a.firstState
	}
	current := a.sched.Current()
	sources := a.sources
	a.mu.Unlock()

	for name, ds := range sources {
		if err := ds.PrepareNextState(current, state); err != nil {
			return fmt.Errorf("%w: data source %q: %s", ErrTransition, name, err)
		}
	}
	if err := a.sched.Prepare(state); err != nil {
		return fmt.Errorf("%w: %s", ErrTransition, err)
	}
	return nil
}

// Start prepares the named state (empty means the first declared one) and
// launches the real-time threads, the state-machine dispatcher, and the
// application's own message handler.
func (a *Application) Start(state string) error {
	if err := a.Prepare(state); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return fmt.Errorf("%w: already running", ErrTransition)
	}

	if err := a.sched.Start(a.opts.startTimeout()); err != nil {
		a.sched.Stop(a.opts.stopTimeout())
		return fmt.Errorf("%w: %s", ErrTransition, err)
	}
	a.dispatcher = embedded.NewThread("application", a.dispatch, false)
	if err := a.dispatcher.Start(a.opts.startTimeout()); err != nil {
		a.sched.Stop(a.opts.stopTimeout())
		return fmt.Errorf("%w: %s", ErrTransition, err)
	}
	if a.machine != nil {
		if err := a.machine.Start(a.opts.startTimeout()); err != nil {
			a.dispatcher.Stop(a.opts.stopTimeout())
			a.sched.Stop(a.opts.stopTimeout())
			return fmt.Errorf("%w: %s", ErrTransition, err)
		}
	}

	a.running = true
	stateLog := log.WithState(a.sched.Current())
	stateLog.Info().Msg("application started")
	return nil
}

// Stop halts the real-time threads, the state machine, the application
// dispatcher, and finally the bus, releasing every pending Get.
func (a *Application) Stop() {
	a.mu.Lock()
	running := a.running
	a.running = false
	a.mu.Unlock()
	if !running {
		return
	}

	a.sched.Stop(a.opts.stopTimeout())
	if a.machine != nil {
		a.machine.Stop(a.opts.stopTimeout())
	}
	if a.dispatcher != nil {
		a.dispatcher.Stop(a.opts.stopTimeout())
	}
	a.bus.Close()
	appLog := log.WithComponent("app")
	appLog.Info().Msg("application stopped")
}

// Transition moves the scheduler to the named state at the next safe
// cycle boundary.
func (a *Application) Transition(state string) error {
	a.mu.Lock()
	if !a.configured {
		a.mu.Unlock()
		return fmt.Errorf("%w: not configured", ErrConfiguration)
	}
	sources := a.sources
	current := a.sched.Current()
	a.mu.Unlock()

	for name, ds := range sources {
		if err := ds.PrepareNextState(current, state); err != nil {
			return fmt.Errorf("%w: data source %q: %s", ErrTransition, name, err)
		}
	}
	if err := a.sched.TransitionTo(state, a.opts.commitTimeout()); err != nil {
		return fmt.Errorf("%w: %s", ErrTransition, err)
	}
	return nil
}

// Send is the administrative "send" entry point: it posts a
// message on the bus and, when expectReply is set, waits up to timeout
// for the destination's reply.
func (a *Application) Send(destination, functionName string, payload *tree.Node, expectReply bool, timeout time.Duration) (messaging.Reply, error) {
	msg := messaging.New("operator", destination, functionName, payload)
	msg.ExpectReply = expectReply
	msg.Timeout = timeout
	return a.bus.Send(msg)
}

// StatePayload builds the payload node the application's own dispatcher
// understands for prepare/transition requests.
func StatePayload(state string) *tree.Node {
	n := tree.New()
	leaf, _ := n.Child("State", true)
	leaf.SetValue(types.NewString(state))
	return n
}

func payloadState(msg *messaging.Message) (string, error) {
	if msg.Payload == nil {
		return "", fmt.Errorf("app: %s request carries no payload", msg.Function)
	}
	if leaf, ok := msg.Payload.Child("State", false); ok {
		if v, isLeaf := leaf.Value(); isLeaf {
			return v.Text(), nil
		}
	}
	if v, isLeaf := msg.Payload.Value(); isLeaf {
		return v.Text(), nil
	}
	return "", fmt.Errorf("app: %s request payload names no state", msg.Function)
}

// dispatch is the application's bus message handler: the control surface
// the state machine's MessageLists (and the operator's send) drive.
// Recognised functions: "prepare", "transition" (both take a state
// payload), and "stop" (halts the real-time threads only; the dispatcher
// itself keeps serving messages, but a later transition does not restart
// the stopped threads).
func (a *Application) dispatch(info embedded.ExecutionInfo) embedded.ErrorCode {
	if info.Stage != embedded.StageMain {
		return embedded.OK
	}
	raw, ok := a.filter.Get(dispatchPollInterval)
	if !ok {
		return embedded.OK
	}
	msg, ok := raw.(*messaging.Message)
	if !ok {
		return embedded.OK
	}

	var err error
	switch msg.Function {
	case "prepare":
		var state string
		if state, err = payloadState(msg); err == nil {
			err = a.Prepare(state)
		}
	case "transition":
		var state string
		if state, err = payloadState(msg); err == nil {
			err = a.Transition(state)
		}
	case "stop":
		a.sched.Stop(a.opts.stopTimeout())
	default:
		err = fmt.Errorf("app: unknown function %q", msg.Function)
	}
	if err != nil {
		appLog := log.WithComponent("app")
		appLog.Error().Str("function", msg.Function).Err(err).Msg("control message failed")
	}
	msg.Reply(err == nil, nil, err)
	return embedded.OK
}

// ThreadStatus is one real-time thread's observable state.
type ThreadStatus struct {
	Name   string
	Cycles uint64
}

// Status is the operator-visible snapshot cmd/cyclonectl prints.
type Status struct {
	CurrentState     string
	MachineState     string
	TimingDataSource string
	Threads          []ThreadStatus
}

// Status reports the current scheduler state, the state machine's state
// (empty if none is configured), and every thread's cycle counter, sorted
// by thread name.
func (a *Application) Status() Status {
	st := Status{TimingDataSource: a.timingName}
	if a.sched != nil {
		st.CurrentState = a.sched.Current()
		for _, name := range a.sched.ThreadNames() {
			cycles, _ := a.sched.CycleCount(name)
			st.Threads = append(st.Threads, ThreadStatus{Name: name, Cycles: cycles})
		}
		sort.Slice(st.Threads, func(i, j int) bool { return st.Threads[i].Name < st.Threads[j].Name })
	}
	if a.machine != nil {
		st.MachineState = a.machine.Current()
	}
	return st
}
