package statemachine

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/cyclone/pkg/concurrency"
	"github.com/cuemby/cyclone/pkg/embedded"
	"github.com/cuemby/cyclone/pkg/messaging"
	"github.com/cuemby/cyclone/pkg/metrics"
	"github.com/cuemby/cyclone/pkg/tree"
)

// MessageSpec is one entry of a Transition's declared MessageList.
type MessageSpec struct {
	Destination string
	Function    string
	Payload     *tree.Node
	ExpectReply bool
	Timeout     time.Duration
}

// Transition is one State's response to a named triggering message.
type Transition struct {
	EventName        string
	NextStateSuccess string
	NextStateError   string
	Timeout          time.Duration
	Messages         []MessageSpec
}

type stateDef struct {
	name   string
	events map[string]*Transition
}

// Machine is a message-driven state machine. It owns a
// permanent messaging.Bus filter registered under its own name; every
// external transition request arrives there as a *messaging.Message whose
// Function names the triggering event. Transitions are serialized: the
// dispatcher processes one message at a time, so further requests simply
// queue on the filter.
type Machine struct {
	name   string
	bus    *messaging.Bus
	filter *concurrency.MessageFilter
	thread *embedded.Thread

	mu      sync.RWMutex
	states  map[string]*stateDef
	current string
}

// New creates a machine named name, registered on bus, with the given
// declared initial state. The initial state need not have been added yet
// via AddState.
func New(name string, bus *messaging.Bus, initial string) (*Machine, error) {
	filter, err := bus.Register(name)
	if err != nil {
		return nil, err
	}
	return &Machine{
		name:    name,
		bus:     bus,
		filter:  filter,
		states:  make(map[string]*stateDef),
		current: initial,
	}, nil
}

// AddState declares a state by name. It is a no-op if already declared.
func (m *Machine) AddState(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[name]; !ok {
		m.states[name] = &stateDef{name: name, events: make(map[string]*Transition)}
	}
}

// AddEvent installs a Transition on state, keyed by t.EventName. state must
// already have been declared via AddState. Declaring the same event name
// twice on one state is a configure-time error.
func (m *Machine) AddEvent(state string, t *Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sd, ok := m.states[state]
	if !ok {
		return fmt.Errorf("statemachine: state %q not declared", state)
	}
	if _, exists := sd.events[t.EventName]; exists {
		return fmt.Errorf("statemachine: state %q already has event %q", state, t.EventName)
	}
	sd.events[t.EventName] = t
	return nil
}

// Current returns the machine's current state name. Safe from any goroutine.
func (m *Machine) Current() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

const dispatchPollInterval = 100 * time.Millisecond

// Start launches the dispatcher thread.
func (m *Machine) Start(startTimeout time.Duration) error {
	m.thread = embedded.NewThread(m.name, m.dispatch, false)
	return m.thread.Start(startTimeout)
}

// Stop stops the dispatcher thread, waiting up to timeout.
func (m *Machine) Stop(timeout time.Duration) embedded.State {
	if m.thread == nil {
		return embedded.StateOff
	}
	return m.thread.Stop(timeout)
}

func (m *Machine) dispatch(info embedded.ExecutionInfo) embedded.ErrorCode {
	if info.Stage != embedded.StageMain {
		return embedded.OK
	}
	raw, ok := m.filter.Get(dispatchPollInterval)
	if !ok {
		return embedded.OK
	}
	msg, ok := raw.(*messaging.Message)
	if !ok {
		return embedded.OK
	}
	m.processEvent(msg)
	return embedded.OK
}

// processEvent matches msg.Function against the current state's events,
// sends the matched transition's message list in order, and moves to
// NextStateSuccess or NextStateError by the aggregate outcome.
func (m *Machine) processEvent(msg *messaging.Message) {
	m.mu.RLock()
	sd, ok := m.states[m.current]
	m.mu.RUnlock()
	if !ok {
		msg.Reply(false, nil, fmt.Errorf("statemachine: current state %q not declared", m.current))
		return
	}

	t, ok := sd.events[msg.Function]
	if !ok {
		metrics.TransitionsTotal.WithLabelValues(msg.Function, "unknown_event").Inc()
		msg.Reply(false, nil, fmt.Errorf("statemachine: state %q has no event %q", sd.name, msg.Function))
		return
	}

	timer := metrics.NewTimer()
	resultCh := make(chan bool, 1)
	go func() { resultCh <- m.sendAll(t.Messages) }()

	var success bool
	if t.Timeout > 0 {
		select {
		case success = <-resultCh:
		case <-time.After(t.Timeout):
			success = false
		}
	} else {
		success = <-resultCh
	}

	m.mu.Lock()
	switch {
	case success:
		m.current = t.NextStateSuccess
	case t.NextStateError != "":
		m.current = t.NextStateError
	default:
		// no error state declared: remain in place, the reply carries
		// the failure
	}
	m.mu.Unlock()

	outcome := "success"
	if !success {
		outcome = "error"
	}
	metrics.TransitionsTotal.WithLabelValues(t.EventName, outcome).Inc()
	timer.ObserveDurationVec(metrics.TransitionDuration, t.EventName)

	msg.Reply(success, nil, nil)
}

// sendAll sends every declared message in order, each with its own
// expected-reply flag and timeout, and reports the aggregate success
// that picks the transition branch.
func (m *Machine) sendAll(specs []MessageSpec) bool {
	ok := true
	for _, spec := range specs {
		out := messaging.New(m.name, spec.Destination, spec.Function, spec.Payload)
		out.ExpectReply = spec.ExpectReply
		out.Timeout = spec.Timeout
		reply, err := m.bus.Send(out)
		if err != nil {
			ok = false
			continue
		}
		if spec.ExpectReply && !reply.Success {
			ok = false
		}
	}
	return ok
}
