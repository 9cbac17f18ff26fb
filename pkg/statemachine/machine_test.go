package statemachine

import (
	"testing"
	"time"

	"github.com/cuemby/cyclone/pkg/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fireEvent(t *testing.T, bus *messaging.Bus, machineName, event string) messaging.Reply {
	t.Helper()
	msg := messaging.New("test", machineName, event, nil)
	msg.ExpectReply = true
	msg.Timeout = 2 * time.Second
	reply, err := bus.Send(msg)
	require.NoError(t, err)
	return reply
}

func TestSimpleTransitionOnSuccess(t *testing.T) {
	bus := messaging.NewBus()
	m, err := New("sm", bus, "S1")
	require.NoError(t, err)
	m.AddState("S1")
	m.AddState("S2")
	require.NoError(t, m.AddEvent("S1", &Transition{
		EventName:        "go",
		NextStateSuccess: "S2",
		NextStateError:   "S1",
	}))

	require.NoError(t, m.Start(time.Second))
	defer m.Stop(time.Second)

	reply := fireEvent(t, bus, "sm", "go")
	assert.True(t, reply.Success)
	assert.Eventually(t, func() bool { return m.Current() == "S2" }, time.Second, time.Millisecond)
}

func TestUnknownEventRejected(t *testing.T) {
	bus := messaging.NewBus()
	m, err := New("sm2", bus, "S1")
	require.NoError(t, err)
	m.AddState("S1")

	require.NoError(t, m.Start(time.Second))
	defer m.Stop(time.Second)

	reply := fireEvent(t, bus, "sm2", "nope")
	assert.False(t, reply.Success)
	assert.Equal(t, "S1", m.Current())
}

// Event E in state S1 has Messages [M1, M2]; M1 succeeds, M2 fails;
// the machine must move to NextStateError.
func TestAggregateFailureMovesToErrorState(t *testing.T) {
	bus := messaging.NewBus()

	m1Filter, err := bus.Register("m1")
	require.NoError(t, err)
	m2Filter, err := bus.Register("m2")
	require.NoError(t, err)

	go func() {
		raw, ok := m1Filter.Get(2 * time.Second)
		if ok {
			raw.(*messaging.Message).Reply(true, nil, nil)
		}
	}()
	go func() {
		raw, ok := m2Filter.Get(2 * time.Second)
		if ok {
			raw.(*messaging.Message).Reply(false, nil, nil)
		}
	}()

	sm, err := New("sm3", bus, "S1")
	require.NoError(t, err)
	sm.AddState("S1")
	sm.AddState("S2")
	sm.AddState("SErr")
	require.NoError(t, sm.AddEvent("S1", &Transition{
		EventName:        "E",
		NextStateSuccess: "S2",
		NextStateError:   "SErr",
		Timeout:          2 * time.Second,
		Messages: []MessageSpec{
			{Destination: "m1", Function: "noop", ExpectReply: true, Timeout: time.Second},
			{Destination: "m2", Function: "noop", ExpectReply: true, Timeout: time.Second},
		},
	}))

	require.NoError(t, sm.Start(time.Second))
	defer sm.Stop(time.Second)

	reply := fireEvent(t, bus, "sm3", "E")
	assert.False(t, reply.Success)
	assert.Eventually(t, func() bool { return sm.Current() == "SErr" }, 2*time.Second, time.Millisecond)
}

func TestNoErrorStateDeclaredRemainsOnFailure(t *testing.T) {
	bus := messaging.NewBus()
	badFilter, err := bus.Register("bad")
	require.NoError(t, err)
	go func() {
		raw, ok := badFilter.Get(2 * time.Second)
		if ok {
			raw.(*messaging.Message).Reply(false, nil, nil)
		}
	}()

	sm, err := New("sm4", bus, "S1")
	require.NoError(t, err)
	sm.AddState("S1")
	sm.AddState("S2")
	require.NoError(t, sm.AddEvent("S1", &Transition{
		EventName:        "E",
		NextStateSuccess: "S2",
		Messages:         []MessageSpec{{Destination: "bad", Function: "noop", ExpectReply: true, Timeout: time.Second}},
	}))

	require.NoError(t, sm.Start(time.Second))
	defer sm.Stop(time.Second)

	reply := fireEvent(t, bus, "sm4", "E")
	assert.False(t, reply.Success)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, "S1", sm.Current())
}
