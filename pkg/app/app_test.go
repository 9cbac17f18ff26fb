package app_test

import (
	"testing"
	"time"

	"github.com/cuemby/cyclone/pkg/app"
	"github.com/cuemby/cyclone/pkg/datasource"
	"github.com/cuemby/cyclone/pkg/function"
	"github.com/cuemby/cyclone/pkg/signal"
	"github.com/cuemby/cyclone/pkg/tree"
	"github.com/cuemby/cyclone/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setLeaf(t *testing.T, n *tree.Node, key string, v types.Value) {
	t.Helper()
	c, ok := n.Child(key, true)
	require.True(t, ok)
	c.SetValue(v)
}

func str(s string) types.Value { return types.NewString(s) }

func num(t *testing.T, n int64) types.Value {
	t.Helper()
	v, err := types.NewInt(types.KindInt64, n)
	require.NoError(t, err)
	return v
}

// demoRegistry registers a tree-configured passthrough class that copies
// its first input signal's memory into its first output signal's memory
// every cycle.
func demoRegistry(t *testing.T) *function.Registry {
	t.Helper()
	registry := function.NewRegistry()
	require.NoError(t, registry.RegisterConfigurable("Passthrough",
		func(name string, inputs, outputs signal.Set) (function.Function, error) {
			return function.NewGeneric(name, inputs, outputs, func(g *function.Generic) error {
				if len(inputs) == 0 || len(outputs) == 0 {
					return nil
				}
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
		}))
	return registry
}

// demoTree builds the recognised Application tree structure: one
// passthrough function between two data sources, two single-thread states,
// and a two-state machine whose GoRun event drives the scheduler transition.
func demoTree(t *testing.T) *tree.Node {
	t.Helper()
	root := tree.New()
	appNode, _ := root.Child("Application", true)

	funcs, _ := appNode.Child("Functions", true)
	p1, _ := funcs.Child("p1", true)
	setLeaf(t, p1, "Class", str("Passthrough"))
	in, _ := p1.Child("InputSignals", true)
	inSig, _ := in.Child("in", true)
	setLeaf(t, inSig, "Type", str("uint32"))
	setLeaf(t, inSig, "DataSource", str("adc"))
	out, _ := p1.Child("OutputSignals", true)
	outSig, _ := out.Child("out", true)
	setLeaf(t, outSig, "Type", str("uint32"))
	setLeaf(t, outSig, "DataSource", str("dac"))

	data, _ := appNode.Child("Data", true)
	data.Child("adc", true)
	data.Child("dac", true)

	states, _ := appNode.Child("States", true)
	for _, stateName := range []string{"Idle", "Run"} {
		sn, _ := states.Child(stateName, true)
		threads, _ := sn.Child("Threads", true)
		tn, _ := threads.Child("main", true)
		fns, _ := tn.Child("Functions", true)
		entry, _ := fns.Child("0", true)
		entry.SetValue(str("p1"))
	}

	sched, _ := appNode.Child("Scheduler", true)
	setLeaf(t, sched, "TimingDataSource", str("adc"))

	sm, _ := appNode.Child("StateMachine", true)
	idle, _ := sm.Child("IDLE", true)
	goRun, _ := idle.Child("GoRun", true)
	setLeaf(t, goRun, "NextState", str("RUNNING"))
	setLeaf(t, goRun, "NextStateError", str("IDLE"))
	setLeaf(t, goRun, "Timeout", str("2s"))
	messages, _ := goRun.Child("Messages", true)
	m0, _ := messages.Child("0", true)
	setLeaf(t, m0, "Destination", str(app.Destination))
	setLeaf(t, m0, "Function", str("transition"))
	setLeaf(t, m0, "ExpectReply", num(t, 1))
	setLeaf(t, m0, "Timeout", str("1s"))
	payload, _ := m0.Child("Payload", true)
	setLeaf(t, payload, "State", str("Run"))
	sm.Child("RUNNING", true)

	return root
}

func demoSources() (adc, dac *datasource.MemoryDataSource, sources map[string]datasource.DataSource) {
	adc = datasource.NewMemoryDataSource("adc", 1, 4)
	adc.RegisterSignal("in", 0, 4, types.KindUint32, datasource.DirectCopy)
	dac = datasource.NewMemoryDataSource("dac", 1, 4)
	dac.RegisterSignal("out", 0, 4, types.KindUint32, datasource.DirectCopy)
	return adc, dac, map[string]datasource.DataSource{"adc": adc, "dac": dac}
}

func TestConfigureStartAndCycle(t *testing.T) {
	adc, dac, sources := demoSources()

	seed, err := types.NewUint(types.KindUint32, 0xDEADBEEF)
	require.NoError(t, err)
	require.NoError(t, seed.Encode(adc.Buffer(0), types.LittleEndian))

	a := app.New(demoTree(t), app.Options{Registry: demoRegistry(t), Sources: sources})
	require.NoError(t, a.Configure())
	require.NoError(t, a.Start(""))
	defer a.Stop()

	require.Eventually(t, func() bool {
		for _, th := range a.Status().Threads {
			if th.Name == "main" && th.Cycles >= 3 {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	got, err := types.Decode(types.KindUint32, dac.Buffer(0), types.LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xDEADBEEF), got.Uint())
	assert.Equal(t, "Idle", a.Status().CurrentState)
	assert.Equal(t, "IDLE", a.Status().MachineState)
}

func TestStateMachineEventDrivesSchedulerTransition(t *testing.T) {
	_, _, sources := demoSources()

	a := app.New(demoTree(t), app.Options{Registry: demoRegistry(t), Sources: sources})
	require.NoError(t, a.Configure())
	require.NoError(t, a.Start("Idle"))
	defer a.Stop()

	reply, err := a.Send(app.MachineDestination, "GoRun", nil, true, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, reply.Success)

	assert.Eventually(t, func() bool {
		st := a.Status()
		return st.CurrentState == "Run" && st.MachineState == "RUNNING"
	}, time.Second, time.Millisecond)
}

func TestConfigureRejectsUnknownDataSource(t *testing.T) {
	a := app.New(demoTree(t), app.Options{Registry: demoRegistry(t)})
	err := a.Configure()
	require.Error(t, err)
	assert.ErrorIs(t, err, app.ErrConfiguration)
}

func TestConfigureRejectsMissingClass(t *testing.T) {
	root := demoTree(t)
	p1, err := root.Move("/Application/Functions/p1")
	require.NoError(t, err)
	class, ok := p1.Child("Class", false)
	require.True(t, ok)
	class.SetValue(types.Value{}) // malformed: Class leaf with no usable text

	_, _, sources := demoSources()
	a := app.New(root, app.Options{Registry: demoRegistry(t), Sources: sources})
	// The empty class name resolves to no registered constructor.
	err = a.Configure()
	require.Error(t, err)
	assert.ErrorIs(t, err, app.ErrConfiguration)
}
