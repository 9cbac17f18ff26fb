package broker_test

import (
	"sync"
	"testing"
	"time"

	"github.com/cuemby/cyclone/pkg/broker"
	"github.com/cuemby/cyclone/pkg/datasource"
	"github.com/cuemby/cyclone/pkg/function"
	"github.com/cuemby/cyclone/pkg/signal"
	"github.com/cuemby/cyclone/pkg/types"
	"github.com/stretchr/testify/require"
)

// stubFunction is a minimal function.Function for exercising the planner
// and runtime brokers without a real computation behind them.
type stubFunction struct {
	function.Block
	name    string
	inputs  signal.Set
	outputs signal.Set
}

func newStub(name string) *stubFunction {
	return &stubFunction{Block: function.NewBlock(), name: name}
}

func (f *stubFunction) Name() string              { return f.name }
func (f *stubFunction) InputSignals() signal.Set  { return f.inputs }
func (f *stubFunction) OutputSignals() signal.Set { return f.outputs }
func (f *stubFunction) Setup() error              { return nil }
func (f *stubFunction) Execute() error            { return nil }

func TestPlanDirectCopyRoundTrip(t *testing.T) {
	ds := datasource.NewMemoryDataSource("sensors", 1, 16)
	ds.RegisterSignal("temp", 0, 4, types.KindFloat32, datasource.DirectCopy)

	f := newStub("reader")
	f.inputs = signal.Set{{Name: "temp", DataSource: "sensors", Kind: types.KindFloat32, NumberOfElements: 1}}
	f.DeclareInput("temp", 4)

	sources := map[string]datasource.DataSource{"sensors": ds}
	inputs, outputs, err := broker.Plan(f, sources)
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	require.Len(t, outputs, 0)
	require.Equal(t, datasource.DirectCopy, inputs[0].Class())

	v, err := types.NewFloat(types.KindFloat32, 21.5)
	require.NoError(t, err)
	encoded := make([]byte, 4)
	require.NoError(t, v.Encode(encoded, types.LittleEndian))
	copy(ds.Buffer(0), encoded)

	require.True(t, inputs[0].Execute(0))
	mem, err := f.InputMemory("temp")
	require.NoError(t, err)
	require.Equal(t, encoded, mem)
}

func TestPlanRejectsLayoutMismatch(t *testing.T) {
	ds := datasource.NewMemoryDataSource("sensors", 1, 16)
	ds.RegisterSignal("temp", 0, 4, types.KindFloat32, datasource.DirectCopy)

	f := newStub("reader")
	f.inputs = signal.Set{{Name: "temp", DataSource: "sensors", Kind: types.KindInt64, NumberOfElements: 1}}
	f.DeclareInput("temp", 8)

	_, _, err := broker.Plan(f, map[string]datasource.DataSource{"sensors": ds})
	require.Error(t, err)
}

func TestPlanMultiBufferWindow(t *testing.T) {
	const bufferCount = 4
	ds := datasource.NewMemoryDataSource("waveform", bufferCount, 4)
	ds.RegisterSignal("x", 0, 4, types.KindInt32, datasource.MultiBuffer)
	for i := 0; i < bufferCount; i++ {
		v, err := types.NewInt(types.KindInt32, int64(i*10))
		require.NoError(t, err)
		enc := make([]byte, 4)
		require.NoError(t, v.Encode(enc, types.LittleEndian))
		copy(ds.Buffer(i), enc)
	}

	f := newStub("window")
	f.inputs = signal.Set{{Name: "x", DataSource: "waveform", Kind: types.KindInt32, NumberOfElements: 1, Samples: 3}}
	f.DeclareInput("x", 3*4)

	inputs, _, err := broker.Plan(f, map[string]datasource.DataSource{"waveform": ds})
	require.NoError(t, err)
	require.Equal(t, datasource.MultiBuffer, inputs[0].Class())

	require.True(t, inputs[0].Execute(5))
	mem, err := f.InputMemory("x")
	require.NoError(t, err)

	// i=0 -> buffer (5-0)%4=1 -> value 10; i=1 -> buffer 0 -> value 0;
	// i=2 -> buffer (5-2)%4=3 -> value 30.
	want := []int64{10, 0, 30}
	for i, w := range want {
		dec, err := types.Decode(types.KindInt32, mem[i*4:i*4+4], types.LittleEndian)
		require.NoError(t, err)
		require.Equal(t, w, dec.Int(), "sample offset %d", i)
	}
}

func TestPlanSamplesForcesMultiBufferRegardlessOfRecommendation(t *testing.T) {
	ds := datasource.NewMemoryDataSource("waveform", 2, 4)
	ds.RegisterSignal("x", 0, 4, types.KindInt32, datasource.DirectCopy)

	f := newStub("window")
	f.inputs = signal.Set{{Name: "x", DataSource: "waveform", Kind: types.KindInt32, NumberOfElements: 1, Samples: 2}}
	f.DeclareInput("x", 2*4)

	inputs, _, err := broker.Plan(f, map[string]datasource.DataSource{"waveform": ds})
	require.NoError(t, err)
	require.Equal(t, datasource.MultiBuffer, inputs[0].Class())
}

func TestPlanRejectsSamplesExceedingBufferCount(t *testing.T) {
	ds := datasource.NewMemoryDataSource("waveform", 2, 4)
	ds.RegisterSignal("x", 0, 4, types.KindInt32, datasource.MultiBuffer)

	f := newStub("window")
	f.inputs = signal.Set{{Name: "x", DataSource: "waveform", Kind: types.KindInt32, NumberOfElements: 1, Samples: 3}}
	f.DeclareInput("x", 3*4)

	_, _, err := broker.Plan(f, map[string]datasource.DataSource{"waveform": ds})
	require.Error(t, err)
}

func TestSynchronisingInputBlocksUntilSample(t *testing.T) {
	ds := datasource.NewMemoryDataSource("fast-loop", 1, 4)
	ds.RegisterSignal("clock", 0, 4, types.KindInt32, datasource.DirectCopy)
	ds.EnableSynchronising()

	f := newStub("sync-reader")
	f.inputs = signal.Set{{Name: "clock", DataSource: "fast-loop", Kind: types.KindInt32, NumberOfElements: 1, Frequency: 1000}}
	f.DeclareInput("clock", 4)

	inputs, _, err := broker.Plan(f, map[string]datasource.DataSource{"fast-loop": ds})
	require.NoError(t, err)
	require.Equal(t, datasource.SynchronisingInput, inputs[0].Class())

	done := make(chan bool, 1)
	go func() { done <- inputs[0].Execute(0) }()

	select {
	case <-done:
		t.Fatal("Execute returned before Synchronise was released")
	case <-time.After(20 * time.Millisecond):
	}

	ds.Trigger()
	select {
	case ok := <-done:
		require.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Execute never returned after Trigger")
	}
}

// recordingSink is a minimal datasource.DataSource whose Synchronise call
// snapshots whatever was last written to its single buffer, letting a
// test observe the trigger broker consumer's delivery order.
type recordingSink struct {
	mu        sync.Mutex
	buf       []byte
	delivered [][]byte
}

func newRecordingSink(size int) *recordingSink { return &recordingSink{buf: make([]byte, size)} }

func (s *recordingSink) Name() string                   { return "sink" }
func (s *recordingSink) NumberOfMemoryBuffers() int      { return 1 }
func (s *recordingSink) SignalByteSize(string) (int, error) { return len(s.buf), nil }
func (s *recordingSink) ElementKind(string) (types.Kind, error) { return types.KindInt32, nil }
func (s *recordingSink) BrokerClass(signal.Direction, string) (datasource.BrokerClass, error) {
	return datasource.TriggerOutput, nil
}
func (s *recordingSink) PrepareNextState(string, string) error { return nil }

func (s *recordingSink) SignalMemory(string, int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf, nil
}

func (s *recordingSink) Synchronise() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := make([]byte, len(s.buf))
	copy(snap, s.buf)
	s.delivered = append(s.delivered, snap)
	return nil
}

func (s *recordingSink) drained() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.delivered))
	copy(out, s.delivered)
	return out
}

func TestTriggerBrokerDeliversPreAndPostWindowInOrder(t *testing.T) {
	mem := make([]byte, 4)
	sink := newRecordingSink(4)

	source := broker.TriggerSource(func(sample []byte) bool {
		v, err := types.Decode(types.KindInt32, sample, types.LittleEndian)
		require.NoError(t, err)
		return v.Int() == 3
	})

	tb, err := broker.NewTriggerBroker("burst", mem, source, 2, 2, 8, sink, "x")
	require.NoError(t, err)
	require.Equal(t, datasource.TriggerOutput, tb.Class())
	tb.Start()
	defer tb.Stop()

	write := func(n int32) {
		v, err := types.NewInt(types.KindInt32, int64(n))
		require.NoError(t, err)
		require.NoError(t, v.Encode(mem, types.LittleEndian))
		require.True(t, tb.Execute(0))
	}

	// Samples 1,2 are pre-trigger; 3 is the trigger edge; 4,5 are
	// post-trigger. Values beyond that are unrelated padding.
	for _, n := range []int32{1, 2, 3, 4, 5, 6, 7} {
		write(n)
	}

	require.Eventually(t, func() bool {
		return len(sink.drained()) >= 5
	}, time.Second, time.Millisecond)

	var got []int32
	for _, b := range sink.drained() {
		v, err := types.Decode(types.KindInt32, b, types.LittleEndian)
		require.NoError(t, err)
		got = append(got, int32(v.Int()))
	}
	require.Equal(t, []int32{1, 2, 3, 4, 5}, got)
}

// A second trigger edge arriving after quiet cycles must capture its own
// pre-trigger window: the quiet cycles rearm the edge detector, so the
// slots immediately before each edge are delivered for both.
func TestTriggerBrokerCapturesPreWindowForEverySparseEdge(t *testing.T) {
	mem := make([]byte, 4)
	sink := newRecordingSink(4)

	source := broker.TriggerSource(func(sample []byte) bool {
		v, err := types.Decode(types.KindInt32, sample, types.LittleEndian)
		require.NoError(t, err)
		return v.Int() == 3 || v.Int() == 6
	})

	tb, err := broker.NewTriggerBroker("burst", mem, source, 2, 0, 8, sink, "x")
	require.NoError(t, err)
	tb.Start()
	defer tb.Stop()

	write := func(n int32) {
		v, err := types.NewInt(types.KindInt32, int64(n))
		require.NoError(t, err)
		require.NoError(t, v.Encode(mem, types.LittleEndian))
		require.True(t, tb.Execute(0))
	}

	// Edges at 3 and 6, two quiet cycles between them; each edge must
	// carry its two preceding samples. Trailing values let the consumer
	// reach the second edge's slot.
	for _, n := range []int32{1, 2, 3, 4, 5, 6, 7, 8} {
		write(n)
	}

	require.Eventually(t, func() bool {
		return len(sink.drained()) >= 6
	}, time.Second, time.Millisecond)

	var got []int32
	for _, b := range sink.drained() {
		v, err := types.Decode(types.KindInt32, b, types.LittleEndian)
		require.NoError(t, err)
		got = append(got, int32(v.Int()))
	}
	require.Equal(t, []int32{1, 2, 3, 4, 5, 6}, got)
}

func TestTriggerBrokerReportsOverrunWithoutConsumer(t *testing.T) {
	mem := make([]byte, 4)
	triggerOnce := true
	source := broker.TriggerSource(func([]byte) bool {
		if triggerOnce {
			triggerOnce = false
			return true
		}
		return false
	})

	tb, err := broker.NewTriggerBroker("burst", mem, source, 0, 5, 3, nil, "x")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.True(t, tb.Execute(0), "cycle %d", i)
	}
	// The 4th cycle wraps onto slot 0, which a never-started consumer
	// has not drained, so it is still marked triggered: overrun.
	require.False(t, tb.Execute(0))
	require.Equal(t, uint64(1), tb.Overruns())
}
