package function

import (
	"testing"

	"github.com/cuemby/cyclone/pkg/signal"
	"github.com/cuemby/cyclone/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRejectsDuplicateClass(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a", func(name string) (Function, error) { return nil, nil }))
	assert.Error(t, r.Register("a", func(name string) (Function, error) { return nil, nil }))
	assert.Error(t, r.RegisterConfigurable("a", func(name string, in, out signal.Set) (Function, error) {
		return nil, nil
	}))
}

func TestNewConfiguredHandsSignalSetsToTreeClass(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterConfigurable("gen", func(name string, in, out signal.Set) (Function, error) {
		return NewGeneric(name, in, out, nil)
	}))

	inputs := signal.Set{{Name: "x", DataSource: "d", Kind: types.KindUint32,
		Dimensionality: types.Vector, NumberOfElements: 4}}
	fn, err := r.NewConfigured("gen", "f1", inputs, nil)
	require.NoError(t, err)
	assert.Equal(t, "f1", fn.Name())
	assert.Len(t, fn.InputSignals(), 1)

	mem, err := fn.InputMemory("x")
	require.NoError(t, err)
	assert.Len(t, mem, 4*4)
}

// Generic must size a signal's memory for samples x masked elements, the
// same formula the broker planner binds against.
func TestGenericSizesMemoryForSamplesAndRanges(t *testing.T) {
	outputs := signal.Set{{
		Name:             "wave",
		DataSource:       "d",
		Kind:             types.KindInt16,
		Dimensionality:   types.Vector,
		NumberOfElements: 10,
		Samples:          3,
		Ranges:           []signal.Range{{Lo: 0, Hi: 1}, {Lo: 5, Hi: 5}},
	}}
	g, err := NewGeneric("f2", nil, outputs, nil)
	require.NoError(t, err)

	mem, err := g.OutputMemory("wave")
	require.NoError(t, err)
	// 3 samples x 3 masked elements x 2 bytes.
	assert.Len(t, mem, 18)
}

func TestGenericRejectsMalformedDescriptor(t *testing.T) {
	bad := signal.Set{{Name: "x", DataSource: "d", Kind: types.KindUint32,
		Dimensionality: types.Vector, NumberOfElements: 4,
		Ranges: []signal.Range{{Lo: 2, Hi: 9}}}}
	_, err := NewGeneric("f3", bad, nil, nil)
	assert.Error(t, err)
}
