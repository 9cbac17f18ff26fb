package signal

import (
	"testing"

	"github.com/cuemby/cyclone/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vectorDescriptor(ranges []Range) *Descriptor {
	return &Descriptor{
		Name:             "wave",
		DataSource:       "d",
		Kind:             types.KindUint32,
		Dimensionality:   types.Vector,
		NumberOfElements: 10,
		Ranges:           ranges,
	}
}

func TestValidateAcceptsSortedDisjointRanges(t *testing.T) {
	d := vectorDescriptor([]Range{{Lo: 0, Hi: 0}, {Lo: 2, Hi: 5}, {Lo: 9, Hi: 9}})
	require.NoError(t, d.Validate())
	assert.Equal(t, 6, d.ElementsInRanges())
}

func TestValidateRejectsUnsortedRanges(t *testing.T) {
	d := vectorDescriptor([]Range{{Lo: 2, Hi: 5}, {Lo: 0, Hi: 0}})
	assert.Error(t, d.Validate())
}

func TestValidateRejectsOverlappingRanges(t *testing.T) {
	d := vectorDescriptor([]Range{{Lo: 0, Hi: 3}, {Lo: 3, Hi: 5}})
	assert.Error(t, d.Validate())
}

func TestValidateRejectsRangeBeyondExtent(t *testing.T) {
	d := vectorDescriptor([]Range{{Lo: 8, Hi: 10}})
	assert.Error(t, d.Validate())
}

func TestSynchronisingRejectsTwoDeclaredFrequencies(t *testing.T) {
	set := Set{
		{Name: "a", DataSource: "d", Kind: types.KindUint32, Frequency: 100},
		{Name: "b", DataSource: "d", Kind: types.KindUint32, Frequency: 50},
	}
	_, err := set.Synchronising()
	assert.Error(t, err)
}
