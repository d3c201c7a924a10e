package pmp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxidecomputer/hubriskern/pkg/abi"
	"github.com/oxidecomputer/hubriskern/pkg/pmp"
)

func TestRegionContains(t *testing.T) {
	r := pmp.Region{Base: 0x1000, Size: 0x100}
	assert.True(t, r.Contains(0x1000, 0x100))
	assert.True(t, r.Contains(0x1050, 0x10))
	assert.False(t, r.Contains(0x1000, 0x101))
	assert.False(t, r.Contains(0x0FF0, 0x10))
	assert.True(t, r.Contains(0x1100, 0)) // zero-length probe at the exclusive limit is in-bounds
}

func TestRegionPermits(t *testing.T) {
	r := pmp.Region{Attrs: abi.AttrRead | abi.AttrWrite}
	assert.True(t, r.Permits(abi.AttrRead))
	assert.True(t, r.Permits(abi.AttrRead|abi.AttrWrite))
	assert.False(t, r.Permits(abi.AttrExecute))
}

func TestProgramNullRegionDisabled(t *testing.T) {
	var regions [pmp.MaxRegions]pmp.Region
	regions[0] = pmp.Region{Base: 0x2000, Size: 0x100, Attrs: abi.AttrRead | abi.AttrWrite}
	entries := pmp.Program(regions)
	require.True(t, entries[0].TOR)
	assert.Equal(t, uint32(0x2000), entries[0].BaseAddr)
	assert.Equal(t, uint32(0x2100), entries[0].LimitAddr)
	assert.Equal(t, pmp.PermRW, entries[0].LimitPerm)

	for i := 1; i < pmp.MaxRegions; i++ {
		assert.False(t, entries[i].TOR, "slot %d should be the disabled null entry", i)
	}
}

func TestProgramAlwaysOverwritesAllSlots(t *testing.T) {
	// Regression for the "leftover permission from the prior task" class
	// of bug: every call must produce MaxRegions entries regardless of
	// how many input regions are non-null.
	var regions [pmp.MaxRegions]pmp.Region
	entries := pmp.Program(regions)
	assert.Len(t, entries, pmp.MaxRegions)
	for _, e := range entries {
		assert.False(t, e.TOR)
	}
}

func TestFindRegion(t *testing.T) {
	var regions [pmp.MaxRegions]pmp.Region
	regions[0] = pmp.Region{Base: 0x1000, Size: 0x100, Attrs: abi.AttrRead}
	regions[1] = pmp.Region{Base: 0x2000, Size: 0x100, Attrs: abi.AttrRead | abi.AttrWrite}

	assert.Equal(t, 1, pmp.FindRegion(regions, 0x2000, 0x10, abi.AttrWrite))
	assert.Equal(t, 0, pmp.FindRegion(regions, 0x1000, 0x10, abi.AttrRead))
	assert.Equal(t, -1, pmp.FindRegion(regions, 0x1000, 0x10, abi.AttrWrite), "region 0 is read-only")
	assert.Equal(t, -1, pmp.FindRegion(regions, 0x3000, 0x10, abi.AttrRead), "unmapped address")
	assert.Equal(t, -1, pmp.FindRegion(regions, 0x1000, 0x200, abi.AttrRead), "spans past the region limit")
}

func TestTranslateUnrepresentableAttrsPanics(t *testing.T) {
	var regions [pmp.MaxRegions]pmp.Region
	regions[0] = pmp.Region{Base: 0, Size: 0x100, Attrs: abi.AttrWrite} // write-only: not PMP-representable
	assert.Panics(t, func() { pmp.Program(regions) })
}
