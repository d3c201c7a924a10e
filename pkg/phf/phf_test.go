package phf_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oxidecomputer/hubriskern/pkg/phf"
)

func TestGetFindsEveryBuiltKey(t *testing.T) {
	tbl := phf.Build(map[uint32]string{5: "five", 1: "one", 9: "nine"})
	assert.Equal(t, 3, tbl.Len())

	v, ok := tbl.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "one", v)

	v, ok = tbl.Get(9)
	assert.True(t, ok)
	assert.Equal(t, "nine", v)
}

func TestGetMissingKeyReturnsZeroValue(t *testing.T) {
	tbl := phf.Build(map[uint32]string{5: "five"})
	v, ok := tbl.Get(6)
	assert.False(t, ok)
	assert.Equal(t, "", v)
}

func TestBuildEmptyTable(t *testing.T) {
	tbl := phf.Build[int](map[uint32]int{})
	assert.Equal(t, 0, tbl.Len())
	_, ok := tbl.Get(0)
	assert.False(t, ok)
}

func TestGetBoundaryKeys(t *testing.T) {
	tbl := phf.Build(map[uint32]int{0: 100, 0xFFFFFFFF: 200})
	v, ok := tbl.Get(0)
	assert.True(t, ok)
	assert.Equal(t, 100, v)

	v, ok = tbl.Get(0xFFFFFFFF)
	assert.True(t, ok)
	assert.Equal(t, 200, v)
}
