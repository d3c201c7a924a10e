package riscv32_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/oxidecomputer/hubriskern/pkg/kernel"
	"github.com/oxidecomputer/hubriskern/pkg/trapentry/riscv32"
)

func TestSaveRestoreRoundTrip(t *testing.T) {
	var s kernel.SavedState
	s.RA, s.SP, s.A0, s.A7, s.PC = 1, 2, 3, 4, 5
	s.S11, s.T6 = 6, 7

	rf := riscv32.Save(&s)

	var out kernel.SavedState
	riscv32.Restore(&out, rf)

	// cmp.Diff over assert.Equal here: a 32-field register mismatch is
	// far more readable as a field-by-field diff than testify's blanket
	// "not equal" dump would be.
	if diff := cmp.Diff(s, out); diff != "" {
		t.Errorf("SavedState round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestVectorTableDefaultsEveryEntryToHandler(t *testing.T) {
	table := riscv32.VectorTable(0x1000, 0x2000, 0x3000)
	for i, entry := range table {
		switch i {
		case 7:
			assert.Equal(t, uintptr(0x2000), entry, "cause 7 (machine timer) must use the timer handler")
		case 11:
			assert.Equal(t, uintptr(0x3000), entry, "cause 11 (machine external) must use the external handler")
		default:
			assert.Equal(t, uintptr(0x1000), entry)
		}
	}
}

func TestAlignedDirectMode(t *testing.T) {
	assert.True(t, riscv32.TrapModeDirect.Aligned(0x1000))
	assert.False(t, riscv32.TrapModeDirect.Aligned(0x1001))
}

func TestAlignedVectoredMode(t *testing.T) {
	assert.True(t, riscv32.TrapModeVectored.Aligned(0x1000))
	assert.False(t, riscv32.TrapModeVectored.Aligned(0x1010))
}
