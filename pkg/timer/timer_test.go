package timer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxidecomputer/hubriskern/pkg/timer"
)

func TestStartProgramsOneDivisorAhead(t *testing.T) {
	var d timer.Driver
	d.Start(1000, 100)
	assert.False(t, d.Pending())
	d.Advance(99)
	assert.False(t, d.Pending())
	d.Advance(1)
	assert.True(t, d.Pending())
}

func TestHandleInterruptAdvancesByDivisorNotToNow(t *testing.T) {
	// Regression for the "set to now" bug class: mtimecmp must increment
	// by the divisor each time, never snap to the current mtime. A jump
	// well past one deadline (mtime=25, divisor=10, starting mtimecmp=10)
	// must therefore require *two* HandleInterrupt calls to catch up
	// (mtimecmp 10->20->30), not one -- a set-to-now implementation would
	// wrongly clear Pending after a single call.
	var d timer.Driver
	d.Start(0, 10)
	d.Advance(25)
	require.True(t, d.Pending())

	ticks := d.HandleInterrupt()
	assert.Equal(t, timer.Ticks(1), ticks)
	assert.True(t, d.Pending(), "mtimecmp is now 20, still behind mtime=25")

	ticks = d.HandleInterrupt()
	assert.Equal(t, timer.Ticks(2), ticks)
	assert.False(t, d.Pending(), "mtimecmp is now 30, past mtime=25")
}

func TestTicksMonotonicAcrossMultipleInterrupts(t *testing.T) {
	var d timer.Driver
	d.Start(0, 5)
	last := timer.Ticks(0)
	for i := 0; i < 10; i++ {
		d.Advance(5)
		got := d.HandleInterrupt()
		assert.Greater(t, got, last)
		last = got
	}
	assert.Equal(t, timer.Ticks(10), last)
}

func TestNowReflectsAdvance(t *testing.T) {
	var d timer.Driver
	d.Start(42, 10)
	assert.Equal(t, uint64(42), d.Now())
	d.Advance(8)
	assert.Equal(t, uint64(50), d.Now())
}
