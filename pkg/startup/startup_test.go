package startup_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxidecomputer/hubriskern/pkg/abi"
	"github.com/oxidecomputer/hubriskern/pkg/appdesc"
	"github.com/oxidecomputer/hubriskern/pkg/pmp"
	"github.com/oxidecomputer/hubriskern/pkg/startup"
)

const (
	taskSupervisor = 0
	taskIdle       = 1
	taskDriver     = 2
)

func regionSet(first int) [pmp.MaxRegions]int {
	var out [pmp.MaxRegions]int
	out[0] = first
	for i := 1; i < len(out); i++ {
		out[i] = -1
	}
	return out
}

func fixtureDescriptor() *appdesc.Descriptor {
	return &appdesc.Descriptor{
		Regions: []pmp.Region{
			{Base: 0x0000, Size: 0x1000, Attrs: abi.AttrRead | abi.AttrWrite},
			{Base: 0x1000, Size: 0x1000, Attrs: abi.AttrRead | abi.AttrWrite},
		},
		Tasks: []appdesc.TaskDesc{
			{Name: "supervisor", Priority: 0, Flags: appdesc.StartAtBoot, InitialStack: 0x0FF0, RegionIndices: regionSet(0)},
			{Name: "idle", Priority: 9, Flags: appdesc.StartAtBoot, InitialStack: 0x0FF0, RegionIndices: regionSet(0)},
			{Name: "driver", Priority: 2, Flags: appdesc.StartAtBoot, InitialStack: 0x1FF0, RegionIndices: regionSet(1)},
		},
		TickDivisor: 100,
	}
}

func TestBootSelectsHighestPriorityRunnableTask(t *testing.T) {
	m := startup.Boot(fixtureDescriptor())
	require.NotNil(t, m)
	assert.Equal(t, taskSupervisor, m.Current.Get(), "supervisor (priority 0) must be selected first")
	assert.True(t, m.Tasks.Tasks[taskSupervisor].IsRunnable())
}

func TestBootWithMemSizeUsesProvidedArenaSize(t *testing.T) {
	m := startup.BootWithMemSize(fixtureDescriptor(), 1<<12)
	assert.Len(t, m.Tasks.Mem, 1<<12)
}

func TestBootPanicsWithNoRunnableTask(t *testing.T) {
	desc := fixtureDescriptor()
	for i := range desc.Tasks {
		desc.Tasks[i].Flags = 0
	}
	assert.Panics(t, func() { startup.Boot(desc) })
}
