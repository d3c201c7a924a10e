package trapentry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxidecomputer/hubriskern/pkg/abi"
	"github.com/oxidecomputer/hubriskern/pkg/appdesc"
	"github.com/oxidecomputer/hubriskern/pkg/irq"
	"github.com/oxidecomputer/hubriskern/pkg/kernel"
	"github.com/oxidecomputer/hubriskern/pkg/pmp"
	"github.com/oxidecomputer/hubriskern/pkg/timer"
	"github.com/oxidecomputer/hubriskern/pkg/trapentry"
)

const (
	taskSupervisor = 0
	taskIdle       = 1
	taskA          = 2
	taskB          = 3
)

func regionSet(first int) [pmp.MaxRegions]int {
	var out [pmp.MaxRegions]int
	out[0] = first
	for i := 1; i < len(out); i++ {
		out[i] = -1
	}
	return out
}

func newMachine(t *testing.T) (*trapentry.Machine, *appdesc.Descriptor) {
	t.Helper()
	desc := &appdesc.Descriptor{
		Regions: []pmp.Region{
			{Base: 0x0000, Size: 0x1000, Attrs: abi.AttrRead | abi.AttrWrite},
			{Base: 0x1000, Size: 0x1000, Attrs: abi.AttrRead | abi.AttrWrite},
			{Base: 0x2000, Size: 0x1000, Attrs: abi.AttrRead | abi.AttrWrite},
		},
		Tasks: []appdesc.TaskDesc{
			{Name: "supervisor", Priority: 0, Flags: appdesc.StartAtBoot, InitialStack: 0x0FF0, RegionIndices: regionSet(0)},
			{Name: "idle", Priority: 9, Flags: appdesc.StartAtBoot, InitialStack: 0x0FF0, RegionIndices: regionSet(0)},
			{Name: "taskA", Priority: 2, Flags: appdesc.StartAtBoot, InitialStack: 0x1FF0, RegionIndices: regionSet(1)},
			{Name: "taskB", Priority: 3, Flags: appdesc.StartAtBoot, InitialStack: 0x2FF0, RegionIndices: regionSet(2)},
		},
		Irqs:        []appdesc.IrqRoute{{IRQ: 5, TaskIndex: taskA, NotificationBit: 0x4}},
		TickDivisor: 100,
	}
	ts := kernel.New(desc, 1<<16)
	td := &timer.Driver{}
	td.Start(0, desc.TickDivisor)
	m := &trapentry.Machine{Tasks: ts, Timer: td, Irqs: irq.Build(desc)}
	m.Current.Set(taskA)
	return m, desc
}

func TestDispatchSyscallSendRecvReplyRoundTrip(t *testing.T) {
	m, _ := newMachine(t)
	ts := m.Tasks
	copy(ts.Mem[0x1000:0x1004], "ping")
	// The reply buffer lies in A's painted stack span; start it zeroed.
	copy(ts.Mem[0x1010:0x1015], make([]byte, 5))

	sv := &ts.Tasks[taskA].Save
	sv.A7 = uint32(abi.SyscallSend)
	sv.A0 = abi.PackTargetOp(ts.Tasks[taskB].TaskId(), 7)
	sv.A1, sv.A2 = 0x1000, 4
	sv.A3, sv.A4 = 0x1010, 5

	m.Current.Set(taskA)
	next := m.Dispatch(trapentry.CauseSyscall, 0, 0)
	assert.NotEqual(t, taskA, next, "A must block in Send, not remain current")
	assert.Equal(t, kernel.InSendTo, ts.Tasks[taskA].State.Sched.Kind)

	bv := &ts.Tasks[taskB].Save
	bv.A7 = uint32(abi.SyscallRecv)
	bv.A0, bv.A1 = 0x2000, 16
	bv.A3 = uint32(abi.KernelTaskId)

	m.Current.Set(taskB)
	m.Dispatch(trapentry.CauseSyscall, 0, 0)
	assert.Equal(t, "ping", string(ts.Mem[0x2000:0x2004]))
	require.Equal(t, kernel.InReplyTo, ts.Tasks[taskA].State.Sched.Kind)

	copy(ts.Mem[0x2020:0x2024], "pong")
	rv := &ts.Tasks[taskB].Save
	rv.A7 = uint32(abi.SyscallReply)
	rv.A0 = uint32(ts.Tasks[taskA].TaskId())
	rv.A1 = 0
	rv.A2, rv.A3 = 0x2020, 4

	m.Current.Set(taskB)
	m.Dispatch(trapentry.CauseSyscall, 0, 0)
	assert.True(t, ts.Tasks[taskA].IsRunnable())
	assert.Equal(t, "pong\x00", string(ts.Mem[0x1010:0x1015]))
}

func TestDispatchIllegalInstructionFaultsCurrentTask(t *testing.T) {
	m, _ := newMachine(t)
	m.Current.Set(taskA)
	m.Dispatch(trapentry.CauseIllegalInstruction, 0xDEAD, 0)
	assert.Equal(t, kernel.Faulted, m.Tasks.Tasks[taskA].State.Status)
	assert.Equal(t, abi.FaultIllegalInstruction, m.Tasks.Tasks[taskA].State.Fault.Kind)
	assert.NotEqual(t, taskA, m.Current.Get(), "a faulted task must not remain current")
}

func TestDispatchTimerInterruptAdvancesAndReschedules(t *testing.T) {
	m, _ := newMachine(t)
	m.Timer.Advance(100)
	next := m.Dispatch(trapentry.CauseTimerInterrupt, 0, 0)
	assert.GreaterOrEqual(t, next, 0)
	assert.Equal(t, timer.Ticks(1), m.Timer.Ticks())
}

// TestDispatchTimerInterruptUsesTickUnitsNotRawMtime pins ProcessTimers
// to the monotonic tick counter HandleInterrupt returns rather than the
// raw mtime register, which advances by the tick divisor (100 here) per
// interrupt: a deadline of 3 ticks must survive two timer interrupts and
// only fire on the third, not fire on the first because mtime already
// reads 100.
func TestDispatchTimerInterruptUsesTickUnitsNotRawMtime(t *testing.T) {
	m, _ := newMachine(t)
	ts := m.Tasks
	ts.SetTimer(taskB, true, 3, 0x1)
	ts.Recv(taskB, kernel.RecvArgs{BufPtr: 0x2000, BufLen: 4, NotificationMask: 0x1})
	require.Equal(t, kernel.InRecv, ts.Tasks[taskB].State.Sched.Kind)

	for i := 0; i < 2; i++ {
		m.Timer.Advance(100)
		m.Dispatch(trapentry.CauseTimerInterrupt, 0, 0)
		assert.Equal(t, kernel.InRecv, ts.Tasks[taskB].State.Sched.Kind, "must not wake before its tick deadline")
	}

	m.Timer.Advance(100)
	m.Dispatch(trapentry.CauseTimerInterrupt, 0, 0)
	assert.True(t, ts.Tasks[taskB].IsRunnable(), "must wake once the tick counter reaches its deadline")
}

func TestDispatchExternalInterruptDeliversNotification(t *testing.T) {
	m, _ := newMachine(t)
	m.Tasks.Recv(taskA, kernel.RecvArgs{BufPtr: 0x1000, BufLen: 4, NotificationMask: 0x4})
	next := m.Dispatch(trapentry.CauseExternalInterrupt, 0, 5)
	assert.Equal(t, taskA, next)
	assert.True(t, m.Tasks.Tasks[taskA].IsRunnable())
}

func TestDispatchUnknownSyscallFaultsInvalidSyscall(t *testing.T) {
	m, _ := newMachine(t)
	m.Current.Set(taskA)
	ts := m.Tasks
	ts.Tasks[taskA].Save.A7 = 0xFF
	m.Dispatch(trapentry.CauseSyscall, 0, 0)
	assert.Equal(t, kernel.Faulted, ts.Tasks[taskA].State.Status)
	assert.Equal(t, abi.FaultInvalidSyscall, ts.Tasks[taskA].State.Fault.Kind)
}
