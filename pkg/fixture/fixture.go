// Package fixture builds small, fixed application descriptors and drives
// them through representative syscall scenarios. It stands in for the
// real board-specific app.toml + offline pack tool: everything here is
// assembled directly in Go rather than loaded from an image, the same
// simplification pkg/appdesc's own doc comment describes.
package fixture

import (
	"fmt"

	"github.com/oxidecomputer/hubriskern/pkg/abi"
	"github.com/oxidecomputer/hubriskern/pkg/appdesc"
	"github.com/oxidecomputer/hubriskern/pkg/kernel"
	"github.com/oxidecomputer/hubriskern/pkg/pmp"
	"github.com/oxidecomputer/hubriskern/pkg/trapentry"
)

const (
	taskSupervisor = 0
	taskIdle       = 1
)

// PingApp builds a four-task descriptor: supervisor, idle, and two peers
// (A at index 2, B at index 3) each given a private read/write region of
// the shared memory arena to stage message buffers in.
func PingApp() *appdesc.Descriptor {
	regions := []pmp.Region{
		{Base: 0x0000, Size: 0x1000, Attrs: abi.AttrRead | abi.AttrWrite}, // 0: supervisor scratch
		{Base: 0x1000, Size: 0x1000, Attrs: abi.AttrRead | abi.AttrWrite}, // 1: task A
		{Base: 0x2000, Size: 0x1000, Attrs: abi.AttrRead | abi.AttrWrite}, // 2: task B
	}
	tasks := []appdesc.TaskDesc{
		{Name: "supervisor", Priority: 0, Flags: appdesc.StartAtBoot, InitialStack: 0x0FF0, RegionIndices: regionSet(0)},
		{Name: "idle", Priority: 7, Flags: appdesc.StartAtBoot, InitialStack: 0x0FF0, RegionIndices: regionSet(0)},
		{Name: "taskA", Priority: 2, Flags: appdesc.StartAtBoot, InitialStack: 0x1FF0, RegionIndices: regionSet(1)},
		{Name: "taskB", Priority: 3, Flags: appdesc.StartAtBoot, InitialStack: 0x2FF0, RegionIndices: regionSet(2)},
	}
	return &appdesc.Descriptor{Tasks: tasks, Regions: regions, TickDivisor: 1000}
}

// FaultApp is PingApp's layout but used to exercise the memory-fault
// scenario: task A sends with an out_ptr outside its own region.
func FaultApp() *appdesc.Descriptor {
	return PingApp()
}

// regionSet returns a RegionIndices array with only the first slot used.
func regionSet(first int) [pmp.MaxRegions]int {
	var out [pmp.MaxRegions]int
	out[0] = first
	for i := 1; i < len(out); i++ {
		out[i] = -1
	}
	return out
}

func taskIndex(desc *appdesc.Descriptor, name string) int {
	for i, t := range desc.Tasks {
		if t.Name == name {
			return i
		}
	}
	panic("fixture: no such task " + name)
}

// RunPingScenario drives a send/recv/reply round trip to completion: A
// sends "ping" to B, B replies "pong", and A resumes with the reply in
// its buffer. It returns a short human-readable description of the
// outcome for the harness to log.
func RunPingScenario(m *trapentry.Machine) string {
	ts := m.Tasks
	a := taskIndex(ts.Desc, "taskA")
	b := taskIndex(ts.Desc, "taskB")

	const outPtr, outLen = 0x1000, 4
	const inPtr, inLen = 0x1010, 5
	copy(ts.Mem[outPtr:outPtr+outLen], "ping")

	at := ts.Tasks[a]
	at.Save.A7 = uint32(abi.SyscallSend)
	at.Save.A0 = abi.PackTargetOp(ts.Tasks[b].TaskId(), 1)
	at.Save.A1, at.Save.A2 = outPtr, outLen
	at.Save.A3, at.Save.A4 = inPtr, inLen
	m.Current.Set(a)
	m.Dispatch(trapentry.CauseSyscall, 0, 0)

	const bBufPtr, bBufLen = 0x2000, 16
	bt := ts.Tasks[b]
	bt.Save.A7 = uint32(abi.SyscallRecv)
	bt.Save.A0, bt.Save.A1 = bBufPtr, bBufLen
	bt.Save.A2 = 0
	bt.Save.A3 = uint32(abi.KernelTaskId)
	m.Current.Set(b)
	m.Dispatch(trapentry.CauseSyscall, 0, 0)

	const pongPtr, pongLen = 0x2020, 4
	copy(ts.Mem[pongPtr:pongPtr+pongLen], "pong")
	bt.Save.A7 = uint32(abi.SyscallReply)
	bt.Save.A0 = uint32(ts.Tasks[a].TaskId())
	bt.Save.A1 = 0
	bt.Save.A2, bt.Save.A3 = pongPtr, pongLen
	m.Current.Set(b)
	m.Dispatch(trapentry.CauseSyscall, 0, 0)

	got := string(ts.Mem[inPtr : inPtr+4])
	return fmt.Sprintf("ping scenario: A received reply code=%d len=%d body=%q", at.Save.A0, at.Save.A1, got)
}

// RunFaultScenario drives a memory-access-fault scenario to completion:
// with B already blocked in an open Recv, A sends with an out_ptr
// pointing outside any of its regions. The rendezvous happens
// immediately (matching an already-waiting receiver), which is what
// makes transfer's region check run synchronously within the Send call
// and force-fault A without delivering anything to B.
func RunFaultScenario(m *trapentry.Machine) string {
	ts := m.Tasks
	a := taskIndex(ts.Desc, "taskA")
	b := taskIndex(ts.Desc, "taskB")

	const bBufPtr, bBufLen = 0x2000, 16
	bt := ts.Tasks[b]
	bt.Save.A7 = uint32(abi.SyscallRecv)
	bt.Save.A0, bt.Save.A1 = bBufPtr, bBufLen
	bt.Save.A2 = 0
	bt.Save.A3 = uint32(abi.KernelTaskId)
	m.Current.Set(b)
	m.Dispatch(trapentry.CauseSyscall, 0, 0)

	at := ts.Tasks[a]
	at.Save.A7 = uint32(abi.SyscallSend)
	at.Save.A0 = abi.PackTargetOp(ts.Tasks[b].TaskId(), 1)
	at.Save.A1, at.Save.A2 = 0x9000, 4 // well outside task A's 0x1000-0x2000 region
	at.Save.A3, at.Save.A4 = 0x1010, 5
	m.Current.Set(a)
	m.Dispatch(trapentry.CauseSyscall, 0, 0)

	return fmt.Sprintf("fault scenario: A status=%v fault_kind=%v, B still waiting=%v",
		at.State.Status, at.State.Fault.Kind, bt.State.Sched.Kind == kernel.InRecv)
}
