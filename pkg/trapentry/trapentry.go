// Package trapentry plays the role of the trap/syscall entry stub:
// deciding, given why the hart trapped, which kernel operation to run
// and how to get back to user mode afterward. The architecture-specific
// pieces (register save/restore layout, vector table shape, trap mode
// alignment) live in the riscv32 subpackage, keeping
// non-portable code isolated to one module per architecture; this
// package is the portable dispatch loop on top of it.
package trapentry

import (
	"github.com/oxidecomputer/hubriskern/pkg/abi"
	"github.com/oxidecomputer/hubriskern/pkg/fault"
	"github.com/oxidecomputer/hubriskern/pkg/irq"
	"github.com/oxidecomputer/hubriskern/pkg/kernel"
	"github.com/oxidecomputer/hubriskern/pkg/profile"
	"github.com/oxidecomputer/hubriskern/pkg/ringbuf"
	"github.com/oxidecomputer/hubriskern/pkg/timer"
)

// TrapCause enumerates why control entered the kernel, mirroring the
// mcause values a real riscv32 trap stub would dispatch on.
type TrapCause uint8

const (
	CauseSyscall TrapCause = iota
	CauseIllegalInstruction
	CauseInstructionFault
	CauseLoadFault
	CauseStoreFault
	CauseTimerInterrupt
	CauseExternalInterrupt
)

// Machine bundles everything the dispatch loop needs across trap
// entries: the task table, the timer driver, and the interrupt router.
// Exactly one of these exists per simulated hart, matching the kernel's
// single-hart, non-reentrant design.
type Machine struct {
	Tasks *kernel.TaskSet
	Timer *timer.Driver
	Irqs  *irq.Router

	// Current is the mscratch-style current-task handoff cell, preferred
	// over a bare global, holding the table index of the task that
	// trapped.
	Current CurrentTaskCell
}

// Dispatch runs one trap to completion and returns the index of the task
// that should run next. faultAddr carries the hardware-captured address
// for fault causes (mtval); it is ignored for CauseSyscall and the two
// interrupt causes. line carries the interrupt line number for
// CauseExternalInterrupt and is ignored otherwise.
func (m *Machine) Dispatch(cause TrapCause, faultAddr uint32, line uint32) int {
	taskIndex := m.Current.Get()
	ts := m.Tasks

	var hint kernel.RescheduleHint

	switch cause {
	case CauseSyscall:
		hint = m.dispatchSyscall(taskIndex)
	case CauseIllegalInstruction:
		fault.IllegalInstruction(ts, taskIndex, faultAddr)
		hint = kernel.HintOther()
	case CauseInstructionFault:
		fault.InstructionFetch(ts, taskIndex, faultAddr)
		hint = kernel.HintOther()
	case CauseLoadFault:
		fault.LoadAccess(ts, taskIndex, faultAddr)
		hint = kernel.HintOther()
	case CauseStoreFault:
		fault.StoreAccess(ts, taskIndex, faultAddr)
		hint = kernel.HintOther()
	case CauseTimerInterrupt:
		profile.TimerIsrEnter()
		ts.Trace.Push(ringbuf.Entry{Kind: ringbuf.KindTimerIsr, Task: int32(taskIndex)})
		ticks := m.Timer.HandleInterrupt()
		hint = ts.ProcessTimers(uint64(ticks))
		profile.TimerIsrExit()
	case CauseExternalInterrupt:
		profile.IsrEnter()
		h, _ := m.Irqs.Fire(ts, line)
		hint = h
		profile.IsrExit()
	default:
		panic("trapentry: unknown trap cause")
	}

	next := resolveHint(ts, taskIndex, hint)
	m.Current.Set(next)
	ts.Trace.Push(ringbuf.Entry{Kind: ringbuf.KindContextSwitch, Task: int32(next)})
	profile.ContextSwitch(next)
	return next
}

// resolveHint turns a kernel.RescheduleHint into a concrete task index,
// calling TaskSet.Select when the hint doesn't already name one.
func resolveHint(ts *kernel.TaskSet, current int, hint kernel.RescheduleHint) int {
	switch hint.Kind {
	case kernel.RescheduleSame:
		if ts.Tasks[current].IsRunnable() {
			return current
		}
		return ts.Select(current)
	case kernel.RescheduleSpecific:
		return hint.Index
	default: // RescheduleOther
		return ts.Select(current)
	}
}

// dispatchSyscall decodes A7 from the trapping task's saved registers
// and routes to the matching kernel/pkg operation. Profiling enter/exit
// hooks bracket the call the way a real trap stub would bracket the
// syscall body with instrumentation.
func (m *Machine) dispatchSyscall(taskIndex int) kernel.RescheduleHint {
	ts := m.Tasks
	t := ts.Tasks[taskIndex]
	nr := t.Save.SyscallDescriptor()

	ts.Trace.Push(ringbuf.Entry{Kind: ringbuf.KindSyscallEnter, Task: int32(taskIndex), Payload: nr})
	profile.SyscallEnter(nr)
	defer func() {
		profile.SyscallExit()
		ts.Trace.Push(ringbuf.Entry{Kind: ringbuf.KindSyscallExit, Task: int32(taskIndex)})
	}()

	switch abi.Syscall(nr) {
	case abi.SyscallSend:
		target, op := abi.UnpackTargetOp(t.Save.Arg0())
		args := kernel.SendArgs{
			Target: target, Operation: op,
			OutPtr: t.Save.Arg1(), OutLen: t.Save.Arg2(),
			InPtr: t.Save.Arg3(), InLen: t.Save.Arg4(),
			LeasePtr: t.Save.Arg5(), LeaseLen: t.Save.Arg6(),
		}
		return ts.Send(taskIndex, args)

	case abi.SyscallRecv:
		// abi.KernelTaskId in the specific_sender argument means "open
		// receive" -- a task can never legitimately name the kernel
		// itself as the peer it wants to close a receive to, so it is
		// free to double as this syscall's "no filter" sentinel.
		return ts.Recv(taskIndex, kernel.RecvArgs{
			BufPtr: t.Save.Arg0(), BufLen: t.Save.Arg1(),
			NotificationMask:  t.Save.Arg2(),
			HasSpecificSender: t.Save.Arg3() != uint32(abi.KernelTaskId),
			SpecificSender:    abi.TaskId(t.Save.Arg3()),
		})

	case abi.SyscallReply:
		ts.Reply(taskIndex, abi.TaskId(t.Save.Arg0()), t.Save.Arg1(), t.Save.Arg2(), t.Save.Arg3())
		return kernel.HintSame()

	case abi.SyscallSetTimer:
		deadline := uint64(t.Save.Arg1()) | uint64(t.Save.Arg2())<<32
		ts.SetTimer(taskIndex, t.Save.Arg0() != 0, deadline, t.Save.Arg3())
		return kernel.HintSame()

	case abi.SyscallBorrowRead:
		rc, n := ts.BorrowRead(taskIndex, abi.TaskId(t.Save.Arg0()), int(t.Save.Arg1()), t.Save.Arg2(), t.Save.Arg3(), t.Save.Arg4())
		t.Save.SetRet0(rc)
		t.Save.SetRet1(n)
		return kernel.HintSame()

	case abi.SyscallBorrowWrite:
		rc, n := ts.BorrowWrite(taskIndex, abi.TaskId(t.Save.Arg0()), int(t.Save.Arg1()), t.Save.Arg2(), t.Save.Arg3(), t.Save.Arg4())
		t.Save.SetRet0(rc)
		t.Save.SetRet1(n)
		return kernel.HintSame()

	case abi.SyscallBorrowInfo:
		// Like Recv, BorrowInfo's result rides back in return registers
		// here rather than through out_struct_ptr -- see the transfer
		// comment in pkg/kernel/ipc.go for why this rework makes that
		// choice for every syscall with a struct-shaped result.
		attrs, length, ok := ts.BorrowInfo(taskIndex, abi.TaskId(t.Save.Arg0()), int(t.Save.Arg1()))
		if !ok {
			t.Save.SetRet0(1)
			return kernel.HintSame()
		}
		t.Save.SetRet0(0)
		t.Save.SetRet1(uint32(attrs))
		t.Save.SetRet2(length)
		return kernel.HintSame()

	case abi.SyscallIrqControl:
		m.Irqs.Control(ts.Desc, taskIndex, t.Save.Arg0(), t.Save.Arg1() != 0)
		return kernel.HintSame()

	case abi.SyscallPanic:
		fault.Panic(ts, taskIndex, t.Save.Arg0(), t.Save.Arg1())
		return kernel.HintOther()

	case abi.SyscallGetTimer:
		status := ts.GetTimer(taskIndex)
		t.Save.SetRet0(boolToU32(status.Enabled))
		t.Save.SetRet1(uint32(status.Deadline))
		t.Save.SetRet2(uint32(status.Deadline >> 32))
		t.Save.SetRet3(status.NotificationMask)
		return kernel.HintSame()

	case abi.SyscallRefreshTaskId:
		t.Save.SetRet0(uint32(ts.RefreshTaskId(abi.TaskId(t.Save.Arg0()))))
		return kernel.HintSame()

	case abi.SyscallPost:
		rc, hint := ts.Post(taskIndex, abi.TaskId(t.Save.Arg0()), t.Save.Arg1())
		t.Save.SetRet0(rc)
		return hint

	case abi.SyscallReplyFault:
		ts.ReplyFault(taskIndex, abi.TaskId(t.Save.Arg0()), t.Save.Arg1())
		return kernel.HintSame()

	default:
		fault.InvalidSyscall(ts, taskIndex, nr)
		return kernel.HintOther()
	}
}

func boolToU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
