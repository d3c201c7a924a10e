// Package fault classifies trap causes that are not syscalls into
// abi.FaultInfo values and routes them through kernel.TaskSet.ForceFault.
// Each classifier here corresponds to one arm of the riscv32 mcause value
// a real trap entry stub would dispatch on
// (original_source/sys/kern/src/arch/riscv32/trap.rs); pkg/trapentry is
// the (simulated) caller that decides which of these to invoke.
package fault

import (
	"github.com/oxidecomputer/hubriskern/pkg/abi"
	"github.com/oxidecomputer/hubriskern/pkg/kernel"
	"github.com/oxidecomputer/hubriskern/pkg/pmp"
)

// IllegalInstruction force-faults taskIndex for executing an instruction
// the hart's decoder rejected. mtval (the captured faulting address, here
// the instruction's PC) is recorded for the supervisor's diagnostics.
func IllegalInstruction(ts *kernel.TaskSet, taskIndex int, pc uint32) {
	ts.ForceFault(taskIndex, abi.FaultInfo{
		Kind:    abi.FaultIllegalInstruction,
		Address: pc,
		Source:  abi.FaultSourceUser,
	})
}

// InstructionFetch force-faults taskIndex for an instruction fetch from
// an address its PMP regions do not permit executing.
func InstructionFetch(ts *kernel.TaskSet, taskIndex int, pc uint32) {
	ts.ForceFault(taskIndex, abi.FaultInfo{
		Kind:    abi.FaultInstructionFetch,
		Address: pc,
		Source:  abi.FaultSourceUser,
	})
}

// LoadAccess force-faults taskIndex for a load from an address outside
// any of its readable PMP regions. Both Load and Store faults are
// handled here, matching original_source's handling of both mcause
// values rather than treating one as a kernel-fatal condition.
func LoadAccess(ts *kernel.TaskSet, taskIndex int, addr uint32) {
	ts.ForceFault(taskIndex, abi.FaultInfo{
		Kind:    abi.FaultLoad,
		Address: addr,
		Source:  abi.FaultSourceUser,
	})
}

// StoreAccess force-faults taskIndex for a store to an address outside
// any of its writable PMP regions. See LoadAccess.
func StoreAccess(ts *kernel.TaskSet, taskIndex int, addr uint32) {
	ts.ForceFault(taskIndex, abi.FaultInfo{
		Kind:    abi.FaultStore,
		Address: addr,
		Source:  abi.FaultSourceUser,
	})
}

// Panic force-faults taskIndex in response to a sys_panic call: the task
// asked to die rather than being caught doing something illegal. Up to
// the bounded kernel buffer's worth of the task's message is copied out
// of its own memory first so the supervisor can read it back even though
// the task is about to be marked Faulted; an out-of-region msgPtr/msgLen
// is itself treated as a memory-access fault rather than a plain panic.
func Panic(ts *kernel.TaskSet, taskIndex int, msgPtr, msgLen uint32) {
	t := ts.Tasks[taskIndex]

	n := msgLen
	if n > uint32(len(t.PanicMsg)) {
		n = uint32(len(t.PanicMsg))
	}
	if n > 0 {
		if pmp.FindRegion(t.Regions, msgPtr, n, abi.AttrRead) < 0 {
			ts.ForceFault(taskIndex, abi.FaultInfo{
				Kind:    abi.FaultMemoryAccess,
				Address: msgPtr,
				Source:  abi.FaultSourceUser,
			})
			return
		}
		copy(t.PanicMsg[:n], ts.Mem[msgPtr:msgPtr+n])
	}
	t.PanicLen = n

	ts.ForceFault(taskIndex, abi.FaultInfo{
		Kind:   abi.FaultPanic,
		Source: abi.FaultSourceUser,
		Reason: msgLen,
	})
}

// InvalidSyscall force-faults taskIndex for loading an out-of-range value
// into A7 before trapping, rather than silently treating it as a no-op.
func InvalidSyscall(ts *kernel.TaskSet, taskIndex int, descriptor uint32) {
	ts.ForceFault(taskIndex, abi.FaultInfo{
		Kind:   abi.FaultInvalidSyscall,
		Source: abi.FaultSourceUser,
		Reason: descriptor,
	})
}

// KernelFatal panics the whole simulated machine: a fault classified as
// originating in the kernel itself is not something a supervisor task
// can recover from, the same way a real board would simply reset rather
// than limp along with corrupted kernel state.
func KernelFatal(kind abi.FaultKind, addr uint32) {
	panic(abi.FaultInfo{Kind: kind, Address: addr, Source: abi.FaultSourceKernel})
}
