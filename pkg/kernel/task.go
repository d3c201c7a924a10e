package kernel

import (
	"github.com/oxidecomputer/hubriskern/pkg/abi"
	"github.com/oxidecomputer/hubriskern/pkg/appdesc"
	"github.com/oxidecomputer/hubriskern/pkg/pmp"
)

// SchedKind enumerates the runnable/blocked states a Healthy task can be
// in.
type SchedKind uint8

const (
	Stopped SchedKind = iota
	Runnable
	InSendTo
	InReplyTo
	InRecv
)

// SchedState is one task's scheduling state while Healthy. Only the
// fields relevant to Kind are meaningful; this is a tagged struct rather
// than an interface hierarchy so there is no dynamic dispatch in the task
// state machine.
type SchedState struct {
	Kind SchedKind

	// Peer is the rendezvous counterparty for InSendTo/InReplyTo.
	Peer abi.TaskId

	// WasClosedRecv is a bookkeeping slot for InSendTo. No code in this
	// package sets it, so it is always false; the protocol re-checks the
	// receiver's filter at match time instead.
	WasClosedRecv bool

	// HasSpecificSender/SpecificSender record a closed recv's filter.
	HasSpecificSender bool
	SpecificSender    abi.TaskId
}

// TaskStatus distinguishes a Healthy task (which has a SchedState) from a
// Faulted one (which remembers the state it was in before faulting, so
// the supervisor or a restart can reason about it).
type TaskStatus uint8

const (
	Healthy TaskStatus = iota
	Faulted
)

// State is the Healthy(sched_state) | Faulted{fault, original_state}
// union, represented without dynamic dispatch.
type State struct {
	Status TaskStatus
	Sched  SchedState    // meaningful iff Status == Healthy
	Fault  abi.FaultInfo // meaningful iff Status == Faulted
	Prior  SchedState    // the SchedState at the moment of faulting
}

// TaskTimer is a task's independent wake-up timer; a zero Deadline means
// disabled.
type TaskTimer struct {
	Deadline         uint64 // in kernel ticks; 0 means disabled
	NotificationMask uint32
}

// stackPaintWord is the sentinel the Hubris riscv32 task reinitializer
// zaps unused stack with, to make stack-corruption and high-water-mark
// detection visible in a debugger (original_source/sys/kern/src/arch/riscv32/task.rs).
const stackPaintWord uint32 = 0xbaddcafe

// maxPanicMsgLen bounds how much of a sys_panic message the kernel
// copies into the TCB before faulting the task.
const maxPanicMsgLen = 128

// Task is the kernel's per-task control block (TCB). Save must remain the
// first field: it is what a real trap entry stub addresses by a fixed
// immediate offset from the task's base address.
type Task struct {
	Save SavedState

	// DescIndex indexes into the owning TaskSet's appdesc.Descriptor.Tasks.
	DescIndex int

	State State

	Timer TaskTimer

	NotificationsPosted  uint32
	NotificationsEnabled uint32

	// Generation increments on every restart; concatenated with the
	// task's table index it forms the TaskId outside parties address
	// this task by. At most one task holds a given (index, generation)
	// pair at any moment.
	Generation uint8

	Regions [pmp.MaxRegions]pmp.Region

	// PanicMsg/PanicLen hold the bounded copy of a sys_panic message, made
	// each time this task force-faults itself with Panic: the kernel
	// copies at most len(PanicMsg) bytes out of the task's own memory
	// before the fault, so the message stays on the TCB even after the
	// faulted task's own memory access might otherwise be suspect. No
	// syscall exposes these fields; they are read directly from the Task.
	PanicMsg [maxPanicMsgLen]byte
	PanicLen uint32

	// index is this task's fixed position in the TaskSet's Tasks slice;
	// recorded on the TCB itself so queue and TaskId logic never has to
	// search for it.
	index int

	// sendQueueNext threads this task onto whichever task's send queue it
	// is currently waiting on, in priority order with FIFO tie-breaking,
	// mirroring the Hubris linked-list-through-TCBs send queue. Nil when
	// not queued.
	sendQueueNext *Task
	// sendQueueHead is the head of the queue of tasks blocked sending to
	// *this* task (meaningful regardless of this task's own state).
	sendQueueHead *Task
}

// Index returns the task's fixed table position.
func (t *Task) Index() int { return t.index }

// TaskId returns this task's current address, combining its table index
// with its current generation.
func (t *Task) TaskId() abi.TaskId { return abi.NewTaskId(t.index, t.Generation) }

// Priority returns the task's static priority from the application
// descriptor (lower value = higher priority).
func (t *Task) Priority(desc *appdesc.Descriptor) uint8 {
	return desc.Tasks[t.DescIndex].Priority
}

// IsRunnable reports whether the task is eligible for the CPU right now.
func (t *Task) IsRunnable() bool {
	return t.State.Status == Healthy && t.State.Sched.Kind == Runnable
}

// stackAlignmentInvariant checks the per-task SP alignment invariant: SP
// must be 16-byte aligned whenever the task is not Runnable (i.e.
// whenever it is blocked in the kernel and its SP has been saved rather
// than live in a hardware register).
func (t *Task) stackAlignmentInvariant() bool {
	if t.State.Status == Healthy && t.State.Sched.Kind == Runnable {
		return true
	}
	return t.Save.SP&0xF == 0
}

// Reinitialize resets a task to its boot-time state: zeroed saved
// registers except SP (16-byte-aligned initial stack top) and PC (entry
// point), its initial stack span painted with the corruption sentinel,
// and a scheduling state of Runnable or Stopped depending on
// appdesc.StartAtBoot. This follows
// original_source/sys/kern/src/arch/riscv32/task.rs reinitialize exactly,
// including the stack-painting step (mem is the shared simulated RAM
// arena; see TaskSet.Mem for why IPC and reinitialize share one arena).
func (t *Task) Reinitialize(td appdesc.TaskDesc, mem []byte) {
	t.Save = SavedState{}
	t.Save.SP = td.InitialStack
	if t.Save.SP&0xF != 0 {
		panic("kernel: task initial stack pointer is not 16-byte aligned")
	}
	t.Save.PC = td.EntryPoint

	for _, r := range t.Regions {
		if r.IsNull() {
			continue
		}
		if td.InitialStack < r.Base || td.InitialStack > r.Limit() {
			continue
		}
		start := r.Base
		end := td.InitialStack
		w := stackPaintWord
		for addr := start; addr+4 <= end; addr += 4 {
			if int(addr)+4 <= len(mem) {
				mem[addr] = byte(w)
				mem[addr+1] = byte(w >> 8)
				mem[addr+2] = byte(w >> 16)
				mem[addr+3] = byte(w >> 24)
			}
		}
	}

	t.NotificationsPosted = 0
	t.NotificationsEnabled = 0
	t.Timer = TaskTimer{}
	t.State = State{Status: Healthy, Sched: SchedState{Kind: Stopped}}
	if td.Flags&appdesc.StartAtBoot != 0 {
		t.State.Sched.Kind = Runnable
	}
}
