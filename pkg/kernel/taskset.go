package kernel

import (
	"fmt"

	"github.com/oxidecomputer/hubriskern/pkg/abi"
	"github.com/oxidecomputer/hubriskern/pkg/appdesc"
	"github.com/oxidecomputer/hubriskern/pkg/profile"
	"github.com/oxidecomputer/hubriskern/pkg/ringbuf"
)

// SupervisorIndex is the fixed task-table index of the supervisor task,
// the only task authorized to restart others.
const SupervisorIndex = appdesc.SupervisorIndex

// TaskSet owns the fixed task array and the shared simulated memory arena
// IPC transfers read and write through. It is built once at startup from
// a static appdesc.Descriptor and never grows or shrinks: there is no
// dynamic task creation (non-goal).
type TaskSet struct {
	Desc  *appdesc.Descriptor
	Tasks []*Task
	// Mem is the shared simulated physical memory arena. Region.Base/Size
	// in the application descriptor are byte offsets into this slice; the
	// PMP model restricts which offsets a given task may touch, the same
	// way real PMP restricts physical addresses -- there is deliberately
	// only one address space here, standing in for physical RAM.
	Mem []byte

	Trace ringbuf.Buf
}

// New builds the task table from desc, reinitializing every task after
// asserting the priority invariant. memSize is the size of the simulated
// physical memory arena backing every region's Base/Size offsets.
func New(desc *appdesc.Descriptor, memSize int) *TaskSet {
	desc.AssertPriorityInvariant()

	ts := &TaskSet{
		Desc: desc,
		Mem:  make([]byte, memSize),
	}
	ts.Tasks = make([]*Task, len(desc.Tasks))
	for i, td := range desc.Tasks {
		t := &Task{DescIndex: i, index: i, Regions: desc.RegionSet(i)}
		t.Reinitialize(td, ts.Mem)
		ts.Tasks[i] = t
	}
	return ts
}

// RescheduleHint tells the caller how much rescheduling work is needed
// after an operation: no priority-relevant change, a change whose effect
// the caller must recompute via Select, or a specific task index that is
// now known to be the one to run.
type RescheduleHint struct {
	Kind  RescheduleKind
	Index int // meaningful iff Kind == RescheduleSpecific
}

type RescheduleKind uint8

const (
	RescheduleSame RescheduleKind = iota
	RescheduleOther
	RescheduleSpecific
)

func HintSame() RescheduleHint                 { return RescheduleHint{Kind: RescheduleSame} }
func HintOther() RescheduleHint                { return RescheduleHint{Kind: RescheduleOther} }
func HintSpecific(idx int) RescheduleHint      { return RescheduleHint{Kind: RescheduleSpecific, Index: idx} }

// Select performs the scheduling decision: a linear scan for the
// highest-priority Runnable task, ties broken toward the lower
// index (priority 0 is highest). It returns -1 if nothing is runnable, in
// which case the caller is expected to wait for an interrupt rather than
// dispatch to any task (every application is required to supply an idle
// task at the lowest priority, but a transient instant with nothing
// runnable is still possible, e.g. mid-boot).
func (ts *TaskSet) Select(current int) int {
	best := -1
	var bestPriority uint8
	for i, t := range ts.Tasks {
		if !t.IsRunnable() {
			continue
		}
		p := ts.Desc.Tasks[i].Priority
		if best == -1 || p < bestPriority {
			best = i
			bestPriority = p
		}
	}
	return best
}

// ProcessTimers walks the task array looking for expired per-task timers:
// any task whose timer deadline is non-zero and has passed gets its
// notification mask OR'd into NotificationsPosted and its
// deadline cleared; if that task was blocked in an open or matching
// closed Recv, it wakes with a kernel notification message.
func (ts *TaskSet) ProcessTimers(now uint64) RescheduleHint {
	woken := -1
	wokenCount := 0
	for i, t := range ts.Tasks {
		if t.Timer.Deadline == 0 || t.Timer.Deadline > now {
			continue
		}
		mask := t.Timer.NotificationMask
		t.Timer.Deadline = 0
		t.NotificationsPosted |= mask

		if t.State.Status == Healthy && t.State.Sched.Kind == InRecv {
			if deliverNotification(t) {
				woken = i
				wokenCount++
			}
		}
	}
	switch wokenCount {
	case 0:
		return HintSame()
	case 1:
		return HintSpecific(woken)
	default:
		return HintOther()
	}
}

// deliverNotification wakes a task blocked in Recv if any bits it's
// interested in are pending, populating its return registers with a
// kernel-notification message (sender = KERNEL, operation = the posted
// bits). Returns whether it woke the task.
func deliverNotification(t *Task) bool {
	bits := t.NotificationsPosted & t.NotificationsEnabled
	if bits == 0 {
		return false
	}
	t.NotificationsPosted &^= bits
	t.Save.SetRet0(uint32(abi.KernelTaskId))
	t.Save.SetRet1(uint32(bits))
	t.State.Sched = SchedState{Kind: Runnable}
	return true
}

// SupervisorFaultBit is the notification bit the supervisor uses to learn
// of new faults; it is a fixed, application-level convention (bit 0 by
// default) rather than part of the wire ABI, since the supervisor is free
// to poll fault state via RefreshTaskId/ReplyFault-adjacent introspection
// instead.
const SupervisorFaultBit uint32 = 1

// ForceFault transitions task i from Healthy(_) to Faulted{fault,
// prior}, removing it from whatever wait queue it was in and posting a
// fault notification to the supervisor.
func (ts *TaskSet) ForceFault(i int, fault abi.FaultInfo) {
	t := ts.Tasks[i]
	if t.State.Status == Faulted {
		return // already faulted; nothing to do
	}
	prior := t.State.Sched

	ts.removeFromQueues(t)

	t.State = State{Status: Faulted, Fault: fault, Prior: prior}

	sup := ts.Tasks[SupervisorIndex]
	sup.NotificationsPosted |= SupervisorFaultBit
	if sup.State.Status == Healthy && sup.State.Sched.Kind == InRecv {
		deliverNotification(sup)
	}

	ts.Trace.Push(ringbuf.Entry{Kind: ringbuf.KindFault, Task: int32(i), Payload: uint32(fault.Kind)})
	profile.ContextSwitch(i)
}

// removeFromQueues detaches t from any send queue it is linked into. Tasks
// queued on t's own send queue stay there.
func (ts *TaskSet) removeFromQueues(t *Task) {
	if t.State.Status == Healthy && t.State.Sched.Kind == InSendTo {
		peer := ts.Tasks[t.State.Sched.Peer.Index()]
		ts.dequeueSender(peer, t)
	}
	t.sendQueueNext = nil
}

// RefreshTaskId returns the TaskId of the task at stale's index using its
// current generation, implementing the RefreshTaskId syscall.
func (ts *TaskSet) RefreshTaskId(stale abi.TaskId) abi.TaskId {
	idx := stale.Index()
	if idx < 0 || idx >= len(ts.Tasks) {
		panic(fmt.Sprintf("kernel: RefreshTaskId on out-of-range index %d", idx))
	}
	return ts.Tasks[idx].TaskId()
}

// Restart reinitializes task i (bumping its generation) and transitions
// it to Runnable or Stopped per its START_AT_BOOT flag, implementing the
// supervisor's restart authority. No syscall reaches it (the dispatcher
// in pkg/trapentry has no restart operation), so it checks no caller;
// only code holding the TaskSet can call it.
func (ts *TaskSet) Restart(i int) {
	t := ts.Tasks[i]
	ts.removeFromQueues(t)
	t.Generation++
	t.Reinitialize(ts.Desc.Tasks[i], ts.Mem)
}
