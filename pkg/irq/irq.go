// Package irq implements interrupt dispatch as notification-bit
// delivery: routing a physical interrupt line to the task and bits it
// wakes, and the sys_irq_control mask/unmask syscall. Routing itself is
// built once at startup as a pkg/phf.Table, the same
// fixed-at-image-build-time perfect-hash idea an offline pack tool would
// otherwise compute; here it is built directly from the in-process
// appdesc.Descriptor.
package irq

import (
	"github.com/oxidecomputer/hubriskern/pkg/appdesc"
	"github.com/oxidecomputer/hubriskern/pkg/kernel"
	"github.com/oxidecomputer/hubriskern/pkg/phf"
	"github.com/oxidecomputer/hubriskern/pkg/ringbuf"
)

// route is the per-line routing entry stored in the table, plus the
// masked bit: a masked line is routed but does not currently deliver.
type route struct {
	taskIndex       int
	notificationBit uint32
	masked          bool
}

// Router owns the built routing table and per-line mask state. It is
// built once at startup and never rebuilt, since the routing table
// itself is a static property of the application image.
type Router struct {
	table *phf.Table[*route]
}

// Build constructs a Router from the application descriptor's interrupt
// table. All lines start unmasked.
func Build(desc *appdesc.Descriptor) *Router {
	entries := make(map[uint32]*route, len(desc.Irqs))
	for _, r := range desc.Irqs {
		entries[r.IRQ] = &route{taskIndex: r.TaskIndex, notificationBit: r.NotificationBit}
	}
	return &Router{table: phf.Build(entries)}
}

// Fire implements an interrupt line becoming pending: if the line is
// routed and not masked, it posts the routed
// notification bit to the owning task and, if that task is blocked in a
// matching Recv, wakes it. It returns the reschedule hint the caller
// (the simulated trap dispatcher) should act on, and whether the line
// was actually delivered (false if unrouted or masked, in which case the
// caller should treat the interrupt as spurious and simply clear it at
// the controller without disturbing any task).
func (r *Router) Fire(ts *kernel.TaskSet, line uint32) (kernel.RescheduleHint, bool) {
	rt, ok := r.table.Get(line)
	if !ok || rt.masked {
		return kernel.HintSame(), false
	}
	ts.Trace.Push(ringbuf.Entry{Kind: ringbuf.KindIsrEnter, Task: int32(rt.taskIndex), Payload: line})
	hint := ts.PostNotification(rt.taskIndex, rt.notificationBit)
	ts.Trace.Push(ringbuf.Entry{Kind: ringbuf.KindIsrExit, Task: int32(rt.taskIndex), Payload: line})
	return hint, true
}

// Control implements the sys_irq_control syscall: the calling task
// masks or unmasks whichever of its own routed lines
// fall within notificationMask. A task may only control lines routed to
// itself; lines routed to other tasks in the mask are silently ignored,
// matching the Hubris behavior of scoping control to a task's own
// interrupt ownership without needing a capability check beyond "this
// line is yours".
func (r *Router) Control(desc *appdesc.Descriptor, callerIndex int, notificationMask uint32, enable bool) {
	for _, line := range desc.ReverseIrqs(callerIndex, notificationMask) {
		rt, ok := r.table.Get(line)
		if !ok {
			continue
		}
		rt.masked = !enable
	}
}

// PostNotification posts a kernel notification bit to task i outside the
// normal timer/IPC paths, used by Fire above. It lives as a
// kernel.TaskSet method (see pkg/kernel/notify.go) rather than here,
// since waking a blocked Recv requires touching TCB-internal fields
// irq.Router has no business reaching into directly.
