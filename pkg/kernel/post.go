package kernel

import "github.com/oxidecomputer/hubriskern/pkg/abi"

// Post implements the Post syscall: one task directly signals another's
// notification bits, the same delivery path an interrupt uses but driven
// by software rather than pkg/irq. It returns the dead-code sentinel if
// target's generation has moved on, the same convention Send uses.
func (ts *TaskSet) Post(callerIdx int, target abi.TaskId, mask uint32) (rc uint32, hint RescheduleHint) {
	idx := target.Index()
	if idx < 0 || idx >= len(ts.Tasks) {
		return abi.DeadCode(0), HintSame()
	}
	t := ts.Tasks[idx]
	if t.Generation != target.Generation() {
		return abi.DeadCode(t.Generation), HintSame()
	}
	if mask == 0 {
		return 0, HintSame()
	}
	return 0, ts.PostNotification(idx, mask)
}

// ReplyFault implements the ReplyFault syscall: the calling task,
// currently owed a reply by peer (peer is InReplyTo(self)),
// declares peer faulted instead of replying normally. This is how a
// server protects itself from a misbehaving client without having to
// trust the client's follow-up behavior, mirroring Hubris's
// sys_reply_fault.
func (ts *TaskSet) ReplyFault(callerIdx int, peer abi.TaskId, reason uint32) {
	caller := ts.Tasks[callerIdx]
	idx := peer.Index()
	if idx < 0 || idx >= len(ts.Tasks) || ts.Tasks[idx].Generation != peer.Generation() {
		return // dead generation: nothing to fault, silently drop
	}
	p := ts.Tasks[idx]
	if p.State.Status != Healthy || p.State.Sched.Kind != InReplyTo || p.State.Sched.Peer != caller.TaskId() {
		return // peer already moved on; defensive drop, same as Reply
	}
	ts.ForceFault(idx, abi.FaultInfo{Kind: abi.FaultServerDeclared, Source: abi.FaultSourceUser, Reason: reason})
}
