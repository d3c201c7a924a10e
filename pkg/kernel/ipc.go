// This file implements the synchronous rendezvous IPC protocol: send,
// recv, reply, and the borrow_* family, plus the shared transfer routine
// they all bottom out in. It lives in package kernel so every task-state
// transition stays behind one reviewable set of functions, the same way
// gVisor centralizes task-state mutation behind TaskSet.mu in
// pkg/sentry/kernel/task_start.go.
package kernel

import (
	"encoding/binary"

	"github.com/oxidecomputer/hubriskern/pkg/abi"
	"github.com/oxidecomputer/hubriskern/pkg/pmp"
)

// SendArgs mirrors the A0-A6 arguments of the Send syscall: target_op,
// out_ptr, out_len, in_ptr, in_len, lease_ptr, lease_len.
type SendArgs struct {
	Target    abi.TaskId
	Operation uint16
	OutPtr    uint32
	OutLen    uint32
	InPtr     uint32
	InLen     uint32
	LeasePtr  uint32
	LeaseLen  uint32
}

// RecvArgs mirrors the Recv syscall's arguments.
type RecvArgs struct {
	BufPtr           uint32
	BufLen           uint32
	NotificationMask uint32
	// HasSpecificSender/SpecificSender implement the optional
	// specific_sender argument; when unset this is an open receive.
	HasSpecificSender bool
	SpecificSender    abi.TaskId
}

// enqueueSender links sender onto target's send queue, in priority order
// (by the sender's static priority) with FIFO among equal priorities,
// threading the queue directly through TCBs.
func (ts *TaskSet) enqueueSender(target, sender *Task) {
	senderPrio := ts.Desc.Tasks[sender.DescIndex].Priority

	if target.sendQueueHead == nil {
		target.sendQueueHead = sender
		sender.sendQueueNext = nil
		return
	}
	if senderPrio < ts.Desc.Tasks[target.sendQueueHead.DescIndex].Priority {
		sender.sendQueueNext = target.sendQueueHead
		target.sendQueueHead = sender
		return
	}
	cur := target.sendQueueHead
	for cur.sendQueueNext != nil && ts.Desc.Tasks[cur.sendQueueNext.DescIndex].Priority <= senderPrio {
		cur = cur.sendQueueNext
	}
	sender.sendQueueNext = cur.sendQueueNext
	cur.sendQueueNext = sender
}

// dequeueSender removes sender from target's send queue, if present.
func (ts *TaskSet) dequeueSender(target, sender *Task) {
	if target.sendQueueHead == sender {
		target.sendQueueHead = sender.sendQueueNext
		sender.sendQueueNext = nil
		return
	}
	cur := target.sendQueueHead
	for cur != nil && cur.sendQueueNext != sender {
		cur = cur.sendQueueNext
	}
	if cur != nil {
		cur.sendQueueNext = sender.sendQueueNext
	}
	sender.sendQueueNext = nil
}

// popHighestPrioritySender removes and returns the highest-priority
// (then earliest-queued) waiter on target's send queue, or nil if empty.
func (ts *TaskSet) popHighestPrioritySender(target *Task) *Task {
	sender := target.sendQueueHead
	if sender == nil {
		return nil
	}
	target.sendQueueHead = sender.sendQueueNext
	sender.sendQueueNext = nil
	return sender
}

// recvFilterMatches reports whether receiver's current Recv filter
// (open, or closed to a specific sender) accepts a send from sender.
func recvFilterMatches(receiver *Task, senderID abi.TaskId) bool {
	f := receiver.State.Sched
	if !f.HasSpecificSender {
		return true
	}
	return f.SpecificSender == senderID
}

// Send implements the Send syscall's rendezvous logic. senderIdx is the
// index of the calling task; args come from its saved registers.
func (ts *TaskSet) Send(senderIdx int, args SendArgs) RescheduleHint {
	sender := ts.Tasks[senderIdx]
	targetIdx := args.Target.Index()
	if targetIdx < 0 || targetIdx >= len(ts.Tasks) {
		sender.Save.SetRet0(abi.DeadCode(0))
		return HintSame()
	}
	target := ts.Tasks[targetIdx]

	// Step 1: validate generation and fault status.
	if target.Generation != args.Target.Generation() || target.State.Status == Faulted {
		sender.Save.SetRet0(abi.DeadCode(target.Generation))
		return HintSame()
	}

	senderID := sender.TaskId()

	// Step 2: rendezvous immediately if target is already waiting in Recv
	// with a matching filter.
	if target.State.Status == Healthy && target.State.Sched.Kind == InRecv && recvFilterMatches(target, senderID) {
		// The waiting receiver's buffer is the one its Recv left in its
		// own A0/A1.
		if !ts.transfer(sender, target, args.Operation, args.OutPtr, args.OutLen, target.Save.Arg0(), target.Save.Arg1(), args.InLen, args.LeaseLen) {
			// transfer already force-faulted the offender and restored
			// the counterparty's wait state; nothing further to do.
			return HintOther()
		}
		target.State.Sched = SchedState{Kind: Runnable}
		sender.State.Sched = SchedState{Kind: InReplyTo, Peer: target.TaskId()}

		if ts.Desc.Tasks[target.DescIndex].Priority < ts.Desc.Tasks[sender.DescIndex].Priority {
			return HintSpecific(targetIdx)
		}
		return HintOther()
	}

	// Step 3: otherwise, link onto the target's send queue. The arguments
	// are recorded in the sender's own A0-A6 so completeRendezvous and
	// Reply can read them back once a receiver arrives.
	sender.Save.A0 = abi.PackTargetOp(args.Target, args.Operation)
	sender.Save.A1, sender.Save.A2 = args.OutPtr, args.OutLen
	sender.Save.A3, sender.Save.A4 = args.InPtr, args.InLen
	sender.Save.A5, sender.Save.A6 = args.LeasePtr, args.LeaseLen
	sender.State.Sched = SchedState{Kind: InSendTo, Peer: target.TaskId()}
	ts.enqueueSender(target, sender)
	return HintOther()
}

// Recv implements the Recv syscall's rendezvous logic. receiverIdx is
// the calling task.
func (ts *TaskSet) Recv(receiverIdx int, args RecvArgs) RescheduleHint {
	receiver := ts.Tasks[receiverIdx]
	receiver.NotificationsEnabled = args.NotificationMask
	// Keep the buffer in A0/A1 so a sender arriving later finds it there.
	receiver.Save.A0, receiver.Save.A1 = args.BufPtr, args.BufLen

	// A closed receive naming a peer in a dead generation fails fast.
	if args.HasSpecificSender {
		peerIdx := args.SpecificSender.Index()
		if peerIdx < 0 || peerIdx >= len(ts.Tasks) || ts.Tasks[peerIdx].Generation != args.SpecificSender.Generation() {
			gen := uint8(0)
			if peerIdx >= 0 && peerIdx < len(ts.Tasks) {
				gen = ts.Tasks[peerIdx].Generation
			}
			receiver.Save.SetRet0(abi.DeadCode(gen))
			return HintSame()
		}
	}

	// Step 2: pending notifications win over queued senders.
	if bits := receiver.NotificationsPosted & args.NotificationMask; bits != 0 {
		receiver.NotificationsPosted &^= bits
		receiver.Save.SetRet0(uint32(abi.KernelTaskId))
		receiver.Save.SetRet1(uint32(bits))
		return HintSame()
	}

	// Step 3: a named specific sender already queued.
	if args.HasSpecificSender {
		peer := ts.Tasks[args.SpecificSender.Index()]
		if peer.State.Status == Healthy && peer.State.Sched.Kind == InSendTo && peer.State.Sched.Peer == receiver.TaskId() {
			ts.dequeueSender(receiver, peer)
			ts.completeRendezvous(peer, receiver, args.BufPtr, args.BufLen)
			return HintSame()
		}
		receiver.State.Sched = SchedState{Kind: InRecv, HasSpecificSender: true, SpecificSender: args.SpecificSender}
		return HintSame()
	}

	// Step 4: open receive with a waiting sender.
	if sender := ts.popHighestPrioritySender(receiver); sender != nil {
		ts.completeRendezvous(sender, receiver, args.BufPtr, args.BufLen)
		return HintSame()
	}

	// Step 5: nothing ready; block.
	receiver.State.Sched = SchedState{Kind: InRecv}
	return HintSame()
}

// completeRendezvous performs the transfer for a sender already queued
// (dequeued by the caller) against receiver's freshly-supplied buffer,
// then advances both sides' state.
func (ts *TaskSet) completeRendezvous(sender, receiver *Task, bufPtr, bufLen uint32) {
	// The sender's original Send call already recorded its operation and
	// buffer pointers in its own saved registers at the time it blocked;
	// re-read them here rather than threading them through SchedState.
	args := decodeSendArgsFromSaved(sender)
	if !ts.transfer(sender, receiver, args.operation, args.outPtr, args.outLen, bufPtr, bufLen, args.replyCap, args.leaseLen) {
		// transfer already force-faulted the offender and restored the
		// counterparty's wait state.
		return
	}
	receiver.State.Sched = SchedState{Kind: Runnable}
	sender.State.Sched = SchedState{Kind: InReplyTo, Peer: receiver.TaskId()}
}

// decodedSend is the subset of a blocked sender's original Send arguments
// still needed once it has been dequeued and is ready to transfer.
type decodedSend struct {
	operation uint16
	outPtr    uint32
	outLen    uint32
	replyCap  uint32
	leaseLen  uint32
}

// decodeSendArgsFromSaved recovers a blocked sender's send arguments from
// its own saved registers, rather than copying them out at send time.
func decodeSendArgsFromSaved(sender *Task) decodedSend {
	_, op := abi.UnpackTargetOp(sender.Save.Arg0())
	return decodedSend{
		operation: op,
		outPtr:    sender.Save.Arg1(),
		outLen:    sender.Save.Arg2(),
		replyCap:  sender.Save.Arg4(),
		leaseLen:  sender.Save.Arg6(),
	}
}

// transfer copies min(outLen, inLen) bytes from sender's outgoing
// buffer to receiver's incoming buffer, validating
// both buffers against their owner's region table, and populating the
// receiver's return registers. On a validation failure the offender is
// force-faulted and the counterparty is left waiting: a faulted sender
// leaves the receiver in the wait state it had on entry, and a faulted
// receiver leaves the sender InSendTo on the receiver's send queue (also
// when the sender came from Send's immediate-match path). transfer then
// reports false and the caller must NOT perform its own post-rendezvous
// state transitions, since the states above are the ones that stick.
func (ts *TaskSet) transfer(sender, receiver *Task, operation uint16, outPtr, outLen, inPtr, inLen, replyCap, leaseCount uint32) bool {
	// receiver.State.Sched still holds its pre-rendezvous wait state at
	// entry -- neither caller (Send's immediate-match path nor
	// completeRendezvous) has overwritten it yet -- so a rollback can
	// restore it verbatim, preserving a closed receive's
	// HasSpecificSender/SpecificSender filter instead of reopening it.
	preRendezvous := receiver.State.Sched

	n := outLen
	if inLen < n {
		n = inLen
	}

	if n > 0 {
		srcRegion := pmp.FindRegion(sender.Regions, outPtr, n, abi.AttrRead)
		if srcRegion < 0 {
			ts.ForceFault(sender.index, abi.FaultInfo{Kind: abi.FaultMemoryAccess, Address: outPtr, Source: abi.FaultSourceUser})
			receiver.State.Sched = preRendezvous
			return false
		}
		dstRegion := pmp.FindRegion(receiver.Regions, inPtr, n, abi.AttrWrite)
		if dstRegion < 0 {
			ts.ForceFault(receiver.index, abi.FaultInfo{Kind: abi.FaultMemoryAccess, Address: inPtr, Source: abi.FaultSourceUser})
			sender.State.Sched = SchedState{Kind: InSendTo, Peer: receiver.TaskId()}
			ts.enqueueSender(receiver, sender)
			return false
		}
		copy(ts.Mem[inPtr:inPtr+n], ts.Mem[outPtr:outPtr+n])
	}

	receiver.Save.SetRet0(uint32(sender.TaskId()))
	receiver.Save.SetRet1(uint32(operation))
	// message_len (bytes copied), response_capacity (the sender's reply
	// buffer length) and lease_count ride in A2-A4. They stay in the
	// return registers; nothing writes them to an out_struct_ptr.
	receiver.Save.SetRet2(n)
	receiver.Save.SetRet3(replyCap)
	receiver.Save.SetRet4(leaseCount)
	return true
}

// Reply implements the Reply syscall.
func (ts *TaskSet) Reply(callerIdx int, peer abi.TaskId, code uint32, msgPtr, msgLen uint32) {
	caller := ts.Tasks[callerIdx]
	peerIdx := peer.Index()
	if peerIdx < 0 || peerIdx >= len(ts.Tasks) || ts.Tasks[peerIdx].Generation != peer.Generation() {
		return // dead generation: silently drop
	}
	p := ts.Tasks[peerIdx]
	if p.State.Status != Healthy || p.State.Sched.Kind != InReplyTo || p.State.Sched.Peer != caller.TaskId() {
		return // peer moved on (likely faulted); defensive drop
	}

	n := msgLen
	replyCap := decodeReplyCapFromSaved(p)
	if n > replyCap {
		n = replyCap
	}
	if n > 0 {
		srcRegion := pmp.FindRegion(caller.Regions, msgPtr, n, abi.AttrRead)
		dstPtr := decodeReplyPtrFromSaved(p)
		dstRegion := pmp.FindRegion(p.Regions, dstPtr, n, abi.AttrWrite)
		if srcRegion < 0 {
			ts.ForceFault(caller.index, abi.FaultInfo{Kind: abi.FaultMemoryAccess, Address: msgPtr, Source: abi.FaultSourceUser})
			return
		}
		if dstRegion < 0 {
			ts.ForceFault(p.index, abi.FaultInfo{Kind: abi.FaultMemoryAccess, Address: dstPtr, Source: abi.FaultSourceUser})
			return
		}
		copy(ts.Mem[dstPtr:dstPtr+n], ts.Mem[msgPtr:msgPtr+n])
	}
	p.Save.SetRet0(code)
	p.Save.SetRet1(n)
	p.State.Sched = SchedState{Kind: Runnable}
}

func decodeReplyCapFromSaved(p *Task) uint32 { return p.Save.Arg4() }
func decodeReplyPtrFromSaved(p *Task) uint32 { return p.Save.Arg3() }

// BorrowRead implements the BorrowRead syscall: the calling task (the
// rendezvous receiver) pulls bytes out of a lease exposed by the task
// currently in InReplyTo(self).
func (ts *TaskSet) BorrowRead(callerIdx int, lender abi.TaskId, leaseIndex int, offset uint32, destPtr, destLen uint32) (rc uint32, n uint32) {
	return ts.borrow(callerIdx, lender, leaseIndex, offset, destPtr, destLen, abi.LeaseRead, abi.AttrWrite, true)
}

// BorrowWrite implements the BorrowWrite syscall, the write direction of
// the same borrow protocol BorrowRead uses.
func (ts *TaskSet) BorrowWrite(callerIdx int, lender abi.TaskId, leaseIndex int, offset uint32, srcPtr, srcLen uint32) (rc uint32, n uint32) {
	return ts.borrow(callerIdx, lender, leaseIndex, offset, srcPtr, srcLen, abi.LeaseWrite, abi.AttrRead, false)
}

const (
	rcOK       = 0
	rcWentAway = 1
	rcBadLease = 2
)

// borrow is the shared implementation of BorrowRead/BorrowWrite: validate
// the lender is still replying to us, index its lease array, check
// attributes both ways, region-check both buffers, and copy.
func (ts *TaskSet) borrow(callerIdx int, lenderID abi.TaskId, leaseIndex int, offset uint32, callerBufPtr, callerBufLen uint32, needLease abi.LeaseAttrs, needCallerAttr abi.RegionAttrs, fromLenderToCaller bool) (uint32, uint32) {
	caller := ts.Tasks[callerIdx]
	lenderIdx := lenderID.Index()
	if lenderIdx < 0 || lenderIdx >= len(ts.Tasks) {
		return rcWentAway, 0
	}
	lender := ts.Tasks[lenderIdx]
	if lender.Generation != lenderID.Generation() || lender.State.Status != Healthy ||
		lender.State.Sched.Kind != InReplyTo || lender.State.Sched.Peer != caller.TaskId() {
		return rcWentAway, 0
	}

	lease, ok := ts.decodeLease(lender, leaseIndex)
	if !ok {
		return rcBadLease, 0
	}
	if lease.Attrs&needLease != needLease {
		return rcBadLease, 0
	}

	if pmp.FindRegion(caller.Regions, callerBufPtr, callerBufLen, needCallerAttr) < 0 {
		ts.ForceFault(caller.index, abi.FaultInfo{Kind: abi.FaultMemoryAccess, Address: callerBufPtr, Source: abi.FaultSourceUser})
		return rcWentAway, 0
	}

	if offset > lease.Len {
		return rcOK, 0
	}
	avail := lease.Len - offset
	n := callerBufLen
	if avail < n {
		n = avail
	}
	if n == 0 {
		return rcOK, 0
	}

	leaseAddr := lease.Base + offset
	if pmp.FindRegion(lender.Regions, leaseAddr, n, requiredLenderAttr(needLease)) < 0 {
		ts.ForceFault(lender.index, abi.FaultInfo{Kind: abi.FaultMemoryAccess, Address: leaseAddr, Source: abi.FaultSourceUser})
		return rcWentAway, 0
	}

	if fromLenderToCaller {
		copy(ts.Mem[callerBufPtr:callerBufPtr+n], ts.Mem[leaseAddr:leaseAddr+n])
	} else {
		copy(ts.Mem[leaseAddr:leaseAddr+n], ts.Mem[callerBufPtr:callerBufPtr+n])
	}
	return rcOK, n
}

func requiredLenderAttr(needLease abi.LeaseAttrs) abi.RegionAttrs {
	if needLease == abi.LeaseRead {
		return abi.AttrRead
	}
	return abi.AttrWrite
}

// leaseWireSize is the on-the-wire size of one abi.Lease entry: Base
// (u32), Len (u32), Attrs (u8), padded to a 4-byte stride.
const leaseWireSize = 12

// decodeLease reads entry leaseIndex out of the lender's lease array in
// the shared memory arena, located via the lease_ptr/lease_len the
// lender passed to its original Send call. The lease array itself must
// lie in a region the lender may read;
// otherwise the entry is treated as absent rather than force-faulting
// the lender, since a malformed lease array is the borrower's problem to
// report back up, not a fault in the lender.
func (ts *TaskSet) decodeLease(lender *Task, leaseIndex int) (abi.Lease, bool) {
	leasePtr := lender.Save.Arg5()
	leaseLen := lender.Save.Arg6()
	if leaseIndex < 0 || uint32(leaseIndex) >= leaseLen {
		return abi.Lease{}, false
	}
	addr := leasePtr + uint32(leaseIndex)*leaseWireSize
	if pmp.FindRegion(lender.Regions, addr, leaseWireSize, abi.AttrRead) < 0 {
		return abi.Lease{}, false
	}
	if uint64(addr)+leaseWireSize > uint64(len(ts.Mem)) {
		return abi.Lease{}, false
	}
	buf := ts.Mem[addr : addr+leaseWireSize]
	return abi.Lease{
		Base:  binary.LittleEndian.Uint32(buf[0:4]),
		Len:   binary.LittleEndian.Uint32(buf[4:8]),
		Attrs: abi.LeaseAttrs(buf[8]),
	}, true
}

// BorrowInfo implements the BorrowInfo syscall: return a lease's
// attributes and length without moving any bytes.
func (ts *TaskSet) BorrowInfo(callerIdx int, lenderID abi.TaskId, leaseIndex int) (attrs abi.LeaseAttrs, length uint32, ok bool) {
	caller := ts.Tasks[callerIdx]
	lenderIdx := lenderID.Index()
	if lenderIdx < 0 || lenderIdx >= len(ts.Tasks) {
		return 0, 0, false
	}
	lender := ts.Tasks[lenderIdx]
	if lender.Generation != lenderID.Generation() || lender.State.Status != Healthy ||
		lender.State.Sched.Kind != InReplyTo || lender.State.Sched.Peer != caller.TaskId() {
		return 0, 0, false
	}
	lease, ok := ts.decodeLease(lender, leaseIndex)
	if !ok {
		return 0, 0, false
	}
	return lease.Attrs, lease.Len, true
}
