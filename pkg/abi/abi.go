// Package abi defines the wire contract between the kernel and userlib: the
// syscall numbers, argument/return register layout, TaskId encoding, and
// fault descriptors any compliant userspace must agree on. It holds data
// types only -- no kernel behavior lives here, so this package can be
// imported by both pkg/kernel and pkg/trapentry without creating a cycle.
package abi

// Syscall identifies the operation requested via register A7.
type Syscall uint32

// Syscall numbers, fixed by the wire contract. These values must never
// be renumbered once a board image has shipped.
const (
	SyscallSend Syscall = iota
	SyscallRecv
	SyscallReply
	SyscallSetTimer
	SyscallBorrowRead
	SyscallBorrowWrite
	SyscallBorrowInfo
	SyscallIrqControl
	SyscallPanic
	SyscallGetTimer
	SyscallRefreshTaskId
	SyscallPost
	SyscallReplyFault
)

func (s Syscall) String() string {
	switch s {
	case SyscallSend:
		return "Send"
	case SyscallRecv:
		return "Recv"
	case SyscallReply:
		return "Reply"
	case SyscallSetTimer:
		return "SetTimer"
	case SyscallBorrowRead:
		return "BorrowRead"
	case SyscallBorrowWrite:
		return "BorrowWrite"
	case SyscallBorrowInfo:
		return "BorrowInfo"
	case SyscallIrqControl:
		return "IrqControl"
	case SyscallPanic:
		return "Panic"
	case SyscallGetTimer:
		return "GetTimer"
	case SyscallRefreshTaskId:
		return "RefreshTaskId"
	case SyscallPost:
		return "Post"
	case SyscallReplyFault:
		return "ReplyFault"
	default:
		return "Unknown"
	}
}

// TaskId addresses a task by its index in the task table plus a generation
// counter, so that a stale handle to a restarted task can be detected.
//
// Wire layout: bits [9:0] = index, bits [15:10] = generation.
type TaskId uint16

const (
	taskIndexBits = 10
	taskIndexMask = (1 << taskIndexBits) - 1
	genBits       = 6
	genMask       = (1 << genBits) - 1
)

// KernelTaskId is the sentinel sender address used for kernel-originated
// notification messages (the kernel itself is not a real task).
const KernelTaskId TaskId = 0xFFFF

// NewTaskId packs an index and generation into a TaskId.
func NewTaskId(index int, generation uint8) TaskId {
	return TaskId((uint16(generation&genMask) << taskIndexBits) | uint16(index&taskIndexMask))
}

// Index returns the task-table index encoded in the id.
func (t TaskId) Index() int { return int(t) & taskIndexMask }

// Generation returns the generation counter encoded in the id.
func (t TaskId) Generation() uint8 { return uint8((uint16(t) >> taskIndexBits) & genMask) }

// PackTargetOp packs a destination TaskId and a 16-bit operation code into
// the single register A0 send() uses for its target_op argument.
func PackTargetOp(target TaskId, operation uint16) uint32 {
	return uint32(target)<<16 | uint32(operation)
}

// UnpackTargetOp reverses PackTargetOp.
func UnpackTargetOp(v uint32) (target TaskId, operation uint16) {
	return TaskId(v >> 16), uint16(v)
}

// deadCodeBit marks an IPC response code as a dead-peer sentinel; the low
// byte carries the target's current generation so the caller can refresh
// its handle without a second round trip.
const deadCodeBit = 1 << 31

// DeadCode builds the sentinel response code for a send to a dead or
// generation-mismatched peer.
func DeadCode(currentGeneration uint8) uint32 {
	return deadCodeBit | uint32(currentGeneration)
}

// IsDeadCode reports whether rc is a dead-peer sentinel, and if so the
// generation carried in its low byte.
func IsDeadCode(rc uint32) (gen uint8, dead bool) {
	if rc&deadCodeBit == 0 {
		return 0, false
	}
	return uint8(rc), true
}

// LeaseAttrs describes what a lease permits the borrower to do.
type LeaseAttrs uint8

const (
	LeaseRead LeaseAttrs = 1 << iota
	LeaseWrite
)

// Lease is the wire representation of one entry in a sender's lease array,
// as the kernel reads it directly out of the sender's registers/memory
// during a rendezvous. Field order matches how the packed array is laid
// out in the sender's outgoing buffer.
type Lease struct {
	Base  uint32
	Len   uint32
	Attrs LeaseAttrs
}

// RegionAttrs mirrors the abstract PMP attribute set a region descriptor
// carries: {read, write, execute, device, dma}.
type RegionAttrs uint8

const (
	AttrRead RegionAttrs = 1 << iota
	AttrWrite
	AttrExecute
	AttrDevice
	AttrDMA
)

// FaultSource distinguishes a fault the kernel detected on behalf of a task
// (e.g. validating an IPC buffer) from one the hardware trapped directly.
type FaultSource uint8

const (
	FaultSourceKernel FaultSource = iota
	FaultSourceUser
)

// FaultKind enumerates the origins of a task fault.
type FaultKind uint8

const (
	FaultIllegalInstruction FaultKind = iota
	FaultInstructionFetch
	FaultLoad
	FaultStore
	FaultMemoryAccess
	FaultPanic
	FaultInvalidSyscall
	// FaultServerDeclared marks a task faulted by its own server via the
	// ReplyFault syscall, rather than by the kernel itself.
	FaultServerDeclared
)

// FaultInfo records everything the supervisor needs to diagnose a fault.
type FaultInfo struct {
	Kind    FaultKind
	Address uint32
	Source  FaultSource
	// Reason carries the offending syscall number for FaultInvalidSyscall,
	// the ReplyFault-supplied code for FaultServerDeclared, and the
	// requested message length for FaultPanic.
	Reason uint32
}

// ImageHeader is the 48-byte secure-boot header spliced into the kernel
// binary after linking, carrying the non-secure/NSC region split (spec
// section 6.3). The kernel only needs to know its shape to validate it;
// writing it is the signing tool's job.
type ImageHeader struct {
	Magic         uint32
	TotalImageLen uint32
	SAUEntries    [8]SAUEntry
}

// sauAlignMask is applied to SAUEntry base/limit values; entries must be
// aligned to 32 bytes.
const sauAlignMask = ^uint32(0x1F)

// SAUEntry encodes one non-secure-callable region as a base/limit pair.
type SAUEntry struct {
	Base  uint32
	Limit uint32
	NSC   bool
}

// Aligned reports whether the entry respects the required 32-byte
// alignment mask.
func (e SAUEntry) Aligned() bool {
	return e.Base&^sauAlignMask == 0 && e.Limit&^sauAlignMask == 0
}
