// Package ringbuf implements a fixed-capacity, allocation-free circular
// trace buffer, the kernel's substitute for a logging library on the
// hot path. The kernel itself may never allocate, so every entry is a
// fixed-size value stored into a preallocated array and overwritten
// oldest-first; only the harness or supervisor, which are allowed to
// allocate, drain it into a real logging sink (see cmd/hubriskernel for
// the zerolog-backed drain).
package ringbuf

// Entry is one fixed-size trace record. Kind and two payload words are
// almost always enough to reconstruct what happened from outside the
// kernel; anything larger belongs in a fault report, not a trace entry.
type Entry struct {
	Kind    Kind
	Tick    uint64
	Task    int32
	Payload uint32
}

// Kind tags what an Entry records. New kinds should be appended, never
// renumbered, since Humility-style external tooling may decode traces by
// kind ordinal.
type Kind uint8

const (
	KindContextSwitch Kind = iota
	KindSyscallEnter
	KindSyscallExit
	KindIsrEnter
	KindIsrExit
	KindTimerIsr
	KindFault
	KindNotify
)

// Buf is a ring buffer of N entries, all pre-zeroed at construction. It is
// not safe for concurrent use, matching the kernel's single-hart,
// non-reentrant execution model: all writes happen from trap context with
// interrupts masked, so there is never a concurrent writer to race with.
type Buf struct {
	entries [capacity]Entry
	next    int
	count   int
}

// capacity is fixed at compile time, like a Hubris stringbuf!() size
// parameter, so the buffer never grows.
const capacity = 256

// Push records e, overwriting the oldest entry once the buffer is full.
func (b *Buf) Push(e Entry) {
	b.entries[b.next] = e
	b.next = (b.next + 1) % capacity
	if b.count < capacity {
		b.count++
	}
}

// Len returns the number of live entries (<= capacity).
func (b *Buf) Len() int {
	return b.count
}

// Snapshot copies out the live entries in oldest-to-newest order. It
// allocates, so it must only be called from the harness/supervisor side,
// never from kernel trap context.
func (b *Buf) Snapshot() []Entry {
	out := make([]Entry, b.count)
	start := b.next - b.count
	if start < 0 {
		start += capacity
	}
	for i := 0; i < b.count; i++ {
		out[i] = b.entries[(start+i)%capacity]
	}
	return out
}
