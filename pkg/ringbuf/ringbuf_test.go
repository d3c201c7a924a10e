package ringbuf_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxidecomputer/hubriskern/pkg/ringbuf"
)

func TestPushAndSnapshotPreservesOrder(t *testing.T) {
	var b ringbuf.Buf
	b.Push(ringbuf.Entry{Kind: ringbuf.KindSyscallEnter, Payload: 1})
	b.Push(ringbuf.Entry{Kind: ringbuf.KindSyscallExit, Payload: 2})
	b.Push(ringbuf.Entry{Kind: ringbuf.KindContextSwitch, Payload: 3})

	require.Equal(t, 3, b.Len())
	got := b.Snapshot()
	require.Len(t, got, 3)
	assert.Equal(t, uint32(1), got[0].Payload)
	assert.Equal(t, uint32(2), got[1].Payload)
	assert.Equal(t, uint32(3), got[2].Payload)
}

func TestPushWrapsAroundOverwritingOldest(t *testing.T) {
	var b ringbuf.Buf
	const capacity = 256
	for i := 0; i < capacity+10; i++ {
		b.Push(ringbuf.Entry{Kind: ringbuf.KindNotify, Payload: uint32(i)})
	}

	assert.Equal(t, capacity, b.Len(), "Len must saturate at capacity, never grow past it")
	got := b.Snapshot()
	require.Len(t, got, capacity)
	// The oldest surviving entry is the 11th pushed (index 10), since the
	// first 10 were overwritten by the wraparound.
	assert.Equal(t, uint32(10), got[0].Payload)
	assert.Equal(t, uint32(capacity+9), got[capacity-1].Payload)
}

func TestEmptyBufSnapshotIsEmpty(t *testing.T) {
	var b ringbuf.Buf
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Snapshot())
}
