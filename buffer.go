package framepipe

import (
	"fmt"
	"sync/atomic"
)

// Buffer is a handle to one pooled image buffer.
//
// A Buffer is exclusively owned by its pool until the pool hands it out;
// the current request then holds it as a borrow until Release returns it.
// No two in-flight requests may hold the same Buffer. Release is safe to
// call on every exit path: only the first call re-queues the buffer, later
// calls are no-ops.
type Buffer struct {
	pool *BufferPool
	info VideoBufferInfo
	data []byte

	// timestamp is the presentation time of the frame, in microseconds.
	timestamp atomic.Int64

	// released guards the exactly-once return to the pool.
	released atomic.Bool
}

// Info returns the buffer's layout descriptor.
func (b *Buffer) Info() VideoBufferInfo {
	return b.info
}

// Data returns the full backing store of the buffer.
// The slice is valid only while the buffer is held.
func (b *Buffer) Data() []byte {
	return b.data
}

// Plane returns the bytes of one plane, sliced out of the backing store.
func (b *Buffer) Plane(index uint32) ([]byte, error) {
	size, err := b.info.PlaneSize(index)
	if err != nil {
		return nil, err
	}
	off := b.info.Offsets[index]
	if uint64(off)+uint64(size) > uint64(len(b.data)) {
		return nil, fmt.Errorf("%w: plane %d exceeds buffer of %d bytes", ErrInvalidParam, index, len(b.data))
	}
	return b.data[off : off+size], nil
}

// Timestamp returns the frame presentation time in microseconds.
func (b *Buffer) Timestamp() int64 {
	return b.timestamp.Load()
}

// SetTimestamp records the frame presentation time in microseconds.
func (b *Buffer) SetTimestamp(ts int64) {
	b.timestamp.Store(ts)
}

// Release returns the buffer to its pool. Only the first Release after the
// buffer was handed out takes effect; a repeated release is dropped and
// logged. Buffers released after the pool closed are dropped silently.
func (b *Buffer) Release() {
	if b == nil {
		return
	}
	if !b.released.CompareAndSwap(false, true) {
		Logger().Warn("double buffer release dropped", "pool", b.pool.Name())
		return
	}
	b.pool.put(b)
}
