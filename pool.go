package framepipe

import (
	"context"
	"fmt"
	"sync"
)

// BufferPool reserves a fixed-capacity set of buffers matching one
// VideoBufferInfo and serves acquire and release requests.
//
// The descriptor is immutable once reserved: Reserve succeeds at most once
// per pool, all-or-nothing. Acquire failure under exhaustion is transient
// backpressure, not a fatal condition.
//
// A pool is private to one handler instance; handlers never share pools.
// BufferPool is safe for concurrent use.
type BufferPool struct {
	name string

	mu       sync.Mutex
	info     VideoBufferInfo
	capacity uint32
	reserved bool
	closed   bool

	// free queues the buffers currently owned by the pool.
	free chan *Buffer
}

// NewBufferPool creates an empty pool. Reserve must be called before
// buffers can be acquired.
func NewBufferPool(name string) *BufferPool {
	return &BufferPool{name: name}
}

// Name returns the pool name used in logs and errors.
func (p *BufferPool) Name() string {
	return p.name
}

// Reserve allocates count buffers matching info up front. Reservation is
// all-or-nothing: on failure the pool holds no buffers. The descriptor is
// immutable afterwards; a second Reserve fails with ErrPoolReserved.
func (p *BufferPool) Reserve(info VideoBufferInfo, count uint32) error {
	if !info.Valid() {
		return fmt.Errorf("%w: pool %q: invalid video info", ErrInvalidParam, p.name)
	}
	if count == 0 {
		return fmt.Errorf("%w: pool %q: zero buffer count", ErrInvalidParam, p.name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("%w: pool %q", ErrPoolClosed, p.name)
	}
	if p.reserved {
		return fmt.Errorf("%w: pool %q", ErrPoolReserved, p.name)
	}

	free := make(chan *Buffer, count)
	for i := uint32(0); i < count; i++ {
		free <- &Buffer{pool: p, info: info, data: make([]byte, info.Size)}
	}

	p.info = info
	p.capacity = count
	p.free = free
	p.reserved = true

	Logger().Debug("buffer pool reserved", "pool", p.name, "count", count, "info", info.String())
	return nil
}

// Reserved reports whether the pool holds a reservation.
func (p *BufferPool) Reserved() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reserved
}

// GetFree acquires one buffer without waiting. It returns ErrPoolExhausted
// when all buffers are in flight; the caller may retry, wait via Acquire,
// or treat the condition as backpressure.
func (p *BufferPool) GetFree() (*Buffer, error) {
	free, err := p.freeQueue()
	if err != nil {
		return nil, err
	}

	select {
	case b := <-free:
		b.released.Store(false)
		return b, nil
	default:
		return nil, fmt.Errorf("%w: pool %q", ErrPoolExhausted, p.name)
	}
}

// Acquire acquires one buffer, waiting until one is free or ctx is done.
// The context deadline is the backpressure bound; on expiry the error
// matches both ErrPoolExhausted and the context error.
func (p *BufferPool) Acquire(ctx context.Context) (*Buffer, error) {
	free, err := p.freeQueue()
	if err != nil {
		return nil, err
	}

	select {
	case b := <-free:
		b.released.Store(false)
		return b, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: pool %q: %w", ErrPoolExhausted, p.name, ctx.Err())
	}
}

// freeQueue returns the free-buffer queue after state checks.
func (p *BufferPool) freeQueue() (chan *Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, fmt.Errorf("%w: pool %q", ErrPoolClosed, p.name)
	}
	if !p.reserved {
		return nil, fmt.Errorf("%w: pool %q: not reserved", ErrInvalidParam, p.name)
	}
	return p.free, nil
}

// put returns a buffer to the free queue. Buffers arriving after Close are
// dropped so a drained pool never resurrects.
func (p *BufferPool) put(b *Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.free <- b:
	default:
		// Capacity is fixed at reservation; overflow means a foreign or
		// duplicated buffer and is dropped.
		Logger().Warn("buffer returned to full pool dropped", "pool", p.name)
	}
}

// Close releases the pool. Buffers still in flight are dropped when they
// are eventually released. Close is idempotent.
func (p *BufferPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.free != nil {
		// Drain so held memory is released promptly.
		for {
			select {
			case <-p.free:
			default:
				p.free = nil
				return
			}
		}
	}
}

// Capacity returns the reserved buffer count.
func (p *BufferPool) Capacity() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity
}

// FreeCount returns the number of buffers currently available.
func (p *BufferPool) FreeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.free == nil {
		return 0
	}
	return len(p.free)
}

// VideoInfo returns the descriptor the pool was reserved with.
func (p *BufferPool) VideoInfo() VideoBufferInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info
}
