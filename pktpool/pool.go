// Package pktpool provides a fixed pool of reusable, MTU-sized byte
// buffers. The pool itself stores only a free list with no internal
// synchronization; callers that share a Pool across goroutines are
// expected to protect it externally, matching the pool's treatment in the
// rest of this toolkit.
package pktpool

import (
	"sync/atomic"

	"github.com/netkit/pktstack/internal/metrics"
)

// DefaultMTU is the standard Ethernet MTU used to size buffers when a
// caller does not specify one.
const DefaultMTU = 1500

// Buffer is a pool-managed byte buffer. Callers must call Release when
// done; the pool only reclaims it if the caller holds the last outstanding
// reference.
type Buffer struct {
	Bytes []byte

	pool *Pool
	refs int32
}

// Retain increments the buffer's reference count, for a second stage that
// needs to keep the buffer alive after the original holder releases it.
func (b *Buffer) Retain() {
	atomic.AddInt32(&b.refs, 1)
}

// Release decrements the reference count. If this was the last reference,
// the buffer is returned to its pool's free list; otherwise this is a
// no-op, since the buffer is still referenced elsewhere.
func (b *Buffer) Release() {
	if atomic.AddInt32(&b.refs, -1) > 0 {
		return
	}
	b.pool.release(b)
}

// Pool is a fixed-size-buffer pool sized to mtu bytes per buffer.
type Pool struct {
	mtu       int
	free      []*Buffer
	allocated int64 // outstanding buffers: up on Acquire, down on release; relaxed statistics only
}

// NewPool creates an empty pool that allocates buffers of mtu bytes on
// demand.
func NewPool(mtu int) *Pool {
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	return &Pool{mtu: mtu}
}

// Acquire pops a buffer from the free list or, if empty, allocates a fresh
// one. The returned buffer starts with a single reference.
func (p *Pool) Acquire() *Buffer {
	if n := len(p.free); n > 0 {
		b := p.free[n-1]
		p.free = p.free[:n-1]
		b.refs = 1
		atomic.AddInt64(&p.allocated, 1)
		metrics.PoolAllocationGauge.Set(float64(atomic.LoadInt64(&p.allocated)))
		return b
	}
	b := &Buffer{Bytes: make([]byte, p.mtu), pool: p, refs: 1}
	atomic.AddInt64(&p.allocated, 1)
	metrics.PoolAllocationGauge.Set(float64(atomic.LoadInt64(&p.allocated)))
	return b
}

// release returns b to the free list and decrements the allocation
// counter. Called only from Buffer.Release once the last reference drops.
func (p *Pool) release(b *Buffer) {
	p.free = append(p.free, b)
	atomic.AddInt64(&p.allocated, -1)
	metrics.PoolAllocationGauge.Set(float64(atomic.LoadInt64(&p.allocated)))
}

// Allocated returns the current count of outstanding (not-yet-released)
// buffers.
func (p *Pool) Allocated() int64 {
	return atomic.LoadInt64(&p.allocated)
}
