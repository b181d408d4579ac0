// Package ring provides a lock-free byte ring buffer and a bounded
// single-producer/single-consumer element queue, used as the staging
// substrate between an ingress thread and a worker pool.
//
// Both types are safe for exactly one producer goroutine and exactly one
// consumer goroutine operating concurrently; using more than one of either
// is undefined behavior (see design notes in SPEC_FULL.md).
package ring

import (
	"errors"
	"sync/atomic"

	"github.com/m-lab/go/rtx"
	"github.com/netkit/pktstack/internal/metrics"
)

// Errors returned by Buffer's read/write operations.
var (
	ErrBufferFull  = errors.New("ring: buffer full")
	ErrBufferEmpty = errors.New("ring: buffer empty")
)

// nextPowerOfTwo rounds n up to the next power of two, or 1 if n <= 1.
func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Buffer is a contiguous byte region with independently atomic head and
// tail indices, sized to the requested capacity rounded up to a power of
// two. A write of exactly the full capacity is legal: this package
// follows the "full capacity usable" convention (see design notes),
// meaning available_read + available_write == capacity holds at every
// observable instant, with no slot held in reserve.
type Buffer struct {
	data []byte
	mask uint64

	head uint64 // consumer-owned read index, total bytes consumed
	tail uint64 // producer-owned write index, total bytes produced
}

// NewBuffer allocates a ring buffer able to hold at least capacity bytes.
// It panics if the allocator cannot satisfy the request — the one
// intentional abort in this toolkit, reflecting an unrecoverable platform
// failure.
func NewBuffer(capacity int) *Buffer {
	size := nextPowerOfTwo(capacity)
	data := make([]byte, size)
	rtx.Must(allocCheck(data), "ring: failed to allocate %d byte buffer", size)
	return &Buffer{data: data, mask: uint64(size - 1)}
}

// allocCheck exists so NewBuffer's panic path can be exercised
// deterministically in tests without actually exhausting memory.
var allocCheck = func(b []byte) error {
	if b == nil {
		return errors.New("ring: allocator returned nil")
	}
	return nil
}

// Capacity returns the buffer's total byte capacity.
func (b *Buffer) Capacity() int {
	return len(b.data)
}

// AvailableRead returns the number of unread bytes currently queued, using
// acquire-ordered loads of head and tail.
func (b *Buffer) AvailableRead() int {
	tail := atomic.LoadUint64(&b.tail)
	head := atomic.LoadUint64(&b.head)
	return int(tail - head)
}

// AvailableWrite returns the number of bytes that can be written before the
// buffer is full.
func (b *Buffer) AvailableWrite() int {
	return len(b.data) - b.AvailableRead()
}

// Write copies payload into the buffer in at most two runs (handling
// wrap-around), then publishes the updated tail with release ordering. It
// fails with ErrBufferFull if payload exceeds the currently available
// write space.
func (b *Buffer) Write(payload []byte) error {
	if len(payload) > b.AvailableWrite() {
		metrics.RingFullTotal.Inc()
		return ErrBufferFull
	}
	tail := atomic.LoadUint64(&b.tail)
	start := int(tail & b.mask)
	n := len(payload)
	first := len(b.data) - start
	if first > n {
		first = n
	}
	copy(b.data[start:start+first], payload[:first])
	if first < n {
		copy(b.data[0:n-first], payload[first:])
	}
	atomic.StoreUint64(&b.tail, tail+uint64(n))
	return nil
}

// Read copies up to min(available, len(out)) bytes into out in at most two
// runs, then publishes the updated head with release ordering. It returns
// the number of bytes read, and fails with ErrBufferEmpty if no data is
// queued.
func (b *Buffer) Read(out []byte) (int, error) {
	available := b.AvailableRead()
	if available == 0 {
		metrics.RingEmptyTotal.Inc()
		return 0, ErrBufferEmpty
	}
	n := available
	if len(out) < n {
		n = len(out)
	}
	head := atomic.LoadUint64(&b.head)
	start := int(head & b.mask)
	first := len(b.data) - start
	if first > n {
		first = n
	}
	copy(out[0:first], b.data[start:start+first])
	if first < n {
		copy(out[first:n], b.data[0:n-first])
	}
	atomic.StoreUint64(&b.head, head+uint64(n))
	return n, nil
}
