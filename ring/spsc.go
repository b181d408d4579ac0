package ring

import (
	"sync/atomic"

	"github.com/netkit/pktstack/internal/metrics"
)

// SPSCQueue is a bounded single-producer/single-consumer queue over a
// fixed vector of slots, each holding at most one element. It uses the
// same acquire/release indexing discipline as Buffer.
type SPSCQueue struct {
	slots []interface{}
	mask  uint64

	head uint64 // consumer-owned
	tail uint64 // producer-owned
}

// NewSPSCQueue creates a queue able to hold at least capacity elements.
func NewSPSCQueue(capacity int) *SPSCQueue {
	size := nextPowerOfTwo(capacity)
	return &SPSCQueue{slots: make([]interface{}, size), mask: uint64(size - 1)}
}

// Capacity returns the queue's total element capacity.
func (q *SPSCQueue) Capacity() int {
	return len(q.slots)
}

// Push enqueues v, failing with ErrBufferFull if the queue has no free slot.
func (q *SPSCQueue) Push(v interface{}) error {
	tail := atomic.LoadUint64(&q.tail)
	head := atomic.LoadUint64(&q.head)
	if int(tail-head) >= len(q.slots) {
		metrics.RingFullTotal.Inc()
		return ErrBufferFull
	}
	q.slots[tail&q.mask] = v
	atomic.StoreUint64(&q.tail, tail+1)
	return nil
}

// Pop dequeues the oldest element, failing with ErrBufferEmpty if the queue
// has nothing queued.
func (q *SPSCQueue) Pop() (interface{}, error) {
	head := atomic.LoadUint64(&q.head)
	tail := atomic.LoadUint64(&q.tail)
	if head == tail {
		metrics.RingEmptyTotal.Inc()
		return nil, ErrBufferEmpty
	}
	v := q.slots[head&q.mask]
	q.slots[head&q.mask] = nil
	atomic.StoreUint64(&q.head, head+1)
	return v, nil
}

// Len returns the number of queued elements.
func (q *SPSCQueue) Len() int {
	tail := atomic.LoadUint64(&q.tail)
	head := atomic.LoadUint64(&q.head)
	return int(tail - head)
}
