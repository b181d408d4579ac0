package engine

// maxHashBytes bounds how much of a packet's payload the distributor
// hashes: flow identifying bytes live at the front of the packet, and
// hashing the whole thing buys nothing but latency.
const maxHashBytes = 20

// Distributor assigns packets to one of N workers by a polynomial rolling
// hash over the leading bytes of the packet, so all packets belonging to
// the same flow land on the same worker and a single connection's
// segments are never processed out of order relative to each other.
type Distributor struct {
	workers int
}

// NewDistributor builds a distributor that spreads packets across the
// given number of workers. workers must be at least 1.
func NewDistributor(workers int) *Distributor {
	if workers < 1 {
		workers = 1
	}
	return &Distributor{workers: workers}
}

// Route hashes the leading bytes of payload and returns the worker index
// in [0, workers).
func (d *Distributor) Route(payload []byte) int {
	n := len(payload)
	if n > maxHashBytes {
		n = maxHashBytes
	}
	var h uint32
	for i := 0; i < n; i++ {
		h = h*31 + uint32(payload[i])
	}
	return int(h % uint32(d.workers))
}
