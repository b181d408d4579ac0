// Package gro implements receive-side TCP segment aggregation (GRO), keyed
// by five-tuple, with sequence-contiguity invariants and a time-based
// flush. LRO is a thin enable/disable wrapper around the same aggregator.
package gro

import (
	"sync"
	"time"

	"github.com/netkit/pktstack/internal/metrics"
	"github.com/netkit/pktstack/wire"
)

// maxAggregateBytes bounds the total payload size of an aggregated flow.
const maxAggregateBytes = 64 * 1024

// aggregationTimeout is the per-flow age limit enforced at each Aggregate
// call and at explicit flush.
const aggregationTimeout = 100 * time.Microsecond

// flow holds the ordered list of accepted segments for one five-tuple.
type flow struct {
	segments   []*wire.TCPSegment
	base       uint32
	totalBytes int
	start      time.Time
}

// Aggregator holds per-flow GRO state behind a single mutex.
type Aggregator struct {
	mu    sync.Mutex
	flows map[wire.FlowKey]*flow
	now   func() time.Time
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{flows: make(map[wire.FlowKey]*flow), now: time.Now}
}

// eligible reports whether seg can be appended to f: no SYN/FIN/RST, the
// merged payload stays within maxAggregateBytes, and seg picks up exactly
// where the flow left off (no gap, no overlap).
func eligible(f *flow, seg *wire.TCPSegment) bool {
	if seg.Flags.SYN || seg.Flags.FIN || seg.Flags.RST {
		return false
	}
	if f.totalBytes+len(seg.Payload) > maxAggregateBytes {
		return false
	}
	return seg.SequenceNumber == f.base+uint32(f.totalBytes)
}

// merge concatenates f's segments into one synthetic segment: header
// fields taken from the first segment, payloads concatenated, checksum
// reset to zero pending recomputation before emission.
func merge(f *flow) *wire.TCPSegment {
	first := f.segments[0]
	out := &wire.TCPSegment{
		SourcePort:      first.SourcePort,
		DestinationPort: first.DestinationPort,
		SequenceNumber:  f.base,
		AckNumber:       first.AckNumber,
		DataOffset:      first.DataOffset,
		Flags:           first.Flags,
		Window:          first.Window,
		Checksum:        0,
		UrgentPointer:   first.UrgentPointer,
		Options:         first.Options,
	}
	payload := make([]byte, 0, f.totalBytes)
	for _, seg := range f.segments {
		payload = append(payload, seg.Payload...)
	}
	out.Payload = payload
	return out
}

// Aggregate offers seg, keyed by key, to the aggregator. It returns a
// flushed segment when the existing flow for key could not accept seg (or
// had aged out) and had to be flushed first; seg then starts a new flow.
// It returns (nil, false) when seg was simply appended to the live flow.
func (a *Aggregator) Aggregate(key wire.FlowKey, seg *wire.TCPSegment) (*wire.TCPSegment, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	f, ok := a.flows[key]
	if ok && now.Sub(f.start) > aggregationTimeout {
		metrics.GROFlushTotal.WithLabelValues("timeout").Inc()
		flushed := merge(f)
		delete(a.flows, key)
		a.startFlow(key, seg, now)
		return flushed, true
	}
	if ok && eligible(f, seg) {
		f.segments = append(f.segments, seg)
		f.totalBytes += len(seg.Payload)
		return nil, false
	}
	if ok {
		metrics.GROFlushTotal.WithLabelValues("noncontiguous").Inc()
		flushed := merge(f)
		delete(a.flows, key)
		a.startFlow(key, seg, now)
		return flushed, true
	}
	a.startFlow(key, seg, now)
	return nil, false
}

func (a *Aggregator) startFlow(key wire.FlowKey, seg *wire.TCPSegment, now time.Time) {
	a.flows[key] = &flow{
		segments:   []*wire.TCPSegment{seg},
		base:       seg.SequenceNumber,
		totalBytes: len(seg.Payload),
		start:      now,
	}
}

// FlushTimeouts emits merged segments for every flow older than the
// aggregation timeout, leaving younger flows untouched.
func (a *Aggregator) FlushTimeouts() []*wire.TCPSegment {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	var out []*wire.TCPSegment
	for key, f := range a.flows {
		if now.Sub(f.start) > aggregationTimeout {
			metrics.GROFlushTotal.WithLabelValues("timeout").Inc()
			out = append(out, merge(f))
			delete(a.flows, key)
		}
	}
	return out
}

// FlushAll emits and clears every flow, regardless of age.
func (a *Aggregator) FlushAll() []*wire.TCPSegment {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*wire.TCPSegment, 0, len(a.flows))
	for key, f := range a.flows {
		metrics.GROFlushTotal.WithLabelValues("explicit").Inc()
		out = append(out, merge(f))
		delete(a.flows, key)
	}
	return out
}

// LRO is a thin enable/disable wrapper around an Aggregator, matching
// spec.md's treatment of large receive offload as a policy toggle over
// the same aggregation logic GRO uses.
type LRO struct {
	enabled    bool
	aggregator *Aggregator
}

// NewLRO creates a disabled LRO wrapper around a fresh Aggregator.
func NewLRO() *LRO {
	return &LRO{aggregator: NewAggregator()}
}

// SetEnabled toggles LRO on or off.
func (l *LRO) SetEnabled(enabled bool) {
	l.enabled = enabled
}

// Enabled reports whether LRO is currently active.
func (l *LRO) Enabled() bool {
	return l.enabled
}

// Aggregate offers seg to the underlying aggregator only if LRO is
// enabled; otherwise it is returned immediately as if flushed standalone.
func (l *LRO) Aggregate(key wire.FlowKey, seg *wire.TCPSegment) (*wire.TCPSegment, bool) {
	if !l.enabled {
		return seg, true
	}
	return l.aggregator.Aggregate(key, seg)
}
