// Package engine hosts the parallel packet-processing pipeline: an
// ordered sequence of stages applied to each packet, a worker pool that
// fans batches of packets out across goroutines, and a distributor that
// assigns packets to workers by flow hash so a single flow is always
// handled by the same worker.
package engine

import (
	"context"

	"github.com/netkit/pktstack/pktpool"
	"github.com/netkit/pktstack/wire"
)

// Stage transforms or inspects a single packet buffer. A stage that
// returns an error aborts the rest of the pipeline for that packet; the
// buffer returned alongside the error, if non-nil, is still the caller's
// to release.
type Stage func(ctx context.Context, buf *pktpool.Buffer) (*pktpool.Buffer, error)

// Pipeline is an ordered list of stages applied to a packet in sequence.
type Pipeline struct {
	stages []Stage
}

// NewPipeline builds a pipeline from the given stages, applied in order.
func NewPipeline(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Process runs buf through every stage in order, stopping at the first
// stage that returns an error.
func (p *Pipeline) Process(ctx context.Context, buf *pktpool.Buffer) (*pktpool.Buffer, error) {
	var err error
	for _, stage := range p.stages {
		buf, err = stage(ctx, buf)
		if err != nil {
			return buf, err
		}
	}
	return buf, nil
}

// FrameFilter is one stage of a FilterPipeline: a predicate over a
// decoded frame. Filters must be pure functions of the frame and safe to
// invoke from multiple goroutines concurrently.
type FrameFilter func(*wire.EthernetFrame) bool

// FilterPipeline is an ordered list of frame predicates evaluated with
// AND semantics.
type FilterPipeline struct {
	filters []FrameFilter
}

// NewFilterPipeline builds a filter pipeline from the given predicates,
// evaluated in order.
func NewFilterPipeline(filters ...FrameFilter) *FilterPipeline {
	return &FilterPipeline{filters: filters}
}

// Process evaluates f against every filter in order, short-circuiting on
// the first one that returns false.
func (p *FilterPipeline) Process(f *wire.EthernetFrame) bool {
	for _, filter := range p.filters {
		if !filter(f) {
			return false
		}
	}
	return true
}

// ProcessBatch evaluates every frame in frames concurrently, one
// goroutine per frame, and returns each frame's verdict in input order.
func (p *FilterPipeline) ProcessBatch(frames []*wire.EthernetFrame) []bool {
	verdicts := make([]bool, len(frames))
	done := make(chan struct{}, len(frames))
	for i, f := range frames {
		go func(i int, f *wire.EthernetFrame) {
			verdicts[i] = p.Process(f)
			done <- struct{}{}
		}(i, f)
	}
	for range frames {
		<-done
	}
	return verdicts
}

// Result pairs a processed buffer with the error, if any, that stopped
// its processing.
type Result struct {
	Buffer *pktpool.Buffer
	Err    error
}

// ProcessBatch runs every packet in bufs through the pipeline
// concurrently, one goroutine per packet, and returns the results in the
// same order as the input. Unlike Process, a failure on one packet has
// no effect on the others in the batch.
func (p *Pipeline) ProcessBatch(ctx context.Context, bufs []*pktpool.Buffer) []Result {
	results := make([]Result, len(bufs))
	done := make(chan int, len(bufs))
	for i, buf := range bufs {
		go func(i int, buf *pktpool.Buffer) {
			b, err := p.Process(ctx, buf)
			results[i] = Result{Buffer: b, Err: err}
			done <- i
		}(i, buf)
	}
	for range bufs {
		<-done
	}
	return results
}
