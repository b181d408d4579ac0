package engine

import (
	"context"
	"log"
	"sync"

	"github.com/netkit/pktstack/internal/metrics"
	"github.com/netkit/pktstack/pktpool"
)

// Engine is a fixed pool of workers, each with its own input queue, that
// run packets through a Pipeline. Submit routes a packet to its worker by
// flow hash; a worker whose queue is full drops the packet rather than
// blocking the submitter.
type Engine struct {
	pipeline    *Pipeline
	distributor *Distributor
	queues      []chan *pktpool.Buffer
	out         chan Result
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

// queueDepth is the per-worker input queue capacity.
const queueDepth = 256

// NewEngine builds an Engine with the given number of workers, all
// sharing pipeline. Call Start before Submit.
func NewEngine(workers int, pipeline *Pipeline) *Engine {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		pipeline:    pipeline,
		distributor: NewDistributor(workers),
		queues:      make([]chan *pktpool.Buffer, workers),
		out:         make(chan Result, workers*queueDepth),
		ctx:         ctx,
		cancel:      cancel,
	}
	for i := range e.queues {
		e.queues[i] = make(chan *pktpool.Buffer, queueDepth)
	}
	return e
}

// Start launches one goroutine per worker queue.
func (e *Engine) Start() {
	for i, q := range e.queues {
		e.wg.Add(1)
		go e.runWorker(i, q)
	}
}

func (e *Engine) runWorker(id int, queue <-chan *pktpool.Buffer) {
	defer e.wg.Done()
	for buf := range queue {
		b, err := e.pipeline.Process(e.ctx, buf)
		select {
		case e.out <- Result{Buffer: b, Err: err}:
		default:
			// A dropped result still owns its buffer; return it to the
			// pool or it leaks for good.
			if b != nil {
				b.Release()
			}
			metrics.EngineDroppedTotal.Inc()
		}
	}
	log.Printf("engine: worker %d done", id)
}

// Submit routes buf to the worker responsible for its flow and enqueues
// it. If that worker's queue is full, the packet is dropped (its buffer
// released back to the pool) and EngineDroppedTotal is incremented;
// Submit never blocks.
func (e *Engine) Submit(buf *pktpool.Buffer) {
	idx := e.distributor.Route(buf.Bytes)
	select {
	case e.queues[idx] <- buf:
	default:
		buf.Release()
		metrics.EngineDroppedTotal.Inc()
	}
}

// SubmitBatch submits every buffer in bufs and records the batch size.
func (e *Engine) SubmitBatch(bufs []*pktpool.Buffer) {
	metrics.EngineBatchHistogram.Observe(float64(len(bufs)))
	for _, buf := range bufs {
		e.Submit(buf)
	}
}

// Output returns the channel of completed results. Consumers must drain
// it: once the out buffer fills, workers drop further results (releasing
// their buffers) rather than block.
func (e *Engine) Output() <-chan Result {
	return e.out
}

// Stop closes every worker's input queue, waits for all workers to
// drain, and closes the output channel.
func (e *Engine) Stop() {
	for _, q := range e.queues {
		close(q)
	}
	e.wg.Wait()
	e.cancel()
	close(e.out)
}
