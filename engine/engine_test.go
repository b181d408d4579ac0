package engine

import (
	"context"
	"testing"
	"time"

	"github.com/netkit/pktstack/pktpool"
	"github.com/netkit/pktstack/wire"
)

func TestPipelineProcessAppliesStagesInOrder(t *testing.T) {
	var order []string
	stageA := func(ctx context.Context, buf *pktpool.Buffer) (*pktpool.Buffer, error) {
		order = append(order, "a")
		return buf, nil
	}
	stageB := func(ctx context.Context, buf *pktpool.Buffer) (*pktpool.Buffer, error) {
		order = append(order, "b")
		return buf, nil
	}
	p := NewPipeline(stageA, stageB)
	pool := pktpool.NewPool(64)
	buf := pool.Acquire()
	if _, err := p.Process(context.Background(), buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("stages ran out of order: %v", order)
	}
}

func TestPipelineProcessShortCircuitsOnError(t *testing.T) {
	wantErr := errTest("boom")
	ran := false
	stageA := func(ctx context.Context, buf *pktpool.Buffer) (*pktpool.Buffer, error) {
		return buf, wantErr
	}
	stageB := func(ctx context.Context, buf *pktpool.Buffer) (*pktpool.Buffer, error) {
		ran = true
		return buf, nil
	}
	p := NewPipeline(stageA, stageB)
	pool := pktpool.NewPool(64)
	buf := pool.Acquire()
	if _, err := p.Process(context.Background(), buf); err != wantErr {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
	if ran {
		t.Errorf("stage after the failing one should not have run")
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }

func TestPipelineProcessBatchPreservesOrder(t *testing.T) {
	p := NewPipeline(func(ctx context.Context, buf *pktpool.Buffer) (*pktpool.Buffer, error) {
		return buf, nil
	})
	pool := pktpool.NewPool(64)
	bufs := make([]*pktpool.Buffer, 8)
	for i := range bufs {
		bufs[i] = pool.Acquire()
		bufs[i].Bytes[0] = byte(i)
	}
	results := p.ProcessBatch(context.Background(), bufs)
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("unexpected error at %d: %v", i, r.Err)
		}
		if r.Buffer.Bytes[0] != byte(i) {
			t.Errorf("result %d out of order: got tag %d", i, r.Buffer.Bytes[0])
		}
	}
}

func TestFilterPipelineShortCircuitsOnFirstFalse(t *testing.T) {
	ran := false
	p := NewFilterPipeline(
		func(f *wire.EthernetFrame) bool { return f.EtherType == wire.EtherTypeIPv4 },
		func(f *wire.EthernetFrame) bool { ran = true; return true },
	)
	arp := &wire.EthernetFrame{EtherType: wire.EtherTypeARP}
	if p.Process(arp) {
		t.Errorf("expected ARP frame to be rejected by the EtherType predicate")
	}
	if ran {
		t.Errorf("filter after the failing one should not have run")
	}
	ipv4 := &wire.EthernetFrame{EtherType: wire.EtherTypeIPv4}
	if !p.Process(ipv4) {
		t.Errorf("expected IPv4 frame to pass both predicates")
	}
}

func TestFilterPipelineProcessBatchPreservesOrder(t *testing.T) {
	p := NewFilterPipeline(func(f *wire.EthernetFrame) bool {
		return f.EtherType == wire.EtherTypeIPv4
	})
	frames := []*wire.EthernetFrame{
		{EtherType: wire.EtherTypeIPv4},
		{EtherType: wire.EtherTypeARP},
		{EtherType: wire.EtherTypeIPv4},
		{EtherType: wire.EtherTypeIPv6},
	}
	got := p.ProcessBatch(frames)
	want := []bool{true, false, true, false}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("verdict %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDistributorRoutesSameFlowToSameWorker(t *testing.T) {
	d := NewDistributor(8)
	payload := []byte("192.168.1.1:443->10.0.0.1:55000")
	first := d.Route(payload)
	for i := 0; i < 10; i++ {
		if got := d.Route(payload); got != first {
			t.Fatalf("routing is not stable across calls: got %d, want %d", got, first)
		}
	}
}

func TestDistributorSpreadsAcrossWorkers(t *testing.T) {
	d := NewDistributor(4)
	seen := map[int]bool{}
	for i := 0; i < 100; i++ {
		payload := []byte{byte(i), byte(i * 7), byte(i * 13)}
		seen[d.Route(payload)] = true
	}
	if len(seen) < 2 {
		t.Errorf("expected payloads to spread across more than one worker, saw %v", seen)
	}
}

func TestEngineSubmitReleasesDroppedBuffer(t *testing.T) {
	p := NewPipeline()
	e := NewEngine(1, p)
	// No Start: the single worker queue fills up and further submits drop.
	pool := pktpool.NewPool(64)
	for i := 0; i < queueDepth+1; i++ {
		e.Submit(pool.Acquire())
	}
	if got := pool.Allocated(); got != queueDepth {
		t.Errorf("allocated = %d after one drop, want %d (dropped buffer must be released)", got, queueDepth)
	}
}

func TestEngineSubmitAndDrain(t *testing.T) {
	p := NewPipeline(func(ctx context.Context, buf *pktpool.Buffer) (*pktpool.Buffer, error) {
		buf.Bytes[0] = 0xFF
		return buf, nil
	})
	e := NewEngine(4, p)
	e.Start()

	pool := pktpool.NewPool(64)
	const n = 20
	for i := 0; i < n; i++ {
		buf := pool.Acquire()
		buf.Bytes[1] = byte(i)
		e.Submit(buf)
	}

	received := 0
	timeout := time.After(2 * time.Second)
	for received < n {
		select {
		case r := <-e.Output():
			if r.Err != nil {
				t.Errorf("unexpected result error: %v", r.Err)
			}
			if r.Buffer.Bytes[0] != 0xFF {
				t.Errorf("pipeline stage did not run on submitted buffer")
			}
			received++
		case <-timeout:
			t.Fatalf("timed out waiting for results, got %d/%d", received, n)
		}
	}
	e.Stop()
}
