// Command pktstackd runs a userspace packet-processing pipeline against a
// network device (or, when no -iface is given, an in-memory mock):
// decoding, connection tracking, filtered capture, per-batch decode
// counters, and a flow summary at shutdown, all behind a Prometheus
// metrics endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"net"
	"os"
	"time"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"

	"github.com/netkit/pktstack/capture"
	"github.com/netkit/pktstack/conntrack"
	"github.com/netkit/pktstack/device"
	"github.com/netkit/pktstack/engine"
	"github.com/netkit/pktstack/filtervm"
	"github.com/netkit/pktstack/pktpool"
	"github.com/netkit/pktstack/wire"
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var errBadIPv4 = errors.New("pktstackd: not a dotted-quad IPv4 address")

var (
	iface       = flag.String("iface", "", "Network interface to capture from. Empty runs against an in-memory mock device.")
	promPort    = flag.String("prom", ":9090", "Prometheus metrics export address and port.")
	workers     = flag.Int("workers", 4, "Number of parallel pipeline workers.")
	outputFile  = flag.String("output", "capture.pcap", "File to write captured packets to, in classic PCAP format.")
	compressOut = flag.Bool("compress", false, "Pipe the PCAP output through an external zstd process; name the -output file accordingly (e.g. capture.pcap.zst).")
	portFilter  = flag.Int("filter-port", 0, "If non-zero, only capture TCP segments to this destination port.")
	ringSize    = flag.Int("ring-size", 4096, "Capacity of the capture ring buffer, in packets.")
	batchSize   = flag.Int("batch-size", 32, "Number of raw frames to accumulate before batch-decoding them.")
	verbose     = flag.Bool("verbose", false, "Print a summary line for every captured packet at shutdown.")
	topFlows    = flag.Int("top-flows", 10, "Number of highest-volume flows to report at shutdown.")

	filterProto   = flag.Int("filter-proto", 0, "If non-zero, only capture this IP protocol number.")
	filterSrcIP   = flag.String("filter-src-ip", "", "If set, only capture packets from this source IPv4 address.")
	filterDstIP   = flag.String("filter-dst-ip", "", "If set, only capture packets to this destination IPv4 address.")
	filterSrcPort = flag.Int("filter-src-port", 0, "If non-zero, only capture packets from this source port.")
	filterDstPort = flag.Int("filter-dst-port", 0, "If non-zero, only capture packets to this destination port.")

	ctx, cancel = context.WithCancel(context.Background())
)

func openDevice() device.Device {
	if *iface == "" {
		log.Println("no -iface given, running against an in-memory mock device")
		return device.NewMockDevice("mock0", pktpool.DefaultMTU)
	}
	d, err := device.OpenLink(*iface)
	rtx.Must(err, "could not open interface %q", *iface)
	return d
}

func buildPipeline(table *conntrack.Table, ring *capture.Ring, analyzer *capture.Analyzer) *engine.Pipeline {
	return engine.NewPipeline(
		func(c context.Context, buf *pktpool.Buffer) (*pktpool.Buffer, error) {
			eth, err := wire.ParseEthernet(buf.Bytes)
			if err != nil {
				return buf, err
			}
			if eth.EtherType != wire.EtherTypeIPv4 {
				return buf, nil
			}
			ip, err := wire.ParseIPv4(eth.Payload)
			if err != nil {
				return buf, err
			}
			if ip.Protocol == wire.ProtocolTCP {
				seg, err := wire.ParseTCP(ip.Payload)
				if err == nil {
					tuple := conntrack.FourTuple{
						SrcIP: ip.Source, DstIP: ip.Destination,
						SrcPort: seg.SourcePort, DstPort: seg.DestinationPort,
					}
					table.Observe(tuple, seg)
				}
			}
			return buf, nil
		},
		func(c context.Context, buf *pktpool.Buffer) (*pktpool.Buffer, error) {
			if _, err := ring.Offer(buf.Bytes); err != nil {
				return buf, err
			}
			if err := analyzer.Observe(buf.Bytes); err != nil {
				return buf, err
			}
			return buf, nil
		},
	)
}

func main() {
	flag.Parse()
	flagx.ArgsFromEnv(flag.CommandLine)

	promSrv := prometheusx.MustStartPrometheus(*promPort)
	defer promSrv.Shutdown(ctx)

	var programs []*filtervm.Program
	if *portFilter != 0 {
		programs = append(programs, filtervm.TCPPortFilter(uint16(*portFilter)))
	}

	table := conntrack.NewTable()
	ring := capture.NewRing(*ringSize, buildFilter(), programs...)
	analyzer := capture.NewAnalyzer()

	pipeline := buildPipeline(table, ring, analyzer)
	eng := engine.NewEngine(*workers, pipeline)
	eng.Start()

	dev := openDevice()
	pool := pktpool.NewPool(dev.MTU())

	var out io.WriteCloser
	if *compressOut {
		w, err := capture.NewCompressedWriter(*outputFile)
		rtx.Must(err, "could not create compressed output file %q", *outputFile)
		out = w
	} else {
		f, err := os.Create(*outputFile)
		rtx.Must(err, "could not create output file %q", *outputFile)
		out = f
	}
	defer out.Close()
	pcapWriter := capture.NewWriterPCAP(out)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-eng.Output():
				if !ok {
					return
				}
				if r.Err != nil {
					log.Println("pipeline error:", r.Err)
				}
				if r.Buffer != nil {
					r.Buffer.Release()
				}
			}
		}
	}()

	// Everything downstream (capture, analyzer, conntrack) only handles
	// IPv4, so drop other EtherTypes before they cost a pool buffer.
	prefilter := engine.NewFilterPipeline(func(f *wire.EthernetFrame) bool {
		return f.EtherType == wire.EtherTypeIPv4
	})

	log.Println("pktstackd running, reading from", dev.Name())
	for {
		frames, recvErr := recvBatch(dev, *batchSize)
		if len(frames) > 0 {
			result := engine.DecodeBatch(frames, func(ef *wire.EthernetFrame) {
				if !prefilter.Process(ef) {
					return
				}
				data := ef.Serialize()
				if err := pcapWriter.WriteRecord(capture.Record{Timestamp: time.Now(), Data: data}); err != nil {
					log.Println("pcap write error:", err)
				}
				buf := pool.Acquire()
				buf.Bytes = buf.Bytes[:0]
				buf.Bytes = append(buf.Bytes, data...)
				eng.Submit(buf)
			})
			log.Printf("batch: received=%d processed=%d dropped=%d bytes_received=%d processing_time=%s",
				result.Received, result.Processed, result.Dropped, result.BytesReceived, result.ProcessingTime)
		}
		if recvErr != nil {
			log.Println("device closed:", recvErr)
			break
		}
	}

	cancel()
	eng.Stop()

	if *verbose {
		for _, rec := range ring.Snapshot() {
			log.Println(capture.Format(rec))
		}
	}
	for _, fs := range analyzer.TopFlows(*topFlows) {
		log.Printf("flow %s:%d -> %s:%d proto=%d packets=%d bytes=%d",
			fs.SrcIP, fs.SrcPort, fs.DstIP, fs.DstPort, fs.Protocol, fs.Packets, fs.Bytes)
	}
	log.Printf("total bytes observed: %d", analyzer.TotalBytes())
	log.Printf("final connection table size: %d", table.Len())
}

// recvBatch accumulates up to n raw frames from dev, blocking on each Recv.
// It returns early, with whatever frames it has collected so far, the
// moment Recv reports an error.
func recvBatch(dev device.Device, n int) ([][]byte, error) {
	frames := make([][]byte, 0, n)
	for len(frames) < n {
		packet, err := dev.Recv()
		if err != nil {
			return frames, err
		}
		frames = append(frames, packet)
	}
	return frames, nil
}

// buildFilter assembles the structured capture filter from the
// -filter-proto/-filter-src-ip/-filter-dst-ip/-filter-src-port/-filter-dst-port
// flags. It returns nil, imposing no constraint, if none were set.
func buildFilter() *capture.Filter {
	var f capture.Filter
	var hasFilter bool
	if *filterProto != 0 {
		p := uint8(*filterProto)
		f.Protocol = &p
		hasFilter = true
	}
	if *filterSrcIP != "" {
		ip := net.ParseIP(*filterSrcIP).To4()
		rtx.Must(ipv4Check(ip), "invalid -filter-src-ip %q", *filterSrcIP)
		var addr [4]byte
		copy(addr[:], ip)
		f.SrcIP = &addr
		hasFilter = true
	}
	if *filterDstIP != "" {
		ip := net.ParseIP(*filterDstIP).To4()
		rtx.Must(ipv4Check(ip), "invalid -filter-dst-ip %q", *filterDstIP)
		var addr [4]byte
		copy(addr[:], ip)
		f.DstIP = &addr
		hasFilter = true
	}
	if *filterSrcPort != 0 {
		p := uint16(*filterSrcPort)
		f.SrcPort = &p
		hasFilter = true
	}
	if *filterDstPort != 0 {
		p := uint16(*filterDstPort)
		f.DstPort = &p
		hasFilter = true
	}
	if !hasFilter {
		return nil
	}
	return &f
}

func ipv4Check(ip net.IP) error {
	if ip == nil {
		return errBadIPv4
	}
	return nil
}
