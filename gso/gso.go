// Package gso implements transmit-side TCP segmentation (GSO/TSO):
// chopping an oversized payload into MSS-sized children that preserve TCP
// semantics. TSO is a thin enable/disable wrapper around the same
// segmenter.
package gso

import (
	"github.com/netkit/pktstack/internal/metrics"
	"github.com/netkit/pktstack/wire"
)

// Segment splits seg into a contiguous sequence of children, each with a
// payload of at most mss bytes. Every child inherits ports, ack number,
// data offset, window, urgent pointer, and options from seg. Sequence
// numbers advance by the payload size of the preceding child. Every child
// except the last has FIN cleared; SYN and RST are inherited unchanged on
// the first child only.
//
// If seg's payload already fits within mss, Segment returns a single
// child equal to seg.
func Segment(seg *wire.TCPSegment, mss int) []*wire.TCPSegment {
	if len(seg.Payload) <= mss {
		return []*wire.TCPSegment{seg}
	}

	var children []*wire.TCPSegment
	seq := seg.SequenceNumber
	for offset := 0; offset < len(seg.Payload); offset += mss {
		end := offset + mss
		if end > len(seg.Payload) {
			end = len(seg.Payload)
		}
		isFirst := offset == 0
		isLast := end == len(seg.Payload)

		flags := seg.Flags
		flags.SYN = isFirst && seg.Flags.SYN
		flags.RST = isFirst && seg.Flags.RST
		if !isLast {
			flags.FIN = false
		}

		child := &wire.TCPSegment{
			SourcePort:      seg.SourcePort,
			DestinationPort: seg.DestinationPort,
			SequenceNumber:  seq,
			AckNumber:       seg.AckNumber,
			DataOffset:      seg.DataOffset,
			Flags:           flags,
			Window:          seg.Window,
			UrgentPointer:   seg.UrgentPointer,
			Options:         seg.Options,
			Payload:         append([]byte(nil), seg.Payload[offset:end]...),
		}
		children = append(children, child)
		seq += uint32(end - offset)
	}
	metrics.GSOSegmentsTotal.Add(float64(len(children)))
	return children
}

// TSO is a thin enable/disable wrapper around Segment.
type TSO struct {
	enabled bool
	MSS     int
}

// NewTSO creates a disabled TSO wrapper with the given MSS.
func NewTSO(mss int) *TSO {
	return &TSO{MSS: mss}
}

// SetEnabled toggles TSO on or off.
func (t *TSO) SetEnabled(enabled bool) {
	t.enabled = enabled
}

// Enabled reports whether TSO is currently active.
func (t *TSO) Enabled() bool {
	return t.enabled
}

// Segment splits seg if TSO is enabled; otherwise it returns seg unchanged
// as the sole element.
func (t *TSO) Segment(seg *wire.TCPSegment) []*wire.TCPSegment {
	if !t.enabled {
		return []*wire.TCPSegment{seg}
	}
	return Segment(seg, t.MSS)
}
