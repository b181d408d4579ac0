package conntrack

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/netkit/pktstack/internal/metrics"
	"github.com/netkit/pktstack/wire"
)

// Errors returned by the table's explicit operations. Observe never
// returns these: folding an observed segment into the table always
// succeeds, creating the record if needed.
var (
	ErrConnectionNotFound     = errors.New("conntrack: connection not found")
	ErrInvalidStateTransition = errors.New("conntrack: invalid state transition")
)

// FourTuple identifies a TCP connection by its source/destination
// address and port, without a protocol field: conntrack only ever tracks
// TCP.
type FourTuple struct {
	SrcIP   [4]byte
	DstIP   [4]byte
	SrcPort uint16
	DstPort uint16
}

// ConnectionRecord is one tracked connection.
type ConnectionRecord struct {
	Tuple          FourTuple
	State          State
	InitialSendSeq uint32

	// SendSeq and ReceiveWindow are taken directly off the most recent
	// segment observed for Tuple: the segment's own sequence number, and
	// the window it advertises to the peer. ReceiveSeq is the peer
	// sequence number this segment acknowledges. SendWindow is the window
	// last advertised by the peer on the reverse tuple, if observed; it
	// stays zero until traffic in the other direction has been seen.
	SendSeq       uint32
	ReceiveSeq    uint32
	SendWindow    uint16
	ReceiveWindow uint16

	LastSeen time.Time
}

// Reverse returns the tuple for the opposite direction of the same
// connection.
func (t FourTuple) Reverse() FourTuple {
	return FourTuple{SrcIP: t.DstIP, DstIP: t.SrcIP, SrcPort: t.DstPort, DstPort: t.SrcPort}
}

// randomInitialSequence draws a pseudorandom 32-bit initial sequence
// number for a newly observed connection.
var randomInitialSequence = func() uint32 {
	return rand.Uint32()
}

// Table is a mutex-protected map of active connections keyed by
// four-tuple.
type Table struct {
	mu    sync.Mutex
	conns map[FourTuple]*ConnectionRecord
	now   func() time.Time
}

// NewTable creates an empty connection table.
func NewTable() *Table {
	return &Table{conns: make(map[FourTuple]*ConnectionRecord), now: time.Now}
}

// Observe folds one segment into the connection state machine, creating
// a new record on first sight of a tuple, and returns a copy of the
// record after the update. The segment's own sequence number and
// advertised window become the record's send-side sequence and receive
// window; its ack number becomes the record's receive sequence. If the
// reverse tuple has already been observed, its most recent receive
// window becomes this record's send window.
func (t *Table) Observe(tuple FourTuple, seg *wire.TCPSegment) ConnectionRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.conns[tuple]
	if !ok {
		rec = &ConnectionRecord{
			Tuple:          tuple,
			State:          StateNone,
			InitialSendSeq: randomInitialSequence(),
		}
		t.conns[tuple] = rec
		metrics.ConnTableSizeGauge.Set(float64(len(t.conns)))
	}
	rec.State = transition(rec.State, seg.Flags)
	rec.SendSeq = seg.SequenceNumber
	rec.ReceiveSeq = seg.AckNumber
	rec.ReceiveWindow = seg.Window
	if peer, ok := t.conns[tuple.Reverse()]; ok {
		rec.SendWindow = peer.ReceiveWindow
	}
	rec.LastSeen = t.now()
	return *rec
}

// Insert creates a record for tuple in the Listen state with a
// pseudorandom initial send sequence, or returns a copy of the existing
// record if one is already tracked.
func (t *Table) Insert(tuple FourTuple) ConnectionRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.conns[tuple]
	if !ok {
		rec = &ConnectionRecord{
			Tuple:          tuple,
			State:          StateListen,
			InitialSendSeq: randomInitialSequence(),
			LastSeen:       t.now(),
		}
		t.conns[tuple] = rec
		metrics.ConnTableSizeGauge.Set(float64(len(t.conns)))
	}
	return *rec
}

// Lookup returns a copy of the record for tuple, if present.
func (t *Table) Lookup(tuple FourTuple) (ConnectionRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.conns[tuple]
	if !ok {
		return ConnectionRecord{}, false
	}
	return *rec, true
}

// Remove deletes tuple from the table. It returns ErrConnectionNotFound
// if the tuple was not being tracked.
func (t *Table) Remove(tuple FourTuple) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.conns[tuple]; !ok {
		return ErrConnectionNotFound
	}
	delete(t.conns, tuple)
	metrics.ConnTableSizeGauge.Set(float64(len(t.conns)))
	return nil
}

// SetState forces tuple's record into state, for callers that learn
// about a transition out of band (an application closing its listener,
// an operator expiring a connection). The move must still be one the TCP
// state diagram allows; anything else returns ErrInvalidStateTransition
// and leaves the record untouched.
func (t *Table) SetState(tuple FourTuple, state State) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.conns[tuple]
	if !ok {
		return ErrConnectionNotFound
	}
	if !validTransition(rec.State, state) {
		return ErrInvalidStateTransition
	}
	rec.State = state
	rec.LastSeen = t.now()
	return nil
}

// allowedTransitions is the classic TCP state diagram, as reachable-from
// sets. Closed is additionally reachable from anywhere (RST, or an
// operator tearing the record down).
var allowedTransitions = map[State][]State{
	StateNone:        {StateListen, StateSYNSent, StateSYNReceived},
	StateListen:      {StateSYNReceived, StateSYNSent},
	StateSYNSent:     {StateSYNReceived, StateEstablished},
	StateSYNReceived: {StateEstablished, StateFinWait1},
	StateEstablished: {StateFinWait1, StateCloseWait},
	StateFinWait1:    {StateFinWait2, StateClosing, StateTimeWait},
	StateFinWait2:    {StateTimeWait},
	StateClosing:     {StateTimeWait},
	StateCloseWait:   {StateLastAck},
	StateClosed:      {StateListen, StateSYNSent},
}

// validTransition reports whether the state diagram permits moving from
// one state to the other. A state may always "move" to itself.
func validTransition(from, to State) bool {
	if to == StateClosed || to == from {
		return true
	}
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Len reports the number of tracked connections.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// transition advances current by the flags observed on one segment. RST
// always forces StateClosed regardless of the current state.
func transition(current State, flags wire.TCPFlags) State {
	if flags.RST {
		return StateClosed
	}
	switch current {
	case StateNone:
		switch {
		case flags.SYN && flags.ACK:
			return StateSYNReceived
		case flags.SYN:
			return StateSYNSent
		}
		return StateNone
	case StateListen:
		if flags.SYN {
			return StateSYNReceived
		}
		return StateListen
	case StateSYNSent:
		switch {
		case flags.SYN && flags.ACK:
			return StateSYNReceived
		case flags.ACK:
			return StateEstablished
		}
		return StateSYNSent
	case StateSYNReceived:
		if flags.ACK {
			return StateEstablished
		}
		return StateSYNReceived
	case StateEstablished:
		if flags.FIN {
			return StateFinWait1
		}
		return StateEstablished
	case StateFinWait1:
		switch {
		case flags.FIN && flags.ACK:
			return StateTimeWait
		case flags.ACK:
			return StateFinWait2
		case flags.FIN:
			return StateClosing
		}
		return StateFinWait1
	case StateFinWait2:
		if flags.FIN {
			return StateTimeWait
		}
		return StateFinWait2
	case StateClosing:
		if flags.ACK {
			return StateTimeWait
		}
		return StateClosing
	case StateCloseWait:
		if flags.FIN {
			return StateLastAck
		}
		return StateCloseWait
	case StateLastAck:
		if flags.ACK {
			return StateClosed
		}
		return StateLastAck
	case StateTimeWait, StateClosed:
		return current
	}
	return current
}
