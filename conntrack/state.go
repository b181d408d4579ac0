// Package conntrack tracks TCP connection state from observed segments:
// a four-tuple keyed table of connection records, each carrying a TCP
// state that advances as SYN/ACK/FIN/RST flags are observed.
package conntrack

import "fmt"

// State is the enumeration of TCP connection states this tracker
// distinguishes. It mirrors the classic TCP state diagram, trimmed to the
// states a passive observer can actually distinguish from flags alone.
type State int32

// Connection states.
const (
	StateNone State = iota
	StateListen
	StateSYNSent
	StateSYNReceived
	StateEstablished
	StateFinWait1
	StateFinWait2
	StateClosing
	StateTimeWait
	StateCloseWait
	StateLastAck
	StateClosed
)

var stateName = map[State]string{
	StateNone:        "NONE",
	StateListen:      "LISTEN",
	StateSYNSent:     "SYN_SENT",
	StateSYNReceived: "SYN_RECEIVED",
	StateEstablished: "ESTABLISHED",
	StateFinWait1:    "FIN_WAIT1",
	StateFinWait2:    "FIN_WAIT2",
	StateClosing:     "CLOSING",
	StateTimeWait:    "TIME_WAIT",
	StateCloseWait:   "CLOSE_WAIT",
	StateLastAck:     "LAST_ACK",
	StateClosed:      "CLOSED",
}

func (s State) String() string {
	name, ok := stateName[s]
	if !ok {
		return fmt.Sprintf("UNKNOWN_STATE_%d", s)
	}
	return name
}
