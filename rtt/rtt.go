// Package rtt implements the RFC 6298 smoothed round-trip-time estimator
// shared by the congestion-control state machines in package cc.
package rtt

import (
	"time"

	"github.com/netkit/pktstack/internal/metrics"
)

const maxHistory = 100

// Estimator tracks smoothed RTT, RTT variance, and min/max observed
// samples per RFC 6298.
type Estimator struct {
	srttSet bool
	srtt    time.Duration
	rttvar  time.Duration

	min time.Duration
	max time.Duration

	history []time.Duration
}

// NewEstimator returns an estimator with no samples yet.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// AddSample folds a new RTT sample R into the estimator per RFC 6298:
//
//	if SRTT unset: SRTT <- R, RTTVAR <- R/2
//	else: RTTVAR <- (1-beta)*RTTVAR + beta*|SRTT-R|
//	      SRTT   <- (1-alpha)*SRTT + alpha*R
//
// with alpha = 1/8, beta = 1/4.
func (e *Estimator) AddSample(r time.Duration) {
	if !e.srttSet {
		e.srtt = r
		e.rttvar = r / 2
		e.srttSet = true
	} else {
		diff := e.srtt - r
		if diff < 0 {
			diff = -diff
		}
		e.rttvar = e.rttvar - e.rttvar/4 + diff/4
		e.srtt = e.srtt - e.srtt/8 + r/8
	}

	if e.min == 0 || r < e.min {
		e.min = r
	}
	if r > e.max {
		e.max = r
	}

	e.history = append(e.history, r)
	if len(e.history) > maxHistory {
		e.history = e.history[len(e.history)-maxHistory:]
	}
}

// SRTT returns the current smoothed RTT, and whether a sample has ever
// been recorded.
func (e *Estimator) SRTT() (time.Duration, bool) {
	return e.srtt, e.srttSet
}

// RTTVar returns the current smoothed RTT variance.
func (e *Estimator) RTTVar() time.Duration {
	return e.rttvar
}

// Min returns the minimum observed sample, or 0 if none.
func (e *Estimator) Min() time.Duration {
	return e.min
}

// Max returns the maximum observed sample, or 0 if none.
func (e *Estimator) Max() time.Duration {
	return e.max
}

// History returns the bounded (<=100) sample history, oldest first. The
// returned slice is owned by the caller.
func (e *Estimator) History() []time.Duration {
	out := make([]time.Duration, len(e.history))
	copy(out, e.history)
	return out
}

// RTO computes the retransmission timeout: SRTT + 4*RTTVAR, clamped to
// [1s, 60s].
func (e *Estimator) RTO() time.Duration {
	rto := e.srtt + 4*e.rttvar
	if rto < time.Second {
		rto = time.Second
	}
	if rto > 60*time.Second {
		rto = 60 * time.Second
	}
	metrics.RTOHistogram.Observe(rto.Seconds())
	return rto
}
