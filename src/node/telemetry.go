package node

import (
	"sync"
	"time"
)

// Telemetry aggregates the counters exposed through the node's stats
// surface: packet totals, a one-second packets-per-second window, the latest
// round-trip estimate, and the handshake-complete flag.
type Telemetry struct {
	sync.Mutex

	sent     uint64
	received uint64

	windowStart time.Time
	windowCount int
	pps         int

	rtt time.Duration

	handshakeComplete bool
}

// NewTelemetry ...
func NewTelemetry() *Telemetry {
	return &Telemetry{}
}

// IncrementSent counts one outbound packet.
func (t *Telemetry) IncrementSent() {
	t.Lock()
	defer t.Unlock()

	t.sent++
}

// IncrementReceived counts one inbound packet and rolls the pps window when
// a second has elapsed.
func (t *Telemetry) IncrementReceived(now time.Time) {
	t.Lock()
	defer t.Unlock()

	t.received++

	if t.windowStart.IsZero() || now.Sub(t.windowStart) >= time.Second {
		t.pps = t.windowCount
		t.windowCount = 0
		t.windowStart = now
	}
	t.windowCount++
}

// RecordRTT stores the latest round-trip estimate.
func (t *Telemetry) RecordRTT(rtt time.Duration) {
	t.Lock()
	defer t.Unlock()

	if rtt < 0 {
		return
	}
	t.rtt = rtt
}

// SetHandshakeComplete flags that at least one peer acknowledged our
// handshake.
func (t *Telemetry) SetHandshakeComplete() {
	t.Lock()
	defer t.Unlock()

	t.handshakeComplete = true
}

// Snapshot returns a consistent copy of all counters.
func (t *Telemetry) Snapshot() TelemetrySnapshot {
	t.Lock()
	defer t.Unlock()

	return TelemetrySnapshot{
		Sent:              t.sent,
		Received:          t.received,
		PPS:               t.pps,
		RTT:               t.rtt,
		HandshakeComplete: t.handshakeComplete,
	}
}

// TelemetrySnapshot is a point-in-time copy of the telemetry counters.
type TelemetrySnapshot struct {
	Sent              uint64
	Received          uint64
	PPS               int
	RTT               time.Duration
	HandshakeComplete bool
}
