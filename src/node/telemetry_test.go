package node

import (
	"testing"
	"time"
)

func TestTelemetryCounters(t *testing.T) {
	tel := NewTelemetry()
	base := time.Now()

	tel.IncrementSent()
	tel.IncrementSent()
	for i := 0; i < 10; i++ {
		tel.IncrementReceived(base.Add(time.Duration(i) * 50 * time.Millisecond))
	}
	// The window rolls once a full second has elapsed.
	tel.IncrementReceived(base.Add(1100 * time.Millisecond))

	snap := tel.Snapshot()
	if snap.Sent != 2 {
		t.Fatalf("bad sent count: %d", snap.Sent)
	}
	if snap.Received != 11 {
		t.Fatalf("bad received count: %d", snap.Received)
	}
	if snap.PPS != 10 {
		t.Fatalf("expected pps window of 10, got %d", snap.PPS)
	}
}

func TestTelemetryRTT(t *testing.T) {
	tel := NewTelemetry()

	tel.RecordRTT(42 * time.Millisecond)
	if got := tel.Snapshot().RTT; got != 42*time.Millisecond {
		t.Fatalf("bad rtt: %v", got)
	}

	// Negative estimates from clock skew are ignored.
	tel.RecordRTT(-time.Second)
	if got := tel.Snapshot().RTT; got != 42*time.Millisecond {
		t.Fatalf("negative rtt should be discarded, got %v", got)
	}

	if tel.Snapshot().HandshakeComplete {
		t.Fatalf("handshake flag should start false")
	}
	tel.SetHandshakeComplete()
	if !tel.Snapshot().HandshakeComplete {
		t.Fatalf("handshake flag should be set")
	}
}
