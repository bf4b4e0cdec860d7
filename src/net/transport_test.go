package net

import (
	"bytes"
	"testing"
	"time"

	"github.com/driftnetworks/drift/src/common"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	raw, err := encodeEnvelope("state", []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	command, payload, err := decodeEnvelope(raw)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if command != "state" {
		t.Fatalf("bad command: %s", command)
	}

	if !bytes.Equal(payload, []byte{1, 2, 3}) {
		t.Fatalf("bad payload: %v", payload)
	}
}

func TestEnvelopeGarbage(t *testing.T) {
	if _, _, err := decodeEnvelope([]byte("not an envelope")); err == nil {
		t.Fatalf("garbage should not decode")
	}
}

func TestInmemTransportSend(t *testing.T) {
	addr1, trans1 := NewInmemTransport("")
	defer trans1.Close()

	addr2, trans2 := NewInmemTransport("")
	defer trans2.Close()

	trans1.Connect(addr2, trans2)
	trans2.Connect(addr1, trans1)

	if err := trans1.Send(addr2, "heartbeat", []byte("payload")); err != nil {
		t.Fatalf("err: %v", err)
	}

	select {
	case pkt := <-trans2.Consumer():
		if pkt.From != addr1 {
			t.Fatalf("bad from: %s", pkt.From)
		}
		if pkt.Command != "heartbeat" {
			t.Fatalf("bad command: %s", pkt.Command)
		}
		if string(pkt.Payload) != "payload" {
			t.Fatalf("bad payload: %s", pkt.Payload)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timed out waiting for packet")
	}
}

func TestInmemTransportUnknownPeer(t *testing.T) {
	_, trans := NewInmemTransport("")
	defer trans.Close()

	if err := trans.Send("nowhere", "state", nil); err == nil {
		t.Fatalf("send to unknown peer should fail")
	}
}

func TestUDPTransportSend(t *testing.T) {
	logger := common.NewTestLogger(t).WithField("prefix", "test")

	trans1, err := NewUDPTransport("127.0.0.1:0", "", logger)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer trans1.Close()
	trans1.Listen()

	trans2, err := NewUDPTransport("127.0.0.1:0", "", logger)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer trans2.Close()
	trans2.Listen()

	if err := trans1.Send(trans2.LocalAddr(), "fact", []byte("hello")); err != nil {
		t.Fatalf("err: %v", err)
	}

	select {
	case pkt := <-trans2.Consumer():
		if pkt.Command != "fact" {
			t.Fatalf("bad command: %s", pkt.Command)
		}
		if string(pkt.Payload) != "hello" {
			t.Fatalf("bad payload: %s", pkt.Payload)
		}
		if pkt.From != trans1.LocalAddr() {
			t.Fatalf("bad from: %s != %s", pkt.From, trans1.LocalAddr())
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for datagram")
	}
}

func TestUDPTransportShutdown(t *testing.T) {
	trans, err := NewUDPTransport("127.0.0.1:0", "", nil)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if err := trans.Close(); err != nil {
		t.Fatalf("err: %v", err)
	}

	if err := trans.Send("127.0.0.1:1", "state", nil); err != ErrTransportShutdown {
		t.Fatalf("expected ErrTransportShutdown, got %v", err)
	}

	// Closing twice must be safe.
	if err := trans.Close(); err != nil {
		t.Fatalf("err: %v", err)
	}
}
