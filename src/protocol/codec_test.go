package protocol

import (
	"errors"
	"testing"
)

func TestMarshalUnmarshal(t *testing.T) {
	in := StatePacket{
		GUID: 0xdeadbeef,
		Name: "geralt",
		Pose: Pose{
			Position: Vec4{X: 1, Y: 2, Z: 3, W: 1},
			Angles:   Vec3{Y: 90},
			Velocity: Vec4{X: -1},
			Speed:    4.5,
		},
	}

	raw, err := Marshal(in)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	var out StatePacket
	if err := Unmarshal(raw, &out); err != nil {
		t.Fatalf("err: %v", err)
	}

	if out.GUID != in.GUID || out.Name != in.Name || out.Pose != in.Pose {
		t.Fatalf("round-trip mismatch: %+v != %+v", out, in)
	}
}

func TestUnmarshalVersionMismatch(t *testing.T) {
	raw, err := Marshal(AuthRequest{Nonce: "abc"})
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	// Forge a frame with a bad version tag by re-encoding by hand.
	forged := []byte(`{"p":{"Nonce":"abc"},"v":9999}`)

	var out AuthRequest
	err = Unmarshal(forged, &out)
	if err == nil {
		t.Fatalf("version mismatch should not decode")
	}

	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected DecodeError, got %T", err)
	}

	// The original payload must still decode.
	if err := Unmarshal(raw, &out); err != nil {
		t.Fatalf("err: %v", err)
	}
	if out.Nonce != "abc" {
		t.Fatalf("bad nonce: %s", out.Nonce)
	}
}

func TestUnmarshalGarbage(t *testing.T) {
	var out StatePacket

	for _, raw := range [][]byte{nil, {}, []byte("not json"), []byte(`{"v":3`)} {
		err := Unmarshal(raw, &out)
		if err == nil {
			t.Fatalf("garbage %q should not decode", raw)
		}

		var decErr *DecodeError
		if !errors.As(err, &decErr) {
			t.Fatalf("expected DecodeError for %q, got %T", raw, err)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdef", 4); got != "abcd" {
		t.Fatalf("bad truncation: %s", got)
	}
	if got := Truncate("abc", 4); got != "abc" {
		t.Fatalf("short strings should pass through: %s", got)
	}
}
