package protocol

import (
	"bytes"
	"fmt"

	"github.com/ugorji/go/codec"
)

// DecodeError is returned for any payload that cannot be applied: wrong
// protocol tag, truncated or garbage bytes. The dispatch layer treats it as
// discard-and-log; it must never unwind across component boundaries.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// frame is the outer wire structure: version tag followed by the payload.
type frame struct {
	V uint32 `json:"v"`
	P interface{} `json:"p"`
}

// rawFrame mirrors frame on the decode side, leaving the payload as raw
// bytes until the version tag has been checked.
type rawFrame struct {
	V uint32    `json:"v"`
	P codec.Raw `json:"p"`
}

func newHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	jh.Raw = true
	return jh
}

// Marshal encodes a payload with the protocol version tag.
func Marshal(payload interface{}) ([]byte, error) {
	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, newHandle())

	if err := enc.Encode(frame{V: Version, P: payload}); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal checks the version tag and decodes the payload into out. All
// failures are reported as *DecodeError.
func Unmarshal(data []byte, out interface{}) error {
	var f rawFrame

	dec := codec.NewDecoderBytes(data, newHandle())
	if err := dec.Decode(&f); err != nil {
		return &DecodeError{Reason: "malformed payload", Err: err}
	}

	if f.V != Version {
		return &DecodeError{Reason: fmt.Sprintf("protocol version mismatch: got %d, want %d", f.V, Version)}
	}

	if err := codec.NewDecoderBytes(f.P, newHandle()).Decode(out); err != nil {
		return &DecodeError{Reason: "malformed payload body", Err: err}
	}

	return nil
}
