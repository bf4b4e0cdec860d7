package net

import (
	"bytes"

	"github.com/ugorji/go/codec"
)

// envelope is the outer datagram structure: the command name and the opaque
// payload produced by the protocol package.
type envelope struct {
	C string `json:"c"`
	D []byte `json:"d"`
}

func envelopeHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	return jh
}

func encodeEnvelope(command string, payload []byte) ([]byte, error) {
	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, envelopeHandle())

	if err := enc.Encode(envelope{C: command, D: payload}); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

func decodeEnvelope(data []byte) (command string, payload []byte, err error) {
	var e envelope

	dec := codec.NewDecoderBytes(data, envelopeHandle())
	if err := dec.Decode(&e); err != nil {
		return "", nil, err
	}

	return e.C, e.D, nil
}
