// Package session tracks the peers of a Drift relay and their
// authentication state.
//
// A peer progresses through a small state machine: its session is created on
// the first state packet from an unknown address, a random challenge nonce
// is issued, and the session is promoted to authenticated once the peer
// returns a valid signature over the nonce with a key whose derived identity
// matches its claimed GUID. Promotion is one-way; the only way out is the
// inactivity sweep.
package session

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/driftnetworks/drift/src/protocol"
)

// Session is the registry's record of one peer, keyed by network address.
type Session struct {
	Addr string
	GUID uint64
	Name string

	// Nonce is the outstanding authentication challenge. It is set once
	// on first contact and reused until authentication succeeds, so
	// duplicate or late state packets cannot replace a challenge that is
	// already being signed.
	Nonce string

	// PublicKey is set only after a valid signature over Nonce. A session
	// is authenticated iff this field is populated.
	PublicKey *ecdsa.PublicKey

	LastPacket time.Time

	// StateID increments on every state packet, giving receivers a
	// monotonic sequence for the peer's pose stream.
	StateID uint64

	Pose protocol.Pose

	// authFailureLogged caps failure logging at one line per session, so
	// a persistently misbehaving peer cannot flood the log.
	authFailureLogged bool
}

// Authenticated reports whether the peer proved ownership of the key its
// GUID is derived from.
func (s *Session) Authenticated() bool {
	return s.PublicKey != nil
}

// generateNonce returns a fresh random challenge.
func generateNonce() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Errorf("failed to read random bytes: %v", err))
	}
	return fmt.Sprintf("%x", buf)
}
