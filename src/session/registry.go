package session

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/driftnetworks/drift/src/crypto"
	"github.com/driftnetworks/drift/src/crypto/keys"
	"github.com/driftnetworks/drift/src/protocol"
)

// DefaultSessionTimeout is how long a peer may stay silent before the sweep
// evicts it.
const DefaultSessionTimeout = 20 * time.Second

// Registry owns the set of known peer sessions. It is safe for concurrent
// use by the packet dispatch goroutine and the tick driver; every operation
// takes an explicit now so eviction and retention are testable without real
// sleeps.
type Registry struct {
	sync.Mutex

	sessions map[string]*Session
	timeout  time.Duration
	logger   *logrus.Entry
}

// NewRegistry creates an empty registry. A zero timeout falls back to
// DefaultSessionTimeout.
func NewRegistry(timeout time.Duration, logger *logrus.Entry) *Registry {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}
	return &Registry{
		sessions: make(map[string]*Session),
		timeout:  timeout,
		logger:   logger,
	}
}

// HandleState records a pose update, creating the session on first contact.
// Updates are last-write-wins, so duplicated or reordered state packets are
// harmless. While the peer is unauthenticated the pending challenge is
// returned for (re-)transmission; the nonce itself is issued once and reused.
func (r *Registry) HandleState(source string, pkt *protocol.StatePacket, now time.Time) *protocol.AuthRequest {
	r.Lock()
	defer r.Unlock()

	s, ok := r.sessions[source]
	if !ok {
		s = &Session{Addr: source}
		r.sessions[source] = s
	}

	s.LastPacket = now
	s.GUID = pkt.GUID
	s.Name = protocol.Truncate(pkt.Name, protocol.MaxPlayerNameLength)
	s.Pose = pkt.Pose
	s.StateID++

	if s.Authenticated() {
		return nil
	}

	if s.Nonce == "" {
		r.logger.WithFields(logrus.Fields{
			"addr": source,
			"guid": s.GUID,
		}).Info("Authenticating player")
		s.Nonce = generateNonce()
	}

	return &protocol.AuthRequest{Nonce: s.Nonce}
}

// HandleAuthResponse verifies a challenge signature and promotes the session
// on success. All failures are local: the packet is dropped, the session
// stays unauthenticated, and at most one failure line is logged per session.
// Returns true if the session is authenticated when the call returns, which
// includes duplicate responses after success.
func (r *Registry) HandleAuthResponse(source string, pkt *protocol.AuthResponse, now time.Time) bool {
	pub := keys.ToPublicKey(pkt.PublicKey)
	if pub == nil {
		r.logger.WithField("addr", source).Debug("Discarding malformed public key")
		return false
	}

	r.Lock()
	defer r.Unlock()

	s, ok := r.sessions[source]
	if !ok {
		s = &Session{Addr: source, LastPacket: now}
		r.sessions[source] = s
	}

	if s.Authenticated() {
		return true
	}

	fail := func(reason string) {
		if !s.authFailureLogged {
			s.authFailureLogged = true
			r.logger.WithFields(logrus.Fields{
				"addr":   source,
				"reason": reason,
			}).Warn("Authentication failed")
		}
	}

	if s.Nonce == "" {
		fail("nonce not set")
		return false
	}

	if keys.PublicKeyGUID(pkt.PublicKey) != s.GUID {
		fail("key does not match GUID")
		return false
	}

	sigR, sigS, err := keys.DecodeSignature(pkt.Signature)
	if err != nil {
		fail("malformed signature")
		return false
	}

	if !keys.Verify(pub, crypto.SHA256([]byte(s.Nonce)), sigR, sigS) {
		fail("invalid signature")
		return false
	}

	s.PublicKey = pub
	s.LastPacket = now

	r.logger.WithFields(logrus.Fields{
		"addr": source,
		"guid": s.GUID,
	}).Info("Player authenticated")

	return true
}

// HandleHandshake records first contact from a peer that announces itself
// before sending state.
func (r *Registry) HandleHandshake(source string, pkt *protocol.HandshakePacket, now time.Time) {
	r.Lock()
	defer r.Unlock()

	s, ok := r.sessions[source]
	if !ok {
		s = &Session{Addr: source}
		r.sessions[source] = s
	}

	s.LastPacket = now
	if pkt.GUID != 0 {
		s.GUID = pkt.GUID
	}
	if pkt.Name != "" {
		s.Name = protocol.Truncate(pkt.Name, protocol.MaxPlayerNameLength)
	}
}

// Touch refreshes the liveness timestamp of an existing session. Packets
// from unknown addresses do not create sessions here; only state and
// handshake packets do.
func (r *Registry) Touch(source string, now time.Time) {
	r.Lock()
	defer r.Unlock()

	if s, ok := r.sessions[source]; ok {
		s.LastPacket = now
	}
}

// SweepTimeouts removes every session silent for longer than the registry
// timeout and returns the evicted sessions. This is the only path that
// destroys a session; it runs once per driver tick, so eviction latency is
// bounded by the tick period.
func (r *Registry) SweepTimeouts(now time.Time) []*Session {
	r.Lock()
	defer r.Unlock()

	var evicted []*Session
	for addr, s := range r.sessions {
		if now.Sub(s.LastPacket) > r.timeout {
			evicted = append(evicted, s)
			delete(r.sessions, addr)
		}
	}

	for _, s := range evicted {
		r.logger.WithFields(logrus.Fields{
			"addr": s.Addr,
			"guid": s.GUID,
		}).Info("Session timed out")
	}

	return evicted
}

// Get returns the session for an address.
func (r *Registry) Get(source string) (*Session, bool) {
	r.Lock()
	defer r.Unlock()

	s, ok := r.sessions[source]
	return s, ok
}

// IsAuthenticated reports whether the address belongs to an authenticated
// session.
func (r *Registry) IsAuthenticated(source string) bool {
	r.Lock()
	defer r.Unlock()

	s, ok := r.sessions[source]
	return ok && s.Authenticated()
}

// AddrByGUID finds the address of the authenticated session with the given
// GUID.
func (r *Registry) AddrByGUID(guid uint64) (string, bool) {
	r.Lock()
	defer r.Unlock()

	for addr, s := range r.sessions {
		if s.Authenticated() && s.GUID == guid {
			return addr, true
		}
	}
	return "", false
}

// Authenticated returns a snapshot of all authenticated sessions.
func (r *Registry) Authenticated() []*Session {
	r.Lock()
	defer r.Unlock()

	var out []*Session
	for _, s := range r.sessions {
		if s.Authenticated() {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out
}

// Count returns the number of known sessions, authenticated or not.
func (r *Registry) Count() int {
	r.Lock()
	defer r.Unlock()

	return len(r.sessions)
}

// AuthenticatedCount returns the number of authenticated sessions.
func (r *Registry) AuthenticatedCount() int {
	r.Lock()
	defer r.Unlock()

	n := 0
	for _, s := range r.sessions {
		if s.Authenticated() {
			n++
		}
	}
	return n
}
