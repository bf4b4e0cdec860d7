// Package narrative keeps the shared story state of a Drift session
// consistent across peers.
//
// It owns two things: a single global story lock that gates
// narrative-critical sections (cutscenes, dialogue sync), and a bounded
// cache of named integer world facts. Facts broadcast while the lock is held
// are queued and applied in one step when the lock is released, so no peer
// observes a half-applied sync window. A fail-safe timeout force-releases a
// lock whose holder disappeared.
package narrative

import (
	"github.com/driftnetworks/drift/src/common"
)

// Fact is one named integer world-state value, e.g. a quest objective or a
// kill counter. Facts travel by hash on the wire to keep packets small; the
// name is kept locally for debugging and the service API.
type Fact struct {
	Name      string
	Value     int32
	Timestamp int64
	OwnerGUID uint64
	Hash      uint32
}

// HashFactName derives the stable 32-bit identity of a fact name. Every peer
// must compute the same hash for the same name, so the digest comparison in
// heartbeats stays meaningful.
func HashFactName(name string) uint32 {
	return common.Hash32([]byte(name))
}
