package narrative

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/driftnetworks/drift/src/protocol"
)

// DefaultLockTimeout is the story lock fail-safe: a holder silent for longer
// than this gets its lock force-released so the whole session cannot stay
// blocked on a crashed or disconnected peer.
const DefaultLockTimeout = 15 * time.Second

// ReleaseNotice describes a lock release so the caller can broadcast the
// unlock to its peers. AppliedFacts is how many queued facts were drained
// into the cache at the release instant.
type ReleaseNotice struct {
	HolderGUID   uint64
	SceneID      uint32
	Forced       bool
	AppliedFacts int
}

// Manager owns the global story lock, the fact cache and the pending-fact
// queue. It is safe for concurrent use by the packet dispatch goroutine and
// the tick driver. All time-dependent operations take an explicit now.
type Manager struct {
	sync.Mutex

	store       Store
	logger      *logrus.Entry
	lockTimeout time.Duration

	// Global story lock. At most one holder at any time; acquire is
	// first-wins with no queuing.
	holderGUID uint64
	sceneID    uint32
	acquiredAt time.Time
	active     bool

	// While syncInProgress, broadcast facts are redirected to pending and
	// drained exactly once when the lock is released.
	syncInProgress bool
	pending        []Fact
}

// NewManager creates a manager over the given fact store. A zero timeout
// falls back to DefaultLockTimeout.
func NewManager(store Store, lockTimeout time.Duration, logger *logrus.Entry) *Manager {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}
	return &Manager{
		store:       store,
		logger:      logger,
		lockTimeout: lockTimeout,
	}
}

// Acquire takes the global story lock for a holder and scene. If the lock is
// already held the call is a no-op and returns false; there is no queuing
// and no re-entrancy.
func (m *Manager) Acquire(holderGUID uint64, sceneID uint32, now time.Time) bool {
	m.Lock()
	defer m.Unlock()

	if m.active {
		m.logger.WithFields(logrus.Fields{
			"holder":    m.holderGUID,
			"requester": holderGUID,
		}).Debug("Story lock already held")
		return false
	}

	m.holderGUID = holderGUID
	m.sceneID = sceneID
	m.acquiredAt = now
	m.active = true
	m.syncInProgress = true

	m.logger.WithFields(logrus.Fields{
		"holder": holderGUID,
		"scene":  sceneID,
	}).Info("Story lock acquired")

	return true
}

// Release clears the lock and drains the pending-fact queue into the cache
// in one atomic step. A no-op when the lock is not held. The returned notice
// is non-nil exactly when a release actually happened.
func (m *Manager) Release(forced bool, now time.Time) (*ReleaseNotice, bool) {
	m.Lock()
	defer m.Unlock()

	return m.releaseLocked(forced, now)
}

func (m *Manager) releaseLocked(forced bool, now time.Time) (*ReleaseNotice, bool) {
	if !m.active {
		return nil, false
	}

	notice := &ReleaseNotice{
		HolderGUID: m.holderGUID,
		SceneID:    m.sceneID,
		Forced:     forced,
	}

	m.holderGUID = 0
	m.sceneID = 0
	m.active = false
	m.syncInProgress = false

	// Queued facts are applied in arrival order, last value per name
	// wins. The queue is cleared regardless of store errors so a fact is
	// never applied twice.
	for _, fact := range m.pending {
		if err := m.store.Set(fact); err != nil {
			m.logger.WithField("fact", fact.Name).WithError(err).Error("Applying queued fact")
		}
	}
	notice.AppliedFacts = len(m.pending)
	m.pending = nil

	if forced {
		m.logger.WithFields(logrus.Fields{
			"holder": notice.HolderGUID,
			"scene":  notice.SceneID,
			"facts":  notice.AppliedFacts,
		}).Warn("Story lock fail-safe: forced release")
	} else {
		m.logger.WithFields(logrus.Fields{
			"holder": notice.HolderGUID,
			"scene":  notice.SceneID,
			"facts":  notice.AppliedFacts,
		}).Info("Story lock released")
	}

	return notice, true
}

// CheckTimeout force-releases the lock when the holder has kept it past the
// fail-safe timeout. Must run on every driver tick; it is the only liveness
// guarantee against a holder that never releases. Returns a notice when the
// fail-safe fired.
func (m *Manager) CheckTimeout(now time.Time) *ReleaseNotice {
	m.Lock()
	defer m.Unlock()

	if !m.active || now.Sub(m.acquiredAt) <= m.lockTimeout {
		return nil
	}

	notice, _ := m.releaseLocked(true, now)
	return notice
}

// RegisterFact stores a fact, or queues it when a global sync is in
// progress. Queued facts become visible only at the release instant.
func (m *Manager) RegisterFact(name string, value int32, ownerGUID uint64, now time.Time) {
	name = protocol.Truncate(name, protocol.MaxFactNameLength)

	fact := Fact{
		Name:      name,
		Value:     value,
		Timestamp: now.UnixNano(),
		OwnerGUID: ownerGUID,
		Hash:      HashFactName(name),
	}

	m.Lock()
	defer m.Unlock()

	if m.syncInProgress {
		m.pending = append(m.pending, fact)
		m.logger.WithFields(logrus.Fields{
			"fact":  name,
			"value": value,
		}).Debug("Fact queued during sync")
		return
	}

	if err := m.store.Set(fact); err != nil {
		m.logger.WithField("fact", name).WithError(err).Error("Storing fact")
		return
	}

	m.logger.WithFields(logrus.Fields{
		"fact":  name,
		"value": value,
		"owner": ownerGUID,
	}).Debug("Fact registered")
}

// GetFact returns the cached fact for a name.
func (m *Manager) GetFact(name string) (Fact, bool) {
	return m.store.Get(HashFactName(name))
}

// GetFactByHash returns the cached fact for a name hash.
func (m *Manager) GetFactByHash(hash uint32) (Fact, bool) {
	return m.store.Get(hash)
}

// HasFact reports whether a fact is cached.
func (m *Manager) HasFact(name string) bool {
	_, ok := m.GetFact(name)
	return ok
}

// FactCount returns the number of cached facts.
func (m *Manager) FactCount() int {
	return m.store.Count()
}

// Facts returns a snapshot of the cached facts.
func (m *Manager) Facts() []Fact {
	return m.store.All()
}

// ClearFacts drops the whole cache.
func (m *Manager) ClearFacts() error {
	return m.store.Clear()
}

// WorldStateHash folds every cached fact into an order-independent digest:
// XOR of name hash and value per fact. Cheap divergence detection between
// peers, nothing more; it has no tamper resistance.
func (m *Manager) WorldStateHash() uint32 {
	var combined uint32
	for _, f := range m.store.All() {
		combined ^= f.Hash
		combined ^= uint32(f.Value)
	}
	return combined
}

// IsLocked reports whether the global story lock is held.
func (m *Manager) IsLocked() bool {
	m.Lock()
	defer m.Unlock()

	return m.active
}

// Holder returns the current lock holder and scene.
func (m *Manager) Holder() (holderGUID uint64, sceneID uint32, ok bool) {
	m.Lock()
	defer m.Unlock()

	return m.holderGUID, m.sceneID, m.active
}

// PendingCount returns the number of facts waiting for the sync window to
// close.
func (m *Manager) PendingCount() int {
	m.Lock()
	defer m.Unlock()

	return len(m.pending)
}
