package narrative

import (
	"testing"
	"time"

	"github.com/driftnetworks/drift/src/common"
)

func newTestManager(t *testing.T) *Manager {
	return NewManager(NewInmemStore(0), 0, common.NewTestEntry(t))
}

func TestAcquireFirstWins(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()

	if !m.Acquire(1, 5, now) {
		t.Fatalf("first acquire should succeed")
	}

	if m.Acquire(2, 9, now.Add(time.Second)) {
		t.Fatalf("second acquire while held should be a no-op")
	}

	holder, scene, ok := m.Holder()
	if !ok || holder != 1 || scene != 5 {
		t.Fatalf("lock should still report the first holder, got %d/%d", holder, scene)
	}
}

func TestReleaseWithoutLock(t *testing.T) {
	m := newTestManager(t)

	if notice, ok := m.Release(false, time.Now()); ok || notice != nil {
		t.Fatalf("release without a held lock must be a no-op")
	}
}

func TestFactsQueuedDuringSync(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()

	m.Acquire(1, 5, now)

	m.RegisterFact("a", 1, 1, now.Add(time.Millisecond))
	m.RegisterFact("b", 2, 1, now.Add(2*time.Millisecond))

	// Queued facts must be invisible until the release instant.
	if m.HasFact("a") || m.HasFact("b") {
		t.Fatalf("queued facts must not be applied before release")
	}
	if m.PendingCount() != 2 {
		t.Fatalf("expected 2 pending facts, got %d", m.PendingCount())
	}

	notice, ok := m.Release(false, now.Add(time.Second))
	if !ok {
		t.Fatalf("release should succeed")
	}
	if notice.AppliedFacts != 2 {
		t.Fatalf("expected 2 applied facts, got %d", notice.AppliedFacts)
	}
	if notice.Forced {
		t.Fatalf("regular release must not be marked forced")
	}

	a, ok := m.GetFact("a")
	if !ok || a.Value != 1 {
		t.Fatalf("fact a should be applied with value 1")
	}
	b, ok := m.GetFact("b")
	if !ok || b.Value != 2 {
		t.Fatalf("fact b should be applied with value 2")
	}
	if m.PendingCount() != 0 {
		t.Fatalf("pending queue must be drained")
	}
}

func TestQueuedFactLastValueWins(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()

	m.Acquire(1, 5, now)
	m.RegisterFact("counter", 1, 1, now.Add(time.Millisecond))
	m.RegisterFact("counter", 7, 2, now.Add(2*time.Millisecond))
	m.Release(false, now.Add(time.Second))

	f, ok := m.GetFact("counter")
	if !ok || f.Value != 7 {
		t.Fatalf("last queued value should win, got %+v", f)
	}
	if f.OwnerGUID != 2 {
		t.Fatalf("owner should follow the last write, got %d", f.OwnerGUID)
	}
}

func TestCheckTimeoutForcesRelease(t *testing.T) {
	m := newTestManager(t)
	base := time.Now()

	m.Acquire(1, 5, base)
	m.RegisterFact("orphaned", 3, 1, base.Add(time.Second))

	// 14s in: fail-safe must not fire yet.
	if notice := m.CheckTimeout(base.Add(14 * time.Second)); notice != nil {
		t.Fatalf("fail-safe fired before the timeout")
	}

	notice := m.CheckTimeout(base.Add(16 * time.Second))
	if notice == nil {
		t.Fatalf("fail-safe should fire past the timeout")
	}
	if !notice.Forced {
		t.Fatalf("fail-safe release must be marked forced")
	}
	if notice.HolderGUID != 1 || notice.SceneID != 5 {
		t.Fatalf("notice should carry the released holder, got %+v", notice)
	}
	if notice.AppliedFacts != 1 {
		t.Fatalf("pending facts must drain on forced release, got %d", notice.AppliedFacts)
	}

	if m.IsLocked() {
		t.Fatalf("lock must be free after the fail-safe")
	}
	if !m.HasFact("orphaned") {
		t.Fatalf("queued fact must be applied by the forced release")
	}

	// The queue drains exactly once.
	if notice := m.CheckTimeout(base.Add(32 * time.Second)); notice != nil {
		t.Fatalf("fail-safe must not fire twice")
	}
	if m.PendingCount() != 0 {
		t.Fatalf("pending queue should stay empty")
	}
}

func TestRegisterFactUnlocked(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()

	m.RegisterFact("direct", 42, 9, now)

	f, ok := m.GetFact("direct")
	if !ok || f.Value != 42 || f.OwnerGUID != 9 {
		t.Fatalf("fact should apply immediately when unlocked, got %+v", f)
	}
	if m.PendingCount() != 0 {
		t.Fatalf("nothing should be queued when unlocked")
	}
}

func TestWorldStateHash(t *testing.T) {
	now := time.Now()

	m1 := newTestManager(t)
	m1.RegisterFact("a", 1, 1, now)
	m1.RegisterFact("b", 2, 1, now)

	m2 := newTestManager(t)
	m2.RegisterFact("b", 2, 2, now.Add(time.Second))
	m2.RegisterFact("a", 1, 2, now.Add(2*time.Second))

	// The digest depends only on names and values, not on insertion
	// order, timestamps or owners.
	if m1.WorldStateHash() != m2.WorldStateHash() {
		t.Fatalf("digest must be order-independent")
	}

	m2.RegisterFact("a", 3, 2, now.Add(3*time.Second))
	if m1.WorldStateHash() == m2.WorldStateHash() {
		t.Fatalf("diverged caches must produce different digests")
	}

	if newTestManager(t).WorldStateHash() != 0 {
		t.Fatalf("empty cache digest should be 0")
	}
}

func TestClearFacts(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()

	m.RegisterFact("a", 1, 1, now)
	if err := m.ClearFacts(); err != nil {
		t.Fatalf("err: %v", err)
	}
	if m.FactCount() != 0 {
		t.Fatalf("cache should be empty after clear")
	}
}
