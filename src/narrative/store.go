package narrative

import (
	"sort"
	"sync"
)

// DefaultFactCacheLimit is the hard cap on cached facts. When exceeded, the
// oldest facts are evicted in one pass until the cache is back at 75% of the
// limit.
const DefaultFactCacheLimit = 1024

// Store is the fact cache behind the narrative manager. Implementations
// enforce the bounded-size invariant themselves so callers never need to
// reject a write.
type Store interface {
	Set(f Fact) error
	Get(hash uint32) (Fact, bool)
	Count() int
	All() []Fact
	Clear() error
	Close() error
}

// InmemStore is a purely in-memory fact cache.
type InmemStore struct {
	sync.Mutex

	limit int
	facts map[uint32]Fact
}

// NewInmemStore creates an empty store. A non-positive limit falls back to
// DefaultFactCacheLimit.
func NewInmemStore(limit int) *InmemStore {
	if limit <= 0 {
		limit = DefaultFactCacheLimit
	}
	return &InmemStore{
		limit: limit,
		facts: make(map[uint32]Fact),
	}
}

// Set stores or overwrites a fact, evicting the oldest entries if the cache
// grows past its limit.
func (s *InmemStore) Set(f Fact) error {
	s.set(f)
	return nil
}

// set is Set plus the list of evicted hashes, for stores layered on top that
// need to mirror evictions.
func (s *InmemStore) set(f Fact) []uint32 {
	s.Lock()
	defer s.Unlock()

	s.facts[f.Hash] = f

	if len(s.facts) <= s.limit {
		return nil
	}

	return s.prune()
}

// prune evicts the oldest facts by timestamp until the cache is at 75% of
// the limit. One pass, deterministic, never rejects the triggering write.
func (s *InmemStore) prune() []uint32 {
	target := s.limit * 3 / 4
	if len(s.facts) <= target {
		return nil
	}

	type age struct {
		hash      uint32
		timestamp int64
	}

	ages := make([]age, 0, len(s.facts))
	for hash, fact := range s.facts {
		ages = append(ages, age{hash: hash, timestamp: fact.Timestamp})
	}

	sort.Slice(ages, func(i, j int) bool {
		return ages[i].timestamp < ages[j].timestamp
	})

	count := len(s.facts) - target
	pruned := make([]uint32, 0, count)
	for i := 0; i < count; i++ {
		delete(s.facts, ages[i].hash)
		pruned = append(pruned, ages[i].hash)
	}

	return pruned
}

// Get returns the fact with the given name hash.
func (s *InmemStore) Get(hash uint32) (Fact, bool) {
	s.Lock()
	defer s.Unlock()

	f, ok := s.facts[hash]
	return f, ok
}

// Count returns the number of cached facts.
func (s *InmemStore) Count() int {
	s.Lock()
	defer s.Unlock()

	return len(s.facts)
}

// All returns a snapshot of every cached fact, in no particular order.
func (s *InmemStore) All() []Fact {
	s.Lock()
	defer s.Unlock()

	out := make([]Fact, 0, len(s.facts))
	for _, f := range s.facts {
		out = append(out, f)
	}
	return out
}

// Clear drops every cached fact.
func (s *InmemStore) Clear() error {
	s.Lock()
	defer s.Unlock()

	s.facts = make(map[uint32]Fact)
	return nil
}

// Close implements the Store interface. There is nothing to release.
func (s *InmemStore) Close() error {
	return nil
}
