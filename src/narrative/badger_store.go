package narrative

import (
	"bytes"
	"fmt"

	"github.com/dgraph-io/badger"
	"github.com/ugorji/go/codec"
)

const factPrefix = "fact"

// BadgerStore persists the fact cache in a badger database so a relay
// restart does not lose accumulated story state. All reads are served from
// the wrapped in-memory store; the database is only touched on writes and at
// startup.
type BadgerStore struct {
	inmem *InmemStore
	db    *badger.DB
	path  string
}

// NewBadgerStore opens (or creates) the database at path and loads any
// persisted facts into the in-memory cache.
func NewBadgerStore(limit int, path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithLogger(nil)

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	store := &BadgerStore{
		inmem: NewInmemStore(limit),
		db:    handle,
		path:  path,
	}

	if err := store.loadFacts(); err != nil {
		handle.Close()
		return nil, err
	}

	return store, nil
}

// Path returns the database directory.
func (s *BadgerStore) Path() string {
	return s.path
}

func factKey(hash uint32) []byte {
	return []byte(fmt.Sprintf("%s_%08x", factPrefix, hash))
}

func storeHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	return jh
}

func marshalFact(f Fact) ([]byte, error) {
	b := new(bytes.Buffer)
	if err := codec.NewEncoder(b, storeHandle()).Encode(f); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func unmarshalFact(data []byte) (Fact, error) {
	var f Fact
	if err := codec.NewDecoderBytes(data, storeHandle()).Decode(&f); err != nil {
		return Fact{}, err
	}
	return f, nil
}

func (s *BadgerStore) loadFacts() error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(factPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var fact Fact
			err := it.Item().Value(func(val []byte) error {
				f, err := unmarshalFact(val)
				if err != nil {
					return err
				}
				fact = f
				return nil
			})
			if err != nil {
				return err
			}
			s.inmem.Set(fact)
		}
		return nil
	})
}

// Set writes through to the database, mirroring any evictions the in-memory
// cache performed so both views stay bounded.
func (s *BadgerStore) Set(f Fact) error {
	pruned := s.inmem.set(f)

	data, err := marshalFact(f)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(factKey(f.Hash), data); err != nil {
			return err
		}
		for _, hash := range pruned {
			if err := txn.Delete(factKey(hash)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get implements the Store interface.
func (s *BadgerStore) Get(hash uint32) (Fact, bool) {
	return s.inmem.Get(hash)
}

// Count implements the Store interface.
func (s *BadgerStore) Count() int {
	return s.inmem.Count()
}

// All implements the Store interface.
func (s *BadgerStore) All() []Fact {
	return s.inmem.All()
}

// Clear drops every fact from both the cache and the database.
func (s *BadgerStore) Clear() error {
	if err := s.inmem.Clear(); err != nil {
		return err
	}
	return s.db.DropAll()
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
