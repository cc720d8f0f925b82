// Package coordination implements the rate limiter, cost tracker, and dedup
// facilities that the orchestrator and pipeline driver consult before
// admitting a scrape task.
//
// The specification assumes a process-external coordination store (a
// Redis-shaped sorted-set/counter API) so independent worker processes share
// the same admission state. This module has no networked key-value store in
// its dependency surface, so the store is implemented on top of BadgerDB
// (already used elsewhere for document storage): Badger gives per-entry TTL
// natively, so sliding-window expiry is modelled as "let the TTL reap the
// entry" rather than a manual ZREMRANGEBYSCORE step, and sorted-set
// cardinality is modelled as a prefix scan over live (non-expired) keys.
package coordination

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// ErrStoreClosed is returned once Close has been called.
var ErrStoreClosed = errors.New("coordination store is closed")

// Store wraps a BadgerDB handle with the primitives the rate limiter, cost
// tracker, and dedup probe need: windowed set membership with TTL, a
// float counter keyed by date, and plain TTL key existence checks.
type Store struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) a BadgerDB instance rooted at dir for coordination
// state. Badger's own value-log GC is left to the caller to schedule.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open coordination store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying BadgerDB handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// windowCount returns the number of live (unexpired) entries under prefix.
// Expired entries are skipped by Badger's iterator automatically once their
// TTL elapses, so this already reflects "entries newer than the window".
func (s *Store) windowCount(prefix []byte) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// windowInsert adds a uniquely-keyed member under prefix with the given TTL.
func (s *Store) windowInsert(prefix []byte, ttl time.Duration) error {
	member := append(append([]byte{}, prefix...), randomSuffix()...)
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(member, []byte{1}).WithTTL(ttl)
		return txn.SetEntry(e)
	})
}

// windowReset deletes every member under prefix.
func (s *Store) windowReset(prefix []byte) error {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func randomSuffix() []byte {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(time.Now().UnixNano()))
	_, _ = rand.Read(buf[8:])
	return buf[:]
}

// setExists reports whether key is currently present (and unexpired).
func (s *Store) setExists(key []byte) (bool, error) {
	var exists bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			exists = false
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

// setWithTTL stores key with the given TTL, overwriting any previous value.
func (s *Store) setWithTTL(key []byte, value []byte, ttl time.Duration) error {
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(key, value).WithTTL(ttl)
		return txn.SetEntry(e)
	})
}

// floatCounter is the JSON payload stored for a cost-tracker counter entry.
type floatCounter struct {
	Total float64 `json:"total"`
}

// incrByFloat atomically adds delta to the counter stored at key, setting
// ttl only if the key did not previously exist, and returns the new total.
func (s *Store) incrByFloat(key []byte, delta float64, ttlIfAbsent time.Duration) (float64, error) {
	var newTotal float64
	err := s.db.Update(func(txn *badger.Txn) error {
		var current floatCounter
		ttl := ttlIfAbsent

		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			// first write for this key: apply the absent-TTL
		case err != nil:
			return err
		default:
			if valErr := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &current)
			}); valErr != nil {
				return valErr
			}
			// key already exists: keep its existing TTL rather than
			// resetting the clock on every increment.
			if remaining := time.Until(time.Unix(int64(item.ExpiresAt()), 0)); remaining > 0 {
				ttl = remaining
			}
		}

		current.Total += delta
		newTotal = current.Total

		data, err := json.Marshal(current)
		if err != nil {
			return err
		}
		e := badger.NewEntry(key, data)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
	return newTotal, err
}

// readFloatCounter returns the current value of the counter at key, or 0 if
// absent.
func (s *Store) readFloatCounter(key []byte) (float64, error) {
	var current floatCounter
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &current)
		})
	})
	return current.Total, err
}

// deleteKey removes key if present; it is not an error if absent.
func (s *Store) deleteKey(key []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}
