// Package docstore persists raw scrape snapshots and quarantine records as
// JSON documents in an embedded BadgerDB instance, distinct from the
// coordination store's short-lived admission keys (internal/coordination).
package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/levoit/visibilitypipeline/internal/models"
)

// Store wraps a BadgerDB handle dedicated to document storage.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) a BadgerDB instance rooted at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying BadgerDB handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func snapshotKey(id string) []byte    { return []byte("snapshot:" + id) }
func quarantineKey(id string) []byte  { return []byte("quarantine:" + id) }
func contentHashKey(h string) []byte  { return []byte("hash:" + h) }

// PutSnapshot writes snap, assigning a random ID if unset, and indexes it
// by content hash so later scrapes can detect identical content.
func (s *Store) PutSnapshot(_ context.Context, snap models.Snapshot) (models.Snapshot, error) {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(snapshotKey(snap.ID), data); err != nil {
			return err
		}
		return txn.Set(contentHashKey(snap.ContentHash), []byte(snap.ID))
	})
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("write snapshot: %w", err)
	}
	return snap, nil
}

// GetSnapshot retrieves a snapshot by ID.
func (s *Store) GetSnapshot(_ context.Context, id string) (models.Snapshot, error) {
	var snap models.Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.Snapshot{}, fmt.Errorf("snapshot %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	return snap, nil
}

// SnapshotIDByContentHash returns the ID of a previously stored snapshot
// with the same content hash, if any.
func (s *Store) SnapshotIDByContentHash(_ context.Context, hash string) (string, bool, error) {
	var id string
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(contentHashKey(hash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if err != nil {
		return "", false, fmt.Errorf("lookup content hash: %w", err)
	}
	return id, found, nil
}

// PutQuarantine writes a quarantine record, assigning a random ID if unset.
func (s *Store) PutQuarantine(_ context.Context, rec models.QuarantineRecord) (models.QuarantineRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return models.QuarantineRecord{}, fmt.Errorf("marshal quarantine record: %w", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(quarantineKey(rec.ID), data)
	}); err != nil {
		return models.QuarantineRecord{}, fmt.Errorf("write quarantine record: %w", err)
	}
	return rec, nil
}

// ListQuarantine returns every quarantine record currently stored. Intended
// for operator inspection; unbounded since quarantine volume is expected to
// be small relative to successful scrapes.
func (s *Store) ListQuarantine(_ context.Context) ([]models.QuarantineRecord, error) {
	var records []models.QuarantineRecord
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte("quarantine:")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec models.QuarantineRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list quarantine records: %w", err)
	}
	return records, nil
}

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("document not found")
