// Package bolt persists the index in a single bbolt file. A rebuild is
// one write transaction, so readers either see the previous generation
// or the new one, never a mix.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"ragengine/internal/domain"
)

var (
	bucketVectors   = []byte("vectors")
	bucketDocuments = []byte("documents")
	bucketState     = []byte("state")

	keySnapshot    = []byte("metadata_snapshot")
	keyPersistedAt = []byte("persisted_at")
)

type Store struct {
	db *bbolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketVectors, bucketDocuments, bucketState} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

type document struct {
	Text     string               `json:"text"`
	Metadata domain.ChunkMetadata `json:"metadata"`
}

// Persist replaces the whole index in one transaction.
func (s *Store) Persist(ctx context.Context, entries []domain.IndexEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := make([]domain.ChunkMetadata, 0, len(entries))
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketVectors, bucketDocuments} {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		vectors := tx.Bucket(bucketVectors)
		documents := tx.Bucket(bucketDocuments)
		for _, entry := range entries {
			vec, err := json.Marshal(entry.Vector)
			if err != nil {
				return err
			}
			if err := vectors.Put([]byte(entry.ID), vec); err != nil {
				return err
			}
			doc, err := json.Marshal(document{Text: entry.Chunk.Text, Metadata: entry.Chunk.Metadata()})
			if err != nil {
				return err
			}
			if err := documents.Put([]byte(entry.ID), doc); err != nil {
				return err
			}
			snapshot = append(snapshot, entry.Chunk.Metadata())
		}
		state := tx.Bucket(bucketState)
		snap, err := json.Marshal(snapshot)
		if err != nil {
			return err
		}
		if err := state.Put(keySnapshot, snap); err != nil {
			return err
		}
		stamp, _ := time.Now().UTC().MarshalText()
		return state.Put(keyPersistedAt, stamp)
	})
}

// Load reconstructs all entries, or ErrIndexUnavailable before the
// first persist.
func (s *Store) Load(ctx context.Context) ([]domain.IndexEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var entries []domain.IndexEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketState).Get(keyPersistedAt) == nil {
			return domain.ErrIndexUnavailable
		}
		vectors := tx.Bucket(bucketVectors)
		documents := tx.Bucket(bucketDocuments)
		return vectors.ForEach(func(k, v []byte) error {
			var vec []float64
			if err := json.Unmarshal(v, &vec); err != nil {
				return fmt.Errorf("decode vector %s: %w", k, err)
			}
			raw := documents.Get(k)
			if raw == nil {
				return fmt.Errorf("corrupt index: vector %q has no document", k)
			}
			var doc document
			if err := json.Unmarshal(raw, &doc); err != nil {
				return fmt.Errorf("decode document %s: %w", k, err)
			}
			entries = append(entries, domain.IndexEntry{
				ID:     string(k),
				Vector: vec,
				Chunk:  domain.ChunkFromParts(doc.Text, doc.Metadata),
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// LoadMetadata reads the flat snapshot.
func (s *Store) LoadMetadata(ctx context.Context) ([]domain.ChunkMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var snapshot []domain.ChunkMetadata
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketState).Get(keySnapshot)
		if raw == nil {
			return domain.ErrIndexUnavailable
		}
		return json.Unmarshal(raw, &snapshot)
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *Store) Close() error { return s.db.Close() }
