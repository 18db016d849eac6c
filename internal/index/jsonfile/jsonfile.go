// Package jsonfile persists the index as three JSON artifacts in one
// directory: vectors.json (parallel ids and vectors), documents.json
// (chunk id to text plus metadata) and metadata.json (the flat snapshot
// for status tooling). Each rebuild writes temp files first and renames
// them into place, so a reader never sees vectors without their texts.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"ragengine/internal/domain"
)

const (
	vectorsFile   = "vectors.json"
	documentsFile = "documents.json"
	metadataFile  = "metadata.json"
)

type Store struct {
	dir string
}

func New(dir string) *Store { return &Store{dir: dir} }

type vectorsPayload struct {
	IDs     []string    `json:"ids"`
	Vectors [][]float64 `json:"vectors"`
}

type document struct {
	Text     string               `json:"text"`
	Metadata domain.ChunkMetadata `json:"metadata"`
}

// Persist writes the full entry set, superseding whatever was there.
func (s *Store) Persist(ctx context.Context, entries []domain.IndexEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	vectors := vectorsPayload{IDs: make([]string, 0, len(entries)), Vectors: make([][]float64, 0, len(entries))}
	documents := make(map[string]document, len(entries))
	snapshot := make([]domain.ChunkMetadata, 0, len(entries))
	for _, entry := range entries {
		vectors.IDs = append(vectors.IDs, entry.ID)
		vectors.Vectors = append(vectors.Vectors, entry.Vector)
		documents[entry.ID] = document{Text: entry.Chunk.Text, Metadata: entry.Chunk.Metadata()}
		snapshot = append(snapshot, entry.Chunk.Metadata())
	}

	staged := []struct {
		name    string
		payload any
	}{
		{vectorsFile, vectors},
		{documentsFile, documents},
		{metadataFile, snapshot},
	}
	// Stage everything before renaming anything, so a failure mid-write
	// leaves the previous generation intact.
	var tmps []string
	for _, f := range staged {
		tmp := filepath.Join(s.dir, f.name+".tmp")
		if err := writeJSON(tmp, f.payload); err != nil {
			removeAll(tmps)
			return err
		}
		tmps = append(tmps, tmp)
	}
	for i, f := range staged {
		if err := os.Rename(tmps[i], filepath.Join(s.dir, f.name)); err != nil {
			return fmt.Errorf("publish %s: %w", f.name, err)
		}
	}
	return nil
}

// Load reconstructs all entries. It fails with ErrIndexUnavailable when
// no index has been persisted yet, and with a plain error when the
// artifacts disagree with each other.
func (s *Store) Load(ctx context.Context) ([]domain.IndexEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var vectors vectorsPayload
	if err := readJSON(filepath.Join(s.dir, vectorsFile), &vectors); err != nil {
		return nil, err
	}
	var documents map[string]document
	if err := readJSON(filepath.Join(s.dir, documentsFile), &documents); err != nil {
		return nil, err
	}
	if len(vectors.IDs) != len(vectors.Vectors) {
		return nil, fmt.Errorf("corrupt %s: %d ids, %d vectors", vectorsFile, len(vectors.IDs), len(vectors.Vectors))
	}
	entries := make([]domain.IndexEntry, 0, len(vectors.IDs))
	for i, id := range vectors.IDs {
		doc, ok := documents[id]
		if !ok {
			return nil, fmt.Errorf("corrupt index: vector %q has no document", id)
		}
		entries = append(entries, domain.IndexEntry{
			ID:     id,
			Vector: vectors.Vectors[i],
			Chunk:  domain.ChunkFromParts(doc.Text, doc.Metadata),
		})
	}
	return entries, nil
}

// LoadMetadata reads the flat snapshot.
func (s *Store) LoadMetadata(ctx context.Context) ([]domain.ChunkMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var snapshot []domain.ChunkMetadata
	if err := readJSON(filepath.Join(s.dir, metadataFile), &snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *Store) Close() error { return nil }

func writeJSON(path string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w (%s missing)", domain.ErrIndexUnavailable, filepath.Base(path))
		}
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func removeAll(paths []string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}
