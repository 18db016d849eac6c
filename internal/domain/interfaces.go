package domain

import "context"

// IndexEntry is the persisted unit: a chunk plus its embedding vector.
// The vector dimension must be uniform across the whole index.
type IndexEntry struct {
	ID     string    `json:"id"`
	Vector []float64 `json:"vector"`
	Chunk  Chunk     `json:"chunk"`
}

// Embedder converts text into fixed-dimension, L2-normalized vectors.
// Implementations must be deterministic for a fixed model version and
// order-preserving across a batch.
type Embedder interface {
	Name() string
	Dimension() int
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// IndexStore persists the full set of index entries as one logical
// transaction and reloads them across process restarts. Load returns
// ErrIndexUnavailable when nothing has been persisted yet.
type IndexStore interface {
	Persist(ctx context.Context, entries []IndexEntry) error
	Load(ctx context.Context) ([]IndexEntry, error)
	LoadMetadata(ctx context.Context) ([]ChunkMetadata, error)
	Close() error
}

// Extractor turns a source file into plain text. Failures are reported
// as *ExtractionError so the pipeline can skip the file.
type Extractor interface {
	Extract(path string) (string, error)
	Supported(path string) bool
}
