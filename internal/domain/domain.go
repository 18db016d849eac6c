package domain

import "time"

// Chunk is a token-bounded span of a source document, the unit of
// embedding and retrieval.
type Chunk struct {
	ID          string    `json:"id"`
	SourceID    string    `json:"source_id"`
	Text        string    `json:"text"`
	TokenCount  int       `json:"token_count"`
	ChunkIndex  int       `json:"chunk_index"`
	TotalChunks int       `json:"total_chunks"`
	Tags        []string  `json:"tags,omitempty"`
	Section     string    `json:"section,omitempty"`
	Checksum    string    `json:"checksum"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// Metadata returns the chunk without its text, for the flat metadata
// snapshot written next to the index.
func (c Chunk) Metadata() ChunkMetadata {
	return ChunkMetadata{
		ID:          c.ID,
		SourceID:    c.SourceID,
		TokenCount:  c.TokenCount,
		ChunkIndex:  c.ChunkIndex,
		TotalChunks: c.TotalChunks,
		Tags:        c.Tags,
		Section:     c.Section,
		Checksum:    c.Checksum,
		IngestedAt:  c.IngestedAt,
	}
}

// ChunkFromParts rebuilds a chunk from the persisted {text, metadata}
// split.
func ChunkFromParts(text string, m ChunkMetadata) Chunk {
	return Chunk{
		ID:          m.ID,
		SourceID:    m.SourceID,
		Text:        text,
		TokenCount:  m.TokenCount,
		ChunkIndex:  m.ChunkIndex,
		TotalChunks: m.TotalChunks,
		Tags:        m.Tags,
		Section:     m.Section,
		Checksum:    m.Checksum,
		IngestedAt:  m.IngestedAt,
	}
}

// ChunkMetadata is the per-chunk record persisted in the metadata snapshot.
type ChunkMetadata struct {
	ID          string    `json:"id"`
	SourceID    string    `json:"source_id"`
	TokenCount  int       `json:"token_count"`
	ChunkIndex  int       `json:"chunk_index"`
	TotalChunks int       `json:"total_chunks"`
	Tags        []string  `json:"tags,omitempty"`
	Section     string    `json:"section,omitempty"`
	Checksum    string    `json:"checksum"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// SourceFileRecord describes the last ingested state of one source file.
// It is not persisted on its own; it is reconstructed by grouping the
// metadata snapshot by SourceID.
type SourceFileRecord struct {
	Filename       string
	Checksum       string
	LastIngestedAt time.Time
	ChunkIDs       []string
}

// ScoredChunk is a ranked retrieval result. Distance is 1-combined
// score, so smaller is better.
type ScoredChunk struct {
	Chunk    Chunk
	Distance float64
}
