// Package service wires the retrieval core into one engine facade:
// ingestion, status and query-time search against the shared index.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"ragengine/internal/checksum"
	"ragengine/internal/domain"
	"ragengine/internal/index"
	"ragengine/internal/ingest"
	"ragengine/internal/retriever"
)

// MinUsefulResults is the smallest number of contexts considered enough
// to ground an answer. Fewer is not an error, just a degraded state the
// caller should tell the user about.
const MinUsefulResults = 2

// SearchResponse carries the ranked contexts plus the degraded-state
// flags a caller needs to pick the right user guidance.
type SearchResponse struct {
	Query   string
	Results []domain.ScoredChunk
	// EmptyCorpus means the index holds no chunks at all; run ingestion.
	EmptyCorpus bool
	// Insufficient means fewer than MinUsefulResults contexts came back
	// even though the corpus is not empty.
	Insufficient bool
}

// ContextBlock is one retrieval result shaped for an answer-generating
// caller: the text plus enough metadata to cite its source.
type ContextBlock struct {
	Source     string
	Position   string
	TokenCount int
	Distance   float64
	Text       string
}

// ContextBlocks renders the results into citation-ready blocks. The
// engine never formats or calls the generation API itself.
func (r *SearchResponse) ContextBlocks() []ContextBlock {
	blocks := make([]ContextBlock, 0, len(r.Results))
	for _, res := range r.Results {
		blocks = append(blocks, ContextBlock{
			Source:     res.Chunk.SourceID,
			Position:   fmt.Sprintf("chunk %d/%d", res.Chunk.ChunkIndex+1, res.Chunk.TotalChunks),
			TokenCount: res.Chunk.TokenCount,
			Distance:   res.Distance,
			Text:       res.Chunk.Text,
		})
	}
	return blocks
}

// Engine is the composition root's handle on the retrieval core. Writes
// go through the ingestion pipeline; searches read a cached index view
// that is invalidated after every ingestion run.
type Engine struct {
	pipeline  *ingest.Pipeline
	retriever *retriever.Retriever
	store     domain.IndexStore
	log       *log.Logger

	mu     sync.RWMutex
	cached *index.Index
}

func NewEngine(pipeline *ingest.Pipeline, r *retriever.Retriever, store domain.IndexStore, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{pipeline: pipeline, retriever: r, store: store, log: logger}
}

// Ingest runs one ingestion pass and drops the cached index view.
func (e *Engine) Ingest(ctx context.Context, opts ingest.Options) (*ingest.Report, error) {
	report, err := e.pipeline.Run(ctx, opts)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.cached = nil
	e.mu.Unlock()
	return report, nil
}

// Status reports the checksum diff without ingesting.
func (e *Engine) Status(ctx context.Context) (checksum.Changes, error) {
	return e.pipeline.Status(ctx)
}

// Search ranks the top k chunks for the query. It surfaces
// ErrIndexUnavailable unchanged so callers can prompt for ingestion.
func (e *Engine) Search(ctx context.Context, query string, k int) (*SearchResponse, error) {
	idx, err := e.currentIndex(ctx)
	if err != nil {
		return nil, err
	}
	resp := &SearchResponse{Query: query}
	if idx.Len() == 0 {
		resp.EmptyCorpus = true
		resp.Insufficient = true
		return resp, nil
	}
	results, err := e.retriever.Search(ctx, idx, query, k)
	if err != nil {
		return nil, err
	}
	resp.Results = results
	resp.Insufficient = len(results) < MinUsefulResults
	return resp, nil
}

func (e *Engine) currentIndex(ctx context.Context) (*index.Index, error) {
	e.mu.RLock()
	cached := e.cached
	e.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}
	idx, err := index.Load(ctx, e.store)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.cached = idx
	e.mu.Unlock()
	e.log.Debug("index loaded", "chunks", idx.Len(), "dimension", idx.Dimension())
	return idx, nil
}
