// Package ingest orchestrates the batch path from source files to a
// persisted index: change detection, extraction, chunking, tag
// inference, embedding and the full-rebuild persist.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"ragengine/internal/checksum"
	"ragengine/internal/chunker"
	"ragengine/internal/domain"
	"ragengine/internal/embedding"
)

// Mode selects which source files a run targets.
type Mode string

const (
	// ModeAll re-ingests every supported file in the source directory.
	ModeAll Mode = "all"
	// ModeChanged ingests only files the checksum diff marks new or
	// modified. Deleted sources are pruned on every run regardless.
	ModeChanged Mode = "changed"
	// ModeFiles ingests exactly the named files.
	ModeFiles Mode = "files"
)

// Options configures one ingestion run.
type Options struct {
	Mode  Mode
	Files []string
}

// Extractor is the file-reading dependency. *extract.FileExtractor
// satisfies it.
type Extractor interface {
	Extract(path string) (string, error)
	Supported(path string) bool
	Opaque(path string) bool
	ListDir(dir string) ([]string, error)
}

// FileFailure records one skipped source file.
type FileFailure struct {
	File  string
	Stage string
	Err   string
}

// Report summarizes an ingestion run.
type Report struct {
	RunID          string
	StartedAt      time.Time
	Duration       time.Duration
	Changes        checksum.Changes
	FilesSeen      int
	FilesIngested  int
	FilesFailed    int
	ZeroChunkFiles int
	ChunksEmbedded int
	ChunksInIndex  int
	Failures       []FileFailure
}

// Pipeline owns all writes to the index store. Runs are serialized by
// an internal lock; query-time readers are unaffected because both
// store backends publish a rebuild atomically.
type Pipeline struct {
	dir       string
	extractor Extractor
	chunker   *chunker.TokenChunker
	embedder  *embedding.Service
	store     domain.IndexStore
	log       *log.Logger

	mu sync.Mutex
}

func New(dir string, extractor Extractor, ch *chunker.TokenChunker, embedder *embedding.Service, store domain.IndexStore, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{
		dir:       dir,
		extractor: extractor,
		chunker:   ch,
		embedder:  embedder,
		store:     store,
		log:       logger,
	}
}

// Status diffs the source directory against the last ingested state
// without writing anything.
func (p *Pipeline) Status(ctx context.Context) (checksum.Changes, error) {
	records, err := p.loadRecords(ctx)
	if err != nil {
		return checksum.Changes{}, err
	}
	listing, _, failures := p.fingerprintDir()
	for _, f := range failures {
		p.log.Warn("unreadable source file", "file", f.File, "err", f.Err)
	}
	return checksum.Diff(records, listing), nil
}

// Run executes one ingestion pass. Per-file extraction failures are
// logged and skipped; the batch continues. Cancellation between files
// abandons the run before the persist, leaving the prior index
// untouched.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	runLog := p.log.With("run", report.RunID[:8])

	records, err := p.loadRecords(ctx)
	if err != nil {
		return nil, err
	}
	listing, texts, failures := p.fingerprintDir()
	report.Failures = append(report.Failures, failures...)
	report.FilesFailed += len(failures)
	report.FilesSeen = len(listing) + len(failures)
	report.Changes = checksum.Diff(records, listing)

	targets, missing := selectTargets(opts, report.Changes, listing)
	for _, name := range missing {
		report.Failures = append(report.Failures, FileFailure{File: name, Stage: "select", Err: "not found in source directory"})
		report.FilesFailed++
	}

	now := report.StartedAt
	var (
		newChunks []domain.Chunk
		ingested  = make(map[string]bool, len(targets))
	)
	for _, name := range targets {
		if err := ctx.Err(); err != nil {
			runLog.Warn("run canceled, prior index left untouched", "pending", len(targets))
			return nil, err
		}
		text, err := p.sourceText(name, texts)
		if err != nil {
			var exErr *domain.ExtractionError
			stage := "extract"
			if errors.As(err, &exErr) {
				stage = exErr.Stage
			}
			runLog.Warn("skipping source file", "file", name, "stage", stage, "err", err)
			report.Failures = append(report.Failures, FileFailure{File: name, Stage: stage, Err: err.Error()})
			report.FilesFailed++
			continue
		}
		pieces, err := p.chunker.Chunk(text)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", name, err)
		}
		ingested[name] = true
		report.FilesIngested++
		if len(pieces) == 0 {
			report.ZeroChunkFiles++
			runLog.Warn("source file yielded no chunks", "file", name)
			continue
		}
		tags := inferTags(name, text)
		section := firstHeading(text)
		for i, piece := range pieces {
			newChunks = append(newChunks, domain.Chunk{
				ID:          fmt.Sprintf("%s#%04d", name, i),
				SourceID:    name,
				Text:        piece.Text,
				TokenCount:  piece.TokenCount,
				ChunkIndex:  i,
				TotalChunks: len(pieces),
				Tags:        tags,
				Section:     section,
				Checksum:    listing[name],
				IngestedAt:  now,
			})
		}
		runLog.Info("chunked source file", "file", name, "chunks", len(pieces))
	}

	entries, err := p.embedChunks(ctx, newChunks)
	if err != nil {
		return nil, err
	}
	report.ChunksEmbedded = len(entries)

	merged, err := p.mergeWithRetained(ctx, entries, ingested, report.Changes.Deleted)
	if err != nil {
		return nil, err
	}
	report.ChunksInIndex = len(merged)

	if err := p.store.Persist(ctx, merged); err != nil {
		return nil, fmt.Errorf("persist index: %w", err)
	}
	report.Duration = time.Since(report.StartedAt)
	runLog.Info("ingestion complete",
		"files", report.FilesIngested,
		"failed", report.FilesFailed,
		"zero_chunk", report.ZeroChunkFiles,
		"chunks", report.ChunksInIndex,
		"took", report.Duration.Round(time.Millisecond))
	return report, nil
}

func (p *Pipeline) loadRecords(ctx context.Context) (map[string]domain.SourceFileRecord, error) {
	meta, err := p.store.LoadMetadata(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrIndexUnavailable) {
			return nil, nil
		}
		return nil, err
	}
	return checksum.RecordsFromMetadata(meta), nil
}

// fingerprintDir lists supported sources and fingerprints each one:
// full content hash for text formats, size+mtime approximation for
// opaque ones. Extracted text for text formats is returned alongside so
// the ingest loop does not read files twice.
func (p *Pipeline) fingerprintDir() (listing map[string]string, texts map[string]string, failures []FileFailure) {
	listing = make(map[string]string)
	texts = make(map[string]string)
	names, err := p.extractor.ListDir(p.dir)
	if err != nil {
		failures = append(failures, FileFailure{File: p.dir, Stage: "list", Err: err.Error()})
		return listing, texts, failures
	}
	for _, name := range names {
		path := filepath.Join(p.dir, name)
		if p.extractor.Opaque(path) {
			info, err := os.Stat(path)
			if err != nil {
				failures = append(failures, FileFailure{File: name, Stage: "stat", Err: err.Error()})
				continue
			}
			listing[name] = checksum.OfStat(name, info)
			continue
		}
		text, err := p.extractor.Extract(path)
		if err != nil {
			failures = append(failures, FileFailure{File: name, Stage: "read", Err: err.Error()})
			continue
		}
		listing[name] = checksum.OfText(text)
		texts[name] = text
	}
	return listing, texts, failures
}

func (p *Pipeline) sourceText(name string, texts map[string]string) (string, error) {
	if text, ok := texts[name]; ok {
		return text, nil
	}
	return p.extractor.Extract(filepath.Join(p.dir, name))
}

func (p *Pipeline) embedChunks(ctx context.Context, chunks []domain.Chunk) ([]domain.IndexEntry, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %d chunks: %w", len(chunks), err)
	}
	entries := make([]domain.IndexEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = domain.IndexEntry{ID: c.ID, Vector: vectors[i], Chunk: c}
	}
	return entries, nil
}

// mergeWithRetained keeps the prior entries of sources that were not
// re-ingested and not deleted, so the persist is a full rebuild of the
// whole corpus. Re-ingested sources are entirely superseded, never
// merged chunk by chunk.
func (p *Pipeline) mergeWithRetained(ctx context.Context, fresh []domain.IndexEntry, ingested map[string]bool, deleted []string) ([]domain.IndexEntry, error) {
	drop := make(map[string]bool, len(ingested)+len(deleted))
	for name := range ingested {
		drop[name] = true
	}
	for _, name := range deleted {
		drop[name] = true
	}

	prior, err := p.store.Load(ctx)
	if err != nil && !errors.Is(err, domain.ErrIndexUnavailable) {
		return nil, err
	}
	var merged []domain.IndexEntry
	for _, entry := range prior {
		if !drop[entry.Chunk.SourceID] {
			merged = append(merged, entry)
		}
	}
	merged = append(merged, fresh...)
	sort.Slice(merged, func(i, j int) bool { return merged[i].ID < merged[j].ID })
	return merged, nil
}

func selectTargets(opts Options, changes checksum.Changes, listing map[string]string) (targets, missing []string) {
	switch opts.Mode {
	case ModeFiles:
		for _, name := range opts.Files {
			if _, ok := listing[name]; ok {
				targets = append(targets, name)
			} else {
				missing = append(missing, name)
			}
		}
	case ModeChanged:
		targets = append(targets, changes.New...)
		targets = append(targets, changes.Modified...)
	default:
		for name := range listing {
			targets = append(targets, name)
		}
	}
	sort.Strings(targets)
	return targets, missing
}
