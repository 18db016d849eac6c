package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragengine/internal/chunker"
	"ragengine/internal/domain"
	"ragengine/internal/embedding"
	"ragengine/internal/embedding/hashing"
	"ragengine/internal/extract"
	"ragengine/internal/index/jsonfile"
	"ragengine/internal/ingest"
	"ragengine/internal/retriever"
)

type wordCounter struct{}

func (wordCounter) Count(text string) (int, error) {
	return len(strings.Fields(text)), nil
}

type harness struct {
	dir    string
	engine *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	store := jsonfile.New(filepath.Join(t.TempDir(), "index"))
	svc := embedding.NewService(func() (domain.Embedder, error) {
		return hashing.New(hashing.DefaultDimension), nil
	})
	logger := log.New(io.Discard)
	pipeline := ingest.New(dir, extract.New(),
		chunker.NewTokenChunker(wordCounter{}, 800, 120), svc, store, logger)
	engine := NewEngine(pipeline, retriever.New(svc), store, logger)
	return &harness{dir: dir, engine: engine}
}

func (h *harness) write(t *testing.T, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, name), []byte(body), 0o644))
}

// topicDoc builds a document of roughly sentences*10 words, every
// sentence dense in the topic's vocabulary.
func topicDoc(heading, sentence string, sentences int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", heading)
	for i := 0; i < sentences; i++ {
		fmt.Fprintf(&b, sentence, i)
		b.WriteString(" ")
		if i%6 == 5 {
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

func TestEngine(t *testing.T) {
	ctx := context.Background()

	t.Run("search before any ingestion is actionable", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.engine.Search(ctx, "pricing", 5)
		assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
	})

	t.Run("three-topic corpus ranks the right source first", func(t *testing.T) {
		h := newHarness(t)
		h.write(t, "pricing.md", topicDoc("Pricing",
			"Pricing strategy note %d compares tier discounts against the public pricing ladder.", 240))
		h.write(t, "retention.md", topicDoc("Retention",
			"Retention insight %d links onboarding cadence to churn reduction and renewals.", 240))
		h.write(t, "sales.md", topicDoc("Sales",
			"Sales call note %d walks through qualification discovery and the closing motion.", 240))

		report, err := h.engine.Ingest(ctx, ingest.Options{Mode: ingest.ModeAll})
		require.NoError(t, err)
		assert.Equal(t, 3, report.FilesIngested)
		// 2400-ish tokens at maxTokens=800 with overlap lands at 3-4
		// chunks per document
		assert.GreaterOrEqual(t, report.ChunksInIndex, 9)
		assert.LessOrEqual(t, report.ChunksInIndex, 12)

		resp, err := h.engine.Search(ctx, "pricing strategy", 5)
		require.NoError(t, err)
		assert.False(t, resp.EmptyCorpus)
		assert.False(t, resp.Insufficient)
		require.Len(t, resp.Results, 5)
		assert.Equal(t, "pricing.md", resp.Results[0].Chunk.SourceID)
		assert.Equal(t, "pricing.md", resp.Results[1].Chunk.SourceID)
		assert.Equal(t, "pricing.md", resp.Results[2].Chunk.SourceID)
		// ordering is by non-decreasing distance
		for i := 1; i < len(resp.Results); i++ {
			assert.LessOrEqual(t, resp.Results[i-1].Distance, resp.Results[i].Distance)
		}
	})

	t.Run("empty corpus is flagged, not an error", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.engine.Ingest(ctx, ingest.Options{Mode: ingest.ModeAll})
		require.NoError(t, err)
		resp, err := h.engine.Search(ctx, "anything", 5)
		require.NoError(t, err)
		assert.True(t, resp.EmptyCorpus)
		assert.True(t, resp.Insufficient)
		assert.Empty(t, resp.Results)
	})

	t.Run("single result is insufficient but not empty", func(t *testing.T) {
		h := newHarness(t)
		h.write(t, "pricing.md", "# Pricing\n\nOne short pricing note.")
		_, err := h.engine.Ingest(ctx, ingest.Options{Mode: ingest.ModeAll})
		require.NoError(t, err)
		resp, err := h.engine.Search(ctx, "pricing", 5)
		require.NoError(t, err)
		assert.False(t, resp.EmptyCorpus)
		assert.True(t, resp.Insufficient)
		assert.Len(t, resp.Results, 1)
	})

	t.Run("context blocks carry citation metadata", func(t *testing.T) {
		h := newHarness(t)
		h.write(t, "pricing.md", "# Pricing\n\nDiscount ladders protect margin. Annual deals get fifteen percent off.")
		_, err := h.engine.Ingest(ctx, ingest.Options{Mode: ingest.ModeAll})
		require.NoError(t, err)
		resp, err := h.engine.Search(ctx, "discount margin", 3)
		require.NoError(t, err)
		blocks := resp.ContextBlocks()
		require.NotEmpty(t, blocks)
		assert.Equal(t, "pricing.md", blocks[0].Source)
		assert.Equal(t, "chunk 1/1", blocks[0].Position)
		assert.Greater(t, blocks[0].TokenCount, 0)
		assert.Contains(t, blocks[0].Text, "Discount ladders")
	})

	t.Run("search sees the corpus again after re-ingestion", func(t *testing.T) {
		h := newHarness(t)
		h.write(t, "pricing.md", "# Pricing\n\nThe old pricing note talks about legacy tiers only.")
		_, err := h.engine.Ingest(ctx, ingest.Options{Mode: ingest.ModeAll})
		require.NoError(t, err)
		_, err = h.engine.Search(ctx, "pricing", 5)
		require.NoError(t, err)

		h.write(t, "pricing.md", "# Pricing\n\nThe new pricing note covers usage based billing.")
		_, err = h.engine.Ingest(ctx, ingest.Options{Mode: ingest.ModeChanged})
		require.NoError(t, err)
		resp, err := h.engine.Search(ctx, "pricing", 5)
		require.NoError(t, err)
		require.NotEmpty(t, resp.Results)
		assert.Contains(t, resp.Results[0].Chunk.Text, "usage based billing")
	})

	t.Run("status flows through the engine", func(t *testing.T) {
		h := newHarness(t)
		h.write(t, "pricing.md", "# Pricing\n\nA note.")
		changes, err := h.engine.Status(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"pricing.md"}, changes.New)
	})
}
