package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordCounter counts whitespace-separated words, a deterministic
// stand-in for the BPE counter.
type wordCounter struct{}

func (wordCounter) Count(text string) (int, error) {
	return len(strings.Fields(text)), nil
}

func sampleText(sentences int) string {
	var b strings.Builder
	for i := 0; i < sentences; i++ {
		fmt.Fprintf(&b, "Sentence number %d talks about pricing and margins in some detail. ", i)
		if i%5 == 4 {
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

func TestTokenChunker(t *testing.T) {
	counter := wordCounter{}

	t.Run("empty input yields no chunks", func(t *testing.T) {
		c := NewTokenChunker(counter, 100, 10)
		pieces, err := c.Chunk("   \n\n  ")
		require.NoError(t, err)
		assert.Empty(t, pieces)
	})

	t.Run("short text yields a single chunk", func(t *testing.T) {
		c := NewTokenChunker(counter, 100, 10)
		pieces, err := c.Chunk("One short sentence. Another short sentence.")
		require.NoError(t, err)
		require.Len(t, pieces, 1)
		assert.Equal(t, "One short sentence. Another short sentence.", pieces[0].Text)
		assert.Equal(t, 6, pieces[0].TokenCount)
	})

	t.Run("token budget is respected", func(t *testing.T) {
		c := NewTokenChunker(counter, 40, 5)
		pieces, err := c.Chunk(sampleText(30))
		require.NoError(t, err)
		require.Greater(t, len(pieces), 1)
		for i, p := range pieces {
			assert.LessOrEqual(t, p.TokenCount, 40, "chunk %d over budget", i)
		}
	})

	t.Run("every sentence appears in some chunk", func(t *testing.T) {
		c := NewTokenChunker(counter, 40, 5)
		text := sampleText(30)
		pieces, err := c.Chunk(text)
		require.NoError(t, err)
		joined := ""
		for _, p := range pieces {
			joined += p.Text + "\n"
		}
		for i := 0; i < 30; i++ {
			needle := fmt.Sprintf("Sentence number %d talks", i)
			assert.Contains(t, joined, needle)
		}
	})

	t.Run("overlap seeds next chunk with trailing content", func(t *testing.T) {
		c := NewTokenChunker(counter, 40, 5)
		pieces, err := c.Chunk(sampleText(30))
		require.NoError(t, err)
		require.Greater(t, len(pieces), 1)
		seed := strings.TrimSpace(trailingChars(pieces[0].Text, 5*avgCharsPerToken))
		assert.True(t, strings.HasPrefix(pieces[1].Text, seed),
			"chunk 1 should start with the tail of chunk 0")
	})

	t.Run("no overlap when overlapTokens is zero", func(t *testing.T) {
		c := NewTokenChunker(counter, 40, 0)
		pieces, err := c.Chunk(sampleText(30))
		require.NoError(t, err)
		require.Greater(t, len(pieces), 1)
		assert.True(t, strings.HasPrefix(pieces[1].Text, "Sentence number"))
	})

	t.Run("sentence after overlap seed may run over instead of splitting", func(t *testing.T) {
		first := "Alpha beta gamma delta epsilon zeta eta theta."
		second := "One two three four five six seven eight nine."
		c := NewTokenChunker(counter, 10, 3)
		pieces, err := c.Chunk(first + " " + second)
		require.NoError(t, err)
		require.Len(t, pieces, 2)
		assert.Equal(t, first, pieces[0].Text)
		// the seed plus the next sentence exceeds the budget, but they
		// stay together rather than producing a seed-only chunk
		assert.Greater(t, pieces[1].TokenCount, 10)
		assert.Contains(t, pieces[1].Text, second)
		seed := strings.TrimSpace(trailingChars(first, 3*avgCharsPerToken))
		assert.True(t, strings.HasPrefix(pieces[1].Text, seed))
	})

	t.Run("oversized sentence is emitted as its own chunk", func(t *testing.T) {
		long := "This single sentence has far more words than the whole budget allows " +
			strings.Repeat("word ", 50) + "and finally ends."
		text := "A lead-in sentence. " + long + " A trailing sentence."
		c := NewTokenChunker(counter, 10, 0)
		pieces, err := c.Chunk(text)
		require.NoError(t, err)
		require.Len(t, pieces, 3)
		assert.Equal(t, "A lead-in sentence.", pieces[0].Text)
		assert.Greater(t, pieces[1].TokenCount, 10)
		assert.Contains(t, pieces[1].Text, "finally ends.")
		assert.Equal(t, "A trailing sentence.", pieces[2].Text)
	})

	t.Run("unterminated remainder is kept", func(t *testing.T) {
		c := NewTokenChunker(counter, 100, 0)
		pieces, err := c.Chunk("A full sentence. a trailing fragment without terminator")
		require.NoError(t, err)
		require.Len(t, pieces, 1)
		assert.Contains(t, pieces[0].Text, "trailing fragment without terminator")
	})

	t.Run("deterministic for identical input", func(t *testing.T) {
		c := NewTokenChunker(counter, 40, 5)
		text := sampleText(25)
		a, err := c.Chunk(text)
		require.NoError(t, err)
		b, err := c.Chunk(text)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}

func TestTrailingChars(t *testing.T) {
	assert.Equal(t, "", trailingChars("abc", 0))
	assert.Equal(t, "abc", trailingChars("abc", 10))
	assert.Equal(t, "bc", trailingChars("abc", 2))
	// never split a multi-byte rune
	assert.Equal(t, "é", trailingChars("café", 2))
}
