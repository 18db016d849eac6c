// Package retriever ranks indexed chunks against a query by blending
// dense vector similarity with a lexical relevance heuristic.
package retriever

import (
	"context"
	"math"
	"sort"
	"strings"

	"ragengine/internal/domain"
	"ragengine/internal/index"
)

// Blend weights are the hand-tuned retrieval knobs. They live here as
// named constants so they can be inspected and tuned without touching
// the ranking code.
const (
	VectorWeight  = 0.7
	LexicalWeight = 0.3

	// normEpsilon keeps min-max normalization defined when every score
	// in a candidate set is equal.
	normEpsilon = 1e-9

	// minQueryTokenLen drops short query tokens ("a", "of") before
	// lexical matching.
	minQueryTokenLen = 3

	// DefaultK is used when the caller passes k <= 0.
	DefaultK = 5
)

// Embedder is the query-side embedding dependency.
// *embedding.Service satisfies it.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float64, error)
}

type Retriever struct {
	embedder Embedder
}

func New(embedder Embedder) *Retriever {
	return &Retriever{embedder: embedder}
}

// Search returns the top k chunks ordered by increasing distance
// (best first), where distance = 1 - blended score. An empty index
// yields an empty result. A query vector whose dimension disagrees
// with the index aborts with a DimensionError.
func (r *Retriever) Search(ctx context.Context, idx *index.Index, query string, k int) ([]domain.ScoredChunk, error) {
	if k <= 0 {
		k = DefaultK
	}
	entries := idx.Entries()
	if len(entries) == 0 {
		return nil, nil
	}

	queryVec, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, err
	}
	if idx.Dimension() != len(queryVec) {
		return nil, &domain.DimensionError{Want: idx.Dimension(), Got: len(queryVec), ID: "query"}
	}

	// Candidates keep entry (id) order; the final sort is stable, so
	// exact score ties resolve to id order.
	vectorScores := make([]float64, len(entries))
	lexicalScores := make([]float64, len(entries))
	for i, entry := range entries {
		vectorScores[i] = dot(queryVec, entry.Vector)
		lexicalScores[i] = lexicalScore(query, entry.Chunk.Text)
	}

	combined := make([]float64, len(entries))
	if len(entries) < 2 {
		// Min-max normalization is undefined over a singleton set; rank
		// by raw vector similarity alone.
		combined[0] = vectorScores[0]
	} else {
		normVec := minMaxNormalize(vectorScores)
		normLex := minMaxNormalize(lexicalScores)
		for i := range combined {
			combined[i] = VectorWeight*normVec[i] + LexicalWeight*normLex[i]
		}
	}

	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return combined[order[a]] > combined[order[b]]
	})

	if k > len(order) {
		k = len(order)
	}
	results := make([]domain.ScoredChunk, 0, k)
	for _, i := range order[:k] {
		results = append(results, domain.ScoredChunk{
			Chunk:    entries[i].Chunk,
			Distance: 1 - combined[i],
		})
	}
	return results, nil
}

// lexicalScore accumulates, per query token, a frequency term damped by
// an inverse-length factor. Matching is substring containment against
// lowercased chunk words, deliberately looser than whole-word matching:
// "pricing" matches "repricing", which keeps stemmed and compound forms
// reachable without a stemmer.
func lexicalScore(query, text string) float64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return 0
	}
	n := float64(len(words))
	var score float64
	for _, token := range strings.Fields(strings.ToLower(query)) {
		if len(token) < minQueryTokenLen {
			continue
		}
		matches := 0
		for _, word := range words {
			if strings.Contains(word, token) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		m := float64(matches)
		score += (m / n) * math.Log(1+n/m)
	}
	return score
}

func minMaxNormalize(scores []float64) []float64 {
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}
	out := make([]float64, len(scores))
	span := hi - lo + normEpsilon
	for i, s := range scores {
		out[i] = (s - lo) / span
	}
	return out
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
