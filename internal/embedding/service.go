package embedding

import (
	"context"
	"fmt"
	"math"
	"sync"

	"ragengine/internal/domain"
)

// Factory builds the underlying embedder. It runs at most once per
// Service, on first use.
type Factory func() (domain.Embedder, error)

// Service is the process-wide embedding handle: it initializes the
// model lazily, keeps it warm for the process lifetime, and pins the
// vector dimension after the first successful batch. It is constructed
// once at the composition root and shared by ingestion and retrieval.
type Service struct {
	factory Factory

	once sync.Once
	emb  domain.Embedder
	err  error

	mu  sync.Mutex
	dim int
}

func NewService(factory Factory) *Service {
	return &Service{factory: factory}
}

func (s *Service) init() {
	s.emb, s.err = s.factory()
	if s.err != nil {
		s.err = fmt.Errorf("%w: %v", domain.ErrModelUnavailable, s.err)
	}
}

func (s *Service) get() (domain.Embedder, error) {
	s.once.Do(s.init)
	return s.emb, s.err
}

// Name returns the underlying model name, initializing it if needed.
func (s *Service) Name() (string, error) {
	emb, err := s.get()
	if err != nil {
		return "", err
	}
	return emb.Name(), nil
}

// Dimension returns the pinned vector dimension, initializing the
// model if needed.
func (s *Service) Dimension() (int, error) {
	emb, err := s.get()
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dim == 0 {
		s.dim = emb.Dimension()
	}
	return s.dim, nil
}

// EmbedBatch embeds texts in order, one unit-length vector per text.
// Every returned vector must match the pinned dimension; a disagreement
// aborts with a DimensionError rather than producing silently wrong
// similarity scores downstream.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	emb, err := s.get()
	if err != nil {
		return nil, err
	}
	vectors, err := emb.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder %s returned %d vectors for %d texts", emb.Name(), len(vectors), len(texts))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, vec := range vectors {
		if s.dim == 0 {
			s.dim = len(vec)
		}
		if len(vec) != s.dim {
			return nil, &domain.DimensionError{Want: s.dim, Got: len(vec), ID: fmt.Sprintf("batch[%d]", i)}
		}
	}
	return vectors, nil
}

// EmbedOne embeds a single text, typically a query.
func (s *Service) EmbedOne(ctx context.Context, text string) ([]float64, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Normalize scales vec to unit length in place and returns it. A zero
// vector is returned untouched.
func Normalize(vec []float64) []float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return vec
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
