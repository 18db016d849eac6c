package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragengine/internal/domain"
)

type stubEmbedder struct {
	dim   int
	calls int
	// perText overrides the dimension for specific inputs
	perText map[string]int
}

func (s *stubEmbedder) Name() string   { return "stub" }
func (s *stubEmbedder) Dimension() int { return s.dim }

func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float64, error) {
	s.calls++
	out := make([][]float64, len(texts))
	for i, text := range texts {
		dim := s.dim
		if d, ok := s.perText[text]; ok {
			dim = d
		}
		vec := make([]float64, dim)
		vec[0] = 1
		out[i] = vec
	}
	return out, nil
}

func TestService(t *testing.T) {
	t.Run("factory runs once", func(t *testing.T) {
		stub := &stubEmbedder{dim: 4}
		built := 0
		svc := NewService(func() (domain.Embedder, error) {
			built++
			return stub, nil
		})
		_, err := svc.EmbedOne(context.Background(), "a")
		require.NoError(t, err)
		_, err = svc.EmbedBatch(context.Background(), []string{"b", "c"})
		require.NoError(t, err)
		assert.Equal(t, 1, built)
		assert.Equal(t, 2, stub.calls)
	})

	t.Run("init failure maps to ErrModelUnavailable", func(t *testing.T) {
		svc := NewService(func() (domain.Embedder, error) {
			return nil, errors.New("weights missing")
		})
		_, err := svc.EmbedOne(context.Background(), "a")
		assert.ErrorIs(t, err, domain.ErrModelUnavailable)
		_, err = svc.Dimension()
		assert.ErrorIs(t, err, domain.ErrModelUnavailable)
	})

	t.Run("dimension pinned from first batch", func(t *testing.T) {
		svc := NewService(func() (domain.Embedder, error) {
			return &stubEmbedder{dim: 6}, nil
		})
		_, err := svc.EmbedOne(context.Background(), "a")
		require.NoError(t, err)
		dim, err := svc.Dimension()
		require.NoError(t, err)
		assert.Equal(t, 6, dim)
	})

	t.Run("dimension disagreement aborts", func(t *testing.T) {
		svc := NewService(func() (domain.Embedder, error) {
			return &stubEmbedder{dim: 4, perText: map[string]int{"odd": 7}}, nil
		})
		_, err := svc.EmbedOne(context.Background(), "fine")
		require.NoError(t, err)
		_, err = svc.EmbedBatch(context.Background(), []string{"also fine", "odd"})
		var dimErr *domain.DimensionError
		require.True(t, errors.As(err, &dimErr))
		assert.Equal(t, 4, dimErr.Want)
		assert.Equal(t, 7, dimErr.Got)
	})
}

func TestNormalize(t *testing.T) {
	t.Run("unit length", func(t *testing.T) {
		vec := Normalize([]float64{3, 4})
		assert.InDelta(t, 0.6, vec[0], 1e-9)
		assert.InDelta(t, 0.8, vec[1], 1e-9)
		var sum float64
		for _, v := range vec {
			sum += v * v
		}
		assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-9)
	})

	t.Run("zero vector untouched", func(t *testing.T) {
		vec := Normalize([]float64{0, 0, 0})
		assert.Equal(t, []float64{0, 0, 0}, vec)
	})
}
