package openai

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, baseURL string, batchSize int) *Client {
	t.Helper()
	t.Setenv("TEST_EMBED_KEY", "secret")
	c, err := NewClient(Config{
		BaseURL:   baseURL,
		APIKeyEnv: "TEST_EMBED_KEY",
		Model:     "test-embed",
		BatchSize: batchSize,
	})
	require.NoError(t, err)
	return c
}

func TestClient(t *testing.T) {
	t.Run("missing key fails construction", func(t *testing.T) {
		_, err := NewClient(Config{APIKeyEnv: "DEFINITELY_UNSET_KEY"})
		assert.Error(t, err)
	})

	t.Run("embeds a batch in input order despite reordered response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			var req struct {
				Input []string `json:"input"`
				Model string   `json:"model"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "test-embed", req.Model)
			// answer in reverse order on purpose
			type item struct {
				Index     int       `json:"index"`
				Embedding []float64 `json:"embedding"`
			}
			var data []item
			for i := len(req.Input) - 1; i >= 0; i-- {
				data = append(data, item{Index: i, Embedding: []float64{float64(i + 1), 0, 0}})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
		}))
		defer srv.Close()

		c := newTestClient(t, srv.URL, 32)
		vectors, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c"})
		require.NoError(t, err)
		require.Len(t, vectors, 3)
		for _, vec := range vectors {
			// normalized: every vector collapses to unit x-axis
			assert.InDelta(t, 1.0, vec[0], 1e-9)
			assert.InDelta(t, 1.0, math.Sqrt(vec[0]*vec[0]+vec[1]*vec[1]+vec[2]*vec[2]), 1e-9)
		}
		assert.Equal(t, 3, c.Dimension())
	})

	t.Run("splits large inputs into batches", func(t *testing.T) {
		var requests int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
			var req struct {
				Input []string `json:"input"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.LessOrEqual(t, len(req.Input), 2)
			type item struct {
				Index     int       `json:"index"`
				Embedding []float64 `json:"embedding"`
			}
			var data []item
			for i := range req.Input {
				data = append(data, item{Index: i, Embedding: []float64{1, 1}})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
		}))
		defer srv.Close()

		c := newTestClient(t, srv.URL, 2)
		vectors, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e"})
		require.NoError(t, err)
		assert.Len(t, vectors, 5)
		assert.Equal(t, 3, requests)
	})

	t.Run("retries server errors then succeeds", func(t *testing.T) {
		var calls int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{
				{"index": 0, "embedding": []float64{1, 0}},
			}})
		}))
		defer srv.Close()

		c := newTestClient(t, srv.URL, 32)
		vectors, err := c.EmbedBatch(context.Background(), []string{"a"})
		require.NoError(t, err)
		assert.Len(t, vectors, 1)
		assert.Equal(t, 2, calls)
	})

	t.Run("client errors do not retry", func(t *testing.T) {
		var calls int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		c := newTestClient(t, srv.URL, 32)
		_, err := c.EmbedBatch(context.Background(), []string{"a"})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("concurrent embeds pin the dimension once", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Input []string `json:"input"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			type item struct {
				Index     int       `json:"index"`
				Embedding []float64 `json:"embedding"`
			}
			var data []item
			for i := range req.Input {
				data = append(data, item{Index: i, Embedding: []float64{1, 0, 0, 0}})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
		}))
		defer srv.Close()

		c := newTestClient(t, srv.URL, 32)
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				vectors, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
				assert.NoError(t, err)
				assert.Len(t, vectors, 2)
				assert.Equal(t, 4, c.Dimension())
			}()
		}
		wg.Wait()
		assert.Equal(t, 4, c.Dimension())
	})

	t.Run("vector count mismatch is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{}})
		}))
		defer srv.Close()

		c := newTestClient(t, srv.URL, 32)
		_, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
		assert.ErrorContains(t, err, "want 2")
	})
}
