package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aken1023/llamaindex-faiss-system1/internal/config"
)

type memoryCache struct {
	entries map[string][]float32
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]float32{}}
}

func (m *memoryCache) Get(_ context.Context, modelName, text string) ([]float32, bool, error) {
	v, ok := m.entries[modelName+"/"+text]
	return v, ok, nil
}

func (m *memoryCache) Set(_ context.Context, modelName, text string, vector []float32) error {
	m.entries[modelName+"/"+text] = vector
	return nil
}

func newEmbeddingServer(t *testing.T, dimensions int, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		assert.Equal(t, "/embeddings", r.URL.Path)

		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Embedding []float32 `json:"embedding"`
		}
		data := make([]item, len(req.Input))
		for i := range req.Input {
			v := make([]float32, dimensions)
			v[0] = float32(len(req.Input[i]))
			data[i] = item{Embedding: v}
		}
		require.NoError(t, json.NewEncoder(w).Encode(map[string]interface{}{"data": data}))
	}))
}

func TestEmbedBatchReturnsOneVectorPerInput(t *testing.T) {
	calls := 0
	server := newEmbeddingServer(t, 4, &calls)
	defer server.Close()

	client := NewClient(config.EmbeddingConfig{
		BaseURL:    server.URL,
		Model:      "test-embed",
		Dimensions: 4,
	}, nil)

	vectors, err := client.EmbedBatch(context.Background(), []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for _, v := range vectors {
		assert.Len(t, v, 4)
	}
	assert.Equal(t, 1, calls)
}

func TestEmbedBatchUsesCacheOnRepeat(t *testing.T) {
	calls := 0
	server := newEmbeddingServer(t, 4, &calls)
	defer server.Close()

	client := NewClient(config.EmbeddingConfig{
		BaseURL:    server.URL,
		Model:      "test-embed",
		Dimensions: 4,
	}, newMemoryCache())

	first, err := client.EmbedBatch(context.Background(), []string{"repeated text"})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	second, err := client.EmbedBatch(context.Background(), []string{"repeated text"})
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second identical input must be served from cache")
	assert.Equal(t, first, second)
}

func TestEmbedBatchOnlyFetchesCacheMisses(t *testing.T) {
	calls := 0
	server := newEmbeddingServer(t, 4, &calls)
	defer server.Close()

	cache := newMemoryCache()
	client := NewClient(config.EmbeddingConfig{
		BaseURL:    server.URL,
		Model:      "test-embed",
		Dimensions: 4,
	}, cache)

	_, err := client.EmbedBatch(context.Background(), []string{"cached"})
	require.NoError(t, err)

	vectors, err := client.EmbedBatch(context.Background(), []string{"cached", "fresh"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, 2, calls)
}

func TestEmbedBatchDimensionMismatch(t *testing.T) {
	calls := 0
	server := newEmbeddingServer(t, 4, &calls)
	defer server.Close()

	client := NewClient(config.EmbeddingConfig{
		BaseURL:    server.URL,
		Model:      "test-embed",
		Dimensions: 8,
	}, nil)

	_, err := client.EmbedBatch(context.Background(), []string{"text"})
	assert.ErrorContains(t, err, "dimension mismatch")
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	client := NewClient(config.EmbeddingConfig{Dimensions: 4}, nil)
	vectors, err := client.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}
