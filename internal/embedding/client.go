// Package embedding maps batches of text onto fixed-dimension vectors via an
// OpenAI-compatible /embeddings endpoint.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aken1023/llamaindex-faiss-system1/internal/config"
	"github.com/aken1023/llamaindex-faiss-system1/internal/pkg/logger"
)

// Client embeds one or many strings. Implementations must return one vector
// per input, in input order, each of exactly Dimension() elements.
type Client interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// VectorCache is an optional memoization layer. With a cache attached,
// repeated identical inputs cost one Redis round-trip instead of an API call.
type VectorCache interface {
	Get(ctx context.Context, modelName, text string) ([]float32, bool, error)
	Set(ctx context.Context, modelName, text string, vector []float32) error
}

type openAICompatibleClient struct {
	cfg        config.EmbeddingConfig
	httpClient *http.Client
	cache      VectorCache
}

// NewClient builds the embedding client. cache may be nil.
func NewClient(cfg config.EmbeddingConfig, cache VectorCache) Client {
	return &openAICompatibleClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		cache:      cache,
	}
}

func (c *openAICompatibleClient) Dimension() int {
	return c.cfg.Dimensions
}

func (c *openAICompatibleClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if c.cache != nil {
			cached, ok, err := c.cache.Get(ctx, c.cfg.Model, text)
			if err != nil {
				logger.Warnf("embedding cache get failed: %v", err)
			} else if ok {
				vectors[i] = cached
				continue
			}
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return vectors, nil
	}

	fetched, err := c.requestEmbeddings(ctx, missing)
	if err != nil {
		return nil, err
	}
	for i, vector := range fetched {
		vectors[missingIdx[i]] = vector
		if c.cache != nil {
			if err := c.cache.Set(ctx, c.cfg.Model, missing[i], vector); err != nil {
				logger.Warnf("embedding cache set failed: %v", err)
			}
		}
	}
	return vectors, nil
}

func (c *openAICompatibleClient) requestEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := map[string]interface{}{
		"model": c.cfg.Model,
		"input": texts,
	}
	if c.cfg.Dimensions > 0 {
		reqBody["dimensions"] = c.cfg.Dimensions
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request failed: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build embedding request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding response status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse embedding json failed: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: asked %d got %d", len(texts), len(parsed.Data))
	}

	vectors := make([][]float32, len(parsed.Data))
	for i := range parsed.Data {
		vector := parsed.Data[i].Embedding
		if c.cfg.Dimensions > 0 && len(vector) != c.cfg.Dimensions {
			return nil, fmt.Errorf("embedding dimension mismatch: want %d got %d", c.cfg.Dimensions, len(vector))
		}
		vectors[i] = vector
	}
	return vectors, nil
}
