// Package embedding provides the sentence embedding models the pipeline uses:
// one for vector search against the indexed collections and a separate one for
// batch-wide weakness clustering. Both are served over HTTP, either by a
// HuggingFace-style inference endpoint or by an OpenAI-compatible API.
package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Model generates dense vector embeddings for texts.
type Model interface {
	// Name returns the model identifier
	Name() string
	// Dimension returns the embedding dimension
	Dimension() int
	// Embed generates an embedding for a single text
	Embed(ctx context.Context, text string) ([]float64, error)
	// EmbedBatch generates embeddings for multiple texts, order-preserving
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// Provider selects the serving API shape.
type Provider string

const (
	ProviderHuggingFace Provider = "huggingface"
	ProviderOpenAI      Provider = "openai"
)

// Model names used by the pipeline defaults.
const (
	SearchModelName  = "sentence-transformers/all-MiniLM-L6-v2"
	ClusterModelName = "sentence-transformers/all-mpnet-base-v2"
)

// Config configures an embedding model.
type Config struct {
	Provider     Provider      `json:"provider"`
	ModelName    string        `json:"model_name"`
	APIKey       string        `json:"api_key,omitempty"`
	BaseURL      string        `json:"base_url,omitempty"`
	Timeout      time.Duration `json:"timeout"`
	CacheEnabled bool          `json:"cache_enabled"`
	CacheSize    int           `json:"cache_size"`
}

// DefaultConfig returns defaults for the given provider.
func DefaultConfig(provider Provider) Config {
	config := Config{
		Provider:     provider,
		Timeout:      30 * time.Second,
		CacheEnabled: true,
		CacheSize:    10000,
	}

	switch provider {
	case ProviderHuggingFace:
		config.ModelName = SearchModelName
		config.BaseURL = "https://api-inference.huggingface.co/models"
	case ProviderOpenAI:
		config.ModelName = "text-embedding-3-small"
		config.BaseURL = "https://api.openai.com/v1"
	}

	return config
}

// New creates an embedding model from config.
func New(config Config) (Model, error) {
	switch config.Provider {
	case ProviderHuggingFace:
		return NewHuggingFaceModel(config), nil
	case ProviderOpenAI:
		return NewOpenAIModel(config), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", config.Provider)
	}
}

// HuggingFaceModel serves sentence-transformers models through a
// HuggingFace-style inference endpoint.
type HuggingFaceModel struct {
	config     Config
	httpClient *http.Client
	dimension  int
	cache      *Cache
}

// NewHuggingFaceModel creates a HuggingFace-served embedding model.
func NewHuggingFaceModel(config Config) *HuggingFaceModel {
	dimension := 768
	switch {
	case strings.Contains(config.ModelName, "MiniLM-L6"):
		dimension = 384
	case strings.Contains(config.ModelName, "mpnet-base"):
		dimension = 768
	case strings.Contains(config.ModelName, "bge-m3"):
		dimension = 1024
	}

	model := &HuggingFaceModel{
		config:    config,
		dimension: dimension,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}

	if config.CacheEnabled {
		model.cache = NewCache(config.CacheSize)
	}

	return model
}

// Name returns the model identifier.
func (m *HuggingFaceModel) Name() string {
	return fmt.Sprintf("huggingface/%s", m.config.ModelName)
}

// Dimension returns the embedding dimension.
func (m *HuggingFaceModel) Dimension() int {
	return m.dimension
}

// Embed generates an embedding for a single text.
func (m *HuggingFaceModel) Embed(ctx context.Context, text string) ([]float64, error) {
	if m.cache != nil {
		if cached, ok := m.cache.Get(text); ok {
			return cached, nil
		}
	}

	embeddings, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	if m.cache != nil {
		m.cache.Set(text, embeddings[0])
	}

	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts.
func (m *HuggingFaceModel) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := map[string]interface{}{
		"inputs": texts,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/%s", m.config.BaseURL, m.config.ModelName),
		strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if m.config.APIKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", m.config.APIKey))
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding API error: %s - %s", resp.Status, string(respBody))
	}

	var embeddings [][]float64
	if err := json.NewDecoder(resp.Body).Decode(&embeddings); err != nil {
		return nil, err
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d for %d texts", len(embeddings), len(texts))
	}

	return embeddings, nil
}

// OpenAIModel serves embeddings through an OpenAI-compatible API.
type OpenAIModel struct {
	config     Config
	httpClient *http.Client
	dimension  int
	cache      *Cache
}

// NewOpenAIModel creates an OpenAI-served embedding model.
func NewOpenAIModel(config Config) *OpenAIModel {
	dimension := 1536
	switch config.ModelName {
	case "text-embedding-3-large":
		dimension = 3072
	case "text-embedding-3-small", "text-embedding-ada-002":
		dimension = 1536
	}

	model := &OpenAIModel{
		config:    config,
		dimension: dimension,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}

	if config.CacheEnabled {
		model.cache = NewCache(config.CacheSize)
	}

	return model
}

// Name returns the model identifier.
func (m *OpenAIModel) Name() string {
	return fmt.Sprintf("openai/%s", m.config.ModelName)
}

// Dimension returns the embedding dimension.
func (m *OpenAIModel) Dimension() int {
	return m.dimension
}

// Embed generates an embedding for a single text.
func (m *OpenAIModel) Embed(ctx context.Context, text string) ([]float64, error) {
	if m.cache != nil {
		if cached, ok := m.cache.Get(text); ok {
			return cached, nil
		}
	}

	embeddings, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	if m.cache != nil {
		m.cache.Set(text, embeddings[0])
	}

	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts.
func (m *OpenAIModel) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := map[string]interface{}{
		"input": texts,
		"model": m.config.ModelName,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/embeddings", m.config.BaseURL),
		strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", m.config.APIKey))

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding API error: %s - %s", resp.Status, string(respBody))
	}

	var result struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d for %d texts", len(result.Data), len(texts))
	}

	embeddings := make([][]float64, len(result.Data))
	for i, item := range result.Data {
		embeddings[i] = item.Embedding
	}

	return embeddings, nil
}

// Cache memoizes embeddings by text. Eviction is arbitrary single-entry;
// the batch workload re-embeds identical weakness texts often enough that
// exactness matters more than recency.
type Cache struct {
	cache   map[string][]float64
	maxSize int
	mu      sync.RWMutex
}

// NewCache creates an embedding cache.
func NewCache(maxSize int) *Cache {
	return &Cache{
		cache:   make(map[string][]float64),
		maxSize: maxSize,
	}
}

// Get retrieves an embedding from the cache.
func (c *Cache) Get(key string) ([]float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	emb, ok := c.cache[key]
	return emb, ok
}

// Set stores an embedding in the cache.
func (c *Cache) Set(key string, embedding []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.cache) >= c.maxSize {
		for k := range c.cache {
			delete(c.cache, k)
			break
		}
	}

	c.cache[key] = embedding
}

// Size returns the current cache size.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
