// Package rerank scores query-document pairs with a cross-encoder model and
// keeps the top-ranked context for suggestion generation.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"processlens/internal/models"
)

// Config configures the cross-encoder reranker.
type Config struct {
	// Model name for the cross-encoder
	Model string `json:"model"`
	// Endpoint for the scoring API
	Endpoint string `json:"endpoint"`
	// APIKey for authentication
	APIKey string `json:"api_key"`
	// Timeout for requests
	Timeout time.Duration `json:"timeout"`
	// BatchSize for batching scoring requests
	BatchSize int `json:"batch_size"`
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		Model:     "cross-encoder/ms-marco-MiniLM-L-6-v2",
		Timeout:   30 * time.Second,
		BatchSize: 32,
	}
}

// CrossEncoder reranks retrieved chunks by scoring each (query, chunk) pair.
type CrossEncoder struct {
	config     *Config
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewCrossEncoder creates a cross-encoder reranker.
func NewCrossEncoder(config *Config, logger *logrus.Logger) *CrossEncoder {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 32
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &CrossEncoder{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
	}
}

// Rerank scores every document against the query and returns the topK best,
// best first. Ties keep the input order, so reranking is deterministic for a
// fixed score assignment. A failed scoring batch falls back to the documents'
// retrieval scores; the call itself never fails.
func (r *CrossEncoder) Rerank(ctx context.Context, query string, docs []models.Document, topK int) []models.Document {
	if len(docs) == 0 || topK <= 0 {
		return nil
	}

	ranked := make([]models.Document, len(docs))
	copy(ranked, docs)

	if r.config.Endpoint == "" {
		r.overlapScores(query, ranked)
	} else {
		r.crossEncoderScores(ctx, query, ranked)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}

// crossEncoderScores overwrites each document's score with the cross-encoder
// relevance for (query, content), batch by batch. Batches that fail keep
// their retrieval scores.
func (r *CrossEncoder) crossEncoderScores(ctx context.Context, query string, docs []models.Document) {
	pairs := make([][2]string, len(docs))
	for i, doc := range docs {
		pairs[i] = [2]string{query, doc.Content}
	}

	for start := 0; start < len(pairs); start += r.config.BatchSize {
		end := start + r.config.BatchSize
		if end > len(pairs) {
			end = len(pairs)
		}

		scores, err := r.scoreBatch(ctx, pairs[start:end])
		if err != nil || len(scores) != end-start {
			r.logger.WithError(err).Warn("Cross-encoder batch failed, keeping retrieval scores")
			continue
		}

		for i, score := range scores {
			docs[start+i].Score = score
		}
	}
}

func (r *CrossEncoder) scoreBatch(ctx context.Context, pairs [][2]string) ([]float64, error) {
	reqBody := map[string]interface{}{
		"model": r.config.Model,
		"pairs": pairs,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.Endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if r.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.config.APIKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("reranker returned status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Scores []float64 `json:"scores"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return result.Scores, nil
}

// overlapScores blends retrieval score with keyword overlap when no scoring
// endpoint is configured.
func (r *CrossEncoder) overlapScores(query string, docs []models.Document) {
	queryWords := wordFrequencies(query)
	for i := range docs {
		overlap := overlapRatio(queryWords, wordFrequencies(docs[i].Content))
		docs[i].Score = docs[i].Score*0.7 + overlap*0.3
	}
}

func wordFrequencies(text string) map[string]int {
	words := make(map[string]int)
	word := ""
	for _, r := range text {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			word += string(r)
		} else if word != "" {
			words[word]++
			word = ""
		}
	}
	if word != "" {
		words[word]++
	}
	return words
}

func overlapRatio(query, doc map[string]int) float64 {
	if len(query) == 0 || len(doc) == 0 {
		return 0
	}

	overlap := 0
	for word := range query {
		if _, exists := doc[word]; exists {
			overlap++
		}
	}

	return float64(overlap) / float64(len(query))
}
