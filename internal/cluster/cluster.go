// Package cluster groups near-duplicate weakness statements batch-wide so
// downstream retrieval and generation run once per distinct weakness theme.
//
// Communities are found by threshold-based community detection over cosine
// similarity: every embedding whose neighborhood (itself included) reaches the
// minimum size seeds a candidate community, candidates claim members greedily
// from the largest down, and whatever remains unassigned keeps the sentinel.
package cluster

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"processlens/internal/embedding"
	"processlens/internal/models"
)

// Config tunes community detection.
type Config struct {
	// Threshold is the minimum cosine similarity for two weaknesses to be
	// considered neighbors.
	Threshold float64 `json:"threshold"`
	// MinCommunitySize is the smallest neighborhood that forms a cluster.
	// A weakness with fewer neighbors keeps the sentinel assignment.
	MinCommunitySize int `json:"min_community_size"`
}

// DefaultConfig returns the tuning the pipeline ships with.
func DefaultConfig() *Config {
	return &Config{
		Threshold:        0.75,
		MinCommunitySize: 2,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Threshold < -1 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be within [-1, 1]")
	}
	if c.MinCommunitySize < 1 {
		return fmt.Errorf("min_community_size must be positive")
	}
	return nil
}

// Clusterer embeds weakness texts and assigns cluster identifiers.
type Clusterer struct {
	config *Config
	model  embedding.Model
	logger *logrus.Logger
}

// New creates a clusterer over the given embedding model.
func New(config *Config, model embedding.Model, logger *logrus.Logger) (*Clusterer, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Clusterer{
		config: config,
		model:  model,
		logger: logger,
	}, nil
}

// Assign embeds every weakness text and writes cluster identifiers in place:
// 0..k-1 for detected communities, the sentinel for the remainder. The slice
// is mutated, never reordered. An embedding failure leaves every weakness on
// the sentinel; the batch continues without deduplication.
func (c *Clusterer) Assign(ctx context.Context, weaknesses []models.Weakness) {
	for i := range weaknesses {
		weaknesses[i].Cluster = models.SentinelCluster
	}

	if len(weaknesses) == 0 {
		return
	}

	texts := make([]string, len(weaknesses))
	for i, w := range weaknesses {
		texts[i] = w.Text
	}

	embeddings, err := c.model.EmbedBatch(ctx, texts)
	if err != nil {
		c.logger.WithError(err).Warn("Weakness embedding failed, skipping deduplication")
		return
	}

	communities := Detect(embeddings, c.config.Threshold, c.config.MinCommunitySize)
	for id, members := range communities {
		for _, member := range members {
			weaknesses[member].Cluster = id
		}
	}

	c.logger.WithFields(logrus.Fields{
		"weaknesses": len(weaknesses),
		"clusters":   len(communities),
	}).Info("Weaknesses clustered")
}

// Detect finds disjoint communities among the embeddings. Community i of the
// result holds the ascending member indexes of cluster id i. Candidates are
// ranked by neighborhood size descending, seed index ascending, making the
// outcome deterministic for a fixed input order.
func Detect(embeddings [][]float64, threshold float64, minSize int) [][]int {
	n := len(embeddings)
	if n == 0 {
		return nil
	}
	if minSize < 1 {
		minSize = 1
	}

	norms := make([]float64, n)
	for i, e := range embeddings {
		norms[i] = vectorNorm(e)
	}

	type candidate struct {
		seed      int
		neighbors []int
	}

	var candidates []candidate
	for i := 0; i < n; i++ {
		var neighbors []int
		for j := 0; j < n; j++ {
			if cosine(embeddings[i], embeddings[j], norms[i], norms[j]) >= threshold {
				neighbors = append(neighbors, j)
			}
		}
		if len(neighbors) >= minSize {
			candidates = append(candidates, candidate{seed: i, neighbors: neighbors})
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		if len(candidates[a].neighbors) != len(candidates[b].neighbors) {
			return len(candidates[a].neighbors) > len(candidates[b].neighbors)
		}
		return candidates[a].seed < candidates[b].seed
	})

	assigned := make([]bool, n)
	var communities [][]int
	for _, cand := range candidates {
		if assigned[cand.seed] {
			continue
		}

		var members []int
		for _, j := range cand.neighbors {
			if !assigned[j] {
				members = append(members, j)
			}
		}
		if len(members) < minSize {
			continue
		}

		for _, j := range members {
			assigned[j] = true
		}
		communities = append(communities, members)
	}

	return communities
}

func vectorNorm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float64, normA, normB float64) float64 {
	if normA == 0 || normB == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot / (normA * normB)
}
