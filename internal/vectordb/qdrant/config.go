package qdrant

import (
	"fmt"
	"time"
)

// Config configures the Qdrant connection.
type Config struct {
	Host           string        `json:"host"`
	HTTPPort       int           `json:"http_port"`
	APIKey         string        `json:"api_key,omitempty"`
	UseTLS         bool          `json:"use_tls"`
	Timeout        time.Duration `json:"timeout"`
	DefaultLimit   int           `json:"default_limit"`
	ScoreThreshold float32       `json:"score_threshold"`
}

// DefaultConfig returns a configuration for a local Qdrant instance.
func DefaultConfig() *Config {
	return &Config{
		Host:         "localhost",
		HTTPPort:     6333,
		Timeout:      30 * time.Second,
		DefaultLimit: 10,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.DefaultLimit < 1 {
		return fmt.Errorf("default_limit must be positive")
	}
	return nil
}

// GetHTTPURL returns the base URL for the REST API.
func (c *Config) GetHTTPURL() string {
	scheme := "http"
	if c.UseTLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.HTTPPort)
}

// Distance is the similarity metric of a collection.
type Distance string

const (
	DistanceCosine    Distance = "Cosine"
	DistanceEuclidean Distance = "Euclid"
	DistanceDot       Distance = "Dot"
)

// CollectionConfig describes a collection to create.
type CollectionConfig struct {
	Name       string   `json:"name"`
	VectorSize int      `json:"vector_size"`
	Distance   Distance `json:"distance"`
}

// Validate checks the collection configuration.
func (c *CollectionConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("collection name is required")
	}
	if c.VectorSize < 1 {
		return fmt.Errorf("vector_size must be positive")
	}
	switch c.Distance {
	case DistanceCosine, DistanceEuclidean, DistanceDot:
		return nil
	default:
		return fmt.Errorf("unknown distance metric: %s", c.Distance)
	}
}

// SearchOptions tunes a similarity search.
type SearchOptions struct {
	Limit          int                    `json:"limit"`
	ScoreThreshold float32                `json:"score_threshold,omitempty"`
	WithPayload    bool                   `json:"with_payload"`
	Filter         map[string]interface{} `json:"filter,omitempty"`
}

// DefaultSearchOptions returns options retrieving payloads for the top ten
// matches.
func DefaultSearchOptions() *SearchOptions {
	return &SearchOptions{
		Limit:       10,
		WithPayload: true,
	}
}
