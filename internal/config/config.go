// Package config loads pipeline configuration from the environment, with an
// optional YAML overlay for deployment-specific settings. Misconfiguration
// that would leave a collaborator unreachable is reported by Validate at
// startup rather than per item.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Rerank    RerankConfig    `yaml:"rerank"`
	WebSearch WebSearchConfig `yaml:"web_search"`
	Papers    PapersConfig    `yaml:"papers"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

// LLMConfig configures the chat-completion provider used by every
// generation step.
type LLMConfig struct {
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RequestsPerSecond int           `yaml:"requests_per_second"`
}

// EmbeddingConfig configures the sentence-embedding service. Search and
// cluster embeddings may use different models; the cluster model drives
// community detection, the search model drives retrieval and indexing.
type EmbeddingConfig struct {
	Provider     string        `yaml:"provider"` // "openai" or "huggingface"
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	SearchModel  string        `yaml:"search_model"`
	ClusterModel string        `yaml:"cluster_model"`
	Timeout      time.Duration `yaml:"timeout"`
}

// QdrantConfig configures the vector store.
type QdrantConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	APIKey             string        `yaml:"api_key"`
	UseTLS             bool          `yaml:"use_tls"`
	Timeout            time.Duration `yaml:"timeout"`
	FeedbackCollection string        `yaml:"feedback_collection"`
	AbstractCollection string        `yaml:"abstract_collection"`
}

// RerankConfig configures the cross-encoder scoring service.
type RerankConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

// WebSearchConfig configures the web search service and page fetching.
type WebSearchConfig struct {
	APIKey          string        `yaml:"api_key"`
	BaseURL         string        `yaml:"base_url"`
	UserAgent       string        `yaml:"user_agent"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	MaxResponseSize int64         `yaml:"max_response_size"`
}

// PapersConfig configures the bibliographic metadata service and the
// full-text extraction service.
type PapersConfig struct {
	ScholarAPIKey  string        `yaml:"scholar_api_key"`
	ScholarBaseURL string        `yaml:"scholar_base_url"`
	GrobidURL      string        `yaml:"grobid_url"`
	Timeout        time.Duration `yaml:"timeout"`
}

// PipelineConfig holds the tunables of the suggestion pipeline itself.
type PipelineConfig struct {
	ClusterMinSize     int     `yaml:"cluster_min_size"`
	ClusterThreshold   float64 `yaml:"cluster_threshold"`
	ClusterMaxExamples int     `yaml:"cluster_max_examples"`
	RetrieveLimit      int     `yaml:"retrieve_limit"`
	RerankLimit        int     `yaml:"rerank_limit"`
	Workers            int     `yaml:"workers"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is honored when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		LLM: LLMConfig{
			APIKey:            getEnv("OPENAI_API_KEY", ""),
			BaseURL:           getEnv("LLM_BASE_URL", "https://api.openai.com/v1/chat/completions"),
			Model:             getEnv("LLM_MODEL", "gpt-4-0125-preview"),
			Timeout:           getDurationEnv("LLM_TIMEOUT", 60*time.Second),
			MaxRetries:        getIntEnv("LLM_MAX_RETRIES", 3),
			RequestsPerSecond: getIntEnv("LLM_REQUESTS_PER_SECOND", 8),
		},
		Embedding: EmbeddingConfig{
			Provider:     getEnv("EMBEDDING_PROVIDER", "huggingface"),
			APIKey:       getEnv("EMBEDDING_API_KEY", ""),
			BaseURL:      getEnv("EMBEDDING_BASE_URL", ""),
			SearchModel:  getEnv("SEARCH_EMBEDDING_MODEL", "sentence-transformers/all-MiniLM-L6-v2"),
			ClusterModel: getEnv("CLUSTER_EMBEDDING_MODEL", "sentence-transformers/all-mpnet-base-v2"),
			Timeout:      getDurationEnv("EMBEDDING_TIMEOUT", 30*time.Second),
		},
		Qdrant: QdrantConfig{
			Host:               getEnv("QDRANT_HOST", "localhost"),
			Port:               getIntEnv("QDRANT_PORT", 6333),
			APIKey:             getEnv("QDRANT_API_KEY", ""),
			UseTLS:             getBoolEnv("QDRANT_USE_TLS", false),
			Timeout:            getDurationEnv("QDRANT_TIMEOUT", 30*time.Second),
			FeedbackCollection: getEnv("FEEDBACK_COLLECTION", "tweet_collection"),
			AbstractCollection: getEnv("ABSTRACT_COLLECTION", "abstract_collection"),
		},
		Rerank: RerankConfig{
			Endpoint: getEnv("RERANK_ENDPOINT", ""),
			Model:    getEnv("RERANK_MODEL", "cross-encoder/ms-marco-MiniLM-L-6-v2"),
			APIKey:   getEnv("RERANK_API_KEY", ""),
			Timeout:  getDurationEnv("RERANK_TIMEOUT", 30*time.Second),
		},
		WebSearch: WebSearchConfig{
			APIKey:          getEnv("WEBSEARCH_API_KEY", ""),
			BaseURL:         getEnv("WEBSEARCH_BASE_URL", "https://api.search.brave.com/res/v1"),
			UserAgent:       getEnv("FETCH_USER_AGENT", "ProcessLens-Fetch/1.0"),
			FetchTimeout:    getDurationEnv("FETCH_TIMEOUT", 5*time.Second),
			MaxResponseSize: getInt64Env("FETCH_MAX_RESPONSE_SIZE", 10*1024*1024),
		},
		Papers: PapersConfig{
			ScholarAPIKey:  getEnv("SCHOLAR_API_KEY", ""),
			ScholarBaseURL: getEnv("SCHOLAR_BASE_URL", "https://api.semanticscholar.org/graph/v1"),
			GrobidURL:      getEnv("GROBID_URL", "http://localhost:8070"),
			Timeout:        getDurationEnv("PAPERS_TIMEOUT", 30*time.Second),
		},
		Pipeline: PipelineConfig{
			ClusterMinSize:     getIntEnv("CLUSTER_MIN_SIZE", 1),
			ClusterThreshold:   getFloatEnv("CLUSTER_THRESHOLD", 0.75),
			ClusterMaxExamples: getIntEnv("CLUSTER_MAX_EXAMPLES", 10),
			RetrieveLimit:      getIntEnv("RETRIEVE_LIMIT", 10),
			RerankLimit:        getIntEnv("RERANK_LIMIT", 10),
			Workers:            getIntEnv("PIPELINE_WORKERS", 4),
		},
	}
}

// ApplyFile overlays settings from a YAML file on top of the environment
// configuration. Zero values in the file leave the existing value untouched.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	overlay := &Config{}
	if err := yaml.Unmarshal(data, overlay); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	mergeConfig(c, overlay)
	return nil
}

// Validate checks that every collaborator the pipeline depends on is
// configured. It is the only fatal error path; everything past startup
// fails open.
func (c *Config) Validate() error {
	var missing []string

	if c.LLM.APIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if c.Qdrant.Host == "" {
		missing = append(missing, "QDRANT_HOST")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.Embedding.Provider != "openai" && c.Embedding.Provider != "huggingface" {
		return fmt.Errorf("unknown embedding provider: %q", c.Embedding.Provider)
	}
	if c.Pipeline.ClusterMinSize < 1 {
		return fmt.Errorf("cluster_min_size must be >= 1, got %d", c.Pipeline.ClusterMinSize)
	}
	if c.Pipeline.ClusterThreshold <= 0 || c.Pipeline.ClusterThreshold > 1 {
		return fmt.Errorf("cluster_threshold must be in (0, 1], got %v", c.Pipeline.ClusterThreshold)
	}
	if c.Pipeline.RetrieveLimit < 1 || c.Pipeline.RerankLimit < 1 {
		return fmt.Errorf("retrieve and rerank limits must be >= 1")
	}

	return nil
}

func mergeConfig(dst, src *Config) {
	mergeString(&dst.LLM.APIKey, src.LLM.APIKey)
	mergeString(&dst.LLM.BaseURL, src.LLM.BaseURL)
	mergeString(&dst.LLM.Model, src.LLM.Model)
	mergeDuration(&dst.LLM.Timeout, src.LLM.Timeout)
	mergeInt(&dst.LLM.MaxRetries, src.LLM.MaxRetries)
	mergeInt(&dst.LLM.RequestsPerSecond, src.LLM.RequestsPerSecond)

	mergeString(&dst.Embedding.Provider, src.Embedding.Provider)
	mergeString(&dst.Embedding.APIKey, src.Embedding.APIKey)
	mergeString(&dst.Embedding.BaseURL, src.Embedding.BaseURL)
	mergeString(&dst.Embedding.SearchModel, src.Embedding.SearchModel)
	mergeString(&dst.Embedding.ClusterModel, src.Embedding.ClusterModel)
	mergeDuration(&dst.Embedding.Timeout, src.Embedding.Timeout)

	mergeString(&dst.Qdrant.Host, src.Qdrant.Host)
	mergeInt(&dst.Qdrant.Port, src.Qdrant.Port)
	mergeString(&dst.Qdrant.APIKey, src.Qdrant.APIKey)
	mergeString(&dst.Qdrant.FeedbackCollection, src.Qdrant.FeedbackCollection)
	mergeString(&dst.Qdrant.AbstractCollection, src.Qdrant.AbstractCollection)
	mergeDuration(&dst.Qdrant.Timeout, src.Qdrant.Timeout)
	if src.Qdrant.UseTLS {
		dst.Qdrant.UseTLS = true
	}

	mergeString(&dst.Rerank.Endpoint, src.Rerank.Endpoint)
	mergeString(&dst.Rerank.Model, src.Rerank.Model)
	mergeString(&dst.Rerank.APIKey, src.Rerank.APIKey)
	mergeDuration(&dst.Rerank.Timeout, src.Rerank.Timeout)

	mergeString(&dst.WebSearch.APIKey, src.WebSearch.APIKey)
	mergeString(&dst.WebSearch.BaseURL, src.WebSearch.BaseURL)
	mergeString(&dst.WebSearch.UserAgent, src.WebSearch.UserAgent)
	mergeDuration(&dst.WebSearch.FetchTimeout, src.WebSearch.FetchTimeout)
	if src.WebSearch.MaxResponseSize > 0 {
		dst.WebSearch.MaxResponseSize = src.WebSearch.MaxResponseSize
	}

	mergeString(&dst.Papers.ScholarAPIKey, src.Papers.ScholarAPIKey)
	mergeString(&dst.Papers.ScholarBaseURL, src.Papers.ScholarBaseURL)
	mergeString(&dst.Papers.GrobidURL, src.Papers.GrobidURL)
	mergeDuration(&dst.Papers.Timeout, src.Papers.Timeout)

	mergeInt(&dst.Pipeline.ClusterMinSize, src.Pipeline.ClusterMinSize)
	if src.Pipeline.ClusterThreshold > 0 {
		dst.Pipeline.ClusterThreshold = src.Pipeline.ClusterThreshold
	}
	mergeInt(&dst.Pipeline.ClusterMaxExamples, src.Pipeline.ClusterMaxExamples)
	mergeInt(&dst.Pipeline.RetrieveLimit, src.Pipeline.RetrieveLimit)
	mergeInt(&dst.Pipeline.RerankLimit, src.Pipeline.RerankLimit)
	mergeInt(&dst.Pipeline.Workers, src.Pipeline.Workers)
}

func mergeString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

func mergeInt(dst *int, src int) {
	if src != 0 {
		*dst = src
	}
}

func mergeDuration(dst *time.Duration, src time.Duration) {
	if src != 0 {
		*dst = src
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
