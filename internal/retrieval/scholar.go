package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

// scholarBatchLimit is the bibliographic API's per-request id cap. Larger
// requests are rejected outright, so lookups are chunked to stay under it.
const scholarBatchLimit = 500

// paperFields are the metadata fields requested for every paper.
const paperFields = "tldr,openAccessPdf,title,corpusId,isOpenAccess"

// Paper is the bibliographic record for one indexed abstract.
type Paper struct {
	CorpusID     int64  `json:"corpusId"`
	Title        string `json:"title"`
	IsOpenAccess bool   `json:"isOpenAccess"`
	Tldr         *struct {
		Text string `json:"text"`
	} `json:"tldr"`
	OpenAccessPdf *struct {
		URL string `json:"url"`
	} `json:"openAccessPdf"`
}

// PdfURL returns the open-access PDF location, or empty when the paper is
// paywalled or has no PDF on record.
func (p *Paper) PdfURL() string {
	if !p.IsOpenAccess || p.OpenAccessPdf == nil {
		return ""
	}
	return p.OpenAccessPdf.URL
}

// ScholarConfig configures the bibliographic API client.
type ScholarConfig struct {
	BaseURL string        `json:"base_url"`
	APIKey  string        `json:"api_key,omitempty"`
	Timeout time.Duration `json:"timeout"`
}

// DefaultScholarConfig returns defaults for the public Semantic Scholar API.
func DefaultScholarConfig() *ScholarConfig {
	return &ScholarConfig{
		BaseURL: "https://api.semanticscholar.org/graph/v1",
		Timeout: 60 * time.Second,
	}
}

// ScholarClient looks up paper metadata in batches.
type ScholarClient struct {
	config     *ScholarConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewScholarClient creates a bibliographic API client.
func NewScholarClient(config *ScholarConfig, logger *logrus.Logger) *ScholarClient {
	if config == nil {
		config = DefaultScholarConfig()
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &ScholarClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
	}
}

// PapersByCorpusID fetches metadata for the given corpus ids, chunking
// requests to the API's batch limit. The result maps corpus id to record;
// ids the API does not know are absent.
func (c *ScholarClient) PapersByCorpusID(ctx context.Context, corpusIDs []int64) (map[int64]*Paper, error) {
	papers := make(map[int64]*Paper, len(corpusIDs))

	for start := 0; start < len(corpusIDs); start += scholarBatchLimit {
		end := start + scholarBatchLimit
		if end > len(corpusIDs) {
			end = len(corpusIDs)
		}

		batch, err := c.paperBatch(ctx, corpusIDs[start:end])
		if err != nil {
			return nil, err
		}
		for _, paper := range batch {
			if paper != nil {
				papers[paper.CorpusID] = paper
			}
		}
	}

	return papers, nil
}

func (c *ScholarClient) paperBatch(ctx context.Context, corpusIDs []int64) ([]*Paper, error) {
	ids := make([]string, len(corpusIDs))
	for i, id := range corpusIDs {
		ids[i] = fmt.Sprintf("CorpusId:%d", id)
	}

	jsonBody, err := json.Marshal(map[string]interface{}{"ids": ids})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/paper/batch?fields=%s", c.config.BaseURL, url.QueryEscape(paperFields))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("x-api-key", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("paper batch returned status %d: %s", resp.StatusCode, string(body))
	}

	// Unknown ids come back as JSON null, preserving batch positions.
	var papers []*Paper
	if err := json.NewDecoder(resp.Body).Decode(&papers); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"requested": len(ids),
		"returned":  len(papers),
	}).Debug("Paper batch fetched")

	return papers, nil
}
