package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	"processlens/internal/models"
)

// WebConfig configures the web search source.
type WebConfig struct {
	// SearchURL is the search API endpoint.
	SearchURL string `json:"search_url"`
	// APIKey authenticates against the search API.
	APIKey string `json:"api_key"`
	// UserAgent identifies the crawler to searched sites.
	UserAgent string `json:"user_agent"`
	// Timeout bounds search and page fetches.
	Timeout time.Duration `json:"timeout"`
	// MaxPageSize bounds how much of a page is read.
	MaxPageSize int64 `json:"max_page_size"`
}

// DefaultWebConfig returns defaults for the Brave search API.
func DefaultWebConfig() *WebConfig {
	return &WebConfig{
		SearchURL:   "https://api.search.brave.com/res/v1/web/search",
		UserAgent:   "processlens/1.0",
		Timeout:     30 * time.Second,
		MaxPageSize: 5 * 1024 * 1024,
	}
}

// WebSource retrieves page text from live web search results. PDFs are
// excluded at query time since page extraction only handles HTML.
type WebSource struct {
	config     *WebConfig
	httpClient *http.Client
	robots     *RobotsChecker
	logger     *logrus.Logger
}

// NewWebSource creates a web search source.
func NewWebSource(config *WebConfig, logger *logrus.Logger) *WebSource {
	if config == nil {
		config = DefaultWebConfig()
	}
	if config.UserAgent == "" {
		config.UserAgent = "processlens/1.0"
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxPageSize <= 0 {
		config.MaxPageSize = 5 * 1024 * 1024
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &WebSource{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		robots: NewRobotsChecker(config.UserAgent, config.Timeout),
		logger: logger,
	}
}

// Name identifies the source.
func (s *WebSource) Name() string {
	return "web"
}

// Retrieve searches the web and returns the text of up to limit result
// pages. Pages disallowed by robots.txt and pages that fail to fetch or
// yield no text are skipped, not replaced.
func (s *WebSource) Retrieve(ctx context.Context, query string, limit int) ([]models.Document, error) {
	results, err := s.search(ctx, query+" -filetype:pdf", limit)
	if err != nil {
		return nil, err
	}

	var docs []models.Document
	for _, result := range results {
		if len(docs) >= limit {
			break
		}

		if !s.robots.Allowed(ctx, result.URL) {
			s.logger.WithField("url", result.URL).Debug("Page disallowed by robots.txt")
			continue
		}

		text, err := s.fetchPageText(ctx, result.URL)
		if err != nil {
			s.logger.WithError(err).WithField("url", result.URL).Debug("Page fetch failed")
			continue
		}
		if text == "" {
			continue
		}

		docs = append(docs, models.Document{
			Content:    text,
			SourceID:   result.URL,
			Provenance: models.ProvenanceWeb,
		})
	}

	return docs, nil
}

type webResult struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// searchPageSize is the search API's per-request result cap.
const searchPageSize = 10

// search pages through results until limit is reached or the API runs dry.
// A failure on a follow-up page keeps the results gathered so far.
func (s *WebSource) search(ctx context.Context, query string, limit int) ([]webResult, error) {
	var results []webResult
	for page := 0; len(results) < limit; page++ {
		count := limit - len(results)
		if count > searchPageSize {
			count = searchPageSize
		}

		pageResults, err := s.searchPage(ctx, query, count, page)
		if err != nil {
			if page == 0 {
				return nil, err
			}
			s.logger.WithError(err).WithField("page", page).Warn("Search page failed, using partial results")
			break
		}

		results = append(results, pageResults...)
		if len(pageResults) < count {
			break
		}
	}
	return results, nil
}

func (s *WebSource) searchPage(ctx context.Context, query string, count, offset int) ([]webResult, error) {
	endpoint := fmt.Sprintf("%s?q=%s&count=%d&offset=%d", s.config.SearchURL, url.QueryEscape(query), count, offset)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", s.config.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("search returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Web struct {
			Results []webResult `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	return response.Web.Results, nil
}

func (s *WebSource) fetchPageText(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "html") {
		return "", fmt.Errorf("unsupported content type %q", contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.config.MaxPageSize))
	if err != nil {
		return "", fmt.Errorf("failed to read page: %w", err)
	}

	return ExtractText(string(body)), nil
}

// ExtractText strips an HTML page down to its visible text, dropping script,
// style and other non-content elements.
func ExtractText(content string) string {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return ""
	}

	skip := map[string]bool{
		"script":   true,
		"style":    true,
		"noscript": true,
		"head":     true,
		"iframe":   true,
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skip[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				sb.WriteString(text)
				sb.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.TrimSpace(sb.String())
}
