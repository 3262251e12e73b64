package retrieval

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// GrobidConfig configures the PDF extraction service.
type GrobidConfig struct {
	BaseURL string        `json:"base_url"`
	Timeout time.Duration `json:"timeout"`
	// MaxPdfSize bounds how much of a PDF is downloaded before extraction.
	MaxPdfSize int64 `json:"max_pdf_size"`
}

// DefaultGrobidConfig returns defaults for a local GROBID instance.
func DefaultGrobidConfig() *GrobidConfig {
	return &GrobidConfig{
		BaseURL:    "http://localhost:8070",
		Timeout:    120 * time.Second,
		MaxPdfSize: 20 * 1024 * 1024,
	}
}

// GrobidClient turns open-access PDFs into body text via a GROBID service.
type GrobidClient struct {
	config     *GrobidConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewGrobidClient creates a PDF extraction client.
func NewGrobidClient(config *GrobidConfig, logger *logrus.Logger) *GrobidClient {
	if config == nil {
		config = DefaultGrobidConfig()
	}
	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}
	if config.MaxPdfSize <= 0 {
		config.MaxPdfSize = 20 * 1024 * 1024
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &GrobidClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
	}
}

// BodyText downloads the PDF and returns the extracted body text, empty when
// the document yields none.
func (c *GrobidClient) BodyText(ctx context.Context, pdfURL string) (string, error) {
	pdf, err := c.downloadPdf(ctx, pdfURL)
	if err != nil {
		return "", err
	}

	tei, err := c.processFulltext(ctx, pdf)
	if err != nil {
		return "", err
	}

	return extractTEIBody(tei), nil
}

func (c *GrobidClient) downloadPdf(ctx context.Context, pdfURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pdf download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pdf download returned status %d", resp.StatusCode)
	}

	pdf, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxPdfSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf: %w", err)
	}

	return pdf, nil
}

func (c *GrobidClient) processFulltext(ctx context.Context, pdf []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("input", "paper.pdf")
	if err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}
	if _, err := part.Write(pdf); err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/processFulltextDocument", c.config.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("extraction returned status %d: %s", resp.StatusCode, string(body))
	}

	tei, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read extraction result: %w", err)
	}

	c.logger.WithField("bytes", len(tei)).Debug("PDF processed")
	return tei, nil
}

// extractTEIBody pulls paragraph text out of the TEI result's body element.
func extractTEIBody(tei []byte) string {
	decoder := xml.NewDecoder(bytes.NewReader(tei))

	var (
		paragraphs []string
		inBody     bool
		depth      int
		current    strings.Builder
	)

	for {
		token, err := decoder.Token()
		if err != nil {
			break
		}

		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == "body" {
				inBody = true
			} else if inBody && t.Name.Local == "p" {
				depth++
			}
		case xml.EndElement:
			if t.Name.Local == "body" {
				inBody = false
			} else if inBody && t.Name.Local == "p" && depth > 0 {
				depth--
				if depth == 0 {
					if p := strings.TrimSpace(current.String()); p != "" {
						paragraphs = append(paragraphs, p)
					}
					current.Reset()
				}
			}
		case xml.CharData:
			if inBody && depth > 0 {
				current.WriteString(string(t))
			}
		}
	}

	return strings.Join(paragraphs, "\n")
}
