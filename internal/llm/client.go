// Package llm wraps an OpenAI-compatible chat-completion API behind the small
// surface the pipeline needs: deterministic, JSON-mode completions over a
// role-tagged message history.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"processlens/internal/concurrency"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1/chat/completions"
	DefaultModel   = "gpt-4-0125-preview"
)

// Roles understood by the chat API.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged entry of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config configures the client.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	// RequestsPerSecond caps outbound completion requests, including
	// retries. Zero disables the cap.
	RequestsPerSecond int
}

// Client talks to an OpenAI-compatible chat-completions endpoint. Every
// request is sent with temperature zero and the json_object response format;
// the pipeline relies on both for reproducible, schema-constrained output.
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *concurrency.RateLimiter
	logger     *logrus.Logger
}

// NewClient creates a chat-completion client.
func NewClient(config Config, logger *logrus.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}

	var limiter *concurrency.RateLimiter
	if config.RequestsPerSecond > 0 {
		limiter = concurrency.NewRateLimiter(config.RequestsPerSecond)
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: limiter,
		logger:  logger,
	}
}

// Close stops the rate limiter's refill goroutine.
func (c *Client) Close() {
	if c.limiter != nil {
		c.limiter.Stop()
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.config.Model
}

type apiRequest struct {
	Model          string         `json:"model"`
	Messages       []Message      `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type apiResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete sends the message history and returns the assistant's reply text.
// The reply is expected, not guaranteed, to be JSON; schema handling lives in
// the structured subpackage.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	reqBody := apiRequest{
		Model:          c.config.Model,
		Messages:       messages,
		Temperature:    0,
		ResponseFormat: responseFormat{Type: "json_object"},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	body, err := c.doWithRetry(ctx, jsonBody)
	if err != nil {
		return "", err
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	c.logger.WithFields(logrus.Fields{
		"model":  c.config.Model,
		"tokens": resp.Usage.TotalTokens,
	}).Debug("Completion received")

	return resp.Choices[0].Message.Content, nil
}

// doWithRetry posts the request with exponential backoff on retryable
// failures. The request body is re-sent from the buffered bytes on each
// attempt.
func (c *Client) doWithRetry(ctx context.Context, jsonBody []byte) ([]byte, error) {
	delay := time.Second
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > 30*time.Second {
				delay = 30 * time.Second
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Acquire(ctx); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL, bytes.NewReader(jsonBody))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			c.logger.WithError(err).Warn("Completion request failed, retrying")
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			if readErr != nil {
				return nil, fmt.Errorf("failed to read response: %w", readErr)
			}
			return body, nil
		}

		lastErr = fmt.Errorf("API error: %d - %s", resp.StatusCode, string(body))
		if !isRetryableStatus(resp.StatusCode) {
			return nil, lastErr
		}
		c.logger.WithField("status", resp.StatusCode).Warn("Retryable API error")
	}

	return nil, fmt.Errorf("all %d attempts failed: %w", c.config.MaxRetries+1, lastErr)
}

func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
