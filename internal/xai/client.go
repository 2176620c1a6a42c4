// Package xai talks to the xAI chat completions API with X live search enabled.
package xai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wallet-x-search/internal/version"
)

const (
	chatCompletionsPath = "/chat/completions"
	defaultBaseURL      = "https://api.x.ai/v1"
	defaultModel        = "grok-4-fast"
)

// Options parameterise the client.
type Options struct {
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	UserAgent string
	// Sources lists the live-search source types, "x" when empty.
	Sources []string
}

// Client issues single-turn chat requests with live search.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs a Client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if len(opts.Sources) == 0 {
		opts.Sources = []string{"x"}
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "xai_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Model returns the model identifier sent with every request.
func (c *Client) Model() string { return c.opts.Model }

// Search sends query as a user message and returns the assistant's text.
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	if c.opts.APIKey == "" {
		return "", errors.New("xai api key not configured")
	}

	sources := make([]searchSource, 0, len(c.opts.Sources))
	for _, s := range c.opts.Sources {
		sources = append(sources, searchSource{Type: s})
	}

	body, err := json.Marshal(chatRequest{
		Model:    c.opts.Model,
		Messages: []chatMessage{{Role: "user", Content: query}},
		SearchParameters: searchParameters{
			Mode:    "on",
			Sources: sources,
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatCompletionsPath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", version.UserAgent())
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", parseHTTPError(resp.StatusCode, payload)
	}

	var res chatResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", errors.New("chat response contained no choices")
	}

	c.logger.Debug().
		Int("prompt_tokens", res.Usage.PromptTokens).
		Int("completion_tokens", res.Usage.CompletionTokens).
		Int("sources_used", res.Usage.NumSourcesUsed).
		Msg("search completed")

	return res.Choices[0].Message.Content, nil
}

type chatRequest struct {
	Model            string           `json:"model"`
	Messages         []chatMessage    `json:"messages"`
	SearchParameters searchParameters `json:"search_parameters"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type searchParameters struct {
	Mode    string         `json:"mode"`
	Sources []searchSource `json:"sources,omitempty"`
}

type searchSource struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		NumSourcesUsed   int `json:"num_sources_used"`
	} `json:"usage"`
}

// APIError is a non-200 response from the API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("xai api error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("xai api error (%d)", e.Status)
}

// StatusCode exposes the HTTP status for quota classification.
func (e *APIError) StatusCode() int { return e.Status }

func parseHTTPError(status int, payload []byte) error {
	apiErr := &APIError{Status: status}

	var flat struct {
		Code  string `json:"code"`
		Error string `json:"error"`
	}
	var nested struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	switch {
	case json.Unmarshal(payload, &flat) == nil && flat.Error != "":
		apiErr.Code = flat.Code
		apiErr.Message = flat.Error
	case json.Unmarshal(payload, &nested) == nil && nested.Error.Message != "":
		apiErr.Code = nested.Error.Code
		if apiErr.Code == "" {
			apiErr.Code = nested.Error.Type
		}
		apiErr.Message = nested.Error.Message
	default:
		apiErr.Message = strings.TrimSpace(string(payload))
	}
	return apiErr
}
