package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"deepresearch/internal/errors"
	"deepresearch/internal/logging"
)

const defaultSearchTimeout = 30 * time.Second

// ExaConfig configures the Exa search client.
type ExaConfig struct {
	BaseURL    string
	APIKey     string
	NumResults int
	Timeout    time.Duration
}

// ExaClient implements Provider against the Exa search API, requesting page
// text inline with each hit.
type ExaClient struct {
	config     ExaConfig
	httpClient *http.Client
	logger     logging.Logger
}

// NewExaClient creates an Exa search client.
func NewExaClient(config ExaConfig, logger logging.Logger) *ExaClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.exa.ai"
	}
	if config.NumResults <= 0 {
		config.NumResults = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultSearchTimeout
	}
	return &ExaClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logging.OrNop(logger),
	}
}

type exaRequest struct {
	Query      string          `json:"query"`
	NumResults int             `json:"numResults"`
	Contents   exaContentsSpec `json:"contents"`
}

type exaContentsSpec struct {
	Text bool `json:"text"`
}

type exaResponse struct {
	Results []struct {
		Title         string `json:"title"`
		URL           string `json:"url"`
		PublishedDate string `json:"publishedDate"`
		Text          string `json:"text"`
	} `json:"results"`
}

// Search runs one query and returns hits with inline content where Exa
// supplied it.
func (c *ExaClient) Search(ctx context.Context, query string) ([]Result, error) {
	body, err := json.Marshal(exaRequest{
		Query:      query,
		NumResults: c.config.NumResults,
		Contents:   exaContentsSpec{Text: true},
	})
	if err != nil {
		return nil, errors.NewPermanentError(err, "failed to encode search request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewPermanentError(err, "failed to build search request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.config.APIKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewTransientError(err, fmt.Sprintf("search request failed: %v", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, errors.NewTransientError(err, "failed to read search response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.FromHTTPStatus(resp.StatusCode, "search", string(respBody))
	}

	var parsed exaResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, errors.NewTransientError(err, "failed to decode search response")
	}

	results := make([]Result, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.URL == "" {
			continue
		}
		results = append(results, Result{
			Title:       r.Title,
			URL:         r.URL,
			Domain:      DomainOf(r.URL),
			Content:     r.Text,
			PublishedAt: r.PublishedDate,
		})
	}
	c.logger.Debug("search %q: %d results in %v", query, len(results), time.Since(start))
	return results, nil
}
