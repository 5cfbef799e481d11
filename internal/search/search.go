// Package search provides web retrieval for the research pipeline: a search
// provider abstraction, an Exa-compatible client, a per-run query cache, and
// a page crawler for results that arrive without content.
package search

import (
	"context"
	"net/url"
	"strings"
)

// Result is one search hit.
type Result struct {
	Title       string
	URL         string
	Domain      string
	Content     string
	PublishedAt string
}

// Provider executes web searches.
type Provider interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// DomainOf extracts the bare host from a URL, dropping any www prefix.
func DomainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(u.Host, "www.")
}
