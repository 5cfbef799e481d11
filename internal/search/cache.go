package search

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"deepresearch/internal/metrics"
)

// cacheSize bounds the per-run query cache.
const cacheSize = 100

// CachedProvider memoizes query results for the lifetime of one run, so
// agents re-asking a question never pay for a second upstream call. Keys are
// normalized to lowercase trimmed text.
type CachedProvider struct {
	inner     Provider
	cache     *lru.Cache[string, []Result]
	collector *metrics.Collector
}

// NewCachedProvider wraps inner with a bounded LRU cache. collector may be
// nil.
func NewCachedProvider(inner Provider, collector *metrics.Collector) *CachedProvider {
	cache, _ := lru.New[string, []Result](cacheSize)
	return &CachedProvider{inner: inner, cache: cache, collector: collector}
}

// Search returns memoized results when the normalized query was seen before.
func (p *CachedProvider) Search(ctx context.Context, query string) ([]Result, error) {
	key := strings.ToLower(strings.TrimSpace(query))
	if results, ok := p.cache.Get(key); ok {
		if p.collector != nil {
			p.collector.Inc("search_cache_hits")
		}
		return results, nil
	}

	results, err := p.inner.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	p.cache.Add(key, results)
	if p.collector != nil {
		p.collector.Inc("search_cache_misses")
	}
	return results, nil
}
