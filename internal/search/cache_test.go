package search

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"deepresearch/internal/metrics"
)

type countingProvider struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *countingProvider) Search(ctx context.Context, query string) ([]Result, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return []Result{{Title: query, URL: "https://example.com/" + query}}, nil
}

func TestCachedProviderMemoizesQueries(t *testing.T) {
	inner := &countingProvider{}
	collector := metrics.NewCollector()
	provider := NewCachedProvider(inner, collector)

	ctx := context.Background()
	first, err := provider.Search(ctx, "ai healthcare")
	require.NoError(t, err)
	second, err := provider.Search(ctx, "ai healthcare")
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, 1, inner.calls)

	snap := collector.Drain()
	require.EqualValues(t, 1, snap.Counters["search_cache_hits"])
	require.EqualValues(t, 1, snap.Counters["search_cache_misses"])
}

func TestCachedProviderNormalizesKeys(t *testing.T) {
	inner := &countingProvider{}
	provider := NewCachedProvider(inner, nil)

	ctx := context.Background()
	_, err := provider.Search(ctx, "AI Healthcare")
	require.NoError(t, err)
	_, err = provider.Search(ctx, "  ai healthcare  ")
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)
}

func TestCachedProviderDoesNotCacheFailures(t *testing.T) {
	inner := &countingProvider{err: fmt.Errorf("boom")}
	provider := NewCachedProvider(inner, nil)

	ctx := context.Background()
	_, err := provider.Search(ctx, "q")
	require.Error(t, err)
	_, err = provider.Search(ctx, "q")
	require.Error(t, err)
	require.Equal(t, 2, inner.calls)
}

func TestCachedProviderEvictsBeyondCapacity(t *testing.T) {
	inner := &countingProvider{}
	provider := NewCachedProvider(inner, nil)

	ctx := context.Background()
	for i := 0; i < cacheSize+1; i++ {
		_, err := provider.Search(ctx, fmt.Sprintf("query %d", i))
		require.NoError(t, err)
	}
	// The first query was evicted and hits upstream again.
	_, err := provider.Search(ctx, "query 0")
	require.NoError(t, err)
	require.Equal(t, cacheSize+2, inner.calls)
}
