package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"deepresearch/internal/errors"
)

func TestExaClientSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		require.Equal(t, "secret", r.Header.Get("x-api-key"))

		var req exaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "ai healthcare", req.Query)
		require.Equal(t, 3, req.NumResults)
		require.True(t, req.Contents.Text)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]string{
				{"title": "Study", "url": "https://www.example.com/study", "publishedDate": "2026-01-01", "text": "evidence"},
				{"title": "No URL", "text": "dropped"},
			},
		})
	}))
	defer server.Close()

	client := NewExaClient(ExaConfig{BaseURL: server.URL, APIKey: "secret", NumResults: 3}, nil)
	results, err := client.Search(context.Background(), "ai healthcare")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "Study", results[0].Title)
	require.Equal(t, "example.com", results[0].Domain)
	require.Equal(t, "evidence", results[0].Content)
	require.Equal(t, "2026-01-01", results[0].PublishedAt)
}

func TestExaClientClassifiesUpstreamErrors(t *testing.T) {
	status := http.StatusServiceUnavailable
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer server.Close()

	client := NewExaClient(ExaConfig{BaseURL: server.URL}, nil)

	_, err := client.Search(context.Background(), "q")
	require.True(t, errors.IsTransient(err))

	status = http.StatusUnauthorized
	_, err = client.Search(context.Background(), "q")
	require.False(t, errors.IsTransient(err))
}

func TestDomainOf(t *testing.T) {
	require.Equal(t, "example.com", DomainOf("https://www.example.com/a/b"))
	require.Equal(t, "sub.example.org", DomainOf("http://sub.example.org"))
	require.Equal(t, "", DomainOf("not a url"))
}
