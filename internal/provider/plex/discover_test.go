package plex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flixor/flixor/internal/cache"
	flixorlog "github.com/flixor/flixor/internal/log"
)

func TestDiscoverService_WatchlistInvalidation(t *testing.T) {
	var reads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/library/sections/watchlist/all":
			reads.Add(1)
			assert.Equal(t, "acct-tok", r.Header.Get("X-Plex-Token"))
			w.Write([]byte(`{"MediaContainer": {"Metadata": [{"ratingKey": "42", "title": "Alien", "type": "movie"}]}}`))
		case "/actions/addToWatchlist":
			assert.Equal(t, http.MethodPut, r.Method)
			assert.Equal(t, "42", r.URL.Query().Get("ratingKey"))
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := cache.NewMemoryCache(0)
	defer c.Close()

	svc := NewDiscoverService("acct-tok", testIdentity(), c, flixorlog.NullLogger())
	svc.baseURL = srv.URL

	items, err := svc.Watchlist(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Alien", items[0].Title)

	// Cached on the second read.
	_, err = svc.Watchlist(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), reads.Load())

	// Mutation drops the cached watchlist, forcing a refetch.
	require.NoError(t, svc.AddToWatchlist(context.Background(), "42"))
	_, err = svc.Watchlist(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), reads.Load())
}
