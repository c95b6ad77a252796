package tmdb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flixor/flixor/internal/cache"
	"github.com/flixor/flixor/internal/domain"
	flixorlog "github.com/flixor/flixor/internal/log"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := cache.NewMemoryCache(0)
	t.Cleanup(func() { c.Close() })

	svc, err := NewService("key-123", c, flixorlog.NullLogger())
	require.NoError(t, err)
	svc.baseURL = srv.URL
	return svc
}

func TestNewService_RequiresAPIKey(t *testing.T) {
	_, err := NewService("", nil, flixorlog.NullLogger())
	require.Error(t, err)
}

func TestService_Trending(t *testing.T) {
	var hits atomic.Int32
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/trending/movie/week", r.URL.Path)
		assert.Equal(t, "key-123", r.URL.Query().Get("api_key"))
		w.Write([]byte(`{"page": 1, "results": [
			{"id": 603, "title": "The Matrix", "release_date": "1999-03-31", "vote_average": 8.2, "poster_path": "/p.jpg"},
			{"id": 604, "title": "The Matrix Reloaded", "release_date": "2003-05-15"}
		]}`))
	})

	items, err := svc.Trending(context.Background(), TypeMovie, WindowWeek)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, int64(603), items[0].ID)
	assert.Equal(t, "The Matrix", items[0].Title)
	assert.Equal(t, 1999, items[0].Year)
	assert.Equal(t, TypeMovie, items[0].MediaType, "list endpoints without media_type inherit it from the path")
	assert.InDelta(t, 8.2, items[0].VoteAverage, 0.001)

	// Second call is served from cache.
	_, err = svc.Trending(context.Background(), TypeMovie, WindowWeek)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestService_Trending_Defaults(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trending/all/day", r.URL.Path)
		w.Write([]byte(`{"results": [{"id": 1, "media_type": "tv", "name": "Severance", "first_air_date": "2022-02-18"}]}`))
	})

	items, err := svc.Trending(context.Background(), "", "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, TypeTV, items[0].MediaType)
	assert.Equal(t, "Severance", items[0].Title)
	assert.Equal(t, 2022, items[0].Year)
}

func TestService_Search_DropsPeople(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/multi", r.URL.Path)
		assert.Equal(t, "pacino", r.URL.Query().Get("query"))
		w.Write([]byte(`{"results": [
			{"id": 1, "media_type": "person", "name": "Al Pacino"},
			{"id": 2, "media_type": "movie", "title": "Heat", "release_date": "1995-12-15"}
		]}`))
	})

	items, err := svc.Search(context.Background(), "pacino")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Heat", items[0].Title)
}

func TestService_MovieDetails(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/movie/603", r.URL.Path)
		w.Write([]byte(`{
			"id": 603, "title": "The Matrix", "release_date": "1999-03-31",
			"runtime": 136, "tagline": "Welcome to the Real World.",
			"genres": [{"id": 28, "name": "Action"}, {"id": 878, "name": "Science Fiction"}],
			"vote_average": 8.2, "status": "Released"
		}`))
	})

	d, err := svc.MovieDetails(context.Background(), 603)
	require.NoError(t, err)
	assert.Equal(t, "The Matrix", d.Title)
	assert.Equal(t, TypeMovie, d.MediaType)
	assert.Equal(t, 136, d.Runtime)
	assert.Equal(t, []string{"Action", "Science Fiction"}, d.Genres)
}

func TestService_TVDetails(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tv/95396", r.URL.Path)
		w.Write([]byte(`{
			"id": 95396, "name": "Severance", "first_air_date": "2022-02-18",
			"number_of_seasons": 2, "number_of_episodes": 19
		}`))
	})

	d, err := svc.TVDetails(context.Background(), 95396)
	require.NoError(t, err)
	assert.Equal(t, "Severance", d.Title)
	assert.Equal(t, TypeTV, d.MediaType)
	assert.Equal(t, 2, d.Seasons)
	assert.Equal(t, 19, d.Episodes)
}

func TestService_ErrorMapping(t *testing.T) {
	t.Run("401 is an auth failure", func(t *testing.T) {
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		_, err := svc.Trending(context.Background(), TypeMovie, WindowDay)
		require.ErrorIs(t, err, domain.ErrAuthFailed)
	})

	t.Run("404 is item not found", func(t *testing.T) {
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		_, err := svc.MovieDetails(context.Background(), 1)
		require.ErrorIs(t, err, domain.ErrItemNotFound)
	})
}
