package trakt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

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

	svc, err := NewService("cid-123", "secret-456", c, flixorlog.NullLogger())
	require.NoError(t, err)
	svc.baseURL = srv.URL
	return svc
}

func TestNewService_RequiresClientID(t *testing.T) {
	_, err := NewService("", "secret", nil, flixorlog.NullLogger())
	require.Error(t, err)
}

func TestService_Trending(t *testing.T) {
	var hits atomic.Int32
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/movies/trending", r.URL.Path)
		assert.Equal(t, "2", r.Header.Get("trakt-api-version"))
		assert.Equal(t, "cid-123", r.Header.Get("trakt-api-key"))
		assert.Empty(t, r.Header.Get("Authorization"), "trending is a public endpoint")
		w.Write([]byte(`[
			{"watchers": 150, "movie": {"title": "Heat", "year": 1995, "ids": {"trakt": 1, "slug": "heat-1995", "imdb": "tt0113277", "tmdb": 949}}},
			{"watchers": 90, "movie": {"title": "Ronin", "year": 1998, "ids": {"trakt": 2}}}
		]`))
	})

	items, err := svc.Trending(context.Background(), TypeMovies)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 150, items[0].Watchers)
	assert.Equal(t, "movie", items[0].MediaType)
	assert.Equal(t, "Heat", items[0].Title.Title)
	assert.Equal(t, int64(949), items[0].Title.TMDB)

	// Second read comes from cache.
	_, err = svc.Trending(context.Background(), TypeMovies)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestService_History(t *testing.T) {
	t.Run("requires a token", func(t *testing.T) {
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {})
		_, err := svc.History(context.Background())
		require.ErrorIs(t, err, domain.ErrNotAuthenticated)
	})

	t.Run("parses entries", func(t *testing.T) {
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/sync/history", r.URL.Path)
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			w.Write([]byte(`[
				{"id": 100, "watched_at": "2026-08-20T21:14:00.000Z", "action": "watch", "type": "movie",
				 "movie": {"title": "Heat", "year": 1995, "ids": {"trakt": 1}}},
				{"id": 101, "watched_at": "2026-08-19T20:00:00.000Z", "action": "scrobble", "type": "episode",
				 "episode": {"title": "Good News About Hell", "ids": {"trakt": 55}},
				 "show": {"title": "Severance", "ids": {"trakt": 50}}}
			]`))
		})
		svc.SetAccessToken("tok-1")

		items, err := svc.History(context.Background())
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "Heat", items[0].Title.Title)
		assert.Equal(t, 2026, items[0].WatchedAt.Year())
		assert.Equal(t, "episode", items[1].MediaType)
		assert.Equal(t, "Good News About Hell", items[1].Title.Title, "episodes report the episode title")
	})
}

func TestService_AddToHistory(t *testing.T) {
	var historyReads atomic.Int32
	var posted historyAddRequest
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sync/history", r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			historyReads.Add(1)
			w.Write([]byte(`[]`))
		case http.MethodPost:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
			w.WriteHeader(http.StatusCreated)
		}
	})
	svc.SetAccessToken("tok-1")

	_, err := svc.History(context.Background())
	require.NoError(t, err)
	_, err = svc.History(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), historyReads.Load(), "history reads are cached")

	require.NoError(t, svc.AddToHistory(context.Background(), []int64{1, 2}, []int64{55}))
	require.Len(t, posted.Movies, 2)
	assert.Equal(t, int64(1), posted.Movies[0].IDs.Trakt)
	require.Len(t, posted.Episodes, 1)
	assert.Equal(t, int64(55), posted.Episodes[0].IDs.Trakt)

	// The write invalidated the cached history.
	_, err = svc.History(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), historyReads.Load(), "history write must invalidate the cached read")
}

func TestService_AddToHistory_EmptyIsNoOp(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	svc.SetAccessToken("tok-1")

	require.NoError(t, svc.AddToHistory(context.Background(), nil, nil))
}

func TestService_StartDeviceAuth(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/oauth/device/code", r.URL.Path)

		var req deviceCodeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "cid-123", req.ClientID)

		w.Write([]byte(`{
			"device_code": "dev-abc", "user_code": "1D48BC00",
			"verification_url": "https://trakt.tv/activate",
			"expires_in": 600, "interval": 5
		}`))
	})

	code, err := svc.StartDeviceAuth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "dev-abc", code.DeviceCode)
	assert.Equal(t, "1D48BC00", code.UserCode)
	assert.Equal(t, "https://trakt.tv/activate", code.VerificationURL)
	assert.Equal(t, 600*time.Second, code.ExpiresIn)
	assert.Equal(t, 5*time.Second, code.Interval)
}

func TestService_WaitForDeviceAuth(t *testing.T) {
	testCode := &DeviceCode{DeviceCode: "dev-abc", Interval: 5 * time.Second, ExpiresIn: 600 * time.Second}

	t.Run("approved after pending polls", func(t *testing.T) {
		var polls atomic.Int32
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/oauth/device/token", r.URL.Path)

			var req deviceTokenRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "dev-abc", req.Code)
			assert.Equal(t, "secret-456", req.ClientSecret)

			if polls.Add(1) < 3 {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Write([]byte(`{"access_token": "at-1", "refresh_token": "rt-1", "scope": "public", "created_at": 1756100000, "expires_in": 7776000}`))
		})

		var attempts []int
		tok, err := svc.WaitForDeviceAuth(context.Background(), testCode, DevicePollOptions{
			Interval: 5 * time.Millisecond,
			Timeout:  time.Second,
			OnPoll:   func(attempt int) { attempts = append(attempts, attempt) },
		})
		require.NoError(t, err)
		assert.Equal(t, "at-1", tok.AccessToken)
		assert.Equal(t, "rt-1", tok.RefreshToken)
		assert.True(t, svc.IsAuthenticated(), "the fresh token is installed on the service")
		assert.Equal(t, []int{1, 2, 3}, attempts)
	})

	t.Run("deadline without approval", func(t *testing.T) {
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		})

		start := time.Now()
		_, err := svc.WaitForDeviceAuth(context.Background(), testCode, DevicePollOptions{
			Interval: 5 * time.Millisecond,
			Timeout:  40 * time.Millisecond,
		})
		require.ErrorIs(t, err, domain.ErrDeviceCodeTimeout)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("denied by user", func(t *testing.T) {
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})

		_, err := svc.WaitForDeviceAuth(context.Background(), testCode, DevicePollOptions{
			Interval: time.Millisecond,
			Timeout:  time.Second,
		})
		require.ErrorIs(t, err, domain.ErrDeviceCodeDenied)
	})

	t.Run("expired code", func(t *testing.T) {
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusGone)
		})

		_, err := svc.WaitForDeviceAuth(context.Background(), testCode, DevicePollOptions{
			Interval: time.Millisecond,
			Timeout:  time.Second,
		})
		require.ErrorIs(t, err, domain.ErrDeviceCodeTimeout)
	})

	t.Run("429 doubles the poll interval", func(t *testing.T) {
		var polls atomic.Int32
		var times []time.Time
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			times = append(times, time.Now())
			if polls.Add(1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Write([]byte(`{"access_token": "at-1"}`))
		})

		_, err := svc.WaitForDeviceAuth(context.Background(), testCode, DevicePollOptions{
			Interval: 20 * time.Millisecond,
			Timeout:  2 * time.Second,
		})
		require.NoError(t, err)
		require.Len(t, times, 2)
		assert.GreaterOrEqual(t, times[1].Sub(times[0]), 30*time.Millisecond, "second poll waits the doubled interval")
	})

	t.Run("cancellable", func(t *testing.T) {
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		})

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		_, err := svc.WaitForDeviceAuth(ctx, testCode, DevicePollOptions{
			Interval: 5 * time.Millisecond,
			Timeout:  time.Minute,
		})
		require.ErrorIs(t, err, context.Canceled)
	})
}
