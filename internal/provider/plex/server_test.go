package plex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flixor/flixor/internal/cache"
	"github.com/flixor/flixor/internal/domain"
	flixorlog "github.com/flixor/flixor/internal/log"
)

const metadataBody = `{"MediaContainer": {"Metadata": [{
	"ratingKey": "13624", "title": "Heat", "type": "movie", "year": 1995,
	"duration": 10200000, "viewOffset": 600000,
	"Media": [{
		"bitrate": 12000, "width": 3840, "height": 2160,
		"videoCodec": "hevc", "audioCodec": "eac3", "audioChannels": 6, "container": "mkv",
		"Part": [{"key": "/library/parts/999/1234/file.mkv"}]
	}]
}]}}`

func newTestServerService(t *testing.T, handler http.HandlerFunc) (*ServerService, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := cache.NewMemoryCache(0)
	t.Cleanup(func() { c.Close() })

	svc := NewServerService(srv.URL, "srv-tok", testIdentity(), c, flixorlog.NullLogger())
	return svc, srv
}

func TestProbe(t *testing.T) {
	t.Run("reachable server", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/identity", r.URL.Path)
			w.Write([]byte(`{"MediaContainer": {"machineIdentifier": "abc"}}`))
		}))
		defer srv.Close()

		err := Probe(context.Background(), testIdentity(), srv.URL, "tok", time.Second)
		require.NoError(t, err)
	})

	t.Run("slow server fails within the timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(500 * time.Millisecond)
		}))
		defer srv.Close()

		start := time.Now()
		err := Probe(context.Background(), testIdentity(), srv.URL, "tok", 50*time.Millisecond)
		require.Error(t, err)
		assert.Less(t, time.Since(start), 400*time.Millisecond)
	})

	t.Run("unreachable address", func(t *testing.T) {
		err := Probe(context.Background(), testIdentity(), "http://127.0.0.1:1", "tok", 200*time.Millisecond)
		require.ErrorIs(t, err, domain.ErrServerOffline)
	})
}

func TestServerService_Metadata(t *testing.T) {
	var hits atomic.Int32
	svc, _ := newTestServerService(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/library/metadata/13624", r.URL.Path)
		assert.Equal(t, "srv-tok", r.Header.Get("X-Plex-Token"))
		w.Write([]byte(metadataBody))
	})

	item, err := svc.Metadata(context.Background(), "13624")
	require.NoError(t, err)
	assert.Equal(t, "Heat", item.Title)
	assert.Equal(t, domain.MediaTypeMovie, item.Type)
	assert.Equal(t, 170*time.Minute, item.Duration)
	assert.Equal(t, "hevc", item.VideoCodec)
	assert.Equal(t, "/library/parts/999/1234/file.mkv", item.PartKey)
	assert.Equal(t, "4K", item.Resolution())

	// Second read is served from cache.
	_, err = svc.Metadata(context.Background(), "13624")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestServerService_Metadata_NotFound(t *testing.T) {
	svc, _ := newTestServerService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := svc.Metadata(context.Background(), "404")
	require.ErrorIs(t, err, domain.ErrItemNotFound)
}

func TestServerService_PartURL(t *testing.T) {
	svc, srv := newTestServerService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(metadataBody))
	})

	item, err := svc.Metadata(context.Background(), "13624")
	require.NoError(t, err)

	u, err := svc.PartURL(item)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/library/parts/999/1234/file.mkv?X-Plex-Token=srv-tok", u)

	_, err = svc.PartURL(&domain.MediaItem{RatingKey: "1"})
	require.ErrorIs(t, err, domain.ErrNoMediaPart)
}

func TestServerService_Libraries_FiltersToVideoSections(t *testing.T) {
	svc, _ := newTestServerService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/library/sections", r.URL.Path)
		w.Write([]byte(`{"MediaContainer": {"Directory": [
			{"key": "1", "title": "Movies", "type": "movie"},
			{"key": "2", "title": "TV", "type": "show"},
			{"key": "3", "title": "Music", "type": "artist"}
		]}}`))
	})

	libs, err := svc.Libraries(context.Background())
	require.NoError(t, err)
	require.Len(t, libs, 2)
	assert.Equal(t, "Movies", libs[0].Name)
	assert.Equal(t, "show", libs[1].Type)
}

func TestServerService_LibraryItems(t *testing.T) {
	svc, _ := newTestServerService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/library/sections/1/all", r.URL.Path)
		w.Write([]byte(`{"MediaContainer": {"Metadata": [
			{"ratingKey": "10", "title": "Alien", "type": "movie", "year": 1979},
			{"ratingKey": "11", "title": "Blade Runner", "type": "movie", "year": 1982}
		]}}`))
	})

	items, err := svc.LibraryItems(context.Background(), "1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Alien", items[0].Title)
	assert.Equal(t, 1982, items[1].Year)
}

func TestServerService_Children_MapsEpisodes(t *testing.T) {
	var hits atomic.Int32
	svc, _ := newTestServerService(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/library/metadata/3000/children", r.URL.Path)
		w.Write([]byte(`{"MediaContainer": {"Metadata": [
			{"ratingKey": "3001", "title": "Good News About Hell", "type": "episode",
			 "grandparentTitle": "Severance", "parentIndex": 1, "index": 1, "duration": 3420000},
			{"ratingKey": "3002", "title": "Half Loop", "type": "episode",
			 "grandparentTitle": "Severance", "parentIndex": 1, "index": 2, "duration": 3000000}
		]}}`))
	})

	items, err := svc.Children(context.Background(), "3000")
	require.NoError(t, err)
	require.Len(t, items, 2)

	ep := items[0]
	assert.Equal(t, domain.MediaTypeEpisode, ep.Type)
	assert.True(t, ep.Playable())
	assert.Equal(t, "S01E01", ep.EpisodeCode())
	assert.Equal(t, "Severance S01E01 · Good News About Hell", ep.DisplayTitle())
	assert.Equal(t, 57*time.Minute, ep.Duration)

	// Second read is served from cache.
	_, err = svc.Children(context.Background(), "3000")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestServerService_TranscodeDecision_NeverCached(t *testing.T) {
	var hits atomic.Int32
	svc, _ := newTestServerService(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, transcodeDecisionPath, r.URL.Path)
		assert.Equal(t, "/library/metadata/13624", r.URL.Query().Get("path"))
		assert.Contains(t, r.Header.Get("X-Plex-Client-Profile-Extra"), "add-direct-play-profile")
		w.Write([]byte(`{"MediaContainer": {"Metadata": [{"Media": [{"Part": [{"decision": "directplay"}]}]}]}}`))
	})

	query := url.Values{"path": {"/library/metadata/13624"}}

	for i := 0; i < 2; i++ {
		dec, err := svc.TranscodeDecision(context.Background(), query, ProfileExtra("hls"))
		require.NoError(t, err)
		assert.Equal(t, "directplay", dec.ContainerDecision)
	}
	assert.Equal(t, int32(2), hits.Load(), "decision endpoint must bypass the cache")
}

func TestServerService_StartSession(t *testing.T) {
	t.Run("200 starts the session", func(t *testing.T) {
		svc, srv := newTestServerService(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("#EXTM3U"))
		})
		err := svc.StartSession(context.Background(), srv.URL+"/video/:/transcode/universal/start.m3u8?session=abc")
		require.NoError(t, err)
	})

	t.Run("other statuses refuse the session", func(t *testing.T) {
		svc, srv := newTestServerService(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
		err := svc.StartSession(context.Background(), srv.URL+"/video/:/transcode/universal/start.m3u8?session=abc")
		require.ErrorIs(t, err, domain.ErrSessionStart)
	})
}

func TestServerService_SessionURL(t *testing.T) {
	svc := NewServerService("https://pms.example:32400", "tok", testIdentity(), nil, flixorlog.NullLogger())

	u := svc.SessionURL("sess-1")
	assert.Equal(t, "https://pms.example:32400/video/:/transcode/universal/session/sess-1/base/index.m3u8?X-Plex-Token=tok", u)
}

func TestServerService_StopSession(t *testing.T) {
	var gotSession string
	svc, _ := newTestServerService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, transcodeStopPath, r.URL.Path)
		gotSession = r.URL.Query().Get("session")
	})

	require.NoError(t, svc.StopSession(context.Background(), "sess-1"))
	assert.Equal(t, "sess-1", gotSession)
}

func TestServerService_Timeline(t *testing.T) {
	svc, _ := newTestServerService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, timelinePath, r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "13624", q.Get("ratingKey"))
		assert.Equal(t, "/library/metadata/13624", q.Get("key"))
		assert.Equal(t, "playing", q.Get("state"))
		assert.Equal(t, "90000", q.Get("time"))
		assert.Equal(t, "10200000", q.Get("duration"))
		assert.Equal(t, "client-sess", q.Get("X-Plex-Session-Identifier"))
	})

	err := svc.Timeline(context.Background(), TimelineRequest{
		RatingKey: "13624",
		State:     "playing",
		Time:      90 * time.Second,
		Duration:  170 * time.Minute,
		SessionID: "client-sess",
	})
	require.NoError(t, err)
}
