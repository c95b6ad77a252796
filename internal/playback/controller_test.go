package playback

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flixor/flixor/internal/domain"
	flixorlog "github.com/flixor/flixor/internal/log"
	"github.com/flixor/flixor/internal/provider/plex"
	"github.com/flixor/flixor/internal/streaming"
)

// fakePMS serves the transcode endpoints a controller touches and records
// decision queries and stopped sessions.
type fakePMS struct {
	video string // verdict for the first video stream

	mu              sync.Mutex
	decisionQueries []url.Values
	stopSessions    []string
}

func (f *fakePMS) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/video/:/transcode/universal/decision":
			f.mu.Lock()
			f.decisionQueries = append(f.decisionQueries, r.URL.Query())
			f.mu.Unlock()
			fmt.Fprintf(w, `{"MediaContainer": {"Metadata": [{"Media": [{"Part": [{
				"decision": "transcode",
				"Stream": [
					{"streamType": 1, "decision": %q, "codec": "hevc"},
					{"streamType": 2, "decision": "copy", "codec": "eac3"}
				]}]}]}]}}`, f.video)
		case strings.HasPrefix(r.URL.Path, "/video/:/transcode/universal/start"):
			w.Write([]byte("#EXTM3U"))
		case r.URL.Path == "/video/:/transcode/universal/stop":
			f.mu.Lock()
			f.stopSessions = append(f.stopSessions, r.URL.Query().Get("session"))
			f.mu.Unlock()
		default:
			http.NotFound(w, r)
		}
	}
}

func (f *fakePMS) stopped() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.stopSessions...)
}

func (f *fakePMS) decisionQuery(t *testing.T, i int) url.Values {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Greater(t, len(f.decisionQueries), i)
	return f.decisionQueries[i]
}

func newTestController(t *testing.T, pms *fakePMS, sinks *fakeSinks) *Controller {
	t.Helper()
	srv := httptest.NewServer(pms.handler())
	t.Cleanup(srv.Close)

	identity := plex.Identity{ClientID: "test-client-id", Product: "Flixor", Version: "0", Platform: "Linux", Device: "PC"}
	server := plex.NewServerService(srv.URL, "tok", identity, nil, flixorlog.NullLogger())
	engine := streaming.NewEngine(streaming.EngineConfig{
		Server:   server,
		Identity: identity,
		Logger:   flixorlog.NullLogger(),
		Settle:   time.Millisecond,
	})

	return NewController(Config{
		Engine:    engine,
		RatingKey: "42",
		Options:   streaming.DefaultOptions(),
		Timeline:  sinks,
		Progress:  sinks,
		Stopper:   server,
		Logger:    flixorlog.NullLogger(),
	})
}

// drainEvents collects everything currently buffered on the event stream.
func drainEvents(c *Controller) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func statesOf(events []Event) []State {
	var out []State
	for _, ev := range events {
		if ev.Type == EventStateChanged {
			out = append(out, ev.State)
		}
	}
	return out
}

func TestController_Load(t *testing.T) {
	pms := &fakePMS{video: "copy"}
	sinks := &fakeSinks{}
	c := newTestController(t, pms, sinks)
	defer c.Stop(context.Background())

	playURL, err := c.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatePlaying, c.State())
	assert.Contains(t, playURL, "/base/index.m3u8")
	assert.Equal(t, playURL, c.PlaybackURL())

	dec := c.Decision()
	require.NotNil(t, dec)
	assert.Equal(t, streaming.MethodDirectStream, dec.Method)
	assert.Contains(t, playURL, dec.SessionID)

	events := drainEvents(c)
	assert.Equal(t, []State{StateLoading, StateReady, StatePlaying}, statesOf(events))
	assert.Contains(t, eventTypes(events), EventDecisionMade)
}

func TestController_LoadOnlyOnce(t *testing.T) {
	pms := &fakePMS{video: "copy"}
	c := newTestController(t, pms, &fakeSinks{})
	defer c.Stop(context.Background())

	_, err := c.Load(context.Background())
	require.NoError(t, err)

	_, err = c.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatePlaying, c.State(), "a rejected load must not disturb playback")
}

func TestController_FallbackRetriesExactlyOnce(t *testing.T) {
	pms := &fakePMS{video: "copy"}
	sinks := &fakeSinks{}
	c := newTestController(t, pms, sinks)

	_, err := c.Load(context.Background())
	require.NoError(t, err)
	first := c.Decision()
	require.Equal(t, streaming.MethodDirectStream, first.Method)
	drainEvents(c)

	// First signal: forced transcode reload.
	retryURL, err := c.ReportNoVideoTracks(context.Background())
	require.NoError(t, err)
	second := c.Decision()
	assert.Equal(t, streaming.MethodTranscode, second.Method)
	assert.NotEqual(t, first.SessionID, second.SessionID)
	assert.Contains(t, retryURL, second.SessionID)
	assert.Equal(t, StatePlaying, c.State())

	q := pms.decisionQuery(t, 1)
	assert.Equal(t, "0", q.Get("directPlay"))
	assert.Equal(t, "0", q.Get("directStream"))

	// The dead session was stopped before the new decision.
	assert.Equal(t, []string{first.SessionID}, pms.stopped())

	events := drainEvents(c)
	assert.Contains(t, eventTypes(events), EventFallbackTriggered)

	// Second signal: terminal.
	_, err = c.ReportNoVideoTracks(context.Background())
	require.ErrorIs(t, err, domain.ErrPlaybackFailed)
	assert.Equal(t, StateErrored, c.State())

	events = drainEvents(c)
	assert.Contains(t, eventTypes(events), EventError)

	// Third signal short-circuits without touching the server.
	_, err = c.ReportNoVideoTracks(context.Background())
	require.ErrorIs(t, err, domain.ErrPlaybackFailed)

	// Teardown now stops the fallback session.
	c.Stop(context.Background())
	assert.Equal(t, []string{first.SessionID, second.SessionID}, pms.stopped())
}

func TestController_PauseResume(t *testing.T) {
	pms := &fakePMS{video: "copy"}
	c := newTestController(t, pms, &fakeSinks{})
	defer c.Stop(context.Background())

	_, err := c.Load(context.Background())
	require.NoError(t, err)

	c.Pause()
	assert.Equal(t, StatePaused, c.State())
	c.reporter.mu.Lock()
	assert.Equal(t, PlayStatePaused, c.reporter.playState)
	c.reporter.mu.Unlock()

	c.Resume()
	assert.Equal(t, StatePlaying, c.State())
	c.reporter.mu.Lock()
	assert.Equal(t, PlayStatePlaying, c.reporter.playState)
	c.reporter.mu.Unlock()
}

func TestController_BufferingAndSeek(t *testing.T) {
	pms := &fakePMS{video: "copy"}
	c := newTestController(t, pms, &fakeSinks{})
	defer c.Stop(context.Background())

	_, err := c.Load(context.Background())
	require.NoError(t, err)
	c.SetPosition(10*time.Minute, 2*time.Hour)

	c.SetBuffering(true)
	assert.Equal(t, StateBuffering, c.State())
	c.SetBuffering(false)
	assert.Equal(t, StatePlaying, c.State())

	c.Seek(55 * time.Minute)
	assert.Equal(t, StatePlaying, c.State())
	pos, dur := c.reporter.Position()
	assert.Equal(t, 55*time.Minute, pos)
	assert.Equal(t, 2*time.Hour, dur, "seek must not lose the known duration")
}

func TestController_RejectsSignalsBeforeLoad(t *testing.T) {
	pms := &fakePMS{video: "copy"}
	c := newTestController(t, pms, &fakeSinks{})
	defer c.Stop(context.Background())

	c.Pause()
	assert.Equal(t, StateUninitialized, c.State())

	_, err := c.ReportNoVideoTracks(context.Background())
	require.Error(t, err)
}

func TestController_StopClosesEvents(t *testing.T) {
	pms := &fakePMS{video: "copy"}
	sinks := &fakeSinks{}
	c := newTestController(t, pms, sinks)

	_, err := c.Load(context.Background())
	require.NoError(t, err)
	c.SetPosition(30*time.Minute, 2*time.Hour)

	c.Stop(context.Background())
	c.Stop(context.Background())

	drainEvents(c)
	_, open := <-c.Events()
	assert.False(t, open)

	// The reporter's final beacon carried the last known position.
	finals := sinks.beaconsByState(PlayStateStopped)
	require.Len(t, finals, 1)
	assert.Equal(t, (30 * time.Minute).Milliseconds(), finals[0].Time)
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to State
		want     bool
	}{
		{StateUninitialized, StateLoading, true},
		{StateUninitialized, StatePlaying, false},
		{StateLoading, StateReady, true},
		{StateReady, StatePlaying, true},
		{StateReady, StatePaused, false},
		{StatePlaying, StatePaused, true},
		{StatePlaying, StateLoading, true},
		{StatePaused, StateSeeking, true},
		{StateSeeking, StateReady, true},
		{StateSeeking, StatePlaying, false},
		{StatePlaying, StateErrored, true},
		{StateErrored, StateLoading, false},
		{StateErrored, StateErrored, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, canTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}
