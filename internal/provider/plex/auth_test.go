package plex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flixor/flixor/internal/domain"
	flixorlog "github.com/flixor/flixor/internal/log"
)

func testIdentity() Identity {
	return Identity{
		ClientID:   "test-client-id",
		Product:    "Flixor",
		Version:    "0.0.0-test",
		Platform:   "Linux",
		Device:     "PC",
		DeviceName: "test-box",
	}
}

func newTestAuthService(t *testing.T, handler http.HandlerFunc) *AuthService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc := NewAuthService(testIdentity(), flixorlog.NullLogger())
	svc.baseURL = srv.URL
	return svc
}

func TestAuthService_CreatePin(t *testing.T) {
	svc := newTestAuthService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v2/pins", r.URL.Path)
		assert.Equal(t, "false", r.URL.Query().Get("strong"))
		assert.Equal(t, "test-client-id", r.Header.Get("X-Plex-Client-Identifier"))
		assert.Equal(t, "Flixor", r.Header.Get("X-Plex-Product"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 12345, "code": "ABCD", "expiresAt": "2026-01-02T15:04:05Z"}`))
	})

	pin, err := svc.CreatePin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12345, pin.ID)
	assert.Equal(t, "ABCD", pin.Code)
	assert.Equal(t, 2026, pin.ExpiresAt.Year())
}

func TestAuthService_CheckPin(t *testing.T) {
	t.Run("pending returns empty token without error", func(t *testing.T) {
		svc := newTestAuthService(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v2/pins/12345", r.URL.Path)
			w.Write([]byte(`{"id": 12345, "code": "ABCD", "authToken": ""}`))
		})

		token, err := svc.CheckPin(context.Background(), 12345)
		require.NoError(t, err)
		assert.Empty(t, token)
	})

	t.Run("claimed returns token", func(t *testing.T) {
		svc := newTestAuthService(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"id": 12345, "code": "ABCD", "authToken": "tok-secret"}`))
		})

		token, err := svc.CheckPin(context.Background(), 12345)
		require.NoError(t, err)
		assert.Equal(t, "tok-secret", token)
	})

	t.Run("404 means the pin expired", func(t *testing.T) {
		svc := newTestAuthService(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		_, err := svc.CheckPin(context.Background(), 12345)
		require.ErrorIs(t, err, domain.ErrPINExpired)
	})
}

func TestAuthService_WaitForPin_ClaimsAfterPolling(t *testing.T) {
	var calls atomic.Int32
	svc := newTestAuthService(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Write([]byte(`{"id": 1, "authToken": ""}`))
			return
		}
		w.Write([]byte(`{"id": 1, "authToken": "tok-linked"}`))
	})

	var polled []int
	token, err := svc.WaitForPin(context.Background(), 1, PinPollOptions{
		Interval: 10 * time.Millisecond,
		Timeout:  5 * time.Second,
		OnPoll:   func(attempt int) { polled = append(polled, attempt) },
	})
	require.NoError(t, err)
	assert.Equal(t, "tok-linked", token)
	assert.Equal(t, []int{1, 2}, polled)
}

func TestAuthService_WaitForPin_Timeout(t *testing.T) {
	svc := newTestAuthService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": 1, "authToken": ""}`))
	})

	var calls atomic.Int32
	start := time.Now()
	_, err := svc.WaitForPin(context.Background(), 1, PinPollOptions{
		Interval: 10 * time.Millisecond,
		Timeout:  100 * time.Millisecond,
		OnPoll:   func(int) { calls.Add(1) },
	})
	require.ErrorIs(t, err, domain.ErrPINTimeout)
	assert.GreaterOrEqual(t, calls.Load(), int32(5), "should keep polling until the deadline")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestAuthService_WaitForPin_ContextCancel(t *testing.T) {
	svc := newTestAuthService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": 1, "authToken": ""}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := svc.WaitForPin(ctx, 1, PinPollOptions{
		Interval: 10 * time.Millisecond,
		Timeout:  10 * time.Second,
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestAuthService_User(t *testing.T) {
	svc := newTestAuthService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/user", r.URL.Path)
		assert.Equal(t, "tok-secret", r.Header.Get("X-Plex-Token"))
		w.Write([]byte(`{"id": 77, "uuid": "u-77", "username": "kay", "email": "kay@example.com"}`))
	})

	user, err := svc.User(context.Background(), "tok-secret")
	require.NoError(t, err)
	assert.Equal(t, int64(77), user.ID)
	assert.Equal(t, "kay", user.Username)
}

func TestAuthService_User_BadToken(t *testing.T) {
	svc := newTestAuthService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := svc.User(context.Background(), "stale")
	require.ErrorIs(t, err, domain.ErrAuthFailed)
}

func TestAuthService_Servers_FiltersNonServers(t *testing.T) {
	svc := newTestAuthService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/resources", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("includeHttps"))
		assert.Equal(t, "1", r.URL.Query().Get("includeRelay"))
		w.Write([]byte(`[
			{
				"name": "den", "product": "Plex Media Server", "clientIdentifier": "srv-1",
				"provides": "server", "accessToken": "srv-tok", "owned": true,
				"connections": [
					{"uri": "https://10-0-0-5.x.plex.direct:32400", "protocol": "https", "address": "10.0.0.5", "port": 32400, "local": true, "relay": false},
					{"uri": "https://relay.plex.direct:8443", "protocol": "https", "address": "relay", "port": 8443, "local": false, "relay": true}
				]
			},
			{"name": "tv", "product": "Plex for Android", "clientIdentifier": "cli-1", "provides": "client", "connections": []}
		]`))
	})

	servers, err := svc.Servers(context.Background(), "acct-tok")
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, "den", servers[0].Name)
	assert.Equal(t, "srv-1", servers[0].ID)
	assert.Equal(t, "srv-tok", servers[0].AccessToken)
	assert.True(t, servers[0].Owned)
	require.Len(t, servers[0].Connections, 2)
	assert.True(t, servers[0].Connections[0].Local)
	assert.True(t, servers[0].Connections[1].Relay)
}

func TestRankConnections(t *testing.T) {
	relay := domain.PlexConnection{URI: "https://relay-1", Relay: true}
	local := domain.PlexConnection{URI: "https://local-1", Local: true}
	remoteA := domain.PlexConnection{URI: "https://remote-a"}
	remoteB := domain.PlexConnection{URI: "https://remote-b"}

	t.Run("local beats remote beats relay", func(t *testing.T) {
		ranked := RankConnections([]domain.PlexConnection{relay, remoteA, local})
		require.Len(t, ranked, 3)
		assert.Equal(t, "https://local-1", ranked[0].URI)
		assert.Equal(t, "https://remote-a", ranked[1].URI)
		assert.Equal(t, "https://relay-1", ranked[2].URI)
	})

	t.Run("relay sandwich resolves to local first", func(t *testing.T) {
		ranked := RankConnections([]domain.PlexConnection{relay, local, relay})
		assert.Equal(t, "https://local-1", ranked[0].URI)
	})

	t.Run("same-class order is stable", func(t *testing.T) {
		ranked := RankConnections([]domain.PlexConnection{remoteB, remoteA})
		assert.Equal(t, "https://remote-b", ranked[0].URI)
		assert.Equal(t, "https://remote-a", ranked[1].URI)
	})

	t.Run("input slice is left untouched", func(t *testing.T) {
		in := []domain.PlexConnection{relay, local}
		RankConnections(in)
		assert.Equal(t, "https://relay-1", in[0].URI)
	})
}
