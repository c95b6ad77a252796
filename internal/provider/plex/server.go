package plex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/flixor/flixor/internal/cache"
	"github.com/flixor/flixor/internal/domain"
)

const (
	transcodeDecisionPath = "/video/:/transcode/universal/decision"
	transcodeStopPath     = "/video/:/transcode/universal/stop"
	timelinePath          = "/:/timeline"
)

// ServerService talks to one media server over one chosen connection.
// Browse endpoints go through the cache with per-endpoint TTL classes;
// decision, session and timeline traffic is never cached.
type ServerService struct {
	baseURL  string
	token    string
	client   *http.Client
	identity Identity
	cache    cache.Cache
	logger   *slog.Logger
}

// NewServerService returns a service bound to baseURL with the server
// access token. A nil cache disables caching, a nil logger falls back to
// slog.Default().
func NewServerService(baseURL, token string, identity Identity, c cache.Cache, logger *slog.Logger) *ServerService {
	if c == nil {
		c = cache.NewNoOpCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ServerService{
		baseURL:  baseURL,
		token:    token,
		client:   &http.Client{Timeout: defaultTimeout},
		identity: identity,
		cache:    c,
		logger:   logger,
	}
}

// BaseURL returns the connection URI the service was bound to.
func (s *ServerService) BaseURL() string {
	return s.baseURL
}

// Probe checks whether a connection URI answers the identity endpoint
// within timeout. It uses its own client so the per-connection timeout
// cannot be stretched by a slow shared transport.
func Probe(ctx context.Context, identity Identity, uri, token string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := &http.Client{Timeout: timeout}
	_, err := doRequest(ctx, client, identity, token, http.MethodGet, uri+"/identity", nil)
	return err
}

func flatten(q url.Values) map[string]string {
	if len(q) == 0 {
		return nil
	}
	m := make(map[string]string, len(q))
	for k := range q {
		m[k] = q.Get(k)
	}
	return m
}

// cachedGet is the single read path for browse endpoints. The ttl class
// decides cache behavior; ttl <= 0 skips the cache entirely.
func (s *ServerService) cachedGet(ctx context.Context, path string, query url.Values, ttl time.Duration) ([]byte, error) {
	key := cache.Key("plex", s.baseURL, path, flatten(query))
	return cache.Fetch(ctx, s.cache, key, ttl, func(ctx context.Context) ([]byte, error) {
		return doRequest(ctx, s.client, s.identity, s.token, http.MethodGet, s.baseURL+path, query)
	})
}

// Libraries lists the movie and show sections on the server.
func (s *ServerService) Libraries(ctx context.Context) ([]domain.Library, error) {
	body, err := s.cachedGet(ctx, "/library/sections", nil, cache.TTLStatic)
	if err != nil {
		return nil, fmt.Errorf("fetch libraries: %w", err)
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode libraries response: %w", err)
	}

	var libs []domain.Library
	for _, d := range resp.MediaContainer.Directory {
		if d.Type != "movie" && d.Type != "show" {
			continue
		}
		libs = append(libs, domain.Library{ID: d.Key, Name: d.Title, Type: d.Type})
	}
	return libs, nil
}

// OnDeck returns the continue-watching row.
func (s *ServerService) OnDeck(ctx context.Context) ([]domain.MediaItem, error) {
	return s.fetchItems(ctx, "/library/onDeck", nil, cache.TTLDynamic)
}

// RecentlyAdded returns the newest library additions.
func (s *ServerService) RecentlyAdded(ctx context.Context) ([]domain.MediaItem, error) {
	return s.fetchItems(ctx, "/library/recentlyAdded", nil, cache.TTLDynamic)
}

// LibraryItems returns every item in a library section.
func (s *ServerService) LibraryItems(ctx context.Context, libraryID string) ([]domain.MediaItem, error) {
	return s.fetchItems(ctx, "/library/sections/"+libraryID+"/all", nil, cache.TTLDynamic)
}

// Search runs a server-side title search.
func (s *ServerService) Search(ctx context.Context, query string) ([]domain.MediaItem, error) {
	q := url.Values{}
	q.Set("query", query)
	return s.fetchItems(ctx, "/search", q, cache.TTLShort)
}

// Children returns the child items of a container: seasons of a show,
// episodes of a season.
func (s *ServerService) Children(ctx context.Context, ratingKey string) ([]domain.MediaItem, error) {
	return s.fetchItems(ctx, "/library/metadata/"+ratingKey+"/children", nil, cache.TTLDynamic)
}

func (s *ServerService) fetchItems(ctx context.Context, path string, query url.Values, ttl time.Duration) ([]domain.MediaItem, error) {
	body, err := s.cachedGet(ctx, path, query, ttl)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}

	return mapMediaItems(resp.MediaContainer.Metadata), nil
}

// Metadata fetches full metadata for one item, including its media parts.
func (s *ServerService) Metadata(ctx context.Context, ratingKey string) (*domain.MediaItem, error) {
	body, err := s.cachedGet(ctx, "/library/metadata/"+ratingKey, nil, cache.TTLStatic)
	if err != nil {
		return nil, fmt.Errorf("fetch metadata %s: %w", ratingKey, err)
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode metadata response: %w", err)
	}
	if len(resp.MediaContainer.Metadata) == 0 {
		return nil, domain.ErrItemNotFound
	}

	item := mapMediaItem(resp.MediaContainer.Metadata[0])
	return &item, nil
}

// PartURL returns the direct file URL for the item's first media part.
func (s *ServerService) PartURL(item *domain.MediaItem) (string, error) {
	if item.PartKey == "" {
		return "", domain.ErrNoMediaPart
	}
	return s.BuildURL(item.PartKey, nil), nil
}

// BuildURL joins a server path and query with the access token appended.
func (s *ServerService) BuildURL(path string, query url.Values) string {
	q := url.Values{}
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("X-Plex-Token", s.token)
	return s.baseURL + path + "?" + q.Encode()
}

// TranscodeDecision asks the server how it would deliver a part for the
// capabilities in query. profileExtra declares what the client can decode;
// it rides along as the X-Plex-Client-Profile-Extra header. The response is
// parsed with centralized stream defaults; see parseTranscodeDecision.
func (s *ServerService) TranscodeDecision(ctx context.Context, query url.Values, profileExtra string) (*TranscodeDecision, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+transcodeDecisionPath+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build decision request: %w", err)
	}
	s.identity.apply(req)
	req.Header.Set("X-Plex-Token", s.token)
	if profileExtra != "" {
		req.Header.Set("X-Plex-Client-Profile-Extra", profileExtra)
	}

	body, err := do(s.client, req)
	if err != nil {
		return nil, fmt.Errorf("decision request: %w", err)
	}
	return parseTranscodeDecision(body)
}

// StartSession primes a transcode by requesting the start playlist.
// Anything but a 200 means the server refused to start the session.
func (s *ServerService) StartSession(ctx context.Context, startURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, startURL, nil)
	if err != nil {
		return fmt.Errorf("build start request: %w", err)
	}
	s.identity.apply(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSessionStart, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", domain.ErrSessionStart, resp.StatusCode)
	}
	return nil
}

// SessionURL returns the playback URL for a started transcode session.
func (s *ServerService) SessionURL(sessionID string) string {
	return fmt.Sprintf("%s/video/:/transcode/universal/session/%s/base/index.m3u8?X-Plex-Token=%s",
		s.baseURL, sessionID, url.QueryEscape(s.token))
}

// StopSession tells the server to tear down a transcode session.
func (s *ServerService) StopSession(ctx context.Context, sessionID string) error {
	query := url.Values{}
	query.Set("session", sessionID)

	if _, err := doRequest(ctx, s.client, s.identity, s.token, http.MethodGet, s.baseURL+transcodeStopPath, query); err != nil {
		return fmt.Errorf("stop session: %w", err)
	}
	return nil
}

// TimelineRequest reports a playback position to the server.
type TimelineRequest struct {
	RatingKey string
	State     string // "playing", "paused" or "stopped"
	Time      time.Duration
	Duration  time.Duration
	SessionID string // client playback session identifier
}

// Timeline posts a playback progress update. The server uses these to keep
// watch state and On Deck position current.
func (s *ServerService) Timeline(ctx context.Context, tr TimelineRequest) error {
	query := url.Values{}
	query.Set("ratingKey", tr.RatingKey)
	query.Set("key", "/library/metadata/"+tr.RatingKey)
	query.Set("state", tr.State)
	query.Set("time", strconv.FormatInt(tr.Time.Milliseconds(), 10))
	query.Set("duration", strconv.FormatInt(tr.Duration.Milliseconds(), 10))
	if tr.SessionID != "" {
		query.Set("X-Plex-Session-Identifier", tr.SessionID)
	}

	if _, err := doRequest(ctx, s.client, s.identity, s.token, http.MethodGet, s.baseURL+timelinePath, query); err != nil {
		return fmt.Errorf("timeline update: %w", err)
	}
	return nil
}
