// Package trakt implements a Trakt API v2 client: device-code OAuth,
// trending feeds and watch history.
package trakt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/flixor/flixor/internal/cache"
	"github.com/flixor/flixor/internal/domain"
)

const (
	defaultBaseURL = "https://api.trakt.tv"
	apiVersion     = "2"
)

// Service is a Trakt API client. The access token is optional; endpoints
// that need one fail with ErrNotAuthenticated when it is missing.
type Service struct {
	baseURL      string
	clientID     string
	clientSecret string
	client       *http.Client
	cache        cache.Cache
	logger       *slog.Logger

	mu    sync.RWMutex
	token string
}

// NewService builds a client. The client id is required; the secret is
// only needed for the device-code token exchange.
func NewService(clientID, clientSecret string, c cache.Cache, logger *slog.Logger) (*Service, error) {
	if clientID == "" {
		return nil, errors.New("trakt: client id is required")
	}
	if c == nil {
		c = cache.NewNoOpCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		baseURL:      defaultBaseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       &http.Client{Timeout: 30 * time.Second},
		cache:        c,
		logger:       logger,
	}, nil
}

// SetAccessToken installs a bearer token for authenticated endpoints,
// typically restored from secure storage or fresh from WaitForDeviceAuth.
func (s *Service) SetAccessToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *Service) accessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// IsAuthenticated reports whether a bearer token is installed.
func (s *Service) IsAuthenticated() bool {
	return s.accessToken() != ""
}

// apply sets the headers every Trakt API call carries.
func (s *Service) apply(req *http.Request, authenticated bool) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("trakt-api-version", apiVersion)
	req.Header.Set("trakt-api-key", s.clientID)
	if authenticated {
		req.Header.Set("Authorization", "Bearer "+s.accessToken())
	}
}

// do performs one API call and returns the body and status. Only transport
// failures are errors here; status handling stays with the caller because
// the device-code flow gives 4xx codes flow meanings.
func (s *Service) do(ctx context.Context, method, path string, payload any, authenticated bool) ([]byte, int, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("trakt: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, 0, fmt.Errorf("trakt: build request: %w", err)
	}
	s.apply(req, authenticated)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrServerOffline, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("trakt: read response: %w", err)
	}
	return data, resp.StatusCode, nil
}

// get is the cached read path for API endpoints.
func (s *Service) get(ctx context.Context, path string, ttl time.Duration, authenticated bool) ([]byte, error) {
	key := cache.Key("trakt", s.baseURL, path, nil)
	return cache.Fetch(ctx, s.cache, key, ttl, func(ctx context.Context) ([]byte, error) {
		body, status, err := s.do(ctx, http.MethodGet, path, nil, authenticated)
		if err != nil {
			return nil, err
		}
		switch status {
		case http.StatusOK:
			return body, nil
		case http.StatusUnauthorized, http.StatusForbidden:
			return nil, fmt.Errorf("%w: trakt rejected the request", domain.ErrAuthFailed)
		case http.StatusNotFound:
			return nil, domain.ErrItemNotFound
		default:
			return nil, fmt.Errorf("trakt: unexpected status %d", status)
		}
	})
}

// Trending returns what Trakt users are watching right now. mediaType is
// "movies" or "shows".
func (s *Service) Trending(ctx context.Context, mediaType string) ([]TrendingItem, error) {
	if mediaType == "" {
		mediaType = TypeMovies
	}

	body, err := s.get(ctx, "/"+mediaType+"/trending", cache.TTLTrending, false)
	if err != nil {
		return nil, err
	}

	var entries []trendingEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("trakt: decode trending: %w", err)
	}

	items := make([]TrendingItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, mapTrending(e))
	}
	return items, nil
}

// History returns the account's watch history, most recent first.
func (s *Service) History(ctx context.Context) ([]HistoryItem, error) {
	if !s.IsAuthenticated() {
		return nil, domain.ErrNotAuthenticated
	}

	body, err := s.get(ctx, "/sync/history", cache.TTLDynamic, true)
	if err != nil {
		return nil, err
	}

	var entries []historyEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("trakt: decode history: %w", err)
	}

	items := make([]HistoryItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, mapHistory(e))
	}
	return items, nil
}

// AddToHistory marks titles as watched by Trakt ID and invalidates the
// cached history so the next read reflects the write.
func (s *Service) AddToHistory(ctx context.Context, movieIDs, episodeIDs []int64) error {
	if !s.IsAuthenticated() {
		return domain.ErrNotAuthenticated
	}
	if len(movieIDs) == 0 && len(episodeIDs) == 0 {
		return nil
	}

	payload := historyAddRequest{}
	for _, id := range movieIDs {
		payload.Movies = append(payload.Movies, idsEntry{IDs: ids{Trakt: id}})
	}
	for _, id := range episodeIDs {
		payload.Episodes = append(payload.Episodes, idsEntry{IDs: ids{Trakt: id}})
	}

	_, status, err := s.do(ctx, http.MethodPost, "/sync/history", payload, true)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusCreated:
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: trakt rejected the request", domain.ErrAuthFailed)
	default:
		return fmt.Errorf("trakt: history write returned status %d", status)
	}

	removed := s.cache.DeletePattern("trakt:*history*")
	s.logger.Debug("history cache invalidated", "entries", removed)
	return nil
}
