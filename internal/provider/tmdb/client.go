// Package tmdb implements a TMDB v3 client for discovery feeds, title
// details and cross-provider search.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/flixor/flixor/internal/cache"
	"github.com/flixor/flixor/internal/domain"
)

const defaultBaseURL = "https://api.themoviedb.org/3"

// Media types and windows accepted by the trending endpoint.
const (
	TypeMovie = "movie"
	TypeTV    = "tv"
	TypeAll   = "all"

	WindowDay  = "day"
	WindowWeek = "week"
)

// Service is a TMDB API client with response caching.
type Service struct {
	baseURL string
	apiKey  string
	client  *http.Client
	cache   cache.Cache
	logger  *slog.Logger
}

// NewService builds a client. The api key is required.
func NewService(apiKey string, c cache.Cache, logger *slog.Logger) (*Service, error) {
	if apiKey == "" {
		return nil, errors.New("tmdb: api key is required")
	}
	if c == nil {
		c = cache.NewNoOpCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		cache:   c,
		logger:  logger,
	}, nil
}

// Trending returns the trending feed for a media type ("movie", "tv" or
// "all") over a window ("day" or "week").
func (s *Service) Trending(ctx context.Context, mediaType, window string) ([]Item, error) {
	if mediaType == "" {
		mediaType = TypeAll
	}
	if window == "" {
		window = WindowDay
	}

	body, err := s.get(ctx, "/trending/"+mediaType+"/"+window, nil, cache.TTLTrending)
	if err != nil {
		return nil, err
	}
	return parseList(body, mediaType)
}

// Search runs a multi search across movies and shows.
func (s *Service) Search(ctx context.Context, query string) ([]Item, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("include_adult", "false")

	body, err := s.get(ctx, "/search/multi", q, cache.TTLShort)
	if err != nil {
		return nil, err
	}
	items, err := parseList(body, "")
	if err != nil {
		return nil, err
	}
	// The multi endpoint mixes in people; only titles are useful here.
	out := items[:0]
	for _, it := range items {
		if it.MediaType == TypeMovie || it.MediaType == TypeTV {
			out = append(out, it)
		}
	}
	return out, nil
}

// MovieDetails fetches one movie.
func (s *Service) MovieDetails(ctx context.Context, id int64) (*Details, error) {
	return s.details(ctx, fmt.Sprintf("/movie/%d", id), TypeMovie)
}

// TVDetails fetches one show.
func (s *Service) TVDetails(ctx context.Context, id int64) (*Details, error) {
	return s.details(ctx, fmt.Sprintf("/tv/%d", id), TypeTV)
}

func (s *Service) details(ctx context.Context, path, mediaType string) (*Details, error) {
	body, err := s.get(ctx, path, nil, cache.TTLStatic)
	if err != nil {
		return nil, err
	}

	var d detailsEntry
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, fmt.Errorf("tmdb: decode details: %w", err)
	}
	return mapDetails(d, mediaType), nil
}

// get is the single cached read path. The api key is appended to the
// request but kept out of the cache key.
func (s *Service) get(ctx context.Context, path string, query url.Values, ttl time.Duration) ([]byte, error) {
	params := make(map[string]string, len(query))
	for k := range query {
		params[k] = query.Get(k)
	}
	key := cache.Key("tmdb", s.baseURL, path, params)

	return cache.Fetch(ctx, s.cache, key, ttl, func(ctx context.Context) ([]byte, error) {
		q := url.Values{}
		for k, vs := range query {
			q[k] = vs
		}
		q.Set("api_key", s.apiKey)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path+"?"+q.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("tmdb: build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrServerOffline, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("tmdb: read response: %w", err)
		}

		switch resp.StatusCode {
		case http.StatusOK:
			return body, nil
		case http.StatusUnauthorized:
			return nil, fmt.Errorf("%w: tmdb rejected the api key", domain.ErrAuthFailed)
		case http.StatusNotFound:
			return nil, domain.ErrItemNotFound
		default:
			return nil, fmt.Errorf("tmdb: unexpected status %d", resp.StatusCode)
		}
	})
}

func parseList(body []byte, fallbackType string) ([]Item, error) {
	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("tmdb: decode list: %w", err)
	}

	items := make([]Item, 0, len(resp.Results))
	for _, e := range resp.Results {
		items = append(items, mapItem(e, fallbackType))
	}
	return items, nil
}
