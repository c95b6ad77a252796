package plex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/flixor/flixor/internal/cache"
	"github.com/flixor/flixor/internal/domain"
)

const discoverBaseURL = "https://discover.provider.plex.tv"

// DiscoverService talks to the plex.tv discover API for account-level
// features like the watchlist. It authenticates with the account token,
// not a server access token.
type DiscoverService struct {
	baseURL  string
	token    string
	client   *http.Client
	identity Identity
	cache    cache.Cache
	logger   *slog.Logger
}

// NewDiscoverService returns a DiscoverService for the account token.
func NewDiscoverService(token string, identity Identity, c cache.Cache, logger *slog.Logger) *DiscoverService {
	if c == nil {
		c = cache.NewNoOpCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscoverService{
		baseURL:  discoverBaseURL,
		token:    token,
		client:   &http.Client{Timeout: defaultTimeout},
		identity: identity,
		cache:    c,
		logger:   logger,
	}
}

// Watchlist returns the account watchlist.
func (s *DiscoverService) Watchlist(ctx context.Context) ([]domain.MediaItem, error) {
	path := "/library/sections/watchlist/all"
	key := cache.Key("plextv", s.baseURL, path, nil)

	body, err := cache.Fetch(ctx, s.cache, key, cache.TTLTrending, func(ctx context.Context) ([]byte, error) {
		return doRequest(ctx, s.client, s.identity, s.token, http.MethodGet, s.baseURL+path, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch watchlist: %w", err)
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode watchlist response: %w", err)
	}

	return mapMediaItems(resp.MediaContainer.Metadata), nil
}

// AddToWatchlist puts an item on the account watchlist and invalidates
// cached watchlist reads.
func (s *DiscoverService) AddToWatchlist(ctx context.Context, ratingKey string) error {
	return s.watchlistAction(ctx, "addToWatchlist", ratingKey)
}

// RemoveFromWatchlist removes an item from the account watchlist and
// invalidates cached watchlist reads.
func (s *DiscoverService) RemoveFromWatchlist(ctx context.Context, ratingKey string) error {
	return s.watchlistAction(ctx, "removeFromWatchlist", ratingKey)
}

func (s *DiscoverService) watchlistAction(ctx context.Context, action, ratingKey string) error {
	query := url.Values{}
	query.Set("ratingKey", ratingKey)

	if _, err := doRequest(ctx, s.client, s.identity, s.token, http.MethodPut, s.baseURL+"/actions/"+action, query); err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}

	removed := s.cache.DeletePattern("plextv:*watchlist*")
	s.logger.Debug("invalidated watchlist cache", "entries", removed)
	return nil
}
