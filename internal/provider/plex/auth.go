package plex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/flixor/flixor/internal/domain"
)

const plexTVBaseURL = "https://plex.tv"

// Default PIN polling cadence. plex.tv PINs live for roughly 15 minutes;
// five is plenty for a user typing a four character code.
const (
	DefaultPinPollInterval = 2 * time.Second
	DefaultPinPollTimeout  = 300 * time.Second
)

// AuthService talks to plex.tv: PIN device linking, account lookup and
// server resource discovery. It never talks to a media server directly.
type AuthService struct {
	baseURL  string
	client   *http.Client
	identity Identity
	logger   *slog.Logger
}

// NewAuthService returns an AuthService using the given client identity.
// A nil logger falls back to slog.Default().
func NewAuthService(identity Identity, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		baseURL:  plexTVBaseURL,
		client:   &http.Client{Timeout: defaultTimeout},
		identity: identity,
		logger:   logger,
	}
}

// CreatePin requests a new non-strong link PIN from plex.tv. The returned
// code is what the user enters at plex.tv/link.
func (s *AuthService) CreatePin(ctx context.Context) (*domain.PlexPin, error) {
	query := url.Values{}
	query.Set("strong", "false")

	body, err := doRequest(ctx, s.client, s.identity, "", http.MethodPost, s.baseURL+"/api/v2/pins", query)
	if err != nil {
		return nil, fmt.Errorf("create pin: %w", err)
	}

	var resp pinResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode pin response: %w", err)
	}

	pin := &domain.PlexPin{ID: resp.ID, Code: resp.Code}
	if resp.ExpiresAt != "" {
		if ts, err := time.Parse(time.RFC3339, resp.ExpiresAt); err == nil {
			pin.ExpiresAt = ts
		}
	}

	s.logger.Debug("created link pin", "pin_id", pin.ID)
	return pin, nil
}

// CheckPin asks plex.tv whether the PIN has been claimed. It returns the
// auth token once the user has linked, ("", nil) while the claim is still
// pending, and ErrPINExpired once plex.tv has forgotten the PIN.
func (s *AuthService) CheckPin(ctx context.Context, id int) (string, error) {
	body, err := doRequest(ctx, s.client, s.identity, "", http.MethodGet, fmt.Sprintf("%s/api/v2/pins/%d", s.baseURL, id), nil)
	if err != nil {
		if errors.Is(err, domain.ErrItemNotFound) {
			return "", domain.ErrPINExpired
		}
		return "", fmt.Errorf("check pin: %w", err)
	}

	var resp pinResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode pin response: %w", err)
	}

	return resp.AuthToken, nil
}

// PinPollOptions tunes WaitForPin. Zero values pick the defaults; OnPoll,
// when set, is invoked after every unclaimed poll with the attempt number.
type PinPollOptions struct {
	Interval time.Duration
	Timeout  time.Duration
	OnPoll   func(attempt int)
}

// WaitForPin polls CheckPin until the user claims the PIN, the PIN expires,
// the timeout elapses (ErrPINTimeout) or ctx is cancelled.
func (s *AuthService) WaitForPin(ctx context.Context, id int, opts PinPollOptions) (string, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPinPollInterval
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultPinPollTimeout
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", domain.ErrPINTimeout
		case <-ticker.C:
			attempt++
			token, err := s.CheckPin(ctx, id)
			if err != nil {
				return "", err
			}
			if token != "" {
				s.logger.Info("link pin claimed", "attempts", attempt)
				return token, nil
			}
			if opts.OnPoll != nil {
				opts.OnPoll(attempt)
			}
		}
	}
}

// User fetches the plex.tv account behind a token. A 401 surfaces as
// ErrAuthFailed, which callers use to detect stale persisted tokens.
func (s *AuthService) User(ctx context.Context, token string) (*domain.PlexUser, error) {
	body, err := doRequest(ctx, s.client, s.identity, token, http.MethodGet, s.baseURL+"/api/v2/user", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch user: %w", err)
	}

	var resp userResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode user response: %w", err)
	}

	return &domain.PlexUser{
		ID:       resp.ID,
		UUID:     resp.UUID,
		Username: resp.Username,
		Email:    resp.Email,
		Thumb:    resp.Thumb,
	}, nil
}

// Servers lists the media servers the account can reach, including their
// relay connections. Devices that provide other services are filtered out.
func (s *AuthService) Servers(ctx context.Context, token string) ([]domain.PlexServer, error) {
	query := url.Values{}
	query.Set("includeHttps", "1")
	query.Set("includeRelay", "1")

	body, err := doRequest(ctx, s.client, s.identity, token, http.MethodGet, s.baseURL+"/api/v2/resources", query)
	if err != nil {
		return nil, fmt.Errorf("fetch resources: %w", err)
	}

	var resources []resourceEntry
	if err := json.Unmarshal(body, &resources); err != nil {
		return nil, fmt.Errorf("decode resources response: %w", err)
	}

	servers := make([]domain.PlexServer, 0, len(resources))
	for _, r := range resources {
		if !strings.Contains(r.Provides, "server") {
			continue
		}
		srv := domain.PlexServer{
			ID:          r.ClientIdentifier,
			Name:        r.Name,
			Product:     r.Product,
			Owned:       r.Owned,
			AccessToken: r.AccessToken,
		}
		for _, c := range r.Connections {
			srv.Connections = append(srv.Connections, domain.PlexConnection{
				URI:      c.URI,
				Protocol: c.Protocol,
				Address:  c.Address,
				Port:     c.Port,
				Local:    c.Local,
				Relay:    c.Relay,
			})
		}
		servers = append(servers, srv)
	}

	s.logger.Debug("discovered servers", "count", len(servers))
	return servers, nil
}

// RankConnections orders candidate connections for probing: local first,
// then remote, relays last. The sort is stable so same-class connections
// keep the order plex.tv returned them in.
func RankConnections(conns []domain.PlexConnection) []domain.PlexConnection {
	ranked := make([]domain.PlexConnection, len(conns))
	copy(ranked, conns)
	sort.SliceStable(ranked, func(i, j int) bool {
		return connRank(ranked[i]) < connRank(ranked[j])
	})
	return ranked
}

func connRank(c domain.PlexConnection) int {
	switch {
	case c.Relay:
		return 2
	case c.Local:
		return 0
	default:
		return 1
	}
}
