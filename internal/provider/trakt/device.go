package trakt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/flixor/flixor/internal/domain"
)

// Device-code poll defaults, used when the server response carries none.
const (
	defaultPollInterval = 5 * time.Second
	defaultPollTimeout  = 600 * time.Second
)

// DeviceCode is a device-link challenge. The user enters UserCode at
// VerificationURL while the app polls with DeviceCode.
type DeviceCode struct {
	DeviceCode      string
	UserCode        string
	VerificationURL string
	ExpiresIn       time.Duration
	Interval        time.Duration
}

// Token is the OAuth token pair a finished device flow yields.
type Token struct {
	AccessToken  string
	RefreshToken string
	Scope        string
	CreatedAt    time.Time
	ExpiresIn    time.Duration
}

// DevicePollOptions tunes WaitForDeviceAuth. Zero values fall back to the
// server-suggested interval and the code's own expiry.
type DevicePollOptions struct {
	Interval time.Duration
	Timeout  time.Duration
	// OnPoll is called after each poll attempt, for progress display.
	OnPoll func(attempt int)
}

// StartDeviceAuth requests a device code.
func (s *Service) StartDeviceAuth(ctx context.Context) (*DeviceCode, error) {
	body, status, err := s.do(ctx, http.MethodPost, "/oauth/device/code", deviceCodeRequest{ClientID: s.clientID}, false)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("trakt: device code request returned status %d", status)
	}

	var resp deviceCodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("trakt: decode device code: %w", err)
	}

	s.logger.Info("device code created", "user_code", resp.UserCode, "expires_in", resp.ExpiresIn)
	return &DeviceCode{
		DeviceCode:      resp.DeviceCode,
		UserCode:        resp.UserCode,
		VerificationURL: resp.VerificationURL,
		ExpiresIn:       time.Duration(resp.ExpiresIn) * time.Second,
		Interval:        time.Duration(resp.Interval) * time.Second,
	}, nil
}

// WaitForDeviceAuth polls the token endpoint until the user approves the
// code, the code dies, or the deadline passes. A 429 doubles the poll
// interval as the server asks; 400 means pending and keeps the loop going.
// On success the token is installed on the service and returned.
func (s *Service) WaitForDeviceAuth(ctx context.Context, code *DeviceCode, opts DevicePollOptions) (*Token, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = code.Interval
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = code.ExpiresIn
	}
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	poll := time.NewTimer(interval)
	defer poll.Stop()

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, domain.ErrDeviceCodeTimeout
		case <-poll.C:
			attempt++
			tok, slowDown, err := s.pollDeviceToken(ctx, code.DeviceCode)
			if err != nil {
				return nil, err
			}
			if opts.OnPoll != nil {
				opts.OnPoll(attempt)
			}
			if tok != nil {
				s.SetAccessToken(tok.AccessToken)
				s.logger.Info("device authorized", "attempts", attempt)
				return tok, nil
			}
			if slowDown {
				interval *= 2
			}
			poll.Reset(interval)
		}
	}
}

// pollDeviceToken runs one poll. A nil token with nil error means keep
// polling; slowDown carries the server's 429 backoff request.
func (s *Service) pollDeviceToken(ctx context.Context, deviceCode string) (tok *Token, slowDown bool, err error) {
	payload := deviceTokenRequest{
		Code:         deviceCode,
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
	}
	body, status, err := s.do(ctx, http.MethodPost, "/oauth/device/token", payload, false)
	if err != nil {
		return nil, false, err
	}

	switch status {
	case http.StatusOK:
		var resp tokenResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, false, fmt.Errorf("trakt: decode token: %w", err)
		}
		return &Token{
			AccessToken:  resp.AccessToken,
			RefreshToken: resp.RefreshToken,
			Scope:        resp.Scope,
			CreatedAt:    time.Unix(resp.CreatedAt, 0),
			ExpiresIn:    time.Duration(resp.ExpiresIn) * time.Second,
		}, false, nil
	case http.StatusBadRequest:
		// Pending: the user has not entered the code yet.
		return nil, false, nil
	case http.StatusTooManyRequests:
		return nil, true, nil
	case http.StatusNotFound:
		return nil, false, errors.New("trakt: device code not recognized")
	case http.StatusConflict:
		return nil, false, errors.New("trakt: device code already approved")
	case http.StatusGone:
		return nil, false, fmt.Errorf("%w: device code expired", domain.ErrDeviceCodeTimeout)
	case http.StatusTeapot:
		return nil, false, domain.ErrDeviceCodeDenied
	default:
		return nil, false, fmt.Errorf("trakt: token poll returned status %d", status)
	}
}
