// Package plex implements the Plex provider clients: plex.tv account and
// device-link auth, per-server library/transcode/timeline operations, and
// the discover watchlist.
package plex

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/flixor/flixor/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second
	userAgent      = "Flixor/1.0"
)

// Identity carries the client-identification headers sent on every Plex
// call. The identifier is the persisted per-install UUID.
type Identity struct {
	ClientID   string
	Product    string
	Version    string
	Platform   string
	Device     string
	DeviceName string
}

// apply sets the X-Plex-* identity headers on a request.
func (id Identity) apply(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Plex-Client-Identifier", id.ClientID)
	req.Header.Set("X-Plex-Product", id.Product)
	req.Header.Set("X-Plex-Version", id.Version)
	req.Header.Set("X-Plex-Platform", id.Platform)
	req.Header.Set("X-Plex-Device", id.Device)
	req.Header.Set("X-Plex-Device-Name", id.DeviceName)
}

// doRequest performs one identified HTTP request and returns the body.
// 401 maps to domain.ErrAuthFailed, transport failure to
// domain.ErrServerOffline; other non-2xx statuses return a plain error.
func doRequest(ctx context.Context, client *http.Client, id Identity, token, method, rawURL string, query url.Values) ([]byte, error) {
	if query != nil {
		rawURL = fmt.Sprintf("%s?%s", rawURL, query.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	id.apply(req)
	if token != "" {
		req.Header.Set("X-Plex-Token", token)
	}

	return do(client, req)
}

// do executes a prepared request and maps the response status. Split from
// doRequest for callers that need extra headers on the request.
func do(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrServerOffline, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, domain.ErrAuthFailed
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrItemNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return body, nil
}
