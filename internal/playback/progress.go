package playback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Progress is one coarse progress beacon for the settings backend.
// Time and Duration are milliseconds.
type Progress struct {
	RatingKey string `json:"ratingKey"`
	Time      int64  `json:"time"`
	Duration  int64  `json:"duration"`
	State     string `json:"state"`
}

// ProgressClient posts progress beacons to the settings backend.
type ProgressClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewProgressClient binds a client to the backend root URL.
func NewProgressClient(baseURL string, logger *slog.Logger) *ProgressClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// ReportProgress posts one beacon.
func (p *ProgressClient) ReportProgress(ctx context.Context, pr Progress) error {
	body, err := json.Marshal(pr)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/plex/progress", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build progress request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("post progress: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("progress endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
