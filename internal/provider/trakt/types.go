package trakt

import "time"

// Media type path segments.
const (
	TypeMovies = "movies"
	TypeShows  = "shows"
)

// Title identifies one movie or show across providers.
type Title struct {
	Title string
	Year  int
	Trakt int64
	Slug  string
	IMDB  string
	TMDB  int64
}

// TrendingItem is one trending feed entry.
type TrendingItem struct {
	Watchers  int
	MediaType string // "movie" or "show"
	Title     Title
}

// HistoryItem is one watch history entry.
type HistoryItem struct {
	ID        int64
	WatchedAt time.Time
	Action    string // "watch", "checkin" or "scrobble"
	MediaType string
	Title     Title
}

// Wire DTOs.

type deviceCodeRequest struct {
	ClientID string `json:"client_id"`
}

type deviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURL string `json:"verification_url"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

type deviceTokenRequest struct {
	Code         string `json:"code"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	CreatedAt    int64  `json:"created_at"`
}

type ids struct {
	Trakt int64  `json:"trakt"`
	Slug  string `json:"slug,omitempty"`
	IMDB  string `json:"imdb,omitempty"`
	TMDB  int64  `json:"tmdb,omitempty"`
}

type titleEntry struct {
	Title string `json:"title"`
	Year  int    `json:"year"`
	IDs   ids    `json:"ids"`
}

type trendingEntry struct {
	Watchers int         `json:"watchers"`
	Movie    *titleEntry `json:"movie"`
	Show     *titleEntry `json:"show"`
}

type historyEntry struct {
	ID        int64       `json:"id"`
	WatchedAt string      `json:"watched_at"`
	Action    string      `json:"action"`
	Type      string      `json:"type"`
	Movie     *titleEntry `json:"movie"`
	Show      *titleEntry `json:"show"`
	Episode   *titleEntry `json:"episode"`
}

type idsEntry struct {
	IDs ids `json:"ids"`
}

type historyAddRequest struct {
	Movies   []idsEntry `json:"movies,omitempty"`
	Episodes []idsEntry `json:"episodes,omitempty"`
}

func mapTitle(e *titleEntry) Title {
	if e == nil {
		return Title{}
	}
	return Title{
		Title: e.Title,
		Year:  e.Year,
		Trakt: e.IDs.Trakt,
		Slug:  e.IDs.Slug,
		IMDB:  e.IDs.IMDB,
		TMDB:  e.IDs.TMDB,
	}
}

func mapTrending(e trendingEntry) TrendingItem {
	item := TrendingItem{Watchers: e.Watchers}
	switch {
	case e.Movie != nil:
		item.MediaType = "movie"
		item.Title = mapTitle(e.Movie)
	case e.Show != nil:
		item.MediaType = "show"
		item.Title = mapTitle(e.Show)
	}
	return item
}

func mapHistory(e historyEntry) HistoryItem {
	item := HistoryItem{
		ID:        e.ID,
		Action:    e.Action,
		MediaType: e.Type,
	}
	if t, err := time.Parse(time.RFC3339, e.WatchedAt); err == nil {
		item.WatchedAt = t
	}
	switch {
	case e.Episode != nil:
		item.Title = mapTitle(e.Episode)
	case e.Movie != nil:
		item.Title = mapTitle(e.Movie)
	case e.Show != nil:
		item.Title = mapTitle(e.Show)
	}
	return item
}
