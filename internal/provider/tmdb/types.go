package tmdb

import "strconv"

// Item is one title in a list response.
type Item struct {
	ID          int64
	MediaType   string // "movie" or "tv"
	Title       string
	Overview    string
	Year        int
	PosterPath  string
	VoteAverage float64
}

// Details is a full title record.
type Details struct {
	ID          int64
	MediaType   string
	Title       string
	Overview    string
	Year        int
	Runtime     int // minutes; movies only
	Seasons     int // shows only
	Episodes    int // shows only
	Genres      []string
	PosterPath  string
	VoteAverage float64
	Tagline     string
	Status      string
}

// Wire DTOs. Movies and shows use different field names for the same
// things; mapping normalizes them.

type listResponse struct {
	Page         int         `json:"page"`
	Results      []itemEntry `json:"results"`
	TotalPages   int         `json:"total_pages"`
	TotalResults int         `json:"total_results"`
}

type itemEntry struct {
	ID           int64   `json:"id"`
	MediaType    string  `json:"media_type"`
	Title        string  `json:"title"` // movies
	Name         string  `json:"name"`  // shows
	Overview     string  `json:"overview"`
	ReleaseDate  string  `json:"release_date"`   // movies
	FirstAirDate string  `json:"first_air_date"` // shows
	PosterPath   string  `json:"poster_path"`
	VoteAverage  float64 `json:"vote_average"`
}

type detailsEntry struct {
	ID           int64        `json:"id"`
	Title        string       `json:"title"`
	Name         string       `json:"name"`
	Overview     string       `json:"overview"`
	ReleaseDate  string       `json:"release_date"`
	FirstAirDate string       `json:"first_air_date"`
	Runtime      int          `json:"runtime"`
	Seasons      int          `json:"number_of_seasons"`
	Episodes     int          `json:"number_of_episodes"`
	Genres       []genreEntry `json:"genres"`
	PosterPath   string       `json:"poster_path"`
	VoteAverage  float64      `json:"vote_average"`
	Tagline      string       `json:"tagline"`
	Status       string       `json:"status"`
}

type genreEntry struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func mapItem(e itemEntry, fallbackType string) Item {
	mediaType := e.MediaType
	if mediaType == "" {
		mediaType = fallbackType
	}

	title := e.Title
	date := e.ReleaseDate
	if title == "" {
		title = e.Name
		date = e.FirstAirDate
	}

	return Item{
		ID:          e.ID,
		MediaType:   mediaType,
		Title:       title,
		Overview:    e.Overview,
		Year:        yearOf(date),
		PosterPath:  e.PosterPath,
		VoteAverage: e.VoteAverage,
	}
}

func mapDetails(e detailsEntry, mediaType string) *Details {
	title := e.Title
	date := e.ReleaseDate
	if title == "" {
		title = e.Name
		date = e.FirstAirDate
	}

	genres := make([]string, 0, len(e.Genres))
	for _, g := range e.Genres {
		genres = append(genres, g.Name)
	}

	return &Details{
		ID:          e.ID,
		MediaType:   mediaType,
		Title:       title,
		Overview:    e.Overview,
		Year:        yearOf(date),
		Runtime:     e.Runtime,
		Seasons:     e.Seasons,
		Episodes:    e.Episodes,
		Genres:      genres,
		PosterPath:  e.PosterPath,
		VoteAverage: e.VoteAverage,
		Tagline:     e.Tagline,
		Status:      e.Status,
	}
}

// yearOf extracts the year from a "2006-01-02" date, 0 when absent.
func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	y, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return y
}
