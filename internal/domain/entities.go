package domain

import (
	"fmt"
	"time"
)

// MediaType distinguishes content types
type MediaType int

const (
	MediaTypeMovie MediaType = iota
	MediaTypeShow
	MediaTypeSeason
	MediaTypeEpisode
)

// String returns the Plex type name for the media type
func (t MediaType) String() string {
	switch t {
	case MediaTypeMovie:
		return "movie"
	case MediaTypeShow:
		return "show"
	case MediaTypeSeason:
		return "season"
	case MediaTypeEpisode:
		return "episode"
	default:
		return "unknown"
	}
}

// MediaItem represents a library item as the server reports it
type MediaItem struct {
	RatingKey  string        // Server-stable content identifier
	Title      string        // Display title
	LibraryID  string        // Parent library section ID
	Summary    string        // Plot synopsis
	Year       int           // Release year
	AddedAt    int64         // Unix timestamp when added to library
	Duration   time.Duration // Total runtime
	ViewOffset time.Duration // Watch progress
	IsPlayed   bool          // Whether item is marked as watched
	Type       MediaType

	// Episode-specific fields (empty for movies)
	ShowTitle  string
	SeasonNum  int
	EpisodeNum int

	// Technical metadata from the first media part
	Bitrate       int    // kbps
	Width         int    // Video width in pixels
	Height        int    // Video height in pixels
	VideoCodec    string // e.g. "hevc", "h264"
	AudioCodec    string // e.g. "aac", "eac3"
	AudioChannels int
	Container     string // "mkv", "mp4"
	PartKey       string // Server path of the first media part, e.g. "/library/parts/123/file.mkv"

	ThumbURL string
	ArtURL   string
}

// Playable reports whether the item itself can be handed to a player
func (m MediaItem) Playable() bool {
	return m.Type == MediaTypeMovie || m.Type == MediaTypeEpisode
}

// ShouldResume returns true if playback should resume from the saved position
func (m MediaItem) ShouldResume() bool {
	return m.ViewOffset > 0 && !m.IsPlayed
}

// FormattedDuration returns the duration in a human-readable format
func (m MediaItem) FormattedDuration() string {
	h := int(m.Duration.Hours())
	mins := int(m.Duration.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

// EpisodeCode returns the formatted episode code (e.g., "S01E05")
func (m MediaItem) EpisodeCode() string {
	if m.Type != MediaTypeEpisode {
		return ""
	}
	return fmt.Sprintf("S%02dE%02d", m.SeasonNum, m.EpisodeNum)
}

// DisplayTitle returns the title prefixed with show context for episodes
func (m MediaItem) DisplayTitle() string {
	if m.Type == MediaTypeEpisode && m.ShowTitle != "" {
		return fmt.Sprintf("%s %s · %s", m.ShowTitle, m.EpisodeCode(), m.Title)
	}
	return m.Title
}

// Resolution returns a human-readable resolution string based on video height
func (m MediaItem) Resolution() string {
	switch {
	case m.Height >= 2160:
		return "4K"
	case m.Height >= 1080:
		return "1080p"
	case m.Height >= 720:
		return "720p"
	case m.Height >= 480:
		return "480p"
	case m.Height > 0:
		return fmt.Sprintf("%dp", m.Height)
	default:
		return ""
	}
}

// Library represents a media server library section
type Library struct {
	ID   string // Section key
	Name string // Display name
	Type string // "movie" or "show"
}
