package tui

import (
	"context"

	"github.com/flixor/flixor/internal/domain"
	"github.com/flixor/flixor/internal/playback"
)

// Messages produced by async commands

// ErrMsg reports a failed operation with context for the status line
type ErrMsg struct {
	Err     error
	Context string
}

// PinCreatedMsg delivers a fresh device-link PIN to display
type PinCreatedMsg struct {
	Pin *domain.PlexPin
}

// AuthCompletedMsg signals that the PIN was claimed and a token adopted
type AuthCompletedMsg struct{}

// ServersLoadedMsg delivers the account's server resources
type ServersLoadedMsg struct {
	Servers []domain.PlexServer
}

// ConnectedMsg signals a successful server connection
type ConnectedMsg struct {
	Server     domain.PlexServer
	Connection domain.PlexConnection
}

// BrowseLoadedMsg delivers the browse rows (on deck + recently added)
type BrowseLoadedMsg struct {
	Items []domain.MediaItem
}

// SearchResultsMsg delivers ranked server search results
type SearchResultsMsg struct {
	Query string
	Items []domain.MediaItem
}

// ChildrenLoadedMsg delivers the child rows of a show or season
type ChildrenLoadedMsg struct {
	Parent domain.MediaItem
	Items  []domain.MediaItem
}

// PlaybackReadyMsg carries a loaded controller and its playback URL.
// Cancel ends the reporting loop; Stop must run first so the teardown
// reports still go out.
type PlaybackReadyMsg struct {
	Controller *playback.Controller
	Cancel     context.CancelFunc
	URL        string
	Item       domain.MediaItem
}

// PlaybackEventMsg carries one controller event; the update loop
// re-subscribes after each one
type PlaybackEventMsg struct {
	Event playback.Event
}

// PlaybackEventsClosedMsg signals the controller's event stream ended
type PlaybackEventsClosedMsg struct{}

// FallbackDoneMsg delivers the replacement URL after a forced-transcode
// retry
type FallbackDoneMsg struct {
	URL string
}

// PlaybackStoppedMsg signals that teardown finished
type PlaybackStoppedMsg struct{}

// TickMsg drives the spinner animation
type TickMsg struct{}

// PlayTickMsg advances the assumed playback position once per second
type PlayTickMsg struct{}

// ClearStatusMsg clears the status line
type ClearStatusMsg struct{}
