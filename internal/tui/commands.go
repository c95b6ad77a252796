package tui

import (
	"context"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/flixor/flixor/internal/core"
	"github.com/flixor/flixor/internal/domain"
	"github.com/flixor/flixor/internal/playback"
	"github.com/flixor/flixor/internal/player"
	"github.com/flixor/flixor/internal/provider/plex"
	"github.com/flixor/flixor/internal/search"
	"github.com/flixor/flixor/internal/streaming"
)

// Command factories for async operations

// CreatePinCmd requests a device-link PIN from plex.tv
func CreatePinCmd(c *core.Core) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		pin, err := c.CreatePin(ctx)
		if err != nil {
			return ErrMsg{Err: err, Context: "requesting pin"}
		}
		return PinCreatedMsg{Pin: pin}
	}
}

// WaitForPinCmd polls until the PIN is claimed; the token is adopted by
// the core on success
func WaitForPinCmd(c *core.Core, pinID int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
		defer cancel()

		if _, err := c.WaitForPin(ctx, pinID, plex.PinPollOptions{}); err != nil {
			return ErrMsg{Err: err, Context: "waiting for pin"}
		}
		return AuthCompletedMsg{}
	}
}

// LoadServersCmd fetches the account's server resources
func LoadServersCmd(c *core.Core) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		servers, err := c.Servers(ctx)
		if err != nil {
			return ErrMsg{Err: err, Context: "loading servers"}
		}
		return ServersLoadedMsg{Servers: servers}
	}
}

// ConnectCmd probes the server's connections and binds the best one
func ConnectCmd(c *core.Core, server domain.PlexServer) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		conn, err := c.ConnectToServer(ctx, server)
		if err != nil {
			return ErrMsg{Err: err, Context: "connecting to " + server.Name}
		}
		return ConnectedMsg{Server: server, Connection: *conn}
	}
}

// LoadBrowseCmd fetches on-deck and recently-added rows and merges them,
// on-deck first, deduplicated by rating key
func LoadBrowseCmd(c *core.Core) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		server := c.ServerService()
		if server == nil {
			return ErrMsg{Err: domain.ErrNotConnected, Context: "loading browse rows"}
		}

		onDeck, err := server.OnDeck(ctx)
		if err != nil {
			return ErrMsg{Err: err, Context: "loading on deck"}
		}
		recent, err := server.RecentlyAdded(ctx)
		if err != nil {
			return ErrMsg{Err: err, Context: "loading recently added"}
		}

		seen := make(map[string]bool, len(onDeck))
		items := make([]domain.MediaItem, 0, len(onDeck)+len(recent))
		for _, item := range onDeck {
			seen[item.RatingKey] = true
			items = append(items, item)
		}
		for _, item := range recent {
			if !seen[item.RatingKey] {
				items = append(items, item)
			}
		}

		return BrowseLoadedMsg{Items: items}
	}
}

// SearchCmd runs a server-side title search and ranks the results.
func SearchCmd(c *core.Core, query string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		server := c.ServerService()
		if server == nil {
			return ErrMsg{Err: domain.ErrNotConnected, Context: "searching"}
		}

		items, err := server.Search(ctx, query)
		if err != nil {
			return ErrMsg{Err: err, Context: "searching for " + query}
		}

		return SearchResultsMsg{Query: query, Items: search.Rank(items, query)}
	}
}

// ChildrenCmd descends into a show or season and loads its child rows
func ChildrenCmd(c *core.Core, item domain.MediaItem) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		server := c.ServerService()
		if server == nil {
			return ErrMsg{Err: domain.ErrNotConnected, Context: "opening " + item.DisplayTitle()}
		}

		items, err := server.Children(ctx, item.RatingKey)
		if err != nil {
			return ErrMsg{Err: err, Context: "opening " + item.DisplayTitle()}
		}
		return ChildrenLoadedMsg{Parent: item, Items: items}
	}
}

// PlayCmd negotiates a streaming decision for the item and starts the
// server session. The context handed to Load outlives the command; it
// bounds the reporting loop and is cancelled by StopPlaybackCmd.
func PlayCmd(c *core.Core, identity plex.Identity, opts streaming.Options, progress playback.ProgressSink, item domain.MediaItem, logger *slog.Logger) tea.Cmd {
	return func() tea.Msg {
		server := c.ServerService()
		if server == nil {
			return ErrMsg{Err: domain.ErrNotConnected, Context: "starting playback"}
		}

		engine := streaming.NewEngine(streaming.EngineConfig{
			Server:   server,
			Identity: identity,
			Logger:   logger,
		})
		ctrl := playback.NewController(playback.Config{
			Engine:    engine,
			RatingKey: item.RatingKey,
			Options:   opts,
			Timeline:  server,
			Progress:  progress,
			Stopper:   server,
			Logger:    logger,
		})

		ctx, cancel := context.WithCancel(context.Background())
		url, err := ctrl.Load(ctx)
		if err != nil {
			cancel()
			return ErrMsg{Err: err, Context: "starting playback"}
		}

		return PlaybackReadyMsg{Controller: ctrl, Cancel: cancel, URL: url, Item: item}
	}
}

// LaunchPlayerCmd opens the playback URL in the external player
func LaunchPlayerCmd(launcher *player.Launcher, url string, offset time.Duration) tea.Cmd {
	return func() tea.Msg {
		if err := launcher.Launch(url, offset); err != nil {
			return ErrMsg{Err: err, Context: "launching player"}
		}
		return nil
	}
}

// ListenEventsCmd reads one controller event; the update loop re-issues
// it after each message
func ListenEventsCmd(events <-chan playback.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return PlaybackEventsClosedMsg{}
		}
		return PlaybackEventMsg{Event: ev}
	}
}

// ForceTranscodeCmd spends the attempt's single fallback after the player
// found no usable video track
func ForceTranscodeCmd(ctrl *playback.Controller) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		url, err := ctrl.ReportNoVideoTracks(ctx)
		if err != nil {
			return ErrMsg{Err: err, Context: "forcing transcode"}
		}
		return FallbackDoneMsg{URL: url}
	}
}

// StopPlaybackCmd tears the session down. Stop runs with a fresh context
// so the final reports and the transcode release still go out; only then
// is the playback context cancelled.
func StopPlaybackCmd(ctrl *playback.Controller, cancel context.CancelFunc) tea.Cmd {
	return func() tea.Msg {
		ctx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()

		ctrl.Stop(ctx)
		cancel()
		return PlaybackStoppedMsg{}
	}
}

// TickCmd returns a command that sends a spinner tick after a delay
func TickCmd(delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(time.Time) tea.Msg {
		return TickMsg{}
	})
}

// PlayTickCmd advances the assumed playback clock
func PlayTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return PlayTickMsg{}
	})
}

// ClearStatusCmd clears the status line after a delay
func ClearStatusCmd(delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(time.Time) tea.Msg {
		return ClearStatusMsg{}
	})
}
