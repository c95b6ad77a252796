// Package tui is the terminal front end: device-link sign-in, server
// selection, a browse list over the server's on-deck and recently-added
// rows, and a playback panel driven by the streaming decision engine.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/flixor/flixor/internal/core"
	"github.com/flixor/flixor/internal/domain"
	"github.com/flixor/flixor/internal/playback"
	"github.com/flixor/flixor/internal/player"
	"github.com/flixor/flixor/internal/provider/plex"
	"github.com/flixor/flixor/internal/streaming"
	"github.com/flixor/flixor/internal/tui/styles"
)

// view identifies the active screen
type view int

const (
	viewAuth view = iota
	viewServers
	viewBrowse
	viewPlaying
)

const (
	spinnerInterval = 100 * time.Millisecond
	seekStep        = 15 * time.Second
	chromeHeight    = 4 // header, blank, footer, status
)

// Config assembles the application model.
type Config struct {
	Core     *core.Core
	Identity plex.Identity
	Launcher *player.Launcher

	// Options are the streaming preferences applied to every playback.
	// The zero value falls back to DefaultOptions.
	Options streaming.Options

	// Progress may be nil when no settings backend is configured.
	Progress playback.ProgressSink

	Logger *slog.Logger
}

// Model is the main Bubble Tea model for the application
type Model struct {
	view view

	core     *core.Core
	identity plex.Identity
	launcher *player.Launcher
	options  streaming.Options
	progress playback.ProgressSink
	logger   *slog.Logger

	// auth
	pin *domain.PlexPin

	// servers
	servers list.Model

	// browse; Escape pops browseStack one level at a time
	browse      browseList
	browseStack []browseLevel

	// server search
	searchInput   textinput.Model
	searching     bool
	searchResults bool

	// playing
	controller    *playback.Controller
	cancelPlay    context.CancelFunc
	playURL       string
	playing       domain.MediaItem
	playbackState playback.State
	position      time.Duration
	duration      time.Duration
	playbackErr   error

	width        int
	height       int
	ready        bool
	loading      bool
	spinnerFrame int
	status       string
	statusIsErr  bool
	quitting     bool
}

// browseLevel is one saved layer of browse navigation, restored when
// Escape pops it. search marks layers that held search results.
type browseLevel struct {
	items  []domain.MediaItem
	cursor int
	search bool
}

// New creates the application model. The starting view depends on how much
// state Initialize restored: a live connection lands on browse, a bare
// token on server selection, nothing on sign-in.
func New(cfg Config) Model {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := cfg.Options
	if opts == (streaming.Options{}) {
		opts = streaming.DefaultOptions()
	}

	m := Model{
		core:        cfg.Core,
		identity:    cfg.Identity,
		launcher:    cfg.Launcher,
		options:     opts,
		progress:    cfg.Progress,
		logger:      logger,
		servers:     newServerList(),
		browse:      newBrowseList(),
		searchInput: newSearchInput(),
	}

	switch {
	case cfg.Core.IsConnected():
		m.view = viewBrowse
		m.loading = true
	case cfg.Core.IsAuthenticated():
		m.view = viewServers
		m.loading = true
	default:
		m.view = viewAuth
		m.loading = true
	}

	return m
}

func newServerList() list.Model {
	delegate := list.NewDefaultDelegate()
	delegate.SetSpacing(0)
	delegate.Styles.SelectedTitle = lipgloss.NewStyle().
		Foreground(styles.White).
		Background(styles.SlateLight).
		Padding(0, 1)
	delegate.Styles.SelectedDesc = lipgloss.NewStyle().
		Foreground(styles.LightGray).
		Background(styles.SlateLight).
		Padding(0, 1)
	delegate.Styles.NormalTitle = lipgloss.NewStyle().
		Foreground(styles.LightGray).
		Padding(0, 1)
	delegate.Styles.NormalDesc = lipgloss.NewStyle().
		Foreground(styles.DimGray).
		Padding(0, 1)

	l := list.New([]list.Item{}, delegate, 0, 0)
	l.Title = "Servers"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.SetShowPagination(false)
	l.Styles.Title = lipgloss.NewStyle().
		Foreground(styles.PlexOrange).
		Bold(true).
		Padding(0, 1)

	return l
}

func newSearchInput() textinput.Model {
	ti := textinput.New()
	ti.Prompt = "search: "
	ti.PromptStyle = styles.FilterPromptStyle
	ti.CharLimit = 64
	return ti
}

// serverItem implements list.Item for server resources
type serverItem struct {
	server domain.PlexServer
}

func (i serverItem) Title() string {
	if i.server.Owned {
		return i.server.Name
	}
	return i.server.Name + " (shared)"
}

func (i serverItem) Description() string {
	return fmt.Sprintf("%s · %d connections", i.server.Product, len(i.server.Connections))
}

func (i serverItem) FilterValue() string { return i.server.Name }

// Init starts the spinner, the playback clock and the load that matches
// the starting view.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{TickCmd(spinnerInterval), PlayTickCmd()}

	switch m.view {
	case viewBrowse:
		cmds = append(cmds, LoadBrowseCmd(m.core))
	case viewServers:
		cmds = append(cmds, LoadServersCmd(m.core))
	default:
		cmds = append(cmds, CreatePinCmd(m.core))
	}

	return tea.Batch(cmds...)
}

// Update handles all messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.servers.SetSize(msg.Width, msg.Height-chromeHeight)
		m.browse.setSize(msg.Width, msg.Height-chromeHeight)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case TickMsg:
		m.spinnerFrame++
		return m, TickCmd(spinnerInterval)

	case PlayTickMsg:
		return m.handlePlayTick()

	case ErrMsg:
		return m.handleErr(msg)

	case ClearStatusMsg:
		if !m.statusIsErr {
			m.status = ""
		}
		return m, nil

	case PinCreatedMsg:
		m.pin = msg.Pin
		m.loading = true
		m.status = ""
		m.statusIsErr = false
		return m, WaitForPinCmd(m.core, msg.Pin.ID)

	case AuthCompletedMsg:
		m.view = viewServers
		m.pin = nil
		m.loading = true
		return m, LoadServersCmd(m.core)

	case ServersLoadedMsg:
		m.loading = false
		items := make([]list.Item, len(msg.Servers))
		for i, s := range msg.Servers {
			items[i] = serverItem{server: s}
		}
		m.servers.SetItems(items)
		return m, nil

	case ConnectedMsg:
		m.view = viewBrowse
		m.loading = true
		m.status = fmt.Sprintf("Connected to %s", msg.Server.Name)
		m.statusIsErr = false
		return m, tea.Batch(LoadBrowseCmd(m.core), ClearStatusCmd(3*time.Second))

	case BrowseLoadedMsg:
		m.loading = false
		m.browse.setItems(msg.Items)
		m.browseStack = nil
		m.searchResults = false
		return m, nil

	case SearchResultsMsg:
		m.loading = false
		// The first search pushes the current rows; refining the query
		// replaces its results in place.
		if !m.searchResults {
			m.browseStack = append(m.browseStack, browseLevel{
				items:  m.browse.items,
				cursor: m.browse.cursor,
				search: m.searchResults,
			})
		}
		m.searchResults = true
		m.browse.setItems(msg.Items)
		m.status = fmt.Sprintf("%d results for %q", len(msg.Items), msg.Query)
		m.statusIsErr = false
		return m, nil

	case ChildrenLoadedMsg:
		m.loading = false
		if len(msg.Items) == 0 {
			m.status = msg.Parent.DisplayTitle() + " has no entries"
			m.statusIsErr = false
			return m, ClearStatusCmd(3 * time.Second)
		}
		m.browseStack = append(m.browseStack, browseLevel{
			items:  m.browse.items,
			cursor: m.browse.cursor,
			search: m.searchResults,
		})
		m.searchResults = false
		m.browse.setItems(msg.Items)
		m.status = ""
		return m, nil

	case PlaybackReadyMsg:
		return m.handlePlaybackReady(msg)

	case PlaybackEventMsg:
		return m.handlePlaybackEvent(msg)

	case PlaybackEventsClosedMsg:
		return m, nil

	case FallbackDoneMsg:
		m.loading = false
		m.playURL = msg.URL
		if m.controller != nil {
			// The fresh session starts where the old one left off.
			m.controller.SetPosition(m.position, m.duration)
		}
		m.status = "Retrying with forced transcode"
		m.statusIsErr = false
		return m, tea.Batch(
			LaunchPlayerCmd(m.launcher, msg.URL, m.position),
			ClearStatusCmd(3*time.Second),
		)

	case PlaybackStoppedMsg:
		m.controller = nil
		m.cancelPlay = nil
		m.playURL = ""
		m.playbackErr = nil
		if m.quitting {
			return m, tea.Quit
		}
		m.view = viewBrowse
		return m, nil
	}

	return m, nil
}

// handleKey routes keyboard input by active view.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// The search prompt swallows every key while typing.
	if m.view == viewBrowse && m.searching {
		switch {
		case key.Matches(msg, Keys.Enter):
			query := strings.TrimSpace(m.searchInput.Value())
			m.searching = false
			m.searchInput.Blur()
			if query == "" {
				return m, nil
			}
			m.loading = true
			m.status = "Searching for " + query
			m.statusIsErr = false
			return m, SearchCmd(m.core, query)
		case key.Matches(msg, Keys.Escape):
			m.searching = false
			m.searchInput.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.searchInput, cmd = m.searchInput.Update(msg)
		return m, cmd
	}

	// So does the browse filter.
	if m.view == viewBrowse && m.browse.typing {
		switch {
		case key.Matches(msg, Keys.Enter):
			m.browse.acceptFilter()
			return m, nil
		case key.Matches(msg, Keys.Escape):
			m.browse.clearFilter()
			return m, nil
		}
		return m, m.browse.handleFilterKey(msg)
	}

	if key.Matches(msg, Keys.Quit) {
		return m.quit()
	}

	switch m.view {
	case viewServers:
		return m.handleServersKey(msg)
	case viewBrowse:
		return m.handleBrowseKey(msg)
	case viewPlaying:
		return m.handlePlayingKey(msg)
	}

	return m, nil
}

func (m Model) handleServersKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, Keys.Enter) {
		if item, ok := m.servers.SelectedItem().(serverItem); ok {
			m.loading = true
			m.status = "Connecting to " + item.server.Name
			m.statusIsErr = false
			return m, ConnectCmd(m.core, item.server)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.servers, cmd = m.servers.Update(msg)
	return m, cmd
}

func (m Model) handleBrowseKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, Keys.Up):
		m.browse.moveUp()
	case key.Matches(msg, Keys.Down):
		m.browse.moveDown()
	case key.Matches(msg, Keys.Filter):
		return m, m.browse.startFilter()
	case key.Matches(msg, Keys.Search):
		m.searching = true
		m.searchInput.SetValue("")
		return m, m.searchInput.Focus()
	case key.Matches(msg, Keys.Escape):
		// Escape peels back one layer: filter first, then the stack of
		// drill-downs and search results.
		if m.browse.filtering() {
			m.browse.clearFilter()
			return m, nil
		}
		if n := len(m.browseStack); n > 0 {
			level := m.browseStack[n-1]
			m.browseStack = m.browseStack[:n-1]
			m.browse.restore(level.items, level.cursor)
			m.searchResults = level.search
			m.status = ""
		}
	case key.Matches(msg, Keys.Enter):
		item := m.browse.selected()
		if item == nil {
			return m, nil
		}
		if !item.Playable() {
			m.loading = true
			m.status = "Opening " + item.DisplayTitle()
			m.statusIsErr = false
			return m, ChildrenCmd(m.core, *item)
		}
		m.loading = true
		m.status = "Negotiating stream for " + item.DisplayTitle()
		m.statusIsErr = false
		return m, PlayCmd(m.core, m.identity, m.options, m.progress, *item, m.logger)
	}
	return m, nil
}

func (m Model) handlePlayingKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.controller == nil {
		return m, nil
	}

	switch {
	case key.Matches(msg, Keys.PauseResume):
		if m.playbackState == playback.StatePaused {
			m.controller.Resume()
		} else {
			m.controller.Pause()
		}
		return m, nil

	case key.Matches(msg, Keys.SeekBack):
		return m.adjustPosition(-seekStep)

	case key.Matches(msg, Keys.SeekForward):
		return m.adjustPosition(seekStep)

	case key.Matches(msg, Keys.ForceTranscode):
		m.loading = true
		m.status = "Forcing transcode"
		m.statusIsErr = false
		return m, ForceTranscodeCmd(m.controller)

	case key.Matches(msg, Keys.StopPlayback):
		m.status = "Stopping"
		m.statusIsErr = false
		return m, StopPlaybackCmd(m.controller, m.cancelPlay)
	}

	return m, nil
}

// adjustPosition nudges the reported position, clamped to the runtime.
func (m Model) adjustPosition(delta time.Duration) (tea.Model, tea.Cmd) {
	pos := m.position + delta
	if pos < 0 {
		pos = 0
	}
	if m.duration > 0 && pos > m.duration {
		pos = m.duration
	}
	m.position = pos
	m.controller.Seek(pos)
	return m, nil
}

// quit tears down any active playback before exiting.
func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	if m.controller != nil {
		return m, StopPlaybackCmd(m.controller, m.cancelPlay)
	}
	return m, tea.Quit
}

func (m Model) handleErr(msg ErrMsg) (tea.Model, tea.Cmd) {
	m.loading = false
	m.status = fmt.Sprintf("Error %s: %v", msg.Context, msg.Err)
	m.statusIsErr = true
	m.logger.Error("operation failed", "context", msg.Context, "error", msg.Err)

	// An expired PIN just gets replaced.
	if m.view == viewAuth {
		return m, CreatePinCmd(m.core)
	}
	return m, nil
}

func (m Model) handlePlaybackReady(msg PlaybackReadyMsg) (tea.Model, tea.Cmd) {
	m.view = viewPlaying
	m.loading = false
	m.controller = msg.Controller
	m.cancelPlay = msg.Cancel
	m.playURL = msg.URL
	m.playing = msg.Item
	m.playbackState = msg.Controller.State()
	m.playbackErr = nil
	m.duration = msg.Item.Duration
	m.position = 0
	if msg.Item.ShouldResume() {
		m.position = msg.Item.ViewOffset
	}
	m.controller.SetPosition(m.position, m.duration)
	m.status = ""
	m.statusIsErr = false

	return m, tea.Batch(
		LaunchPlayerCmd(m.launcher, msg.URL, m.position),
		ListenEventsCmd(msg.Controller.Events()),
	)
}

func (m Model) handlePlaybackEvent(msg PlaybackEventMsg) (tea.Model, tea.Cmd) {
	ev := msg.Event
	switch ev.Type {
	case playback.EventStateChanged:
		m.playbackState = ev.State
	case playback.EventDecisionMade:
		m.playbackState = ev.State
	case playback.EventFallbackTriggered:
		m.playbackState = ev.State
	case playback.EventError:
		m.playbackState = ev.State
		m.playbackErr = ev.Err
		m.loading = false
	}

	if m.controller == nil {
		return m, nil
	}
	return m, ListenEventsCmd(m.controller.Events())
}

// handlePlayTick advances the assumed playback clock while playing. With
// no position feed from the external player, wall time is the best
// estimate; the arrow keys correct it when the player seeks.
func (m Model) handlePlayTick() (tea.Model, tea.Cmd) {
	if m.view == viewPlaying && m.controller != nil && m.playbackState == playback.StatePlaying {
		pos := m.position + time.Second
		if m.duration > 0 && pos > m.duration {
			pos = m.duration
		}
		m.position = pos
		m.controller.SetPosition(pos, m.duration)
	}

	return m, PlayTickCmd()
}

// Shutdown releases playback resources after the program loop has ended.
func (m Model) Shutdown(ctx context.Context) {
	if m.controller != nil {
		m.controller.Stop(ctx)
		if m.cancelPlay != nil {
			m.cancelPlay()
		}
	}
}

func (m Model) spinner() string {
	return styles.SpinnerStyle.Render(styles.SpinnerFrames[m.spinnerFrame%len(styles.SpinnerFrames)])
}

// decision is a display shortcut for the active streaming decision.
func (m Model) decision() *streaming.Decision {
	if m.controller == nil {
		return nil
	}
	return m.controller.Decision()
}
