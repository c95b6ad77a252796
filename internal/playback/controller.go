package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flixor/flixor/internal/domain"
	"github.com/flixor/flixor/internal/streaming"
)

const eventBuffer = 16

// Config assembles a playback controller. One controller drives one item;
// construct a new one for the next playback.
type Config struct {
	Engine    *streaming.Engine
	RatingKey string
	Options   streaming.Options

	// Timeline, Progress and Stopper feed the session reporter. Progress
	// may be nil when no settings backend is configured.
	Timeline TimelineSink
	Progress ProgressSink
	Stopper  SessionStopper

	// ReportInterval and ReportDebounce tune the reporter; zero picks the
	// defaults.
	ReportInterval time.Duration
	ReportDebounce time.Duration

	Logger *slog.Logger
}

// Controller drives one playback attempt end to end: decision, session
// start, state transitions, the forced-transcode fallback and teardown.
// UI layers observe it through Events and feed it player signals.
type Controller struct {
	engine    *streaming.Engine
	attempt   *streaming.Attempt
	reporter  *Reporter
	logger    *slog.Logger
	ratingKey string

	mu       sync.Mutex
	state    State
	decision *streaming.Decision
	playURL  string
	closed   bool
	events   chan Event
}

// NewController builds a controller in the uninitialized state.
func NewController(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		engine:    cfg.Engine,
		attempt:   streaming.NewAttempt(cfg.Engine, cfg.RatingKey, cfg.Options),
		logger:    logger,
		ratingKey: cfg.RatingKey,
		state:     StateUninitialized,
		events:    make(chan Event, eventBuffer),
	}
	c.reporter = NewReporter(ReporterConfig{
		Timeline:  cfg.Timeline,
		Progress:  cfg.Progress,
		Stopper:   cfg.Stopper,
		RatingKey: cfg.RatingKey,
		Interval:  cfg.ReportInterval,
		Debounce:  cfg.ReportDebounce,
		Logger:    logger,
	})
	return c
}

// Events returns the controller's observation stream.
func (c *Controller) Events() <-chan Event { return c.events }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Decision returns the active streaming decision, nil before Load.
func (c *Controller) Decision() *streaming.Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.decision
}

// PlaybackURL returns the URL the player consumes, empty before Load.
func (c *Controller) PlaybackURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playURL
}

// Load negotiates the streaming decision and starts the server session.
// On success the controller lands in Playing with the reporter running.
// ctx also bounds the reporting loop, so callers pass one that lives as
// long as the playback should.
func (c *Controller) Load(ctx context.Context) (string, error) {
	c.mu.Lock()
	if !c.transition(StateLoading) {
		state := c.state
		c.mu.Unlock()
		return "", fmt.Errorf("cannot load from state %s", state)
	}
	c.mu.Unlock()

	dec, err := c.attempt.Decide(ctx)
	if err != nil {
		c.fail(err)
		return "", err
	}

	c.mu.Lock()
	c.decision = dec
	c.emit(Event{Type: EventDecisionMade, State: c.state, Decision: dec})
	c.mu.Unlock()

	return c.startAndPlay(ctx, dec)
}

// ReportNoVideoTracks is the player's signal that the delivered asset
// exposes no usable video track, the symptom of a remux the player cannot
// actually open. The first report spends the attempt's single
// forced-transcode fallback and reloads; a second report is terminal. The
// returned URL replaces the player's current asset.
func (c *Controller) ReportNoVideoTracks(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.state == StateErrored {
		c.mu.Unlock()
		return "", domain.ErrPlaybackFailed
	}
	if !c.transition(StateLoading) {
		state := c.state
		c.mu.Unlock()
		return "", fmt.Errorf("cannot retry from state %s", state)
	}
	c.emit(Event{Type: EventFallbackTriggered, State: StateLoading, Decision: c.decision})
	c.mu.Unlock()

	c.logger.Warn("no video tracks in delivered asset, retrying with forced transcode", "rating_key", c.ratingKey)

	dec, err := c.attempt.RetryTranscode(ctx)
	if err != nil {
		c.fail(err)
		return "", err
	}

	c.mu.Lock()
	c.decision = dec
	c.emit(Event{Type: EventDecisionMade, State: c.state, Decision: dec})
	c.mu.Unlock()

	return c.startAndPlay(ctx, dec)
}

// startAndPlay exchanges a decision for a playback URL and brings the
// controller to Playing with the reporter aimed at the new session.
func (c *Controller) startAndPlay(ctx context.Context, dec *streaming.Decision) (string, error) {
	playURL, err := c.engine.StartSession(ctx, dec)
	if err != nil {
		c.fail(err)
		return "", err
	}

	c.mu.Lock()
	c.playURL = playURL
	c.transition(StateReady)
	// Ready auto-plays.
	c.transition(StatePlaying)
	c.mu.Unlock()

	c.reporter.SetSession(dec.SessionID)
	c.reporter.SetPlaybackState(PlayStatePlaying)
	c.reporter.Start(ctx)
	return playURL, nil
}

// Pause moves Playing to Paused and flips the reported state.
func (c *Controller) Pause() {
	c.mu.Lock()
	ok := c.transition(StatePaused)
	c.mu.Unlock()
	if ok {
		c.reporter.SetPlaybackState(PlayStatePaused)
	}
}

// Resume moves Paused back to Playing.
func (c *Controller) Resume() {
	c.mu.Lock()
	ok := c.transition(StatePlaying)
	c.mu.Unlock()
	if ok {
		c.reporter.SetPlaybackState(PlayStatePlaying)
	}
}

// SetBuffering flags a stall or its end.
func (c *Controller) SetBuffering(stalled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if stalled {
		c.transition(StateBuffering)
	} else {
		c.transition(StatePlaying)
	}
}

// Seek records a position jump. Seeking lands back in Ready, which
// auto-plays.
func (c *Controller) Seek(to time.Duration) {
	c.mu.Lock()
	if c.transition(StateSeeking) {
		c.transition(StateReady)
		c.transition(StatePlaying)
	}
	c.mu.Unlock()

	_, dur := c.reporter.Position()
	c.reporter.SetPosition(to, dur)
}

// SetPosition forwards the player's position to the reporter.
func (c *Controller) SetPosition(position, duration time.Duration) {
	c.reporter.SetPosition(position, duration)
}

// Stop tears the session down: reporter shutdown with its final reports
// and the transcode stop. Safe to call from any state and more than once;
// the controller is spent afterwards.
func (c *Controller) Stop(ctx context.Context) {
	c.reporter.Stop(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
}

// fail moves the controller to the terminal Errored state.
func (c *Controller) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transition(StateErrored)
	c.emit(Event{Type: EventError, State: StateErrored, Err: err})
	c.logger.Error("playback failed", "rating_key", c.ratingKey, "error", err)
}

// transition moves the state machine and emits a StateChanged event.
// Callers hold c.mu.
func (c *Controller) transition(to State) bool {
	if !canTransition(c.state, to) {
		c.logger.Warn("rejected state transition", "from", c.state.String(), "to", to.String())
		return false
	}
	c.state = to
	c.emit(Event{Type: EventStateChanged, State: to})
	return true
}

// emit delivers an event without blocking. Callers hold c.mu.
func (c *Controller) emit(ev Event) {
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
	}
}
