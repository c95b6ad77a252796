package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/flixor/flixor/internal/provider/plex"
)

// Default reporting cadence: one pass per interval, with progress posts
// suppressed until the position has moved more than the debounce since the
// last accepted post.
const (
	DefaultReportInterval = 10 * time.Second
	DefaultReportDebounce = 5 * time.Second
)

// Playback states accepted by the timeline and progress endpoints.
const (
	PlayStatePlaying = "playing"
	PlayStatePaused  = "paused"
	PlayStateStopped = "stopped"
)

// TimelineSink posts playback timeline events to the media server.
// *plex.ServerService satisfies it.
type TimelineSink interface {
	Timeline(ctx context.Context, tr plex.TimelineRequest) error
}

// ProgressSink persists coarse playback progress. A nil sink disables
// these posts.
type ProgressSink interface {
	ReportProgress(ctx context.Context, p Progress) error
}

// SessionStopper releases a transcode session on teardown.
// *plex.ServerService satisfies it.
type SessionStopper interface {
	StopSession(ctx context.Context, sessionID string) error
}

// ReporterConfig assembles a session reporter.
type ReporterConfig struct {
	Timeline  TimelineSink
	Progress  ProgressSink
	Stopper   SessionStopper
	RatingKey string
	SessionID string
	Interval  time.Duration
	Debounce  time.Duration
	Logger    *slog.Logger
}

// Reporter keeps the server informed of the playback position so resume
// and continue-watching stay current, and releases transcode resources on
// teardown. Every call it makes is best-effort: a lost beacon is logged
// and never interrupts playback.
type Reporter struct {
	timeline  TimelineSink
	progress  ProgressSink
	stopper   SessionStopper
	ratingKey string
	interval  time.Duration
	debounce  time.Duration
	logger    *slog.Logger

	mu           sync.Mutex
	sessionID    string
	position     time.Duration
	duration     time.Duration
	playState    string
	lastReported time.Duration
	started      bool

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewReporter builds a reporter; Start launches its loop.
func NewReporter(cfg ReporterConfig) *Reporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultReportDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		timeline:  cfg.Timeline,
		progress:  cfg.Progress,
		stopper:   cfg.Stopper,
		ratingKey: cfg.RatingKey,
		sessionID: cfg.SessionID,
		interval:  interval,
		debounce:  debounce,
		logger:    logger,
		playState: PlayStatePlaying,
		done:      make(chan struct{}),
	}
}

// Start launches the reporting loop. ctx bounds the loop and every report
// it makes; Stop also ends it. Repeated starts are ignored.
func (r *Reporter) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.loop(ctx)
}

func (r *Reporter) loop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// SetPosition records the player's position. Reports stay suppressed
// until a positive duration is known, so a half-initialized player can
// never write a zero-duration record to the server.
func (r *Reporter) SetPosition(position, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.position = position
	r.duration = duration
}

// Position returns the last recorded position and duration.
func (r *Reporter) Position() (position, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.position, r.duration
}

// SetPlaybackState switches the reported state, PlayStatePlaying or
// PlayStatePaused.
func (r *Reporter) SetPlaybackState(state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playState = state
}

// SetSession points subsequent reports and the final stop at a new
// session, after a fallback reload replaced the old one.
func (r *Reporter) SetSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID = sessionID
}

// tick posts one timeline event and, when the position moved beyond the
// debounce, one progress beacon.
func (r *Reporter) tick(ctx context.Context) {
	r.mu.Lock()
	pos, dur, state, sess := r.position, r.duration, r.playState, r.sessionID
	if dur <= 0 {
		r.mu.Unlock()
		return
	}
	moved := pos - r.lastReported
	if moved < 0 {
		moved = -moved
	}
	sendProgress := moved > r.debounce
	if sendProgress {
		r.lastReported = pos
	}
	r.mu.Unlock()

	if r.timeline != nil {
		tr := plex.TimelineRequest{RatingKey: r.ratingKey, State: state, Time: pos, Duration: dur, SessionID: sess}
		if err := r.timeline.Timeline(ctx, tr); err != nil {
			r.logger.Debug("timeline report failed", "error", err)
		}
	}

	if sendProgress && r.progress != nil {
		p := Progress{RatingKey: r.ratingKey, Time: pos.Milliseconds(), Duration: dur.Milliseconds(), State: state}
		if err := r.progress.ReportProgress(ctx, p); err != nil {
			r.logger.Debug("progress report failed", "error", err)
		}
	}
}

// Stop ends the loop and runs the teardown: a final progress beacon, a
// stopped timeline event and the transcode stop. The three are independent
// best-effort calls; any of them may fail without affecting the others.
// Safe to call more than once.
func (r *Reporter) Stop(ctx context.Context) {
	r.stopOnce.Do(func() {
		close(r.done)
		r.wg.Wait()

		r.mu.Lock()
		pos, dur, sess := r.position, r.duration, r.sessionID
		r.mu.Unlock()

		if dur > 0 {
			if r.progress != nil {
				p := Progress{RatingKey: r.ratingKey, Time: pos.Milliseconds(), Duration: dur.Milliseconds(), State: PlayStateStopped}
				if err := r.progress.ReportProgress(ctx, p); err != nil {
					r.logger.Debug("final progress report failed", "error", err)
				}
			}
			if r.timeline != nil {
				tr := plex.TimelineRequest{RatingKey: r.ratingKey, State: PlayStateStopped, Time: pos, Duration: dur, SessionID: sess}
				if err := r.timeline.Timeline(ctx, tr); err != nil {
					r.logger.Debug("final timeline report failed", "error", err)
				}
			}
		}

		if r.stopper != nil && sess != "" {
			if err := r.stopper.StopSession(ctx, sess); err != nil {
				r.logger.Warn("transcode session stop failed", "session", sess, "error", err)
			}
		}
	})
}
