package streaming

import (
	"context"
	"errors"

	"github.com/flixor/flixor/internal/domain"
)

type attemptState int

const (
	attemptInitial  attemptState = iota // no decision issued yet
	attemptPrimary                      // first decision active
	attemptFallback                     // forced transcode active, no moves left
)

// Attempt is one playback attempt: an initial decision plus at most one
// forced-transcode fallback. The retry budget lives in the state machine,
// not in a flag callers have to remember to check.
type Attempt struct {
	engine    *Engine
	ratingKey string
	opts      Options

	state   attemptState
	current *Decision
}

// NewAttempt binds an attempt to an item and the caller's options.
func NewAttempt(engine *Engine, ratingKey string, opts Options) *Attempt {
	return &Attempt{engine: engine, ratingKey: ratingKey, opts: opts}
}

// Decide issues the initial decision. Legal exactly once.
func (a *Attempt) Decide(ctx context.Context) (*Decision, error) {
	if a.state != attemptInitial {
		return nil, errors.New("attempt already decided")
	}

	dec, err := a.engine.Decide(ctx, a.ratingKey, a.opts)
	if err != nil {
		return nil, err
	}
	a.state = attemptPrimary
	a.current = dec
	return dec, nil
}

// RetryTranscode spends the single permitted fallback: the current session
// is stopped, then a fresh decision is requested with DirectPlay and
// DirectStream forced off while the quality caps stay untouched. Calling
// it again returns domain.ErrPlaybackFailed; the attempt is out of moves
// even when the fallback decision itself failed.
func (a *Attempt) RetryTranscode(ctx context.Context) (*Decision, error) {
	switch a.state {
	case attemptInitial:
		return nil, errors.New("no decision to retry")
	case attemptFallback:
		return nil, domain.ErrPlaybackFailed
	}
	a.state = attemptFallback

	// Tear the old session down first so the server never runs two live
	// sessions for the same content.
	if a.current != nil && a.current.Method != MethodDirectPlay {
		a.engine.StopSession(ctx, a.current.SessionID)
	}

	forced := a.opts
	forced.DirectPlay = false
	forced.DirectStream = false

	dec, err := a.engine.Decide(ctx, a.ratingKey, forced)
	if err != nil {
		return nil, err
	}
	a.current = dec
	return dec, nil
}

// Decision returns the active decision, nil before Decide.
func (a *Attempt) Decision() *Decision { return a.current }

// Exhausted reports whether the fallback has been spent.
func (a *Attempt) Exhausted() bool { return a.state == attemptFallback }
