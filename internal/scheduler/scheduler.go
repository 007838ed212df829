// Package scheduler drives periodic portfolio refreshes and manual
// "refresh now" triggers without ever running two passes at once.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"holdings-tracker/internal/logging"
	"holdings-tracker/internal/models"
)

// State is the scheduler's lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateScheduled  State = "scheduled"
	StateRefreshing State = "refreshing"
)

// DefaultInterval is used when Config.Interval is not positive.
const DefaultInterval = 15 * time.Second

// Refresher runs one pass. *pipeline.Service satisfies it.
type Refresher interface {
	Refresh(ctx context.Context, holdings []models.Holding) (*models.PortfolioSnapshot, error)
}

// Publisher receives pass outcomes. *stream.Hub satisfies it.
type Publisher interface {
	PublishSnapshot(snap *models.PortfolioSnapshot)
	PublishError(err error)
}

// Config holds scheduler settings.
type Config struct {
	Interval time.Duration
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	State         State     `json:"state"`
	Interval      string    `json:"interval"`
	NextRefreshIn int       `json:"next_refresh_in"`
	LastRefresh   time.Time `json:"last_refresh"`
	LastError     string    `json:"last_error,omitempty"`
	Passes        int64     `json:"passes"`
}

type pass struct {
	done chan struct{}
	snap *models.PortfolioSnapshot
	err  error
}

// Scheduler owns the refresh timer, the countdown and the latest snapshot.
type Scheduler struct {
	refresher Refresher
	holdings  []models.Holding
	interval  time.Duration
	publisher Publisher
	countdown *Countdown
	logger    zerolog.Logger
	now       func() time.Time

	rearm chan struct{}

	mu       sync.Mutex
	state    State
	running  bool
	runCtx   context.Context
	inflight *pass
	latest   *models.PortfolioSnapshot
	lastErr  error
	lastRun  time.Time
	passes   int64
}

// New creates a scheduler for a fixed set of holdings. publisher may be nil.
func New(refresher Refresher, holdings []models.Holding, cfg Config, publisher Publisher, logger zerolog.Logger) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		refresher: refresher,
		holdings:  holdings,
		interval:  interval,
		publisher: publisher,
		countdown: NewCountdown(interval),
		logger:    logging.WithOperation(logger, "scheduler"),
		now:       time.Now,
		rearm:     make(chan struct{}, 1),
		state:     StateIdle,
	}
}

// SetClock replaces the time source. Intended for tests.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Run performs one pass immediately, then one per interval until ctx is
// done. The interval restarts whenever any pass completes, including manual
// ones.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.runCtx = ctx
	s.state = StateScheduled
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.runCtx = nil
		if s.inflight == nil {
			s.state = StateIdle
		}
		s.mu.Unlock()
	}()

	go s.countdown.Run(ctx)

	s.logger.Info().Dur("interval", s.interval).Int("holdings", len(s.holdings)).Msg("Scheduler started")
	_, _ = s.trigger(ctx)

	for {
		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info().Msg("Scheduler stopped")
			return ctx.Err()
		case <-timer.C:
			_, _ = s.trigger(ctx)
		case <-s.rearm:
			timer.Stop()
		}
	}
}

// RefreshNow forces a pass. If a pass is already in flight the caller waits
// for it and receives its result instead of starting another.
func (s *Scheduler) RefreshNow(ctx context.Context) (*models.PortfolioSnapshot, error) {
	return s.trigger(ctx)
}

func (s *Scheduler) trigger(ctx context.Context) (*models.PortfolioSnapshot, error) {
	s.mu.Lock()
	if p := s.inflight; p != nil {
		s.mu.Unlock()
		select {
		case <-p.done:
			return p.snap, p.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p := &pass{done: make(chan struct{})}
	s.inflight = p
	s.state = StateRefreshing
	passCtx := ctx
	if s.runCtx != nil {
		passCtx = s.runCtx
	}
	s.mu.Unlock()

	p.snap, p.err = s.runPass(passCtx)

	s.mu.Lock()
	s.inflight = nil
	s.passes++
	s.lastRun = s.now()
	s.lastErr = p.err
	if p.err == nil {
		s.latest = p.snap
	}
	if s.running {
		s.state = StateScheduled
	} else {
		s.state = StateIdle
	}
	s.mu.Unlock()

	s.countdown.Reset()
	select {
	case s.rearm <- struct{}{}:
	default:
	}
	close(p.done)

	s.publish(p.snap, p.err)
	return p.snap, p.err
}

func (s *Scheduler) runPass(ctx context.Context) (snap *models.PortfolioSnapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh panicked: %v", r)
			s.logger.Error().Err(err).Msg("Recovered from panic")
		}
	}()

	snap, err = s.refresher.Refresh(ctx, s.holdings)
	if err != nil {
		s.logger.Error().Err(err).Msg("Refresh failed")
	}
	return snap, err
}

func (s *Scheduler) publish(snap *models.PortfolioSnapshot, err error) {
	if s.publisher == nil {
		return
	}
	if err != nil {
		s.publisher.PublishError(err)
		return
	}
	s.publisher.PublishSnapshot(snap)
}

// Latest returns the most recent successful snapshot.
func (s *Scheduler) Latest() (*models.PortfolioSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.latest != nil
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Countdown returns the time until the next scheduled pass.
func (s *Scheduler) Countdown() time.Duration {
	return s.countdown.Remaining()
}

// Interval returns the refresh interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Status summarizes the scheduler for display.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:         s.state,
		Interval:      s.interval.String(),
		NextRefreshIn: int(s.countdown.Remaining() / time.Second),
		LastRefresh:   s.lastRun,
		Passes:        s.passes,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
