// Package sweeper periodically evicts expired login sessions, short codes
// and refresh tokens.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-login-broker/metrics"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultInterval      = time.Minute
	defaultTargetTimeout = 10 * time.Second
)

// Target is one store with expiring entries.
type Target interface {
	Name() string
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// Sweeper runs every target on a fixed interval. A failing target is logged
// and retried on the next tick; the others still run.
type Sweeper struct {
	targets       []Target
	interval      time.Duration
	targetTimeout time.Duration
	nowFunc       func() time.Time
	metrics       *metrics.Metrics

	mu      sync.Mutex
	cron    *cron.Cron
	running sync.Mutex // serialises Sweep between the schedule and direct callers
}

type Option func(*Sweeper)

func WithInterval(interval time.Duration) Option {
	return func(s *Sweeper) {
		s.interval = interval
	}
}

func WithTargetTimeout(timeout time.Duration) Option {
	return func(s *Sweeper) {
		s.targetTimeout = timeout
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(s *Sweeper) {
		s.nowFunc = now
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

func New(targets []Target, options ...Option) (*Sweeper, error) {
	if len(targets) == 0 {
		return nil, errors.New("[sweeper.New] at least one target is required")
	}
	s := &Sweeper{
		targets:       targets,
		interval:      defaultInterval,
		targetTimeout: defaultTargetTimeout,
		nowFunc:       time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.interval <= 0 {
		return nil, fmt.Errorf("[sweeper.New] interval must be positive, got %s", s.interval)
	}
	return s, nil
}

// Start schedules the sweep. Calling Start on a started sweeper is a no-op.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	logger := cronLogger{log.With().Str("component", "sweeper").Logger()}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.Sweep(context.Background())
	}); err != nil {
		return fmt.Errorf("sweeper.Start: %w", err)
	}
	c.Start()
	s.cron = c

	log.Info().Dur("interval", s.interval).Int("targets", len(s.targets)).Msg("Sweeper started")
	return nil
}

// Stop halts the schedule and waits for a sweep in progress, or for ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		log.Info().Msg("Sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result is the outcome of sweeping one target.
type Result struct {
	Target  string
	Removed int
	Err     error
}

// Sweep runs every target once and returns the per-target results.
func (s *Sweeper) Sweep(ctx context.Context) []Result {
	s.running.Lock()
	defer s.running.Unlock()

	now := s.nowFunc()
	results := make([]Result, 0, len(s.targets))
	for _, target := range s.targets {
		results = append(results, s.sweepTarget(ctx, target, now))
	}
	return results
}

func (s *Sweeper) sweepTarget(ctx context.Context, target Target, now time.Time) (res Result) {
	res.Target = target.Name()
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.targetTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("sweep %s panicked: %v", res.Target, r)
		}
		s.metrics.Swept(res.Target, res.Removed, time.Since(start), res.Err)
		if res.Err != nil {
			log.Error().Err(res.Err).Str("target", res.Target).Msg("Sweep failed, retrying next tick")
			return
		}
		if res.Removed > 0 {
			log.Debug().Str("target", res.Target).Int("removed", res.Removed).Msg("Swept expired entries")
		}
	}()

	res.Removed, res.Err = target.SweepExpired(ctx, now)
	return res
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
