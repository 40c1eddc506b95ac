// Package drainer runs the pending-task drain on a cron schedule. When several
// instances share a redis, a leader lease makes sure only one of them drains
// per tick.
package drainer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ramiqadoumi/go-content-flow/internal/workflow"
	"github.com/ramiqadoumi/go-content-flow/pkg/telemetry"
)

const (
	DefaultSchedule   = "@every 30s"
	DefaultStaleAfter = 30 * time.Minute

	leaderName = "drainer"
)

// Reaper fails running tasks that have been running for too long.
type Reaper interface {
	ReapStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// PendingProcessor drains one batch of pending tasks.
type PendingProcessor interface {
	ProcessPending(ctx context.Context) (int, error)
}

// Service fires a drain on every scheduled tick.
type Service struct {
	reaper     Reaper
	drainer    PendingProcessor
	leader     workflow.Locker
	instanceID string
	staleAfter time.Duration
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLeader elects a leader per tick through l. Without it every tick drains.
func WithLeader(l workflow.Locker) Option   { return func(s *Service) { s.leader = l } }
func WithStaleAfter(d time.Duration) Option { return func(s *Service) { s.staleAfter = d } }
func WithLogger(l *slog.Logger) Option      { return func(s *Service) { s.logger = l } }
func WithInstanceID(id string) Option       { return func(s *Service) { s.instanceID = id } }

func NewService(reaper Reaper, drainer PendingProcessor, opts ...Option) *Service {
	s := &Service{
		reaper:     reaper,
		drainer:    drainer,
		instanceID: "drainer",
		staleAfter: DefaultStaleAfter,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run ticks once immediately, then on schedule until ctx is cancelled. A tick
// still running when the next one fires causes the next one to be skipped.
func (s *Service) Run(ctx context.Context, schedule string) error {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))
	if _, err := c.AddFunc(schedule, func() { s.Tick(ctx) }); err != nil {
		return fmt.Errorf("parse drain schedule %q: %w", schedule, err)
	}

	s.Tick(ctx)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()

	if s.leader != nil {
		if err := s.leader.Release(context.WithoutCancel(ctx), leaderName, s.instanceID); err != nil {
			s.logger.Warn("failed to release drainer leadership", slog.String("error", err.Error()))
		}
	}
	return nil
}

// Tick runs one reap-then-drain cycle if this instance is the leader.
func (s *Service) Tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if s.leader != nil {
		ok, err := s.leader.Acquire(ctx, leaderName, s.instanceID)
		if err != nil {
			s.logger.Error("leader election", slog.String("error", err.Error()))
			telemetry.DrainerTicksTotal.WithLabelValues("error").Inc()
			return
		}
		if !ok {
			telemetry.DrainerTicksTotal.WithLabelValues("follower").Inc()
			return
		}
	}

	reaped, err := s.reaper.ReapStale(ctx, s.staleAfter)
	if err != nil {
		s.logger.Error("reap stale tasks", slog.String("error", err.Error()))
	} else if reaped > 0 {
		s.logger.Warn("failed stale running tasks", slog.Int("count", reaped))
	}

	processed, err := s.drainer.ProcessPending(ctx)
	if err != nil {
		s.logger.Error("process pending tasks", slog.String("error", err.Error()))
		telemetry.DrainerTicksTotal.WithLabelValues("error").Inc()
		return
	}
	if processed > 0 {
		s.logger.Info("drained pending tasks", slog.Int("processed", processed))
	}
	telemetry.DrainerTicksTotal.WithLabelValues("leader").Inc()
}
