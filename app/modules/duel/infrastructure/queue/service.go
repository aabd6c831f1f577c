package duelqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
)

// Service runs the periodic duel sweeps on River. River needs its own pgx
// pool; the bun connection cannot be shared.
type Service struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates the River-backed sweep scheduler.
func NewService(ctx context.Context, dsn string, logger *slog.Logger, sweeper RoundSweeper, expirer TicketExpirer, sweepInterval time.Duration) (*Service, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN for River: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, NewRoundTimeoutSweepWorker(logger, sweeper))
	river.AddWorker(workers, NewTicketExpirySweepWorker(logger, expirer))

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(sweepInterval),
				func() (river.JobArgs, *river.InsertOpts) {
					return RoundTimeoutSweepArgs{}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
			river.NewPeriodicJob(
				river.PeriodicInterval(sweepInterval),
				func() (river.JobArgs, *river.InsertOpts) {
					return TicketExpirySweepArgs{}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		},
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	logger.Info("Duel sweep scheduler initialized", slog.Duration("interval", sweepInterval))
	return &Service{client: client, pool: pool, logger: logger}, nil
}

// Start starts the scheduler.
func (s *Service) Start(ctx context.Context) error {
	if err := s.client.Start(ctx); err != nil {
		return fmt.Errorf("failed to start River client: %w", err)
	}
	s.logger.Info("Duel sweep scheduler started")
	return nil
}

// Stop stops the scheduler and releases its pool.
func (s *Service) Stop(ctx context.Context) error {
	if err := s.client.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop River client: %w", err)
	}
	s.pool.Close()
	s.logger.Info("Duel sweep scheduler stopped")
	return nil
}
