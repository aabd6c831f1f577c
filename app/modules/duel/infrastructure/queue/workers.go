package duelqueue

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"
)

// RoundSweeper is the slice of the duel service the timeout sweep needs.
type RoundSweeper interface {
	SweepOverdueRounds(ctx context.Context) (int, error)
}

// TicketExpirer is the slice of the matchmaking service the expiry sweep needs.
type TicketExpirer interface {
	ExpireStaleTickets(ctx context.Context) (int, error)
}

// RoundTimeoutSweepWorker drives the duel engine's timeout sweep.
type RoundTimeoutSweepWorker struct {
	river.WorkerDefaults[RoundTimeoutSweepArgs]
	logger  *slog.Logger
	sweeper RoundSweeper
}

// NewRoundTimeoutSweepWorker creates the timeout sweep worker.
func NewRoundTimeoutSweepWorker(logger *slog.Logger, sweeper RoundSweeper) *RoundTimeoutSweepWorker {
	return &RoundTimeoutSweepWorker{logger: logger, sweeper: sweeper}
}

// Work runs one sweep pass.
func (w *RoundTimeoutSweepWorker) Work(ctx context.Context, job *river.Job[RoundTimeoutSweepArgs]) error {
	closed, err := w.sweeper.SweepOverdueRounds(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Round timeout sweep failed", slog.String("error", err.Error()))
		return err
	}
	if closed > 0 {
		w.logger.InfoContext(ctx, "Round timeout sweep closed rounds", slog.Int("count", closed))
	}
	return nil
}

// TicketExpirySweepWorker cancels stale matchmaking tickets.
type TicketExpirySweepWorker struct {
	river.WorkerDefaults[TicketExpirySweepArgs]
	logger  *slog.Logger
	expirer TicketExpirer
}

// NewTicketExpirySweepWorker creates the ticket expiry worker.
func NewTicketExpirySweepWorker(logger *slog.Logger, expirer TicketExpirer) *TicketExpirySweepWorker {
	return &TicketExpirySweepWorker{logger: logger, expirer: expirer}
}

// Work runs one expiry pass.
func (w *TicketExpirySweepWorker) Work(ctx context.Context, job *river.Job[TicketExpirySweepArgs]) error {
	expired, err := w.expirer.ExpireStaleTickets(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Ticket expiry sweep failed", slog.String("error", err.Error()))
		return err
	}
	if expired > 0 {
		w.logger.InfoContext(ctx, "Ticket expiry sweep cancelled tickets", slog.Int("count", expired))
	}
	return nil
}
