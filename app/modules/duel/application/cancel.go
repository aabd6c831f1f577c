package duelservice

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	duelevents "github.com/quizwars/duelsvc/app/modules/duel/domain/events"
	dueltypes "github.com/quizwars/duelsvc/app/modules/duel/domain/types"
)

// CancelWaiting cancels a waiting duel. Only the initiator may cancel, and
// only while no opponent is attached; a concurrently-matched duel reports
// ErrConflict so the caller resyncs instead of yanking a live match.
func (s *DuelService) CancelWaiting(ctx context.Context, duelID uuid.UUID, userID dueltypes.UserID) error {
	duel, err := s.repo.GetDuel(ctx, s.db, duelID)
	if err != nil {
		return err
	}
	if duel.InitiatorID != userID {
		return dueltypes.ErrForbidden
	}
	cancelled, err := s.repo.CancelWaiting(ctx, s.db, duelID)
	if err != nil {
		return err
	}
	if !cancelled {
		return dueltypes.ErrConflict
	}
	s.logger.InfoContext(ctx, "Waiting duel cancelled", slog.String("duel_id", duelID.String()))
	s.publishEvent(ctx, duelevents.DuelCancelled, duelID, duelevents.DuelCancelledPayload{
		DuelID: duelID,
		Reason: "cancelled_by_user",
	})
	return nil
}

// CancelAllActive force-cancels every non-terminal duel (administrative).
// Each duel gets its own conditional transition, so a duel that finishes
// concurrently keeps its DuelResult and is simply skipped here.
func (s *DuelService) CancelAllActive(ctx context.Context) (int, error) {
	duels, err := s.repo.ListActiveDuels(ctx, s.db)
	if err != nil {
		return 0, err
	}
	cancelled := 0
	for i := range duels {
		ok, err := s.repo.CancelActive(ctx, s.db, duels[i].ID)
		if err != nil {
			return cancelled, err
		}
		if !ok {
			continue
		}
		cancelled++
		s.publishEvent(ctx, duelevents.DuelCancelled, duels[i].ID, duelevents.DuelCancelledPayload{
			DuelID: duels[i].ID,
			Reason: "cancelled_by_admin",
		})
	}
	if cancelled > 0 {
		s.metrics.RecordDuelsCancelled(ctx, cancelled)
		s.logger.InfoContext(ctx, "Active duels cancelled", slog.Int("count", cancelled))
	}
	return cancelled, nil
}

// SweepOverdueRounds applies timeouts to rounds whose budget expired and
// drives closure and match advancement for each. The sweep is defensive:
// read paths perform the same flush, so a missed tick costs only latency.
// Returns the number of rounds closed by this pass.
func (s *DuelService) SweepOverdueRounds(ctx context.Context) (int, error) {
	rounds, err := s.repo.ListOverdueOpenRounds(ctx, s.db, s.clock.Now())
	if err != nil {
		return 0, err
	}
	closed := 0
	for i := range rounds {
		round := rounds[i]
		duel, err := s.repo.GetDuel(ctx, s.db, round.DuelID)
		if err != nil {
			s.logger.ErrorContext(ctx, "Sweep failed to load duel",
				slog.String("duel_id", round.DuelID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if duel.Status != dueltypes.StatusInProgress {
			continue
		}
		if _, err := s.touchRound(ctx, duel, &round); err != nil {
			s.logger.ErrorContext(ctx, "Sweep failed to touch round",
				slog.String("duel_id", round.DuelID.String()),
				slog.Int("round", round.RoundNumber),
				slog.String("error", err.Error()),
			)
			continue
		}
		if round.IsClosed() {
			closed++
		}
	}
	if closed > 0 {
		s.metrics.RecordSweptRounds(ctx, closed)
	}
	return closed, nil
}
