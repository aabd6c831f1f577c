package duelservice

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	duelevents "github.com/quizwars/duelsvc/app/modules/duel/domain/events"
	dueltypes "github.com/quizwars/duelsvc/app/modules/duel/domain/types"
	profiledb "github.com/quizwars/duelsvc/app/modules/profile/infrastructure/repositories"
)

// finalizeDuel computes the match outcome exactly once. The conditional
// in_progress -> finished transition elects a single winner among concurrent
// finalize attempts (round-closure path, timeout sweep, admin); the losers
// read back the existing DuelResult. Score tally, result persistence and
// rating application run in one transaction so scores and ratings can never
// desync. A cancelled duel yields ErrDuelNotActive and no result.
func (s *DuelService) finalizeDuel(ctx context.Context, duelID uuid.UUID) (*dueltypes.DuelResult, error) {
	var result *dueltypes.DuelResult
	var draw, finalizedNow bool

	err := s.runInTx(ctx, func(ctx context.Context, tx bun.IDB) error {
		now := s.clock.Now()
		won, err := s.repo.MarkFinished(ctx, tx, duelID, now)
		if err != nil {
			return err
		}
		if !won {
			duel, err := s.repo.GetDuel(ctx, tx, duelID)
			if err != nil {
				return err
			}
			if duel.Status != dueltypes.StatusFinished {
				return fmt.Errorf("%w: status %s", dueltypes.ErrDuelNotActive, duel.Status)
			}
			existing, err := s.repo.GetResult(ctx, tx, duelID)
			if err != nil {
				return err
			}
			result = existing
			return nil
		}

		finalizedNow = true
		duel, err := s.repo.GetDuel(ctx, tx, duelID)
		if err != nil {
			return err
		}
		if duel.OpponentID == nil {
			return fmt.Errorf("finalizing duel %s without opponent", duelID)
		}
		rounds, err := s.repo.GetRounds(ctx, tx, duelID)
		if err != nil {
			return err
		}

		tally := tallyRounds(rounds)
		var winnerID *dueltypes.UserID
		var winnerSlot dueltypes.Slot
		switch {
		case tally.initiatorScore > tally.opponentScore:
			winnerID, winnerSlot = &duel.InitiatorID, dueltypes.SlotInitiator
		case tally.opponentScore > tally.initiatorScore:
			winnerID, winnerSlot = duel.OpponentID, dueltypes.SlotOpponent
		}

		initiatorRating, err := s.profiles.GetRating(ctx, tx, duel.InitiatorID)
		if err != nil {
			return err
		}
		opponentRating, err := s.profiles.GetRating(ctx, tx, *duel.OpponentID)
		if err != nil {
			return err
		}

		var initiatorDelta, opponentDelta int
		initiatorRecord, opponentRecord := profiledb.RecordDraw, profiledb.RecordDraw
		if winnerID != nil {
			if winnerSlot == dueltypes.SlotInitiator {
				delta := ratingDelta(initiatorRating, opponentRating, s.cfg)
				initiatorDelta, opponentDelta = delta, -delta
				initiatorRecord, opponentRecord = profiledb.RecordWin, profiledb.RecordLoss
			} else {
				delta := ratingDelta(opponentRating, initiatorRating, s.cfg)
				initiatorDelta, opponentDelta = -delta, delta
				initiatorRecord, opponentRecord = profiledb.RecordLoss, profiledb.RecordWin
			}
		}

		if err := s.profiles.ApplyDuelOutcome(ctx, tx, duel.InitiatorID, initiatorRecord, initiatorDelta); err != nil {
			return err
		}
		if err := s.profiles.ApplyDuelOutcome(ctx, tx, *duel.OpponentID, opponentRecord, opponentDelta); err != nil {
			return err
		}

		result = &dueltypes.DuelResult{
			DuelID:           duelID,
			InitiatorScore:   tally.initiatorScore,
			OpponentScore:    tally.opponentScore,
			InitiatorCorrect: tally.initiatorCorrect,
			OpponentCorrect:  tally.opponentCorrect,
			WinnerID:         winnerID,
			Metadata: map[string]interface{}{
				"rating_delta_initiator": initiatorDelta,
				"rating_delta_opponent":  opponentDelta,
			},
			CreatedAt: now,
		}
		draw = winnerID == nil
		return s.repo.CreateResult(ctx, tx, result)
	})
	if err != nil {
		return nil, err
	}

	if !finalizedNow {
		// Another path finalized first; return its result untouched.
		return result, nil
	}

	s.metrics.RecordDuelFinished(ctx, draw)
	s.logger.InfoContext(ctx, "Duel finalized",
		slog.String("duel_id", duelID.String()),
		slog.Bool("draw", draw),
	)
	s.publishEvent(ctx, duelevents.DuelFinished, duelID, duelevents.DuelFinishedPayload{
		DuelID: duelID,
		Result: result,
	})
	return result, nil
}

type scoreTally struct {
	initiatorScore   int
	opponentScore    int
	initiatorCorrect int
	opponentCorrect  int
}

// tallyRounds sums per-round scores and correctness counts across closed
// rounds. Open rounds of an early-finished duel contribute nothing.
func tallyRounds(rounds []dueltypes.Round) scoreTally {
	var t scoreTally
	for i := range rounds {
		r := &rounds[i]
		if !r.IsClosed() {
			continue
		}
		if r.Initiator != nil {
			t.initiatorScore += r.Initiator.Score
			if r.Initiator.IsCorrect {
				t.initiatorCorrect++
			}
		}
		if r.Opponent != nil {
			t.opponentScore += r.Opponent.Score
			if r.Opponent.IsCorrect {
				t.opponentCorrect++
			}
		}
	}
	return t
}
