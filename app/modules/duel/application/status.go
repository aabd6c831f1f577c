package duelservice

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	dueltypes "github.com/quizwars/duelsvc/app/modules/duel/domain/types"
)

// GetStatus returns a reconciliation-sufficient snapshot for one participant.
// The read path is also a timeout flush: polling an in-progress duel
// re-evaluates both slots of the current round, so correctness never depends
// on the background sweep firing on time.
func (s *DuelService) GetStatus(ctx context.Context, duelID uuid.UUID, userID dueltypes.UserID) (*dueltypes.DuelSnapshot, error) {
	duel, err := s.repo.GetDuel(ctx, s.db, duelID)
	if err != nil {
		return nil, err
	}
	if _, ok := duel.SlotOf(userID); !ok {
		return nil, dueltypes.ErrForbidden
	}

	if duel.Status == dueltypes.StatusInProgress && duel.CurrentRound > 0 {
		round, err := s.repo.GetRound(ctx, s.db, duelID, duel.CurrentRound)
		if err != nil && !errors.Is(err, dueltypes.ErrNotFound) {
			return nil, err
		}
		if round != nil {
			if _, err := s.touchRound(ctx, duel, round); err != nil {
				s.logger.WarnContext(ctx, "Timeout flush failed during status poll",
					slog.String("duel_id", duelID.String()),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	return s.snapshotFor(ctx, duelID, userID)
}

// snapshotFor assembles the participant-facing snapshot from fresh reads.
func (s *DuelService) snapshotFor(ctx context.Context, duelID uuid.UUID, userID dueltypes.UserID) (*dueltypes.DuelSnapshot, error) {
	duel, err := s.repo.GetDuel(ctx, s.db, duelID)
	if err != nil {
		return nil, err
	}
	slot, ok := duel.SlotOf(userID)
	if !ok {
		return nil, dueltypes.ErrForbidden
	}

	snap := &dueltypes.DuelSnapshot{
		DuelID:      duel.ID,
		Code:        duel.Code,
		Status:      duel.Status,
		RoundsToWin: duel.RoundsToWin,
		YourSlot:    slot,
	}

	rounds, err := s.repo.GetRounds(ctx, s.db, duelID)
	if err != nil {
		return nil, err
	}
	initiatorWins, opponentWins := roundWins(rounds)
	if slot == dueltypes.SlotInitiator {
		snap.YourRoundWins, snap.OpponentRoundWins = initiatorWins, opponentWins
	} else {
		snap.YourRoundWins, snap.OpponentRoundWins = opponentWins, initiatorWins
	}

	var lastClosed *dueltypes.Round
	for i := range rounds {
		r := &rounds[i]
		if r.IsClosed() {
			lastClosed = r
		}
		if duel.Status == dueltypes.StatusInProgress && r.RoundNumber == duel.CurrentRound && !r.IsClosed() {
			snap.CurrentRound = roundView(r, slot)
		}
	}
	if lastClosed != nil {
		snap.LastClosedRound = roundView(lastClosed, slot)
	}

	if duel.Status == dueltypes.StatusFinished {
		result, err := s.repo.GetResult(ctx, s.db, duelID)
		if err != nil && !errors.Is(err, dueltypes.ErrNotFound) {
			return nil, err
		}
		snap.Result = result
	}
	return snap, nil
}

// roundView projects a round for one participant. The opponent's correctness
// and score stay hidden while the round is open; only the disposition (has
// the opponent acted, and how) is revealed early.
func roundView(r *dueltypes.Round, slot dueltypes.Slot) *dueltypes.RoundView {
	view := &dueltypes.RoundView{
		RoundNumber:    r.RoundNumber,
		QuestionID:     r.QuestionID,
		QuestionText:   r.QuestionText,
		Choices:        r.Choices,
		TimeLimit:      r.TimeLimit,
		QuestionSentAt: r.QuestionSentAt,
		You:            outcomeView(r.Outcome(slot), true),
		Opponent:       outcomeView(r.Outcome(slot.Other()), r.IsClosed()),
		ClosedAt:       r.ClosedAt,
	}
	return view
}

func outcomeView(out *dueltypes.ParticipantOutcome, reveal bool) dueltypes.OutcomeView {
	if out == nil {
		return dueltypes.OutcomeView{}
	}
	view := dueltypes.OutcomeView{
		Finalized: true,
		Answered:  out.Answered,
		Reason:    out.Reason,
	}
	if reveal {
		correct := out.IsCorrect
		score := out.Score
		elapsed := out.TimeElapsed
		view.AnswerID = out.AnswerID
		view.IsCorrect = &correct
		view.Score = &score
		view.TimeElapsed = &elapsed
	}
	return view
}
