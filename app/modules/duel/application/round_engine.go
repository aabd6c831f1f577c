package duelservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	duelevents "github.com/quizwars/duelsvc/app/modules/duel/domain/events"
	dueltypes "github.com/quizwars/duelsvc/app/modules/duel/domain/types"
)

// SubmitAnswer records one participant's answer for a round. Slot mutation is
// serialized by the repository's conditional update, so two concurrent
// submissions for the same slot collapse into one winner; the loser observes
// ErrAlreadyAnswered. Every call also re-evaluates the opponent's timeout, so
// a slow or missed sweep cannot desynchronize the two participants' views.
func (s *DuelService) SubmitAnswer(ctx context.Context, duelID uuid.UUID, roundNumber int, userID dueltypes.UserID, answerID *string) (*dueltypes.RoundOutcome, error) {
	duel, err := s.repo.GetDuel(ctx, s.db, duelID)
	if err != nil {
		return nil, err
	}
	slot, ok := duel.SlotOf(userID)
	if !ok {
		return nil, dueltypes.ErrForbidden
	}
	if duel.Status != dueltypes.StatusInProgress {
		return nil, fmt.Errorf("%w: status %s", dueltypes.ErrDuelNotActive, duel.Status)
	}

	round, err := s.repo.GetRound(ctx, s.db, duelID, roundNumber)
	if err != nil {
		return nil, err
	}
	if round.IsClosed() {
		return nil, dueltypes.ErrRoundClosed
	}
	if round.Outcome(slot) != nil {
		return nil, dueltypes.ErrAlreadyAnswered
	}
	if round.QuestionSentAt == nil {
		// Answer for a round that has not been dispatched yet.
		return nil, fmt.Errorf("%w: round %d not dispatched", dueltypes.ErrConflict, roundNumber)
	}

	now := s.clock.Now()
	elapsed := elapsedSeconds(*round.QuestionSentAt, now)

	var outcome *dueltypes.ParticipantOutcome
	if timedOut(round.TimeLimit, elapsed) {
		// The request itself arrived past the budget; the submitted
		// choice no longer counts.
		outcome = timeoutOutcome(elapsed)
	} else {
		correct := answerID != nil && *answerID == round.CorrectAnswerID
		outcome = &dueltypes.ParticipantOutcome{
			Answered:    true,
			AnswerID:    answerID,
			IsCorrect:   correct,
			Score:       scoreFor(correct, round.TimeLimit, elapsed),
			TimeElapsed: elapsed,
			Reason:      dueltypes.ReasonAnswered,
		}
	}

	recorded, err := s.repo.FinalizeSlot(ctx, s.db, duelID, roundNumber, slot, outcome)
	if err != nil {
		return nil, err
	}
	if !recorded {
		// Lost the conditional update: either a duplicate submission for
		// this slot landed first, or the round closed underneath us.
		fresh, ferr := s.repo.GetRound(ctx, s.db, duelID, roundNumber)
		if ferr != nil {
			return nil, ferr
		}
		if fresh.Outcome(slot) != nil {
			return nil, dueltypes.ErrAlreadyAnswered
		}
		return nil, dueltypes.ErrRoundClosed
	}
	round.SetOutcome(slot, outcome)
	s.metrics.RecordAnswer(ctx, outcome.Reason)
	s.logger.InfoContext(ctx, "Answer recorded",
		slog.String("duel_id", duelID.String()),
		slog.Int("round", roundNumber),
		slog.String("slot", string(slot)),
		slog.String("reason", string(outcome.Reason)),
		slog.Int("score", outcome.Score),
	)
	s.publishEvent(ctx, duelevents.RoundAnswered, duelID, duelevents.RoundAnsweredPayload{
		DuelID:      duelID,
		RoundNumber: roundNumber,
		UserID:      userID,
		Reason:      outcome.Reason,
	})

	finished, err := s.touchRound(ctx, duel, round)
	if err != nil {
		return nil, err
	}

	result := &dueltypes.RoundOutcome{
		RoundNumber:  roundNumber,
		You:          *outcome,
		RoundClosed:  round.IsClosed(),
		DuelFinished: finished,
	}
	if opp := round.Outcome(slot.Other()); opp != nil {
		result.Opponent = opp
	}
	if snap, serr := s.snapshotFor(ctx, duelID, userID); serr == nil {
		result.Snapshot = snap
	} else {
		s.logger.WarnContext(ctx, "Failed to build snapshot after submission",
			slog.String("duel_id", duelID.String()),
			slog.String("error", serr.Error()),
		)
	}
	return result, nil
}

// touchRound re-evaluates timeouts for both slots of an open round, closes it
// once both are finalized, and drives match advancement after closure. It is
// idempotent and safe to call from any read or write path; round is updated
// in place to the freshest observed state. Returns whether the duel finished.
func (s *DuelService) touchRound(ctx context.Context, duel *dueltypes.Duel, round *dueltypes.Round) (bool, error) {
	if round.IsClosed() {
		return s.advanceOrFinalize(ctx, duel)
	}
	if round.QuestionSentAt == nil {
		return false, nil
	}

	now := s.clock.Now()
	elapsed := elapsedSeconds(*round.QuestionSentAt, now)
	if timedOut(round.TimeLimit, elapsed) {
		for _, slot := range []dueltypes.Slot{dueltypes.SlotInitiator, dueltypes.SlotOpponent} {
			if round.Outcome(slot) != nil {
				continue
			}
			// Timeout is a fallback, never a race winner: the
			// conditional update does nothing if a valid answer
			// landed first.
			outcome := timeoutOutcome(elapsed)
			recorded, err := s.repo.FinalizeSlot(ctx, s.db, round.DuelID, round.RoundNumber, slot, outcome)
			if err != nil {
				return false, err
			}
			if recorded {
				round.SetOutcome(slot, outcome)
				s.metrics.RecordAnswer(ctx, dueltypes.ReasonTimeout)
				s.publishEvent(ctx, duelevents.RoundAnswered, round.DuelID, duelevents.RoundAnsweredPayload{
					DuelID:      round.DuelID,
					RoundNumber: round.RoundNumber,
					UserID:      duel.ParticipantID(slot),
					Reason:      dueltypes.ReasonTimeout,
				})
			} else {
				fresh, err := s.repo.GetRound(ctx, s.db, round.DuelID, round.RoundNumber)
				if err != nil {
					return false, err
				}
				*round = *fresh
			}
		}
	}

	if !round.BothFinalized() {
		return false, nil
	}
	if !round.IsClosed() {
		closedNow, err := s.repo.CloseRound(ctx, s.db, round.DuelID, round.RoundNumber, now)
		if err != nil {
			return false, err
		}
		if closedNow {
			round.ClosedAt = &now
			s.metrics.RecordRoundClosed(ctx)
			s.logger.InfoContext(ctx, "Round closed",
				slog.String("duel_id", round.DuelID.String()),
				slog.Int("round", round.RoundNumber),
			)
			s.publishEvent(ctx, duelevents.RoundClosed, round.DuelID, duelevents.RoundClosedPayload{
				DuelID:      round.DuelID,
				RoundNumber: round.RoundNumber,
				Initiator:   round.Initiator,
				Opponent:    round.Opponent,
				ClosedAt:    now,
			})
		} else {
			fresh, err := s.repo.GetRound(ctx, s.db, round.DuelID, round.RoundNumber)
			if err != nil {
				return false, err
			}
			*round = *fresh
		}
	}
	return s.advanceOrFinalize(ctx, duel)
}

// advanceOrFinalize recomputes per-side round wins and either finalizes the
// duel (threshold reached, or every round closed) or dispatches the next
// unclosed round. Returns whether the duel finished.
func (s *DuelService) advanceOrFinalize(ctx context.Context, duel *dueltypes.Duel) (bool, error) {
	rounds, err := s.repo.GetRounds(ctx, s.db, duel.ID)
	if err != nil {
		return false, err
	}
	initiatorWins, opponentWins := roundWins(rounds)

	var next *dueltypes.Round
	allClosed := true
	for i := range rounds {
		if !rounds[i].IsClosed() {
			allClosed = false
			if next == nil {
				next = &rounds[i]
			}
		}
	}

	if initiatorWins >= duel.RoundsToWin || opponentWins >= duel.RoundsToWin || allClosed {
		if _, err := s.finalizeDuel(ctx, duel.ID); err != nil {
			if errors.Is(err, dueltypes.ErrDuelNotActive) {
				// Cancelled underneath us; nothing to finalize.
				return false, nil
			}
			return false, err
		}
		return true, nil
	}

	if duel.CurrentRound != next.RoundNumber {
		now := s.clock.Now()
		if err := s.repo.SetCurrentRound(ctx, s.db, duel.ID, next.RoundNumber); err != nil {
			return false, err
		}
		if next.QuestionSentAt == nil {
			if err := s.repo.StampQuestionSent(ctx, s.db, duel.ID, next.RoundNumber, now); err != nil {
				return false, err
			}
		}
		duel.CurrentRound = next.RoundNumber
		s.publishEvent(ctx, duelevents.RoundStarted, duel.ID, duelevents.RoundStartedPayload{
			DuelID:      duel.ID,
			RoundNumber: next.RoundNumber,
			TimeLimit:   next.TimeLimit,
			SentAt:      now,
		})
	}
	return false, nil
}
