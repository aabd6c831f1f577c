package duelservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	duelevents "github.com/quizwars/duelsvc/app/modules/duel/domain/events"
	dueltypes "github.com/quizwars/duelsvc/app/modules/duel/domain/types"
	questiontypes "github.com/quizwars/duelsvc/app/modules/question/domain/types"
)

// StartDuel transitions a matched duel to in-progress: it selects the round
// questions, creates the round sequence and dispatches round one. When the
// question bank cannot satisfy the request the duel stays matched so the
// caller can retry. Starting an already-running duel is idempotent and
// returns the current snapshot, so both participants may race the button.
func (s *DuelService) StartDuel(ctx context.Context, duelID uuid.UUID, userID dueltypes.UserID) (*dueltypes.DuelSnapshot, error) {
	duel, err := s.repo.GetDuel(ctx, s.db, duelID)
	if err != nil {
		return nil, err
	}
	if _, ok := duel.SlotOf(userID); !ok {
		return nil, dueltypes.ErrForbidden
	}
	switch duel.Status {
	case dueltypes.StatusMatched:
	case dueltypes.StatusInProgress:
		return s.snapshotFor(ctx, duelID, userID)
	default:
		return nil, fmt.Errorf("%w: status %s", dueltypes.ErrDuelNotActive, duel.Status)
	}

	roundCount := duel.RoundsToWin * 2
	questions, err := s.questions.SelectQuestions(ctx, duel.Category, roundCount)
	if err != nil {
		// ErrInsufficientContent propagates as-is; the duel remains
		// matched for retry.
		return nil, err
	}

	now := s.clock.Now()
	rounds := make([]dueltypes.Round, 0, len(questions))
	for i, q := range questions {
		round, err := buildRound(duelID, i+1, q, s.cfg.DefaultTimeLimit)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, *round)
	}

	err = s.runInTx(ctx, func(ctx context.Context, tx bun.IDB) error {
		started, err := s.repo.MarkStarted(ctx, tx, duelID, now)
		if err != nil {
			return err
		}
		if !started {
			// The other participant started first.
			return dueltypes.ErrConflict
		}
		if err := s.repo.CreateRounds(ctx, tx, rounds); err != nil {
			return err
		}
		if err := s.repo.SetCurrentRound(ctx, tx, duelID, 1); err != nil {
			return err
		}
		return s.repo.StampQuestionSent(ctx, tx, duelID, 1, now)
	})
	if errors.Is(err, dueltypes.ErrConflict) {
		return s.snapshotFor(ctx, duelID, userID)
	}
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Duel started",
		slog.String("duel_id", duelID.String()),
		slog.Int("rounds", len(rounds)),
	)
	s.publishEvent(ctx, duelevents.DuelStarted, duelID, duelevents.DuelStartedPayload{
		DuelID:      duelID,
		RoundsToWin: duel.RoundsToWin,
		RoundCount:  len(rounds),
		StartedAt:   now,
	})
	return s.snapshotFor(ctx, duelID, userID)
}

// buildRound turns a selected question into a round row, splitting the
// client-visible choices from the hidden correct answer id.
func buildRound(duelID uuid.UUID, roundNumber int, q questiontypes.Question, timeLimit int) (*dueltypes.Round, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("invalid question content: %w", err)
	}
	choices := make([]dueltypes.AnswerChoice, 0, len(q.Choices))
	for _, c := range q.Choices {
		choices = append(choices, dueltypes.AnswerChoice{ID: c.ID, Text: c.Text})
	}
	return &dueltypes.Round{
		DuelID:          duelID,
		RoundNumber:     roundNumber,
		QuestionID:      q.ID,
		QuestionText:    q.Text,
		Choices:         choices,
		CorrectAnswerID: q.CorrectChoiceID(),
		TimeLimit:       timeLimit,
	}, nil
}
