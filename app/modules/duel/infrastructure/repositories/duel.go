package dueldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	dueltypes "github.com/quizwars/duelsvc/app/modules/duel/domain/types"
)

// DuelDBImpl is the concrete implementation of the DuelDB interface using bun.
type DuelDBImpl struct {
	DB *bun.DB
}

var _ DuelDB = (*DuelDBImpl)(nil)

// CreateDuel inserts a new duel row.
func (d *DuelDBImpl) CreateDuel(ctx context.Context, db bun.IDB, duel *dueltypes.Duel) error {
	slog.DebugContext(ctx, "Executing DuelDBImpl.CreateDuel", slog.String("duel_id", duel.ID.String()))
	if _, err := db.NewInsert().Model(duel).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create duel: %w", err)
	}
	return nil
}

// GetDuel retrieves a duel by ID.
func (d *DuelDBImpl) GetDuel(ctx context.Context, db bun.IDB, duelID uuid.UUID) (*dueltypes.Duel, error) {
	duel := new(dueltypes.Duel)
	err := db.NewSelect().
		Model(duel).
		Where("id = ?", duelID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dueltypes.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch duel: %w", err)
	}
	return duel, nil
}

// GetDuelByCode retrieves a duel by its shareable invitation code.
func (d *DuelDBImpl) GetDuelByCode(ctx context.Context, db bun.IDB, code string) (*dueltypes.Duel, error) {
	duel := new(dueltypes.Duel)
	err := db.NewSelect().
		Model(duel).
		Where("code = ?", code).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dueltypes.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch duel by code: %w", err)
	}
	return duel, nil
}

// ListActiveDuels returns all duels in a non-terminal state.
func (d *DuelDBImpl) ListActiveDuels(ctx context.Context, db bun.IDB) ([]dueltypes.Duel, error) {
	var duels []dueltypes.Duel
	err := db.NewSelect().
		Model(&duels).
		Where("status IN (?)", bun.In([]dueltypes.Status{
			dueltypes.StatusWaiting,
			dueltypes.StatusMatched,
			dueltypes.StatusInProgress,
		})).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active duels: %w", err)
	}
	return duels, nil
}

// MarkStarted transitions matched -> in_progress, guarded on the prior status.
func (d *DuelDBImpl) MarkStarted(ctx context.Context, db bun.IDB, duelID uuid.UUID, startedAt time.Time) (bool, error) {
	res, err := db.NewUpdate().
		Model((*dueltypes.Duel)(nil)).
		Set("status = ?", dueltypes.StatusInProgress).
		Set("started_at = ?", startedAt).
		Where("id = ?", duelID).
		Where("status = ?", dueltypes.StatusMatched).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to mark duel started: %w", err)
	}
	return rowsAffected(res) > 0, nil
}

// MarkFinished transitions in_progress -> finished. Concurrent finalize
// attempts collapse here: exactly one caller sees true.
func (d *DuelDBImpl) MarkFinished(ctx context.Context, db bun.IDB, duelID uuid.UUID, finishedAt time.Time) (bool, error) {
	res, err := db.NewUpdate().
		Model((*dueltypes.Duel)(nil)).
		Set("status = ?", dueltypes.StatusFinished).
		Set("finished_at = ?", finishedAt).
		Where("id = ?", duelID).
		Where("status = ?", dueltypes.StatusInProgress).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to mark duel finished: %w", err)
	}
	return rowsAffected(res) > 0, nil
}

// CancelWaiting cancels a waiting duel that has no opponent attached.
func (d *DuelDBImpl) CancelWaiting(ctx context.Context, db bun.IDB, duelID uuid.UUID) (bool, error) {
	res, err := db.NewUpdate().
		Model((*dueltypes.Duel)(nil)).
		Set("status = ?", dueltypes.StatusCancelled).
		Where("id = ?", duelID).
		Where("status = ?", dueltypes.StatusWaiting).
		Where("opponent_id IS NULL").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to cancel waiting duel: %w", err)
	}
	return rowsAffected(res) > 0, nil
}

// CancelActive force-cancels a duel from any non-terminal state. A duel that
// concurrently finished is not matched by the guard, so a DuelResult is never
// produced for a cancelled duel and vice versa.
func (d *DuelDBImpl) CancelActive(ctx context.Context, db bun.IDB, duelID uuid.UUID) (bool, error) {
	res, err := db.NewUpdate().
		Model((*dueltypes.Duel)(nil)).
		Set("status = ?", dueltypes.StatusCancelled).
		Where("id = ?", duelID).
		Where("status IN (?)", bun.In([]dueltypes.Status{
			dueltypes.StatusWaiting,
			dueltypes.StatusMatched,
			dueltypes.StatusInProgress,
		})).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to cancel duel: %w", err)
	}
	return rowsAffected(res) > 0, nil
}

// SetCurrentRound advances the current-round pointer.
func (d *DuelDBImpl) SetCurrentRound(ctx context.Context, db bun.IDB, duelID uuid.UUID, roundNumber int) error {
	_, err := db.NewUpdate().
		Model((*dueltypes.Duel)(nil)).
		Set("current_round = ?", roundNumber).
		Where("id = ?", duelID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set current round: %w", err)
	}
	return nil
}

// CreateRounds bulk-inserts the round sequence for a duel.
func (d *DuelDBImpl) CreateRounds(ctx context.Context, db bun.IDB, rounds []dueltypes.Round) error {
	if len(rounds) == 0 {
		return nil
	}
	if _, err := db.NewInsert().Model(&rounds).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create rounds: %w", err)
	}
	return nil
}

// GetRound retrieves one round by (duel_id, round_number).
func (d *DuelDBImpl) GetRound(ctx context.Context, db bun.IDB, duelID uuid.UUID, roundNumber int) (*dueltypes.Round, error) {
	round := new(dueltypes.Round)
	err := db.NewSelect().
		Model(round).
		Where("duel_id = ?", duelID).
		Where("round_number = ?", roundNumber).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dueltypes.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch round: %w", err)
	}
	return round, nil
}

// GetRounds retrieves all rounds of a duel in round order.
func (d *DuelDBImpl) GetRounds(ctx context.Context, db bun.IDB, duelID uuid.UUID) ([]dueltypes.Round, error) {
	var rounds []dueltypes.Round
	err := db.NewSelect().
		Model(&rounds).
		Where("duel_id = ?", duelID).
		Order("round_number ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rounds: %w", err)
	}
	return rounds, nil
}

// StampQuestionSent sets question_sent_at once; later calls are no-ops so the
// timeout reference instant can never move.
func (d *DuelDBImpl) StampQuestionSent(ctx context.Context, db bun.IDB, duelID uuid.UUID, roundNumber int, sentAt time.Time) error {
	_, err := db.NewUpdate().
		Model((*dueltypes.Round)(nil)).
		Set("question_sent_at = ?", sentAt).
		Where("duel_id = ?", duelID).
		Where("round_number = ?", roundNumber).
		Where("question_sent_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to stamp question sent: %w", err)
	}
	return nil
}

// FinalizeSlot records an outcome with a single conditional update: the slot
// must still be open and the round not closed. Losing the race reports false
// and leaves the stored outcome untouched.
func (d *DuelDBImpl) FinalizeSlot(ctx context.Context, db bun.IDB, duelID uuid.UUID, roundNumber int, slot dueltypes.Slot, outcome *dueltypes.ParticipantOutcome) (bool, error) {
	column := "initiator_outcome"
	if slot == dueltypes.SlotOpponent {
		column = "opponent_outcome"
	}
	res, err := db.NewUpdate().
		Model((*dueltypes.Round)(nil)).
		Set(column+" = ?", outcome).
		Where("duel_id = ?", duelID).
		Where("round_number = ?", roundNumber).
		Where(column+" IS NULL").
		Where("closed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to finalize outcome slot: %w", err)
	}
	return rowsAffected(res) > 0, nil
}

// CloseRound sets closed_at iff both slots are finalized and the round is
// still open. Repeated calls are no-ops, so closure is evaluated after every
// slot mutation without risk of double-processing.
func (d *DuelDBImpl) CloseRound(ctx context.Context, db bun.IDB, duelID uuid.UUID, roundNumber int, closedAt time.Time) (bool, error) {
	res, err := db.NewUpdate().
		Model((*dueltypes.Round)(nil)).
		Set("closed_at = ?", closedAt).
		Where("duel_id = ?", duelID).
		Where("round_number = ?", roundNumber).
		Where("closed_at IS NULL").
		Where("initiator_outcome IS NOT NULL").
		Where("opponent_outcome IS NOT NULL").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to close round: %w", err)
	}
	return rowsAffected(res) > 0, nil
}

// ListOverdueOpenRounds returns open rounds whose time limit expired before
// now. Rounds with time_limit <= 0 have no deadline and are never returned.
func (d *DuelDBImpl) ListOverdueOpenRounds(ctx context.Context, db bun.IDB, now time.Time) ([]dueltypes.Round, error) {
	var rounds []dueltypes.Round
	err := db.NewSelect().
		Model(&rounds).
		Where("closed_at IS NULL").
		Where("question_sent_at IS NOT NULL").
		Where("time_limit > 0").
		Where("question_sent_at + time_limit * interval '1 second' < ?", now).
		Order("question_sent_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue rounds: %w", err)
	}
	return rounds, nil
}

// CreateResult inserts the duel's result row. The primary key on duel_id
// backstops finalize-exactly-once at the storage level.
func (d *DuelDBImpl) CreateResult(ctx context.Context, db bun.IDB, result *dueltypes.DuelResult) error {
	if _, err := db.NewInsert().Model(result).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create duel result: %w", err)
	}
	return nil
}

// GetResult retrieves the result of a finished duel.
func (d *DuelDBImpl) GetResult(ctx context.Context, db bun.IDB, duelID uuid.UUID) (*dueltypes.DuelResult, error) {
	result := new(dueltypes.DuelResult)
	err := db.NewSelect().
		Model(result).
		Where("duel_id = ?", duelID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dueltypes.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch duel result: %w", err)
	}
	return result, nil
}

func rowsAffected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
