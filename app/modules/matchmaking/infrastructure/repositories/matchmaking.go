package matchmakingdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	dueltypes "github.com/quizwars/duelsvc/app/modules/duel/domain/types"
)

// MatchmakingDB is the storage contract for pairing waiting duels.
type MatchmakingDB interface {
	// FindOpenTicketExcluding returns the oldest live matchmaking ticket
	// not created by userID and created after cutoff, or nil.
	FindOpenTicketExcluding(ctx context.Context, db bun.IDB, userID dueltypes.UserID, cutoff time.Time) (*dueltypes.Duel, error)
	// AcceptDuel atomically transitions waiting -> matched and attaches the
	// opponent; false means another acceptor won the race.
	AcceptDuel(ctx context.Context, db bun.IDB, duelID uuid.UUID, opponentID dueltypes.UserID, matchedAt time.Time) (bool, error)
	// ExpireStaleTickets cancels matchmaking tickets created before cutoff.
	ExpireStaleTickets(ctx context.Context, db bun.IDB, cutoff time.Time) ([]uuid.UUID, error)
}

// MatchmakingDBImpl is the concrete implementation of MatchmakingDB using bun.
type MatchmakingDBImpl struct {
	DB *bun.DB
}

var _ MatchmakingDB = (*MatchmakingDBImpl)(nil)

// FindOpenTicketExcluding picks tickets FIFO by creation time so the longest
// waiter is paired first.
func (m *MatchmakingDBImpl) FindOpenTicketExcluding(ctx context.Context, db bun.IDB, userID dueltypes.UserID, cutoff time.Time) (*dueltypes.Duel, error) {
	duel := new(dueltypes.Duel)
	err := db.NewSelect().
		Model(duel).
		Where("status = ?", dueltypes.StatusWaiting).
		Where("opponent_id IS NULL").
		Where("initiator_id != ?", userID).
		Where("settings ->> 'matchmaking_started_at' IS NOT NULL").
		Where("created_at > ?", cutoff).
		Order("created_at ASC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find open ticket: %w", err)
	}
	return duel, nil
}

// AcceptDuel is the single conditional update that makes ticket acceptance
// race-free: two simultaneous acceptors cannot both match the guard.
func (m *MatchmakingDBImpl) AcceptDuel(ctx context.Context, db bun.IDB, duelID uuid.UUID, opponentID dueltypes.UserID, matchedAt time.Time) (bool, error) {
	res, err := db.NewUpdate().
		Model((*dueltypes.Duel)(nil)).
		Set("status = ?", dueltypes.StatusMatched).
		Set("opponent_id = ?", opponentID).
		Set("matched_at = ?", matchedAt).
		Set("settings = '{}'::jsonb").
		Where("id = ?", duelID).
		Where("status = ?", dueltypes.StatusWaiting).
		Where("opponent_id IS NULL").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to accept duel: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// ExpireStaleTickets cancels matchmaking tickets older than cutoff and
// returns the affected duel IDs so the caller can fan out cancellations.
func (m *MatchmakingDBImpl) ExpireStaleTickets(ctx context.Context, db bun.IDB, cutoff time.Time) ([]uuid.UUID, error) {
	var expired []uuid.UUID
	err := db.NewUpdate().
		Model((*dueltypes.Duel)(nil)).
		Set("status = ?", dueltypes.StatusCancelled).
		Where("status = ?", dueltypes.StatusWaiting).
		Where("opponent_id IS NULL").
		Where("settings ->> 'matchmaking_started_at' IS NOT NULL").
		Where("created_at <= ?", cutoff).
		Returning("id").
		Scan(ctx, &expired)
	if err != nil {
		return nil, fmt.Errorf("failed to expire stale tickets: %w", err)
	}
	return expired, nil
}
