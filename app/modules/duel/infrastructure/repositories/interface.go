package dueldb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	dueltypes "github.com/quizwars/duelsvc/app/modules/duel/domain/types"
)

// DuelDB is the storage contract for duels, rounds and results. Methods take
// a bun.IDB so callers can run them inside a transaction; state transitions
// are conditional updates that report win/lose via their bool return, never
// by overwriting.
type DuelDB interface {
	CreateDuel(ctx context.Context, db bun.IDB, duel *dueltypes.Duel) error
	GetDuel(ctx context.Context, db bun.IDB, duelID uuid.UUID) (*dueltypes.Duel, error)
	GetDuelByCode(ctx context.Context, db bun.IDB, code string) (*dueltypes.Duel, error)
	ListActiveDuels(ctx context.Context, db bun.IDB) ([]dueltypes.Duel, error)

	// MarkStarted transitions matched -> in_progress.
	MarkStarted(ctx context.Context, db bun.IDB, duelID uuid.UUID, startedAt time.Time) (bool, error)
	// MarkFinished transitions in_progress -> finished.
	MarkFinished(ctx context.Context, db bun.IDB, duelID uuid.UUID, finishedAt time.Time) (bool, error)
	// CancelWaiting transitions waiting -> cancelled, only with no opponent attached.
	CancelWaiting(ctx context.Context, db bun.IDB, duelID uuid.UUID) (bool, error)
	// CancelActive transitions any non-terminal state -> cancelled.
	CancelActive(ctx context.Context, db bun.IDB, duelID uuid.UUID) (bool, error)
	SetCurrentRound(ctx context.Context, db bun.IDB, duelID uuid.UUID, roundNumber int) error

	CreateRounds(ctx context.Context, db bun.IDB, rounds []dueltypes.Round) error
	GetRound(ctx context.Context, db bun.IDB, duelID uuid.UUID, roundNumber int) (*dueltypes.Round, error)
	GetRounds(ctx context.Context, db bun.IDB, duelID uuid.UUID) ([]dueltypes.Round, error)
	// StampQuestionSent sets question_sent_at if not already set.
	StampQuestionSent(ctx context.Context, db bun.IDB, duelID uuid.UUID, roundNumber int, sentAt time.Time) error
	// FinalizeSlot records an outcome iff the slot is still open and the
	// round is not closed; false means the conditional update lost.
	FinalizeSlot(ctx context.Context, db bun.IDB, duelID uuid.UUID, roundNumber int, slot dueltypes.Slot, outcome *dueltypes.ParticipantOutcome) (bool, error)
	// CloseRound sets closed_at iff both slots are finalized and the round
	// is still open; false means it was already closed (or not ready).
	CloseRound(ctx context.Context, db bun.IDB, duelID uuid.UUID, roundNumber int, closedAt time.Time) (bool, error)
	// ListOverdueOpenRounds returns open rounds whose time budget expired
	// before the given instant, for the defensive timeout sweep.
	ListOverdueOpenRounds(ctx context.Context, db bun.IDB, now time.Time) ([]dueltypes.Round, error)

	CreateResult(ctx context.Context, db bun.IDB, result *dueltypes.DuelResult) error
	GetResult(ctx context.Context, db bun.IDB, duelID uuid.UUID) (*dueltypes.DuelResult, error)
}
