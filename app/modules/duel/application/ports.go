package duelservice

import (
	"context"

	"github.com/uptrace/bun"

	dueltypes "github.com/quizwars/duelsvc/app/modules/duel/domain/types"
	questiontypes "github.com/quizwars/duelsvc/app/modules/question/domain/types"
)

// QuestionSelector is the question-bank collaborator. Implementations must
// return questions satisfying the four-choices / one-correct invariant and
// ErrInsufficientContent when the bank cannot satisfy the request.
type QuestionSelector interface {
	SelectQuestions(ctx context.Context, category *string, count int) ([]questiontypes.Question, error)
}

// ProfileStore is the profile/rating collaborator. ApplyDuelOutcome must be
// atomic per user with the rating floored at zero; it participates in the
// finalization transaction via the passed bun.IDB.
type ProfileStore interface {
	GetRating(ctx context.Context, db bun.IDB, userID dueltypes.UserID) (int, error)
	ApplyDuelOutcome(ctx context.Context, db bun.IDB, userID dueltypes.UserID, record string, ratingDelta int) error
}

// Metrics records duel engine operational counters.
type Metrics interface {
	RecordAnswer(ctx context.Context, reason dueltypes.OutcomeReason)
	RecordRoundClosed(ctx context.Context)
	RecordDuelFinished(ctx context.Context, draw bool)
	RecordSweptRounds(ctx context.Context, count int)
	RecordDuelsCancelled(ctx context.Context, count int)
}

// TxRunner runs fn inside a database transaction. Abstracted so service
// tests can substitute a pass-through.
type TxRunner func(ctx context.Context, fn func(ctx context.Context, db bun.IDB) error) error

// NewBunTxRunner returns a TxRunner backed by bun's RunInTx.
func NewBunTxRunner(db *bun.DB) TxRunner {
	return func(ctx context.Context, fn func(ctx context.Context, db bun.IDB) error) error {
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return fn(ctx, tx)
		})
	}
}
