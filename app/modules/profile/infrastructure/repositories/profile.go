package profiledb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	dueltypes "github.com/quizwars/duelsvc/app/modules/duel/domain/types"
)

// Profile holds a participant's duel record and rating.
type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:p"`

	UserID    dueltypes.UserID `bun:"user_id,pk" json:"user_id"`
	Username  string           `bun:"username,nullzero" json:"username,omitempty"`
	Rating    int              `bun:"rating,notnull,default:0" json:"rating"`
	Wins      int              `bun:"wins,notnull,default:0" json:"wins"`
	Losses    int              `bun:"losses,notnull,default:0" json:"losses"`
	Draws     int              `bun:"draws,notnull,default:0" json:"draws"`
	UpdatedAt time.Time        `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// DuelRecord values for ApplyDuelOutcome.
const (
	RecordWin  = "win"
	RecordLoss = "loss"
	RecordDraw = "draw"
)

// ProfileDBImpl is the bun-backed profile store.
type ProfileDBImpl struct {
	DB *bun.DB
}

// GetRating returns a user's current rating, zero for unknown users.
func (db *ProfileDBImpl) GetRating(ctx context.Context, idb bun.IDB, userID dueltypes.UserID) (int, error) {
	profile := new(Profile)
	err := idb.NewSelect().
		Model(profile).
		Where("user_id = ?", userID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to fetch profile: %w", err)
	}
	return profile.Rating, nil
}

// ApplyDuelOutcome atomically bumps the win/loss/draw counter and applies the
// rating delta, floored at zero. The row is created on first contact so new
// players need no prior registration step.
func (db *ProfileDBImpl) ApplyDuelOutcome(ctx context.Context, idb bun.IDB, userID dueltypes.UserID, record string, ratingDelta int) error {
	var winInc, lossInc, drawInc int
	switch record {
	case RecordWin:
		winInc = 1
	case RecordLoss:
		lossInc = 1
	case RecordDraw:
		drawInc = 1
	default:
		return fmt.Errorf("unknown duel record %q", record)
	}

	profile := &Profile{UserID: userID, UpdatedAt: time.Now()}
	_, err := idb.NewInsert().
		Model(profile).
		On("CONFLICT (user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to ensure profile: %w", err)
	}

	_, err = idb.NewUpdate().
		Model((*Profile)(nil)).
		Set("rating = GREATEST(0, rating + ?)", ratingDelta).
		Set("wins = wins + ?", winInc).
		Set("losses = losses + ?", lossInc).
		Set("draws = draws + ?", drawInc).
		Set("updated_at = current_timestamp").
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply duel outcome: %w", err)
	}
	return nil
}
