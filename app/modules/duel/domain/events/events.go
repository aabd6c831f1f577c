package duelevents

import (
	"time"

	"github.com/google/uuid"

	dueltypes "github.com/quizwars/duelsvc/app/modules/duel/domain/types"
)

// Topics for duel state-change events. Delivery is best-effort: clients
// always have the status poll as the source of truth, so a dropped event can
// only ever cost latency, never correctness.
const (
	DuelMatched   = "duel.matched"
	DuelStarted   = "duel.started"
	RoundStarted  = "duel.round.started"
	RoundAnswered = "duel.round.answered"
	RoundClosed   = "duel.round.closed"
	DuelFinished  = "duel.finished"
	DuelCancelled = "duel.cancelled"
)

// Topics lists every duel event topic, in the order events occur.
func Topics() []string {
	return []string{
		DuelMatched,
		DuelStarted,
		RoundStarted,
		RoundAnswered,
		RoundClosed,
		DuelFinished,
		DuelCancelled,
	}
}

// DuelMatchedPayload announces that an opponent joined a waiting duel.
type DuelMatchedPayload struct {
	DuelID      uuid.UUID        `json:"duel_id"`
	InitiatorID dueltypes.UserID `json:"initiator_id"`
	OpponentID  dueltypes.UserID `json:"opponent_id"`
	MatchedAt   time.Time        `json:"matched_at"`
}

// DuelStartedPayload announces that a duel moved to in-progress and its first
// question is visible.
type DuelStartedPayload struct {
	DuelID      uuid.UUID `json:"duel_id"`
	RoundsToWin int       `json:"rounds_to_win"`
	RoundCount  int       `json:"round_count"`
	StartedAt   time.Time `json:"started_at"`
}

// RoundStartedPayload announces that the next round's question became visible.
type RoundStartedPayload struct {
	DuelID      uuid.UUID `json:"duel_id"`
	RoundNumber int       `json:"round_number"`
	TimeLimit   int       `json:"time_limit"`
	SentAt      time.Time `json:"sent_at"`
}

// RoundAnsweredPayload announces that one slot of a round was finalized. Only
// the disposition is broadcast; scores stay private until the round closes.
type RoundAnsweredPayload struct {
	DuelID      uuid.UUID               `json:"duel_id"`
	RoundNumber int                     `json:"round_number"`
	UserID      dueltypes.UserID        `json:"user_id"`
	Reason      dueltypes.OutcomeReason `json:"reason"`
}

// RoundClosedPayload announces a closed round with both outcomes revealed.
type RoundClosedPayload struct {
	DuelID      uuid.UUID                     `json:"duel_id"`
	RoundNumber int                           `json:"round_number"`
	Initiator   *dueltypes.ParticipantOutcome `json:"initiator"`
	Opponent    *dueltypes.ParticipantOutcome `json:"opponent"`
	ClosedAt    time.Time                     `json:"closed_at"`
}

// DuelFinishedPayload announces finalization, including rating deltas.
type DuelFinishedPayload struct {
	DuelID uuid.UUID             `json:"duel_id"`
	Result *dueltypes.DuelResult `json:"result"`
}

// DuelCancelledPayload announces cancellation of a waiting or active duel.
type DuelCancelledPayload struct {
	DuelID uuid.UUID `json:"duel_id"`
	Reason string    `json:"reason"`
}
