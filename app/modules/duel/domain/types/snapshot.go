package dueltypes

import (
	"time"

	"github.com/google/uuid"
)

// OutcomeView is a participant outcome as exposed to clients. For the
// opponent's slot on a still-open round only the disposition is revealed;
// correctness and score stay hidden until the round closes.
type OutcomeView struct {
	Finalized   bool          `json:"finalized"`
	Answered    bool          `json:"answered"`
	AnswerID    *string       `json:"answer_id,omitempty"`
	IsCorrect   *bool         `json:"is_correct,omitempty"`
	Score       *int          `json:"score,omitempty"`
	TimeElapsed *int          `json:"time_elapsed,omitempty"`
	Reason      OutcomeReason `json:"reason,omitempty"`
}

// RoundView is one round as exposed to a particular participant.
type RoundView struct {
	RoundNumber    int            `json:"round_number"`
	QuestionID     uuid.UUID      `json:"question_id"`
	QuestionText   string         `json:"question_text"`
	Choices        []AnswerChoice `json:"choices"`
	TimeLimit      int            `json:"time_limit"`
	QuestionSentAt *time.Time     `json:"question_sent_at,omitempty"`
	You            OutcomeView    `json:"you"`
	Opponent       OutcomeView    `json:"opponent"`
	ClosedAt       *time.Time     `json:"closed_at,omitempty"`
}

// DuelSnapshot is a full, reconciliation-sufficient view of a duel for one
// participant. Every state-changing operation returns one so a polling client
// never needs a second round-trip to resync.
type DuelSnapshot struct {
	DuelID           uuid.UUID   `json:"duel_id"`
	Code             string      `json:"code"`
	Status           Status      `json:"status"`
	RoundsToWin      int         `json:"rounds_to_win"`
	YourSlot         Slot        `json:"your_slot"`
	YourRoundWins    int         `json:"your_round_wins"`
	OpponentRoundWins int        `json:"opponent_round_wins"`
	CurrentRound     *RoundView  `json:"current_round,omitempty"`
	LastClosedRound  *RoundView  `json:"last_closed_round,omitempty"`
	Result           *DuelResult `json:"result,omitempty"`
}

// RoundOutcome is the immediate response to an answer submission: the
// caller's own finalized outcome, the opponent's outcome when already
// available, and a snapshot for reconciliation.
type RoundOutcome struct {
	RoundNumber  int                 `json:"round_number"`
	You          ParticipantOutcome  `json:"you"`
	Opponent     *ParticipantOutcome `json:"opponent,omitempty"`
	RoundClosed  bool                `json:"round_closed"`
	DuelFinished bool                `json:"duel_finished"`
	Snapshot     *DuelSnapshot       `json:"snapshot,omitempty"`
}
