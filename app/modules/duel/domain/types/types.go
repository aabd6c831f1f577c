package dueltypes

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserID identifies a participant. Identities are issued by the external
// transport (Telegram), so this is an opaque string, not a local key.
type UserID string

// Status represents the lifecycle state of a duel.
type Status string

// Enum constants for Status.
const (
	StatusWaiting    Status = "WAITING"
	StatusMatched    Status = "MATCHED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusFinished   Status = "FINISHED"
	StatusCancelled  Status = "CANCELLED"
)

// Slot identifies which participant an outcome belongs to.
type Slot string

const (
	SlotInitiator Slot = "initiator"
	SlotOpponent  Slot = "opponent"
)

// Other returns the opposing slot.
func (s Slot) Other() Slot {
	if s == SlotInitiator {
		return SlotOpponent
	}
	return SlotInitiator
}

// OutcomeReason records how a participant's slot was finalized.
type OutcomeReason string

const (
	ReasonAnswered OutcomeReason = "answered"
	ReasonTimeout  OutcomeReason = "timeout"
)

// Settings carries matchmaking and invitation metadata for a waiting duel.
// The fields are explicit rather than a free-form map; they are cleared once
// the duel is matched.
type Settings struct {
	MatchmakingStartedAt *time.Time `json:"matchmaking_started_at,omitempty"`
	TargetUserID         *UserID    `json:"target_user_id,omitempty"`
	TargetUsername       *string    `json:"target_username,omitempty"`
}

// IsMatchmaking reports whether the duel is an open matchmaking ticket.
func (s Settings) IsMatchmaking() bool {
	return s.MatchmakingStartedAt != nil
}

// Duel represents one 1v1 match between two participants.
type Duel struct {
	bun.BaseModel `bun:"table:duels,alias:d"`

	ID           uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Code         string     `bun:"code,notnull,unique" json:"code"`
	InitiatorID  UserID     `bun:"initiator_id,notnull" json:"initiator_id"`
	OpponentID   *UserID    `bun:"opponent_id,nullzero" json:"opponent_id,omitempty"`
	Category     *string    `bun:"category,nullzero" json:"category,omitempty"`
	RoundsToWin  int        `bun:"rounds_to_win,notnull" json:"rounds_to_win"`
	CurrentRound int        `bun:"current_round,notnull,default:0" json:"current_round"`
	Status       Status     `bun:"status,notnull" json:"status"`
	Settings     Settings   `bun:"settings,type:jsonb" json:"settings"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	MatchedAt    *time.Time `bun:"matched_at,nullzero" json:"matched_at,omitempty"`
	StartedAt    *time.Time `bun:"started_at,nullzero" json:"started_at,omitempty"`
	FinishedAt   *time.Time `bun:"finished_at,nullzero" json:"finished_at,omitempty"`
}

// SlotOf returns the slot the given user occupies in this duel.
func (d *Duel) SlotOf(userID UserID) (Slot, bool) {
	if d.InitiatorID == userID {
		return SlotInitiator, true
	}
	if d.OpponentID != nil && *d.OpponentID == userID {
		return SlotOpponent, true
	}
	return "", false
}

// ParticipantID returns the user occupying the given slot.
func (d *Duel) ParticipantID(slot Slot) UserID {
	if slot == SlotInitiator {
		return d.InitiatorID
	}
	if d.OpponentID != nil {
		return *d.OpponentID
	}
	return ""
}

// IsActive reports whether the duel is in a non-terminal state.
func (d *Duel) IsActive() bool {
	switch d.Status {
	case StatusWaiting, StatusMatched, StatusInProgress:
		return true
	}
	return false
}

// AnswerChoice is one of a round question's selectable answers, as shown to
// clients. The correct choice is tracked separately and never serialized here.
type AnswerChoice struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ParticipantOutcome is the finalized disposition of one participant for one
// round. A nil outcome on a round means the slot is still open.
type ParticipantOutcome struct {
	Answered    bool          `json:"answered"`
	AnswerID    *string       `json:"answer_id,omitempty"`
	IsCorrect   bool          `json:"is_correct"`
	Score       int           `json:"score"`
	TimeElapsed int           `json:"time_elapsed"`
	Reason      OutcomeReason `json:"reason"`
}

// Round represents one question within a duel. Outcome slots start nil and
// are finalized exactly once; the round closes when both are finalized.
type Round struct {
	bun.BaseModel `bun:"table:duel_rounds,alias:dr"`

	DuelID          uuid.UUID           `bun:"duel_id,pk,type:uuid" json:"duel_id"`
	RoundNumber     int                 `bun:"round_number,pk" json:"round_number"`
	QuestionID      uuid.UUID           `bun:"question_id,type:uuid,notnull" json:"question_id"`
	QuestionText    string              `bun:"question_text,notnull" json:"question_text"`
	Choices         []AnswerChoice      `bun:"choices,type:jsonb" json:"choices"`
	CorrectAnswerID string              `bun:"correct_answer_id,notnull" json:"-"`
	TimeLimit       int                 `bun:"time_limit,notnull" json:"time_limit"`
	QuestionSentAt  *time.Time          `bun:"question_sent_at,nullzero" json:"question_sent_at,omitempty"`
	Initiator       *ParticipantOutcome `bun:"initiator_outcome,type:jsonb,nullzero" json:"initiator,omitempty"`
	Opponent        *ParticipantOutcome `bun:"opponent_outcome,type:jsonb,nullzero" json:"opponent,omitempty"`
	ClosedAt        *time.Time          `bun:"closed_at,nullzero" json:"closed_at,omitempty"`
}

// Outcome returns the outcome recorded for the given slot, or nil.
func (r *Round) Outcome(slot Slot) *ParticipantOutcome {
	if slot == SlotInitiator {
		return r.Initiator
	}
	return r.Opponent
}

// SetOutcome records an outcome for the given slot (in-memory only).
func (r *Round) SetOutcome(slot Slot, out *ParticipantOutcome) {
	if slot == SlotInitiator {
		r.Initiator = out
	} else {
		r.Opponent = out
	}
}

// BothFinalized reports whether both outcome slots hold a value.
func (r *Round) BothFinalized() bool {
	return r.Initiator != nil && r.Opponent != nil
}

// IsClosed reports whether the round has been closed.
func (r *Round) IsClosed() bool {
	return r.ClosedAt != nil
}

// Winner returns the slot that won a closed round, or nil for a tie. A slot
// wins only with a strictly higher score.
func (r *Round) Winner() *Slot {
	if !r.BothFinalized() {
		return nil
	}
	switch {
	case r.Initiator.Score > r.Opponent.Score:
		s := SlotInitiator
		return &s
	case r.Opponent.Score > r.Initiator.Score:
		s := SlotOpponent
		return &s
	}
	return nil
}

// DuelResult is the finalized outcome of a duel. The metadata bag carries
// rating deltas and other display-only payloads.
type DuelResult struct {
	bun.BaseModel `bun:"table:duel_results,alias:res"`

	DuelID           uuid.UUID              `bun:"duel_id,pk,type:uuid" json:"duel_id"`
	InitiatorScore   int                    `bun:"initiator_score,notnull" json:"initiator_score"`
	OpponentScore    int                    `bun:"opponent_score,notnull" json:"opponent_score"`
	InitiatorCorrect int                    `bun:"initiator_correct,notnull" json:"initiator_correct"`
	OpponentCorrect  int                    `bun:"opponent_correct,notnull" json:"opponent_correct"`
	WinnerID         *UserID                `bun:"winner_id,nullzero" json:"winner_id,omitempty"`
	Metadata         map[string]interface{} `bun:"metadata,type:jsonb" json:"metadata"`
	CreatedAt        time.Time              `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}
