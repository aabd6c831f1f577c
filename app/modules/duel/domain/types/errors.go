package dueltypes

import "errors"

// Domain error taxonomy. These are expected, client-recoverable conditions:
// HTTP handlers map them to status codes and attach a reconciliation snapshot
// where one helps. Storage failures are wrapped separately and never folded
// into these sentinels.
var (
	// ErrNotFound indicates a missing duel, round or question.
	ErrNotFound = errors.New("duel not found")

	// ErrConflict indicates a concurrent state transition lost the race;
	// the caller should retry or resync.
	ErrConflict = errors.New("conflicting duel state transition")

	// ErrAlreadyAnswered indicates a duplicate submission for a slot that
	// is already finalized.
	ErrAlreadyAnswered = errors.New("answer already recorded for this round")

	// ErrRoundClosed indicates a submission against a closed round.
	ErrRoundClosed = errors.New("round already closed")

	// ErrDuelNotActive indicates an action against a duel in a terminal or
	// otherwise unsuitable state.
	ErrDuelNotActive = errors.New("duel is not active")

	// ErrForbidden indicates an identity mismatch, such as accepting an
	// invitation locked to another user.
	ErrForbidden = errors.New("not allowed for this user")

	// ErrInsufficientContent indicates the question bank cannot supply
	// enough valid questions for the requested round count.
	ErrInsufficientContent = errors.New("not enough questions available")
)
