package duelservice

import (
	"time"

	dueltypes "github.com/quizwars/duelsvc/app/modules/duel/domain/types"
)

// answerBasePoints is awarded for any correct answer; the remaining seconds
// of the round's budget are added as a speed bonus, so a faster correct
// answer always outscores a slower one and equal times tie exactly.
const answerBasePoints = 10

// elapsedSeconds returns whole seconds between the question becoming visible
// and now, floored, never negative.
func elapsedSeconds(sentAt time.Time, now time.Time) int {
	d := now.Sub(sentAt)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}

// timedOut reports whether elapsed exceeds the limit. A limit <= 0 means the
// round has no deadline.
func timedOut(timeLimit, elapsed int) bool {
	return timeLimit > 0 && elapsed > timeLimit
}

// scoreFor computes the score of an answered slot.
func scoreFor(correct bool, timeLimit, elapsed int) int {
	if !correct {
		return 0
	}
	if timeLimit <= 0 {
		return answerBasePoints
	}
	bonus := timeLimit - elapsed
	if bonus < 0 {
		bonus = 0
	}
	return answerBasePoints + bonus
}

// timeoutOutcome builds the fallback outcome for a slot whose participant
// never produced a valid answer in time.
func timeoutOutcome(elapsed int) *dueltypes.ParticipantOutcome {
	return &dueltypes.ParticipantOutcome{
		Answered:    false,
		IsCorrect:   false,
		Score:       0,
		TimeElapsed: elapsed,
		Reason:      dueltypes.ReasonTimeout,
	}
}

// roundWins tallies closed-round wins per slot. Tie rounds credit nobody.
func roundWins(rounds []dueltypes.Round) (initiator, opponent int) {
	for i := range rounds {
		r := &rounds[i]
		if !r.IsClosed() {
			continue
		}
		if w := r.Winner(); w != nil {
			if *w == dueltypes.SlotInitiator {
				initiator++
			} else {
				opponent++
			}
		}
	}
	return initiator, opponent
}

// ratingDelta computes the bounded rating adjustment for a decisive duel,
// from the winner's perspective. A clear favorite beating an underdog earns
// less; an upset earns more. Two tiers only; the thresholds are config.
func ratingDelta(winnerRating, loserRating int, cfg Config) int {
	delta := cfg.RatingBaseDelta
	gap := winnerRating - loserRating
	switch {
	case gap > cfg.RatingGapThreshold:
		delta -= cfg.RatingUpsetBonus
	case gap < -cfg.RatingGapThreshold:
		delta += cfg.RatingUpsetBonus
	}
	if delta < 0 {
		delta = 0
	}
	return delta
}
