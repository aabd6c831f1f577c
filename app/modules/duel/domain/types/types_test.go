package dueltypes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlotOther(t *testing.T) {
	assert.Equal(t, SlotOpponent, SlotInitiator.Other())
	assert.Equal(t, SlotInitiator, SlotOpponent.Other())
}

func TestDuelSlotOf(t *testing.T) {
	bob := UserID("bob")
	duel := &Duel{InitiatorID: "alice", OpponentID: &bob}

	slot, ok := duel.SlotOf("alice")
	assert.True(t, ok)
	assert.Equal(t, SlotInitiator, slot)

	slot, ok = duel.SlotOf("bob")
	assert.True(t, ok)
	assert.Equal(t, SlotOpponent, slot)

	_, ok = duel.SlotOf("mallory")
	assert.False(t, ok)

	waiting := &Duel{InitiatorID: "alice"}
	_, ok = waiting.SlotOf("bob")
	assert.False(t, ok)
}

func TestDuelIsActive(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusWaiting, true},
		{StatusMatched, true},
		{StatusInProgress, true},
		{StatusFinished, false},
		{StatusCancelled, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			d := &Duel{Status: tt.status}
			assert.Equal(t, tt.want, d.IsActive())
		})
	}
}

func TestRoundWinner(t *testing.T) {
	closed := time.Now()
	out := func(score int) *ParticipantOutcome {
		return &ParticipantOutcome{Answered: true, Score: score, Reason: ReasonAnswered}
	}

	t.Run("open round has no winner", func(t *testing.T) {
		r := &Round{Initiator: out(10), ClosedAt: &closed}
		assert.Nil(t, r.Winner())
	})

	t.Run("strictly higher score wins", func(t *testing.T) {
		r := &Round{Initiator: out(35), Opponent: out(10), ClosedAt: &closed}
		w := r.Winner()
		assert.NotNil(t, w)
		assert.Equal(t, SlotInitiator, *w)
	})

	t.Run("tie credits nobody", func(t *testing.T) {
		r := &Round{Initiator: out(20), Opponent: out(20), ClosedAt: &closed}
		assert.Nil(t, r.Winner())
	})
}

func TestSettingsIsMatchmaking(t *testing.T) {
	now := time.Now()
	assert.True(t, Settings{MatchmakingStartedAt: &now}.IsMatchmaking())
	assert.False(t, Settings{}.IsMatchmaking())

	target := UserID("bob")
	assert.False(t, Settings{TargetUserID: &target}.IsMatchmaking(), "invitations are not tickets")
}
