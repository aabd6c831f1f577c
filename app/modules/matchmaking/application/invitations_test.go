package matchmakingservice

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dueltypes "github.com/quizwars/duelsvc/app/modules/duel/domain/types"
)

func TestCreateInvitation_OpenCode(t *testing.T) {
	env := newTestEnv()

	duel, err := env.svc.CreateInvitation(context.Background(), "alice", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, dueltypes.StatusWaiting, duel.Status)
	assert.Len(t, duel.Code, 8)
	assert.False(t, duel.Settings.IsMatchmaking(), "invitations are not matchmaking tickets")

	// Anyone with the code may accept an untargeted invitation.
	accepted, err := env.svc.AcceptInvitation(context.Background(), duel.Code, "zoe", "zoe")
	require.NoError(t, err)
	assert.Equal(t, dueltypes.StatusMatched, accepted.Status)
}

func TestAcceptInvitation_CodeNormalization(t *testing.T) {
	env := newTestEnv()

	duel, err := env.svc.CreateInvitation(context.Background(), "alice", nil, nil, nil)
	require.NoError(t, err)

	sloppy := "  " + strings.ToLower(duel.Code) + " "
	accepted, err := env.svc.AcceptInvitation(context.Background(), sloppy, "bob", "bob")
	require.NoError(t, err)
	assert.Equal(t, duel.ID, accepted.ID)
}

func TestAcceptInvitation_TargetUserIDLock(t *testing.T) {
	env := newTestEnv()
	target := dueltypes.UserID("bob")

	duel, err := env.svc.CreateInvitation(context.Background(), "alice", nil, &target, nil)
	require.NoError(t, err)

	t.Run("wrong user is rejected", func(t *testing.T) {
		_, err := env.svc.AcceptInvitation(context.Background(), duel.Code, "carol", "carol")
		assert.ErrorIs(t, err, dueltypes.ErrForbidden)
	})

	t.Run("intended user accepts", func(t *testing.T) {
		accepted, err := env.svc.AcceptInvitation(context.Background(), duel.Code, "bob", "bob")
		require.NoError(t, err)
		require.NotNil(t, accepted.OpponentID)
		assert.Equal(t, target, *accepted.OpponentID)
	})
}

func TestAcceptInvitation_TargetUsernameLock(t *testing.T) {
	env := newTestEnv()
	username := "Bobby"

	duel, err := env.svc.CreateInvitation(context.Background(), "alice", nil, nil, &username)
	require.NoError(t, err)

	t.Run("wrong username is rejected", func(t *testing.T) {
		_, err := env.svc.AcceptInvitation(context.Background(), duel.Code, "carol", "carol")
		assert.ErrorIs(t, err, dueltypes.ErrForbidden)
	})

	t.Run("username match is case-insensitive", func(t *testing.T) {
		_, err := env.svc.AcceptInvitation(context.Background(), duel.Code, "bob", "bobby")
		require.NoError(t, err)
	})
}

func TestAcceptInvitation_Guards(t *testing.T) {
	env := newTestEnv()

	duel, err := env.svc.CreateInvitation(context.Background(), "alice", nil, nil, nil)
	require.NoError(t, err)

	t.Run("unknown code", func(t *testing.T) {
		_, err := env.svc.AcceptInvitation(context.Background(), "NOPE1234", "bob", "bob")
		assert.ErrorIs(t, err, dueltypes.ErrNotFound)
	})

	t.Run("own invitation", func(t *testing.T) {
		_, err := env.svc.AcceptInvitation(context.Background(), duel.Code, "alice", "alice")
		assert.ErrorIs(t, err, dueltypes.ErrForbidden)
	})

	t.Run("already accepted", func(t *testing.T) {
		_, err := env.svc.AcceptInvitation(context.Background(), duel.Code, "bob", "bob")
		require.NoError(t, err)
		_, err = env.svc.AcceptInvitation(context.Background(), duel.Code, "carol", "carol")
		assert.ErrorIs(t, err, dueltypes.ErrConflict)
	})
}
