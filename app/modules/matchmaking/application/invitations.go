package matchmakingservice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	dueltypes "github.com/quizwars/duelsvc/app/modules/duel/domain/types"
)

// CreateInvitation creates a waiting duel with a shareable code. When a
// target user id or username is given, only that identity may accept.
func (s *MatchmakingService) CreateInvitation(ctx context.Context, userID dueltypes.UserID, category *string, targetUserID *dueltypes.UserID, targetUsername *string) (*dueltypes.Duel, error) {
	code, err := newDuelCode()
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	duel := &dueltypes.Duel{
		ID:          uuid.New(),
		Code:        code,
		InitiatorID: userID,
		Category:    category,
		RoundsToWin: s.cfg.RoundsToWin,
		Status:      dueltypes.StatusWaiting,
		Settings: dueltypes.Settings{
			TargetUserID:   targetUserID,
			TargetUsername: targetUsername,
		},
		CreatedAt: now,
	}
	if err := s.duels.CreateDuel(ctx, s.db, duel); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Invitation created",
		slog.String("duel_id", duel.ID.String()),
		slog.String("code", duel.Code),
		slog.Bool("targeted", targetUserID != nil || targetUsername != nil),
	)
	return duel, nil
}

// AcceptInvitation matches the caller into the invitation identified by code.
// Identity-locked invitations verify the acceptor first and fail with
// ErrForbidden on a mismatch; the transition itself stays race-free through
// the same conditional accept used for tickets.
func (s *MatchmakingService) AcceptInvitation(ctx context.Context, code string, userID dueltypes.UserID, username string) (*dueltypes.Duel, error) {
	duel, err := s.duels.GetDuelByCode(ctx, s.db, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, err
	}
	if duel.InitiatorID == userID {
		return nil, fmt.Errorf("%w: cannot accept own invitation", dueltypes.ErrForbidden)
	}
	if duel.Status != dueltypes.StatusWaiting {
		return nil, fmt.Errorf("%w: status %s", dueltypes.ErrConflict, duel.Status)
	}
	if target := duel.Settings.TargetUserID; target != nil && *target != userID {
		return nil, fmt.Errorf("%w: invitation is for another user", dueltypes.ErrForbidden)
	}
	if target := duel.Settings.TargetUsername; target != nil && !strings.EqualFold(*target, username) {
		return nil, fmt.Errorf("%w: invitation is for another user", dueltypes.ErrForbidden)
	}

	accepted, err := s.accept(ctx, duel, userID)
	if err != nil {
		return nil, err
	}
	if accepted == nil {
		return nil, fmt.Errorf("%w: invitation already accepted", dueltypes.ErrConflict)
	}
	return accepted, nil
}
