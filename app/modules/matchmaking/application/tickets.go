package matchmakingservice

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	duelevents "github.com/quizwars/duelsvc/app/modules/duel/domain/events"
	dueltypes "github.com/quizwars/duelsvc/app/modules/duel/domain/types"
)

// Match implements FIFO pairing: accept the oldest live ticket from another
// user, or create a fresh ticket when none exists. A lost accept race falls
// back to the next ticket, bounded by AcceptRetries. The second return value
// is true when the caller was paired into an existing ticket.
func (s *MatchmakingService) Match(ctx context.Context, userID dueltypes.UserID, category *string) (*dueltypes.Duel, bool, error) {
	// Opportunistic expiry keeps the FIFO head fresh even if the periodic
	// sweep is behind.
	if _, err := s.ExpireStaleTickets(ctx); err != nil {
		s.logger.WarnContext(ctx, "Opportunistic ticket expiry failed", slog.String("error", err.Error()))
	}

	cutoff := s.clock.Now().Add(-s.cfg.TicketTTL)
	for attempt := 0; attempt < s.cfg.AcceptRetries; attempt++ {
		ticket, err := s.tickets.FindOpenTicketExcluding(ctx, s.db, userID, cutoff)
		if err != nil {
			return nil, false, err
		}
		if ticket == nil {
			break
		}
		accepted, err := s.accept(ctx, ticket, userID)
		if err != nil {
			return nil, false, err
		}
		if accepted != nil {
			s.metrics.RecordMatchmaking(ctx, "matched")
			return accepted, true, nil
		}
		// Another acceptor raced us onto this ticket; try the next one.
		s.metrics.RecordMatchmaking(ctx, "conflict_retry")
	}

	duel, err := s.CreateTicket(ctx, userID, category)
	if err != nil {
		return nil, false, err
	}
	s.metrics.RecordMatchmaking(ctx, "ticket_created")
	return duel, false, nil
}

// CreateTicket creates a waiting duel tagged as an open matchmaking ticket.
func (s *MatchmakingService) CreateTicket(ctx context.Context, userID dueltypes.UserID, category *string) (*dueltypes.Duel, error) {
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
			MatchmakingStartedAt: &now,
		},
		CreatedAt: now,
	}
	if err := s.duels.CreateDuel(ctx, s.db, duel); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Matchmaking ticket created",
		slog.String("duel_id", duel.ID.String()),
		slog.String("user_id", string(userID)),
	)
	return duel, nil
}

// accept runs the conditional waiting -> matched transition. A nil duel with
// nil error means the race was lost.
func (s *MatchmakingService) accept(ctx context.Context, ticket *dueltypes.Duel, opponentID dueltypes.UserID) (*dueltypes.Duel, error) {
	now := s.clock.Now()
	won, err := s.tickets.AcceptDuel(ctx, s.db, ticket.ID, opponentID, now)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, nil
	}
	duel, err := s.duels.GetDuel(ctx, s.db, ticket.ID)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Duel matched",
		slog.String("duel_id", duel.ID.String()),
		slog.String("initiator_id", string(duel.InitiatorID)),
		slog.String("opponent_id", string(opponentID)),
	)
	if s.bus != nil {
		if err := s.bus.Publish(ctx, duelevents.DuelMatched, duel.ID, duelevents.DuelMatchedPayload{
			DuelID:      duel.ID,
			InitiatorID: duel.InitiatorID,
			OpponentID:  opponentID,
			MatchedAt:   now,
		}); err != nil {
			s.logger.WarnContext(ctx, "Failed to publish duel matched event",
				slog.String("duel_id", duel.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return duel, nil
}

// ExpireStaleTickets cancels matchmaking tickets older than the TTL. Invoked
// by the periodic sweep and opportunistically from Match.
func (s *MatchmakingService) ExpireStaleTickets(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.cfg.TicketTTL)
	expired, err := s.tickets.ExpireStaleTickets(ctx, s.db, cutoff)
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}
	s.metrics.RecordTicketsExpired(ctx, len(expired))
	s.logger.InfoContext(ctx, "Expired stale matchmaking tickets", slog.Int("count", len(expired)))
	for _, id := range expired {
		if s.bus == nil {
			continue
		}
		if err := s.bus.Publish(ctx, duelevents.DuelCancelled, id, duelevents.DuelCancelledPayload{
			DuelID: id,
			Reason: "ticket_expired",
		}); err != nil {
			s.logger.WarnContext(ctx, "Failed to publish ticket expiry event",
				slog.String("duel_id", id.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return len(expired), nil
}
