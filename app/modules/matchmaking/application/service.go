package matchmakingservice

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	dueltypes "github.com/quizwars/duelsvc/app/modules/duel/domain/types"
	dueldb "github.com/quizwars/duelsvc/app/modules/duel/infrastructure/repositories"
	matchmakingdb "github.com/quizwars/duelsvc/app/modules/matchmaking/infrastructure/repositories"
	"github.com/quizwars/duelsvc/app/shared"
)

// Service pairs participants into duels, either by open matchmaking tickets
// (FIFO) or by shareable, optionally identity-locked invitation codes.
type Service interface {
	// Match pairs userID with the oldest live ticket, or creates a new
	// ticket when none is available. Matched reports which happened.
	Match(ctx context.Context, userID dueltypes.UserID, category *string) (*dueltypes.Duel, bool, error)
	CreateTicket(ctx context.Context, userID dueltypes.UserID, category *string) (*dueltypes.Duel, error)
	CreateInvitation(ctx context.Context, userID dueltypes.UserID, category *string, targetUserID *dueltypes.UserID, targetUsername *string) (*dueltypes.Duel, error)
	AcceptInvitation(ctx context.Context, code string, userID dueltypes.UserID, username string) (*dueltypes.Duel, error)
	ExpireStaleTickets(ctx context.Context) (int, error)
}

// Metrics records matchmaking operational counters.
type Metrics interface {
	RecordMatchmaking(ctx context.Context, result string)
	RecordTicketsExpired(ctx context.Context, count int)
}

// Config carries matchmaking tunables.
type Config struct {
	// TicketTTL is how long a matchmaking ticket stays live.
	TicketTTL time.Duration
	// RoundsToWin is assigned to duels created through matchmaking.
	RoundsToWin int
	// AcceptRetries bounds how many lost accept races Match absorbs
	// before giving up and creating a ticket instead.
	AcceptRetries int
}

// DefaultConfig returns the matchmaking defaults.
func DefaultConfig() Config {
	return Config{
		TicketTTL:     30 * time.Second,
		RoundsToWin:   3,
		AcceptRetries: 3,
	}
}

// MatchmakingService implements Service.
type MatchmakingService struct {
	db      bun.IDB
	duels   dueldb.DuelDB
	tickets matchmakingdb.MatchmakingDB
	clock   shared.Clock
	bus     shared.EventBus
	logger  *slog.Logger
	metrics Metrics
	cfg     Config
}

var _ Service = (*MatchmakingService)(nil)

// NewMatchmakingService wires a MatchmakingService.
func NewMatchmakingService(
	db *bun.DB,
	duels dueldb.DuelDB,
	tickets matchmakingdb.MatchmakingDB,
	clock shared.Clock,
	bus shared.EventBus,
	logger *slog.Logger,
	metrics Metrics,
	cfg Config,
) *MatchmakingService {
	return &MatchmakingService{
		db:      db,
		duels:   duels,
		tickets: tickets,
		clock:   clock,
		bus:     bus,
		logger:  logger,
		metrics: metrics,
		cfg:     cfg,
	}
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// newDuelCode generates a human-shareable 8-character code. The alphabet
// drops lookalike characters (0/O, 1/I) so codes survive being read aloud.
func newDuelCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate duel code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
