package duelservice

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	dueltypes "github.com/quizwars/duelsvc/app/modules/duel/domain/types"
	dueldb "github.com/quizwars/duelsvc/app/modules/duel/infrastructure/repositories"
	"github.com/quizwars/duelsvc/app/shared"
)

// Service is the duel orchestrator surface: it drives a duel end-to-end from
// start through round sequencing to finalization or cancellation.
type Service interface {
	StartDuel(ctx context.Context, duelID uuid.UUID, userID dueltypes.UserID) (*dueltypes.DuelSnapshot, error)
	SubmitAnswer(ctx context.Context, duelID uuid.UUID, roundNumber int, userID dueltypes.UserID, answerID *string) (*dueltypes.RoundOutcome, error)
	GetStatus(ctx context.Context, duelID uuid.UUID, userID dueltypes.UserID) (*dueltypes.DuelSnapshot, error)
	CancelWaiting(ctx context.Context, duelID uuid.UUID, userID dueltypes.UserID) error
	CancelAllActive(ctx context.Context) (int, error)
	SweepOverdueRounds(ctx context.Context) (int, error)
}

// Config carries the tunable constants of the duel engine.
type Config struct {
	// DefaultTimeLimit is the per-round time budget in seconds; <= 0
	// disables timeout enforcement.
	DefaultTimeLimit int
	// DefaultRoundsToWin is the round-win threshold for new duels.
	DefaultRoundsToWin int
	// RatingBaseDelta is the rating adjustment applied to both sides of a
	// decisive duel.
	RatingBaseDelta int
	// RatingUpsetBonus widens or narrows the delta when the rating gap
	// exceeds RatingGapThreshold.
	RatingUpsetBonus int
	// RatingGapThreshold is the rating difference past which a result
	// counts as favorite-vs-underdog.
	RatingGapThreshold int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimeLimit:   30,
		DefaultRoundsToWin: 3,
		RatingBaseDelta:    10,
		RatingUpsetBonus:   2,
		RatingGapThreshold: 200,
	}
}

// DuelService implements Service.
type DuelService struct {
	db        bun.IDB
	runInTx   TxRunner
	repo      dueldb.DuelDB
	questions QuestionSelector
	profiles  ProfileStore
	eventBus  shared.EventBus
	clock     shared.Clock
	logger    *slog.Logger
	metrics   Metrics
	cfg       Config
}

var _ Service = (*DuelService)(nil)

// NewDuelService wires a DuelService with its collaborators.
func NewDuelService(
	db *bun.DB,
	repo dueldb.DuelDB,
	questions QuestionSelector,
	profiles ProfileStore,
	eventBus shared.EventBus,
	clock shared.Clock,
	logger *slog.Logger,
	metrics Metrics,
	cfg Config,
) *DuelService {
	return &DuelService{
		db:        db,
		runInTx:   NewBunTxRunner(db),
		repo:      repo,
		questions: questions,
		profiles:  profiles,
		eventBus:  eventBus,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
		cfg:       cfg,
	}
}

// publishEvent publishes a duel event best-effort. Fanout failures are logged
// and never fail the calling operation; clients reconcile via polling.
func (s *DuelService) publishEvent(ctx context.Context, topic string, duelID uuid.UUID, payload interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(ctx, topic, duelID, payload); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish duel event",
			slog.String("topic", topic),
			slog.String("duel_id", duelID.String()),
			slog.String("error", err.Error()),
		)
	}
}
