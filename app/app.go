package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quizwars/duelsvc/api"
	"github.com/quizwars/duelsvc/api/handlers"
	"github.com/quizwars/duelsvc/app/eventbus"
	duelservice "github.com/quizwars/duelsvc/app/modules/duel/application"
	duelqueue "github.com/quizwars/duelsvc/app/modules/duel/infrastructure/queue"
	matchmakingservice "github.com/quizwars/duelsvc/app/modules/matchmaking/application"
	"github.com/quizwars/duelsvc/app/shared"
	"github.com/quizwars/duelsvc/config"
	"github.com/quizwars/duelsvc/db/bundb"
	"github.com/quizwars/duelsvc/internal/metrics"
)

// App owns the wired service graph.
type App struct {
	Cfg                *config.Config
	DuelService        duelservice.Service
	MatchmakingService matchmakingservice.Service

	db       *bundb.DBService
	eventBus shared.EventBus
	queue    *duelqueue.Service
	hub      *api.Hub
	server   *http.Server
	logger   *slog.Logger
}

// NewApp initializes the application: config, storage, event bus, services,
// sweep scheduler and HTTP surface.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	dbService, err := bundb.NewBunDBService(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database service: %w", err)
	}
	if err := dbService.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	bus, err := eventbus.NewEventBus(ctx, cfg.NATS.URL, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize event bus: %w", err)
	}

	clock := shared.NewRealClock()
	duelMetrics := metrics.New(prometheus.DefaultRegisterer)

	duelSvc := duelservice.NewDuelService(
		dbService.GetDB(),
		dbService.DuelDB,
		dbService.QuestionDB,
		dbService.ProfileDB,
		bus,
		clock,
		logger,
		duelMetrics,
		duelservice.Config{
			DefaultTimeLimit:   cfg.Duel.TimeLimit,
			DefaultRoundsToWin: cfg.Duel.RoundsToWin,
			RatingBaseDelta:    cfg.Duel.RatingBaseDelta,
			RatingUpsetBonus:   cfg.Duel.RatingUpsetBonus,
			RatingGapThreshold: cfg.Duel.RatingGapThreshold,
		},
	)

	matchmakingSvc := matchmakingservice.NewMatchmakingService(
		dbService.GetDB(),
		dbService.DuelDB,
		dbService.MatchmakingDB,
		clock,
		bus,
		logger,
		duelMetrics,
		matchmakingservice.Config{
			TicketTTL:     cfg.Duel.TicketTTL,
			RoundsToWin:   cfg.Duel.RoundsToWin,
			AcceptRetries: 3,
		},
	)

	queue, err := duelqueue.NewService(ctx, cfg.Postgres.DSN, logger, duelSvc, matchmakingSvc, cfg.Duel.SweepInterval)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sweep scheduler: %w", err)
	}

	hub := api.NewHub(bus, logger)
	handler := &handlers.DuelHandler{
		Duels:       duelSvc,
		Matchmaking: matchmakingSvc,
		Logger:      logger,
	}
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewRouter(handler, hub, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &App{
		Cfg:                cfg,
		DuelService:        duelSvc,
		MatchmakingService: matchmakingSvc,
		db:                 dbService,
		eventBus:           bus,
		queue:              queue,
		hub:                hub,
		server:             server,
		logger:             logger,
	}, nil
}

// Run starts the sweep scheduler, the websocket fanout and the HTTP server,
// then blocks until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	if err := a.queue.Start(ctx); err != nil {
		return err
	}
	if err := a.hub.Run(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server listening", slog.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Close shuts the application down gracefully. Uses a fresh context so
// shutdown proceeds even when the run context is already cancelled.
func (a *App) Close() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Failed to shut down HTTP server", slog.Any("error", err))
	}
	if err := a.queue.Stop(shutdownCtx); err != nil {
		a.logger.Error("Failed to stop sweep scheduler", slog.Any("error", err))
	}
	if err := a.eventBus.Close(); err != nil {
		a.logger.Error("Failed to close event bus", slog.Any("error", err))
	}
	if err := a.db.GetDB().Close(); err != nil {
		a.logger.Error("Failed to close database connection", slog.Any("error", err))
	}
}
