package bundb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	dueltypes "github.com/quizwars/duelsvc/app/modules/duel/domain/types"
	dueldb "github.com/quizwars/duelsvc/app/modules/duel/infrastructure/repositories"
	matchmakingdb "github.com/quizwars/duelsvc/app/modules/matchmaking/infrastructure/repositories"
	profiledb "github.com/quizwars/duelsvc/app/modules/profile/infrastructure/repositories"
	questiondb "github.com/quizwars/duelsvc/app/modules/question/infrastructure/repositories"
	questiontypes "github.com/quizwars/duelsvc/app/modules/question/domain/types"
	"github.com/quizwars/duelsvc/config"
)

// DBService aggregates the per-module repositories over one bun connection.
type DBService struct {
	DuelDB        *dueldb.DuelDBImpl
	MatchmakingDB *matchmakingdb.MatchmakingDBImpl
	ProfileDB     *profiledb.ProfileDBImpl
	QuestionDB    *questiondb.QuestionDBImpl
	db            *bun.DB
}

// GetDB returns the underlying database connection pool.
func (s *DBService) GetDB() *bun.DB {
	return s.db
}

// NewBunDBService initializes a DBService against Postgres.
func NewBunDBService(ctx context.Context, cfg config.PostgresConfig) (*DBService, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
	db := bun.NewDB(sqldb, pgdialect.New())

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	service := &DBService{
		DuelDB:        &dueldb.DuelDBImpl{DB: db},
		MatchmakingDB: &matchmakingdb.MatchmakingDBImpl{DB: db},
		ProfileDB:     &profiledb.ProfileDBImpl{DB: db},
		QuestionDB:    &questiondb.QuestionDBImpl{DB: db},
		db:            db,
	}

	db.RegisterModel(
		(*dueltypes.Duel)(nil),
		(*dueltypes.Round)(nil),
		(*dueltypes.DuelResult)(nil),
		(*profiledb.Profile)(nil),
		(*questiontypes.Question)(nil),
	)

	return service, nil
}

// InitSchema creates the service's tables when they do not exist yet.
// Production deployments run real migrations; this covers development and
// test environments.
func (s *DBService) InitSchema(ctx context.Context) error {
	models := []interface{}{
		(*dueltypes.Duel)(nil),
		(*dueltypes.Round)(nil),
		(*dueltypes.DuelResult)(nil),
		(*profiledb.Profile)(nil),
		(*questiontypes.Question)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table for %T: %w", model, err)
		}
	}
	return nil
}
