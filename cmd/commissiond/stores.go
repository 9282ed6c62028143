package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	mongodriver "go.mongodb.org/mongo-driver/mongo"

	"github.com/commissionhub/commission-api/internal/api/handler"
	"github.com/commissionhub/commission-api/internal/core/ports"
	"github.com/commissionhub/commission-api/internal/infrastructure/db/mongo"
	"github.com/commissionhub/commission-api/internal/infrastructure/db/postgres"
	"github.com/commissionhub/commission-api/internal/pkg/config"
)

// stores bundles the repositories of the selected backend with the pool that
// backs them.
type stores struct {
	users         ports.UserRepository
	works         ports.WorkRepository
	notifications ports.NotificationRepository

	check handler.Checker
	close func(ctx context.Context)
}

// openStores connects the configured backend. When migrate is true the schema
// (Postgres) or indexes (MongoDB) are brought up to date first.
func openStores(ctx context.Context, cfg *config.Config, migrate bool, log zerolog.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, postgres.Config{DSN: cfg.Postgres.DSN, MaxConns: cfg.Postgres.MaxConns})
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
			log.Info().Msg("postgres schema up to date")
		}
		return postgresStores(pool), nil

	case config.DriverMongo:
		client, db, err := mongo.Connect(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := mongo.EnsureIndexes(ctx, db); err != nil {
				_ = client.Disconnect(ctx)
				return nil, err
			}
			log.Info().Msg("mongo indexes ensured")
		}
		return mongoStores(client, db), nil
	}
	return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
}

func postgresStores(pool *pgxpool.Pool) *stores {
	return &stores{
		users:         postgres.NewUserRepository(pool),
		works:         postgres.NewWorkRepository(pool),
		notifications: postgres.NewNotificationRepository(pool),
		check:         func(ctx context.Context) error { return pool.Ping(ctx) },
		close:         func(context.Context) { pool.Close() },
	}
}

func mongoStores(client *mongodriver.Client, db *mongodriver.Database) *stores {
	return &stores{
		users:         mongo.NewUserRepository(db),
		works:         mongo.NewWorkRepository(client, db),
		notifications: mongo.NewNotificationRepository(db),
		check:         func(ctx context.Context) error { return client.Ping(ctx, nil) },
		close:         func(ctx context.Context) { _ = client.Disconnect(ctx) },
	}
}
