package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var Pool *pgxpool.Pool

// InitPostgres connects the shared pool. An empty dsn leaves Pool nil, which disables
// subscriptions and the signal archive.
func InitPostgres(ctx context.Context, dsn string) error {
	if dsn == "" {
		log.Warn().Msg("DATABASE_URL not set, skipping Postgres connection")
		return nil
	}
	cfg, err := poolConfig(dsn)
	if err != nil {
		return err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}
	Pool = pool
	log.Info().Int32("max_conns", cfg.MaxConns).Msg("Connected to Postgres")
	return nil
}

func poolConfig(dsn string) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	if cfg.MaxConnIdleTime == 0 || cfg.MaxConnIdleTime > 5*time.Minute {
		cfg.MaxConnIdleTime = 5 * time.Minute
	}
	return cfg, nil
}

func Close() {
	if Pool != nil {
		Pool.Close()
		Pool = nil
	}
}
