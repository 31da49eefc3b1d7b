package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect создаёт пул подключений к Postgres.
func Connect(dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 5
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// Migrate создаёт таблицы, если их ещё нет. is_published остаётся
// NULL-able для совместимости со старыми записями; нормализация
// выполняется на старте через PostRepo.FixNullPublished.
func Migrate(pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS posts (
			id BIGSERIAL PRIMARY KEY,
			topic VARCHAR(255) NOT NULL,
			content TEXT NOT NULL,
			image_url VARCHAR(500),
			image_prompt TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			published_at TIMESTAMPTZ,
			is_published BOOLEAN,
			telegram_message_id BIGINT
		)`,
		`CREATE TABLE IF NOT EXISTS schedules (
			id BIGSERIAL PRIMARY KEY,
			frequency VARCHAR(50) NOT NULL,
			time VARCHAR(10) NOT NULL,
			days_of_week VARCHAR(50),
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_run TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS analytics (
			id BIGSERIAL PRIMARY KEY,
			post_id BIGINT NOT NULL,
			views BIGINT NOT NULL DEFAULT 0,
			forwards BIGINT NOT NULL DEFAULT 0,
			last_updated TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts (created_at DESC)`,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("миграция схемы: %w", err)
		}
	}
	return nil
}
