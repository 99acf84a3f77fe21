package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Migrate creates the schema if it does not exist. Statements are
// idempotent so this is safe to run on every startup.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id           UUID PRIMARY KEY,
			source       TEXT NOT NULL,
			source_id    TEXT NOT NULL,
			title        TEXT NOT NULL DEFAULT '',
			start_time   TIMESTAMPTZ NOT NULL,
			end_time     TIMESTAMPTZ NOT NULL,
			metadata     JSONB NOT NULL DEFAULT '{}',
			processed    BOOLEAN NOT NULL DEFAULT FALSE,
			processed_at TIMESTAMPTZ,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (source, source_id)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id              UUID PRIMARY KEY,
			conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			position        INT NOT NULL,
			role            TEXT NOT NULL,
			ts              TIMESTAMPTZ NOT NULL,
			blocks          JSONB NOT NULL DEFAULT '[]'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, position)`,
		`CREATE TABLE IF NOT EXISTS insights (
			id               UUID PRIMARY KEY,
			conversation_id  UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			type             TEXT NOT NULL,
			category         TEXT NOT NULL,
			title            TEXT NOT NULL,
			content          TEXT NOT NULL,
			code_blocks      JSONB NOT NULL DEFAULT '[]',
			confidence       DOUBLE PRECISION NOT NULL,
			extracted_at     TIMESTAMPTZ NOT NULL,
			synced_to_notion BOOLEAN NOT NULL DEFAULT FALSE,
			notion_page_id   TEXT NOT NULL DEFAULT '',
			UNIQUE (conversation_id, type, title)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_insights_extracted ON insights (extracted_at)`,
		`CREATE TABLE IF NOT EXISTS technology_tags (
			id   UUID PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS insight_technologies (
			insight_id UUID NOT NULL REFERENCES insights(id) ON DELETE CASCADE,
			tag_id     UUID NOT NULL REFERENCES technology_tags(id) ON DELETE CASCADE,
			PRIMARY KEY (insight_id, tag_id)
		)`,
		`CREATE TABLE IF NOT EXISTS job_runs (
			id          UUID PRIMARY KEY,
			name        TEXT NOT NULL,
			status      TEXT NOT NULL,
			started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			finished_at TIMESTAMPTZ,
			detail      TEXT NOT NULL DEFAULT '',
			error       TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_job_runs_name ON job_runs (name, started_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	return nil
}
