package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`DO $$ BEGIN CREATE TYPE capture_session_status AS ENUM ('running', 'completed', 'failed'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`CREATE TABLE IF NOT EXISTS capture_sessions (
		id UUID PRIMARY KEY,
		session_timestamp TEXT NOT NULL,
		mode TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		status capture_session_status NOT NULL DEFAULT 'running',
		stop_reason TEXT NOT NULL DEFAULT '',
		segment_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_capture_sessions_running ON capture_sessions (started_at) WHERE status = 'running'`,
	`CREATE TABLE IF NOT EXISTS segment_transcripts (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		session_id UUID NOT NULL REFERENCES capture_sessions(id) ON DELETE CASCADE,
		sequence INTEGER NOT NULL,
		segment_name TEXT NOT NULL,
		content TEXT NOT NULL,
		duration_seconds DOUBLE PRECISION NOT NULL,
		utterance_count INTEGER NOT NULL,
		degraded BOOLEAN NOT NULL DEFAULT FALSE,
		transcribed_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(session_id, segment_name)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_segment_transcripts_session ON segment_transcripts (session_id, sequence)`,
}

func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for i, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement %d: %w", i, err)
		}
	}
	return nil
}
