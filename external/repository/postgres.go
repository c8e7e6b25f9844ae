package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/foxseedlab/livescribe/internal/remote"
	"github.com/foxseedlab/livescribe/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the subset of pgxpool.Pool the repository uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresRepository struct {
	db   querier
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: pool, pool: pool}
}

// Shutdown closes the pool when the injector shuts down.
func (r *PostgresRepository) Shutdown() {
	if r.pool != nil {
		r.pool.Close()
	}
}

func (r *PostgresRepository) CreateSession(ctx context.Context, input repository.CreateSessionInput) (*repository.Session, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO capture_sessions (id, session_timestamp, mode, source, started_at, status)
		 VALUES ($1, $2, $3, $4, $5, 'running')
		 RETURNING id, session_timestamp, mode, source, started_at, ended_at, status`,
		input.ID, input.Timestamp, input.Mode, input.Source, input.StartedAt)
	var s repository.Session
	var endedAt *time.Time
	if err := row.Scan(&s.ID, &s.Timestamp, &s.Mode, &s.Source, &s.StartedAt, &endedAt, &s.Status); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	s.EndedAt = endedAt
	return &s, nil
}

func (r *PostgresRepository) CompleteSession(ctx context.Context, input repository.CompleteSessionInput) error {
	status := input.Status
	if status == "" {
		status = repository.SessionStatusCompleted
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE capture_sessions
		 SET status = $2, ended_at = $3, stop_reason = $4, segment_count = $5
		 WHERE id = $1`,
		input.SessionID, status, input.EndedAt, input.StopReason, input.SegmentCount)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete session %s: %w", input.SessionID, pgx.ErrNoRows)
	}
	return nil
}

func (r *PostgresRepository) InsertSegment(ctx context.Context, input repository.InsertSegmentInput) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO segment_transcripts
		 (session_id, sequence, segment_name, content, duration_seconds, utterance_count, degraded, transcribed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (session_id, segment_name) DO NOTHING`,
		input.SessionID, input.Sequence, input.SegmentName, input.Content,
		input.DurationSeconds, input.UtteranceCount, input.Degraded, input.TranscribedAt)
	if err != nil {
		return fmt.Errorf("insert segment: %w", err)
	}
	return nil
}

// SegmentStore mirrors transcript entries into segment_transcripts.
type SegmentStore struct {
	repo repository.TranscriptRepository
}

func NewSegmentStore(repo repository.TranscriptRepository) *SegmentStore {
	return &SegmentStore{repo: repo}
}

func (s *SegmentStore) Name() string {
	return "postgres"
}

func (s *SegmentStore) Append(ctx context.Context, e remote.Entry) error {
	if e.SessionID == "" {
		return errors.New("entry has no session id")
	}
	return s.repo.InsertSegment(ctx, repository.InsertSegmentInput{
		SessionID:       e.SessionID,
		Sequence:        e.Sequence,
		SegmentName:     e.Segment,
		Content:         e.Text,
		DurationSeconds: e.Duration.Seconds(),
		UtteranceCount:  e.Utterances,
		Degraded:        e.Degraded,
		TranscribedAt:   e.TranscribedAt,
	})
}
