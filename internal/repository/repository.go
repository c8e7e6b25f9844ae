package repository

import (
	"context"
	"time"
)

type CreateSessionInput struct {
	ID        string
	Timestamp string
	Mode      string
	Source    string
	StartedAt time.Time
}

type CompleteSessionInput struct {
	SessionID    string
	EndedAt      time.Time
	Status       SessionStatus
	StopReason   string
	SegmentCount int
}

type InsertSegmentInput struct {
	SessionID       string
	Sequence        int
	SegmentName     string
	Content         string
	DurationSeconds float64
	UtteranceCount  int
	Degraded        bool
	TranscribedAt   time.Time
}

type SessionRepository interface {
	CreateSession(ctx context.Context, input CreateSessionInput) (*Session, error)
	CompleteSession(ctx context.Context, input CompleteSessionInput) error
}

type TranscriptRepository interface {
	InsertSegment(ctx context.Context, input InsertSegmentInput) error
}

type Repository interface {
	SessionRepository
	TranscriptRepository
}

// Nop is used when no database is configured.
type Nop struct{}

func (Nop) CreateSession(_ context.Context, input CreateSessionInput) (*Session, error) {
	return &Session{
		ID:        input.ID,
		Timestamp: input.Timestamp,
		Mode:      input.Mode,
		Source:    input.Source,
		StartedAt: input.StartedAt,
		Status:    SessionStatusRunning,
	}, nil
}

func (Nop) CompleteSession(context.Context, CompleteSessionInput) error {
	return nil
}

func (Nop) InsertSegment(context.Context, InsertSegmentInput) error {
	return nil
}
