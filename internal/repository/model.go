package repository

import "time"

type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

type Session struct {
	ID           string
	Timestamp    string
	Mode         string
	Source       string
	StartedAt    time.Time
	EndedAt      *time.Time
	Status       SessionStatus
	StopReason   string
	SegmentCount int
}
