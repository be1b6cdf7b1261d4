package domain

import (
	"fmt"
	"time"

	apperrors "minesync/internal/platform/errors"
)

const SchemaVersion = 1

type Status string

const (
	StatusActive  Status = "active"
	StatusPaused  Status = "paused"
	StatusStopped Status = "stopped"
)

func (s Status) Open() bool {
	return s == StatusActive || s == StatusPaused
}

func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusActive, StatusPaused, StatusStopped:
		return Status(raw), nil
	default:
		return "", fmt.Errorf("%w: unknown session status %q", apperrors.ErrInvalidInput, raw)
	}
}

// Session is the server-authoritative record. StartTime never changes after creation,
// PausedDuration only grows and Earnings is written once by Stop.
type Session struct {
	ID             string
	UserID         string
	Status         Status
	StartTime      time.Time
	EndTime        *time.Time
	LastActiveAt   time.Time
	PausedDuration int64
	Earnings       Amount
	Intensity      int
}

func NewSession(id, userID string, now time.Time, intensity int) Session {
	return Session{
		ID:           id,
		UserID:       userID,
		Status:       StatusActive,
		StartTime:    now,
		LastActiveAt: now,
		Intensity:    intensity,
	}
}

// OwnedBy fails with ErrUnauthorized when the caller is not the owner.
func (s Session) OwnedBy(userID string) error {
	if s.UserID != userID {
		return fmt.Errorf("%w: session %s", apperrors.ErrUnauthorized, s.ID)
	}
	return nil
}
