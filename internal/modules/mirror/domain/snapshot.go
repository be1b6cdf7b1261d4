package domain

import (
	"fmt"
	"time"

	"minesync/internal/platform/clock"
	apperrors "minesync/internal/platform/errors"
)

// Status is the tab-local view of a session. Idle and cooldown are never persisted server-side.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusCooldown Status = "cooldown"
)

func (s Status) Open() bool {
	return s == StatusActive || s == StatusPaused
}

// Snapshot is the projection a tab persists locally and broadcasts to other tabs.
// Times are epoch milliseconds, durations whole seconds.
type Snapshot struct {
	SessionID      *string `json:"sessionId"`
	Status         Status  `json:"status"`
	StartTime      int64   `json:"startTime"`
	Duration       int64   `json:"duration"`
	PausedAt       *int64  `json:"pausedAt"`
	PausedDuration int64   `json:"pausedDuration"`
}

func Idle() Snapshot {
	return Snapshot{Status: StatusIdle}
}

func Cooldown() Snapshot {
	return Snapshot{Status: StatusCooldown}
}

func (s Snapshot) ID() string {
	if s.SessionID == nil {
		return ""
	}
	return *s.SessionID
}

func (s Snapshot) Validate() error {
	switch s.Status {
	case StatusIdle, StatusCooldown:
		return nil
	case StatusActive, StatusPaused:
		if s.ID() == "" {
			return fmt.Errorf("%w: %s snapshot without session id", apperrors.ErrInvalidInput, s.Status)
		}
		if s.Duration < 0 || s.PausedDuration < 0 {
			return fmt.Errorf("%w: negative duration in snapshot", apperrors.ErrInvalidInput)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown snapshot status %q", apperrors.ErrInvalidInput, s.Status)
	}
}

// ServerSession carries the authoritative fields a tab reconciles against.
type ServerSession struct {
	ID             string
	Status         string
	StartTime      time.Time
	LastActiveAt   time.Time
	PausedDuration int64
}

// FromServer rebuilds a projection from server timestamps. An in-progress pause counts
// towards the displayed paused time; the snapshot keeps the server's PausedDuration.
func FromServer(session ServerSession, now time.Time) Snapshot {
	id := session.ID
	snap := Snapshot{
		SessionID:      &id,
		Status:         StatusActive,
		StartTime:      clock.Millis(session.StartTime),
		PausedDuration: session.PausedDuration,
	}
	effectivePaused := session.PausedDuration
	if session.Status == string(StatusPaused) {
		snap.Status = StatusPaused
		pausedAt := clock.Millis(session.LastActiveAt)
		snap.PausedAt = &pausedAt
		effectivePaused += clock.WholeSeconds(session.LastActiveAt, now)
	}
	snap.Duration = activeSeconds(snap.StartTime, now, effectivePaused)
	return snap
}

// Tick advances the displayed duration of an active projection. Paused, idle and cooldown
// projections are returned unchanged.
func (s Snapshot) Tick(now time.Time) Snapshot {
	if s.Status != StatusActive {
		return s
	}
	s.Duration = activeSeconds(s.StartTime, now, s.PausedDuration)
	return s
}

// Paused applies an acknowledged pause. Duration is held at its last value.
func (s Snapshot) Paused(now time.Time) Snapshot {
	s = s.Tick(now)
	at := clock.Millis(now)
	s.Status = StatusPaused
	s.PausedAt = &at
	return s
}

// Resumed applies an acknowledged resume with the server's accumulated paused seconds.
func (s Snapshot) Resumed(pausedDuration int64, now time.Time) Snapshot {
	s.Status = StatusActive
	s.PausedAt = nil
	s.PausedDuration = pausedDuration
	s.Duration = activeSeconds(s.StartTime, now, pausedDuration)
	return s
}

// Elapsed is the wall-clock seconds since the session started, pauses included.
func (s Snapshot) Elapsed(now time.Time) int64 {
	if s.StartTime == 0 {
		return 0
	}
	return clock.WholeSeconds(clock.FromMillis(s.StartTime), now)
}

func activeSeconds(startMillis int64, now time.Time, paused int64) int64 {
	d := clock.WholeSeconds(clock.FromMillis(startMillis), now) - paused
	if d < 0 {
		return 0
	}
	return d
}
