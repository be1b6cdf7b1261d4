package domain

import (
	"fmt"
	"time"

	"minesync/internal/platform/clock"
	apperrors "minesync/internal/platform/errors"
)

// Settlement is the outcome of a stop, computed once from server timestamps.
type Settlement struct {
	TotalElapsed   int64
	ActiveDuration int64
	PausedDuration int64
	Earnings       Amount
}

func (s *Session) Pause(now time.Time) error {
	if s.Status != StatusActive {
		return invalid("pause", s.Status)
	}
	s.Status = StatusPaused
	s.LastActiveAt = now
	return nil
}

// Resume folds the finished pause span into PausedDuration and returns the span.
func (s *Session) Resume(now time.Time) (int64, error) {
	if s.Status != StatusPaused {
		return 0, invalid("resume", s.Status)
	}
	span := s.foldPause(now)
	s.Status = StatusActive
	s.LastActiveAt = now
	return span, nil
}

// Stop settles the session. Active time beyond the accrual's primary cap is not paid,
// so a stop that reaches the server late still settles at the cap.
func (s *Session) Stop(now time.Time, accrual Accrual) (Settlement, error) {
	if !s.Status.Open() {
		return Settlement{}, invalid("stop", s.Status)
	}
	if s.Status == StatusPaused {
		s.foldPause(now)
	}
	total := clock.WholeSeconds(s.StartTime, now)
	active := accrual.Billable(total - s.PausedDuration)
	earnings := accrual.Earnings(active, s.Intensity)

	end := now
	s.Status = StatusStopped
	s.EndTime = &end
	s.Earnings = earnings
	return Settlement{
		TotalElapsed:   total,
		ActiveDuration: active,
		PausedDuration: s.PausedDuration,
		Earnings:       earnings,
	}, nil
}

func (s *Session) foldPause(now time.Time) int64 {
	span := clock.WholeSeconds(s.LastActiveAt, now)
	s.PausedDuration += span
	return span
}

func invalid(op string, from Status) error {
	return fmt.Errorf("%w: cannot %s a %s session", apperrors.ErrInvalidState, op, from)
}
