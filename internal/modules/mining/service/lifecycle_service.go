package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"minesync/internal/modules/mining/domain"
	miningout "minesync/internal/modules/mining/port/out"
	"minesync/internal/platform/clock"
	apperrors "minesync/internal/platform/errors"
	"minesync/internal/platform/id"
)

type LifecycleService struct {
	clock   clock.Clock
	idGen   id.Generator
	accrual domain.Accrual
	store   miningout.SessionStore
}

func NewLifecycleService(clock clock.Clock, idGen id.Generator, accrual domain.Accrual, store miningout.SessionStore) *LifecycleService {
	return &LifecycleService{clock: clock, idGen: idGen, accrual: accrual, store: store}
}

// Start checks for an open session and then inserts a new one. The check and the insert
// are separate statements; the store's open-session index rejects whichever racer loses.
func (s *LifecycleService) Start(ctx context.Context, userID string, intensity int) (domain.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.Session{}, fmt.Errorf("%w: user id is required", apperrors.ErrInvalidInput)
	}
	_, err := s.store.FindOpen(ctx, userID)
	if err == nil {
		return domain.Session{}, apperrors.ErrConflict
	}
	if !errors.Is(err, apperrors.ErrNoActiveSession) {
		return domain.Session{}, err
	}

	session := domain.NewSession(s.idGen.New(), userID, s.clock.Now(), intensity)
	if err := s.store.Create(ctx, session); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

func (s *LifecycleService) Pause(ctx context.Context, userID, sessionID string) (domain.Session, error) {
	session, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if err := session.Pause(s.clock.Now()); err != nil {
		return domain.Session{}, err
	}
	if err := s.store.Update(ctx, session); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

func (s *LifecycleService) Resume(ctx context.Context, userID, sessionID string) (domain.Session, error) {
	session, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if _, err := session.Resume(s.clock.Now()); err != nil {
		return domain.Session{}, err
	}
	if err := s.store.Update(ctx, session); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

func (s *LifecycleService) Stop(ctx context.Context, userID, sessionID string) (domain.Session, domain.Settlement, error) {
	session, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return domain.Session{}, domain.Settlement{}, err
	}
	settlement, err := session.Stop(s.clock.Now(), s.accrual)
	if err != nil {
		return domain.Session{}, domain.Settlement{}, err
	}
	if err := s.store.Update(ctx, session); err != nil {
		return domain.Session{}, domain.Settlement{}, err
	}
	return session, settlement, nil
}

func (s *LifecycleService) Active(ctx context.Context, userID string) (domain.Session, error) {
	return s.store.FindOpen(ctx, userID)
}

func (s *LifecycleService) History(ctx context.Context, userID string, limit int) ([]domain.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByUser(ctx, userID, limit)
}

func (s *LifecycleService) Clock() clock.Clock {
	return s.clock
}

func (s *LifecycleService) load(ctx context.Context, userID, sessionID string) (domain.Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return domain.Session{}, fmt.Errorf("%w: session id is required", apperrors.ErrInvalidInput)
	}
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if err := session.OwnedBy(userID); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}
