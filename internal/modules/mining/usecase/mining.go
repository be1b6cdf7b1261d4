package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	hclog "github.com/hashicorp/go-hclog"

	"minesync/internal/modules/mining/domain"
	miningdto "minesync/internal/modules/mining/dto"
	miningin "minesync/internal/modules/mining/port/in"
	miningout "minesync/internal/modules/mining/port/out"
	"minesync/internal/modules/mining/service"
	apperrors "minesync/internal/platform/errors"
	"minesync/internal/platform/id"
	"minesync/internal/platform/logging"
	"minesync/internal/platform/tx"
)

const (
	opStart  = "start"
	opPause  = "pause"
	opResume = "resume"
	opStop   = "stop"
)

// Collaborators are the external systems the lifecycle settles into.
// Idempotency and Receipts are optional.
type Collaborators struct {
	Tx          tx.Manager
	Wallet      miningout.Wallet
	Ledger      miningout.Ledger
	Notifier    miningout.Notifier
	Settings    miningout.Settings
	Idempotency miningout.IdempotencyStore
	Receipts    miningout.ReceiptWriter
	IDs         id.Generator
	Logger      hclog.Logger
}

type Interactor struct {
	svc      *service.LifecycleService
	tx       tx.Manager
	wallet   miningout.Wallet
	ledger   miningout.Ledger
	notifier miningout.Notifier
	settings miningout.Settings
	idem     miningout.IdempotencyStore
	receipts miningout.ReceiptWriter
	ids      id.Generator
	logger   hclog.Logger
}

func NewInteractor(svc *service.LifecycleService, deps Collaborators) miningin.Usecase {
	ids := deps.IDs
	if ids == nil {
		ids = id.UUID{}
	}
	return &Interactor{
		svc:      svc,
		tx:       tx.OrNoop(deps.Tx),
		wallet:   deps.Wallet,
		ledger:   deps.Ledger,
		notifier: deps.Notifier,
		settings: deps.Settings,
		idem:     deps.Idempotency,
		receipts: deps.Receipts,
		ids:      ids,
		logger:   logging.OrDiscard(deps.Logger).Named("lifecycle"),
	}
}

func (i *Interactor) Start(ctx context.Context, input miningdto.StartInput) (miningdto.SessionOutput, error) {
	intensity := domain.DefaultIntensity
	if i.settings != nil {
		value, err := i.settings.Intensity(ctx, input.UserID)
		if err != nil {
			return miningdto.SessionOutput{}, err
		}
		intensity = value
	}

	out := miningdto.SessionOutput{}
	replayed, err := i.idempotent(ctx, input.UserID, input.IdempotencyKey, opStart, &out, func(txCtx context.Context) error {
		session, err := i.svc.Start(txCtx, input.UserID, intensity)
		if err != nil {
			return err
		}
		out = toSessionOutput(session)
		return nil
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			i.logger.Debug("start rejected, open session exists", "user", input.UserID)
		}
		return miningdto.SessionOutput{}, err
	}
	if replayed {
		return out, nil
	}
	i.logger.Info("session started", "user", input.UserID, "session", out.ID, "intensity", out.Intensity)
	if err := i.emit(ctx, domain.StartedNotification(input.UserID, out.StartTime)); err != nil {
		out.NotifyError = err.Error()
	}
	return out, nil
}

func (i *Interactor) Pause(ctx context.Context, input miningdto.SessionInput) (miningdto.AckOutput, error) {
	out := miningdto.AckOutput{}
	replayed, err := i.idempotent(ctx, input.UserID, input.IdempotencyKey, opPause, &out, func(txCtx context.Context) error {
		if _, err := i.svc.Pause(txCtx, input.UserID, input.SessionID); err != nil {
			return err
		}
		out = miningdto.AckOutput{Success: true}
		return nil
	})
	if err != nil {
		return miningdto.AckOutput{}, err
	}
	if !replayed {
		i.logger.Info("session paused", "user", input.UserID, "session", input.SessionID)
	}
	return out, nil
}

func (i *Interactor) Resume(ctx context.Context, input miningdto.SessionInput) (miningdto.ResumeOutput, error) {
	out := miningdto.ResumeOutput{}
	replayed, err := i.idempotent(ctx, input.UserID, input.IdempotencyKey, opResume, &out, func(txCtx context.Context) error {
		session, err := i.svc.Resume(txCtx, input.UserID, input.SessionID)
		if err != nil {
			return err
		}
		out = miningdto.ResumeOutput{Success: true, PausedDuration: session.PausedDuration}
		return nil
	})
	if err != nil {
		return miningdto.ResumeOutput{}, err
	}
	if !replayed {
		i.logger.Info("session resumed", "user", input.UserID, "session", input.SessionID, "paused_duration", out.PausedDuration)
	}
	return out, nil
}

// Stop settles the session. The status change, ledger entry and balance credit share one
// transaction; the receipt and the notification follow the commit and cannot undo it.
func (i *Interactor) Stop(ctx context.Context, input miningdto.SessionInput) (miningdto.StopOutput, error) {
	if i.wallet == nil || i.ledger == nil {
		return miningdto.StopOutput{}, fmt.Errorf("wallet and ledger collaborators are not configured")
	}
	var (
		session    domain.Session
		settlement domain.Settlement
		balance    domain.Amount
	)
	out := miningdto.StopOutput{}
	replayed, err := i.idempotent(ctx, input.UserID, input.IdempotencyKey, opStop, &out, func(txCtx context.Context) error {
		var err error
		session, settlement, err = i.svc.Stop(txCtx, input.UserID, input.SessionID)
		if err != nil {
			return err
		}
		if settlement.Earnings.Positive() {
			if err := i.ledger.Record(txCtx, domain.LedgerEntry{
				ID:          i.ids.New(),
				UserID:      session.UserID,
				Type:        domain.TransactionMining,
				Amount:      settlement.Earnings,
				Status:      domain.TransactionCompleted,
				Description: "Mining session " + id.Short(session.ID),
				SessionID:   session.ID,
				CreatedAt:   *session.EndTime,
			}); err != nil {
				return err
			}
			balance, err = i.wallet.Credit(txCtx, session.UserID, settlement.Earnings)
		} else {
			balance, err = i.wallet.Balance(txCtx, session.UserID)
		}
		if err != nil {
			return err
		}
		out = miningdto.StopOutput{
			Success:        true,
			SessionID:      session.ID,
			ActiveDuration: settlement.ActiveDuration,
			PausedDuration: settlement.PausedDuration,
			Earnings:       settlement.Earnings.String(),
			Balance:        balance.String(),
		}
		return nil
	})
	if err != nil {
		return miningdto.StopOutput{}, err
	}
	if replayed {
		return out, nil
	}
	i.logger.Info("session stopped", "user", session.UserID, "session", session.ID,
		"active_seconds", settlement.ActiveDuration, "paused_seconds", settlement.PausedDuration, "earnings", settlement.Earnings.String())

	if i.receipts != nil {
		path, err := i.receipts.Write(ctx, domain.Receipt{Session: session, Settlement: settlement, Balance: balance})
		if err != nil {
			i.logger.Warn("write settlement receipt", "session", session.ID, "error", err)
		} else {
			out.ReceiptPath = path
		}
	}
	if err := i.emit(ctx, domain.StoppedNotification(session.UserID, settlement.Earnings, *session.EndTime)); err != nil {
		out.NotifyError = err.Error()
	}
	return out, nil
}

func (i *Interactor) GetActive(ctx context.Context, userID string) (miningdto.ActiveOutput, error) {
	session, err := i.svc.Active(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNoActiveSession) {
			return miningdto.ActiveOutput{}, nil
		}
		return miningdto.ActiveOutput{}, err
	}
	out := toSessionOutput(session)
	return miningdto.ActiveOutput{Session: &out}, nil
}

func (i *Interactor) ListSessions(ctx context.Context, input miningdto.ListInput) ([]miningdto.SessionOutput, error) {
	sessions, err := i.svc.History(ctx, input.UserID, input.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]miningdto.SessionOutput, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, toSessionOutput(session))
	}
	return out, nil
}

// idempotent runs fn inside a transaction. With a key, a previously recorded response for the
// same operation is decoded into out instead, and replayed reports that nothing was applied.
func (i *Interactor) idempotent(ctx context.Context, userID, key, op string, out any, fn func(context.Context) error) (bool, error) {
	if key == "" || i.idem == nil {
		return false, i.tx.Within(ctx, fn)
	}
	replayed := false
	err := i.tx.Within(ctx, func(txCtx context.Context) error {
		stored, ok, err := i.idem.Lookup(txCtx, userID, key)
		if err != nil {
			return err
		}
		if ok {
			if stored.Operation != op {
				return fmt.Errorf("%w: idempotency key already used for %s", apperrors.ErrInvalidInput, stored.Operation)
			}
			if err := json.Unmarshal(stored.Payload, out); err != nil {
				return fmt.Errorf("decode stored response: %w", err)
			}
			replayed = true
			return nil
		}
		if err := fn(txCtx); err != nil {
			return err
		}
		payload, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("encode response: %w", err)
		}
		return i.idem.Remember(txCtx, userID, key, miningout.StoredResponse{Operation: op, Payload: payload})
	})
	if replayed {
		i.logger.Debug("replayed idempotent call", "user", userID, "op", op, "key", key)
	}
	return replayed, err
}

func (i *Interactor) emit(ctx context.Context, notification domain.Notification) error {
	if i.notifier == nil {
		return nil
	}
	if err := i.notifier.Emit(ctx, notification); err != nil {
		i.logger.Warn("emit notification", "user", notification.UserID, "type", string(notification.Type), "error", err)
		return err
	}
	return nil
}

func toSessionOutput(session domain.Session) miningdto.SessionOutput {
	return miningdto.SessionOutput{
		ID:             session.ID,
		UserID:         session.UserID,
		Status:         string(session.Status),
		StartTime:      session.StartTime,
		EndTime:        session.EndTime,
		LastActiveAt:   session.LastActiveAt,
		PausedDuration: session.PausedDuration,
		Earnings:       session.Earnings.String(),
		Intensity:      session.Intensity,
	}
}
