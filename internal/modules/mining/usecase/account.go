package usecase

import (
	"context"
	"fmt"

	"minesync/internal/modules/mining/domain"
	miningdto "minesync/internal/modules/mining/dto"
	miningin "minesync/internal/modules/mining/port/in"
	miningout "minesync/internal/modules/mining/port/out"
	apperrors "minesync/internal/platform/errors"
)

type AccountInteractor struct {
	wallet   miningout.Wallet
	ledger   miningout.Ledger
	inbox    miningout.Inbox
	settings miningout.Settings
	receipts miningout.ReceiptWriter
}

func NewAccountInteractor(wallet miningout.Wallet, ledger miningout.Ledger, inbox miningout.Inbox, settings miningout.Settings, receipts miningout.ReceiptWriter) miningin.Account {
	return &AccountInteractor{wallet: wallet, ledger: ledger, inbox: inbox, settings: settings, receipts: receipts}
}

func (a *AccountInteractor) Balance(ctx context.Context, userID string) (miningdto.BalanceOutput, error) {
	balance, err := a.wallet.Balance(ctx, userID)
	if err != nil {
		return miningdto.BalanceOutput{}, err
	}
	return miningdto.BalanceOutput{UserID: userID, Balance: balance.String()}, nil
}

func (a *AccountInteractor) Transactions(ctx context.Context, input miningdto.ListInput) ([]miningdto.TransactionOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}
	entries, err := a.ledger.List(ctx, input.UserID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]miningdto.TransactionOutput, 0, len(entries))
	for _, entry := range entries {
		out = append(out, miningdto.TransactionOutput{
			ID:          entry.ID,
			Type:        entry.Type,
			Amount:      entry.Amount.String(),
			Status:      entry.Status,
			Description: entry.Description,
			SessionID:   entry.SessionID,
			CreatedAt:   entry.CreatedAt,
		})
	}
	return out, nil
}

func (a *AccountInteractor) Notifications(ctx context.Context, userID string, unreadOnly bool) ([]miningdto.NotificationOutput, error) {
	items, err := a.inbox.List(ctx, userID, unreadOnly)
	if err != nil {
		return nil, err
	}
	out := make([]miningdto.NotificationOutput, 0, len(items))
	for _, item := range items {
		out = append(out, miningdto.NotificationOutput{
			ID:        item.ID,
			Type:      string(item.Type),
			Title:     item.Title,
			Message:   item.Message,
			IsRead:    item.IsRead,
			CreatedAt: item.CreatedAt,
		})
	}
	return out, nil
}

func (a *AccountInteractor) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	return a.inbox.MarkRead(ctx, userID, notificationID)
}

func (a *AccountInteractor) Intensity(ctx context.Context, userID string) (int, error) {
	return a.settings.Intensity(ctx, userID)
}

func (a *AccountInteractor) SetIntensity(ctx context.Context, userID string, intensity int) (int, error) {
	if intensity < domain.MinIntensity || intensity > domain.MaxIntensity {
		return 0, fmt.Errorf("%w: intensity must be within %d..%d", apperrors.ErrInvalidInput, domain.MinIntensity, domain.MaxIntensity)
	}
	if err := a.settings.SetIntensity(ctx, userID, intensity); err != nil {
		return 0, err
	}
	return intensity, nil
}

func (a *AccountInteractor) Receipts(ctx context.Context, userID string) ([]miningdto.ReceiptOutput, error) {
	if a.receipts == nil {
		return nil, nil
	}
	refs, err := a.receipts.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]miningdto.ReceiptOutput, 0, len(refs))
	for _, ref := range refs {
		out = append(out, miningdto.ReceiptOutput{SessionID: ref.SessionID, Path: ref.Path, Earnings: ref.Earnings, EndedAt: ref.EndedAt})
	}
	return out, nil
}
