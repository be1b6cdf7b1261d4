package in

import (
	"context"

	miningdto "minesync/internal/modules/mining/dto"
	miningin "minesync/internal/modules/mining/port/in"
)

type CLIHandler struct {
	usecase miningin.Usecase
	account miningin.Account
}

func NewCLIHandler(usecase miningin.Usecase, account miningin.Account) CLIHandler {
	return CLIHandler{usecase: usecase, account: account}
}

func (h CLIHandler) Start(ctx context.Context, userID string) (miningdto.SessionOutput, error) {
	return h.usecase.Start(ctx, miningdto.StartInput{UserID: userID})
}

func (h CLIHandler) Pause(ctx context.Context, userID, sessionID string) (miningdto.AckOutput, error) {
	return h.usecase.Pause(ctx, miningdto.SessionInput{UserID: userID, SessionID: sessionID})
}

func (h CLIHandler) Resume(ctx context.Context, userID, sessionID string) (miningdto.ResumeOutput, error) {
	return h.usecase.Resume(ctx, miningdto.SessionInput{UserID: userID, SessionID: sessionID})
}

func (h CLIHandler) Stop(ctx context.Context, userID, sessionID string) (miningdto.StopOutput, error) {
	return h.usecase.Stop(ctx, miningdto.SessionInput{UserID: userID, SessionID: sessionID})
}

// ResolveSessionID falls back to the caller's open session when no id was given.
func (h CLIHandler) ResolveSessionID(ctx context.Context, userID, sessionID string) (string, error) {
	if sessionID != "" {
		return sessionID, nil
	}
	active, err := h.usecase.GetActive(ctx, userID)
	if err != nil {
		return "", err
	}
	if active.Session == nil {
		return "", nil
	}
	return active.Session.ID, nil
}

func (h CLIHandler) GetActive(ctx context.Context, userID string) (miningdto.ActiveOutput, error) {
	return h.usecase.GetActive(ctx, userID)
}

func (h CLIHandler) List(ctx context.Context, userID string, limit int) ([]miningdto.SessionOutput, error) {
	return h.usecase.ListSessions(ctx, miningdto.ListInput{UserID: userID, Limit: limit})
}

func (h CLIHandler) Balance(ctx context.Context, userID string) (miningdto.BalanceOutput, error) {
	return h.account.Balance(ctx, userID)
}

func (h CLIHandler) Transactions(ctx context.Context, userID string, limit int) ([]miningdto.TransactionOutput, error) {
	return h.account.Transactions(ctx, miningdto.ListInput{UserID: userID, Limit: limit})
}

func (h CLIHandler) Notifications(ctx context.Context, userID string, unreadOnly bool) ([]miningdto.NotificationOutput, error) {
	return h.account.Notifications(ctx, userID, unreadOnly)
}

func (h CLIHandler) MarkRead(ctx context.Context, userID, id string) error {
	return h.account.MarkNotificationRead(ctx, userID, id)
}

func (h CLIHandler) Intensity(ctx context.Context, userID string) (int, error) {
	return h.account.Intensity(ctx, userID)
}

func (h CLIHandler) SetIntensity(ctx context.Context, userID string, intensity int) (int, error) {
	return h.account.SetIntensity(ctx, userID, intensity)
}

func (h CLIHandler) Receipts(ctx context.Context, userID string) ([]miningdto.ReceiptOutput, error) {
	return h.account.Receipts(ctx, userID)
}
