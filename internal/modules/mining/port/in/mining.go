package in

import (
	"context"

	"minesync/internal/modules/mining/dto"
)

// Usecase is the session lifecycle surface served to tabs and the CLI.
type Usecase interface {
	Start(ctx context.Context, input dto.StartInput) (dto.SessionOutput, error)
	Pause(ctx context.Context, input dto.SessionInput) (dto.AckOutput, error)
	Resume(ctx context.Context, input dto.SessionInput) (dto.ResumeOutput, error)
	Stop(ctx context.Context, input dto.SessionInput) (dto.StopOutput, error)
	GetActive(ctx context.Context, userID string) (dto.ActiveOutput, error)
	ListSessions(ctx context.Context, input dto.ListInput) ([]dto.SessionOutput, error)
}

// Account exposes the wallet, ledger, inbox and settings collaborators for reads.
type Account interface {
	Balance(ctx context.Context, userID string) (dto.BalanceOutput, error)
	Transactions(ctx context.Context, input dto.ListInput) ([]dto.TransactionOutput, error)
	Notifications(ctx context.Context, userID string, unreadOnly bool) ([]dto.NotificationOutput, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID string) error
	Intensity(ctx context.Context, userID string) (int, error)
	SetIntensity(ctx context.Context, userID string, intensity int) (int, error)
	Receipts(ctx context.Context, userID string) ([]dto.ReceiptOutput, error)
}
