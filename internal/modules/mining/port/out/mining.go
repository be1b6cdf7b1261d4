package out

import (
	"context"

	"minesync/internal/modules/mining/domain"
)

// SessionStore is the durable authority for session records.
// Create returns apperrors.ErrConflict when the user already has an open session.
type SessionStore interface {
	Create(ctx context.Context, session domain.Session) error
	Get(ctx context.Context, id string) (domain.Session, error)
	Update(ctx context.Context, session domain.Session) error
	FindOpen(ctx context.Context, userID string) (domain.Session, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Session, error)
}

type Wallet interface {
	Credit(ctx context.Context, userID string, amount domain.Amount) (domain.Amount, error)
	Balance(ctx context.Context, userID string) (domain.Amount, error)
}

type Ledger interface {
	Record(ctx context.Context, entry domain.LedgerEntry) error
	List(ctx context.Context, userID string, limit int) ([]domain.LedgerEntry, error)
}

type Notifier interface {
	Emit(ctx context.Context, notification domain.Notification) error
}

type Inbox interface {
	Notifier
	List(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
}

type Settings interface {
	Intensity(ctx context.Context, userID string) (int, error)
	SetIntensity(ctx context.Context, userID string, intensity int) error
}

// StoredResponse is a replayable response recorded under an idempotency key.
type StoredResponse struct {
	Operation string
	Payload   []byte
}

type IdempotencyStore interface {
	Lookup(ctx context.Context, userID, key string) (StoredResponse, bool, error)
	Remember(ctx context.Context, userID, key string, response StoredResponse) error
}

type ReceiptWriter interface {
	Write(ctx context.Context, receipt domain.Receipt) (string, error)
	List(ctx context.Context, userID string) ([]ReceiptRef, error)
}

type ReceiptRef struct {
	SessionID string
	Path      string
	Earnings  string
	EndedAt   string
}
