package domain

import "time"

type NotificationType string

const (
	NotificationSessionStart NotificationType = "session_start"
	NotificationSessionStop  NotificationType = "session_stop"
)

type Notification struct {
	ID        string
	UserID    string
	Type      NotificationType
	Title     string
	Message   string
	IsRead    bool
	CreatedAt time.Time
}

func StartedNotification(userID string, at time.Time) Notification {
	return Notification{
		UserID:    userID,
		Type:      NotificationSessionStart,
		Title:     "Mining Started",
		Message:   "Your mining session has begun successfully",
		CreatedAt: at,
	}
}

func StoppedNotification(userID string, earnings Amount, at time.Time) Notification {
	return Notification{
		UserID:    userID,
		Type:      NotificationSessionStop,
		Title:     "Mining Stopped",
		Message:   "Session completed. Earned " + earnings.String() + " BTC",
		CreatedAt: at,
	}
}

const (
	TransactionMining    = "mining"
	TransactionCompleted = "completed"
)

type LedgerEntry struct {
	ID          string
	UserID      string
	Type        string
	Amount      Amount
	Status      string
	Description string
	SessionID   string
	CreatedAt   time.Time
}

// Receipt is the human-readable settlement record written after a stop.
type Receipt struct {
	Session    Session
	Settlement Settlement
	Balance    Amount
}

const (
	MinIntensity     = 1
	MaxIntensity     = 100
	DefaultIntensity = 50
)
