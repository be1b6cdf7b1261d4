package dto

import "time"

type StartInput struct {
	UserID         string
	IdempotencyKey string
}

type SessionInput struct {
	UserID         string
	SessionID      string
	IdempotencyKey string
}

type SessionOutput struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	Status         string     `json:"status"`
	StartTime      time.Time  `json:"startTime"`
	EndTime        *time.Time `json:"endTime,omitempty"`
	LastActiveAt   time.Time  `json:"lastActiveAt"`
	PausedDuration int64      `json:"pausedDuration"`
	Earnings       string     `json:"earnings"`
	Intensity      int        `json:"intensity"`
	NotifyError    string     `json:"notifyError,omitempty"`
}

type AckOutput struct {
	Success bool `json:"success"`
}

type ResumeOutput struct {
	Success        bool  `json:"success"`
	PausedDuration int64 `json:"pausedDuration"`
}

type StopOutput struct {
	Success        bool   `json:"success"`
	SessionID      string `json:"sessionId"`
	ActiveDuration int64  `json:"activeDuration"`
	PausedDuration int64  `json:"pausedDuration"`
	Earnings       string `json:"earnings"`
	Balance        string `json:"balance"`
	ReceiptPath    string `json:"receiptPath,omitempty"`
	NotifyError    string `json:"notifyError,omitempty"`
}

type ActiveOutput struct {
	Session *SessionOutput `json:"session"`
}

type ListInput struct {
	UserID string
	Limit  int
}

type BalanceOutput struct {
	UserID  string `json:"userId"`
	Balance string `json:"balance"`
}

type TransactionOutput struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Amount      string    `json:"amount"`
	Status      string    `json:"status"`
	Description string    `json:"description"`
	SessionID   string    `json:"sessionId"`
	CreatedAt   time.Time `json:"createdAt"`
}

type NotificationOutput struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

type ReceiptOutput struct {
	SessionID string `json:"sessionId"`
	Path      string `json:"path"`
	Earnings  string `json:"earnings"`
	EndedAt   string `json:"endedAt"`
}
