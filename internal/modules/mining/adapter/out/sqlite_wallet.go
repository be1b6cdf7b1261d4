package out

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"minesync/internal/modules/mining/domain"
	miningout "minesync/internal/modules/mining/port/out"
	apperrors "minesync/internal/platform/errors"
	"minesync/internal/platform/sqlitedb"
)

// SQLiteWallet keeps balances and the transaction ledger in the shared database.
type SQLiteWallet struct {
	db *sql.DB
}

func NewSQLiteWallet(ctx context.Context, db *sql.DB) (*SQLiteWallet, error) {
	w := &SQLiteWallet{db: db}
	if err := w.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

var (
	_ miningout.Wallet = (*SQLiteWallet)(nil)
	_ miningout.Ledger = (*SQLiteWallet)(nil)
)

func (w *SQLiteWallet) ensureSchema(ctx context.Context) error {
	_, err := w.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS wallet_balances (
  user_id TEXT PRIMARY KEY,
  balance_units INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS wallet_transactions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  type TEXT NOT NULL,
  amount_units INTEGER NOT NULL,
  status TEXT NOT NULL,
  description TEXT NOT NULL,
  session_id TEXT,
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_wallet_transactions_user ON wallet_transactions(user_id, created_at);
`)
	if err != nil {
		return fmt.Errorf("%w: ensure wallet schema: %v", apperrors.ErrStorageFailure, err)
	}
	return nil
}

func (w *SQLiteWallet) Credit(ctx context.Context, userID string, amount domain.Amount) (domain.Amount, error) {
	if amount < 0 {
		return 0, fmt.Errorf("%w: credit amount must not be negative", apperrors.ErrInvalidInput)
	}
	var balance int64
	err := sqlitedb.Retry(ctx, func() error {
		return sqlitedb.Conn(ctx, w.db).QueryRowContext(ctx, `
INSERT INTO wallet_balances(user_id, balance_units) VALUES (?, ?)
ON CONFLICT(user_id) DO UPDATE SET balance_units = wallet_balances.balance_units + excluded.balance_units
RETURNING balance_units`, userID, int64(amount)).Scan(&balance)
	})
	if err != nil {
		return 0, fmt.Errorf("%w: credit balance: %v", apperrors.ErrStorageFailure, err)
	}
	return domain.Amount(balance), nil
}

func (w *SQLiteWallet) Balance(ctx context.Context, userID string) (domain.Amount, error) {
	var balance int64
	err := sqlitedb.Conn(ctx, w.db).QueryRowContext(ctx, `SELECT balance_units FROM wallet_balances WHERE user_id = ?`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: read balance: %v", apperrors.ErrStorageFailure, err)
	}
	return domain.Amount(balance), nil
}

func (w *SQLiteWallet) Record(ctx context.Context, entry domain.LedgerEntry) error {
	return sqlitedb.Retry(ctx, func() error {
		_, err := sqlitedb.Conn(ctx, w.db).ExecContext(ctx, `
INSERT INTO wallet_transactions(id, user_id, type, amount_units, status, description, session_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.ID, entry.UserID, entry.Type, int64(entry.Amount), entry.Status, entry.Description,
			sql.NullString{String: entry.SessionID, Valid: entry.SessionID != ""},
			sqlitedb.FormatTime(entry.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("%w: record transaction: %v", apperrors.ErrStorageFailure, err)
		}
		return nil
	})
}

func (w *SQLiteWallet) List(ctx context.Context, userID string, limit int) ([]domain.LedgerEntry, error) {
	rows, err := sqlitedb.Conn(ctx, w.db).QueryContext(ctx, `
SELECT id, user_id, type, amount_units, status, description, session_id, created_at
FROM wallet_transactions WHERE user_id = ?
ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list transactions: %v", apperrors.ErrStorageFailure, err)
	}
	defer rows.Close()

	out := []domain.LedgerEntry{}
	for rows.Next() {
		var (
			entry     domain.LedgerEntry
			amount    int64
			sessionID sql.NullString
			createdAt string
		)
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Type, &amount, &entry.Status, &entry.Description, &sessionID, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: scan transaction: %v", apperrors.ErrStorageFailure, err)
		}
		entry.Amount = domain.Amount(amount)
		entry.SessionID = sessionID.String
		if entry.CreatedAt, err = sqlitedb.ParseTime(createdAt); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrStorageFailure, err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate transactions: %v", apperrors.ErrStorageFailure, err)
	}
	return out, nil
}
