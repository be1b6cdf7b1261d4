package out

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	miningout "minesync/internal/modules/mining/port/out"
	"minesync/internal/platform/clock"
	apperrors "minesync/internal/platform/errors"
	"minesync/internal/platform/sqlitedb"
)

type SQLiteIdempotencyStore struct {
	db    *sql.DB
	clock clock.Clock
}

func NewSQLiteIdempotencyStore(ctx context.Context, db *sql.DB, clk clock.Clock) (miningout.IdempotencyStore, error) {
	s := &SQLiteIdempotencyStore{db: db, clock: clk}
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS idempotency_keys (
  user_id TEXT NOT NULL,
  key TEXT NOT NULL,
  operation TEXT NOT NULL,
  response TEXT NOT NULL,
  created_at TEXT NOT NULL,
  PRIMARY KEY (user_id, key)
);
`)
	if err != nil {
		return nil, fmt.Errorf("%w: ensure idempotency schema: %v", apperrors.ErrStorageFailure, err)
	}
	return s, nil
}

func (s *SQLiteIdempotencyStore) Lookup(ctx context.Context, userID, key string) (miningout.StoredResponse, bool, error) {
	var (
		op      string
		payload string
	)
	err := sqlitedb.Conn(ctx, s.db).QueryRowContext(ctx, `SELECT operation, response FROM idempotency_keys WHERE user_id = ? AND key = ?`, userID, key).Scan(&op, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return miningout.StoredResponse{}, false, nil
	}
	if err != nil {
		return miningout.StoredResponse{}, false, fmt.Errorf("%w: lookup idempotency key: %v", apperrors.ErrStorageFailure, err)
	}
	return miningout.StoredResponse{Operation: op, Payload: []byte(payload)}, true, nil
}

func (s *SQLiteIdempotencyStore) Remember(ctx context.Context, userID, key string, response miningout.StoredResponse) error {
	return sqlitedb.Retry(ctx, func() error {
		_, err := sqlitedb.Conn(ctx, s.db).ExecContext(ctx, `
INSERT INTO idempotency_keys(user_id, key, operation, response, created_at) VALUES (?, ?, ?, ?, ?)`,
			userID, key, response.Operation, string(response.Payload), sqlitedb.FormatTime(s.clock.Now()))
		if err != nil {
			if sqlitedb.IsUniqueViolation(err) {
				return fmt.Errorf("%w: idempotency key %s already recorded", apperrors.ErrConflict, key)
			}
			return fmt.Errorf("%w: remember idempotency key: %v", apperrors.ErrStorageFailure, err)
		}
		return nil
	})
}
