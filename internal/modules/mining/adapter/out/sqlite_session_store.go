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

const sessionColumns = `id, user_id, status, start_time, end_time, last_active_at, paused_duration, earnings_units, intensity`

type SQLiteSessionStore struct {
	db *sql.DB
}

func NewSQLiteSessionStore(ctx context.Context, db *sql.DB) (miningout.SessionStore, error) {
	s := &SQLiteSessionStore{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSessionStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS mining_sessions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  status TEXT NOT NULL,
  start_time TEXT NOT NULL,
  end_time TEXT,
  last_active_at TEXT NOT NULL,
  paused_duration INTEGER NOT NULL DEFAULT 0,
  earnings_units INTEGER NOT NULL DEFAULT 0,
  intensity INTEGER NOT NULL DEFAULT 50
);
CREATE INDEX IF NOT EXISTS idx_mining_sessions_user ON mining_sessions(user_id, start_time);
CREATE UNIQUE INDEX IF NOT EXISTS idx_mining_sessions_one_open
  ON mining_sessions(user_id) WHERE status IN ('active', 'paused');
`)
	if err != nil {
		return fmt.Errorf("%w: ensure mining_sessions schema: %v", apperrors.ErrStorageFailure, err)
	}
	return nil
}

func (s *SQLiteSessionStore) Create(ctx context.Context, session domain.Session) error {
	return sqlitedb.Retry(ctx, func() error {
		_, err := sqlitedb.Conn(ctx, s.db).ExecContext(ctx, `
INSERT INTO mining_sessions(`+sessionColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			session.ID,
			session.UserID,
			string(session.Status),
			sqlitedb.FormatTime(session.StartTime),
			sqlitedb.NullableTime(session.EndTime),
			sqlitedb.FormatTime(session.LastActiveAt),
			session.PausedDuration,
			int64(session.Earnings),
			session.Intensity,
		)
		if err != nil {
			if sqlitedb.IsUniqueViolation(err) {
				return apperrors.ErrConflict
			}
			return fmt.Errorf("%w: insert session: %v", apperrors.ErrStorageFailure, err)
		}
		return nil
	})
}

func (s *SQLiteSessionStore) Get(ctx context.Context, id string) (domain.Session, error) {
	row := sqlitedb.Conn(ctx, s.db).QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM mining_sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, fmt.Errorf("%w: session %s", apperrors.ErrNotFound, id)
	}
	return session, err
}

// Update rewrites the mutable columns. start_time and user_id never change after Create.
func (s *SQLiteSessionStore) Update(ctx context.Context, session domain.Session) error {
	return sqlitedb.Retry(ctx, func() error {
		res, err := sqlitedb.Conn(ctx, s.db).ExecContext(ctx, `
UPDATE mining_sessions
SET status = ?, end_time = ?, last_active_at = ?, paused_duration = ?, earnings_units = ?
WHERE id = ?`,
			string(session.Status),
			sqlitedb.NullableTime(session.EndTime),
			sqlitedb.FormatTime(session.LastActiveAt),
			session.PausedDuration,
			int64(session.Earnings),
			session.ID,
		)
		if err != nil {
			if sqlitedb.IsUniqueViolation(err) {
				return apperrors.ErrConflict
			}
			return fmt.Errorf("%w: update session: %v", apperrors.ErrStorageFailure, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("%w: update session rows: %v", apperrors.ErrStorageFailure, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: session %s", apperrors.ErrNotFound, session.ID)
		}
		return nil
	})
}

func (s *SQLiteSessionStore) FindOpen(ctx context.Context, userID string) (domain.Session, error) {
	row := sqlitedb.Conn(ctx, s.db).QueryRowContext(ctx, `
SELECT `+sessionColumns+` FROM mining_sessions
WHERE user_id = ? AND status IN ('active', 'paused')
ORDER BY start_time DESC LIMIT 1`, userID)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, apperrors.ErrNoActiveSession
	}
	return session, err
}

func (s *SQLiteSessionStore) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Session, error) {
	rows, err := sqlitedb.Conn(ctx, s.db).QueryContext(ctx, `
SELECT `+sessionColumns+` FROM mining_sessions
WHERE user_id = ?
ORDER BY start_time DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %v", apperrors.ErrStorageFailure, err)
	}
	defer rows.Close()

	out := []domain.Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate sessions: %v", apperrors.ErrStorageFailure, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.Session, error) {
	var (
		session      domain.Session
		status       string
		startTime    string
		endTime      sql.NullString
		lastActiveAt string
		earnings     int64
	)
	err := row.Scan(&session.ID, &session.UserID, &status, &startTime, &endTime, &lastActiveAt, &session.PausedDuration, &earnings, &session.Intensity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Session{}, err
		}
		return domain.Session{}, fmt.Errorf("%w: scan session: %v", apperrors.ErrStorageFailure, err)
	}
	if session.Status, err = domain.ParseStatus(status); err != nil {
		return domain.Session{}, fmt.Errorf("%w: %v", apperrors.ErrStorageFailure, err)
	}
	if session.StartTime, err = sqlitedb.ParseTime(startTime); err != nil {
		return domain.Session{}, fmt.Errorf("%w: %v", apperrors.ErrStorageFailure, err)
	}
	if session.LastActiveAt, err = sqlitedb.ParseTime(lastActiveAt); err != nil {
		return domain.Session{}, fmt.Errorf("%w: %v", apperrors.ErrStorageFailure, err)
	}
	if endTime.Valid {
		end, err := sqlitedb.ParseTime(endTime.String)
		if err != nil {
			return domain.Session{}, fmt.Errorf("%w: %v", apperrors.ErrStorageFailure, err)
		}
		session.EndTime = &end
	}
	session.Earnings = domain.Amount(earnings)
	return session, nil
}
