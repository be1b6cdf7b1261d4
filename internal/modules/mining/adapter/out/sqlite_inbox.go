package out

import (
	"context"
	"database/sql"
	"fmt"

	"minesync/internal/modules/mining/domain"
	miningout "minesync/internal/modules/mining/port/out"
	apperrors "minesync/internal/platform/errors"
	"minesync/internal/platform/id"
	"minesync/internal/platform/sqlitedb"
)

// SQLiteInbox stores emitted notifications for the user to read later.
type SQLiteInbox struct {
	db    *sql.DB
	idGen id.Generator
}

func NewSQLiteInbox(ctx context.Context, db *sql.DB, idGen id.Generator) (miningout.Inbox, error) {
	in := &SQLiteInbox{db: db, idGen: idGen}
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  type TEXT NOT NULL,
  title TEXT NOT NULL,
  message TEXT NOT NULL,
  is_read INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at);
`)
	if err != nil {
		return nil, fmt.Errorf("%w: ensure notifications schema: %v", apperrors.ErrStorageFailure, err)
	}
	return in, nil
}

func (s *SQLiteInbox) Emit(ctx context.Context, n domain.Notification) error {
	if n.ID == "" {
		n.ID = s.idGen.New()
	}
	return sqlitedb.Retry(ctx, func() error {
		_, err := sqlitedb.Conn(ctx, s.db).ExecContext(ctx, `
INSERT INTO notifications(id, user_id, type, title, message, is_read, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
			n.ID, n.UserID, string(n.Type), n.Title, n.Message, boolToInt(n.IsRead), sqlitedb.FormatTime(n.CreatedAt))
		if err != nil {
			return fmt.Errorf("%w: insert notification: %v", apperrors.ErrStorageFailure, err)
		}
		return nil
	})
}

func (s *SQLiteInbox) List(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error) {
	query := `SELECT id, user_id, type, title, message, is_read, created_at FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC`
	rows, err := sqlitedb.Conn(ctx, s.db).QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list notifications: %v", apperrors.ErrStorageFailure, err)
	}
	defer rows.Close()

	out := []domain.Notification{}
	for rows.Next() {
		var (
			n         domain.Notification
			typ       string
			isRead    int
			createdAt string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &typ, &n.Title, &n.Message, &isRead, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: scan notification: %v", apperrors.ErrStorageFailure, err)
		}
		n.Type = domain.NotificationType(typ)
		n.IsRead = isRead != 0
		if n.CreatedAt, err = sqlitedb.ParseTime(createdAt); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrStorageFailure, err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate notifications: %v", apperrors.ErrStorageFailure, err)
	}
	return out, nil
}

func (s *SQLiteInbox) MarkRead(ctx context.Context, userID, notificationID string) error {
	return sqlitedb.Retry(ctx, func() error {
		res, err := sqlitedb.Conn(ctx, s.db).ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`, notificationID, userID)
		if err != nil {
			return fmt.Errorf("%w: mark notification read: %v", apperrors.ErrStorageFailure, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: notification %s", apperrors.ErrNotFound, notificationID)
		}
		return nil
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
