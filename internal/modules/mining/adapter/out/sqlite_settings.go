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

type SQLiteSettings struct {
	db       *sql.DB
	fallback int
}

func NewSQLiteSettings(ctx context.Context, db *sql.DB, defaultIntensity int) (miningout.Settings, error) {
	if defaultIntensity < domain.MinIntensity || defaultIntensity > domain.MaxIntensity {
		defaultIntensity = domain.DefaultIntensity
	}
	s := &SQLiteSettings{db: db, fallback: defaultIntensity}
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS user_settings (
  user_id TEXT PRIMARY KEY,
  mining_intensity INTEGER NOT NULL DEFAULT 50
);
`)
	if err != nil {
		return nil, fmt.Errorf("%w: ensure settings schema: %v", apperrors.ErrStorageFailure, err)
	}
	return s, nil
}

func (s *SQLiteSettings) Intensity(ctx context.Context, userID string) (int, error) {
	var intensity int
	err := sqlitedb.Conn(ctx, s.db).QueryRowContext(ctx, `SELECT mining_intensity FROM user_settings WHERE user_id = ?`, userID).Scan(&intensity)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && intensity == 0) {
		return s.fallback, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: read settings: %v", apperrors.ErrStorageFailure, err)
	}
	return intensity, nil
}

func (s *SQLiteSettings) SetIntensity(ctx context.Context, userID string, intensity int) error {
	return sqlitedb.Retry(ctx, func() error {
		_, err := sqlitedb.Conn(ctx, s.db).ExecContext(ctx, `
INSERT INTO user_settings(user_id, mining_intensity) VALUES (?, ?)
ON CONFLICT(user_id) DO UPDATE SET mining_intensity = excluded.mining_intensity`, userID, intensity)
		if err != nil {
			return fmt.Errorf("%w: write settings: %v", apperrors.ErrStorageFailure, err)
		}
		return nil
	})
}
