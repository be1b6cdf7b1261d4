package out

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"minesync/internal/modules/mining/domain"
	miningout "minesync/internal/modules/mining/port/out"
	"minesync/internal/platform/id"
	"minesync/internal/platform/markdown"
	"minesync/internal/platform/slug"
)

// MarkdownReceiptStore writes one settlement receipt per stopped session,
// laid out as receipts/YYYY/MM/DD/<hhmmss>-<user>-<short id>.md.
type MarkdownReceiptStore struct {
	dir string
}

type receiptMeta struct {
	SchemaVersion  int    `yaml:"schema_version"`
	SessionID      string `yaml:"session_id"`
	UserID         string `yaml:"user_id"`
	StartedAt      string `yaml:"started_at"`
	EndedAt        string `yaml:"ended_at"`
	ActiveSeconds  int64  `yaml:"active_seconds"`
	PausedSeconds  int64  `yaml:"paused_seconds"`
	ElapsedSeconds int64  `yaml:"elapsed_seconds"`
	Intensity      int    `yaml:"intensity"`
	Earnings       string `yaml:"earnings"`
	BalanceAfter   string `yaml:"balance_after"`
}

func NewMarkdownReceiptStore(dir string) miningout.ReceiptWriter {
	return &MarkdownReceiptStore{dir: dir}
}

func (s *MarkdownReceiptStore) Write(_ context.Context, receipt domain.Receipt) (string, error) {
	session := receipt.Session
	if session.EndTime == nil {
		return "", fmt.Errorf("receipt requires a stopped session")
	}
	ended := session.EndTime.UTC()
	dir := filepath.Join(s.dir, ended.Format("2006"), ended.Format("01"), ended.Format("02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create receipt dir: %w", err)
	}
	name := fmt.Sprintf("%s-%s-%s.md", ended.Format("150405"), slug.Make(session.UserID, "user"), id.Short(session.ID))
	path := filepath.Join(dir, name)

	meta := receiptMeta{
		SchemaVersion:  domain.SchemaVersion,
		SessionID:      session.ID,
		UserID:         session.UserID,
		StartedAt:      session.StartTime.UTC().Format(time.RFC3339),
		EndedAt:        ended.Format(time.RFC3339),
		ActiveSeconds:  receipt.Settlement.ActiveDuration,
		PausedSeconds:  receipt.Settlement.PausedDuration,
		ElapsedSeconds: receipt.Settlement.TotalElapsed,
		Intensity:      session.Intensity,
		Earnings:       receipt.Settlement.Earnings.String(),
		BalanceAfter:   receipt.Balance.String(),
	}
	body := fmt.Sprintf("# Mining session %s\n\n- Active: %s\n- Paused: %s\n- Earned: %s BTC\n",
		id.Short(session.ID),
		formatSeconds(receipt.Settlement.ActiveDuration),
		formatSeconds(receipt.Settlement.PausedDuration),
		receipt.Settlement.Earnings.String(),
	)
	rendered, err := markdown.Render(meta, body)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, rendered, 0o644); err != nil {
		return "", fmt.Errorf("write receipt: %w", err)
	}
	return path, nil
}

func (s *MarkdownReceiptStore) List(_ context.Context, userID string) ([]miningout.ReceiptRef, error) {
	out := []miningout.ReceiptRef{}
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == s.dir {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read receipt: %w", err)
		}
		var meta receiptMeta
		if _, err := markdown.Decode(raw, &meta); err != nil {
			if errors.Is(err, markdown.ErrNoFrontmatter) {
				return nil
			}
			return fmt.Errorf("parse receipt %s: %w", path, err)
		}
		if meta.UserID != userID {
			return nil
		}
		out = append(out, miningout.ReceiptRef{
			SessionID: meta.SessionID,
			Path:      path,
			Earnings:  meta.Earnings,
			EndedAt:   meta.EndedAt,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path > out[j].Path })
	return out, nil
}

func formatSeconds(total int64) string {
	return (time.Duration(total) * time.Second).String()
}
