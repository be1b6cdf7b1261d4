package out

import (
	"context"

	"minesync/internal/modules/mirror/domain"
)

type StopResult struct {
	SessionID      string
	ActiveDuration int64
	Earnings       string
}

// Lifecycle is the authoritative session service as seen from one tab. Every mutating call
// carries an idempotency key the server deduplicates on.
type Lifecycle interface {
	Start(ctx context.Context, key string) (domain.ServerSession, error)
	Pause(ctx context.Context, sessionID, key string) error
	Resume(ctx context.Context, sessionID, key string) (int64, error)
	Stop(ctx context.Context, sessionID, key string) (StopResult, error)
	Active(ctx context.Context) (*domain.ServerSession, error)
}

type SnapshotStore interface {
	Load(ctx context.Context) (domain.Snapshot, bool, error)
	Save(ctx context.Context, snapshot domain.Snapshot) error
}

// Bus carries encoded snapshots between tabs. Delivery is best effort.
type Bus interface {
	Publish(ctx context.Context, payload []byte) error
	Subscribe(ctx context.Context) (<-chan []byte, error)
}

type NoticeSink interface {
	Notify(ctx context.Context, notice domain.Notice) error
}
