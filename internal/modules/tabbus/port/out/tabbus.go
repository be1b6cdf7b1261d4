package out

import (
	"context"

	"minesync/internal/modules/tabbus/domain"
)

// Transport moves messages between tabs. Subscribe channels close when ctx is done
// or the transport fails.
type Transport interface {
	Publish(ctx context.Context, msg domain.Message) error
	Subscribe(ctx context.Context, channel string) (<-chan domain.Message, error)
}
