package in

import (
	"context"

	"minesync/internal/modules/tabbus/dto"
)

// Usecase is one tab's view of the bus. Messages published by the same tab are never
// delivered back to it.
type Usecase interface {
	Publish(ctx context.Context, payload []byte) error
	Subscribe(ctx context.Context) (<-chan dto.Message, error)
	Stats() dto.Stats
}

// Hub relays messages between every tab attached to it.
type Hub interface {
	Relay(ctx context.Context, msg dto.Message) error
	Attach(ctx context.Context, channel string) (<-chan dto.Message, error)
}
