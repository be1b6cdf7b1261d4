package out

import (
	"context"

	mirrorout "minesync/internal/modules/mirror/port/out"
	tabbusin "minesync/internal/modules/tabbus/port/in"
)

// TabBus carries encoded snapshots over the tab bus module.
type TabBus struct {
	bus tabbusin.Usecase
}

func NewTabBus(bus tabbusin.Usecase) mirrorout.Bus {
	return &TabBus{bus: bus}
}

func (b *TabBus) Publish(ctx context.Context, payload []byte) error {
	return b.bus.Publish(ctx, payload)
}

func (b *TabBus) Subscribe(ctx context.Context) (<-chan []byte, error) {
	in, err := b.bus.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan []byte, cap(in))
	go func() {
		defer close(out)
		for msg := range in {
			select {
			case out <- msg.Payload:
			default:
			}
		}
	}()
	return out, nil
}
