package usecase

import (
	"context"

	"minesync/internal/modules/tabbus/domain"
	tabbusdto "minesync/internal/modules/tabbus/dto"
	tabbusin "minesync/internal/modules/tabbus/port/in"
	tabbusout "minesync/internal/modules/tabbus/port/out"
	"minesync/internal/modules/tabbus/service"
)

type Interactor struct {
	svc *service.Broadcaster
}

func NewInteractor(svc *service.Broadcaster) tabbusin.Usecase {
	return &Interactor{svc: svc}
}

func (i *Interactor) Publish(ctx context.Context, payload []byte) error {
	return i.svc.Publish(ctx, payload)
}

func (i *Interactor) Subscribe(ctx context.Context) (<-chan tabbusdto.Message, error) {
	in, err := i.svc.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	return relay(in), nil
}

func (i *Interactor) Stats() tabbusdto.Stats {
	return tabbusdto.Stats{Origin: i.svc.Origin(), Published: i.svc.Published(), Failures: i.svc.Failures()}
}

// HubInteractor serves the hub process: it relays every message to every attached tab and
// leaves origin filtering to the receiving broadcaster.
type HubInteractor struct {
	transport tabbusout.Transport
}

func NewHubInteractor(transport tabbusout.Transport) tabbusin.Hub {
	return &HubInteractor{transport: transport}
}

func (h *HubInteractor) Relay(ctx context.Context, msg tabbusdto.Message) error {
	channel := msg.Channel
	if channel == "" {
		channel = domain.Channel
	}
	return h.transport.Publish(ctx, domain.Message{
		Channel: channel,
		Origin:  msg.Origin,
		Payload: msg.Payload,
		SentAt:  msg.SentAt,
	})
}

func (h *HubInteractor) Attach(ctx context.Context, channel string) (<-chan tabbusdto.Message, error) {
	if channel == "" {
		channel = domain.Channel
	}
	in, err := h.transport.Subscribe(ctx, channel)
	if err != nil {
		return nil, err
	}
	return relay(in), nil
}

func relay(in <-chan domain.Message) <-chan tabbusdto.Message {
	out := make(chan tabbusdto.Message, cap(in))
	go func() {
		defer close(out)
		for msg := range in {
			select {
			case out <- toDTO(msg):
			default:
			}
		}
	}()
	return out
}

func toDTO(msg domain.Message) tabbusdto.Message {
	return tabbusdto.Message{Channel: msg.Channel, Origin: msg.Origin, Payload: []byte(msg.Payload), SentAt: msg.SentAt}
}
