package service

import (
	"context"
	"fmt"
	"sync/atomic"

	hclog "github.com/hashicorp/go-hclog"

	"minesync/internal/modules/tabbus/domain"
	tabbusout "minesync/internal/modules/tabbus/port/out"
	"minesync/internal/platform/clock"
	apperrors "minesync/internal/platform/errors"
	"minesync/internal/platform/logging"
)

const subscriberBuffer = 32

// Broadcaster publishes on behalf of one tab and filters that tab's own messages out of
// its subscription. Transport failures are counted and surfaced as ErrBroadcastUnavailable.
type Broadcaster struct {
	origin    string
	transport tabbusout.Transport
	clock     clock.Clock
	logger    hclog.Logger

	published atomic.Int64
	failures  atomic.Int64
}

func NewBroadcaster(origin string, transport tabbusout.Transport, clk clock.Clock, logger hclog.Logger) *Broadcaster {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Broadcaster{
		origin:    origin,
		transport: transport,
		clock:     clk,
		logger:    logging.OrDiscard(logger).Named("tabbus").With("origin", origin),
	}
}

func (b *Broadcaster) Origin() string { return b.origin }

func (b *Broadcaster) Publish(ctx context.Context, payload []byte) error {
	msg, err := domain.NewMessage(b.origin, payload, b.clock.Now())
	if err != nil {
		return err
	}
	if b.transport == nil {
		return b.unavailable("publish", fmt.Errorf("no transport"))
	}
	if err := b.transport.Publish(ctx, msg); err != nil {
		return b.unavailable("publish", err)
	}
	b.published.Add(1)
	return nil
}

// Subscribe delivers messages from other tabs on the session channel. A full buffer drops
// the message rather than blocking the transport.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan domain.Message, error) {
	if b.transport == nil {
		return nil, b.unavailable("subscribe", fmt.Errorf("no transport"))
	}
	in, err := b.transport.Subscribe(ctx, domain.Channel)
	if err != nil {
		return nil, b.unavailable("subscribe", err)
	}
	out := make(chan domain.Message, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range in {
			if !msg.DeliverTo(domain.Channel, b.origin) {
				continue
			}
			select {
			case out <- msg:
			default:
				b.logger.Debug("subscriber behind, dropping message", "from", msg.Origin)
			}
		}
	}()
	return out, nil
}

func (b *Broadcaster) Published() int64 { return b.published.Load() }

func (b *Broadcaster) Failures() int64 { return b.failures.Load() }

func (b *Broadcaster) unavailable(op string, err error) error {
	b.failures.Add(1)
	b.logger.Warn("tab bus "+op+" failed", "error", err, "failures", b.failures.Load())
	return fmt.Errorf("%w: %s: %v", apperrors.ErrBroadcastUnavailable, op, err)
}
