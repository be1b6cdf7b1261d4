package out

import (
	"context"
	"fmt"
	"sync"

	"minesync/internal/modules/tabbus/domain"
	tabbusout "minesync/internal/modules/tabbus/port/out"
	apperrors "minesync/internal/platform/errors"
)

const memoryBuffer = 32

// MemoryHub fans every message out to all current subscribers of its channel. There is no
// replay; a subscriber sees only what is published after it subscribed.
type MemoryHub struct {
	mu     sync.Mutex
	next   int
	subs   map[int]subscriber
	closed bool
}

type subscriber struct {
	channel string
	ch      chan domain.Message
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{subs: map[int]subscriber{}}
}

var _ tabbusout.Transport = (*MemoryHub)(nil)

func (h *MemoryHub) Publish(_ context.Context, msg domain.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("%w: hub closed", apperrors.ErrBroadcastUnavailable)
	}
	for _, sub := range h.subs {
		if sub.channel != msg.Channel {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
		}
	}
	return nil
}

func (h *MemoryHub) Subscribe(ctx context.Context, channel string) (<-chan domain.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, fmt.Errorf("%w: hub closed", apperrors.ErrBroadcastUnavailable)
	}
	key := h.next
	h.next++
	sub := subscriber{channel: channel, ch: make(chan domain.Message, memoryBuffer)}
	h.subs[key] = sub

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		defer h.mu.Unlock()
		if s, ok := h.subs[key]; ok {
			delete(h.subs, key)
			close(s.ch)
		}
	}()
	return sub.ch, nil
}

func (h *MemoryHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription.
func (h *MemoryHub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for key, sub := range h.subs {
		delete(h.subs, key)
		close(sub.ch)
	}
	return nil
}
