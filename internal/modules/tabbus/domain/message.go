package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "minesync/internal/platform/errors"
)

// Channel is the single broadcast channel session snapshots travel on.
const Channel = "mining_sync"

// Message is one best-effort broadcast. Consumers treat every payload as a full replacement.
type Message struct {
	Channel string
	Origin  string
	Payload json.RawMessage
	SentAt  time.Time
}

func NewMessage(origin string, payload []byte, now time.Time) (Message, error) {
	if strings.TrimSpace(origin) == "" {
		return Message{}, fmt.Errorf("%w: message origin is required", apperrors.ErrInvalidInput)
	}
	if !json.Valid(payload) {
		return Message{}, fmt.Errorf("%w: payload is not valid json", apperrors.ErrInvalidInput)
	}
	return Message{Channel: Channel, Origin: origin, Payload: json.RawMessage(payload), SentAt: now}, nil
}

// DeliverTo reports whether a subscriber with the given origin should see m.
func (m Message) DeliverTo(channel, origin string) bool {
	return m.Channel == channel && m.Origin != origin
}
