package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	tabbusout "minesync/internal/modules/tabbus/adapter/out"
	"minesync/internal/modules/tabbus/domain"
	"minesync/internal/modules/tabbus/service"
	apperrors "minesync/internal/platform/errors"
	"minesync/internal/platform/logging"
)

type fakeClock struct {
	now time.Time
}

func (f fakeClock) Now() time.Time { return f.now }

type brokenTransport struct{}

func (brokenTransport) Publish(context.Context, domain.Message) error {
	return errors.New("socket missing")
}

func (brokenTransport) Subscribe(context.Context, string) (<-chan domain.Message, error) {
	return nil, errors.New("socket missing")
}

func receive(t *testing.T, ch <-chan domain.Message) domain.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for message")
		return domain.Message{}
	}
}

func TestBroadcasterSkipsOwnMessages(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := tabbusout.NewMemoryHub()
	clk := fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	tabA := service.NewBroadcaster("tab-a", hub, clk, logging.Discard())
	tabB := service.NewBroadcaster("tab-b", hub, clk, logging.Discard())

	inboxA, err := tabA.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	inboxB, err := tabB.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe b: %v", err)
	}

	if err := tabA.Publish(ctx, []byte(`{"status":"active"}`)); err != nil {
		t.Fatalf("publish a: %v", err)
	}
	if err := tabB.Publish(ctx, []byte(`{"status":"paused"}`)); err != nil {
		t.Fatalf("publish b: %v", err)
	}

	gotB := receive(t, inboxB)
	if gotB.Origin != "tab-a" || string(gotB.Payload) != `{"status":"active"}` || gotB.Channel != domain.Channel {
		t.Fatalf("unexpected message at b: %+v", gotB)
	}
	gotA := receive(t, inboxA)
	if gotA.Origin != "tab-b" {
		t.Fatalf("tab a must only see tab b, got %+v", gotA)
	}
	select {
	case extra := <-inboxA:
		t.Fatalf("tab a received its own message: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
	if tabA.Published() != 1 || tabA.Failures() != 0 {
		t.Fatalf("unexpected counters: published=%d failures=%d", tabA.Published(), tabA.Failures())
	}
}

func TestBroadcasterFailuresAreCountedAndTyped(t *testing.T) {
	t.Parallel()
	b := service.NewBroadcaster("tab-a", brokenTransport{}, nil, logging.Discard())

	if err := b.Publish(context.Background(), []byte(`{}`)); !errors.Is(err, apperrors.ErrBroadcastUnavailable) {
		t.Fatalf("expected broadcast unavailable, got %v", err)
	}
	if _, err := b.Subscribe(context.Background()); !errors.Is(err, apperrors.ErrBroadcastUnavailable) {
		t.Fatalf("expected broadcast unavailable on subscribe, got %v", err)
	}
	if b.Failures() != 2 {
		t.Fatalf("expected two failures, got %d", b.Failures())
	}
	if err := b.Publish(context.Background(), []byte(`not json`)); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input for malformed payload, got %v", err)
	}
}

func TestLateSubscriberSeesNoReplay(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := tabbusout.NewMemoryHub()
	tabA := service.NewBroadcaster("tab-a", hub, nil, logging.Discard())
	tabB := service.NewBroadcaster("tab-b", hub, nil, logging.Discard())

	if err := tabA.Publish(ctx, []byte(`{"n":1}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	inbox, err := tabB.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	select {
	case msg := <-inbox:
		t.Fatalf("late subscriber must not see earlier message, got %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
