package in_test

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	tabbusin "minesync/internal/modules/tabbus/adapter/in"
	tabbusout "minesync/internal/modules/tabbus/adapter/out"
	"minesync/internal/modules/tabbus/domain"
	"minesync/internal/modules/tabbus/usecase"
	"minesync/internal/platform/logging"
	"minesync/internal/rpc/tabbus"
)

func TestHubRelaysBetweenTabsOverGRPC(t *testing.T) {
	t.Parallel()
	listener := bufconn.Listen(1 << 20)
	hub := tabbusout.NewMemoryHub()
	server := grpc.NewServer()
	tabbus.RegisterHubServer(server, tabbusin.NewGRPCHubServer(usecase.NewHubInteractor(hub)))
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	dial := func() *tabbusout.GRPCHubTransport {
		conn, err := grpc.NewClient("passthrough:///hub",
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return listener.DialContext(ctx) }),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		transport := tabbusout.NewGRPCHubTransport(conn, logging.Discard())
		t.Cleanup(func() { _ = transport.Close() })
		return transport
	}
	sender := dial()
	receiver := dial()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inbox, err := receiver.Subscribe(ctx, domain.Channel)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscription never reached the hub")
		}
		time.Sleep(5 * time.Millisecond)
	}

	sent := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	msg, err := domain.NewMessage("tab-a", []byte(`{"sessionId":"s-1","status":"active"}`), sent)
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	if err := sender.Publish(ctx, msg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-inbox:
		if got.Origin != "tab-a" || string(got.Payload) != string(msg.Payload) || !got.SentAt.Equal(sent) {
			t.Fatalf("unexpected relayed message: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for relayed message")
	}
}
