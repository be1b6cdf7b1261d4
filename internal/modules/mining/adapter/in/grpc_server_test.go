package in_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	miningrpc "minesync/internal/modules/mining/adapter/in"
	miningdto "minesync/internal/modules/mining/dto"
	apperrors "minesync/internal/platform/errors"
	"minesync/internal/platform/logging"
	"minesync/internal/rpc/lifecycle"
)

type fakeUsecase struct {
	started  time.Time
	lastUser string
	lastKey  string
	stopErr  error
}

func (f *fakeUsecase) Start(_ context.Context, input miningdto.StartInput) (miningdto.SessionOutput, error) {
	f.lastUser = input.UserID
	f.lastKey = input.IdempotencyKey
	if input.UserID == "busy" {
		return miningdto.SessionOutput{}, apperrors.ErrConflict
	}
	return miningdto.SessionOutput{ID: "sess-1", UserID: input.UserID, Status: "active", StartTime: f.started, LastActiveAt: f.started, Earnings: "0.00000000", Intensity: 50}, nil
}

func (f *fakeUsecase) Pause(context.Context, miningdto.SessionInput) (miningdto.AckOutput, error) {
	return miningdto.AckOutput{Success: true}, nil
}

func (f *fakeUsecase) Resume(context.Context, miningdto.SessionInput) (miningdto.ResumeOutput, error) {
	return miningdto.ResumeOutput{Success: true, PausedDuration: 12}, nil
}

func (f *fakeUsecase) Stop(_ context.Context, input miningdto.SessionInput) (miningdto.StopOutput, error) {
	if f.stopErr != nil {
		return miningdto.StopOutput{}, f.stopErr
	}
	return miningdto.StopOutput{Success: true, SessionID: input.SessionID, ActiveDuration: 30, Earnings: "0.00000030", Balance: "0.00000030"}, nil
}

func (f *fakeUsecase) GetActive(context.Context, string) (miningdto.ActiveOutput, error) {
	return miningdto.ActiveOutput{}, nil
}

func (f *fakeUsecase) ListSessions(context.Context, miningdto.ListInput) ([]miningdto.SessionOutput, error) {
	return []miningdto.SessionOutput{{ID: "sess-1", StartTime: f.started, LastActiveAt: f.started}}, nil
}

func dialLifecycle(t *testing.T, uc *fakeUsecase) lifecycle.LifecycleClient {
	t.Helper()
	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	lifecycle.RegisterLifecycleServer(server, miningrpc.NewGRPCServer(uc, logging.Discard()))
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return listener.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return lifecycle.NewLifecycleClient(conn)
}

func TestGRPCServerCarriesIdentityAndTimes(t *testing.T) {
	t.Parallel()
	started := time.Date(2026, 3, 1, 9, 0, 0, 500_000_000, time.UTC)
	uc := &fakeUsecase{started: started}
	client := dialLifecycle(t, uc)
	ctx := lifecycle.WithUser(context.Background(), "alice")

	session, err := client.Start(ctx, &lifecycle.StartRequest{IdempotencyKey: "k-1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if uc.lastUser != "alice" || uc.lastKey != "k-1" {
		t.Fatalf("expected identity and key to reach usecase, got %q %q", uc.lastUser, uc.lastKey)
	}
	parsed, err := time.Parse(time.RFC3339Nano, session.StartTime)
	if err != nil || !parsed.Equal(started) {
		t.Fatalf("expected start time %s, got %s (%v)", started, session.StartTime, err)
	}
	if session.EndTime != "" {
		t.Fatalf("open session must not carry end time, got %q", session.EndTime)
	}

	resumed, err := client.Resume(ctx, &lifecycle.SessionRequest{SessionID: "sess-1"})
	if err != nil || resumed.PausedDuration != 12 {
		t.Fatalf("unexpected resume: %+v err=%v", resumed, err)
	}
	active, err := client.GetActive(ctx)
	if err != nil || active.Session != nil {
		t.Fatalf("expected empty active response, got %+v err=%v", active, err)
	}
	list, err := client.ListSessions(ctx, &lifecycle.ListRequest{})
	if err != nil || len(list.Sessions) != 1 {
		t.Fatalf("expected one session, got %+v err=%v", list, err)
	}
}

func TestGRPCServerMapsErrorsToStatus(t *testing.T) {
	t.Parallel()
	uc := &fakeUsecase{stopErr: apperrors.ErrInvalidState}
	client := dialLifecycle(t, uc)

	_, err := client.Start(lifecycle.WithUser(context.Background(), "busy"), &lifecycle.StartRequest{})
	if status.Code(err) != codes.AlreadyExists {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
	if !errors.Is(lifecycle.FromStatus(err), apperrors.ErrConflict) {
		t.Fatalf("expected conflict after decoding status, got %v", lifecycle.FromStatus(err))
	}

	_, err = client.Stop(lifecycle.WithUser(context.Background(), "alice"), &lifecycle.SessionRequest{SessionID: "sess-1"})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %v", err)
	}

	_, err = client.Pause(context.Background(), &lifecycle.SessionRequest{SessionID: "sess-1"})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated without identity, got %v", err)
	}
}
