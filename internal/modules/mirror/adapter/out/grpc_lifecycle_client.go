package out

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"minesync/internal/modules/mirror/domain"
	mirrorout "minesync/internal/modules/mirror/port/out"
	"minesync/internal/rpc/lifecycle"
)

const callTimeout = 10 * time.Second

// GRPCLifecycle calls the lifecycle server on behalf of one user.
type GRPCLifecycle struct {
	client lifecycle.LifecycleClient
	userID string
}

func NewGRPCLifecycle(conn grpc.ClientConnInterface, userID string) *GRPCLifecycle {
	return &GRPCLifecycle{client: lifecycle.NewLifecycleClient(conn), userID: userID}
}

// DialLifecycle opens a plaintext connection; the server only listens on loopback.
func DialLifecycle(addr string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial lifecycle server %s: %w", addr, err)
	}
	return conn, nil
}

var _ mirrorout.Lifecycle = (*GRPCLifecycle)(nil)

func (c *GRPCLifecycle) Start(ctx context.Context, key string) (domain.ServerSession, error) {
	ctx, cancel := c.call(ctx)
	defer cancel()
	session, err := c.client.Start(ctx, &lifecycle.StartRequest{IdempotencyKey: key})
	if err != nil {
		return domain.ServerSession{}, lifecycle.FromStatus(err)
	}
	return fromWire(*session)
}

func (c *GRPCLifecycle) Pause(ctx context.Context, sessionID, key string) error {
	ctx, cancel := c.call(ctx)
	defer cancel()
	if _, err := c.client.Pause(ctx, &lifecycle.SessionRequest{SessionID: sessionID, IdempotencyKey: key}); err != nil {
		return lifecycle.FromStatus(err)
	}
	return nil
}

func (c *GRPCLifecycle) Resume(ctx context.Context, sessionID, key string) (int64, error) {
	ctx, cancel := c.call(ctx)
	defer cancel()
	out, err := c.client.Resume(ctx, &lifecycle.SessionRequest{SessionID: sessionID, IdempotencyKey: key})
	if err != nil {
		return 0, lifecycle.FromStatus(err)
	}
	return out.PausedDuration, nil
}

func (c *GRPCLifecycle) Stop(ctx context.Context, sessionID, key string) (mirrorout.StopResult, error) {
	ctx, cancel := c.call(ctx)
	defer cancel()
	out, err := c.client.Stop(ctx, &lifecycle.SessionRequest{SessionID: sessionID, IdempotencyKey: key})
	if err != nil {
		return mirrorout.StopResult{}, lifecycle.FromStatus(err)
	}
	return mirrorout.StopResult{SessionID: out.SessionID, ActiveDuration: out.ActiveDuration, Earnings: out.Earnings}, nil
}

func (c *GRPCLifecycle) Active(ctx context.Context) (*domain.ServerSession, error) {
	ctx, cancel := c.call(ctx)
	defer cancel()
	out, err := c.client.GetActive(ctx)
	if err != nil {
		return nil, lifecycle.FromStatus(err)
	}
	if out.Session == nil {
		return nil, nil
	}
	session, err := fromWire(*out.Session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *GRPCLifecycle) call(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = lifecycle.WithUser(ctx, c.userID)
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, callTimeout)
}

func fromWire(s lifecycle.Session) (domain.ServerSession, error) {
	start, err := time.Parse(time.RFC3339Nano, s.StartTime)
	if err != nil {
		return domain.ServerSession{}, fmt.Errorf("parse start time: %w", err)
	}
	lastActive, err := time.Parse(time.RFC3339Nano, s.LastActiveAt)
	if err != nil {
		return domain.ServerSession{}, fmt.Errorf("parse last active time: %w", err)
	}
	return domain.ServerSession{
		ID:             s.ID,
		Status:         s.Status,
		StartTime:      start,
		LastActiveAt:   lastActive,
		PausedDuration: s.PausedDuration,
	}, nil
}
