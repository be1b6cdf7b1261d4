package in

import (
	"context"
	"time"

	hclog "github.com/hashicorp/go-hclog"

	miningdto "minesync/internal/modules/mining/dto"
	miningin "minesync/internal/modules/mining/port/in"
	"minesync/internal/platform/logging"
	"minesync/internal/rpc/lifecycle"
)

// GRPCServer exposes the lifecycle usecase to tabs.
type GRPCServer struct {
	usecase miningin.Usecase
	logger  hclog.Logger
}

func NewGRPCServer(usecase miningin.Usecase, logger hclog.Logger) *GRPCServer {
	return &GRPCServer{usecase: usecase, logger: logging.OrDiscard(logger).Named("grpc")}
}

var _ lifecycle.LifecycleServer = (*GRPCServer)(nil)

func (s *GRPCServer) Start(ctx context.Context, in *lifecycle.StartRequest) (*lifecycle.Session, error) {
	userID, err := lifecycle.UserFromContext(ctx)
	if err != nil {
		return nil, err
	}
	out, err := s.usecase.Start(ctx, miningdto.StartInput{UserID: userID, IdempotencyKey: in.IdempotencyKey})
	if err != nil {
		return nil, s.fail("start", userID, err)
	}
	session := toWireSession(out)
	return &session, nil
}

func (s *GRPCServer) Pause(ctx context.Context, in *lifecycle.SessionRequest) (*lifecycle.AckResponse, error) {
	userID, err := lifecycle.UserFromContext(ctx)
	if err != nil {
		return nil, err
	}
	out, err := s.usecase.Pause(ctx, sessionInput(userID, in))
	if err != nil {
		return nil, s.fail("pause", userID, err)
	}
	return &lifecycle.AckResponse{Success: out.Success}, nil
}

func (s *GRPCServer) Resume(ctx context.Context, in *lifecycle.SessionRequest) (*lifecycle.ResumeResponse, error) {
	userID, err := lifecycle.UserFromContext(ctx)
	if err != nil {
		return nil, err
	}
	out, err := s.usecase.Resume(ctx, sessionInput(userID, in))
	if err != nil {
		return nil, s.fail("resume", userID, err)
	}
	return &lifecycle.ResumeResponse{Success: out.Success, PausedDuration: out.PausedDuration}, nil
}

func (s *GRPCServer) Stop(ctx context.Context, in *lifecycle.SessionRequest) (*lifecycle.StopResponse, error) {
	userID, err := lifecycle.UserFromContext(ctx)
	if err != nil {
		return nil, err
	}
	out, err := s.usecase.Stop(ctx, sessionInput(userID, in))
	if err != nil {
		return nil, s.fail("stop", userID, err)
	}
	return &lifecycle.StopResponse{
		Success:        out.Success,
		SessionID:      out.SessionID,
		ActiveDuration: out.ActiveDuration,
		PausedDuration: out.PausedDuration,
		Earnings:       out.Earnings,
		Balance:        out.Balance,
	}, nil
}

func (s *GRPCServer) GetActive(ctx context.Context, _ *lifecycle.Empty) (*lifecycle.ActiveResponse, error) {
	userID, err := lifecycle.UserFromContext(ctx)
	if err != nil {
		return nil, err
	}
	out, err := s.usecase.GetActive(ctx, userID)
	if err != nil {
		return nil, s.fail("get active", userID, err)
	}
	if out.Session == nil {
		return &lifecycle.ActiveResponse{}, nil
	}
	session := toWireSession(*out.Session)
	return &lifecycle.ActiveResponse{Session: &session}, nil
}

func (s *GRPCServer) ListSessions(ctx context.Context, in *lifecycle.ListRequest) (*lifecycle.ListResponse, error) {
	userID, err := lifecycle.UserFromContext(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.usecase.ListSessions(ctx, miningdto.ListInput{UserID: userID, Limit: in.Limit})
	if err != nil {
		return nil, s.fail("list sessions", userID, err)
	}
	out := &lifecycle.ListResponse{Sessions: make([]lifecycle.Session, 0, len(items))}
	for _, item := range items {
		out.Sessions = append(out.Sessions, toWireSession(item))
	}
	return out, nil
}

func (s *GRPCServer) fail(op, userID string, err error) error {
	s.logger.Debug("lifecycle call failed", "op", op, "user", userID, "error", err)
	return lifecycle.ToStatus(err)
}

func sessionInput(userID string, in *lifecycle.SessionRequest) miningdto.SessionInput {
	return miningdto.SessionInput{UserID: userID, SessionID: in.SessionID, IdempotencyKey: in.IdempotencyKey}
}

func toWireSession(out miningdto.SessionOutput) lifecycle.Session {
	session := lifecycle.Session{
		ID:             out.ID,
		UserID:         out.UserID,
		Status:         out.Status,
		StartTime:      out.StartTime.UTC().Format(time.RFC3339Nano),
		LastActiveAt:   out.LastActiveAt.UTC().Format(time.RFC3339Nano),
		PausedDuration: out.PausedDuration,
		Earnings:       out.Earnings,
		Intensity:      out.Intensity,
	}
	if out.EndTime != nil {
		session.EndTime = out.EndTime.UTC().Format(time.RFC3339Nano)
	}
	return session
}
