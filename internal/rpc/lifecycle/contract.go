package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"minesync/internal/platform/rpccodec"
)

const (
	serviceName        = "minesync.lifecycle.v1.Lifecycle"
	methodStart        = "/" + serviceName + "/Start"
	methodPause        = "/" + serviceName + "/Pause"
	methodResume       = "/" + serviceName + "/Resume"
	methodStop         = "/" + serviceName + "/Stop"
	methodGetActive    = "/" + serviceName + "/GetActive"
	methodListSessions = "/" + serviceName + "/ListSessions"

	// UserMetadataKey carries the caller identity resolved by the identity collaborator.
	UserMetadataKey = "x-user-id"
)

type Empty struct{}

type Session struct {
	ID             string `json:"id"`
	UserID         string `json:"userId"`
	Status         string `json:"status"`
	StartTime      string `json:"startTime"`
	EndTime        string `json:"endTime,omitempty"`
	LastActiveAt   string `json:"lastActiveAt"`
	PausedDuration int64  `json:"pausedDuration"`
	Earnings       string `json:"earnings"`
	Intensity      int    `json:"intensity"`
}

type StartRequest struct {
	IdempotencyKey string `json:"idempotencyKey"`
}

type SessionRequest struct {
	SessionID      string `json:"sessionId"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type AckResponse struct {
	Success bool `json:"success"`
}

type ResumeResponse struct {
	Success        bool  `json:"success"`
	PausedDuration int64 `json:"pausedDuration"`
}

type StopResponse struct {
	Success        bool   `json:"success"`
	SessionID      string `json:"sessionId"`
	ActiveDuration int64  `json:"activeDuration"`
	PausedDuration int64  `json:"pausedDuration"`
	Earnings       string `json:"earnings"`
	Balance        string `json:"balance"`
}

type ActiveResponse struct {
	Session *Session `json:"session"`
}

type ListRequest struct {
	Limit int `json:"limit"`
}

type ListResponse struct {
	Sessions []Session `json:"sessions"`
}

type LifecycleServer interface {
	Start(ctx context.Context, in *StartRequest) (*Session, error)
	Pause(ctx context.Context, in *SessionRequest) (*AckResponse, error)
	Resume(ctx context.Context, in *SessionRequest) (*ResumeResponse, error)
	Stop(ctx context.Context, in *SessionRequest) (*StopResponse, error)
	GetActive(ctx context.Context, in *Empty) (*ActiveResponse, error)
	ListSessions(ctx context.Context, in *ListRequest) (*ListResponse, error)
}

type LifecycleClient interface {
	Start(ctx context.Context, in *StartRequest) (*Session, error)
	Pause(ctx context.Context, in *SessionRequest) (*AckResponse, error)
	Resume(ctx context.Context, in *SessionRequest) (*ResumeResponse, error)
	Stop(ctx context.Context, in *SessionRequest) (*StopResponse, error)
	GetActive(ctx context.Context) (*ActiveResponse, error)
	ListSessions(ctx context.Context, in *ListRequest) (*ListResponse, error)
}

type lifecycleClient struct {
	conn grpc.ClientConnInterface
}

func NewLifecycleClient(conn grpc.ClientConnInterface) LifecycleClient {
	return &lifecycleClient{conn: conn}
}

func (c *lifecycleClient) Start(ctx context.Context, in *StartRequest) (*Session, error) {
	out := &Session{}
	if err := c.conn.Invoke(ctx, methodStart, in, out, rpccodec.CallOption()); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *lifecycleClient) Pause(ctx context.Context, in *SessionRequest) (*AckResponse, error) {
	out := &AckResponse{}
	if err := c.conn.Invoke(ctx, methodPause, in, out, rpccodec.CallOption()); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *lifecycleClient) Resume(ctx context.Context, in *SessionRequest) (*ResumeResponse, error) {
	out := &ResumeResponse{}
	if err := c.conn.Invoke(ctx, methodResume, in, out, rpccodec.CallOption()); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *lifecycleClient) Stop(ctx context.Context, in *SessionRequest) (*StopResponse, error) {
	out := &StopResponse{}
	if err := c.conn.Invoke(ctx, methodStop, in, out, rpccodec.CallOption()); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *lifecycleClient) GetActive(ctx context.Context) (*ActiveResponse, error) {
	out := &ActiveResponse{}
	if err := c.conn.Invoke(ctx, methodGetActive, &Empty{}, out, rpccodec.CallOption()); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *lifecycleClient) ListSessions(ctx context.Context, in *ListRequest) (*ListResponse, error) {
	out := &ListResponse{}
	if err := c.conn.Invoke(ctx, methodListSessions, in, out, rpccodec.CallOption()); err != nil {
		return nil, err
	}
	return out, nil
}

// WithUser attaches the caller identity to an outgoing call.
func WithUser(ctx context.Context, userID string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, UserMetadataKey, userID)
}

// UserFromContext reads the caller identity on the server side.
func UserFromContext(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "missing call metadata")
	}
	values := md.Get(UserMetadataKey)
	if len(values) == 0 || strings.TrimSpace(values[0]) == "" {
		return "", status.Error(codes.Unauthenticated, "missing "+UserMetadataKey)
	}
	return strings.TrimSpace(values[0]), nil
}

func unary[Req any](fullMethod string, call func(LifecycleServer, context.Context, *Req) (any, error), impl LifecycleServer) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(impl, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*Req)
			if !ok {
				return nil, fmt.Errorf("invalid request type")
			}
			return call(impl, ctx, typed)
		}
		return interceptor(ctx, in, info, handler)
	}
}

func RegisterLifecycleServer(server grpc.ServiceRegistrar, impl LifecycleServer) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*LifecycleServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Start", Handler: unary(methodStart, func(s LifecycleServer, ctx context.Context, in *StartRequest) (any, error) { return s.Start(ctx, in) }, impl)},
			{MethodName: "Pause", Handler: unary(methodPause, func(s LifecycleServer, ctx context.Context, in *SessionRequest) (any, error) { return s.Pause(ctx, in) }, impl)},
			{MethodName: "Resume", Handler: unary(methodResume, func(s LifecycleServer, ctx context.Context, in *SessionRequest) (any, error) { return s.Resume(ctx, in) }, impl)},
			{MethodName: "Stop", Handler: unary(methodStop, func(s LifecycleServer, ctx context.Context, in *SessionRequest) (any, error) { return s.Stop(ctx, in) }, impl)},
			{MethodName: "GetActive", Handler: unary(methodGetActive, func(s LifecycleServer, ctx context.Context, in *Empty) (any, error) { return s.GetActive(ctx, in) }, impl)},
			{MethodName: "ListSessions", Handler: unary(methodListSessions, func(s LifecycleServer, ctx context.Context, in *ListRequest) (any, error) { return s.ListSessions(ctx, in) }, impl)},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "schemas/lifecycle-rpc-v1.proto",
	}, impl)
}
