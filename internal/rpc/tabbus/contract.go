package tabbus

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"

	"minesync/internal/platform/rpccodec"
)

const (
	serviceName     = "minesync.tabbus.v1.Hub"
	methodPublish   = "/" + serviceName + "/Publish"
	methodSubscribe = "/" + serviceName + "/Subscribe"
)

type Empty struct{}

// Envelope is one broadcast as it travels through the hub.
type Envelope struct {
	Channel  string          `json:"channel"`
	Origin   string          `json:"origin"`
	Payload  json.RawMessage `json:"payload"`
	SentAtMs int64           `json:"sentAt"`
}

type SubscribeRequest struct {
	Channel string `json:"channel"`
}

type HubServer interface {
	Publish(ctx context.Context, in *Envelope) (*Empty, error)
	Subscribe(in *SubscribeRequest, stream HubSubscribeServer) error
}

type HubSubscribeServer interface {
	Send(*Envelope) error
	Context() context.Context
}

type hubSubscribeServer struct {
	grpc.ServerStream
}

func (s *hubSubscribeServer) Send(e *Envelope) error {
	return s.ServerStream.SendMsg(e)
}

type HubClient interface {
	Publish(ctx context.Context, in *Envelope) error
	Subscribe(ctx context.Context, in *SubscribeRequest) (HubSubscribeClient, error)
}

type HubSubscribeClient interface {
	Recv() (*Envelope, error)
}

type hubClient struct {
	conn grpc.ClientConnInterface
}

func NewHubClient(conn grpc.ClientConnInterface) HubClient {
	return &hubClient{conn: conn}
}

func (c *hubClient) Publish(ctx context.Context, in *Envelope) error {
	return c.conn.Invoke(ctx, methodPublish, in, &Empty{}, rpccodec.CallOption())
}

func (c *hubClient) Subscribe(ctx context.Context, in *SubscribeRequest) (HubSubscribeClient, error) {
	stream, err := c.conn.NewStream(ctx, &hubServiceDesc.Streams[0], methodSubscribe, rpccodec.CallOption())
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &hubSubscribeClient{stream: stream}, nil
}

type hubSubscribeClient struct {
	stream grpc.ClientStream
}

func (c *hubSubscribeClient) Recv() (*Envelope, error) {
	out := &Envelope{}
	if err := c.stream.RecvMsg(out); err != nil {
		return nil, err
	}
	return out, nil
}

func publishHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Envelope)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HubServer).Publish(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodPublish}
	handler := func(ctx context.Context, req any) (any, error) {
		typed, ok := req.(*Envelope)
		if !ok {
			return nil, fmt.Errorf("invalid request type")
		}
		return srv.(HubServer).Publish(ctx, typed)
	}
	return interceptor(ctx, in, info, handler)
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(SubscribeRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(HubServer).Subscribe(in, &hubSubscribeServer{ServerStream: stream})
}

var hubServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*HubServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Publish", Handler: publishHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
	},
	Metadata: "schemas/tabbus-rpc-v1.proto",
}

func RegisterHubServer(server grpc.ServiceRegistrar, impl HubServer) {
	server.RegisterService(&hubServiceDesc, impl)
}
