package in

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	tabbusdto "minesync/internal/modules/tabbus/dto"
	tabbusin "minesync/internal/modules/tabbus/port/in"
	"minesync/internal/platform/clock"
	"minesync/internal/rpc/tabbus"
)

// GRPCHubServer exposes a hub to tabs over gRPC.
type GRPCHubServer struct {
	hub tabbusin.Hub
}

func NewGRPCHubServer(hub tabbusin.Hub) *GRPCHubServer {
	return &GRPCHubServer{hub: hub}
}

var _ tabbus.HubServer = (*GRPCHubServer)(nil)

func (s *GRPCHubServer) Publish(ctx context.Context, in *tabbus.Envelope) (*tabbus.Empty, error) {
	if in.Origin == "" {
		return nil, status.Error(codes.InvalidArgument, "origin is required")
	}
	err := s.hub.Relay(ctx, tabbusdto.Message{
		Channel: in.Channel,
		Origin:  in.Origin,
		Payload: in.Payload,
		SentAt:  clock.FromMillis(in.SentAtMs),
	})
	if err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return &tabbus.Empty{}, nil
}

func (s *GRPCHubServer) Subscribe(in *tabbus.SubscribeRequest, stream tabbus.HubSubscribeServer) error {
	msgs, err := s.hub.Attach(stream.Context(), in.Channel)
	if err != nil {
		return status.Error(codes.Unavailable, err.Error())
	}
	for msg := range msgs {
		if err := stream.Send(&tabbus.Envelope{
			Channel:  msg.Channel,
			Origin:   msg.Origin,
			Payload:  msg.Payload,
			SentAtMs: clock.Millis(msg.SentAt),
		}); err != nil {
			return err
		}
	}
	return nil
}
