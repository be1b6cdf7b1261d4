package out

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	hclog "github.com/hashicorp/go-hclog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"minesync/internal/modules/tabbus/domain"
	tabbusout "minesync/internal/modules/tabbus/port/out"
	"minesync/internal/platform/clock"
	apperrors "minesync/internal/platform/errors"
	"minesync/internal/platform/logging"
	"minesync/internal/rpc/tabbus"
)

// GRPCHubTransport is a tab's connection to the hub process.
type GRPCHubTransport struct {
	conn   *grpc.ClientConn
	client tabbus.HubClient
	logger hclog.Logger
}

// DialHub connects lazily to the hub listening on a unix socket; a missing hub surfaces on
// the first Publish or Subscribe.
func DialHub(socketPath string, logger hclog.Logger) (*GRPCHubTransport, error) {
	abs, err := filepath.Abs(socketPath)
	if err != nil {
		return nil, fmt.Errorf("resolve hub socket: %w", err)
	}
	conn, err := grpc.NewClient("unix://"+abs, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("%w: dial hub: %v", apperrors.ErrBroadcastUnavailable, err)
	}
	return NewGRPCHubTransport(conn, logger), nil
}

func NewGRPCHubTransport(conn *grpc.ClientConn, logger hclog.Logger) *GRPCHubTransport {
	return &GRPCHubTransport{conn: conn, client: tabbus.NewHubClient(conn), logger: logging.OrDiscard(logger).Named("hub-client")}
}

var _ tabbusout.Transport = (*GRPCHubTransport)(nil)

func (t *GRPCHubTransport) Publish(ctx context.Context, msg domain.Message) error {
	return t.client.Publish(ctx, &tabbus.Envelope{
		Channel:  msg.Channel,
		Origin:   msg.Origin,
		Payload:  msg.Payload,
		SentAtMs: clock.Millis(msg.SentAt),
	})
}

func (t *GRPCHubTransport) Subscribe(ctx context.Context, channel string) (<-chan domain.Message, error) {
	stream, err := t.client.Subscribe(ctx, &tabbus.SubscribeRequest{Channel: channel})
	if err != nil {
		return nil, err
	}
	out := make(chan domain.Message, memoryBuffer)
	go func() {
		defer close(out)
		for {
			env, err := stream.Recv()
			if err != nil {
				if !errors.Is(err, io.EOF) && status.Code(err) != codes.Canceled {
					t.logger.Warn("hub stream ended", "error", err)
				}
				return
			}
			msg := domain.Message{Channel: env.Channel, Origin: env.Origin, Payload: env.Payload, SentAt: clock.FromMillis(env.SentAtMs)}
			select {
			case out <- msg:
			default:
			}
		}
	}()
	return out, nil
}

func (t *GRPCHubTransport) Close() error {
	return t.conn.Close()
}
