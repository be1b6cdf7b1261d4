package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	hclog "github.com/hashicorp/go-hclog"
	"google.golang.org/grpc"

	mininginadapter "minesync/internal/modules/mining/adapter/in"
	tabbusinadapter "minesync/internal/modules/tabbus/adapter/in"
	tabbusoutadapter "minesync/internal/modules/tabbus/adapter/out"
	tabbususecase "minesync/internal/modules/tabbus/usecase"
	"minesync/internal/platform/config"
	"minesync/internal/platform/logging"
	"minesync/internal/rpc/lifecycle"
	"minesync/internal/rpc/tabbus"
)

// Serve exposes the lifecycle service on cfg.ListenAddr until ctx is done. With withHub the
// tab hub is served from the same process.
func Serve(ctx context.Context, app *App, withHub bool) error {
	ln, err := net.Listen("tcp", app.Config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", app.Config.ListenAddr, err)
	}
	server := grpc.NewServer()
	lifecycle.RegisterLifecycleServer(server, mininginadapter.NewGRPCServer(app.Lifecycle, app.Logger))
	app.Logger.Info("lifecycle server listening", "addr", ln.Addr().String())

	if !withHub {
		return serveUntilDone(ctx, server, ln)
	}

	errs := make(chan error, 2)
	hubCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { errs <- ServeHub(hubCtx, app.Config, app.Logger) }()
	go func() { errs <- serveUntilDone(hubCtx, server, ln) }()

	first := <-errs
	cancel()
	return errors.Join(first, <-errs)
}

// ServeHub relays tab broadcasts over a unix socket until ctx is done.
func ServeHub(ctx context.Context, cfg config.Config, logger hclog.Logger) error {
	logger = logging.OrDiscard(logger)
	ln, err := listenUnix(cfg.HubSocket)
	if err != nil {
		return err
	}
	defer os.Remove(cfg.HubSocket)

	hub := tabbusoutadapter.NewMemoryHub()
	defer hub.Close()

	server := grpc.NewServer()
	tabbus.RegisterHubServer(server, tabbusinadapter.NewGRPCHubServer(tabbususecase.NewHubInteractor(hub)))
	logger.Info("tab hub listening", "socket", cfg.HubSocket)
	return serveUntilDone(ctx, server, ln)
}

func listenUnix(socketPath string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return nil, fmt.Errorf("create hub dir: %w", err)
	}
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale hub socket: %w", err)
	}
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen hub socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("chmod hub socket: %w", err)
	}
	return ln, nil
}

func serveUntilDone(ctx context.Context, server *grpc.Server, ln net.Listener) error {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			server.GracefulStop()
		case <-stop:
		}
	}()
	defer close(stop)

	if err := server.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
