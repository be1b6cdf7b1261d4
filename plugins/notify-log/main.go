package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hashicorp/go-plugin"

	"minesync/internal/rpc/notifyplugin"
)

// server appends each delivered notification as one JSON line.
type server struct {
	mu  sync.Mutex
	out io.Writer
}

func (s *server) Deliver(_ context.Context, in *notifyplugin.DeliverRequest) (*notifyplugin.DeliverResponse, error) {
	if in.UserID == "" {
		return &notifyplugin.DeliverResponse{Accepted: false, Detail: "user id is required"}, nil
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintln(s.out, string(raw)); err != nil {
		return nil, fmt.Errorf("write notification: %w", err)
	}
	return &notifyplugin.DeliverResponse{Accepted: true}, nil
}

func main() {
	var out io.Writer = os.Stderr
	if path := os.Getenv("MINESYNC_NOTIFY_LOG"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: notifyplugin.HandshakeConfig,
		Plugins:         notifyplugin.PluginMap(&server{out: out}),
		GRPCServer:      plugin.DefaultGRPCServer,
	})
}
