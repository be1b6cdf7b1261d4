package out

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	"minesync/internal/modules/mining/domain"
	miningout "minesync/internal/modules/mining/port/out"
	"minesync/internal/platform/logging"
	"minesync/internal/rpc/notifyplugin"
)

const (
	defaultPluginStartTimeout = 3 * time.Second
	defaultPluginCallTimeout  = 5 * time.Second
)

// PluginNotifier hands each notification to an external delivery binary over go-plugin.
type PluginNotifier struct {
	binary string
	logger hclog.Logger
}

func NewPluginNotifier(binary string, logger hclog.Logger) miningout.Notifier {
	return &PluginNotifier{binary: binary, logger: logging.OrDiscard(logger).Named("notify-plugin")}
}

func (p *PluginNotifier) Emit(ctx context.Context, n domain.Notification) error {
	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  notifyplugin.HandshakeConfig,
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolGRPC},
		Plugins:          notifyplugin.PluginMap(nil),
		Cmd:              exec.Command(p.binary),
		Managed:          true,
		StartTimeout:     defaultPluginStartTimeout,
		Logger:           p.logger,
	})
	defer client.Kill()

	rpcClient, err := client.Client()
	if err != nil {
		return fmt.Errorf("start notify plugin: %w", err)
	}
	raw, err := rpcClient.Dispense(notifyplugin.PluginMapKey)
	if err != nil {
		return fmt.Errorf("dispense notify plugin: %w", err)
	}
	typed, ok := raw.(notifyplugin.NotifierClient)
	if !ok {
		return fmt.Errorf("notify plugin client type mismatch")
	}

	callCtx, cancel := callContext(ctx, defaultPluginCallTimeout)
	defer cancel()
	resp, err := typed.Deliver(callCtx, &notifyplugin.DeliverRequest{
		UserID:    n.UserID,
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}
	if !resp.Accepted {
		return fmt.Errorf("notify plugin rejected notification: %s", resp.Detail)
	}
	return nil
}

func callContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := parent.Deadline(); ok {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}

// FanoutNotifier emits to every sink and joins their failures.
type FanoutNotifier struct {
	sinks []miningout.Notifier
}

func NewFanoutNotifier(sinks ...miningout.Notifier) miningout.Notifier {
	kept := make([]miningout.Notifier, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			kept = append(kept, sink)
		}
	}
	return &FanoutNotifier{sinks: kept}
}

func (f *FanoutNotifier) Emit(ctx context.Context, n domain.Notification) error {
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Emit(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
