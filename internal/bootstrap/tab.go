package bootstrap

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	hclog "github.com/hashicorp/go-hclog"

	miningdomain "minesync/internal/modules/mining/domain"
	mirroroutadapter "minesync/internal/modules/mirror/adapter/out"
	mirrordomain "minesync/internal/modules/mirror/domain"
	mirrorout "minesync/internal/modules/mirror/port/out"
	mirrorservice "minesync/internal/modules/mirror/service"
	mirrorusecase "minesync/internal/modules/mirror/usecase"
	tabbusoutadapter "minesync/internal/modules/tabbus/adapter/out"
	tabbusservice "minesync/internal/modules/tabbus/service"
	tabbususecase "minesync/internal/modules/tabbus/usecase"
	"minesync/internal/platform/clock"
	"minesync/internal/platform/config"
	"minesync/internal/platform/id"
	"minesync/internal/platform/logging"
	uitab "minesync/internal/ui/tab"
)

const TabLogFileName = "tab.log"

// RunTab opens one client tab: a mirror of the user's session talking to the lifecycle
// server and to sibling tabs through the hub. The terminal belongs to the UI, so logs go
// to <data>/tab.log.
func RunTab(ctx context.Context, cfg config.Config) error {
	logFile, err := logging.FileOutput(filepath.Join(cfg.DataDir, TabLogFileName))
	if err != nil {
		return err
	}
	defer logFile.Close()
	logger := logging.New("minesync-tab", logging.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON, Output: logFile})

	conn, err := mirroroutadapter.DialLifecycle(cfg.ListenAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	clk := clock.SystemClock{}
	deps := mirrorservice.Deps{
		Clock:     clk,
		Keys:      id.UUID{},
		Lifecycle: mirroroutadapter.NewGRPCLifecycle(conn, cfg.UserID),
		Snapshots: mirroroutadapter.NewFileSnapshotStore(cfg.SnapshotPath),
		Logger:    logger,
	}
	if bus, closeBus := tabBus(cfg, clk, logger); bus != nil {
		deps.Bus = bus
		defer closeBus()
	}
	if cfg.DesktopNotices {
		notices := mirroroutadapter.NewDesktopNotices("minesync")
		defer notices.Close()
		deps.Notices = notices
	}

	mirror := mirrorusecase.NewInteractor(mirrorservice.NewMirror(deps, mirrorservice.Options{
		Guard:         mirrordomain.NewGuard(cfg.PrimaryCapSeconds, cfg.FailsafeCapSeconds),
		Rate:          miningdomain.Amount(cfg.RateUnitsPerSecond),
		CooldownGrace: time.Duration(cfg.CooldownGraceMillis) * time.Millisecond,
	}))
	defer mirror.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- mirror.Run(runCtx) }()

	program := tea.NewProgram(uitab.NewModel(mirror, "minesync · "+cfg.UserID), tea.WithAltScreen(), tea.WithContext(ctx))
	_, uiErr := program.Run()
	if errors.Is(uiErr, tea.ErrProgramKilled) && ctx.Err() != nil {
		uiErr = nil
	}
	cancel()
	_ = mirror.Close()
	return errors.Join(uiErr, <-runErr)
}

// tabBus returns nil when the hub cannot even be addressed; the tab then runs unsynced.
func tabBus(cfg config.Config, clk clock.Clock, logger hclog.Logger) (mirrorout.Bus, func()) {
	transport, err := tabbusoutadapter.DialHub(cfg.HubSocket, logger)
	if err != nil {
		logger.Warn("tab hub unavailable", "error", err)
		return nil, nil
	}
	broadcaster := tabbusservice.NewBroadcaster(id.UUID{}.New(), transport, clk, logger)
	return mirroroutadapter.NewTabBus(tabbususecase.NewInteractor(broadcaster)), func() { _ = transport.Close() }
}
