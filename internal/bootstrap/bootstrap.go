package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	hclog "github.com/hashicorp/go-hclog"

	mininginadapter "minesync/internal/modules/mining/adapter/in"
	miningoutadapter "minesync/internal/modules/mining/adapter/out"
	miningdomain "minesync/internal/modules/mining/domain"
	miningin "minesync/internal/modules/mining/port/in"
	miningservice "minesync/internal/modules/mining/service"
	miningusecase "minesync/internal/modules/mining/usecase"
	"minesync/internal/platform/clock"
	"minesync/internal/platform/config"
	"minesync/internal/platform/id"
	"minesync/internal/platform/logging"
	"minesync/internal/platform/sqlitedb"
)

// App is the server-side object graph: the lifecycle engine and the account views over the
// shared database.
type App struct {
	Config    config.Config
	Logger    hclog.Logger
	MiningCLI mininginadapter.CLIHandler
	Lifecycle miningin.Usecase

	db *sql.DB
}

func New(ctx context.Context, cfg config.Config, logger hclog.Logger) (*App, error) {
	logger = logging.OrDiscard(logger)
	clk := clock.SystemClock{}
	ids := id.UUID{}

	db, err := sqlitedb.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	app := &App{Config: cfg, Logger: logger, db: db}

	sessions, err := miningoutadapter.NewSQLiteSessionStore(ctx, db)
	if err != nil {
		return nil, app.fail(fmt.Errorf("new session store: %w", err))
	}
	wallet, err := miningoutadapter.NewSQLiteWallet(ctx, db)
	if err != nil {
		return nil, app.fail(fmt.Errorf("new wallet: %w", err))
	}
	inbox, err := miningoutadapter.NewSQLiteInbox(ctx, db, ids)
	if err != nil {
		return nil, app.fail(fmt.Errorf("new inbox: %w", err))
	}
	settings, err := miningoutadapter.NewSQLiteSettings(ctx, db, cfg.DefaultIntensity)
	if err != nil {
		return nil, app.fail(fmt.Errorf("new settings: %w", err))
	}
	idem, err := miningoutadapter.NewSQLiteIdempotencyStore(ctx, db, clk)
	if err != nil {
		return nil, app.fail(fmt.Errorf("new idempotency store: %w", err))
	}
	receipts := miningoutadapter.NewMarkdownReceiptStore(cfg.ReceiptsDir)

	notifier := miningoutadapter.NewFanoutNotifier(inbox)
	if cfg.NotifyPlugin != "" {
		notifier = miningoutadapter.NewFanoutNotifier(inbox, miningoutadapter.NewPluginNotifier(cfg.NotifyPlugin, logger))
	}

	accrual := miningdomain.NewAccrual(miningdomain.Amount(cfg.RateUnitsPerSecond)).WithPrimaryCap(cfg.PrimaryCapSeconds)
	svc := miningservice.NewLifecycleService(clk, ids, accrual, sessions)
	lifecycleUC := miningusecase.NewInteractor(svc, miningusecase.Collaborators{
		Tx:          sqlitedb.NewTxManager(db),
		Wallet:      wallet,
		Ledger:      wallet,
		Notifier:    notifier,
		Settings:    settings,
		Idempotency: idem,
		Receipts:    receipts,
		IDs:         ids,
		Logger:      logger,
	})
	accountUC := miningusecase.NewAccountInteractor(wallet, wallet, inbox, settings, receipts)

	app.Lifecycle = lifecycleUC
	app.MiningCLI = mininginadapter.NewCLIHandler(lifecycleUC, accountUC)
	return app, nil
}

func (a *App) fail(err error) error {
	return errors.Join(err, a.Close())
}

func (a *App) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}
