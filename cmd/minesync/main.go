package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"minesync/internal/bootstrap"
	miningdomain "minesync/internal/modules/mining/domain"
	"minesync/internal/platform/config"
	"minesync/internal/platform/logging"
)

type rootFlags struct {
	dataDir    string
	configPath string
	userID     string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "minesync",
		Short:         "Mining session lifecycle server and tab client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.dataDir, "data", defaultDataDir(), "data directory")
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default <data>/minesync.yaml)")
	root.PersistentFlags().StringVar(&flags.userID, "user", "", "acting user id (overrides config)")

	root.AddCommand(newServeCmd(flags))
	root.AddCommand(newHubCmd(flags))
	root.AddCommand(newTabCmd(flags))
	root.AddCommand(newSessionCmd(flags))
	root.AddCommand(newWalletCmd(flags))
	root.AddCommand(newNotificationsCmd(flags))
	root.AddCommand(newSettingsCmd(flags))
	root.AddCommand(newReceiptsCmd(flags))
	return root
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "minesync")
	}
	return ".minesync"
}

func loadConfig(flags *rootFlags) (config.Config, error) {
	if err := os.MkdirAll(flags.dataDir, 0o755); err != nil {
		return config.Config{}, fmt.Errorf("create data dir: %w", err)
	}
	cfg, err := config.Load(flags.dataDir, flags.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if flags.userID != "" {
		cfg.UserID = flags.userID
	}
	return cfg, nil
}

// withApp opens the server-side graph for one command and closes it afterwards.
func withApp(cmd *cobra.Command, flags *rootFlags, fn func(*bootstrap.App) error) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	logger := logging.New("minesync", logging.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON, Output: cmd.ErrOrStderr()})
	app, err := bootstrap.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	var noHub bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the lifecycle gRPC server (and the tab hub)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(app *bootstrap.App) error {
				return bootstrap.Serve(cmd.Context(), app, !noHub)
			})
		},
	}
	cmd.Flags().BoolVar(&noHub, "no-hub", false, "do not serve the tab hub socket")
	return cmd
}

func newHubCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "hub",
		Short: "Run only the tab broadcast hub",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			logger := logging.New("minesync-hub", logging.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON, Output: cmd.ErrOrStderr()})
			return bootstrap.ServeHub(cmd.Context(), cfg, logger)
		},
	}
}

func newTabCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tab",
		Short: "Open a client tab mirroring the user's session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			return bootstrap.RunTab(cmd.Context(), cfg)
		},
	}
}

func newSessionCmd(flags *rootFlags) *cobra.Command {
	session := &cobra.Command{Use: "session", Short: "Mining session lifecycle"}

	session.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start a mining session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(app *bootstrap.App) error {
				out, err := app.MiningCLI.Start(cmd.Context(), app.Config.UserID)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "started %s intensity=%d\n", out.ID, out.Intensity)
				warnNotify(cmd, out.NotifyError)
				return nil
			})
		},
	})

	var sessionID string
	pauseCmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause the open session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(app *bootstrap.App) error {
				id, err := app.MiningCLI.ResolveSessionID(cmd.Context(), app.Config.UserID, sessionID)
				if err != nil {
					return err
				}
				if _, err := app.MiningCLI.Pause(cmd.Context(), app.Config.UserID, id); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "paused %s\n", id)
				return nil
			})
		},
	}
	resumeCmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume the paused session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(app *bootstrap.App) error {
				id, err := app.MiningCLI.ResolveSessionID(cmd.Context(), app.Config.UserID, sessionID)
				if err != nil {
					return err
				}
				out, err := app.MiningCLI.Resume(cmd.Context(), app.Config.UserID, id)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "resumed %s paused_total=%ds\n", id, out.PausedDuration)
				return nil
			})
		},
	}
	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the session and settle its earnings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(app *bootstrap.App) error {
				id, err := app.MiningCLI.ResolveSessionID(cmd.Context(), app.Config.UserID, sessionID)
				if err != nil {
					return err
				}
				out, err := app.MiningCLI.Stop(cmd.Context(), app.Config.UserID, id)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(w, "stopped %s active=%ds paused=%ds\n", out.SessionID, out.ActiveDuration, out.PausedDuration)
				_, _ = fmt.Fprintf(w, "earned %s balance %s\n", out.Earnings, out.Balance)
				if out.ReceiptPath != "" {
					_, _ = fmt.Fprintf(w, "receipt %s\n", out.ReceiptPath)
				}
				warnNotify(cmd, out.NotifyError)
				return nil
			})
		},
	}
	for _, c := range []*cobra.Command{pauseCmd, resumeCmd, stopCmd} {
		c.Flags().StringVar(&sessionID, "id", "", "session id (default: the open session)")
	}
	session.AddCommand(pauseCmd, resumeCmd, stopCmd)

	session.AddCommand(&cobra.Command{
		Use:   "active",
		Short: "Show the open session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(app *bootstrap.App) error {
				out, err := app.MiningCLI.GetActive(cmd.Context(), app.Config.UserID)
				if err != nil {
					return err
				}
				if out.Session == nil {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no open session")
					return nil
				}
				s := out.Session
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tstarted=%s\tpaused=%ds\n",
					s.ID, s.Status, s.StartTime.Local().Format("2006-01-02 15:04:05"), s.PausedDuration)
				return nil
			})
		},
	})

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(app *bootstrap.App) error {
				sessions, err := app.MiningCLI.List(cmd.Context(), app.Config.UserID, limit)
				if err != nil {
					return err
				}
				if len(sessions) == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no sessions")
					return nil
				}
				for _, s := range sessions {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n",
						s.ID, s.Status, s.StartTime.Local().Format("2006-01-02 15:04"), s.Earnings)
				}
				return nil
			})
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 20, "maximum sessions to show")
	session.AddCommand(listCmd)
	return session
}

func newWalletCmd(flags *rootFlags) *cobra.Command {
	wallet := &cobra.Command{Use: "wallet", Short: "Wallet balance and ledger"}
	wallet.AddCommand(&cobra.Command{
		Use:   "balance",
		Short: "Show the wallet balance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(app *bootstrap.App) error {
				out, err := app.MiningCLI.Balance(cmd.Context(), app.Config.UserID)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", out.UserID, out.Balance)
				return nil
			})
		},
	})

	var (
		limit     int
		minAmount string
	)
	txCmd := &cobra.Command{
		Use:   "transactions",
		Short: "List ledger entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			floor, err := miningdomain.ParseAmount(minAmount)
			if err != nil {
				return fmt.Errorf("--min: %w", err)
			}
			return withApp(cmd, flags, func(app *bootstrap.App) error {
				entries, err := app.MiningCLI.Transactions(cmd.Context(), app.Config.UserID, limit)
				if err != nil {
					return err
				}
				shown := 0
				for _, e := range entries {
					amount, err := miningdomain.ParseAmount(e.Amount)
					if err != nil || amount < floor {
						continue
					}
					shown++
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\t%s\n",
						e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Type, e.Amount, e.Status, e.Description)
				}
				if shown == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no transactions")
				}
				return nil
			})
		},
	}
	txCmd.Flags().IntVar(&limit, "limit", 20, "maximum entries to show")
	txCmd.Flags().StringVar(&minAmount, "min", "0", "hide entries below this amount")
	wallet.AddCommand(txCmd)
	return wallet
}

func newNotificationsCmd(flags *rootFlags) *cobra.Command {
	notifications := &cobra.Command{Use: "notifications", Short: "Lifecycle notifications"}

	var unread bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(app *bootstrap.App) error {
				items, err := app.MiningCLI.Notifications(cmd.Context(), app.Config.UserID, unread)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no notifications")
					return nil
				}
				for _, n := range items {
					mark := " "
					if !n.IsRead {
						mark = "*"
					}
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\t%s\t%s: %s\n",
						mark, n.ID, n.CreatedAt.Local().Format("2006-01-02 15:04"), n.Title, n.Message)
				}
				return nil
			})
		},
	}
	listCmd.Flags().BoolVar(&unread, "unread", false, "only unread notifications")

	var id string
	readCmd := &cobra.Command{
		Use:   "read",
		Short: "Mark a notification as read",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if id == "" {
				return fmt.Errorf("--id is required")
			}
			return withApp(cmd, flags, func(app *bootstrap.App) error {
				if err := app.MiningCLI.MarkRead(cmd.Context(), app.Config.UserID, id); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "marked %s read\n", id)
				return nil
			})
		},
	}
	readCmd.Flags().StringVar(&id, "id", "", "notification id")

	notifications.AddCommand(listCmd, readCmd)
	return notifications
}

func newSettingsCmd(flags *rootFlags) *cobra.Command {
	settings := &cobra.Command{Use: "settings", Short: "Mining settings"}
	settings.AddCommand(&cobra.Command{
		Use:   "intensity [value]",
		Short: "Show or set the mining intensity (1-100)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(app *bootstrap.App) error {
				var (
					value int
					err   error
				)
				if len(args) == 0 {
					value, err = app.MiningCLI.Intensity(cmd.Context(), app.Config.UserID)
				} else {
					requested, convErr := strconv.Atoi(args[0])
					if convErr != nil {
						return fmt.Errorf("invalid intensity %q", args[0])
					}
					value, err = app.MiningCLI.SetIntensity(cmd.Context(), app.Config.UserID, requested)
				}
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "intensity %d\n", value)
				return nil
			})
		},
	})
	return settings
}

func newReceiptsCmd(flags *rootFlags) *cobra.Command {
	receipts := &cobra.Command{Use: "receipts", Short: "Settlement receipts"}
	receipts.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List settlement receipts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(app *bootstrap.App) error {
				items, err := app.MiningCLI.Receipts(cmd.Context(), app.Config.UserID)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no receipts")
					return nil
				}
				for _, r := range items {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", r.EndedAt, r.SessionID, r.Earnings, r.Path)
				}
				return nil
			})
		},
	})
	return receipts
}

func warnNotify(cmd *cobra.Command, notifyErr string) {
	if notifyErr != "" {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: notification not delivered: %s\n", notifyErr)
	}
}
