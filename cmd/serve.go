package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/cscsync/internal/bot"
	"github.com/example/cscsync/internal/config"
	"github.com/example/cscsync/internal/database"
	"github.com/example/cscsync/internal/logger"
	"github.com/example/cscsync/internal/scheduler"
	"github.com/example/cscsync/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync server, scheduled jobs and the optional operator bot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadServer()
		if err != nil {
			return err
		}
		cfg.DBDSN = flagOr(cmd, "db", cfg.DBDSN)
		cfg.Addr = flagOr(cmd, "addr", cfg.Addr)

		log, err := logger.New(cfg.Log.Level, cfg.Log.JSON)
		if err != nil {
			return err
		}
		defer log.Sync()

		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		policy, err := cfg.Policy()
		if err != nil {
			return err
		}

		if err := database.Connect(cfg.DBType, cfg.DBDSN); err != nil {
			return err
		}
		defer database.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var notifier scheduler.Notifier
		botCfg := bot.BotConfig{Token: cfg.TelegramToken, ChatID: cfg.DigestChatID}
		if botCfg.Enabled() {
			b, err := bot.New(botCfg, database.NewAggregateRepository(database.DB, policy), loc, log)
			if err != nil {
				return err
			}
			notifier = b
			go b.Run(ctx)
		} else {
			log.Infow("Operator bot disabled")
		}

		sched := scheduler.New(database.NewReceiptRepository(database.DB), notifier, scheduler.Config{
			ReceiptRetention: cfg.ReceiptRetention,
			DigestHour:       cfg.DigestHour,
			Location:         loc,
		}, log)
		if err := sched.Start(); err != nil {
			return err
		}
		defer sched.Stop()

		srv := server.New(database.DB, server.Config{
			IdentityHeader: cfg.IdentityHeader,
			Location:       loc,
			MaxPolicy:      policy,
			MergeRate:      cfg.MergeRate,
			MergeBurst:     cfg.MergeBurst,
		}, log)
		return srv.ListenAndServe(ctx, cfg.Addr)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides CSCS_ADDR env var)")
}

// openServerDB connects to the server database for offline maintenance commands.
func openServerDB(cmd *cobra.Command) (*config.ServerConfig, func(), error) {
	cfg, err := config.LoadServer()
	if err != nil {
		return nil, nil, err
	}
	cfg.DBDSN = flagOr(cmd, "db", cfg.DBDSN)
	if err := database.Connect(cfg.DBType, cfg.DBDSN); err != nil {
		return nil, nil, err
	}
	return cfg, func() { database.Close() }, nil
}

