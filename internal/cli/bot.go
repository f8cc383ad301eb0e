package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/memtest/internal/bot"
	"github.com/example/memtest/internal/database"
	"github.com/example/memtest/internal/identity"
	"github.com/example/memtest/internal/metrics"
	"github.com/example/memtest/internal/scheduler"
	"github.com/example/memtest/internal/session"
	"github.com/example/memtest/pkg/models"
)

// NewBotCommand creates the command that serves the experiment over Telegram.
func NewBotCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Serve the experiment through the Telegram bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runBot(ctx, rootOpts)
		},
	}
}

func runBot(ctx context.Context, opts *RootOptions) error {
	cfg, logger := opts.Config, opts.Logger
	if cfg.BotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable is not set")
	}

	protocol, err := opts.protocol()
	if err != nil {
		return err
	}

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	participants := database.NewParticipantRepository(db)
	provider := identity.NewProvider(database.NewIdentityRepository(db), logger)
	provider.OnIdentityChange(func(id models.Identity) {
		logger.Debug("identity issued", zap.String("context", id.ContextKey))
	})

	reg := prometheus.NewRegistry()
	observer, err := metrics.NewObserver(reg)
	if err != nil {
		return err
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return fmt.Errorf("unable to create bot: %w", err)
	}
	logger.Info("authorized on account", zap.String("username", api.Self.UserName))

	pool := session.NewPool()
	var janitor bot.Janitor
	if cfg.JanitorEnabled {
		s := scheduler.New(pool, cfg.SessionTTL, logger)
		if err := s.Start(cfg.JanitorInterval); err != nil {
			return err
		}
		defer s.Stop()
		janitor = s
	}

	botCfg := bot.DefaultConfig()
	botCfg.AdminUserIDs = cfg.AdminUserIDs
	botCfg.CountdownRefresh = cfg.CountdownRefresh

	b, err := bot.New(api, botCfg, bot.Deps{
		Session: session.Options{
			Protocol:  protocol,
			Identity:  provider,
			Observer:  observer,
			ExportCSV: cfg.ExportCSV,
		},
		Registry:   participants,
		Pool:       pool,
		Janitor:    janitor,
		Statistics: database.NewStatisticsRepository(db),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Run(ctx) })
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return metrics.Serve(ctx, cfg.MetricsAddr, reg, logger) })
	}
	return g.Wait()
}
