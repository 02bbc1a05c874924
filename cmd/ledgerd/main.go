package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/mymmrac/telego"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"yield-ledger/internal/api"
	"yield-ledger/internal/bot"
	"yield-ledger/internal/cache"
	"yield-ledger/internal/config"
	"yield-ledger/internal/database"
	"yield-ledger/internal/events"
	"yield-ledger/internal/ledger"
	"yield-ledger/internal/logger"
	"yield-ledger/internal/notify"
	"yield-ledger/internal/store"
	"yield-ledger/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	envFileFlag := flag.StringSlice("env-file", nil, "dotenv file(s) to load (default .env)")
	noDBFlag := flag.Bool("no-db", false, "keep all state in memory; skips PostgreSQL and Redis")
	flag.Parse()

	log := logger.New(*verboseFlag)

	cfg := config.LoadConfig(log, *envFileFlag...)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	var (
		st    store.Store
		feed  events.Feed
		flags cache.Flags
	)
	if *noDBFlag {
		log.Warn("ledgerd: running without a database, state is lost on exit")
		st = store.NewMemory()
		feed = events.NewRecorder(events.DefaultRecent)
		flags = cache.NewMemory(clock)
	} else {
		db, err := database.ConnectPostgres(cfg, log)
		if err != nil {
			return err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to get sql.DB: %w", err)
		}
		defer sqlDB.Close()

		pg, err := store.NewPostgres(store.PostgresConfig{Logger: log, DB: db})
		if err != nil {
			return err
		}
		st = pg

		rdb, err := database.ConnectRedis(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer rdb.Close()

		rp, err := events.NewRedisPublisher(events.RedisConfig{Logger: log, Client: rdb})
		if err != nil {
			return err
		}
		feed = rp
		flags = cache.NewRedis(rdb)
	}

	var (
		notifier notify.Notifier = notify.NewLog(log)
		tg       *telego.Bot
	)
	if cfg.BotToken != "" {
		var err error
		tg, err = telego.NewBot(cfg.BotToken)
		if err != nil {
			return fmt.Errorf("failed to create telegram bot: %w", err)
		}
		notifier, err = notify.NewTelegram(notify.TelegramConfig{Logger: log, Bot: tg, ChatID: cfg.AdminChatID})
		if err != nil {
			return err
		}
	}

	engine, err := restoreLedger(ctx, log, cfg, clock, st, events.Fanout{feed, notify.AdminRelay{Notifier: notifier}})
	if err != nil {
		return err
	}

	server, err := api.New(api.Config{
		Logger:        log,
		Clock:         clock,
		Ledger:        engine,
		History:       st,
		Events:        feed,
		Flags:         flags,
		AdminCIDRs:    cfg.AdminAllowedIP,
		RatePerMinute: cfg.APIRatePerMinute,
		CORSOrigins:   cfg.CORSOrigins,
	})
	if err != nil {
		return fmt.Errorf("failed to create api server: %w", err)
	}

	checker, err := worker.NewChecker(worker.CheckerConfig{
		Logger:      log,
		Clock:       clock,
		Deposits:    engine,
		Notifier:    notifier,
		Flags:       flags,
		Interval:    cfg.CapCheckInterval,
		WarnPercent: cfg.CapWarnPercent,
	})
	if err != nil {
		return fmt.Errorf("failed to create cap watcher: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx, cfg.HTTPAddr) })
	g.Go(func() error { return checker.Run(gctx) })
	if tg != nil {
		console, err := bot.New(bot.Config{
			Logger:      log,
			Bot:         tg,
			Ledger:      engine,
			AdminChatID: cfg.AdminChatID,
			Operator:    ledger.NormalizeAddress(cfg.LedgerOwner),
			WarnPercent: cfg.CapWarnPercent,
		})
		if err != nil {
			return fmt.Errorf("failed to create operator console: %w", err)
		}
		g.Go(func() error { return console.Run(gctx) })
	}

	log.Info("ledgerd: started", "http_addr", cfg.HTTPAddr, "no_db", *noDBFlag, "telegram", tg != nil)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("ledgerd: stopped")
	return nil
}

// restoreLedger rebuilds the engine from the store. Persisted admin settings
// take precedence over the configured owner and treasury.
func restoreLedger(ctx context.Context, log *slog.Logger, cfg *config.Config, clock clockwork.Clock, st store.Store, pub ledger.Publisher) (*ledger.Engine, error) {
	state, err := st.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger state: %w", err)
	}
	engine, err := ledger.Restore(ledger.Config{
		Logger:    log,
		Clock:     clock,
		Admin:     ledger.DefaultAdminConfig(ledger.NormalizeAddress(cfg.LedgerOwner), ledger.NormalizeAddress(cfg.LedgerTreasury)),
		Committer: st,
		Publisher: pub,
	}, state)
	if err != nil {
		return nil, fmt.Errorf("failed to restore ledger: %w", err)
	}
	log.Info("ledgerd: ledger restored", "accounts", len(state.Accounts), "deposits", len(state.Deposits),
		"owner", engine.Owner(), "paused", engine.Paused())
	return engine, nil
}
