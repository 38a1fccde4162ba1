package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"rss_watch/internal/bot"
	"rss_watch/internal/config"
	"rss_watch/internal/fetcher"
	"rss_watch/internal/notifier"
	"rss_watch/internal/scheduler"
	"rss_watch/internal/state"
	"rss_watch/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Error("open storage", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	st := state.Open(ctx, store, cfg.DefaultFeeds, log)

	f := fetcher.New(http.DefaultClient)
	f.SetTimeout(cfg.FetchTimeout)

	b, err := bot.New(cfg.TelegramBotToken, st, f, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	sched := scheduler.New(st, f, notifier.New(b, log), log)
	sched.SetInterval(cfg.PollInterval)
	sched.SetConcurrency(cfg.FetchConcurrency)
	b.SetPoller(sched)

	log.Info("starting bot",
		"backend", cfg.StorageBackend,
		"feeds", len(st.Feeds()),
		"subscribers", len(st.Subscribers()),
		"interval", cfg.PollInterval,
	)

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(ctx)
	}()

	b.Run(ctx)
	<-schedDone

	if err := st.Flush(context.Background()); err != nil {
		log.Error("final save", "error", err)
	}
	log.Info("bot stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Persister, error) {
	switch cfg.StorageBackend {
	case config.BackendJSON:
		return storage.NewJSONFile(cfg.StoragePath)
	case config.BackendSQLite:
		if dir := filepath.Dir(cfg.StoragePath); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
		return storage.NewSQLite(cfg.StoragePath)
	case config.BackendPostgres:
		return storage.NewPostgres(ctx, cfg.DatabaseURL)
	case config.BackendMemory:
		return storage.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
