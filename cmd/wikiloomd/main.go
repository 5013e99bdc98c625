// Command wikiloomd runs the translation pipeline continuously: it claims
// queued jobs, polls the platform for recent changes when idle, and records
// every run in the store. A file lock keeps it single-instance.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/redis/go-redis/v9"

	"wikiloom/internal/cache"
	"wikiloom/internal/config"
	"wikiloom/internal/engine"
	"wikiloom/internal/glossary"
	"wikiloom/internal/logging"
	"wikiloom/internal/mediawiki"
	"wikiloom/internal/store"
	"wikiloom/internal/workflow"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	lock := flock.New(cfg.LockPath())
	held, err := lock.TryLock()
	if err != nil {
		logger.Error("acquire instance lock", slog.Any("error", err))
		os.Exit(1)
	}
	if !held {
		logger.Error("another wikiloomd instance is running", slog.String("lock", cfg.LockPath()))
		os.Exit(1)
	}
	defer lock.Unlock() //nolint:errcheck

	s, err := store.Open(cfg)
	if err != nil {
		logger.Error("open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer s.Close()

	if cfg.Glossary.File != "" {
		file, err := glossary.Load(cfg.Glossary.File)
		if err != nil {
			logger.Error("load glossary", slog.Any("error", err))
			os.Exit(1)
		}
		if err := glossary.Sync(ctx, s, file, cfg.Languages.Targets); err != nil {
			logger.Error("sync glossary", slog.Any("error", err))
			os.Exit(1)
		}
	}

	gateway, err := engine.NewGateway(cfg, logger)
	if err != nil {
		logger.Error("build translation gateway", slog.Any("error", err))
		os.Exit(1)
	}
	wiki, err := mediawiki.NewHTTPClient(cfg)
	if err != nil {
		logger.Error("build platform client", slog.Any("error", err))
		os.Exit(1)
	}

	var hot redis.UniversalClient
	if cfg.Cache.RedisAddr != "" {
		hot = redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
	}
	translationCache := cache.New(s, hot, time.Duration(cfg.Cache.RedisTTLDays)*24*time.Hour)

	manager := workflow.NewManager(s, translationCache, gateway, wiki, cfg, logger)

	run, err := s.StartRun(ctx, "daemon", cfg.Languages.Targets)
	if err != nil {
		logger.Error("record run", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("wikiloomd started",
		slog.String("wiki", cfg.Wiki.APIURL),
		slog.String("source", cfg.Languages.Source),
		slog.Any("targets", cfg.Languages.Targets))

	runErr := manager.RunDaemon(ctx, workflow.RunContext{Run: run, Mode: cache.ModeNormal})

	status := store.RunFinished
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		status = store.RunFailed
		logger.Error("daemon loop failed", slog.Any("error", runErr))
	}

	// The run context is already canceled during shutdown.
	finishCtx, finishCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer finishCancel()
	if err := s.FinishRun(finishCtx, run.ID, status); err != nil {
		logger.Error("finish run", slog.Any("error", err))
	}

	logger.Info("wikiloomd shutting down")
}
