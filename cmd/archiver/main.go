package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/JakeFAU/board-archiver/internal/api"
	"github.com/JakeFAU/board-archiver/internal/archiver"
	"github.com/JakeFAU/board-archiver/internal/clock/system"
	"github.com/JakeFAU/board-archiver/internal/config"
	"github.com/JakeFAU/board-archiver/internal/fourchan"
	"github.com/JakeFAU/board-archiver/internal/hash/md5"
	"github.com/JakeFAU/board-archiver/internal/id/uuid"
	"github.com/JakeFAU/board-archiver/internal/logging"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file (defaults to $CONFIG_PATH)")
	envPath := flag.String("env", ".env", "Path to an optional dotenv file")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "load env file failed: %v\n", err)
		os.Exit(1)
	}

	path := config.ResolvePath(*cfgPath)
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, path, logger); err != nil {
		logger.Error("archiver exited", zap.Error(err))
		stop()
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, path string, logger *zap.Logger) error {
	blobs, closeBlobs, err := newBlobStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeBlobs()

	posts, err := newPostRepository(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer posts.Close()

	boards, err := cfg.BoardConfigs()
	if err != nil {
		return fmt.Errorf("build boards: %w", err)
	}

	clock := system.New()
	ledger := fourchan.NewLedger()
	client := fourchan.New(fourchan.Config{
		APIURL:            cfg.Remote.APIURL,
		MediaURL:          cfg.Remote.MediaURL,
		UserAgent:         cfg.Remote.UserAgent,
		Timeout:           cfg.Remote.Timeout(),
		RequestsPerSecond: cfg.Remote.RequestsPerSecond,
		Burst:             cfg.Remote.Burst,
		MaxRetries:        cfg.Remote.MaxRetries,
		BackoffInitial:    cfg.Remote.BackoffInitial(),
		BackoffMax:        cfg.Remote.BackoffMax(),
	}, ledger, clock, logger.Named("fourchan"))

	engine, err := archiver.New(archiver.Dependencies{
		Client: client,
		Posts:  posts,
		Blobs:  blobs,
		Hasher: md5.New(),
		Clock:  clock,
		IDs:    uuid.New(),
		Ledger: ledger,
	}, archiver.Config{
		CycleInterval:   cfg.Archiver.CycleInterval,
		Concurrency:     cfg.Archiver.Concurrency,
		VerifyChecksums: cfg.Archiver.VerifyChecksums,
	}, boards, logger)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	if path != "" {
		if err := config.Watch(path, logger.Named("config"), func(next config.Config) {
			updated, err := next.BoardConfigs()
			if err != nil {
				logger.Warn("ignoring board update", zap.Error(err))
				return
			}
			engine.UpdateBoards(updated)
		}); err != nil {
			logger.Warn("config watch disabled", zap.Error(err))
		}
	}

	if cfg.Server.Enabled {
		srv := api.NewServer(engine, logger)
		go func() {
			if err := srv.ListenAndServe(ctx, fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
				logger.Error("ops server error", zap.Error(err))
			}
		}()
	}

	logger.Info("archiver started",
		zap.Strings("boards", engine.Boards()),
		zap.Int("concurrency", cfg.Archiver.Concurrency),
		zap.Duration("cycle_interval", cfg.Archiver.CycleInterval),
	)
	if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
