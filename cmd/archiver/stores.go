package main

import (
	"context"
	"fmt"
	"strings"

	gcsstorage "cloud.google.com/go/storage"

	"github.com/JakeFAU/board-archiver/internal/archive"
	"github.com/JakeFAU/board-archiver/internal/config"
	"github.com/JakeFAU/board-archiver/internal/storage/gcs"
	"github.com/JakeFAU/board-archiver/internal/storage/local"
	"github.com/JakeFAU/board-archiver/internal/storage/memory"
	"github.com/JakeFAU/board-archiver/internal/storage/postgres"
	"github.com/JakeFAU/board-archiver/internal/storage/s3"
	"github.com/JakeFAU/board-archiver/internal/storage/sqlite"
)

// newBlobStore builds the configured blob store and a cleanup func.
func newBlobStore(ctx context.Context, cfg config.StorageConfig) (archive.BlobStore, func(), error) {
	noop := func() {}
	switch strings.ToLower(cfg.Provider) {
	case config.ProviderMemory:
		return memory.NewBlobStore(), noop, nil
	case config.ProviderLocal:
		store, err := local.New(local.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, nil, fmt.Errorf("open local blob store: %w", err)
		}
		return store, noop, nil
	case config.ProviderGCS:
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create gcs client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket, Prefix: cfg.Prefix})
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("open gcs blob store: %w", err)
		}
		return store, func() { _ = client.Close() }, nil
	case config.ProviderS3:
		store, err := s3.New(ctx, s3.Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			PathStyle: cfg.S3.PathStyle,
			Prefix:    cfg.Prefix,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open s3 blob store: %w", err)
		}
		return store, noop, nil
	default:
		return nil, nil, archive.ErrConfiguration.New("unsupported storage provider %q", cfg.Provider)
	}
}

// newPostRepository opens the configured repository and creates its table.
func newPostRepository(ctx context.Context, cfg config.DBConfig) (archive.PostRepository, error) {
	switch cfg.ResolvedDriver() {
	case config.DriverMemory:
		return memory.NewPostRepository(), nil
	case config.DriverPostgres:
		repo, err := postgres.NewPostRepository(ctx, postgres.Config{
			DSN:             cfg.DSN,
			Table:           cfg.Table,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres repository: %w", err)
		}
		if err := repo.Migrate(ctx); err != nil {
			repo.Close()
			return nil, fmt.Errorf("migrate postgres repository: %w", err)
		}
		return repo, nil
	case config.DriverSQLite:
		repo, err := sqlite.NewPostRepository(ctx, sqlite.Config{DSN: cfg.DSN, Table: cfg.Table})
		if err != nil {
			return nil, fmt.Errorf("open sqlite repository: %w", err)
		}
		if err := repo.Migrate(ctx); err != nil {
			repo.Close()
			return nil, fmt.Errorf("migrate sqlite repository: %w", err)
		}
		return repo, nil
	default:
		return nil, archive.ErrConfiguration.New("unsupported db driver %q", cfg.Driver)
	}
}
