// Package postgres provides the Postgres-backed post repository.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/board-archiver/internal/archive"
	"github.com/JakeFAU/board-archiver/internal/storage/sqlrow"
)

// Config controls the Postgres connection pool used for post rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// PostRepository upserts posts into Postgres.
type PostRepository struct {
	pool   execCloser
	table  string
	upsert string
}

var _ archive.PostRepository = (*PostRepository)(nil)

// NewPostRepository connects a pool using cfg.
func NewPostRepository(ctx context.Context, cfg Config) (*PostRepository, error) {
	if cfg.DSN == "" {
		return nil, archive.ErrConfiguration.New("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, archive.ErrConfiguration.Wrap(fmt.Errorf("parse postgres dsn: %w", err))
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, archive.ErrPersistence.Wrap(fmt.Errorf("connect postgres: %w", err))
	}
	repo, err := NewPostRepositoryWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

// NewPostRepositoryWithPool constructs a repository from an existing pool
// (primarily for testing).
func NewPostRepositoryWithPool(pool execCloser, table string) (*PostRepository, error) {
	if pool == nil {
		return nil, archive.ErrConfiguration.New("pool is required")
	}
	if table == "" {
		table = sqlrow.DefaultTable
	}
	if err := sqlrow.ValidateTable(table); err != nil {
		return nil, err
	}
	return &PostRepository{
		pool:   pool,
		table:  table,
		upsert: sqlrow.Postgres.UpsertStatement(table),
	}, nil
}

// Migrate creates the posts table when it does not exist.
func (r *PostRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, sqlrow.Postgres.CreateTableStatement(r.table)); err != nil {
		return archive.ErrPersistence.Wrap(fmt.Errorf("create table %s: %w", r.table, err))
	}
	return nil
}

// Upsert inserts the post or refreshes the mutable fields of the stored row.
func (r *PostRepository) Upsert(ctx context.Context, post archive.Post) error {
	if post.Board == "" {
		return archive.ErrPersistence.New("post %d has no board", post.No)
	}
	if _, err := r.pool.Exec(ctx, r.upsert, sqlrow.Values(post)...); err != nil {
		return archive.ErrPersistence.Wrap(fmt.Errorf("upsert post %s/%d: %w", post.Board, post.No, err))
	}
	return nil
}

// Close releases the underlying pool resources.
func (r *PostRepository) Close() {
	if r == nil || r.pool == nil {
		return
	}
	r.pool.Close()
}
