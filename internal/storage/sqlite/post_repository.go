// Package sqlite provides the single-file SQLite post repository.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // Import the SQLite3 driver

	"github.com/JakeFAU/board-archiver/internal/archive"
	"github.com/JakeFAU/board-archiver/internal/storage/sqlrow"
)

// Config controls where the database file lives.
type Config struct {
	// DSN is a file path, optionally prefixed with sqlite:// or sqlite:.
	DSN   string
	Table string
}

// PostRepository upserts posts into a SQLite database file.
type PostRepository struct {
	db     *sql.DB
	table  string
	upsert string
}

var _ archive.PostRepository = (*PostRepository)(nil)

// NewPostRepository opens (creating when missing) the database file.
func NewPostRepository(ctx context.Context, cfg Config) (*PostRepository, error) {
	path := filePath(cfg.DSN)
	if path == "" {
		return nil, archive.ErrConfiguration.New("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = sqlrow.DefaultTable
	}
	if err := sqlrow.ValidateTable(table); err != nil {
		return nil, err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, archive.ErrPersistence.Wrap(fmt.Errorf("create database directory: %w", err))
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, archive.ErrPersistence.Wrap(fmt.Errorf("open database: %w", err))
	}
	// SQLite allows one writer at a time; serialize in the pool rather than
	// surfacing SQLITE_BUSY to workers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, archive.ErrPersistence.Wrap(fmt.Errorf("connect database: %w", err))
	}
	return &PostRepository{
		db:     db,
		table:  table,
		upsert: sqlrow.SQLite.UpsertStatement(table),
	}, nil
}

// Migrate creates the posts table when it does not exist.
func (r *PostRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, sqlrow.SQLite.CreateTableStatement(r.table)); err != nil {
		return archive.ErrPersistence.Wrap(fmt.Errorf("create table %s: %w", r.table, err))
	}
	return nil
}

// Upsert inserts the post or refreshes the mutable fields of the stored row.
func (r *PostRepository) Upsert(ctx context.Context, post archive.Post) error {
	if post.Board == "" {
		return archive.ErrPersistence.New("post %d has no board", post.No)
	}
	if _, err := r.db.ExecContext(ctx, r.upsert, sqlrow.Values(post)...); err != nil {
		return archive.ErrPersistence.Wrap(fmt.Errorf("upsert post %s/%d: %w", post.Board, post.No, err))
	}
	return nil
}

// Close closes the database handle.
func (r *PostRepository) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

func filePath(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	dsn = strings.TrimPrefix(dsn, "sqlite://")
	dsn = strings.TrimPrefix(dsn, "sqlite:")
	if i := strings.IndexByte(dsn, '?'); i >= 0 {
		dsn = dsn[:i]
	}
	return dsn
}
