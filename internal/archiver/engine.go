package archiver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/board-archiver/internal/archive"
	"github.com/JakeFAU/board-archiver/internal/metrics"
)

// DefaultCycleInterval is the pause between two full cycles.
const DefaultCycleInterval = 10 * time.Minute

// BoardConfig describes how one board is archived.
type BoardConfig struct {
	Name string
	// FullMedia saves full attachments as well as thumbnails.
	FullMedia bool
	// Filter selects threads by their opening post. Nil admits every thread.
	Filter archive.Filter
}

// Config controls engine pacing and verification.
type Config struct {
	CycleInterval   time.Duration
	Concurrency     int
	VerifyChecksums bool
}

// Dependencies are the collaborators an Engine drives.
type Dependencies struct {
	Client archive.Client
	Posts  archive.PostRepository
	Blobs  archive.BlobStore
	Hasher archive.Hasher
	Clock  archive.Clock
	IDs    archive.IDGenerator
	// Ledger is optional and only feeds Status.
	Ledger interface{ Len() int }
}

// Engine owns the board snapshot, the cursor into it and the permit pool.
type Engine struct {
	deps   Dependencies
	cfg    Config
	pool   *Pool
	logger *zap.Logger

	mu         sync.Mutex
	boards     []BoardConfig
	pending    []BoardConfig
	hasPending bool
	status     archive.StatusSnapshot
}

// New validates the dependencies and builds an Engine for boards.
func New(deps Dependencies, cfg Config, boards []BoardConfig, logger *zap.Logger) (*Engine, error) {
	switch {
	case deps.Client == nil:
		return nil, errors.New("archiver: client is required")
	case deps.Posts == nil:
		return nil, errors.New("archiver: post repository is required")
	case deps.Blobs == nil:
		return nil, errors.New("archiver: blob store is required")
	case deps.Clock == nil:
		return nil, errors.New("archiver: clock is required")
	case deps.IDs == nil:
		return nil, errors.New("archiver: id generator is required")
	case cfg.VerifyChecksums && deps.Hasher == nil:
		return nil, errors.New("archiver: hasher is required to verify checksums")
	}
	if len(boards) == 0 {
		return nil, archive.ErrConfiguration.New("at least one board is required")
	}
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = DefaultCycleInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("archiver")
	return &Engine{
		deps:   deps,
		cfg:    cfg,
		pool:   NewPool(cfg.Concurrency, logger),
		logger: logger,
		boards: cloneBoards(boards),
	}, nil
}

// Run archives cycle after cycle, sleeping CycleInterval in between, until
// ctx ends or a cycle fails fatally. In-flight units are drained before Run
// returns.
func (e *Engine) Run(ctx context.Context) error {
	defer e.pool.Wait()
	for {
		if err := e.RunCycle(ctx); err != nil {
			return err
		}
		e.logger.Debug("waiting for next cycle", zap.Duration("interval", e.cfg.CycleInterval))
		select {
		case <-ctx.Done():
			return fmt.Errorf("archiver stopped: %w", ctx.Err())
		case <-e.deps.Clock.After(e.cfg.CycleInterval):
		}
	}
}

// RunCycle walks every board of the current snapshot once and waits for the
// dispatched units to finish. Board and thread index listing failures, and
// boards the remote does not serve, end the cycle with an error.
func (e *Engine) RunCycle(ctx context.Context) error {
	boards := e.beginSnapshot()
	cycleID, err := e.deps.IDs.NewID()
	if err != nil {
		return fmt.Errorf("generate cycle id: %w", err)
	}
	started := e.deps.Clock.Now()
	e.startStatus(cycleID, started, boards)
	logger := e.logger.With(zap.String("cycle_id", cycleID))
	logger.Info("cycle started", zap.Int("boards", len(boards)))

	err = e.runBoards(ctx, logger, boards)
	e.pool.Wait()

	ended := e.deps.Clock.Now()
	e.endStatus(ended)
	duration := ended.Sub(started)
	if err != nil {
		metrics.ObserveCycle("failed", duration)
		logger.Error("cycle failed", zap.Duration("duration", duration), zap.Error(err))
		return err
	}
	metrics.ObserveCycle("ok", duration)
	logger.Info("cycle finished", zap.Duration("duration", duration))
	return nil
}

func (e *Engine) runBoards(ctx context.Context, logger *zap.Logger, boards []BoardConfig) error {
	remote, err := e.deps.Client.ListBoards(ctx)
	if err != nil {
		return fmt.Errorf("list boards: %w", err)
	}
	served := make(map[string]struct{}, len(remote))
	for _, b := range remote {
		served[b.Board] = struct{}{}
	}
	for _, b := range boards {
		if _, ok := served[b.Name]; !ok {
			return archive.ErrConfiguration.New("board %q is not served by the remote", b.Name)
		}
	}

	for i, board := range boards {
		e.setCursor(i, board.Name)
		if err := e.archiveBoard(ctx, logger.With(zap.String("board", board.Name)), board); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) archiveBoard(ctx context.Context, logger *zap.Logger, board BoardConfig) error {
	pages, err := e.deps.Client.ListThreadPages(ctx, board.Name)
	if err != nil {
		return fmt.Errorf("list threads of /%s/: %w", board.Name, err)
	}
	for _, page := range pages {
		logger.Debug("found threads", zap.Int("page", page.Page), zap.Int("threads", len(page.Threads)))
		for _, entry := range page.Threads {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("archive /%s/: %w", board.Name, err)
			}
			if err := e.archiveThread(ctx, logger.With(zap.Int64("thread", entry.No)), board, entry.No); err != nil {
				return err
			}
		}
	}
	return nil
}

// archiveThread fetches one thread and dispatches its posts. Only a
// cancelled context is returned as an error; fetch failures skip the thread.
func (e *Engine) archiveThread(ctx context.Context, logger *zap.Logger, board BoardConfig, threadNo int64) error {
	started := time.Now()
	result, err := e.deps.Client.FetchThread(ctx, board.Name, threadNo)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("fetch thread %d: %w", threadNo, ctx.Err())
		}
		metrics.ObserveThread(board.Name, "error")
		logger.Warn("thread fetch failed, skipping", zap.Error(err))
		return nil
	}
	metrics.ObserveThread(board.Name, result.Status.String())

	switch result.Status {
	case archive.ThreadNotModified:
		logger.Debug("thread was not modified")
		return nil
	case archive.ThreadNotFound:
		logger.Warn("thread could not be found")
		return nil
	case archive.ThreadFound:
	}

	if board.Filter != nil && !board.Filter.Empty() && !board.Filter.Admit(result.OpeningPost()) {
		metrics.ObserveThread(board.Name, "filtered")
		logger.Debug("skipping thread rejected by filter")
		return nil
	}

	for _, post := range result.Posts {
		post.Board = board.Name
		if err := e.pool.Go(ctx, func(ctx context.Context) {
			e.archivePost(ctx, board, post)
		}); err != nil {
			return fmt.Errorf("dispatch post %d: %w", post.No, err)
		}
	}
	logger.Info("archived thread",
		zap.Int("posts", len(result.Posts)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// UpdateBoards replaces the board list from the next cycle on. The cycle in
// progress keeps its snapshot.
func (e *Engine) UpdateBoards(boards []BoardConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = cloneBoards(boards)
	e.hasPending = true
}

// Boards returns the names of the boards in the current snapshot.
func (e *Engine) Boards() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return boardNames(e.boards)
}

// Status returns a point-in-time view of the engine.
func (e *Engine) Status() archive.StatusSnapshot {
	e.mu.Lock()
	snap := e.status
	snap.Boards = append([]string(nil), e.status.Boards...)
	e.mu.Unlock()

	snap.InFlight = e.pool.InFlight()
	snap.PeakInFlight = e.pool.Peak()
	if e.deps.Ledger != nil {
		snap.LedgerEntries = e.deps.Ledger.Len()
	}
	return snap
}

// Wait blocks until every dispatched unit has returned.
func (e *Engine) Wait() {
	e.pool.Wait()
}

func (e *Engine) beginSnapshot() []BoardConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hasPending {
		e.boards = e.pending
		e.pending = nil
		e.hasPending = false
		e.logger.Info("board configuration reloaded", zap.Strings("boards", boardNames(e.boards)))
	}
	return e.boards
}

func (e *Engine) startStatus(cycleID string, started time.Time, boards []BoardConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.CycleID = cycleID
	e.status.Cycle++
	e.status.CycleStarted = started
	e.status.Boards = boardNames(boards)
	e.status.Cursor = 0
	e.status.Board = ""
}

func (e *Engine) setCursor(i int, board string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.Cursor = i
	e.status.Board = board
}

func (e *Engine) endStatus(ended time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.LastCycleEnded = ended
}

func cloneBoards(boards []BoardConfig) []BoardConfig {
	return append([]BoardConfig(nil), boards...)
}

func boardNames(boards []BoardConfig) []string {
	names := make([]string, len(boards))
	for i, b := range boards {
		names[i] = b.Name
	}
	return names
}
