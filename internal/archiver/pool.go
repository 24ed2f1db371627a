package archiver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/board-archiver/internal/metrics"
)

// DefaultConcurrency is the engine-wide number of post work units allowed in
// flight at once.
const DefaultConcurrency = 4

// Pool runs work units under a fixed number of permits. A unit releases its
// permit when it returns, fails or panics.
type Pool struct {
	sem      *semaphore.Weighted
	size     int64
	wg       sync.WaitGroup
	inFlight atomic.Int64
	peak     atomic.Int64
	logger   *zap.Logger
}

// NewPool returns a pool with size permits. A non-positive size falls back to
// DefaultConcurrency.
func NewPool(size int, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = DefaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		size:   int64(size),
		logger: logger,
	}
}

// Go blocks until a permit is free, then runs fn on its own goroutine. It
// only fails when ctx ends before a permit is acquired.
func (p *Pool) Go(ctx context.Context, fn func(context.Context)) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire permit: %w", err)
	}
	p.wg.Add(1)
	p.trackAcquire()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("work unit panicked", zap.Any("panic", r), zap.Stack("stack"))
			}
			p.inFlight.Add(-1)
			metrics.DecUnitsInFlight()
			p.sem.Release(1)
			p.wg.Done()
		}()
		fn(ctx)
	}()
	return nil
}

func (p *Pool) trackAcquire() {
	n := p.inFlight.Add(1)
	metrics.IncUnitsInFlight()
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			return
		}
	}
}

// Wait blocks until every dispatched unit has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Size returns the number of permits.
func (p *Pool) Size() int64 {
	return p.size
}

// InFlight returns the number of units currently holding a permit.
func (p *Pool) InFlight() int64 {
	return p.inFlight.Load()
}

// Peak returns the highest InFlight value observed.
func (p *Pool) Peak() int64 {
	return p.peak.Load()
}
