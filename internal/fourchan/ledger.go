package fourchan

import (
	"sync"
	"time"
)

// ThreadKey identifies a thread. Thread numbers are only unique per board.
type ThreadKey struct {
	Board string
	No    int64
}

// Ledger remembers when each thread was last fetched successfully. It is
// shared by every caller of one Client and lives only in memory.
type Ledger struct {
	mu      sync.RWMutex
	entries map[ThreadKey]time.Time
}

// NewLedger returns an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[ThreadKey]time.Time)}
}

// Get returns the last successful fetch time of a thread.
func (l *Ledger) Get(board string, no int64) (time.Time, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.entries[ThreadKey{Board: board, No: no}]
	return t, ok
}

// Set records a successful fetch of a thread at t.
func (l *Ledger) Set(board string, no int64, t time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[ThreadKey{Board: board, No: no}] = t
}

// Len reports how many threads have an entry.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
