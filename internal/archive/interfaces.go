package archive

import (
	"context"
	"time"
)

// Client talks to the remote board API.
type Client interface {
	ListBoards(ctx context.Context) ([]Board, error)
	ListThreadPages(ctx context.Context, board string) ([]ThreadIndexPage, error)
	FetchThread(ctx context.Context, board string, threadNo int64) (ThreadResult, error)
	FetchAttachment(ctx context.Context, board string, tim int64, ext string) ([]byte, error)
	FetchThumbnail(ctx context.Context, board string, tim int64) ([]byte, error)
}

// BlobStore persists attachment and thumbnail bytes under a per-board
// namespace. Keys are write-once.
type BlobStore interface {
	Exists(ctx context.Context, key, namespace string) (bool, error)
	Put(ctx context.Context, key, namespace string, data []byte) error
	Get(ctx context.Context, key, namespace string) ([]byte, error)
}

// PostRepository upserts post records keyed by (board, no).
type PostRepository interface {
	Upsert(ctx context.Context, post Post) error
	Close()
}

// Filter decides whether a thread is archived based on its opening post.
type Filter interface {
	Admit(op *Post) bool
	Empty() bool
}

// Hasher computes attachment checksums in the remote's encoding.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time and paces the cycle loop (useful for
// testing).
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// IDGenerator produces cycle IDs.
type IDGenerator interface {
	NewID() (string, error)
}
