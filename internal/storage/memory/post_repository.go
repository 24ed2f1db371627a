package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/board-archiver/internal/archive"
)

type postKey struct {
	board string
	no    int64
}

// PostRepository keeps posts keyed by (board, no) with the same merge rules
// as the SQL repositories.
type PostRepository struct {
	mu    sync.RWMutex
	posts map[postKey]archive.Post
}

var _ archive.PostRepository = (*PostRepository)(nil)

// NewPostRepository creates an empty repository.
func NewPostRepository() *PostRepository {
	return &PostRepository{posts: make(map[postKey]archive.Post)}
}

// Upsert inserts the post, or refreshes the mutable fields of an existing one.
func (r *PostRepository) Upsert(_ context.Context, post archive.Post) error {
	if post.Board == "" {
		return archive.ErrPersistence.New("post %d has no board", post.No)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := postKey{board: post.Board, no: post.No}
	existing, ok := r.posts[key]
	if !ok {
		r.posts[key] = post
		return nil
	}
	existing.FileDeleted = post.FileDeleted
	existing.Replies = post.Replies
	existing.Images = post.Images
	existing.BumpLimit = post.BumpLimit
	existing.ImageLimit = post.ImageLimit
	if post.UniqueIPs != nil {
		existing.UniqueIPs = post.UniqueIPs
	}
	existing.Archived = post.Archived
	existing.ArchivedOn = post.ArchivedOn
	r.posts[key] = existing
	return nil
}

// Get returns the stored post.
func (r *PostRepository) Get(board string, no int64) (archive.Post, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	post, ok := r.posts[postKey{board: board, no: no}]
	return post, ok
}

// List returns every post of board ordered by number.
func (r *PostRepository) List(board string) []archive.Post {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]archive.Post, 0)
	for key, post := range r.posts {
		if key.board == board {
			out = append(out, post)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].No < out[j].No })
	return out
}

// Len returns the number of stored posts.
func (r *PostRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.posts)
}

// Close is a no-op.
func (r *PostRepository) Close() {}
