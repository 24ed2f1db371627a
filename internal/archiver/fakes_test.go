package archiver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/board-archiver/internal/archive"
)

type threadKey struct {
	board string
	no    int64
}

type fakeClient struct {
	mu          sync.Mutex
	boards      []archive.Board
	boardsErr   error
	pages       map[string][]archive.ThreadIndexPage
	pagesErr    error
	threads     map[threadKey]archive.ThreadResult
	threadErrs  map[threadKey]error
	media       map[string][]byte
	attachments int
	thumbnails  int
	threadCalls int
}

func newFakeClient(boards ...string) *fakeClient {
	c := &fakeClient{
		pages:      make(map[string][]archive.ThreadIndexPage),
		threads:    make(map[threadKey]archive.ThreadResult),
		threadErrs: make(map[threadKey]error),
		media:      make(map[string][]byte),
	}
	for _, b := range boards {
		c.boards = append(c.boards, archive.Board{Board: b})
	}
	return c
}

// addThread lists a thread on page 1 of board and serves result for it.
func (c *fakeClient) addThread(board string, no int64, result archive.ThreadResult) {
	pages := c.pages[board]
	if len(pages) == 0 {
		pages = []archive.ThreadIndexPage{{Page: 1}}
	}
	pages[0].Threads = append(pages[0].Threads, archive.ThreadIndexEntry{No: no})
	c.pages[board] = pages
	c.threads[threadKey{board, no}] = result
}

func (c *fakeClient) ListBoards(context.Context) ([]archive.Board, error) {
	return c.boards, c.boardsErr
}

func (c *fakeClient) ListThreadPages(_ context.Context, board string) ([]archive.ThreadIndexPage, error) {
	if c.pagesErr != nil {
		return nil, c.pagesErr
	}
	return c.pages[board], nil
}

func (c *fakeClient) FetchThread(_ context.Context, board string, no int64) (archive.ThreadResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threadCalls++
	if err := c.threadErrs[threadKey{board, no}]; err != nil {
		return archive.ThreadResult{}, err
	}
	res, ok := c.threads[threadKey{board, no}]
	if !ok {
		return archive.NotFound(), nil
	}
	// Hand out a copy so the engine cannot mutate the fixture.
	res.Posts = append([]archive.Post(nil), res.Posts...)
	return res, nil
}

func (c *fakeClient) FetchAttachment(_ context.Context, board string, tim int64, ext string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attachments++
	return c.mediaFor(fmt.Sprintf("%s/%d%s", board, tim, ext))
}

func (c *fakeClient) FetchThumbnail(_ context.Context, board string, tim int64) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.thumbnails++
	return c.mediaFor(fmt.Sprintf("%s/%ds.jpg", board, tim))
}

func (c *fakeClient) mediaFor(path string) ([]byte, error) {
	data, ok := c.media[path]
	if !ok {
		return nil, archive.ErrNotFound.New("%s", path)
	}
	return data, nil
}

func (c *fakeClient) mediaCalls() (attachments, thumbnails int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attachments, c.thumbnails
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(time.Second)
	return f.now
}

// After uses real time so Run tests observe actual pacing.
func (f *fakeClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

type fakeIDs struct {
	mu  sync.Mutex
	n   int
	err error
}

func (f *fakeIDs) NewID() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.n++
	return fmt.Sprintf("cycle-%d", f.n), nil
}

type failingRepo struct{}

func (failingRepo) Upsert(context.Context, archive.Post) error {
	return archive.ErrPersistence.Wrap(errors.New("disk full"))
}

func (failingRepo) Close() {}

type fakeLedger struct{ n int }

func (f fakeLedger) Len() int { return f.n }
