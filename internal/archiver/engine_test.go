package archiver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/board-archiver/internal/archive"
	"github.com/JakeFAU/board-archiver/internal/filter"
	"github.com/JakeFAU/board-archiver/internal/hash/md5"
	"github.com/JakeFAU/board-archiver/internal/storage/memory"
)

const (
	helloWorld    = "hello world"
	helloWorldMD5 = "XrY7u+Ae7tCTyyK7j1rNww=="
)

func strPtr(s string) *string { return &s }
func int64Ptr(v int64) *int64 { return &v }

// withAttachment returns p carrying a complete attachment descriptor.
func withAttachment(p archive.Post, tim int64, ext, md5 string) archive.Post {
	p.Tim = int64Ptr(tim)
	p.Filename = strPtr("upload")
	p.Ext = strPtr(ext)
	p.Fsize = int64Ptr(int64(len(helloWorld)))
	p.MD5 = strPtr(md5)
	p.W = int64Ptr(640)
	p.H = int64Ptr(480)
	p.TnW = int64Ptr(125)
	p.TnH = int64Ptr(94)
	return p
}

type harness struct {
	client *fakeClient
	posts  *memory.PostRepository
	blobs  *memory.BlobStore
	ids    *fakeIDs
}

func newHarness(boards ...string) *harness {
	return &harness{
		client: newFakeClient(boards...),
		posts:  memory.NewPostRepository(),
		blobs:  memory.NewBlobStore(),
		ids:    &fakeIDs{},
	}
}

func (h *harness) deps() Dependencies {
	return Dependencies{
		Client: h.client,
		Posts:  h.posts,
		Blobs:  h.blobs,
		Hasher: md5.New(),
		Clock:  &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		IDs:    h.ids,
		Ledger: fakeLedger{n: 3},
	}
}

func (h *harness) engine(t *testing.T, cfg Config, boards ...BoardConfig) *Engine {
	t.Helper()
	e, err := New(h.deps(), cfg, boards, zap.NewNop())
	require.NoError(t, err)
	return e
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	h := newHarness("g")
	boards := []BoardConfig{{Name: "g"}}

	_, err := New(h.deps(), Config{}, nil, nil)
	require.Error(t, err)
	assert.True(t, archive.ErrConfiguration.Has(err))

	deps := h.deps()
	deps.Client = nil
	_, err = New(deps, Config{}, boards, nil)
	require.Error(t, err)

	deps = h.deps()
	deps.Hasher = nil
	_, err = New(deps, Config{VerifyChecksums: true}, boards, nil)
	require.Error(t, err)

	e, err := New(deps, Config{}, boards, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"g"}, e.Boards())
	assert.Equal(t, DefaultCycleInterval, e.cfg.CycleInterval)
}

func TestRunCycle_ThumbnailOnlyBoard(t *testing.T) {
	t.Parallel()

	h := newHarness("x")
	op := withAttachment(archive.Post{No: 100, Name: "Anonymous", Subject: strPtr("hi")}, 1546293948883, ".png", helloWorldMD5)
	h.client.addThread("x", 100, archive.Found([]archive.Post{op}))
	h.client.media["x/1546293948883s.jpg"] = []byte("thumb")
	h.client.media["x/1546293948883.png"] = []byte(helloWorld)

	e := h.engine(t, Config{VerifyChecksums: true}, BoardConfig{Name: "x", FullMedia: false})
	require.NoError(t, e.RunCycle(context.Background()))

	stored, ok := h.posts.Get("x", 100)
	require.True(t, ok)
	assert.Equal(t, "x", stored.Board)

	thumb, err := h.blobs.Get(context.Background(), "1546293948883s.jpg", "x")
	require.NoError(t, err)
	assert.Equal(t, []byte("thumb"), thumb)

	exists, err := h.blobs.Exists(context.Background(), "1546293948883.png", "x")
	require.NoError(t, err)
	assert.False(t, exists)

	attachments, thumbnails := h.client.mediaCalls()
	assert.Equal(t, 0, attachments)
	assert.Equal(t, 1, thumbnails)
}

func TestRunCycle_FullMediaBoard(t *testing.T) {
	t.Parallel()

	h := newHarness("g")
	op := withAttachment(archive.Post{No: 1, Name: "Anonymous"}, 555, ".jpg", helloWorldMD5)
	reply := archive.Post{No: 2, Resto: 1, Name: "Anonymous", Comment: strPtr("text only")}
	h.client.addThread("g", 1, archive.Found([]archive.Post{op, reply}))
	h.client.media["g/555.jpg"] = []byte(helloWorld)
	h.client.media["g/555s.jpg"] = []byte("thumb")

	e := h.engine(t, Config{VerifyChecksums: true}, BoardConfig{Name: "g", FullMedia: true})
	require.NoError(t, e.RunCycle(context.Background()))

	assert.Equal(t, 2, h.posts.Len())
	assert.Equal(t, 2, h.blobs.Len())
	full, err := h.blobs.Get(context.Background(), "555.jpg", "g")
	require.NoError(t, err)
	assert.Equal(t, []byte(helloWorld), full)

	status := e.Status()
	assert.Equal(t, "cycle-1", status.CycleID)
	assert.Equal(t, int64(1), status.Cycle)
	assert.Equal(t, []string{"g"}, status.Boards)
	assert.Equal(t, 3, status.LedgerEntries)
	assert.Equal(t, int64(0), status.InFlight)
	assert.False(t, status.LastCycleEnded.IsZero())
}

func TestRunCycle_SkipsExistingBlobs(t *testing.T) {
	t.Parallel()

	h := newHarness("g")
	op := withAttachment(archive.Post{No: 1, Name: "Anonymous"}, 555, ".jpg", helloWorldMD5)
	h.client.addThread("g", 1, archive.Found([]archive.Post{op}))
	ctx := context.Background()
	require.NoError(t, h.blobs.Put(ctx, "555.jpg", "g", []byte(helloWorld)))
	require.NoError(t, h.blobs.Put(ctx, "555s.jpg", "g", []byte("thumb")))

	e := h.engine(t, Config{VerifyChecksums: true}, BoardConfig{Name: "g", FullMedia: true})
	require.NoError(t, e.RunCycle(ctx))

	attachments, thumbnails := h.client.mediaCalls()
	assert.Zero(t, attachments)
	assert.Zero(t, thumbnails)
	assert.Equal(t, 2, h.blobs.Puts())
	assert.Equal(t, 1, h.posts.Len())
}

func TestRunCycle_ChecksumMismatchStopsUnit(t *testing.T) {
	t.Parallel()

	h := newHarness("g")
	op := withAttachment(archive.Post{No: 1, Name: "Anonymous"}, 555, ".jpg", "AAAAAAAAAAAAAAAAAAAAAA==")
	h.client.addThread("g", 1, archive.Found([]archive.Post{op}))
	h.client.media["g/555.jpg"] = []byte(helloWorld)
	h.client.media["g/555s.jpg"] = []byte("thumb")

	e := h.engine(t, Config{VerifyChecksums: true}, BoardConfig{Name: "g", FullMedia: true})
	require.NoError(t, e.RunCycle(context.Background()))

	// The post row is written before media, so it survives the failure.
	assert.Equal(t, 1, h.posts.Len())
	assert.Zero(t, h.blobs.Len())
	_, thumbnails := h.client.mediaCalls()
	assert.Zero(t, thumbnails)
}

func TestRunCycle_ChecksumIgnoredWhenDisabled(t *testing.T) {
	t.Parallel()

	h := newHarness("g")
	op := withAttachment(archive.Post{No: 1, Name: "Anonymous"}, 555, ".jpg", "AAAAAAAAAAAAAAAAAAAAAA==")
	h.client.addThread("g", 1, archive.Found([]archive.Post{op}))
	h.client.media["g/555.jpg"] = []byte(helloWorld)
	h.client.media["g/555s.jpg"] = []byte("thumb")

	e := h.engine(t, Config{}, BoardConfig{Name: "g", FullMedia: true})
	require.NoError(t, e.RunCycle(context.Background()))
	assert.Equal(t, 2, h.blobs.Len())
}

func TestRunCycle_PersistenceFailureSkipsMedia(t *testing.T) {
	t.Parallel()

	h := newHarness("g")
	op := withAttachment(archive.Post{No: 1, Name: "Anonymous"}, 555, ".jpg", helloWorldMD5)
	h.client.addThread("g", 1, archive.Found([]archive.Post{op}))
	h.client.media["g/555s.jpg"] = []byte("thumb")

	deps := h.deps()
	deps.Posts = failingRepo{}
	e, err := New(deps, Config{}, []BoardConfig{{Name: "g", FullMedia: true}}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, e.RunCycle(context.Background()))

	attachments, thumbnails := h.client.mediaCalls()
	assert.Zero(t, attachments)
	assert.Zero(t, thumbnails)
	assert.Zero(t, h.blobs.Len())
}

func TestRunCycle_FilterSkipsWholeThread(t *testing.T) {
	t.Parallel()

	h := newHarness("g")
	h.client.addThread("g", 1, archive.Found([]archive.Post{
		{No: 1, Name: "Anonymous", Subject: strPtr("Daily Programming Thread")},
		{No: 2, Resto: 1, Name: "Anonymous", Comment: strPtr("reply")},
	}))
	h.client.addThread("g", 3, archive.Found([]archive.Post{
		{No: 3, Name: "Anonymous", Subject: strPtr("Weather general")},
	}))

	f, err := filter.New([]string{"programming"}, false, false)
	require.NoError(t, err)

	e := h.engine(t, Config{}, BoardConfig{Name: "g", Filter: f})
	require.NoError(t, e.RunCycle(context.Background()))

	assert.Equal(t, 2, h.posts.Len())
	_, ok := h.posts.Get("g", 2)
	assert.True(t, ok, "replies follow their opening post")
	_, ok = h.posts.Get("g", 3)
	assert.False(t, ok)
}

func TestRunCycle_EmptyFilterAdmitsAll(t *testing.T) {
	t.Parallel()

	h := newHarness("g")
	h.client.addThread("g", 1, archive.Found([]archive.Post{{No: 1, Name: "Anonymous"}}))

	f, err := filter.New(nil, true, false)
	require.NoError(t, err)

	e := h.engine(t, Config{}, BoardConfig{Name: "g", Filter: f})
	require.NoError(t, e.RunCycle(context.Background()))
	assert.Equal(t, 1, h.posts.Len())
}

func TestRunCycle_NotModifiedAndNotFoundDoNoWork(t *testing.T) {
	t.Parallel()

	h := newHarness("g")
	h.client.addThread("g", 1, archive.NotModified())
	h.client.addThread("g", 2, archive.NotFound())

	e := h.engine(t, Config{}, BoardConfig{Name: "g", FullMedia: true})
	require.NoError(t, e.RunCycle(context.Background()))

	assert.Zero(t, h.posts.Len())
	assert.Zero(t, h.blobs.Len())
	assert.Equal(t, 2, h.client.threadCalls)
}

func TestRunCycle_ThreadFetchErrorSkipsThread(t *testing.T) {
	t.Parallel()

	h := newHarness("g")
	h.client.addThread("g", 1, archive.Found([]archive.Post{{No: 1, Name: "Anonymous"}}))
	h.client.addThread("g", 2, archive.Found([]archive.Post{{No: 2, Name: "Anonymous"}}))
	h.client.threadErrs[threadKey{"g", 1}] = archive.ErrTransport.New("connection reset")

	e := h.engine(t, Config{}, BoardConfig{Name: "g"})
	require.NoError(t, e.RunCycle(context.Background()))

	_, ok := h.posts.Get("g", 2)
	assert.True(t, ok)
	assert.Equal(t, 1, h.posts.Len())
}

func TestRunCycle_ThreadIndexFailureIsFatal(t *testing.T) {
	t.Parallel()

	h := newHarness("g")
	h.client.pagesErr = archive.ErrDecode.New("bad json")

	e := h.engine(t, Config{}, BoardConfig{Name: "g"})
	err := e.RunCycle(context.Background())
	require.Error(t, err)
	assert.True(t, archive.ErrDecode.Has(err))
}

func TestRunCycle_BoardListFailureIsFatal(t *testing.T) {
	t.Parallel()

	h := newHarness("g")
	h.client.boardsErr = archive.ErrTransport.New("unreachable")

	e := h.engine(t, Config{}, BoardConfig{Name: "g"})
	err := e.RunCycle(context.Background())
	require.Error(t, err)
	assert.True(t, archive.ErrTransport.Has(err))
}

func TestRunCycle_UnknownBoard(t *testing.T) {
	t.Parallel()

	h := newHarness("g", "v")
	h.client.addThread("g", 1, archive.Found([]archive.Post{{No: 1, Name: "Anonymous"}}))

	e := h.engine(t, Config{}, BoardConfig{Name: "g"}, BoardConfig{Name: "nope"})
	err := e.RunCycle(context.Background())
	require.Error(t, err)
	assert.True(t, archive.ErrConfiguration.Has(err))
	assert.Zero(t, h.posts.Len(), "no board is archived when the list is invalid")
}

func TestRunCycle_IDFailure(t *testing.T) {
	t.Parallel()

	h := newHarness("g")
	h.ids.err = errors.New("entropy exhausted")

	e := h.engine(t, Config{}, BoardConfig{Name: "g"})
	require.Error(t, e.RunCycle(context.Background()))
}

func TestUpdateBoards_AppliesAtNextCycle(t *testing.T) {
	t.Parallel()

	h := newHarness("g", "v")
	h.client.addThread("g", 1, archive.Found([]archive.Post{{No: 1, Name: "Anonymous"}}))
	h.client.addThread("v", 9, archive.Found([]archive.Post{{No: 9, Name: "Anonymous"}}))

	e := h.engine(t, Config{}, BoardConfig{Name: "g"})
	e.UpdateBoards([]BoardConfig{{Name: "v"}})
	assert.Equal(t, []string{"g"}, e.Boards())

	require.NoError(t, e.RunCycle(context.Background()))
	assert.Equal(t, []string{"v"}, e.Boards())
	assert.Equal(t, []string{"v"}, e.Status().Boards)
	_, ok := h.posts.Get("v", 9)
	assert.True(t, ok)
	_, ok = h.posts.Get("g", 1)
	assert.False(t, ok)
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	h := newHarness("g")
	h.client.addThread("g", 1, archive.Found([]archive.Post{{No: 1, Name: "Anonymous"}}))

	e := h.engine(t, Config{CycleInterval: 5 * time.Millisecond}, BoardConfig{Name: "g"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool { return e.Status().Cycle >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 1, h.posts.Len())
}

func TestRun_ReturnsFatalCycleError(t *testing.T) {
	t.Parallel()

	h := newHarness("g")
	e := h.engine(t, Config{CycleInterval: time.Hour}, BoardConfig{Name: "missing"})

	err := e.Run(context.Background())
	require.Error(t, err)
	assert.True(t, archive.ErrConfiguration.Has(err))
}
