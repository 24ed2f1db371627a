package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/board-archiver/internal/archive"
	"github.com/JakeFAU/board-archiver/internal/storage/sqlrow"
)

func strPtr(v string) *string { return &v }
func int64Ptr(v int64) *int64 { return &v }

func samplePost() archive.Post {
	return archive.Post{
		No:       570368,
		Time:     1546293948,
		Now:      "12/31/18(Mon)17:05:48",
		Name:     "Anonymous",
		Subject:  strPtr("Welcome"),
		Tim:      int64Ptr(1546293948883),
		Ext:      strPtr(".png"),
		Replies:  int64Ptr(2),
		Images:   int64Ptr(1),
		Board:    "g",
		Archived: 0,
	}
}

func TestUpsertExecutesSingleStatement(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo, err := NewPostRepositoryWithPool(mock, "")
	require.NoError(t, err)

	post := samplePost()
	mock.ExpectExec(`INSERT INTO posts \(no, resto, .*\) ON CONFLICT \(board, no\) DO UPDATE SET`).
		WithArgs(sqlrow.Values(post)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Upsert(context.Background(), post))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertTwiceIssuesSameStatement(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo, err := NewPostRepositoryWithPool(mock, "posts")
	require.NoError(t, err)

	post := samplePost()
	for range 2 {
		mock.ExpectExec("INSERT INTO posts").
			WithArgs(sqlrow.Values(post)...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	ctx := context.Background()
	require.NoError(t, repo.Upsert(ctx, post))
	require.NoError(t, repo.Upsert(ctx, post))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertWrapsFailures(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo, err := NewPostRepositoryWithPool(mock, "posts")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO posts").
		WithArgs(sqlrow.Values(samplePost())...).
		WillReturnError(errors.New("connection reset"))

	err = repo.Upsert(context.Background(), samplePost())
	require.Error(t, err)
	assert.True(t, archive.ErrPersistence.Has(err))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestUpsertRequiresBoard(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo, err := NewPostRepositoryWithPool(mock, "posts")
	require.NoError(t, err)

	post := samplePost()
	post.Board = ""
	require.Error(t, repo.Upsert(context.Background(), post))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateCreatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo, err := NewPostRepositoryWithPool(mock, "archive_posts")
	require.NoError(t, err)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS archive_posts`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, repo.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPostRepositoryValidation(t *testing.T) {
	t.Parallel()

	_, err := NewPostRepositoryWithPool(nil, "posts")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewPostRepositoryWithPool(mock, "bad-name")
	require.Error(t, err)
	assert.True(t, archive.ErrConfiguration.Has(err))

	_, err = NewPostRepository(context.Background(), Config{})
	require.Error(t, err)
}
