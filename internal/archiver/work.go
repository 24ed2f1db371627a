package archiver

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/board-archiver/internal/archive"
	"github.com/JakeFAU/board-archiver/internal/metrics"
)

// archivePost is one work unit: persist the post, then save its media.
// Failures are logged and end only this unit.
func (e *Engine) archivePost(ctx context.Context, board BoardConfig, post archive.Post) {
	logger := e.logger.With(zap.String("board", board.Name), zap.Int64("post", post.No))
	if err := e.deps.Posts.Upsert(ctx, post); err != nil {
		metrics.ObservePost(board.Name, "failed")
		logger.Error("save post failed", zap.Error(err))
		return
	}

	if att, ok := post.Attachment(); ok {
		if board.FullMedia {
			if err := e.saveAttachment(ctx, board.Name, att); err != nil {
				metrics.ObservePost(board.Name, "failed")
				logger.Error("save attachment failed", zap.String("key", att.Key()), zap.Error(err))
				return
			}
		}
		if err := e.saveThumbnail(ctx, board.Name, att); err != nil {
			metrics.ObservePost(board.Name, "failed")
			logger.Error("save thumbnail failed", zap.String("key", att.ThumbnailKey()), zap.Error(err))
			return
		}
	}
	metrics.ObservePost(board.Name, "archived")
	logger.Debug("archived post")
}

func (e *Engine) saveAttachment(ctx context.Context, board string, att archive.Attachment) error {
	return e.saveIfAbsent(ctx, archive.BlobKindAttachment, board, att.Key(), func(ctx context.Context) ([]byte, error) {
		data, err := e.deps.Client.FetchAttachment(ctx, board, att.Tim, att.Ext)
		if err != nil {
			return nil, err
		}
		if err := e.verify(data, att.MD5); err != nil {
			return nil, err
		}
		return data, nil
	})
}

func (e *Engine) saveThumbnail(ctx context.Context, board string, att archive.Attachment) error {
	return e.saveIfAbsent(ctx, archive.BlobKindThumbnail, board, att.ThumbnailKey(), func(ctx context.Context) ([]byte, error) {
		return e.deps.Client.FetchThumbnail(ctx, board, att.Tim)
	})
}

// saveIfAbsent fetches and stores a blob only when the store lacks key. Two
// units racing on the same new key may both write; the bytes are identical.
func (e *Engine) saveIfAbsent(
	ctx context.Context,
	kind, namespace, key string,
	fetch func(context.Context) ([]byte, error),
) error {
	exists, err := e.deps.Blobs.Exists(ctx, key, namespace)
	if err != nil {
		metrics.ObserveBlob(kind, "failed", 0)
		return fmt.Errorf("check %s %s: %w", kind, key, err)
	}
	if exists {
		metrics.ObserveBlob(kind, "skipped", 0)
		e.logger.Debug("blob exists", zap.String("board", namespace), zap.String("key", key))
		return nil
	}
	data, err := fetch(ctx)
	if err != nil {
		metrics.ObserveBlob(kind, "failed", 0)
		return fmt.Errorf("fetch %s %s: %w", kind, key, err)
	}
	if err := e.deps.Blobs.Put(ctx, key, namespace, data); err != nil {
		metrics.ObserveBlob(kind, "failed", 0)
		return fmt.Errorf("store %s %s: %w", kind, key, err)
	}
	metrics.ObserveBlob(kind, "stored", len(data))
	return nil
}

// verify compares data against the remote's base64 MD5 digest.
func (e *Engine) verify(data []byte, want string) error {
	if !e.cfg.VerifyChecksums || want == "" {
		return nil
	}
	got, err := e.deps.Hasher.Hash(data)
	if err != nil {
		return fmt.Errorf("hash attachment: %w", err)
	}
	if got != want {
		return archive.ErrTransport.New("checksum mismatch: got %s, want %s (%d bytes)", got, want, len(data))
	}
	return nil
}
