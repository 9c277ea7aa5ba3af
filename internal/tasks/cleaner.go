package tasks

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/hugh/taskeasy/internal/storage"
)

// BlobCleaner disposes of blobs whose records were deleted. With a queue
// client the work is enqueued; without one, or when enqueueing fails, the
// blobs are deleted inline. Failures are logged, never returned.
type BlobCleaner struct {
	client *asynq.Client
	store  storage.Store
	logger *slog.Logger
}

func NewBlobCleaner(client *asynq.Client, store storage.Store, logger *slog.Logger) *BlobCleaner {
	return &BlobCleaner{
		client: client,
		store:  store,
		logger: logger,
	}
}

func (c *BlobCleaner) Remove(ctx context.Context, reason string, keys []string) {
	if len(keys) == 0 {
		return
	}

	if c.client != nil {
		task, err := NewBlobsDeleteTask(BlobsDeletePayload{Keys: keys, Reason: reason})
		if err == nil {
			if _, err = c.client.EnqueueContext(ctx, task); err == nil {
				return
			}
		}
		c.logger.Warn("enqueue blob cleanup failed, deleting inline", "reason", reason, "error", err)
	}

	_ = storage.DeleteAll(ctx, c.store, keys, c.logger)
}
