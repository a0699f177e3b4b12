// Package deadletter mirrors retry-exhausted queue entries into a store
// operators can inspect independently of the sqlite queue file.
package deadletter

import (
	"context"

	"finqueue/internal/models"
)

// Store holds entries that exhausted their automatic retries.
type Store interface {
	Push(ctx context.Context, entry *models.QueueEntry) error
	List(ctx context.Context) ([]models.QueueEntry, error)
	Remove(ctx context.Context, id int64) error
}
