package deadletter

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"finqueue/internal/models"

	"github.com/rs/zerolog"
)

// FailoverStore prefers the primary (redis) store and falls back to the
// secondary when the primary errors. It retries the primary after a minute.
type FailoverStore struct {
	primary  Store
	fallback Store
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverStore(primary, fallback Store, logger *zerolog.Logger) *FailoverStore {
	return &FailoverStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (f *FailoverStore) Push(ctx context.Context, entry *models.QueueEntry) error {
	if f.primaryUsable() {
		if err := f.primary.Push(ctx, entry); err == nil {
			return nil
		} else {
			f.markDown(err)
		}
	}
	return f.fallback.Push(ctx, entry)
}

func (f *FailoverStore) List(ctx context.Context) ([]models.QueueEntry, error) {
	if f.primaryUsable() {
		if entries, err := f.primary.List(ctx); err == nil {
			return entries, nil
		} else {
			f.markDown(err)
		}
	}
	return f.fallback.List(ctx)
}

func (f *FailoverStore) Remove(ctx context.Context, id int64) error {
	if f.primaryUsable() {
		if err := f.primary.Remove(ctx, id); err == nil {
			return nil
		} else {
			f.markDown(err)
		}
	}
	return f.fallback.Remove(ctx, id)
}

func (f *FailoverStore) primaryUsable() bool {
	if f.primary == nil {
		return false
	}
	if !f.isDown.Load() {
		return true
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if time.Since(f.lastCheck) > time.Minute {
		f.isDown.Store(false)
		return true
	}
	return false
}

func (f *FailoverStore) markDown(err error) {
	if f.logger != nil {
		f.logger.Error().Err(err).Msg("Primary dead letter store failed, falling back to memory")
	}
	f.isDown.Store(true)
	f.mu.Lock()
	f.lastCheck = time.Now()
	f.mu.Unlock()
}
