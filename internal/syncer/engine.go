package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"finqueue/internal/database"
	"finqueue/internal/events"
	"finqueue/internal/metrics"
	"finqueue/internal/models"

	"github.com/rs/zerolog"
)

// Deliverer sends one entry to the backend.
type Deliverer interface {
	Deliver(ctx context.Context, entry *models.QueueEntry) error
}

// DeadLetter receives entries that exhausted their retries.
type DeadLetter interface {
	Push(ctx context.Context, entry *models.QueueEntry) error
}

// Engine drains eligible queue entries to the delivery backend, one at a
// time, in insertion order. A single in-flight guard keeps passes from
// overlapping; one entry's failure never aborts the pass.
type Engine struct {
	db       *database.DB
	delivery Deliverer
	bus      *events.Bus
	online   func() bool
	policy   RetryPolicy
	dead     DeadLetter
	logger   zerolog.Logger

	syncInProgress atomic.Bool
}

func NewEngine(db *database.DB, delivery Deliverer, bus *events.Bus, online func() bool, policy RetryPolicy, dead DeadLetter, logger *zerolog.Logger) *Engine {
	e := &Engine{
		db:       db,
		delivery: delivery,
		bus:      bus,
		online:   online,
		policy:   policy,
		dead:     dead,
	}
	if logger != nil {
		e.logger = logger.With().Str("component", "syncer").Logger()
	}
	return e
}

// InProgress reports whether a pass is currently running.
func (e *Engine) InProgress() bool {
	return e.syncInProgress.Load()
}

// SyncNow runs one sync pass. It is a no-op while offline or while another
// pass is running. Per-entry delivery failures are recorded and retried on
// a later pass; only a failure to read the queue itself is returned.
func (e *Engine) SyncNow(ctx context.Context) error {
	if !e.online() {
		return nil
	}
	if !e.syncInProgress.CompareAndSwap(false, true) {
		return nil
	}
	// Снять флаг обязательно при любом исходе, иначе синхронизация
	// заблокируется навсегда.
	defer e.syncInProgress.Store(false)

	started := time.Now()
	e.bus.Publish(events.Event{Type: events.TypeSyncStart})

	entries, err := e.db.GetAllEntries(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to read queue")
		e.bus.Publish(events.Event{Type: events.TypeSyncError, Err: err.Error()})
		return fmt.Errorf("read queue: %w", err)
	}

	now := time.Now()
	synced := 0
	for i := range entries {
		entry := &entries[i]
		if !entry.Eligible(now) {
			continue
		}

		if err := e.delivery.Deliver(ctx, entry); err != nil {
			e.recordFailure(ctx, entry, err)
			continue
		}

		if err := e.db.DeleteEntry(ctx, entry.ID); err != nil {
			if errors.Is(err, database.ErrEntryNotFound) {
				e.logger.Debug().Int64("id", entry.ID).Msg("entry already removed")
			} else {
				e.logger.Error().Err(err).Int64("id", entry.ID).Msg("failed to delete delivered entry")
			}
		}
		synced++
		metrics.IncSynced(entry.Type)
		e.bus.Publish(events.Event{Type: events.TypeSynced, Entry: entry})
	}

	metrics.IncSyncPass()
	metrics.ObservePassDuration(time.Since(started).Seconds())
	e.logger.Info().Int("synced", synced).Msg("sync pass complete")
	e.bus.Publish(events.Event{Type: events.TypeSyncComplete, Synced: synced})
	return nil
}

func (e *Engine) recordFailure(ctx context.Context, entry *models.QueueEntry, cause error) {
	metrics.IncDeliveryFailure(entry.Type)
	e.logger.Warn().Err(cause).Int64("id", entry.ID).Str("type", entry.Type).Int("retries", entry.Retries+1).Msg("delivery failed")

	nextAttempt := e.policy.NextAttemptAt(entry.Retries + 1)
	if err := e.db.MarkEntryFailed(ctx, entry.ID, cause.Error(), nextAttempt); err != nil {
		if errors.Is(err, database.ErrEntryNotFound) {
			e.logger.Debug().Int64("id", entry.ID).Msg("entry already removed")
			return
		}
		e.logger.Error().Err(err).Int64("id", entry.ID).Msg("failed to record delivery failure")
	}

	// Локальная копия для события; хранилище обновлено выше.
	entry.Retries++
	msg := cause.Error()
	entry.LastError = &msg
	attemptedAt := time.Now()
	entry.LastAttemptAt = &attemptedAt
	entry.NextAttemptAt = nextAttempt
	if entry.Dead() {
		entry.Status = models.EntryStatusFailed
	}

	e.bus.Publish(events.Event{Type: events.TypeSyncFailed, Entry: entry, Err: cause.Error()})

	if entry.Dead() {
		metrics.IncDeadLettered()
		e.logger.Warn().Int64("id", entry.ID).Str("type", entry.Type).Msg("entry exhausted retries")
		if e.dead != nil {
			if err := e.dead.Push(ctx, entry); err != nil {
				e.logger.Error().Err(err).Int64("id", entry.ID).Msg("dead letter push failed")
			}
		}
	}
}
