// Package binding projects queue, network and sync state into the
// read-optimized view a presentation layer consumes, kept live through the
// event bus rather than by polling.
package binding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"finqueue/internal/database"
	"finqueue/internal/events"
	"finqueue/internal/metrics"
	"finqueue/internal/models"

	"github.com/rs/zerolog"
)

// Syncer triggers a sync pass.
type Syncer interface {
	SyncNow(ctx context.Context) error
}

// Connectivity reads the current network state.
type Connectivity interface {
	IsOnline() bool
}

// Snapshot is the display-ready state triple.
type Snapshot struct {
	PendingCount int    `json:"pending_count"`
	Online       bool   `json:"online"`
	SyncStatus   string `json:"sync_status"`
}

type Binding struct {
	db      *database.DB
	syncer  Syncer
	network Connectivity
	bus     *events.Bus
	logger  zerolog.Logger

	mu           sync.RWMutex
	pendingCount int
	online       bool
	syncStatus   string

	unsubscribe func()
}

// New reads the initial pending count and connectivity flag, then keeps
// both current by subscribing to the bus. Close releases the subscription.
func New(ctx context.Context, db *database.DB, syncer Syncer, network Connectivity, bus *events.Bus, logger *zerolog.Logger) (*Binding, error) {
	b := &Binding{
		db:         db,
		syncer:     syncer,
		network:    network,
		bus:        bus,
		syncStatus: models.SyncStatusIdle,
	}
	if logger != nil {
		b.logger = logger.With().Str("component", "binding").Logger()
	}

	count, err := db.GetPendingCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("read initial pending count: %w", err)
	}
	b.pendingCount = count
	b.online = network.IsOnline()
	metrics.SetPendingEntries(count)

	b.unsubscribe = bus.Subscribe(b.handleEvent)
	return b, nil
}

// Close unsubscribes from the bus. Safe to call more than once.
func (b *Binding) Close() {
	if b.unsubscribe != nil {
		b.unsubscribe()
	}
}

// Snapshot returns the current state triple.
func (b *Binding) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Snapshot{
		PendingCount: b.pendingCount,
		Online:       b.online,
		SyncStatus:   b.syncStatus,
	}
}

// Enqueue validates and persists a new action. While online, a sync pass is
// triggered immediately in the background. A storage failure propagates to
// the caller: the action was not captured and the user must know.
func (b *Binding) Enqueue(ctx context.Context, entryType string, payload json.RawMessage) (*models.QueueEntry, error) {
	if err := models.ValidatePayload(entryType, payload); err != nil {
		return nil, err
	}

	entry := &models.QueueEntry{Type: entryType, Payload: payload}
	if err := b.db.InsertEntry(ctx, entry); err != nil {
		return nil, err
	}

	metrics.IncQueued(entryType)
	b.logger.Info().Int64("id", entry.ID).Str("type", entryType).Msg("entry queued")
	b.bus.Publish(events.Event{Type: events.TypeQueued, Entry: entry})

	if b.network.IsOnline() {
		go func() {
			if err := b.syncer.SyncNow(context.Background()); err != nil {
				b.logger.Error().Err(err).Msg("post-enqueue sync failed")
			}
		}()
	}
	return entry, nil
}

// SyncNow forces an immediate sync pass.
func (b *Binding) SyncNow(ctx context.Context) error {
	return b.syncer.SyncNow(ctx)
}

// ListEntries returns the raw queue, any status, in insertion order.
func (b *Binding) ListEntries(ctx context.Context) ([]models.QueueEntry, error) {
	return b.db.GetAllEntries(ctx)
}

// Delete removes an entry by operator action. A missing id is benign.
func (b *Binding) Delete(ctx context.Context, id int64) error {
	if err := b.db.DeleteEntry(ctx, id); err != nil {
		if errors.Is(err, database.ErrEntryNotFound) {
			b.logger.Debug().Int64("id", id).Msg("delete of absent entry")
			return nil
		}
		return err
	}
	b.bus.Publish(events.Event{Type: events.TypeDeleted, EntryID: id})
	return nil
}

// Requeue resets a dead entry for automatic delivery again and, while
// online, triggers a pass.
func (b *Binding) Requeue(ctx context.Context, id int64) error {
	if err := b.db.RequeueEntry(ctx, id); err != nil {
		return err
	}

	entry, err := b.db.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	b.bus.Publish(events.Event{Type: events.TypeQueued, Entry: entry})

	if b.network.IsOnline() {
		go func() {
			if err := b.syncer.SyncNow(context.Background()); err != nil {
				b.logger.Error().Err(err).Msg("post-requeue sync failed")
			}
		}()
	}
	return nil
}

func (b *Binding) handleEvent(event events.Event) {
	switch event.Type {
	case events.TypeOnline:
		b.mu.Lock()
		b.online = true
		b.mu.Unlock()
	case events.TypeOffline:
		b.mu.Lock()
		b.online = false
		b.mu.Unlock()
	case events.TypeSyncStart:
		b.mu.Lock()
		b.syncStatus = models.SyncStatusSyncing
		b.mu.Unlock()
	case events.TypeSyncComplete, events.TypeSyncError:
		b.mu.Lock()
		b.syncStatus = models.SyncStatusIdle
		b.mu.Unlock()
		b.refreshCount()
	case events.TypeQueued, events.TypeSynced, events.TypeDeleted:
		// Always re-read instead of adjusting the counter locally, so the
		// view stays consistent with every mutation source.
		b.refreshCount()
	}
}

func (b *Binding) refreshCount() {
	count, err := b.db.GetPendingCount(context.Background())
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to refresh pending count")
		return
	}
	b.mu.Lock()
	b.pendingCount = count
	b.mu.Unlock()
	metrics.SetPendingEntries(count)
}
