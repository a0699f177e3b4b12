package database

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"finqueue/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) (*DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.db")
	db, err := NewDB(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, path
}

func insertTestEntry(t *testing.T, db *DB, content string) *models.QueueEntry {
	t.Helper()
	payload, err := json.Marshal(models.SocialPostPayload{
		CheckinID: "c1", LocationSlug: "edgewood", Content: content,
	})
	require.NoError(t, err)

	entry := &models.QueueEntry{Type: models.TypeSocialPost, Payload: payload}
	require.NoError(t, db.InsertEntry(context.Background(), entry))
	return entry
}

func TestInsertAssignsFields(t *testing.T) {
	db, _ := newTestDB(t)

	entry := insertTestEntry(t, db, "hello")
	assert.NotZero(t, entry.ID)
	assert.NotEmpty(t, entry.IdempotencyKey)
	assert.Equal(t, models.EntryStatusPending, entry.Status)
	assert.Equal(t, 0, entry.Retries)
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestInsertKeepsProvidedIdempotencyKey(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	entry := &models.QueueEntry{
		IdempotencyKey: "fixed-key",
		Type:           models.TypeSocialPost,
		Payload:        json.RawMessage(`{"checkin_id":"c1","location_slug":"e","content":"x"}`),
	}
	require.NoError(t, db.InsertEntry(ctx, entry))

	got, err := db.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "fixed-key", got.IdempotencyKey)
}

func TestGetAllEntriesInsertionOrder(t *testing.T) {
	db, _ := newTestDB(t)

	first := insertTestEntry(t, db, "first")
	second := insertTestEntry(t, db, "second")
	third := insertTestEntry(t, db, "third")

	entries, err := db.GetAllEntries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []int64{first.ID, second.ID, third.ID},
		[]int64{entries[0].ID, entries[1].ID, entries[2].ID})
}

func TestGetEntryNotFound(t *testing.T) {
	db, _ := newTestDB(t)

	_, err := db.GetEntry(context.Background(), 404)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestMarkEntryFailedBelowCeiling(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	entry := insertTestEntry(t, db, "retry me")
	require.NoError(t, db.MarkEntryFailed(ctx, entry.ID, "HTTP 500", nil))

	got, err := db.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EntryStatusPending, got.Status)
	assert.Equal(t, 1, got.Retries)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "HTTP 500", *got.LastError)
	require.NotNil(t, got.LastAttemptAt)

	count, err := db.GetPendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMarkEntryFailedReachesCeiling(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	entry := insertTestEntry(t, db, "doomed")
	for i := 0; i < models.MaxRetries; i++ {
		require.NoError(t, db.MarkEntryFailed(ctx, entry.ID, "HTTP 502", nil))
	}

	got, err := db.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EntryStatusFailed, got.Status)
	assert.Equal(t, models.MaxRetries, got.Retries)
	assert.True(t, got.Dead())

	// dead entries leave the pending count but stay listed
	count, err := db.GetPendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	dead, err := db.GetDeadEntries(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, entry.ID, dead[0].ID)
}

func TestMarkEntryFailedRecordsNextAttempt(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	entry := insertTestEntry(t, db, "backoff")
	next := time.Now().Add(30 * time.Second)
	require.NoError(t, db.MarkEntryFailed(ctx, entry.ID, "timeout", &next))

	got, err := db.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextAttemptAt)
	assert.WithinDuration(t, next, *got.NextAttemptAt, time.Second)
	assert.False(t, got.Eligible(time.Now()))
	assert.True(t, got.Eligible(next.Add(time.Second)))
}

func TestMarkEntryFailedMissing(t *testing.T) {
	db, _ := newTestDB(t)

	err := db.MarkEntryFailed(context.Background(), 404, "x", nil)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestRequeueEntry(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	entry := insertTestEntry(t, db, "revive")
	for i := 0; i < models.MaxRetries; i++ {
		require.NoError(t, db.MarkEntryFailed(ctx, entry.ID, "HTTP 503", nil))
	}

	require.NoError(t, db.RequeueEntry(ctx, entry.ID))

	got, err := db.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EntryStatusPending, got.Status)
	assert.Equal(t, 0, got.Retries)
	assert.Nil(t, got.LastError)
	assert.Nil(t, got.NextAttemptAt)

	assert.ErrorIs(t, db.RequeueEntry(ctx, 404), ErrEntryNotFound)
}

func TestDeleteEntry(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	entry := insertTestEntry(t, db, "bye")
	require.NoError(t, db.DeleteEntry(ctx, entry.ID))

	err := db.DeleteEntry(ctx, entry.ID)
	assert.ErrorIs(t, err, ErrEntryNotFound)

	count, err := db.GetPendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestEntriesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")

	db, err := NewDB(path)
	require.NoError(t, err)

	entry := &models.QueueEntry{Type: models.TypeDirectMessage,
		Payload: json.RawMessage(`{"from_checkin_id":"c1","to_checkin_id":"c2","content":"hi"}`)}
	require.NoError(t, db.InsertEntry(context.Background(), entry))
	require.NoError(t, db.Close())

	reopened, err := NewDB(path)
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.GetAllEntries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entry.ID, entries[0].ID)
	assert.JSONEq(t, string(entry.Payload), string(entries[0].Payload))
}
