package database

import (
	"context"
	"fmt"
	"time"

	"finqueue/internal/models"

	"github.com/google/uuid"
)

const entryColumns = `id, idempotency_key, type, payload, status, retries, last_error, created_at, last_attempt_at, next_attempt_at`

// InsertEntry persists a new queue entry, assigning id, created_at and the
// pending status. A failed insert means the action was neither queued nor
// delivered; the caller must surface that.
func (db *DB) InsertEntry(ctx context.Context, entry *models.QueueEntry) error {
	if entry.IdempotencyKey == "" {
		entry.IdempotencyKey = uuid.NewString()
	}
	now := time.Now()

	query := `INSERT INTO queue_entries (idempotency_key, type, payload, status, retries, last_error, created_at, last_attempt_at, next_attempt_at)
              VALUES (?, ?, ?, ?, 0, NULL, ?, NULL, NULL)`
	result, err := db.db.ExecContext(ctx, query,
		entry.IdempotencyKey,
		entry.Type,
		string(entry.Payload),
		models.EntryStatusPending,
		now,
	)
	if err != nil {
		return fmt.Errorf("%w: insert queue entry: %v", ErrStorageUnavailable, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	entry.Status = models.EntryStatusPending
	entry.Retries = 0
	entry.CreatedAt = now

	return nil
}

// GetAllEntries returns every stored entry, any status, in insertion order.
func (db *DB) GetAllEntries(ctx context.Context) ([]models.QueueEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM queue_entries ORDER BY id ASC`
	return db.queryEntries(ctx, query)
}

// GetEntry returns one entry by id.
func (db *DB) GetEntry(ctx context.Context, id int64) (*models.QueueEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM queue_entries WHERE id = ?`
	entries, err := db.queryEntries(ctx, query, id)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: id %d", ErrEntryNotFound, id)
	}
	return &entries[0], nil
}

// GetPendingCount counts entries still awaiting delivery. Dead entries are
// marked failed and so drop out of the count while staying in storage.
func (db *DB) GetPendingCount(ctx context.Context) (int, error) {
	var count int
	err := db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queue_entries WHERE status = ?`, models.EntryStatusPending,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending entries: %w", err)
	}
	return count, nil
}

// GetDeadEntries returns retry-exhausted entries, newest first.
func (db *DB) GetDeadEntries(ctx context.Context) ([]models.QueueEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM queue_entries WHERE status = ? ORDER BY created_at DESC`
	return db.queryEntries(ctx, query, models.EntryStatusFailed)
}

// MarkEntryFailed records one failed delivery attempt: increments retries,
// stores the error and attempt time, and flips the entry to failed once the
// retry ceiling is reached. Below the ceiling the entry stays pending so the
// next pass picks it up again.
func (db *DB) MarkEntryFailed(ctx context.Context, id int64, errMsg string, nextAttemptAt *time.Time) error {
	query := `UPDATE queue_entries
              SET retries = retries + 1,
                  last_error = ?,
                  last_attempt_at = ?,
                  next_attempt_at = ?,
                  status = CASE WHEN retries + 1 >= ? THEN ? ELSE ? END
              WHERE id = ?`
	result, err := db.db.ExecContext(ctx, query,
		errMsg,
		time.Now(),
		nextAttemptAt,
		models.MaxRetries,
		models.EntryStatusFailed,
		models.EntryStatusPending,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark entry %d failed: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: id %d", ErrEntryNotFound, id)
	}
	return nil
}

// RequeueEntry resets a dead entry for another round of automatic delivery.
func (db *DB) RequeueEntry(ctx context.Context, id int64) error {
	query := `UPDATE queue_entries
              SET status = ?, retries = 0, last_error = NULL, next_attempt_at = NULL
              WHERE id = ?`
	result, err := db.db.ExecContext(ctx, query, models.EntryStatusPending, id)
	if err != nil {
		return fmt.Errorf("failed to requeue entry %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: id %d", ErrEntryNotFound, id)
	}
	return nil
}

// DeleteEntry removes an entry permanently. Deleting an absent id returns
// ErrEntryNotFound; callers treat that as already resolved.
func (db *DB) DeleteEntry(ctx context.Context, id int64) error {
	result, err := db.db.ExecContext(ctx, `DELETE FROM queue_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete entry %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: id %d", ErrEntryNotFound, id)
	}
	return nil
}

func (db *DB) queryEntries(ctx context.Context, query string, args ...interface{}) ([]models.QueueEntry, error) {
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue entries: %w", err)
	}
	defer rows.Close()

	var entries []models.QueueEntry
	for rows.Next() {
		var e models.QueueEntry
		var payload string
		err := rows.Scan(
			&e.ID, &e.IdempotencyKey, &e.Type, &payload, &e.Status, &e.Retries,
			&e.LastError, &e.CreatedAt, &e.LastAttemptAt, &e.NextAttemptAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		e.Payload = []byte(payload)
		entries = append(entries, e)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate queue entries: %w", err)
	}
	return entries, nil
}
