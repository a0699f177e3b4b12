package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrStorageUnavailable значит, что постоянное хранилище недоступно:
	// очередь невозможна, вызывающий должен отклонить запись.
	ErrStorageUnavailable = errors.New("persistent storage unavailable")

	// ErrEntryNotFound запись с таким id отсутствует в очереди.
	ErrEntryNotFound = errors.New("queue entry not found")
)

type DB struct {
	db *sql.DB
}

// NewDB opens (or creates) the queue database at path. Safe to call once
// per process; the handle is shared by every component.
func NewDB(path string) (*DB, error) {
	// Создаем директорию для БД, если её нет
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create database directory: %v", ErrStorageUnavailable, err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", ErrStorageUnavailable, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: connect to database: %v", ErrStorageUnavailable, err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &DB{db: db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		// Таблица очереди исходящих действий
		`CREATE TABLE IF NOT EXISTS queue_entries (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            idempotency_key TEXT NOT NULL,
            type TEXT NOT NULL,
            payload TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            retries INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            last_attempt_at DATETIME,
            next_attempt_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_queue_entries_created_at ON queue_entries(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_entries_type ON queue_entries(type)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_entries_status ON queue_entries(status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %v", query, err)
		}
	}
	return nil
}

func (db *DB) PingContext(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.db.Close()
}
