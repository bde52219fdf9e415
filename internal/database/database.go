package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"coachbook/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// overlapTrigger is the RAISE message of the storage-level overlap backstop.
const overlapTrigger = "booking_overlap"

type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

// NewDB opens (and migrates) the SQLite database at path. ":memory:" gives a
// private in-memory database pinned to a single connection.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	inMemory := path == ":memory:"
	dsn := path
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = path + "?_busy_timeout=5000&_txlock=immediate&_journal_mode=WAL"
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if inMemory {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, logger: logger}
	if err := db.createTables(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return db, nil
}

func (db *DB) createTables(ctx context.Context) error {
	active := inList(models.ActiveStatuses)
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bookings (
            id TEXT PRIMARY KEY,
            resource_id TEXT NOT NULL,
            subject_id TEXT NOT NULL,
            date TEXT NOT NULL,
            start_minute INTEGER NOT NULL,
            end_minute INTEGER NOT NULL,
            location TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ` + inList(models.AllStatuses) + `),
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            version INTEGER NOT NULL DEFAULT 1,
            CHECK (start_minute >= 0 AND end_minute <= 1440 AND start_minute < end_minute)
        )`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_resource_date ON bookings(resource_id, date, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_subject_date ON bookings(subject_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status_date ON bookings(status, date)`,

		// Overlap backstop: holds even if a writer skipped the application lock.
		`CREATE TRIGGER IF NOT EXISTS trg_bookings_no_overlap_insert
        BEFORE INSERT ON bookings
        WHEN NEW.status IN ` + active + `
        BEGIN
            SELECT RAISE(ABORT, '` + overlapTrigger + `')
            WHERE EXISTS (
                SELECT 1 FROM bookings
                WHERE resource_id = NEW.resource_id
                  AND date = NEW.date
                  AND status IN ` + active + `
                  AND start_minute < NEW.end_minute
                  AND end_minute > NEW.start_minute
            );
        END`,
		`CREATE TRIGGER IF NOT EXISTS trg_bookings_no_overlap_update
        BEFORE UPDATE OF resource_id, date, start_minute, end_minute, status ON bookings
        WHEN NEW.status IN ` + active + `
        BEGIN
            SELECT RAISE(ABORT, '` + overlapTrigger + `')
            WHERE EXISTS (
                SELECT 1 FROM bookings
                WHERE id <> NEW.id
                  AND resource_id = NEW.resource_id
                  AND date = NEW.date
                  AND status IN ` + active + `
                  AND start_minute < NEW.end_minute
                  AND end_minute > NEW.start_minute
            );
        END`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// inList renders statuses as a SQL literal list. Values come from the closed Status set.
func inList(statuses []models.Status) string {
	out := "("
	for i, s := range statuses {
		if i > 0 {
			out += ", "
		}
		out += "'" + string(s) + "'"
	}
	return out + ")"
}
