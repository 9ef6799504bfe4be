// Package store persists the schedule aggregate, the service catalog and
// appointments in SQLite. It implements the repository contracts of the
// booking, schedule, reminders and audit packages.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"velora/internal/booking"
	"velora/internal/model"
)

// ErrStaleVersion is returned when an optimistic update lost the race: the
// row's version moved since it was read.
var ErrStaleVersion = errors.New("appointment version is stale")

// dbtx is the common surface of *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store wraps the database. A Store bound to a transaction (inside InTx)
// shares the connection but routes all statements through the transaction.
type Store struct {
	db  *sql.DB
	tx  *sql.Tx
	ext dbtx
}

// Open opens the database at path and runs migrations. Transactions start
// immediate so read-then-write operations serialize at begin time.
func Open(path string) (*Store, error) {
	dsn := path + "?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, ext: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks connectivity for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTx runs fn against a transaction-bound repository. A nested call reuses
// the surrounding transaction.
func (s *Store) InTx(ctx context.Context, fn func(booking.Repository) error) error {
	if s.tx != nil {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	bound := &Store{db: s.db, tx: tx, ext: tx}
	if err := fn(bound); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS weekly_hours (
			day TEXT PRIMARY KEY,
			closed BOOLEAN NOT NULL DEFAULT 0,
			opening_am TEXT NOT NULL DEFAULT '',
			closing_am TEXT NOT NULL DEFAULT '',
			opening_pm TEXT NOT NULL DEFAULT '',
			closing_pm TEXT NOT NULL DEFAULT '',
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// One override per calendar date, enforced by the primary key.
		`CREATE TABLE IF NOT EXISTS special_days (
			date TEXT PRIMARY KEY,
			closed BOOLEAN NOT NULL DEFAULT 0,
			opening_am TEXT NOT NULL DEFAULT '',
			closing_am TEXT NOT NULL DEFAULT '',
			opening_pm TEXT NOT NULL DEFAULT '',
			closing_pm TEXT NOT NULL DEFAULT '',
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS services (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			duration_min INTEGER NOT NULL,
			active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS appointments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			public_id TEXT UNIQUE NOT NULL,
			user_id INTEGER NOT NULL,
			user_name TEXT NOT NULL DEFAULT '',
			date TEXT NOT NULL,
			time TEXT NOT NULL,
			duration_min INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			notes TEXT NOT NULL DEFAULT '',
			cancel_reason TEXT NOT NULL DEFAULT '',
			cancelled_at DATETIME,
			reminder_sent BOOLEAN NOT NULL DEFAULT 0,
			reminded_at DATETIME,
			version INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS appointment_services (
			appointment_id INTEGER NOT NULL,
			service_id INTEGER NOT NULL,
			PRIMARY KEY (appointment_id, service_id),
			FOREIGN KEY (appointment_id) REFERENCES appointments(id),
			FOREIGN KEY (service_id) REFERENCES services(id)
		)`,

		// Safety net for booking races: at most one non-cancelled appointment
		// per exact (date, time) pair. Interval overlaps with differing start
		// times are the application's responsibility.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_appointments_slot
			ON appointments(date, time) WHERE status != 'cancelled'`,

		`CREATE INDEX IF NOT EXISTS idx_appointments_date_status ON appointments(date, status)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_user ON appointments(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_reminder ON appointments(reminder_sent, date)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// slotTaken maps SQLite unique-constraint violations on the slot index to
// the domain sentinel.
func slotTaken(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		sqliteErr.Code == sqlite3.ErrConstraint &&
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return model.ErrSlotTaken
	}
	return err
}

var _ booking.Repository = (*Store)(nil)
