package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"database/sql"

	"zenteach/internal/models"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB represents the database connection and its service cache.
type DB struct {
	*sql.DB
	servicesCache map[int64]models.Service
	mu            sync.RWMutex
	logger        *zerolog.Logger
}

var (
	// ErrNotFound is returned when a row does not exist or is inactive.
	ErrNotFound = errors.New("not found")
	// ErrSlotTaken is returned when an active reservation already holds the
	// requested timestamp.
	ErrSlotTaken = errors.New("slot already taken")
	// ErrVersionConflict is returned when an update lost an optimistic
	// concurrency race.
	ErrVersionConflict = errors.New("concurrent modification")
	// ErrInvalidTransition is returned for a status change the lifecycle
	// does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// NewDB initializes a new database connection and creates tables if they don't exist.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL mode and busy timeout so concurrent booking attempts queue at the
	// database instead of failing. Immediate transactions take the write lock
	// at BEGIN, which serializes the conflict-check-then-insert of racing
	// bookings.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{
		DB:            db,
		servicesCache: make(map[int64]models.Service),
		logger:        logger,
	}

	if err := instance.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	// Warm the service cache. Missing services are not fatal; the catalog may
	// be seeded later through the API.
	if err := instance.LoadServices(context.Background()); err != nil {
		logger.Error().Err(err).Msg("Failed to load services into cache")
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS services (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			description TEXT,
			duration_minutes INTEGER NOT NULL DEFAULT 30,
			price_cents INTEGER NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			email TEXT NOT NULL,
			first_name TEXT,
			last_name TEXT,
			role TEXT NOT NULL DEFAULT 'client',
			is_active BOOLEAN NOT NULL DEFAULT 1,
			registered_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS reservations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			reference TEXT UNIQUE NOT NULL,
			user_id INTEGER NOT NULL,
			service_id INTEGER NOT NULL,
			service_name TEXT NOT NULL,
			scheduled_at DATETIME NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			version INTEGER NOT NULL DEFAULT 1,
			FOREIGN KEY(service_id) REFERENCES services(id),
			FOREIGN KEY(user_id) REFERENCES users(id)
		)`,

		// One active reservation per instant, across all services. The scope
		// is deliberately global: the business owners treat the calendar as a
		// single resource.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_active_slot
			ON reservations(scheduled_at)
			WHERE status IN ('pending', 'confirmed')`,

		`CREATE INDEX IF NOT EXISTS idx_reservations_scheduled ON reservations(scheduled_at)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_status ON reservations(status)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_user ON reservations(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_service ON reservations(service_id)`,

		`CREATE INDEX IF NOT EXISTS idx_services_active ON services(is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_users_username ON users(username)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}

	return db.ensureNewColumns()
}

// ensureNewColumns adds columns introduced after the initial schema.
func (db *DB) ensureNewColumns() error {
	migrations := []string{
		`ALTER TABLE reservations ADD COLUMN version INTEGER NOT NULL DEFAULT 1`,
		`ALTER TABLE services ADD COLUMN price_cents INTEGER NOT NULL DEFAULT 0`,
	}

	for _, m := range migrations {
		_, err := db.Exec(m)
		if err != nil && !strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
			if db.logger != nil {
				db.logger.Debug().Err(err).Str("migration", m).Msg("Migration skipped")
			}
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}
