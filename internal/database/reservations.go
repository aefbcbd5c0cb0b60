package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"zenteach/internal/models"
)

// normalizeSlot is the canonical storage form of a slot timestamp. Exact-match
// conflict queries and the unique index both depend on every writer using it.
func normalizeSlot(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}

// CreateReservation inserts a pending reservation, refusing the write when an
// active reservation already holds the timestamp. The conflict check and the
// insert run in one transaction, and the partial unique index backstops
// writers racing on the same slot: the loser gets ErrSlotTaken, never a
// double booking.
func (db *DB) CreateReservation(ctx context.Context, r *models.Reservation) error {
	if r == nil {
		return fmt.Errorf("reservation is nil")
	}

	slot := normalizeSlot(r.ScheduledAt)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existingID int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM reservations
		WHERE scheduled_at = ? AND status IN ('pending', 'confirmed')
		LIMIT 1`,
		slot,
	).Scan(&existingID)
	if err == nil {
		return ErrSlotTaken
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("check slot: %w", err)
	}

	now := time.Now()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO reservations (
			reference, user_id, service_id, service_name,
			scheduled_at, status, created_at, updated_at, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Reference, r.UserID, r.ServiceID, r.ServiceName,
		slot, models.StatusPending, now, now, 1,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("insert reservation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("commit: %w", err)
	}

	r.ID = id
	r.ScheduledAt = slot
	r.Status = models.StatusPending
	r.CreatedAt = now
	r.UpdatedAt = now
	r.Version = 1
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// FindActiveByTimestamp returns the pending or confirmed reservation holding
// the exact timestamp, or ErrNotFound.
func (db *DB) FindActiveByTimestamp(ctx context.Context, t time.Time) (*models.Reservation, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, reference, user_id, service_id, service_name,
		       scheduled_at, status, created_at, updated_at, version
		FROM reservations
		WHERE scheduled_at = ? AND status IN ('pending', 'confirmed')
		LIMIT 1`,
		normalizeSlot(t),
	)
	return scanReservation(row)
}

// IsSlotBooked reports whether an active reservation holds the timestamp.
func (db *DB) IsSlotBooked(ctx context.Context, t time.Time) (bool, error) {
	_, err := db.FindActiveByTimestamp(ctx, t)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetReservation returns a reservation by ID.
func (db *DB) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, reference, user_id, service_id, service_name,
		       scheduled_at, status, created_at, updated_at, version
		FROM reservations WHERE id = ?`,
		id,
	)
	return scanReservation(row)
}

// GetReservationByReference returns a reservation by its public reference.
func (db *DB) GetReservationByReference(ctx context.Context, reference string) (*models.Reservation, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, reference, user_id, service_id, service_name,
		       scheduled_at, status, created_at, updated_at, version
		FROM reservations WHERE reference = ?`,
		reference,
	)
	return scanReservation(row)
}

// UpdateReservationStatus moves a reservation through its lifecycle with an
// optimistic version check. Returns ErrInvalidTransition for moves the
// lifecycle forbids and ErrVersionConflict when a concurrent update won.
func (db *DB) UpdateReservationStatus(ctx context.Context, id, version int64, status string) error {
	if !models.ValidStatus(status) {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx,
		"SELECT status FROM reservations WHERE id = ?", id,
	).Scan(&current)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}

	if !models.CanTransition(current, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE reservations
		SET status = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		status, time.Now(), id, version,
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrVersionConflict
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetUserReservations returns all of a user's reservations, newest slot first.
func (db *DB) GetUserReservations(ctx context.Context, userID int64) ([]models.Reservation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, reference, user_id, service_id, service_name,
		       scheduled_at, status, created_at, updated_at, version
		FROM reservations
		WHERE user_id = ?
		ORDER BY scheduled_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, *r)
	}
	return reservations, rows.Err()
}

// GetUserReservationStats summarizes a user's booking history by status.
func (db *DB) GetUserReservationStats(ctx context.Context, userID int64) (*models.ReservationStats, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM reservations
		WHERE user_id = ?
		GROUP BY status`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats models.ReservationStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.Total += count
		switch status {
		case models.StatusPending:
			stats.Pending = count
		case models.StatusConfirmed:
			stats.Confirmed = count
		case models.StatusCancelled:
			stats.Cancelled = count
		}
	}
	return &stats, rows.Err()
}

// GetReservationsByDateRange returns active reservations in [start, end).
func (db *DB) GetReservationsByDateRange(ctx context.Context, start, end time.Time) ([]models.Reservation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, reference, user_id, service_id, service_name,
		       scheduled_at, status, created_at, updated_at, version
		FROM reservations
		WHERE scheduled_at >= ? AND scheduled_at < ?
		AND status IN ('pending', 'confirmed')
		ORDER BY scheduled_at`,
		normalizeSlot(start), normalizeSlot(end),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, *r)
	}
	return reservations, rows.Err()
}

// CountActiveReservationsForService counts pending future reservations per
// service, for the catalog listing.
func (db *DB) CountActiveReservationsForService(ctx context.Context, serviceID int64, since time.Time) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reservations
		WHERE service_id = ? AND scheduled_at >= ? AND status = 'pending'`,
		serviceID, normalizeSlot(since),
	).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var r models.Reservation
	err := row.Scan(
		&r.ID, &r.Reference, &r.UserID, &r.ServiceID, &r.ServiceName,
		&r.ScheduledAt, &r.Status, &r.CreatedAt, &r.UpdatedAt, &r.Version,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
