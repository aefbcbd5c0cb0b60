package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"zenteach/internal/models"
)

// LoadServices refreshes the in-memory services cache.
func (db *DB) LoadServices(ctx context.Context) error {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, description, duration_minutes, price_cents,
		       is_active, created_at, updated_at
		FROM services`)
	if err != nil {
		return err
	}
	defer rows.Close()

	cache := make(map[int64]models.Service)
	for rows.Next() {
		var s models.Service
		var description sql.NullString
		if err := rows.Scan(
			&s.ID, &s.Name, &description, &s.DurationMinutes, &s.PriceCents,
			&s.IsActive, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return err
		}
		if description.Valid {
			s.Description = description.String
		}
		cache[s.ID] = s
	}
	if err := rows.Err(); err != nil {
		return err
	}

	db.mu.Lock()
	db.servicesCache = cache
	db.mu.Unlock()
	return nil
}

// GetServices returns cached services ordered by name.
func (db *DB) GetServices() []models.Service {
	db.mu.RLock()
	services := make([]models.Service, 0, len(db.servicesCache))
	for _, s := range db.servicesCache {
		services = append(services, s)
	}
	db.mu.RUnlock()

	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })
	return services
}

// GetActiveService returns the service if it exists and is enabled for
// booking; otherwise ErrNotFound.
func (db *DB) GetActiveService(ctx context.Context, id int64) (*models.Service, error) {
	db.mu.RLock()
	cached, ok := db.servicesCache[id]
	db.mu.RUnlock()
	if ok {
		if !cached.IsActive {
			return nil, ErrNotFound
		}
		s := cached
		return &s, nil
	}

	s, err := db.getService(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.IsActive {
		return nil, ErrNotFound
	}
	return s, nil
}

func (db *DB) getService(ctx context.Context, id int64) (*models.Service, error) {
	var s models.Service
	var description sql.NullString
	err := db.QueryRowContext(ctx, `
		SELECT id, name, description, duration_minutes, price_cents,
		       is_active, created_at, updated_at
		FROM services WHERE id = ?`,
		id,
	).Scan(
		&s.ID, &s.Name, &description, &s.DurationMinutes, &s.PriceCents,
		&s.IsActive, &s.CreatedAt, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if description.Valid {
		s.Description = description.String
	}
	return &s, nil
}

// CreateService adds a service to the catalog and refreshes the cache.
func (db *DB) CreateService(ctx context.Context, s *models.Service) error {
	if s == nil {
		return fmt.Errorf("service is nil")
	}

	now := time.Now()
	result, err := db.ExecContext(ctx, `
		INSERT INTO services (name, description, duration_minutes, price_cents, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.Name, s.Description, s.DurationMinutes, s.PriceCents, s.IsActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert service: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = id
	s.CreatedAt = now
	s.UpdatedAt = now

	return db.LoadServices(ctx)
}

// DeactivateService disables a service for new bookings. Existing
// reservations are untouched.
func (db *DB) DeactivateService(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx,
		"UPDATE services SET is_active = 0, updated_at = ? WHERE id = ?",
		time.Now(), id,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	return db.LoadServices(ctx)
}
