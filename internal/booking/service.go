package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"zenteach/internal/database"
	"zenteach/internal/events"
	"zenteach/internal/metrics"
	"zenteach/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store is the persistence surface the booking service needs.
type Store interface {
	GetActiveService(ctx context.Context, id int64) (*models.Service, error)
	CreateReservation(ctx context.Context, r *models.Reservation) error
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	UpdateReservationStatus(ctx context.Context, id, version int64, status string) error
}

// Publisher publishes reservation lifecycle events.
type Publisher interface {
	PublishReservation(eventType string, r *models.Reservation)
}

// Service orchestrates booking attempts: rule validation, conflict handling
// and persistence.
type Service struct {
	store     Store
	validator *Validator
	bus       Publisher
	logger    *zerolog.Logger
}

// NewService wires the booking service. bus may be nil.
func NewService(store Store, validator *Validator, bus Publisher, logger *zerolog.Logger) *Service {
	return &Service{
		store:     store,
		validator: validator,
		bus:       bus,
		logger:    logger,
	}
}

// Validator exposes the rule set, for callers that present slot grids.
func (s *Service) Validator() *Validator { return s.validator }

// CreateReservation decides whether the (user, service, timestamp) triple may
// become a reservation and persists it as pending. Business-rule refusals
// come back as *Rejection values; anything else is an infrastructure error.
func (s *Service) CreateReservation(ctx context.Context, userID, serviceID int64, t time.Time) (*models.Reservation, error) {
	if t.IsZero() {
		metrics.IncReservationRejected(string(ReasonMissingTimestamp))
		return nil, ErrMissingTimestamp
	}

	svc, err := s.store.GetActiveService(ctx, serviceID)
	if errors.Is(err, database.ErrNotFound) {
		metrics.IncReservationRejected(string(ReasonServiceInactive))
		return nil, ErrServiceInactive
	}
	if err != nil {
		return nil, fmt.Errorf("lookup service: %w", err)
	}

	if err := s.validator.Validate(t); err != nil {
		if rej, ok := AsRejection(err); ok {
			metrics.IncReservationRejected(string(rej.Reason))
		}
		return nil, err
	}

	r := &models.Reservation{
		Reference:   uuid.NewString(),
		UserID:      userID,
		ServiceID:   svc.ID,
		ServiceName: svc.Name,
		ScheduledAt: s.validator.Normalize(t),
	}

	err = s.store.CreateReservation(ctx, r)
	if errors.Is(err, database.ErrSlotTaken) {
		metrics.IncReservationRejected(string(ReasonSlotUnavailable))
		return nil, ErrSlotUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("create reservation: %w", err)
	}

	metrics.IncReservationCreated(r.Status)
	if s.bus != nil {
		s.bus.PublishReservation(events.ReservationCreated, r)
	}

	s.logger.Info().
		Int64("reservation_id", r.ID).
		Str("reference", r.Reference).
		Int64("user_id", userID).
		Int64("service_id", svc.ID).
		Time("scheduled_at", r.ScheduledAt).
		Msg("reservation created")

	return r, nil
}

// ConfirmReservation moves a pending reservation to confirmed.
func (s *Service) ConfirmReservation(ctx context.Context, id, version int64) (*models.Reservation, error) {
	return s.transition(ctx, id, version, models.StatusConfirmed, events.ReservationConfirmed)
}

// CancelReservation cancels a pending or confirmed reservation, freeing its
// slot.
func (s *Service) CancelReservation(ctx context.Context, id, version int64) (*models.Reservation, error) {
	return s.transition(ctx, id, version, models.StatusCancelled, events.ReservationCancelled)
}

func (s *Service) transition(ctx context.Context, id, version int64, status, eventType string) (*models.Reservation, error) {
	if err := s.store.UpdateReservationStatus(ctx, id, version, status); err != nil {
		return nil, err
	}

	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload reservation: %w", err)
	}

	metrics.IncReservationTransition(status)
	if s.bus != nil {
		s.bus.PublishReservation(eventType, r)
	}

	s.logger.Info().
		Int64("reservation_id", id).
		Str("status", status).
		Msg("reservation status updated")

	return r, nil
}
