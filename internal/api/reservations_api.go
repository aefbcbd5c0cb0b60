package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"zenteach/internal/booking"
	"zenteach/internal/database"
	"zenteach/internal/metrics"
	"zenteach/internal/models"
)

// CreateReservationRequest is the request body for booking a slot.
type CreateReservationRequest struct {
	UserID      int64  `json:"user_id"`
	ScheduledAt string `json:"scheduled_at"` // RFC 3339 or YYYY-MM-DDTHH:MM
}

// ReservationResponse represents a reservation in API responses.
type ReservationResponse struct {
	ID              int64  `json:"id"`
	Reference       string `json:"reference"`
	Service         string `json:"service"`
	ScheduledAt     string `json:"scheduled_at"`
	Status          string `json:"status"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	PriceCents      int64  `json:"price_cents,omitempty"`
	Version         int64  `json:"version"`
}

// CreateReservationResponse is the response for booking a slot.
type CreateReservationResponse struct {
	Success     bool                 `json:"success"`
	Message     string               `json:"message,omitempty"`
	Error       string               `json:"error,omitempty"`
	Reason      string               `json:"reason,omitempty"`
	Reservation *ReservationResponse `json:"reservation,omitempty"`
}

func toReservationResponse(r *models.Reservation) *ReservationResponse {
	return &ReservationResponse{
		ID:          r.ID,
		Reference:   r.Reference,
		Service:     r.ServiceName,
		ScheduledAt: r.ScheduledAt.Format(time.RFC3339),
		Status:      r.Status,
		Version:     r.Version,
	}
}

// handleServiceReservations books a slot for a service.
// POST /api/services/{id}/reservations
func (s *HTTPServer) handleServiceReservations(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/services/")
	if len(parts) != 2 || parts[1] != "reservations" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	serviceID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid service id")
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("create_reservation")

	var req CreateReservationRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	var scheduledAt time.Time
	if req.ScheduledAt != "" {
		scheduledAt, err = s.parseTimestamp(req.ScheduledAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid scheduled_at; expected RFC 3339 or YYYY-MM-DDTHH:MM")
			return
		}
	}

	reservation, err := s.booking.CreateReservation(r.Context(), req.UserID, serviceID, scheduledAt)
	if err != nil {
		s.writeBookingError(w, err)
		return
	}

	if s.cache != nil {
		// The store keeps slots in UTC; cache keys are per operating-timezone
		// calendar day, so localize before keying.
		s.cache.InvalidateDay(r.Context(), reservation.ScheduledAt.In(s.booking.Validator().Rules().Location))
	}

	svc, svcErr := s.db.GetActiveService(r.Context(), serviceID)
	resp := CreateReservationResponse{
		Success:     true,
		Message:     "reservation created, awaiting confirmation",
		Reservation: toReservationResponse(reservation),
	}
	if svcErr == nil {
		resp.Reservation.DurationMinutes = svc.DurationMinutes
		resp.Reservation.PriceCents = svc.PriceCents
	}

	writeJSON(w, http.StatusCreated, resp)
}

// writeBookingError maps booking failures onto HTTP statuses. Business-rule
// rejections carry their machine-readable reason; infrastructure failures
// stay opaque.
func (s *HTTPServer) writeBookingError(w http.ResponseWriter, err error) {
	if rej, ok := booking.AsRejection(err); ok {
		status := http.StatusBadRequest
		switch rej.Reason {
		case booking.ReasonServiceInactive:
			status = http.StatusNotFound
		case booking.ReasonSlotUnavailable:
			status = http.StatusConflict
		}
		writeJSON(w, status, CreateReservationResponse{
			Success: false,
			Error:   rej.Message,
			Reason:  string(rej.Reason),
		})
		return
	}

	s.log.Error().Err(err).Msg("reservation request failed")
	writeError(w, http.StatusInternalServerError, "failed to process reservation")
}

func (s *HTTPServer) parseTimestamp(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	loc := s.booking.Validator().Rules().Location
	return time.ParseInLocation("2006-01-02T15:04", v, loc)
}

// UserReservationsResponse lists a user's bookings split into upcoming and
// past, with summary counts.
type UserReservationsResponse struct {
	Upcoming []ReservationResponse    `json:"upcoming"`
	History  []ReservationResponse    `json:"history"`
	Stats    *models.ReservationStats `json:"stats"`
}

// handleUserReservations returns a user's bookings, newest first.
// GET /api/users/{id}/reservations
func (s *HTTPServer) handleUserReservations(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/users/")
	if len(parts) != 2 || parts[1] != "reservations" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("user_reservations")

	reservations, err := s.db.GetUserReservations(r.Context(), userID)
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", userID).Msg("failed to list reservations")
		writeError(w, http.StatusInternalServerError, "failed to list reservations")
		return
	}

	stats, err := s.db.GetUserReservationStats(r.Context(), userID)
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", userID).Msg("failed to load reservation stats")
		writeError(w, http.StatusInternalServerError, "failed to list reservations")
		return
	}

	now := time.Now()
	resp := UserReservationsResponse{
		Upcoming: make([]ReservationResponse, 0),
		History:  make([]ReservationResponse, 0, len(reservations)),
		Stats:    stats,
	}
	for i := range reservations {
		r := &reservations[i]
		if r.IsUpcoming(now) {
			resp.Upcoming = append(resp.Upcoming, *toReservationResponse(r))
		} else {
			resp.History = append(resp.History, *toReservationResponse(r))
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// TransitionRequest carries the caller's last seen version for optimistic
// concurrency.
type TransitionRequest struct {
	Version int64 `json:"version"`
}

// handleReservationAction confirms or cancels a reservation.
// POST /api/reservations/{id}/confirm
// POST /api/reservations/{id}/cancel
func (s *HTTPServer) handleReservationAction(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/reservations/")
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid reservation id")
		return
	}
	action := parts[1]
	if action != "confirm" && action != "cancel" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP(action + "_reservation")

	var req TransitionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Version <= 0 {
		writeError(w, http.StatusBadRequest, "version is required")
		return
	}

	var reservation *models.Reservation
	if action == "confirm" {
		reservation, err = s.booking.ConfirmReservation(r.Context(), id, req.Version)
	} else {
		reservation, err = s.booking.CancelReservation(r.Context(), id, req.Version)
	}
	if err != nil {
		s.writeTransitionError(w, id, err)
		return
	}

	if s.cache != nil {
		// The store keeps slots in UTC; cache keys are per operating-timezone
		// calendar day, so localize before keying.
		s.cache.InvalidateDay(r.Context(), reservation.ScheduledAt.In(s.booking.Validator().Rules().Location))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"reservation": toReservationResponse(reservation),
	})
}

func (s *HTTPServer) writeTransitionError(w http.ResponseWriter, id int64, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "reservation not found")
	case errors.Is(err, database.ErrVersionConflict):
		writeError(w, http.StatusConflict, "reservation was modified concurrently; reload and retry")
	case errors.Is(err, database.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "status change not allowed")
	default:
		s.log.Error().Err(err).Int64("reservation_id", id).Msg("status change failed")
		writeError(w, http.StatusInternalServerError, "failed to update reservation")
	}
}
