package api

import (
	"net/http"
	"time"

	"zenteach/internal/metrics"
)

// ServiceResponse represents a bookable service in API responses.
type ServiceResponse struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	Description        string `json:"description,omitempty"`
	DurationMinutes    int    `json:"duration_minutes"`
	PriceCents         int64  `json:"price_cents"`
	ActiveReservations int    `json:"active_reservations"`
}

// handleServices returns the active service catalog with upcoming booking
// counts.
// GET /api/services
func (s *HTTPServer) handleServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("services")

	now := time.Now()
	services := make([]ServiceResponse, 0)
	for _, svc := range s.db.GetServices() {
		if !svc.IsActive {
			continue
		}

		count, err := s.db.CountActiveReservationsForService(r.Context(), svc.ID, now)
		if err != nil {
			s.log.Error().Err(err).Int64("service_id", svc.ID).Msg("failed to count reservations")
			writeError(w, http.StatusInternalServerError, "failed to list services")
			return
		}

		services = append(services, ServiceResponse{
			ID:                 svc.ID,
			Name:               svc.Name,
			Description:        svc.Description,
			DurationMinutes:    svc.DurationMinutes,
			PriceCents:         svc.PriceCents,
			ActiveReservations: count,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}
