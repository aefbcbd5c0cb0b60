package api

import (
	"net/http"
	"time"

	"zenteach/internal/metrics"
	"zenteach/internal/slots"
)

// AvailabilityResponse is the slot grid for one calendar day.
type AvailabilityResponse struct {
	Date  string           `json:"date"`
	Slots []slots.SlotInfo `json:"slots"`
}

// handleAvailability returns the slot grid for a date. Weekends come back
// with an empty grid.
// GET /api/availability?date=YYYY-MM-DD
func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("availability")

	dateStr := r.URL.Query().Get("date")
	if dateStr == "" {
		writeError(w, http.StatusBadRequest, "date is required; expected YYYY-MM-DD")
		return
	}
	loc := s.booking.Validator().Rules().Location
	date, err := time.ParseInLocation("2006-01-02", dateStr, loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	var resp AvailabilityResponse
	if s.cache.ReadAvailability(r.Context(), date, &resp) {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	grid, err := s.slots.GenerateSlots(r.Context(), date)
	if err != nil {
		s.log.Error().Err(err).Str("date", dateStr).Msg("failed to generate slots")
		writeError(w, http.StatusInternalServerError, "failed to load availability")
		return
	}

	resp = AvailabilityResponse{
		Date:  dateStr,
		Slots: slots.ToSlotInfo(grid),
	}
	s.cache.WriteAvailability(r.Context(), date, resp)

	writeJSON(w, http.StatusOK, resp)
}
