package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strconv"
	"testing"
	"time"

	"zenteach/internal/booking"
	"zenteach/internal/database"
	"zenteach/internal/events"
	"zenteach/internal/metrics"
	"zenteach/internal/models"
	"zenteach/internal/slots"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "test-key"

// Wednesday 2026-09-02 06:00 UTC.
var testNow = time.Date(2026, 9, 2, 6, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type testEnv struct {
	srv  *httptest.Server
	db   *database.DB
	mini *miniredis.Miniredis
}

func setupTestServer(t *testing.T) *testEnv {
	return setupTestServerIn(t, time.UTC)
}

func setupTestServerIn(t *testing.T, loc *time.Location) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mini := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	cache := NewCache(rdb, time.Minute, logger)

	clock := fixedClock{now: testNow}
	rules := booking.DefaultRules()
	rules.Location = loc
	validator := booking.NewValidator(rules, clock)
	bookingSvc := booking.NewService(db, validator, events.NewBus(), &logger)

	schedule := slots.DefaultSchedule()
	schedule.Location = loc
	gen := slots.NewGenerator(db, schedule, clock)

	server := NewHTTPServer(Options{APIKey: testAPIKey}, db, bookingSvc, gen, cache, logger)
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, db: db, mini: mini}
}

func (e *testEnv) seedService(t *testing.T) *models.Service {
	t.Helper()
	s := &models.Service{
		Name:            "Tutoría de matemáticas",
		DurationMinutes: 30,
		PriceCents:      15000,
		IsActive:        true,
	}
	require.NoError(t, e.db.CreateService(context.Background(), s))
	return s
}

func (e *testEnv) request(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("X-Api-Key", testAPIKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestAuthRequired(t *testing.T) {
	env := setupTestServer(t)

	resp, err := http.Get(env.srv.URL + "/api/services")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestListServices(t *testing.T) {
	env := setupTestServer(t)
	env.seedService(t)

	resp := env.request(t, http.MethodGet, "/api/services", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[struct {
		Services []ServiceResponse `json:"services"`
	}](t, resp)
	require.Len(t, body.Services, 1)
	assert.Equal(t, "Tutoría de matemáticas", body.Services[0].Name)
}

func TestCreateReservation(t *testing.T) {
	env := setupTestServer(t)
	svc := env.seedService(t)

	resp := env.request(t, http.MethodPost, "/api/services/1/reservations", CreateReservationRequest{
		UserID:      42,
		ScheduledAt: "2026-09-03T10:30",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decode[CreateReservationResponse](t, resp)
	require.True(t, body.Success)
	require.NotNil(t, body.Reservation)
	assert.Equal(t, svc.Name, body.Reservation.Service)
	assert.Equal(t, models.StatusPending, body.Reservation.Status)
	assert.NotEmpty(t, body.Reservation.Reference)
	assert.Equal(t, svc.DurationMinutes, body.Reservation.DurationMinutes)
}

func TestCreateReservationRejections(t *testing.T) {
	env := setupTestServer(t)
	env.seedService(t)

	tests := []struct {
		name       string
		path       string
		body       CreateReservationRequest
		wantStatus int
		wantReason string
	}{
		{
			name:       "missing timestamp",
			path:       "/api/services/1/reservations",
			body:       CreateReservationRequest{UserID: 42},
			wantStatus: http.StatusBadRequest,
			wantReason: "missing_timestamp",
		},
		{
			name:       "unknown service",
			path:       "/api/services/99/reservations",
			body:       CreateReservationRequest{UserID: 42, ScheduledAt: "2026-09-03T10:30"},
			wantStatus: http.StatusNotFound,
			wantReason: "service_inactive",
		},
		{
			name:       "weekend",
			path:       "/api/services/1/reservations",
			body:       CreateReservationRequest{UserID: 42, ScheduledAt: "2026-09-05T10:30"},
			wantStatus: http.StatusBadRequest,
			wantReason: "weekend_not_served",
		},
		{
			name:       "off-grid minute",
			path:       "/api/services/1/reservations",
			body:       CreateReservationRequest{UserID: 42, ScheduledAt: "2026-09-03T10:15"},
			wantStatus: http.StatusBadRequest,
			wantReason: "invalid_slot_granularity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.request(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			body := decode[CreateReservationResponse](t, resp)
			assert.False(t, body.Success)
			assert.Equal(t, tt.wantReason, body.Reason)
		})
	}
}

func TestCreateReservationConflict(t *testing.T) {
	env := setupTestServer(t)
	env.seedService(t)

	req := CreateReservationRequest{UserID: 42, ScheduledAt: "2026-09-03T10:30"}
	resp := env.request(t, http.MethodPost, "/api/services/1/reservations", req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// Second booking of the same slot, even by another user, conflicts.
	req.UserID = 43
	resp = env.request(t, http.MethodPost, "/api/services/1/reservations", req)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	body := decode[CreateReservationResponse](t, resp)
	assert.Equal(t, "slot_unavailable", body.Reason)
}

func TestConfirmAndCancelFlow(t *testing.T) {
	env := setupTestServer(t)
	env.seedService(t)

	resp := env.request(t, http.MethodPost, "/api/services/1/reservations", CreateReservationRequest{
		UserID:      42,
		ScheduledAt: "2026-09-03T10:30",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[CreateReservationResponse](t, resp)
	id := created.Reservation.ID

	// Confirm with a stale version.
	resp = env.request(t, http.MethodPost, "/api/reservations/1/confirm", TransitionRequest{Version: 99})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Confirm with the real version.
	resp = env.request(t, http.MethodPost, "/api/reservations/1/confirm", TransitionRequest{Version: created.Reservation.Version})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	confirmed := decode[struct {
		Reservation ReservationResponse `json:"reservation"`
	}](t, resp)
	assert.Equal(t, models.StatusConfirmed, confirmed.Reservation.Status)
	assert.Equal(t, id, confirmed.Reservation.ID)

	// Cancel the confirmed reservation.
	resp = env.request(t, http.MethodPost, "/api/reservations/1/cancel", TransitionRequest{Version: confirmed.Reservation.Version})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cancelled := decode[struct {
		Reservation ReservationResponse `json:"reservation"`
	}](t, resp)
	assert.Equal(t, models.StatusCancelled, cancelled.Reservation.Status)

	// Cancelled is terminal.
	resp = env.request(t, http.MethodPost, "/api/reservations/1/cancel", TransitionRequest{Version: cancelled.Reservation.Version})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestTransitionUnknownReservation(t *testing.T) {
	env := setupTestServer(t)

	resp := env.request(t, http.MethodPost, "/api/reservations/99/confirm", TransitionRequest{Version: 1})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestUserReservations(t *testing.T) {
	env := setupTestServer(t)
	env.seedService(t)

	for _, at := range []string{"2026-10-01T10:30", "2026-10-01T11:00"} {
		resp := env.request(t, http.MethodPost, "/api/services/1/reservations", CreateReservationRequest{
			UserID:      42,
			ScheduledAt: at,
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	// A cancelled reservation always lands in history.
	resp := env.request(t, http.MethodPost, "/api/reservations/1/cancel", TransitionRequest{Version: 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.request(t, http.MethodGet, "/api/users/42/reservations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[UserReservationsResponse](t, resp)
	assert.Len(t, body.Upcoming, 1)
	assert.Len(t, body.History, 1)
	assert.Equal(t, models.StatusCancelled, body.History[0].Status)
	assert.Equal(t, 2, body.Stats.Total)
	assert.Equal(t, 1, body.Stats.Pending)
	assert.Equal(t, 1, body.Stats.Cancelled)
}

func TestAvailability(t *testing.T) {
	env := setupTestServer(t)
	env.seedService(t)

	resp := env.request(t, http.MethodPost, "/api/services/1/reservations", CreateReservationRequest{
		UserID:      42,
		ScheduledAt: "2026-09-02T10:30",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = env.request(t, http.MethodGet, "/api/availability?date=2026-09-02", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[AvailabilityResponse](t, resp)
	require.Len(t, body.Slots, 21)

	byTime := map[string]bool{}
	for _, s := range body.Slots {
		byTime[s.Time] = s.Available
	}
	assert.False(t, byTime["10:30"], "booked slot should be unavailable")
	assert.True(t, byTime["11:00"], "adjacent slot should be free")
}

func TestAvailabilityWeekend(t *testing.T) {
	env := setupTestServer(t)

	resp := env.request(t, http.MethodGet, "/api/availability?date=2026-09-05", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[AvailabilityResponse](t, resp)
	assert.Empty(t, body.Slots)
}

func TestAvailabilityCacheInvalidation(t *testing.T) {
	env := setupTestServer(t)
	env.seedService(t)

	// Prime the cache.
	resp := env.request(t, http.MethodGet, "/api/availability?date=2026-09-03", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	require.True(t, env.mini.Exists("availability:2026-09-03"))

	// Booking a slot on that day drops the cached grid.
	resp = env.request(t, http.MethodPost, "/api/services/1/reservations", CreateReservationRequest{
		UserID:      42,
		ScheduledAt: "2026-09-03T10:30",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
	assert.False(t, env.mini.Exists("availability:2026-09-03"))

	// Next read reflects the booking.
	resp = env.request(t, http.MethodGet, "/api/availability?date=2026-09-03", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[AvailabilityResponse](t, resp)
	for _, s := range body.Slots {
		if s.Time == "10:30" {
			assert.False(t, s.Available)
		}
	}
}

func TestAvailabilityCacheInvalidationNonUTC(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	env := setupTestServerIn(t, loc)
	env.seedService(t)

	resp := env.request(t, http.MethodGet, "/api/availability?date=2026-09-03", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	require.True(t, env.mini.Exists("availability:2026-09-03"))

	// 08:00 local is still the previous day in UTC, where the store keeps
	// the slot; the local date's grid must be the one dropped.
	resp = env.request(t, http.MethodPost, "/api/services/1/reservations", CreateReservationRequest{
		UserID:      42,
		ScheduledAt: "2026-09-03T08:00",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	assert.False(t, env.mini.Exists("availability:2026-09-03"))

	resp = env.request(t, http.MethodGet, "/api/availability?date=2026-09-03", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[AvailabilityResponse](t, resp)
	for _, s := range body.Slots {
		if s.Time == "08:00" {
			assert.False(t, s.Available)
		}
	}
}

// httpMetricValue scrapes the process registry for one endpoint's request
// count. Absent means never incremented.
func httpMetricValue(t *testing.T, endpoint string) float64 {
	t.Helper()
	metrics.Register()

	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	re := regexp.MustCompile(fmt.Sprintf(`zenteach_http_requests_total\{endpoint="%s"\} ([0-9.e+-]+)`, endpoint))
	m := re.FindStringSubmatch(rec.Body.String())
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	require.NoError(t, err)
	return v
}

func TestEndpointCounterIgnoresRejectedRequests(t *testing.T) {
	env := setupTestServer(t)
	before := httpMetricValue(t, "create_reservation")

	resp := env.request(t, http.MethodGet, "/api/services/1/reservations", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	resp.Body.Close()

	resp = env.request(t, http.MethodPost, "/api/services/1/bogus", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	assert.Equal(t, before, httpMetricValue(t, "create_reservation"))
}

func TestRateLimit(t *testing.T) {
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rules := booking.DefaultRules()
	rules.Location = time.UTC
	validator := booking.NewValidator(rules, fixedClock{now: testNow})
	bookingSvc := booking.NewService(db, validator, events.NewBus(), &logger)
	gen := slots.NewGenerator(db, slots.DefaultSchedule(), fixedClock{now: testNow})

	server := NewHTTPServer(Options{RateLimit: 1, RateBurst: 1}, db, bookingSvc, gen, nil, logger)
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/services")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/services")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}
