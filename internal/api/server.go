// Package api exposes the booking operations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"zenteach/internal/booking"
	"zenteach/internal/database"
	"zenteach/internal/slots"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// HTTPServer serves the booking API.
type HTTPServer struct {
	db      *database.DB
	booking *booking.Service
	slots   *slots.Generator
	cache   *Cache

	apiKey  string
	limiter *rate.Limiter
	log     zerolog.Logger
	server  *http.Server
}

// Options configures the HTTP server.
type Options struct {
	Addr      string
	APIKey    string  // empty disables auth
	RateLimit float64 // requests per second, 0 disables limiting
	RateBurst int
}

// NewHTTPServer wires the API routes. cache may be nil.
func NewHTTPServer(opts Options, db *database.DB, bookingSvc *booking.Service, gen *slots.Generator, cache *Cache, logger zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		db:      db,
		booking: bookingSvc,
		slots:   gen,
		cache:   cache,
		apiKey:  opts.APIKey,
		log:     logger,
	}

	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = int(opts.RateLimit)
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/services", s.handleServices)
	mux.HandleFunc("/api/services/", s.handleServiceReservations)
	mux.HandleFunc("/api/users/", s.handleUserReservations)
	mux.HandleFunc("/api/reservations/", s.handleReservationAction)
	mux.HandleFunc("/api/availability", s.handleAvailability)

	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.middleware(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	return s
}

// Handler returns the configured handler, for tests.
func (s *HTTPServer) Handler() http.Handler { return s.server.Handler }

// Start runs the server until it fails or is shut down.
func (s *HTTPServer) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("api server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		if s.apiKey != "" {
			key := r.Header.Get("X-Api-Key")
			if key == "" {
				key = r.Header.Get("x-api-key")
			}
			if key != s.apiKey {
				writeError(w, http.StatusUnauthorized, "invalid or missing api key")
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   msg,
	})
}

// pathParts splits the path remainder after prefix into its segments.
func pathParts(path, prefix string) []string {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}
