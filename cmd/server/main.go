package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zenteach/internal/api"
	"zenteach/internal/booking"
	"zenteach/internal/config"
	"zenteach/internal/database"
	"zenteach/internal/events"
	"zenteach/internal/metrics"
	"zenteach/internal/report"
	"zenteach/internal/slots"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("ZENTEACH_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.LoadServices(ctx); err != nil {
		logger.Fatal().Err(err).Msg("load service catalog error")
	}

	var rdb *redis.Client
	var cache *api.Cache
	if cfg.Redis.Address != "" && cfg.CacheTTL() > 0 {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cache = api.NewCache(rdb, cfg.CacheTTL(), logger)
	}

	loc := cfg.Location()
	rules := booking.Rules{
		Grace:       cfg.BookingGrace(),
		MaxAdvance:  cfg.BookingMaxAdvance(),
		OpenHour:    cfg.Booking.OpenHour,
		CloseHour:   cfg.Booking.CloseHour,
		SlotMinutes: cfg.Booking.SlotMinutes,
		Location:    loc,
	}
	validator := booking.NewValidator(rules, nil)

	bus := events.NewBus()
	bookingSvc := booking.NewService(db, validator, bus, &logger)

	schedule := slots.Schedule{
		OpenHour:    cfg.Booking.OpenHour,
		CloseHour:   cfg.Booking.CloseHour,
		SlotMinutes: cfg.Booking.SlotMinutes,
		Location:    loc,
	}
	generator := slots.NewGenerator(db, schedule, nil)

	if cfg.Backup.Enabled {
		backup := database.NewBackupService(cfg.Database.Path, database.BackupConfig{
			Enabled:       true,
			IntervalHours: cfg.Backup.IntervalHours,
			StoragePath:   cfg.Backup.Path,
			RetentionDays: cfg.Backup.RetentionDays,
		}, &logger)
		go backup.Start(ctx)
	}

	if cfg.Reports.Enabled {
		reporter := report.NewService(report.Config{
			Dir:           cfg.Reports.Dir,
			ExportOnStart: cfg.Reports.ExportOnStart,
		}, db, report.NewExcelizeWriter, &logger)
		reporter.Start()
		defer reporter.Stop()
	}

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	server := api.NewHTTPServer(api.Options{
		Addr:      fmt.Sprintf(":%d", cfg.Server.Port),
		APIKey:    cfg.Server.APIKey,
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
	}, db, bookingSvc, generator, cache, logger)

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctxShutdown)
	}()

	logger.Info().Msg("zenteach booking service started")
	if err := server.Start(); err != nil {
		logger.Fatal().Err(err).Msg("api server error")
	}
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
