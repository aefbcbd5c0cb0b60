package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port   int    `yaml:"port"`
		APIKey string `yaml:"api_key"`
		// RateLimit is requests per second across the API; RateBurst is the
		// allowed burst above it.
		RateLimit float64 `yaml:"rate_limit"`
		RateBurst int     `yaml:"rate_burst"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Booking struct {
		GraceMinutes   int    `yaml:"grace_minutes"`
		MaxAdvanceDays int    `yaml:"max_advance_days"`
		OpenHour       int    `yaml:"open_hour"`
		CloseHour      int    `yaml:"close_hour"`
		SlotMinutes    int    `yaml:"slot_minutes"`
		Timezone       string `yaml:"timezone"`
	} `yaml:"booking"`

	Reports struct {
		Enabled       bool   `yaml:"enabled"`
		Dir           string `yaml:"dir"`
		ExportOnStart bool   `yaml:"export_on_start"`
	} `yaml:"reports"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if cfg.Booking.OpenHour >= cfg.Booking.CloseHour {
		return nil, fmt.Errorf("booking.open_hour %d must be before booking.close_hour %d",
			cfg.Booking.OpenHour, cfg.Booking.CloseHour)
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimit <= 0 {
		c.Server.RateLimit = 20
	}
	if c.Server.RateBurst <= 0 {
		c.Server.RateBurst = 40
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/zenteach.db"
	}
	if c.Booking.GraceMinutes <= 0 {
		c.Booking.GraceMinutes = 5
	}
	if c.Booking.MaxAdvanceDays <= 0 {
		c.Booking.MaxAdvanceDays = 30
	}
	if c.Booking.OpenHour == 0 {
		c.Booking.OpenHour = 8
	}
	if c.Booking.CloseHour == 0 {
		c.Booking.CloseHour = 18
	}
	if c.Booking.SlotMinutes <= 0 {
		c.Booking.SlotMinutes = 30
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Reports.Dir == "" {
		c.Reports.Dir = "reports"
	}
}

// BookingGrace is how far in the past a timestamp may still be accepted.
func (c *Config) BookingGrace() time.Duration {
	return time.Duration(c.Booking.GraceMinutes) * time.Minute
}

// BookingMaxAdvance is how far ahead reservations may be made.
func (c *Config) BookingMaxAdvance() time.Duration {
	return time.Duration(c.Booking.MaxAdvanceDays) * 24 * time.Hour
}

// Location resolves the operating timezone. Falls back to the host zone when
// unset or unknown.
func (c *Config) Location() *time.Location {
	if c.Booking.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Booking.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// CacheTTL returns the Redis cache TTL; zero disables caching.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}
