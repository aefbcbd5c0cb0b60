package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "database:\n  path: "+filepath.Join(t.TempDir(), "z.db")+"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.BookingGrace())
	assert.Equal(t, 30*24*time.Hour, cfg.BookingMaxAdvance())
	assert.Equal(t, 8, cfg.Booking.OpenHour)
	assert.Equal(t, 18, cfg.Booking.CloseHour)
	assert.Equal(t, 30, cfg.Booking.SlotMinutes)
	assert.Equal(t, 8090, cfg.Monitoring.HealthCheckPort)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("ZENTEACH_TEST_API_KEY", "secret-key")
	dbPath := filepath.Join(t.TempDir(), "z.db")
	path := writeConfig(t, `
server:
  api_key: ${ZENTEACH_TEST_API_KEY}
database:
  path: `+dbPath+`
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-key", cfg.Server.APIKey)
}

func TestLoad_InvalidHours(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "z.db")
	path := writeConfig(t, `
database:
  path: `+dbPath+`
booking:
  open_hour: 18
  close_hour: 8
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLocation_Fallback(t *testing.T) {
	var cfg Config
	cfg.Booking.Timezone = "Not/AZone"
	assert.Equal(t, time.Local, cfg.Location())

	cfg.Booking.Timezone = "America/Santiago"
	loc := cfg.Location()
	require.NotNil(t, loc)
	assert.Equal(t, "America/Santiago", loc.String())
}
