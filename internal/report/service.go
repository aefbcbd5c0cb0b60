package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds configuration for the report service.
type Config struct {
	// Dir is where monthly exports are written.
	Dir string

	// ExportOnStart if true runs an export immediately on service start.
	ExportOnStart bool
}

// Service writes a full-table Excel export on the first of every month.
type Service struct {
	config   Config
	exporter TableExporter
	writer   func() ExcelWriter
	logger   *zerolog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewService creates the report scheduler.
func NewService(config Config, exporter TableExporter, writerFactory func() ExcelWriter, logger *zerolog.Logger) *Service {
	if config.Dir == "" {
		config.Dir = "reports"
	}
	return &Service{
		config:   config,
		exporter: exporter,
		writer:   writerFactory,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the monthly schedule.
func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	if s.config.ExportOnStart {
		go func() {
			if err := s.ExportNow(); err != nil {
				s.logger.Error().Err(err).Msg("startup export failed")
			}
		}()
	}

	s.wg.Add(1)
	go s.loop()

	s.logger.Info().Str("dir", s.config.Dir).Msg("report service started")
}

// Stop waits for the scheduler to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	s.logger.Info().Msg("report service stopped")
}

func (s *Service) loop() {
	defer s.wg.Done()

	nextRun := nextFirstOfMonth(time.Now())
	timer := time.NewTimer(time.Until(nextRun))
	defer timer.Stop()

	s.logger.Info().Time("next_run", nextRun).Msg("monthly export scheduled")

	for {
		select {
		case <-s.stopCh:
			return
		case <-timer.C:
			if err := s.ExportNow(); err != nil {
				s.logger.Error().Err(err).Msg("monthly export failed")
			}

			nextRun = nextFirstOfMonth(time.Now())
			timer.Reset(time.Until(nextRun))
			s.logger.Info().Time("next_run", nextRun).Msg("monthly export scheduled")
		}
	}
}

func nextFirstOfMonth(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month()+1, 1, 0, 1, 0, 0, now.Location())
}

// Filename names an export after the month it covers, e.g.
// "zenteach_2026-08.xlsx".
func Filename(t time.Time) string {
	return fmt.Sprintf("zenteach_%s.xlsx", t.Format("2006-01"))
}

// ExportNow writes an export for the previous month immediately.
func (s *Service) ExportNow() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	return s.export(ctx)
}

func (s *Service) export(ctx context.Context) error {
	if s.exporter == nil || s.writer == nil {
		return fmt.Errorf("exporter or writer not configured")
	}

	tables, err := s.exporter.GetTableNames(ctx)
	if err != nil {
		return fmt.Errorf("get table names: %w", err)
	}
	if len(tables) == 0 {
		s.logger.Info().Msg("no tables to export")
		return nil
	}

	excel := s.writer()
	defer excel.Close()

	for _, tableName := range tables {
		data, columns, err := s.exporter.GetTableData(ctx, tableName)
		if err != nil {
			s.logger.Error().Err(err).Str("table", tableName).Msg("failed to read table")
			continue
		}

		if err := excel.AddSheet(tableName); err != nil {
			s.logger.Error().Err(err).Str("table", tableName).Msg("failed to add sheet")
			continue
		}
		if err := excel.WriteHeader(columns); err != nil {
			s.logger.Error().Err(err).Str("table", tableName).Msg("failed to write header")
			continue
		}

		for _, row := range data {
			rowData := make([]interface{}, len(columns))
			for i, col := range columns {
				rowData[i] = row[col]
			}
			if err := excel.WriteRow(rowData); err != nil {
				s.logger.Error().Err(err).Str("table", tableName).Msg("failed to write row")
			}
		}

		s.logger.Debug().Str("table", tableName).Int("rows", len(data)).Msg("exported table")
	}

	if err := os.MkdirAll(s.config.Dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	path := filepath.Join(s.config.Dir, Filename(time.Now().AddDate(0, -1, 0)))
	if err := excel.SaveToFile(path); err != nil {
		return fmt.Errorf("save report: %w", err)
	}

	s.logger.Info().Str("path", path).Msg("report written")
	return nil
}
