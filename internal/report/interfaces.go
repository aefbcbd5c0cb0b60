// Package report produces monthly Excel exports of the booking tables.
package report

import (
	"context"
	"io"
)

// TableExporter provides access to database tables for export.
type TableExporter interface {
	GetTableNames(ctx context.Context) ([]string, error)
	GetTableData(ctx context.Context, tableName string) ([]map[string]interface{}, []string, error)
}

// ExcelWriter writes tabular data to Excel format.
type ExcelWriter interface {
	AddSheet(name string) error
	WriteHeader(columns []string) error
	WriteRow(row []interface{}) error
	Save(w io.Writer) error
	SaveToFile(path string) error
	Close() error
}
