package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// excelSheetNameLimit is the hard cap Excel puts on sheet names.
const excelSheetNameLimit = 31

// ExcelizeWriter builds workbooks with the excelize library. Output goes to
// one sheet at a time, top to bottom; the writer tracks the insertion row.
type ExcelizeWriter struct {
	f           *excelize.File
	sheet       string
	row         int
	headerStyle int
}

// NewExcelizeWriter creates an empty workbook.
func NewExcelizeWriter() ExcelWriter {
	return &ExcelizeWriter{f: excelize.NewFile()}
}

// AddSheet switches output to a new sheet. The first call renames the
// workbook's default sheet instead of adding a second one.
func (w *ExcelizeWriter) AddSheet(name string) error {
	if len(name) > excelSheetNameLimit {
		name = name[:excelSheetNameLimit]
	}

	if w.sheet == "" {
		w.f.SetSheetName("Sheet1", name)
	} else if _, err := w.f.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	w.sheet = name
	w.row = 1
	return nil
}

// WriteHeader writes the column names as a bold first row.
func (w *ExcelizeWriter) WriteHeader(columns []string) error {
	cells := make([]interface{}, len(columns))
	for i, col := range columns {
		cells[i] = col
	}
	if err := w.writeCells(cells); err != nil {
		return err
	}

	if style, err := w.boldStyle(); err == nil {
		first, _ := excelize.CoordinatesToCellName(1, w.row-1)
		last, _ := excelize.CoordinatesToCellName(len(columns), w.row-1)
		_ = w.f.SetCellStyle(w.sheet, first, last, style)
	}
	return nil
}

// WriteRow appends a data row to the current sheet.
func (w *ExcelizeWriter) WriteRow(row []interface{}) error {
	return w.writeCells(row)
}

func (w *ExcelizeWriter) writeCells(values []interface{}) error {
	if w.sheet == "" {
		return fmt.Errorf("no active sheet")
	}

	for i, val := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, w.row)
		if err != nil {
			return err
		}
		if err := w.f.SetCellValue(w.sheet, cell, val); err != nil {
			return err
		}
	}

	w.row++
	return nil
}

// boldStyle lazily creates the shared header style.
func (w *ExcelizeWriter) boldStyle() (int, error) {
	if w.headerStyle != 0 {
		return w.headerStyle, nil
	}
	style, err := w.f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return 0, err
	}
	w.headerStyle = style
	return style, nil
}

// Save streams the workbook to wr.
func (w *ExcelizeWriter) Save(wr io.Writer) error {
	return w.f.Write(wr)
}

// SaveToFile writes the workbook to disk.
func (w *ExcelizeWriter) SaveToFile(path string) error {
	return w.f.SaveAs(path)
}

// Close releases the workbook's resources.
func (w *ExcelizeWriter) Close() error {
	return w.f.Close()
}
