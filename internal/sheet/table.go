// Package sheet reads and writes the workbooks and CSV files exchanged with
// the forecaster: raw order exports, the item × month sales pivot and the
// prediction tables.
package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Format is a supported file format
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// FormatFromPath infers the format from a file extension
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported file type: %s", filepath.Base(path))
	}
}

// Table is a header row followed by data rows. Every data row has exactly
// one cell per header.
type Table struct {
	Header []string
	Rows   [][]string
}

// ColumnIndex returns the position of the first header matching any of
// names, ignoring case, spaces and punctuation. It returns -1 if none match.
func (t *Table) ColumnIndex(names ...string) int {
	if len(names) == 0 {
		return -1
	}
	targets := make(map[string]struct{}, len(names))
	for _, name := range names {
		targets[normalizeColumnName(name)] = struct{}{}
	}
	for i, h := range t.Header {
		if _, ok := targets[normalizeColumnName(h)]; ok {
			return i
		}
	}
	return -1
}

var columnNameSanitizer = strings.NewReplacer(" ", "", "_", "", ".", "", "-", "", "/", "")

func normalizeColumnName(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	return columnNameSanitizer.Replace(name)
}

// ReadTable opens path and reads it as a table. For workbooks the named
// sheet is used when present, otherwise the first sheet.
func ReadTable(path, sheet string) (*Table, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	t, err := ReadTableFrom(f, format, sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return t, nil
}

// ReadTableFrom reads a table in the given format from r
func ReadTableFrom(r io.Reader, format Format, sheet string) (*Table, error) {
	var records [][]string
	var err error
	switch format {
	case FormatXLSX:
		records, err = readWorkbook(r, sheet)
	case FormatCSV:
		records, err = readCSV(r)
	default:
		err = fmt.Errorf("unsupported format: %s", format)
	}
	if err != nil {
		return nil, err
	}
	return newTable(records)
}

func readWorkbook(r io.Reader, sheet string) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	target := sheets[0]
	for _, name := range sheets {
		if sheet != "" && strings.EqualFold(name, sheet) {
			target = name
			break
		}
	}

	// Raw values keep dates as serials and numbers free of display formatting.
	rows, err := f.GetRows(target, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from sheet %s: %w", target, err)
	}
	return rows, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	return reader.ReadAll()
}

func newTable(records [][]string) (*Table, error) {
	// skip leading blank rows
	for len(records) > 0 && blank(records[0]) {
		records = records[1:]
	}
	if len(records) == 0 {
		return nil, errors.New("table has no header row")
	}

	header := trimTrailingBlanks(records[0])
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	t := &Table{Header: header, Rows: make([][]string, 0, len(records)-1)}
	for _, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		row := make([]string, len(header))
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func trimTrailingBlanks(rec []string) []string {
	end := len(rec)
	for end > 0 && strings.TrimSpace(rec[end-1]) == "" {
		end--
	}
	out := make([]string, end)
	copy(out, rec[:end])
	return out
}

// WriteTable writes t to w. Cells are written to workbooks as numbers when
// they parse as one.
func WriteTable(w io.Writer, format Format, sheet string, t *Table) error {
	switch format {
	case FormatXLSX:
		rows := make([][]interface{}, len(t.Rows))
		for i, rec := range t.Rows {
			rows[i] = make([]interface{}, len(rec))
			for j, c := range rec {
				rows[i][j] = typedCell(c)
			}
		}
		return writeWorkbook(w, sheet, t.Header, rows)
	case FormatCSV:
		return writeCSV(w, t.Header, t.Rows)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// SaveTable writes t to path in the format implied by its extension
func SaveTable(path, sheet string, t *Table) error {
	return saveTo(path, func(w io.Writer, format Format) error {
		return WriteTable(w, format, sheet, t)
	})
}

func saveTo(path string, write func(io.Writer, Format) error) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(out, format); err != nil {
		out.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return out.Close()
}

func writeWorkbook(w io.Writer, sheet string, header []string, rows [][]interface{}) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "Sheet1"
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return err
	}
	headerRow := make([]interface{}, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := sw.SetRow("A1", headerRow); err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}

	_, err = f.WriteTo(w)
	return err
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
