// Package sheet reads and writes the tabular files exchanged between pipeline
// stages: CSV/TSV for the raw corpus and XLSX for everything downstream.
package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// DefaultSheet is the sheet name used for every workbook the pipeline writes.
const DefaultSheet = "Sheet1"

// ErrNoColumn is returned when a named column is absent.
var ErrNoColumn = errors.New("column not found")

// Table is an ordered set of named string columns.
type Table struct {
	Headers []string
	Rows    [][]string
}

// NewTable creates an empty table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{Headers: append([]string(nil), headers...)}
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// Index returns the position of the named column or -1.
func (t *Table) Index(name string) int {
	for i, h := range t.Headers {
		if h == name {
			return i
		}
	}
	return -1
}

// Has reports whether the table has the named column.
func (t *Table) Has(name string) bool { return t.Index(name) >= 0 }

// Value returns the cell at row i of the named column, or "" if the column is missing.
func (t *Table) Value(i int, name string) string {
	idx := t.Index(name)
	if idx < 0 || idx >= len(t.Rows[i]) {
		return ""
	}
	return t.Rows[i][idx]
}

// Column returns a copy of the named column.
func (t *Table) Column(name string) ([]string, error) {
	idx := t.Index(name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoColumn, name)
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		if idx < len(row) {
			out[i] = row[idx]
		}
	}
	return out, nil
}

// NonEmpty returns the non-blank cells of the named column, in order.
func (t *Table) NonEmpty(name string) ([]string, error) {
	col, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, v := range col {
		if v = strings.TrimSpace(v); v != "" && !isMissing(v) {
			out = append(out, v)
		}
	}
	return out, nil
}

// Floats parses the named column as numbers. Blank and NaN cells read as 0.
func (t *Table) Floats(name string) ([]float64, error) {
	col, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(col))
	for i, v := range col {
		f, err := ParseFloat(v)
		if err != nil {
			return nil, fmt.Errorf("column %s row %d: %w", name, i, err)
		}
		out[i] = f
	}
	return out, nil
}

// Ints parses the named column as 0/1 style integers (1.0 reads as 1).
func (t *Table) Ints(name string) ([]int, error) {
	floats, err := t.Floats(name)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(floats))
	for i, f := range floats {
		out[i] = int(math.Round(f))
	}
	return out, nil
}

// SetColumn replaces the named column, appending it when absent.
func (t *Table) SetColumn(name string, values []string) error {
	if len(values) != len(t.Rows) {
		return fmt.Errorf("column %s has %d values for %d rows", name, len(values), len(t.Rows))
	}
	idx := t.Index(name)
	if idx < 0 {
		t.Headers = append(t.Headers, name)
		idx = len(t.Headers) - 1
	}
	for i := range t.Rows {
		for len(t.Rows[i]) <= idx {
			t.Rows[i] = append(t.Rows[i], "")
		}
		t.Rows[i][idx] = values[i]
	}
	return nil
}

// Append adds a row. Short rows are padded to the header width.
func (t *Table) Append(row ...string) {
	r := append([]string(nil), row...)
	for len(r) < len(t.Headers) {
		r = append(r, "")
	}
	t.Rows = append(t.Rows, r)
}

// ParseFloat reads a spreadsheet cell as a number; blank, NaN and None are 0.
func ParseFloat(v string) (float64, error) {
	v = strings.TrimSpace(v)
	if v == "" || isMissing(v) {
		return 0, nil
	}
	switch strings.ToLower(v) {
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) {
		return 0, nil
	}
	return f, nil
}

// FormatFloat renders a number the way it should appear in a string cell.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func isMissing(v string) bool {
	switch strings.ToLower(v) {
	case "nan", "none", "null", "nat":
		return true
	}
	return false
}

// ReadFile loads a CSV, TSV or XLSX file into a Table, routing on the extension.
func ReadFile(path string) (*Table, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".csv"), strings.HasSuffix(lower, ".tsv"):
		return ParseCSV(bytes.NewReader(content), strings.HasSuffix(lower, ".tsv"))
	case strings.HasSuffix(lower, ".xlsx"):
		return ParseXLSX(bytes.NewReader(content))
	}
	return nil, fmt.Errorf("unsupported file type: %s", filepath.Base(path))
}

// ParseCSV parses CSV or TSV content; the first record is the header.
func ParseCSV(r io.Reader, isTSV bool) (*Table, error) {
	reader := csv.NewReader(r)
	if isTSV {
		reader.Comma = '\t'
	}
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	allRows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(allRows) == 0 {
		return nil, fmt.Errorf("empty CSV file")
	}
	return normalize(allRows), nil
}

// skipSheets are metadata sheet names that never hold the data table.
var skipSheets = map[string]bool{
	"info":     true,
	"metadata": true,
	"about":    true,
	"readme":   true,
	"notes":    true,
}

// ParseXLSX parses the first data sheet of a workbook.
func ParseXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets in Excel file")
	}
	sheetName := ""
	for _, s := range sheets {
		if !skipSheets[strings.ToLower(s)] {
			sheetName = s
			break
		}
	}
	if sheetName == "" {
		sheetName = sheets[len(sheets)-1]
	}

	allRows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read Excel rows: %w", err)
	}
	if len(allRows) == 0 {
		return nil, fmt.Errorf("empty Excel file")
	}
	return normalize(allRows), nil
}

// normalize trims header whitespace and pads or trims rows to the header width.
func normalize(allRows [][]string) *Table {
	headers := make([]string, len(allRows[0]))
	for i, h := range allRows[0] {
		headers[i] = strings.TrimSpace(h)
	}
	rows := allRows[1:]
	for i, row := range rows {
		if len(row) < len(headers) {
			for j := len(row); j < len(headers); j++ {
				rows[i] = append(rows[i], "")
			}
		} else if len(row) > len(headers) {
			rows[i] = row[:len(headers)]
		}
	}
	return &Table{Headers: headers, Rows: rows}
}

// WriteOptions controls how a table is rendered into a workbook.
type WriteOptions struct {
	// Numeric columns are written as numbers when the cell parses as one.
	Numeric []string
	// ColorScale columns get a red-yellow-green 3-colour scale.
	ColorScale []string
}

// WriteXLSX writes the table to Sheet1 of a new workbook at path, creating parent dirs.
func WriteXLSX(path string, t *Table, opts WriteOptions) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	f := excelize.NewFile()
	defer f.Close()

	numeric := make(map[int]bool)
	for _, name := range opts.Numeric {
		if idx := t.Index(name); idx >= 0 {
			numeric[idx] = true
		}
	}

	header := make([]interface{}, len(t.Headers))
	for i, h := range t.Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(DefaultSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for r, row := range t.Rows {
		values := make([]interface{}, len(row))
		for c, v := range row {
			values[c] = v
			if numeric[c] && strings.TrimSpace(v) != "" {
				if n, err := strconv.ParseFloat(v, 64); err == nil {
					values[c] = n
				}
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(DefaultSheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", r, err)
		}
	}

	if len(t.Rows) > 0 {
		for _, name := range opts.ColorScale {
			idx := t.Index(name)
			if idx < 0 {
				return fmt.Errorf("%w: %s", ErrNoColumn, name)
			}
			if err := addColorScale(f, idx+1, len(t.Rows)+1); err != nil {
				return err
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

func addColorScale(f *excelize.File, col, lastRow int) error {
	name, err := excelize.ColumnNumberToName(col)
	if err != nil {
		return err
	}
	ref := fmt.Sprintf("%s2:%s%d", name, name, lastRow)
	return f.SetConditionalFormat(DefaultSheet, ref, []excelize.ConditionalFormatOptions{{
		Type:     "3_color_scale",
		Criteria: "=",
		MinType:  "min",
		MidType:  "percentile",
		MidValue: "50",
		MaxType:  "max",
		MinColor: "#F8696B",
		MidColor: "#FFEB84",
		MaxColor: "#63BE7B",
	}})
}

// WriteCSV writes the table as CSV, creating parent dirs.
func WriteCSV(path string, t *Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(t.Headers); err != nil {
		return err
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return err
	}
	return w.Error()
}
