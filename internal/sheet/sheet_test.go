package sheet

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestParseCSVPadsShortRows(t *testing.T) {
	input := "tweet_id,author_id,text\n1,AmazonHelp,hello\n2,115712\n"
	table, err := ParseCSV(strings.NewReader(input), false)
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("Expected 2 rows, got %d", table.Len())
	}
	if got := table.Value(1, "text"); got != "" {
		t.Errorf("Expected padded empty text, got %q", got)
	}
	if got := table.Value(0, "author_id"); got != "AmazonHelp" {
		t.Errorf("Expected AmazonHelp, got %q", got)
	}
}

func TestParseTSV(t *testing.T) {
	table, err := ParseCSV(strings.NewReader("a\tb\n1\t2\n"), true)
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if table.Value(0, "b") != "2" {
		t.Errorf("Unexpected TSV parse: %+v", table)
	}
}

func TestParseFloat(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"", 0},
		{"NaN", 0},
		{"nan", 0},
		{"1", 1},
		{"1.0", 1},
		{" 0.25 ", 0.25},
		{"True", 1},
	}
	for _, tt := range tests {
		got, err := ParseFloat(tt.in)
		if err != nil {
			t.Errorf("ParseFloat(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFloat(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := ParseFloat("abc"); err == nil {
		t.Error("Expected error for non-numeric cell")
	}
}

func TestSetColumnAppendsAndReplaces(t *testing.T) {
	table := NewTable("text")
	table.Append("a")
	table.Append("b")

	if err := table.SetColumn("pred", []string{"0.1", "0.2"}); err != nil {
		t.Fatalf("SetColumn failed: %v", err)
	}
	if err := table.SetColumn("pred", []string{"0.3", "0.4"}); err != nil {
		t.Fatalf("SetColumn failed: %v", err)
	}
	if len(table.Headers) != 2 {
		t.Errorf("Expected 2 headers, got %v", table.Headers)
	}
	if table.Value(1, "pred") != "0.4" {
		t.Errorf("Expected replaced value, got %q", table.Value(1, "pred"))
	}
	if err := table.SetColumn("bad", []string{"x"}); err == nil {
		t.Error("Expected length mismatch error")
	}
}

func TestMissingColumn(t *testing.T) {
	table := NewTable("a")
	if _, err := table.Column("b"); !errors.Is(err, ErrNoColumn) {
		t.Errorf("Expected ErrNoColumn, got %v", err)
	}
}

func TestNonEmptySkipsBlanks(t *testing.T) {
	table := NewTable("Refund")
	table.Append("refund request")
	table.Append("")
	table.Append("NaN")
	table.Append("money back")
	got, err := table.NonEmpty("Refund")
	if err != nil {
		t.Fatalf("NonEmpty failed: %v", err)
	}
	if len(got) != 2 || got[1] != "money back" {
		t.Errorf("Unexpected hypotheses %v", got)
	}
}

func TestXLSXRoundTripWithColorScale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "results.xlsx")
	table := NewTable("Header", "MCC", "F1")
	table.Append("Refund", "0.5", "0.75")
	table.Append("Delay", "-0.1", "0")

	err := WriteXLSX(path, table, WriteOptions{
		Numeric:    []string{"MCC", "F1"},
		ColorScale: []string{"MCC", "F1"},
	})
	if err != nil {
		t.Fatalf("WriteXLSX failed: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close()
	formats, err := f.GetConditionalFormats(DefaultSheet)
	if err != nil {
		t.Fatalf("GetConditionalFormats failed: %v", err)
	}
	if _, ok := formats["B2:B3"]; !ok {
		t.Errorf("Expected colour scale on B2:B3, got %v", formats)
	}

	back, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if back.Len() != 2 {
		t.Fatalf("Expected 2 rows, got %d", back.Len())
	}
	mcc, err := back.Floats("MCC")
	if err != nil {
		t.Fatalf("Floats failed: %v", err)
	}
	if mcc[0] != 0.5 || mcc[1] != -0.1 {
		t.Errorf("Unexpected MCC values %v", mcc)
	}
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.csv")
	table := NewTable("variant", "count")
	table.Append("a,b", "3")
	if err := WriteCSV(path, table); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}
	back, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if back.Value(0, "variant") != "a,b" {
		t.Errorf("Expected quoted value to survive, got %q", back.Value(0, "variant"))
	}
}

func TestReadFileUnsupported(t *testing.T) {
	if _, err := ReadFile(filepath.Join(t.TempDir(), "x.pdf")); err == nil {
		t.Error("Expected error")
	}
}
