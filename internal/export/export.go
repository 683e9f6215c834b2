// Package export renders feedback records as CSV or XLSX for offline review.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/linnemanlabs/harken/internal/feedback"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat converts a case-insensitive name into a Format. Empty means CSV.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want csv or xlsx)", s)
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Filename returns a download name stamped with t.
func (f Format) Filename(t time.Time) string {
	return "feedback-" + t.UTC().Format("20060102-150405") + "." + string(f)
}

// Header is the column order shared by both formats.
var Header = []string{
	"id", "created_at", "updated_at", "parent_name", "parent_email", "student_id",
	"channel", "department", "category", "priority", "sentiment", "sentiment_score",
	"urgent", "status", "rules_version", "message",
}

const sheetName = "Feedback"

// freeText indexes the Header columns that hold submitter-supplied text.
var freeText = []int{3, 4, 5, 6, 15}

// Write renders records to w in the given format.
func Write(w io.Writer, format Format, records []*feedback.Record) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, records)
	case FormatXLSX:
		return WriteXLSX(w, records)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// WriteCSV writes a header row then one row per record.
func WriteCSV(w io.Writer, records []*feedback.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range records {
		cols := row(r)
		for _, i := range freeText {
			cols[i] = escapeFormula(cols[i])
		}
		if err := cw.Write(cols); err != nil {
			return fmt.Errorf("write csv row %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteXLSX writes a single-sheet workbook with a frozen bold header row.
func WriteXLSX(w io.Writer, records []*feedback.Record) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close workbook: %w", cerr)
		}
	}()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return fmt.Errorf("stream writer: %w", err)
	}
	if err := sw.SetPanes(&excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}
	msgCol := len(Header)
	if err := sw.SetColWidth(msgCol, msgCol, 80); err != nil {
		return fmt.Errorf("column width: %w", err)
	}

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = excelize.Cell{Value: h, StyleID: bold}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, xlsxRow(r)); err != nil {
			return fmt.Errorf("write row %s: %w", r.ID, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func row(r *feedback.Record) []string {
	return []string{
		r.ID,
		r.CreatedAt.UTC().Format(time.RFC3339),
		r.UpdatedAt.UTC().Format(time.RFC3339),
		r.ParentName,
		r.ParentEmail,
		r.StudentID,
		r.Channel,
		r.Department,
		string(r.Category),
		string(r.Priority),
		string(r.Sentiment),
		strconv.Itoa(r.SentimentScore),
		strconv.FormatBool(r.Urgent),
		string(r.Status),
		r.RulesVersion,
		r.Message,
	}
}

// xlsxRow keeps numbers and booleans typed so spreadsheets can sort them.
func xlsxRow(r *feedback.Record) []any {
	strs := row(r)
	out := make([]any, len(strs))
	for i, s := range strs {
		out[i] = s
	}
	out[11] = r.SentimentScore
	out[12] = r.Urgent
	return out
}

// escapeFormula stops spreadsheet apps from evaluating parent-supplied text.
func escapeFormula(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + s
	}
	return s
}
