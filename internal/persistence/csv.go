package persistence

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"io"

	"github.com/mpeeters/tasknest/internal/domain/task"
)

// WriteCSV exports tasks as a flat spreadsheet, one row per task with the
// recursive subject so the hierarchy stays readable.
func WriteCSV(w io.Writer, doc *task.Document) error {
	out := csv.NewWriter(w)
	header := []string{
		"Subject", "Description", "Priority",
		"Planned start date", "Due date", "Completion date",
		"Hourly fee", "Fixed fee", "Categories",
	}
	if err := out.Write(header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, t := range doc.Tasks.AllSorted() {
		if t.IsDeleted() {
			continue
		}
		var categories []string
		for _, c := range t.Categories(false, false) {
			categories = append(categories, c.Subject(true))
		}
		row := []string{
			t.Subject(true),
			t.Description(),
			strconv.Itoa(t.Priority()),
			csvDate(t.PlannedStartDateTime()),
			csvDate(t.DueDateTime()),
			csvDate(t.CompletionDateTime()),
			strconv.FormatFloat(t.HourlyFee(), 'f', 2, 64),
			strconv.FormatFloat(t.FixedFee(), 'f', 2, 64),
			strings.Join(categories, ", "),
		}
		if err := out.Write(row); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	out.Flush()
	if err := out.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}

func csvDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}
