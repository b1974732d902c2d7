package persistence

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/mpeeters/tasknest/internal/domain/task"
)

var htmlTemplate = template.Must(template.New("export").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: left; }
tr.completed td { color: #888; text-decoration: line-through; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<table>
<tr><th>Subject</th><th>Planned start</th><th>Due</th><th>Completed</th><th>Priority</th></tr>
{{range .Rows}}<tr{{if .Completed}} class="completed"{{end}}><td>{{.Subject}}</td><td>{{.PlannedStart}}</td><td>{{.Due}}</td><td>{{.Completion}}</td><td>{{.Priority}}</td></tr>
{{end}}</table>
</body>
</html>
`))

type htmlRow struct {
	Subject      string
	PlannedStart string
	Due          string
	Completion   string
	Priority     int
	Completed    bool
}

// WriteHTML exports tasks as a static report page.
func WriteHTML(w io.Writer, doc *task.Document, title string) error {
	if title == "" {
		title = "Tasks"
	}
	data := struct {
		Title string
		Rows  []htmlRow
	}{Title: title}
	for _, t := range doc.Tasks.AllSorted() {
		if t.IsDeleted() {
			continue
		}
		data.Rows = append(data.Rows, htmlRow{
			Subject:      t.Subject(true),
			PlannedStart: htmlDate(t.PlannedStartDateTime()),
			Due:          htmlDate(t.DueDateTime()),
			Completion:   htmlDate(t.CompletionDateTime()),
			Priority:     t.Priority(),
			Completed:    t.Completed(),
		})
	}
	if err := htmlTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("writing html export: %w", err)
	}
	return nil
}

func htmlDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
