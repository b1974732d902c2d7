package persistence

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mpeeters/tasknest/internal/domain/task"
)

const icalTimeLayout = "20060102T150405"

// WriteICalendar exports tasks as VTODO components and efforts as VEVENT
// components. Lines are folded at 75 octets and terminated with CRLF as
// RFC 5545 requires.
func WriteICalendar(w io.Writer, doc *task.Document) error {
	out := &icalWriter{w: w}
	out.line("BEGIN:VCALENDAR")
	out.line("VERSION:2.0")
	out.line("PRODID:-//tasknest//NONSGML tasknest//EN")
	for _, t := range doc.Tasks.AllSorted() {
		out.vtodo(t)
	}
	for _, e := range doc.Efforts.All() {
		out.vevent(e)
	}
	out.line("END:VCALENDAR")
	return out.err
}

type icalWriter struct {
	w   io.Writer
	err error
}

func (iw *icalWriter) vtodo(t *task.Task) {
	iw.line("BEGIN:VTODO")
	iw.line("UID:" + t.ID())
	iw.timeLine("CREATED", t.CreationDateTime())
	iw.timeLine("LAST-MODIFIED", t.ModificationDateTime())
	iw.line("SUMMARY:" + icalEscape(t.Subject(false)))
	if description := t.Description(); description != "" {
		iw.line("DESCRIPTION:" + icalEscape(description))
	}
	iw.timeLine("DTSTART", t.PlannedStartDateTime())
	iw.timeLine("DUE", t.DueDateTime())
	if t.Completed() {
		iw.timeLine("COMPLETED", t.CompletionDateTime())
		iw.line("PERCENT-COMPLETE:100")
		iw.line("STATUS:COMPLETED")
	} else {
		iw.line("PERCENT-COMPLETE:0")
		iw.line("STATUS:NEEDS-ACTION")
	}
	if priority := t.Priority(); priority > 0 {
		// RFC 5545 priority runs 1 (highest) to 9.
		if priority > 9 {
			priority = 9
		}
		iw.line(fmt.Sprintf("PRIORITY:%d", priority))
	}
	if categories := t.Categories(true, true); len(categories) > 0 {
		var names []string
		for _, c := range categories {
			names = append(names, icalEscape(c.Subject(false)))
		}
		iw.line("CATEGORIES:" + strings.Join(names, ","))
	}
	if parent := t.Parent(); parent != nil {
		iw.line("RELATED-TO:" + parent.ID())
	}
	iw.line("END:VTODO")
}

func (iw *icalWriter) vevent(e *task.Effort) {
	iw.line("BEGIN:VEVENT")
	iw.line("UID:" + e.ID())
	iw.timeLine("CREATED", e.CreationDateTime())
	iw.timeLine("LAST-MODIFIED", e.ModificationDateTime())
	subject := e.Subject(false)
	if subject == "" && e.Task() != nil {
		subject = e.Task().Subject(true)
	}
	iw.line("SUMMARY:" + icalEscape(subject))
	if description := e.Description(); description != "" {
		iw.line("DESCRIPTION:" + icalEscape(description))
	}
	iw.timeLine("DTSTART", e.Start())
	iw.timeLine("DTEND", e.Stop())
	if e.Task() != nil {
		iw.line("RELATED-TO:" + e.Task().ID())
	}
	iw.line("END:VEVENT")
}

func (iw *icalWriter) timeLine(name string, t time.Time) {
	if t.IsZero() {
		return
	}
	iw.line(name + ":" + t.Format(icalTimeLayout))
}

// line folds content at 75 octets and writes it with a CRLF terminator.
// Folding counts bytes, not runes, but never splits a UTF-8 sequence.
func (iw *icalWriter) line(content string) {
	if iw.err != nil {
		return
	}
	var folded strings.Builder
	width := 0
	limit := 75
	for _, r := range content {
		size := len(string(r))
		if width+size > limit {
			folded.WriteString("\r\n ")
			width = 1 // continuation lines start with a space
		}
		folded.WriteRune(r)
		width += size
	}
	folded.WriteString("\r\n")
	_, iw.err = io.WriteString(iw.w, folded.String())
}

// icalEscape escapes the characters RFC 5545 reserves in text values.
func icalEscape(s string) string {
	replacer := strings.NewReplacer(
		"\\", "\\\\",
		";", "\\;",
		",", "\\,",
		"\r\n", "\\n",
		"\n", "\\n",
	)
	return replacer.Replace(s)
}
