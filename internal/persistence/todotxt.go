package persistence

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/mpeeters/tasknest/internal/domain/task"
)

const todoTxtDateLayout = "2006-01-02"

var todoTxtWhitespace = regexp.MustCompile(`\s`)

// WriteTodoTxt exports tasks in the Todo.txt line format. Categories
// whose subject starts with "@" become contexts and those starting with
// "+" become projects; a tcid: tag carries the task id so a later import
// can match lines back to tasks.
func WriteTodoTxt(w io.Writer, doc *task.Document) error {
	for _, t := range doc.Tasks.AllSorted() {
		if t.IsDeleted() {
			continue
		}
		if _, err := io.WriteString(w, todoTxtLine(t)+"\n"); err != nil {
			return fmt.Errorf("writing todo.txt: %w", err)
		}
	}
	return nil
}

func todoTxtLine(t *task.Task) string {
	var line strings.Builder
	if priority := t.Priority(); 1 <= priority && priority <= 26 {
		line.WriteString(fmt.Sprintf("(%c) ", 'A'+priority-1))
	}
	if t.Completed() {
		line.WriteString("X ")
		line.WriteString(t.CompletionDateTime().Format(todoTxtDateLayout))
		line.WriteString(" ")
	}
	if start := t.PlannedStartDateTime(); !start.IsZero() {
		line.WriteString(start.Format(todoTxtDateLayout))
		line.WriteString(" ")
	}
	line.WriteString(t.Subject(true))

	var tags []string
	for _, c := range t.Categories(false, false) {
		subject := c.Subject(true)
		if !strings.HasPrefix(subject, "@") && !strings.HasPrefix(subject, "+") {
			continue
		}
		subject = strings.ReplaceAll(subject, " -> ", "->")
		tags = append(tags, todoTxtWhitespace.ReplaceAllString(subject, "_"))
	}
	sort.Strings(tags)
	for _, tag := range tags {
		line.WriteString(" ")
		line.WriteString(tag)
	}

	if due := t.DueDateTime(); !due.IsZero() {
		line.WriteString(" due:")
		line.WriteString(due.Format(todoTxtDateLayout))
	}
	line.WriteString(" tcid:")
	line.WriteString(t.ID())
	return line.String()
}
