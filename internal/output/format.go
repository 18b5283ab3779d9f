// Package output provides formatters for CLI output.
package output

import (
	"fmt"
	"io"
	"strings"

	"dcc/internal/assistant"
	"dcc/internal/service"
)

const (
	// ListSeparator is the separator line for view headers.
	ListSeparator = "------------"
)

// FormatTask formats a task line.
// Format: "{N:>4}  [x] {TEXT}  ({CATEGORY}, {PRIORITY}[, due {DATE}])\n"
func FormatTask(w io.Writer, num int, task service.Task) {
	mark := " "
	if task.Completed {
		mark = "x"
	}
	meta := []string{string(task.Category), string(task.Priority)}
	if task.DueDate != nil {
		meta = append(meta, "due "+task.DueDate.Format(service.DateLayout))
	}
	fmt.Fprintf(w, "%4d  [%s] %s  (%s)\n", num, mark, normalizeText(task.Text), strings.Join(meta, ", "))
}

// FormatTasks formats a numbered view, or "no tasks found" when empty.
// The message is suppressed when quiet is set.
func FormatTasks(w io.Writer, tasks []service.Task, quiet bool) {
	if len(tasks) == 0 {
		if !quiet {
			fmt.Fprintln(w, "no tasks found")
		}
		return
	}
	for i, task := range tasks {
		FormatTask(w, i+1, task)
	}
}

// FormatViewHeader formats the header of a category/filter view.
func FormatViewHeader(w io.Writer, category service.Category, filter service.Filter) {
	title := string(category)
	if title == "" {
		title = string(service.CategoryAll)
	}
	if filter != "" && filter != service.FilterAll {
		title += " (" + string(filter) + ")"
	}
	fmt.Fprintln(w, ListSeparator)
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, ListSeparator)
}

// FormatResult formats an AI parse preview. Empty fields print as "-".
func FormatResult(w io.Writer, r assistant.Result) {
	field := func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "-"
		}
		return normalizeText(s)
	}
	fmt.Fprintf(w, "title:       %s\n", field(r.Title))
	fmt.Fprintf(w, "description: %s\n", field(r.Description))
	fmt.Fprintf(w, "category:    %s\n", field(string(r.Category)))
	fmt.Fprintf(w, "due:         %s\n", field(r.DueDate))
}

// MaskKey hides all but the last four characters of an API key.
func MaskKey(key string) string {
	const visible = 4
	runes := []rune(key)
	if len(runes) <= visible {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-visible) + string(runes[len(runes)-visible:])
}

// normalizeText normalizes task text for display.
// - Empty or whitespace-only text becomes "(untitled)"
// - Newlines are replaced with spaces
func normalizeText(text string) string {
	// Replace newlines with spaces
	text = strings.ReplaceAll(text, "\r", " ")
	text = strings.ReplaceAll(text, "\n", " ")

	// Trim and check for empty
	if strings.TrimSpace(text) == "" {
		return "(untitled)"
	}
	return text
}
