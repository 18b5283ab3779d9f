package assistant

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"dcc/internal/service"
)

// Result holds the task fields the model filled in. Empty fields were absent
// or failed validation.
type Result struct {
	Title       string           `json:"title,omitempty"`
	Description string           `json:"description,omitempty"`
	Category    service.Category `json:"category,omitempty"`
	DueDate     string           `json:"dueDate,omitempty"`
}

// Text joins title and description into a task's display text.
func (r Result) Text() string {
	title := strings.TrimSpace(r.Title)
	desc := strings.TrimSpace(r.Description)
	switch {
	case title == "":
		return desc
	case desc == "":
		return title
	default:
		return title + ": " + desc
	}
}

// Due parses DueDate. ok is false when no due date was set.
func (r Result) Due() (time.Time, bool) {
	if r.DueDate == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(service.DateLayout, r.DueDate)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

var (
	openFence      = regexp.MustCompile("^```[a-zA-Z]*[ \t]*\r?\n?")
	closeFence     = regexp.MustCompile("\r?\n?```$")
	dueDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// stripCodeFence removes leading and trailing markdown fence markup. Either
// side may be missing.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = openFence.ReplaceAllString(s, "")
	s = closeFence.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Validate turns raw model output into a sanitized Result.
// Unknown categories and malformed due dates are dropped silently; a missing
// title is allowed. Empty output yields ErrEmptyResponse and output that is
// not a JSON object yields ErrInvalidJSON.
func Validate(raw string) (Result, error) {
	payload := stripCodeFence(raw)
	if payload == "" {
		return Result{}, ErrEmptyResponse
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(payload), &fields); err != nil || fields == nil {
		return Result{}, ErrInvalidJSON
	}

	var r Result
	r.Title = stringField(fields, "title")
	r.Description = stringField(fields, "description")

	if c := service.Category(stringField(fields, "category")); service.IsValidCategory(c) {
		r.Category = c
	}

	if due := stringField(fields, "dueDate"); dueDatePattern.MatchString(due) {
		if _, err := time.Parse(service.DateLayout, due); err == nil {
			r.DueDate = due
		}
	}
	return r, nil
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return strings.TrimSpace(s)
}
