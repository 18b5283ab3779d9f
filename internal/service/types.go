// Package service defines the backend-agnostic interface for task storage.
package service

import (
	"slices"
	"strings"
	"time"
)

// Category is one of the fixed buckets a task belongs to.
type Category string

const (
	CategoryWork     Category = "Work"
	CategoryHome     Category = "Home"
	CategoryFamily   Category = "Family"
	CategoryErrands  Category = "Errands"
	CategoryFinance  Category = "Finance"
	CategoryHealth   Category = "Health"
	CategoryPersonal Category = "Personal"

	// CategoryAll selects every category in a view. It is never stored on a task.
	CategoryAll Category = "All"
)

// DefaultCategory is used when a new task names no category.
const DefaultCategory = CategoryPersonal

// Categories returns the storable categories in display order.
func Categories() []Category {
	return []Category{
		CategoryWork,
		CategoryHome,
		CategoryFamily,
		CategoryErrands,
		CategoryFinance,
		CategoryHealth,
		CategoryPersonal,
	}
}

// IsValidCategory reports whether c may be stored on a task.
func IsValidCategory(c Category) bool {
	return slices.Contains(Categories(), c)
}

// ParseCategory resolves a user-typed category name (case-insensitive, trimmed).
// "all" resolves to CategoryAll.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, string(CategoryAll)) {
		return CategoryAll, true
	}
	for _, c := range Categories() {
		if strings.EqualFold(s, string(c)) {
			return c, true
		}
	}
	return "", false
}

// Priority is the importance of a task.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// DefaultPriority is used when a new task names no priority.
const DefaultPriority = PriorityMedium

// ParsePriority resolves a user-typed priority (case-insensitive, trimmed).
func ParsePriority(s string) (Priority, bool) {
	s = strings.TrimSpace(s)
	for _, p := range []Priority{PriorityHigh, PriorityMedium, PriorityLow} {
		if strings.EqualFold(s, string(p)) {
			return p, true
		}
	}
	return "", false
}

// Filter narrows a view by completion state.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterActive    Filter = "active"
	FilterCompleted Filter = "completed"
)

// ParseFilter resolves a filter name. Empty means FilterAll.
func ParseFilter(s string) (Filter, bool) {
	switch Filter(strings.ToLower(strings.TrimSpace(s))) {
	case "", FilterAll:
		return FilterAll, true
	case FilterActive:
		return FilterActive, true
	case FilterCompleted:
		return FilterCompleted, true
	default:
		return "", false
	}
}

// DateLayout is the wire and display format for due dates.
const DateLayout = "2006-01-02"

// Task represents a single task record.
type Task struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Text      string     `json:"text"`
	Category  Category   `json:"category"`
	Completed bool       `json:"completed"`
	Priority  Priority   `json:"priority"`
	DueDate   *time.Time `json:"dueDate,omitempty"`
	Position  int64      `json:"position"`
	CreatedAt time.Time  `json:"createdAt"`
}

// NewTask holds the caller-supplied fields of a task being created.
// The store assigns ID and CreatedAt.
type NewTask struct {
	Text     string
	Category Category
	Priority Priority
	DueDate  *time.Time
	Position int64
}

// TaskPatch lists the fields to change on an existing task. Nil fields are left alone.
type TaskPatch struct {
	Text      *string
	Completed *bool
	Priority  *Priority
	DueDate   *time.Time
	ClearDue  bool
}

// Query selects the tasks of one user for a view.
type Query struct {
	UserID   string
	Category Category
	Filter   Filter
}

// Matches reports whether t belongs to the view selected by q.
func (q Query) Matches(t Task) bool {
	if t.UserID != q.UserID {
		return false
	}
	if q.Category != "" && q.Category != CategoryAll && t.Category != q.Category {
		return false
	}
	switch q.Filter {
	case FilterActive:
		return !t.Completed
	case FilterCompleted:
		return t.Completed
	default:
		return true
	}
}

// SortTasks orders tasks by position, then creation time, then ID.
func SortTasks(tasks []Task) {
	slices.SortStableFunc(tasks, func(a, b Task) int {
		switch {
		case a.Position != b.Position:
			if a.Position < b.Position {
				return -1
			}
			return 1
		case !a.CreatedAt.Equal(b.CreatedAt):
			return a.CreatedAt.Compare(b.CreatedAt)
		default:
			return strings.Compare(a.ID, b.ID)
		}
	})
}
