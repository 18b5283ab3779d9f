package firestore

import (
	"fmt"
	"path"
	"strings"
	"time"

	fs "google.golang.org/api/firestore/v1"

	"dcc/internal/service"
)

// Document field names.
const (
	fieldText      = "text"
	fieldCategory  = "category"
	fieldCompleted = "completed"
	fieldPriority  = "priority"
	fieldDueDate   = "dueDate"
	fieldPosition  = "position"
	fieldUserID    = "userId"
	fieldAPIKey    = "apiKey"
)

func stringValue(s string) fs.Value {
	return fs.Value{StringValue: s, ForceSendFields: []string{"StringValue"}}
}

func boolValue(b bool) fs.Value {
	return fs.Value{BooleanValue: b, ForceSendFields: []string{"BooleanValue"}}
}

func intValue(n int64) fs.Value {
	return fs.Value{IntegerValue: n, ForceSendFields: []string{"IntegerValue"}}
}

// newTaskFields encodes a new task owned by userID.
func newTaskFields(userID string, t service.NewTask) map[string]fs.Value {
	fields := map[string]fs.Value{
		fieldUserID:    stringValue(userID),
		fieldText:      stringValue(t.Text),
		fieldCategory:  stringValue(string(t.Category)),
		fieldCompleted: boolValue(false),
		fieldPriority:  stringValue(string(t.Priority)),
		fieldPosition:  intValue(t.Position),
	}
	if t.DueDate != nil {
		fields[fieldDueDate] = stringValue(t.DueDate.Format(service.DateLayout))
	}
	return fields
}

// patchFields encodes p as document fields plus the update mask naming them.
// A cleared due date appears in the mask but not in the fields, which removes it.
func patchFields(p service.TaskPatch) (map[string]fs.Value, []string) {
	fields := make(map[string]fs.Value)
	var mask []string
	if p.Text != nil {
		fields[fieldText] = stringValue(*p.Text)
		mask = append(mask, fieldText)
	}
	if p.Completed != nil {
		fields[fieldCompleted] = boolValue(*p.Completed)
		mask = append(mask, fieldCompleted)
	}
	if p.Priority != nil {
		fields[fieldPriority] = stringValue(string(*p.Priority))
		mask = append(mask, fieldPriority)
	}
	switch {
	case p.ClearDue:
		mask = append(mask, fieldDueDate)
	case p.DueDate != nil:
		fields[fieldDueDate] = stringValue(p.DueDate.Format(service.DateLayout))
		mask = append(mask, fieldDueDate)
	}
	return fields, mask
}

// taskFromDocument decodes a stored task. userID is the owner taken from the
// document path.
func taskFromDocument(userID string, doc *fs.Document) (service.Task, error) {
	if doc == nil {
		return service.Task{}, fmt.Errorf("empty document")
	}
	t := service.Task{
		ID:        path.Base(doc.Name),
		UserID:    userID,
		Text:      doc.Fields[fieldText].StringValue,
		Category:  service.Category(doc.Fields[fieldCategory].StringValue),
		Completed: doc.Fields[fieldCompleted].BooleanValue,
		Priority:  service.Priority(doc.Fields[fieldPriority].StringValue),
		Position:  doc.Fields[fieldPosition].IntegerValue,
	}
	if t.Priority == "" {
		t.Priority = service.DefaultPriority
	}
	if due := doc.Fields[fieldDueDate].StringValue; due != "" {
		d, err := time.Parse(service.DateLayout, due)
		if err != nil {
			return service.Task{}, fmt.Errorf("task %s: invalid dueDate %q", t.ID, due)
		}
		t.DueDate = &d
	}
	if doc.CreateTime != "" {
		created, err := time.Parse(time.RFC3339Nano, doc.CreateTime)
		if err != nil {
			return service.Task{}, fmt.Errorf("task %s: invalid createTime %q", t.ID, doc.CreateTime)
		}
		t.CreatedAt = created
	}
	return t, nil
}

// checkID rejects IDs that would escape their collection.
func checkID(kind, id string) error {
	if id == "" || strings.Contains(id, "/") || id == "." || id == ".." {
		return fmt.Errorf("invalid %s id: %q", kind, id)
	}
	return nil
}
