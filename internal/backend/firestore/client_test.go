package firestore_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	fs "google.golang.org/api/firestore/v1"

	"dcc/internal/backend/firestore"
	"dcc/internal/service"
)

const database = "projects/family/databases/(default)"

// fakeFirestore serves the subset of the Firestore REST API the client uses.
type fakeFirestore struct {
	mu      sync.Mutex
	docs    map[string]*fs.Document
	nextID  int
	clock   time.Time
	commits int
	status  int // when set, every request fails with this status
}

func newFakeFirestore() *fakeFirestore {
	return &fakeFirestore{
		docs:  make(map[string]*fs.Document),
		clock: time.Date(2024, 8, 1, 9, 0, 0, 0, time.UTC),
	}
}

func writeError(w http.ResponseWriter, code int, status, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"code":%d,"message":%q,"status":%q}}`, code, msg, status)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func applyMask(dst *fs.Document, src *fs.Document, mask []string) {
	if dst.Fields == nil {
		dst.Fields = make(map[string]fs.Value)
	}
	if len(mask) == 0 {
		dst.Fields = src.Fields
		return
	}
	for _, p := range mask {
		if v, ok := src.Fields[p]; ok {
			dst.Fields[p] = v
		} else {
			delete(dst.Fields, p)
		}
	}
}

func (f *fakeFirestore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.status != 0 {
		writeError(w, f.status, "UNAUTHENTICATED", "Request had invalid authentication credentials.")
		return
	}

	p := strings.TrimPrefix(r.URL.Path, "/v1/")
	q := r.URL.Query()

	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(p, "/documents:commit"):
		var req fs.CommitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, 400, "INVALID_ARGUMENT", err.Error())
			return
		}
		for _, wr := range req.Writes {
			if _, ok := f.docs[wr.Update.Name]; !ok && wr.CurrentDocument != nil && wr.CurrentDocument.Exists {
				writeError(w, 404, "NOT_FOUND", "no entity to update: "+wr.Update.Name)
				return
			}
		}
		for _, wr := range req.Writes {
			doc, ok := f.docs[wr.Update.Name]
			if !ok {
				doc = &fs.Document{Name: wr.Update.Name}
				f.docs[wr.Update.Name] = doc
			}
			var mask []string
			if wr.UpdateMask != nil {
				mask = wr.UpdateMask.FieldPaths
			}
			applyMask(doc, wr.Update, mask)
		}
		f.commits++
		writeJSON(w, map[string]any{})

	case r.Method == http.MethodPost:
		var doc fs.Document
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			writeError(w, 400, "INVALID_ARGUMENT", err.Error())
			return
		}
		f.nextID++
		f.clock = f.clock.Add(time.Minute)
		doc.Name = fmt.Sprintf("%s/doc%d", p, f.nextID)
		doc.CreateTime = f.clock.Format(time.RFC3339Nano)
		f.docs[doc.Name] = &doc
		writeJSON(w, &doc)

	case r.Method == http.MethodGet && strings.HasSuffix(p, "/tasks"):
		if q.Get("orderBy") != "position" {
			writeError(w, 400, "INVALID_ARGUMENT", "expected orderBy=position")
			return
		}
		var out []*fs.Document
		for name, doc := range f.docs {
			if strings.HasPrefix(name, p+"/") {
				out = append(out, doc)
			}
		}
		sort.Slice(out, func(i, j int) bool {
			return out[i].Fields["position"].IntegerValue < out[j].Fields["position"].IntegerValue
		})
		writeJSON(w, &fs.ListDocumentsResponse{Documents: out})

	case r.Method == http.MethodGet:
		doc, ok := f.docs[p]
		if !ok {
			writeError(w, 404, "NOT_FOUND", "Document not found")
			return
		}
		writeJSON(w, doc)

	case r.Method == http.MethodPatch:
		var in fs.Document
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, 400, "INVALID_ARGUMENT", err.Error())
			return
		}
		doc, ok := f.docs[p]
		if !ok {
			if q.Get("currentDocument.exists") == "true" {
				writeError(w, 404, "NOT_FOUND", "No document to update: "+p)
				return
			}
			doc = &fs.Document{Name: p}
			f.docs[p] = doc
		}
		applyMask(doc, &in, q["updateMask.fieldPaths"])
		writeJSON(w, doc)

	case r.Method == http.MethodDelete:
		if _, ok := f.docs[p]; !ok && q.Get("currentDocument.exists") == "true" {
			writeError(w, 404, "NOT_FOUND", "No document to delete: "+p)
			return
		}
		delete(f.docs, p)
		writeJSON(w, map[string]any{})

	default:
		writeError(w, 400, "INVALID_ARGUMENT", "unsupported request "+r.Method+" "+p)
	}
}

func newTestClient(t *testing.T) (*firestore.Client, *fakeFirestore) {
	t.Helper()
	fake := newFakeFirestore()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := firestore.NewWithHTTPClient(context.Background(), srv.Client(), srv.URL+"/", "family", "(default)")
	if err != nil {
		t.Fatalf("NewWithHTTPClient: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, fake
}

func create(t *testing.T, c *firestore.Client, userID, text string, category service.Category, pos int64) service.Task {
	t.Helper()
	task, err := c.CreateTask(context.Background(), userID, service.NewTask{
		Text:     text,
		Category: category,
		Priority: service.DefaultPriority,
		Position: pos,
	})
	if err != nil {
		t.Fatalf("CreateTask(%q): %v", text, err)
	}
	return task
}

func texts(tasks []service.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Text
	}
	return out
}

func TestCreateAndList(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	due := time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC)
	created, err := c.CreateTask(ctx, "u1", service.NewTask{
		Text:     "Pay water bill",
		Category: service.CategoryFinance,
		Priority: service.PriorityHigh,
		DueDate:  &due,
		Position: 30,
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Errorf("expected server-assigned id and createdAt, got %+v", created)
	}
	if created.UserID != "u1" || created.Completed {
		t.Errorf("unexpected task %+v", created)
	}

	create(t, c, "u1", "Mow lawn", service.CategoryHome, 10)
	create(t, c, "u1", "Budget review", service.CategoryFinance, 20)
	create(t, c, "u2", "Someone else's", service.CategoryFinance, 0)

	all, err := c.ListTasks(ctx, service.Query{UserID: "u1", Category: service.CategoryAll})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if got := strings.Join(texts(all), ","); got != "Mow lawn,Budget review,Pay water bill" {
		t.Errorf("unexpected order %q", got)
	}

	finance, err := c.ListTasks(ctx, service.Query{UserID: "u1", Category: service.CategoryFinance})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(finance) != 2 {
		t.Fatalf("expected 2 finance tasks, got %d", len(finance))
	}
	last := finance[1]
	if last.Priority != service.PriorityHigh || last.DueDate == nil || !last.DueDate.Equal(due) {
		t.Errorf("fields did not round-trip: %+v", last)
	}
}

func TestUpdateTask(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	due := time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC)
	task, err := c.CreateTask(ctx, "u1", service.NewTask{Text: "Call mom", Category: service.CategoryFamily, Priority: service.PriorityLow, DueDate: &due})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	done := true
	if err := c.UpdateTask(ctx, "u1", task.ID, service.TaskPatch{Completed: &done, ClearDue: true}); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}

	completed, err := c.ListTasks(ctx, service.Query{UserID: "u1", Category: service.CategoryAll, Filter: service.FilterCompleted})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(completed) != 1 {
		t.Fatalf("expected 1 completed task, got %d", len(completed))
	}
	got := completed[0]
	if got.DueDate != nil {
		t.Errorf("expected due date cleared, got %v", got.DueDate)
	}
	if got.Text != "Call mom" || got.Priority != service.PriorityLow {
		t.Errorf("unmasked fields changed: %+v", got)
	}

	active, _ := c.ListTasks(ctx, service.Query{UserID: "u1", Category: service.CategoryAll, Filter: service.FilterActive})
	if len(active) != 0 {
		t.Errorf("expected no active tasks, got %d", len(active))
	}

	undone := false
	if err := c.UpdateTask(ctx, "u1", task.ID, service.TaskPatch{Completed: &undone}); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	active, _ = c.ListTasks(ctx, service.Query{UserID: "u1", Category: service.CategoryAll, Filter: service.FilterActive})
	if len(active) != 1 {
		t.Errorf("expected task active again, got %d", len(active))
	}

	text := "x"
	err = c.UpdateTask(ctx, "u1", "missing", service.TaskPatch{Text: &text})
	if !errors.Is(err, service.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	err = c.UpdateTask(ctx, "u2", task.ID, service.TaskPatch{Text: &text})
	if !errors.Is(err, service.ErrNotFound) {
		t.Errorf("expected ErrNotFound for another user's task, got %v", err)
	}
}

func TestDeleteTask(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	task := create(t, c, "u1", "Dentist", service.CategoryHealth, 1)
	if err := c.DeleteTask(ctx, "u1", task.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if err := c.DeleteTask(ctx, "u1", task.ID); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
	tasks, _ := c.ListTasks(ctx, service.Query{UserID: "u1", Category: service.CategoryAll})
	if len(tasks) != 0 {
		t.Errorf("expected no tasks, got %d", len(tasks))
	}
}

func TestSetPositions_SingleCommit(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	a := create(t, c, "u1", "a", service.CategoryWork, 100)
	b := create(t, c, "u1", "b", service.CategoryWork, 200)
	d := create(t, c, "u1", "c", service.CategoryWork, 300)

	if err := c.SetPositions(ctx, "u1", []string{d.ID, a.ID, b.ID}); err != nil {
		t.Fatalf("SetPositions: %v", err)
	}
	if fake.commits != 1 {
		t.Errorf("expected 1 commit, got %d", fake.commits)
	}

	tasks, _ := c.ListTasks(ctx, service.Query{UserID: "u1", Category: service.CategoryWork})
	if got := strings.Join(texts(tasks), ","); got != "c,a,b" {
		t.Errorf("unexpected order %q", got)
	}
	for i, task := range tasks {
		if task.Position != int64(i) {
			t.Errorf("expected position %d for %s, got %d", i, task.Text, task.Position)
		}
	}
}

func TestSetPositions_UnknownIDFailsWholeBatch(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	a := create(t, c, "u1", "a", service.CategoryWork, 100)
	b := create(t, c, "u1", "b", service.CategoryWork, 200)

	err := c.SetPositions(ctx, "u1", []string{b.ID, "ghost", a.ID})
	if !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	tasks, _ := c.ListTasks(ctx, service.Query{UserID: "u1", Category: service.CategoryWork})
	if tasks[0].Position != 100 || tasks[1].Position != 200 {
		t.Errorf("expected positions untouched, got %d,%d", tasks[0].Position, tasks[1].Position)
	}
}

func TestAPIKey(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	if _, ok, err := c.GetAPIKey(ctx, "u1"); ok || err != nil {
		t.Fatalf("expected no key, got ok=%v err=%v", ok, err)
	}
	if err := c.SetAPIKey(ctx, "u1", "AIza-secret"); err != nil {
		t.Fatalf("SetAPIKey: %v", err)
	}
	key, ok, err := c.GetAPIKey(ctx, "u1")
	if err != nil || !ok || key != "AIza-secret" {
		t.Errorf("expected stored key, got %q ok=%v err=%v", key, ok, err)
	}
	if _, ok, _ := c.GetAPIKey(ctx, "u2"); ok {
		t.Error("key leaked to another user")
	}
	if err := c.DeleteAPIKey(ctx, "u1"); err != nil {
		t.Fatalf("DeleteAPIKey: %v", err)
	}
	if err := c.DeleteAPIKey(ctx, "u1"); err != nil {
		t.Errorf("deleting a missing key should succeed, got %v", err)
	}
	if _, ok, _ := c.GetAPIKey(ctx, "u1"); ok {
		t.Error("expected key to be gone")
	}
}

func TestWatchTasks_NotifiedByLocalMutation(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	create(t, c, "u1", "a", service.CategoryHome, 1)

	updates := make(chan []service.Task, 10)
	cancel := c.WatchTasks(ctx, service.Query{UserID: "u1", Category: service.CategoryHome}, func(tasks []service.Task, err error) {
		if err != nil {
			t.Errorf("unexpected watch error: %v", err)
			return
		}
		updates <- tasks
	})
	defer cancel()

	expect := func(want string) {
		t.Helper()
		select {
		case tasks := <-updates:
			if got := strings.Join(texts(tasks), ","); got != want {
				t.Errorf("expected %q, got %q", want, got)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}

	expect("a")
	create(t, c, "u1", "b", service.CategoryHome, 2)
	expect("a,b")
}

func TestWrapError_Unauthorized(t *testing.T) {
	c, fake := newTestClient(t)
	fake.status = http.StatusUnauthorized

	_, err := c.ListTasks(context.Background(), service.Query{UserID: "u1"})
	if !errors.Is(err, service.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestInvalidIDs(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	if _, err := c.ListTasks(ctx, service.Query{UserID: "u1/../u2"}); err == nil {
		t.Error("expected error for user id with a slash")
	}
	if err := c.DeleteTask(ctx, "u1", "a/b"); err == nil {
		t.Error("expected error for task id with a slash")
	}
}
