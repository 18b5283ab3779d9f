package web_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"dcc/internal/assistant"
	"dcc/internal/auth"
	"dcc/internal/service"
	"dcc/internal/testutil"
	"dcc/internal/web"
)

const userID = "u1"

type stubModel struct {
	raw   string
	err   error
	calls int
}

func (m *stubModel) Generate(ctx context.Context, apiKey, prompt string) (string, error) {
	m.calls++
	return m.raw, m.err
}

type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
	Set     bool            `json:"set"`
	Key     string          `json:"key"`
}

func newServer(t *testing.T, svc *testutil.FakeService, model *stubModel, basePath string) *web.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if model == nil {
		model = &stubModel{}
	}
	return web.New(web.Options{
		Store:     svc,
		User:      auth.User{ID: userID, Name: "Dad"},
		Assistant: assistant.New(model, nil),
		BasePath:  basePath,
		Now:       func() time.Time { return time.UnixMilli(5000) },
	})
}

func do(t *testing.T, s *web.Server, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, w.Body.String())
	}
	return w, env
}

func TestHealthz(t *testing.T) {
	s := newServer(t, testutil.NewFakeService(), nil, "/")
	w, _ := do(t, s, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestBasePath(t *testing.T) {
	s := newServer(t, testutil.NewFakeService(), nil, "/dcc/")

	w, _ := do(t, s, http.MethodGet, "/dcc/api/categories", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 under base path, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/categories", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 outside base path, got %d", rec.Code)
	}
}

func TestListTasks_View(t *testing.T) {
	svc := testutil.NewFakeService()
	svc.AddTask(service.Task{UserID: userID, Text: "Call plumber", Category: service.CategoryHome, Position: 1})
	svc.AddTask(service.Task{UserID: userID, Text: "Pay bill", Category: service.CategoryFinance, Position: 2, Completed: true})
	svc.AddTask(service.Task{UserID: "someone-else", Text: "Not mine", Category: service.CategoryHome})
	s := newServer(t, svc, nil, "")

	w, env := do(t, s, http.MethodGet, "/api/tasks?category=home&filter=active", "")
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("expected success, got %d %s", w.Code, w.Body.String())
	}
	var tasks []service.Task
	if err := json.Unmarshal(env.Data, &tasks); err != nil {
		t.Fatalf("bad data: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Text != "Call plumber" {
		t.Errorf("unexpected tasks: %+v", tasks)
	}
}

func TestListTasks_InvalidFilter(t *testing.T) {
	s := newServer(t, testutil.NewFakeService(), nil, "")
	w, env := do(t, s, http.MethodGet, "/api/tasks?filter=someday", "")
	if w.Code != http.StatusBadRequest || env.Success {
		t.Errorf("expected 400 envelope, got %d %s", w.Code, w.Body.String())
	}
	if env.Error != "invalid filter: someday" {
		t.Errorf("unexpected error %q", env.Error)
	}
}

func TestCreateTask(t *testing.T) {
	svc := testutil.NewFakeService()
	s := newServer(t, svc, nil, "")

	w, env := do(t, s, http.MethodPost, "/api/tasks", `{"text":"  Mow lawn ","category":"home","priority":"high","dueDate":"2024-08-20"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", w.Code, w.Body.String())
	}
	var task service.Task
	if err := json.Unmarshal(env.Data, &task); err != nil {
		t.Fatalf("bad data: %v", err)
	}
	if task.Text != "Mow lawn" || task.Category != service.CategoryHome || task.Priority != service.PriorityHigh {
		t.Errorf("unexpected task %+v", task)
	}
	if task.DueDate == nil || task.DueDate.Format(service.DateLayout) != "2024-08-20" {
		t.Errorf("unexpected due date %v", task.DueDate)
	}
	if task.Position != 5000 {
		t.Errorf("expected position from clock, got %d", task.Position)
	}
}

func TestCreateTask_BlankTextNoWrite(t *testing.T) {
	svc := testutil.NewFakeService()
	s := newServer(t, svc, nil, "")

	w, env := do(t, s, http.MethodPost, "/api/tasks", `{"text":"   "}`)
	if w.Code != http.StatusBadRequest || env.Error != "task text required" {
		t.Errorf("expected blank text rejection, got %d %s", w.Code, w.Body.String())
	}
	if svc.CreateCalls != 0 {
		t.Errorf("expected no store write, got %d", svc.CreateCalls)
	}
}

func TestCreateTask_AIPrefill(t *testing.T) {
	svc := testutil.NewFakeService()
	svc.SetAPIKey(context.Background(), userID, "key")
	model := &stubModel{raw: `{"title":"Dentist","description":"cleaning","category":"Health","dueDate":"2024-09-02"}`}
	s := newServer(t, svc, model, "")

	w, env := do(t, s, http.MethodPost, "/api/tasks", `{"text":"dentist cleaning sept 2","ai":true}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", w.Code, w.Body.String())
	}
	var task service.Task
	json.Unmarshal(env.Data, &task)
	if task.Text != "Dentist: cleaning" || task.Category != service.CategoryHealth {
		t.Errorf("unexpected task %+v", task)
	}
}

func TestCreateTask_AIWithoutKey(t *testing.T) {
	svc := testutil.NewFakeService()
	model := &stubModel{}
	s := newServer(t, svc, model, "")

	w, env := do(t, s, http.MethodPost, "/api/tasks", `{"text":"something","ai":true}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if env.Error != assistant.ErrNoAPIKey.Error() {
		t.Errorf("unexpected error %q", env.Error)
	}
	if model.calls != 0 || svc.CreateCalls != 0 {
		t.Errorf("expected no model call and no write, got %d and %d", model.calls, svc.CreateCalls)
	}
}

func TestUpdateTask(t *testing.T) {
	svc := testutil.NewFakeService()
	task := svc.AddTask(service.Task{UserID: userID, Text: "Old", Category: service.CategoryWork})
	s := newServer(t, svc, nil, "")

	w, _ := do(t, s, http.MethodPatch, "/api/tasks/"+task.ID, `{"text":"New","completed":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", w.Code, w.Body.String())
	}
	got, _ := svc.Task(task.ID)
	if got.Text != "New" || !got.Completed {
		t.Errorf("patch not applied: %+v", got)
	}

	w, _ = do(t, s, http.MethodPatch, "/api/tasks/"+task.ID, `{"text":"  "}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected blank text rejection, got %d", w.Code)
	}
}

func TestUpdateTask_NotFound(t *testing.T) {
	s := newServer(t, testutil.NewFakeService(), nil, "")
	w, env := do(t, s, http.MethodPatch, "/api/tasks/missing", `{"completed":true}`)
	if w.Code != http.StatusNotFound || env.Success {
		t.Errorf("expected 404 envelope, got %d %s", w.Code, w.Body.String())
	}
}

func TestDeleteTask(t *testing.T) {
	svc := testutil.NewFakeService()
	task := svc.AddTask(service.Task{UserID: userID, Text: "Gone", Category: service.CategoryWork})
	s := newServer(t, svc, nil, "")

	w, _ := do(t, s, http.MethodDelete, "/api/tasks/"+task.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if svc.Len() != 0 {
		t.Errorf("expected task to be deleted")
	}
}

func TestReorder(t *testing.T) {
	svc := testutil.NewFakeService()
	a := svc.AddTask(service.Task{UserID: userID, Text: "A", Category: service.CategoryWork, Position: 10})
	b := svc.AddTask(service.Task{UserID: userID, Text: "B", Category: service.CategoryWork, Position: 20})
	c := svc.AddTask(service.Task{UserID: userID, Text: "C", Category: service.CategoryWork, Position: 30})
	s := newServer(t, svc, nil, "")

	w, _ := do(t, s, http.MethodPost, "/api/tasks/reorder", `{"category":"Work","from":0,"to":2}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", w.Code, w.Body.String())
	}
	if len(svc.SetPositionsCalls) != 1 {
		t.Fatalf("expected one batch write, got %d", len(svc.SetPositionsCalls))
	}
	want := []string{b.ID, c.ID, a.ID}
	got := svc.SetPositionsCalls[0]
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
	if watchers := svc.Watchers(); watchers != 0 {
		t.Errorf("expected reorder to release its watch, %d left", watchers)
	}
}

func TestReorder_OutOfRange(t *testing.T) {
	svc := testutil.NewFakeService()
	svc.AddTask(service.Task{UserID: userID, Text: "A", Category: service.CategoryWork})
	s := newServer(t, svc, nil, "")

	w, _ := do(t, s, http.MethodPost, "/api/tasks/reorder", `{"from":0,"to":3}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if len(svc.SetPositionsCalls) != 0 {
		t.Errorf("expected no write")
	}
}

func TestReorder_WatchFailure(t *testing.T) {
	svc := testutil.NewFakeService()
	svc.AddTask(service.Task{UserID: userID, Text: "A", Category: service.CategoryWork})
	svc.AddTask(service.Task{UserID: userID, Text: "B", Category: service.CategoryWork})
	svc.WatchErr = service.ErrUnauthorized
	s := newServer(t, svc, nil, "")

	w, env := do(t, s, http.MethodPost, "/api/tasks/reorder", `{"category":"Work","from":0,"to":1}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d %s", w.Code, w.Body.String())
	}
	if env.Success {
		t.Errorf("expected success=false")
	}
	if len(svc.SetPositionsCalls) != 0 {
		t.Errorf("expected no write")
	}
}

func TestParse_ErrorStatus(t *testing.T) {
	tests := []struct {
		name     string
		modelErr error
		raw      string
		want     int
	}{
		{"quota", errors.New("googleapi: Error 429: Resource has been exhausted (e.g. check quota)."), "", http.StatusTooManyRequests},
		{"permission", errors.New("rpc error: code = PermissionDenied desc = permission denied"), "", http.StatusBadGateway},
		{"not json", nil, "This is not JSON.", http.StatusUnprocessableEntity},
		{"empty", nil, "", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := testutil.NewFakeService()
			svc.SetAPIKey(context.Background(), userID, "key")
			s := newServer(t, svc, &stubModel{raw: tt.raw, err: tt.modelErr}, "")

			w, env := do(t, s, http.MethodPost, "/api/parse", `{"text":"buy milk"}`)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d (%s)", tt.want, w.Code, env.Error)
			}
			if env.Success {
				t.Errorf("expected failure envelope")
			}
		})
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	svc := testutil.NewFakeService()
	s := newServer(t, svc, nil, "")

	_, env := do(t, s, http.MethodGet, "/api/apikey", "")
	if env.Set {
		t.Errorf("expected no key")
	}

	w, _ := do(t, s, http.MethodPut, "/api/apikey", `{"key":"AIzaSecret1234"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	_, env = do(t, s, http.MethodGet, "/api/apikey", "")
	if !env.Set || strings.Contains(env.Key, "Secret") || !strings.HasSuffix(env.Key, "1234") {
		t.Errorf("expected masked key, got %+v", env)
	}

	do(t, s, http.MethodDelete, "/api/apikey", "")
	if _, ok, _ := svc.GetAPIKey(context.Background(), userID); ok {
		t.Errorf("expected key to be removed")
	}
}

func TestStream(t *testing.T) {
	svc := testutil.NewFakeService()
	svc.AddTask(service.Task{UserID: userID, Text: "First", Category: service.CategoryWork})
	s := newServer(t, svc, nil, "")

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/tasks/stream?category=work", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request failed: %v", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	next := func() []service.Task {
		t.Helper()
		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				t.Fatalf("stream ended: %v", err)
			}
			if data, ok := bytes.CutPrefix(line, []byte("data:")); ok {
				var tasks []service.Task
				if err := json.Unmarshal(bytes.TrimSpace(data), &tasks); err != nil {
					t.Fatalf("bad event data %q: %v", data, err)
				}
				return tasks
			}
		}
	}

	if tasks := next(); len(tasks) != 1 || tasks[0].Text != "First" {
		t.Fatalf("unexpected first snapshot: %+v", tasks)
	}

	svc.AddTask(service.Task{UserID: userID, Text: "Second", Category: service.CategoryWork, Position: 1})
	if tasks := next(); len(tasks) != 2 {
		t.Fatalf("expected pushed snapshot with 2 tasks, got %+v", tasks)
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for svc.Watchers() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected watch to stop after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
