// Package testutil provides testing utilities.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dcc/internal/service"
)

// FakeService is an in-memory implementation of service.Service for testing.
// Mutations push the new result to every live watcher synchronously, before
// the mutating call returns.
type FakeService struct {
	mu       sync.Mutex
	tasks    map[string]service.Task // taskID -> task
	keys     map[string]string       // userID -> api key
	nextID   int
	clock    time.Time
	watchers map[int]*fakeWatcher
	nextW    int

	// SetPositionsCalls records every SetPositions batch in call order.
	SetPositionsCalls [][]string
	// CreateCalls counts CreateTask invocations that reached the store.
	CreateCalls int

	// Error injection for testing
	ListTasksErr    error
	WatchErr        error
	CreateTaskErr   error
	UpdateTaskErr   error
	DeleteTaskErr   error
	SetPositionsErr error
	GetAPIKeyErr    error
	SetAPIKeyErr    error
	DeleteAPIKeyErr error
}

type fakeWatcher struct {
	mu     sync.Mutex
	q      service.Query
	fn     service.SnapshotFunc
	closed bool
}

// NewFakeService creates an empty FakeService.
func NewFakeService() *FakeService {
	return &FakeService{
		tasks:    make(map[string]service.Task),
		keys:     make(map[string]string),
		watchers: make(map[int]*fakeWatcher),
		clock:    time.Date(2024, 8, 1, 9, 0, 0, 0, time.UTC),
	}
}

// AddTask seeds a task directly, bypassing validation and error injection.
// Missing ID, priority, and creation time are filled in.
func (f *FakeService) AddTask(t service.Task) service.Task {
	f.mu.Lock()
	if t.ID == "" {
		f.nextID++
		t.ID = fmt.Sprintf("task-%d", f.nextID)
	}
	if t.Priority == "" {
		t.Priority = service.DefaultPriority
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = f.tick()
	}
	f.tasks[t.ID] = t
	f.mu.Unlock()
	f.Push()
	return t
}

// Task returns a stored task by ID.
func (f *FakeService) Task(id string) (service.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	return t, ok
}

// Len returns the number of stored tasks.
func (f *FakeService) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

// Watchers returns the number of active watchers.
func (f *FakeService) Watchers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.watchers)
}

// Push re-delivers the current result to every watcher, as a store would after
// a change made elsewhere.
func (f *FakeService) Push() {
	f.mu.Lock()
	watchers := make([]*fakeWatcher, 0, len(f.watchers))
	for _, w := range f.watchers {
		watchers = append(watchers, w)
	}
	f.mu.Unlock()

	for _, w := range watchers {
		f.deliver(w)
	}
}

// FailWatchers delivers err to every watcher and ends them.
func (f *FakeService) FailWatchers(err error) {
	f.mu.Lock()
	watchers := make([]*fakeWatcher, 0, len(f.watchers))
	for id, w := range f.watchers {
		watchers = append(watchers, w)
		delete(f.watchers, id)
	}
	f.mu.Unlock()

	for _, w := range watchers {
		w.mu.Lock()
		if !w.closed {
			w.closed = true
			w.fn(nil, err)
		}
		w.mu.Unlock()
	}
}

func (f *FakeService) deliver(w *fakeWatcher) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	f.mu.Lock()
	tasks := f.query(w.q)
	f.mu.Unlock()
	w.fn(tasks, nil)
}

// tick advances the fake clock. Callers hold f.mu.
func (f *FakeService) tick() time.Time {
	f.clock = f.clock.Add(time.Minute)
	return f.clock
}

// query returns the sorted tasks matching q. Callers hold f.mu.
func (f *FakeService) query(q service.Query) []service.Task {
	result := []service.Task{}
	for _, t := range f.tasks {
		if q.Matches(t) {
			result = append(result, t)
		}
	}
	service.SortTasks(result)
	return result
}

// ListTasks implements service.Service.
func (f *FakeService) ListTasks(ctx context.Context, q service.Query) ([]service.Task, error) {
	if f.ListTasksErr != nil {
		return nil, f.ListTasksErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.query(q), nil
}

// WatchTasks implements service.Service.
// The cancel func must not be called from inside fn.
func (f *FakeService) WatchTasks(ctx context.Context, q service.Query, fn service.SnapshotFunc) func() {
	w := &fakeWatcher{q: q, fn: fn}

	if f.WatchErr != nil {
		err := f.WatchErr
		w.closed = true
		fn(nil, err)
		return func() {}
	}

	f.mu.Lock()
	id := f.nextW
	f.nextW++
	f.watchers[id] = w
	f.mu.Unlock()

	f.deliver(w)

	return func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()

		f.mu.Lock()
		delete(f.watchers, id)
		f.mu.Unlock()
	}
}

// CreateTask implements service.Service.
func (f *FakeService) CreateTask(ctx context.Context, userID string, nt service.NewTask) (service.Task, error) {
	if f.CreateTaskErr != nil {
		return service.Task{}, f.CreateTaskErr
	}
	f.mu.Lock()
	f.CreateCalls++
	f.nextID++
	t := service.Task{
		ID:        fmt.Sprintf("task-%d", f.nextID),
		UserID:    userID,
		Text:      nt.Text,
		Category:  nt.Category,
		Priority:  nt.Priority,
		DueDate:   nt.DueDate,
		Position:  nt.Position,
		CreatedAt: f.tick(),
	}
	f.tasks[t.ID] = t
	f.mu.Unlock()

	f.Push()
	return t, nil
}

// UpdateTask implements service.Service.
func (f *FakeService) UpdateTask(ctx context.Context, userID, taskID string, patch service.TaskPatch) error {
	if f.UpdateTaskErr != nil {
		return f.UpdateTaskErr
	}
	f.mu.Lock()
	t, ok := f.tasks[taskID]
	if !ok || t.UserID != userID {
		f.mu.Unlock()
		return service.ErrNotFound
	}
	if patch.Text != nil {
		t.Text = *patch.Text
	}
	if patch.Completed != nil {
		t.Completed = *patch.Completed
	}
	if patch.Priority != nil {
		t.Priority = *patch.Priority
	}
	if patch.DueDate != nil {
		t.DueDate = patch.DueDate
	}
	if patch.ClearDue {
		t.DueDate = nil
	}
	f.tasks[taskID] = t
	f.mu.Unlock()

	f.Push()
	return nil
}

// DeleteTask implements service.Service.
func (f *FakeService) DeleteTask(ctx context.Context, userID, taskID string) error {
	if f.DeleteTaskErr != nil {
		return f.DeleteTaskErr
	}
	f.mu.Lock()
	t, ok := f.tasks[taskID]
	if !ok || t.UserID != userID {
		f.mu.Unlock()
		return service.ErrNotFound
	}
	delete(f.tasks, taskID)
	f.mu.Unlock()

	f.Push()
	return nil
}

// SetPositions implements service.Service.
func (f *FakeService) SetPositions(ctx context.Context, userID string, taskIDs []string) error {
	f.mu.Lock()
	f.SetPositionsCalls = append(f.SetPositionsCalls, append([]string(nil), taskIDs...))
	if f.SetPositionsErr != nil {
		f.mu.Unlock()
		return f.SetPositionsErr
	}
	for _, id := range taskIDs {
		if t, ok := f.tasks[id]; !ok || t.UserID != userID {
			f.mu.Unlock()
			return service.ErrNotFound
		}
	}
	for i, id := range taskIDs {
		t := f.tasks[id]
		t.Position = int64(i)
		f.tasks[id] = t
	}
	f.mu.Unlock()

	f.Push()
	return nil
}

// GetAPIKey implements service.Service.
func (f *FakeService) GetAPIKey(ctx context.Context, userID string) (string, bool, error) {
	if f.GetAPIKeyErr != nil {
		return "", false, f.GetAPIKeyErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key, ok := f.keys[userID]
	return key, ok, nil
}

// SetAPIKey implements service.Service.
func (f *FakeService) SetAPIKey(ctx context.Context, userID, key string) error {
	if f.SetAPIKeyErr != nil {
		return f.SetAPIKeyErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[userID] = key
	return nil
}

// DeleteAPIKey implements service.Service.
func (f *FakeService) DeleteAPIKey(ctx context.Context, userID string) error {
	if f.DeleteAPIKeyErr != nil {
		return f.DeleteAPIKeyErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, userID)
	return nil
}

// Close implements service.Service.
func (f *FakeService) Close() error {
	return nil
}
