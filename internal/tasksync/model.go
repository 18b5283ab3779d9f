// Package tasksync keeps an ordered local task list in step with a live store
// query and writes drag-and-drop reordering back to the store.
//
// The local list is changed only by store pushes and by Reorder. Callbacks are
// serialised: at most one runs at a time, and none runs after Subscribe
// replaces a subscription or Unsubscribe returns. Callbacks must not call back
// into the Model.
package tasksync

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"dcc/internal/service"
)

// Model is the synchronization and ordering model for one displayed list.
type Model struct {
	svc service.Service
	log *log.Logger

	// deliver serialises callback invocations.
	deliver sync.Mutex

	mu     sync.Mutex
	gen    uint64
	query  service.Query
	fn     func([]service.Task)
	cancel func()
	tasks  []service.Task
	err    error
	ready  chan struct{}
}

// New creates a Model on top of svc. A nil logger discards log output.
func New(svc service.Service, logger *log.Logger) *Model {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Model{svc: svc, log: logger}
}

// Subscribe starts delivering the tasks of userID in category (CategoryAll for
// every category) narrowed by filter. fn receives the full ordered list on
// every store change. A previous subscription is cancelled first and its
// callback never fires again. Store failures are logged and delivered as an
// empty list and kept for Err; the watch is not restarted.
func (m *Model) Subscribe(ctx context.Context, userID string, category service.Category, filter service.Filter, fn func([]service.Task)) {
	q := service.Query{UserID: userID, Category: category, Filter: filter}

	m.mu.Lock()
	m.gen++
	gen := m.gen
	prev := m.cancel
	m.cancel = nil
	m.query = q
	m.fn = fn
	m.tasks = nil
	m.err = nil
	m.ready = make(chan struct{})
	m.mu.Unlock()

	if prev != nil {
		prev()
	}
	m.barrier()

	cancel := m.svc.WatchTasks(ctx, q, func(tasks []service.Task, err error) {
		m.push(gen, tasks, err)
	})

	m.mu.Lock()
	if m.gen != gen {
		// Replaced or unsubscribed while the watch was starting.
		m.mu.Unlock()
		cancel()
		return
	}
	m.cancel = cancel
	m.mu.Unlock()
}

// Unsubscribe stops the current subscription. No callback fires after it returns.
func (m *Model) Unsubscribe() {
	m.mu.Lock()
	m.gen++
	prev := m.cancel
	m.cancel = nil
	m.fn = nil
	m.tasks = nil
	m.err = nil
	m.mu.Unlock()

	if prev != nil {
		prev()
	}
	m.barrier()
}

// Close is Unsubscribe for teardown paths.
func (m *Model) Close() {
	m.Unsubscribe()
}

// barrier waits for an in-flight callback to finish.
func (m *Model) barrier() {
	m.deliver.Lock()
	m.deliver.Unlock()
}

func (m *Model) push(gen uint64, tasks []service.Task, err error) {
	m.deliver.Lock()
	defer m.deliver.Unlock()

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	if err != nil {
		m.log.Printf("task subscription failed (user=%s category=%s filter=%s): %v",
			m.query.UserID, m.query.Category, m.query.Filter, err)
		tasks = []service.Task{}
	}
	m.err = err
	m.tasks = cloneTasks(tasks)
	view := cloneTasks(tasks)
	fn := m.fn
	ready := m.ready
	m.mu.Unlock()

	select {
	case <-ready:
	default:
		close(ready)
	}
	if fn != nil {
		fn(view)
	}
}

// Tasks returns a copy of the current local list.
func (m *Model) Tasks() []service.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneTasks(m.tasks)
}

// Err returns the store failure behind the current list, or nil when the
// last push succeeded.
func (m *Model) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// WaitReady blocks until the current subscription has delivered its first
// list. If that delivery was a store failure, the failure is returned.
func (m *Model) WaitReady(ctx context.Context) error {
	m.mu.Lock()
	ready := m.ready
	m.mu.Unlock()
	if ready == nil {
		return fmt.Errorf("not subscribed")
	}
	select {
	case <-ready:
		return m.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reorder moves the task at oldIndex to newIndex in the displayed list. The
// new order is applied locally and delivered right away; then the positions
// of every visible task are rewritten to 0..N-1 in a single batched write.
// A failed write is returned; the local order is not rolled back.
// oldIndex == newIndex is a no-op and writes nothing.
func (m *Model) Reorder(ctx context.Context, oldIndex, newIndex int) error {
	if oldIndex == newIndex {
		return nil
	}

	m.deliver.Lock()
	m.mu.Lock()
	n := len(m.tasks)
	if oldIndex < 0 || oldIndex >= n || newIndex < 0 || newIndex >= n {
		m.mu.Unlock()
		m.deliver.Unlock()
		return fmt.Errorf("reorder out of range: %d -> %d (have %d tasks)", oldIndex, newIndex, n)
	}
	moved := Move(m.tasks, oldIndex, newIndex)
	ids := make([]string, len(moved))
	for i := range moved {
		moved[i].Position = int64(i)
		ids[i] = moved[i].ID
	}
	m.tasks = moved
	view := cloneTasks(moved)
	fn := m.fn
	userID := m.query.UserID
	m.mu.Unlock()

	if fn != nil {
		fn(view)
	}
	m.deliver.Unlock()

	if err := m.svc.SetPositions(ctx, userID, ids); err != nil {
		m.log.Printf("reorder write failed (user=%s, %d tasks): %v", userID, len(ids), err)
		return fmt.Errorf("save order: %w", err)
	}
	return nil
}

// Move returns a copy of tasks with the element at from moved to to, shifting
// the elements in between. Indices must be in range.
func Move(tasks []service.Task, from, to int) []service.Task {
	out := cloneTasks(tasks)
	if from == to {
		return out
	}
	item := out[from]
	if from < to {
		copy(out[from:to], out[from+1:to+1])
	} else {
		copy(out[to+1:from+1], out[to:from])
	}
	out[to] = item
	return out
}

func cloneTasks(tasks []service.Task) []service.Task {
	if tasks == nil {
		return []service.Task{}
	}
	out := make([]service.Task, len(tasks))
	copy(out, tasks)
	return out
}
