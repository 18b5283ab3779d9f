// Package livequery turns a fetch function into a live query.
//
// A watcher fetches once right away, then refetches whenever the hub is
// nudged (after a local mutation) or the poll interval elapses, and delivers
// the result only when it differs from the previous delivery. The first
// fetch error is delivered and ends the watcher.
package livequery

import (
	"context"
	"reflect"
	"sync"
	"time"

	"dcc/internal/service"
)

// Fetcher loads the full current result of a query.
type Fetcher func(ctx context.Context) ([]service.Task, error)

// Hub tracks the active watchers of one store.
type Hub struct {
	interval time.Duration

	mu       sync.Mutex
	nextID   int
	watchers map[int]chan struct{}
}

// NewHub creates a hub. An interval of zero disables polling; watchers then
// refetch only when Notify is called.
func NewHub(interval time.Duration) *Hub {
	return &Hub{
		interval: interval,
		watchers: make(map[int]chan struct{}),
	}
}

// Notify asks every watcher to refetch.
func (h *Hub) Notify() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, nudge := range h.watchers {
		select {
		case nudge <- struct{}{}:
		default:
			// A refetch is already pending.
		}
	}
}

// Len returns the number of active watchers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers)
}

// Watch starts a watcher. The returned cancel func stops it and waits for its
// goroutine to exit, so fn is never called after cancel returns. cancel must
// not be called from inside fn.
func (h *Hub) Watch(ctx context.Context, fetch Fetcher, fn service.SnapshotFunc) (cancel func()) {
	ctx, stop := context.WithCancel(ctx)
	nudge := make(chan struct{}, 1)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.watchers[id] = nudge
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer h.remove(id)
		h.run(ctx, fetch, fn, nudge)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			<-done
		})
	}
}

func (h *Hub) remove(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.watchers, id)
}

func (h *Hub) run(ctx context.Context, fetch Fetcher, fn service.SnapshotFunc, nudge <-chan struct{}) {
	var tick <-chan time.Time
	if h.interval > 0 {
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var last []service.Task
	first := true
	for {
		tasks, err := fetch(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			fn(nil, err)
			return
		}
		if tasks == nil {
			tasks = []service.Task{}
		}
		if first || !reflect.DeepEqual(last, tasks) {
			first = false
			last = tasks
			fn(cloneTasks(tasks), nil)
		}

		select {
		case <-ctx.Done():
			return
		case <-nudge:
		case <-tick:
		}
	}
}

func cloneTasks(tasks []service.Task) []service.Task {
	out := make([]service.Task, len(tasks))
	copy(out, tasks)
	return out
}
