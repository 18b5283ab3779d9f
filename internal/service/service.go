// Package service defines the backend-agnostic interface for task storage.
package service

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a task does not exist for the requesting user.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when the store rejects the stored credentials.
	ErrUnauthorized = errors.New("token expired or revoked (run: dcc login)")
)

// SnapshotFunc receives the full current result of a live query.
// err is non-nil exactly once, when the watch fails; no calls follow it.
type SnapshotFunc func(tasks []Task, err error)

// Service defines the interface for document store operations.
// All store calls go through this interface.
// Commands and the sync model never import a store SDK directly.
// Every call is scoped to a single owner.
type Service interface {
	// ListTasks returns the tasks selected by q, ordered by position.
	ListTasks(ctx context.Context, q Query) ([]Task, error)

	// WatchTasks starts a live query. fn receives the full list once right away
	// and again after every change. The returned cancel func stops the watch;
	// once it returns, fn is not called again.
	WatchTasks(ctx context.Context, q Query, fn SnapshotFunc) (cancel func())

	// CreateTask stores a new task owned by userID.
	CreateTask(ctx context.Context, userID string, t NewTask) (Task, error)

	// UpdateTask applies patch to a task owned by userID.
	UpdateTask(ctx context.Context, userID, taskID string, patch TaskPatch) error

	// DeleteTask permanently removes a task owned by userID.
	DeleteTask(ctx context.Context, userID, taskID string) error

	// SetPositions sets position = index for each id in one atomic batch.
	// Either every task is updated or none is.
	SetPositions(ctx context.Context, userID string, taskIDs []string) error

	// GetAPIKey returns the user's AI API key. ok is false when none is stored.
	GetAPIKey(ctx context.Context, userID string) (key string, ok bool, err error)

	// SetAPIKey creates or overwrites the user's AI API key.
	SetAPIKey(ctx context.Context, userID, key string) error

	// DeleteAPIKey removes the user's AI API key. Removing a missing key is not an error.
	DeleteAPIKey(ctx context.Context, userID string) error

	// Close releases the store connection.
	Close() error
}
