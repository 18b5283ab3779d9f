// Package firestore implements the service.Service interface using the Cloud
// Firestore REST API.
//
// Tasks live at users/{uid}/tasks/{taskId} and the AI key at
// users/{uid}/secrets/gemini.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	fs "google.golang.org/api/firestore/v1"

	"dcc/internal/backend/livequery"
	"dcc/internal/config"
	"dcc/internal/service"
)

const (
	// APITimeout is the timeout for API calls.
	APITimeout = 5 * time.Second

	// PageSize is the number of documents fetched per list page.
	PageSize = 300

	tasksCollection   = "tasks"
	secretsCollection = "secrets"
	apiKeyDocument    = "gemini"
)

// Client implements service.Service using Cloud Firestore.
type Client struct {
	docs     *fs.ProjectsDatabasesDocumentsService
	database string
	hub      *livequery.Hub
	log      *log.Logger
}

// New creates a Firestore client for the project and database named in cfg,
// authenticated by ts.
func New(ctx context.Context, cfg *config.Config, ts oauth2.TokenSource, logger *log.Logger) (*Client, error) {
	httpClient := oauth2.NewClient(ctx, ts)
	c, err := newClient(ctx, cfg.FirestoreProject, cfg.FirestoreDatabase, cfg.PollInterval, logger,
		option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore service: %w", err)
	}
	return c, nil
}

// NewWithHTTPClient creates a client against endpoint with a custom HTTP
// client and no polling (for testing).
func NewWithHTTPClient(ctx context.Context, httpClient *http.Client, endpoint, project, database string) (*Client, error) {
	return newClient(ctx, project, database, 0, nil,
		option.WithHTTPClient(httpClient), option.WithEndpoint(endpoint))
}

func newClient(ctx context.Context, project, database string, poll time.Duration, logger *log.Logger, opts ...option.ClientOption) (*Client, error) {
	if project == "" {
		return nil, errors.New("firestore project is required")
	}
	if database == "" {
		database = config.DefaultFirestoreDatabase
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	svc, err := fs.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{
		docs:     svc.Projects.Databases.Documents,
		database: fmt.Sprintf("projects/%s/databases/%s", project, database),
		hub:      livequery.NewHub(poll),
		log:      logger,
	}, nil
}

func (c *Client) userDoc(userID string) (string, error) {
	if err := checkID("user", userID); err != nil {
		return "", err
	}
	return c.database + "/documents/users/" + userID, nil
}

func (c *Client) taskName(userID, taskID string) (string, error) {
	parent, err := c.userDoc(userID)
	if err != nil {
		return "", err
	}
	if err := checkID("task", taskID); err != nil {
		return "", err
	}
	return parent + "/" + tasksCollection + "/" + taskID, nil
}

func (c *Client) keyName(userID string) (string, error) {
	parent, err := c.userDoc(userID)
	if err != nil {
		return "", err
	}
	return parent + "/" + secretsCollection + "/" + apiKeyDocument, nil
}

// ListTasks returns the tasks selected by q. Category and completion are
// filtered client-side so no composite index is needed.
func (c *Client) ListTasks(ctx context.Context, q service.Query) ([]service.Task, error) {
	parent, err := c.userDoc(q.UserID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	result := []service.Task{}
	err = c.docs.List(parent, tasksCollection).
		OrderBy(fieldPosition).
		PageSize(PageSize).
		Pages(ctx, func(resp *fs.ListDocumentsResponse) error {
			for _, doc := range resp.Documents {
				t, err := taskFromDocument(q.UserID, doc)
				if err != nil {
					c.log.Printf("skipping malformed task document %s: %v", doc.Name, err)
					continue
				}
				if q.Matches(t) {
					result = append(result, t)
				}
			}
			return nil
		})
	if err != nil {
		return nil, wrapError(err)
	}

	service.SortTasks(result)
	return result, nil
}

// WatchTasks polls ListTasks and refetches right away after local mutations.
func (c *Client) WatchTasks(ctx context.Context, q service.Query, fn service.SnapshotFunc) func() {
	return c.hub.Watch(ctx, func(ctx context.Context) ([]service.Task, error) {
		return c.ListTasks(ctx, q)
	}, fn)
}

// CreateTask creates a task with a server-assigned ID and creation time.
func (c *Client) CreateTask(ctx context.Context, userID string, nt service.NewTask) (service.Task, error) {
	parent, err := c.userDoc(userID)
	if err != nil {
		return service.Task{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	doc, err := c.docs.CreateDocument(parent, tasksCollection, &fs.Document{
		Fields: newTaskFields(userID, nt),
	}).Context(ctx).Do()
	if err != nil {
		return service.Task{}, wrapError(err)
	}

	t, err := taskFromDocument(userID, doc)
	if err != nil {
		return service.Task{}, err
	}
	c.hub.Notify()
	return t, nil
}

// UpdateTask patches the fields set in p. The task must exist.
func (c *Client) UpdateTask(ctx context.Context, userID, taskID string, p service.TaskPatch) error {
	name, err := c.taskName(userID, taskID)
	if err != nil {
		return err
	}
	fields, mask := patchFields(p)
	if len(mask) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	_, err = c.docs.Patch(name, &fs.Document{Fields: fields}).
		UpdateMaskFieldPaths(mask...).
		CurrentDocumentExists(true).
		Context(ctx).
		Do()
	if err != nil {
		return wrapError(err)
	}
	c.hub.Notify()
	return nil
}

// DeleteTask deletes a task. The task must exist.
func (c *Client) DeleteTask(ctx context.Context, userID, taskID string) error {
	name, err := c.taskName(userID, taskID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	_, err = c.docs.Delete(name).CurrentDocumentExists(true).Context(ctx).Do()
	if err != nil {
		return wrapError(err)
	}
	c.hub.Notify()
	return nil
}

// SetPositions commits every position update in a single write batch.
// Each write requires its document to exist, so an unknown ID fails the batch.
func (c *Client) SetPositions(ctx context.Context, userID string, taskIDs []string) error {
	if len(taskIDs) == 0 {
		return nil
	}

	writes := make([]*fs.Write, 0, len(taskIDs))
	for i, id := range taskIDs {
		name, err := c.taskName(userID, id)
		if err != nil {
			return err
		}
		writes = append(writes, &fs.Write{
			Update: &fs.Document{
				Name:   name,
				Fields: map[string]fs.Value{fieldPosition: intValue(int64(i))},
			},
			UpdateMask:      &fs.DocumentMask{FieldPaths: []string{fieldPosition}},
			CurrentDocument: &fs.Precondition{Exists: true},
		})
	}

	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	_, err := c.docs.Commit(c.database, &fs.CommitRequest{Writes: writes}).Context(ctx).Do()
	if err != nil {
		return wrapError(err)
	}
	c.hub.Notify()
	return nil
}

// GetAPIKey reads the user's AI key document.
func (c *Client) GetAPIKey(ctx context.Context, userID string) (string, bool, error) {
	name, err := c.keyName(userID)
	if err != nil {
		return "", false, err
	}

	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	doc, err := c.docs.Get(name).Context(ctx).Do()
	if err != nil {
		err = wrapError(err)
		if errors.Is(err, service.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	key := doc.Fields[fieldAPIKey].StringValue
	return key, key != "", nil
}

// SetAPIKey creates or overwrites the user's AI key document.
func (c *Client) SetAPIKey(ctx context.Context, userID, key string) error {
	name, err := c.keyName(userID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	_, err = c.docs.Patch(name, &fs.Document{
		Fields: map[string]fs.Value{fieldAPIKey: stringValue(key)},
	}).UpdateMaskFieldPaths(fieldAPIKey).Context(ctx).Do()
	if err != nil {
		return wrapError(err)
	}
	return nil
}

// DeleteAPIKey removes the user's AI key document if present.
func (c *Client) DeleteAPIKey(ctx context.Context, userID string) error {
	name, err := c.keyName(userID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	if _, err := c.docs.Delete(name).Context(ctx).Do(); err != nil {
		err = wrapError(err)
		if errors.Is(err, service.ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// Close implements service.Service. The REST client holds no connection.
func (c *Client) Close() error {
	return nil
}

// wrapError wraps API errors with user-friendly messages.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	errStr := err.Error()

	// Check for timeout
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(errStr, "context deadline exceeded") {
		return fmt.Errorf("request timed out")
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return fmt.Errorf("%w: %s", service.ErrUnauthorized, apiErr.Message)
		case apiErr.Code == http.StatusNotFound:
			return service.ErrNotFound
		case apiErr.Code == http.StatusConflict,
			strings.Contains(apiErr.Message, "FAILED_PRECONDITION"),
			strings.Contains(strings.ToLower(apiErr.Message), "no document to update"):
			return fmt.Errorf("%w: %s", service.ErrNotFound, apiErr.Message)
		}
	}

	return err
}
