package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"dcc/internal/assistant"
	"dcc/internal/output"
	"dcc/internal/service"
	"dcc/internal/tasksync"
)

const maxTextSize = 10 << 10 // 10KB

type createRequest struct {
	Text     string `json:"text"`
	Category string `json:"category"`
	Priority string `json:"priority"`
	DueDate  string `json:"dueDate"`
	AI       bool   `json:"ai"`
}

// updateRequest carries the fields to change. An empty dueDate clears it.
type updateRequest struct {
	Text      *string `json:"text"`
	Completed *bool   `json:"completed"`
	Priority  *string `json:"priority"`
	DueDate   *string `json:"dueDate"`
}

type reorderRequest struct {
	Category string `json:"category"`
	Filter   string `json:"filter"`
	From     int    `json:"from"`
	To       int    `json:"to"`
}

type textRequest struct {
	Text string `json:"text"`
}

type keyRequest struct {
	Key string `json:"key"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListTasks(c *gin.Context) {
	q, err := s.viewQuery(c, c.Query("category"), c.Query("filter"))
	if err != nil {
		badRequest(c, err)
		return
	}

	tasks, err := s.store.ListTasks(c.Request.Context(), q)
	if err != nil {
		s.fail(c, "list tasks", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    tasks,
		"count":   len(tasks),
	})
}

// handleStream pushes the view as a "tasks" server-sent event on every change.
// Only the latest list is kept when the client falls behind.
func (s *Server) handleStream(c *gin.Context) {
	q, err := s.viewQuery(c, c.Query("category"), c.Query("filter"))
	if err != nil {
		badRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	_, _, signedOut := s.current()
	latest := make(chan []service.Task, 1)

	model := tasksync.New(s.store, s.log)
	model.Subscribe(ctx, q.UserID, q.Category, q.Filter, func(tasks []service.Task) {
		select {
		case <-latest:
		default:
		}
		latest <- tasks
	})
	defer model.Close()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-signedOut:
			return false
		case tasks := <-latest:
			c.SSEvent("tasks", tasks)
			return true
		}
	})
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		badRequest(c, errors.New("task text required"))
		return
	}
	if len(text) > maxTextSize {
		badRequest(c, errors.New("task text exceeds maximum size of 10KB"))
		return
	}

	ctx := c.Request.Context()
	nt := service.NewTask{
		Text:     text,
		Category: service.DefaultCategory,
		Priority: service.DefaultPriority,
	}

	if req.AI {
		res, err := s.parse(c, text)
		if err != nil {
			s.fail(c, "ai parse", err)
			return
		}
		if t := res.Text(); t != "" {
			nt.Text = t
		}
		if res.Category != "" {
			nt.Category = res.Category
		}
		if d, ok := res.Due(); ok {
			nt.DueDate = &d
		}
	}

	if req.Category != "" {
		cat, ok := service.ParseCategory(req.Category)
		if !ok || cat == service.CategoryAll {
			badRequest(c, fmt.Errorf("invalid category: %s", req.Category))
			return
		}
		nt.Category = cat
	}
	if req.Priority != "" {
		p, ok := service.ParsePriority(req.Priority)
		if !ok {
			badRequest(c, fmt.Errorf("invalid priority: %s", req.Priority))
			return
		}
		nt.Priority = p
	}
	if req.DueDate != "" {
		d, err := time.Parse(service.DateLayout, req.DueDate)
		if err != nil {
			badRequest(c, fmt.Errorf("invalid due date: %s", req.DueDate))
			return
		}
		nt.DueDate = &d
	}
	nt.Position = s.now().UnixMilli()

	task, err := s.store.CreateTask(ctx, userID(c), nt)
	if err != nil {
		s.fail(c, "create task", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    task,
	})
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var patch service.TaskPatch
	if req.Text != nil {
		text := strings.TrimSpace(*req.Text)
		if text == "" {
			badRequest(c, errors.New("task text required"))
			return
		}
		patch.Text = &text
	}
	patch.Completed = req.Completed
	if req.Priority != nil {
		p, ok := service.ParsePriority(*req.Priority)
		if !ok {
			badRequest(c, fmt.Errorf("invalid priority: %s", *req.Priority))
			return
		}
		patch.Priority = &p
	}
	if req.DueDate != nil {
		if *req.DueDate == "" {
			patch.ClearDue = true
		} else {
			d, err := time.Parse(service.DateLayout, *req.DueDate)
			if err != nil {
				badRequest(c, fmt.Errorf("invalid due date: %s", *req.DueDate))
				return
			}
			patch.DueDate = &d
		}
	}

	if err := s.store.UpdateTask(c.Request.Context(), userID(c), c.Param("id"), patch); err != nil {
		s.fail(c, "update task", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	if err := s.store.DeleteTask(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		s.fail(c, "delete task", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleReorder moves the task at index from to index to (0-based) within the
// given view and rewrites the positions of the whole view in one batch.
func (s *Server) handleReorder(c *gin.Context) {
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	q, err := s.viewQuery(c, req.Category, req.Filter)
	if err != nil {
		badRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	model := tasksync.New(s.store, s.log)
	defer model.Close()

	model.Subscribe(ctx, q.UserID, q.Category, q.Filter, nil)
	if err := model.WaitReady(ctx); err != nil {
		s.fail(c, "reorder", err)
		return
	}
	n := len(model.Tasks())
	if req.From < 0 || req.From >= n || req.To < 0 || req.To >= n {
		badRequest(c, fmt.Errorf("reorder out of range: %d -> %d (have %d tasks)", req.From, req.To, n))
		return
	}
	if err := model.Reorder(ctx, req.From, req.To); err != nil {
		s.fail(c, "reorder", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    model.Tasks(),
	})
}

func (s *Server) handleParse(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := s.parse(c, req.Text)
	if err != nil {
		s.fail(c, "ai parse", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    res,
	})
}

func (s *Server) handleGetAPIKey(c *gin.Context) {
	key, ok, err := s.store.GetAPIKey(c.Request.Context(), userID(c))
	if err != nil {
		s.fail(c, "get api key", err)
		return
	}
	resp := gin.H{"success": true, "set": ok}
	if ok {
		resp["key"] = output.MaskKey(key)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSetAPIKey(c *gin.Context) {
	var req keyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	key := strings.TrimSpace(req.Key)
	if key == "" {
		badRequest(c, errors.New("API key required"))
		return
	}
	if err := s.store.SetAPIKey(c.Request.Context(), userID(c), key); err != nil {
		s.fail(c, "set api key", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleDeleteAPIKey(c *gin.Context) {
	if err := s.store.DeleteAPIKey(c.Request.Context(), userID(c)); err != nil {
		s.fail(c, "delete api key", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    service.Categories(),
		"default": service.DefaultCategory,
	})
}

func (s *Server) viewQuery(c *gin.Context, category, filter string) (service.Query, error) {
	cat := service.CategoryAll
	if category != "" {
		parsed, ok := service.ParseCategory(category)
		if !ok {
			return service.Query{}, fmt.Errorf("invalid category: %s", category)
		}
		cat = parsed
	}
	f, ok := service.ParseFilter(filter)
	if !ok {
		return service.Query{}, fmt.Errorf("invalid filter: %s", filter)
	}
	return service.Query{UserID: userID(c), Category: cat, Filter: f}, nil
}

func (s *Server) parse(c *gin.Context, text string) (assistant.Result, error) {
	ctx := c.Request.Context()
	key, ok, err := s.store.GetAPIKey(ctx, userID(c))
	if err != nil {
		return assistant.Result{}, err
	}
	if !ok {
		return assistant.Result{}, assistant.ErrNoAPIKey
	}
	return s.assistant.Parse(ctx, key, text)
}

// fail logs err and writes the error envelope with the matching status.
func (s *Server) fail(c *gin.Context, op string, err error) {
	s.log.Printf("%s failed: %v", op, err)
	c.JSON(statusFor(err), gin.H{
		"success": false,
		"error":   err.Error(),
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   err.Error(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, assistant.ErrNoAPIKey),
		errors.Is(err, assistant.ErrEmptyInput),
		errors.Is(err, assistant.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, assistant.ErrBlocked),
		errors.Is(err, assistant.ErrInvalidJSON),
		errors.Is(err, assistant.ErrEmptyResponse):
		return http.StatusUnprocessableEntity
	case errors.Is(err, assistant.ErrQuota):
		return http.StatusTooManyRequests
	case errors.Is(err, assistant.ErrPermission),
		errors.Is(err, assistant.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
