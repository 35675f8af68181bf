package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	dom "github.com/kmc-jp/minweb-todo/internal/domain"
	"github.com/kmc-jp/minweb-todo/internal/dto"
	"github.com/kmc-jp/minweb-todo/internal/handlers"
	"github.com/kmc-jp/minweb-todo/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRepo is a minimal in-memory TodoRepo for exercising the HTTP
// boundary end to end (handler -> service -> port).
type memRepo struct {
	mu       sync.Mutex
	nextID   int64
	rows     map[int64]dom.Todo
	now      time.Time
	failWith error
}

func newMemRepo() *memRepo {
	return &memRepo{
		nextID: 1,
		rows:   make(map[int64]dom.Todo),
		now:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (m *memRepo) tick() time.Time {
	m.now = m.now.Add(time.Second)
	return m.now
}

func (m *memRepo) List(ctx context.Context) ([]dom.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var list []dom.Todo
	for id := m.nextID - 1; id >= 1; id-- {
		if t, ok := m.rows[id]; ok {
			list = append(list, t)
		}
	}
	return list, nil
}

func (m *memRepo) GetByID(ctx context.Context, id int64) (dom.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return dom.Todo{}, m.failWith
	}
	t, ok := m.rows[id]
	if !ok {
		return dom.Todo{}, pgx.ErrNoRows
	}
	return t, nil
}

func (m *memRepo) Create(ctx context.Context, title string) (dom.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return dom.Todo{}, m.failWith
	}
	now := m.tick()
	t := dom.Todo{ID: m.nextID, Title: title, CreatedAt: now, UpdatedAt: now}
	m.nextID++
	m.rows[t.ID] = t
	return t, nil
}

func (m *memRepo) Update(ctx context.Context, id int64, patch dom.TodoPatch) (dom.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return dom.Todo{}, m.failWith
	}
	if patch.Empty() {
		return dom.Todo{}, dom.ErrNoFields
	}
	t, ok := m.rows[id]
	if !ok {
		return dom.Todo{}, pgx.ErrNoRows
	}
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Completed != nil {
		t.Completed = *patch.Completed
	}
	t.UpdatedAt = m.tick()
	m.rows[id] = t
	return t, nil
}

func (m *memRepo) Delete(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return false, m.failWith
	}
	if _, ok := m.rows[id]; !ok {
		return false, nil
	}
	delete(m.rows, id)
	return true, nil
}

func newTestRouter(m *memRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := handlers.NewTodoHandler(service.NewTodoService(m, nil))

	r := gin.New()
	api := r.Group("/api")
	api.GET("/todos", h.List)
	api.POST("/todos", h.Create)
	api.GET("/todos/:id", h.GetByID)
	api.PUT("/todos/:id", h.Update)
	api.PATCH("/todos/:id/complete", h.Complete)
	api.DELETE("/todos/:id", h.Delete)
	return r
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeTodo(t *testing.T, w *httptest.ResponseRecorder) dto.TodoResponse {
	t.Helper()
	var resp dto.TodoResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCreateTodo(t *testing.T) {
	r := newTestRouter(newMemRepo())

	w := doRequest(r, http.MethodPost, "/api/todos", `{"title":"buy milk"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	resp := decodeTodo(t, w)
	assert.Equal(t, int64(1), resp.ID)
	assert.Equal(t, "buy milk", resp.Title)
	assert.False(t, resp.Completed)
	assert.True(t, resp.UpdatedAt.Equal(resp.CreatedAt))
}

func TestCreateTodo_BadTitle(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing title", `{}`},
		{"null title", `{"title":null}`},
		{"empty title", `{"title":""}`},
		{"whitespace title", `{"title":"   "}`},
		{"too long title", `{"title":"` + strings.Repeat("a", 101) + `"}`},
		{"malformed json", `{"title":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMemRepo()
			r := newTestRouter(m)
			w := doRequest(r, http.MethodPost, "/api/todos", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, m.rows)
		})
	}
}

func TestListTodos_EmptyIsArray(t *testing.T) {
	r := newTestRouter(newMemRepo())

	w := doRequest(r, http.MethodGet, "/api/todos", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())
}

func TestListTodos_NewestFirst(t *testing.T) {
	r := newTestRouter(newMemRepo())

	for _, title := range []string{"one", "two", "three"} {
		w := doRequest(r, http.MethodPost, "/api/todos", `{"title":"`+title+`"}`)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := doRequest(r, http.MethodGet, "/api/todos", "")
	require.Equal(t, http.StatusOK, w.Code)

	var list []dto.TodoResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 3)
	assert.Equal(t, "three", list[0].Title)
	assert.Equal(t, "one", list[2].Title)
}

func TestGetTodo_InvalidID(t *testing.T) {
	r := newTestRouter(newMemRepo())

	for _, path := range []string{"/api/todos/abc", "/api/todos/0", "/api/todos/-1"} {
		w := doRequest(r, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestGetTodo_NotFound(t *testing.T) {
	r := newTestRouter(newMemRepo())

	w := doRequest(r, http.MethodGet, "/api/todos/42", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateTodo(t *testing.T) {
	r := newTestRouter(newMemRepo())

	w := doRequest(r, http.MethodPost, "/api/todos", `{"title":"old"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(r, http.MethodPut, "/api/todos/1", `{"title":"new","completed":true}`)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeTodo(t, w)
	assert.Equal(t, "new", resp.Title)
	assert.True(t, resp.Completed)
	assert.True(t, resp.UpdatedAt.After(resp.CreatedAt))
}

func TestUpdateTodo_EmptyBody(t *testing.T) {
	r := newTestRouter(newMemRepo())

	w := doRequest(r, http.MethodPost, "/api/todos", `{"title":"keep"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(r, http.MethodPut, "/api/todos/1", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Stored row is untouched.
	w = doRequest(r, http.MethodGet, "/api/todos/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "keep", decodeTodo(t, w).Title)
}

func TestUpdateTodo_NotFound(t *testing.T) {
	r := newTestRouter(newMemRepo())

	w := doRequest(r, http.MethodPut, "/api/todos/9", `{"title":"x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTodoLifecycle(t *testing.T) {
	r := newTestRouter(newMemRepo())

	// Create.
	w := doRequest(r, http.MethodPost, "/api/todos", `{"title":"A"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeTodo(t, w)
	assert.False(t, created.Completed)

	// Complete.
	w = doRequest(r, http.MethodPatch, "/api/todos/1/complete", "")
	require.Equal(t, http.StatusOK, w.Code)
	completed := decodeTodo(t, w)
	assert.True(t, completed.Completed)
	assert.True(t, completed.UpdatedAt.After(completed.CreatedAt))

	// Completing again succeeds (idempotent).
	w = doRequest(r, http.MethodPatch, "/api/todos/1/complete", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeTodo(t, w).Completed)

	// Delete.
	w = doRequest(r, http.MethodDelete, "/api/todos/1", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())

	// Gone for every subsequent operation.
	w = doRequest(r, http.MethodGet, "/api/todos/1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(r, http.MethodPatch, "/api/todos/1/complete", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(r, http.MethodDelete, "/api/todos/1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStorageFailureMapsTo500(t *testing.T) {
	m := newMemRepo()
	m.failWith = assert.AnError
	r := newTestRouter(m)

	w := doRequest(r, http.MethodGet, "/api/todos", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = doRequest(r, http.MethodPost, "/api/todos", `{"title":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestErrorBodyNeverLeaksInternals(t *testing.T) {
	m := newMemRepo()
	m.failWith = assert.AnError
	r := newTestRouter(m)

	w := doRequest(r, http.MethodGet, "/api/todos/1", "")
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "internal error", body["error"])
}
