package todoist

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"icstask/internal/models"
)

type recorded struct {
	Method string
	Path   string
	Query  string
	Auth   string
	ReqID  string
	Body   map[string]interface{}
}

type fakeAPI struct {
	mu       sync.Mutex
	calls    []recorded
	statuses map[string]int // "METHOD path" -> status
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
			ReqID:  r.Header.Get("X-Request-Id"),
		}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			if err := json.Unmarshal(data, &rec.Body); err != nil {
				t.Errorf("request body is not JSON: %v", err)
			}
		}
		f.mu.Lock()
		f.calls = append(f.calls, rec)
		status, ok := f.statuses[r.Method+" "+r.URL.Path]
		f.mu.Unlock()

		if ok && status >= 300 {
			http.Error(w, "nope", status)
			return
		}

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/tasks":
			_, _ = io.WriteString(w, `[
				{"id":"t1","content":"Standup (ICUID:e1)","due":{"date":"2024-06-01","string":"Jun 1"}},
				{"id":"t2","content":"Plain task"}
			]`)
		case r.Method == http.MethodPost && r.URL.Path == "/tasks":
			_, _ = io.WriteString(w, `{"id":"new-1","content":"x"}`)
		default:
			if ok {
				w.WriteHeader(status)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}
	})
}

func newTestClient(t *testing.T, statuses map[string]int) (*Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{statuses: statuses}
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewClient(context.Background(), logger, "secret", "42", Options{BaseURL: srv.URL, Timeout: time.Second})
	return c, api
}

func TestCreate(t *testing.T) {
	c, api := newTestClient(t, nil)

	id, err := c.Create(context.Background(), models.TaskPayload{
		Content: "Standup (ICUID:e1)",
		Due:     &models.DuePayload{Date: "2024-06-01"},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id != "new-1" {
		t.Errorf("expected id new-1, got %q", id)
	}

	call := api.calls[0]
	if call.Auth != "Bearer secret" {
		t.Errorf("unexpected Authorization header %q", call.Auth)
	}
	if call.ReqID == "" {
		t.Error("expected X-Request-Id header on create")
	}
	if call.Body["project_id"] != "42" || call.Body["due_date"] != "2024-06-01" {
		t.Errorf("unexpected body %v", call.Body)
	}
	if _, ok := call.Body["due_datetime"]; ok {
		t.Errorf("due_datetime must be omitted for all-day events: %v", call.Body)
	}
}

func TestCreateFailure(t *testing.T) {
	c, _ := newTestClient(t, map[string]int{"POST /tasks": http.StatusInternalServerError})

	_, err := c.Create(context.Background(), models.TaskPayload{Content: "x"})
	var se *SinkError
	if !errors.As(err, &se) {
		t.Fatalf("expected SinkError, got %v", err)
	}
	if se.Status != http.StatusInternalServerError || se.Op != "create" {
		t.Errorf("unexpected error %+v", se)
	}
}

func TestUpdate(t *testing.T) {
	c, api := newTestClient(t, nil)

	err := c.Update(context.Background(), "t1", models.TaskPayload{
		Content: "Standup (ICUID:e1)",
		Due:     &models.DuePayload{DateTime: "2024-06-02T09:00:00Z"},
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	call := api.calls[0]
	if call.Method != http.MethodPost || call.Path != "/tasks/t1" {
		t.Errorf("unexpected call %s %s", call.Method, call.Path)
	}
	if call.Body["due_datetime"] != "2024-06-02T09:00:00Z" || call.Body["content"] != "Standup (ICUID:e1)" {
		t.Errorf("unexpected body %v", call.Body)
	}

	if err := c.Update(context.Background(), "t1", models.TaskPayload{Content: "x"}); err != nil {
		t.Fatalf("Update without due failed: %v", err)
	}
	if api.calls[1].Body["due_string"] != noDate {
		t.Errorf("expected due to be cleared, got %v", api.calls[1].Body)
	}
}

func TestUpdateRejectsOtherStatuses(t *testing.T) {
	c, _ := newTestClient(t, map[string]int{"POST /tasks/t1": http.StatusAccepted})
	if err := c.Update(context.Background(), "t1", models.TaskPayload{Content: "x"}); err == nil {
		t.Fatal("expected error for 202")
	}
}

func TestDelete(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"no content", http.StatusNoContent, false},
		{"ok", http.StatusOK, false},
		{"already gone", http.StatusNotFound, false},
		{"forbidden", http.StatusForbidden, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, api := newTestClient(t, map[string]int{"DELETE /tasks/t9": tt.status})
			err := c.Delete(context.Background(), "t9")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Delete() error = %v, wantErr %v", err, tt.wantErr)
			}
			if api.calls[0].Method != http.MethodDelete {
				t.Errorf("expected DELETE, got %s", api.calls[0].Method)
			}
		})
	}
}

func TestListTasks(t *testing.T) {
	c, api := newTestClient(t, nil)

	tasks, err := c.ListTasks(context.Background())
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if api.calls[0].Query != "project_id=42" {
		t.Errorf("expected project filter, got %q", api.calls[0].Query)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].Due == nil || tasks[0].Due.Fingerprint() != "2024-06-01" {
		t.Errorf("unexpected due %+v", tasks[0].Due)
	}
	if tasks[1].Due != nil {
		t.Errorf("expected no due, got %+v", tasks[1].Due)
	}
}

func TestListTasksFailure(t *testing.T) {
	c, _ := newTestClient(t, map[string]int{"GET /tasks": http.StatusUnauthorized})
	_, err := c.ListTasks(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Status != http.StatusUnauthorized {
		t.Fatalf("expected FetchError 401, got %v", err)
	}
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		wantErr      bool
		unauthorized bool
	}{
		{"ok", 0, false, false},
		{"bad token", http.StatusUnauthorized, true, true},
		{"no access", http.StatusForbidden, true, true},
		{"unknown project", http.StatusNotFound, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			statuses := map[string]int{}
			if tt.status != 0 {
				statuses["GET /projects/42"] = tt.status
			}
			c, api := newTestClient(t, statuses)

			err := c.Verify(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
			if api.calls[0].Method != http.MethodGet || api.calls[0].Path != "/projects/42" {
				t.Errorf("unexpected call %s %s", api.calls[0].Method, api.calls[0].Path)
			}
			var se *SinkError
			if tt.wantErr && (!errors.As(err, &se) || se.Unauthorized() != tt.unauthorized) {
				t.Errorf("Unauthorized() mismatch for %v", err)
			}
		})
	}
}

func TestSinkErrorClassification(t *testing.T) {
	c, _ := newTestClient(t, map[string]int{
		"POST /tasks":    http.StatusUnauthorized,
		"POST /tasks/t1": http.StatusNotFound,
	})

	_, err := c.Create(context.Background(), models.TaskPayload{Content: "x"})
	var se *SinkError
	if !errors.As(err, &se) || !se.Unauthorized() || se.NotFound() {
		t.Errorf("create with bad token: got %v", err)
	}

	err = c.Update(context.Background(), "t1", models.TaskPayload{Content: "x"})
	if !errors.As(err, &se) || !se.NotFound() || se.Unauthorized() {
		t.Errorf("update of a removed task: got %v", err)
	}
}

func TestCreateTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewClient(context.Background(), logger, "secret", "42", Options{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})

	started := time.Now()
	_, err := c.Create(context.Background(), models.TaskPayload{Content: "x"})
	var se *SinkError
	if !errors.As(err, &se) {
		t.Fatalf("expected SinkError on timeout, got %v", err)
	}
	if se.Status != 0 || se.Unauthorized() {
		t.Errorf("timeout must not look like an API answer: %+v", se)
	}
	if elapsed := time.Since(started); elapsed > time.Second {
		t.Errorf("call was not cut off by the timeout, took %s", elapsed)
	}
}
