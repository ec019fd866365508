package todoist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"icstask/internal/models"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// BaseURL is the Todoist REST v2 endpoint.
const BaseURL = "https://api.todoist.com/rest/v2"

// SinkError reports a failed create, update or delete call.
type SinkError struct {
	Op     string
	TaskID string
	Status int // 0 when the request never got a response
	Body   string
	Err    error
}

func (e *SinkError) Error() string {
	subject := e.Op
	if e.TaskID != "" {
		subject += " task " + e.TaskID
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: API error %d: %s", subject, e.Status, e.Body)
	}
	return fmt.Sprintf("%s: %v", subject, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// Unauthorized reports whether the API rejected the token.
func (e *SinkError) Unauthorized() bool { return authStatus(e.Status) }

// NotFound reports whether the task does not exist (any more).
func (e *SinkError) NotFound() bool { return e.Status == http.StatusNotFound }

// FetchError reports that the project's tasks could not be listed.
type FetchError struct {
	Status int
	Body   string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("list tasks: API error %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("list tasks: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Unauthorized reports whether the API rejected the token.
func (e *FetchError) Unauthorized() bool { return authStatus(e.Status) }

func authStatus(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// Options tune the client. Zero values pick defaults.
type Options struct {
	BaseURL   string
	Timeout   time.Duration // Per call
	RateLimit float64       // Requests per second, 0 disables limiting
	Burst     int
}

// Client is a Todoist API client bound to one project.
type Client struct {
	baseURL    string
	projectID  string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a new Todoist client. The token is sent as a bearer token.
func NewClient(ctx context.Context, logger *slog.Logger, token, projectID string, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = BaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}

	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
	httpClient.Timeout = opts.Timeout

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Client{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		projectID:  projectID,
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger,
	}
}

// ProjectID returns the configured project.
func (c *Client) ProjectID() string {
	return c.projectID
}

type response struct {
	status int
	body   []byte
}

// doRequest performs an HTTP request. Transport failures are returned as
// errors; any HTTP status is returned to the caller to judge.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, header http.Header) (*response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("Todoist API call", "method", method, "path", path, "status", resp.StatusCode)
	return &response{status: resp.StatusCode, body: respBody}, nil
}

// Verify checks that the token is accepted and the project exists, without
// changing anything.
func (c *Client) Verify(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodGet, "/projects/"+url.PathEscape(c.projectID), nil, nil)
	if err != nil {
		return &SinkError{Op: "verify project " + c.projectID, Err: err}
	}
	if resp.status < 200 || resp.status > 299 {
		return &SinkError{Op: "verify project " + c.projectID, Status: resp.status, Body: string(resp.body)}
	}
	return nil
}

// GetTasks returns all active tasks of the project.
func (c *Client) GetTasks(ctx context.Context) ([]Task, error) {
	path := "/tasks?project_id=" + url.QueryEscape(c.projectID)

	resp, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	if resp.status < 200 || resp.status > 299 {
		return nil, &FetchError{Status: resp.status, Body: string(resp.body)}
	}

	var tasks []Task
	if err := json.Unmarshal(resp.body, &tasks); err != nil {
		return nil, &FetchError{Err: fmt.Errorf("unmarshal tasks: %w", err)}
	}
	return tasks, nil
}

// ListTasks returns the project's tasks in the shape identity recovery needs.
func (c *Client) ListTasks(ctx context.Context) ([]models.RemoteTask, error) {
	tasks, err := c.GetTasks(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.RemoteTask, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.remote())
	}
	return out, nil
}

// Create creates a task in the project and returns its ID. A fresh request
// ID is sent so the API can drop duplicate deliveries of the same call.
func (c *Client) Create(ctx context.Context, p models.TaskPayload) (string, error) {
	header := http.Header{}
	header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.doRequest(ctx, http.MethodPost, "/tasks", createRequest(c.projectID, p), header)
	if err != nil {
		return "", &SinkError{Op: "create", Err: err}
	}
	if resp.status < 200 || resp.status > 299 {
		return "", &SinkError{Op: "create", Status: resp.status, Body: string(resp.body)}
	}

	var task Task
	if err := json.Unmarshal(resp.body, &task); err != nil {
		return "", &SinkError{Op: "create", Err: fmt.Errorf("unmarshal task: %w", err)}
	}
	if task.ID == "" {
		return "", &SinkError{Op: "create", Err: fmt.Errorf("response has no task id")}
	}
	return task.ID, nil
}

// Update replaces the content and due of a task.
func (c *Client) Update(ctx context.Context, id string, p models.TaskPayload) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id), updateRequest(p), nil)
	if err != nil {
		return &SinkError{Op: "update", TaskID: id, Err: err}
	}
	if resp.status != http.StatusOK && resp.status != http.StatusNoContent {
		return &SinkError{Op: "update", TaskID: id, Status: resp.status, Body: string(resp.body)}
	}
	return nil
}

// Delete deletes a task. A task that no longer exists counts as deleted.
func (c *Client) Delete(ctx context.Context, id string) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return &SinkError{Op: "delete", TaskID: id, Err: err}
	}
	switch resp.status {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusNotFound:
		c.logger.Warn("Task already gone, treating as deleted", "taskRef", id)
		return nil
	}
	return &SinkError{Op: "delete", TaskID: id, Status: resp.status, Body: string(resp.body)}
}
