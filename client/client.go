// Package client talks to the HTTP API on behalf of one signed-in user. A
// Client satisfies reconcile.Backend and its Stream satisfies realtime.Feed,
// so a reconcile.View can run against a remote server.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/Peap0ds-23/collaborative-todo-1/domain"
)

const defaultTimeout = 15 * time.Second

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
	Field   string
	Code    string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("api: %d %s: %s", e.Status, e.Field, e.Message)
	}
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// Is maps response statuses and codes onto the domain's sentinel errors.
func (e *APIError) Is(target error) bool {
	switch e.Code {
	case "":
	case "already_shared":
		return target == domain.ErrAlreadyShared
	case "share_with_self":
		return target == domain.ErrShareWithSelf
	case "email_taken":
		return target == domain.ErrEmailTaken
	default:
		return false
	}
	switch e.Status {
	case http.StatusConflict:
		return target == domain.ErrAlreadyShared
	case http.StatusUnauthorized:
		return target == domain.ErrUnauthenticated
	case http.StatusForbidden:
		return target == domain.ErrForbidden
	case http.StatusNotFound:
		return target == domain.ErrNotFound
	}
	return false
}

// Client is a thin JSON client for the API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *log.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithLogger sets the logger used by streams.
func WithLogger(l *log.Logger) Option { return func(c *Client) { c.logger = l } }

// New creates a Client for the server at baseURL authenticating with token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  log.StandardLogger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return sonic.Unmarshal(data, out)
}

func decodeError(status int, data []byte) error {
	var body struct {
		Error string `json:"error"`
		Field string `json:"field"`
		Code  string `json:"code"`
	}
	if err := sonic.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
		if body.Error == "" {
			body.Error = http.StatusText(status)
		}
	}
	if status == http.StatusBadRequest && body.Code == "" {
		return &domain.ValidationError{Field: body.Field, Message: body.Error}
	}
	return &APIError{Status: status, Message: body.Error, Field: body.Field, Code: body.Code}
}

// LoadTasks fetches the caller's split task list.
func (c *Client) LoadTasks(ctx context.Context) (domain.TaskList, error) {
	var list domain.TaskList
	err := c.do(ctx, http.MethodGet, "/api/tasks", nil, &list)
	return list, err
}

// SetComplete sets a task's completion flag.
func (c *Client) SetComplete(ctx context.Context, taskID string, complete bool) error {
	body := struct {
		Complete bool `json:"complete"`
	}{complete}
	return c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(taskID)+"/toggle", body, nil)
}

// SaveOrder stores the caller's manual order.
func (c *Client) SaveOrder(ctx context.Context, taskIDs []string) error {
	body := struct {
		TaskIDs []string `json:"taskIds"`
	}{taskIDs}
	return c.do(ctx, http.MethodPut, "/api/order", body, nil)
}

// Notifications fetches the caller's newest notifications.
func (c *Client) Notifications(ctx context.Context) ([]domain.Notification, error) {
	var items []domain.Notification
	err := c.do(ctx, http.MethodGet, "/api/notifications", nil, &items)
	return items, err
}

// NewTask is the body of a create request.
type NewTask struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	DueDate     string `json:"dueDate,omitempty"`
	Priority    string `json:"priority,omitempty"`
	TimeZone    string `json:"timeZone,omitempty"`
}

// AddTask creates a task owned by the caller.
func (c *Client) AddTask(ctx context.Context, t NewTask) (domain.Task, error) {
	var out domain.Task
	err := c.do(ctx, http.MethodPost, "/api/tasks", t, &out)
	return out, err
}

// DeleteTask removes an owned task.
func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(taskID), nil, nil)
}

// ShareTask grants email access to an owned task.
func (c *Client) ShareTask(ctx context.Context, taskID, email string) (domain.Share, error) {
	body := struct {
		Email string `json:"email"`
	}{email}
	var out domain.Share
	err := c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(taskID)+"/shares", body, &out)
	return out, err
}

// MarkNotificationRead marks one notification read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

var errStreamStatus = errors.New("unexpected stream status")
