package client

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/mabroukmoatez/formly-saas-sub017/domain"
)

const (
	maxResponseSize      = 8 << 20
	idempotencyKeyHeader = "Idempotency-Key"
	defaultTimeout       = 15 * time.Second
)

// Client talks to the board REST API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a Client. A non-positive timeout uses the default.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, header http.Header, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &TransportError{Op: "read " + path, Err: err}
	}
	return DecodeEnvelope(resp.StatusCode, data, out)
}

func taskPath(id int64) string {
	return "/quality-tasks/" + strconv.FormatInt(id, 10)
}

func categoryPath(id int64) string {
	return "/quality-task-categories/" + strconv.FormatInt(id, 10)
}

func (c *Client) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var cats []domain.Category
	if err := c.do(ctx, http.MethodGet, "/quality-task-categories", nil, nil, &cats); err != nil {
		return nil, err
	}
	if cats == nil {
		cats = []domain.Category{}
	}
	return cats, nil
}

func (c *Client) CreateCategory(ctx context.Context, cat domain.Category) (domain.Category, error) {
	var out domain.Category
	err := c.do(ctx, http.MethodPost, "/quality-task-categories", cat, nil, &out)
	return out, err
}

func (c *Client) UpdateCategory(ctx context.Context, id int64, patch domain.CategoryPatch) (domain.Category, error) {
	var out domain.Category
	err := c.do(ctx, http.MethodPatch, categoryPath(id), patch, nil, &out)
	return out, err
}

func (c *Client) DeleteCategory(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, categoryPath(id), nil, nil, nil)
}

func (c *Client) ListTasks(ctx context.Context) ([]domain.Task, error) {
	var tasks []domain.Task
	if err := c.do(ctx, http.MethodGet, "/quality-tasks", nil, nil, &tasks); err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return tasks, nil
}

func (c *Client) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	var out domain.Task
	err := c.do(ctx, http.MethodGet, taskPath(id), nil, nil, &out)
	return out, err
}

// CreateTask posts t with a fresh idempotency key.
func (c *Client) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	return c.CreateTaskWithKey(ctx, t, uuid.NewString())
}

// CreateTaskWithKey posts t under the given idempotency key so a retried
// request is rejected instead of creating a second card.
func (c *Client) CreateTaskWithKey(ctx context.Context, t domain.Task, key string) (domain.Task, error) {
	var out domain.Task
	header := http.Header{}
	if key != "" {
		header.Set(idempotencyKeyHeader, key)
	}
	err := c.do(ctx, http.MethodPost, "/quality-tasks", t, header, &out)
	return out, err
}

func (c *Client) UpdateTask(ctx context.Context, id int64, patch domain.TaskPatch) (domain.Task, error) {
	var out domain.Task
	err := c.do(ctx, http.MethodPatch, taskPath(id), patch, nil, &out)
	return out, err
}

// UpdatePositions submits a batched reorder in a single request.
func (c *Client) UpdatePositions(ctx context.Context, updates []domain.PositionUpdate) error {
	if updates == nil {
		updates = []domain.PositionUpdate{}
	}
	return c.do(ctx, http.MethodPost, "/quality-task-positions", updates, nil, nil)
}

func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, taskPath(id), nil, nil, nil)
}

// Health pings the server's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil, nil)
}
