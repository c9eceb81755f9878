// Package client is a typed HTTP client for the projecthub API, plus the
// optimistic kanban board and debounced search built on top of it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"projecthub/internal/model"
	"projecthub/pkg/circuitbreaker"
	"projecthub/pkg/trace"
)

// APIError 是服务端返回的非 2xx 响应
type APIError struct {
	StatusCode int
	Message    string
	Field      string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("api error %d: %s (%s)", e.StatusCode, e.Message, e.Field)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Is 把状态码映射回 model 中的哨兵错误
func (e *APIError) Is(target error) bool {
	switch target {
	case model.ErrValidation:
		return e.StatusCode == http.StatusBadRequest
	case model.ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case model.ErrPermissionDenied:
		return e.StatusCode == http.StatusForbidden
	case model.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case model.ErrConflict:
		return e.StatusCode == http.StatusConflict
	case model.ErrStorage:
		return e.StatusCode >= http.StatusInternalServerError
	}
	return false
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithBreaker 替换默认熔断配置；IsFailure 为空时只有网络错误和 5xx 计入失败
func WithBreaker(cfg circuitbreaker.Config) Option {
	return func(c *Client) {
		if cfg.IsFailure == nil {
			cfg.IsFailure = isBreakerFailure
		}
		c.cb = circuitbreaker.NewCircuitBreaker(cfg)
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
			FailureThreshold:    3,
			SuccessThreshold:    2,
			Timeout:             30 * time.Second,
			HalfOpenMaxRequests: 2,
			IsFailure:           isBreakerFailure,
		}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// 4xx 是调用方的问题，不应该打开熔断器
func isBreakerFailure(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError
	}
	return !errors.Is(err, context.Canceled)
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) BreakerState() circuitbreaker.State {
	return c.cb.GetState()
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	return c.cb.Execute(func() error {
		var reader io.Reader
		if body != nil {
			b, err := json.Marshal(body)
			if err != nil {
				return err
			}
			reader = bytes.NewReader(b)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		if token := c.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		// 传播 trace_id
		if traceID := trace.FromContext(ctx); traceID != "" {
			req.Header.Set(trace.HeaderName, traceID)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusBadRequest {
			return decodeError(resp)
		}
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var body struct {
		Error string `json:"error"`
		Field string `json:"field"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Field = body.Field
	}
	return apiErr
}

type loginResponse struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// Login 成功后保存 token，后续请求自动携带
func (c *Client) Login(ctx context.Context, email, password string) (*model.User, error) {
	var resp loginResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp.User, nil
}

func (c *Client) Register(ctx context.Context, email, password, name string) (*model.User, error) {
	var u model.User
	err := c.do(ctx, http.MethodPost, "/api/auth/register", map[string]string{
		"email":    email,
		"password": password,
		"name":     name,
	}, &u)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil); err != nil {
		return err
	}
	c.SetToken("")
	return nil
}

func (c *Client) ListProjects(ctx context.Context) ([]model.Project, error) {
	var projects []model.Project
	if err := c.do(ctx, http.MethodGet, "/api/projects", nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

func (c *Client) GetProject(ctx context.Context, id string) (*model.ProjectDetail, error) {
	var detail model.ProjectDetail
	if err := c.do(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(id), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (c *Client) CreateProject(ctx context.Context, in model.ProjectInput) (*model.Project, error) {
	var p model.Project
	if err := c.do(ctx, http.MethodPost, "/api/projects", in, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) UpdateProject(ctx context.Context, id string, patch model.ProjectPatch) (*model.Project, error) {
	var p model.Project
	if err := c.do(ctx, http.MethodPatch, "/api/projects/"+url.PathEscape(id), patch, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/projects/"+url.PathEscape(id), nil, nil)
}

func (c *Client) AddMember(ctx context.Context, projectID, userID string) (*model.Project, error) {
	var p model.Project
	path := "/api/projects/" + url.PathEscape(projectID) + "/members"
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"userId": userID}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) RemoveMember(ctx context.Context, projectID, userID string) error {
	path := "/api/projects/" + url.PathEscape(projectID) + "/members/" + url.PathEscape(userID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// ListTasks projectID 为空时返回所有可见任务
func (c *Client) ListTasks(ctx context.Context, projectID string) ([]model.Task, error) {
	path := "/api/tasks"
	if projectID != "" {
		path += "?projectId=" + url.QueryEscape(projectID)
	}
	var tasks []model.Task
	if err := c.do(ctx, http.MethodGet, path, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *Client) GetTask(ctx context.Context, id string) (*model.Task, error) {
	var t model.Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) CreateTask(ctx context.Context, in model.TaskInput) (*model.Task, error) {
	var t model.Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks", in, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (*model.Task, error) {
	var t model.Task
	if err := c.do(ctx, http.MethodPatch, "/api/tasks/"+url.PathEscape(id), patch, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(id), nil, nil)
}

func (c *Client) Search(ctx context.Context, term string) (model.SearchResult, error) {
	var result model.SearchResult
	if err := c.do(ctx, http.MethodGet, "/api/search?q="+url.QueryEscape(term), nil, &result); err != nil {
		return model.SearchResult{}, err
	}
	return result, nil
}

func (c *Client) ListMilestones(ctx context.Context) ([]model.Milestone, error) {
	var milestones []model.Milestone
	if err := c.do(ctx, http.MethodGet, "/api/milestones", nil, &milestones); err != nil {
		return nil, err
	}
	return milestones, nil
}

func (c *Client) Dashboard(ctx context.Context) (*model.DashboardSummary, error) {
	var summary model.DashboardSummary
	if err := c.do(ctx, http.MethodGet, "/api/dashboard", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (c *Client) Timeline(ctx context.Context) ([]model.TimelineProject, error) {
	var rows []model.TimelineProject
	if err := c.do(ctx, http.MethodGet, "/api/timeline", nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) ListNotifications(ctx context.Context) ([]model.Notification, error) {
	var items []model.Notification
	if err := c.do(ctx, http.MethodGet, "/api/notifications", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}
