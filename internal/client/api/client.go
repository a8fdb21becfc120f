package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iudanet/taskkeeper/internal/models"
	"github.com/iudanet/taskkeeper/pkg/api"
)

const (
	// DefaultTimeout bounds every entity request.
	DefaultTimeout = 10 * time.Second
	// DefaultProbeTimeout bounds the reachability probe.
	DefaultProbeTimeout = 3 * time.Second

	healthPath = "/api/health/"
)

// Client представляет HTTP клиент для REST API задач и заметок
type Client struct {
	httpClient   *http.Client
	baseURL      string
	token        string
	probeTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent in the Authorization header.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithProbeTimeout overrides the reachability probe timeout.
func WithProbeTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.probeTimeout = timeout
		}
	}
}

// NewClient создает новый API клиент
// baseURL - корень сервера, например http://localhost:8000
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		probeTimeout: DefaultProbeTimeout,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Копируем заголовок Authorization при редиректе
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateEntity создает сущность на сервере и возвращает серверную версию
func (c *Client) CreateEntity(ctx context.Context, entityType models.EntityType, payload models.Payload) (models.Payload, error) {
	var resp models.Payload
	if err := c.doRequest(ctx, http.MethodPost, collectionPath(entityType), payload, &resp); err != nil {
		return nil, fmt.Errorf("create %s: %w", entityType, err)
	}
	return resp, nil
}

// UpdateEntity применяет изменения к сущности на сервере
func (c *Client) UpdateEntity(ctx context.Context, entityType models.EntityType, id string, payload models.Payload) (models.Payload, error) {
	var resp models.Payload
	if err := c.doRequest(ctx, http.MethodPut, itemPath(entityType, id), payload, &resp); err != nil {
		return nil, fmt.Errorf("update %s %s: %w", entityType, id, err)
	}
	return resp, nil
}

// DeleteEntity удаляет сущность на сервере
func (c *Client) DeleteEntity(ctx context.Context, entityType models.EntityType, id string) error {
	if err := c.doRequest(ctx, http.MethodDelete, itemPath(entityType, id), nil, nil); err != nil {
		return fmt.Errorf("delete %s %s: %w", entityType, id, err)
	}
	return nil
}

// GetEntity возвращает текущую серверную версию сущности
func (c *Client) GetEntity(ctx context.Context, entityType models.EntityType, id string) (models.Payload, error) {
	var resp models.Payload
	if err := c.doRequest(ctx, http.MethodGet, itemPath(entityType, id), nil, &resp); err != nil {
		return nil, fmt.Errorf("get %s %s: %w", entityType, id, err)
	}
	return resp, nil
}

// Ping is the reachability probe. It also wakes up backends that sleep when idle.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	var resp api.HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, healthPath, nil, &resp); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// collectionPath returns /api/tasks/ for "task".
func collectionPath(entityType models.EntityType) string {
	return "/api/" + url.PathEscape(string(entityType)) + "s/"
}

func itemPath(entityType models.EntityType, id string) string {
	return collectionPath(entityType) + url.PathEscape(id) + "/"
}

// doRequest выполняет HTTP запрос и классифицирует ошибки
func (c *Client) doRequest(ctx context.Context, method, path string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(ctx, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransport(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{
			Kind:       classifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(respBody)),
		}
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil {
			if errResp.Message != "" {
				apiErr.Message = errResp.Message
			} else if errResp.Error != "" {
				apiErr.Message = errResp.Error
			}
			apiErr.Current = errResp.Current
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
