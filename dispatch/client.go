package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"boardsync/api"
	"boardsync/domain"
)

const clientTimeout = 15 * time.Second

// Client posts mutations to the board API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client for the API at baseURL. The token is attached
// as a bearer credential; pass "" when the server runs without auth.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: clientTimeout},
	}
}

type remoteError struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// post sends body to path and decodes the response into out (when non-nil).
// Non-2xx statuses map back onto the domain sentinels so callers can make
// retry decisions with errors.Is.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := sonic.ConfigStd.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode >= 300 {
		var remote remoteError
		detail := ""
		if sonic.ConfigStd.Unmarshal(raw, &remote) == nil {
			detail = remote.Error
			if remote.Detail != "" {
				detail = remote.Detail
			}
		}
		return statusError(resp.StatusCode, path, detail)
	}
	if out == nil {
		return nil
	}
	if err := sonic.ConfigStd.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, domain.ErrParse)
	}
	return nil
}

func statusError(code int, path, detail string) error {
	var sentinel error
	switch code {
	case http.StatusBadRequest:
		sentinel = domain.ErrInvalid
	case http.StatusNotFound:
		sentinel = domain.ErrNotFound
	case http.StatusConflict:
		sentinel = domain.ErrConflict
	default:
		sentinel = fmt.Errorf("status %d", code)
	}
	if detail == "" {
		return fmt.Errorf("%s: %w", path, sentinel)
	}
	return fmt.Errorf("%s: %s: %w", path, detail, sentinel)
}

func (c *Client) AddTask(ctx context.Context, req api.AddTaskRequest) (api.AddTaskResponse, error) {
	req.Action = "add"
	var out api.AddTaskResponse
	err := c.post(ctx, "/api/tasks", req, &out)
	return out, err
}

func (c *Client) MoveTask(ctx context.Context, req api.MoveTaskRequest) (api.MoveTaskResponse, error) {
	req.Action = "move"
	var out api.MoveTaskResponse
	err := c.post(ctx, "/api/tasks", req, &out)
	return out, err
}

func (c *Client) CompleteTask(ctx context.Context, req api.CompleteTaskRequest) (api.CompleteTaskResponse, error) {
	req.Action = "complete"
	var out api.CompleteTaskResponse
	err := c.post(ctx, "/api/tasks", req, &out)
	return out, err
}

func (c *Client) EditTask(ctx context.Context, req api.EditTaskRequest) (api.EditTaskResponse, error) {
	req.Action = "edit"
	var out api.EditTaskResponse
	err := c.post(ctx, "/api/tasks", req, &out)
	return out, err
}

func (c *Client) MutateSubtask(ctx context.Context, req api.SubtaskRequest) (api.OKResponse, error) {
	req.Action = "subtask"
	var out api.OKResponse
	err := c.post(ctx, "/api/tasks", req, &out)
	return out, err
}

func (c *Client) AddIdea(ctx context.Context, req api.IdeaRequest) (api.IdeaResponse, error) {
	req.Action = "add"
	var out api.IdeaResponse
	err := c.post(ctx, "/api/ideas", req, &out)
	return out, err
}

func (c *Client) DeleteIdea(ctx context.Context, id string) error {
	return c.post(ctx, "/api/ideas", api.IdeaRequest{Action: "delete", ID: id}, nil)
}

func (c *Client) EditIdea(ctx context.Context, req api.IdeaRequest) (api.IdeaResponse, error) {
	req.Action = "edit"
	var out api.IdeaResponse
	err := c.post(ctx, "/api/ideas", req, &out)
	return out, err
}

func (c *Client) SubmitChangeRequest(ctx context.Context, req api.ChangeRequestRequest) (api.ChangeRequestResponse, error) {
	req.Action = "submit"
	var out api.ChangeRequestResponse
	err := c.post(ctx, "/api/change-request", req, &out)
	return out, err
}

func (c *Client) CancelChangeRequest(ctx context.Context, id string) error {
	return c.post(ctx, "/api/change-request", api.ChangeRequestRequest{Action: "cancel", ID: id}, nil)
}
