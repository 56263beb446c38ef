// Package client provides an HTTP client for the RepoChat server API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Client talks to the RepoChat server's JSON API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new API client. If endpoint is empty, uses the
// REPOCHAT_SERVER_URL env var or defaults to localhost:8080. Timeout can
// be configured via REPOCHAT_CLIENT_TIMEOUT.
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("REPOCHAT_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = "http://localhost:8080"
	}
	endpoint = strings.TrimSuffix(endpoint, "/")

	timeout := time.Minute
	if t := os.Getenv("REPOCHAT_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Assistant is an assistant record.
type Assistant struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Model string `json:"model"`
}

// Repo is the state of a repository ingestion job.
type Repo struct {
	ThreadID       string     `json:"thread_id"`
	Owner          string     `json:"owner"`
	Name           string     `json:"name"`
	URL            string     `json:"url"`
	Status         string     `json:"status"`
	Error          *string    `json:"error,omitempty"`
	FileCount      int        `json:"file_count"`
	FilesProcessed int        `json:"files_processed"`
	FragmentCount  int        `json:"fragment_count"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Result is the run state of a conversation turn.
type Result struct {
	ThreadID  string  `json:"thread_id"`
	RunStatus string  `json:"run_status"`
	Reply     *string `json:"reply,omitempty"`
	Error     *string `json:"error,omitempty"`
}

// Terminal reports whether the turn has finished.
func (r Result) Terminal() bool {
	return r.RunStatus == "completed" || r.RunStatus == "failed"
}

// apiError is the server's error payload.
type apiError struct {
	Error string `json:"error"`
}

// CreateAssistant creates (or fetches) an assistant by name.
func (c *Client) CreateAssistant(ctx context.Context, name, model string) (*Assistant, error) {
	var assistant Assistant
	err := c.post(ctx, "/api/v1/assistant/create", map[string]string{
		"name":  name,
		"model": model,
	}, &assistant)
	if err != nil {
		return nil, err
	}
	return &assistant, nil
}

// ProcessRepo starts ingesting a repository and returns the job, whose
// thread ID identifies the conversation.
func (c *Client) ProcessRepo(ctx context.Context, assistantID, repoURL string) (*Repo, error) {
	var repo Repo
	err := c.post(ctx, "/api/v1/repo/process", map[string]string{
		"assistant_id": assistantID,
		"url":          repoURL,
	}, &repo)
	if err != nil {
		return nil, err
	}
	return &repo, nil
}

// ReprocessRepo re-runs ingestion for an existing thread. Jobs that are
// still processing or already completed are returned unchanged; failed
// jobs are re-ingested from scratch.
func (c *Client) ReprocessRepo(ctx context.Context, threadID string) (*Repo, error) {
	var repo Repo
	err := c.post(ctx, "/api/v1/repo/process", map[string]string{
		"thread_id": threadID,
	}, &repo)
	if err != nil {
		return nil, err
	}
	return &repo, nil
}

// CheckRepo returns the current state of a thread's ingestion job.
func (c *Client) CheckRepo(ctx context.Context, threadID string) (*Repo, error) {
	var repo Repo
	if err := c.get(ctx, "/api/v1/repo/check", threadID, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

// SendMessage enqueues a conversation turn.
func (c *Client) SendMessage(ctx context.Context, threadID, message string) (*Result, error) {
	var result Result
	err := c.post(ctx, "/api/v1/conversation/message", map[string]string{
		"thread_id": threadID,
		"message":   message,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetResult reads the thread's current run state.
func (c *Client) GetResult(ctx context.Context, threadID string) (*Result, error) {
	var result Result
	if err := c.get(ctx, "/api/v1/conversation/result", threadID, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// WatchResult streams run-state updates over a websocket until the turn
// reaches a terminal state, invoking onUpdate for each change. It returns
// the terminal result.
func (c *Client) WatchResult(ctx context.Context, threadID string, onUpdate func(Result)) (*Result, error) {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) +
		"/api/v1/conversation/watch?thread_id=" + url.QueryEscape(threadID)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("connect watch stream: %w", err)
	}
	defer conn.Close()

	// Unblock reads when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var result Result
		if err := conn.ReadJSON(&result); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read watch stream: %w", err)
		}
		if onUpdate != nil {
			onUpdate(result)
		}
		if result.Terminal() {
			return &result, nil
		}
	}
}

func (c *Client) post(ctx context.Context, path string, payload any, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, result)
}

func (c *Client) get(ctx context.Context, path, threadID string, result any) error {
	reqURL := c.baseURL + path + "?thread_id=" + url.QueryEscape(threadID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server error: %s", apiErr.Error)
		}
		return fmt.Errorf("server error: %s - %s", resp.Status, string(body))
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
