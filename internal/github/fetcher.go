// Package github fetches repository trees and file contents through the
// GitHub REST API.
package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrFetch indicates the repository or one of its files could not be
// retrieved: unknown repository, auth failure, rate limit, or a network
// error. The whole ingestion fails on it.
var ErrFetch = errors.New("repository fetch failed")

// Client talks to the GitHub REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a GitHub API client. If baseURL is empty the public
// API endpoint is used. An empty token means unauthenticated requests
// (low rate limits, public repositories only).
func NewClient(baseURL, token string, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
		logger: log,
	}
}

// Metadata is the subset of repository metadata the ingestion needs.
type Metadata struct {
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
	HTMLURL       string `json:"html_url"`
}

// TreeEntry is one blob in a repository tree listing.
type TreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
	URL  string `json:"url"`
	Size int    `json:"size"`
}

// ParseRepoURL extracts owner and name from a GitHub repository URL or an
// "owner/name" shorthand.
func ParseRepoURL(raw string) (owner, name string, err error) {
	path := raw
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", "", fmt.Errorf("parse repository URL %q: %w", raw, err)
		}
		path = u.Path
	}

	path = strings.Trim(path, "/")
	path = strings.TrimSuffix(path, ".git")

	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository URL %q: expected owner/name", raw)
	}
	return parts[0], parts[1], nil
}

// GetMetadata fetches repository metadata, including the default branch.
func (c *Client) GetMetadata(ctx context.Context, owner, name string) (*Metadata, error) {
	var meta Metadata
	endpoint := fmt.Sprintf("%s/repos/%s/%s", c.baseURL, owner, name)
	if err := c.getJSON(ctx, endpoint, &meta); err != nil {
		return nil, fmt.Errorf("metadata %s/%s: %w", owner, name, err)
	}
	return &meta, nil
}

// ListFiles resolves the default branch head and returns all blob entries
// of the repository tree.
func (c *Client) ListFiles(ctx context.Context, owner, name string) ([]TreeEntry, error) {
	meta, err := c.GetMetadata(ctx, owner, name)
	if err != nil {
		return nil, err
	}

	var branch struct {
		Commit struct {
			SHA string `json:"sha"`
		} `json:"commit"`
	}
	endpoint := fmt.Sprintf("%s/repos/%s/%s/branches/%s", c.baseURL, owner, name, url.PathEscape(meta.DefaultBranch))
	if err := c.getJSON(ctx, endpoint, &branch); err != nil {
		return nil, fmt.Errorf("branch %s: %w", meta.DefaultBranch, err)
	}

	var tree struct {
		Tree      []TreeEntry `json:"tree"`
		Truncated bool        `json:"truncated"`
	}
	endpoint = fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1", c.baseURL, owner, name, branch.Commit.SHA)
	if err := c.getJSON(ctx, endpoint, &tree); err != nil {
		return nil, fmt.Errorf("tree %s: %w", branch.Commit.SHA, err)
	}
	if tree.Truncated {
		c.logger.Warn("repository tree listing truncated by API", "owner", owner, "name", name)
	}

	blobs := make([]TreeEntry, 0, len(tree.Tree))
	for _, entry := range tree.Tree {
		if entry.Type == "blob" {
			blobs = append(blobs, entry)
		}
	}

	c.logger.Info("listed repository files",
		"owner", owner,
		"name", name,
		"branch", meta.DefaultBranch,
		"files", len(blobs))
	return blobs, nil
}

// DownloadBlob fetches and decodes the content of one tree entry.
func (c *Client) DownloadBlob(ctx context.Context, entry TreeEntry) ([]byte, error) {
	var blob struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := c.getJSON(ctx, entry.URL, &blob); err != nil {
		return nil, fmt.Errorf("blob %s: %w", entry.Path, err)
	}

	switch blob.Encoding {
	case "base64":
		// The API wraps base64 content in newlines.
		cleaned := strings.Map(func(r rune) rune {
			if r == '\n' || r == '\r' {
				return -1
			}
			return r
		}, blob.Content)
		data, err := base64.StdEncoding.DecodeString(cleaned)
		if err != nil {
			return nil, fmt.Errorf("blob %s: decode base64: %w", entry.Path, ErrFetch)
		}
		return data, nil
	case "utf-8", "":
		return []byte(blob.Content), nil
	default:
		return nil, fmt.Errorf("blob %s: unsupported encoding %q: %w", entry.Path, blob.Encoding, ErrFetch)
	}
}

// getJSON performs an authenticated GET and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, endpoint string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrFetch, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: not found", ErrFetch)
	case resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		return fmt.Errorf("%w: rate limited until %s", ErrFetch, resp.Header.Get("X-RateLimit-Reset"))
	default:
		return fmt.Errorf("%w: %s - %s", ErrFetch, resp.Status, strings.TrimSpace(string(body)))
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("%w: unmarshal response: %v", ErrFetch, err)
	}
	return nil
}
