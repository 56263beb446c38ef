package github

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantOwner string
		wantRepo  string
		wantErr   bool
	}{
		{"https url", "https://github.com/golang/go", "golang", "go", false},
		{"trailing slash", "https://github.com/golang/go/", "golang", "go", false},
		{"git suffix", "https://github.com/golang/go.git", "golang", "go", false},
		{"shorthand", "golang/go", "golang", "go", false},
		{"missing name", "https://github.com/golang", "", "", true},
		{"empty", "", "", "", true},
		{"too many segments", "github.com/a/b/c", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, name, err := ParseRepoURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRepoURL(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if owner != tt.wantOwner || name != tt.wantRepo {
				t.Errorf("ParseRepoURL(%q) = (%q, %q), want (%q, %q)", tt.input, owner, name, tt.wantOwner, tt.wantRepo)
			}
		})
	}
}

// fakeGitHub serves the metadata -> branch -> tree -> blob chain for a
// single repository with two files.
func fakeGitHub(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	var server *httptest.Server

	mux.HandleFunc("/repos/acme/widget", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"full_name":      "acme/widget",
			"default_branch": "main",
			"html_url":       "https://github.com/acme/widget",
		})
	})
	mux.HandleFunc("/repos/acme/widget/branches/main", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"commit": map[string]any{"sha": "abc123"},
		})
	})
	mux.HandleFunc("/repos/acme/widget/git/trees/abc123", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"tree": []map[string]any{
				{"path": "main.go", "type": "blob", "sha": "b1", "url": server.URL + "/blobs/b1", "size": 20},
				{"path": "docs", "type": "tree", "sha": "t1", "url": server.URL + "/trees/t1"},
				{"path": "docs/readme.md", "type": "blob", "sha": "b2", "url": server.URL + "/blobs/b2", "size": 10},
			},
			"truncated": false,
		})
	})
	mux.HandleFunc("/blobs/b1", func(w http.ResponseWriter, r *http.Request) {
		// GitHub inserts newlines into base64 payloads.
		encoded := base64.StdEncoding.EncodeToString([]byte("package main\n"))
		json.NewEncoder(w).Encode(map[string]any{
			"content":  encoded[:8] + "\n" + encoded[8:],
			"encoding": "base64",
		})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestListFiles(t *testing.T) {
	server := fakeGitHub(t)
	client := NewClient(server.URL, "test-token", nil)

	files, err := client.ListFiles(t.Context(), "acme", "widget")
	if err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}

	// Only blobs, not tree entries.
	if len(files) != 2 {
		t.Fatalf("Expected 2 files, got %d", len(files))
	}
	if files[0].Path != "main.go" || files[1].Path != "docs/readme.md" {
		t.Errorf("Unexpected paths: %q, %q", files[0].Path, files[1].Path)
	}
}

func TestDownloadBlob(t *testing.T) {
	server := fakeGitHub(t)
	client := NewClient(server.URL, "test-token", nil)

	data, err := client.DownloadBlob(t.Context(), TreeEntry{
		Path: "main.go",
		URL:  server.URL + "/blobs/b1",
	})
	if err != nil {
		t.Fatalf("DownloadBlob failed: %v", err)
	}
	if string(data) != "package main\n" {
		t.Errorf("Expected decoded content, got %q", string(data))
	}
}

func TestFetchErrors(t *testing.T) {
	server := fakeGitHub(t)

	t.Run("unknown repository", func(t *testing.T) {
		client := NewClient(server.URL, "test-token", nil)
		_, err := client.GetMetadata(t.Context(), "acme", "missing")
		if !errors.Is(err, ErrFetch) {
			t.Errorf("Expected ErrFetch, got %v", err)
		}
	})

	t.Run("bad credentials", func(t *testing.T) {
		client := NewClient(server.URL, "wrong-token", nil)
		_, err := client.GetMetadata(t.Context(), "acme", "widget")
		if !errors.Is(err, ErrFetch) {
			t.Errorf("Expected ErrFetch, got %v", err)
		}
	})

	t.Run("unreachable server", func(t *testing.T) {
		client := NewClient("http://127.0.0.1:1", "", nil)
		_, err := client.GetMetadata(t.Context(), "acme", "widget")
		if !errors.Is(err, ErrFetch) {
			t.Errorf("Expected ErrFetch, got %v", err)
		}
	})
}
