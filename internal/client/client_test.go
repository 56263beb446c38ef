package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/assistant/create", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name  string `json:"name"`
			Model string `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(Assistant{ID: "a-1", Name: req.Name, Model: req.Model})
	})
	mux.HandleFunc("POST /api/v1/repo/process", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(Repo{ThreadID: "t-1", Owner: "acme", Name: "widget", Status: "processing"})
	})
	mux.HandleFunc("GET /api/v1/repo/check", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("thread_id") != "t-1" {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "record not found"})
			return
		}
		json.NewEncoder(w).Encode(Repo{ThreadID: "t-1", Status: "completed", FilesProcessed: 3, FileCount: 3})
	})
	mux.HandleFunc("GET /api/v1/conversation/watch", func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		reply := "the answer"
		conn.WriteJSON(Result{ThreadID: "t-1", RunStatus: "in_progress"})
		conn.WriteJSON(Result{ThreadID: "t-1", RunStatus: "completed", Reply: &reply})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestCreateAssistant(t *testing.T) {
	c := New(fakeServer(t).URL)
	assistant, err := c.CreateAssistant(t.Context(), "helper", "gpt-4o")
	if err != nil {
		t.Fatalf("CreateAssistant failed: %v", err)
	}
	if assistant.ID != "a-1" || assistant.Name != "helper" {
		t.Errorf("Unexpected assistant: %+v", assistant)
	}
}

func TestProcessAndCheck(t *testing.T) {
	c := New(fakeServer(t).URL)

	repo, err := c.ProcessRepo(t.Context(), "a-1", "acme/widget")
	if err != nil {
		t.Fatalf("ProcessRepo failed: %v", err)
	}
	if repo.ThreadID != "t-1" || repo.Status != "processing" {
		t.Errorf("Unexpected repo: %+v", repo)
	}

	checked, err := c.CheckRepo(t.Context(), "t-1")
	if err != nil {
		t.Fatalf("CheckRepo failed: %v", err)
	}
	if checked.Status != "completed" {
		t.Errorf("Unexpected status: %q", checked.Status)
	}
}

func TestServerErrorSurfaced(t *testing.T) {
	c := New(fakeServer(t).URL)
	_, err := c.CheckRepo(t.Context(), "missing")
	if err == nil || !strings.Contains(err.Error(), "record not found") {
		t.Errorf("Expected server error message, got %v", err)
	}
}

func TestWatchResult(t *testing.T) {
	c := New(fakeServer(t).URL)

	var updates []string
	result, err := c.WatchResult(t.Context(), "t-1", func(r Result) {
		updates = append(updates, r.RunStatus)
	})
	if err != nil {
		t.Fatalf("WatchResult failed: %v", err)
	}
	if result.RunStatus != "completed" || result.Reply == nil || *result.Reply != "the answer" {
		t.Errorf("Unexpected terminal result: %+v", result)
	}
	if len(updates) != 2 || updates[0] != "in_progress" {
		t.Errorf("Unexpected updates: %v", updates)
	}
}

func TestDefaultEndpoint(t *testing.T) {
	t.Setenv("REPOCHAT_SERVER_URL", "")
	c := New("")
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("Unexpected default endpoint: %q", c.baseURL)
	}
}
