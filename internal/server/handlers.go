package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/repochat/repochat/internal/db"
	"github.com/repochat/repochat/internal/models"
	"github.com/repochat/repochat/internal/service"
)

// assistantResponse is the wire form of an assistant record.
type assistantResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Model string `json:"model"`
}

// repoResponse is the wire form of an ingestion job.
type repoResponse struct {
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

// resultResponse is the wire form of a thread's run state.
type resultResponse struct {
	ThreadID  string  `json:"thread_id"`
	RunStatus string  `json:"run_status"`
	Reply     *string `json:"reply,omitempty"`
	Error     *string `json:"error,omitempty"`
}

func newRepoResponse(repo *models.Repo) repoResponse {
	return repoResponse{
		ThreadID:       repo.ThreadID,
		Owner:          repo.Owner,
		Name:           repo.Name,
		URL:            repo.URL,
		Status:         string(repo.Status),
		Error:          repo.Error,
		FileCount:      repo.FileCount,
		FilesProcessed: repo.FilesProcessed,
		FragmentCount:  repo.FragmentCount,
		CompletedAt:    repo.CompletedAt,
	}
}

func newResultResponse(threadID string, thread *models.Thread) resultResponse {
	return resultResponse{
		ThreadID:  threadID,
		RunStatus: string(thread.RunStatus),
		Reply:     thread.Reply,
		Error:     thread.Error,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.stats.Snapshot())
}

func (s *Server) handleAssistantCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	}
	if !s.readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	created, err := s.assistants.UpsertAssistant(r.Context(), req.Name, req.Model)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	id, err := models.RecordIDString(created.ID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, assistantResponse{ID: id, Name: created.Name, Model: created.Model})
}

func (s *Server) handleRepoProcess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AssistantID string `json:"assistant_id"`
		URL         string `json:"url"`
		ThreadID    string `json:"thread_id"`
	}
	if !s.readJSON(w, r, &req) {
		return
	}

	// A thread ID re-runs an existing job: completed and in-flight jobs
	// come back unchanged, failed jobs are re-ingested.
	if req.ThreadID != "" {
		repo, err := s.ingestor.Restart(r.Context(), req.ThreadID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusAccepted, newRepoResponse(repo))
		return
	}

	if req.AssistantID == "" || req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "assistant_id and url are required")
		return
	}

	if _, err := s.assistants.GetAssistant(r.Context(), req.AssistantID); err != nil {
		s.writeServiceError(w, err)
		return
	}

	repo, err := s.ingestor.Start(r.Context(), req.AssistantID, req.URL)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, newRepoResponse(repo))
}

func (s *Server) handleRepoCheck(w http.ResponseWriter, r *http.Request) {
	threadID := r.URL.Query().Get("thread_id")
	if threadID == "" {
		s.writeError(w, http.StatusBadRequest, "thread_id is required")
		return
	}

	repo, err := s.ingestor.Check(r.Context(), threadID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newRepoResponse(repo))
}

func (s *Server) handleConversationMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ThreadID string `json:"thread_id"`
		Message  string `json:"message"`
	}
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.ThreadID == "" || strings.TrimSpace(req.Message) == "" {
		s.writeError(w, http.StatusBadRequest, "thread_id and message are required")
		return
	}

	thread, err := s.converser.Send(r.Context(), req.ThreadID, req.Message)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, newResultResponse(req.ThreadID, thread))
}

func (s *Server) handleConversationResult(w http.ResponseWriter, r *http.Request) {
	threadID := r.URL.Query().Get("thread_id")
	if threadID == "" {
		s.writeError(w, http.StatusBadRequest, "thread_id is required")
		return
	}

	thread, err := s.converser.Result(r.Context(), threadID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newResultResponse(threadID, thread))
}

func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps service errors onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrTurnInProgress), errors.Is(err, service.ErrRepoNotReady):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}
