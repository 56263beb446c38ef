// Package models defines data structures for the RepoChat database.
package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// RepoStatus represents the state of a repository ingestion job.
type RepoStatus string

const (
	RepoStatusProcessing RepoStatus = "processing"
	RepoStatusCompleted  RepoStatus = "completed"
	RepoStatusFailed     RepoStatus = "failed"
)

// Terminal reports whether the status is final.
func (s RepoStatus) Terminal() bool {
	return s == RepoStatusCompleted || s == RepoStatusFailed
}

// Repo represents a repository ingestion job. One repo record exists per
// conversation thread; the thread ID is the stable external handle.
type Repo struct {
	ID             surrealmodels.RecordID `json:"id"`
	Owner          string                 `json:"owner"`
	Name           string                 `json:"name"`
	URL            string                 `json:"url"`
	AssistantID    string                 `json:"assistant_id"`
	ThreadID       string                 `json:"thread_id"`
	Status         RepoStatus             `json:"status"`
	Error          *string                `json:"error,omitempty"`
	FileCount      int                    `json:"file_count"`
	FilesProcessed int                    `json:"files_processed"`
	FragmentCount  int                    `json:"fragment_count"`
	StartedAt      time.Time              `json:"started_at"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
}
