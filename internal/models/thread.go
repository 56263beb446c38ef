package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// RunStatus represents the state of the active turn on a thread.
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusFailed         RunStatus = "failed"
)

// Terminal reports whether the status is final for the current turn.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Thread represents a conversation thread. The thread record carries the
// run state of its most recent turn; history lives in message records.
type Thread struct {
	ID          surrealmodels.RecordID `json:"id"`
	AssistantID string                 `json:"assistant_id"`
	RunStatus   RunStatus              `json:"run_status"`
	Reply       *string                `json:"reply,omitempty"`
	Error       *string                `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// Message represents a single chat message within a thread.
type Message struct {
	ID        surrealmodels.RecordID `json:"id"`
	ThreadID  string                 `json:"thread_id"`
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	CreatedAt time.Time              `json:"created_at"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
