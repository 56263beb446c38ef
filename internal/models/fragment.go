package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Fragment is a bounded, path-tagged slice of a file's text used as a
// retrieval unit. Content is prefixed with the source path so search
// results are self-describing without a join.
type Fragment struct {
	ID        surrealmodels.RecordID `json:"id"`
	ThreadID  string                 `json:"thread_id"`
	Path      string                 `json:"path"`
	Position  int                    `json:"position"`
	Language  string                 `json:"language"`
	Content   string                 `json:"content"`
	Embedding []float32              `json:"embedding"`
	CreatedAt time.Time              `json:"created_at"`
}

// FragmentInput is the input structure for indexing a fragment.
// Identity is (thread_id, path, position); re-indexing the same triple
// overwrites instead of duplicating.
type FragmentInput struct {
	ThreadID  string    `json:"thread_id"`
	Path      string    `json:"path"`
	Position  int       `json:"position"`
	Language  string    `json:"language"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding"`
}

// ScoredFragment is a fragment with its similarity score from a search.
type ScoredFragment struct {
	Fragment
	Score float64 `json:"score"`
}
