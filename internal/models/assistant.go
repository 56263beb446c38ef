package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Assistant represents a named assistant configuration. Assistants are
// created once by name and reused across repositories.
type Assistant struct {
	ID        surrealmodels.RecordID `json:"id"`
	Name      string                 `json:"name"`
	Model     string                 `json:"model"`
	CreatedAt time.Time              `json:"created_at"`
}
