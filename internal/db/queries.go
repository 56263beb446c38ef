// Package db provides SurrealDB query functions for RepoChat records.
package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/repochat/repochat/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// recordKey derives a deterministic record key from identity parts.
// Parts are length-prefixed before hashing so ("a", "bc") and ("ab", "c")
// produce different keys.
func recordKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%d:", len(p))
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// =============================================================================
// ASSISTANTS
// =============================================================================

// UpsertAssistant creates an assistant by name or returns the existing one.
// The record key is derived from the name, so repeated creates with the
// same name resolve to the same record.
func (c *Client) UpsertAssistant(ctx context.Context, name, model string) (*models.Assistant, error) {
	sql := `
		UPSERT type::record("assistant", $id) SET
			name = $name,
			model = $model
		RETURN AFTER
	`

	results, err := surrealdb.Query[[]models.Assistant](ctx, c.db, sql, map[string]any{
		"id":    recordKey(name),
		"name":  name,
		"model": model,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert assistant: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("upsert assistant: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// GetAssistant retrieves an assistant by ID. Returns ErrNotFound if it
// does not exist.
func (c *Client) GetAssistant(ctx context.Context, id string) (*models.Assistant, error) {
	results, err := surrealdb.Query[[]models.Assistant](ctx, c.db, `
		SELECT * FROM type::record("assistant", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get assistant: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("assistant %s: %w", id, ErrNotFound)
	}
	return &(*results)[0].Result[0], nil
}

// =============================================================================
// THREADS
// =============================================================================

// CreateThread creates a new conversation thread for an assistant. The
// thread starts with no pending run, so its status reads as completed.
func (c *Client) CreateThread(ctx context.Context, assistantID string) (*models.Thread, error) {
	sql := `
		CREATE type::record("thread", $id) SET
			assistant_id = $assistant_id,
			run_status = $run_status
		RETURN AFTER
	`

	results, err := surrealdb.Query[[]models.Thread](ctx, c.db, sql, map[string]any{
		"id":           uuid.NewString(),
		"assistant_id": assistantID,
		"run_status":   string(models.RunStatusCompleted),
	})
	if err != nil {
		return nil, fmt.Errorf("create thread: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create thread: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// GetThread retrieves a thread by ID. Returns ErrNotFound if it does not
// exist.
func (c *Client) GetThread(ctx context.Context, threadID string) (*models.Thread, error) {
	results, err := surrealdb.Query[[]models.Thread](ctx, c.db, `
		SELECT * FROM type::record("thread", $id)
	`, map[string]any{"id": threadID})
	if err != nil {
		return nil, fmt.Errorf("get thread: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}
	return &(*results)[0].Result[0], nil
}

// UpdateThreadRun updates the run state of a thread's current turn.
// Reply and errMsg may be nil to clear the previous turn's values.
func (c *Client) UpdateThreadRun(ctx context.Context, threadID string, status models.RunStatus, reply, errMsg *string) error {
	sql := `
		UPDATE type::record("thread", $id) SET
			run_status = $run_status,
			reply = $reply,
			error = $error,
			updated_at = time::now()
	`

	_, err := surrealdb.Query[any](ctx, c.db, sql, map[string]any{
		"id":         threadID,
		"run_status": string(status),
		"reply":      reply,
		"error":      errMsg,
	})
	if err != nil {
		return fmt.Errorf("update thread run: %w", wrapQueryError(err))
	}
	return nil
}

// =============================================================================
// MESSAGES
// =============================================================================

// CreateMessage appends a message to a thread's history.
func (c *Client) CreateMessage(ctx context.Context, threadID, role, content string) (*models.Message, error) {
	sql := `
		CREATE message SET
			thread_id = $thread_id,
			role = $role,
			content = $content
		RETURN AFTER
	`

	results, err := surrealdb.Query[[]models.Message](ctx, c.db, sql, map[string]any{
		"thread_id": threadID,
		"role":      role,
		"content":   content,
	})
	if err != nil {
		return nil, fmt.Errorf("create message: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create message: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// ListMessages returns a thread's messages in chronological order.
func (c *Client) ListMessages(ctx context.Context, threadID string) ([]models.Message, error) {
	results, err := surrealdb.Query[[]models.Message](ctx, c.db, `
		SELECT * FROM message WHERE thread_id = $thread_id ORDER BY created_at ASC
	`, map[string]any{"thread_id": threadID})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Message{}, nil
	}
	return (*results)[0].Result, nil
}

// =============================================================================
// REPOS
// =============================================================================

// RepoParams are the fields required to create a repo ingestion record.
type RepoParams struct {
	Owner       string
	Name        string
	URL         string
	AssistantID string
	ThreadID    string
}

// CreateRepo creates a repo ingestion record in the processing state.
// The record key is derived from the thread ID; the unique thread index
// rejects a second repo on the same thread.
func (c *Client) CreateRepo(ctx context.Context, params RepoParams) (*models.Repo, error) {
	sql := `
		CREATE type::record("repo", $id) SET
			owner = $owner,
			name = $name,
			url = $url,
			assistant_id = $assistant_id,
			thread_id = $thread_id,
			status = $status
		RETURN AFTER
	`

	results, err := surrealdb.Query[[]models.Repo](ctx, c.db, sql, map[string]any{
		"id":           recordKey(params.ThreadID),
		"owner":        params.Owner,
		"name":         params.Name,
		"url":          params.URL,
		"assistant_id": params.AssistantID,
		"thread_id":    params.ThreadID,
		"status":       string(models.RepoStatusProcessing),
	})
	if err != nil {
		return nil, fmt.Errorf("create repo: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create repo: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// GetRepoByThread retrieves the repo record bound to a thread. Returns
// ErrNotFound if no ingestion was ever started for the thread.
func (c *Client) GetRepoByThread(ctx context.Context, threadID string) (*models.Repo, error) {
	results, err := surrealdb.Query[[]models.Repo](ctx, c.db, `
		SELECT * FROM repo WHERE thread_id = $thread_id LIMIT 1
	`, map[string]any{"thread_id": threadID})
	if err != nil {
		return nil, fmt.Errorf("get repo by thread: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("repo for thread %s: %w", threadID, ErrNotFound)
	}
	return &(*results)[0].Result[0], nil
}

// SetRepoFileCount records the total file count once the tree listing is
// known.
func (c *Client) SetRepoFileCount(ctx context.Context, threadID string, fileCount int) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE repo SET file_count = $file_count WHERE thread_id = $thread_id
	`, map[string]any{"thread_id": threadID, "file_count": fileCount})
	if err != nil {
		return fmt.Errorf("set repo file count: %w", wrapQueryError(err))
	}
	return nil
}

// UpdateRepoProgress records ingestion progress counters.
func (c *Client) UpdateRepoProgress(ctx context.Context, threadID string, filesProcessed, fragmentCount int) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE repo SET
			files_processed = $files_processed,
			fragment_count = $fragment_count
		WHERE thread_id = $thread_id
	`, map[string]any{
		"thread_id":       threadID,
		"files_processed": filesProcessed,
		"fragment_count":  fragmentCount,
	})
	if err != nil {
		return fmt.Errorf("update repo progress: %w", wrapQueryError(err))
	}
	return nil
}

// UpdateRepoStatus transitions a repo's ingestion status. Terminal
// statuses also stamp completed_at.
func (c *Client) UpdateRepoStatus(ctx context.Context, threadID string, status models.RepoStatus, errMsg *string) error {
	sql := `
		UPDATE repo SET
			status = $status,
			error = $error
		WHERE thread_id = $thread_id
	`
	if status.Terminal() {
		sql = `
			UPDATE repo SET
				status = $status,
				error = $error,
				completed_at = time::now()
			WHERE thread_id = $thread_id
		`
	}

	_, err := surrealdb.Query[any](ctx, c.db, sql, map[string]any{
		"thread_id": threadID,
		"status":    string(status),
		"error":     errMsg,
	})
	if err != nil {
		return fmt.Errorf("update repo status: %w", wrapQueryError(err))
	}
	return nil
}

// =============================================================================
// FRAGMENTS
// =============================================================================

// UpsertFragments writes fragments with deterministic record keys derived
// from (thread_id, path, position). Re-indexing the same file overwrites
// its fragments instead of duplicating them.
func (c *Client) UpsertFragments(ctx context.Context, fragments []models.FragmentInput) error {
	if len(fragments) == 0 {
		return nil
	}

	sql := `
		UPSERT type::record("fragment", $id) SET
			thread_id = $thread_id,
			path = $path,
			position = $position,
			language = $language,
			content = $content,
			embedding = $embedding
	`

	for _, f := range fragments {
		_, err := surrealdb.Query[any](ctx, c.db, sql, map[string]any{
			"id":        recordKey(f.ThreadID, f.Path, fmt.Sprintf("%d", f.Position)),
			"thread_id": f.ThreadID,
			"path":      f.Path,
			"position":  f.Position,
			"language":  f.Language,
			"content":   f.Content,
			"embedding": f.Embedding,
		})
		if err != nil {
			return fmt.Errorf("upsert fragment %s[%d]: %w", f.Path, f.Position, wrapQueryError(err))
		}
	}
	return nil
}

// SearchFragments performs HNSW cosine similarity search over a thread's
// fragments. A thread with no indexed fragments yields an empty slice.
func (c *Client) SearchFragments(ctx context.Context, threadID string, embedding []float32, limit int) ([]models.ScoredFragment, error) {
	if limit <= 0 {
		return []models.ScoredFragment{}, nil
	}

	// HNSW operator with ef=40 for better recall. The K parameter must be
	// a literal, so it goes through Sprintf.
	sql := fmt.Sprintf(`
		SELECT *, vector::similarity::cosine(embedding, $emb) AS score
		FROM fragment
		WHERE thread_id = $thread_id AND embedding <|%d,40|> $emb
		ORDER BY score DESC
		LIMIT $limit
	`, limit)

	results, err := surrealdb.Query[[]models.ScoredFragment](ctx, c.db, sql, map[string]any{
		"thread_id": threadID,
		"emb":       embedding,
		"limit":     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("search fragments: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.ScoredFragment{}, nil
	}
	return (*results)[0].Result, nil
}

// CountFragments returns the number of fragments indexed for a thread.
func (c *Client) CountFragments(ctx context.Context, threadID string) (int, error) {
	results, err := surrealdb.Query[[]struct {
		Count int `json:"count"`
	}](ctx, c.db, `
		SELECT count() AS count FROM fragment WHERE thread_id = $thread_id GROUP ALL
	`, map[string]any{"thread_id": threadID})
	if err != nil {
		return 0, fmt.Errorf("count fragments: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0].Count, nil
}

// DeleteFragments removes all fragments indexed for a thread. Used when
// re-ingesting a repository from scratch.
func (c *Client) DeleteFragments(ctx context.Context, threadID string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		DELETE fragment WHERE thread_id = $thread_id
	`, map[string]any{"thread_id": threadID})
	if err != nil {
		return fmt.Errorf("delete fragments: %w", err)
	}
	return nil
}
