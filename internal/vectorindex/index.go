// Package vectorindex embeds fragments and stores them for similarity
// search, scoped per conversation thread.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/repochat/repochat/internal/llm"
	"github.com/repochat/repochat/internal/metrics"
	"github.com/repochat/repochat/internal/models"
	"github.com/repochat/repochat/internal/splitter"
)

// ErrIndex indicates fragments could not be embedded or stored after the
// configured retries.
var ErrIndex = errors.New("fragment indexing failed")

// Embedder turns texts into vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Store persists and searches fragments.
type Store interface {
	UpsertFragments(ctx context.Context, fragments []models.FragmentInput) error
	SearchFragments(ctx context.Context, threadID string, embedding []float32, limit int) ([]models.ScoredFragment, error)
}

// Config controls batching and retry behavior.
type Config struct {
	// BatchSize is the number of fragments embedded and written per batch.
	BatchSize int
	// MaxRetries bounds retry attempts per batch. Fatal provider errors
	// (auth, quota) are never retried.
	MaxRetries int
	// Metrics optionally records search timings.
	Metrics *metrics.Collector
}

// Index writes fragments into the vector store and searches them.
type Index struct {
	embedder Embedder
	store    Store
	cfg      Config
	logger   *slog.Logger
}

// New creates an index. Zero config values fall back to sane defaults.
func New(embedder Embedder, store Store, cfg Config, log *slog.Logger) *Index {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if log == nil {
		log = slog.Default()
	}
	return &Index{embedder: embedder, store: store, cfg: cfg, logger: log}
}

// Add embeds and stores the fragments of one file under a thread. Writes
// are idempotent per (thread, path, position), so re-adding a file
// overwrites its previous fragments. Returns the number of fragments
// indexed.
func (ix *Index) Add(ctx context.Context, threadID string, fragments []splitter.Fragment) (int, error) {
	if len(fragments) == 0 {
		return 0, nil
	}

	indexed := 0
	for start := 0; start < len(fragments); start += ix.cfg.BatchSize {
		end := start + ix.cfg.BatchSize
		if end > len(fragments) {
			end = len(fragments)
		}
		batch := fragments[start:end]

		if err := ix.addBatch(ctx, threadID, batch); err != nil {
			return indexed, err
		}
		indexed += len(batch)
	}
	return indexed, nil
}

func (ix *Index) addBatch(ctx context.Context, threadID string, batch []splitter.Fragment) error {
	texts := make([]string, len(batch))
	for i, frag := range batch {
		texts[i] = frag.Content
	}

	var lastErr error
	backoff := time.Second
	for attempt := 0; attempt <= ix.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			ix.logger.Warn("retrying fragment batch",
				"attempt", attempt,
				"batch_size", len(batch),
				"error", lastErr)
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrIndex, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		vectors, err := ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			lastErr = err
			if errors.Is(err, llm.ErrFatalAPI) {
				return fmt.Errorf("%w: %v", ErrIndex, err)
			}
			continue
		}

		inputs := make([]models.FragmentInput, len(batch))
		for i, frag := range batch {
			inputs[i] = models.FragmentInput{
				ThreadID:  threadID,
				Path:      frag.Path,
				Position:  frag.Position,
				Language:  string(frag.Language),
				Content:   frag.Content,
				Embedding: vectors[i],
			}
		}

		if err := ix.store.UpsertFragments(ctx, inputs); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("%w: %v", ErrIndex, lastErr)
}

// Search embeds the query and returns the most similar fragments of the
// thread. A thread with nothing indexed yields an empty slice.
func (ix *Index) Search(ctx context.Context, threadID, query string, topK int) ([]models.ScoredFragment, error) {
	if topK <= 0 {
		return []models.ScoredFragment{}, nil
	}

	start := time.Now()
	defer func() { ix.cfg.Metrics.RecordTiming(metrics.OpSearch, time.Since(start)) }()

	vectors, err := ix.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: expected 1 vector, got %d", len(vectors))
	}

	results, err := ix.store.SearchFragments(ctx, threadID, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("search fragments: %w", err)
	}
	if results == nil {
		results = []models.ScoredFragment{}
	}
	return results, nil
}
