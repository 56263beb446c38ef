package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/repochat/repochat/internal/llm"
	"github.com/repochat/repochat/internal/models"
	"github.com/repochat/repochat/internal/splitter"
)

type fakeEmbedder struct {
	batches   [][]string
	failUntil int // fail the first N calls
	fatal     bool
	calls     int
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	f.batches = append(f.batches, texts)
	if f.calls <= f.failUntil {
		if f.fatal {
			return nil, fmt.Errorf("embed: %w", llm.ErrFatalAPI)
		}
		return nil, errors.New("transient embedding error")
	}
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{float32(len(texts[i]))}
	}
	return vectors, nil
}

type fakeStore struct {
	upserts [][]models.FragmentInput
	results []models.ScoredFragment
	err     error
}

func (f *fakeStore) UpsertFragments(_ context.Context, fragments []models.FragmentInput) error {
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, fragments)
	return nil
}

func (f *fakeStore) SearchFragments(context.Context, string, []float32, int) ([]models.ScoredFragment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func someFragments(n int) []splitter.Fragment {
	fragments := make([]splitter.Fragment, n)
	for i := range fragments {
		fragments[i] = splitter.Fragment{
			Path:     "main.go",
			Position: i,
			Language: splitter.LangGo,
			Content:  fmt.Sprintf("filename: main.go\nchunk %d", i),
		}
	}
	return fragments
}

func TestAdd_Batching(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := &fakeStore{}
	index := New(embedder, store, Config{BatchSize: 4}, nil)

	count, err := index.Add(t.Context(), "thread-1", someFragments(10))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if count != 10 {
		t.Errorf("Expected 10 indexed, got %d", count)
	}

	// 10 fragments at batch size 4: batches of 4, 4, 2.
	if len(embedder.batches) != 3 {
		t.Fatalf("Expected 3 embed batches, got %d", len(embedder.batches))
	}
	if len(embedder.batches[2]) != 2 {
		t.Errorf("Last batch should have 2 texts, got %d", len(embedder.batches[2]))
	}
	if len(store.upserts) != 3 {
		t.Fatalf("Expected 3 upsert batches, got %d", len(store.upserts))
	}

	first := store.upserts[0][0]
	if first.ThreadID != "thread-1" || first.Path != "main.go" || first.Position != 0 {
		t.Errorf("Fragment identity wrong: %+v", first)
	}
	if len(first.Embedding) == 0 {
		t.Error("Fragment missing embedding")
	}
}

func TestAdd_EmptyInput(t *testing.T) {
	index := New(&fakeEmbedder{}, &fakeStore{}, Config{}, nil)
	count, err := index.Add(t.Context(), "thread-1", nil)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 indexed, got %d", count)
	}
}

func TestAdd_RetriesTransientErrors(t *testing.T) {
	embedder := &fakeEmbedder{failUntil: 2}
	store := &fakeStore{}
	index := New(embedder, store, Config{BatchSize: 8, MaxRetries: 3}, nil)

	count, err := index.Add(t.Context(), "thread-1", someFragments(3))
	if err != nil {
		t.Fatalf("Add should succeed after retries: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 indexed, got %d", count)
	}
	if embedder.calls != 3 {
		t.Errorf("Expected 3 embed attempts, got %d", embedder.calls)
	}
}

func TestAdd_ExhaustedRetries(t *testing.T) {
	embedder := &fakeEmbedder{failUntil: 10}
	index := New(embedder, &fakeStore{}, Config{BatchSize: 8, MaxRetries: 2}, nil)

	_, err := index.Add(t.Context(), "thread-1", someFragments(3))
	if !errors.Is(err, ErrIndex) {
		t.Errorf("Expected ErrIndex, got %v", err)
	}
	// Initial attempt plus two retries.
	if embedder.calls != 3 {
		t.Errorf("Expected 3 embed attempts, got %d", embedder.calls)
	}
}

func TestAdd_FatalErrorNotRetried(t *testing.T) {
	embedder := &fakeEmbedder{failUntil: 10, fatal: true}
	index := New(embedder, &fakeStore{}, Config{BatchSize: 8, MaxRetries: 5}, nil)

	_, err := index.Add(t.Context(), "thread-1", someFragments(3))
	if !errors.Is(err, ErrIndex) {
		t.Errorf("Expected ErrIndex, got %v", err)
	}
	if embedder.calls != 1 {
		t.Errorf("Fatal error should abort immediately, got %d attempts", embedder.calls)
	}
}

func TestSearch(t *testing.T) {
	t.Run("returns store results", func(t *testing.T) {
		store := &fakeStore{results: []models.ScoredFragment{
			{Fragment: models.Fragment{Path: "server.go"}, Score: 0.9},
		}}
		index := New(&fakeEmbedder{}, store, Config{}, nil)

		results, err := index.Search(t.Context(), "thread-1", "http server", 5)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(results) != 1 || results[0].Path != "server.go" {
			t.Errorf("Unexpected results: %+v", results)
		}
	})

	t.Run("empty index yields empty slice", func(t *testing.T) {
		index := New(&fakeEmbedder{}, &fakeStore{results: nil}, Config{}, nil)

		results, err := index.Search(t.Context(), "thread-1", "anything", 5)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if results == nil || len(results) != 0 {
			t.Errorf("Expected empty slice, got %v", results)
		}
	})

	t.Run("zero topK yields empty slice", func(t *testing.T) {
		embedder := &fakeEmbedder{}
		index := New(embedder, &fakeStore{}, Config{}, nil)

		results, err := index.Search(t.Context(), "thread-1", "anything", 0)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(results) != 0 {
			t.Errorf("Expected no results, got %v", results)
		}
		if embedder.calls != 0 {
			t.Error("Zero topK should not embed the query")
		}
	})
}
