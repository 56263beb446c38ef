// Package service provides the orchestration logic for RepoChat:
// repository ingestion jobs and conversation turns.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/repochat/repochat/internal/db"
	"github.com/repochat/repochat/internal/github"
	"github.com/repochat/repochat/internal/metrics"
	"github.com/repochat/repochat/internal/models"
	"github.com/repochat/repochat/internal/splitter"
)

// Fetcher lists and downloads repository files.
type Fetcher interface {
	ListFiles(ctx context.Context, owner, name string) ([]github.TreeEntry, error)
	DownloadBlob(ctx context.Context, entry github.TreeEntry) ([]byte, error)
}

// Indexer embeds and stores fragments under a thread.
type Indexer interface {
	Add(ctx context.Context, threadID string, fragments []splitter.Fragment) (int, error)
}

// IngestStore is the persistence surface the ingestion service needs.
type IngestStore interface {
	CreateThread(ctx context.Context, assistantID string) (*models.Thread, error)
	CreateRepo(ctx context.Context, params db.RepoParams) (*models.Repo, error)
	GetRepoByThread(ctx context.Context, threadID string) (*models.Repo, error)
	SetRepoFileCount(ctx context.Context, threadID string, fileCount int) error
	UpdateRepoProgress(ctx context.Context, threadID string, filesProcessed, fragmentCount int) error
	UpdateRepoStatus(ctx context.Context, threadID string, status models.RepoStatus, errMsg *string) error
	DeleteFragments(ctx context.Context, threadID string) error
}

// IngestOptions configures ingestion jobs.
type IngestOptions struct {
	// Concurrency sets the number of parallel file workers (default 4).
	Concurrency int
	// Metrics optionally records per-file ingestion timings.
	Metrics *metrics.Collector
}

// IngestService runs repository ingestion jobs: fetch the tree, chunk
// each file, and index the fragments under the job's thread.
type IngestService struct {
	store   IngestStore
	fetcher Fetcher
	chunker *splitter.Chunker
	index   Indexer
	opts    IngestOptions
	logger  *slog.Logger

	// threads serializes jobs per thread ID so a processing job is never
	// started twice.
	threads sync.Map // thread ID -> *sync.Mutex
}

// NewIngestService creates an ingestion service.
func NewIngestService(store IngestStore, fetcher Fetcher, chunker *splitter.Chunker, index Indexer, opts IngestOptions, log *slog.Logger) *IngestService {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if log == nil {
		log = slog.Default()
	}
	return &IngestService{
		store:   store,
		fetcher: fetcher,
		chunker: chunker,
		index:   index,
		opts:    opts,
		logger:  log,
	}
}

func (s *IngestService) threadLock(threadID string) *sync.Mutex {
	mu, _ := s.threads.LoadOrStore(threadID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Start begins ingesting a repository. A fresh conversation thread is
// created for the job and returned with the repo record; processing runs
// in the background and is observed through Check.
func (s *IngestService) Start(ctx context.Context, assistantID, repoURL string) (*models.Repo, error) {
	owner, name, err := github.ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	thread, err := s.store.CreateThread(ctx, assistantID)
	if err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	threadID := models.MustRecordIDString(thread.ID)

	repo, err := s.store.CreateRepo(ctx, db.RepoParams{
		Owner:       owner,
		Name:        name,
		URL:         repoURL,
		AssistantID: assistantID,
		ThreadID:    threadID,
	})
	if err != nil {
		return nil, fmt.Errorf("create repo: %w", err)
	}

	s.logger.Info("ingestion started",
		"owner", owner,
		"name", name,
		"thread_id", threadID)

	go s.process(context.Background(), repo)
	return repo, nil
}

// Restart re-runs ingestion for an existing thread. A job that is still
// processing or already completed is returned unchanged; only failed jobs
// are re-ingested, after clearing the thread's previous fragments.
func (s *IngestService) Restart(ctx context.Context, threadID string) (*models.Repo, error) {
	mu := s.threadLock(threadID)
	mu.Lock()
	defer mu.Unlock()

	repo, err := s.store.GetRepoByThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if repo.Status != models.RepoStatusFailed {
		return repo, nil
	}

	if err := s.store.DeleteFragments(ctx, threadID); err != nil {
		return nil, fmt.Errorf("clear fragments: %w", err)
	}
	if err := s.store.UpdateRepoStatus(ctx, threadID, models.RepoStatusProcessing, nil); err != nil {
		return nil, fmt.Errorf("reset repo status: %w", err)
	}
	repo.Status = models.RepoStatusProcessing
	repo.Error = nil

	go s.process(context.Background(), repo)
	return repo, nil
}

// Check returns the current state of a thread's ingestion job. Passes
// through the store's not-found error for threads that never started one.
func (s *IngestService) Check(ctx context.Context, threadID string) (*models.Repo, error) {
	return s.store.GetRepoByThread(ctx, threadID)
}

// process runs one ingestion job to a terminal state.
func (s *IngestService) process(ctx context.Context, repo *models.Repo) {
	mu := s.threadLock(repo.ThreadID)
	mu.Lock()
	defer mu.Unlock()

	if err := s.run(ctx, repo); err != nil {
		s.logger.Error("ingestion failed",
			"owner", repo.Owner,
			"name", repo.Name,
			"thread_id", repo.ThreadID,
			"error", err)
		msg := err.Error()
		if dbErr := s.store.UpdateRepoStatus(ctx, repo.ThreadID, models.RepoStatusFailed, &msg); dbErr != nil {
			s.logger.Error("failed to persist job failure", "thread_id", repo.ThreadID, "error", dbErr)
		}
		return
	}

	if err := s.store.UpdateRepoStatus(ctx, repo.ThreadID, models.RepoStatusCompleted, nil); err != nil {
		s.logger.Error("failed to persist job completion", "thread_id", repo.ThreadID, "error", err)
	}
}

func (s *IngestService) run(ctx context.Context, repo *models.Repo) error {
	files, err := s.fetcher.ListFiles(ctx, repo.Owner, repo.Name)
	if err != nil {
		return err
	}

	if err := s.store.SetRepoFileCount(ctx, repo.ThreadID, len(files)); err != nil {
		s.logger.Warn("failed to persist file count", "thread_id", repo.ThreadID, "error", err)
	}

	var (
		filesProcessed atomic.Int32
		fragmentCount  atomic.Int32
		failMu         sync.Mutex
		failErr        error
	)

	// Debounced progress persistence shared by all workers.
	var progressMu sync.Mutex
	lastProgress := time.Now()
	reportProgress := func(force bool) {
		progressMu.Lock()
		due := force || time.Since(lastProgress) > 2*time.Second
		if due {
			lastProgress = time.Now()
		}
		progressMu.Unlock()
		if !due {
			return
		}
		if err := s.store.UpdateRepoProgress(ctx, repo.ThreadID, int(filesProcessed.Load()), int(fragmentCount.Load())); err != nil {
			s.logger.Warn("failed to persist progress", "thread_id", repo.ThreadID, "error", err)
		}
	}

	fail := func(err error) {
		failMu.Lock()
		if failErr == nil {
			failErr = err
		}
		failMu.Unlock()
	}
	failed := func() bool {
		failMu.Lock()
		defer failMu.Unlock()
		return failErr != nil
	}

	fileChan := make(chan github.TreeEntry, len(files))
	var wg sync.WaitGroup

	for i := 0; i < s.opts.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for entry := range fileChan {
				if ctx.Err() != nil || failed() {
					return
				}

				if err := s.processFile(ctx, repo.ThreadID, entry, &fragmentCount); err != nil {
					fail(err)
					return
				}

				filesProcessed.Add(1)
				reportProgress(false)
			}
		}(i)
	}

	for _, entry := range files {
		fileChan <- entry
	}
	close(fileChan)
	wg.Wait()

	if failErr != nil {
		return failErr
	}

	reportProgress(true)
	s.logger.Info("ingestion complete",
		"owner", repo.Owner,
		"name", repo.Name,
		"thread_id", repo.ThreadID,
		"files", filesProcessed.Load(),
		"fragments", fragmentCount.Load())
	return nil
}

// processFile downloads, chunks, and indexes one file. Files that cannot
// be decoded as text are skipped; fetch and index errors fail the job.
func (s *IngestService) processFile(ctx context.Context, threadID string, entry github.TreeEntry, fragmentCount *atomic.Int32) error {
	start := time.Now()
	defer func() { s.opts.Metrics.RecordTiming(metrics.OpIngest, time.Since(start)) }()

	data, err := s.fetcher.DownloadBlob(ctx, entry)
	if err != nil {
		return err
	}

	fragments, err := s.chunker.Split(entry.Path, data)
	if err != nil {
		if errors.Is(err, splitter.ErrDecode) {
			s.logger.Warn("skipping undecodable file", "path", entry.Path, "error", err)
			return nil
		}
		return fmt.Errorf("chunk %s: %w", entry.Path, err)
	}
	if len(fragments) == 0 {
		return nil
	}

	indexed, err := s.index.Add(ctx, threadID, fragments)
	if err != nil {
		return err
	}
	fragmentCount.Add(int32(indexed))
	return nil
}
