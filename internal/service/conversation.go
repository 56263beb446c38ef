package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/repochat/repochat/internal/assistant"
	"github.com/repochat/repochat/internal/models"
)

// ErrTurnInProgress is returned by Send when the thread's previous turn
// has not reached a terminal state yet.
var ErrTurnInProgress = errors.New("a turn is already in progress")

// ErrRepoNotReady is returned by Send when the thread's repository has
// not finished ingesting.
var ErrRepoNotReady = errors.New("repository ingestion has not completed")

// ConversationStore is the persistence surface the conversation service
// needs.
type ConversationStore interface {
	GetThread(ctx context.Context, threadID string) (*models.Thread, error)
	UpdateThreadRun(ctx context.Context, threadID string, status models.RunStatus, reply, errMsg *string) error
	CreateMessage(ctx context.Context, threadID, role, content string) (*models.Message, error)
	ListMessages(ctx context.Context, threadID string) ([]models.Message, error)
	GetRepoByThread(ctx context.Context, threadID string) (*models.Repo, error)
}

// Searcher retrieves fragments similar to a query within a thread.
type Searcher interface {
	Search(ctx context.Context, threadID, query string, topK int) ([]models.ScoredFragment, error)
}

// ConversationOptions configures conversation turns.
type ConversationOptions struct {
	// TopK is the number of fragments retrieved per tool call (default 5).
	TopK int
	// MaxActionCycles bounds how many retrieval rounds one turn may take
	// before it is failed (default 5).
	MaxActionCycles int
}

// ConversationService runs conversation turns against an ingested
// repository. Send enqueues a turn and returns immediately; Result reads
// the turn's current state.
type ConversationService struct {
	store    ConversationStore
	engine   *assistant.Engine
	searcher Searcher
	opts     ConversationOptions
	logger   *slog.Logger
}

// NewConversationService creates a conversation service.
func NewConversationService(store ConversationStore, engine *assistant.Engine, searcher Searcher, opts ConversationOptions, log *slog.Logger) *ConversationService {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.MaxActionCycles <= 0 {
		opts.MaxActionCycles = 5
	}
	if log == nil {
		log = slog.Default()
	}
	return &ConversationService{
		store:    store,
		engine:   engine,
		searcher: searcher,
		opts:     opts,
		logger:   log,
	}
}

// Send starts a new turn on the thread with the user's message. The turn
// is queued and processed in the background; callers poll Result for the
// reply. Returns ErrTurnInProgress while a previous turn is still
// running and ErrRepoNotReady until ingestion has completed.
func (s *ConversationService) Send(ctx context.Context, threadID, message string) (*models.Thread, error) {
	thread, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !thread.RunStatus.Terminal() {
		return nil, fmt.Errorf("thread %s: %w", threadID, ErrTurnInProgress)
	}

	repo, err := s.store.GetRepoByThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if repo.Status != models.RepoStatusCompleted {
		return nil, fmt.Errorf("thread %s (status %s): %w", threadID, repo.Status, ErrRepoNotReady)
	}

	history, err := s.store.ListMessages(ctx, threadID)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.CreateMessage(ctx, threadID, models.RoleUser, message); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}
	if err := s.store.UpdateThreadRun(ctx, threadID, models.RunStatusQueued, nil, nil); err != nil {
		return nil, fmt.Errorf("queue turn: %w", err)
	}
	thread.RunStatus = models.RunStatusQueued
	thread.Reply = nil
	thread.Error = nil

	s.logger.Info("turn queued", "thread_id", threadID)
	go s.runTurn(context.Background(), threadID, history, message)

	return thread, nil
}

// Result returns the thread's current run state: the status of the
// active turn plus the reply or error once it is terminal.
func (s *ConversationService) Result(ctx context.Context, threadID string) (*models.Thread, error) {
	return s.store.GetThread(ctx, threadID)
}

// runTurn drives one turn to a terminal state in the background.
func (s *ConversationService) runTurn(ctx context.Context, threadID string, history []models.Message, question string) {
	if err := s.store.UpdateThreadRun(ctx, threadID, models.RunStatusInProgress, nil, nil); err != nil {
		s.logger.Error("failed to mark turn in progress", "thread_id", threadID, "error", err)
	}

	reply, err := s.converse(ctx, threadID, history, question)
	if err != nil {
		s.logger.Error("turn failed", "thread_id", threadID, "error", err)
		msg := err.Error()
		if dbErr := s.store.UpdateThreadRun(ctx, threadID, models.RunStatusFailed, nil, &msg); dbErr != nil {
			s.logger.Error("failed to persist turn failure", "thread_id", threadID, "error", dbErr)
		}
		return
	}

	if _, err := s.store.CreateMessage(ctx, threadID, models.RoleAssistant, reply); err != nil {
		s.logger.Error("failed to persist reply", "thread_id", threadID, "error", err)
	}
	if err := s.store.UpdateThreadRun(ctx, threadID, models.RunStatusCompleted, &reply, nil); err != nil {
		s.logger.Error("failed to complete turn", "thread_id", threadID, "error", err)
	}
}

// converse steps the run, answering retrieval requests until the model
// produces a final reply or the cycle bound is hit.
func (s *ConversationService) converse(ctx context.Context, threadID string, history []models.Message, question string) (string, error) {
	run := s.engine.NewRun(history, question)

	for cycle := 0; ; cycle++ {
		status, err := run.Step(ctx)
		if err != nil {
			return "", err
		}
		if status == models.RunStatusCompleted {
			return run.Reply(), nil
		}

		// requires_action: answer every pending retrieval request.
		if cycle >= s.opts.MaxActionCycles {
			return "", fmt.Errorf("turn exceeded %d retrieval cycles", s.opts.MaxActionCycles)
		}
		if err := s.store.UpdateThreadRun(ctx, threadID, models.RunStatusRequiresAction, nil, nil); err != nil {
			s.logger.Error("failed to mark turn requires_action", "thread_id", threadID, "error", err)
		}

		outputs := make(map[string]string, len(run.PendingCalls()))
		for _, call := range run.PendingCalls() {
			outputs[call.ID] = s.retrieve(ctx, threadID, call.Query)
		}
		if err := run.SubmitToolOutputs(outputs); err != nil {
			return "", err
		}

		if err := s.store.UpdateThreadRun(ctx, threadID, models.RunStatusInProgress, nil, nil); err != nil {
			s.logger.Error("failed to mark turn in progress", "thread_id", threadID, "error", err)
		}
	}
}

// retrieve runs similarity search for one tool call. Search failures are
// reported to the model as empty results rather than failing the turn.
func (s *ConversationService) retrieve(ctx context.Context, threadID, query string) string {
	results, err := s.searcher.Search(ctx, threadID, query, s.opts.TopK)
	if err != nil {
		s.logger.Warn("retrieval failed", "thread_id", threadID, "query", query, "error", err)
		return assistant.FormatToolOutput(nil)
	}

	contents := make([]string, len(results))
	for i, r := range results {
		contents[i] = r.Content
	}
	s.logger.Debug("retrieval", "thread_id", threadID, "query", query, "results", len(results))
	return assistant.FormatToolOutput(contents)
}
