package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/repochat/repochat/internal/assistant"
	"github.com/repochat/repochat/internal/db"
	"github.com/repochat/repochat/internal/models"
	"github.com/tmc/langchaingo/llms"
)

// scriptedModel returns pre-baked responses in call order.
type scriptedModel struct {
	responses []*llms.ContentResponse
	errs      []error
	calls     int
}

func (m *scriptedModel) GenerateContent(context.Context, []llms.MessageContent, ...llms.CallOption) (*llms.ContentResponse, error) {
	i := m.calls
	m.calls++
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i >= len(m.responses) {
		return nil, errors.New("no scripted response")
	}
	return m.responses[i], nil
}

func (m *scriptedModel) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", errors.New("not implemented")
}

func answer(text string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}
}

func retrievalRequest(id, query string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			ToolCalls: []llms.ToolCall{{
				ID:   id,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      assistant.ToolName,
					Arguments: `{"query": "` + query + `"}`,
				},
			}},
		}},
	}
}

// fakeSearcher records queries and returns fixed fragments.
type fakeSearcher struct {
	queries []string
	results []models.ScoredFragment
	err     error
}

func (f *fakeSearcher) Search(_ context.Context, _, query string, _ int) ([]models.ScoredFragment, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

// readyThread seeds the store with a thread whose repository ingestion
// completed, which Send requires.
func readyThread(t *testing.T, store *memStore) string {
	t.Helper()
	thread, err := store.CreateThread(context.Background(), "assistant-1")
	if err != nil {
		t.Fatalf("CreateThread failed: %v", err)
	}
	threadID := models.MustRecordIDString(thread.ID)
	if _, err := store.CreateRepo(context.Background(), db.RepoParams{
		Owner: "acme", Name: "widget", ThreadID: threadID, AssistantID: "assistant-1",
	}); err != nil {
		t.Fatalf("CreateRepo failed: %v", err)
	}
	if err := store.UpdateRepoStatus(context.Background(), threadID, models.RepoStatusCompleted, nil); err != nil {
		t.Fatalf("UpdateRepoStatus failed: %v", err)
	}
	return threadID
}

// waitForTurn polls Result until the thread's run reaches a terminal
// state.
func waitForTurn(t *testing.T, svc *ConversationService, threadID string) *models.Thread {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		thread, err := svc.Result(context.Background(), threadID)
		if err != nil {
			t.Fatalf("Result failed: %v", err)
		}
		if thread.RunStatus.Terminal() {
			return thread
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("turn did not reach a terminal status")
	return nil
}

func TestConversation_DirectAnswer(t *testing.T) {
	store := newMemStore()
	threadID := readyThread(t, store)
	model := &scriptedModel{responses: []*llms.ContentResponse{
		answer("It is a widget factory."),
	}}
	svc := NewConversationService(store, assistant.NewEngine(model, nil), &fakeSearcher{}, ConversationOptions{}, nil)

	thread, err := svc.Send(t.Context(), threadID, "what does this repo do?")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if thread.RunStatus != models.RunStatusQueued {
		t.Fatalf("Expected queued, got %q", thread.RunStatus)
	}

	final := waitForTurn(t, svc, threadID)
	if final.RunStatus != models.RunStatusCompleted {
		t.Fatalf("Expected completed, got %q (error: %v)", final.RunStatus, final.Error)
	}
	if final.Reply == nil || *final.Reply != "It is a widget factory." {
		t.Errorf("Unexpected reply: %v", final.Reply)
	}

	messages, _ := store.ListMessages(t.Context(), threadID)
	if len(messages) != 2 || messages[0].Role != models.RoleUser || messages[1].Role != models.RoleAssistant {
		t.Errorf("Expected user+assistant messages, got %+v", messages)
	}
}

func TestConversation_RetrievalCycle(t *testing.T) {
	store := newMemStore()
	threadID := readyThread(t, store)
	model := &scriptedModel{responses: []*llms.ContentResponse{
		retrievalRequest("call-1", "http server"),
		answer("The server lives in server.go."),
	}}
	searcher := &fakeSearcher{results: []models.ScoredFragment{
		{Fragment: models.Fragment{Path: "server.go", Content: "filename: server.go\nfunc main() {}"}, Score: 0.91},
	}}
	svc := NewConversationService(store, assistant.NewEngine(model, nil), searcher, ConversationOptions{TopK: 3}, nil)

	if _, err := svc.Send(t.Context(), threadID, "where is the server?"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	final := waitForTurn(t, svc, threadID)
	if final.RunStatus != models.RunStatusCompleted {
		t.Fatalf("Expected completed, got %q (error: %v)", final.RunStatus, final.Error)
	}
	if len(searcher.queries) != 1 || searcher.queries[0] != "http server" {
		t.Errorf("Unexpected retrieval queries: %v", searcher.queries)
	}
	if final.Reply == nil || !strings.Contains(*final.Reply, "server.go") {
		t.Errorf("Unexpected reply: %v", final.Reply)
	}
}

func TestConversation_CycleBound(t *testing.T) {
	store := newMemStore()
	threadID := readyThread(t, store)
	// The model keeps requesting retrieval forever.
	model := &scriptedModel{responses: []*llms.ContentResponse{
		retrievalRequest("call-1", "a"),
		retrievalRequest("call-2", "b"),
		retrievalRequest("call-3", "c"),
	}}
	svc := NewConversationService(store, assistant.NewEngine(model, nil), &fakeSearcher{},
		ConversationOptions{MaxActionCycles: 2}, nil)

	if _, err := svc.Send(t.Context(), threadID, "loop forever"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	final := waitForTurn(t, svc, threadID)
	if final.RunStatus != models.RunStatusFailed {
		t.Fatalf("Expected failed after exceeding cycles, got %q", final.RunStatus)
	}
	if final.Error == nil || !strings.Contains(*final.Error, "retrieval cycles") {
		t.Errorf("Expected cycle bound error, got %v", final.Error)
	}
}

func TestConversation_SearchFailureYieldsNoResults(t *testing.T) {
	store := newMemStore()
	threadID := readyThread(t, store)
	model := &scriptedModel{responses: []*llms.ContentResponse{
		retrievalRequest("call-1", "anything"),
		answer("I could not find that in the repository."),
	}}
	searcher := &fakeSearcher{err: errors.New("search backend down")}
	svc := NewConversationService(store, assistant.NewEngine(model, nil), searcher, ConversationOptions{}, nil)

	if _, err := svc.Send(t.Context(), threadID, "question"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// Retrieval failure is reported to the model, not the user.
	final := waitForTurn(t, svc, threadID)
	if final.RunStatus != models.RunStatusCompleted {
		t.Fatalf("Expected completed, got %q (error: %v)", final.RunStatus, final.Error)
	}
}

func TestConversation_ModelFailureFailsTurn(t *testing.T) {
	store := newMemStore()
	threadID := readyThread(t, store)
	model := &scriptedModel{errs: []error{errors.New("connection refused")}}
	svc := NewConversationService(store, assistant.NewEngine(model, nil), &fakeSearcher{}, ConversationOptions{}, nil)

	if _, err := svc.Send(t.Context(), threadID, "question"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	final := waitForTurn(t, svc, threadID)
	if final.RunStatus != models.RunStatusFailed {
		t.Fatalf("Expected failed, got %q", final.RunStatus)
	}
	if final.Error == nil {
		t.Error("Failed turn should record an error")
	}
}

func TestConversation_SendGuards(t *testing.T) {
	t.Run("unknown thread", func(t *testing.T) {
		svc := NewConversationService(newMemStore(), assistant.NewEngine(&scriptedModel{}, nil), &fakeSearcher{}, ConversationOptions{}, nil)
		if _, err := svc.Send(t.Context(), "no-such-thread", "hi"); !errors.Is(err, db.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("repo still processing", func(t *testing.T) {
		store := newMemStore()
		thread, _ := store.CreateThread(t.Context(), "assistant-1")
		threadID := models.MustRecordIDString(thread.ID)
		store.CreateRepo(t.Context(), db.RepoParams{ThreadID: threadID})

		svc := NewConversationService(store, assistant.NewEngine(&scriptedModel{}, nil), &fakeSearcher{}, ConversationOptions{}, nil)
		if _, err := svc.Send(t.Context(), threadID, "hi"); !errors.Is(err, ErrRepoNotReady) {
			t.Errorf("Expected ErrRepoNotReady, got %v", err)
		}
	})

	t.Run("turn already running", func(t *testing.T) {
		store := newMemStore()
		threadID := readyThread(t, store)
		store.UpdateThreadRun(t.Context(), threadID, models.RunStatusInProgress, nil, nil)

		svc := NewConversationService(store, assistant.NewEngine(&scriptedModel{}, nil), &fakeSearcher{}, ConversationOptions{}, nil)
		if _, err := svc.Send(t.Context(), threadID, "hi"); !errors.Is(err, ErrTurnInProgress) {
			t.Errorf("Expected ErrTurnInProgress, got %v", err)
		}
	})
}

func TestConversation_HistoryCarriesAcrossTurns(t *testing.T) {
	store := newMemStore()
	threadID := readyThread(t, store)
	model := &scriptedModel{responses: []*llms.ContentResponse{
		answer("first answer"),
		answer("second answer"),
	}}
	svc := NewConversationService(store, assistant.NewEngine(model, nil), &fakeSearcher{}, ConversationOptions{}, nil)

	if _, err := svc.Send(t.Context(), threadID, "first question"); err != nil {
		t.Fatalf("First Send failed: %v", err)
	}
	waitForTurn(t, svc, threadID)

	if _, err := svc.Send(t.Context(), threadID, "second question"); err != nil {
		t.Fatalf("Second Send failed: %v", err)
	}
	final := waitForTurn(t, svc, threadID)
	if final.Reply == nil || *final.Reply != "second answer" {
		t.Errorf("Unexpected reply: %v", final.Reply)
	}

	messages, _ := store.ListMessages(t.Context(), threadID)
	if len(messages) != 4 {
		t.Fatalf("Expected 4 messages after two turns, got %d", len(messages))
	}
}
