package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/repochat/repochat/internal/models"
	"github.com/tmc/langchaingo/llms"
)

// scriptedModel returns pre-baked responses in order and records the
// message lists it was called with.
type scriptedModel struct {
	responses []*llms.ContentResponse
	errs      []error
	calls     [][]llms.MessageContent
}

func (m *scriptedModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls = append(m.calls, messages)
	i := len(m.calls) - 1
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

func textResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: text}},
	}
}

func toolCallResponse(id, query string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			ToolCalls: []llms.ToolCall{{
				ID:   id,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      ToolName,
					Arguments: `{"query": "` + query + `"}`,
				},
			}},
		}},
	}
}

func TestRun_DirectAnswer(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{
		textResponse("Hello! Ask me about the repository."),
	}}
	engine := NewEngine(model, nil)

	run := engine.NewRun(nil, "hi")
	status, err := run.Step(t.Context())
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if status != models.RunStatusCompleted {
		t.Fatalf("Expected completed, got %q", status)
	}
	if run.Reply() != "Hello! Ask me about the repository." {
		t.Errorf("Unexpected reply: %q", run.Reply())
	}
	if len(run.PendingCalls()) != 0 {
		t.Errorf("Expected no pending calls, got %d", len(run.PendingCalls()))
	}
}

func TestRun_ToolCallCycle(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolCallResponse("call-1", "http handler"),
		textResponse("The server is defined in server.go."),
	}}
	engine := NewEngine(model, nil)

	run := engine.NewRun(nil, "where is the http server?")

	status, err := run.Step(t.Context())
	if err != nil {
		t.Fatalf("First Step failed: %v", err)
	}
	if status != models.RunStatusRequiresAction {
		t.Fatalf("Expected requires_action, got %q", status)
	}

	calls := run.PendingCalls()
	if len(calls) != 1 {
		t.Fatalf("Expected 1 pending call, got %d", len(calls))
	}
	if calls[0].Query != "http handler" {
		t.Errorf("Expected query 'http handler', got %q", calls[0].Query)
	}

	// Stepping with outstanding tool calls is an error.
	if _, err := run.Step(t.Context()); !errors.Is(err, ErrRun) {
		t.Errorf("Step with pending calls should fail with ErrRun, got %v", err)
	}

	output := FormatToolOutput([]string{"filename: server.go\nfunc main() {}"})
	if err := run.SubmitToolOutputs(map[string]string{"call-1": output}); err != nil {
		t.Fatalf("SubmitToolOutputs failed: %v", err)
	}

	status, err = run.Step(t.Context())
	if err != nil {
		t.Fatalf("Second Step failed: %v", err)
	}
	if status != models.RunStatusCompleted {
		t.Fatalf("Expected completed, got %q", status)
	}
	if run.Reply() != "The server is defined in server.go." {
		t.Errorf("Unexpected reply: %q", run.Reply())
	}

	// The second model call must carry the tool response.
	second := model.calls[1]
	found := false
	for _, msg := range second {
		if msg.Role != llms.ChatMessageTypeTool {
			continue
		}
		for _, part := range msg.Parts {
			if resp, ok := part.(llms.ToolCallResponse); ok && resp.ToolCallID == "call-1" {
				found = true
				if !strings.Contains(resp.Content, "server.go") {
					t.Errorf("Tool response missing retrieved content: %q", resp.Content)
				}
			}
		}
	}
	if !found {
		t.Error("Second model call is missing the tool call response")
	}
}

func TestRun_HistoryAndQuestionOrder(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{textResponse("ok")}}
	engine := NewEngine(model, nil)

	history := []models.Message{
		{Role: models.RoleUser, Content: "first question"},
		{Role: models.RoleAssistant, Content: "first answer"},
	}
	run := engine.NewRun(history, "second question")
	if _, err := run.Step(t.Context()); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	messages := model.calls[0]
	if len(messages) != 4 {
		t.Fatalf("Expected 4 messages (system + 2 history + question), got %d", len(messages))
	}
	if messages[0].Role != llms.ChatMessageTypeSystem {
		t.Errorf("First message should be system, got %q", messages[0].Role)
	}
	if messages[1].Role != llms.ChatMessageTypeHuman || messages[2].Role != llms.ChatMessageTypeAI {
		t.Errorf("History roles wrong: %q, %q", messages[1].Role, messages[2].Role)
	}
	if messages[3].Role != llms.ChatMessageTypeHuman {
		t.Errorf("Last message should be the new question, got %q", messages[3].Role)
	}
}

func TestRun_ModelFailure(t *testing.T) {
	model := &scriptedModel{errs: []error{errors.New("connection refused")}}
	engine := NewEngine(model, nil)

	run := engine.NewRun(nil, "question")
	status, err := run.Step(t.Context())
	if !errors.Is(err, ErrRun) {
		t.Errorf("Expected ErrRun, got %v", err)
	}
	if status != models.RunStatusFailed {
		t.Errorf("Expected failed status, got %q", status)
	}
}

func TestRun_MalformedToolArguments(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{{
		Choices: []*llms.ContentChoice{{
			ToolCalls: []llms.ToolCall{{
				ID:   "call-1",
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      ToolName,
					Arguments: `{not json`,
				},
			}},
		}},
	}}}
	engine := NewEngine(model, nil)

	run := engine.NewRun(nil, "question")
	if _, err := run.Step(t.Context()); !errors.Is(err, ErrRun) {
		t.Errorf("Expected ErrRun for malformed arguments, got %v", err)
	}
}

func TestSubmitToolOutputs_NoPending(t *testing.T) {
	engine := NewEngine(&scriptedModel{}, nil)
	run := engine.NewRun(nil, "question")
	if err := run.SubmitToolOutputs(map[string]string{"x": "y"}); !errors.Is(err, ErrRun) {
		t.Errorf("Expected ErrRun, got %v", err)
	}
}

func TestFormatToolOutput(t *testing.T) {
	t.Run("empty results", func(t *testing.T) {
		if got := FormatToolOutput(nil); got != "no results found" {
			t.Errorf("FormatToolOutput(nil) = %q", got)
		}
	})

	t.Run("joins with separator", func(t *testing.T) {
		got := FormatToolOutput([]string{"a", "b", "c"})
		want := "a\n======\nb\n======\nc"
		if got != want {
			t.Errorf("FormatToolOutput = %q, want %q", got, want)
		}
	})

	t.Run("single result unchanged", func(t *testing.T) {
		if got := FormatToolOutput([]string{"only"}); got != "only" {
			t.Errorf("FormatToolOutput = %q", got)
		}
	})
}
