// Package assistant drives the tool-calling run protocol for repository
// conversations. A run walks Queued -> InProgress -> {RequiresAction ->
// InProgress}* -> Completed, where each RequiresAction pause asks the
// caller to execute repository context retrieval.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/repochat/repochat/internal/models"
	"github.com/tmc/langchaingo/llms"
)

// ToolName is the retrieval tool exposed to the model.
const ToolName = "repository_context"

// outputSeparator joins multiple retrieved fragments into one tool output.
const outputSeparator = "\n======\n"

// noResults is returned as tool output when retrieval finds nothing.
const noResults = "no results found"

// instructions is the system prompt for repository conversations.
const instructions = `You are an assistant that answers questions about a GitHub repository.
The repository's files have been indexed for retrieval. When a question concerns the
repository's code, structure, or documentation, call the ` + ToolName + ` tool with a
search query to retrieve relevant file fragments. Each fragment starts with a
"filename:" line identifying its source file. Ground your answers in the retrieved
fragments and name the files you drew from. If retrieval returns nothing relevant,
say that the repository does not appear to contain that information.`

// ErrRun indicates the model interaction failed and the turn cannot
// complete.
var ErrRun = errors.New("run failed")

// repositoryTool is the function definition advertised to the model.
var repositoryTool = llms.Tool{
	Type: "function",
	Function: &llms.FunctionDefinition{
		Name:        ToolName,
		Description: "Retrieves file fragments from the indexed repository that are relevant to a search query.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Natural-language or code search query describing what to look up in the repository.",
				},
			},
			"required": []string{"query"},
		},
	},
}

// ToolCall is one pending retrieval request from the model.
type ToolCall struct {
	ID    string
	Name  string
	Query string
}

// Engine creates runs against a model.
type Engine struct {
	model  llms.Model
	logger *slog.Logger
}

// NewEngine creates a run engine.
func NewEngine(model llms.Model, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{model: model, logger: log}
}

// Run is the in-flight state of one conversation turn.
type Run struct {
	engine   *Engine
	messages []llms.MessageContent
	pending  []ToolCall
	reply    string
}

// NewRun builds a run from the stored conversation history plus the new
// user question.
func (e *Engine) NewRun(history []models.Message, question string) *Run {
	messages := make([]llms.MessageContent, 0, len(history)+2)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, instructions))
	for _, msg := range history {
		role := llms.ChatMessageTypeHuman
		if msg.Role == models.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, msg.Content))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, question))

	return &Run{engine: e, messages: messages}
}

// Step advances the run by one model call. It returns RequiresAction when
// the model requested retrieval (see PendingCalls), or Completed when a
// final reply is available (see Reply).
func (r *Run) Step(ctx context.Context) (models.RunStatus, error) {
	if len(r.pending) > 0 {
		return models.RunStatusFailed, fmt.Errorf("%w: tool outputs not submitted", ErrRun)
	}

	response, err := r.engine.model.GenerateContent(ctx, r.messages,
		llms.WithTools([]llms.Tool{repositoryTool}))
	if err != nil {
		return models.RunStatusFailed, fmt.Errorf("%w: %v", ErrRun, err)
	}
	if len(response.Choices) == 0 {
		return models.RunStatusFailed, fmt.Errorf("%w: no response choices", ErrRun)
	}

	choice := response.Choices[0]
	if len(choice.ToolCalls) > 0 {
		assistantMsg := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		for _, tc := range choice.ToolCalls {
			assistantMsg.Parts = append(assistantMsg.Parts, tc)

			var args struct {
				Query string `json:"query"`
			}
			if tc.FunctionCall != nil {
				if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &args); err != nil {
					return models.RunStatusFailed, fmt.Errorf("%w: malformed tool arguments: %v", ErrRun, err)
				}
			}
			name := ""
			if tc.FunctionCall != nil {
				name = tc.FunctionCall.Name
			}
			r.pending = append(r.pending, ToolCall{ID: tc.ID, Name: name, Query: args.Query})
		}
		r.messages = append(r.messages, assistantMsg)

		r.engine.logger.Debug("run requires action", "tool_calls", len(r.pending))
		return models.RunStatusRequiresAction, nil
	}

	r.reply = choice.Content
	return models.RunStatusCompleted, nil
}

// PendingCalls returns the retrieval requests awaiting tool outputs.
func (r *Run) PendingCalls() []ToolCall {
	return r.pending
}

// SubmitToolOutputs provides the output for each pending call, keyed by
// call ID, and resumes the run on the next Step. Missing outputs are
// reported to the model as empty results.
func (r *Run) SubmitToolOutputs(outputs map[string]string) error {
	if len(r.pending) == 0 {
		return fmt.Errorf("%w: no pending tool calls", ErrRun)
	}

	for _, call := range r.pending {
		content, ok := outputs[call.ID]
		if !ok {
			content = noResults
		}
		r.messages = append(r.messages, llms.MessageContent{
			Role: llms.ChatMessageTypeTool,
			Parts: []llms.ContentPart{llms.ToolCallResponse{
				ToolCallID: call.ID,
				Name:       call.Name,
				Content:    content,
			}},
		})
	}
	r.pending = nil
	return nil
}

// Reply returns the final assistant reply once Step has reported
// Completed.
func (r *Run) Reply() string {
	return r.reply
}

// FormatToolOutput joins retrieved fragment contents into a single tool
// output. Empty retrieval results produce a fixed "no results" marker so
// the model does not hallucinate context.
func FormatToolOutput(contents []string) string {
	if len(contents) == 0 {
		return noResults
	}
	return strings.Join(contents, outputSeparator)
}
