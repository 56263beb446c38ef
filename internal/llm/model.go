package llm

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/repochat/repochat/internal/config"
	"github.com/repochat/repochat/internal/metrics"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Model wraps a langchaingo LLM. It implements llms.Model itself so the
// run engine can issue tool-calling requests through it, with fatal API
// errors (auth, billing, quota) surfaced as ErrFatalAPI.
type Model struct {
	llm       llms.Model
	modelName string
	metrics   *metrics.Collector
}

var _ llms.Model = (*Model)(nil)

// Instrument attaches a metrics collector recording generation timings
// and token usage.
func (m *Model) Instrument(collector *metrics.Collector) {
	m.metrics = collector
}

// NewModel creates an LLM model based on configuration. Bedrock resolves
// AWS credentials from the default chain (env, shared config, IMDS).
func NewModel(ctx context.Context, cfg config.Config) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case config.ProviderBedrock:
		awsCfg, awsErr := awsconfig.LoadDefaultConfig(ctx)
		if awsErr != nil {
			return nil, fmt.Errorf("load aws config: %w", awsErr)
		}
		model, err = bedrock.New(
			bedrock.WithModel(cfg.LLMModel),
			bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return &Model{
		llm:       model,
		modelName: cfg.LLMModel,
	}, nil
}

// GenerateContent delegates to the underlying provider.
func (m *Model) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	start := time.Now()
	response, err := m.llm.GenerateContent(ctx, messages, options...)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", wrapFatalError(err))
	}

	in, out := tokenUsage(response)
	m.metrics.RecordLLMUsage(metrics.OpGenerate, time.Since(start), in, out)
	return response, nil
}

// tokenUsage extracts prompt/completion token counts from a response, if
// the provider reports them.
func tokenUsage(response *llms.ContentResponse) (int64, int64) {
	if response == nil || len(response.Choices) == 0 {
		return 0, 0
	}
	info := response.Choices[0].GenerationInfo
	return tokenCount(info, "PromptTokens"), tokenCount(info, "CompletionTokens")
}

func tokenCount(info map[string]any, key string) int64 {
	switch v := info[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// Call delegates to the underlying provider.
//
// Deprecated: part of llms.Model for backwards compatibility; use
// GenerateContent.
func (m *Model) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	response, err := llms.GenerateFromSinglePrompt(ctx, m.llm, prompt, options...)
	if err != nil {
		return "", fmt.Errorf("call: %w", wrapFatalError(err))
	}
	return response, nil
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}
