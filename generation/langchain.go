package generation

import (
	"context"
	"errors"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"

	"github.com/veritas-eu/orchestrator-core/core"
)

// LangchainAdapter is the default Interface implementation, delegating
// Generate to any langchaingo llms.Model and Embed to any langchaingo
// embeddings.Embedder. This keeps VERITAS decoupled from a specific
// vendor SDK (OpenAI, Anthropic, Bedrock, ...): callers construct the
// underlying llms.Model with whichever langchaingo provider package they
// need and hand it to NewLangchainAdapter.
type LangchainAdapter struct {
	model    llms.Model
	embedder embeddings.Embedder
	logger   core.Logger
}

func NewLangchainAdapter(model llms.Model, embedder embeddings.Embedder, logger core.Logger) *LangchainAdapter {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &LangchainAdapter{model: model, embedder: embedder, logger: logger}
}

func (a *LangchainAdapter) Generate(ctx context.Context, systemPrompt, userPrompt string, opts Options) (string, error) {
	callOpts := []llms.CallOption{
		llms.WithTemperature(float64(opts.Temperature)),
		llms.WithTopP(float64(opts.TopP)),
	}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}

	messages := []llms.MessageContent{}
	if systemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, userPrompt))

	resp, err := a.model.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", &PermanentError{Err: errors.New("generation: empty response")}
	}
	return resp.Choices[0].Content, nil
}

func (a *LangchainAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	if a.embedder == nil {
		return nil, &PermanentError{Err: core.ErrUnsupportedOperation}
	}
	vectors, err := a.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, classify(err)
	}
	if len(vectors) == 0 {
		return nil, &PermanentError{Err: errors.New("generation: empty embedding")}
	}
	return vectors[0], nil
}

// classify wraps every underlying SDK error, context deadline/cancellation
// included, in a TransientError; it never returns a PermanentError.
// langchaingo providers surface context deadline/cancellation and HTTP
// 429/5xx as plain errors; without a stable sentinel across providers the
// safest default for an unrecognized error is transient (the contract:
// "an uncategorized exception is treated as transient up to max_retries").
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &TransientError{Err: err}
	}
	return &TransientError{Err: err}
}
