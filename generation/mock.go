package generation

import "context"

// Mock is a function-backed Interface implementation for tests; bootstrap
// also falls back to an empty Mock when no LLM backend is configured. A
// call whose func field is nil fails with a PermanentError.
type Mock struct {
	GenerateFunc func(ctx context.Context, systemPrompt, userPrompt string, opts Options) (string, error)
	EmbedFunc    func(ctx context.Context, text string) ([]float32, error)
}

func (m *Mock) Generate(ctx context.Context, systemPrompt, userPrompt string, opts Options) (string, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, systemPrompt, userPrompt, opts)
	}
	return "", &PermanentError{Err: errNotConfigured}
}

func (m *Mock) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return nil, &PermanentError{Err: errNotConfigured}
}

var errNotConfigured = &mockError{"mock generation interface not configured"}

type mockError struct{ msg string }

func (e *mockError) Error() string { return e.msg }
