// Package generation defines the text-generation/embedding interface the
// core consumes (spec §6) and a default langchaingo-backed adapter. The
// shape is grounded on core/interfaces.go's AIClient.GenerateResponse
// contract, split into Generate/Embed per the external-interface spec and
// required to distinguish transient from permanent failures explicitly.
package generation

import "context"

// Options configures a single Generate call.
type Options struct {
	SystemPrompt string
	MaxTokens    int
	Temperature  float32
	TopP         float32
}

// Interface is the generation collaborator the core calls into. It is out
// of scope to implement the LLM runtime itself; implementations are
// swappable adapters over a real backend.
type Interface interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string, opts Options) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// TransientError and PermanentError let adapters tag failures; the
// StepRunner's steps.Classify turns them into a transient or permanent
// core.CoreError, which is what RetryPolicy then dispatches on.
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }
