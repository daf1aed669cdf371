package hypothesis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritas-eu/orchestrator-core/domain"
	"github.com/veritas-eu/orchestrator-core/generation"
)

func TestAssess_RuleBasedFallback_MissingRequiredParameterIsCritical(t *testing.T) {
	gen := &generation.Mock{
		GenerateFunc: func(ctx context.Context, systemPrompt, userPrompt string, opts generation.Options) (string, error) {
			return "", errors.New("llm unavailable")
		},
	}
	svc := New(gen, nil, nil)

	analysis := &domain.Analysis{
		Intent:     domain.IntentProcedureQuery,
		Parameters: map[string]string{},
	}

	h, err := svc.Assess(context.Background(), domain.Query{Text: "wie beantrage ich eine baugenehmigung"}, analysis)

	require.NoError(t, err)
	assert.Equal(t, domain.ConfidenceLow, h.ConfidenceLevel)
	assert.True(t, h.RequiresClarification())
	require.NotEmpty(t, h.CriticalMissing())
}

func TestAssess_RuleBasedFallback_AllRequiredParametersPresent(t *testing.T) {
	gen := &generation.Mock{
		GenerateFunc: func(ctx context.Context, systemPrompt, userPrompt string, opts generation.Options) (string, error) {
			return "", errors.New("llm unavailable")
		},
	}
	svc := New(gen, nil, nil)

	analysis := &domain.Analysis{
		Intent: domain.IntentProcedureQuery,
		Parameters: map[string]string{
			"location":      "stuttgart",
			"document_type": "bauantrag",
		},
	}

	h, err := svc.Assess(context.Background(), domain.Query{Text: "wie beantrage ich eine baugenehmigung in stuttgart"}, analysis)

	require.NoError(t, err)
	assert.False(t, h.RequiresClarification())
	assert.Empty(t, h.MissingInformation)
}

func TestAssess_LLMPathParsesStructuredResponse(t *testing.T) {
	gen := &generation.Mock{
		GenerateFunc: func(ctx context.Context, systemPrompt, userPrompt string, opts generation.Options) (string, error) {
			return `{"confidence_level":"high","estimated_complexity":"simple","required_criteria":["location"],"missing_information":[],"available_information":["location"]}`, nil
		},
	}
	svc := New(gen, nil, nil)

	analysis := &domain.Analysis{Intent: domain.IntentDefinition, Parameters: map[string]string{}}

	h, err := svc.Assess(context.Background(), domain.Query{Text: "was ist eine baugenehmigung"}, analysis)

	require.NoError(t, err)
	assert.Equal(t, domain.ConfidenceHigh, h.ConfidenceLevel)
	assert.Equal(t, domain.ComplexitySimple, h.EstimatedComplexity)
	assert.Equal(t, 512, h.RecommendedTokenBudget)
}

func TestAssess_LLMMalformedResponse_FallsBackToRuleBased(t *testing.T) {
	gen := &generation.Mock{
		GenerateFunc: func(ctx context.Context, systemPrompt, userPrompt string, opts generation.Options) (string, error) {
			return "not json", nil
		},
	}
	svc := New(gen, nil, nil)

	analysis := &domain.Analysis{Intent: domain.IntentDefinition, Parameters: map[string]string{}}

	h, err := svc.Assess(context.Background(), domain.Query{Text: "was ist eine baugenehmigung"}, analysis)

	require.NoError(t, err)
	assert.NotEmpty(t, h.EstimatedComplexity)
}
