package steps

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritas-eu/orchestrator-core/core"
	"github.com/veritas-eu/orchestrator-core/domain"
	"github.com/veritas-eu/orchestrator-core/generation"
)

func newTestContext(outputs DependencyOutputs, gen generation.Interface) *Context {
	var cancelled atomic.Bool
	return NewContext(context.Background(), outputs, nil, gen, nil, &cancelled)
}

func TestRegistry_UnregisteredStepTypeIsPermanentError(t *testing.T) {
	r := NewRegistry()
	r.handlers = map[domain.StepType]Handler{}
	ctx := newTestContext(nil, nil)

	_, _, err := r.Run(ctx, &domain.ProcessStep{StepID: "s1", StepType: "nonexistent"})

	require.Error(t, err)
	var ce *core.CoreError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, core.KindPermanent, ce.Kind)
}

func TestRegistry_CancelledContextShortCircuits(t *testing.T) {
	r := NewRegistry()
	var cancelled atomic.Bool
	cancelled.Store(true)
	ctx := NewContext(context.Background(), nil, nil, nil, nil, &cancelled)

	_, _, err := r.Run(ctx, &domain.ProcessStep{StepID: "s1", StepType: domain.StepCalculation})

	require.Error(t, err)
	assert.True(t, core.IsCancelled(err))
}

func TestRunCalculation_ParsesGermanAmountFormat(t *testing.T) {
	ctx := newTestContext(nil, nil)
	step := &domain.ProcessStep{
		StepID:     "calc1",
		StepType:   domain.StepCalculation,
		Parameters: map[string]interface{}{"amount_spec": "1.234,56 €"},
	}

	result, dims, err := runCalculation(ctx, step)

	require.NoError(t, err)
	assert.InDelta(t, 1234.56, result.(float64), 0.001)
	assert.Equal(t, 1.0, dims["accuracy"])
}

func TestRunCalculation_MissingParameterIsPermanentError(t *testing.T) {
	ctx := newTestContext(nil, nil)
	step := &domain.ProcessStep{StepID: "calc1", StepType: domain.StepCalculation}

	_, _, err := runCalculation(ctx, step)

	require.Error(t, err)
	assert.True(t, core.IsPermanent(err))
}

func TestRunComparison_FewerThanTwoInputsIsPermanentError(t *testing.T) {
	outputs := DependencyOutputs{"a": "analysis one"}
	ctx := newTestContext(outputs, &generation.Mock{})
	step := &domain.ProcessStep{StepID: "cmp1", StepType: domain.StepComparison, DependsOn: []string{"a"}}

	_, _, err := runComparison(ctx, step)

	require.Error(t, err)
	assert.True(t, core.IsPermanent(err))
}

func TestRunComparison_DegradesCompletenessWhenDependencyMissingUpstream(t *testing.T) {
	outputs := DependencyOutputs{
		"a": "analysis one",
		"b": domain.MissingUpstream{StepID: "b", Reason: "retries exhausted"},
		"c": "analysis three",
	}
	gen := &generation.Mock{GenerateFunc: func(ctx context.Context, s, u string, o generation.Options) (string, error) {
		return "comparison text", nil
	}}
	ctx := newTestContext(outputs, gen)
	step := &domain.ProcessStep{StepID: "cmp1", StepType: domain.StepComparison, DependsOn: []string{"a", "b", "c"}}

	result, dims, err := runComparison(ctx, step)

	require.NoError(t, err)
	assert.Equal(t, "comparison text", result)
	assert.Less(t, dims["completeness"], 1.0)
}

func TestRunSearch_WithoutRetrieverIsPermanentError(t *testing.T) {
	ctx := newTestContext(nil, nil)
	step := &domain.ProcessStep{StepID: "s1", StepType: domain.StepSearch, Parameters: map[string]interface{}{"query": "bauantrag"}}

	_, _, err := runSearch(ctx, step)

	require.Error(t, err)
	assert.True(t, core.IsPermanent(err))
}

func TestRunSynthesis_GenerationFailureClassifiesAsTransient(t *testing.T) {
	gen := &generation.Mock{GenerateFunc: func(ctx context.Context, s, u string, o generation.Options) (string, error) {
		return "", &generation.TransientError{Err: errors.New("upstream 503")}
	}}
	ctx := newTestContext(DependencyOutputs{"search1": "evidence"}, gen)
	step := &domain.ProcessStep{StepID: "syn1", StepType: domain.StepSynthesis, DependsOn: []string{"search1"}}

	_, _, err := runSynthesis(ctx, step)

	require.Error(t, err)
	var ce *core.CoreError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, core.KindTransient, ce.Kind)
}

func TestRequiredDimensions_SynthesisIncludesCoherence(t *testing.T) {
	dims := RequiredDimensions(domain.StepSynthesis)
	assert.Contains(t, dims, "coherence")
}

func TestClassify_NilErrorReturnsNil(t *testing.T) {
	assert.Nil(t, Classify(nil))
}
