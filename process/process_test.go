package process_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritas-eu/orchestrator-core/domain"
	"github.com/veritas-eu/orchestrator-core/process"
)

func buildAndResolve(t *testing.T, analysis *domain.Analysis, hyp *domain.Hypothesis) (*domain.ProcessTree, [][]string) {
	t.Helper()
	b := process.NewBuilder(nil)
	tree, err := b.Build(analysis, hyp)
	require.NoError(t, err)
	r := process.NewResolver()
	levels, err := r.Resolve(tree)
	require.NoError(t, err)
	return tree, levels
}

func TestProcedureQueryTemplate(t *testing.T) {
	analysis := &domain.Analysis{Intent: domain.IntentProcedureQuery, Parameters: map[string]string{"location": "stuttgart"}}
	tree, levels := buildAndResolve(t, analysis, nil)

	require.Len(t, levels, 2)
	assert.ElementsMatch(t, []string{"search_requirements", "search_forms"}, levels[0])
	assert.Equal(t, []string{"synthesize_checklist"}, levels[1])
	assert.Len(t, tree.Steps(), 3)
}

func TestComparisonTemplate(t *testing.T) {
	analysis := &domain.Analysis{Intent: domain.IntentComparison, Parameters: map[string]string{"compared_entities": "gmbh,ag"}}
	_, levels := buildAndResolve(t, analysis, nil)

	require.Len(t, levels, 3)
	assert.Len(t, levels[0], 2)
	assert.Len(t, levels[1], 2)
	assert.Equal(t, []string{"compare"}, levels[2])
}

func TestResolveIdempotent(t *testing.T) {
	analysis := &domain.Analysis{Intent: domain.IntentCalculation}
	tree, first := buildAndResolve(t, analysis, nil)

	r := process.NewResolver()
	second, err := r.Resolve(tree)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestHypothesisShortCircuitsToClarification(t *testing.T) {
	analysis := &domain.Analysis{Intent: domain.IntentProcedureQuery}
	hyp := &domain.Hypothesis{
		ConfidenceLevel: domain.ConfidenceMedium,
		MissingInformation: []domain.MissingInformation{
			{Item: "Bundesland", Severity: domain.SeverityCritical},
		},
	}
	tree, levels := buildAndResolve(t, analysis, hyp)

	require.Len(t, levels, 1)
	assert.Equal(t, []string{"clarification_request"}, levels[0])
	assert.Len(t, tree.Steps(), 1)
}

func TestSingleStepPlanProducesOneLevel(t *testing.T) {
	analysis := &domain.Analysis{Intent: domain.IntentDefinition}
	_, levels := buildAndResolve(t, analysis, nil)
	require.Len(t, levels, 1)
	assert.Equal(t, []string{"search_definition"}, levels[0])
}

func TestEveryEdgeRespectsLevelOrdering(t *testing.T) {
	analysis := &domain.Analysis{Intent: domain.IntentRecommendation}
	tree, levels := buildAndResolve(t, analysis, nil)

	levelOf := make(map[string]int)
	for i, l := range levels {
		for _, id := range l {
			levelOf[id] = i
		}
	}
	for _, s := range tree.Steps() {
		for _, dep := range s.DependsOn {
			assert.Less(t, levelOf[dep], levelOf[s.StepID])
		}
	}
}
