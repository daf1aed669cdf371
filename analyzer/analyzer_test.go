package analyzer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritas-eu/orchestrator-core/analyzer"
	"github.com/veritas-eu/orchestrator-core/core"
	"github.com/veritas-eu/orchestrator-core/domain"
)

func TestAnalyze_EmptyQuery(t *testing.T) {
	a := analyzer.New(nil, nil)
	_, err := a.Analyze("   ", "de")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidQuery)
}

func TestAnalyze_Deterministic(t *testing.T) {
	a := analyzer.New(nil, nil)
	const q = "Bauantrag für Stuttgart"

	first, err := a.Analyze(q, "de")
	require.NoError(t, err)
	second, err := a.Analyze(q, "de")
	require.NoError(t, err)

	assert.Equal(t, first.Intent, second.Intent)
	assert.Equal(t, first.QuestionType, second.QuestionType)
	assert.Equal(t, first.Confidence, second.Confidence)
}

func TestAnalyze_ProcedureQueryWithLocation(t *testing.T) {
	a := analyzer.New(nil, nil)
	out, err := a.Analyze("Bauantrag für Stuttgart", "de")
	require.NoError(t, err)
	assert.Equal(t, domain.IntentProcedureQuery, out.Intent)
	assert.Equal(t, "stuttgart", out.Parameters["location"])
}

func TestAnalyze_Comparison(t *testing.T) {
	a := analyzer.New(nil, nil)
	out, err := a.Analyze("GmbH vs AG gründen", "de")
	require.NoError(t, err)
	assert.Equal(t, domain.IntentComparison, out.Intent)
}

func TestAnalyze_LawCitation(t *testing.T) {
	a := analyzer.New(nil, nil)
	out, err := a.Analyze("§ 242 BGB Treu und Glauben", "de")
	require.NoError(t, err)
	assert.Equal(t, domain.IntentFactRetrieval, out.Intent)
	found := false
	for _, e := range out.Entities {
		if e.Kind == domain.EntityLaw {
			found = true
		}
	}
	assert.True(t, found, "expected a law citation entity")
}

func TestAnalyze_LowConfidenceFallsBackToOther(t *testing.T) {
	a := analyzer.New(nil, nil)
	out, err := a.Analyze("xyz abc qqq", "de")
	require.NoError(t, err)
	assert.Equal(t, domain.IntentOther, out.Intent)
	assert.Equal(t, domain.QuestionStatement, out.QuestionType)
}
