package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritas-eu/orchestrator-core/core"
	"github.com/veritas-eu/orchestrator-core/domain"
	"github.com/veritas-eu/orchestrator-core/quality"
	"github.com/veritas-eu/orchestrator-core/steps"
)

func approvedStep(id string, stepType domain.StepType, result interface{}, score float64) *domain.ProcessStep {
	return &domain.ProcessStep{
		StepID:       id,
		StepType:     stepType,
		Status:       domain.StepCompleted,
		Result:       result,
		QualityScore: score,
		GateDecision: string(quality.DecisionApprove),
	}
}

func TestAggregate_ComposesSectionsAndAttachesSources(t *testing.T) {
	tree := domain.NewProcessTree("was ist eine baugenehmigung")

	search := approvedStep("s1", domain.StepSearch, []domain.RetrievalResult{
		{DocumentID: "doc-1", RelevanceScore: 0.9, Citations: []domain.Citation{{DocID: "doc-1", PageOrSection: "§5"}}},
	}, 0.8)
	analysis := approvedStep("s2", domain.StepAnalysis, "Eine Baugenehmigung ist eine behoerdliche Erlaubnis doc-1.", 0.8)

	tree.AddStep(search)
	tree.AddStep(analysis)

	agg := New(core.AggregationConfig{QualityWeight: 0.6, RelevanceWeight: 0.4, TopKCitations: 5}, nil)
	answer := agg.Aggregate("sess-1", tree, nil)

	require.NotEmpty(t, answer.Sections)
	assert.Contains(t, answer.Text, "Quellen: doc-1")
	assert.Len(t, answer.Citations, 1)
	assert.Equal(t, "doc-1", answer.Citations[0].DocID)
}

func TestAggregate_SentenceWithoutCitationMarkedUnsupported(t *testing.T) {
	tree := domain.NewProcessTree("q")
	search := approvedStep("s1", domain.StepSearch, []domain.RetrievalResult{
		{DocumentID: "doc-1", RelevanceScore: 0.7, Citations: []domain.Citation{{DocID: "doc-1"}}},
	}, 0.7)
	analysis := approvedStep("s2", domain.StepAnalysis, "This sentence mentions doc-1. This other sentence mentions nothing at all.", 0.7)
	tree.AddStep(search)
	tree.AddStep(analysis)

	agg := New(core.AggregationConfig{QualityWeight: 0.6, RelevanceWeight: 0.4, TopKCitations: 5}, nil)
	answer := agg.Aggregate("sess-2", tree, nil)

	warningKinds := map[domain.WarningKind]int{}
	for _, w := range answer.Warnings {
		warningKinds[w.Kind]++
	}
	assert.GreaterOrEqual(t, warningKinds[domain.WarningUnsupported], 1)
	assert.Contains(t, answer.Text, "[unsupported]")
}

func TestAggregate_ConfidenceBlendsQualityAndRelevance(t *testing.T) {
	tree := domain.NewProcessTree("q")
	search := approvedStep("s1", domain.StepSearch, []domain.RetrievalResult{
		{DocumentID: "doc-1", RelevanceScore: 1.0},
		{DocumentID: "doc-2", RelevanceScore: 0.5},
	}, 1.0)
	tree.AddStep(search)

	agg := New(core.AggregationConfig{QualityWeight: 0.6, RelevanceWeight: 0.4, TopKCitations: 5}, nil)
	answer := agg.Aggregate("sess-3", tree, nil)

	// median quality = 1.0, mean relevance = (1.0+0.5)/2 = 0.75
	// confidence = 0.6*1.0 + 0.4*0.75 = 0.9
	assert.InDelta(t, 0.9, answer.Confidence, 0.001)
}

func TestAggregate_RequestReviewStepProducesWarning(t *testing.T) {
	tree := domain.NewProcessTree("q")
	reviewed := approvedStep("s1", domain.StepAnalysis, "text", 0.55)
	reviewed.GateDecision = string(quality.DecisionRequestReview)
	tree.AddStep(reviewed)

	agg := New(core.AggregationConfig{QualityWeight: 0.6, RelevanceWeight: 0.4, TopKCitations: 5}, nil)
	answer := agg.Aggregate("sess-4", tree, nil)

	found := false
	for _, w := range answer.Warnings {
		if w.Kind == domain.WarningReviewRequired && w.StepID == "s1" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestAggregate_TolerableFailedStepProducesWarning(t *testing.T) {
	tree := domain.NewProcessTree("q")
	failed := &domain.ProcessStep{
		StepID:    "s1",
		StepType:  domain.StepSearch,
		Status:    domain.StepFailed,
		OnFailure: domain.FailureTolerable,
		LastError: core.NewCoreError("test", core.KindTransient, core.ErrUnavailable),
	}
	tree.AddStep(failed)

	agg := New(core.AggregationConfig{QualityWeight: 0.6, RelevanceWeight: 0.4, TopKCitations: 5}, nil)
	answer := agg.Aggregate("sess-5", tree, nil)

	found := false
	for _, w := range answer.Warnings {
		if w.Kind == domain.WarningTolerableFail && w.StepID == "s1" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestAggregate_FinalAnswerStepUsedVerbatimAsSpine(t *testing.T) {
	tree := domain.NewProcessTree("q")
	final := approvedStep("final", domain.StepFinalAnswer, "This is the final composed answer.", 0.9)
	tree.AddStep(final)

	agg := New(core.AggregationConfig{QualityWeight: 0.6, RelevanceWeight: 0.4, TopKCitations: 5}, nil)
	answer := agg.Aggregate("sess-6", tree, nil)

	assert.Contains(t, answer.Text, "This is the final composed answer")
}

func TestAggregate_SynthesisResultCitationsCollected(t *testing.T) {
	tree := domain.NewProcessTree("q")
	synth := approvedStep("s1", domain.StepSynthesis, steps.SynthesisResult{
		Text:      "doc-9 says the fee is waived.",
		Citations: []domain.Citation{{DocID: "doc-9"}},
	}, 0.8)
	tree.AddStep(synth)

	agg := New(core.AggregationConfig{QualityWeight: 0.6, RelevanceWeight: 0.4, TopKCitations: 5}, nil)
	answer := agg.Aggregate("sess-7", tree, nil)

	require.Len(t, answer.Citations, 1)
	assert.Equal(t, "doc-9", answer.Citations[0].DocID)
}

func TestAggregate_ClarificationRequestSurfacesFormNotProse(t *testing.T) {
	tree := domain.NewProcessTree("q")
	missing := []domain.MissingInformation{{Item: "location", Severity: domain.SeverityCritical}}
	cr := &domain.ProcessStep{
		StepID:   "clarification_request",
		StepType: domain.StepClarificationRequest,
		Status:   domain.StepCompleted,
		Result:   missing,
	}
	tree.AddStep(cr)

	agg := New(core.AggregationConfig{QualityWeight: 0.6, RelevanceWeight: 0.4, TopKCitations: 5}, nil)
	answer := agg.Aggregate("sess-8", tree, nil)

	assert.True(t, answer.RequiresClarification)
	assert.Equal(t, missing, answer.ClarificationFields)
	assert.Empty(t, answer.Text)
	assert.Empty(t, answer.Sections)
}
