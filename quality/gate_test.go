package quality_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veritas-eu/orchestrator-core/domain"
	"github.com/veritas-eu/orchestrator-core/quality"
)

func policy() domain.QualityPolicy {
	return domain.QualityPolicy{
		MinQuality:    0.5,
		TargetQuality: 0.8,
		ReviewBand:    0.1,
		MaxRetriesHere: 2,
		RequiredDimensions: map[string]float64{
			"relevance":    0.5,
			"completeness": 0.5,
		},
	}
}

func TestValidate_ApprovesAboveTarget(t *testing.T) {
	g := quality.NewGate()
	r := g.Validate(map[string]float64{"relevance": 0.9, "completeness": 0.85}, 0, policy())
	assert.Equal(t, quality.DecisionApprove, r.Decision)
}

func TestValidate_RetriesWhenBelowMinAndAttemptsRemain(t *testing.T) {
	g := quality.NewGate()
	r := g.Validate(map[string]float64{"relevance": 0.2, "completeness": 0.6}, 0, policy())
	assert.Equal(t, quality.DecisionRetry, r.Decision)
}

func TestValidate_RejectsWhenRetryBudgetExhausted(t *testing.T) {
	g := quality.NewGate()
	r := g.Validate(map[string]float64{"relevance": 0.2, "completeness": 0.6}, 2, policy())
	assert.Equal(t, quality.DecisionReject, r.Decision)
}

func TestValidate_MissingDimensionCountsAsZero(t *testing.T) {
	g := quality.NewGate()
	r := g.Validate(map[string]float64{"relevance": 0.9}, 0, policy())
	assert.Equal(t, float64(0), r.Dimensions["completeness"])
}

func TestValidate_RequestsReviewWithinBand(t *testing.T) {
	g := quality.NewGate()
	p := policy()
	p.RequiredDimensions = map[string]float64{"relevance": 0.5}
	r := g.Validate(map[string]float64{"relevance": 0.55}, 0, p)
	assert.Equal(t, quality.DecisionRequestReview, r.Decision)
}
