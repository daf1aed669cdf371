// Package quality implements QualityGate (C6): scoring a step result
// against a policy and deciding approve / reject / retry / request_review.
package quality

import (
	"github.com/veritas-eu/orchestrator-core/domain"
)

// Decision is the QualityGate's verdict on a step result.
type Decision string

const (
	DecisionApprove        Decision = "approve"
	DecisionApproveWarning Decision = "approve_warning"
	DecisionReject         Decision = "reject"
	DecisionRetry          Decision = "retry"
	DecisionRequestReview  Decision = "request_review"
)

// Result is the outcome of a Validate call: the decision plus the
// dimension scores it was computed from, so callers can emit a
// quality_check event carrying both.
type Result struct {
	Decision   Decision
	Dimensions map[string]float64
	Reason     string
}

// Gate validates step results against a QualityPolicy.
type Gate struct{}

func NewGate() *Gate { return &Gate{} }

// Validate scores dimensions (a missing required dimension counts as 0)
// and applies the decision table from the contract: approve if every
// dimension clears target; approve-with-warning if every dimension clears
// min and no required dimension is below min; retry if any required
// dimension is below min and attempts remain; reject if the retry budget
// is exhausted; request_review if the aggregate score falls in the
// configured review band.
func (g *Gate) Validate(dimensions map[string]float64, attempts int, policy domain.QualityPolicy) Result {
	scored := make(map[string]float64, len(policy.RequiredDimensions))
	allAboveTarget := true
	allAboveMin := true
	anyRequiredBelowMin := false

	for name, minRequired := range policy.RequiredDimensions {
		v, ok := dimensions[name]
		if !ok {
			v = 0
		}
		scored[name] = v
		if v < policy.TargetQuality {
			allAboveTarget = false
		}
		if v < policy.MinQuality || v < minRequired {
			allAboveMin = false
		}
		if v < minRequired {
			anyRequiredBelowMin = true
		}
	}
	// Carry through any scored dimensions the caller reported beyond the
	// policy's required set, for observability.
	for name, v := range dimensions {
		if _, already := scored[name]; !already {
			scored[name] = v
		}
	}

	if allAboveTarget {
		return Result{Decision: DecisionApprove, Dimensions: scored, Reason: "all dimensions at or above target"}
	}
	if anyRequiredBelowMin {
		if attempts < policy.MaxRetriesHere {
			return Result{Decision: DecisionRetry, Dimensions: scored, Reason: "required dimension below min, retries remain"}
		}
		return Result{Decision: DecisionReject, Dimensions: scored, Reason: "required dimension below min, retry budget exhausted"}
	}

	// Only reachable once target/retry/reject have all missed: no required
	// dimension breached min, so the band is a real middle ground and not
	// a proxy for a masked required-dimension failure.
	avg := average(scored)
	if withinReviewBand(avg, policy) {
		return Result{Decision: DecisionRequestReview, Dimensions: scored, Reason: "score within review band"}
	}
	if allAboveMin {
		return Result{Decision: DecisionApproveWarning, Dimensions: scored, Reason: "all dimensions at or above min"}
	}
	return Result{Decision: DecisionApproveWarning, Dimensions: scored, Reason: "no disqualifying dimension"}
}

func average(scores map[string]float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range scores {
		sum += v
	}
	return sum / float64(len(scores))
}

func withinReviewBand(avg float64, policy domain.QualityPolicy) bool {
	if policy.ReviewBand <= 0 {
		return false
	}
	lower := policy.MinQuality
	upper := policy.MinQuality + policy.ReviewBand
	return avg >= lower && avg < upper
}
