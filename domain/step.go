package domain

import "time"

// StepType selects which StepRunner handler dispatches a step.
type StepType string

const (
	StepSearch              StepType = "search"
	StepRetrieval           StepType = "retrieval"
	StepAnalysis            StepType = "analysis"
	StepSynthesis           StepType = "synthesis"
	StepComparison          StepType = "comparison"
	StepValidation          StepType = "validation"
	StepCalculation         StepType = "calculation"
	StepPresentation        StepType = "presentation"
	StepQualityCheck        StepType = "quality_check"
	StepFinalAnswer         StepType = "final_answer"
	StepClarificationRequest StepType = "clarification_request"
)

// StepStatus is a ProcessStep's runtime lifecycle state.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepReady     StepStatus = "ready"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
	StepCancelled StepStatus = "cancelled"
)

// FailurePolicy governs what happens to the plan when a step exhausts
// retries: fatal propagates (plan fails), tolerable lets dependents observe
// a MissingUpstream sentinel and the plan continues.
type FailurePolicy string

const (
	FailureFatal     FailurePolicy = "fatal"
	FailureTolerable FailurePolicy = "tolerable"
)

// QualityPolicy is the per-step threshold configuration consumed by the
// QualityGate.
type QualityPolicy struct {
	MinQuality         float64
	TargetQuality      float64
	RequiredDimensions map[string]float64 // dimension name -> minimum
	ReviewBand         float64
	MaxRetriesHere      int
}

// MissingUpstream is the sentinel value a dependent step observes in place
// of a tolerably-failed dependency's result (Open Question #1): a typed
// marker, never a nil or zero value, so downstream handlers can detect and
// react to it explicitly instead of guessing from an empty payload.
type MissingUpstream struct {
	StepID string
	Reason string
}

// ProcessStep is a single node of a ProcessTree. Identity and plan fields
// are set at build time; runtime fields mutate during execution under the
// ProcessTree's locks.
type ProcessStep struct {
	StepID   string
	StepType StepType

	DependsOn     []string
	Parameters    map[string]interface{}
	MaxRetries    int
	QualityPolicy QualityPolicy
	OnFailure     FailurePolicy

	Status      StepStatus
	Attempts    int
	RetryCount  int
	StartedAt   *time.Time
	FinishedAt  *time.Time
	Result      interface{}
	QualityScore float64
	Dimensions   map[string]float64
	LastError    error

	// GateDecision is the QualityGate's last verdict on this step's result
	// (empty until the gate has run once), kept on the step so the
	// Aggregator can surface request_review/tolerable-failed items without
	// re-deriving them from the event log.
	GateDecision string
}

// Clone returns a deep-enough copy of the step for checkpointing:
// DependsOn, Parameters and Dimensions get fresh slices/maps (one level
// deep), while Result, LastError and parameter values are shared.
func (s *ProcessStep) Clone() *ProcessStep {
	clone := *s
	clone.DependsOn = append([]string(nil), s.DependsOn...)
	params := make(map[string]interface{}, len(s.Parameters))
	for k, v := range s.Parameters {
		params[k] = v
	}
	clone.Parameters = params
	dims := make(map[string]float64, len(s.Dimensions))
	for k, v := range s.Dimensions {
		dims[k] = v
	}
	clone.Dimensions = dims
	return &clone
}

// Eligible reports whether every dependency of s is completed or skipped,
// given a status lookup function.
func (s *ProcessStep) Eligible(statusOf func(stepID string) (StepStatus, bool)) bool {
	for _, dep := range s.DependsOn {
		st, ok := statusOf(dep)
		if !ok {
			return false
		}
		if st != StepCompleted && st != StepSkipped {
			return false
		}
	}
	return true
}
