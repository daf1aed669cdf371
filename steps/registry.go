package steps

import (
	"github.com/veritas-eu/orchestrator-core/core"
	"github.com/veritas-eu/orchestrator-core/domain"
)

// Handler performs a single step's work. It must return one of
// TransientError/PermanentError/Cancelled-classified errors (via Classify,
// applied by the caller if the handler itself doesn't wrap) so the
// orchestrator's RetryPolicy can decide correctly.
type Handler func(ctx *Context, step *domain.ProcessStep) (result interface{}, dimensions map[string]float64, err error)

// Registry dispatches a ProcessStep to its registered Handler by StepType.
type Registry struct {
	handlers map[domain.StepType]Handler
}

func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[domain.StepType]Handler)}
	r.registerDefaults()
	return r
}

func (r *Registry) Register(stepType domain.StepType, h Handler) {
	r.handlers[stepType] = h
}

// Run dispatches step to its handler. An unregistered step_type is a build
// error surfaced as PermanentError, not a runtime retry target.
func (r *Registry) Run(ctx *Context, step *domain.ProcessStep) (interface{}, map[string]float64, error) {
	h, ok := r.handlers[step.StepType]
	if !ok {
		return nil, nil, core.NewCoreErrorWithID("steps.Run", core.KindPermanent, step.StepID, core.ErrUnsupportedOperation)
	}
	if err := ctx.CheckCancelled(); err != nil {
		return nil, nil, err
	}
	return h(ctx, step)
}

func (r *Registry) registerDefaults() {
	r.handlers[domain.StepSearch] = runSearch
	r.handlers[domain.StepRetrieval] = runSearch
	r.handlers[domain.StepAnalysis] = runAnalysis
	r.handlers[domain.StepSynthesis] = runSynthesis
	r.handlers[domain.StepComparison] = runComparison
	r.handlers[domain.StepValidation] = runValidation
	r.handlers[domain.StepCalculation] = runCalculation
	r.handlers[domain.StepPresentation] = runPresentation
	r.handlers[domain.StepQualityCheck] = runQualityCheck
	r.handlers[domain.StepFinalAnswer] = runFinalAnswer
	r.handlers[domain.StepClarificationRequest] = runClarificationRequest
}

// RequiredDimensions enumerates the quality-dimension vocabulary each
// step_type's result is scored on (Open Question #3). A step's own
// QualityPolicy.RequiredDimensions, when set, takes priority over this
// default (the orchestrator's effectivePolicy makes that choice before
// calling quality.Gate.Validate).
func RequiredDimensions(stepType domain.StepType) []string {
	switch stepType {
	case domain.StepSearch, domain.StepRetrieval:
		return []string{"relevance", "coverage"}
	case domain.StepAnalysis:
		return []string{"relevance", "completeness"}
	case domain.StepSynthesis:
		return []string{"relevance", "completeness", "coherence"}
	case domain.StepComparison:
		return []string{"completeness", "accuracy"}
	case domain.StepValidation:
		return []string{"accuracy"}
	case domain.StepCalculation:
		return []string{"accuracy"}
	case domain.StepPresentation:
		return []string{"completeness", "coherence"}
	case domain.StepQualityCheck:
		return nil
	case domain.StepFinalAnswer:
		return []string{"relevance", "completeness", "accuracy"}
	case domain.StepClarificationRequest:
		return nil
	default:
		return nil
	}
}
