// Package process builds a ProcessTree from an Analysis (ProcessBuilder,
// C2) and levels it into parallel execution groups (DependencyResolver,
// C3). The per-intent templates and the Kahn's-algorithm levelling are
// grounded on the teacher's workflow_dag.go WorkflowDAG pattern — the same
// node/edge shape, generalized from agent-mesh workflow steps to VERITAS's
// typed process steps.
package process

import (
	"strings"

	"github.com/veritas-eu/orchestrator-core/core"
	"github.com/veritas-eu/orchestrator-core/domain"
)

// stepSpec is one abstract step descriptor in a template: a local name,
// its type, and the local names of its declared dependencies.
type stepSpec struct {
	localName string
	stepType  domain.StepType
	dependsOn []string
}

// template is the fixed step sequence for one intent.
type template func(analysis *domain.Analysis) []stepSpec

// Builder materializes ProcessTrees from Analysis via per-intent templates.
type Builder struct {
	templates map[domain.Intent]template
	logger    core.Logger
}

func NewBuilder(logger core.Logger) *Builder {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	b := &Builder{templates: make(map[domain.Intent]template), logger: logger}
	b.registerDefaultTemplates()
	return b
}

// Build constructs a ProcessTree for analysis. If hypothesis is non-nil and
// reports critical missing information, the tree short-circuits to a
// single clarification_request step.
func (b *Builder) Build(analysis *domain.Analysis, hypothesis *domain.Hypothesis) (*domain.ProcessTree, error) {
	tree := domain.NewProcessTree(string(analysis.Intent))

	if hypothesis != nil && hypothesis.RequiresClarification() {
		step := &domain.ProcessStep{
			StepID:   "clarification_request",
			StepType: domain.StepClarificationRequest,
			Parameters: map[string]interface{}{
				"missing": hypothesis.CriticalMissing(),
			},
			OnFailure: domain.FailureFatal,
		}
		tree.AddStep(step)
		if err := b.finalize(tree); err != nil {
			return nil, err
		}
		return tree, nil
	}

	tpl, ok := b.templates[analysis.Intent]
	if !ok {
		tpl = b.templates[domain.IntentOther]
	}

	specs := tpl(analysis)
	localToID := make(map[string]string, len(specs))
	for _, spec := range specs {
		localToID[spec.localName] = spec.localName
	}

	for _, spec := range specs {
		deps := make([]string, 0, len(spec.dependsOn))
		for _, d := range spec.dependsOn {
			deps = append(deps, localToID[d])
		}
		step := &domain.ProcessStep{
			StepID:     spec.localName,
			StepType:   spec.stepType,
			DependsOn:  deps,
			Parameters: bindStepParameters(spec, analysis),
			MaxRetries: 2,
			OnFailure:  domain.FailureFatal,
		}
		tree.AddStep(step)
	}

	if err := b.inferDependencies(tree); err != nil {
		return nil, err
	}
	if err := b.finalize(tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// inferDependencies links every synthesis/comparison/validation step to the
// union of producers of its declared input names, beyond what the template
// already wired — a no-op for the canonical templates (which declare all
// edges explicitly) but load-bearing for templates built dynamically (e.g.
// a future per-entity comparison count) and for programmatic add_step
// interventions that only specify input names.
func (b *Builder) inferDependencies(tree *domain.ProcessTree) error {
	producers := make(map[string]string) // output-name -> producing step id
	for _, s := range tree.Steps() {
		producers[s.StepID] = s.StepID
	}
	for _, s := range tree.Steps() {
		switch s.StepType {
		case domain.StepSynthesis, domain.StepComparison, domain.StepValidation:
			if inputs, ok := s.Parameters["inputs"].([]string); ok {
				existing := make(map[string]bool, len(s.DependsOn))
				for _, d := range s.DependsOn {
					existing[d] = true
				}
				for _, in := range inputs {
					if producer, ok := producers[in]; ok && !existing[producer] {
						s.DependsOn = append(s.DependsOn, producer)
						existing[producer] = true
					}
				}
			}
		}
	}
	return nil
}

// finalize validates the tree is acyclic; template/intervention bugs that
// introduce a self-loop or cycle surface here as BuildError: CycleDetected.
func (b *Builder) finalize(tree *domain.ProcessTree) error {
	if cycleAt, ok := tree.Validate(); !ok {
		return core.NewCoreErrorWithID("process.Build", core.KindBuildError, cycleAt, core.ErrCycleDetected)
	}
	return nil
}

func bindStepParameters(spec stepSpec, analysis *domain.Analysis) map[string]interface{} {
	params := make(map[string]interface{}, len(analysis.Parameters)+1)
	for k, v := range analysis.Parameters {
		params[k] = v
	}
	params["intent"] = string(analysis.Intent)
	if strings.HasPrefix(spec.localName, "search_") && spec.localName != "search_generic" {
		params["entity"] = strings.TrimPrefix(spec.localName, "search_")
	}
	return params
}

