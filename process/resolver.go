package process

import (
	"errors"

	"github.com/veritas-eu/orchestrator-core/core"
	"github.com/veritas-eu/orchestrator-core/domain"
)

// Resolver validates a ProcessTree's DependsOn graph and assigns execution
// levels (DependencyResolver, C3). Resolve is side-effecting on the tree
// (it stores ExecutionLevels) but reading it twice on an unmutated tree is
// idempotent, since ComputeLevels always re-derives the same tie-broken
// order from the tree's insertion order.
type Resolver struct{}

func NewResolver() *Resolver { return &Resolver{} }

// Resolve validates and levels tree, returning the execution levels.
func (r *Resolver) Resolve(tree *domain.ProcessTree) ([][]string, error) {
	if cycleAt, ok := tree.Validate(); !ok {
		return nil, core.NewCoreErrorWithID("process.Resolve", core.KindBuildError, cycleAt, core.ErrCycleDetected)
	}
	levels, err := tree.ComputeLevels()
	if err != nil {
		if errors.Is(err, domain.ErrCycle) {
			return nil, core.NewCoreError("process.Resolve", core.KindBuildError, core.ErrCycleDetected)
		}
		return nil, core.NewCoreError("process.Resolve", core.KindInternal, err)
	}
	return levels, nil
}
