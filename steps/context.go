// Package steps implements the StepRunner (C5): a typed handler registry
// dispatching on step_type, grounded on orchestration/workflow_engine.go's
// task-handler-lookup pattern generalized from gomind's fixed task kinds to
// VERITAS's step_type vocabulary.
package steps

import (
	"context"
	"sync/atomic"

	"github.com/veritas-eu/orchestrator-core/core"
	"github.com/veritas-eu/orchestrator-core/domain"
	"github.com/veritas-eu/orchestrator-core/generation"
	"github.com/veritas-eu/orchestrator-core/retrieval"
)

// DependencyOutputs exposes the read-only results of a step's completed
// dependencies, keyed by step ID. A value of domain.MissingUpstream marks a
// dependency that failed tolerably (Open Question #1).
type DependencyOutputs map[string]interface{}

// ProgressEmitter is the context callback handlers use to report
// intermediate progress without knowing about ProgressStream directly.
type ProgressEmitter func(eventType domain.EventType, payload map[string]interface{})

// Context is everything a handler needs beyond the step itself: dependency
// outputs, the Retriever, the generation interface, a cancellation check,
// and a progress callback. No lock is held across any call a handler makes
// through Context — every method is either pure or itself suspension-safe.
type Context struct {
	ctx        context.Context
	Outputs    DependencyOutputs
	Retriever  *retrieval.Retriever
	Generation generation.Interface
	Emit       ProgressEmitter

	cancelled *atomic.Bool
}

func NewContext(ctx context.Context, outputs DependencyOutputs, retriever *retrieval.Retriever, gen generation.Interface, emit ProgressEmitter, cancelled *atomic.Bool) *Context {
	if emit == nil {
		emit = func(domain.EventType, map[string]interface{}) {}
	}
	return &Context{ctx: ctx, Outputs: outputs, Retriever: retriever, Generation: gen, Emit: emit, cancelled: cancelled}
}

func (c *Context) Ctx() context.Context { return c.ctx }

// Cancelled reports whether the orchestrator has asked this step's run to
// stop cooperatively; handlers must check this at every suspension point.
func (c *Context) Cancelled() bool {
	if c.cancelled == nil {
		return false
	}
	return c.cancelled.Load()
}

// CheckCancelled returns Cancelled as an error so handlers can short-circuit
// with a single `if err := ctx.CheckCancelled(); err != nil { return nil, err }`.
func (c *Context) CheckCancelled() error {
	if c.Cancelled() {
		return core.NewCoreError("steps.Context", core.KindCancelled, core.ErrCancelled)
	}
	return nil
}

// RequiredInputs returns the named dependency outputs, recording which are
// MissingUpstream so a handler can decide whether it can proceed in a
// degraded mode or must fail.
func (c *Context) RequiredInputs(names ...string) (values map[string]interface{}, missing []domain.MissingUpstream) {
	values = make(map[string]interface{}, len(names))
	for _, name := range names {
		v, ok := c.Outputs[name]
		if !ok {
			continue
		}
		if m, isMissing := v.(domain.MissingUpstream); isMissing {
			missing = append(missing, m)
			continue
		}
		values[name] = v
	}
	return values, missing
}
