package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/veritas-eu/orchestrator-core/core"
	"github.com/veritas-eu/orchestrator-core/domain"
	"github.com/veritas-eu/orchestrator-core/quality"
	"github.com/veritas-eu/orchestrator-core/retry"
	"github.com/veritas-eu/orchestrator-core/steps"
)

// stepResult is what a worker reports back after attempting one step,
// mirroring the teacher's TaskResult shape.
type stepResult struct {
	stepID     string
	result     interface{}
	dimensions map[string]float64
	decision   quality.Decision
	err        error
}

// Execute runs tree to completion (or failure/cancel/deadline), returning
// the final tree state. It blocks until the plan reaches a terminal
// PlanState. ctx governs the per-plan deadline; individual steps get their
// own per_step_timeout derived from config.
func (o *Orchestrator) Execute(ctx context.Context) (*domain.ProcessTree, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.PerPlanTimeout())
	defer cancel()

	if _, err := o.resolver.Resolve(o.tree); err != nil {
		o.setState(PlanFailed)
		return o.tree, err
	}

	o.setState(PlanRunning)
	o.emit(domain.EventPlanStarted, "", map[string]interface{}{
		"root_query": o.tree.RootQuery,
		"steps":      len(o.tree.Steps()),
		"levels":     len(o.tree.ExecutionLevels),
	})

	for idx := o.tree.LevelCursor; idx < len(o.tree.ExecutionLevels); idx++ {
		if err := o.awaitRunnable(ctx); err != nil {
			o.setState(planStateForErr(err))
			o.emitTerminal(err)
			return o.tree, err
		}

		if err := o.runLevel(ctx, idx); err != nil {
			o.setState(planStateForErr(err))
			o.emitTerminal(err)
			return o.tree, err
		}

		o.mu.Lock()
		o.tree.LevelCursor = idx + 1
		o.mu.Unlock()

		if err := o.checkpoint(ctx); err != nil {
			o.setState(PlanFailed)
			o.emit(domain.EventSystemError, "", map[string]interface{}{"error": err.Error()})
			return o.tree, err
		}
	}

	o.setState(PlanCompleted)
	o.emit(domain.EventPlanCompleted, "", map[string]interface{}{"session_id": o.sessionID})
	return o.tree, nil
}

func planStateForErr(err error) PlanState {
	if core.IsCancelled(err) {
		return PlanCancelled
	}
	return PlanFailed
}

func (o *Orchestrator) emitTerminal(err error) {
	if core.IsCancelled(err) {
		o.emit(domain.EventPlanFailed, "", map[string]interface{}{"reason": "cancelled"})
		return
	}
	o.emit(domain.EventPlanFailed, "", map[string]interface{}{"error": err.Error()})
}

// awaitRunnable blocks while the plan is paused, returning when it resumes,
// ctx is done, or cancel is requested.
func (o *Orchestrator) awaitRunnable(ctx context.Context) error {
	for o.paused.Load() {
		o.mu.RLock()
		resumeCh := o.resumeCh
		o.mu.RUnlock()
		select {
		case <-ctx.Done():
			return core.NewCoreError("orchestrator.Execute", core.KindDeadline, core.ErrPlanDeadlineExceeded)
		case <-resumeCh:
		}
	}
	if o.cancelled.Load() {
		return core.NewCoreError("orchestrator.Execute", core.KindCancelled, core.ErrCancelled)
	}
	return nil
}

// runLevel launches every ready step at level idx through a bounded worker
// pool and blocks until the level is fully terminal (or a fatal/cancel
// condition ends it early). Generalizes workflow_engine.go's executeDAG:
// same task-queue/worker/results-channel/select-loop shape, scoped to one
// level instead of the whole graph.
func (o *Orchestrator) runLevel(ctx context.Context, idx int) error {
	ready := o.tree.ReadyAt(idx)
	if len(ready) == 0 {
		return nil
	}

	taskQueue := make(chan *domain.ProcessStep, len(ready))
	results := make(chan stepResult, len(ready))
	for _, s := range ready {
		taskQueue <- s
	}
	close(taskQueue)

	workers := o.config.MaxConcurrency
	if workers > len(ready) {
		workers = len(ready)
	}
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go o.worker(ctx, &wg, taskQueue, results)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	remaining := len(ready)
	for remaining > 0 {
		select {
		case <-ctx.Done():
			o.cancelled.Store(true)
			return core.NewCoreError("orchestrator.runLevel", core.KindDeadline, core.ErrPlanDeadlineExceeded)
		case res, ok := <-results:
			if !ok {
				return nil
			}
			remaining--
			if err := o.applyResult(ctx, res); err != nil {
				return err
			}
		}
	}
	return nil
}

// worker pulls steps off taskQueue and runs each to a terminal decision,
// recovering from handler panics the way workflow_engine.go's workers do
// (a crashed handler becomes a failed step, not a crashed orchestrator).
func (o *Orchestrator) worker(ctx context.Context, wg *sync.WaitGroup, taskQueue <-chan *domain.ProcessStep, results chan<- stepResult) {
	defer wg.Done()
	for step := range taskQueue {
		results <- o.runStep(ctx, step)
	}
}

func (o *Orchestrator) runStep(ctx context.Context, step *domain.ProcessStep) (res stepResult) {
	res.stepID = step.StepID
	defer func() {
		if r := recover(); r != nil {
			res.err = core.NewCoreErrorWithID("orchestrator.runStep", core.KindPermanent, step.StepID, fmt.Errorf("%w: handler panic: %v", core.ErrInternal, r))
		}
	}()

	o.tree.MarkRunning(step.StepID, time.Now)
	o.emit(domain.EventStepStarted, step.StepID, map[string]interface{}{"step_type": step.StepType})

	stepCtx, cancel := context.WithTimeout(ctx, o.config.PerStepTimeout())
	defer cancel()

	outputs := o.dependencyOutputs(step)
	sctx := steps.NewContext(stepCtx, outputs, o.retriever, o.generation, o.progressEmitter(step.StepID), &o.cancelled)

	policy := effectivePolicy(step, o.config)

	var result interface{}
	var dims map[string]float64
	attempt := 0
	err := retry.Do(stepCtx, o.config.Retry, step.MaxRetries, func(n int) error {
		attempt = n
		var runErr error
		result, dims, runErr = o.registry.Run(sctx, step)
		if runErr != nil {
			return steps.Classify(runErr)
		}
		return nil
	})
	res.err = err
	if err != nil {
		return res
	}

	decision := o.gate.Validate(dims, attempt, policy)
	o.emit(domain.EventQualityCheck, step.StepID, map[string]interface{}{
		"decision":   decision.Decision,
		"dimensions": decision.Dimensions,
		"reason":     decision.Reason,
	})

	res.result = result
	res.dimensions = dims
	res.decision = decision.Decision
	return res
}

func effectivePolicy(step *domain.ProcessStep, cfg *core.Config) domain.QualityPolicy {
	p := step.QualityPolicy
	if p.MinQuality == 0 {
		p.MinQuality = cfg.Quality.Min
	}
	if p.TargetQuality == 0 {
		p.TargetQuality = cfg.Quality.Target
	}
	if p.ReviewBand == 0 {
		p.ReviewBand = cfg.Quality.ReviewBand
	}
	if p.MaxRetriesHere == 0 {
		p.MaxRetriesHere = step.MaxRetries
	}
	if p.RequiredDimensions == nil {
		dims := steps.RequiredDimensions(step.StepType)
		if len(dims) > 0 {
			p.RequiredDimensions = make(map[string]float64, len(dims))
			for _, d := range dims {
				p.RequiredDimensions[d] = cfg.Quality.Min
			}
		}
	}
	return p
}

// dependencyOutputs gathers step's DependsOn results, substituting
// domain.MissingUpstream for a dependency that failed tolerably.
func (o *Orchestrator) dependencyOutputs(step *domain.ProcessStep) steps.DependencyOutputs {
	out := make(steps.DependencyOutputs, len(step.DependsOn))
	for _, depID := range step.DependsOn {
		dep, ok := o.tree.Step(depID)
		if !ok {
			continue
		}
		if dep.Status == domain.StepSkipped || dep.Status == domain.StepFailed {
			out[depID] = domain.MissingUpstream{StepID: depID, Reason: string(dep.Status)}
			continue
		}
		out[depID] = dep.Result
	}
	return out
}

// applyResult interprets a step's outcome against its failure policy and
// the quality gate's decision, mutating the tree and emitting events.
// Returns a non-nil error only when the plan itself must end (fatal
// failure or cancellation); a tolerable failure or a retry decision is
// absorbed and the level continues.
func (o *Orchestrator) applyResult(ctx context.Context, res stepResult) error {
	step, ok := o.tree.Step(res.stepID)
	if !ok {
		return nil
	}

	if core.IsCancelled(res.err) {
		o.tree.MarkTerminal(res.stepID, domain.StepCancelled, nil, 0, nil, res.err, time.Now)
		o.emit(domain.EventStepFailed, res.stepID, map[string]interface{}{"reason": "cancelled"})
		return res.err
	}

	if res.err != nil {
		return o.handleStepFailure(step, res.err)
	}

	switch res.decision {
	case quality.DecisionReject:
		o.setGateDecision(step.StepID, res.decision)
		return o.handleStepFailure(step, core.NewCoreErrorWithID("orchestrator.applyResult", core.KindQuality, step.StepID, core.ErrQualityRejected))
	case quality.DecisionRequestReview:
		o.tree.MarkTerminal(res.stepID, domain.StepCompleted, res.result, meanOf(res.dimensions), res.dimensions, nil, time.Now)
		o.setGateDecision(step.StepID, res.decision)
		o.emit(domain.EventReviewRequired, res.stepID, map[string]interface{}{"dimensions": res.dimensions})
		o.Pause()
		return nil
	default:
		o.tree.MarkTerminal(res.stepID, domain.StepCompleted, res.result, meanOf(res.dimensions), res.dimensions, nil, time.Now)
		o.setGateDecision(step.StepID, res.decision)
		o.emit(domain.EventStepCompleted, res.stepID, map[string]interface{}{"decision": res.decision})
		return nil
	}
}

// setGateDecision stamps the quality gate's verdict onto the step so the
// Aggregator can surface review/rejection without re-reading the event log.
func (o *Orchestrator) setGateDecision(stepID string, decision quality.Decision) {
	if step, ok := o.tree.Step(stepID); ok {
		step.GateDecision = string(decision)
	}
}

func (o *Orchestrator) handleStepFailure(step *domain.ProcessStep, err error) error {
	o.tree.MarkTerminal(step.StepID, domain.StepFailed, nil, 0, nil, err, time.Now)
	o.emit(domain.EventStepFailed, step.StepID, map[string]interface{}{"error": err.Error(), "policy": step.OnFailure})

	if step.OnFailure == domain.FailureFatal {
		return core.NewCoreErrorWithID("orchestrator.applyResult", core.KindPermanent, step.StepID, fmt.Errorf("%w: step %s failed fatally", core.ErrInternal, step.StepID))
	}
	skipped := o.tree.MarkDependentsSkipped(step.StepID)
	for _, id := range skipped {
		o.emit(domain.EventStepFailed, id, map[string]interface{}{"reason": "upstream missing", "missing_upstream": step.StepID})
	}
	return nil
}

func meanOf(dims map[string]float64) float64 {
	if len(dims) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range dims {
		sum += v
	}
	return sum / float64(len(dims))
}

func (o *Orchestrator) emit(eventType domain.EventType, stepID string, payload map[string]interface{}) {
	if o.stream == nil {
		return
	}
	o.stream.Publish(o.sessionID, eventType, stepID, payload)
}

func (o *Orchestrator) progressEmitter(stepID string) steps.ProgressEmitter {
	return func(eventType domain.EventType, payload map[string]interface{}) {
		o.emit(eventType, stepID, payload)
	}
}

func (o *Orchestrator) checkpoint(ctx context.Context) error {
	if o.store == nil {
		return nil
	}
	o.mu.RLock()
	log := append([]domain.InterventionEntry(nil), o.interventions...)
	o.mu.RUnlock()
	cp := o.tree.Snapshot(o.sessionID, log, time.Now())
	cp.PlanState = string(o.State())
	if err := o.store.SaveCheckpoint(ctx, o.sessionID, cp); err != nil {
		return core.NewCoreErrorWithID("orchestrator.checkpoint", core.KindInternal, o.sessionID, fmt.Errorf("%w: %v", core.ErrInternal, err))
	}
	return nil
}
