package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/veritas-eu/orchestrator-core/core"
	"github.com/veritas-eu/orchestrator-core/domain"
)

// Pause asks a running plan to stop launching new steps; steps already
// running complete or yield at their next suspension point.
func (o *Orchestrator) Pause() {
	if o.paused.CompareAndSwap(false, true) {
		o.setState(PlanPaused)
		o.emit(domain.EventPlanPaused, "", nil)
	}
}

// Resume wakes a paused scheduler, continuing from the current level
// cursor.
func (o *Orchestrator) Resume() {
	if o.paused.CompareAndSwap(true, false) {
		o.mu.Lock()
		close(o.resumeCh)
		o.resumeCh = make(chan struct{})
		o.mu.Unlock()
		o.setState(PlanRunning)
		o.emit(domain.EventPlanResumed, "", nil)
	}
}

// Cancel asks all running steps to stop cooperatively. Execute returns once
// in-flight steps observe the flag at their next suspension point; no
// grace timer is enforced (Config.CancelGrace is not consulted), so a step
// that never checks the flag holds Execute until it returns or the plan
// deadline fires.
func (o *Orchestrator) Cancel() {
	o.cancelled.Store(true)
	o.Resume() // unblock a paused scheduler so it can observe cancellation
}

// Intervene applies an operator-initiated mutation to the frozen tree under
// a write lock, re-resolves levels from the current cursor forward, and
// appends an entry to the intervention log. Every call produces a
// checkpoint.
func (o *Orchestrator) Intervene(ctx context.Context, actor string, action domain.InterventionAction, payload map[string]interface{}) error {
	o.mu.Lock()
	before := hashTree(o.tree)

	var err error
	switch action {
	case domain.ActionRetryStep:
		err = o.interveneRetryStep(payload)
	case domain.ActionSkipStep:
		err = o.interveneSkipStep(payload)
	case domain.ActionModifyStep:
		err = o.interveneModifyStep(payload)
	case domain.ActionAddStep:
		err = o.interveneAddStep(payload)
	case domain.ActionRemoveStep:
		err = o.interveneRemoveStep(payload)
	case domain.ActionReorderSteps:
		err = o.interveneReorderSteps(payload)
	default:
		err = core.NewCoreError("orchestrator.Intervene", core.KindPermanent, core.ErrUnsupportedOperation)
	}

	if err != nil {
		o.mu.Unlock()
		return err
	}

	if _, rerr := o.resolver.Resolve(o.tree); rerr != nil {
		o.mu.Unlock()
		return rerr
	}
	after := hashTree(o.tree)

	entry := domain.InterventionEntry{
		Actor:      actor,
		Timestamp:  time.Now(),
		Action:     action,
		Payload:    payload,
		BeforeHash: before,
		AfterHash:  after,
	}
	o.interventions = append(o.interventions, entry)
	o.mu.Unlock()

	if o.store != nil {
		_ = o.store.AppendIntervention(ctx, o.sessionID, entry)
	}
	return o.checkpoint(ctx)
}

func (o *Orchestrator) interveneRetryStep(payload map[string]interface{}) error {
	id, _ := payload["step_id"].(string)
	step, ok := o.tree.Step(id)
	if !ok {
		return core.NewCoreErrorWithID("orchestrator.intervene.retry_step", core.KindPermanent, id, core.ErrInvalidState)
	}
	step.Status = domain.StepPending
	step.LastError = nil
	return nil
}

func (o *Orchestrator) interveneSkipStep(payload map[string]interface{}) error {
	id, _ := payload["step_id"].(string)
	step, ok := o.tree.Step(id)
	if !ok {
		return core.NewCoreErrorWithID("orchestrator.intervene.skip_step", core.KindPermanent, id, core.ErrInvalidState)
	}
	step.Status = domain.StepSkipped
	o.tree.MarkDependentsSkipped(id)
	return nil
}

func (o *Orchestrator) interveneModifyStep(payload map[string]interface{}) error {
	id, _ := payload["step_id"].(string)
	step, ok := o.tree.Step(id)
	if !ok {
		return core.NewCoreErrorWithID("orchestrator.intervene.modify_step", core.KindPermanent, id, core.ErrInvalidState)
	}
	patch, _ := payload["parameters"].(map[string]interface{})
	for k, v := range patch {
		step.Parameters[k] = v
	}
	return nil
}

func (o *Orchestrator) interveneAddStep(payload map[string]interface{}) error {
	spec, _ := payload["step"].(*domain.ProcessStep)
	if spec == nil {
		return core.NewCoreError("orchestrator.intervene.add_step", core.KindPermanent, fmt.Errorf("%w: payload[\"step\"] must be *domain.ProcessStep", core.ErrInvalidState))
	}
	o.tree.AddStep(spec)
	return nil
}

func (o *Orchestrator) interveneRemoveStep(payload map[string]interface{}) error {
	id, _ := payload["step_id"].(string)
	if _, ok := o.tree.Step(id); !ok {
		return core.NewCoreErrorWithID("orchestrator.intervene.remove_step", core.KindPermanent, id, core.ErrInvalidState)
	}
	o.tree.RemoveStep(id)
	return nil
}

func (o *Orchestrator) interveneReorderSteps(payload map[string]interface{}) error {
	// Reordering affects only tie-breaking within a level (ExecutionLevels
	// is recomputed right after), so this validates the requested order
	// names real steps and leaves level assignment to the resolver.
	ids, _ := payload["step_ids"].([]string)
	for _, id := range ids {
		if _, ok := o.tree.Step(id); !ok {
			return core.NewCoreErrorWithID("orchestrator.intervene.reorder_steps", core.KindPermanent, id, core.ErrInvalidState)
		}
	}
	return nil
}

func hashTree(t *domain.ProcessTree) string {
	b, err := json.Marshal(t.Steps())
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return fmt.Sprintf("%x", sum)
}

// Snapshot captures the current tree and intervention log as a Checkpoint.
func (o *Orchestrator) Snapshot() *domain.Checkpoint {
	o.mu.RLock()
	log := append([]domain.InterventionEntry(nil), o.interventions...)
	state := o.state
	o.mu.RUnlock()
	cp := o.tree.Snapshot(o.sessionID, log, time.Now())
	cp.PlanState = string(state)
	return cp
}

// Restore re-hydrates the orchestrator's tree and interventions from cp.
// Execution resumes from cp's level cursor on the next Execute call.
func (o *Orchestrator) Restore(cp *domain.Checkpoint) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tree = domain.RestoreProcessTree(cp)
	o.interventions = append([]domain.InterventionEntry(nil), cp.InterventionLog...)
	o.state = PlanState(cp.PlanState)
	if o.state == "" {
		o.state = PlanPending
	}
}
