package domain

import (
	"errors"
	"sync"
	"time"
)

// errCycle is returned by ComputeLevels when the DependsOn graph has a
// cycle; callers (process.Resolver) wrap it into a core.CoreError tagged
// ErrCycleDetected so domain stays free of a core import cycle.
var errCycle = errors.New("cycle detected in process tree")

// ErrCycle is the exported sentinel process.Resolver matches against.
var ErrCycle = errCycle

// ProcessTree is the DAG of ProcessSteps produced by the builder, levelled
// by the resolver, and driven by the orchestrator. Structural mutation
// (adding/removing steps) is serialized by mu; step-state mutation goes
// through the per-step setters below, which take the same lock — contention
// is low since steps mutate only a handful of times each.
type ProcessTree struct {
	mu sync.RWMutex

	RootQuery string

	order []string // insertion order, for deterministic tie-breaking
	steps map[string]*ProcessStep

	dependents map[string][]string // step_id -> steps that depend on it

	ExecutionLevels [][]string

	LevelCursor int
}

// NewProcessTree returns an empty tree for rootQuery.
func NewProcessTree(rootQuery string) *ProcessTree {
	return &ProcessTree{
		RootQuery:  rootQuery,
		steps:      make(map[string]*ProcessStep),
		dependents: make(map[string][]string),
	}
}

// AddStep inserts a step. Dependents are rebuilt from the full DependsOn
// set each time, mirroring the teacher's rebuildDependents pattern — cheap
// at build-time tree sizes (tens of steps).
func (t *ProcessTree) AddStep(step *ProcessStep) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.steps[step.StepID]; !exists {
		t.order = append(t.order, step.StepID)
	}
	if step.Status == "" {
		step.Status = StepPending
	}
	t.steps[step.StepID] = step
	t.rebuildDependentsLocked()
}

func (t *ProcessTree) rebuildDependentsLocked() {
	t.dependents = make(map[string][]string)
	for _, id := range t.order {
		step := t.steps[id]
		for _, dep := range step.DependsOn {
			t.dependents[dep] = append(t.dependents[dep], id)
		}
	}
}

// RemoveStep deletes a step and its edges (used by intervene(remove_step)).
func (t *ProcessTree) RemoveStep(stepID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.steps, stepID)
	for i, id := range t.order {
		if id == stepID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	for id, step := range t.steps {
		kept := step.DependsOn[:0:0]
		for _, d := range step.DependsOn {
			if d != stepID {
				kept = append(kept, d)
			}
		}
		t.steps[id].DependsOn = kept
	}
	t.rebuildDependentsLocked()
}

// Step returns the step with the given ID.
func (t *ProcessTree) Step(stepID string) (*ProcessStep, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.steps[stepID]
	return s, ok
}

// Status returns just the status, satisfying the statusOf signature
// ProcessStep.Eligible expects.
func (t *ProcessTree) Status(stepID string) (StepStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.steps[stepID]
	if !ok {
		return "", false
	}
	return s.Status, true
}

// Steps returns all steps in insertion order. The returned slice shares no
// backing array with internal state.
func (t *ProcessTree) Steps() []*ProcessStep {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*ProcessStep, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.steps[id])
	}
	return out
}

// Order returns the insertion order of step IDs (used for deterministic
// level tie-breaking).
func (t *ProcessTree) Order() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.order...)
}

// Dependents returns the steps that directly depend on stepID.
func (t *ProcessTree) Dependents(stepID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.dependents[stepID]...)
}

// Validate checks the DependsOn graph for cycles via DFS. Returns the ID of
// a step on a detected cycle, or "" if acyclic.
func (t *ProcessTree) Validate() (cycleAt string, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(t.steps))

	var visit func(id string) string
	visit = func(id string) string {
		color[id] = gray
		step := t.steps[id]
		for _, dep := range step.DependsOn {
			switch color[dep] {
			case gray:
				return dep
			case white:
				if cyc := visit(dep); cyc != "" {
					return cyc
				}
			}
		}
		color[id] = black
		return ""
	}

	for _, id := range t.order {
		if color[id] == white {
			if cyc := visit(id); cyc != "" {
				return cyc, false
			}
		}
	}
	return "", true
}

// ComputeLevels runs Kahn's algorithm over DependsOn, emitting the set of
// steps with zero remaining in-degree as each successive level. Ties within
// a level are broken by insertion order, so repeated calls on an unmutated
// tree are idempotent (testable property #5).
func (t *ProcessTree) ComputeLevels() ([][]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	indegree := make(map[string]int, len(t.steps))
	for _, id := range t.order {
		indegree[id] = len(t.steps[id].DependsOn)
	}

	remaining := len(t.order)
	levels := make([][]string, 0)

	for remaining > 0 {
		var level []string
		for _, id := range t.order {
			if indegree[id] == 0 {
				if _, seen := indexOf(levels, id); seen {
					continue
				}
				level = append(level, id)
			}
		}
		// Exclude ids already placed in an earlier level.
		level = filterUnplaced(level, levels)
		if len(level) == 0 {
			return nil, errCycle
		}
		for _, id := range level {
			indegree[id] = -1 // mark placed
			for _, dependent := range t.dependents[id] {
				indegree[dependent]--
			}
			remaining--
		}
		levels = append(levels, level)
	}

	t.ExecutionLevels = levels
	return levels, nil
}

func indexOf(levels [][]string, id string) (int, bool) {
	for _, l := range levels {
		for _, x := range l {
			if x == id {
				return 0, true
			}
		}
	}
	return 0, false
}

func filterUnplaced(level []string, levels [][]string) []string {
	if len(levels) == 0 {
		return level
	}
	out := level[:0:0]
	for _, id := range level {
		if _, placed := indexOf(levels, id); !placed {
			out = append(out, id)
		}
	}
	return out
}

// ReadyAt returns the steps in level idx whose dependencies are all
// completed/skipped and which are still Pending — i.e. launchable now.
func (t *ProcessTree) ReadyAt(idx int) []*ProcessStep {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if idx < 0 || idx >= len(t.ExecutionLevels) {
		return nil
	}
	var ready []*ProcessStep
	for _, id := range t.ExecutionLevels[idx] {
		s := t.steps[id]
		if s.Status != StepPending {
			continue
		}
		if s.Eligible(func(id string) (StepStatus, bool) {
			dep, ok := t.steps[id]
			if !ok {
				return "", false
			}
			return dep.Status, true
		}) {
			ready = append(ready, s)
		}
	}
	return ready
}

// LevelComplete reports whether every step in level idx has reached a
// terminal status (completed/failed/skipped/cancelled).
func (t *ProcessTree) LevelComplete(idx int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if idx < 0 || idx >= len(t.ExecutionLevels) {
		return true
	}
	for _, id := range t.ExecutionLevels[idx] {
		switch t.steps[id].Status {
		case StepCompleted, StepFailed, StepSkipped, StepCancelled:
		default:
			return false
		}
	}
	return true
}

// MarkRunning transitions a step to running and stamps StartedAt.
func (t *ProcessTree) MarkRunning(stepID string, now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.steps[stepID]
	if !ok {
		return
	}
	s.Status = StepRunning
	ts := now()
	s.StartedAt = &ts
	s.Attempts++
}

// MarkTerminal transitions a step to a terminal status and stamps
// FinishedAt, recording result/quality/error.
func (t *ProcessTree) MarkTerminal(stepID string, status StepStatus, result interface{}, quality float64, dims map[string]float64, err error, now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.steps[stepID]
	if !ok {
		return
	}
	s.Status = status
	ts := now()
	s.FinishedAt = &ts
	s.Result = result
	s.QualityScore = quality
	s.Dimensions = dims
	s.LastError = err
}

// MarkDependentsSkipped recursively marks every transitive dependent of
// stepID as skipped — used when a fatal/tolerable failure must not let
// downstream steps attempt to run against a missing result.
func (t *ProcessTree) MarkDependentsSkipped(stepID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var skipped []string
	var walk func(id string)
	seen := make(map[string]bool)
	walk = func(id string) {
		for _, dep := range t.dependents[id] {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			if s, ok := t.steps[dep]; ok && s.Status == StepPending {
				s.Status = StepSkipped
				skipped = append(skipped, dep)
			}
			walk(dep)
		}
	}
	walk(stepID)
	return skipped
}

// IsComplete reports whether every step has reached a terminal status.
func (t *ProcessTree) IsComplete() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, id := range t.order {
		switch t.steps[id].Status {
		case StepCompleted, StepFailed, StepSkipped, StepCancelled:
		default:
			return false
		}
	}
	return true
}

// Clone performs a deep copy, used to snapshot state for a Checkpoint
// without holding the tree's lock across persistence I/O.
func (t *ProcessTree) Clone() *ProcessTree {
	t.mu.RLock()
	defer t.mu.RUnlock()

	clone := NewProcessTree(t.RootQuery)
	clone.order = append([]string(nil), t.order...)
	for id, s := range t.steps {
		clone.steps[id] = s.Clone()
	}
	clone.rebuildDependentsLocked()
	clone.ExecutionLevels = make([][]string, len(t.ExecutionLevels))
	for i, lvl := range t.ExecutionLevels {
		clone.ExecutionLevels[i] = append([]string(nil), lvl...)
	}
	clone.LevelCursor = t.LevelCursor
	return clone
}
