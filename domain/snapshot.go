package domain

import "time"

// Snapshot captures the tree's current state into a Checkpoint. sessionID
// and the intervention log are supplied by the caller (orchestrator),
// since the tree itself has no notion of session or log.
func (t *ProcessTree) Snapshot(sessionID string, log []InterventionEntry, now time.Time) *Checkpoint {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stepsCopy := make(map[string]*ProcessStep, len(t.steps))
	snapshots := make(map[string]StepSnapshot, len(t.steps))
	for id, s := range t.steps {
		stepsCopy[id] = s.Clone()
		snapshots[id] = StepSnapshot{
			StepID:       id,
			Status:       s.Status,
			Attempts:     s.Attempts,
			RetryCount:   s.RetryCount,
			Result:       s.Result,
			QualityScore: s.QualityScore,
			Dimensions:   s.Dimensions,
		}
	}
	levels := make([][]string, len(t.ExecutionLevels))
	for i, l := range t.ExecutionLevels {
		levels[i] = append([]string(nil), l...)
	}

	return &Checkpoint{
		SessionID:       sessionID,
		CreatedAt:       now,
		RootQuery:       t.RootQuery,
		StepOrder:       append([]string(nil), t.order...),
		Steps:           stepsCopy,
		StepSnapshots:   snapshots,
		ExecutionLevels: levels,
		LevelCursor:     t.LevelCursor,
		InterventionLog: append([]InterventionEntry(nil), log...),
	}
}

// RestoreProcessTree rebuilds a ProcessTree from a Checkpoint, re-applying
// the recorded runtime state on top of the rebuilt structure.
func RestoreProcessTree(cp *Checkpoint) *ProcessTree {
	t := NewProcessTree(cp.RootQuery)
	for _, id := range cp.StepOrder {
		if s, ok := cp.Steps[id]; ok {
			restored := s.Clone()
			if snap, ok := cp.StepSnapshots[id]; ok {
				restored.Status = snap.Status
				restored.Attempts = snap.Attempts
				restored.RetryCount = snap.RetryCount
				restored.Result = snap.Result
				restored.QualityScore = snap.QualityScore
				restored.Dimensions = snap.Dimensions
			}
			t.AddStep(restored)
		}
	}
	t.ExecutionLevels = make([][]string, len(cp.ExecutionLevels))
	for i, l := range cp.ExecutionLevels {
		t.ExecutionLevels[i] = append([]string(nil), l...)
	}
	t.LevelCursor = cp.LevelCursor
	return t
}
