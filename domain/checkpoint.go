package domain

import "time"

// InterventionAction names one of the operator-initiated mutations the
// orchestrator's intervene() accepts.
type InterventionAction string

const (
	ActionRetryStep    InterventionAction = "retry_step"
	ActionSkipStep     InterventionAction = "skip_step"
	ActionModifyStep   InterventionAction = "modify_step"
	ActionAddStep      InterventionAction = "add_step"
	ActionRemoveStep   InterventionAction = "remove_step"
	ActionReorderSteps InterventionAction = "reorder_steps"
)

// InterventionEntry is one record in the intervention log.
type InterventionEntry struct {
	Actor      string
	Timestamp  time.Time
	Action     InterventionAction
	Payload    map[string]interface{}
	BeforeHash string
	AfterHash  string
}

// StepSnapshot is the persisted runtime state of one step, independent of
// the step's plan fields (which are reconstructed from the tree).
type StepSnapshot struct {
	StepID       string
	Status       StepStatus
	Attempts     int
	RetryCount   int
	Result       interface{}
	QualityScore float64
	Dimensions   map[string]float64
}

// Checkpoint is a serializable snapshot sufficient to resume execution
// exactly: tree structure, per-step runtime state, the level cursor, and
// the full intervention log.
type Checkpoint struct {
	SessionID        string
	CreatedAt        time.Time
	RootQuery        string
	StepOrder        []string
	Steps            map[string]*ProcessStep // plan fields, for structural rebuild
	StepSnapshots    map[string]StepSnapshot
	ExecutionLevels  [][]string
	LevelCursor      int
	InterventionLog  []InterventionEntry
	PlanState        string // mirrors orchestrator.PlanState, kept as string to avoid an import cycle
}
