// Package orchestrator implements the Orchestrator (C8): it drives a
// ProcessTree level by level, bounded by max_concurrency, with cooperative
// pause/resume/cancel, operator interventions, and checkpointing on every
// level transition. Grounded on orchestration/workflow_engine.go's
// executeDAG — the channel-based worker pool, panic-recovery-per-task, and
// select-loop-over-results shape carries over directly; the one
// generalization is that gomind polls the whole DAG continuously for ready
// nodes, while this orchestrator gates strictly level by level, since no
// step in level i+1 may start before level i is fully terminal.
package orchestrator

import (
	"sync"
	"sync/atomic"

	"github.com/veritas-eu/orchestrator-core/core"
	"github.com/veritas-eu/orchestrator-core/domain"
	"github.com/veritas-eu/orchestrator-core/generation"
	"github.com/veritas-eu/orchestrator-core/persistence"
	"github.com/veritas-eu/orchestrator-core/process"
	"github.com/veritas-eu/orchestrator-core/quality"
	"github.com/veritas-eu/orchestrator-core/retrieval"
	"github.com/veritas-eu/orchestrator-core/steps"
	"github.com/veritas-eu/orchestrator-core/stream"
)

// PlanState is the orchestrator's own lifecycle state for a session,
// distinct from any individual step's StepStatus.
type PlanState string

const (
	PlanPending   PlanState = "pending"
	PlanRunning   PlanState = "running"
	PlanPaused    PlanState = "paused"
	PlanCompleted PlanState = "completed"
	PlanFailed    PlanState = "failed"
	PlanCancelled PlanState = "cancelled"
)

// Orchestrator drives one ProcessTree for one session. Not safe to reuse
// across sessions; internal/service constructs one per submitted query.
type Orchestrator struct {
	sessionID string
	config    *core.Config
	logger    core.Logger
	telemetry core.Telemetry

	registry *steps.Registry
	gate     *quality.Gate
	resolver *process.Resolver
	store    persistence.Store
	stream   *stream.Stream

	retriever  *retrieval.Retriever
	generation generation.Interface

	// mu serializes structural mutation (interventions) against the
	// scheduler's level-advance logic; state mutations on individual steps
	// go through the tree's own lock and don't need this one.
	mu   sync.RWMutex
	tree *domain.ProcessTree

	state PlanState

	paused    atomic.Bool
	cancelled atomic.Bool

	interventions []domain.InterventionEntry

	resumeCh chan struct{} // closed/replaced to wake a paused scheduler
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

func WithLogger(l core.Logger) Option         { return func(o *Orchestrator) { o.logger = l } }
func WithTelemetry(t core.Telemetry) Option   { return func(o *Orchestrator) { o.telemetry = t } }
func WithStore(s persistence.Store) Option    { return func(o *Orchestrator) { o.store = s } }
func WithStream(s *stream.Stream) Option      { return func(o *Orchestrator) { o.stream = s } }
func WithRetriever(r *retrieval.Retriever) Option {
	return func(o *Orchestrator) { o.retriever = r }
}
func WithGeneration(g generation.Interface) Option {
	return func(o *Orchestrator) { o.generation = g }
}
func WithRegistry(r *steps.Registry) Option { return func(o *Orchestrator) { o.registry = r } }

// New constructs an Orchestrator for tree under sessionID.
func New(sessionID string, tree *domain.ProcessTree, cfg *core.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sessionID: sessionID,
		tree:      tree,
		config:    cfg,
		logger:    &core.NoOpLogger{},
		telemetry: &core.NoOpTelemetry{},
		registry:  steps.NewRegistry(),
		gate:      quality.NewGate(),
		resolver:  process.NewResolver(),
		store:     persistence.NewMemoryStore(),
		stream:    stream.New(cfg.StreamBufferSize, nil),
		state:     PlanPending,
		resumeCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the orchestrator's current plan state.
func (o *Orchestrator) State() PlanState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *Orchestrator) setState(s PlanState) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Tree returns the live ProcessTree. Callers must not mutate it directly;
// use Intervene.
func (o *Orchestrator) Tree() *domain.ProcessTree { return o.tree }

// Stream returns the ProgressStream this session publishes to, so a caller
// (cmd/veritas-server, cmd/veritas-cli) can subscribe or replay it without
// reaching into the orchestrator's internals.
func (o *Orchestrator) Stream() *stream.Stream { return o.stream }

// SessionID returns the session this orchestrator was constructed for.
func (o *Orchestrator) SessionID() string { return o.sessionID }
