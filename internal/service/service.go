// Package service wires the full pipeline — Analyzer, HypothesisService,
// ProcessBuilder, Orchestrator, and Aggregator — into named sessions that
// cmd/veritas-server and cmd/veritas-cli can drive without each
// reimplementing the construction order. Grounded on gomind's BaseTool,
// which is the same kind of façade: one struct owning every subsystem a
// request needs, with a registry keyed by a generated ID in place of
// gomind's capability-routing table.
package service

import (
	"context"
	"sync"

	"github.com/veritas-eu/orchestrator-core/aggregate"
	"github.com/veritas-eu/orchestrator-core/analyzer"
	"github.com/veritas-eu/orchestrator-core/core"
	"github.com/veritas-eu/orchestrator-core/domain"
	"github.com/veritas-eu/orchestrator-core/generation"
	"github.com/veritas-eu/orchestrator-core/hypothesis"
	"github.com/veritas-eu/orchestrator-core/orchestrator"
	"github.com/veritas-eu/orchestrator-core/persistence"
	"github.com/veritas-eu/orchestrator-core/process"
	"github.com/veritas-eu/orchestrator-core/retrieval"
	"github.com/veritas-eu/orchestrator-core/telemetry"
)

// Session bundles one request's process tree, its driving Orchestrator,
// and the Hypothesis it was built from (the Aggregator wants it for future
// completeness annotation even though today's Aggregate signature accepts
// nil).
type Session struct {
	ID           string
	Query        domain.Query
	Analysis     *domain.Analysis
	Hypothesis   *domain.Hypothesis
	Orchestrator *orchestrator.Orchestrator

	mu     sync.Mutex
	answer *domain.StructuredAnswer
	runErr error
	done   bool
}

func (s *Session) setResult(answer *domain.StructuredAnswer, err error) {
	s.mu.Lock()
	s.answer, s.runErr, s.done = answer, err, true
	s.mu.Unlock()
}

// Result returns the aggregated answer once execution has finished; ok is
// false while the session is still running.
func (s *Session) Result() (answer *domain.StructuredAnswer, runErr error, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answer, s.runErr, s.done
}

// Service owns the long-lived, session-independent components (the
// Analyzer's rule set, the Builder's templates, the Retriever's wired
// sources, the generation backend) and hands out one Session per incoming
// Query.
type Service struct {
	cfg        *core.Config
	logger     core.Logger
	telemetry  core.Telemetry
	meter      *telemetry.Meter
	analyzer   *analyzer.Analyzer
	builder    *process.Builder
	hypothesis *hypothesis.Service
	retriever  *retrieval.Retriever
	generation generation.Interface
	store      persistence.Store

	mu       sync.RWMutex
	sessions map[string]*Session
}

// Option configures a Service at construction time.
type Option func(*Service)

func WithLogger(l core.Logger) Option             { return func(s *Service) { s.logger = l } }
func WithTelemetry(t core.Telemetry) Option       { return func(s *Service) { s.telemetry = t } }
func WithMeter(m *telemetry.Meter) Option         { return func(s *Service) { s.meter = m } }
func WithRetriever(r *retrieval.Retriever) Option { return func(s *Service) { s.retriever = r } }
func WithGeneration(g generation.Interface) Option {
	return func(s *Service) { s.generation = g }
}
func WithStore(st persistence.Store) Option { return func(s *Service) { s.store = st } }

func New(cfg *core.Config, opts ...Option) *Service {
	s := &Service{
		cfg:       cfg,
		logger:    &core.NoOpLogger{},
		telemetry: &core.NoOpTelemetry{},
		store:     persistence.NewMemoryStore(),
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.analyzer = analyzer.New(nil, s.logger)
	s.builder = process.NewBuilder(s.logger)
	if s.generation == nil {
		s.generation = &generation.Mock{}
	}
	s.hypothesis = hypothesis.New(s.generation, s.retriever, s.logger)
	return s
}

// Submit runs the analyze/hypothesize/build pipeline synchronously and
// registers the resulting Orchestrator under a new session ID, but does
// NOT execute it — the caller (HTTP handler, CLI) decides whether to run
// it inline or hand it to a goroutine so progress can stream concurrently.
func (s *Service) Submit(ctx context.Context, query domain.Query) (*Session, error) {
	analysis, err := s.analyzer.Analyze(query.Text, query.Locale)
	if err != nil {
		return nil, err
	}

	var hyp *domain.Hypothesis
	if s.cfg.HypothesisEnable {
		hyp, err = s.hypothesis.Assess(ctx, query, analysis)
		if err != nil {
			s.logger.Warn("hypothesis assessment failed, proceeding without it", map[string]interface{}{
				"error": err.Error(),
			})
			hyp = nil
		}
	}

	tree, err := s.builder.Build(analysis, hyp)
	if err != nil {
		return nil, err
	}

	sessionID := core.NewSessionID()
	opts := []orchestrator.Option{
		orchestrator.WithLogger(s.logger),
		orchestrator.WithTelemetry(s.telemetry),
		orchestrator.WithStore(s.store),
		orchestrator.WithRetriever(s.retriever),
		orchestrator.WithGeneration(s.generation),
	}
	orch := orchestrator.New(sessionID, tree, s.cfg, opts...)

	sess := &Session{ID: sessionID, Query: query, Analysis: analysis, Hypothesis: hyp, Orchestrator: orch}
	s.mu.Lock()
	s.sessions[sessionID] = sess
	s.mu.Unlock()
	return sess, nil
}

// Run executes sess's tree to completion (or failure/cancellation) and
// aggregates the answer, recording both on the session for later
// retrieval. Intended to be called in its own goroutine by the caller of
// Submit so HTTP handlers return immediately with the session ID.
func (s *Service) Run(ctx context.Context, sess *Session) {
	tree, err := sess.Orchestrator.Execute(ctx)
	agg := aggregate.New(s.cfg.Aggregation, s.logger)
	answer := agg.Aggregate(sess.ID, tree, sess.Hypothesis)
	sess.setResult(answer, err)
}

// Session looks up a previously submitted session by ID.
func (s *Service) Session(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Forget drops a session's bookkeeping entry. It does not cancel a running
// orchestrator — callers must Cancel() first if that's the intent.
func (s *Service) Forget(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}
