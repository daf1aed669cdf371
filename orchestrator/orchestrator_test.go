package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritas-eu/orchestrator-core/core"
	"github.com/veritas-eu/orchestrator-core/domain"
	"github.com/veritas-eu/orchestrator-core/steps"
)

const (
	typeEcho   = domain.StepType("test_echo")
	typeFail   = domain.StepType("test_fail")
	typeRecord = domain.StepType("test_record")
)

func echoHandler(ctx *steps.Context, step *domain.ProcessStep) (interface{}, map[string]float64, error) {
	return "ok:" + step.StepID, nil, nil
}

func alwaysFailHandler(ctx *steps.Context, step *domain.ProcessStep) (interface{}, map[string]float64, error) {
	return nil, nil, core.NewCoreErrorWithID("test", core.KindPermanent, step.StepID, core.ErrInvalidState)
}

func testConfig() *core.Config {
	cfg := core.DefaultConfig()
	cfg.PerStepTimeoutMs = 2000
	cfg.PerPlanTimeoutMs = 5000
	cfg.Retry.BaseDelayMs = 1
	cfg.Retry.MaxDelayMs = 5
	cfg.Retry.Jitter = 0
	return cfg
}

func linearTwoStepTree() *domain.ProcessTree {
	tree := domain.NewProcessTree("q")
	tree.AddStep(&domain.ProcessStep{StepID: "a", StepType: typeEcho, Parameters: map[string]interface{}{}, OnFailure: domain.FailureFatal})
	tree.AddStep(&domain.ProcessStep{StepID: "b", StepType: typeEcho, DependsOn: []string{"a"}, Parameters: map[string]interface{}{}, OnFailure: domain.FailureFatal})
	return tree
}

func TestExecute_LinearTwoStepPlan_CompletesInOrder(t *testing.T) {
	tree := linearTwoStepTree()
	reg := steps.NewRegistry()
	reg.Register(typeEcho, echoHandler)

	o := New("sess-1", tree, testConfig(), WithRegistry(reg))
	final, err := o.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PlanCompleted, o.State())

	a, _ := final.Step("a")
	b, _ := final.Step("b")
	assert.Equal(t, domain.StepCompleted, a.Status)
	assert.Equal(t, domain.StepCompleted, b.Status)
	require.NotNil(t, a.FinishedAt)
	require.NotNil(t, b.StartedAt)
	assert.False(t, b.StartedAt.Before(*a.FinishedAt))
}

func TestExecute_FatalStepFailure_PlanFails(t *testing.T) {
	tree := domain.NewProcessTree("q")
	tree.AddStep(&domain.ProcessStep{StepID: "a", StepType: typeFail, Parameters: map[string]interface{}{}, OnFailure: domain.FailureFatal})
	tree.AddStep(&domain.ProcessStep{StepID: "b", StepType: typeEcho, DependsOn: []string{"a"}, Parameters: map[string]interface{}{}, OnFailure: domain.FailureFatal})

	reg := steps.NewRegistry()
	reg.Register(typeFail, alwaysFailHandler)
	reg.Register(typeEcho, echoHandler)

	o := New("sess-2", tree, testConfig(), WithRegistry(reg))
	_, err := o.Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, PlanFailed, o.State())

	a, _ := o.Tree().Step("a")
	assert.Equal(t, domain.StepFailed, a.Status)
	b, _ := o.Tree().Step("b")
	assert.Equal(t, domain.StepPending, b.Status, "level 2 never launches once level 1 fails fatally")
}

func TestExecute_TolerableStepFailure_DependentObservesMissingUpstream(t *testing.T) {
	tree := domain.NewProcessTree("q")
	tree.AddStep(&domain.ProcessStep{StepID: "a", StepType: typeFail, Parameters: map[string]interface{}{}, OnFailure: domain.FailureTolerable})
	tree.AddStep(&domain.ProcessStep{StepID: "b", StepType: typeRecord, DependsOn: []string{"a"}, Parameters: map[string]interface{}{}, OnFailure: domain.FailureFatal})

	var observedMissing domain.MissingUpstream
	recordHandler := func(ctx *steps.Context, step *domain.ProcessStep) (interface{}, map[string]float64, error) {
		_, missing := ctx.RequiredInputs("a")
		if len(missing) > 0 {
			observedMissing = missing[0]
		}
		return "recorded", nil, nil
	}

	reg := steps.NewRegistry()
	reg.Register(typeFail, alwaysFailHandler)
	reg.Register(typeRecord, recordHandler)

	o := New("sess-3", tree, testConfig(), WithRegistry(reg))
	final, err := o.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PlanCompleted, o.State())

	a, _ := final.Step("a")
	assert.Equal(t, domain.StepFailed, a.Status)
	b, _ := final.Step("b")
	assert.Equal(t, domain.StepCompleted, b.Status)
	assert.Equal(t, "a", observedMissing.StepID)
}

func TestExecute_PlanDeadline_ReturnsError(t *testing.T) {
	tree := domain.NewProcessTree("q")
	blockHandler := func(ctx *steps.Context, step *domain.ProcessStep) (interface{}, map[string]float64, error) {
		<-ctx.Ctx().Done()
		return nil, nil, ctx.Ctx().Err()
	}
	tree.AddStep(&domain.ProcessStep{StepID: "a", StepType: typeEcho, Parameters: map[string]interface{}{}, OnFailure: domain.FailureFatal})

	reg := steps.NewRegistry()
	reg.Register(typeEcho, blockHandler)

	cfg := testConfig()
	cfg.PerPlanTimeoutMs = 50
	o := New("sess-4", tree, cfg, WithRegistry(reg))

	_, err := o.Execute(context.Background())
	require.Error(t, err)
}

func TestIntervene_SkipStep_MarksDependentsSkipped(t *testing.T) {
	tree := linearTwoStepTree()
	reg := steps.NewRegistry()
	reg.Register(typeEcho, echoHandler)
	o := New("sess-5", tree, testConfig(), WithRegistry(reg))

	err := o.Intervene(context.Background(), "operator", domain.ActionSkipStep, map[string]interface{}{"step_id": "a"})
	require.NoError(t, err)

	a, _ := o.Tree().Step("a")
	b, _ := o.Tree().Step("b")
	assert.Equal(t, domain.StepSkipped, a.Status)
	assert.Equal(t, domain.StepSkipped, b.Status)
}

func TestPauseResume_RunningPlanWaitsForResume(t *testing.T) {
	tree := linearTwoStepTree()
	reg := steps.NewRegistry()
	reg.Register(typeEcho, echoHandler)
	o := New("sess-6", tree, testConfig(), WithRegistry(reg))

	o.Pause()
	assert.Equal(t, PlanPaused, o.State())

	done := make(chan error, 1)
	go func() {
		_, err := o.Execute(context.Background())
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("execute should not finish while paused")
	case <-time.After(100 * time.Millisecond):
	}

	o.Resume()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("execute did not finish after resume")
	}
	assert.Equal(t, PlanCompleted, o.State())
}

func TestCancel_StopsCooperatively(t *testing.T) {
	tree := domain.NewProcessTree("q")
	tree.AddStep(&domain.ProcessStep{StepID: "a", StepType: typeEcho, Parameters: map[string]interface{}{}, OnFailure: domain.FailureFatal})

	blockHandler := func(ctx *steps.Context, step *domain.ProcessStep) (interface{}, map[string]float64, error) {
		for {
			if ctx.Cancelled() {
				return nil, nil, core.NewCoreError("test", core.KindCancelled, core.ErrCancelled)
			}
			select {
			case <-time.After(10 * time.Millisecond):
			case <-ctx.Ctx().Done():
				return nil, nil, ctx.Ctx().Err()
			}
		}
	}
	reg := steps.NewRegistry()
	reg.Register(typeEcho, blockHandler)

	o := New("sess-7", tree, testConfig(), WithRegistry(reg))

	done := make(chan error, 1)
	go func() {
		_, err := o.Execute(context.Background())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	o.Cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrCancelled) || core.IsCancelled(err))
	case <-time.After(3 * time.Second):
		t.Fatal("execute did not observe cancellation")
	}
}

func TestSnapshotRestore_RoundTripsLevelCursor(t *testing.T) {
	tree := linearTwoStepTree()
	reg := steps.NewRegistry()
	reg.Register(typeEcho, echoHandler)
	o := New("sess-8", tree, testConfig(), WithRegistry(reg))

	_, err := o.Execute(context.Background())
	require.NoError(t, err)

	cp := o.Snapshot()
	assert.Equal(t, len(cp.ExecutionLevels), cp.LevelCursor)

	restored := New("sess-8", domain.NewProcessTree("q"), testConfig(), WithRegistry(reg))
	restored.Restore(cp)
	assert.Equal(t, PlanCompleted, restored.State())
	a, _ := restored.Tree().Step("a")
	assert.Equal(t, domain.StepCompleted, a.Status)
}
