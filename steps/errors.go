package steps

import (
	"errors"

	"github.com/veritas-eu/orchestrator-core/core"
	"github.com/veritas-eu/orchestrator-core/generation"
)

// Classify maps a raw handler error to the orchestrator's three classes:
// TransientError (retryable), PermanentError (not retryable), Cancelled
// (cooperative stop). An uncategorized error defaults to transient, per
// spec.md §4.5: "an uncategorized exception is treated as transient up to
// max_retries, then permanent" — the "then permanent" half of that is
// enforced by retry.Do's attempt budget, not here.
func Classify(err error) *core.CoreError {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*core.CoreError); ok {
		return ce
	}

	var genTransient *generation.TransientError
	var genPermanent *generation.PermanentError

	switch {
	case core.IsCancelled(err):
		return core.NewCoreError("steps.Classify", core.KindCancelled, err)
	case errors.As(err, &genPermanent) || core.IsPermanent(err):
		return core.NewCoreError("steps.Classify", core.KindPermanent, err)
	case errors.As(err, &genTransient) || core.IsTransient(err):
		return core.NewCoreError("steps.Classify", core.KindTransient, err)
	default:
		return core.NewCoreError("steps.Classify", core.KindTransient, err)
	}
}
