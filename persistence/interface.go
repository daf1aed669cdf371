// Package persistence defines the checkpoint store the Orchestrator (C8)
// depends on, plus an in-memory default and a Redis-backed implementation.
// The shape is grounded on orchestration/redis_execution_store.go's
// save/load/list pattern, retargeted from gomind's WorkflowExecution at
// domain.Checkpoint.
package persistence

import (
	"context"

	"github.com/veritas-eu/orchestrator-core/domain"
)

// Store is the Persistence interface consumed by C8.
type Store interface {
	SaveCheckpoint(ctx context.Context, sessionID string, cp *domain.Checkpoint) error
	LoadCheckpoint(ctx context.Context, sessionID string) (*domain.Checkpoint, error)
	AppendIntervention(ctx context.Context, sessionID string, entry domain.InterventionEntry) error
}
