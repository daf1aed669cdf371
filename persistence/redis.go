package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/veritas-eu/orchestrator-core/core"
	"github.com/veritas-eu/orchestrator-core/domain"
)

// RedisStore is a Redis-backed Store for deployments that need checkpoints
// to survive process restart. Checkpoints are JSON-encoded under
// "veritas:checkpoint:<session_id>"; the intervention log is a separate
// list key so AppendIntervention stays O(1) instead of rewriting the whole
// checkpoint on every intervention.
type RedisStore struct {
	client *redis.Client
	logger core.Logger
}

func NewRedisStore(client *redis.Client, logger core.Logger) *RedisStore {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &RedisStore{client: client, logger: logger}
}

func checkpointKey(sessionID string) string    { return fmt.Sprintf("veritas:checkpoint:%s", sessionID) }
func interventionKey(sessionID string) string  { return fmt.Sprintf("veritas:interventions:%s", sessionID) }

func (s *RedisStore) SaveCheckpoint(ctx context.Context, sessionID string, cp *domain.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return core.NewCoreErrorWithID("persistence.SaveCheckpoint", core.KindInternal, sessionID, err)
	}
	if err := s.client.Set(ctx, checkpointKey(sessionID), data, 0).Err(); err != nil {
		return core.NewCoreErrorWithID("persistence.SaveCheckpoint", core.KindTransient, sessionID, fmt.Errorf("%w: %v", core.ErrUnavailable, err))
	}
	return nil
}

func (s *RedisStore) LoadCheckpoint(ctx context.Context, sessionID string) (*domain.Checkpoint, error) {
	data, err := s.client.Get(ctx, checkpointKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, core.NewCoreErrorWithID("persistence.LoadCheckpoint", core.KindInternal, sessionID, core.ErrInvalidState)
	}
	if err != nil {
		return nil, core.NewCoreErrorWithID("persistence.LoadCheckpoint", core.KindTransient, sessionID, fmt.Errorf("%w: %v", core.ErrUnavailable, err))
	}
	var cp domain.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, core.NewCoreErrorWithID("persistence.LoadCheckpoint", core.KindInternal, sessionID, err)
	}
	return &cp, nil
}

func (s *RedisStore) AppendIntervention(ctx context.Context, sessionID string, entry domain.InterventionEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return core.NewCoreErrorWithID("persistence.AppendIntervention", core.KindInternal, sessionID, err)
	}
	if err := s.client.RPush(ctx, interventionKey(sessionID), data).Err(); err != nil {
		return core.NewCoreErrorWithID("persistence.AppendIntervention", core.KindTransient, sessionID, fmt.Errorf("%w: %v", core.ErrUnavailable, err))
	}
	return nil
}
