package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"buddy/backend/internal/constants"
)

// runTTL bounds how long a run record outlives its last update
const runTTL = 30 * 24 * time.Hour

// Log stores build attempts in Redis: one JSON document per run plus a
// capped newest-first list of run ids per user
type Log struct {
	client  *redis.Client
	history int64
}

// NewLog creates a Log that keeps at most history runs per user
func NewLog(client *redis.Client, history int) *Log {
	if history < 1 {
		history = 1
	}
	return &Log{client: client, history: int64(history)}
}

// Create stores a new run, assigning its id and timestamps when unset
func (l *Log) Create(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now
	if run.Status == "" {
		run.Status = StatusPending
	}
	if run.Attempt == 0 {
		run.Attempt = 1
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run data: %w", err)
	}

	userKey := l.userRunsKey(run.UserID)
	pipe := l.client.TxPipeline()
	pipe.Set(ctx, l.runKey(run.ID), data, runTTL)
	pipe.LPush(ctx, userKey, run.ID)
	pipe.LTrim(ctx, userKey, 0, l.history-1)
	pipe.Expire(ctx, userKey, runTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// Update overwrites an existing run
func (l *Log) Update(ctx context.Context, run *Run) error {
	exists, err := l.client.Exists(ctx, l.runKey(run.ID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check run: %w", err)
	}
	if exists == 0 {
		return ErrRunNotFound
	}

	run.UpdatedAt = time.Now().UTC()
	if run.Finished() && run.FinishedAt == nil {
		finished := run.UpdatedAt
		run.FinishedAt = &finished
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run data: %w", err)
	}
	if err := l.client.Set(ctx, l.runKey(run.ID), data, runTTL).Err(); err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// Get retrieves a run by id
func (l *Log) Get(ctx context.Context, runID string) (*Run, error) {
	data, err := l.client.Get(ctx, l.runKey(runID)).Bytes()
	if err == redis.Nil {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run data: %w", err)
	}
	return &run, nil
}

// ListByUser returns up to limit of the user's runs, newest first. Ids whose
// record expired are skipped.
func (l *Log) ListByUser(ctx context.Context, userID string, limit int) ([]*Run, error) {
	if limit < 1 || int64(limit) > l.history {
		limit = int(l.history)
	}

	ids, err := l.client.LRange(ctx, l.userRunsKey(userID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs for user: %w", err)
	}
	if len(ids) == 0 {
		return []*Run{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = l.runKey(id)
	}
	values, err := l.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load runs: %w", err)
	}

	runs := make([]*Run, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var run Run
		if err := json.Unmarshal([]byte(s), &run); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run data: %w", err)
		}
		runs = append(runs, &run)
	}
	return runs, nil
}

// Helper methods for key generation
func (l *Log) runKey(runID string) string {
	return constants.RunKeyPrefix + runID
}

func (l *Log) userRunsKey(userID string) string {
	return fmt.Sprintf("%s%s:runs", constants.UserRunsPrefix, userID)
}
