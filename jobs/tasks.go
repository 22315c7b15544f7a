package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypePermissionsWarmup primes the per-user permission cache.
	TaskTypePermissionsWarmup = "permissions:warmup"
	// TaskTypeSessionSweep removes expired session records.
	TaskTypeSessionSweep = "sessions:sweep"
)

// PermissionsWarmupPayload selects which users to warm. An empty UserIDs
// slice means every active user.
type PermissionsWarmupPayload struct {
	UserIDs []int64 `json:"user_ids,omitempty"`
}

// NewPermissionsWarmupTask constructs a warmup task.
func NewPermissionsWarmupTask(payload PermissionsWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePermissionsWarmup, data), nil
}

// NewSessionSweepTask constructs a sweep task. The task carries no payload;
// the handler sweeps everything expired at execution time.
func NewSessionSweepTask() *asynq.Task {
	return asynq.NewTask(TaskTypeSessionSweep, nil)
}
