package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/stewardhq/steward/internal/jobs"
	"github.com/stewardhq/steward/internal/users"
)

// PermissionWarmer resolves and caches the effective permission set for one
// user, which is exactly what the read-side service does on a cache miss.
type PermissionWarmer interface {
	EffectivePermissions(ctx context.Context, userID int64) ([]string, error)
}

// UserLister supplies the accounts to warm.
type UserLister interface {
	ListUsers(ctx context.Context) ([]users.User, error)
}

// PermissionsWarmupHandler pre-populates the permission cache so the first
// console request after a deploy or cache flush does not pay the resolve cost.
type PermissionsWarmupHandler struct {
	logger  *slog.Logger
	lister  UserLister
	warmer  PermissionWarmer
	metrics *jobmetrics.Metrics
}

// NewPermissionsWarmupHandler constructs the handler. Metrics may be nil.
func NewPermissionsWarmupHandler(logger *slog.Logger, lister UserLister, warmer PermissionWarmer, metrics *jobmetrics.Metrics) *PermissionsWarmupHandler {
	return &PermissionsWarmupHandler{logger: logger, lister: lister, warmer: warmer, metrics: metrics}
}

// Handle processes TaskTypePermissionsWarmup tasks.
func (h *PermissionsWarmupHandler) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics.Track("permissions_warmup")
	return tracker.End(h.handle(ctx, t))
}

func (h *PermissionsWarmupHandler) handle(ctx context.Context, t *asynq.Task) error {
	var payload PermissionsWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	ids := payload.UserIDs
	if len(ids) == 0 {
		list, err := h.lister.ListUsers(ctx)
		if err != nil {
			return err
		}
		for _, u := range list {
			if u.IsActive {
				ids = append(ids, u.ID)
			}
		}
	}

	warmed := 0
	for _, id := range ids {
		if _, err := h.warmer.EffectivePermissions(ctx, id); err != nil {
			// One broken account must not abort the whole sweep.
			h.logger.Warn("permissions warmup",
				slog.Int64("user_id", id), slog.Any("error", err))
			continue
		}
		warmed++
	}
	h.logger.Info("permissions warmup done",
		slog.Int("requested", len(ids)), slog.Int("warmed", warmed))
	return nil
}
