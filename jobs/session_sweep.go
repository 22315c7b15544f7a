package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/stewardhq/steward/internal/jobs"
)

// SessionSweeper deletes expired session records.
type SessionSweeper interface {
	SweepExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// SessionSweepHandler prunes the postgres session table. Redis entries expire
// on their own; this keeps the durable metadata in step.
type SessionSweepHandler struct {
	logger  *slog.Logger
	sweeper SessionSweeper
	metrics *jobmetrics.Metrics
}

// NewSessionSweepHandler constructs the handler. Metrics may be nil.
func NewSessionSweepHandler(logger *slog.Logger, sweeper SessionSweeper, metrics *jobmetrics.Metrics) *SessionSweepHandler {
	return &SessionSweepHandler{logger: logger, sweeper: sweeper, metrics: metrics}
}

// Handle processes TaskTypeSessionSweep tasks.
func (h *SessionSweepHandler) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics.Track("session_sweep")
	return tracker.End(h.handle(ctx))
}

func (h *SessionSweepHandler) handle(ctx context.Context) error {
	removed, err := h.sweeper.SweepExpiredSessions(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	h.logger.Info("session sweep done", slog.Int64("removed", removed))
	return nil
}
