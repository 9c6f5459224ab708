package reconcile

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/meridian-wms/meridian-wms/internal/shared"
	"github.com/meridian-wms/meridian-wms/jobs"
)

// Job processes reconciliation tick tasks.
type Job struct {
	service *Service
	lease   *shared.TickLease
	logger  *slog.Logger
}

// NewJob constructs a job handler. Lease may be nil in tests.
func NewJob(service *Service, lease *shared.TickLease, logger *slog.Logger) *Job {
	return &Job{service: service, lease: lease, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *Job) Handle(ctx context.Context, task *asynq.Task) error {
	var payload jobs.BoxReconcilePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	holder := uuid.NewString()
	if j.lease != nil {
		acquired, err := j.lease.TryAcquire(ctx, holder)
		if err != nil {
			return err
		}
		if !acquired {
			if j.logger != nil {
				j.logger.Info("reconciliation tick already running, skipping", slog.String("triggered_by", payload.TriggeredBy))
			}
			return nil
		}
		defer func() {
			if err := j.lease.Release(context.WithoutCancel(ctx), holder); err != nil && j.logger != nil {
				j.logger.Warn("release tick lease", slog.Any("error", err))
			}
		}()
	}

	if _, err := j.service.Run(ctx); err != nil {
		if j.logger != nil {
			j.logger.Error("reconciliation tick aborted", slog.Any("error", err))
		}
		return err
	}
	return nil
}
