package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBoxReconcile is the task type for the box reconciliation tick.
	TaskBoxReconcile = "box:reconcile"
)

// BoxReconcilePayload describes a reconciliation tick request.
type BoxReconcilePayload struct {
	TriggeredBy string `json:"triggered_by"`
}

// NewBoxReconcileTask constructs an Asynq task for one reconciliation tick.
func NewBoxReconcileTask(triggeredBy string) (*asynq.Task, error) {
	data, err := json.Marshal(BoxReconcilePayload{TriggeredBy: triggeredBy})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBoxReconcile, data), nil
}
