package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// Task type names
const (
	TypeBlobsDelete = "blobs:delete"
	TypeOrphanSweep = "projects:orphan_sweep"
)

// BlobsDeletePayload lists blob keys no record references anymore.
type BlobsDeletePayload struct {
	Keys   []string `json:"keys"`
	Reason string   `json:"reason,omitempty"`
}

func NewBlobsDeleteTask(payload BlobsDeletePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeBlobsDelete, data, asynq.Queue("low"), asynq.MaxRetry(5)), nil
}

// OrphanSweepPayload is empty - the sweep covers every project-scoped table
type OrphanSweepPayload struct{}

func NewOrphanSweepTask() *asynq.Task {
	return asynq.NewTask(TypeOrphanSweep, nil, asynq.Queue("low"), asynq.MaxRetry(1))
}
