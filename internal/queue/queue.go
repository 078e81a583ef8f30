package queue

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	TypeExportProcess = "export:process"

	QueueDefault = "default"
	QueueLow     = "low"
)

// ExportProcessPayload is the task payload for TypeExportProcess. The rows
// travel in the payload: the registry is in-memory and the dataset has no
// durable home to re-query, so the task must be self-contained.
type ExportProcessPayload struct {
	ExportID   uuid.UUID  `json:"export_id"`
	ExportType string     `json:"export_type"`
	Template   string     `json:"template"`
	Rows       [][]string `json:"rows"`
}

// NewExportProcessTask builds the processing task. MaxRetry is zero: a failed
// export is terminal, retry means the client submits a new export.
func NewExportProcessTask(p ExportProcessPayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("queue: marshal ExportProcess: %w", err)
	}
	return asynq.NewTask(TypeExportProcess, b, asynq.Queue(QueueDefault), asynq.MaxRetry(0)), nil
}

func ParseExportProcessPayload(t *asynq.Task) (*ExportProcessPayload, error) {
	var p ExportProcessPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return nil, fmt.Errorf("queue: unmarshal task: %w", err)
	}
	return &p, nil
}
