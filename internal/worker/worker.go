package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/hdpolover/ybb-data-management-service-sub000/internal/export"
	"github.com/hdpolover/ybb-data-management-service-sub000/internal/queue"
)

// ExportProcessor drains export:process tasks. It must run in the same
// process as the API: the export registry is in-memory, so a remote worker
// would mark exports against a registry nobody serves downloads from.
type ExportProcessor struct {
	manager *export.Manager
	log     *zap.Logger
}

func NewExportProcessor(manager *export.Manager, log *zap.Logger) *ExportProcessor {
	return &ExportProcessor{manager: manager, log: log}
}

func (p *ExportProcessor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := queue.ParseExportProcessPayload(t)
	if err != nil {
		return fmt.Errorf("parse payload: %w", err)
	}

	src := export.NewSliceSource(payload.Rows)
	if err := p.manager.RunPipeline(ctx, payload.ExportID, src); err != nil {
		// The record is gone (evicted mid-flight). Nothing to retry against.
		p.log.Warn("pipeline ran against missing export",
			zap.String("export_id", payload.ExportID.String()),
			zap.Error(err),
		)
	}
	return nil
}
