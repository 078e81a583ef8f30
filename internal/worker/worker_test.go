package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hdpolover/ybb-data-management-service-sub000/internal/config"
	"github.com/hdpolover/ybb-data-management-service-sub000/internal/export"
	"github.com/hdpolover/ybb-data-management-service-sub000/internal/models"
	"github.com/hdpolover/ybb-data-management-service-sub000/internal/queue"
	"github.com/hdpolover/ybb-data-management-service-sub000/internal/storage"
)

func workerCfg() config.ExportConfig {
	return config.ExportConfig{
		SingleFileThreshold:  1000,
		MultiFileThreshold:   10000,
		MinChunkSize:         500,
		MaxChunkSize:         20000,
		RetentionTTL:         time.Hour,
		MinExportAge:         10 * time.Minute,
		MaxConcurrentExports: 50,
		CleanupInterval:      time.Minute,
		TombstoneTTL:         10 * time.Minute,
		ProcessTimeout:       time.Minute,
		RenderWorkers:        2,
	}
}

func workerTemplates() map[string]config.TemplateConfig {
	return map[string]config.TemplateConfig{
		"participants": {Format: "csv", ChunkSize: 5000, Columns: []string{"id", "name"}},
	}
}

func makeRows(n int) [][]string {
	rows := make([][]string, n)
	for i := range rows {
		rows[i] = []string{fmt.Sprintf("%d", i+1), "x"}
	}
	return rows
}

func TestProcessTask_CompletesExport(t *testing.T) {
	r := export.NewRegistry(export.SystemClock{}, zap.NewNop())
	store := storage.NewMemStore()

	// Queue-mode manager: create registers the record and captures the
	// payload, exactly what the API does before the task is enqueued.
	var captured queue.ExportProcessPayload
	m := export.NewManager(workerCfg(), workerTemplates(), r, store, export.SystemClock{}, zap.NewNop(),
		export.WithEnqueue(func(_ context.Context, id uuid.UUID, exportType, template string, rows [][]string) error {
			captured = queue.ExportProcessPayload{ExportID: id, ExportType: exportType, Template: template, Rows: rows}
			return nil
		}))

	rec, err := m.CreateExport(context.Background(), "participants", "participants", export.NewSliceSource(makeRows(40)))
	require.NoError(t, err)
	require.Equal(t, models.ExportStatusProcessing, rec.Status)

	task, err := queue.NewExportProcessTask(captured)
	require.NoError(t, err)

	p := NewExportProcessor(m, zap.NewNop())
	require.NoError(t, p.ProcessTask(context.Background(), task))

	done, err := m.GetStatus(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusSuccess, done.Status)
	require.Len(t, done.Artifacts, 1)
	assert.Equal(t, 1, store.Len())
}

func TestProcessTask_MissingRecordIsNotRetried(t *testing.T) {
	r := export.NewRegistry(export.SystemClock{}, zap.NewNop())
	m := export.NewManager(workerCfg(), workerTemplates(), r, storage.NewMemStore(), export.SystemClock{}, zap.NewNop())

	task, err := queue.NewExportProcessTask(queue.ExportProcessPayload{
		ExportID:   uuid.New(),
		ExportType: "participants",
		Template:   "participants",
		Rows:       makeRows(5),
	})
	require.NoError(t, err)

	// The record was evicted before the worker got to it. Returning an error
	// would make asynq report a task failure for work nobody can retry.
	p := NewExportProcessor(m, zap.NewNop())
	assert.NoError(t, p.ProcessTask(context.Background(), task))
}

func TestProcessTask_MalformedPayload(t *testing.T) {
	m := export.NewManager(workerCfg(), workerTemplates(),
		export.NewRegistry(export.SystemClock{}, zap.NewNop()), storage.NewMemStore(), export.SystemClock{}, zap.NewNop())

	p := NewExportProcessor(m, zap.NewNop())
	err := p.ProcessTask(context.Background(), asynq.NewTask(queue.TypeExportProcess, []byte("{not json")))
	assert.Error(t, err)
}
