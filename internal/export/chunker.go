package export

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hdpolover/ybb-data-management-service-sub000/internal/models"
	"github.com/hdpolover/ybb-data-management-service-sub000/internal/render"
	"github.com/hdpolover/ybb-data-management-service-sub000/internal/storage"
)

// Chunker splits a dataset into consecutive windows and drives the renderer
// per window, persisting each result through the storage backend. Windows
// render concurrently on a bounded pool, but the returned artifact list is
// always in ascending batch order.
type Chunker struct {
	storage storage.Backend
	workers int
	log     *zap.Logger
}

func NewChunker(store storage.Backend, workers int, log *zap.Logger) *Chunker {
	if workers < 1 {
		workers = 1
	}
	return &Chunker{storage: store, workers: workers, log: log}
}

// Job carries everything needed to materialize one export's artifacts.
type Job struct {
	ExportID   uuid.UUID
	ExportType string
	Source     RowSource
	Renderer   render.Renderer
	Columns    []string
	ChunkSize  int
}

type window struct {
	batch      int
	start, end int // inclusive, 1-based
}

func planWindows(total, chunkSize int) []window {
	var ws []window
	for start, batch := 1, 1; start <= total; start, batch = start+chunkSize, batch+1 {
		end := start + chunkSize - 1
		if end > total {
			end = total
		}
		ws = append(ws, window{batch: batch, start: start, end: end})
	}
	return ws
}

// Process renders every window and returns the artifacts ordered by batch
// number. On any failure it releases whatever it already persisted and
// returns the triggering error: there is no partial-success result.
func (c *Chunker) Process(ctx context.Context, job Job) ([]models.FileArtifact, error) {
	total := job.Source.Count()
	if total < 1 {
		return nil, fmt.Errorf("export: empty dataset for %s", job.ExportID)
	}
	windows := planWindows(total, job.ChunkSize)
	results := make([]models.FileArtifact, len(windows))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		sem      = make(chan struct{}, c.workers)
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for i, w := range windows {
		wg.Add(1)
		go func(i int, w window) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			artifact, err := c.renderWindow(ctx, job, w)
			if err != nil {
				fail(err)
				return
			}
			results[i] = artifact
		}(i, w)
	}
	wg.Wait()

	if firstErr == nil {
		// The caller's deadline may have fired after the last render started.
		firstErr = deadlineErr(ctx)
	}
	if firstErr != nil {
		c.release(results)
		return nil, firstErr
	}
	return results, nil
}

func (c *Chunker) renderWindow(ctx context.Context, job Job, w window) (models.FileArtifact, error) {
	rows, err := job.Source.Rows(ctx, w.start, w.end)
	if err != nil {
		return models.FileArtifact{}, &RenderError{Batch: w.batch, Err: err}
	}
	data, err := job.Renderer.Render(ctx, job.Columns, rows)
	if err != nil {
		if de := deadlineErr(ctx); de != nil {
			return models.FileArtifact{}, de
		}
		return models.FileArtifact{}, &RenderError{Batch: w.batch, Err: err}
	}

	handle := batchHandle(job.ExportID, job.ExportType, w.batch, job.Renderer.Ext())
	if err := c.storage.Put(ctx, handle, data); err != nil {
		return models.FileArtifact{}, &RenderError{Batch: w.batch, Err: err}
	}

	c.log.Debug("chunk rendered",
		zap.String("export_id", job.ExportID.String()),
		zap.Int("batch", w.batch),
		zap.Int("rows", w.end-w.start+1),
		zap.Int("bytes", len(data)),
	)

	return models.FileArtifact{
		BatchNumber:   w.batch,
		ByteSize:      int64(len(data)),
		RangeStart:    w.start,
		RangeEnd:      w.end,
		ContentType:   job.Renderer.ContentType(),
		StorageHandle: handle,
	}, nil
}

// release deletes every handle that made it to storage before the failure.
// Best effort: the export is already failed either way.
func (c *Chunker) release(artifacts []models.FileArtifact) {
	ctx := context.Background()
	for _, a := range artifacts {
		if a.StorageHandle == "" {
			continue
		}
		if err := c.storage.Delete(ctx, a.StorageHandle); err != nil {
			c.log.Warn("release partial artifact", zap.String("handle", a.StorageHandle), zap.Error(err))
		}
	}
}

func deadlineErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ctx.Err()
}

// batchHandle builds the deterministic storage key for one chunk. The base
// name doubles as the suggested download filename.
func batchHandle(id uuid.UUID, exportType string, batch int, ext string) string {
	return fmt.Sprintf("exports/%s/%s_%s_batch%d.%s", id, exportType, shortID(id), batch, ext)
}

func archiveHandle(id uuid.UUID, exportType string) string {
	return fmt.Sprintf("exports/%s/%s_%s.zip", id, exportType, shortID(id))
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}
