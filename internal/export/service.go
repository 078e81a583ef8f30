package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hdpolover/ybb-data-management-service-sub000/internal/config"
	"github.com/hdpolover/ybb-data-management-service-sub000/internal/models"
	"github.com/hdpolover/ybb-data-management-service-sub000/internal/render"
	"github.com/hdpolover/ybb-data-management-service-sub000/internal/storage"
)

// Request-validation failures surfaced by CreateExport.
var (
	ErrUnknownTemplate = errors.New("export: unknown template")
	ErrEmptyDataset    = errors.New("export: dataset has no rows")
)

// EnqueueFunc hands an export off to the task queue instead of an in-process
// goroutine. The rows ride along in the payload because the registry and the
// dataset are both ephemeral.
type EnqueueFunc func(ctx context.Context, id uuid.UUID, exportType, template string, rows [][]string) error

// Manager is the facade over the export lifecycle: strategy selection, chunk
// processing, archiving, registry bookkeeping, downloads and deletion.
type Manager struct {
	cfg       config.ExportConfig
	templates map[string]config.TemplateConfig
	renderers map[string]render.Renderer
	clock     Clock
	registry  *Registry
	chunker   *Chunker
	archiver  *Archiver
	gateway   *Gateway
	storage   storage.Backend
	enqueue   EnqueueFunc
	log       *zap.Logger
}

type Option func(*Manager)

// WithEnqueue switches dispatch from an in-process goroutine to the queue.
func WithEnqueue(fn EnqueueFunc) Option {
	return func(m *Manager) { m.enqueue = fn }
}

func NewManager(cfg config.ExportConfig, templates map[string]config.TemplateConfig, registry *Registry, store storage.Backend, clock Clock, log *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:       cfg,
		templates: templates,
		renderers: render.ByFormat(),
		clock:     clock,
		registry:  registry,
		chunker:   NewChunker(store, cfg.RenderWorkers, log),
		archiver:  NewArchiver(store, log),
		gateway:   NewGateway(registry, store, log),
		storage:   store,
		log:       log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Policy derives the retention policy the scheduler enforces.
func (m *Manager) Policy() RetentionPolicy {
	return RetentionPolicy{
		Grace:        m.cfg.MinExportAge,
		MaxActive:    m.cfg.MaxConcurrentExports,
		TombstoneTTL: m.cfg.TombstoneTTL,
	}
}

func (m *Manager) limits() Limits {
	return Limits{
		SingleFileThreshold: m.cfg.SingleFileThreshold,
		MultiFileThreshold:  m.cfg.MultiFileThreshold,
		MinChunkSize:        m.cfg.MinChunkSize,
		MaxChunkSize:        m.cfg.MaxChunkSize,
	}
}

// CreateExport registers a new export in processing state and dispatches the
// pipeline. The returned record is immediately pollable; the heavy work runs
// in the background.
func (m *Manager) CreateExport(ctx context.Context, exportType, template string, src RowSource) (*models.ExportRecord, error) {
	tpl, ok := m.templates[template]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, template)
	}
	total := src.Count()
	if total < 1 {
		return nil, ErrEmptyDataset
	}

	sel := SelectStrategy(total, tpl.ChunkSize, m.limits())
	now := m.clock.Now()
	rec := &models.ExportRecord{
		ID:           uuid.New(),
		ExportType:   exportType,
		Template:     template,
		Strategy:     sel.Strategy,
		Status:       models.ExportStatusProcessing,
		TotalRecords: total,
		ChunkSize:    sel.ChunkSize,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.cfg.RetentionTTL),
	}
	if err := m.registry.Create(rec); err != nil {
		return nil, err
	}

	m.log.Info("export created",
		zap.String("export_id", rec.ID.String()),
		zap.String("export_type", exportType),
		zap.String("template", template),
		zap.String("strategy", string(sel.Strategy)),
		zap.Int("total_records", total),
		zap.Int("chunk_size", sel.ChunkSize),
	)

	if m.enqueue != nil {
		rows, err := src.Rows(ctx, 1, total)
		if err == nil {
			err = m.enqueue(ctx, rec.ID, exportType, template, rows)
		}
		if err != nil {
			m.failExport(rec.ID, fmt.Errorf("dispatch: %w", err))
		}
	} else {
		// Detach from the request context: the pipeline owns its own
		// wall-clock budget and must not die with the HTTP request.
		go m.RunPipeline(context.Background(), rec.ID, src) //nolint:errcheck
	}

	return m.registry.Get(rec.ID)
}

// RunPipeline drives one export to a terminal state: chunk rendering,
// optional compression/bundling, then the single processing->success or
// processing->failed transition. Internal errors are recorded on the record,
// never propagated; the returned error is only for states where the record
// itself is gone (evicted mid-flight).
func (m *Manager) RunPipeline(ctx context.Context, id uuid.UUID, src RowSource) error {
	rec, err := m.registry.Get(id)
	if err != nil {
		return err
	}
	tpl, ok := m.templates[rec.Template]
	if !ok {
		m.failExport(id, fmt.Errorf("%w: %q", ErrUnknownTemplate, rec.Template))
		return nil
	}
	renderer := m.renderers[tpl.Format]

	ctx, cancel := context.WithTimeout(ctx, m.cfg.ProcessTimeout)
	defer cancel()

	artifacts, err := m.chunker.Process(ctx, Job{
		ExportID:   id,
		ExportType: rec.ExportType,
		Source:     src,
		Renderer:   renderer,
		Columns:    tpl.Columns,
		ChunkSize:  rec.ChunkSize,
	})
	if err != nil {
		m.failExport(id, err)
		return nil
	}

	var archive *models.ArchiveArtifact
	switch rec.Strategy {
	case models.StrategyCompressedSingle:
		artifacts[0], err = m.archiver.Compress(ctx, artifacts[0])
	case models.StrategyMultiFile:
		archive, err = m.archiver.Bundle(ctx, id, rec.ExportType, artifacts)
	}
	if err != nil {
		m.releaseArtifacts(artifacts, nil)
		m.failExport(id, err)
		return nil
	}

	if err := m.registry.Complete(id, artifacts, archive); err != nil {
		// The record was evicted or deleted while we rendered. Ownership of
		// the fresh bytes never reached the registry, so release them here.
		m.releaseArtifacts(artifacts, archive)
		m.log.Warn("export finished after record left processing state",
			zap.String("export_id", id.String()), zap.Error(err))
		return err
	}

	m.log.Info("export completed",
		zap.String("export_id", id.String()),
		zap.Int("files", len(artifacts)),
		zap.Bool("archived", archive != nil),
	)
	return nil
}

// failExport records the terminal failure reason. Internal errors (render,
// archive, timeout) are converted to the stored message here; clients only
// ever see them through ExportFailedError on download or the status poll.
func (m *Manager) failExport(id uuid.UUID, cause error) {
	reason := cause.Error()
	if errors.Is(cause, ErrTimeout) {
		reason = fmt.Sprintf("processing timed out after %s", m.cfg.ProcessTimeout)
	}
	if err := m.registry.Fail(id, reason); err != nil {
		m.log.Warn("mark export failed", zap.String("export_id", id.String()), zap.Error(err))
		return
	}
	m.log.Error("export failed", zap.String("export_id", id.String()), zap.String("reason", reason))
}

func (m *Manager) releaseArtifacts(artifacts []models.FileArtifact, archive *models.ArchiveArtifact) {
	ctx := context.Background()
	for _, a := range artifacts {
		if a.StorageHandle == "" {
			continue
		}
		if err := m.storage.Delete(ctx, a.StorageHandle); err != nil {
			m.log.Warn("release artifact", zap.String("handle", a.StorageHandle), zap.Error(err))
		}
	}
	if archive != nil && archive.StorageHandle != "" {
		if err := m.storage.Delete(ctx, archive.StorageHandle); err != nil {
			m.log.Warn("release archive", zap.String("handle", archive.StorageHandle), zap.Error(err))
		}
	}
}

// GetStatus returns a copy of the record for status polling.
func (m *Manager) GetStatus(id uuid.UUID) (*models.ExportRecord, error) {
	return m.registry.Get(id)
}

// ListExports returns all retrievable records, newest first.
func (m *Manager) ListExports() []*models.ExportRecord {
	return m.registry.List()
}

// Download resolves a selector to a byte stream.
func (m *Manager) Download(ctx context.Context, id uuid.UUID, sel Selector) (*Download, error) {
	return m.gateway.Resolve(ctx, id, sel)
}

// DeleteExport removes an export on explicit client request. Storage is
// released only after the registry transition has been committed.
func (m *Manager) DeleteExport(ctx context.Context, id uuid.UUID) error {
	handles, err := m.registry.Delete(id, m.cfg.TombstoneTTL)
	if err != nil {
		return err
	}
	for _, handle := range handles {
		if err := m.storage.Delete(ctx, handle); err != nil {
			m.log.Warn("delete export storage", zap.String("handle", handle), zap.Error(err))
		}
	}
	m.log.Info("export deleted", zap.String("export_id", id.String()))
	return nil
}

// Stats exposes the registry census for the health endpoint.
func (m *Manager) Stats() Stats {
	return m.registry.Stats()
}
