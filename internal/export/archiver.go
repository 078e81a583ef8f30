package export

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"path"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hdpolover/ybb-data-management-service-sub000/internal/models"
	"github.com/hdpolover/ybb-data-management-service-sub000/internal/storage"
)

// Archiver bundles finished artifacts for transport. It is a pure
// transformation over already-produced artifacts: it reads them, never
// mutates them.
type Archiver struct {
	storage storage.Backend
	log     *zap.Logger
}

func NewArchiver(store storage.Backend, log *zap.Logger) *Archiver {
	return &Archiver{storage: store, log: log}
}

// Bundle zips all artifacts of a multi-file export into one archive and
// records the achieved compression ratio.
func (a *Archiver) Bundle(ctx context.Context, id uuid.UUID, exportType string, artifacts []models.FileArtifact) (*models.ArchiveArtifact, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	var uncompressed int64
	for _, artifact := range artifacts {
		data, err := a.storage.Get(ctx, artifact.StorageHandle)
		if err != nil {
			return nil, &ArchiveError{Err: fmt.Errorf("read batch %d: %w", artifact.BatchNumber, err)}
		}
		w, err := zw.Create(path.Base(artifact.StorageHandle))
		if err != nil {
			return nil, &ArchiveError{Err: fmt.Errorf("zip entry batch %d: %w", artifact.BatchNumber, err)}
		}
		if _, err := w.Write(data); err != nil {
			return nil, &ArchiveError{Err: fmt.Errorf("zip write batch %d: %w", artifact.BatchNumber, err)}
		}
		uncompressed += int64(len(data))
	}
	if err := zw.Close(); err != nil {
		return nil, &ArchiveError{Err: fmt.Errorf("zip close: %w", err)}
	}

	handle := archiveHandle(id, exportType)
	compressed := int64(buf.Len())
	if err := a.storage.Put(ctx, handle, buf.Bytes()); err != nil {
		return nil, &ArchiveError{Err: fmt.Errorf("store archive: %w", err)}
	}

	ratio := compressionRatio(uncompressed, compressed)
	a.log.Info("archive bundled",
		zap.String("export_id", id.String()),
		zap.Int("files", len(artifacts)),
		zap.Int64("uncompressed_bytes", uncompressed),
		zap.Int64("compressed_bytes", compressed),
		zap.Float64("compression_ratio", ratio),
	)

	return &models.ArchiveArtifact{
		ByteSize:         compressed,
		CompressionRatio: ratio,
		StorageHandle:    handle,
	}, nil
}

// Compress gzip-wraps the lone artifact of a compressed_single export for
// transport savings, replacing its stored bytes. The returned artifact keeps
// the batch number and record range; only the handle, size and content type
// change. The original object is deleted once the compressed one is stored.
func (a *Archiver) Compress(ctx context.Context, artifact models.FileArtifact) (models.FileArtifact, error) {
	data, err := a.storage.Get(ctx, artifact.StorageHandle)
	if err != nil {
		return models.FileArtifact{}, &ArchiveError{Err: fmt.Errorf("read artifact: %w", err)}
	}

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(data); err != nil {
		return models.FileArtifact{}, &ArchiveError{Err: fmt.Errorf("gzip write: %w", err)}
	}
	if err := gw.Close(); err != nil {
		return models.FileArtifact{}, &ArchiveError{Err: fmt.Errorf("gzip close: %w", err)}
	}

	handle := artifact.StorageHandle + ".gz"
	if err := a.storage.Put(ctx, handle, buf.Bytes()); err != nil {
		return models.FileArtifact{}, &ArchiveError{Err: fmt.Errorf("store compressed: %w", err)}
	}
	if err := a.storage.Delete(ctx, artifact.StorageHandle); err != nil {
		a.log.Warn("delete uncompressed artifact", zap.String("handle", artifact.StorageHandle), zap.Error(err))
	}

	a.log.Info("artifact compressed",
		zap.String("handle", handle),
		zap.Int64("uncompressed_bytes", int64(len(data))),
		zap.Int("compressed_bytes", buf.Len()),
		zap.Float64("compression_ratio", compressionRatio(int64(len(data)), int64(buf.Len()))),
	)

	compressed := artifact
	compressed.StorageHandle = handle
	compressed.ByteSize = int64(buf.Len())
	compressed.ContentType = "application/gzip"
	return compressed, nil
}

func compressionRatio(uncompressed, compressed int64) float64 {
	if compressed <= 0 {
		return 0
	}
	return float64(uncompressed) / float64(compressed)
}
