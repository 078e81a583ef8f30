package export

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hdpolover/ybb-data-management-service-sub000/internal/models"
	"github.com/hdpolover/ybb-data-management-service-sub000/internal/storage"
)

// SelectorKind identifies which artifact of an export a download targets.
type SelectorKind string

const (
	// SelectorPrimary resolves the lone artifact of a single_file or
	// compressed_single export.
	SelectorPrimary SelectorKind = "primary"
	// SelectorBatch resolves one batch of a multi_file export.
	SelectorBatch SelectorKind = "batch"
	// SelectorArchive resolves the bundled archive of a multi_file export.
	SelectorArchive SelectorKind = "archive"
)

// Selector addresses one downloadable object within an export.
type Selector struct {
	Kind  SelectorKind
	Batch int // meaningful only for SelectorBatch
}

func (s Selector) String() string {
	if s.Kind == SelectorBatch {
		return fmt.Sprintf("batch:%d", s.Batch)
	}
	return string(s.Kind)
}

// Download is a resolved byte stream plus the response metadata the HTTP
// layer needs. The caller owns Body and must close it.
type Download struct {
	Body        io.ReadCloser
	ContentType string
	Filename    string
	ByteSize    int64
}

// Gateway resolves an export ID plus selector to a byte stream, enforcing
// the existence/expiry invariants. It never buffers whole files: the stream
// comes straight from the storage backend.
type Gateway struct {
	registry *Registry
	storage  storage.Backend
	log      *zap.Logger
}

func NewGateway(registry *Registry, store storage.Backend, log *zap.Logger) *Gateway {
	return &Gateway{registry: registry, storage: store, log: log}
}

// Resolve validates the export's state and the selector, then opens a stream
// over the artifact.
func (g *Gateway) Resolve(ctx context.Context, id uuid.UUID, sel Selector) (*Download, error) {
	rec, err := g.registry.Get(id)
	if err != nil {
		return nil, err
	}

	switch rec.Status {
	case models.ExportStatusProcessing:
		return nil, ErrNotReady
	case models.ExportStatusFailed:
		return nil, &ExportFailedError{Reason: rec.ErrorMsg}
	case models.ExportStatusSuccess:
		// fall through to selector resolution
	default:
		// Retrievable() filtered expired/deleted in Get; nothing else exists.
		return nil, ErrNotFound
	}

	handle, contentType, size, err := resolveSelector(rec, sel)
	if err != nil {
		return nil, err
	}

	body, err := g.storage.Open(ctx, handle)
	if err != nil {
		// The registry said success but the bytes are gone. Surface as not
		// found rather than a partial/corrupt result.
		g.log.Error("gateway: stored artifact missing",
			zap.String("export_id", id.String()),
			zap.String("handle", handle),
			zap.Error(err),
		)
		return nil, ErrNotFound
	}

	return &Download{
		Body:        body,
		ContentType: contentType,
		Filename:    path.Base(handle),
		ByteSize:    size,
	}, nil
}

func resolveSelector(rec *models.ExportRecord, sel Selector) (handle, contentType string, size int64, err error) {
	switch sel.Kind {
	case SelectorPrimary:
		if len(rec.Artifacts) != 1 {
			return "", "", 0, &InvalidSelectorError{
				Selector: sel.String(),
				Reason:   fmt.Sprintf("export has %d batches; use an explicit batch or the archive", len(rec.Artifacts)),
			}
		}
		a := rec.Artifacts[0]
		return a.StorageHandle, a.ContentType, a.ByteSize, nil

	case SelectorBatch:
		if rec.Strategy != models.StrategyMultiFile {
			return "", "", 0, &InvalidSelectorError{
				Selector: sel.String(),
				Reason:   fmt.Sprintf("%s export has no batches", rec.Strategy),
			}
		}
		if sel.Batch < 1 || sel.Batch > len(rec.Artifacts) {
			return "", "", 0, &InvalidSelectorError{
				Selector: sel.String(),
				Reason:   fmt.Sprintf("batch out of range 1..%d", len(rec.Artifacts)),
			}
		}
		a := rec.Artifacts[sel.Batch-1]
		return a.StorageHandle, a.ContentType, a.ByteSize, nil

	case SelectorArchive:
		if rec.Archive == nil {
			return "", "", 0, &InvalidSelectorError{
				Selector: sel.String(),
				Reason:   fmt.Sprintf("%s export has no archive", rec.Strategy),
			}
		}
		return rec.Archive.StorageHandle, "application/zip", rec.Archive.ByteSize, nil

	default:
		return "", "", 0, &InvalidSelectorError{Selector: sel.String(), Reason: "unknown selector"}
	}
}
