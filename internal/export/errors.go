package export

import (
	"errors"
	"fmt"
)

// Registry-level failures. These propagate to the API layer as typed errors;
// handlers map them onto HTTP responses.
var (
	// ErrNotFound covers unknown, expired and deleted export IDs alike.
	ErrNotFound = errors.New("export: not found")

	// ErrInvalidState is returned when a transition is attempted on a record
	// that is not in the required source state.
	ErrInvalidState = errors.New("export: invalid state transition")

	// ErrNotReady is returned by the download gateway while the export is
	// still processing.
	ErrNotReady = errors.New("export: still processing")

	// ErrTimeout marks a pipeline that exceeded its wall-clock budget. It is
	// internal: the registry records it as a failure reason and clients only
	// ever see an ExportFailedError.
	ErrTimeout = errors.New("export: processing deadline exceeded")
)

// InvalidSelectorError is returned when an export completed successfully but
// the requested batch/archive selector does not exist on it.
type InvalidSelectorError struct {
	Selector string
	Reason   string
}

func (e *InvalidSelectorError) Error() string {
	return fmt.Sprintf("export: invalid selector %q: %s", e.Selector, e.Reason)
}

// ExportFailedError is returned by the download gateway for exports that
// terminated in the failed state. Reason is the stored failure message.
type ExportFailedError struct {
	Reason string
}

func (e *ExportFailedError) Error() string {
	return "export failed: " + e.Reason
}

// RenderError wraps a failure to render or persist a single chunk. The whole
// export fails on the first one; partial artifacts are released.
type RenderError struct {
	Batch int
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render batch %d: %v", e.Batch, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// ArchiveError wraps a failure to bundle or compress already-rendered
// artifacts. An export is only useful as a coherent whole, so this fails the
// export even though every chunk rendered fine.
type ArchiveError struct {
	Err error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("archive: %v", e.Err)
}

func (e *ArchiveError) Unwrap() error { return e.Err }
