package models

import (
	"time"

	"github.com/google/uuid"
)

type ExportStatus string

const (
	ExportStatusProcessing ExportStatus = "processing"
	ExportStatusSuccess    ExportStatus = "success"
	ExportStatusFailed     ExportStatus = "failed"
	ExportStatusExpired    ExportStatus = "expired"
	ExportStatusDeleted    ExportStatus = "deleted"
)

// Terminal reports whether the export pipeline has finished with the record,
// successfully or not.
func (s ExportStatus) Terminal() bool {
	return s != ExportStatusProcessing
}

// Retrievable reports whether clients may still observe the record. Expired
// and deleted records are indistinguishable from unknown IDs.
func (s ExportStatus) Retrievable() bool {
	return s == ExportStatusProcessing || s == ExportStatusSuccess || s == ExportStatusFailed
}

type Strategy string

const (
	StrategySingleFile       Strategy = "single_file"
	StrategyCompressedSingle Strategy = "compressed_single"
	StrategyMultiFile        Strategy = "multi_file"
)

// FileArtifact describes one rendered chunk. Immutable once created.
type FileArtifact struct {
	BatchNumber   int    `json:"batch_number"`
	ByteSize      int64  `json:"byte_size"`
	RangeStart    int    `json:"range_start"`
	RangeEnd      int    `json:"range_end"`
	ContentType   string `json:"content_type"`
	StorageHandle string `json:"-"`
}

// RecordCount returns the number of rows covered by the artifact's range.
func (a FileArtifact) RecordCount() int {
	return a.RangeEnd - a.RangeStart + 1
}

// ArchiveArtifact describes the compressed bundle of a multi-file export.
// Immutable once created.
type ArchiveArtifact struct {
	ByteSize         int64   `json:"byte_size"`
	CompressionRatio float64 `json:"compression_ratio"`
	StorageHandle    string  `json:"-"`
}

// ExportRecord is the authoritative state of one export request. The registry
// owns the canonical instance; callers only ever see deep copies.
type ExportRecord struct {
	ID           uuid.UUID        `json:"id"`
	ExportType   string           `json:"export_type"`
	Template     string           `json:"template"`
	Strategy     Strategy         `json:"strategy"`
	Status       ExportStatus     `json:"status"`
	TotalRecords int              `json:"total_records"`
	ChunkSize    int              `json:"chunk_size"`
	Artifacts    []FileArtifact   `json:"artifacts,omitempty"`
	Archive      *ArchiveArtifact `json:"archive,omitempty"`
	ErrorMsg     string           `json:"error,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	ExpiresAt    time.Time        `json:"expires_at"`

	// PurgeAt is set when the record reaches expired/deleted; the retention
	// sweep drops the map entry once the tombstone window has passed.
	PurgeAt time.Time `json:"-"`
}

// Clone returns a deep copy so registry readers never share slices with the
// record under mutation.
func (r *ExportRecord) Clone() *ExportRecord {
	cp := *r
	if r.Artifacts != nil {
		cp.Artifacts = make([]FileArtifact, len(r.Artifacts))
		copy(cp.Artifacts, r.Artifacts)
	}
	if r.Archive != nil {
		a := *r.Archive
		cp.Archive = &a
	}
	return &cp
}

// StorageHandles lists every handle the record currently owns.
func (r *ExportRecord) StorageHandles() []string {
	handles := make([]string, 0, len(r.Artifacts)+1)
	for _, a := range r.Artifacts {
		if a.StorageHandle != "" {
			handles = append(handles, a.StorageHandle)
		}
	}
	if r.Archive != nil && r.Archive.StorageHandle != "" {
		handles = append(handles, r.Archive.StorageHandle)
	}
	return handles
}

// TotalBytes sums artifact sizes, excluding the archive.
func (r *ExportRecord) TotalBytes() int64 {
	var n int64
	for _, a := range r.Artifacts {
		n += a.ByteSize
	}
	return n
}
