package export

import (
	"github.com/hdpolover/ybb-data-management-service-sub000/internal/models"
)

// Limits are the record-count bands and chunk-size clamp applied when picking
// a processing strategy. Validated at startup as part of the configuration.
type Limits struct {
	SingleFileThreshold int
	MultiFileThreshold  int
	MinChunkSize        int
	MaxChunkSize        int
}

// Selection is the outcome of strategy selection, fixed at creation time.
type Selection struct {
	Strategy  models.Strategy
	ChunkSize int
}

// SelectStrategy picks the processing strategy and chunk size for a dataset.
// Pure function: no side effects, no I/O; identical inputs always yield
// identical output. Assumes totalRecords >= 1 (zero-row datasets are rejected
// upstream).
//
//	totalRecords <  SingleFileThreshold  -> single_file, one artifact
//	totalRecords <  MultiFileThreshold   -> compressed_single, one artifact,
//	                                        gzip-wrapped for transport savings
//	totalRecords >= MultiFileThreshold   -> multi_file, template chunk size
//	                                        clamped to [min, max]
func SelectStrategy(totalRecords, templateChunkSize int, lim Limits) Selection {
	switch {
	case totalRecords < lim.SingleFileThreshold:
		return Selection{Strategy: models.StrategySingleFile, ChunkSize: totalRecords}
	case totalRecords < lim.MultiFileThreshold:
		return Selection{Strategy: models.StrategyCompressedSingle, ChunkSize: totalRecords}
	default:
		size := templateChunkSize
		if size < lim.MinChunkSize {
			size = lim.MinChunkSize
		}
		if size > lim.MaxChunkSize {
			size = lim.MaxChunkSize
		}
		return Selection{Strategy: models.StrategyMultiFile, ChunkSize: size}
	}
}
