package export

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdpolover/ybb-data-management-service-sub000/internal/storage"
)

func chunkJob(src RowSource, chunkSize int) Job {
	return Job{
		ExportID:   uuid.New(),
		ExportType: "participants",
		Source:     src,
		Renderer:   stubRenderer{},
		Columns:    []string{"id", "name"},
		ChunkSize:  chunkSize,
	}
}

func TestChunker_PartitionCompleteness(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		chunkSize int
		wantCount int
	}{
		{"exact multiple", 10000, 5000, 2},
		{"ragged tail", 12000, 5000, 3},
		{"single window", 50, 50, 1},
		{"chunk larger than data", 10, 100, 1},
		{"one row windows", 5, 1, 5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := storage.NewMemStore()
			c := NewChunker(store, 4, noplog())

			artifacts, err := c.Process(context.Background(), chunkJob(NewSliceSource(makeRows(tc.total)), tc.chunkSize))
			require.NoError(t, err)
			require.Len(t, artifacts, tc.wantCount)

			// Ascending batch numbers, contiguous ranges covering [1, total].
			covered := 0
			for i, a := range artifacts {
				assert.Equal(t, i+1, a.BatchNumber)
				if i == 0 {
					assert.Equal(t, 1, a.RangeStart)
				} else {
					assert.Equal(t, artifacts[i-1].RangeEnd+1, a.RangeStart)
				}
				assert.LessOrEqual(t, a.RecordCount(), tc.chunkSize)
				assert.NotEmpty(t, a.StorageHandle)
				assert.Positive(t, a.ByteSize)
				covered += a.RecordCount()
			}
			assert.Equal(t, tc.total, covered)
			assert.Equal(t, tc.total, artifacts[len(artifacts)-1].RangeEnd)
			assert.Equal(t, tc.wantCount, store.Len())
		})
	}
}

func TestChunker_OrderedResultDespiteConcurrency(t *testing.T) {
	store := storage.NewMemStore()
	c := NewChunker(store, 8, noplog())

	artifacts, err := c.Process(context.Background(), chunkJob(NewSliceSource(makeRows(2000)), 100))
	require.NoError(t, err)
	require.Len(t, artifacts, 20)

	assert.True(t, sort.SliceIsSorted(artifacts, func(i, j int) bool {
		return artifacts[i].BatchNumber < artifacts[j].BatchNumber
	}))
}

func TestChunker_ChunkFailureDiscardsEverything(t *testing.T) {
	store := storage.NewMemStore()
	c := NewChunker(store, 2, noplog())

	// Chunk 2 of 3 fails: rows 11..20 start with "r11".
	job := chunkJob(NewSliceSource(makeRows(30)), 10)
	job.Renderer = failingRenderer{failFirstCell: "r11"}

	artifacts, err := c.Process(context.Background(), job)
	require.Error(t, err)
	assert.Nil(t, artifacts)

	var renderErr *RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, 2, renderErr.Batch)

	// No partial-success state: every already-persisted chunk is released.
	assert.Equal(t, 0, store.Len())
}

func TestChunker_Timeout(t *testing.T) {
	store := storage.NewMemStore()
	c := NewChunker(store, 2, noplog())

	job := chunkJob(NewSliceSource(makeRows(100)), 10)
	job.Renderer = stallingRenderer{}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	artifacts, err := c.Process(ctx, job)
	assert.Nil(t, artifacts)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 0, store.Len())
}

func TestChunker_EmptyDatasetRejected(t *testing.T) {
	c := NewChunker(storage.NewMemStore(), 2, noplog())
	_, err := c.Process(context.Background(), chunkJob(NewSliceSource(nil), 10))
	assert.Error(t, err)
}
