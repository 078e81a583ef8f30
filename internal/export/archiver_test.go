package export

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdpolover/ybb-data-management-service-sub000/internal/models"
	"github.com/hdpolover/ybb-data-management-service-sub000/internal/storage"
)

func TestArchiver_Bundle(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	a := NewArchiver(store, noplog())
	id := uuid.New()

	// Repetitive payloads so the zip actually compresses.
	payloads := map[string]string{
		"exports/" + id.String() + "/participants_b1.csv": strings.Repeat("alpha,beta\n", 500),
		"exports/" + id.String() + "/participants_b2.csv": strings.Repeat("gamma,delta\n", 500),
	}
	var artifacts []models.FileArtifact
	batch := 1
	for handle, data := range payloads {
		require.NoError(t, store.Put(ctx, handle, []byte(data)))
		artifacts = append(artifacts, models.FileArtifact{
			BatchNumber:   batch,
			ByteSize:      int64(len(data)),
			ContentType:   "text/csv",
			StorageHandle: handle,
		})
		batch++
	}

	archive, err := a.Bundle(ctx, id, "participants", artifacts)
	require.NoError(t, err)
	assert.Greater(t, archive.CompressionRatio, 1.0)
	assert.Positive(t, archive.ByteSize)

	raw, err := store.Get(ctx, archive.StorageHandle)
	require.NoError(t, err)
	assert.Equal(t, archive.ByteSize, int64(len(raw)))

	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		// Entry names are the artifact base names, content byte-identical.
		assert.Equal(t, payloads["exports/"+id.String()+"/"+f.Name], string(content))
	}

	// Batch artifacts are untouched: both originals plus the archive remain.
	assert.Equal(t, 3, store.Len())
}

func TestArchiver_BundleMissingArtifact(t *testing.T) {
	store := storage.NewMemStore()
	a := NewArchiver(store, noplog())

	_, err := a.Bundle(context.Background(), uuid.New(), "participants", []models.FileArtifact{
		{BatchNumber: 1, StorageHandle: "exports/nope/batch1.csv"},
	})
	var archErr *ArchiveError
	assert.ErrorAs(t, err, &archErr)
}

func TestArchiver_Compress(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	a := NewArchiver(store, noplog())

	handle := "exports/x/participants_b1.csv"
	data := strings.Repeat("id,name\n1,alice\n", 300)
	require.NoError(t, store.Put(ctx, handle, []byte(data)))

	original := models.FileArtifact{
		BatchNumber:   1,
		ByteSize:      int64(len(data)),
		RangeStart:    1,
		RangeEnd:      300,
		ContentType:   "text/csv",
		StorageHandle: handle,
	}
	compressed, err := a.Compress(ctx, original)
	require.NoError(t, err)

	assert.Equal(t, handle+".gz", compressed.StorageHandle)
	assert.Equal(t, "application/gzip", compressed.ContentType)
	assert.Less(t, compressed.ByteSize, original.ByteSize)
	// Record range survives compression untouched.
	assert.Equal(t, 1, compressed.BatchNumber)
	assert.Equal(t, 1, compressed.RangeStart)
	assert.Equal(t, 300, compressed.RangeEnd)

	// The uncompressed object is gone, only the gzip remains.
	assert.Equal(t, 1, store.Len())
	_, err = store.Get(ctx, handle)
	assert.Error(t, err)

	raw, err := store.Get(ctx, compressed.StorageHandle)
	require.NoError(t, err)
	gr, err := gzip.NewReader(bytes.NewReader(raw))
	require.NoError(t, err)
	roundTripped, err := io.ReadAll(gr)
	require.NoError(t, err)
	assert.Equal(t, data, string(roundTripped))
}
