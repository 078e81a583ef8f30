package export

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdpolover/ybb-data-management-service-sub000/internal/models"
)

func testArtifacts() []models.FileArtifact {
	return []models.FileArtifact{
		{BatchNumber: 1, ByteSize: 100, RangeStart: 1, RangeEnd: 5000, ContentType: "text/csv", StorageHandle: "exports/x/batch1.csv"},
		{BatchNumber: 2, ByteSize: 80, RangeStart: 5001, RangeEnd: 10000, ContentType: "text/csv", StorageHandle: "exports/x/batch2.csv"},
	}
}

func TestRegistry_CreateAndGet(t *testing.T) {
	clock := newFakeClock(time.Now())
	r := NewRegistry(clock, noplog())

	rec := processingRecord(clock, 10000)
	require.NoError(t, r.Create(rec))

	got, err := r.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusProcessing, got.Status)
	assert.Equal(t, rec.ID, got.ID)

	_, err = r.Get(uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_CreateRejectsCollision(t *testing.T) {
	clock := newFakeClock(time.Now())
	r := NewRegistry(clock, noplog())

	rec := processingRecord(clock, 10)
	require.NoError(t, r.Create(rec))
	assert.Error(t, r.Create(rec))
}

func TestRegistry_CompleteTransition(t *testing.T) {
	clock := newFakeClock(time.Now())
	r := NewRegistry(clock, noplog())

	rec := processingRecord(clock, 10000)
	require.NoError(t, r.Create(rec))

	archive := &models.ArchiveArtifact{ByteSize: 60, CompressionRatio: 3.0, StorageHandle: "exports/x/bundle.zip"}
	require.NoError(t, r.Complete(rec.ID, testArtifacts(), archive))

	got, err := r.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusSuccess, got.Status)
	assert.Len(t, got.Artifacts, 2)
	require.NotNil(t, got.Archive)
	assert.Equal(t, int64(60), got.Archive.ByteSize)

	// Exactly one transition out of processing.
	assert.ErrorIs(t, r.Complete(rec.ID, testArtifacts(), nil), ErrInvalidState)
	assert.ErrorIs(t, r.Fail(rec.ID, "too late"), ErrInvalidState)
}

func TestRegistry_FailTransition(t *testing.T) {
	clock := newFakeClock(time.Now())
	r := NewRegistry(clock, noplog())

	rec := processingRecord(clock, 10000)
	require.NoError(t, r.Create(rec))
	require.NoError(t, r.Fail(rec.ID, "render batch 2: boom"))

	got, err := r.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFailed, got.Status)
	assert.Equal(t, "render batch 2: boom", got.ErrorMsg)
	assert.Empty(t, got.Artifacts)

	assert.ErrorIs(t, r.Complete(rec.ID, testArtifacts(), nil), ErrInvalidState)
}

func TestRegistry_TransitionsOnUnknownID(t *testing.T) {
	r := NewRegistry(newFakeClock(time.Now()), noplog())
	id := uuid.New()
	assert.ErrorIs(t, r.Complete(id, nil, nil), ErrNotFound)
	assert.ErrorIs(t, r.Fail(id, "x"), ErrNotFound)
}

func TestRegistry_ReadersSeeNoTornState(t *testing.T) {
	clock := newFakeClock(time.Now())
	r := NewRegistry(clock, noplog())

	rec := processingRecord(clock, 10000)
	require.NoError(t, r.Create(rec))
	require.NoError(t, r.Complete(rec.ID, testArtifacts(), nil))

	// Mutating a returned copy must not affect the stored record.
	got, err := r.Get(rec.ID)
	require.NoError(t, err)
	got.Artifacts[0].StorageHandle = "tampered"
	got.Status = models.ExportStatusFailed

	again, err := r.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusSuccess, again.Status)
	assert.Equal(t, "exports/x/batch1.csv", again.Artifacts[0].StorageHandle)
}

func TestRegistry_Delete(t *testing.T) {
	clock := newFakeClock(time.Now())
	r := NewRegistry(clock, noplog())

	rec := processingRecord(clock, 10000)
	require.NoError(t, r.Create(rec))

	// Processing records cannot be deleted out from under their pipeline.
	_, err := r.Delete(rec.ID, time.Minute)
	assert.ErrorIs(t, err, ErrInvalidState)

	archive := &models.ArchiveArtifact{ByteSize: 60, StorageHandle: "exports/x/bundle.zip"}
	require.NoError(t, r.Complete(rec.ID, testArtifacts(), archive))

	handles, err := r.Delete(rec.ID, time.Minute)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"exports/x/batch1.csv", "exports/x/batch2.csv", "exports/x/bundle.zip",
	}, handles)

	// Deleted records look exactly like unknown IDs.
	_, err = r.Get(rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Delete(rec.ID, time.Minute)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_List(t *testing.T) {
	clock := newFakeClock(time.Now())
	r := NewRegistry(clock, noplog())

	first := processingRecord(clock, 10)
	require.NoError(t, r.Create(first))
	clock.Advance(time.Minute)
	second := processingRecord(clock, 20)
	require.NoError(t, r.Create(second))

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")
	assert.Equal(t, first.ID, list[1].ID)
}

func TestRegistry_Stats(t *testing.T) {
	clock := newFakeClock(time.Now())
	r := NewRegistry(clock, noplog())

	a := processingRecord(clock, 10)
	b := processingRecord(clock, 10)
	c := processingRecord(clock, 10)
	require.NoError(t, r.Create(a))
	require.NoError(t, r.Create(b))
	require.NoError(t, r.Create(c))
	require.NoError(t, r.Complete(a.ID, testArtifacts(), nil))
	require.NoError(t, r.Fail(b.ID, "boom"))

	s := r.Stats()
	assert.Equal(t, 1, s.Processing)
	assert.Equal(t, 1, s.Success)
	assert.Equal(t, 1, s.Failed)
}
