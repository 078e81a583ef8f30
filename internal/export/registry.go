package export

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hdpolover/ybb-data-management-service-sub000/internal/models"
)

// Clock abstracts time.Now so retention tests can advance time without
// sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Registry is the authoritative, concurrency-safe store of export state,
// keyed by export ID. A single mutex guards the map; no blocking I/O happens
// while it is held. Storage handles are only released by callers after the
// corresponding state transition has been committed here, never before.
type Registry struct {
	mu      sync.Mutex
	records map[uuid.UUID]*models.ExportRecord
	clock   Clock
	log     *zap.Logger
}

func NewRegistry(clock Clock, log *zap.Logger) *Registry {
	return &Registry{
		records: make(map[uuid.UUID]*models.ExportRecord),
		clock:   clock,
		log:     log,
	}
}

// Create inserts a new record in processing state. Fails only on ID
// collision, which the UUID generation scheme makes practically unreachable.
func (r *Registry) Create(rec *models.ExportRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ID]; ok {
		return fmt.Errorf("export: id collision on %s", rec.ID)
	}
	rec.Status = models.ExportStatusProcessing
	r.records[rec.ID] = rec.Clone()
	return nil
}

// Complete transitions processing -> success with the full artifact list.
// The artifact list is write-once: after this returns, any reader observes
// the complete list or none, never a partial one.
func (r *Registry) Complete(id uuid.UUID, artifacts []models.FileArtifact, archive *models.ArchiveArtifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return ErrNotFound
	}
	if rec.Status != models.ExportStatusProcessing {
		return fmt.Errorf("%w: complete on %s record", ErrInvalidState, rec.Status)
	}
	rec.Artifacts = make([]models.FileArtifact, len(artifacts))
	copy(rec.Artifacts, artifacts)
	if archive != nil {
		a := *archive
		rec.Archive = &a
	}
	rec.Status = models.ExportStatusSuccess
	return nil
}

// Fail transitions processing -> failed with a human-readable reason. Failed
// records stay inspectable through status polls until they expire.
func (r *Registry) Fail(id uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return ErrNotFound
	}
	if rec.Status != models.ExportStatusProcessing {
		return fmt.Errorf("%w: fail on %s record", ErrInvalidState, rec.Status)
	}
	rec.Status = models.ExportStatusFailed
	rec.ErrorMsg = reason
	rec.Artifacts = nil
	rec.Archive = nil
	return nil
}

// Get returns a deep copy of the record. Expired and deleted records are
// reported as ErrNotFound, never as stale state.
func (r *Registry) Get(id uuid.UUID) (*models.ExportRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || !rec.Status.Retrievable() {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// List returns copies of all retrievable records, newest first.
func (r *Registry) List() []*models.ExportRecord {
	r.mu.Lock()
	out := make([]*models.ExportRecord, 0, len(r.records))
	for _, rec := range r.records {
		if rec.Status.Retrievable() {
			out = append(out, rec.Clone())
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Delete marks a finished record deleted and returns the storage handles it
// owned so the caller can release them after the transition is committed.
// Unknown, expired and already-deleted IDs report ErrNotFound; a processing
// record cannot be deleted out from under its pipeline.
func (r *Registry) Delete(id uuid.UUID, tombstoneTTL time.Duration) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || !rec.Status.Retrievable() {
		return nil, ErrNotFound
	}
	if rec.Status == models.ExportStatusProcessing {
		return nil, fmt.Errorf("%w: delete on processing record", ErrInvalidState)
	}
	handles := rec.StorageHandles()
	rec.Status = models.ExportStatusDeleted
	rec.Artifacts = nil
	rec.Archive = nil
	rec.PurgeAt = r.clock.Now().Add(tombstoneTTL)
	return handles, nil
}

// Stats is a per-status census of the registry, exposed through the health
// endpoint so operators can see pressure against the concurrency bound.
type Stats struct {
	Processing int `json:"processing"`
	Success    int `json:"success"`
	Failed     int `json:"failed"`
	Tombstones int `json:"tombstones"`
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	var s Stats
	for _, rec := range r.records {
		switch rec.Status {
		case models.ExportStatusProcessing:
			s.Processing++
		case models.ExportStatusSuccess:
			s.Success++
		case models.ExportStatusFailed:
			s.Failed++
		default:
			s.Tombstones++
		}
	}
	return s
}

// RetentionPolicy parameterizes one sweep.
type RetentionPolicy struct {
	// Grace is the minimum age below which a record is immune to expiry and
	// eviction, regardless of TTL or count pressure.
	Grace time.Duration

	// MaxActive bounds processing+success records. Soft bound: eviction only
	// ever touches grace-eligible records, so the bound may be exceeded while
	// everything is young.
	MaxActive int

	// TombstoneTTL is how long expired/deleted entries linger before the map
	// entry itself is purged.
	TombstoneTTL time.Duration
}

// Reclaimed reports one record transitioned by a sweep, carrying the storage
// handles to release once the lock has been dropped.
type Reclaimed struct {
	ID      uuid.UUID
	Reason  string // "ttl" or "evicted"
	Handles []string
}

// Sweep performs one retention pass under the registry lock: TTL expiry,
// bounded-count eviction (oldest-created first, ties broken by ID), and
// tombstone purge. It never touches records younger than the grace period.
// Storage is NOT released here; the caller deletes the returned handles after
// Sweep returns, so no reader can resolve a handle to already-deleted bytes.
func (r *Registry) Sweep(policy RetentionPolicy) []Reclaimed {
	now := r.clock.Now()
	cutoff := now.Add(-policy.Grace)

	r.mu.Lock()
	defer r.mu.Unlock()

	var reclaimed []Reclaimed

	// 1. TTL expiry. Failed records hold no storage but expire on the same
	// schedule so they do not accumulate.
	for _, rec := range r.records {
		if rec.Status != models.ExportStatusSuccess && rec.Status != models.ExportStatusFailed {
			continue
		}
		if now.Before(rec.ExpiresAt) || rec.CreatedAt.After(cutoff) {
			continue
		}
		reclaimed = append(reclaimed, Reclaimed{ID: rec.ID, Reason: "ttl", Handles: rec.StorageHandles()})
		rec.Status = models.ExportStatusExpired
		rec.Artifacts = nil
		rec.Archive = nil
		rec.PurgeAt = now.Add(policy.TombstoneTTL)
	}

	// 2. Bounded-count eviction, oldest first among grace-eligible records.
	active := 0
	var candidates []*models.ExportRecord
	for _, rec := range r.records {
		if rec.Status == models.ExportStatusProcessing || rec.Status == models.ExportStatusSuccess {
			active++
			if !rec.CreatedAt.After(cutoff) {
				candidates = append(candidates, rec)
			}
		}
	}
	if excess := active - policy.MaxActive; excess > 0 {
		sort.Slice(candidates, func(i, j int) bool {
			if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
				return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
			}
			return candidates[i].ID.String() < candidates[j].ID.String()
		})
		if excess > len(candidates) {
			excess = len(candidates)
		}
		for _, rec := range candidates[:excess] {
			reclaimed = append(reclaimed, Reclaimed{ID: rec.ID, Reason: "evicted", Handles: rec.StorageHandles()})
			rec.Status = models.ExportStatusDeleted
			rec.Artifacts = nil
			rec.Archive = nil
			rec.PurgeAt = now.Add(policy.TombstoneTTL)
		}
	}

	// 3. Tombstone purge. IDs are UUIDs, so dropping the entry cannot lead
	// to reuse.
	for id, rec := range r.records {
		if !rec.Status.Retrievable() && !rec.PurgeAt.IsZero() && !now.Before(rec.PurgeAt) {
			delete(r.records, id)
		}
	}

	return reclaimed
}
