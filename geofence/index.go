// Package geofence holds the registered polygonal zones and answers
// point-in-polygon containment queries.
package geofence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"food-delivery/tracking/durable"
	"food-delivery/tracking/geo"
	"food-delivery/tracking/models"
)

const repoTimeout = 3 * time.Second

type entry struct {
	zone   models.Zone
	bounds geo.Bounds
}

// Index is append-mostly: readers load an immutable snapshot, writers
// build a new one under mu.
type Index struct {
	repo Repository
	cap  *durable.Capability

	mu       sync.Mutex
	snapshot atomic.Pointer[[]entry]
	pending  map[string]models.Zone
}

// NewIndex builds an index. repo may be nil, in which case zones live in
// memory only.
func NewIndex(repo Repository, capability *durable.Capability) *Index {
	idx := &Index{
		repo:    repo,
		cap:     capability,
		pending: make(map[string]models.Zone),
	}
	empty := []entry{}
	idx.snapshot.Store(&empty)
	return idx
}

// AddZone validates and closes ring, then stores the zone. Persistence is
// attempted when the repository is available; a failed write keeps the zone
// in memory and retries it on the next Refresh.
func (idx *Index) AddZone(ctx context.Context, name string, ring models.Ring, createdBy string) (models.Zone, error) {
	closed, err := NormalizeRing(ring)
	if err != nil {
		return models.Zone{}, err
	}

	zone := models.Zone{
		ID:        uuid.NewString(),
		Name:      name,
		Ring:      closed,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.repo != nil && !idx.persist(ctx, &zone) {
		idx.pending[zone.ID] = zone
	}
	idx.appendLocked(zone)
	return zone, nil
}

func (idx *Index) persist(ctx context.Context, zone *models.Zone) bool {
	if !idx.cap.Available() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()
	if err := idx.cap.Observe(idx.repo.Insert(ctx, zone)); err != nil {
		slog.Warn("geofence kept in memory only", "zone_id", zone.ID, "error", err)
		return false
	}
	return true
}

func (idx *Index) appendLocked(zone models.Zone) {
	old := *idx.snapshot.Load()
	next := make([]entry, len(old), len(old)+1)
	copy(next, old)
	next = append(next, entry{zone: zone, bounds: geo.RingBounds(zone.Ring)})
	idx.snapshot.Store(&next)
}

// ZonesContaining returns every zone whose ring contains the point. It
// never fails; an index that could not load zones answers with none.
func (idx *Index) ZonesContaining(lat, lng float64) []models.ZoneRef {
	matches := []models.ZoneRef{}
	for _, e := range *idx.snapshot.Load() {
		if !e.bounds.Contains(lat, lng) {
			continue
		}
		if geo.Contains(e.zone.Ring, lat, lng) {
			matches = append(matches, e.zone.Ref())
		}
	}
	return matches
}

// Zones returns all known zones in insertion order.
func (idx *Index) Zones() []models.Zone {
	snap := *idx.snapshot.Load()
	zones := make([]models.Zone, len(snap))
	for i, e := range snap {
		zones[i] = e.zone
	}
	return zones
}

// Refresh flushes zones created while degraded and reloads the full set
// from the repository. On failure the current snapshot is kept.
func (idx *Index) Refresh(ctx context.Context) error {
	if idx.repo == nil {
		return nil
	}
	if !idx.cap.Available() {
		return models.ErrUnavailable
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for id, zone := range idx.pending {
		zone := zone
		if !idx.persist(ctx, &zone) {
			return fmt.Errorf("flush pending zone %s: %w", id, models.ErrUnavailable)
		}
		delete(idx.pending, id)
	}

	lctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()
	zones, err := idx.repo.List(lctx)
	if err := idx.cap.Observe(err); err != nil {
		return fmt.Errorf("list geofences: %w", err)
	}

	next := make([]entry, 0, len(zones)+len(idx.pending))
	for _, z := range zones {
		closed, err := NormalizeRing(z.Ring)
		if err != nil {
			slog.Warn("skipping stored geofence", "zone_id", z.ID, "error", err)
			continue
		}
		z.Ring = closed
		next = append(next, entry{zone: z, bounds: geo.RingBounds(z.Ring)})
	}
	for _, z := range idx.pending {
		next = append(next, entry{zone: z, bounds: geo.RingBounds(z.Ring)})
	}
	idx.snapshot.Store(&next)
	return nil
}

// RefreshEvery calls Refresh on a ticker until ctx is done.
func (idx *Index) RefreshEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := idx.Refresh(ctx); err != nil {
				slog.Debug("geofence refresh skipped", "error", err)
			}
		}
	}
}

// NormalizeRing copies ring, checks it has at least three distinct vertices
// with valid coordinates, and closes it if the caller left it open.
func NormalizeRing(ring models.Ring) (models.Ring, error) {
	distinct := make(map[models.Vertex]struct{}, len(ring))
	for _, v := range ring {
		if err := models.ValidateCoordinate(v.Lat(), v.Lng()); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrInvalidGeometry, err)
		}
		distinct[v] = struct{}{}
	}
	if len(distinct) < 3 {
		return nil, fmt.Errorf("%w: ring needs at least 3 distinct vertices, got %d", models.ErrInvalidGeometry, len(distinct))
	}

	closed := make(models.Ring, len(ring), len(ring)+1)
	copy(closed, ring)
	if !closed.Closed() {
		closed = append(closed, closed[0])
	}
	return closed, nil
}
