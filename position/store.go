// Package position keeps the latest known position of every tracked entity.
package position

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"food-delivery/tracking/durable"
	"food-delivery/tracking/models"
)

const (
	shardCount    = 64
	mirrorTimeout = 2 * time.Second
)

// Mirror is an optional durable copy of the store.
type Mirror interface {
	Save(ctx context.Context, p *models.TrackedPosition) error
	Load(ctx context.Context, entityID string) (*models.TrackedPosition, error)
}

type shard struct {
	mu        sync.RWMutex
	positions map[string]models.TrackedPosition
}

// Store holds current state only. Each entity maps to one shard, so writes
// for unrelated entities rarely contend and a record is replaced as a whole
// under its shard lock.
type Store struct {
	shards [shardCount]shard
	mirror Mirror
	cap    *durable.Capability
	now    func() time.Time
}

// NewStore creates a store. mirror may be nil for an in-memory only store.
func NewStore(mirror Mirror, capability *durable.Capability) *Store {
	s := &Store{mirror: mirror, cap: capability, now: time.Now}
	for i := range s.shards {
		s.shards[i].positions = make(map[string]models.TrackedPosition)
	}
	return s
}

func (s *Store) shard(entityID string) *shard {
	return &s.shards[xxhash.Sum64String(entityID)%shardCount]
}

// Upsert validates the report and replaces the entity's record. Invalid
// input returns models.ErrInvalidCoordinate and leaves the store untouched.
// Mirror failures are logged and never returned.
func (s *Store) Upsert(ctx context.Context, r models.PositionReport) (models.TrackedPosition, error) {
	if r.EntityID == "" {
		return models.TrackedPosition{}, fmt.Errorf("%w: entity id is required", models.ErrInvalidPayload)
	}
	if err := r.Validate(); err != nil {
		return models.TrackedPosition{}, err
	}

	now := s.now().UTC()
	reportedAt := r.Timestamp
	if reportedAt.IsZero() {
		reportedAt = now
	}
	rec := models.TrackedPosition{
		EntityID:   r.EntityID,
		Name:       r.Name,
		Role:       r.Role,
		GroupID:    r.GroupID,
		Latitude:   r.Latitude,
		Longitude:  r.Longitude,
		Heading:    copyFloat(r.Heading),
		Speed:      copyFloat(r.Speed),
		ReportedAt: reportedAt,
		UpdatedAt:  now,
	}

	sh := s.shard(r.EntityID)
	sh.mu.Lock()
	sh.positions[r.EntityID] = rec
	sh.mu.Unlock()

	s.save(ctx, &rec)
	return rec, nil
}

func (s *Store) save(ctx context.Context, rec *models.TrackedPosition) {
	if s.mirror == nil || !s.cap.Available() {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
	defer cancel()
	if err := s.cap.Observe(s.mirror.Save(ctx, rec)); err != nil {
		slog.Warn("position kept in memory only", "entity_id", rec.EntityID, "error", err)
	}
}

// Get returns the entity's last known position, falling back to the mirror
// on a miss. It returns models.ErrNotFound when nothing is known.
func (s *Store) Get(ctx context.Context, entityID string) (models.TrackedPosition, error) {
	sh := s.shard(entityID)
	sh.mu.RLock()
	rec, ok := sh.positions[entityID]
	sh.mu.RUnlock()
	if ok {
		return rec, nil
	}

	if s.mirror == nil || !s.cap.Available() {
		return models.TrackedPosition{}, models.ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
	defer cancel()
	loaded, err := s.mirror.Load(ctx, entityID)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrNotFound):
		s.cap.MarkAvailable()
		return models.TrackedPosition{}, models.ErrNotFound
	case errors.Is(err, models.ErrInvalidPayload):
		slog.Warn("ignoring malformed mirrored position", "entity_id", entityID, "error", err)
		return models.TrackedPosition{}, models.ErrNotFound
	default:
		s.cap.MarkDegraded(err)
		return models.TrackedPosition{}, models.ErrNotFound
	}
	s.cap.MarkAvailable()

	sh.mu.Lock()
	if cur, ok := sh.positions[entityID]; ok {
		sh.mu.Unlock()
		return cur, nil
	}
	sh.positions[entityID] = *loaded
	sh.mu.Unlock()
	return *loaded, nil
}

// Len returns the number of in-memory records.
func (s *Store) Len() int {
	n := 0
	for i := range s.shards {
		s.shards[i].mu.RLock()
		n += len(s.shards[i].positions)
		s.shards[i].mu.RUnlock()
	}
	return n
}

// Evict removes in-memory records last updated before cutoff and returns
// how many were removed. Mirrored copies expire on their own TTL.
func (s *Store) Evict(cutoff time.Time) int {
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for id, p := range sh.positions {
			if p.UpdatedAt.Before(cutoff) {
				delete(sh.positions, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// SweepEvery evicts records older than ttl on every tick until ctx is done.
func (s *Store) SweepEvery(ctx context.Context, interval, ttl time.Duration) {
	if ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Evict(s.now().Add(-ttl)); n > 0 {
				slog.Info("evicted stale positions", "count", n, "ttl", ttl)
			}
		}
	}
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
