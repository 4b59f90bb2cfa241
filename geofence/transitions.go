package geofence

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"food-delivery/tracking/models"
)

const trackerShards = 32

type trackerShard struct {
	mu     sync.Mutex
	inside map[string]map[string]models.ZoneRef
}

// Tracker remembers which zones each entity was last seen in so callers can
// derive enter/exit transitions.
type Tracker struct {
	shards [trackerShards]trackerShard
}

func NewTracker() *Tracker {
	t := &Tracker{}
	for i := range t.shards {
		t.shards[i].inside = make(map[string]map[string]models.ZoneRef)
	}
	return t
}

func (t *Tracker) shard(entityID string) *trackerShard {
	return &t.shards[xxhash.Sum64String(entityID)%trackerShards]
}

// Update replaces the entity's zone set with current and returns the zones
// it entered and exited since the previous call.
func (t *Tracker) Update(entityID string, current []models.ZoneRef) (entered, exited []models.ZoneRef) {
	next := make(map[string]models.ZoneRef, len(current))
	for _, z := range current {
		next[z.ID] = z
	}

	s := t.shard(entityID)
	s.mu.Lock()
	prev := s.inside[entityID]
	if len(next) == 0 {
		delete(s.inside, entityID)
	} else {
		s.inside[entityID] = next
	}
	s.mu.Unlock()

	for id, z := range next {
		if _, ok := prev[id]; !ok {
			entered = append(entered, z)
		}
	}
	for id, z := range prev {
		if _, ok := next[id]; !ok {
			exited = append(exited, z)
		}
	}
	return entered, exited
}

// Forget drops the entity's zone set.
func (t *Tracker) Forget(entityID string) {
	s := t.shard(entityID)
	s.mu.Lock()
	delete(s.inside, entityID)
	s.mu.Unlock()
}
