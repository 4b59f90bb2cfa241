// Package broadcast tracks which connections belong to which group and fans
// messages out to them.
package broadcast

import "sync"

// GlobalGroup is the implicit group every subscriber belongs to for its
// whole lifetime.
const GlobalGroup = ""

// Subscriber is a connection that can receive broadcasts.
type Subscriber interface {
	ID() string
	Enqueue(msg []byte) bool
	Closed() bool
}

type group struct {
	mu      sync.RWMutex
	members map[string]Subscriber
	dead    bool
}

// Registry owns group membership. Membership changes lock only the group
// they touch; the group map lock is held just to create or drop a group.
type Registry struct {
	mu     sync.RWMutex
	groups map[string]*group

	connMu   sync.Mutex
	memberOf map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		groups:   make(map[string]*group),
		memberOf: make(map[string]string),
	}
}

// Subscribe adds sub to the global group.
func (r *Registry) Subscribe(sub Subscriber) {
	r.add(GlobalGroup, sub)
}

// Join moves sub into groupID, leaving its previous explicit group. It
// returns the group that was left, if any.
func (r *Registry) Join(sub Subscriber, groupID string) string {
	if groupID == GlobalGroup {
		return r.Leave(sub)
	}

	r.connMu.Lock()
	prev, had := r.memberOf[sub.ID()]
	r.memberOf[sub.ID()] = groupID
	r.connMu.Unlock()

	if had && prev == groupID {
		return ""
	}
	if had {
		r.remove(prev, sub.ID())
	}
	r.add(groupID, sub)
	return prev
}

// Leave removes sub from its explicit group and returns that group.
func (r *Registry) Leave(sub Subscriber) string {
	r.connMu.Lock()
	prev, had := r.memberOf[sub.ID()]
	delete(r.memberOf, sub.ID())
	r.connMu.Unlock()

	if had {
		r.remove(prev, sub.ID())
	}
	return prev
}

// Remove drops sub from every group.
func (r *Registry) Remove(sub Subscriber) {
	r.Leave(sub)
	r.remove(GlobalGroup, sub.ID())
}

// GroupOf returns the explicit group of a subscriber, or GlobalGroup.
func (r *Registry) GroupOf(id string) string {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	return r.memberOf[id]
}

// Members returns a snapshot of the group's subscribers.
func (r *Registry) Members(groupID string) []Subscriber {
	r.mu.RLock()
	g := r.groups[groupID]
	r.mu.RUnlock()
	if g == nil {
		return nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Subscriber, 0, len(g.members))
	for _, s := range g.members {
		out = append(out, s)
	}
	return out
}

// Groups returns the number of live groups, including the global one.
func (r *Registry) Groups() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}

func (r *Registry) add(groupID string, sub Subscriber) {
	for {
		r.mu.RLock()
		g := r.groups[groupID]
		r.mu.RUnlock()

		if g == nil {
			r.mu.Lock()
			g = r.groups[groupID]
			if g == nil {
				g = &group{members: make(map[string]Subscriber)}
				r.groups[groupID] = g
			}
			r.mu.Unlock()
		}

		g.mu.Lock()
		if g.dead {
			g.mu.Unlock()
			continue
		}
		g.members[sub.ID()] = sub
		g.mu.Unlock()
		return
	}
}

func (r *Registry) remove(groupID, id string) {
	r.mu.RLock()
	g := r.groups[groupID]
	r.mu.RUnlock()
	if g == nil {
		return
	}

	g.mu.Lock()
	delete(g.members, id)
	empty := len(g.members) == 0
	if empty {
		g.dead = true
	}
	g.mu.Unlock()

	if empty {
		r.mu.Lock()
		if r.groups[groupID] == g {
			delete(r.groups, groupID)
		}
		r.mu.Unlock()
	}
}
