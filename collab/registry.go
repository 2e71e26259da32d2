package collab

import (
	"sort"
	"sync"
)

// ConnID identifies one live transport session.
type ConnID string

// Registry maps rooms to their member connections. A room exists only while
// it has at least one member.
type Registry struct {
	mu          sync.RWMutex
	rooms       map[string]map[ConnID]struct{}
	memberships map[ConnID]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:       make(map[string]map[ConnID]struct{}),
		memberships: make(map[ConnID]map[string]struct{}),
	}
}

// Add inserts conn into room. Adding an existing member is a no-op.
func (r *Registry) Add(room string, conn ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[ConnID]struct{})
		r.rooms[room] = members
	}
	members[conn] = struct{}{}

	joined, ok := r.memberships[conn]
	if !ok {
		joined = make(map[string]struct{})
		r.memberships[conn] = joined
	}
	joined[room] = struct{}{}
}

// Remove drops conn from room. Removing a non-member is a no-op.
func (r *Registry) Remove(room string, conn ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(room, conn)
}

// RemoveFromAll drops conn from every room it belongs to and returns those
// rooms in sorted order.
func (r *Registry) RemoveFromAll(conn ConnID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined := r.memberships[conn]
	left := make([]string, 0, len(joined))
	for room := range joined {
		left = append(left, room)
	}
	sort.Strings(left)

	for _, room := range left {
		r.removeLocked(room, conn)
	}
	return left
}

func (r *Registry) removeLocked(room string, conn ConnID) {
	if members, ok := r.rooms[room]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}

	if joined, ok := r.memberships[conn]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(r.memberships, conn)
		}
	}
}

// Members returns a copy of the room's member set, sorted for stable
// delivery order.
func (r *Registry) Members(room string) []ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	out := make([]ConnID, 0, len(members))
	for conn := range members {
		out = append(out, conn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) Size(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms[room])
}

// RoomsOf returns the rooms conn currently belongs to, sorted.
func (r *Registry) RoomsOf(conn ConnID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	joined := r.memberships[conn]
	out := make([]string, 0, len(joined))
	for room := range joined {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

// Rooms returns every live room with its current member count.
func (r *Registry) Rooms() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make(map[string]int, len(r.rooms))
	for id, members := range r.rooms {
		rooms[id] = len(members)
	}
	return rooms
}
