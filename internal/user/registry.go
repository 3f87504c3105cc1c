package user

import "sync"

// Registry is the process-wide map of live Users, keyed by UserId. At most
// one User per UserId exists at a time (spec.md §3).
type Registry struct {
	mu   sync.RWMutex
	byID map[int32]*User
}

// NewRegistry returns an empty user registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[int32]*User)}
}

// Get returns the existing user for id, if any.
func (r *Registry) Get(id int32) (*User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	return u, ok
}

// GetOrCreate returns the existing user for id, or creates and registers a
// fresh one with the given profile.
func (r *Registry) GetOrCreate(id int32, name, language string) (u *User, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byID[id]; ok {
		return existing, false
	}
	u = New(id, name, language)
	r.byID[id] = u
	return u, true
}

// Remove deletes id from the registry (the user has fully expired: lost
// mid-game, or the dangling grace period elapsed without reclaim).
func (r *Registry) Remove(id int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

// Count returns the number of live users, for metrics logging.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
