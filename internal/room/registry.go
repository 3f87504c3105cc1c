package room

import (
	"sync"

	"github.com/rhythmarena/mpserver/internal/user"
)

// Registry is the process-wide map of live rooms, keyed by room id.
type Registry struct {
	mu   sync.Mutex
	byID map[string]*Room
	cfg  Config
}

// NewRegistry returns an empty room registry that creates rooms with cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{byID: make(map[string]*Room), cfg: cfg}
}

// Get returns the room with the given id, if it currently exists.
func (r *Registry) Get(id string) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.byID[id]
	return room, ok
}

// Create allocates a new room with creator as host. It fails if a room with
// this id already exists.
func (r *Registry) Create(id string, creator *user.User) (*Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[id]; exists {
		return nil, ErrRoomAlreadyExists
	}
	room := New(id, creator, r.cfg)
	r.byID[id] = room
	return room, nil
}

// Drop removes a room from the registry, e.g. once its last member leaves.
func (r *Registry) Drop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

// Count returns how many rooms currently exist, for metrics logging.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
