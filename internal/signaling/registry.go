package signaling

import (
	"sync"

	"github.com/google/uuid"
)

// Registry tracks every live signaling connection by id. It is pure
// bookkeeping; all room rules live in the Hub. Ids are random UUIDs and are
// never reused within the process lifetime, so a stale room membership can
// never be confused with a newer connection.
type Registry struct {
	mu      sync.Mutex
	clients map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Add assigns a fresh connection id to c and tracks it.
func (r *Registry) Add(c *Client) string {
	id := uuid.NewString()
	r.mu.Lock()
	c.ID = id
	r.clients[id] = c
	r.mu.Unlock()
	return id
}

// Remove frees the id. Safe to call for an id that is already gone.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.clients, id)
	r.mu.Unlock()
}

// Get returns the client for id, if still registered.
func (r *Registry) Get(id string) (*Client, bool) {
	r.mu.Lock()
	c, ok := r.clients[id]
	r.mu.Unlock()
	return c, ok
}

// Len reports the number of live connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
