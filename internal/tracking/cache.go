package tracking

import (
	"sync"

	"shipnorth/internal/model"
)

// LocationCache stores the latest fix per load.
type LocationCache struct {
	mu sync.Mutex
	m  map[string]model.Location
}

func NewLocationCache() *LocationCache { return &LocationCache{m: map[string]model.Location{}} }

// Upsert stores loc unless an equal or newer fix is already cached. It
// reports whether the cache changed.
func (c *LocationCache) Upsert(loc model.Location) bool {
	if loc.LoadID == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.m[loc.LoadID]; ok && !loc.RecordedAt.After(prev.RecordedAt) {
		return false
	}
	c.m[loc.LoadID] = loc
	return true
}

func (c *LocationCache) Get(loadID string) (model.Location, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	loc, ok := c.m[loadID]
	return loc, ok
}

// List returns all cached fixes.
func (c *LocationCache) List() []model.Location {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Location, 0, len(c.m))
	for _, v := range c.m {
		out = append(out, v)
	}
	return out
}
