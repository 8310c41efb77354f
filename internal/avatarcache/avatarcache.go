// Package avatarcache provides a small read-through cache in front of
// avatar lookups. Avatars are effectively immutable for the lifetime of this
// process (avatar creation/editing lives behind an excluded management
// surface), so a session or job that looks the same avatar up repeatedly
// never needs to round-trip to the database for it twice.
package avatarcache

import (
	"sync"

	"avatarbackend/internal/models"
)

// Loader fetches an avatar by ID on a cache miss.
type Loader func(id string) (*models.Avatar, error)

// Cache wraps a Loader with a sync.Map keyed by avatar ID. There is no
// eviction: the avatar set this process serves is small and write-free, so
// entries live for the process lifetime.
type Cache struct {
	load Loader
	m    sync.Map
}

// New constructs a Cache backed by load.
func New(load Loader) *Cache {
	return &Cache{load: load}
}

// Get returns the avatar for id, serving from cache when possible.
func (c *Cache) Get(id string) (*models.Avatar, error) {
	if v, ok := c.m.Load(id); ok {
		return v.(*models.Avatar), nil
	}

	avatar, err := c.load(id)
	if err != nil {
		return nil, err
	}

	c.m.Store(id, avatar)
	return avatar, nil
}

// Invalidate drops a cached entry, for a caller that knows an avatar row
// changed out from under the cache (e.g. a future management surface).
func (c *Cache) Invalidate(id string) {
	c.m.Delete(id)
}
