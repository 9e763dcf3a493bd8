package prices

import (
	"sync/atomic"
	"time"
)

type cacheState struct {
	snapshot *Snapshot
	loadedAt time.Time
}

// Cache holds the latest published snapshot. Readers load one pointer and
// therefore always see a complete snapshot with its own load time.
type Cache struct {
	state atomic.Pointer[cacheState]
}

func NewCache() *Cache {
	return &Cache{}
}

// Publish swaps in snap. An empty snapshot never replaces anything.
func (c *Cache) Publish(snap *Snapshot, loadedAt time.Time) bool {
	if snap.Len() == 0 {
		return false
	}
	c.state.Store(&cacheState{snapshot: snap, loadedAt: loadedAt})
	return true
}

func (c *Cache) Snapshot() *Snapshot {
	if st := c.state.Load(); st != nil {
		return st.snapshot
	}
	return nil
}

func (c *Cache) LoadedAt() time.Time {
	if st := c.state.Load(); st != nil {
		return st.loadedAt
	}
	return time.Time{}
}

func (c *Cache) Price(name string) (float64, bool) {
	return c.Snapshot().Price(name)
}

func (c *Cache) Len() int {
	return c.Snapshot().Len()
}

// Fresh reports whether a non-empty snapshot was loaded less than ttl before now.
func (c *Cache) Fresh(now time.Time, ttl time.Duration) bool {
	st := c.state.Load()
	if st == nil || st.snapshot.Len() == 0 {
		return false
	}
	return now.Sub(st.loadedAt) < ttl
}
